/*
Copyright 2024 The ENCODE DCC Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package jobsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ENCODE-DCC/checkfiles/portal"
)

func TestExtractAccessionStripsExtension(t *testing.T) {
	assert.Equal(t, "ENCFF000ABC", ExtractAccession("/local/path/ENCFF000ABC.fastq.gz"))
}

func fakePortalServer(t *testing.T, expiration string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "@@upload"):
			_, _ = w.Write([]byte(`{"@graph": [{"upload_credentials": {"upload_url": "s3://bucket/ENCFF000ABC.fastq.gz", "expiration": "` + expiration + `"}}]}`))
		case r.URL.RawQuery == "frame=edit&datastore=database" || strings.Contains(r.URL.RawQuery, "frame=edit"):
			w.Header().Set("ETag", `"abc123"`)
			_, _ = w.Write([]byte(`{"status": "uploading", "file_format": "fastq"}`))
		case strings.Contains(r.URL.RawQuery, "frame=object"):
			_, _ = w.Write([]byte(`{"s3_uri": "s3://bucket/ENCFF000ABC.fastq.gz"}`))
		case strings.HasPrefix(r.URL.Path, "/search/"):
			_, _ = w.Write([]byte(`{"@graph": [{"@id": "/files/ENCFF000ABC/"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestFetchBySearchQueryResolvesEachHit(t *testing.T) {
	srv := fakePortalServer(t, "2000-01-01T00:00:00Z")
	defer srv.Close()
	client := portal.NewClient(srv.URL, "key", "secret")

	jobs, err := Fetch(context.Background(), client, Config{SearchQuery: "status=uploading"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "/files/ENCFF000ABC/", jobs[0].ID)
	assert.Equal(t, "s3://bucket/ENCFF000ABC.fastq.gz", jobs[0].DownloadURL)
	assert.False(t, jobs[0].Skip)
}

func TestFetchSkipsJobsWithUnexpiredCredentials(t *testing.T) {
	srv := fakePortalServer(t, "2999-01-01T00:00:00Z")
	defer srv.Close()
	client := portal.NewClient(srv.URL, "key", "secret")

	jobs, err := Fetch(context.Background(), client, Config{SearchQuery: "status=uploading"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].Skip)
}

func TestFetchIncludeUnexpiredUploadOverridesSkip(t *testing.T) {
	srv := fakePortalServer(t, "2999-01-01T00:00:00Z")
	defer srv.Close()
	client := portal.NewClient(srv.URL, "key", "secret")

	jobs, err := Fetch(context.Background(), client, Config{
		SearchQuery:            "status=uploading",
		IncludeUnexpiredUpload: true,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].Skip)
}

func TestFetchByFileListReadsAccessionsLineByLine(t *testing.T) {
	srv := fakePortalServer(t, "2000-01-01T00:00:00Z")
	defer srv.Close()
	client := portal.NewClient(srv.URL, "key", "secret")

	f, err := os.CreateTemp(t.TempDir(), "accessions-*.txt")
	require.NoError(t, err)
	_, err = f.WriteString("ENCFF000ABC\n\nENCFF000ABC\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	jobs, err := Fetch(context.Background(), client, Config{FileListPath: f.Name()})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestFetchByFileListSkipsBadAccessionsButKeepsGoing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.RawQuery, "accession=BADACCESSION"):
			w.WriteHeader(http.StatusInternalServerError)
		case strings.Contains(r.URL.Path, "@@upload"):
			_, _ = w.Write([]byte(`{"@graph": [{"upload_credentials": {"upload_url": "s3://bucket/ENCFF000ABC.fastq.gz", "expiration": "2000-01-01T00:00:00Z"}}]}`))
		case strings.Contains(r.URL.RawQuery, "frame=edit"):
			w.Header().Set("ETag", `"abc123"`)
			_, _ = w.Write([]byte(`{"status": "uploading", "file_format": "fastq"}`))
		case strings.Contains(r.URL.RawQuery, "frame=object"):
			_, _ = w.Write([]byte(`{"s3_uri": "s3://bucket/ENCFF000ABC.fastq.gz"}`))
		case strings.HasPrefix(r.URL.Path, "/search/"):
			_, _ = w.Write([]byte(`{"@graph": [{"@id": "/files/ENCFF000ABC/"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	client := portal.NewClient(srv.URL, "key", "secret")

	f, err := os.CreateTemp(t.TempDir(), "accessions-*.txt")
	require.NoError(t, err)
	_, err = f.WriteString("BADACCESSION\nENCFF000ABC\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	jobs, err := Fetch(context.Background(), client, Config{FileListPath: f.Name()})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "/files/ENCFF000ABC/", jobs[0].ID)
}

func TestFetchByFileListAllAccessionsFailingIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	client := portal.NewClient(srv.URL, "key", "secret")

	f, err := os.CreateTemp(t.TempDir(), "accessions-*.txt")
	require.NoError(t, err)
	_, err = f.WriteString("BADACCESSION\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Fetch(context.Background(), client, Config{FileListPath: f.Name()})
	assert.Error(t, err)
}

func TestFetchSearchFailurePropagatesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	client := portal.NewClient(srv.URL, "key", "secret")

	_, err := Fetch(context.Background(), client, Config{SearchQuery: "status=uploading"})
	assert.Error(t, err)
}
