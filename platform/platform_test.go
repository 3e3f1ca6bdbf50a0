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

package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ENCODE-DCC/checkfiles/job"
	"github.com/ENCODE-DCC/checkfiles/portal"
)

func TestIsLongReadOrUltimaIncludesUltima(t *testing.T) {
	assert.True(t, IsLongReadOrUltima(Ultima))
	assert.True(t, IsUltima(Ultima))
}

func TestIsLongReadOrUltimaRejectsUnknownUUID(t *testing.T) {
	assert.False(t, IsLongReadOrUltima("not-a-real-uuid"))
}

func TestAnyLongReadOrUltimaFindsOneAmongMany(t *testing.T) {
	assert.True(t, AnyLongReadOrUltima([]string{"not-a-real-uuid", Ultima}))
	assert.False(t, AnyLongReadOrUltima([]string{"not-a-real-uuid", "also-not-real"}))
}

// records maps a record @id to its object-view JSON, for a fake portal
// that answers GetObject by id lookup.
func fakeRecordServer(t *testing.T, records map[string]string) (*portal.Client, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path
		body, ok := records[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	return portal.NewClient(srv.URL, "key", "secret"), srv.Close
}

func TestPlatformsFromDerivedFromCollectsFastqAncestorPlatforms(t *testing.T) {
	client, closeSrv := fakeRecordServer(t, map[string]string{
		"/files/fastq1/": `{"@id": "/files/fastq1/", "file_format": "fastq", "platform": "/platforms/illumina/"}`,
		"/platforms/illumina/": `{"uuid": "not-a-long-read-uuid"}`,
	})
	defer closeSrv()

	item := &job.File{ID: "/files/bam1/", DerivedFrom: []string{"/files/fastq1/"}}
	platforms, err := PlatformsFromDerivedFrom(context.Background(), client, item)
	require.NoError(t, err)
	assert.Equal(t, []string{"not-a-long-read-uuid"}, platforms)
}

func TestPlatformsFromDerivedFromWalksTransitiveClosure(t *testing.T) {
	client, closeSrv := fakeRecordServer(t, map[string]string{
		"/files/bam-intermediate/": `{"@id": "/files/bam-intermediate/", "file_format": "bam", "derived_from": ["/files/fastq1/"]}`,
		"/files/fastq1/":           `{"@id": "/files/fastq1/", "file_format": "fastq", "platform": "/platforms/pacbio/"}`,
		"/platforms/pacbio/":       `{"uuid": "ced61406-dcc6-43c4-bddd-4c977cc676e8"}`,
	})
	defer closeSrv()

	item := &job.File{ID: "/files/bam2/", DerivedFrom: []string{"/files/bam-intermediate/"}}
	platforms, err := PlatformsFromDerivedFrom(context.Background(), client, item)
	require.NoError(t, err)
	require.Len(t, platforms, 1)
	assert.True(t, IsLongReadOrUltima(platforms[0]))
}

func TestPlatformsFromDerivedFromEmptyWhenNoAncestors(t *testing.T) {
	client, closeSrv := fakeRecordServer(t, map[string]string{})
	defer closeSrv()

	item := &job.File{ID: "/files/bam1/"}
	platforms, err := PlatformsFromDerivedFrom(context.Background(), client, item)
	require.NoError(t, err)
	assert.Empty(t, platforms)
}

func TestResolveUUIDEmptyWhenNoPlatformDeclared(t *testing.T) {
	client, closeSrv := fakeRecordServer(t, map[string]string{})
	defer closeSrv()

	uuid, err := ResolveUUID(context.Background(), client, &job.File{})
	require.NoError(t, err)
	assert.Equal(t, "", uuid)
}

func TestResolveUUIDRejectsMalformedUUID(t *testing.T) {
	client, closeSrv := fakeRecordServer(t, map[string]string{
		"/platforms/bogus/": `{"uuid": "not-a-uuid"}`,
	})
	defer closeSrv()

	_, err := ResolveUUID(context.Background(), client, &job.File{Platform: "/platforms/bogus/"})
	assert.Error(t, err)
}
