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

package conflict

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ENCODE-DCC/checkfiles/job"
	"github.com/ENCODE-DCC/checkfiles/portal"
)

func newConflictJob(accession string) *job.Job {
	j := job.New("/files/ENCFF000AAA/")
	j.Item = &job.File{Accession: accession}
	return j
}

func TestCheckContentMD5SumNoConflictWhenNoHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"@graph": []}`))
	}))
	defer srv.Close()
	client := portal.NewClient(srv.URL, "key", "secret")

	j := newConflictJob("ENCFF000AAA")
	j.Result["content_md5sum"] = "deadbeef"
	CheckContentMD5Sum(context.Background(), client, j)

	assert.False(t, j.Errors.HasContentError())
}

func TestCheckContentMD5SumFlagsDifferentAccession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "status!=replaced")
		_, _ = w.Write([]byte(`{"@graph": [{"accession": "ENCFF000BBB"}]}`))
	}))
	defer srv.Close()
	client := portal.NewClient(srv.URL, "key", "secret")

	j := newConflictJob("ENCFF000AAA")
	j.Result["content_md5sum"] = "deadbeef"
	CheckContentMD5Sum(context.Background(), client, j)

	assert.True(t, j.Errors.HasContentError())
	assert.Contains(t, j.Errors.ContentErrorDetail(), "ENCFF000BBB")
}

func TestCheckContentMD5SumNoOpWithoutSum(t *testing.T) {
	j := newConflictJob("ENCFF000AAA")
	CheckContentMD5Sum(context.Background(), nil, j)
	assert.False(t, j.Errors.HasContentError())
}

func TestCheckFastqSignaturesSkipsMixedFallback(t *testing.T) {
	var searched int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		searched++
		_, _ = w.Write([]byte(`{"@graph": []}`))
	}))
	defer srv.Close()
	client := portal.NewClient(srv.URL, "key", "secret")

	j := newConflictJob("ENCFF000AAA")
	CheckFastqSignatures(context.Background(), client, j, []string{"mixed:"})

	assert.Equal(t, 0, searched)
	assert.False(t, j.Errors.HasContentError())
}

func TestCheckFastqSignaturesFlagsMatchingAccession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.Contains(r.URL.RawQuery, "file_format=fastq"))
		_, _ = w.Write([]byte(`{"@graph": [{"accession": "ENCFF000CCC"}]}`))
	}))
	defer srv.Close()
	client := portal.NewClient(srv.URL, "key", "secret")

	j := newConflictJob("ENCFF000AAA")
	CheckFastqSignatures(context.Background(), client, j, []string{"FC1:1:1:AAAA"})

	assert.True(t, j.Errors.HasContentError())
}

func TestCheckFastqSignaturesNoBarcodeSignatureNeedsFlowcellOverlap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"@graph": [{"accession": "ENCFF000CCC", "flowcell_details": [{"lane": "2", "barcode": "TTTT"}]}]}`))
	}))
	defer srv.Close()
	client := portal.NewClient(srv.URL, "key", "secret")

	j := newConflictJob("ENCFF000AAA")
	j.Item.FlowcellDetails = []job.Flowcell{{Lane: "1", Barcode: "AAAA"}}
	CheckFastqSignatures(context.Background(), client, j, []string{"FC1:1:1::"})

	assert.False(t, j.Errors.HasContentError())
}

func TestCheckFastqSignaturesNoBarcodeSignatureConflictsOnOverlap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"@graph": [{"accession": "ENCFF000CCC", "flowcell_details": [{"lane": "1", "barcode": "AAAA"}]}]}`))
	}))
	defer srv.Close()
	client := portal.NewClient(srv.URL, "key", "secret")

	j := newConflictJob("ENCFF000AAA")
	j.Item.FlowcellDetails = []job.Flowcell{{Lane: "1", Barcode: "AAAA"}}
	CheckFastqSignatures(context.Background(), client, j, []string{"FC1:1:1::"})

	assert.True(t, j.Errors.HasContentError())
}

func TestCompareFlowcellDetailsSharedLaneBarcodeOverlaps(t *testing.T) {
	a := []job.Flowcell{{Lane: "1", Barcode: "AAAA"}}
	b := []job.Flowcell{{Lane: "1", Barcode: "AAAA"}, {Lane: "2", Barcode: "TTTT"}}
	assert.True(t, compareFlowcellDetails(a, b))
}

func TestCompareFlowcellDetailsDisjointSetsDoNotOverlap(t *testing.T) {
	a := []job.Flowcell{{Lane: "1", Barcode: "AAAA"}}
	b := []job.Flowcell{{Lane: "2", Barcode: "TTTT"}}
	assert.False(t, compareFlowcellDetails(a, b))
}
