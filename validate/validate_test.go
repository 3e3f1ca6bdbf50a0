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

package validate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ENCODE-DCC/checkfiles/job"
	"github.com/ENCODE-DCC/checkfiles/runner"
)

func newFileJob(format, formatType, assembly string) *job.Job {
	j := job.New("/files/ENCFF000ABC/")
	j.Item = &job.File{FileFormat: format, FileFormatType: formatType, Assembly: assembly}
	return j
}

func TestCheckRunsValidateFilesForTabularFormat(t *testing.T) {
	j := newFileJob("bed", "narrowPeak", "GRCh38")
	stub := runner.StubRunner{Responses: map[string]runner.Result{}}
	Check(context.Background(), stub, "/opt/encValData", j, "/mirror/ENCFF000ABC.bed.gz")

	args, ok := j.Result["validateFiles_args"].(string)
	require.True(t, ok)
	assert.Contains(t, args, "-type=bed6+4")
	assert.Contains(t, args, "narrowPeak.as")
}

func TestCheckResolvesMinimalAssemblyForChromInfo(t *testing.T) {
	j := newFileJob("bed", "narrowPeak", "GRCh38-minimal")
	stub := runner.StubRunner{Responses: map[string]runner.Result{}}
	Check(context.Background(), stub, "/opt/encValData", j, "/mirror/ENCFF000ABC.bed.gz")

	args := j.Result["validateFiles_args"].(string)
	assert.Contains(t, args, "/opt/encValData/GRCh38/chrom.sizes")
}

func TestCheckRecordsContentErrorOnValidateFilesFailure(t *testing.T) {
	j := newFileJob("bed", "narrowPeak", "GRCh38")
	stub := runner.StubRunner{Responses: map[string]runner.Result{
		"validateFiles -type=bed6+4 -chromInfo=/opt/encValData/GRCh38/chrom.sizes -as=/opt/encValData/as/narrowPeak.as /mirror/ENCFF000ABC.bed.gz": {
			ExitCode: 1, Output: "line 4: invalid chrom\n",
		},
	}}
	Check(context.Background(), stub, "/opt/encValData", j, "/mirror/ENCFF000ABC.bed.gz")

	assert.True(t, j.Errors.HasContentError())
	assert.Contains(t, j.Errors["validateFiles"], "invalid chrom")
}

func TestCheckRunsSamtoolsQuickcheckForBam(t *testing.T) {
	j := newFileJob("bam", "", "GRCh38")
	j.Item.OutputType = "alignments"
	stub := runner.StubRunner{Responses: map[string]runner.Result{
		"samtools quickcheck /mirror/ENCFF000ABC.bam": {ExitCode: 0, Output: ""},
		"validateFiles -type=bam -chromInfo=/opt/encValData/GRCh38/chrom.sizes /mirror/ENCFF000ABC.bam": {
			ExitCode: 0, Output: "",
		},
	}}
	Check(context.Background(), stub, "/opt/encValData", j, "/mirror/ENCFF000ABC.bam")

	assert.False(t, j.Errors.HasContentError())
	assert.Equal(t, "", j.Result["bamValidation"])
}

func TestCheckBamQuickcheckFailureIsContentError(t *testing.T) {
	j := newFileJob("bam", "", "GRCh38")
	j.Item.OutputType = "alignments"
	stub := runner.StubRunner{Responses: map[string]runner.Result{
		"samtools quickcheck /mirror/ENCFF000ABC.bam": {ExitCode: 1, Output: "truncated file\n"},
	}}
	Check(context.Background(), stub, "/opt/encValData", j, "/mirror/ENCFF000ABC.bam")

	assert.True(t, j.Errors.HasContentError())
}

func TestCheckSkipsQuickcheckForSubreads(t *testing.T) {
	j := newFileJob("bam", "", "GRCh38")
	j.Item.OutputType = "subreads"
	stub := runner.StubRunner{Responses: map[string]runner.Result{}}
	Check(context.Background(), stub, "/opt/encValData", j, "/mirror/ENCFF000ABC.bam")

	assert.Empty(t, j.Errors)
	assert.NotContains(t, j.Result, "bamValidation")
}

func TestCheckBamTranscriptomeRequiresAssemblyAndAnnotation(t *testing.T) {
	j := newFileJob("bam", "", "")
	j.Item.OutputType = "transcriptome alignments"
	stub := runner.StubRunner{Responses: map[string]runner.Result{}}
	Check(context.Background(), stub, "/opt/encValData", j, "/mirror/ENCFF000ABC.bam")

	assert.True(t, j.Errors.HasContentError())
	assert.Contains(t, j.Errors, "assembly")
	assert.Contains(t, j.Errors, "genome_annotation")
}

func TestResolveAssemblyCollapsesMinimalVariants(t *testing.T) {
	assert.Equal(t, "GRCh38", ResolveAssembly("GRCh38-minimal"))
	assert.Equal(t, "mm10", ResolveAssembly("mm10-minimal"))
	assert.Equal(t, "hg19", ResolveAssembly("hg19"))
}
