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

package crispr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ENCODE-DCC/checkfiles/job"
	"github.com/ENCODE-DCC/checkfiles/runner"
)

func testPaths() Paths {
	return Paths{
		PythonPath:          "python3",
		GuideValidationPath: "/opt/check_guide_quant_format.py",
		PAMValidationPath:   "/opt/check_PAM.py",
		GuideFormatPath:     "/opt/guide_quant_format.txt",
		GenomeReferencePath: "/opt/genome.fasta",
	}
}

func TestValidatePassesGuideAndPAMChecks(t *testing.T) {
	paths := testPaths()
	stub := runner.StubRunner{Responses: map[string]runner.Result{
		"python3 /opt/check_guide_quant_format.py /opt/guide_quant_format.txt /mirror/ENCFF000ABC.tsv": {
			ExitCode: 0, Output: "guide_quant_format passed\n",
		},
		"python3 /opt/check_PAM.py /mirror/ENCFF000ABC.tsv /opt/genome.fasta": {
			ExitCode: 0,
			Output: "line0\nline1\nline2\nMore than 80% of the PAMs are NGG. The coordinates are likely to be correct\n",
		},
	}}
	j := job.New("/files/ENCFF000ABC/")
	Validate(context.Background(), stub, paths, j, "/mirror/ENCFF000ABC.tsv")

	assert.False(t, j.Errors.HasContentError())
	assert.Contains(t, j.Result["CRISPR_PAM_validation"], "More than 80%")
}

func TestValidateGuideFailureSkipsPAMCheck(t *testing.T) {
	paths := testPaths()
	stub := runner.StubRunner{Responses: map[string]runner.Result{
		"python3 /opt/check_guide_quant_format.py /opt/guide_quant_format.txt /mirror/ENCFF000ABC.tsv": {
			ExitCode: 0, Output: "guide_quant_format failed: bad header\n",
		},
	}}
	j := job.New("/files/ENCFF000ABC/")
	Validate(context.Background(), stub, paths, j, "/mirror/ENCFF000ABC.tsv")

	assert.True(t, j.Errors.HasContentError())
	assert.NotContains(t, j.Result, "CRISPR_PAM_validation")
}

func TestValidatePAMBelowThresholdIsContentError(t *testing.T) {
	paths := testPaths()
	stub := runner.StubRunner{Responses: map[string]runner.Result{
		"python3 /opt/check_guide_quant_format.py /opt/guide_quant_format.txt /mirror/ENCFF000ABC.tsv": {
			ExitCode: 0, Output: "guide_quant_format passed\n",
		},
		"python3 /opt/check_PAM.py /mirror/ENCFF000ABC.tsv /opt/genome.fasta": {
			ExitCode: 0,
			Output:   "line0\nline1\nline2\nOnly 40% of the PAMs are NGG. Coordinates may be wrong\n",
		},
	}}
	j := job.New("/files/ENCFF000ABC/")
	Validate(context.Background(), stub, paths, j, "/mirror/ENCFF000ABC.tsv")

	assert.True(t, j.Errors.HasContentError())
}
