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

// Package crispr runs the ENCODE CRISPR Group's two guide-quantification
// sub-validators: a format checker against a fixed guide_quant schema, and
// a PAM-sequence sanity check against the GRCh38 reference. Both are
// external Python scripts this pipeline only shells out to.
package crispr

import (
	"context"
	"strings"

	"github.com/ENCODE-DCC/checkfiles/job"
	"github.com/ENCODE-DCC/checkfiles/runner"
)

// Paths collects the filesystem locations of the CRISPR validator scripts
// and reference data, configurable since they live outside this module.
type Paths struct {
	PythonPath          string
	GuideValidationPath string
	PAMValidationPath   string
	GuideFormatPath     string
	GenomeReferencePath string
}

// DefaultPaths mirrors the fixed locations the original tool assumed.
func DefaultPaths() Paths {
	return Paths{
		PythonPath:          "python3",
		GuideValidationPath: "/opt/ENCODE_CRISPR_Validation/check_guide_quant_format.py",
		PAMValidationPath:   "/opt/ENCODE_CRISPR_Validation/check_PAM.py",
		GuideFormatPath:     "/opt/ENCODE_CRISPR_Validation/guide_quant_format.txt",
		GenomeReferencePath: "/opt/GRCh38_no_alt_analysis_set_GCA_000001405.15.fasta",
	}
}

// Validate runs the guide-quantification format check and, only if it
// passes, the PAM check, recording output or errors on j.
func Validate(ctx context.Context, r runner.Runner, paths Paths, j *job.Job, filePath string) {
	errs := j.Errors
	result := j.Result

	guideRes, err := r.Run(ctx, paths.PythonPath, paths.GuideValidationPath, paths.GuideFormatPath, filePath)
	if err != nil {
		errs["CRISPR_guide_info_extraction"] = "Failed to extract information from " + filePath
		return
	}

	checkPAM := false
	for _, line := range strings.Split(guideRes.Output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "passed") {
			checkPAM = true
			result["CRISPR_guide_quant_validation"] = line
		} else {
			errs["CRISPR_guide_quant_validation"] = line
			errs.AddContentError("File failed CRISPR guide quantification format validation " +
				"(check_guide_quant_format.py). " + line)
		}
	}

	if !checkPAM {
		return
	}

	pamRes, err := r.Run(ctx, paths.PythonPath, paths.PAMValidationPath, filePath, paths.GenomeReferencePath)
	if err != nil {
		errs["CRISPR_PAM_info_extraction"] = "Failed to extract information from " + filePath
		return
	}

	const pamExpected = "More than 80% of the PAMs are NGG. The coordinates are likely to be correct"
	for i, line := range strings.Split(pamRes.Output, "\n") {
		if i != 3 {
			continue
		}
		line = strings.TrimSpace(line)
		if strings.Contains(line, pamExpected) {
			result["CRISPR_PAM_validation"] = line
		} else {
			errs["CRISPR_PAM_validation"] = line
			errs.AddContentError("File failed CRISPR PAM validation (check_PAM.py). " + line)
		}
	}
}
