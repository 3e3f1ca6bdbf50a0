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

// Package validate decides the validateFiles invocation for a given
// (file_format, file_format_type, output_type, assembly, genome_annotation)
// tuple and runs it, plus the samtools quickcheck gate for BAM.
package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/ENCODE-DCC/checkfiles/job"
	"github.com/ENCODE-DCC/checkfiles/runner"
)

var bamTranscriptomeOutputTypes = map[string]bool{
	"transcriptome alignments":          true,
	"gene alignments":                   true,
	"redacted transcriptome alignments": true,
}

// Check runs format validation for the file at path, recording errors and
// results on j. encValData is the root of the reference-data path tree.
func Check(ctx context.Context, r runner.Runner, encValData string, j *job.Job, path string) {
	item := j.Item
	errs := j.Errors

	assembly := ResolveAssembly(item.Assembly)
	subreads := false
	var chromInfo string

	switch {
	case item.FileFormat == "bam" && bamTranscriptomeOutputTypes[item.OutputType]:
		missingAssembly := item.Assembly == ""
		missingAnnotation := item.GenomeAnnotation == ""
		if missingAssembly {
			errs["assembly"] = "missing assembly"
			errs.AddContentError("File metadata lacks assembly information")
		}
		if missingAnnotation {
			errs["genome_annotation"] = "missing genome_annotation"
			errs.AddContentError("File metadata lacks genome annotation information")
		}
		if missingAssembly || missingAnnotation {
			return
		}
		if item.OutputType == "transcriptome alignments" || item.OutputType == "redacted transcriptome alignments" {
			chromInfo = fmt.Sprintf("-chromInfo=%s/%s/%s/chrom.sizes", encValData, assembly, item.GenomeAnnotation)
		} else {
			chromInfo = fmt.Sprintf("-chromInfo=%s/%s/%s/gene.sizes", encValData, assembly, item.GenomeAnnotation)
		}
	case item.FileFormat == "bam" && item.OutputType == "subreads":
		subreads = true
	default:
		chromInfo = fmt.Sprintf("-chromInfo=%s/%s/chrom.sizes", encValData, assembly)
	}

	if !subreads && item.FileFormat == "bam" {
		res, _ := r.Run(ctx, "samtools", "quickcheck", path)
		if res.ExitCode != 0 {
			errs["bamValidation"] = strings.TrimRight(res.Output, "\n")
			errs.AddContentError("File failed bam validation (samtools quickcheck). " + errs["bamValidation"])
		} else {
			j.Result["bamValidation"] = strings.TrimRight(res.Output, "\n")
		}
	}

	if subreads {
		return
	}

	e, present := lookup(item.FileFormat, item.FileFormatType)
	if !present || e == nil {
		return
	}

	if e.needsChromInfo && item.Assembly == "" {
		errs["assembly"] = "missing assembly"
		errs.AddContentError("File metadata lacks assembly information")
		return
	}

	args := buildArgs(e, chromInfo, encValData)
	j.Result["validateFiles_args"] = strings.Join(args, " ")

	full := append([]string{"validateFiles"}, args...)
	full = append(full, path)
	res, _ := r.Run(ctx, full...)
	if res.ExitCode != 0 {
		errs["validateFiles"] = strings.TrimRight(res.Output, "\n")
		errs.AddContentError("File failed file format specific validation (encValData) " + errs["validateFiles"])
	} else {
		j.Result["validateFiles"] = strings.TrimRight(res.Output, "\n")
	}
}

func buildArgs(e *entry, chromInfo, encValData string) []string {
	var args []string
	if e.tab {
		args = append(args, "-tab")
	}
	args = append(args, "-type="+e.typeArg)
	if e.needsChromInfo {
		args = append(args, chromInfo)
	}
	if e.asFile != "" {
		args = append(args, fmt.Sprintf("-as=%s/as/%s", encValData, e.asFile))
	}
	return args
}
