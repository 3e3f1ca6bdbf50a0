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

// Package bam extracts mapped_run_type and mapped_read_length from a BAM
// file via two samtools stats invocations, for every platform except
// long-read and Ultima chemistries (whose reads have no single
// characteristic mapped length).
package bam

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ENCODE-DCC/checkfiles/job"
	"github.com/ENCODE-DCC/checkfiles/platform"
	"github.com/ENCODE-DCC/checkfiles/runner"
)

// Check runs samtools stats twice against path and records mapped_run_type
// and mapped_read_length on j.Result, or missing_mapped_properties if
// either extraction came back empty. It only runs when ancestorPlatforms is
// non-empty (a platform was actually resolved from the BAM's derived_from
// fastqs) and none of them is long-read or Ultima chemistry.
func Check(ctx context.Context, r runner.Runner, j *job.Job, path string, ancestorPlatforms []string) {
	if len(ancestorPlatforms) == 0 || platform.AnyLongReadOrUltima(ancestorPlatforms) {
		return
	}
	errs := j.Errors

	runType, err := mappedRunType(ctx, r, path, errs)
	if err != nil {
		return
	}
	readLength, err := mappedReadLength(ctx, r, path, errs)
	if err != nil {
		return
	}

	if runType != "" && readLength > 0 {
		j.Result["mapped_run_type"] = runType
		j.Result["mapped_read_length"] = readLength
		return
	}

	errs["missing_mapped_properties"] = fmt.Sprintf(
		"Failed to extract mapped read length and/or mapped run type from %s", path)
	errs.AddContentError("File failed samtools stats extraction. " + errs["missing_mapped_properties"])
}

func mappedRunType(ctx context.Context, r runner.Runner, path string, errs job.Errors) (string, error) {
	res, err := r.Run(ctx, "samtools", "stats", path)
	if err != nil {
		return "", err
	}
	var numPaired string
	for _, line := range strings.Split(res.Output, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "Failure") {
			errs["samtools_stats_decoding_failure"] = line
			errs.AddContentError("File failed samtools stats extraction. " + line)
			return "", fmt.Errorf("samtools stats failure: %s", line)
		}
		if strings.HasPrefix(line, "SN") && strings.Contains(line, "reads paired") {
			fields := strings.Split(line, "\t")
			if len(fields) > 2 {
				numPaired = fields[2]
			}
		}
	}
	if numPaired == "" {
		return "", nil
	}
	n, err := strconv.Atoi(numPaired)
	if err != nil {
		return "", nil
	}
	if n > 0 {
		return "paired-ended", nil
	}
	return "single-ended", nil
}

// mappedReadLength parses the single RL histogram row samtools stats | grep
// ^RL | cut -f 2- | sort -k2 -n -r | head -1 selects: the read length with
// the highest observation count.
func mappedReadLength(ctx context.Context, r runner.Runner, path string, errs job.Errors) (int, error) {
	script := fmt.Sprintf("samtools stats %s | grep ^RL | cut -f 2- | sort -k2 -n -r | head -1", path)
	res, err := r.RunShell(ctx, script)
	if err != nil {
		return 0, err
	}
	line := strings.TrimSpace(res.Output)
	if line == "" {
		return 0, nil
	}
	if strings.Contains(line, "Failure") {
		errs["samtools_stats_decoding_failure"] = line
		errs.AddContentError("File failed samtools stats extraction. " + line)
		return 0, fmt.Errorf("samtools stats failure: %s", line)
	}
	fields := strings.Split(line, "\t")
	length, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return 0, nil
	}
	return length, nil
}
