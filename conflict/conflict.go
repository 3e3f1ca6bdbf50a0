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

// Package conflict searches the portal for other files sharing a content
// md5sum or fastq dedup signature with the one being checked, the two
// forms of duplicate-upload detection the pipeline performs.
package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ENCODE-DCC/checkfiles/job"
	"github.com/ENCODE-DCC/checkfiles/portal"
)

// CheckContentMD5Sum searches for other non-replaced files with the same
// content_md5sum as j.Result["content_md5sum"] and records a conflict when
// one is found whose accession differs (or is equally absent).
func CheckContentMD5Sum(ctx context.Context, client *portal.Client, j *job.Job) {
	sum, _ := j.Result["content_md5sum"].(string)
	if sum == "" {
		return
	}
	errs := j.Errors

	hits, err := client.Search(ctx, "File", "status!=replaced&content_md5sum="+sum)
	if err != nil {
		errs["lookup_for_content_md5sum"] = "Network error occured, while looking for " +
			"content md5sum conflict on the portal. " + err.Error()
		return
	}

	var conflicts []string
	for _, raw := range hits {
		var entry struct {
			Accession string `json:"accession"`
		}
		hasAccession := json.Unmarshal(raw, &entry) == nil && entry.Accession != ""
		itemAccession := ""
		if j.Item != nil {
			itemAccession = j.Item.Accession
		}
		switch {
		case hasAccession && itemAccession != "" && entry.Accession != itemAccession:
			conflicts = append(conflicts, fmt.Sprintf("%s in file %s ", sum, entry.Accession))
		case hasAccession && itemAccession == "":
			conflicts = append(conflicts, fmt.Sprintf("%s in file %s ", sum, entry.Accession))
		case !hasAccession && itemAccession == "":
			conflicts = append(conflicts, sum)
		}
	}

	if len(conflicts) > 0 {
		errs["content_md5sum"] = fmt.Sprintf("%v", conflicts)
		errs.AddContentError(fmt.Sprintf(
			"File content md5sum conflicts with content md5sum of existing file(s) %s",
			strings.Join(conflicts, ", ")))
	}
}

// CheckFastqSignatures searches the portal once per candidate signature
// (skipping the "mixed:" fallback signatures, which carry no unique
// identity to conflict on) and records a conflict for any hit whose
// accession differs from the file being checked. A "::" suffixed,
// barcode-less signature is only a real conflict when the two files'
// flowcell_details additionally share a lane/barcode pair -- the escape
// hatch for old-Illumina reads that can't be distinguished by read name
// alone.
func CheckFastqSignatures(ctx context.Context, client *portal.Client, j *job.Job, signatures []string) {
	errs := j.Errors
	item := j.Item
	sorted := append([]string{}, signatures...)
	sort.Strings(sorted)

	var conflicts []string
	for _, signature := range sorted {
		if strings.HasSuffix(signature, "mixed:") {
			continue
		}
		hits, err := client.Search(ctx, "File",
			"status!=replaced&file_format=fastq&fastq_signature="+signature)
		if err != nil {
			errs["lookup_for_fastq_signature"] = "Network error occured, while looking for " +
				"fastq signature conflict on the portal. " + err.Error()
			continue
		}
		for _, raw := range hits {
			var entry struct {
				Accession       string         `json:"accession"`
				FlowcellDetails []job.Flowcell `json:"flowcell_details"`
			}
			if err := json.Unmarshal(raw, &entry); err != nil {
				continue
			}
			if strings.HasSuffix(signature, "::") {
				if len(entry.FlowcellDetails) == 0 || item == nil || len(item.FlowcellDetails) == 0 {
					continue
				}
				if !compareFlowcellDetails(entry.FlowcellDetails, item.FlowcellDetails) {
					continue
				}
			}

			itemAccession := ""
			if item != nil {
				itemAccession = item.Accession
			}
			switch {
			case entry.Accession != "" && itemAccession != "" && entry.Accession != itemAccession:
				conflicts = append(conflicts, fmt.Sprintf("%s in file %s ", signature, entry.Accession))
			case entry.Accession != "" && itemAccession == "":
				conflicts = append(conflicts, fmt.Sprintf("%s in file %s ", signature, entry.Accession))
			case entry.Accession == "" && itemAccession == "":
				conflicts = append(conflicts, signature+" file on the portal.")
			}
		}
	}

	if len(conflicts) > 0 {
		msg := fmt.Sprintf(
			"Fastq file contains read name signature that conflict with signature of existing file(s): %s",
			strings.Join(conflicts, ", "))
		errs["not_unique_flowcell_details"] = msg
		errs.AddContentError(msg)
	}
}

func createBarcodeSet(details []job.Flowcell) map[[2]string]bool {
	out := map[[2]string]bool{}
	for _, d := range details {
		if d.Lane != "" && d.Barcode != "" {
			out[[2]string{d.Lane, d.Barcode}] = true
		}
	}
	return out
}

func compareFlowcellDetails(a, b []job.Flowcell) bool {
	setA := createBarcodeSet(a)
	setB := createBarcodeSet(b)
	for k := range setA {
		if setB[k] {
			return true
		}
	}
	return false
}
