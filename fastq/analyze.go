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

// Package fastq streams a decompressed fastq file, classifies its read
// names into a deduplication signature, and checks the declared read
// length and read-pairing metadata against what the file actually
// contains.
package fastq

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ENCODE-DCC/checkfiles/job"
	"github.com/ENCODE-DCC/checkfiles/platform"
)

// readLengthThreshold is the fraction of reads that must fall within
// readLengthSlack base pairs of the declared read_length for the file to
// pass length validation.
const (
	readLengthThreshold = 0.9
	readLengthSlack     = 2
	barcodeBucketRatio  = 100.0
)

// Analyze streams stream line by line (already gunzip-decompressed),
// classifying the first read name and tallying the second line's length
// every four lines, then derives a deduplication signature set and
// records it on j.Result["fastq_signature"] alongside any read_length or
// read-pairing errors. platformUUID gates the checks that don't apply to
// every chemistry; details, when the portal declares explicit column
// positions for this file, overrides the read-name heuristics entirely.
func Analyze(j *job.Job, stream io.Reader, platformUUID string, details *job.ReadNameDetails) {
	errs := j.Errors
	item := j.Item

	state := newReadState()
	readLengths := map[int]int{}
	readCount := 0

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineIndex := 0
	for scanner.Scan() {
		lineIndex++
		switch lineIndex {
		case 1:
			if !platform.IsUltima(platformUUID) {
				processReadNameLine(scanner.Text(), state, errs, false, details)
			}
		case 2:
			readCount++
			readLengths[len(strings.TrimSpace(scanner.Text()))]++
		}
		lineIndex %= 4
	}
	if err := scanner.Err(); err != nil {
		errs["unzipped_fastq_streaming"] = "Error occured, while streaming unzipped fastq."
		return
	}

	j.Result["read_count"] = readCount

	if !platform.IsUltima(platformUUID) {
		if len(state.readNumbers) > 1 {
			nums := make([]string, 0, len(state.readNumbers))
			for n := range state.readNumbers {
				nums = append(nums, n)
			}
			sort.Strings(nums)
			errs["inconsistent_read_numbers"] = "fastq file contains mixed read numbers " +
				strings.Join(nums, ", ") + "."
			errs.AddContentError("Fastq file contains a mixture of read1 and read2 sequences")
		}
	}

	lengthsList := sortedLengths(readLengths)

	if !platform.IsLongReadOrUltima(platformUUID) {
		if item != nil && item.ReadLength > readLengthSlack {
			checkReadLengths(readLengths, lengthsList, item.ReadLength, readCount, errs)
		} else {
			errs["read_length"] = fmt.Sprintf(
				"no specified read length in the uploaded fastq file, while read length(s) "+
					"found in the file were %s. ", formatLengths(lengthsList))
			errs.AddContentError(fmt.Sprintf(
				"Fastq file metadata lacks read length information, but the file contains "+
					"read length(s) %s", formatLengths(lengthsList)))
		}
	}

	// Ultima fastqs carry no conventional flowcell/lane structure to key a
	// signature on: skip dedup signature derivation entirely.
	if platform.IsUltima(platformUUID) {
		return
	}

	signatures := deriveSignatures(item, state)
	sorted := make([]string, 0, len(signatures))
	for s := range signatures {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)
	j.Result["fastq_signature"] = sorted
}

func deriveSignatures(item *job.File, state *readState) map[string]bool {
	isUMI := false
	if item != nil {
		for _, fc := range item.FlowcellDetails {
			if fc.Barcode == "UMI" {
				isUMI = true
				break
			}
		}
	}

	if state.oldIlluminaPrefix == "empty" && isUMI {
		out := map[string]bool{}
		for entry := range state.signaturesNoBarcode {
			out[entry+"UMI:"] = true
		}
		return out
	}

	if state.oldIlluminaPrefix == "empty" && len(state.signatures) > 100 {
		bucketed := processBarcodes(state.signatures)
		if len(bucketed) == 0 {
			out := map[string]bool{}
			for entry := range state.signaturesNoBarcode {
				out[entry+"mixed:"] = true
			}
			return out
		}
		return bucketed
	}

	return state.signatures
}

// processBarcodes groups signatures by (flowcell, lane, read_number) and
// keeps only the barcodes whose share of that group's reads is below 1%,
// the heuristic used to flag index-hopping/contaminant barcodes rather
// than genuine multiplexed lanes. The comparison is intentionally
// inclusive (< 100, not <=): a barcode at exactly 1% share is kept.
func processBarcodes(signatures map[string]bool) map[string]bool {
	type key struct{ flowcell, lane, readNumber string }
	counts := map[key]map[string]int{}

	for entry := range signatures {
		parts := strings.Split(entry, ":")
		if len(parts) < 4 {
			continue
		}
		k := key{parts[0], parts[1], parts[2]}
		barcode := parts[3]
		if counts[k] == nil {
			counts[k] = map[string]int{}
		}
		counts[k][barcode]++
	}

	out := map[string]bool{}
	for k, barcodes := range counts {
		total := 0
		for _, c := range barcodes {
			total += c
		}
		for b, c := range barcodes {
			if float64(total)/float64(c) < barcodeBucketRatio {
				out[k.flowcell+":"+k.lane+":"+k.readNumber+":"+b+":"] = true
			}
		}
	}
	return out
}

func checkReadLengths(dict map[int]int, lengthsList []int, declared, readCount int, errs job.Errors) {
	withinTolerance := 0
	for length, count := range dict {
		if length >= declared-readLengthSlack && length <= declared+readLengthSlack {
			withinTolerance += count
		}
	}
	if readLengthThreshold*float64(readCount) > float64(withinTolerance) {
		informative := formatLengthCounts(lengthsList, dict)
		errs["read_length"] = fmt.Sprintf(
			"in file metadata the read_length is %dbp, however the uploaded fastq file "+
				"contains reads of following length(s) %s. ", declared, informative)
		errs.AddContentError(fmt.Sprintf(
			"Fastq file metadata specified read length was %dbp, but the file contains "+
				"read length(s) %s", declared, informative))
	}
}

func sortedLengths(dict map[int]int) []int {
	out := make([]int, 0, len(dict))
	for k := range dict {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func formatLengths(lengths []int) string {
	parts := make([]string, len(lengths))
	for i, l := range lengths {
		parts[i] = fmt.Sprintf("%dbp, ", l)
	}
	return strings.Join(parts, ", ")
}

func formatLengthCounts(lengths []int, dict map[int]int) string {
	parts := make([]string, len(lengths))
	for i, l := range lengths {
		parts[i] = fmt.Sprintf("(%dbp, %d)", l, dict[l])
	}
	return strings.Join(parts, ", ")
}
