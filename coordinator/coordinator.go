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

// Package coordinator runs the per-file check pipeline across a worker
// pool and serially applies the resulting PATCH decisions, grounded on
// the teacher's goroutine/channel worker pool shape.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ENCODE-DCC/checkfiles/bam"
	"github.com/ENCODE-DCC/checkfiles/conflict"
	"github.com/ENCODE-DCC/checkfiles/crispr"
	"github.com/ENCODE-DCC/checkfiles/fastq"
	"github.com/ENCODE-DCC/checkfiles/job"
	"github.com/ENCODE-DCC/checkfiles/metrics"
	"github.com/ENCODE-DCC/checkfiles/platform"
	"github.com/ENCODE-DCC/checkfiles/portal"
	"github.com/ENCODE-DCC/checkfiles/runner"
	"github.com/ENCODE-DCC/checkfiles/validate"
)

// Config gathers the pipeline's external dependencies and knobs.
type Config struct {
	Mirror      string
	EncValData  string
	CrisprPaths crispr.Paths
	Processes   int
	Timeout     time.Duration
	// DryRun, when true, computes each job's PATCH decision but never
	// sends it to the portal.
	DryRun bool
}

// Run processes every job in jobs with a pool of cfg.Processes workers (or
// inline when cfg.Processes is 0, matching the original tool's single-
// process mode), then applies each job's PATCH decision serially as
// results complete. It returns the processed jobs in completion order.
// Workers are tracked with an errgroup.Group rather than a bare
// sync.WaitGroup purely for the cancelable child context it hands each
// worker; no worker actually returns a non-nil error today.
func Run(ctx context.Context, client *portal.Client, r runner.Runner, cfg Config, jobs []*job.Job) []*job.Job {
	if cfg.Processes <= 0 {
		out := make([]*job.Job, 0, len(jobs))
		for _, j := range jobs {
			processOne(ctx, client, r, cfg, j)
			patch(ctx, client, j, cfg.DryRun)
			out = append(out, j)
		}
		return out
	}

	pending := make(chan *job.Job)
	done := make(chan *job.Job, len(jobs))

	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Processes; i++ {
		eg.Go(func() error {
			for j := range pending {
				processOne(egCtx, client, r, cfg, j)
				done <- j
			}
			return nil
		})
	}

	go func() {
		for _, j := range jobs {
			pending <- j
		}
		close(pending)
	}()

	go func() {
		_ = eg.Wait()
		close(done)
	}()

	out := make([]*job.Job, 0, len(jobs))
	for j := range done {
		patch(ctx, client, j, cfg.DryRun)
		out = append(out, j)
	}
	return out
}

func prometheusTimer() func() {
	start := time.Now()
	return func() {
		metrics.ProcessingSeconds.Observe(time.Since(start).Seconds())
	}
}

func runCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// processOne runs the full per-file check pipeline, mutating j in place.
func processOne(ctx context.Context, client *portal.Client, r runner.Runner, cfg Config, j *job.Job) {
	timer := prometheusTimer()
	defer timer()

	ctx, cancel := runCtx(ctx, cfg.Timeout)
	defer cancel()

	if j.Skip {
		return
	}
	item := j.Item
	errs := j.Errors

	localPath := j.LocalFile
	if localPath == "" {
		if item != nil && item.NoFileAvailable {
			return
		}
		localPath = filepath.Join(cfg.Mirror, strings.TrimPrefix(j.DownloadURL, "s3://"))
	}

	isLocalBedPresent := false
	var unzippedModifiedBedPath string
	if item != nil && item.FileFormat == "bed" && len(localPath) >= 18 {
		unzippedModifiedBedPath = localPath[len(localPath)-18:len(localPath)-7] + "_modified.bed"
	}

	info, err := os.Stat(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			if j.Run.After(parseRFC3339(j.UploadExpiration)) {
				errs["file_not_found"] = "File has not been uploaded yet."
			} else {
				errs["file_not_found_unexpired_credentials"] = "File has not been uploaded yet, but the " +
					"credentials are not expired, so the status was not changed."
			}
		} else {
			errs["file_check_skipped_due_to_s3_connectivity"] = "File check was skipped due to temporary " +
				"S3 connectivity issues"
		}
		j.Skip = true
		return
	}

	j.Result["file_size"] = info.Size()
	j.Result["last_modified"] = info.ModTime().UTC().Format("2006-01-02T15:04:05Z")

	checkMD5Sum(ctx, r, j, localPath)

	gzipped, err := isPathGzipped(localPath)
	if err != nil {
		return
	}

	expectGzip := item != nil && validate.GZIPTypes[item.FileFormat]
	switch {
	case !expectGzip && gzipped:
		errs["gzip"] = "Expected un-gzipped file"
		errs.AddContentError("Expected un-gzipped file")
	case expectGzip && !gzipped:
		errs["gzip"] = "Expected gzipped file"
		errs.AddContentError("Expected gzipped file")
	case expectGzip && gzipped:
		checkContentMD5Sum(ctx, client, r, j, localPath)

		if item.FileFormat == "bed" {
			isLocalBedPresent = stripBedComments(ctx, r, j, localPath, unzippedModifiedBedPath)
		}
	}

	validationPath := localPath
	if isLocalBedPresent {
		validationPath = unzippedModifiedBedPath
	}
	validate.Check(ctx, r, cfg.EncValData, j, validationPath)
	if isLocalBedPresent {
		_ = os.Remove(unzippedModifiedBedPath)
	}

	if item == nil {
		return
	}

	if item.FileFormat == "fastq" && errs["validateFiles"] == "" {
		runFastqAnalysis(ctx, client, r, j, localPath)
	}

	if item.FileFormat == "tsv" && item.OutputType == "guide quantifications" &&
		item.FileFormatType == "guide quantifications" && item.Assembly == "GRCh38" {
		crispr.Validate(ctx, r, cfg.CrisprPaths, j, localPath)
	}

	if item.FileFormat == "bam" && errs["validateFiles"] == "" && !strings.Contains(item.OutputType, "subreads") {
		ancestorPlatforms, err := platform.PlatformsFromDerivedFrom(ctx, client, item)
		if err != nil {
			errs["lookup_for_derived_from"] = err.Error()
		} else {
			bam.Check(ctx, r, j, localPath, ancestorPlatforms)
		}
	}

	if item.Status != "uploading" {
		errs["status_check"] = fmt.Sprintf("status %q is not 'uploading'", item.Status)
	}

	if len(errs) > 0 {
		errs["gathered information"] = fmt.Sprintf("Gathered information about the file was: %s.", j.Result)
	}
}

func checkMD5Sum(ctx context.Context, r runner.Runner, j *job.Job, localPath string) {
	res, err := r.Run(ctx, "md5sum", localPath)
	if err != nil || res.ExitCode != 0 {
		j.Errors["md5sum"] = strings.TrimRight(res.Output, "\n")
		return
	}
	fields := strings.Fields(res.Output)
	if len(fields) == 0 {
		j.Errors["md5sum"] = strings.TrimRight(res.Output, "\n")
		return
	}
	sum := fields[0]
	j.Result["md5sum"] = sum
	if !isHex(sum) {
		j.Errors["md5sum"] = strings.TrimRight(res.Output, "\n")
	}
	if j.Item != nil && sum != j.Item.MD5Sum {
		j.Errors["md5sum"] = fmt.Sprintf("checked %s does not match item %s", sum, j.Item.MD5Sum)
		j.Errors.AddContentError(fmt.Sprintf(
			"File metadata-specified md5sum %s does not match the calculated md5sum %s", j.Item.MD5Sum, sum))
	}
}

func checkContentMD5Sum(ctx context.Context, client *portal.Client, r runner.Runner, j *job.Job, localPath string) {
	res, err := r.RunShell(ctx, "gunzip --stdout "+shellQuote(localPath)+" | md5sum")
	if err != nil || res.ExitCode != 0 {
		j.Errors["content_md5sum"] = strings.TrimRight(res.Output, "\n")
		return
	}
	fields := strings.Fields(res.Output)
	if len(fields) == 0 {
		j.Errors["content_md5sum"] = strings.TrimRight(res.Output, "\n")
		return
	}
	sum := fields[0]
	if !isHex(sum) {
		j.Errors["content_md5sum"] = strings.TrimRight(res.Output, "\n")
		j.Errors.AddContentError("File content md5sum format error")
		return
	}
	j.Result["content_md5sum"] = sum
	conflict.CheckContentMD5Sum(ctx, client, j)
}

// stripBedComments removes '^#' comment lines from the decompressed bed
// file into a scratch path for validateFiles to read, reporting whether
// the scratch file was successfully created.
func stripBedComments(ctx context.Context, r runner.Runner, j *job.Job, localPath, modifiedPath string) bool {
	countRes, err := r.RunShell(ctx, "gunzip --stdout "+shellQuote(localPath)+" | grep -c '^#'")
	if err != nil {
		return false
	}
	if countRes.ExitCode > 1 {
		j.Errors["grep_bed_problem"] = strings.TrimRight(countRes.Output, "\n")
		return false
	}

	stripRes, err := r.RunShell(ctx, "gunzip --stdout "+shellQuote(localPath)+
		" | grep -v '^#' > "+shellQuote(modifiedPath))
	if err != nil {
		return false
	}
	if stripRes.ExitCode > 1 {
		j.Errors["grep_bed_problem"] = strings.TrimRight(stripRes.Output, "\n")
		return false
	}
	if stripRes.ExitCode == 1 {
		j.Errors["bed_comments_remove_failure"] = strings.TrimRight(stripRes.Output, "\n")
		return false
	}
	return true
}

func runFastqAnalysis(ctx context.Context, client *portal.Client, r runner.Runner, j *job.Job, localPath string) {
	res, err := r.RunShell(ctx, "gunzip --stdout "+shellQuote(localPath))
	if err != nil {
		j.Errors["fastq_information_extraction"] = "Failed to extract information from " + localPath
		return
	}

	platformUUID, details, err := fetchReadNameContext(ctx, client, j.ID)
	if err != nil {
		j.Errors["lookup_for_platform"] = err.Error()
	}

	fastq.Analyze(j, strings.NewReader(res.Output), platformUUID, details)

	if sigs, ok := j.Result["fastq_signature"].([]string); ok && len(sigs) > 0 {
		conflict.CheckFastqSignatures(ctx, client, j, sigs)
	}
}

func fetchReadNameContext(ctx context.Context, client *portal.Client, id string) (string, *job.ReadNameDetails, error) {
	body, err := client.GetObject(ctx, id)
	if err != nil {
		return "", nil, err
	}
	var obj struct {
		Platform        string               `json:"platform"`
		ReadNameDetails *job.ReadNameDetails `json:"read_name_details"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", nil, err
	}
	platformUUID := ""
	if obj.Platform != "" {
		platformBody, err := client.GetObject(ctx, obj.Platform)
		if err == nil {
			var p struct {
				UUID string `json:"uuid"`
			}
			if json.Unmarshal(platformBody, &p) == nil {
				platformUUID = p.UUID
			}
		}
	}
	return platformUUID, obj.ReadNameDetails, nil
}

// patch sends the job's PATCH decision to the portal, recording any
// failure back onto the job's error bag rather than raising. When dryRun
// is set the decision is computed but never sent, matching the original
// tool's --dry-run behavior. j.Skip only suppresses the "in progress"
// default -- it never suppresses the PATCH itself, since a skipped job
// (most commonly one whose upload never arrived) is exactly the job a
// submitter needs the "upload failed"/"content error" status on.
func patch(ctx context.Context, client *portal.Client, j *job.Job, dryRun bool) {
	errs := j.Errors
	data := map[string]interface{}{}

	switch {
	case len(errs) == 0 && !j.Skip:
		data["status"] = "in progress"
	default:
		if readname, ok := errs["fastq_format_readname"]; ok {
			errs.AddContentError(fmt.Sprintf(
				"Fastq file contains read names that don't follow the Illumina standard "+
					"naming schema; for example %s", readname))
		}
		if errs.HasContentError() {
			data["status"] = "content error"
			data["content_error_detail"] = errs.ContentErrorDetail()
		}
		if _, ok := errs["file_not_found"]; ok {
			data["status"] = "upload failed"
		}
	}

	if v, ok := j.Result["file_size"]; ok {
		data["file_size"] = v
	}
	if v, ok := j.Result["read_count"]; ok {
		data["read_count"] = v
	}
	if v, ok := j.Result["fastq_signature"]; ok {
		data["fastq_signature"] = v
	}
	if v, ok := j.Result["content_md5sum"]; ok {
		data["content_md5sum"] = v
	}
	if v, ok := j.Result["mapped_run_type"]; ok {
		data["mapped_run_type"] = v
	}
	if v, ok := j.Result["mapped_read_length"]; ok {
		data["mapped_read_length"] = v
	}

	if len(data) == 0 {
		return
	}

	status, _ := data["status"].(string)
	if status == "" {
		status = "no_status_change"
	}

	if dryRun {
		metrics.FilesChecked.WithLabelValues(status).Inc()
		return
	}

	if err := client.Patch(ctx, j.ID, j.ETag, data); err != nil {
		errs["patch_file_request"] = err.Error()
		logrus.WithError(err).WithField("job", j.ID).Warn("patch failed")
		metrics.PatchFailures.WithLabelValues(status).Inc()
		return
	}
	j.Patched = true
	metrics.FilesChecked.WithLabelValues(status).Inc()
}

func isPathGzipped(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	magic := make([]byte, 2)
	n, err := f.Read(magic)
	if err != nil && n == 0 {
		return false, err
	}
	return n == 2 && magic[0] == 0x1f && magic[1] == 0x8b, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func parseRFC3339(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05Z", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// shellQuote single-quotes path for safe interpolation into a shell
// pipeline, the Go analogue of the original tool's shlex.quote.
func shellQuote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}
