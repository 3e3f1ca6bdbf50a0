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

// Package jobsource resolves the set of file records to check -- from a
// search query, an accession list file, or a single local file -- and
// produces job descriptors ready for the coordinator's worker pool.
package jobsource

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/ENCODE-DCC/checkfiles/job"
	"github.com/ENCODE-DCC/checkfiles/portal"
)

// Config gathers the knobs that select and gate which files become jobs.
type Config struct {
	SearchQuery            string
	FileListPath           string
	LocalFilePath          string
	IncludeUnexpiredUpload bool
}

// ExtractAccession parses "<accession>.<ext>" out of a local file path, the
// way the original tool derives an accession from a filename.
func ExtractAccession(path string) string {
	base := filepath.Base(path)
	return strings.SplitN(base, ".", 2)[0]
}

// Fetch resolves the job set for the given Config. A failure reading the
// initial search result set is returned as an error rather than silently
// yielding zero jobs (spec.md Open Question 3, resolved to fail loudly).
func Fetch(ctx context.Context, client *portal.Client, cfg Config) ([]*job.Job, error) {
	var entries []json.RawMessage
	var err error

	switch {
	case cfg.FileListPath != "":
		entries, err = fetchByAccessionList(ctx, client, cfg.FileListPath)
	case cfg.LocalFilePath != "":
		entries, err = client.Search(ctx, "File", "accession="+ExtractAccession(cfg.LocalFilePath))
	default:
		entries, err = client.Search(ctx, "File", cfg.SearchQuery)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching file list: %w", err)
	}

	jobs := make([]*job.Job, 0, len(entries))
	for _, raw := range entries {
		var stub struct {
			ID string `json:"@id"`
		}
		if err := json.Unmarshal(raw, &stub); err != nil {
			logrus.WithError(err).Warn("skipping unparseable search result")
			continue
		}
		j := resolveJob(ctx, client, stub.ID, cfg)
		if cfg.LocalFilePath != "" {
			j.LocalFile = cfg.LocalFilePath
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// fetchByAccessionList resolves one search per line of path. A line whose
// search fails doesn't abort the rest of the list -- its error is collected
// into a multierror.Error and logged, and the remaining accessions are
// still looked up, the way a batch job should make partial progress rather
// than let one bad accession sink the whole run.
func fetchByAccessionList(ctx context.Context, client *portal.Client, path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []json.RawMessage
	var lookupErrs *multierror.Error
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		accession := strings.TrimSpace(scanner.Text())
		if accession == "" {
			continue
		}
		hits, err := client.Search(ctx, "File", "accession="+accession)
		if err != nil {
			logrus.WithError(err).WithField("accession", accession).Warn("accession lookup failed")
			lookupErrs = multierror.Append(lookupErrs, fmt.Errorf("accession %s: %w", accession, err))
			continue
		}
		all = append(all, hits...)
	}
	if err := scanner.Err(); err != nil {
		lookupErrs = multierror.Append(lookupErrs, err)
	}
	if lookupErrs != nil && len(all) == 0 {
		return nil, lookupErrs.ErrorOrNil()
	}
	return all, nil
}

// resolveJob builds a single Job: captures upload credentials and the
// edit-view ETag, and marks the job skip when credentials are unexpired
// (and inclusion wasn't requested) or any lookup failed.
func resolveJob(ctx context.Context, client *portal.Client, id string, cfg Config) *job.Job {
	j := job.New(id)

	creds, err := client.GetUploadCredentials(ctx, id)
	if err != nil {
		j.Errors["get_upload_url_request"] = err.Error()
	} else {
		j.UploadExpiration = creds.Expiration
	}

	objectBody, err := client.GetObject(ctx, id)
	if err != nil {
		j.Errors["file_HTTPError"] = "HTTP error: unable to get file object"
	} else {
		var obj struct {
			S3URI string `json:"s3_uri"`
		}
		_ = json.Unmarshal(objectBody, &obj)
		if obj.S3URI != "" {
			j.DownloadURL = obj.S3URI
		} else if creds != nil && creds.UploadURL != "" {
			j.DownloadURL = creds.UploadURL
		} else {
			j.Errors["download_url_missing"] = "download url is missing"
		}
	}

	if j.UploadExpiration != "" && j.Run.Format("2006-01-02T15:04:05Z") < j.UploadExpiration {
		if !cfg.IncludeUnexpiredUpload {
			j.Errors["unexpired_credentials"] = "File status have not been changed, the file " +
				"check was skipped due to file's unexpired upload credentials"
		}
	}

	editBody, etag, err := client.GetEdit(ctx, id)
	if err != nil {
		j.Errors["get_edit_request"] = err.Error()
	} else {
		var f job.File
		if err := json.Unmarshal(editBody, &f); err != nil {
			j.Errors["get_edit_request"] = err.Error()
		} else {
			j.Item = &f
			j.ETag = etag
		}
	}

	if len(j.Errors) > 0 {
		j.Skip = true
	}
	return j
}
