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

// Package job defines the per-file unit of work that flows through the
// checkfiles pipeline, along with the error bag components use to record
// non-fatal, accumulating failures.
package job

import (
	"fmt"
	"strings"
	"time"
)

// Flowcell captures one {lane, barcode} pair declared in a file's
// flowcell_details.
type Flowcell struct {
	Lane    string `json:"lane,omitempty"`
	Barcode string `json:"barcode,omitempty"`
}

// ReadNameDetails overrides the fastq read-name heuristics with explicit
// column positions, when the portal exposes them for a file.
type ReadNameDetails struct {
	FlowcellIDLocation  int  `json:"flowcell_id_location"`
	LaneIDLocation      int  `json:"lane_id_location"`
	ReadNumberLocation  *int `json:"read_number_location,omitempty"`
	BarcodeLocation     *int `json:"barcode_location,omitempty"`
}

// File is the subset of the portal's File object the checkfiles pipeline
// reads or writes. Other fields on the remote resource are opaque to us.
type File struct {
	ID              string     `json:"@id"`
	Accession       string     `json:"accession,omitempty"`
	UUID            string     `json:"uuid,omitempty"`
	Status          string     `json:"status,omitempty"`
	Lab             string     `json:"lab,omitempty"`
	Aliases         []string   `json:"aliases,omitempty"`
	MD5Sum          string     `json:"md5sum,omitempty"`
	FileFormat      string     `json:"file_format,omitempty"`
	FileFormatType  string     `json:"file_format_type,omitempty"`
	OutputType      string     `json:"output_type,omitempty"`
	Assembly        string     `json:"assembly,omitempty"`
	GenomeAnnotation string    `json:"genome_annotation,omitempty"`
	Platform        string     `json:"platform,omitempty"`
	ReadLength      int        `json:"read_length,omitempty"`
	RunType         string     `json:"run_type,omitempty"`
	FlowcellDetails []Flowcell `json:"flowcell_details,omitempty"`
	DerivedFrom     []string   `json:"derived_from,omitempty"`
	Replicate       string     `json:"replicate,omitempty"`
	ReadCount       int        `json:"read_count,omitempty"`
	NoFileAvailable bool       `json:"no_file_available,omitempty"`
	S3URI           string     `json:"s3_uri,omitempty"`
	ReadNameDetails *ReadNameDetails `json:"read_name_details,omitempty"`
}

// Errors is the per-job accumulating error bag. Keys follow the taxonomy
// in the specification's error-handling section; a component records a
// failure by key and, if it is user-visible, also appends to the
// content-error reason via AddContentError. Recording an error never
// raises across a component boundary.
type Errors map[string]string

// AddContentError appends a human-readable reason to the accumulating
// content_error entry, comma-joining with any prior reason. This is the Go
// analogue of the original tool's update_content_error helper.
func (e Errors) AddContentError(reason string) {
	if existing, ok := e["content_error"]; ok {
		e["content_error"] = existing + ", " + reason
	} else {
		e["content_error"] = reason
	}
}

// HasContentError reports whether a content_error reason has been recorded.
func (e Errors) HasContentError() bool {
	_, ok := e["content_error"]
	return ok
}

// ContentErrorDetail returns the content_error reason truncated to 5000
// characters, matching the PATCH payload's content_error_detail limit.
func (e Errors) ContentErrorDetail() string {
	detail := strings.TrimSpace(e["content_error"])
	if len(detail) > 5000 {
		detail = detail[:5000]
	}
	return detail
}

// String renders the error bag the way the Python tool's dict repr did,
// for the tab report column.
func (e Errors) String() string {
	if len(e) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(e))
	for k, v := range e {
		parts = append(parts, fmt.Sprintf("%q: %q", k, v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Job is the in-memory unit of work for a single file being checked.
type Job struct {
	ID               string                 `json:"@id"`
	ETag             string                 `json:"-"`
	Item             *File                  `json:"item,omitempty"`
	Errors           Errors                 `json:"errors"`
	Result           map[string]interface{} `json:"result,omitempty"`
	Run              time.Time              `json:"run"`
	Skip             bool                   `json:"skip,omitempty"`
	DownloadURL      string                 `json:"download_url,omitempty"`
	LocalFile        string                 `json:"local_file,omitempty"`
	UploadExpiration string                 `json:"upload_expiration,omitempty"`
	Patched          bool                   `json:"patched,omitempty"`
}

// New creates a Job with its error bag and result map initialized.
func New(id string) *Job {
	return &Job{
		ID:     id,
		Errors: Errors{},
		Result: map[string]interface{}{},
		Run:    time.Now().UTC(),
	}
}
