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

// Package report renders the run's output as tab-delimited or JSON-lines
// text, writing the full run to one stream and just the error subset to
// another, with an optional Slack upload of both at the end.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ENCODE-DCC/checkfiles/job"
)

// Sink writes each job's record to out, and additionally to errOut when the
// job carries any error.
type Sink struct {
	Out     io.Writer
	ErrOut  io.Writer
	JSONOut bool

	jsonRecords strings.Builder
	jsonErrors  strings.Builder
	tabRecords  strings.Builder
	tabErrors   strings.Builder
}

// Header writes the tab-report column header, a no-op in JSON mode.
func (s *Sink) Header() {
	if s.JSONOut {
		return
	}
	header := strings.Join([]string{
		"Accession", "Lab", "Errors", "Aliases", "Download URL", "Upload Expiration",
	}, "\t")
	fmt.Fprintln(s.Out, header)
}

// Write emits one job's record in the configured format, mirroring it to
// the error stream when the job's error bag is non-empty.
func (s *Sink) Write(j *job.Job) {
	hasErrors := len(j.Errors) > 0

	if s.JSONOut {
		line, err := json.Marshal(j)
		if err != nil {
			line = []byte(fmt.Sprintf(`{"@id":%q,"report_marshal_error":%q}`, j.ID, err.Error()))
		}
		fmt.Fprintln(s.Out, string(line))
		s.jsonRecords.Write(line)
		s.jsonRecords.WriteByte('\n')
		if hasErrors {
			fmt.Fprintln(s.ErrOut, string(line))
			s.jsonErrors.Write(line)
			s.jsonErrors.WriteByte('\n')
		}
		return
	}

	line := s.tabLine(j)
	fmt.Fprintln(s.Out, line)
	s.tabRecords.WriteString(line)
	s.tabRecords.WriteByte('\n')
	if hasErrors {
		fmt.Fprintln(s.ErrOut, line)
		s.tabErrors.WriteString(line)
		s.tabErrors.WriteByte('\n')
	}
}

func (s *Sink) tabLine(j *job.Job) string {
	accession, lab, aliases := "UNKNOWN", "UNKNOWN", "n/a"
	if j.Item != nil {
		if j.Item.Accession != "" {
			accession = j.Item.Accession
		}
		if j.Item.Lab != "" {
			lab = j.Item.Lab
		}
		if len(j.Item.Aliases) > 0 {
			aliases = strings.Join(j.Item.Aliases, ", ")
		}
	}
	return strings.Join([]string{
		accession, lab, j.Errors.String(), aliases, j.DownloadURL, j.UploadExpiration,
	}, "\t")
}

// RecordedOutput returns everything written to Out so far, for a
// post-run Slack upload.
func (s *Sink) RecordedOutput() string {
	if s.JSONOut {
		return s.jsonRecords.String()
	}
	return s.tabRecords.String()
}

// RecordedErrors returns everything written to ErrOut so far.
func (s *Sink) RecordedErrors() string {
	if s.JSONOut {
		return s.jsonErrors.String()
	}
	return s.tabErrors.String()
}
