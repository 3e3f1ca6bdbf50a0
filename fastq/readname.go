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

package fastq

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ENCODE-DCC/checkfiles/job"
)

var (
	readNamePrefix = regexp.MustCompile(
		`^(@[a-zA-Z\d]+[a-zA-Z\d_-]*:[a-zA-Z\d-]+:[a-zA-Z\d_-]+:\d+:\d+:\d+:\d+)$`)

	readNamePattern = regexp.MustCompile(
		`^(@[a-zA-Z\d]+[a-zA-Z\d_-]*:[a-zA-Z\d-]+:[a-zA-Z\d_-]+:\d+:\d+:\d+:\d+[\s_][123]:[YXN]:[0-9]+:([ACNTG\+]*|[0-9]*))$`)

	specialReadNamePattern = regexp.MustCompile(
		`^(@[a-zA-Z\d]+[a-zA-Z\d_-]*:[a-zA-Z\d-]+:[a-zA-Z\d_-]+:\d+:\d+:\d+:\d+(/1|/2)*[\s_][123]:[YXN]:[0-9]+:([ACNTG\+]*|[0-9]*))$`)

	srrReadNamePattern = regexp.MustCompile(`^(@SRR[\d.]+)$`)

	pacbioReadNamePattern = regexp.MustCompile(
		`^(@m\d{6}_\d{6}_\d+_[a-zA-Z\d_-]+/.*)$|^(@m\d+U?_\d{6}_\d{6}/.*)$|^(@c.+)$`)

	splitColonSpaceUnderscore = regexp.MustCompile(`[:\s_]`)
	splitColonSpace           = regexp.MustCompile(`[:\s]`)
	splitWhitespace           = regexp.MustCompile(`\s`)
	splitColon                = regexp.MustCompile(`:`)
)

// readState accumulates read-name classification across an entire fastq
// stream: the set of distinct read numbers seen, the signature sets with
// and without barcode, and the running "old Illumina" prefix used to
// dedupe prefix-only signatures.
type readState struct {
	readNumbers         map[string]bool
	signatures          map[string]bool
	signaturesNoBarcode map[string]bool
	oldIlluminaPrefix   string
}

func newReadState() *readState {
	return &readState{
		readNumbers:         map[string]bool{},
		signatures:          map[string]bool{},
		signaturesNoBarcode: map[string]bool{},
		oldIlluminaPrefix:   "empty",
	}
}

func (s *readState) firstReadNumber() string {
	for k := range s.readNumbers {
		return k
	}
	return ""
}

// processReadNameLine classifies one fastq header line and updates state
// in place. srrFlag distinguishes the recursive re-entry over an SRR
// read's embedded Illumina portion; details, when non-nil, overrides all
// heuristics with the portal-declared column positions.
func processReadNameLine(line string, state *readState, errs job.Errors, srrFlag bool, details *job.ReadNameDetails) {
	readName := strings.TrimSpace(line)

	if details != nil {
		processWithDetails(readName, state, details)
		return
	}

	wordsArray := splitWhitespace.Split(readName, -1)

	if readNamePattern.MatchString(readName) {
		processIllumina(readName, state, srrFlag)
		return
	}

	if specialReadNamePattern.MatchString(readName) {
		processSpecial(readName, wordsArray, state, srrFlag)
		return
	}

	if firstToken := strings.SplitN(readName, " ", 2)[0]; srrReadNamePattern.MatchString(firstToken) {
		parts := strings.SplitN(readName, " ", 2)
		srrPortion := parts[0]
		if strings.Count(srrPortion, ".") == 2 {
			state.readNumbers[srrPortion[len(srrPortion)-1:]] = true
		} else {
			state.readNumbers["1"] = true
		}
		if len(parts) > 1 {
			illuminaPortion := parts[1]
			processReadNameLine("@"+illuminaPortion, state, errs, true, details)
		}
		return
	}

	if pacbioReadNamePattern.MatchString(readName) {
		movieIdentifier := strings.SplitN(readName, "/", 2)[0]
		if len(movieIdentifier) > 0 {
			processPacbio(readName, state)
		} else {
			errs["fastq_format_readname"] = readName
		}
		return
	}

	// unrecognized read_name_format: current convention is to include the
	// whole readname at the end of the signature.
	if len(wordsArray) == 1 {
		switch {
		case readNamePrefix.MatchString(readName):
			processNewIlluminaPrefix(readName, state, srrFlag)
		case len(readName) > 3 && strings.Count(readName, ":") > 2:
			processOldIllumina(readName, state, srrFlag)
		default:
			errs["fastq_format_readname"] = readName
		}
		return
	}
	errs["fastq_format_readname"] = readName
}

func processWithDetails(readName string, state *readState, details *job.ReadNameDetails) {
	parts := splitColonSpace.Split(readName, -1)
	get := func(i int) string {
		if i < 0 || i >= len(parts) {
			return ""
		}
		return parts[i]
	}
	flowcell := get(details.FlowcellIDLocation)
	lane := get(details.LaneIDLocation)
	readNumber := "1"
	if details.ReadNumberLocation != nil {
		readNumber = get(*details.ReadNumberLocation)
	}
	state.readNumbers[readNumber] = true
	barcode := ""
	if details.BarcodeLocation != nil {
		barcode = get(*details.BarcodeLocation)
	}
	state.signatures[flowcell+":"+lane+":"+readNumber+":"+barcode+":"] = true
	state.signaturesNoBarcode[flowcell+":"+lane+":"+readNumber+":"] = true
}

func processIllumina(readName string, state *readState, srrFlag bool) {
	parts := splitColonSpaceUnderscore.Split(readName, -1)
	flowcell := parts[2]
	lane := parts[3]
	var readNumber string
	if srrFlag {
		readNumber = state.firstReadNumber()
	} else {
		readNumber = parts[len(parts)-4]
		state.readNumbers[readNumber] = true
	}
	barcode := parts[len(parts)-1]
	state.signatures[flowcell+":"+lane+":"+readNumber+":"+barcode+":"] = true
	state.signaturesNoBarcode[flowcell+":"+lane+":"+readNumber+":"] = true
}

func processSpecial(readName string, wordsArray []string, state *readState, srrFlag bool) {
	var readNumber string
	if srrFlag {
		readNumber = state.firstReadNumber()
	} else {
		readNumber = "not initialized"
		if len(wordsArray[0]) > 3 {
			suffix := wordsArray[0][len(wordsArray[0])-2:]
			if suffix == "/1" || suffix == "/2" {
				readNumber = wordsArray[0][len(wordsArray[0])-1:]
				state.readNumbers[readNumber] = true
			}
		}
	}
	parts := splitColonSpaceUnderscore.Split(readName, -1)
	flowcell := parts[2]
	lane := parts[3]
	barcode := parts[len(parts)-1]
	state.signatures[flowcell+":"+lane+":"+readNumber+":"+barcode+":"] = true
	state.signaturesNoBarcode[flowcell+":"+lane+":"+readNumber+":"] = true
}

func processNewIlluminaPrefix(readName string, state *readState, srrFlag bool) {
	var readNumber string
	if srrFlag {
		readNumber = state.firstReadNumber()
	} else {
		readNumber = "1"
		state.readNumbers[readNumber] = true
	}
	parts := splitColon.Split(readName, -1)
	if len(parts) > 3 {
		flowcell := parts[2]
		lane := parts[3]
		prefix := flowcell + ":" + lane
		if prefix != state.oldIlluminaPrefix {
			state.oldIlluminaPrefix = prefix
			state.signatures[flowcell+":"+lane+":"+readNumber+"::"+readName] = true
		}
	}
}

func processPacbio(readName string, state *readState) {
	arr := strings.SplitN(readName, "/", 2)
	if len(arr) > 1 {
		movieIdentifier := arr[0]
		state.signatures["pacbio:0:1::"+movieIdentifier] = true
	}
}

func processOldIllumina(readName string, state *readState, srrFlag bool) {
	readNumber := "1"
	if srrFlag {
		readNumber = state.firstReadNumber()
	} else if len(readName) >= 2 {
		suffix := readName[len(readName)-2:]
		if suffix == "/1" || suffix == "/2" {
			readNumber = readName[len(readName)-1:]
			state.readNumbers[readNumber] = true
		}
	}
	arr := splitColon.Split(readName, -1)
	if len(arr) > 1 {
		prefix := arr[0] + ":" + arr[1]
		if prefix != state.oldIlluminaPrefix {
			state.oldIlluminaPrefix = prefix
			flowcell := arr[0][1:]
			if strings.Contains(flowcell, "-") || strings.Contains(flowcell, "_") {
				flowcell = "TEMP"
			}
			lane := "0"
			if _, err := strconv.Atoi(arr[1]); err == nil {
				lane = arr[1]
			}
			state.signatures[flowcell+":"+lane+":"+readNumber+"::"+readName] = true
		}
	}
}
