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

// Package platform resolves a file's sequencing platform and answers the
// few platform-gated questions the pipeline needs: whether long-read or
// Ultima chemistry excuses a file from the fastq checks that assume short,
// paired Illumina reads, and walking derived_from to find the platform of
// a BAM's upstream fastqs.
package platform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ENCODE-DCC/checkfiles/job"
	"github.com/ENCODE-DCC/checkfiles/portal"
)

// Ultima is the one platform whose fastqs bypass read-pairing and
// signature checks entirely: its reads carry no conventional flowcell or
// lane structure to key a signature on.
const Ultima = "25acccbd-cb36-463b-ac96-adbac11227e6"

// longRead collects the long-read platforms (PacBio, Nanopore) plus
// Ultima, all of which are excused from the fixed-length read_length
// check since their read lengths vary by design.
var longRead = map[string]bool{
	"ced61406-dcc6-43c4-bddd-4c977cc676e8": true,
	"c7564b38-ab4f-4c42-a401-3de48689a998": true,
	"e2be5728-5744-4da4-8881-cb9526d0389e": true,
	"7cc06b8c-5535-4a77-b719-4c23644e767d": true,
	"8f1a9a8c-3392-4032-92a8-5d196c9d7810": true,
	"6c275b37-018d-4bf8-85f6-6e3b830524a9": true,
	"6ce511d5-eeb3-41fc-bea7-8c38301e88c1": true,
	Ultima:                                true,
}

// IsUltima reports whether uuid is the Ultima Genomics platform.
func IsUltima(uuid string) bool {
	return uuid == Ultima
}

// IsLongReadOrUltima reports whether uuid identifies a long-read platform
// (PacBio, Nanopore) or Ultima, consolidating what the original tool
// tracked as two separately maintained UUID lists into one predicate.
func IsLongReadOrUltima(uuid string) bool {
	return longRead[uuid]
}

// AnyLongReadOrUltima reports whether any of uuids is a long-read or
// Ultima platform -- a BAM derived from a mixture is treated the same as
// one derived entirely from such a platform.
func AnyLongReadOrUltima(uuids []string) bool {
	for _, u := range uuids {
		if IsLongReadOrUltima(u) {
			return true
		}
	}
	return false
}

// ResolveUUID fetches the platform UUID declared on item, following
// item.Platform as a portal @id. Uses the object frame, not the edit
// frame -- this is a read-only lookup with no ETag to capture.
func ResolveUUID(ctx context.Context, client *portal.Client, item *job.File) (string, error) {
	if item.Platform == "" {
		return "", nil
	}
	body, err := client.GetObject(ctx, item.Platform)
	if err != nil {
		return "", fmt.Errorf("resolving platform %s: %w", item.Platform, err)
	}
	var p struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return "", err
	}
	if p.UUID != "" {
		if _, err := uuid.Parse(p.UUID); err != nil {
			return "", fmt.Errorf("platform %s reported malformed uuid %q: %w", item.Platform, p.UUID, err)
		}
	}
	return p.UUID, nil
}

// PlatformsFromDerivedFrom walks the full derived_from closure of item
// breadth-first (replacing the original's recursive property_closure),
// collecting the distinct platform UUID of every upstream fastq found --
// the way a BAM inherits platform information from the reads it was mapped
// from. visited guards against revisiting a record reachable by more than
// one path; an empty result means no fastq ancestor carried a resolvable
// platform.
func PlatformsFromDerivedFrom(ctx context.Context, client *portal.Client, item *job.File) ([]string, error) {
	visited := map[string]bool{item.ID: true}
	frontier := append([]string{}, item.DerivedFrom...)
	found := map[string]bool{}

	for len(frontier) > 0 {
		var next []string
		for _, id := range frontier {
			if visited[id] {
				continue
			}
			visited[id] = true

			body, err := client.GetObject(ctx, id)
			if err != nil {
				continue
			}
			var f job.File
			if err := json.Unmarshal(body, &f); err != nil {
				continue
			}
			if f.FileFormat == "fastq" && f.Platform != "" {
				uuid, err := ResolveUUID(ctx, client, &f)
				if err == nil && uuid != "" {
					found[uuid] = true
				}
			}
			next = append(next, f.DerivedFrom...)
		}
		frontier = next
	}

	out := make([]string, 0, len(found))
	for uuid := range found {
		out = append(out, uuid)
	}
	return out, nil
}
