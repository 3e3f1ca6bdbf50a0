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

// Package metrics exposes Prometheus counters and a histogram tracking
// run progress, for deployments that scrape the optional --metrics-addr
// endpoint rather than parse the tab/JSON report.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FilesChecked counts files processed, labeled by the outcome status
	// that was (or would have been, in a dry run) PATCHed.
	FilesChecked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkfiles_files_checked_total",
		Help: "Number of files processed, by resulting status.",
	}, []string{"status"})

	// PatchFailures counts PATCH attempts that failed, by reason.
	PatchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkfiles_patch_failures_total",
		Help: "Number of PATCH attempts that failed, by reason.",
	}, []string{"reason"})

	// ProcessingSeconds tracks the per-file pipeline wall-clock time.
	ProcessingSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkfiles_processing_seconds",
		Help:    "Wall-clock time spent checking a single file.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(FilesChecked, PatchFailures, ProcessingSeconds)
}

// Serve starts the /metrics endpoint on addr. Callers run it in a
// goroutine; it blocks for the lifetime of the process.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
