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

// Command checkfiles validates uploaded genomic files against their
// declared portal metadata, flags duplicates, and patches each file's
// status back to the portal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ENCODE-DCC/checkfiles/coordinator"
	"github.com/ENCODE-DCC/checkfiles/crispr"
	"github.com/ENCODE-DCC/checkfiles/jobsource"
	"github.com/ENCODE-DCC/checkfiles/metrics"
	"github.com/ENCODE-DCC/checkfiles/portal"
	"github.com/ENCODE-DCC/checkfiles/report"
	"github.com/ENCODE-DCC/checkfiles/runner"
)

const version = "1.25"

var (
	mirror                 = flag.String("mirror", "/s3", "local mirror root for uploaded files")
	encValData             = flag.String("encValData", "/opt/encValData", "encValData location")
	username               = flag.String("username", "", "HTTP username (access_key_id)")
	password               = flag.String("password", "", "HTTP password (secret_access_key)")
	botToken               = flag.String("bot-token", "", "Slack bot token")
	outPath                = flag.String("out", "", "file to write results to (default stdout)")
	errPath                = flag.String("err", "", "file to write results with errors to (default stderr)")
	processes              = flag.Int("processes", -1, "defaults to cpu count, use 0 for debugging in a single process")
	includeUnexpiredUpload = flag.Bool("include-unexpired-upload", false, "include files whose upload credentials have not yet expired (may be replaced!)")
	dryRun                 = flag.Bool("dry-run", false, "don't update status, just check")
	jsonOut                = flag.Bool("json-out", false, "output results as JSON (legacy)")
	searchQuery            = flag.String("search-query", "status=uploading", "override the file search query, e.g. 'accession=ENCFF000ABC'")
	fileList               = flag.String("file-list", "", "list of file accessions to check")
	localFile              = flag.String("local-file", "", "path to local file to check")
	metricsAddr            = flag.String("metrics-addr", "", "optional address to serve /metrics on, e.g. :9090")
	timeout                = flag.Duration("timeout", 0, "optional per-job deadline; 0 means unbounded")
	configFile             = flag.String("config", "", "optional YAML file overriding the above defaults")
)

// fileConfig mirrors the flags that make sense to set once per deployment
// rather than per invocation.
type fileConfig struct {
	Mirror     string `yaml:"mirror"`
	EncValData string `yaml:"encValData"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	BotToken   string `yaml:"botToken"`
}

func loadConfig(path string) (*fileConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		logrus.Fatal("usage: checkfiles [flags] <server-url>")
	}
	url := flag.Arg(0)

	fileCfg, err := loadConfig(*configFile)
	if err != nil {
		logrus.WithError(err).Fatal("loading --config file")
	}
	applyFileConfig(fileCfg)

	out := openOrDefault(*outPath, os.Stdout)
	errOut := openOrDefault(*errPath, os.Stderr)
	defer out.Close()
	defer errOut.Close()

	var notifier *report.SlackNotifier
	if *botToken != "" {
		notifier = report.NewSlackNotifier(*botToken, "#bot-reporting")
	}

	nprocesses := *processes
	if nprocesses < 0 {
		nprocesses = runtime.NumCPU()
	}

	dryRunSuffix := ""
	if *dryRun {
		dryRunSuffix = "-- Dry Run"
	}
	hostname, _ := os.Hostname()
	startMsg := fmt.Sprintf("STARTING Checkfiles version %s (%s) (%s): with %d processes %s on %s at %s",
		version, url, *searchQuery, nprocesses, dryRunSuffix, hostname, time.Now().Format(time.RFC3339))
	logrus.Info(startMsg)
	if notifier != nil {
		if err := notifier.PostMessage(startMsg); err != nil {
			logrus.WithError(err).Warn("failed to post start message to Slack")
		}
	}

	if *metricsAddr != "" {
		go func() {
			if err := metrics.Serve(*metricsAddr); err != nil {
				logrus.WithError(err).Warn("metrics server exited")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Warn("received shutdown signal, finishing in-flight jobs")
		cancel()
	}()

	client := portal.NewClient(url, *username, *password)

	jobs, err := jobsource.Fetch(ctx, client, jobsource.Config{
		SearchQuery:            *searchQuery,
		FileListPath:           *fileList,
		LocalFilePath:          *localFile,
		IncludeUnexpiredUpload: *includeUnexpiredUpload,
	})
	if err != nil {
		logrus.WithError(err).Fatal("fetching file list")
	}

	sink := &report.Sink{Out: out, ErrOut: errOut, JSONOut: *jsonOut}
	sink.Header()

	cfg := coordinator.Config{
		Mirror:      *mirror,
		EncValData:  *encValData,
		CrisprPaths: crispr.DefaultPaths(),
		Processes:   nprocesses,
		Timeout:     *timeout,
		DryRun:      *dryRun,
	}

	results := coordinator.Run(ctx, client, runner.ExecRunner{}, cfg, jobs)
	for _, j := range results {
		sink.Write(j)
	}

	finishMsg := fmt.Sprintf("FINISHED Checkfiles at %s", time.Now().Format(time.RFC3339))
	logrus.Info(finishMsg)
	if notifier != nil {
		if err := notifier.UploadFile(*outPath, sink.RecordedOutput()); err != nil {
			logrus.WithError(err).Warn("failed to upload output report to Slack")
		}
		if err := notifier.UploadFile(*errPath, sink.RecordedErrors()); err != nil {
			logrus.WithError(err).Warn("failed to upload error report to Slack")
		}
		if err := notifier.PostMessage(finishMsg); err != nil {
			logrus.WithError(err).Warn("failed to post finish message to Slack")
		}
	}
}

func applyFileConfig(cfg *fileConfig) {
	if cfg == nil {
		return
	}
	if *mirror == "/s3" && cfg.Mirror != "" {
		*mirror = cfg.Mirror
	}
	if *encValData == "/opt/encValData" && cfg.EncValData != "" {
		*encValData = cfg.EncValData
	}
	if *username == "" {
		*username = cfg.Username
	}
	if *password == "" {
		*password = cfg.Password
	}
	if *botToken == "" {
		*botToken = cfg.BotToken
	}
}

func openOrDefault(path string, fallback *os.File) *os.File {
	if path == "" {
		return fallback
	}
	f, err := os.Create(path)
	if err != nil {
		logrus.WithError(err).Fatalf("opening %s", path)
	}
	return f
}
