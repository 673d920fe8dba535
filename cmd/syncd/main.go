//
// Copyright (c) 2012-2018 Red Hat, Inc.
// This program and the accompanying materials are made
// available under the terms of the Eclipse Public License 2.0
// which is available at https://www.eclipse.org/legal/epl-2.0/
//
// SPDX-License-Identifier: EPL-2.0
//
// Contributors:
//   Red Hat, Inc. - initial API and implementation
//

// syncd is the synchronizer entrypoint: parse flags, build a Config, wire
// the Artifact Store and Synchronizer, and either run one pass or loop
// periodically. The parse-print-build-start shape is the teacher's own
// main.go (cfg.Parse -> cfg.Print -> broker.Start), with cfg.Parse's
// hand-rolled flag struct replaced by kong per config.SyncCLI's doc
// comment, and broker.Start replaced by one RunOnce/RunPeriodic call.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/offlinemirror/editormirror/internal/config"
	"github.com/offlinemirror/editormirror/internal/logging"
	"github.com/offlinemirror/editormirror/internal/model"
	"github.com/offlinemirror/editormirror/internal/resolver"
	"github.com/offlinemirror/editormirror/internal/store"
	"github.com/offlinemirror/editormirror/internal/syncpass"
	"github.com/offlinemirror/editormirror/internal/upstream"
)

func main() {
	var cli config.SyncCLI
	kong.Parse(&cli, kong.Name("syncd"), kong.Description("Offline marketplace and binary mirror synchronizer."))

	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cli.Verbose {
		cfg.Verbose = true
	}
	if cli.TotalRecommended > 0 {
		cfg.TotalRecommended = cli.TotalRecommended
	}
	cfg.IncludePreRelease = cfg.IncludePreRelease || cli.PreReleaseExtensions

	log := logging.New(cfg.Verbose, os.Stdout)
	cfg.Print(log.Info)

	st, err := store.New(cfg.ArtifactRoot, log)
	if err != nil {
		log.Fatal("syncd: failed to open artifact store: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cli.ExtensionSearch != "" {
		runSearch(ctx, cfg, log, cli.ExtensionSearch)
		return
	}

	sync := syncpass.New(cfg, st, log)

	if cli.ExtensionName != "" {
		summary, err := sync.RunSingleExtension(ctx, cli.ExtensionName)
		if err != nil {
			log.Fatal("syncd: failed to fetch %s: %v", cli.ExtensionName, err)
		}
		log.Info("syncd: fetched %s: %d record(s) published (%d asset(s) failed)", cli.ExtensionName, summary.ExtensionsFetched, summary.ExtensionsFailed)
		return
	}

	opts := optionsFromCLI(cli)

	if cli.Interval > 0 {
		log.Info("syncd: running periodically every %s", cli.Interval)
		sync.RunPeriodic(ctx, opts, cli.Interval)
		return
	}

	summary, err := sync.RunOnce(ctx, opts)
	log.Info("syncd: pass complete: %d binaries fetched (%d failed), %d extensions fetched (%d failed), %d purged",
		summary.BinariesFetched, summary.BinariesFailed,
		summary.ExtensionsFetched, summary.ExtensionsFailed, len(summary.Purged))
	if err != nil {
		log.Warn("syncd: pass completed with errors: %v", err)
	}
}

func optionsFromCLI(cli config.SyncCLI) syncpass.Options {
	var out syncpass.Options

	switch {
	case cli.SyncAll:
		out.CheckBinaries = !cli.SkipBinaries
		out.UpdateExtensions = true
		out.ExtensionMode = resolver.ModeExtensionsAll
	case cli.Sync:
		out.CheckBinaries = !cli.SkipBinaries
		out.UpdateExtensions = true
		out.ExtensionMode = resolver.ModeExtensionsRecommended
	default:
		out.CheckBinaries = cli.CheckBinaries && !cli.SkipBinaries
		out.UpdateExtensions = cli.UpdateExtensions
		switch {
		case cli.CheckAllExtensions:
			out.ExtensionMode = resolver.ModeExtensionsAll
		case cli.CheckSpecifiedExtensions:
			out.ExtensionMode = resolver.ModeExtensionsSpecified
		default:
			out.ExtensionMode = resolver.ModeExtensionsRecommended
		}
	}
	out.PurgeMalicious = cli.UpdateMaliciousExtensions
	return out
}

// runSearch is a diagnostic path: run one marketplace search and print the
// matching identifiers to stdout, without touching the store.
func runSearch(ctx context.Context, cfg config.Config, log logging.Logger, text string) {
	client := upstream.New(cfg, log)
	q := model.Query{
		Filters: []model.Filter{{
			Criteria:   []model.Criterion{{FilterType: model.FilterTypeSearchText, Value: text}},
			PageNumber: 1,
			PageSize:   25,
		}},
	}
	page, _, err := client.QueryMarketplace(ctx, q)
	if err != nil {
		log.Fatal("syncd: search failed: %v", err)
	}
	for _, ext := range page.Extensions {
		fmt.Println(ext.ID)
	}
}
