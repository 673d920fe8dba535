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

// galleryd is the Gallery API entrypoint: build a Config, open the
// Artifact Store (galleryd only reads from it), build the first Store Index snapshot, and
// serve the gin router spec.md §4.7 names. It follows the same
// parse-print-build-start shape as cmd/syncd, trimmed to the read path.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/offlinemirror/editormirror/internal/config"
	"github.com/offlinemirror/editormirror/internal/gallery/api"
	"github.com/offlinemirror/editormirror/internal/gallery/query"
	"github.com/offlinemirror/editormirror/internal/logging"
	"github.com/offlinemirror/editormirror/internal/store"
)

func main() {
	configFile := flag.String("config", "", "Path to an optional mirror.yaml config file.")
	baseURL := flag.String("asset-base-url", "", "Externally visible origin used for asset URL rewriting, e.g. http://mirror.example.internal.")
	debug := flag.Bool("debug", false, "Enable the /browse diagnostic endpoint.")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logging.New(false, os.Stderr).Fatal("galleryd: %v", err)
	}

	log := logging.New(cfg.Verbose, os.Stdout)
	cfg.Print(log.Info)

	st, err := store.New(cfg.ArtifactRoot, log)
	if err != nil {
		log.Fatal("galleryd: failed to open artifact store: %v", err)
	}

	idx := query.NewIndex()
	if err := rebuildIndex(idx, st, log); err != nil {
		log.Warn("galleryd: initial index build failed: %v", err)
	}

	// galleryd and syncd run as separate processes sharing one store: since
	// there is no in-process OnIndexRebuilt signal from a writer in another
	// process, galleryd periodically rebuilds its own snapshot from disk
	// instead.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := rebuildIndex(idx, st, log); err != nil {
				log.Warn("galleryd: periodic index rebuild failed: %v", err)
			}
		}
	}()

	eng := query.NewEngine(idx)
	origin := *baseURL
	if origin == "" {
		origin = "http://" + cfg.BindAddress
	}
	server := api.New(eng, st, log, origin, *debug)

	log.Info("galleryd: listening on %s", cfg.BindAddress)
	if err := server.Router().Run(cfg.BindAddress); err != nil {
		log.Fatal("galleryd: server exited: %v", err)
	}
}

func rebuildIndex(idx *query.Index, st *store.Store, log logging.Logger) error {
	snap, err := query.Build(st)
	if err != nil {
		return err
	}
	idx.Publish(snap)
	log.Info("galleryd: index rebuilt at %s", snap.BuiltAt)
	return nil
}
