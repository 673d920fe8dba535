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

// Package syncpass is the Synchronizer (C5): it orchestrates
// C2 (via the resolver) -> C3 -> C4 -> C1 in the eight ordered steps
// spec.md §4.5 names, enforces retention, purges malicious identifiers,
// and rewrites the aggregate indices. The orchestration shape — build
// config, construct collaborators, run, report — is the teacher's own
// cfg.Parse -> cfg.Print -> broker.Start pattern (brokers/metadata/cmd/main.go),
// generalized from a single broker run to a repeatable, schedulable pass.
package syncpass

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/offlinemirror/editormirror/internal/config"
	"github.com/offlinemirror/editormirror/internal/download"
	"github.com/offlinemirror/editormirror/internal/logging"
	"github.com/offlinemirror/editormirror/internal/model"
	"github.com/offlinemirror/editormirror/internal/resolver"
	"github.com/offlinemirror/editormirror/internal/store"
	"github.com/offlinemirror/editormirror/internal/upstream"
)

// Options selects which parts of a pass run, mirroring cmd/syncd's flags.
type Options struct {
	CheckBinaries    bool
	ExtensionMode    resolver.Mode
	UpdateExtensions bool
	PurgeMalicious   bool
}

// Summary is the outcome of one pass.
type Summary struct {
	BinariesFetched   int
	BinariesFailed    int
	ExtensionsFetched int
	ExtensionsFailed  int
	Purged            []string
	Errors            *multierror.Error
}

// Synchronizer runs sync passes against one store, never two concurrently.
type Synchronizer struct {
	cfg      config.Config
	client   *upstream.Client
	store    *store.Store
	resolver *resolver.Resolver
	pool     *download.Pool
	log      logging.Logger

	mu      sync.Mutex
	running bool

	// OnIndexRebuilt is invoked as step 8 of every pass (also one that
	// collected errors) and at the end of RunSingleExtension, so C6 can
	// rebuild its Store Index snapshot. Optional.
	OnIndexRebuilt func()
}

// New wires a Synchronizer from its collaborators.
func New(cfg config.Config, st *store.Store, log logging.Logger) *Synchronizer {
	client := upstream.New(cfg, log)
	return &Synchronizer{
		cfg:      cfg,
		client:   client,
		store:    st,
		resolver: resolver.New(cfg, client, st, log),
		pool:     download.New(cfg, client, st, log),
		log:      log,
	}
}

// RunOnce executes a single pass. Two passes never run concurrently in the
// same process: a second call while one is in flight returns immediately
// with an error instead of blocking, so a periodic loop can coalesce
// overlapping triggers by simply skipping them.
func (s *Synchronizer) RunOnce(ctx context.Context, opts Options) (Summary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Summary{}, fmt.Errorf("syncpass: a pass is already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	summary := Summary{}

	// Steps 1-3: binaries.
	if opts.CheckBinaries {
		if err := s.runBinaries(ctx, &summary); err != nil {
			summary.Errors = multierror.Append(summary.Errors, err)
		}
	}

	// Steps 1-4: extensions.
	if opts.UpdateExtensions {
		if err := s.runExtensions(ctx, opts.ExtensionMode, &summary); err != nil {
			summary.Errors = multierror.Append(summary.Errors, err)
		}
	}

	// Step 5: retention.
	if err := s.retain(); err != nil {
		summary.Errors = multierror.Append(summary.Errors, err)
	}

	// Step 6: purge malicious — before step 7's aggregate rewrite, per
	// invariant 4 (malicious identifiers never appear in any index after a
	// completed pass).
	if opts.PurgeMalicious {
		purged, err := s.purgeMalicious()
		if err != nil {
			summary.Errors = multierror.Append(summary.Errors, err)
		}
		summary.Purged = purged
	}

	// Step 7: rewrite aggregate indices.
	if err := s.rewriteAggregateIndices(); err != nil {
		summary.Errors = multierror.Append(summary.Errors, err)
	}

	// Step 8: signal the query engine to rebuild.
	if s.OnIndexRebuilt != nil {
		s.OnIndexRebuilt()
	}

	return summary, summary.Errors.ErrorOrNil()
}

func (s *Synchronizer) runBinaries(ctx context.Context, summary *Summary) error {
	plan, err := s.resolver.ResolveBinaries(ctx)
	if err != nil {
		return err
	}
	failures, _, err := s.pool.Run(ctx, plan.Items)
	if err != nil {
		return err
	}
	failed := map[string]struct{}{}
	for _, f := range failures {
		failed[f.Item.Identity] = struct{}{}
		s.log.Warn("syncpass: binary %s failed: %v", f.Item.Identity, f.Err)
	}
	summary.BinariesFailed += len(failures)

	for identity, release := range plan.Releases {
		if _, bad := failed[identity]; bad {
			continue
		}
		if err := s.store.WriteJSON(store.BinaryLatestPath(string(release.Quality), release.Platform), release); err != nil {
			s.log.Warn("syncpass: failed to publish binary latest.json for %s: %v", identity, err)
			continue
		}
		summary.BinariesFetched++
	}
	return nil
}

func (s *Synchronizer) runExtensions(ctx context.Context, mode resolver.Mode, summary *Summary) error {
	plan, err := s.resolver.ResolveExtensions(ctx, mode)
	if err != nil {
		return err
	}
	failures, _, err := s.pool.Run(ctx, plan.Items)
	if err != nil {
		return err
	}
	failedGroups := map[string]struct{}{}
	for _, f := range failures {
		failedGroups[f.Item.VersionGroupKey()] = struct{}{}
		s.log.Warn("syncpass: extension asset %s failed: %v", f.Item.DestRelPath, f.Err)
	}
	summary.ExtensionsFailed += len(failures)

	for extID, rec := range plan.Records {
		var survivingVersions []model.ExtensionVersion
		for _, v := range rec.Versions {
			groupKey := extID + "@" + v.Identity()
			if _, bad := failedGroups[groupKey]; bad {
				continue
			}
			survivingVersions = append(survivingVersions, v)
		}
		if len(survivingVersions) == 0 {
			continue
		}
		rec.Versions = model.SortedVersions(survivingVersions)
		if err := s.store.WriteJSON(store.ExtensionLatestPath(extID), rec); err != nil {
			s.log.Warn("syncpass: failed to publish extension latest.json for %s: %v", extID, err)
			continue
		}
		summary.ExtensionsFetched++
	}
	return nil
}

// RunSingleExtension resolves and fetches one extension outside of a full
// pass, then republishes the aggregate indices so the gallery API sees it
// immediately. It does not touch retention or malicious purging.
func (s *Synchronizer) RunSingleExtension(ctx context.Context, id string) (Summary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Summary{}, fmt.Errorf("syncpass: a pass is already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	summary := Summary{}
	plan, err := s.resolver.ResolveExtension(ctx, id)
	if err != nil {
		return summary, err
	}
	failures, _, err := s.pool.Run(ctx, plan.Items)
	if err != nil {
		return summary, err
	}
	failedGroups := map[string]struct{}{}
	for _, f := range failures {
		failedGroups[f.Item.VersionGroupKey()] = struct{}{}
	}
	summary.ExtensionsFailed += len(failures)

	for extID, rec := range plan.Records {
		var survivingVersions []model.ExtensionVersion
		for _, v := range rec.Versions {
			if _, bad := failedGroups[extID+"@"+v.Identity()]; bad {
				continue
			}
			survivingVersions = append(survivingVersions, v)
		}
		if len(survivingVersions) == 0 {
			continue
		}
		rec.Versions = model.SortedVersions(survivingVersions)
		if err := s.store.WriteJSON(store.ExtensionLatestPath(extID), rec); err != nil {
			summary.Errors = multierror.Append(summary.Errors, err)
			continue
		}
		summary.ExtensionsFetched++
	}

	if err := s.rewriteAggregateIndices(); err != nil {
		summary.Errors = multierror.Append(summary.Errors, err)
	}
	if s.OnIndexRebuilt != nil {
		s.OnIndexRebuilt()
	}
	return summary, summary.Errors.ErrorOrNil()
}

// retain runs both halves of spec.md §4.5 step 5: extension version
// retention and binary build retention.
func (s *Synchronizer) retain() error {
	if err := s.retainExtensionVersions(); err != nil {
		return err
	}
	return s.retainBinaryBuilds()
}

// retainExtensionVersions removes version directories beyond the
// configured retention count for every on-disk extension record, keeping
// the newest M versions listed in the record; the pass's retain set is not
// consulted and no other version directory is kept (the resolver has already
// limited its own work and record assembly to the retained set, so this
// step only has to prune directories that predate the current pass).
func (s *Synchronizer) retainExtensionVersions() error {
	records, err := s.store.ListExtensions()
	if err != nil {
		return err
	}
	m := s.cfg.RetainExtensionVersions
	if m <= 0 {
		m = 1
	}
	for _, rec := range records {
		sorted := model.SortedVersions(rec.Versions)
		keep := map[string]struct{}{}
		for i, v := range sorted {
			if i >= m {
				break
			}
			keep[v.Version] = struct{}{}
		}
		dirs, err := s.store.ListVersionDirs(rec.ID)
		if err != nil {
			continue
		}
		for _, dir := range dirs {
			if _, ok := keep[dir]; !ok {
				s.store.Remove(fmt.Sprintf("extensions/%s/%s", rec.ID, dir))
			}
		}
	}
	return nil
}

// retainBinaryBuilds keeps the newest K build directories per enabled
// (quality, platform) pair, "newest" taken from each build directory's
// modification time since build directories carry no manifest of their
// own to compare timestamps against. The build latest.json currently
// points at is always kept, even if its directory falls outside the
// newest K by modification time.
func (s *Synchronizer) retainBinaryBuilds() error {
	k := s.cfg.RetainBinaryBuilds
	if k <= 0 {
		k = 1
	}
	for _, quality := range s.cfg.QualitiesEnabled {
		for _, platform := range s.cfg.PlatformsEnabled {
			if err := s.retainBinaryBuildsFor(quality, platform, k); err != nil {
				s.log.Warn("syncpass: binary build retention failed for %s/%s: %v", quality, platform, err)
			}
		}
	}
	return nil
}

func (s *Synchronizer) retainBinaryBuildsFor(quality, platform string, k int) error {
	dirs, err := s.store.ListBinaryBuildDirs(quality, platform)
	if err != nil {
		return err
	}
	if len(dirs) <= k {
		return nil
	}

	type build struct {
		commit  string
		modTime time.Time
	}
	builds := make([]build, 0, len(dirs))
	for _, d := range dirs {
		mt, err := s.store.BuildDirModTime(quality, platform, d)
		if err != nil {
			continue
		}
		builds = append(builds, build{commit: d, modTime: mt})
	}
	sort.Slice(builds, func(i, j int) bool { return builds[i].modTime.After(builds[j].modTime) })

	keep := map[string]struct{}{}
	var current model.BinaryRelease
	if err := s.store.ReadJSON(store.BinaryLatestPath(quality, platform), &current); err == nil {
		keep[current.CommitID] = struct{}{}
	}
	for i, b := range builds {
		if i >= k {
			break
		}
		keep[b.commit] = struct{}{}
	}

	for _, b := range builds {
		if _, ok := keep[b.commit]; ok {
			continue
		}
		s.store.Remove(filepath.Join("binaries", quality, platform, b.commit))
	}
	return nil
}

// purgeMalicious removes every on-disk extension directory whose
// identifier is malicious, returning the list of identifiers actually
// removed.
func (s *Synchronizer) purgeMalicious() ([]string, error) {
	var file model.MaliciousFile
	if err := s.store.ReadJSON(store.MaliciousIndexPath(), &file); err != nil {
		return nil, nil
	}
	malicious := model.NewMaliciousList(file.Malicious)

	dirs, err := s.store.ListExtensionDirs()
	if err != nil {
		return nil, err
	}
	var purged []string
	for _, dir := range dirs {
		if malicious.Contains(dir) {
			if err := s.store.Remove("extensions/" + dir); err != nil {
				s.log.Warn("syncpass: failed to purge %s: %v", dir, err)
				continue
			}
			purged = append(purged, dir)
		}
	}
	return purged, nil
}

// rewriteAggregateIndices rewrites extensions.json and recommended.json
// atomically from the current on-disk set of extension records.
func (s *Synchronizer) rewriteAggregateIndices() error {
	records, err := s.store.ListExtensions()
	if err != nil {
		return err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	if err := s.store.WriteJSON(store.ExtensionsIndexPath(), records); err != nil {
		return err
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return s.store.WriteJSON(store.RecommendedIndexPath(), model.RecommendationSet{Identifiers: ids})
}

// RunPeriodic loops RunOnce at interval until ctx is cancelled. A pass that
// overruns the next tick simply has that tick's trigger coalesced away —
// RunOnce's own running guard makes that safe.
func (s *Synchronizer) RunPeriodic(ctx context.Context, opts Options, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := s.RunOnce(ctx, opts)
			if err != nil {
				s.log.Warn("syncpass: pass completed with errors: %v", err)
			} else {
				s.log.Info("syncpass: pass complete: %d binaries, %d extensions fetched", summary.BinariesFetched, summary.ExtensionsFetched)
			}
		}
	}
}
