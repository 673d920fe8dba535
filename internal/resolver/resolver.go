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

// Package resolver is the Catalog Resolver (C3): given a sync mode and the
// current store, it computes the work set the download pool must fetch,
// plus the retain and purge sets the synchronizer's retention step needs.
// The per-extension marketplace lookup it builds on is the same query
// protocol the teacher's brokers/unified/vscode/broker.go hand-rolled for a
// single extension; this generalizes it to every sync mode spec.md §4.3
// names, plus the embedded-extension-pack resolution the original
// implementation did (vscsync/classes.py: process_embedded_extensions)
// that the distilled spec dropped.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/offlinemirror/editormirror/internal/config"
	"github.com/offlinemirror/editormirror/internal/logging"
	"github.com/offlinemirror/editormirror/internal/model"
	"github.com/offlinemirror/editormirror/internal/store"
	"github.com/offlinemirror/editormirror/internal/upstream"
)

// Mode selects which extensions the resolver considers, per spec.md §4.3.
type Mode int

const (
	ModeExtensionsSpecified Mode = iota
	ModeExtensionsRecommended
	ModeExtensionsAll
)

// Resolver is the Catalog Resolver (C3).
type Resolver struct {
	cfg      config.Config
	client   *upstream.Client
	store    *store.Store
	log      logging.Logger
}

// New returns a Resolver wired to client and store.
func New(cfg config.Config, client *upstream.Client, st *store.Store, log logging.Logger) *Resolver {
	return &Resolver{cfg: cfg, client: client, store: st, log: log}
}

// ResolveBinaries produces the work set of missing or updated releases for
// every enabled (quality, platform) tuple.
func (r *Resolver) ResolveBinaries(ctx context.Context) (model.WorkPlan, error) {
	plan := model.WorkPlan{
		RetainSet: map[string]struct{}{},
		PurgeSet:  map[string]struct{}{},
		Releases:  map[string]model.BinaryRelease{},
	}

	for _, quality := range r.cfg.QualitiesEnabled {
		for _, platform := range r.cfg.PlatformsEnabled {
			manifest, err := r.client.FetchReleaseManifest(ctx, quality, platform)
			if err != nil {
				r.log.Warn("resolver: release manifest fetch failed for %s/%s: %v", quality, platform, err)
				continue
			}

			var existing model.BinaryRelease
			relpath := store.BinaryLatestPath(quality, platform)
			haveExisting := r.store.ReadJSON(relpath, &existing) == nil

			if haveExisting && existing.CommitID == manifest.CommitID {
				plan.RetainSet[existing.Identity()] = struct{}{}
				continue
			}

			asset, ok := manifest.Assets[platform]
			if !ok || asset.URL == "" {
				r.log.Warn("resolver: no asset URL for %s/%s commit %s", quality, platform, manifest.CommitID)
				continue
			}

			identity := quality + "/" + platform + "/" + manifest.CommitID
			plan.Items = append(plan.Items, model.WorkItem{
				Kind:           model.WorkKindBinary,
				Identity:       identity,
				TargetPlatform: platform,
				Quality:        model.Quality(quality),
				CommitID:       manifest.CommitID,
				Version:        manifest.Version,
				SourceURL:      asset.URL,
				DestRelPath:    store.BinaryAssetPath(quality, platform, manifest.CommitID, filenameFromURL(asset.URL)),
				DeclaredHash:   asset.Hash,
			})
			plan.RetainSet[identity] = struct{}{}
			plan.Releases[identity] = model.BinaryRelease{
				Platform: platform,
				Quality:  model.Quality(quality),
				CommitID: manifest.CommitID,
				Version:  manifest.Version,
				URL:      asset.URL,
				Hash:     asset.Hash,
				Raw:      manifest.Raw,
			}
		}
	}
	return plan, nil
}

func filenameFromURL(url string) string {
	parts := strings.Split(url, "/")
	name := parts[len(parts)-1]
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "payload"
	}
	return name
}

// ResolveExtensions produces the work set for the given mode.
func (r *Resolver) ResolveExtensions(ctx context.Context, mode Mode) (model.WorkPlan, error) {
	ids, err := r.candidateIdentifiers(ctx, mode)
	if err != nil {
		return model.WorkPlan{}, err
	}
	return r.resolveQueue(ctx, ids)
}

// ResolveExtension resolves a single identifier outside of a full pass,
// used by the single-extension diagnostic path.
func (r *Resolver) ResolveExtension(ctx context.Context, id string) (model.WorkPlan, error) {
	return r.resolveQueue(ctx, []string{id})
}

// resolveQueue runs the shared breadth-first resolution loop (malicious
// filtering, version retention, embedded-extension-pack expansion) over a
// seed list of identifiers.
func (r *Resolver) resolveQueue(ctx context.Context, ids []string) (model.WorkPlan, error) {
	plan := model.WorkPlan{
		RetainSet: map[string]struct{}{},
		PurgeSet:  map[string]struct{}{},
		Records:   map[string]model.ExtensionRecord{},
	}

	malicious, err := r.loadMalicious()
	if err != nil {
		return plan, err
	}

	seen := map[string]struct{}{}
	queue := ids
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		canonical := strings.ToLower(id)
		if _, done := seen[canonical]; done {
			continue
		}
		seen[canonical] = struct{}{}

		if malicious.Contains(canonical) {
			plan.PurgeSet[canonical] = struct{}{}
			continue
		}

		rec, err := r.fetchExtensionRecord(ctx, id)
		if err != nil {
			r.log.Warn("resolver: skipping %s: %v", id, err)
			continue
		}
		if rec.ID == "" {
			rec.ID = canonical
		}

		versions := model.SortedVersions(rec.Versions)
		n := r.cfg.RetainExtensionVersions
		if n <= 0 {
			n = 1
		}
		var keptVersions []model.ExtensionVersion
		kept := 0
		for _, v := range versions {
			if v.IsPreRelease && !r.cfg.IncludePreRelease {
				continue
			}
			if kept >= n {
				break
			}
			kept++
			keptVersions = append(keptVersions, v)
			plan.RetainSet[rec.ID+"@"+v.Identity()] = struct{}{}

			for _, asset := range v.Assets {
				dest := store.ExtensionAssetPath(rec.ID, v.Version, v.TargetPlatform, asset.Type)
				if r.store.Has(dest, asset.Size, asset.Hash) {
					continue
				}
				plan.Items = append(plan.Items, model.WorkItem{
					Kind:             model.WorkKindExtensionAsset,
					Identity:         rec.ID + "@" + v.Identity(),
					ExtensionID:      rec.ID,
					ExtensionVersion: v.Version,
					TargetPlatform:   v.TargetPlatform,
					AssetType:        asset.Type,
					SourceURL:        asset.Path,
					DestRelPath:      dest,
					DeclaredSize:     asset.Size,
					DeclaredHash:     asset.Hash,
				})
			}

			if packIDs, ok := r.extensionPackFrom(ctx, rec.ID, v); ok {
				queue = append(queue, packIDs...)
			}
		}

		if len(keptVersions) > 0 {
			plan.Records[rec.ID] = model.ExtensionRecord{
				ID:       rec.ID,
				Meta:     rec.Meta,
				Versions: keptVersions,
			}
		}
	}

	return plan, nil
}

// extensionPackFrom reads the extensionPack declaration out of a version's
// Microsoft.VisualStudio.Code.Manifest asset, fetching it from upstream if
// it isn't already cached on disk. Supplemented from vscsync/classes.py:
// process_embedded_extensions.
func (r *Resolver) extensionPackFrom(ctx context.Context, extensionID string, v model.ExtensionVersion) ([]string, bool) {
	asset, ok := v.AssetByType(model.AssetTypeManifest)
	if !ok {
		return nil, false
	}

	raw, err := r.readOrFetchManifest(ctx, extensionID, v, asset)
	if err != nil {
		r.log.Warn("resolver: manifest fetch failed for %s@%s: %v", extensionID, v.Version, err)
		return nil, false
	}

	var manifest struct {
		ExtensionPack []string `json:"extensionPack"`
	}
	if err := json.Unmarshal(raw, &manifest); err != nil || len(manifest.ExtensionPack) == 0 {
		return nil, false
	}
	return manifest.ExtensionPack, true
}

// readOrFetchManifest returns the raw manifest asset bytes, reading them
// off disk if a prior pass already downloaded the asset (the common case
// once a version is resolved once) or fetching it directly from asset.Path
// otherwise, without going through the download pool's retention/commit
// bookkeeping.
func (r *Resolver) readOrFetchManifest(ctx context.Context, extensionID string, v model.ExtensionVersion, asset model.Asset) ([]byte, error) {
	dest := store.ExtensionAssetPath(extensionID, v.Version, v.TargetPlatform, asset.Type)
	if b, err := os.ReadFile(r.store.Path(dest)); err == nil {
		return b, nil
	}

	stream, err := r.client.FetchExtensionAsset(ctx, asset.Path)
	if err != nil {
		return nil, err
	}
	defer stream.Body.Close()
	return io.ReadAll(stream.Body)
}

// candidateIdentifiers returns the extension identifiers to resolve for
// the given mode, before malicious-list filtering.
func (r *Resolver) candidateIdentifiers(ctx context.Context, mode Mode) ([]string, error) {
	switch mode {
	case ModeExtensionsSpecified:
		return r.loadSpecified()

	case ModeExtensionsRecommended:
		var ids []string
		specified, err := r.loadSpecified()
		if err != nil {
			return nil, err
		}
		ids = append(ids, specified...)

		rec, err := r.client.FetchRecommendations(ctx)
		if err != nil {
			r.log.Warn("resolver: recommendations fetch failed: %v", err)
		} else {
			ids = append(ids, rec...)
		}

		top, err := r.searchTopN(ctx, r.cfg.TotalRecommended)
		if err != nil {
			r.log.Warn("resolver: top-N search failed: %v", err)
		} else {
			ids = append(ids, top...)
		}
		return ids, nil

	case ModeExtensionsAll:
		return r.searchTopN(ctx, 0)

	default:
		return nil, fmt.Errorf("resolver: unknown mode %d", mode)
	}
}

func (r *Resolver) loadSpecified() ([]string, error) {
	var spec model.SpecifiedList
	if err := r.store.ReadJSON(store.SpecifiedInputPath(), &spec); err != nil {
		return nil, nil // absent specified.json is not fatal: treated as an empty allow list
	}
	return spec.Extensions, nil
}

func (r *Resolver) loadMalicious() (model.MaliciousList, error) {
	var file model.MaliciousFile
	if err := r.store.ReadJSON(store.MaliciousIndexPath(), &file); err != nil {
		return model.MaliciousList{}, nil
	}
	return model.NewMaliciousList(file.Malicious), nil
}

// searchTopN performs a marketplace search sorted by install count and
// returns up to n identifiers (0 means "no cap, enumerate everything" —
// used by Extensions:all).
func (r *Resolver) searchTopN(ctx context.Context, n int) ([]string, error) {
	pageSize := 100
	if n > 0 && n < pageSize {
		pageSize = n
	}
	var ids []string
	page := 1
	for {
		q := model.Query{
			Filters: []model.Filter{{
				PageNumber: page,
				PageSize:   pageSize,
				SortBy:     model.SortByInstallCount,
				SortOrder:  model.SortOrderDescending,
			}},
			Flags: model.FlagIncludeVersions | model.FlagIncludeFiles,
		}
		result, _, err := r.client.QueryMarketplace(ctx, q)
		if err != nil {
			return ids, err
		}
		if len(result.Extensions) == 0 {
			break
		}
		for _, e := range result.Extensions {
			ids = append(ids, e.ID)
			if n > 0 && len(ids) >= n {
				return ids, nil
			}
		}
		page++
	}
	return ids, nil
}

// fetchExtensionRecord resolves a single extension by identifier via an
// ExtensionName-filtered marketplace query, the exact clause shape the
// teacher's bodyFmt template used (filterType 7).
func (r *Resolver) fetchExtensionRecord(ctx context.Context, id string) (model.ExtensionRecord, error) {
	q := model.Query{
		Filters: []model.Filter{{
			Criteria:   []model.Criterion{{FilterType: model.FilterTypeExtensionName, Value: id}},
			PageNumber: 1,
			PageSize:   1,
		}},
		Flags: model.FlagIncludeVersions | model.FlagIncludeFiles | model.FlagIncludeAssetURI | model.FlagIncludeStatistics,
	}
	result, _, err := r.client.QueryMarketplace(ctx, q)
	if err != nil {
		return model.ExtensionRecord{}, err
	}
	if len(result.Extensions) == 0 {
		return model.ExtensionRecord{}, fmt.Errorf("extension %s not found upstream", id)
	}
	return result.Extensions[0], nil
}
