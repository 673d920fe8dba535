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

package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/offlinemirror/editormirror/internal/errs"
	"github.com/offlinemirror/editormirror/internal/model"
)

// Engine answers queries against the currently published Snapshot.
type Engine struct {
	index *Index
}

// NewEngine returns an Engine reading from idx.
func NewEngine(idx *Index) *Engine { return &Engine{index: idx} }

// GetExtension looks up one extension by identifier.
func (e *Engine) GetExtension(identifier string) (model.ExtensionRecord, bool) {
	snap := e.index.Current()
	if snap == nil {
		return model.ExtensionRecord{}, false
	}
	rec, ok := snap.byID[strings.ToLower(identifier)]
	return rec, ok
}

// Search executes one marketplace-style query against the current
// snapshot, applying every clause of q's primary filter, sorting, and
// paginating the result, then rewriting asset URIs per spec.md §4.6.
func (e *Engine) Search(q model.Query, assetBaseURL string) (model.ResultPage, error) {
	snap := e.index.Current()
	if snap == nil {
		return model.ResultPage{Extensions: nil, ResultMetadata: resultMetadata(0)}, nil
	}

	f := q.PrimaryFilter()
	matches := e.applyCriteria(snap, f.Criteria)

	sortRecords(matches, f.SortBy, f.SortOrder)

	total := len(matches)
	start := (f.PageNumber - 1) * f.PageSize
	if start < 0 {
		start = 0
	}
	end := start + f.PageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	page := matches[start:end]

	out := make([]model.ExtensionRecord, len(page))
	for i, rec := range page {
		out[i] = applyFlags(rewriteAssetURIs(rec, assetBaseURL), q.Flags)
	}

	return model.ResultPage{
		Extensions:     out,
		ResultMetadata: resultMetadata(total),
	}, nil
}

func resultMetadata(total int) []model.ResultMetadata {
	return []model.ResultMetadata{{
		Name: "ResultCount",
		Items: []model.ResultMetadataItem{{
			Name:  "TotalCount",
			Count: int64(total),
		}},
	}}
}

// applyCriteria implements the filter-type dispatch table of spec.md §4.6.
// Tag, Category, and Featured — which the original only logged and skipped
// (vscgallery/gallery.py:217-220) — are implemented here against the
// snapshot's tag/category indices. The matches of all criteria are
// unioned. When no criteria produce any matches, the query carries at most
// two criteria, and none of them is an exact ExtensionName/ExtensionId
// lookup, falls back to the recommended set, matching the original's same
// fallback.
func (e *Engine) applyCriteria(snap *Snapshot, criteria []model.Criterion) []model.ExtensionRecord {
	seen := map[string]struct{}{}
	var result []model.ExtensionRecord
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		if rec, ok := snap.byID[id]; ok {
			seen[id] = struct{}{}
			result = append(result, rec)
		}
	}

	for _, c := range criteria {
		val := strings.ToLower(c.Value)
		switch c.FilterType {
		case model.FilterTypeExtensionID:
			for id, rec := range snap.byID {
				if strings.ToLower(rec.Meta.ID) == val {
					add(id)
				}
			}
		case model.FilterTypeExtensionName:
			add(val)
		case model.FilterTypeSearchText:
			for id, rec := range snap.byID {
				if matchesSearchText(rec, val) {
					add(id)
				}
			}
		case model.FilterTypeTag:
			for _, id := range snap.byTag[val] {
				add(id)
			}
		case model.FilterTypeCategory:
			for _, id := range snap.byCategory[val] {
				add(id)
			}
		case model.FilterTypeFeatured:
			for id, rec := range snap.byID {
				if hasFlag(rec.Meta.Flags, "featured") {
					add(id)
				}
			}
		case model.FilterTypeExcludeWithFlags:
			// Applied as a post-filter below, since it removes rather than
			// adds; handled after the loop.
		case model.FilterTypeTarget:
			// Restricting to a client product id has no effect in a
			// single-product mirror; every record matches.
		default:
			// unknown/out-of-range filter types are ignored, not rejected.
		}
	}

	if len(result) == 0 && len(criteria) <= 2 && !hasExactMatchCriterion(criteria) {
		for id := range snap.recommended {
			add(id)
		}
	}

	for _, c := range criteria {
		if c.FilterType != model.FilterTypeExcludeWithFlags {
			continue
		}
		result = excludeWithFlags(result, c.Value)
	}

	return result
}

// hasExactMatchCriterion reports whether criteria names a specific
// extension by identifier — in which case an absent extension must answer
// empty rather than silently substituting the recommended set.
func hasExactMatchCriterion(criteria []model.Criterion) bool {
	for _, c := range criteria {
		if c.FilterType == model.FilterTypeExtensionName || c.FilterType == model.FilterTypeExtensionID {
			return true
		}
	}
	return false
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}

func excludeWithFlags(records []model.ExtensionRecord, flagsValue string) []model.ExtensionRecord {
	excluded := strings.Split(strings.ToLower(flagsValue), ",")
	out := make([]model.ExtensionRecord, 0, len(records))
	for _, rec := range records {
		keep := true
		for _, f := range rec.Meta.Flags {
			for _, ex := range excluded {
				if ex != "" && strings.EqualFold(f, ex) {
					keep = false
				}
			}
		}
		if keep {
			out = append(out, rec)
		}
	}
	return out
}

func matchesSearchText(rec model.ExtensionRecord, val string) bool {
	if strings.Contains(strings.ToLower(rec.ID), val) {
		return true
	}
	if strings.Contains(strings.ToLower(rec.Meta.DisplayName), val) {
		return true
	}
	if strings.Contains(strings.ToLower(rec.Meta.ShortDescription), val) {
		return true
	}
	for _, tag := range rec.Meta.Tags {
		if strings.Contains(strings.ToLower(tag), val) {
			return true
		}
	}
	if strings.Contains(strings.ToLower(rec.Meta.Publisher.Name), val) {
		return true
	}
	return false
}

// sortRecords sorts matches in place. With no explicit sortBy, falls back
// to installCount descending, matching spec.md §4.6's default.
func sortRecords(matches []model.ExtensionRecord, sortBy model.SortBy, sortOrder model.SortOrder) {
	asc := sortOrder == model.SortOrderAscending

	switch sortBy {
	case model.SortByPublisherName:
		sort.Slice(matches, func(i, j int) bool {
			return lessStr(matches[i].Meta.Publisher.Name, matches[j].Meta.Publisher.Name, asc)
		})
	case model.SortByAverageRating:
		sort.Slice(matches, func(i, j int) bool {
			return lessF(matches[i].Meta.Statistics.AverageRating, matches[j].Meta.Statistics.AverageRating, asc)
		})
	case model.SortByWeightedRating:
		sort.Slice(matches, func(i, j int) bool {
			return lessF(matches[i].Meta.Statistics.WeightedRating, matches[j].Meta.Statistics.WeightedRating, asc)
		})
	case model.SortByLastUpdated:
		sort.Slice(matches, func(i, j int) bool {
			ti, tj := latestUpdated(matches[i]), latestUpdated(matches[j])
			return boolLess(ti.Before(tj), asc)
		})
	default:
		sort.Slice(matches, func(i, j int) bool {
			return lessI64(matches[i].Meta.Statistics.InstallCount, matches[j].Meta.Statistics.InstallCount, false)
		})
	}
}

func latestUpdated(rec model.ExtensionRecord) time.Time {
	var latest time.Time
	for _, v := range rec.Versions {
		if v.LastUpdated.After(latest) {
			latest = v.LastUpdated
		}
	}
	return latest
}

func lessStr(a, b string, asc bool) bool {
	if asc {
		return a < b
	}
	return a > b
}
func lessF(a, b float64, asc bool) bool {
	if asc {
		return a < b
	}
	return a > b
}
func lessI64(a, b int64, asc bool) bool {
	if asc {
		return a < b
	}
	return a > b
}
func boolLess(before bool, asc bool) bool {
	if asc {
		return before
	}
	return !before
}

// rewriteAssetURIs rewrites every asset path in rec to
// "<assetBaseURL>/<publisher>/<name>/<version>/<assetType>", matching the
// /assets/:publisher/:name/:version/:assetType route exactly, so every
// rewritten URI a client follows resolves to a served file.
func rewriteAssetURIs(rec model.ExtensionRecord, assetBaseURL string) model.ExtensionRecord {
	publisher, name := splitExtensionID(rec.ID)
	out := rec
	out.Versions = make([]model.ExtensionVersion, len(rec.Versions))
	for i, v := range rec.Versions {
		nv := v
		nv.Assets = make([]model.Asset, len(v.Assets))
		for j, a := range v.Assets {
			na := a
			na.Path = fmt.Sprintf("%s/%s/%s/%s/%s", assetBaseURL, publisher, name, v.Version, a.Type)
			nv.Assets[j] = na
		}
		out.Versions[i] = nv
	}
	return out
}

// splitExtensionID splits a "publisher.name" identifier into its two
// parts, the inverse of api.getAsset's extID := publisher + "." + name.
func splitExtensionID(id string) (publisher, name string) {
	if i := strings.IndexByte(id, '.'); i >= 0 {
		return id[:i], id[i+1:]
	}
	return id, ""
}

// applyFlags zeroes out the sub-objects the query didn't ask for, matching
// spec.md §4.6's flag-gated response shape.
func applyFlags(rec model.ExtensionRecord, flags model.QueryFlags) model.ExtensionRecord {
	if !flags.Has(model.FlagIncludeVersions) {
		if len(rec.Versions) > 0 {
			rec.Versions = rec.Versions[:1]
		}
	} else if flags.Has(model.FlagIncludeLatestVersionOnly) && len(rec.Versions) > 1 {
		rec.Versions = rec.Versions[:1]
	}
	if !flags.Has(model.FlagIncludeFiles) {
		for i := range rec.Versions {
			rec.Versions[i].Assets = nil
		}
	}
	if !flags.Has(model.FlagIncludeCategoryAndTags) {
		rec.Meta.Categories = nil
		rec.Meta.Tags = nil
	}
	if !flags.Has(model.FlagIncludeStatistics) {
		rec.Meta.Statistics = model.Statistics{}
	}
	return rec
}

// UpdateCheck implements spec.md §4.6's update-check operation: given
// (commit, platform, quality), returns the matching release if its commit
// differs from what's stored, else reports no update.
func (e *Engine) UpdateCheck(platform, quality, commit string) (model.BinaryRelease, bool, error) {
	snap := e.index.Current()
	if snap == nil {
		return model.BinaryRelease{}, false, errs.New(errs.NotFound, "query.UpdateCheck", fmt.Errorf("index not yet built"))
	}
	rel, ok := snap.binaries[quality+"/"+platform]
	if !ok {
		return model.BinaryRelease{}, false, errs.New(errs.NotFound, "query.UpdateCheck", fmt.Errorf("no release for %s/%s", quality, platform))
	}
	if rel.CommitID == commit {
		return model.BinaryRelease{}, false, nil
	}
	return rel, true, nil
}
