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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinemirror/editormirror/internal/model"
	"github.com/offlinemirror/editormirror/internal/store"
)

func buildTestIndex(t *testing.T) *Index {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(dir, nil)
	require.NoError(t, err)

	records := []model.ExtensionRecord{
		{
			ID: "pub.alpha",
			Meta: model.Extension{
				DisplayName: "Alpha",
				Publisher:   model.Publisher{Name: "pub"},
				Categories:  []string{"Linters"},
				Tags:        []string{"go", "lint"},
				Statistics:  model.Statistics{InstallCount: 10},
			},
			Versions: []model.ExtensionVersion{
				{Version: "1.0.0", LastUpdated: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Assets: []model.Asset{{Type: model.AssetTypeVSIX, Path: "a.vsix"}}},
			},
		},
		{
			ID: "pub.beta",
			Meta: model.Extension{
				DisplayName: "Beta",
				Publisher:   model.Publisher{Name: "pub"},
				Categories:  []string{"Themes"},
				Tags:        []string{"dark-theme"},
				Flags:       []string{"featured"},
				Statistics:  model.Statistics{InstallCount: 100},
			},
			Versions: []model.ExtensionVersion{
				{Version: "2.0.0", LastUpdated: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), Assets: []model.Asset{{Type: model.AssetTypeVSIX, Path: "b.vsix"}}},
			},
		},
	}
	for _, r := range records {
		require.NoError(t, st.WriteJSON(store.ExtensionLatestPath(r.ID), r))
	}
	require.NoError(t, st.WriteJSON(store.RecommendedIndexPath(), model.RecommendationSet{Identifiers: []string{"pub.alpha", "pub.beta"}}))

	snap, err := Build(st)
	require.NoError(t, err)
	idx := NewIndex()
	idx.Publish(snap)
	return idx
}

func TestSearchByTag(t *testing.T) {
	eng := NewEngine(buildTestIndex(t))
	page, err := eng.Search(model.Query{Filters: []model.Filter{{
		Criteria: []model.Criterion{{FilterType: model.FilterTypeTag, Value: "go"}},
	}}}, "http://mirror/assets")
	require.NoError(t, err)
	require.Len(t, page.Extensions, 1)
	assert.Equal(t, "pub.alpha", page.Extensions[0].ID)
}

func TestSearchByCategory(t *testing.T) {
	eng := NewEngine(buildTestIndex(t))
	page, err := eng.Search(model.Query{Filters: []model.Filter{{
		Criteria: []model.Criterion{{FilterType: model.FilterTypeCategory, Value: "themes"}},
	}}}, "http://mirror/assets")
	require.NoError(t, err)
	require.Len(t, page.Extensions, 1)
	assert.Equal(t, "pub.beta", page.Extensions[0].ID)
}

func TestSearchFeatured(t *testing.T) {
	eng := NewEngine(buildTestIndex(t))
	page, err := eng.Search(model.Query{Filters: []model.Filter{{
		Criteria: []model.Criterion{{FilterType: model.FilterTypeFeatured}},
	}}}, "http://mirror/assets")
	require.NoError(t, err)
	require.Len(t, page.Extensions, 1)
	assert.Equal(t, "pub.beta", page.Extensions[0].ID)
}

func TestSearchNoCriteriaFallsBackToRecommended(t *testing.T) {
	eng := NewEngine(buildTestIndex(t))
	page, err := eng.Search(model.Query{Filters: []model.Filter{{}}}, "http://mirror/assets")
	require.NoError(t, err)
	assert.Len(t, page.Extensions, 2)
}

func TestSearchExcludeWithFlags(t *testing.T) {
	eng := NewEngine(buildTestIndex(t))
	page, err := eng.Search(model.Query{Filters: []model.Filter{{
		Criteria: []model.Criterion{
			{FilterType: model.FilterTypeSearchText, Value: "pub"},
			{FilterType: model.FilterTypeExcludeWithFlags, Value: "featured"},
		},
	}}}, "http://mirror/assets")
	require.NoError(t, err)
	require.Len(t, page.Extensions, 1)
	assert.Equal(t, "pub.alpha", page.Extensions[0].ID)
}

func TestSearchSortByLastUpdated(t *testing.T) {
	eng := NewEngine(buildTestIndex(t))
	page, err := eng.Search(model.Query{Filters: []model.Filter{{
		Criteria: []model.Criterion{{FilterType: model.FilterTypeSearchText, Value: "pub"}},
		SortBy:   model.SortByLastUpdated,
	}}}, "http://mirror/assets")
	require.NoError(t, err)
	require.Len(t, page.Extensions, 2)
	assert.Equal(t, "pub.beta", page.Extensions[0].ID) // updated 2024-06 vs. 2024-01
}

func TestSearchDefaultSortIsInstallCountDescending(t *testing.T) {
	eng := NewEngine(buildTestIndex(t))
	page, err := eng.Search(model.Query{Filters: []model.Filter{{
		Criteria: []model.Criterion{{FilterType: model.FilterTypeSearchText, Value: "pub"}},
	}}}, "http://mirror/assets")
	require.NoError(t, err)
	require.Len(t, page.Extensions, 2)
	assert.Equal(t, "pub.beta", page.Extensions[0].ID) // installCount 100 vs 10
}

func TestSearchRewritesAssetURIs(t *testing.T) {
	eng := NewEngine(buildTestIndex(t))
	page, err := eng.Search(model.Query{Filters: []model.Filter{{
		Criteria: []model.Criterion{{FilterType: model.FilterTypeExtensionName, Value: "pub.alpha"}},
	}}, Flags: model.FlagIncludeVersions | model.FlagIncludeFiles}, "http://mirror/assets")
	require.NoError(t, err)
	require.Len(t, page.Extensions, 1)
	require.Len(t, page.Extensions[0].Versions, 1)
	require.Len(t, page.Extensions[0].Versions[0].Assets, 1)
	assert.Equal(t, "http://mirror/assets/pub/alpha/1.0.0/"+model.AssetTypeVSIX, page.Extensions[0].Versions[0].Assets[0].Path)
}

func TestSearchExactNameMatchForAbsentExtensionReturnsEmpty(t *testing.T) {
	eng := NewEngine(buildTestIndex(t))
	page, err := eng.Search(model.Query{Filters: []model.Filter{{
		Criteria: []model.Criterion{{FilterType: model.FilterTypeExtensionName, Value: "pub.missing"}},
	}}}, "http://mirror/assets")
	require.NoError(t, err)
	assert.Empty(t, page.Extensions)
}

func TestSearchFlagsGateSubObjects(t *testing.T) {
	eng := NewEngine(buildTestIndex(t))
	page, err := eng.Search(model.Query{Filters: []model.Filter{{
		Criteria: []model.Criterion{{FilterType: model.FilterTypeExtensionName, Value: "pub.alpha"}},
	}}}, "http://mirror/assets") // no flags: files/categories excluded, versions cut to the first
	require.NoError(t, err)
	require.Len(t, page.Extensions, 1)
	assert.Empty(t, page.Extensions[0].Meta.Categories)
	if len(page.Extensions[0].Versions) > 0 {
		assert.Empty(t, page.Extensions[0].Versions[0].Assets)
	}
}

func TestGetExtensionLookup(t *testing.T) {
	eng := NewEngine(buildTestIndex(t))
	rec, ok := eng.GetExtension("PUB.ALPHA")
	assert.True(t, ok)
	assert.Equal(t, "pub.alpha", rec.ID)

	_, ok = eng.GetExtension("pub.missing")
	assert.False(t, ok)
}

func TestUpdateCheck(t *testing.T) {
	dir := t.TempDir()
	st, err := store.New(dir, nil)
	require.NoError(t, err)
	require.NoError(t, st.WriteJSON(store.BinaryLatestPath("stable", "linux-x64"), model.BinaryRelease{
		Platform: "linux-x64", Quality: model.QualityStable, CommitID: "abc123",
	}))
	snap, err := Build(st)
	require.NoError(t, err)
	idx := NewIndex()
	idx.Publish(snap)
	eng := NewEngine(idx)

	_, hasUpdate, err := eng.UpdateCheck("linux-x64", "stable", "abc123")
	require.NoError(t, err)
	assert.False(t, hasUpdate)

	rel, hasUpdate, err := eng.UpdateCheck("linux-x64", "stable", "old-commit")
	require.NoError(t, err)
	assert.True(t, hasUpdate)
	assert.Equal(t, "abc123", rel.CommitID)

	_, _, err = eng.UpdateCheck("linux-x64", "insider", "whatever")
	assert.Error(t, err)
}

func TestEngineWithNoPublishedSnapshotReturnsEmptyPage(t *testing.T) {
	eng := NewEngine(NewIndex())
	page, err := eng.Search(model.Query{}, "http://mirror/assets")
	require.NoError(t, err)
	assert.Empty(t, page.Extensions)
}
