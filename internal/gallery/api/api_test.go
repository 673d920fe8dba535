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

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinemirror/editormirror/internal/gallery/query"
	"github.com/offlinemirror/editormirror/internal/logging"
	"github.com/offlinemirror/editormirror/internal/model"
	"github.com/offlinemirror/editormirror/internal/store"
)

func testServer(t *testing.T, debug bool) (*Server, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st, err := store.New(t.TempDir(), logging.Nop())
	require.NoError(t, err)

	rec := model.ExtensionRecord{
		ID: "pub.ext",
		Meta: model.Extension{
			DisplayName: "Ext", Publisher: model.Publisher{Name: "pub"},
			Statistics: model.Statistics{InstallCount: 5},
		},
		Versions: []model.ExtensionVersion{{
			Version:     "1.0.0",
			LastUpdated: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Assets:      []model.Asset{{Type: model.AssetTypeVSIX, Path: model.AssetTypeVSIX}},
		}},
	}
	require.NoError(t, st.WriteJSON(store.ExtensionLatestPath(rec.ID), rec))
	require.NoError(t, st.WriteJSON(store.RecommendedIndexPath(), model.RecommendationSet{Identifiers: []string{"pub.ext"}}))

	assetHandle, err := st.OpenWrite(store.ExtensionAssetPath("pub.ext", "1.0.0", "", model.AssetTypeVSIX))
	require.NoError(t, err)
	_, err = assetHandle.Write([]byte("vsix-contents"))
	require.NoError(t, err)
	require.NoError(t, assetHandle.Commit())

	require.NoError(t, st.WriteJSON(store.BinaryLatestPath("stable", "linux-x64"), model.BinaryRelease{
		Platform: "linux-x64", Quality: model.QualityStable, CommitID: "abc123", URL: "https://example.com/download",
	}))

	snap, err := query.Build(st)
	require.NoError(t, err)
	idx := query.NewIndex()
	idx.Publish(snap)
	eng := query.NewEngine(idx)

	return New(eng, st, logging.Nop(), "http://mirror.test", debug), st
}

func TestLivenessReturns200(t *testing.T) {
	s, _ := testServer(t, false)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExtensionQueryReturnsResults(t *testing.T) {
	s, _ := testServer(t, false)
	body, err := json.Marshal(model.Query{})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/extensionquery", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var decoded struct {
		Results []model.ResultPage `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	require.Len(t, decoded.Results, 1)
	assert.Len(t, decoded.Results[0].Extensions, 1)
}

func TestExtensionQueryRejectsMalformedBody(t *testing.T) {
	s, _ := testServer(t, false)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/extensionquery", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAssetServesFileContents(t *testing.T) {
	s, _ := testServer(t, false)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/assets/pub/ext/1.0.0/"+model.AssetTypeVSIX, nil)
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "vsix-contents", w.Body.String())
}

func TestGetAssetReturns404ForUnknownExtension(t *testing.T) {
	s, _ := testServer(t, false)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/assets/pub/missing/1.0.0/"+model.AssetTypeVSIX, nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetAssetReturns404ForUnknownVersion(t *testing.T) {
	s, _ := testServer(t, false)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/assets/pub/ext/9.9.9/"+model.AssetTypeVSIX, nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExtensionQueryAssetURIRoundTripsThroughAssetRoute(t *testing.T) {
	s, _ := testServer(t, false)
	body, err := json.Marshal(model.Query{
		Filters: []model.Filter{{Criteria: []model.Criterion{{FilterType: model.FilterTypeExtensionName, Value: "pub.ext"}}}},
		Flags:   model.FlagIncludeVersions | model.FlagIncludeFiles,
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/extensionquery", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var decoded struct {
		Results []model.ResultPage `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	require.Len(t, decoded.Results, 1)
	require.Len(t, decoded.Results[0].Extensions, 1)
	require.Len(t, decoded.Results[0].Extensions[0].Versions, 1)
	require.Len(t, decoded.Results[0].Extensions[0].Versions[0].Assets, 1)

	rewritten := decoded.Results[0].Extensions[0].Versions[0].Assets[0].Path
	assetPath := strings.TrimPrefix(rewritten, "http://mirror.test")

	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequest(http.MethodGet, assetPath, nil)
	s.Router().ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "vsix-contents", w2.Body.String())
}

func TestGetAssetReturns404ForUnknownAssetType(t *testing.T) {
	s, _ := testServer(t, false)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/assets/pub/ext/1.0.0/"+model.AssetTypeLicense, nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateCheckNoContentWhenCommitMatches(t *testing.T) {
	s, _ := testServer(t, false)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/update/linux-x64/stable/abc123", nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestUpdateCheckReturnsReleaseWhenCommitDiffers(t *testing.T) {
	s, _ := testServer(t, false)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/update/linux-x64/stable/old-commit", nil)
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var rel model.BinaryRelease
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rel))
	assert.Equal(t, "abc123", rel.CommitID)
}

func TestBinaryRedirectFollowsMatchingCommit(t *testing.T) {
	s, _ := testServer(t, false)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/commit:abc123/linux-x64/stable", nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/download", w.Header().Get("Location"))
}

func TestBinaryRedirectReturns404OnCommitMismatch(t *testing.T) {
	s, _ := testServer(t, false)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/commit:wrong-commit/linux-x64/stable", nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatsAcceptsAndDiscardsBeacon(t *testing.T) {
	s, _ := testServer(t, false)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/stats", bytes.NewReader([]byte(`{}`)))
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBrowseDisabledWithoutDebug(t *testing.T) {
	s, _ := testServer(t, false)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/browse", nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBrowseListsEntriesUnderDebug(t *testing.T) {
	s, _ := testServer(t, true)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/browse?path=extensions/pub.ext/1.0.0", nil)
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var decoded struct {
		Entries []map[string]interface{} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	assert.NotEmpty(t, decoded.Entries)
}

func TestBrowseRejectsPathEscape(t *testing.T) {
	s, _ := testServer(t, true)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/browse?path=../../etc", nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
