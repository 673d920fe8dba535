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

package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinemirror/editormirror/internal/errs"
	"github.com/offlinemirror/editormirror/internal/logging"
	"github.com/offlinemirror/editormirror/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir, logging.Nop())
	require.NoError(t, err)
	return s
}

func TestOpenWriteCommitIsAtomicAndVisibleOnlyAfterCommit(t *testing.T) {
	s := newTestStore(t)

	h, err := s.OpenWrite("extensions/pub.ext/latest.json")
	require.NoError(t, err)

	_, err = h.Write([]byte(`{"extensionId":"pub.ext"}`))
	require.NoError(t, err)

	assert.False(t, s.Exists("extensions/pub.ext/latest.json"), "final path must not exist before Commit")

	require.NoError(t, h.Commit())
	assert.True(t, s.Exists("extensions/pub.ext/latest.json"))

	entries, err := os.ReadDir(filepath.Join(s.Root(), "extensions", "pub.ext"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "no leftover temp file: %s", e.Name())
	}
}

func TestOpenWriteAbortLeavesNoFinalOrTempFile(t *testing.T) {
	s := newTestStore(t)

	h, err := s.OpenWrite("binaries/stable/linux-x64/latest.json")
	require.NoError(t, err)
	_, err = h.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, h.Abort())

	assert.False(t, s.Exists("binaries/stable/linux-x64/latest.json"))
	entries, err := os.ReadDir(filepath.Join(s.Root(), "binaries", "stable", "linux-x64"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCommitTwiceIsRejected(t *testing.T) {
	s := newTestStore(t)
	h, err := s.OpenWrite("x.json")
	require.NoError(t, err)
	require.NoError(t, h.Commit())
	assert.Error(t, h.Commit())
}

func TestWriteJSONThenReadJSONRoundTrips(t *testing.T) {
	s := newTestStore(t)
	rec := model.ExtensionRecord{ID: "pub.ext", Versions: []model.ExtensionVersion{{Version: "1.0.0"}}}

	require.NoError(t, s.WriteJSON(ExtensionLatestPath("pub.ext"), rec))

	var got model.ExtensionRecord
	require.NoError(t, s.ReadJSON(ExtensionLatestPath("pub.ext"), &got))
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Versions[0].Version, got.Versions[0].Version)
}

func TestReadJSONMissingFileIsNotFoundKind(t *testing.T) {
	s := newTestStore(t)
	var got model.ExtensionRecord
	err := s.ReadJSON(ExtensionLatestPath("missing.ext"), &got)
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
}

func TestHasVerifiesSizeAndHash(t *testing.T) {
	s := newTestStore(t)
	h, err := s.OpenWrite("payload.bin")
	require.NoError(t, err)
	n, hash, err := HashReader(h, strings.NewReader("hello world"))
	require.NoError(t, err)
	require.NoError(t, h.Commit())

	assert.True(t, s.Has("payload.bin", 0, ""))
	assert.True(t, s.Has("payload.bin", n, hash))
	assert.False(t, s.Has("payload.bin", n+1, ""))
	assert.False(t, s.Has("payload.bin", 0, "wronghash"))
	assert.False(t, s.Has("missing.bin", 0, ""))
}

func TestListExtensionsSkipsUnreadableEntries(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteJSON(ExtensionLatestPath("good.ext"), model.ExtensionRecord{ID: "good.ext"}))

	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "extensions", "bad.ext"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "extensions", "bad.ext", "latest.json"), []byte("not json"), 0o644))

	recs, err := s.ListExtensions()
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, "good.ext", recs[0].ID)
}

func TestListBinariesPerQuality(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteJSON(BinaryLatestPath("stable", "linux-x64"), model.BinaryRelease{Platform: "linux-x64", Quality: model.QualityStable}))
	require.NoError(t, s.WriteJSON(BinaryLatestPath("stable", "darwin"), model.BinaryRelease{Platform: "darwin", Quality: model.QualityStable}))
	require.NoError(t, s.WriteJSON(BinaryLatestPath("insider", "linux-x64"), model.BinaryRelease{Platform: "linux-x64", Quality: model.QualityInsider}))

	stable, err := s.ListBinaries("stable")
	require.NoError(t, err)
	assert.Len(t, stable, 2)

	insider, err := s.ListBinaries("insider")
	require.NoError(t, err)
	assert.Len(t, insider, 1)

	none, err := s.ListBinaries("exploration")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListVersionDirsReturnsOnlyDirectories(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteJSON(ExtensionLatestPath("pub.ext"), model.ExtensionRecord{ID: "pub.ext"}))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "extensions", "pub.ext", "1.0.0"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "extensions", "pub.ext", "2.0.0"), 0o755))

	dirs, err := s.ListVersionDirs("pub.ext")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1.0.0", "2.0.0"}, dirs)
}

func TestRemoveDeletesRecursively(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteJSON(ExtensionLatestPath("pub.ext"), model.ExtensionRecord{ID: "pub.ext"}))
	require.NoError(t, s.Remove("extensions/pub.ext"))
	assert.False(t, s.Exists("extensions/pub.ext"))
}
