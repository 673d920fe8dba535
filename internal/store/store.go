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

// Package store implements the on-disk artifact layout and the atomic
// write/commit primitives every other component builds on. It is the only
// package that ever mutates the artifact directory; everyone else observes
// it. The stream-to-disk idiom (create, copy, Sync, close) is
// carried over from the teacher's utils/files ioutil helpers; the atomic
// temp-file+rename commit discipline is new.
package store

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/offlinemirror/editormirror/internal/errs"
	"github.com/offlinemirror/editormirror/internal/logging"
	"github.com/offlinemirror/editormirror/internal/model"
)

// Store is the Artifact Store (C1): a root directory plus the primitives
// spec.md §4.1 names.
type Store struct {
	root string
	log  logging.Logger
}

// New returns a Store rooted at root. root is created if absent.
func New(root string, log logging.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errs.New(errs.StoreIO, "store.New", err)
	}
	return &Store{root: filepath.Clean(root), log: log}, nil
}

// Root returns the artifact root directory.
func (s *Store) Root() string { return s.root }

// Path joins relpath onto the artifact root.
func (s *Store) Path(relpath string) string {
	return filepath.Join(s.root, relpath)
}

// WriteHandle wraps a sibling temp file; Commit renames it atomically into
// place, Abort discards it. No partial file is ever visible at the final
// name.
type WriteHandle struct {
	tmp   *os.File
	final string
	done  bool
}

// OpenWrite creates relpath's parent directory and opens a sibling
// temporary file to stream into.
func (s *Store) OpenWrite(relpath string) (*WriteHandle, error) {
	final := s.Path(relpath)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return nil, errs.New(errs.StoreIO, "store.OpenWrite", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(final), "."+filepath.Base(final)+".tmp-*")
	if err != nil {
		return nil, errs.New(errs.StoreIO, "store.OpenWrite", err)
	}
	return &WriteHandle{tmp: tmp, final: final}, nil
}

// Write implements io.Writer, streaming into the temp file.
func (h *WriteHandle) Write(p []byte) (int, error) { return h.tmp.Write(p) }

// Commit flushes, closes, and atomically renames the temp file over the
// final path. Safe to call exactly once.
func (h *WriteHandle) Commit() error {
	if h.done {
		return fmt.Errorf("store: write handle for %s already closed", h.final)
	}
	h.done = true
	if err := h.tmp.Sync(); err != nil {
		closeLogErr(h.tmp)
		os.Remove(h.tmp.Name())
		return errs.New(errs.StoreIO, "store.Commit", err)
	}
	if err := h.tmp.Close(); err != nil {
		os.Remove(h.tmp.Name())
		return errs.New(errs.StoreIO, "store.Commit", err)
	}
	if err := os.Rename(h.tmp.Name(), h.final); err != nil {
		os.Remove(h.tmp.Name())
		return errs.New(errs.StoreIO, "store.Commit", err)
	}
	return nil
}

// Abort discards the temp file without touching the final path.
func (h *WriteHandle) Abort() error {
	if h.done {
		return nil
	}
	h.done = true
	closeLogErr(h.tmp)
	return os.Remove(h.tmp.Name())
}

// closeLogErr closes c and discards any close error; nothing is logged.
func closeLogErr(c io.Closer) {
	if err := c.Close(); err != nil {
		_ = err // best-effort; caller already proceeding to remove/rename
	}
}

// Has reports whether relpath exists and, if expectedSize/expectedHash are
// non-zero, matches them. A mismatch is treated as absent so the caller
// re-downloads.
func (s *Store) Has(relpath string, expectedSize int64, expectedHash string) bool {
	fi, err := os.Stat(s.Path(relpath))
	if err != nil {
		return false
	}
	if fi.IsDir() {
		return false
	}
	if expectedSize > 0 && fi.Size() != expectedSize {
		return false
	}
	if expectedHash != "" {
		sum, err := hashFile(s.Path(relpath))
		if err != nil || sum != expectedHash {
			return false
		}
	}
	return true
}

// WriteJSON atomically commits v as indented JSON at relpath.
func (s *Store) WriteJSON(relpath string, v interface{}) error {
	h, err := s.OpenWrite(relpath)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(h)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		h.Abort()
		return errs.New(errs.StoreIO, "store.WriteJSON", err)
	}
	return h.Commit()
}

// ReadJSON decodes the JSON at relpath into v. Returns a NotFound errs.Kind
// if the file is absent.
func (s *Store) ReadJSON(relpath string, v interface{}) error {
	f, err := os.Open(s.Path(relpath))
	if err != nil {
		if os.IsNotExist(err) {
			return errs.New(errs.NotFound, "store.ReadJSON", err)
		}
		return errs.New(errs.StoreIO, "store.ReadJSON", err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return errs.New(errs.UpstreamMalformed, "store.ReadJSON", err)
	}
	return nil
}

// Remove best-effort recursively deletes relpath.
func (s *Store) Remove(relpath string) error {
	if err := os.RemoveAll(s.Path(relpath)); err != nil {
		return errs.New(errs.StoreIO, "store.Remove", err)
	}
	return nil
}

// Exists reports whether relpath exists at all (file or directory).
func (s *Store) Exists(relpath string) bool {
	_, err := os.Stat(s.Path(relpath))
	return err == nil
}

// ListExtensionDirs returns the publisher.name directory names directly
// under /extensions, skipping entries that have no latest.json —
// the streaming-scan tolerance for concurrent writers spec.md §4.1 requires.
func (s *Store) ListExtensionDirs() ([]string, error) {
	base := s.Path("extensions")
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.New(errs.StoreIO, "store.ListExtensionDirs", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(base, e.Name(), "latest.json")); err != nil {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}

// ListExtensions streams every Extension Record whose latest.json is
// currently readable, skipping (not failing on) entries that disappear or
// are mid-write at the instant of scan.
func (s *Store) ListExtensions() ([]model.ExtensionRecord, error) {
	dirs, err := s.ListExtensionDirs()
	if err != nil {
		return nil, err
	}
	var out []model.ExtensionRecord
	for _, d := range dirs {
		var rec model.ExtensionRecord
		if err := s.ReadJSON(filepath.Join("extensions", d, "latest.json"), &rec); err != nil {
			if s.log != nil {
				s.log.Warn("store: skipping unreadable extension record %s: %v", d, err)
			}
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ListBinaries streams every Binary Release whose latest.json is currently
// readable, across every platform directory under the given quality.
func (s *Store) ListBinaries(quality string) ([]model.BinaryRelease, error) {
	base := s.Path(filepath.Join("binaries", quality))
	platforms, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.New(errs.StoreIO, "store.ListBinaries", err)
	}
	var out []model.BinaryRelease
	for _, p := range platforms {
		if !p.IsDir() {
			continue
		}
		var rel model.BinaryRelease
		relpath := filepath.Join("binaries", quality, p.Name(), "latest.json")
		if err := s.ReadJSON(relpath, &rel); err != nil {
			if s.log != nil {
				s.log.Warn("store: skipping unreadable binary record %s/%s: %v", quality, p.Name(), err)
			}
			continue
		}
		out = append(out, rel)
	}
	return out, nil
}

// ListVersionDirs returns the version-directory names directly under an
// extension's directory (skipping latest.json and any non-directory entry),
// used by retention to decide which version directories to prune.
func (s *Store) ListVersionDirs(extensionID string) ([]string, error) {
	base := s.Path(filepath.Join("extensions", extensionID))
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.New(errs.StoreIO, "store.ListVersionDirs", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// ListBinaryBuildDirs returns the commit-directory names directly under
// binaries/<quality>/<platform>, used by retention to decide which build
// directories to prune.
func (s *Store) ListBinaryBuildDirs(quality, platform string) ([]string, error) {
	base := s.Path(filepath.Join("binaries", quality, platform))
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.New(errs.StoreIO, "store.ListBinaryBuildDirs", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// BuildDirModTime returns the modification time of a binary build
// directory, the "newest first" ordering signal retention uses since a
// build directory carries no manifest of its own to compare timestamps
// against.
func (s *Store) BuildDirModTime(quality, platform, commit string) (time.Time, error) {
	fi, err := os.Stat(s.Path(filepath.Join("binaries", quality, platform, commit)))
	if err != nil {
		return time.Time{}, errs.New(errs.StoreIO, "store.BuildDirModTime", err)
	}
	return fi.ModTime(), nil
}

// WalkAssetFiles calls fn for every regular file under relpath, best-effort
// (I/O errors on an individual entry are skipped, not fatal), walking the
// directory tree with filepath.Walk — used by the /browse diagnostic endpoint.
func (s *Store) WalkAssetFiles(relpath string, fn func(path string, info fs.FileInfo) error) error {
	base := s.Path(relpath)
	return filepath.Walk(base, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		return fn(path, info)
	})
}
