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

// Package query is the Query Engine (C6): it owns the Store Index
// snapshot and answers marketplace-style queries over it. The snapshot is
// published behind an atomic.Pointer and swapped, never locked, per
// spec.md §9 "Shared mutable index" — the teacher has no example of this
// discipline (its storage package guards a single mutable slice with a
// plain mutex, see DESIGN.md), so this is built fresh in the same
// plain-struct style the teacher uses for its Storage type, with the
// locking strategy swapped for the spec's snapshot/swap requirement.
package query

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/offlinemirror/editormirror/internal/model"
	"github.com/offlinemirror/editormirror/internal/store"
)

// Snapshot is an immutable in-memory view of the Store Index, built from
// an instant of on-disk state. Readers hold a Snapshot for the duration of
// one request; it is never mutated after Build returns it.
type Snapshot struct {
	BuiltAt time.Time

	byID       map[string]model.ExtensionRecord
	byTag      map[string][]string
	byCategory map[string][]string

	binaries map[string]model.BinaryRelease // keyed by quality/platform

	recommended map[string]struct{}
}

// Build scans st and produces a fresh Snapshot — the sole constructor
// of a Snapshot.
func Build(st *store.Store) (*Snapshot, error) {
	records, err := st.ListExtensions()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		BuiltAt:     time.Now(),
		byID:        make(map[string]model.ExtensionRecord, len(records)),
		byTag:       map[string][]string{},
		byCategory:  map[string][]string{},
		binaries:    map[string]model.BinaryRelease{},
		recommended: map[string]struct{}{},
	}

	for _, rec := range records {
		id := strings.ToLower(rec.ID)
		snap.byID[id] = rec
		for _, tag := range rec.Meta.Tags {
			snap.byTag[strings.ToLower(tag)] = append(snap.byTag[strings.ToLower(tag)], id)
		}
		for _, cat := range rec.Meta.Categories {
			snap.byCategory[strings.ToLower(cat)] = append(snap.byCategory[strings.ToLower(cat)], id)
		}
	}

	var recSet model.RecommendationSet
	if err := st.ReadJSON(store.RecommendedIndexPath(), &recSet); err == nil {
		for _, id := range recSet.Identifiers {
			snap.recommended[strings.ToLower(id)] = struct{}{}
		}
	}

	for _, quality := range []string{"stable", "insider", "exploration"} {
		releases, err := st.ListBinaries(quality)
		if err != nil {
			continue
		}
		for _, rel := range releases {
			snap.binaries[string(rel.Quality)+"/"+rel.Platform] = rel
		}
	}

	return snap, nil
}

// Index holds the currently published Snapshot, swapped atomically by
// Publish; galleryd publishes a freshly built one at startup and every 30
// seconds after that.
type Index struct {
	ptr atomic.Pointer[Snapshot]
}

// NewIndex returns an Index with no snapshot published yet; Current
// returns nil until the first Publish.
func NewIndex() *Index { return &Index{} }

// Publish atomically swaps in a freshly built snapshot.
func (idx *Index) Publish(s *Snapshot) { idx.ptr.Store(s) }

// Current returns the currently published snapshot, or nil if none has
// been published yet.
func (idx *Index) Current() *Snapshot { return idx.ptr.Load() }
