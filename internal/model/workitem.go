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

package model

// WorkKind distinguishes what a WorkItem materializes.
type WorkKind int

const (
	WorkKindBinary WorkKind = iota
	WorkKindExtensionAsset
)

// WorkItem is a resolved unit of download for the pool: identity, source
// URL, destination, and the verification metadata the pool checks against.
type WorkItem struct {
	Kind WorkKind

	// Identity groups related work items: for binaries this is the
	// release's Identity(); for extension assets it is
	// "publisher.name@version/targetPlatform".
	Identity string

	ExtensionID      string
	ExtensionVersion string
	TargetPlatform   string

	// Quality, CommitID, and Version are populated for WorkKindBinary items
	// only.
	Quality  Quality
	CommitID string
	Version  string

	AssetType    string
	SourceURL    string
	DestRelPath  string
	DeclaredSize int64
	DeclaredHash string
}

// VersionGroupKey identifies the (extension, version, targetPlatform) group
// a WorkItem belongs to, for the pool's "all assets before latest.json"
// completion reporting.
func (w WorkItem) VersionGroupKey() string {
	return w.ExtensionID + "@" + w.ExtensionVersion + "/" + w.TargetPlatform
}

// WorkPlan is the output of the resolver for one sync pass.
type WorkPlan struct {
	Items     []WorkItem
	RetainSet map[string]struct{}
	PurgeSet  map[string]struct{}

	// Records carries the trimmed (kept-versions-only) ExtensionRecord for
	// every extension the resolver considered, keyed by extension id. The
	// synchronizer assembles the final on-disk record from this plus which
	// of Items actually committed.
	Records map[string]ExtensionRecord

	// Releases carries the BinaryRelease metadata for every binary work
	// item, keyed by WorkItem.Identity.
	Releases map[string]BinaryRelease
}
