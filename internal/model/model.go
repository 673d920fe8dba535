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

// Package model holds the domain types shared by the synchronizer and the
// gallery API: binary releases, extensions and their versions, the
// marketplace query wire protocol, and the work items the download pool
// consumes. One flat package, in the teacher's own style (see its
// model.model package), since these types are small and mutually
// referential.
package model

import (
	"encoding/json"
	"time"

	"github.com/blang/semver/v4"
)

// Quality is a release channel of the editor.
type Quality string

const (
	QualityStable      Quality = "stable"
	QualityInsider     Quality = "insider"
	QualityExploration Quality = "exploration"
)

// BinaryRelease is a single platform build of the editor for one quality
// channel. Identity is (Platform, Quality, CommitID); never mutated once
// its payload is materialized.
type BinaryRelease struct {
	Platform  string    `json:"platform"`
	Quality   Quality   `json:"quality"`
	CommitID  string    `json:"commitId"`
	Version   string    `json:"version"`
	URL       string    `json:"url"`
	Hash      string    `json:"sha256,omitempty"`
	Size      int64     `json:"size"`
	Timestamp time.Time `json:"timestamp"`

	// Raw holds the upstream manifest body as fetched. It is not serialized
	// (json:"-"), so latest.json and the update-check response carry only
	// the fields above.
	Raw json.RawMessage `json:"-"`
}

// Identity returns the (platform, quality, commit) tuple as a stable key.
func (b BinaryRelease) Identity() string {
	return string(b.Quality) + "/" + b.Platform + "/" + b.CommitID
}

// Publisher identifies the author block of an Extension.
type Publisher struct {
	Name        string `json:"publisherName"`
	DisplayName string `json:"publisherDisplayName"`
}

// Statistics mirrors the upstream install/rating counters.
type Statistics struct {
	InstallCount   int64   `json:"installCount"`
	AverageRating  float64 `json:"averageRating"`
	RatingCount    int64   `json:"ratingCount"`
	WeightedRating float64 `json:"weightedRating"`
}

// Extension is a marketplace package, identified by publisher.name.
type Extension struct {
	ID               string     `json:"extensionId"`
	Name             string     `json:"extensionName"`
	DisplayName      string     `json:"displayName"`
	ShortDescription string     `json:"shortDescription"`
	Publisher        Publisher  `json:"publisher"`
	Categories       []string   `json:"categories"`
	Tags             []string   `json:"tags"`
	Flags            []string   `json:"flags"`
	Statistics       Statistics `json:"statistics"`
	IconAssetType    string     `json:"iconAssetType,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// CanonicalID returns the lower-cased "publisher.name" identity used for
// case-insensitive lookups; the Extension's own fields keep upstream casing.
func (e Extension) CanonicalID() string {
	return lower(e.Publisher.Name) + "." + lower(e.Name)
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Asset is a single file belonging to an extension version.
type Asset struct {
	Type string `json:"assetType"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	Hash string `json:"sha256,omitempty"`
}

// Well-known asset types, matching the upstream marketplace's asset-type
// strings.
const (
	AssetTypeVSIX       = "Microsoft.VisualStudio.Services.VSIXPackage"
	AssetTypeManifest   = "Microsoft.VisualStudio.Code.Manifest"
	AssetTypeIcon       = "Microsoft.VisualStudio.Services.Icons.Default"
	AssetTypeDetails    = "Microsoft.VisualStudio.Services.Content.Details"
	AssetTypeChangelog  = "Microsoft.VisualStudio.Services.Content.Changelog"
	AssetTypeLicense    = "Microsoft.VisualStudio.Services.Content.License"
	AssetTypeVSIXSig    = "Microsoft.VisualStudio.Services.VsixSignature"
)

// ExtensionVersion is one version of an Extension.
type ExtensionVersion struct {
	Version          string    `json:"version"`
	TargetPlatform   string    `json:"targetPlatform,omitempty"`
	IsPreRelease     bool      `json:"isPreRelease"`
	LastUpdated      time.Time `json:"lastUpdated"`
	EngineConstraint string    `json:"engine,omitempty"`
	Assets           []Asset   `json:"files"`
}

// Identity is (version, targetPlatform) within an extension.
func (v ExtensionVersion) Identity() string {
	return v.Version + "/" + v.TargetPlatform
}

// Semver parses Version, treating an unparsable string as the zero version
// so comparisons stay total even against malformed upstream data.
func (v ExtensionVersion) Semver() semver.Version {
	sv, err := semver.ParseTolerant(v.Version)
	if err != nil {
		return semver.Version{}
	}
	return sv
}

// AssetByType returns the asset of the given type, if present.
func (v ExtensionVersion) AssetByType(assetType string) (Asset, bool) {
	for _, a := range v.Assets {
		if a.Type == assetType {
			return a, true
		}
	}
	return Asset{}, false
}

// ExtensionRecord is the aggregate persisted per extension: identity,
// canonical metadata, and versions ordered newest first.
type ExtensionRecord struct {
	ID       string             `json:"extensionId"`
	Meta     Extension          `json:"metadata"`
	Versions []ExtensionVersion `json:"versions"`
}

// Latest returns the newest version, excluding pre-release unless
// includePreRelease is set. Returns false if no eligible version exists.
func (r ExtensionRecord) Latest(includePreRelease bool) (ExtensionVersion, bool) {
	for _, v := range r.Versions {
		if v.IsPreRelease && !includePreRelease {
			continue
		}
		return v, true
	}
	return ExtensionVersion{}, false
}

// SortedVersions returns Versions ordered by (semver desc, lastUpdated desc).
// The resolver and store assembly are expected to call this before
// persisting, so Versions is kept sorted as an invariant rather than sorted
// lazily on every read.
func SortedVersions(versions []ExtensionVersion) []ExtensionVersion {
	out := make([]ExtensionVersion, len(versions))
	copy(out, versions)
	sortVersionsDesc(out)
	return out
}

func sortVersionsDesc(versions []ExtensionVersion) {
	// insertion sort: version lists are short (tens, not thousands) and
	// this keeps the comparison logic inline and easy to read, matching
	// the teacher's preference for small, direct loops over
	// sort.Slice-with-closures in hot paths.
	for i := 1; i < len(versions); i++ {
		j := i
		for j > 0 && versionLess(versions[j], versions[j-1]) {
			versions[j], versions[j-1] = versions[j-1], versions[j]
			j--
		}
	}
}

func versionLess(a, b ExtensionVersion) bool {
	cmp := b.Semver().Compare(a.Semver())
	if cmp != 0 {
		return cmp < 0
	}
	return b.LastUpdated.Before(a.LastUpdated)
}

// RecommendationSet is an ordered list of extension identifiers that drives
// the resolver's work set; never served to clients directly.
type RecommendationSet struct {
	Identifiers []string
}

// MaliciousList is the set of extension identifiers that must be purged
// from the store and suppressed from future downloads.
type MaliciousList struct {
	Identifiers map[string]struct{}
}

// Contains reports whether id (case-insensitive) is malicious.
func (m MaliciousList) Contains(id string) bool {
	if m.Identifiers == nil {
		return false
	}
	_, ok := m.Identifiers[lower(id)]
	return ok
}

// NewMaliciousList builds a MaliciousList from a plain identifier slice.
func NewMaliciousList(ids []string) MaliciousList {
	m := MaliciousList{Identifiers: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		m.Identifiers[lower(id)] = struct{}{}
	}
	return m
}

// SpecifiedList is the operator-supplied allow list (specified.json).
type SpecifiedList struct {
	Extensions []string `json:"extensions"`
}

// MaliciousFile is the decoded shape of malicious.json.
type MaliciousFile struct {
	Malicious []string `json:"malicious"`
}
