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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSortedVersionsOrdersBySemverThenLastUpdated(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tables := []struct {
		name string
		in   []ExtensionVersion
		want []string
	}{
		{
			name: "higher semver first",
			in: []ExtensionVersion{
				{Version: "1.2.0", LastUpdated: older},
				{Version: "1.10.0", LastUpdated: older},
				{Version: "1.3.0", LastUpdated: older},
			},
			want: []string{"1.10.0", "1.3.0", "1.2.0"},
		},
		{
			name: "tie broken by lastUpdated descending",
			in: []ExtensionVersion{
				{Version: "2.0.0", LastUpdated: older},
				{Version: "2.0.0", LastUpdated: newer},
			},
			want: []string{"2.0.0", "2.0.0"},
		},
		{
			name: "unparsable version treated as zero, sorts last",
			in: []ExtensionVersion{
				{Version: "1.0.0", LastUpdated: older},
				{Version: "not-a-version", LastUpdated: newer},
			},
			want: []string{"1.0.0", "not-a-version"},
		},
	}

	for _, tt := range tables {
		t.Run(tt.name, func(t *testing.T) {
			out := SortedVersions(tt.in)
			got := make([]string, len(out))
			for i, v := range out {
				got[i] = v.Version
			}
			assert.Equal(t, tt.want, got)
		})
	}

	// tie-broken case: confirm the newer timestamp actually landed first.
	tied := SortedVersions([]ExtensionVersion{
		{Version: "2.0.0", LastUpdated: older},
		{Version: "2.0.0", LastUpdated: newer},
	})
	assert.True(t, tied[0].LastUpdated.Equal(newer))
}

func TestSortedVersionsDoesNotMutateInput(t *testing.T) {
	in := []ExtensionVersion{{Version: "1.0.0"}, {Version: "2.0.0"}}
	_ = SortedVersions(in)
	assert.Equal(t, "1.0.0", in[0].Version)
}

func TestExtensionRecordLatestSkipsPreRelease(t *testing.T) {
	rec := ExtensionRecord{
		Versions: []ExtensionVersion{
			{Version: "2.0.0-insider", IsPreRelease: true},
			{Version: "1.5.0"},
		},
	}

	v, ok := rec.Latest(false)
	assert.True(t, ok)
	assert.Equal(t, "1.5.0", v.Version)

	v, ok = rec.Latest(true)
	assert.True(t, ok)
	assert.Equal(t, "2.0.0-insider", v.Version)
}

func TestExtensionRecordLatestNoneEligible(t *testing.T) {
	rec := ExtensionRecord{Versions: []ExtensionVersion{{Version: "1.0.0-beta", IsPreRelease: true}}}
	_, ok := rec.Latest(false)
	assert.False(t, ok)
}

func TestMaliciousListContainsIsCaseInsensitive(t *testing.T) {
	m := NewMaliciousList([]string{"Evil.Extension"})
	assert.True(t, m.Contains("evil.extension"))
	assert.True(t, m.Contains("EVIL.EXTENSION"))
	assert.False(t, m.Contains("fine.extension"))
}

func TestExtensionCanonicalIDLowercases(t *testing.T) {
	e := Extension{Name: "MyExt", Publisher: Publisher{Name: "SomePublisher"}}
	assert.Equal(t, "somepublisher.myext", e.CanonicalID())
}

func TestExtensionVersionAssetByType(t *testing.T) {
	v := ExtensionVersion{Assets: []Asset{
		{Type: AssetTypeVSIX, Path: "ext.vsix"},
		{Type: AssetTypeIcon, Path: "icon.png"},
	}}
	a, ok := v.AssetByType(AssetTypeIcon)
	assert.True(t, ok)
	assert.Equal(t, "icon.png", a.Path)

	_, ok = v.AssetByType(AssetTypeLicense)
	assert.False(t, ok)
}

func TestWorkItemVersionGroupKeyMatchesExtensionVersionIdentity(t *testing.T) {
	v := ExtensionVersion{Version: "1.0.0", TargetPlatform: "linux-x64"}
	w := WorkItem{ExtensionID: "pub.ext", ExtensionVersion: v.Version, TargetPlatform: v.TargetPlatform}
	assert.Equal(t, w.ExtensionID+"@"+v.Identity(), w.VersionGroupKey())
}
