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

package config

import "time"

// SyncCLI is the cmd/syncd flag surface, parsed by kong. It exposes the
// named operations from the external-interfaces contract (one-shot vs
// periodic; binaries-only; extensions-only; all/recommended/specified
// extension modes; extension search diagnostic; total-recommended N;
// verbose diagnostic) as flags, plus an explicit file/yaml layering point.
type SyncCLI struct {
	ConfigFile string `help:"Path to an optional mirror.yaml config file." type:"existingfile" optional:""`

	Sync    bool `help:"Run one sync pass covering binaries and recommended extensions, then exit."`
	SyncAll bool `help:"Run one sync pass covering binaries and the full extension marketplace, then exit."`

	CheckBinaries             bool `help:"Check and update binary releases."`
	UpdateExtensions          bool `help:"Check and update extensions (mode selected by the flags below)."`
	CheckRecommendedExtensions bool `help:"Resolve extensions from the upstream recommendation lists."`
	CheckSpecifiedExtensions   bool `help:"Resolve extensions from specified.json only."`
	CheckAllExtensions         bool `help:"Resolve the entire upstream marketplace."`

	UpdateMaliciousExtensions bool `help:"Purge extensions listed in malicious.json."`
	SkipBinaries              bool `help:"Skip the binaries step entirely, even under --sync/--sync-all."`

	ExtensionSearch string `help:"Run a one-off marketplace search by text and print matches, without syncing." optional:""`
	ExtensionName   string `help:"Resolve and fetch a single extension by publisher.name, without a full pass." optional:""`

	PreReleaseExtensions bool `help:"Include pre-release versions when resolving extensions."`

	TotalRecommended int `help:"Override the top-N marketplace slice size for recommended mode." default:"0"`

	Interval time.Duration `help:"Run periodically at this interval instead of a single pass." optional:""`

	Verbose bool `help:"Verbose diagnostic logging, including per-item byte counters."`
}
