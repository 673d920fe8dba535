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

import "path/filepath"

// The relative-path helpers below build the files of the layout spec.md
// §4.1 names. The retention and purge steps in syncpass join extension,
// version and build directory paths themselves.

func BinaryLatestPath(quality, platform string) string {
	return filepath.Join("binaries", quality, platform, "latest.json")
}

func BinaryAssetPath(quality, platform, commit, filename string) string {
	return filepath.Join("binaries", quality, platform, commit, filename)
}

func ExtensionLatestPath(extensionID string) string {
	return filepath.Join("extensions", extensionID, "latest.json")
}

func ExtensionAssetDir(extensionID, version, targetPlatform string) string {
	if targetPlatform == "" {
		return filepath.Join("extensions", extensionID, version)
	}
	return filepath.Join("extensions", extensionID, version, targetPlatform)
}

func ExtensionAssetPath(extensionID, version, targetPlatform, filename string) string {
	return filepath.Join(ExtensionAssetDir(extensionID, version, targetPlatform), filename)
}

func ExtensionsIndexPath() string  { return filepath.Join("extensions", "extensions.json") }
func RecommendedIndexPath() string { return filepath.Join("extensions", "recommended.json") }
func MaliciousIndexPath() string   { return filepath.Join("extensions", "malicious.json") }
func SpecifiedInputPath() string   { return "specified.json" }
