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

// Package config builds the single Config value every component is
// constructed from. It is read once, at process start, from environment
// variables with an optional YAML file layered underneath, and never
// touched again from deeper in the call stack.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide, immutable configuration value.
type Config struct {
	ArtifactRoot string `yaml:"artifactRoot"`

	UpstreamUpdateURL       string `yaml:"upstreamUpdateUrl"`
	UpstreamMarketplaceURL  string `yaml:"upstreamMarketplaceUrl"`
	UpstreamRecommendations string `yaml:"upstreamRecommendationsUrl"`

	BindAddress string `yaml:"bindAddress"`

	SyncInterval time.Duration `yaml:"syncInterval"`

	RetainExtensionVersions int `yaml:"retainExtensionVersions"`
	RetainBinaryBuilds      int `yaml:"retainBinaryBuilds"`

	DownloadPoolWidth int `yaml:"downloadPoolWidth"`

	RequestTimeout time.Duration `yaml:"requestTimeout"`

	LogDestination string `yaml:"logDestination"`
	Verbose        bool   `yaml:"verbose"`

	IncludePreRelease bool `yaml:"includePreRelease"`

	QualitiesEnabled []string `yaml:"qualitiesEnabled"`
	PlatformsEnabled []string `yaml:"platformsEnabled"`

	TotalRecommended int `yaml:"totalRecommended"`

	RetryBaseDelay time.Duration `yaml:"retryBaseDelay"`
	RetryFactor    float64       `yaml:"retryFactor"`
	RetryCap       time.Duration `yaml:"retryCap"`
	RetryMaxAttempts int         `yaml:"retryMaxAttempts"`
}

// Defaults returns the baseline configuration before env/file overlays.
func Defaults() Config {
	return Config{
		ArtifactRoot:            "./artifacts",
		UpstreamUpdateURL:       "https://update.code.visualstudio.com",
		UpstreamMarketplaceURL:  "https://marketplace.visualstudio.com/_apis/public/gallery",
		UpstreamRecommendations: "https://az764295.vo.msecnd.net/extensions/workspaceRecommendations.json",
		BindAddress:             ":8080",
		SyncInterval:            6 * time.Hour,
		RetainExtensionVersions: 1,
		RetainBinaryBuilds:      1,
		DownloadPoolWidth:       8,
		RequestTimeout:          30 * time.Second,
		LogDestination:          "stdout",
		IncludePreRelease:       false,
		QualitiesEnabled:        []string{"stable"},
		PlatformsEnabled:        []string{"linux-x64", "win32-x64-archive", "darwin"},
		TotalRecommended:        500,
		RetryBaseDelay:          2 * time.Second,
		RetryFactor:             2,
		RetryCap:                time.Minute,
		RetryMaxAttempts:        5,
	}
}

// Load builds a Config: defaults, then an optional YAML file (if path is
// non-empty and exists), then environment variable overrides — the same
// layering order the teacher's cfg package uses (flag default, then env
// override), generalized to add a file layer in between.
func Load(yamlPath string) (Config, error) {
	cfg := Defaults()

	if yamlPath != "" {
		if b, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parsing %s: %w", yamlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: reading %s: %w", yamlPath, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MIRROR_ARTIFACT_ROOT"); v != "" {
		cfg.ArtifactRoot = v
	}
	if v := os.Getenv("MIRROR_UPSTREAM_UPDATE_URL"); v != "" {
		cfg.UpstreamUpdateURL = v
	}
	if v := os.Getenv("MIRROR_UPSTREAM_MARKETPLACE_URL"); v != "" {
		cfg.UpstreamMarketplaceURL = v
	}
	if v := os.Getenv("MIRROR_UPSTREAM_RECOMMENDATIONS_URL"); v != "" {
		cfg.UpstreamRecommendations = v
	}
	if v := os.Getenv("MIRROR_BIND_ADDRESS"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("MIRROR_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SyncInterval = d
		}
	}
	if v := os.Getenv("MIRROR_RETAIN_EXTENSION_VERSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetainExtensionVersions = n
		}
	}
	if v := os.Getenv("MIRROR_RETAIN_BINARY_BUILDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetainBinaryBuilds = n
		}
	}
	if v := os.Getenv("MIRROR_DOWNLOAD_POOL_WIDTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DownloadPoolWidth = n
		}
	}
	if v := os.Getenv("MIRROR_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}
	if v := os.Getenv("MIRROR_LOG_DESTINATION"); v != "" {
		cfg.LogDestination = v
	}
	if v := os.Getenv("MIRROR_VERBOSE"); v != "" {
		cfg.Verbose = v == "1" || v == "true"
	}
	if v := os.Getenv("MIRROR_INCLUDE_PRERELEASE"); v != "" {
		cfg.IncludePreRelease = v == "1" || v == "true"
	}
	if v := os.Getenv("MIRROR_QUALITIES_ENABLED"); v != "" {
		cfg.QualitiesEnabled = strings.Split(v, ",")
	}
	if v := os.Getenv("MIRROR_PLATFORMS_ENABLED"); v != "" {
		cfg.PlatformsEnabled = strings.Split(v, ",")
	}
	if v := os.Getenv("MIRROR_TOTAL_RECOMMENDED"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TotalRecommended = n
		}
	}
}

// Validate rejects a Config that cannot safely run either binary.
func (c Config) Validate() error {
	if c.ArtifactRoot == "" {
		return fmt.Errorf("config: artifactRoot must not be empty")
	}
	if c.DownloadPoolWidth <= 0 {
		return fmt.Errorf("config: downloadPoolWidth must be positive")
	}
	if c.RetainExtensionVersions <= 0 {
		return fmt.Errorf("config: retainExtensionVersions must be positive")
	}
	if c.RetainBinaryBuilds <= 0 {
		return fmt.Errorf("config: retainBinaryBuilds must be positive")
	}
	if len(c.QualitiesEnabled) == 0 {
		return fmt.Errorf("config: qualitiesEnabled must not be empty")
	}
	return nil
}

// Print logs the effective configuration at startup, matching the
// teacher's cfg.Print diagnostic convention.
func (c Config) Print(logf func(format string, v ...interface{})) {
	logf("artifact root: %s", c.ArtifactRoot)
	logf("bind address: %s", c.BindAddress)
	logf("sync interval: %s", c.SyncInterval)
	logf("qualities enabled: %s", strings.Join(c.QualitiesEnabled, ","))
	logf("platforms enabled: %s", strings.Join(c.PlatformsEnabled, ","))
	logf("download pool width: %d", c.DownloadPoolWidth)
	logf("retain: %d extension versions, %d binary builds", c.RetainExtensionVersions, c.RetainBinaryBuilds)
}
