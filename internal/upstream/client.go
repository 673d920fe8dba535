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

// Package upstream is the typed wrapper over the upstream editor vendor's
// HTTP endpoints: release manifests, the marketplace query API, the
// recommendations feed, and per-extension asset downloads. It is the
// generalization of the teacher's brokers/unified/vscode/broker.go, which
// hand-rolled this exact query protocol (bodyFmt, marketplaceResponse,
// findAssetURL) for a single-extension lookup; here it is a full typed
// client with proper backoff instead of a bare time.Sleep retry loop.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/offlinemirror/editormirror/internal/config"
	"github.com/offlinemirror/editormirror/internal/errs"
	"github.com/offlinemirror/editormirror/internal/logging"
	"github.com/offlinemirror/editormirror/internal/model"
)

// Client is the Upstream Client (C2). Stateless beyond its configuration
// and HTTP transport; safe for concurrent use.
type Client struct {
	cfg    config.Config
	http   *http.Client
	log    logging.Logger
	userID string
}

// New returns a Client configured from cfg. userID defaults to a fresh
// UUID per process, matching the original's per-session
// "x-market-user-Id" header (vscsync/classes.py:353).
func New(cfg config.Config, log logging.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		log:    log,
		userID: uuid.NewString(),
	}
}

// backoffFor builds the retry policy shared by every upstream call: base
// delay, factor cfg.RetryFactor, cap, and at most cfg.RetryMaxAttempts
// attempts in all.
func (c *Client) backoffFor(ctx context.Context) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.RetryBaseDelay
	eb.Multiplier = c.cfg.RetryFactor
	eb.MaxInterval = c.cfg.RetryCap
	eb.MaxElapsedTime = 0
	retries := c.cfg.RetryMaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// isRetryable decides whether a response status should be retried:
// connection errors (caller never gets a response) and 5xx are retried;
// 4xx are surfaced as typed failures immediately.
func isRetryable(statusCode int) bool {
	return statusCode == 0 || statusCode >= 500
}

// do executes req with the shared retry policy, returning the response
// body bytes. It closes the response body itself.
func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", "editormirror-sync/1.0")
	req.Header.Set("x-market-user-Id", c.userID)

	var body []byte
	op := func() error {
		resp, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			body = b
			return nil
		}
		if !isRetryable(resp.StatusCode) {
			return backoff.Permanent(fmt.Errorf("upstream returned %d: %s", resp.StatusCode, truncate(b, 256)))
		}
		return fmt.Errorf("upstream returned %d", resp.StatusCode)
	}

	if err := backoff.Retry(op, c.backoffFor(ctx)); err != nil {
		if ctx.Err() != nil {
			return nil, errs.New(errs.Cancelled, "upstream.do", ctx.Err())
		}
		return nil, errs.New(errs.UpstreamUnavailable, "upstream.do", err)
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// ReleaseManifest is the typed view of the per-quality release endpoint.
type ReleaseManifest struct {
	CommitID string                     `json:"commitId"`
	Version  string                     `json:"version"`
	Assets   map[string]ReleaseManifestURL `json:"-"`
	Raw      json.RawMessage            `json:"-"`
}

// ReleaseManifestURL is a single platform's download entry in a release
// manifest.
type ReleaseManifestURL struct {
	URL  string `json:"url"`
	Hash string `json:"sha256hash,omitempty"`
}

// rawReleaseManifest mirrors the upstream update.code.visualstudio.com
// response shape closely enough to decode it; unknown fields are kept via
// Raw on the returned ReleaseManifest.
type rawReleaseManifest struct {
	CommitID string `json:"commitId"`
	Version  string `json:"version"`
	URL      string `json:"url"`
	SHA256   string `json:"sha256hash,omitempty"`
}

// FetchReleaseManifest fetches the latest release manifest for one
// (quality, platform) pair. The upstream endpoint is per-platform, so the
// resolver calls this once per enabled platform.
func (c *Client) FetchReleaseManifest(ctx context.Context, quality, platform string) (ReleaseManifest, error) {
	url := fmt.Sprintf("%s/api/update/%s/%s/latest", c.cfg.UpstreamUpdateURL, platform, quality)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ReleaseManifest{}, errs.New(errs.ConfigInvalid, "upstream.FetchReleaseManifest", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(ctx, req)
	if err != nil {
		return ReleaseManifest{}, err
	}

	var raw rawReleaseManifest
	if err := json.Unmarshal(body, &raw); err != nil {
		return ReleaseManifest{}, errs.New(errs.UpstreamMalformed, "upstream.FetchReleaseManifest", err)
	}

	return ReleaseManifest{
		CommitID: raw.CommitID,
		Version:  raw.Version,
		Assets: map[string]ReleaseManifestURL{
			platform: {URL: raw.URL, Hash: raw.SHA256},
		},
		Raw: json.RawMessage(body),
	}, nil
}

// marketplaceRequestBody is the wire shape of a /extensionquery POST,
// reproducing the teacher's bodyFmt template (filterType 7 = ExtensionName)
// generalized to carry an arbitrary model.Query.
type marketplaceRequestBody struct {
	Filters    []model.Filter `json:"filters"`
	AssetTypes []string       `json:"assetTypes"`
	Flags      model.QueryFlags `json:"flags"`
}

// marketplaceResponseEnvelope mirrors the upstream's {"results":[{...}]}
// envelope (the teacher's own marketplaceResponse type, generalized).
type marketplaceResponseEnvelope struct {
	Results []struct {
		Extensions     json.RawMessage `json:"extensions"`
		ResultMetadata json.RawMessage `json:"resultMetadata"`
	} `json:"results"`
}

// QueryMarketplace issues one /extensionquery page request.
func (c *Client) QueryMarketplace(ctx context.Context, q model.Query) (model.ResultPage, json.RawMessage, error) {
	reqBody := marketplaceRequestBody{
		Filters:    q.Filters,
		AssetTypes: []string{model.AssetTypeVSIX, model.AssetTypeManifest, model.AssetTypeIcon},
		Flags:      q.Flags,
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return model.ResultPage{}, nil, errs.New(errs.ConfigInvalid, "upstream.QueryMarketplace", err)
	}

	url := c.cfg.UpstreamMarketplaceURL + "/extensionquery"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return model.ResultPage{}, nil, errs.New(errs.ConfigInvalid, "upstream.QueryMarketplace", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json;api-version=3.0-preview.1")

	body, err := c.do(ctx, req)
	if err != nil {
		return model.ResultPage{}, nil, err
	}

	var env marketplaceResponseEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.ResultPage{}, nil, errs.New(errs.UpstreamMalformed, "upstream.QueryMarketplace", err)
	}
	if len(env.Results) == 0 {
		return model.ResultPage{}, nil, errs.New(errs.UpstreamMalformed, "upstream.QueryMarketplace", fmt.Errorf("empty results envelope"))
	}

	var records []model.ExtensionRecord
	if err := json.Unmarshal(env.Results[0].Extensions, &records); err != nil {
		return model.ResultPage{}, nil, errs.New(errs.UpstreamMalformed, "upstream.QueryMarketplace", err)
	}

	return model.ResultPage{Extensions: records}, json.RawMessage(body), nil
}

// FetchRecommendations fetches the upstream "workspace recommendations"
// feed, returning the flat list of extension identifiers it names.
func (c *Client) FetchRecommendations(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UpstreamRecommendations, nil)
	if err != nil {
		return nil, errs.New(errs.ConfigInvalid, "upstream.FetchRecommendations", err)
	}
	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		WorkspaceRecommendations []struct {
			Extensions []string `json:"extensions"`
		} `json:"workspaceRecommendations"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errs.New(errs.UpstreamMalformed, "upstream.FetchRecommendations", err)
	}
	var ids []string
	for _, group := range parsed.WorkspaceRecommendations {
		ids = append(ids, group.Extensions...)
	}
	return ids, nil
}

// AssetStream is an open, not-yet-consumed response body for a fetched
// asset, plus whatever size/hash metadata the upstream declared.
type AssetStream struct {
	Body         io.ReadCloser
	DeclaredSize int64
	DeclaredHash string
}

// FetchExtensionAsset opens a streaming GET against an asset URL returned
// by the marketplace. The caller (the download pool) is responsible for
// closing Body.
func (c *Client) FetchExtensionAsset(ctx context.Context, url string) (*AssetStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.ConfigInvalid, "upstream.FetchExtensionAsset", err)
	}
	req.Header.Set("User-Agent", "editormirror-sync/1.0")
	req.Header.Set("x-market-user-Id", c.userID)

	var resp *http.Response
	op := func() error {
		r, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			return err
		}
		if r.StatusCode >= 200 && r.StatusCode < 300 {
			resp = r
			return nil
		}
		defer r.Body.Close()
		if !isRetryable(r.StatusCode) {
			return backoff.Permanent(fmt.Errorf("asset fetch returned %d", r.StatusCode))
		}
		return fmt.Errorf("asset fetch returned %d", r.StatusCode)
	}
	if err := backoff.Retry(op, c.backoffFor(ctx)); err != nil {
		if ctx.Err() != nil {
			return nil, errs.New(errs.Cancelled, "upstream.FetchExtensionAsset", ctx.Err())
		}
		return nil, errs.New(errs.UpstreamUnavailable, "upstream.FetchExtensionAsset", err)
	}

	return &AssetStream{
		Body:         resp.Body,
		DeclaredSize: resp.ContentLength,
	}, nil
}

// FetchBinaryAsset opens a streaming GET against a binary release's
// download URL, the same way FetchExtensionAsset does for extensions.
func (c *Client) FetchBinaryAsset(ctx context.Context, url string) (*AssetStream, error) {
	return c.FetchExtensionAsset(ctx, url)
}
