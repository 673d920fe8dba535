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

// Package download implements the Download Pool (C4): a bounded-
// concurrency executor over the work items the resolver produces. The
// fetch-then-verify-then-commit loop generalizes the teacher's
// downloadArchives/downloadArchive pair (brokers/unified/vscode/broker.go),
// which ran sequentially and retried only on a 429; this pool bounds
// concurrency with a semaphore and retries any verification failure with
// exponential backoff.
package download

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/offlinemirror/editormirror/internal/config"
	"github.com/offlinemirror/editormirror/internal/errs"
	"github.com/offlinemirror/editormirror/internal/logging"
	"github.com/offlinemirror/editormirror/internal/model"
	"github.com/offlinemirror/editormirror/internal/store"
	"github.com/offlinemirror/editormirror/internal/upstream"
)

// Progress is the reportable state of an in-flight pool run: (jobs total,
// done, failed, bytes transferred), per spec.md §4.4.
type Progress struct {
	Total          int64
	Done           int64
	Failed         int64
	BytesTransferred int64
}

// FailureRecord is one job that exhausted its retries.
type FailureRecord struct {
	Item model.WorkItem
	Err  error
}

// Pool is the Download Pool (C4).
type Pool struct {
	cfg    config.Config
	client *upstream.Client
	store  *store.Store
	log    logging.Logger
}

// New returns a Pool bounded by cfg.DownloadPoolWidth.
func New(cfg config.Config, client *upstream.Client, st *store.Store, log logging.Logger) *Pool {
	return &Pool{cfg: cfg, client: client, store: st, log: log}
}

// Run fetches every item in items, respecting ctx cancellation. Returns the
// failures that survived retries and the final progress snapshot; a nil
// error means the pool itself ran to completion (individual item failures
// are reported via the returned slice, not this error).
func (p *Pool) Run(ctx context.Context, items []model.WorkItem) ([]FailureRecord, Progress, error) {
	progress := Progress{Total: int64(len(items))}
	sem := semaphore.NewWeighted(int64(p.cfg.DownloadPoolWidth))

	var failuresCh = make(chan FailureRecord, len(items))
	g, gctx := errgroup.WithContext(ctx)

	for _, item := range items {
		item := item
		if err := sem.Acquire(gctx, 1); err != nil {
			// context cancelled while waiting for a slot; record every
			// remaining item as cancelled rather than silently dropping it.
			failuresCh <- FailureRecord{Item: item, Err: errs.New(errs.Cancelled, "download.Run", gctx.Err())}
			atomic.AddInt64(&progress.Failed, 1)
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			if err := p.runOne(gctx, item, &progress); err != nil {
				failuresCh <- FailureRecord{Item: item, Err: err}
				atomic.AddInt64(&progress.Failed, 1)
			} else {
				atomic.AddInt64(&progress.Done, 1)
			}
			return nil // per-item failures never abort the group
		})
	}

	_ = g.Wait()
	close(failuresCh)

	var failures []FailureRecord
	for f := range failuresCh {
		failures = append(failures, f)
	}
	return failures, progress, nil
}

// runOne executes the four steps of spec.md §4.4 for a single work item.
func (p *Pool) runOne(ctx context.Context, item model.WorkItem, progress *Progress) error {
	// Step 1: satisfaction probe.
	if p.store.Has(item.DestRelPath, item.DeclaredSize, item.DeclaredHash) {
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.cfg.RetryBaseDelay
	eb.Multiplier = p.cfg.RetryFactor
	eb.MaxInterval = p.cfg.RetryCap
	retries := p.cfg.RetryMaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	var lastErr error
	op := func() error {
		n, err := p.fetchOnce(ctx, item)
		if err != nil {
			lastErr = err
			if errs.Is(err, errs.Cancelled) {
				return backoff.Permanent(err)
			}
			return err
		}
		atomic.AddInt64(&progress.BytesTransferred, n)
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return errs.New(errs.UpstreamUnavailable, "download.runOne", err)
	}
	if p.log != nil {
		p.log.Debug("download: committed %s (%s)", item.DestRelPath, humanize.Bytes(uint64(item.DeclaredSize)))
	}
	return nil
}

// fetchOnce performs steps 2-4 once: open a temp file, stream the body,
// verify, and commit (or abort on mismatch).
func (p *Pool) fetchOnce(ctx context.Context, item model.WorkItem) (int64, error) {
	stream, err := p.client.FetchExtensionAsset(ctx, item.SourceURL)
	if err != nil {
		return 0, err
	}
	defer stream.Body.Close()

	handle, err := p.store.OpenWrite(item.DestRelPath)
	if err != nil {
		return 0, err
	}

	n, hash, err := store.HashReader(handle, stream.Body)
	if err != nil {
		handle.Abort()
		if ctx.Err() != nil {
			return n, errs.New(errs.Cancelled, "download.fetchOnce", ctx.Err())
		}
		return n, errs.New(errs.UpstreamUnavailable, "download.fetchOnce", err)
	}

	if item.DeclaredSize > 0 && n != item.DeclaredSize {
		handle.Abort()
		return n, errs.New(errs.AssetIntegrityMismatch, "download.fetchOnce",
			fmt.Errorf("size mismatch for %s: got %d want %d", item.DestRelPath, n, item.DeclaredSize))
	}
	if item.DeclaredHash != "" && hash != item.DeclaredHash {
		handle.Abort()
		return n, errs.New(errs.AssetIntegrityMismatch, "download.fetchOnce",
			fmt.Errorf("hash mismatch for %s", item.DestRelPath))
	}

	if err := handle.Commit(); err != nil {
		return n, err
	}
	return n, nil
}
