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

// Package api is the Gallery API (C7): the HTTP surface the editor's
// client library speaks to natively. Route registration follows the
// teacher's own api.SetUpRouter (api/api.go) — a flat router.METHOD(path,
// handler) table — generalized from the broker's four-route status API to
// spec.md §4.7's marketplace/update/asset/stats/liveness routes, plus the
// additive /browse diagnostic endpoint from original_source/server_async.py.
package api

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/offlinemirror/editormirror/internal/errs"
	"github.com/offlinemirror/editormirror/internal/gallery/query"
	"github.com/offlinemirror/editormirror/internal/logging"
	"github.com/offlinemirror/editormirror/internal/model"
	"github.com/offlinemirror/editormirror/internal/store"
)

// Server is the Gallery API.
type Server struct {
	engine  *query.Engine
	store   *store.Store
	log     logging.Logger
	baseURL string
	debug   bool
}

// New returns a Server answering queries through eng and streaming assets
// out of st. baseURL is the externally visible origin used for asset URL
// rewriting (e.g. "http://mirror.example.internal"); debug enables the
// /browse diagnostic endpoint.
func New(eng *query.Engine, st *store.Store, log logging.Logger, baseURL string, debug bool) *Server {
	return &Server{engine: eng, store: st, log: log, baseURL: baseURL, debug: debug}
}

// Router builds the gin.Engine with every route from spec.md §4.7.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.liveness)
	r.POST("/extensionquery", s.extensionQuery)
	r.GET("/assets/:publisher/:name/:version/:assetType", s.getAsset)
	r.GET("/api/update/:platform/:quality/:commit", s.updateCheck)
	r.GET("/:commitSegment/:platform/:quality", s.binaryRedirect)
	r.POST("/stats", s.stats)
	if s.debug {
		r.GET("/browse", s.browse)
	}
	return r
}

func (s *Server) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) extensionQuery(c *gin.Context) {
	var q model.Query
	if err := c.ShouldBindJSON(&q); err != nil {
		writeError(c, errs.New(errs.RequestMalformed, "api.extensionQuery", err))
		return
	}
	page, err := s.engine.Search(q, s.baseURL+"/assets")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": []model.ResultPage{page}})
}

func (s *Server) getAsset(c *gin.Context) {
	publisher := c.Param("publisher")
	name := c.Param("name")
	version := c.Param("version")
	assetType := c.Param("assetType")
	extID := publisher + "." + name

	rec, ok := s.engine.GetExtension(extID)
	if !ok {
		writeError(c, errs.New(errs.NotFound, "api.getAsset", errors.New("extension not found")))
		return
	}
	var target *model.ExtensionVersion
	for i := range rec.Versions {
		if rec.Versions[i].Version == version {
			target = &rec.Versions[i]
			break
		}
	}
	if target == nil {
		writeError(c, errs.New(errs.NotFound, "api.getAsset", errors.New("version not found")))
		return
	}
	if _, ok := target.AssetByType(assetType); !ok {
		writeError(c, errs.New(errs.NotFound, "api.getAsset", errors.New("asset type not found")))
		return
	}

	relpath := store.ExtensionAssetPath(extID, version, target.TargetPlatform, assetType)
	full := s.store.Path(relpath)
	http.ServeFile(c.Writer, c.Request, full)
}

func (s *Server) updateCheck(c *gin.Context) {
	platform := c.Param("platform")
	quality := c.Param("quality")
	commit := c.Param("commit")

	rel, hasUpdate, err := s.engine.UpdateCheck(platform, quality, commit)
	if err != nil {
		writeError(c, err)
		return
	}
	if !hasUpdate {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, rel)
}

func (s *Server) binaryRedirect(c *gin.Context) {
	commit := strings.TrimPrefix(c.Param("commitSegment"), "commit:")
	platform := c.Param("platform")
	quality := c.Param("quality")

	var rel model.BinaryRelease
	if err := s.store.ReadJSON(store.BinaryLatestPath(quality, platform), &rel); err != nil {
		writeError(c, errs.New(errs.NotFound, "api.binaryRedirect", err))
		return
	}
	if rel.CommitID != commit {
		writeError(c, errs.New(errs.NotFound, "api.binaryRedirect", errors.New("commit mismatch")))
		return
	}
	c.Redirect(http.StatusFound, rel.URL)
}

func (s *Server) stats(c *gin.Context) {
	// Telemetry beacon accepted and discarded: this mirror forwards no
	// telemetry upstream, matching the original having no telemetry sink
	// either.
	c.Status(http.StatusOK)
}

// browse is the additive diagnostic endpoint grounded on
// original_source/server_async.py's VSCDirectoryBrowse: lists files under
// the requested path, rejecting any path that escapes the artifact root.
func (s *Server) browse(c *gin.Context) {
	rel := c.Query("path")
	if strings.Contains(path.Clean(rel), "..") {
		writeError(c, errs.New(errs.RequestMalformed, "api.browse", errors.New("path escapes artifact root")))
		return
	}
	clean := path.Clean("/" + rel)[1:]

	var entries []gin.H
	err := s.store.WalkAssetFiles(clean, func(p string, info fs.FileInfo) error {
		entries = append(entries, gin.H{"name": info.Name(), "size": info.Size()})
		return nil
	})
	if err != nil {
		writeError(c, errs.New(errs.StoreIO, "api.browse", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": clean, "entries": entries})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch errs.KindOf(err) {
	case errs.NotFound:
		status = http.StatusNotFound
		msg = "not found"
	case errs.RequestMalformed:
		status = http.StatusBadRequest
		msg = "malformed request"
	case errs.Cancelled:
		status = http.StatusServiceUnavailable
		msg = "cancelled"
	}
	c.JSON(status, gin.H{"error": msg})
}
