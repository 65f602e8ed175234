package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"pixelbatch/internal/batch"
	"pixelbatch/internal/config"
	"pixelbatch/internal/format"
	"pixelbatch/internal/history"
	"pixelbatch/internal/pool"
	"pixelbatch/internal/watcher"
)

// Server exposes batch state and controls over HTTP.
type Server struct {
	Router  *gin.Engine
	cfg     *config.Config
	manager *batch.Manager
	pool    *pool.Pool
	store   *history.Store
	watch   *watcher.Watcher
}

func NewServer(cfg *config.Config, m *batch.Manager, p *pool.Pool, store *history.Store, w *watcher.Watcher) *Server {
	g := gin.Default()
	s := &Server{Router: g, cfg: cfg, manager: m, pool: p, store: store, watch: w}

	api := g.Group("/api")
	api.GET("/items", s.listItems)
	api.GET("/items/:id", s.getItem)
	api.DELETE("/items/:id", s.removeItem)
	api.GET("/stats", s.getStats)
	api.GET("/history", s.listHistory)
	api.GET("/encoders", s.listEncoders)
	api.POST("/convert", s.startBatch)
	api.GET("/archive", s.downloadArchive)
	api.POST("/scan-now", s.scanNow)

	return s
}

func (s *Server) listItems(c *gin.Context) {
	items := s.manager.Items()
	if st := c.Query("status"); st != "" {
		filtered := items[:0]
		for _, it := range items {
			if string(it.Status) == st {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "total": len(items)})
}

func (s *Server) getItem(c *gin.Context) {
	item, ok := s.manager.Item(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) removeItem(c *gin.Context) {
	if !s.manager.RemoveItem(c.Param("id")) {
		c.JSON(http.StatusConflict, gin.H{"error": "item is processing or does not exist"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

func (s *Server) getStats(c *gin.Context) {
	resp := gin.H{
		"batch": s.manager.Stats(),
		"pool":  s.pool.Stats(),
	}
	if s.watch != nil {
		state := "running"
		if s.watch.Paused() {
			state = "paused"
		}
		resp["watcher_state"] = state
	}
	if s.store != nil {
		if sum, err := s.store.Summary(); err == nil {
			resp["history"] = sum
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listHistory(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, []history.ConversionRecord{})
		return
	}
	limit := 100
	rows, err := s.store.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) listEncoders(c *gin.Context) {
	c.JSON(http.StatusOK, format.ListInfo())
}

func (s *Server) startBatch(c *gin.Context) {
	if s.manager.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": batch.ErrBatchInProgress.Error()})
		return
	}
	go func() {
		if err := s.manager.StartBatch(context.Background(), nil); err != nil &&
			!errors.Is(err, batch.ErrBatchInProgress) {
			log.Printf("api: batch run: %v", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"started": true})
}

func (s *Server) downloadArchive(c *gin.Context) {
	data, err := s.manager.Archive()
	if err != nil {
		if errors.Is(err, batch.ErrNothingToArchive) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="converted.zip"`)
	c.Data(http.StatusOK, "application/zip", data)
}

func (s *Server) scanNow(c *gin.Context) {
	if s.watch == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no watcher configured"})
		return
	}
	go s.watch.ScanAll(context.Background())
	c.JSON(http.StatusOK, gin.H{"started": true})
}
