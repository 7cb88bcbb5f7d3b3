// Copyright (C) 2026 TrendLoop Media (eng@trendloop.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scheduler exposes the pipeline over HTTP and runs it on an
// interval. The HTTP surface triggers runs and serves run reports; the
// daemon triggers runs automatically, persisting its last-run time so a
// restart does not double-run the pipeline.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trendloop/trendloop/services/pipeline"
	"github.com/trendloop/trendloop/services/pipeline/history"
	"github.com/trendloop/trendloop/services/pipeline/lock"
	"github.com/trendloop/trendloop/services/pipeline/telemetry"
)

// Service is the HTTP trigger and report surface for the pipeline.
type Service struct {
	orchestrator *pipeline.Orchestrator
	history      *history.Store
	logger       *slog.Logger
	port         int
}

// NewService creates the HTTP service.
func NewService(orch *pipeline.Orchestrator, store *history.Store, logger *slog.Logger, port int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		orchestrator: orch,
		history:      store,
		logger:       logger,
		port:         port,
	}
}

// Router builds the gin engine with all routes registered. Split out from
// Run so tests can drive the handlers with httptest.
func (s *Service) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealth)
	if handler := telemetry.MetricsHandler(); handler != nil {
		router.GET("/metrics", gin.WrapH(handler))
	}

	v1 := router.Group("/v1")
	{
		v1.POST("/runs", s.handleTriggerRun)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/latest", s.handleLatestRun)
		v1.GET("/runs/:id", s.handleGetRun)
	}
	return router
}

// Run serves HTTP until the listener fails or the context is cancelled,
// in which case in-flight requests are drained before returning nil.
func (s *Service) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("scheduler service listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("scheduler service stopping",
			slog.String("reason", ctx.Err().Error()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

// handleHealth reports liveness.
func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleTriggerRun executes one pipeline run synchronously and returns
// its report. A concurrent run is rejected with 409, never queued.
func (s *Service) handleTriggerRun(c *gin.Context) {
	report, err := s.orchestrator.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, lock.ErrRunActive) {
			c.JSON(http.StatusConflict, gin.H{"error": "a pipeline run is already active"})
			return
		}
		// Snapshot failure: the run was refused but a report with its
		// verdict exists.
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  err.Error(),
			"report": report,
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleLatestRun returns the most recent run report.
func (s *Service) handleLatestRun(c *gin.Context) {
	report, err := s.history.Latest(c.Request.Context())
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no runs recorded yet"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleGetRun returns one run report by run ID.
func (s *Service) handleGetRun(c *gin.Context) {
	report, err := s.history.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleListRuns returns recent run reports, newest first. The limit
// query parameter defaults to 20.
func (s *Service) handleListRuns(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	reports, err := s.history.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": reports})
}
