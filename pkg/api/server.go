// Package api exposes the process's operational HTTP surface: a health
// check reporting database connectivity and pool stats, and the running
// binary's version.
//
// The full command/query REST API that would sit in front of the
// orchestrator (create package, fetch run, list webhooks) belongs to a
// separate presentation service and is deliberately not built here.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/version"
)

// DefaultHealthTimeout bounds the database ping issued by the health
// handler.
const DefaultHealthTimeout = 5 * time.Second

// PoolStatus reports database connectivity and connection-pool
// statistics.
type PoolStatus struct {
	Status        string `json:"status"`
	ResponseTime  int64  `json:"response_time_ms"`
	AcquiredConns int32  `json:"acquired_conns"`
	IdleConns     int32  `json:"idle_conns"`
	MaxConns      int32  `json:"max_conns"`
	NewConnsCount int64  `json:"new_conns_count"`
}

// PoolHealth pings pool and reports its connection statistics, returning a
// non-nil error only when the ping itself fails.
func PoolHealth(ctx context.Context, pool *pgxpool.Pool) (*PoolStatus, error) {
	start := time.Now()
	if err := pool.Ping(ctx); err != nil {
		return &PoolStatus{Status: "unhealthy", ResponseTime: time.Since(start).Milliseconds()}, err
	}
	stats := pool.Stat()
	return &PoolStatus{
		Status:        "healthy",
		ResponseTime:  time.Since(start).Milliseconds(),
		AcquiredConns: stats.AcquiredConns(),
		IdleConns:     stats.IdleConns(),
		MaxConns:      stats.MaxConns(),
		NewConnsCount: stats.NewConnsCount(),
	}, nil
}

// Server is the minimal operational HTTP surface.
type Server struct {
	engine *gin.Engine
	pool   *pgxpool.Pool
}

// NewServer builds a Server and registers its routes.
func NewServer(pool *pgxpool.Pool) *Server {
	s := &Server{engine: gin.Default(), pool: pool}
	s.engine.GET("/health", s.health)
	s.engine.GET("/version", s.version)
	return s
}

// Engine returns the underlying *gin.Engine, e.g. for http.Server.Handler.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultHealthTimeout)
	defer cancel()

	dbHealth, err := PoolHealth(ctx, s.pool)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbHealth,
		"version":  version.Full(),
	})
}

func (s *Server) version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": version.Full(), "app": version.AppName, "commit": version.GitCommit})
}
