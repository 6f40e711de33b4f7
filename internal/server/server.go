// Package server exposes the sticker pipeline over HTTP: one multipart
// upload endpoint plus static routes for the generated artifacts.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stickersmith/stickersmith/internal/config"
	"github.com/stickersmith/stickersmith/internal/utils"
	"github.com/stickersmith/stickersmith/pkg/pipeline"
)

// Server wires the pipeline to gin. One instance serves all requests.
type Server struct {
	cfg  *config.Config
	pipe *pipeline.Pipeline
	log  zerolog.Logger
}

// New prepares the output directories and returns a ready Server.
func New(cfg *config.Config, pipe *pipeline.Pipeline, log zerolog.Logger) (*Server, error) {
	if err := utils.EnsureDir(cfg.Output.GeneratedDir); err != nil {
		return nil, fmt.Errorf("failed to create generated dir: %w", err)
	}
	if cfg.Output.KeepDebug {
		if err := utils.EnsureDir(cfg.Output.DebugDir); err != nil {
			return nil, fmt.Errorf("failed to create debug dir: %w", err)
		}
	}
	return &Server{cfg: cfg, pipe: pipe, log: log}, nil
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.accessLog())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type"},
		MaxAge:          12 * time.Hour,
	}))
	r.MaxMultipartMemory = s.cfg.Upload.MaxTotalBytes

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/api/upload", s.handleUpload)
	r.Static("/generated", s.cfg.Output.GeneratedDir)
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}
