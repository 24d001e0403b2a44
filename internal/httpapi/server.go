// Package httpapi exposes a Conversation over HTTP.
package httpapi

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"

	"docchat/internal/domain"
	"docchat/internal/service"
)

// Conversation is the subset of service.Conversation the handlers use.
type Conversation interface {
	Ingest(ctx context.Context, docs []domain.Document) (*service.IngestReport, error)
	Ask(ctx context.Context, question string) (*service.Reply, error)
	Query(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
	Reset(ctx context.Context) error
}

// Extractor turns uploaded files into plain text.
type Extractor interface {
	Supported(name string) bool
	Extract(name string, data []byte) (string, error)
}

// Options configure the router.
type Options struct {
	AllowedOrigins []string
	MaxUploadBytes int64
}

// NewRouter builds the gin engine serving the /api routes.
func NewRouter(conv Conversation, ext Extractor, logger logr.Logger, opts Options) *gin.Engine {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	corsConfig := cors.DefaultConfig()
	if len(opts.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = opts.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	r.Use(cors.New(corsConfig))

	h := &Handler{conv: conv, extractor: ext, logger: logger, maxUpload: opts.MaxUploadBytes}
	h.RegisterRoutes(r)
	return r
}

func requestLogger(logger logr.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.V(1).Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		)
	}
}
