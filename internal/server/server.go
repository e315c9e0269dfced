package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"handsign/internal/blobstore"
	"handsign/internal/models"
	"handsign/internal/service"
)

const maxMultipartMemory = 8 << 20

type Submitter interface {
	Submit(ctx context.Context, sub service.Submission) (models.TranslationEvent, error)
}

type HistoryReader interface {
	ListAll(ctx context.Context) ([]models.TranslationRecord, error)
}

// Check reports whether a dependency is usable; nil means ready.
type Check func(ctx context.Context) error

type Deps struct {
	Ingest   Submitter
	History  HistoryReader
	Blobs    blobstore.Store
	Gatherer prometheus.Gatherer
	Checks   map[string]Check
	Logger   *slog.Logger
}

type Server struct {
	cfg     *models.Config
	router  *gin.Engine
	http    *http.Server
	ingest  Submitter
	history HistoryReader
	blobs   blobstore.Store
	checks  map[string]Check
	logger  *slog.Logger
}

func NewServer(cfg *models.Config, deps Deps) *Server {
	r := gin.New()
	r.MaxMultipartMemory = maxMultipartMemory

	s := &Server{
		cfg:     cfg,
		router:  r,
		ingest:  deps.Ingest,
		history: deps.History,
		blobs:   deps.Blobs,
		checks:  deps.Checks,
		logger:  deps.Logger.With("component", "http"),
	}
	s.http = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.POST("/server", s.handleSubmit)
	r.GET("/server", s.handleHistory)

	prefix := "/" + cfg.Storage.PublicPrefix
	if local, ok := deps.Blobs.(*blobstore.Local); ok {
		r.Static(prefix, local.Root())
	} else {
		r.GET(path.Join(prefix, "*name"), s.handleBlob)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", s.handleReady)
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
