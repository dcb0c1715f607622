package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/runbox/internal/api"
	"github.com/itstheanurag/runbox/internal/config"
	"github.com/itstheanurag/runbox/internal/database"
	"github.com/itstheanurag/runbox/internal/executor"
	"github.com/itstheanurag/runbox/internal/languages"
	"github.com/itstheanurag/runbox/internal/limiter"
	"github.com/itstheanurag/runbox/internal/queue"
	"github.com/itstheanurag/runbox/internal/sandbox"
	"github.com/itstheanurag/runbox/internal/worker"
	"github.com/itstheanurag/runbox/internal/workspace"
)

type Server struct {
	conf        *config.Config
	logger      *zerolog.Logger
	httpServer  *http.Server
	db          *database.Database
	registry    *languages.Registry
	sandbox     sandbox.Sandbox
	executor    *executor.Executor
	queue       *queue.Manager
	rateLimiter *limiter.RateLimiter
	cancelFunc  context.CancelFunc
}

func New(
	conf *config.Config,
	logger *zerolog.Logger,
) (*Server, error) {
	registry := languages.NewRegistry()
	if conf.Executor.LanguagesFile != nil {
		if err := registry.LoadFile(*conf.Executor.LanguagesFile); err != nil {
			return nil, err
		}
	}

	sb, err := newSandbox(conf, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	var db *database.Database
	if conf.Db != nil {
		db, err = database.New(conf.Db, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	exec := executor.NewExecutor(
		registry,
		workspace.NewMaterializer(conf.Executor.WorkspaceRoot),
		sb,
		executor.Options{
			DefaultTimeLimit: conf.Executor.DefaultTimeLimit,
			MaxTimeLimit:     conf.Executor.MaxTimeLimit,
			CompileTimeLimit: conf.Executor.CompileTimeLimit,
			Policy:           conf.Executor.Policy,
		},
		logger,
	)
	q := queue.NewManager(conf.Executor.QueueSize)

	rl := limiter.NewRateLimiter(
		conf.Limiter.GlobalRPS,
		conf.Limiter.IPRPS,
		conf.Limiter.IPBurst,
		conf.Limiter.MaxConcurrent,
	)

	s := &Server{
		conf:        conf,
		logger:      logger,
		db:          db,
		registry:    registry,
		sandbox:     sb,
		executor:    exec,
		queue:       q,
		rateLimiter: rl,
	}

	s.httpServer = &http.Server{
		Addr:         ":" + conf.Server.Port,
		Handler:      s.router(),
		ReadTimeout:  time.Duration(conf.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(conf.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(conf.Server.IdleTimeout) * time.Second,
	}

	return s, nil
}

func newSandbox(conf *config.Config, logger *zerolog.Logger) (sandbox.Sandbox, error) {
	if conf.Docker == nil {
		return sandbox.NewLocalSandbox(logger, conf.Executor.MaxOutputBytes), nil
	}
	return sandbox.NewDockerSandbox(logger, sandbox.DockerConfig{
		DefaultImage:  conf.Docker.Image,
		MemoryLimitMb: conf.Docker.MemoryLimitMb,
		MaxOutput:     conf.Executor.MaxOutputBytes,
	})
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	handler := api.NewHandler(s.queue, s.executor, s.logger)
	handler.Register(r)
	handler.RegisterExecution(r, s.rateLimiter.Middleware())

	// Prometheus metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request handled")
	}
}

func (s *Server) Start() error {
	s.logger.Info().
		Str("port", s.conf.Server.Port).
		Str("backend", s.conf.Backend()).
		Int("workers", s.conf.Executor.Workers).
		Msg("starting HTTP server")

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel

	if s.conf.Docker != nil {
		// Ensure all required images are pulled
		if err := s.ensureImages(ctx); err != nil {
			return fmt.Errorf("failed to ensure docker images: %w", err)
		}
	}

	var recorder worker.Recorder
	if s.db != nil {
		if err := s.db.Migrate(ctx); err != nil {
			return err
		}
		recorder = s.db
	}

	worker.StartPool(ctx, s.conf.Executor.Workers, s.executor, s.queue, recorder, s.logger)
	s.rateLimiter.StartCleanup(ctx, 5*time.Minute)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}

	return nil
}

func (s *Server) ensureImages(ctx context.Context) error {
	langs := s.registry.List()
	uniqueImages := make(map[string]bool)
	for _, l := range langs {
		uniqueImages[l.Config.Image] = true
	}

	for img := range uniqueImages {
		if err := s.sandbox.EnsureImage(ctx, img); err != nil {
			return err
		}
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	// in-flight requests finish before the workers go away
	err := s.httpServer.Shutdown(ctx)

	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	if s.db != nil {
		s.db.Close()
	}

	if err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
