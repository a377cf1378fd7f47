package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	medagent "github.com/wilson-pinto/medical-agent-poc"
	"github.com/wilson-pinto/medical-agent-poc/internal/artifact"
	"github.com/wilson-pinto/medical-agent-poc/internal/client"
	"github.com/wilson-pinto/medical-agent-poc/internal/collab"
	"github.com/wilson-pinto/medical-agent-poc/internal/config"
	"github.com/wilson-pinto/medical-agent-poc/internal/engine"
	"github.com/wilson-pinto/medical-agent-poc/internal/events"
	"github.com/wilson-pinto/medical-agent-poc/internal/llm"
	"github.com/wilson-pinto/medical-agent-poc/internal/local"
	"github.com/wilson-pinto/medical-agent-poc/internal/metrics"
	"github.com/wilson-pinto/medical-agent-poc/internal/retry"
	"github.com/wilson-pinto/medical-agent-poc/internal/server"
	"github.com/wilson-pinto/medical-agent-poc/internal/session"
	"github.com/wilson-pinto/medical-agent-poc/internal/stages"
	"github.com/wilson-pinto/medical-agent-poc/pkg/log"
)

type medAgent struct {
	cfg        *config.Config
	store      session.Store
	redis      *redis.Client
	hub        *events.Hub
	sink       events.Sink
	relay      *events.Relay
	artifacts  *artifact.BlobStore
	engine     *engine.Engine
	apiServer  *server.Server
	httpServer *http.Server
}

var (
	ErrCreateStore     = errors.New("failed to create session store")
	ErrOpenArtifacts   = errors.New("failed to open artifact store")
	ErrLoadCatalog     = errors.New("failed to load catalog")
	ErrCreateServices  = errors.New("failed to create service client")
	ErrBuildGraph      = errors.New("failed to build stage graph")
	ErrInvalidSettings = errors.New("invalid configuration")
)

func main() {
	configPath := flag.StringP("config", "c", "",
		"TOML configuration file (or set CONFIG_PATH env var)")
	port := flag.IntP("port", "p", 0, "API port (overrides API_PORT)")
	logLevel := flag.String("log-level", "",
		"log level: debug, info, warn, error (overrides LOG_LEVEL)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath, *port, *logLevel)
	if err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &medAgent{cfg: cfg}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func loadConfig(path string, port int, level string) (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if port != 0 {
		cfg.APIPort = port
	}
	if level != "" {
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return cfg, nil
}

func (s *medAgent) run() error {
	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	if err := s.initializeStores(ctx); err != nil {
		return err
	}
	defer s.closeStores()

	if err := s.initializeEngine(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.serve()
	})
	if s.relay != nil {
		g.Go(func() error {
			return s.relay.Run(gctx, nil)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})
	return g.Wait()
}

func (s *medAgent) setupLogging() {
	level := log.ParseLevel(s.cfg.LogLevel)
	logger := log.New(os.Stderr, log.Options{
		Service: medagent.Name,
		Env:     os.Getenv("ENV"),
		Version: medagent.Version,
		Format:  s.cfg.LogFormat,
		Level:   level,
	})
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)
	metrics.BuildInfo.WithLabelValues(medagent.Version).Set(1)

	slog.Info("Medical agent starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("store_backend", s.cfg.Store.Backend),
		slog.String("events_backend", s.cfg.Events.Backend),
		slog.String("artifact_bucket", s.cfg.Artifact.BucketURL),
		slog.Int("max_steps", s.cfg.MaxSteps),
		slog.Int("iteration_limit", s.cfg.IterationLimit),
		slog.Bool("llm_enabled", s.cfg.LLM.Enabled),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *medAgent) initializeStores(ctx context.Context) error {
	rc := s.cfg.Store.Redis
	if s.cfg.Store.Backend == config.BackendRedis ||
		s.cfg.Events.Backend == config.BackendRedis {
		client, err := session.DialRedis(ctx, rc.Addr, rc.Password, rc.DB)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCreateStore, err)
		}
		s.redis = client
	}

	switch s.cfg.Store.Backend {
	case config.BackendRedis:
		s.store = session.NewRedisStore(s.redis, rc.Prefix)
	case config.BackendPostgres:
		store, err := session.NewPostgresStore(ctx, s.cfg.Store.PostgresURL)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCreateStore, err)
		}
		s.store = store
	default:
		s.store = session.NewMemoryStore()
	}

	s.hub = events.NewHub(
		events.WithBuffer(s.cfg.SubscriberBuffer),
		events.WithDropHandler(metrics.ObserveDrop),
	)
	if s.cfg.Events.Backend == config.BackendRedis {
		s.sink = events.NewRedisSink(s.redis, rc.Prefix)
		s.relay = events.NewRelay(s.redis, rc.Prefix, s.hub)
	} else {
		s.sink = s.hub
	}

	arts, err := artifact.Open(
		ctx, s.cfg.Artifact.BucketURL, s.cfg.Artifact.Prefix,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOpenArtifacts, err)
	}
	s.artifacts = arts
	return nil
}

func (s *medAgent) initializeEngine() error {
	cat := local.DefaultCatalog()
	if s.cfg.CatalogPath != "" {
		var err error
		if cat, err = local.LoadCatalog(s.cfg.CatalogPath); err != nil {
			return fmt.Errorf("%w: %w", ErrLoadCatalog, err)
		}
	}

	deps, err := s.collaborators(cat)
	if err != nil {
		return err
	}

	g, err := stages.Build(local.New(cat))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildGraph, err)
	}

	eng, err := engine.New(s.cfg, engine.Dependencies{
		Graph:         g,
		Store:         s.store,
		Sink:          metrics.CountEvents(s.sink),
		Collaborators: deps,
		Observer:      metrics.Observer{},
	})
	if err != nil {
		return err
	}
	s.engine = eng
	return nil
}

// collaborators starts from the local set and swaps in the remote
// services and the model where configured
func (s *medAgent) collaborators(
	cat *local.Catalog,
) (*collab.Collaborators, error) {
	deps := local.New(cat)
	deps.Artifacts = s.artifacts

	svc := s.cfg.Services
	if svc.BaseURL != "" {
		hc, err := client.NewHTTPClient(client.Config{
			BaseURL: svc.BaseURL,
			Timeout: svc.Timeout.Std(),
			Retry: retry.Config{
				MaxAttempts: svc.MaxAttempts,
				BaseBackoff: svc.BaseBackoff.Std(),
				MaxBackoff:  svc.MaxBackoff.Std(),
			},
			RateLimit: svc.RateLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCreateServices, err)
		}
		deps.Search = hc
		deps.Rerank = hc
		deps.Validate = hc
		slog.Info("Remote services enabled",
			slog.String("base_url", svc.BaseURL))
	}

	if s.cfg.LLM.Enabled {
		model := llm.New(s.cfg.LLM.Model, s.cfg.LLM.MaxTokens)
		deps.Questions = llm.NewPlanner(model)
		deps.Rerank = llm.NewReranker(model)
		slog.Info("Model collaborators enabled",
			slog.String("model", s.cfg.LLM.Model))
	}
	return deps, nil
}

func (s *medAgent) serve() error {
	s.apiServer = server.NewServer(s.engine, s.hub,
		server.WithArtifacts(s.artifacts),
	)
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler:           s.apiServer.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("HTTP server starting",
		slog.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *medAgent) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout.Std(),
	)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Error("Shutdown failed", log.Error(err))
		}
	}
	if s.apiServer != nil {
		s.apiServer.CloseWebSockets()
	}
	s.hub.Close()

	slog.Info("Server exited")
}

func (s *medAgent) closeStores() {
	if s.artifacts != nil {
		_ = s.artifacts.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Error("Store shutdown failed", log.Error(err))
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}
