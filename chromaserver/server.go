// Package chromaserver runs the vector database HTTP server.
package chromaserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/hudson-blanoire/chroma-server/internal/api"
	"github.com/hudson-blanoire/chroma-server/internal/config"
	emb "github.com/hudson-blanoire/chroma-server/internal/embeddings"
	"github.com/hudson-blanoire/chroma-server/internal/factory"
	"github.com/hudson-blanoire/chroma-server/internal/health"
	"github.com/hudson-blanoire/chroma-server/internal/logger"
	"github.com/hudson-blanoire/chroma-server/internal/searchindex"
	"github.com/hudson-blanoire/chroma-server/internal/services"
	"github.com/hudson-blanoire/chroma-server/internal/store"
)

// Server binds the HTTP API to Host:Port. Constructing one has no side effects;
// configuration is read from the environment when Run is called.
type Server struct {
	Host string
	Port int

	// onListen, when set, receives the bound address before serving starts.
	onListen func(net.Addr)
}

func New(host string, port int) *Server {
	return &Server{Host: host, Port: port}
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Run starts the server and blocks until SIGINT/SIGTERM or a server failure.
func (s *Server) Run() error {
	return s.RunContext(context.Background())
}

// RunContext is Run with a caller-controlled parent context; cancelling it
// triggers a graceful shutdown.
func (s *Server) RunContext(parent context.Context) error {
	log := logger.New("chroma-server")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	logger.SetLevel(cfg.LogLevel)

	log.Info().
		Str("addr", s.Addr()).
		Str("environment", string(cfg.Environment)).
		Str("db_driver", cfg.DBDriver).
		Bool("persistent", cfg.IsPersistent).
		Str("persist_directory", cfg.PersistDirectory).
		Str("index_backend", cfg.IndexBackend).
		Str("embed_provider", cfg.EmbedProvider).
		Str("embed_model", cfg.EmbedModel).
		Msg("Chroma server starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, idx, embProvider, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("store close failed")
		}
	}()

	collections := services.NewCollectionService(st, idx, log)
	records := services.NewRecordService(st, idx, embProvider, services.RecordOptions{
		MaxBatchSize: cfg.MaxBatchSize,
		AllowReset:   cfg.AllowReset,
	}, log)

	// Start health checkers and block startup until dependencies report healthy
	svcHealth := startHealthCheckers(ctx, cfg, log, st, idx, embProvider)
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Strs("down", svcHealth.Unhealthy()).Msg("startup health check failed")
		return err
	}
	if err := records.WarmIndex(ctx); err != nil {
		log.Error().Stack().Err(err).Msg("search index warmup failed")
		return err
	}

	router := buildRouter(collections, records, svcHealth, log)

	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		log.Error().Stack().Err(err).Str("addr", s.Addr()).Msg("listen failed")
		return err
	}
	if s.onListen != nil {
		s.onListen(ln.Addr())
	}
	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, ln, log)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// initDependencies constructs the store, the search index and the optional embedding provider.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, searchindex.Index, emb.EmbeddingProvider, error) {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, nil, nil, err
	}

	idx, err := factory.NewSearchIndex(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Search index adapter unavailable")
		_ = st.Close()
		return nil, nil, nil, err
	}

	embProvider, err := factory.NewEmbeddingProvider(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Embedding provider unavailable")
		_ = st.Close()
		return nil, nil, nil, err
	}
	return st, idx, embProvider, nil
}

func buildRouter(collections *services.CollectionService, records *services.RecordService, svcHealth *health.ServiceHealthChecker, log zerolog.Logger) *mux.Router {
	return api.NewRouter(api.Deps{
		Collections: collections,
		Records:     records,
		IsHealthy:   svcHealth.IsHealthy,
		Log:         log,
	})
}

// startHealthCheckers starts component checkers and the service-level aggregator.
// The embedder only joins when one is configured.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, idx searchindex.Index, embProvider emb.EmbeddingProvider) *health.ServiceHealthChecker {
	var checkers []health.HealthChecker
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := store.NewStoreHealthChecker(st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers = append(checkers, storeChecker)

	idxChecker := searchindex.NewSearchIndexHealthChecker(idx, log, probeTimeout)
	go idxChecker.Start(ctx, interval)
	checkers = append(checkers, idxChecker)

	if embProvider != nil {
		embChecker := emb.NewProviderHealthChecker(embProvider, log, probeTimeout)
		go embChecker.Start(ctx, interval)
		checkers = append(checkers, embChecker)
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, ln net.Listener, log zerolog.Logger) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server starting")
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// startupHealthTimeout is twice the health interval, at least 60 seconds.
func startupHealthTimeout(healthIntervalSeconds int) time.Duration {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		timeout = 60
	}
	return time.Duration(timeout) * time.Second
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeout := startupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
