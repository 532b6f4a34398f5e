package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CTAG07/mimic/pkg/markov"
	"github.com/CTAG07/mimic/pkg/templating"
)

const shutdownTimeout = 10 * time.Second

// modelCache keeps loaded models in memory so generation requests do not
// hit the database. Entries are dropped whenever a model changes.
type modelCache struct {
	source   templating.ModelSource
	mu       sync.RWMutex
	models   map[string]*markov.Model
	versions map[string]uint64
}

func newModelCache(source templating.ModelSource) *modelCache {
	return &modelCache{
		source:   source,
		models:   make(map[string]*markov.Model),
		versions: make(map[string]uint64),
	}
}

// LoadModel returns the named model, loading it from the source on a miss.
// A load that overlaps an invalidate is returned to its caller but not
// cached, since it may predate the change.
func (c *modelCache) LoadModel(ctx context.Context, name string) (*markov.Model, error) {
	c.mu.RLock()
	m, ok := c.models[name]
	version := c.versions[name]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	m, err := c.source.LoadModel(ctx, name)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.versions[name] == version {
		c.models[name] = m
	}
	c.mu.Unlock()
	return m, nil
}

func (c *modelCache) invalidate(name string) {
	c.mu.Lock()
	delete(c.models, name)
	c.versions[name]++
	c.mu.Unlock()
}

// Server wires the store, the model cache, the templates and the API handlers together.
type Server struct {
	config    *Config
	logger    *slog.Logger
	markovAPI *MarkovAPI
	templates *templating.TemplateManager
	handler   http.Handler
}

// NewServer builds the API handler chain: request ids, then rate limiting,
// then token auth, then the routes.
func NewServer(config *Config, store *markov.Store, builder *markov.Builder, logger *slog.Logger) (*Server, error) {
	cache := newModelCache(store)
	tm, err := templating.NewTemplateManager(logger, cache, config.Templates.limits(), config.Templates.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	markovAPI := NewMarkovAPI(store, builder, cache, config.Markov, logger)
	templateAPI := NewTemplateAPI(tm, logger)

	apiMux := http.NewServeMux()
	markovAPI.RegisterRoutes(apiMux)
	templateAPI.RegisterRoutes(apiMux)
	apiMux.HandleFunc("/api/version", handleVersion)

	var handler http.Handler = apiMux
	handler = RequireToken(handler, config.Server.ApiToken)
	handler = RateLimit(handler, NewRateLimiter(config.Server.RateLimit, config.Server.RateBurst))
	handler = WithRequestID(handler, logger)

	return &Server{
		config:    config,
		logger:    logger,
		markovAPI: markovAPI,
		templates: tm,
		handler:   handler,
	}, nil
}

// ServeHTTP makes the Server usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Server.ApiAddr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Starting api server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Stopping api server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	s.logger.Info("Api server stopped.")
	return nil
}

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored models over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.config.Server.ApiAddr = addr
			}

			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server, err := NewServer(a.config, store, a.newBuilder(), a.logger)
			if err != nil {
				return err
			}
			if err = server.Run(ctx); err != nil {
				return err
			}
			a.logger.Info("mimic has shut down.")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server_config.api_addr)")
	return cmd
}

// handleVersion returns the application's build information.
func handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	respondWithJSON(w, http.StatusOK, currentVersion())
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: Failed to encode JSON response: %v\n", err)
		}
	}
}
