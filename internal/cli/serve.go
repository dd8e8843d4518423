// Package cli wires the gateway's cobra command tree: "serve" brings
// up the HTTP surface described in spec §6, "config validate" sanity
// checks a config file without starting a listener. Grounded on
// simple-container-com-api's cmd/sc/main.go + pkg/cmd/root_cmd split (one thin
// cmd/<binary>/main.go building a *cobra.Command tree out of
// constructors that live under a package, here internal/cli instead
// of pkg/cmd since this module has no public API surface to export).
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"

	"github.com/chenpu17/cc-gateway/internal/config"
	"github.com/chenpu17/cc-gateway/internal/connector"
	"github.com/chenpu17/cc-gateway/internal/endpoints"
	"github.com/chenpu17/cc-gateway/internal/logsink"
	"github.com/chenpu17/cc-gateway/internal/pipeline"
	"github.com/chenpu17/cc-gateway/internal/ratelimit"
	"github.com/chenpu17/cc-gateway/internal/telemetry"
)

// NewServeCmd builds the "serve" subcommand: load config, start the
// file watcher, and bring up the chi-routed HTTP server until an
// interrupt/TERM signal requests a graceful shutdown.
func NewServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to ~/.cc-gateway/config.yaml)")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store := config.NewStore(cfg)

	watchPath := configPath
	if watchPath == "" {
		watchPath = config.ConfigPath()
	}
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go config.NewWatcher(watchPath, store, slog.Default()).Run(watchCtx)

	conn := connector.New(nil)
	sink := logsink.NewStderrSink(nil)
	tel := telemetry.DefaultSettings()

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	pl := pipeline.New(store, conn, sink, tel)

	router := newHTTPRouter(pl, limiter)

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: router}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	shutdownErr := make(chan error, 1)
	go func() {
		<-sigCh
		cancelWatch()
		shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shCancel()
		shutdownErr <- srv.Shutdown(shCtx)
	}()

	slog.Info("gateway listening", "addr", addr, "activeRequests", pl.ActiveRequests())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-shutdownErr
}

// newHTTPRouter builds the full route table (spec §6 "External
// interfaces"): the fixed Anthropic/OpenAI surfaces plus a catch-all
// NotFound handler that resolves custom endpoints dynamically against
// the live config snapshot on every request (spec §9's REDESIGN FLAG:
// "a single catch-all route ... plus an in-process routing table",
// already implemented by internal/endpoints.Resolve).
func newHTTPRouter(pl *pipeline.Pipeline, limiter *ratelimit.Limiter) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	if limiter != nil {
		r.Use(rateLimitMiddleware(limiter))
	}

	r.Post("/v1/messages", dispatch(pl, "anthropic", pipeline.ProtocolAnthropic))
	r.Post("/v1/v1/messages", dispatch(pl, "anthropic", pipeline.ProtocolAnthropic)) // legacy double prefix, spec §6
	r.Post("/v1/chat/completions", dispatch(pl, "openai", pipeline.ProtocolOpenAIChat))
	r.Post("/v1/responses", dispatch(pl, "openai", pipeline.ProtocolOpenAIResponses))
	r.Get("/v1/models", modelsHandler(pl))

	r.NotFound(customEndpointHandler(pl))
	return r
}

func dispatch(pl *pipeline.Pipeline, endpointID string, protocol pipeline.Protocol) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pl.Handle(w, r, endpointID, protocol)
	}
}

func modelsHandler(pl *pipeline.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeModelList(w, pl)
	}
}

func writeModelList(w http.ResponseWriter, pl *pipeline.Pipeline) {
	cfg := pl.Store.Load()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(endpoints.BuildModelList(cfg))
}

// customEndpointHandler implements C7's dynamic resolution (spec
// §4.7): it is installed as the router's catch-all NotFound handler so
// a changed or deleted custom endpoint is reflected on the very next
// request rather than requiring a route table rebuild.
func customEndpointHandler(pl *pipeline.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := pl.Store.Load()
		match, ok := endpoints.Resolve(cfg, r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}
		switch match.Protocol {
		case endpoints.ProtoModels:
			writeModelList(w, pl)
		case endpoints.ProtoAnthropic:
			pl.Handle(w, r, match.EndpointID, pipeline.ProtocolAnthropic)
		case endpoints.ProtoOpenAIChat:
			pl.Handle(w, r, match.EndpointID, pipeline.ProtocolOpenAIChat)
		case endpoints.ProtoOpenAIResponses:
			pl.Handle(w, r, match.EndpointID, pipeline.ProtocolOpenAIResponses)
		default:
			http.NotFound(w, r)
		}
	}
}

// rateLimitMiddleware rejects a request with 429 when the resolved
// API key has exhausted its token bucket (§12 supplemented feature).
// Keying is best-effort at this layer: the bearer/x-api-key header
// value itself, since the pipeline's own key resolution happens later
// against the live config snapshot.
func rateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Authorization")
			if key == "" {
				key = r.Header.Get("x-api-key")
			}
			if key != "" && !limiter.Allow(key) {
				http.Error(w, `{"type":"error","error":{"type":"rate_limit_error","message":"rate limit exceeded"}}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
