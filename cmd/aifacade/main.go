package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/relaydeck/aifacade/internal/config"
	"github.com/relaydeck/aifacade/internal/credentials"
	"github.com/relaydeck/aifacade/internal/httpapi"
	"github.com/relaydeck/aifacade/internal/journal"
	"github.com/relaydeck/aifacade/internal/ledger"
	"github.com/relaydeck/aifacade/internal/logging"
	"github.com/relaydeck/aifacade/internal/metrics"
	"github.com/relaydeck/aifacade/internal/providers"
	"github.com/relaydeck/aifacade/internal/providers/anthropic"
	"github.com/relaydeck/aifacade/internal/providers/localfallback"
	"github.com/relaydeck/aifacade/internal/providers/openai"
	"github.com/relaydeck/aifacade/internal/router"
	"github.com/relaydeck/aifacade/internal/scheduler"
	"github.com/relaydeck/aifacade/internal/tracing"

	"github.com/go-chi/chi/v5"
)

// version is set at build time via -ldflags.
var version = "dev"

// compiledProviders lists every adapter this binary was built with; a
// deployment enables/disables and reprioritizes them via
// AIFACADE_PROVIDER_<NAME>_ENABLED rather than recompiling.
var compiledProviders = []string{"openai", "anthropic", "localfallback"}

// runHealthCheck performs an HTTP health check against the given address.
// addr should be in the form ":port" or "host:port".
func runHealthCheck(addr string) error {
	resp, err := http.Get(fmt.Sprintf("http://localhost%s/healthz", addr))
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// buildAdapter constructs the Provider for one compiled provider name. It
// returns nil for a disabled provider or one missing a required API key, so
// callers can skip it without treating either as fatal.
func buildAdapter(pc config.ProviderConfig, apiKey string) providers.Provider {
	if !pc.Enabled {
		return nil
	}
	timeout := time.Duration(pc.TimeoutSecs) * time.Second

	switch pc.Name {
	case "openai":
		if apiKey == "" {
			return nil
		}
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com"
		}
		return openai.New(pc.Name, apiKey, baseURL, openai.WithTimeout(timeout))
	case "anthropic":
		if apiKey == "" {
			return nil
		}
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = "https://api.anthropic.com"
		}
		return anthropic.New(pc.Name, apiKey, baseURL, anthropic.WithTimeout(timeout))
	case "localfallback":
		if pc.BaseURL == "" {
			return nil
		}
		return localfallback.New(pc.Name, pc.BaseURL, localfallback.WithTimeout(timeout))
	default:
		return nil
	}
}

// atomicHandler lets SIGHUP swap in a freshly built façade router without
// restarting the listener.
type atomicHandler struct {
	h atomic.Value // http.Handler
}

func (a *atomicHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.h.Load().(http.Handler).ServeHTTP(w, r)
}

func (a *atomicHandler) store(h http.Handler) {
	a.h.Store(h)
}

// buildHandler loads config and assembles the full dependency graph into a
// single http.Handler, returning the scheduler so the caller can stop it on
// shutdown or reload.
func buildHandler(logger *slog.Logger) (http.Handler, *scheduler.Scheduler, config.Config, error) {
	cfg, err := config.Load(compiledProviders)
	if err != nil {
		return nil, nil, config.Config{}, fmt.Errorf("config error: %w", err)
	}

	var creds *credentials.Store
	if cfg.CredentialsFile != "" {
		creds, err = credentials.Load(cfg.CredentialsFile, cfg.CredentialsPassphrase)
		if err != nil {
			return nil, nil, config.Config{}, fmt.Errorf("credentials error: %w", err)
		}
	} else {
		creds = credentials.Empty()
	}

	provs := make(map[string]providers.Provider)
	for _, pc := range cfg.Providers {
		apiKey := pc.APIKey
		if apiKey == "" {
			apiKey, _ = creds.Get(pc.Name)
		}
		if adapter := buildAdapter(pc, apiKey); adapter != nil {
			provs[pc.Name] = adapter
		}
	}

	reg := metrics.New()

	cfg.Journal.RolloverCounter = reg.JournalRollovers.WithLabelValues("journal")
	cfg.History.RolloverCounter = reg.JournalRollovers.WithLabelValues("history")

	internalJournal, err := journal.New[journal.Document](cfg.Journal)
	if err != nil {
		return nil, nil, config.Config{}, fmt.Errorf("journal init error: %w", err)
	}
	history, err := journal.New[journal.Document](cfg.History)
	if err != nil {
		return nil, nil, config.Config{}, fmt.Errorf("history init error: %w", err)
	}

	rt := router.New(cfg.RouterConfig(), ledger.New(), internalJournal, logger, provs, cfg.Priorities(), reg)

	sched, err := scheduler.New(cfg.RolloverCron, logger, map[string]scheduler.Rollover{
		"journal": internalJournal,
		"history": history,
	})
	if err != nil {
		return nil, nil, config.Config{}, fmt.Errorf("scheduler init error: %w", err)
	}
	sched.Start()

	mux := chi.NewRouter()
	httpapi.MountRoutes(mux, httpapi.Dependencies{
		Router:      rt,
		History:     history,
		Metrics:     reg,
		Logger:      logger,
		CORSOrigins: cfg.CORSOrigins,
	})

	return mux, sched, cfg, nil
}

func main() {
	// Built-in health check mode for Docker HEALTHCHECK (distroless has no curl).
	if len(os.Args) > 1 && os.Args[1] == "-healthcheck" {
		addr := os.Getenv("AIFACADE_LISTEN_ADDR")
		if addr == "" {
			addr = ":8080"
		}
		if err := runHealthCheck(addr); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	log.Printf("aifacade version %s", version)

	logger := logging.Setup(os.Getenv("AIFACADE_LOG_LEVEL"))

	handler, sched, cfg, err := buildHandler(logger)
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}

	var shutdownTracing func(context.Context) error = func(context.Context) error { return nil }
	if cfg.OTelEnabled {
		shutdownTracing, err = tracing.Setup(tracing.Config{
			Enabled:     true,
			Endpoint:    cfg.OTelEndpoint,
			ServiceName: cfg.OTelServiceName,
		})
		if err != nil {
			log.Fatalf("tracing init error: %v", err)
		}
	}

	active := &atomicHandler{}
	active.store(handler)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           active,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		WriteTimeout:      300 * time.Second, // allow long-running generate calls
	}

	go func() {
		log.Printf("aifacade listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen error: %v", err)
		}
	}()

	// SIGHUP: hot-reload configuration without restarting the listener.
	currentScheduler := sched
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			log.Printf("SIGHUP received, reloading configuration...")
			newHandler, newSched, _, err := buildHandler(logger)
			if err != nil {
				log.Printf("config reload error: %v (keeping current config)", err)
				continue
			}
			currentScheduler.Stop()
			currentScheduler = newSched
			active.store(newHandler)
			log.Printf("configuration reloaded")
		}
	}()

	// Graceful shutdown: drain in-flight requests, then close resources.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Printf("shutting down (draining in-flight requests)...")

	currentScheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("tracing shutdown error: %v", err)
	}
	log.Printf("shutdown complete")
}
