package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiview/bridge/bus"
	"github.com/lexiview/bridge/core/logx"
	"github.com/lexiview/bridge/internal/config"
	"github.com/lexiview/bridge/internal/features"
	"github.com/lexiview/bridge/internal/hub"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.HubConfig
	// Resolve config with precedence: defaults < file < env < args
	cfg.SetDefaults()
	cfg.ApplyEnv()
	for i := 1; i < len(os.Args); i++ {
		a := os.Args[i]
		if a == "--config" && i+1 < len(os.Args) {
			cfg.ConfigFile = os.Args[i+1]
			break
		}
		if strings.HasPrefix(a, "--config=") {
			cfg.ConfigFile = strings.TrimPrefix(a, "--config=")
			break
		}
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()
	logx.Configure(cfg.LogLevel)

	if *showVersion {
		fmt.Printf("bridge-hub %s (%s, %s)\n", version, buildSHA, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := hub.NewRegistry()
	handlers := bus.NewHandlerRegistry()
	broadcaster := hub.NewBroadcaster(registry, nil)

	features.RegisterPing(handlers)
	auth := features.NewAuthState()
	auth.Register(handlers)
	notes := features.NewNoteStore(func(ctx context.Context, msg bus.Message) {
		res := broadcaster.Broadcast(ctx, msg)
		logx.Log.Debug().Str("type", msg.Type).Int("delivered", res.Delivered).
			Int("no_receiver", res.NoReceiver).Int("failed", res.Failed).Msg("broadcast")
	})
	notes.Register(handlers)

	hub.RegisterMetrics(prometheus.DefaultRegisterer)
	hub.SetBuildInfo(version, buildSHA, buildDate)

	go func() {
		ticker := time.NewTicker(hub.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				registry.PruneExpired(cfg.HeartbeatExpiry)
			case <-ctx.Done():
				return
			}
		}
	}()

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Get("/api/bus/ws", hub.WSHandler(registry, handlers))
	r.Post("/api/bus/call", hub.CallHandler(handlers))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		bus.WriteJSON(w, map[string]any{"status": "ok", "contexts": registry.Count()})
	})

	mainAddr := fmt.Sprintf(":%d", cfg.Port)
	if cfg.MetricsAddr == "" || cfg.MetricsAddr == mainAddr {
		r.Handle("/metrics", promhttp.Handler())
	} else {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		msrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = msrv.Shutdown(shutdownCtx)
		}()
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
			if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server")
			}
		}()
	}

	srv := &http.Server{Addr: mainAddr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logx.Log.Info().Int("port", cfg.Port).Str("version", version).Msg("bridge hub listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logx.Log.Fatal().Err(err).Msg("hub server")
	}
}
