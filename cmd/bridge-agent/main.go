package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lexiview/bridge/bus"
	"github.com/lexiview/bridge/core/logx"
	"github.com/lexiview/bridge/internal/agentstatus"
	"github.com/lexiview/bridge/internal/config"
	"github.com/lexiview/bridge/internal/recovery"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.AgentConfig
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
		fmt.Printf("bridge-agent %s (%s, %s)\n", version, buildSHA, buildDate)
		return
	}
	if cfg.ContextID == "" {
		cfg.ContextID = uuid.NewString()
	}
	log := logx.Component("agent").With().Str("context_id", cfg.ContextID).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store bus.RecoveryStore
	if cfg.RedisAddr != "" {
		rs, err := recovery.NewRedisStore(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("connect recovery store")
		}
		defer func() { _ = rs.Close() }()
		store = rs
	} else {
		store = recovery.NewMemoryStore()
	}
	if needed, err := store.Needed(ctx); err == nil && needed {
		log.Warn().Msg("previous session ended in channel failure; resynchronizing")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.CallbackPort))
	if err != nil {
		log.Fatal().Err(err).Msg("callback listen")
	}
	callbackURL := fmt.Sprintf("http://%s/bus/deliver", ln.Addr())

	b := bus.New(bus.Options{
		HubURL:               cfg.HubURL,
		ContextID:            cfg.ContextID,
		Kind:                 cfg.Kind,
		CallbackURL:          callbackURL,
		ChannelTimeout:       cfg.ChannelTimeout,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		Store:                store,
	})

	// Features watching hub pushes. Controls that depend on the hub
	// flip with the lifecycle, mirroring what the panel UI does.
	b.Handle(bus.TypeNoteAdded, func(_ context.Context, msg bus.Message) bus.Message {
		log.Info().Any("note", msg.Payload).Msg("note added elsewhere")
		return bus.OK(nil)
	})
	b.Handle(bus.TypeAuthChanged, func(_ context.Context, msg bus.Message) bus.Message {
		log.Info().Any("auth", msg.Payload).Msg("auth state changed")
		return bus.OK(nil)
	})

	reporter := agentstatus.NewReporter(cfg.ContextID, cfg.Kind, b.State)
	b.Handle(bus.TypeAgentStatus, func(ctx context.Context, _ bus.Message) bus.Message {
		return bus.OK(reporter.Snapshot(ctx))
	})

	b.OnLifecycle(func(ev bus.Event) {
		switch ev.State {
		case bus.StateConnected:
			log.Info().Msg("hub connection restored; features enabled")
		case bus.StateDisconnected:
			log.Warn().Err(ev.Err).Int("attempt", ev.Attempt).Msg("hub connection lost; features disabled")
		case bus.StateFailed:
			log.Error().Err(ev.Err).Msg("hub unreachable; reload required")
		}
	})

	r := chi.NewRouter()
	r.Post("/bus/deliver", b.DeliverHandler())
	r.Get("/status", reporter.Handler())
	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("callback server")
		}
	}()

	log.Info().Str("hub", cfg.HubURL).Str("callback", callbackURL).Str("version", version).Msg("agent running")
	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("bus")
	}
}
