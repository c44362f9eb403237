package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/Vodeneev/surebet/internal/calculator/calculator"
	"github.com/Vodeneev/surebet/internal/calculator/feed"
	"github.com/Vodeneev/surebet/internal/pkg/config"
	"github.com/Vodeneev/surebet/internal/pkg/logging"
	"github.com/Vodeneev/surebet/internal/pkg/storage"
)

const (
	defaultConfigPath = "configs/production.yaml"
)

func main() {
	fmt.Println("Starting Surebet Calculator...")

	var configPath string
	var httpAddr string

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = defaultConfigPath
	}

	flag.StringVar(&configPath, "config", defaultConfig, "Path to config file (can be set via CONFIG_PATH env var)")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address, overrides http.addr from config")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Warning: %v", err)
	}

	fmt.Printf("Loading config from: %s\n", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}

	_, logCloser, err := logging.SetupLogger(&cfg.Logging, "calculator")
	if err != nil {
		log.Printf("Warning: failed to setup logging: %v, continuing with default logger", err)
	} else {
		defer logCloser.Close()
		slog.Info("Logging initialized", "service", "calculator", "level", cfg.Logging.Level)
	}

	if err := run(cfg); err != nil {
		slog.Error("Calculator failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Surebet Calculator stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := calculator.Deps{}

	if cfg.Postgres.DSN != "" {
		pgStorage, err := storage.NewPostgresSurebetStorage(&cfg.Postgres)
		if err != nil {
			return fmt.Errorf("failed to initialize PostgreSQL storage: %w", err)
		}
		defer pgStorage.Close()
		deps.Storage = pgStorage
		slog.Info("PostgreSQL surebet storage initialized")

		if cfg.Calculator.CleanOnStart {
			cleanCtx, cleanCancel := context.WithTimeout(ctx, 10*time.Second)
			if err := pgStorage.CleanSurebets(cleanCtx); err != nil {
				slog.Warn("Failed to clean surebets table on startup", "error", err)
			} else {
				slog.Info("Surebets table cleaned on startup")
			}
			cleanCancel()
		}
	} else if cfg.Calculator.AsyncEnabled {
		slog.Warn("Postgres DSN is not set: surebets will not be stored and alerts are not deduplicated")
	}

	if cfg.Redis.Addr != "" {
		cache, err := storage.NewRedisSurebetCache(&cfg.Redis)
		if err != nil {
			slog.Warn("Redis unavailable, serving snapshots from memory", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer cache.Close()
			deps.Cache = cache
			slog.Info("Redis snapshot cache initialized", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.SnapshotTTL)
		}
	}

	calcCfg := &cfg.Calculator
	if calcCfg.TelegramBotToken != "" && calcCfg.TelegramChatID != 0 {
		notifier, err := calculator.NewTelegramNotifier(calcCfg.TelegramBotToken, calcCfg.TelegramChatID)
		if err != nil {
			slog.Error("Telegram alerts disabled", "error", err)
		} else {
			defer notifier.Close()
			deps.Notifier = notifier
		}
	}

	hub := feed.NewHub(cfg.HTTP.AllowedOrigins)
	deps.Publisher = hub

	if calcCfg.ParserURL == "" {
		slog.Warn("parser_url is not set: only /surebets/calculate is available")
	} else {
		slog.Info("Using parser URL", "url", calcCfg.ParserURL)
	}
	surebetCalculator := calculator.NewSurebetCalculator(calcCfg, deps)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newRouter(cfg, surebetCalculator, hub),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		return surebetCalculator.Start(ctx)
	})
	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down calculator...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(cfg *config.Config, c *calculator.SurebetCalculator, hub *feed.Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	if len(cfg.HTTP.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("pong\n"))
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	// Websocket connections outlive the request timeout.
	r.Get("/surebets/stream", hub.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(cfg.HTTP.RequestTimeout))
		c.RegisterHTTP(r)
	})

	return r
}
