// Command chatrelay runs the streaming completion relay.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/edukia/chatrelay"
	dirmemory "github.com/edukia/chatrelay/directory/memory"
	dirpostgres "github.com/edukia/chatrelay/directory/postgres"
	dirredis "github.com/edukia/chatrelay/directory/redis"
	"github.com/edukia/chatrelay/encoding/tiktokenenc"
	"github.com/edukia/chatrelay/meter"
	"github.com/edukia/chatrelay/provider/azuregate"
	"github.com/edukia/chatrelay/provider/openaidirect"
	"github.com/edukia/chatrelay/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("chatrelay exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := chatrelay.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	directory, cleanup, err := buildDirectory(ctx, cfg.Directory)
	if err != nil {
		return err
	}
	defer cleanup()

	direct := openaidirect.New(cfg.Providers.Direct.APIKey,
		directOptions(cfg.Providers.Direct)...)
	gated := azuregate.New(cfg.Providers.Gated.Endpoint, cfg.Providers.Gated.APIKey,
		gatedOptions(cfg.Providers.Gated)...)

	relay, err := chatrelay.New(cfg, direct, gated, directory,
		chatrelay.WithEncoderFactory(tiktokenenc.FromConfig(cfg)),
		chatrelay.WithMeter(meter.NewLogMeter(logger)),
	)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Use(server.HeaderIdentity)
	router.Mount("/", server.New(relay, server.WithLogger(logger)).Routes())

	addr := cfg.Listen
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func directOptions(cfg chatrelay.DirectProviderConfig) []openaidirect.Option {
	var opts []openaidirect.Option
	if cfg.BaseURL != "" {
		opts = append(opts, openaidirect.WithBaseURL(cfg.BaseURL))
	}
	return opts
}

func gatedOptions(cfg chatrelay.GatedProviderConfig) []azuregate.Option {
	var opts []azuregate.Option
	if cfg.APIVersion != "" {
		opts = append(opts, azuregate.WithAPIVersion(cfg.APIVersion))
	}
	return opts
}

func buildDirectory(ctx context.Context, cfg chatrelay.DirectoryConfig) (chatrelay.Directory, func(), error) {
	switch cfg.Driver {
	case "", "memory":
		var opts []dirmemory.Option
		if cfg.DefaultLimit > 0 {
			opts = append(opts, dirmemory.WithDefaultLimit(cfg.DefaultLimit))
		}
		return dirmemory.New(opts...), func() {}, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return dirredis.New(client), func() { client.Close() }, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("pgxpool: %w", err)
		}
		dir := dirpostgres.New(pool)
		if err := dir.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return dir, func() { pool.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown directory driver %q", cfg.Driver)
	}
}
