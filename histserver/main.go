package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/siegeai/shapehist/server"
	"github.com/siegeai/shapehist/sink"
)

type config struct {
	addr    string
	level   string
	elastic sink.ElasticConfig
}

func loadConfig() config {
	_ = godotenv.Load()
	cfg := config{
		addr:  getEnv("HISTSERVER_ADDR", ":8080"),
		level: getEnv("HISTSERVER_LOG", "info"),
		elastic: sink.ElasticConfig{
			Index:    getEnv("HISTSERVER_ELASTIC_INDEX", "shapehist"),
			Username: getEnv("HISTSERVER_ELASTIC_USERNAME", ""),
			Password: getEnv("HISTSERVER_ELASTIC_PASSWORD", ""),
		},
	}
	if addrs := getEnv("HISTSERVER_ELASTIC_ADDR", ""); addrs != "" {
		for _, a := range strings.Split(addrs, ",") {
			cfg.elastic.Addresses = append(cfg.elastic.Addresses, strings.TrimSpace(a))
		}
	}
	return cfg
}

func main() {
	cfg := loadConfig()

	err := setupLogging(cfg.level)
	if err != nil {
		slog.Error("could not init logging", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("histserver failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func newServer(cfg config) (*server.Server, error) {
	var opts []server.Option
	if len(cfg.elastic.Addresses) > 0 {
		es, err := sink.NewElasticSink(cfg.elastic)
		if err != nil {
			return nil, err
		}
		opts = append(opts, server.WithSink(es))
		slog.Info("snapshots enabled", "index", cfg.elastic.Index)
	}
	return server.New(opts...), nil
}

func run(ctx context.Context, cfg config) error {
	s, err := newServer(cfg)
	if err != nil {
		return err
	}

	hs := &http.Server{
		Addr:              cfg.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.addr)
		errs <- hs.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func setupLogging(level string) error {
	var logLevel slog.Level
	err := logLevel.UnmarshalText([]byte(level))
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(h))
	return err
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
