package main

import (
	"bytes"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/siegeai/shapehist/fake"
	"github.com/siegeai/shapehist/integrations/histserver"
)

// histload uploads random documents to a histserver.
func main() {
	_ = godotenv.Load()
	level := getEnv("HISTLOAD_LOG", "info")

	err := setupLogging(level)
	if err != nil {
		slog.Error("could not init logging", "err", err)
		os.Exit(1)
	}

	server := flag.String("s", getEnv("HISTLOAD_SERVER", "http://localhost:8080"), "histserver url")
	batches := flag.Int("n", 10, "number of uploads, 0 runs until interrupted")
	size := flag.Int("b", 100, "documents per upload")
	seed := flag.Int64("seed", time.Now().UnixNano(), "generator seed")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *server, *batches, *size, *seed); err != nil && ctx.Err() == nil {
		slog.Error("histload failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, server string, batches, size int, seed int64) error {
	client, err := histserver.NewClient(server)
	if err != nil {
		return err
	}

	id, err := client.Create(ctx)
	if err != nil {
		return err
	}
	slog.Info("created histogram", "id", id)

	g := fake.New(seed)
	buf := &bytes.Buffer{}
	for i := 0; batches == 0 || i < batches; i++ {
		buf.Reset()
		if err := g.NDJSON(buf, size); err != nil {
			return err
		}

		res, err := client.AppendValues(ctx, id, buf)
		if err != nil {
			return err
		}
		slog.Info("uploaded", "id", id, "folded", res.Folded, "observed", res.Observed)
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
