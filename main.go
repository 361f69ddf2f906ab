package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/siegeai/shapehist/bucket"
	"github.com/siegeai/shapehist/sink"
	"github.com/siegeai/shapehist/stream"
)

// shapehist reads newline-delimited JSON values from stdin and writes the
// shape histogram of all of them to stdout.
func main() {
	_ = godotenv.Load()
	level := getEnv("SHAPEHIST_LOG", "warn")

	err := setupLogging(level)
	if err != nil {
		slog.Error("could not init logging", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout); err != nil {
		slog.Error("could not build histogram", "err", err)
		stop()
		os.Exit(1)
	}
}

// run writes nothing to out unless every input line folded.
func run(ctx context.Context, in io.Reader, out io.Writer) error {
	r, err := stream.NewDecodedReader(in)
	if err != nil {
		return err
	}
	defer r.Close()

	b, err := stream.Fold(ctx, r, bucket.New())
	if err != nil {
		return err
	}
	slog.Debug("folded", "values", b.Total())

	return sink.NewWriterSink(out).Write(ctx, "", b)
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
