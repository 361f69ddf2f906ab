package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/siegeai/shapehist/integrations/histserver"
	"github.com/siegeai/shapehist/listener"
)

func main() {
	_ = godotenv.Load()
	level := getEnv("SHAPECAP_LOG", "info")

	err := setupLogging(level)
	if err != nil {
		slog.Error("could not init logging", "err", err)
		os.Exit(1)
	}

	fname := flag.String("r", "", "pcap or pcapng file to read packets from")
	server := flag.String("s", "", "histserver url to publish shapes to, prints to stdout if empty")
	interval := flag.Duration("i", 10*time.Second, "publish interval when -s is set")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *fname, *server, *interval, os.Stdout); err != nil {
		slog.Error("shapecap failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, fname, server string, interval time.Duration, out io.Writer) error {
	if fname == "" {
		return errors.New("missing required flag -r")
	}

	source, closer, err := listener.NewPacketSourceFile(fname)
	if err != nil {
		return err
	}
	defer closer.Close()

	l := listener.NewListener(source)
	if server == "" {
		if err := l.Run(ctx); err != nil {
			return err
		}
		return printOperations(out, l.Drain())
	}

	client, err := histserver.NewClient(server)
	if err != nil {
		return err
	}

	// publishing outlives the capture so the last shapes are sent
	publishCtx, stopPublish := context.WithCancel(context.Background())
	defer stopPublish()

	listening := &sync.WaitGroup{}
	publishing := &sync.WaitGroup{}
	listening.Add(1)
	publishing.Add(1)
	go l.ListenJob(ctx, listening)
	go l.PublishJob(publishCtx, publishing, client, interval)

	listening.Wait()
	stopPublish()
	publishing.Wait()

	if left := l.Pending(); left > 0 {
		return fmt.Errorf("could not publish %d shapes", left)
	}
	return ctx.Err()
}

func printOperations(out io.Writer, ops map[string]*listener.Operation) error {
	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	enc := json.NewEncoder(out)
	for _, k := range keys {
		if err := enc.Encode(ops[k]); err != nil {
			return err
		}
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
