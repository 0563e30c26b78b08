package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"
)

func main() {
	redisAddr := flag.String("redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address")
	limit := flag.Int("limit", 0, "batch size for triggered sweeps")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: jobsctl [flags] trigger <job> | stats | failed\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cli := NewJobsCLI(*redisAddr)
	defer func() {
		if err := cli.Close(); err != nil {
			logger.Warn("close", slog.Any("error", err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			flag.Usage()
			os.Exit(2)
		}
		info, err := cli.Trigger(ctx, args[1], *limit)
		if err != nil {
			logger.Error("trigger", slog.String("job", args[1]), slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := cli.InspectQueue()
		if err != nil {
			logger.Error("inspect queue", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "failed":
		tasks, err := cli.ListFailed(20)
		if err != nil {
			logger.Error("list failed", slog.Any("error", err))
			os.Exit(1)
		}
		for _, t := range tasks {
			fmt.Printf("%s %s retried=%d last_error=%q\n", t.ID, t.Type, t.Retried, t.LastErr)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
