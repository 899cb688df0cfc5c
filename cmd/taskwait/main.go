// taskwait blocks until an asynchronous generation task finishes and prints
// the normalized result as JSON. Useful for scripts that submit through the
// gateway but do not want to poll themselves.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/af-corp/muse-gateway/internal/config"
	"github.com/af-corp/muse-gateway/internal/poll"
	"github.com/af-corp/muse-gateway/internal/router"
	"github.com/af-corp/muse-gateway/internal/router/adapters"
	"github.com/af-corp/muse-gateway/internal/upstream"
)

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	provider := flag.String("provider", "", "generation provider to query (e.g. wanx, cogvideo)")
	taskID := flag.String("task", "", "vendor task id to wait for")
	maxWait := flag.Duration("max-wait", 0, "overall wait budget (default from config)")
	interval := flag.Duration("interval", 0, "poll interval (default from config)")
	flag.Parse()

	if *taskID == "" || *provider == "" {
		fmt.Fprintln(os.Stderr, "usage: taskwait -provider <name> -task <id>")
		os.Exit(2)
	}

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "load configuration:", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	if *maxWait == 0 {
		*maxWait = cfg.Polling.MaxWait
	}
	if *interval == 0 {
		*interval = cfg.Polling.Interval
	}

	retry := upstream.Policy{
		Attempts:  cfg.Retry.MaxAttempts,
		BaseDelay: cfg.Retry.BaseDelay,
	}
	registry := router.BuildFromConfig(loader.Providers(), retry)

	var querier adapters.TaskQuerier
	if img, ok := registry.Image(); ok && img.Name() == *provider {
		querier = img
	}
	if vid, ok := registry.Video(); ok && vid.Name() == *provider {
		querier = vid
	}
	if querier == nil {
		fmt.Fprintf(os.Stderr, "no generation provider named %q configured\n", *provider)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	res, err := poll.Wait(ctx, querier, *taskID, *maxWait, *interval)
	if err != nil {
		fmt.Fprintln(os.Stderr, "wait failed:", err)
		os.Exit(1)
	}

	out := struct {
		Result  any    `json:"result"`
		Elapsed string `json:"elapsed"`
	}{Result: res, Elapsed: time.Since(start).Round(time.Millisecond).String()}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		os.Exit(1)
	}
}
