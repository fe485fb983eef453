// Command renderqueued runs the renderqueue core: the durable job
// queue's scheduler, stall recoverer, retention and stats workers, and
// the webhook dispatcher, wired against a shared SQLite store.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/renderqueue/core/config"
	"github.com/renderqueue/core/queue"
)

func main() {
	configPath := flag.String("config", "", "path to renderqueue.toml")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, log); err != nil {
		log.Error("renderqueued exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, log *slog.Logger) error {
	watcher, err := config.NewWatcher(configPath, log)
	if err != nil {
		return err
	}
	defer watcher.Close()

	app, err := NewApp(ctx, watcher.Get(), log, registerHandlers)
	if err != nil {
		return err
	}
	if err := app.Start(ctx, log); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutdown signal received, draining")
	app.Stop(log, 30*time.Second)
	return nil
}

// registerHandlers wires the host process's step handlers into
// registry. renderqueued itself never interprets render payloads; the
// actual render/mux/upload pipeline is registered here by whichever
// process type embeds this binary.
func registerHandlers(registry *queue.HandlerRegistry) {
	_ = registry
}
