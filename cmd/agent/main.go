// The agent is the device-side half of the system: it owns the local
// cache, replays the sync queue, runs reconciliation cycles, and exposes
// the reconciled feed to the UI over a loopback HTTP API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Codeur974/sentiers-974-sub000/internal/config"
	"github.com/Codeur974/sentiers-974-sub000/internal/deletion"
	"github.com/Codeur974/sentiers-974-sub000/internal/localstore"
	"github.com/Codeur974/sentiers-974-sub000/internal/reconcile"
	"github.com/Codeur974/sentiers-974-sub000/internal/remoteapi"
	"github.com/Codeur974/sentiers-974-sub000/internal/syncqueue"
)

const refreshInterval = 2 * time.Minute

func main() {
	cfg := config.Load()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := run(cfg, signals, nil); err != nil {
		log.Printf("agent exited with error: %v", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

func run(cfg config.Config, signals <-chan os.Signal, listen ListenFunc) error {
	store, err := localstore.Open(cfg.LocalDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	queue, err := syncqueue.Open(store)
	if err != nil {
		return err
	}

	remote := remoteapi.NewClient(cfg.APIBaseURL, cfg.APIToken, cfg.DeviceID)
	svc := reconcile.NewService(store, remote, queue, cfg.UserID, cfg.DeviceID)
	coord := deletion.NewCoordinator(store, remote)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go refreshLoop(ctx, svc)

	app := newApp(svc, coord, cfg.PhotoDir)
	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(app, cfg.AgentPort)
	}()

	select {
	case <-signals:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return app.ShutdownWithContext(shutdownCtx)
}

// refreshLoop drains the queue and reconciles on a steady tick; a cycle
// already in flight makes the tick a no-op.
func refreshLoop(ctx context.Context, svc *reconcile.Service) {
	if err := svc.Refresh(ctx); err != nil {
		log.Printf("initial refresh: %v", err)
	}

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := svc.DrainQueue(ctx); err != nil {
				log.Printf("queue drain: %v", err)
			}
			if err := svc.Refresh(ctx); err != nil {
				log.Printf("refresh: %v", err)
			}
		}
	}
}
