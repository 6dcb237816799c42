package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studioregister/internal/config"
	"studioregister/internal/logger"
	"studioregister/internal/queue"
	"studioregister/internal/store"
	"studioregister/internal/syncer"
)

// Worker drains sync triggers and keeps the remote mirror converged on an
// interval, so the api process never has to wait on the network.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := logger.New("worker", cfg.LogDir, logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		lg.Infof("shutdown signal received")
		cancel()
	}()

	if cfg.DatabaseURL == "" {
		log.Fatal("worker needs DATABASE_URL: without a remote mirror there is nothing to sync")
	}

	local, err := store.OpenLocal(cfg.LocalDBPath, lg)
	if err != nil {
		log.Fatalf("local store: %v", err)
	}
	defer local.Close()

	remote, err := store.OpenRemote(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("remote mirror connect failed: %v", err)
	}
	defer remote.Close()

	var redisClient *store.Redis
	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		// Memory queue triggers stay inside the api process; this worker
		// still contributes interval syncs.
		q = queue.NewInMemory(64)
	} else {
		redisClient = store.NewRedis(cfg.RedisAddr)
		q = queue.NewRedisQueue(redisClient.Client, "register:sync")
	}
	defer redisClient.Close()

	sync := syncer.New(local, remote, nil, lg)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	lg.Infof("worker started, sync interval %s", cfg.SyncInterval)
	sync.SyncAll(ctx)

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				lg.Infof("worker stopped")
				return
			}
			lg.Debugf("trigger %s (%s)", msg.Type, string(msg.Body))
			sync.SyncAll(ctx)
		case <-ticker.C:
			sync.SyncAll(ctx)
		case <-ctx.Done():
			lg.Infof("worker stopped")
			return
		}
	}
}
