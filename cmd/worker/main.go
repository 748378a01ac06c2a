package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"examattendance/internal/attendance"
	"examattendance/internal/config"
	"examattendance/internal/export"
	"examattendance/internal/queue"
	"examattendance/internal/snapshot"
	"examattendance/internal/store"
)

// Worker consumes record announcements and keeps the export workbook in
// SNAPSHOT_DIR current. It shares the API's store and reloads it for every
// message, so it needs a store both processes can reach.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis, got %q", cfg.QueueBackend)
	}
	if cfg.StoreBackend == "memory" {
		log.Fatal("worker cannot read an in-memory store")
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	backend, closeStore, err := store.Open(ctx, store.Settings{
		Kind:        cfg.StoreBackend,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		Redis:       redisClient,
		RedisPrefix: cfg.RedisKeyPrefix,
	})
	if err != nil {
		log.Fatalf("store open failed: %v", err)
	}
	defer closeStore()

	codec, err := store.CodecByName(cfg.StoreCodec)
	if err != nil {
		log.Fatalf("store codec: %v", err)
	}
	repo := attendance.OpenRepository(ctx, backend, codec, cfg.StoreKey, nil)

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	w := &snapshot.Writer{Source: repo, Exporter: export.XLSX{}, Dir: cfg.SnapshotDir, Reload: true}
	if path, err := w.Write(ctx); err != nil {
		log.Printf("warning: initial snapshot failed: %v", err)
	} else {
		log.Printf("initial snapshot written to %s", path)
	}

	log.Println("worker started, waiting for messages...")
	w.Run(ctx, messages)
	log.Println("worker stopped")
}
