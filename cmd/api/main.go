package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"examattendance/internal/attendance"
	"examattendance/internal/auth"
	"examattendance/internal/config"
	"examattendance/internal/export"
	"examattendance/internal/handler"
	"examattendance/internal/httpmiddleware"
	"examattendance/internal/metrics"
	"examattendance/internal/queue"
	"examattendance/internal/session"
	"examattendance/internal/snapshot"
	"examattendance/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *store.Redis
	if cfg.StoreBackend == "redis" || cfg.QueueBackend != "memory" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
	}

	backend, closeStore, err := store.Open(ctx, store.Settings{
		Kind:        cfg.StoreBackend,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		Redis:       redisClient,
		RedisPrefix: cfg.RedisKeyPrefix,
	})
	if err != nil {
		return err
	}
	defer closeStore()
	log.Printf("record store: %s", cfg.StoreBackend)

	codec, err := store.CodecByName(cfg.StoreCodec)
	if err != nil {
		return err
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}
	var notifier attendance.Notifier
	if cfg.SnapshotDir != "" {
		notifier = queue.RecordNotifier{Queue: q, Timeout: time.Second}
	}

	repo := attendance.OpenRepository(ctx, backend, codec, cfg.StoreKey, notifier,
		store.WithPersistErrorHook(metrics.PersistFailed))
	log.Printf("loaded %d attendance records", repo.Len())
	svc := attendance.NewService(repo, export.XLSX{})

	// Only one process may consume the in-memory queue; with Redis the
	// snapshots belong to cmd/worker.
	if cfg.SnapshotDir != "" && cfg.QueueBackend == "memory" {
		msgs, err := q.Consume(ctx)
		if err != nil {
			return err
		}
		w := &snapshot.Writer{Source: repo, Exporter: export.XLSX{}, Dir: cfg.SnapshotDir}
		go w.Run(ctx, msgs)
	}

	loc := cfg.Location()
	sessions := session.NewManager(func() *attendance.Workflow {
		return attendance.NewWorkflow(repo, attendance.WorkflowConfig{
			SubmitDelay:   cfg.SubmitDelay,
			MessageTTL:    cfg.MessageTTL,
			MaxImageBytes: int64(cfg.MaxImageBytes),
			Location:      loc,
			OnSubmitted: func(rec attendance.Record) {
				metrics.RecordsSubmitted.Inc()
				log.Printf("record %s stored for committee %s", rec.ID, rec.CommitteeNumber)
			},
		})
	})
	sessions.UnusedTTL = cfg.SessionUnusedTTL
	metrics.TrackSessions(sessions.Len)
	go sessions.Run(ctx, time.Minute, cfg.SessionIdleTTL)

	h := handler.New(svc, repo, auth.NewGate(cfg.AdminPasscode, cfg.LoginDelay), backend, redisClient)
	tokens := auth.TokenConfig{
		Issuer:     cfg.SessionIssuer,
		SigningKey: cfg.SessionSigningKey,
		TTL:        cfg.SessionTTL,
		Secure:     cfg.SecureCookies,
	}

	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	// CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))

	// Security headers
	r.Use(httpmiddleware.SecurityHeaders())

	// Rate limiting
	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	go limiter.Run(ctx, time.Minute)
	r.Use(limiter.Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Register(r, auth.SessionCookie(sessions, tokens), auth.RequireAdmin())

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
