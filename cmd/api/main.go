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

	"studioregister/internal/config"
	"studioregister/internal/handler"
	"studioregister/internal/httpmiddleware"
	"studioregister/internal/logger"
	"studioregister/internal/notify"
	"studioregister/internal/queue"
	"studioregister/internal/register"
	"studioregister/internal/store"
	"studioregister/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	lg := logger.New("api", cfg.LogDir, logger.ParseLevel(cfg.LogLevel))

	local, err := store.OpenLocal(cfg.LocalDBPath, lg)
	if err != nil {
		return err
	}
	defer local.Close()

	// The remote mirror is advisory: not reachable at boot just means the
	// app runs local-only until a later sync succeeds.
	var remote *store.Remote
	if cfg.DatabaseURL != "" {
		remote, err = store.OpenRemote(cfg.DatabaseURL)
		if err != nil {
			lg.Warnf("remote mirror not reachable, running local-only: %v", err)
			remote = nil
		}
	} else {
		lg.Infof("no DATABASE_URL set, running local-only")
	}
	defer remote.Close()

	var redisClient *store.Redis
	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		redisClient = store.NewRedis(cfg.RedisAddr)
		q = queue.NewRedisQueue(redisClient.Client, "register:sync")
	}
	defer redisClient.Close()

	sync := syncer.New(local, remote, q, lg)
	notifier := notify.New(cfg.WebhookURL)
	reg := register.New(sync, notifier, q, lg, cfg.OnTimePoints)
	h := handler.New(sync, reg, lg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// App start is a sync trigger. With the in-memory queue the worker
	// binary can't see our triggers, so consume them here as well.
	go sync.SyncAll(ctx)
	if cfg.QueueBackend == "memory" {
		go consumeTriggers(ctx, q, sync, lg)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		localOK := sync.LocalHealthy()
		status := http.StatusOK
		if !localOK {
			status = http.StatusServiceUnavailable
		}
		body := gin.H{
			"status": "ok",
			"local":  localOK,
			"remote": sync.RemoteHealthy(c.Request.Context()),
		}
		// With the memory backend there is no redis to be unhealthy; only
		// report it when configured.
		if redisClient != nil {
			body["redis"] = redisClient.Healthy(c.Request.Context())
		}
		c.JSON(status, body)
	})

	h.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Infof("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Infof("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Errorf("server forced shutdown: %v", err)
	}
	lg.Infof("server exited")
	return nil
}

// consumeTriggers runs the worker's sync loop in-process for the memory
// queue backend.
func consumeTriggers(ctx context.Context, q queue.Queue, sync *syncer.Service, lg *logger.Logger) {
	messages, err := q.Consume(ctx)
	if err != nil {
		lg.Errorf("trigger consume init failed: %v", err)
		return
	}
	for msg := range messages {
		lg.Debugf("sync trigger: %s", msg.Type)
		sync.SyncAll(ctx)
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
