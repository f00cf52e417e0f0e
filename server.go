package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/rupture_engine/config"
	"github.com/mmdatafocus/rupture_engine/handlers"
	"github.com/mmdatafocus/rupture_engine/middlewares"
	"github.com/mmdatafocus/rupture_engine/models"
	"github.com/mmdatafocus/rupture_engine/projection"
	"github.com/mmdatafocus/rupture_engine/utils"
	"github.com/mmdatafocus/rupture_engine/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultPort = "8080"

type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// engine is everything a request needs once DB and Redis are up.
type engine struct {
	orchestrator *projection.BatchOrchestrator
	listener     *workflow.StockEventListener
	sweep        *workflow.ActiveSweep
	sweeps       workflow.SweepStore
}

func buildEngine(db *gorm.DB, settings projection.Settings, logger *logrus.Logger) *engine {
	cacheOpts := []projection.CacheOption{
		projection.WithTTL(settings.CacheTTL),
		projection.WithCacheLogger(logger),
	}
	if config.ProjectionL2CacheEnabled() && config.GetRedisDB() != nil {
		cacheOpts = append(cacheOpts, projection.WithBacking(projection.NewRedisBacking(config.GetRedisDB())))
	}
	cache := projection.NewProjectionCache(cacheOpts...)

	ledger := models.NewLedgerStore(db, settings.Location)
	aggregator := projection.NewMovementAggregator(ledger, ledger, settings.StoreTimeout, logger)
	orders := middlewares.NewOrderLineSource(db, settings.Location)
	orchestrator := projection.NewBatchOrchestrator(cache, aggregator, orders, settings, logger)

	// in-process writers invalidate after commit
	plugin := config.NewInvalidationPlugin(func(ctx context.Context, products []projection.ProductKey) {
		if len(products) == 0 {
			cache.InvalidateAll(ctx)
			return
		}
		for _, p := range products {
			cache.Invalidate(ctx, p)
		}
	})
	if err := db.Use(plugin); err != nil {
		config.LogError(logger, "server.go", "buildEngine", "install invalidation plugin", nil, err)
	}

	instanceId := uuid.NewString()

	sweepInterval := time.Duration(utils.IntFromEnv("ACTIVE_SWEEP_INTERVAL_SECONDS", 0)) * time.Second
	sweeps := workflow.NewRedisSweepStore(24 * time.Hour)
	sweep := workflow.NewActiveSweep(orchestrator, sweeps, logger, sweepInterval)
	sweep.OwnerId = instanceId
	sweep.Locker = config.GetRedisLock()
	sweep.Businesses = func(ctx context.Context) ([]string, error) {
		return models.ActiveBusinessIds(ctx, db)
	}
	sweep.Prepare = func(ctx context.Context) context.Context {
		return middlewares.WithLoaders(ctx, db)
	}

	// Each instance pulls stock events on its own subscription so every in-process cache
	// sees every event. PUBSUB_SHARED_SUBSCRIPTION=true restores the shared one.
	listener := workflow.NewStockEventListener(cache, logger)
	if !utils.BoolFromEnv("PUBSUB_SHARED_SUBSCRIPTION", false) {
		listener.InstanceId = instanceId
	}

	return &engine{
		orchestrator: orchestrator,
		listener:     listener,
		sweep:        sweep,
		sweeps:       sweeps,
	}
}

func newRouter(e *engine, logger *logrus.Logger) *gin.Engine {
	r := gin.New()

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", middlewares.HeaderBusinessId, middlewares.HeaderCorrelationId)
	corsConfig.AddExposeHeaders("Content-Length", middlewares.HeaderCorrelationId)
	r.Use(cors.New(corsConfig))

	// Optional rate limiting.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if utils.BoolFromEnv("RATE_LIMIT_ENABLED", false) && config.GetRedisDB() != nil {
		limit := int64(utils.IntFromEnv("RATE_LIMIT_MAX_REQUESTS", 600))
		window := time.Duration(utils.IntFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
		r.Use(NewRateLimiter(config.GetRedisDB(), limit, window).RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	h := handlers.NewAvailabilityHandler(e.orchestrator, e.sweeps, logger)
	handlers.Register(r, h, e.listener, middlewares.LoaderMiddleware())
	r.NoRoute(customNotFoundHandler)
	return r
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	settings, err := config.LoadProjectionSettings()
	if err != nil {
		log.Fatal(err)
	}

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, app endpoints answer 503.
	var app atomic.Pointer[gin.Engine]
	bootstrap := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r := app.Load(); r != nil {
			r.ServeHTTP(w, req)
			return
		}
		if req.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: bootstrap,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; run it as a separate job in production.
	if !utils.BoolFromEnv("SKIP_MIGRATIONS", false) {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	e := buildEngine(db, settings, logger)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	go e.orchestrator.Cache().RunSweeper(workerCtx, settings.CacheSweepInterval)
	go e.sweep.Run(workerCtx)
	if config.StockEventPullEnabled() {
		go func() {
			client, err := config.GetClient(workerCtx)
			if err != nil {
				config.LogError(logger, "server.go", "main", "pubsub client", nil, err)
				return
			}
			err = e.listener.Run(workerCtx, client, os.Getenv("PUBSUB_STOCK_TOPIC"), os.Getenv("PUBSUB_STOCK_SUBSCRIPTION"))
			if err != nil && workerCtx.Err() == nil {
				config.LogError(logger, "server.go", "main", "stock event receiver stopped", nil, err)
			}
		}()
	}

	app.Store(newRouter(e, logger))
	logger.WithFields(logrus.Fields{
		"info":     "Connection Established",
		"horizon":  settings.HorizonDays,
		"timezone": settings.Location.String(),
	}).Info("rupture engine listening on port " + port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimitMiddleware counts requests per business, or per client IP for unscoped calls.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.GetHeader(middlewares.HeaderBusinessId)
	if key == "" {
		key = c.ClientIP()
	}
	key = "RateLimit:" + key

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count == 1 {
		if err := rl.client.Expire(c.Request.Context(), key, rl.window).Err(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}

	if count > rl.limit {
		c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}
