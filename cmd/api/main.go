package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/classes"
	"qrattend/internal/config"
	"qrattend/internal/handler"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/identity"
	"qrattend/internal/logger"
	"qrattend/internal/metrics"
	"qrattend/internal/queue"
	"qrattend/internal/sessions"
	"qrattend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl := logger.New(cfg.IsProduction())
	defer zl.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, zl); err != nil {
		zl.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle := store.NewHandle(cfg.DBDriver, cfg.DatabaseURL)
	defer handle.Close()

	db, err := handle.Get(ctx)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, zl); err != nil {
			return err
		}
	}

	redisClient, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	useRedis := cfg.QueueBackend != "memory" || cfg.RateLimitBackend == "redis"

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(256)
		go drainLocal(ctx, mem, zl)
		q = mem
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, zl)
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}

	userRepo := identity.NewRepository(db)
	users := identity.NewService(userRepo, zl.Named("identity"))
	classRepo := classes.NewRepository(db)
	sessionRepo := sessions.NewRepository(db)
	ledger := attendance.NewRepository(db)
	calendar := attendance.NewCalendar(cfg.Location())
	signer := auth.Signer{
		Key:        cfg.JWTSigningKey,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}

	checks := map[string]handler.HealthCheck{
		"db": func(ctx context.Context) error {
			db, err := handle.Get(ctx)
			if err != nil {
				return err
			}
			if !db.Healthy(ctx) {
				return errors.New("database unreachable")
			}
			return nil
		},
	}
	var tally handler.TallyReader
	if useRedis {
		checks["redis"] = func(ctx context.Context) error {
			if !redisClient.Healthy(ctx) {
				return errors.New("redis unreachable")
			}
			return nil
		}
	}
	if cfg.QueueBackend != "memory" {
		tally = attendance.NewTally(redisClient.Client)
	}

	h, err := handler.New(handler.Deps{
		Users:   users,
		Tokens:  auth.NewTokens(signer, userRepo),
		Classes: classes.NewService(classRepo, users, zl.Named("classes")),
		Issuer:  sessions.NewIssuer(sessionRepo, classRepo, cfg.SessionTTL, zl.Named("sessions")),
		Marks:   attendance.NewService(sessionRepo, classRepo, ledger, q, calendar, zl.Named("attendance")),
		Reports: attendance.NewReports(ledger, classRepo, calendar),
		Tally:   tally,
		Checks:  checks,
		Logger:  zl,
	})
	if err != nil {
		return err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.AccessLog(zl.Named("http"), "/healthz", "/metrics"))
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.RateLimit(limiter, auth.SubjectOrIP(signer, httpmiddleware.ClientIP), zl))
	r.Use(httpmiddleware.Metrics())
	h.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("starting server", zap.String("addr", srv.Addr), zap.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	zl.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("forced shutdown", zap.Error(err))
	}
	zl.Info("server exited")
	return nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// drainLocal consumes the in-process queue when no worker runs. Events are
// only counted; the live tally needs Redis.
func drainLocal(ctx context.Context, q *queue.InMemory, zl *zap.Logger) {
	msgs, err := q.Consume(ctx)
	if err != nil {
		zl.Error("local queue consume", zap.Error(err))
		return
	}
	for msg := range msgs {
		metrics.EventsConsumedTotal.WithLabelValues(msg.Type, "local").Inc()
		zl.Debug("event", zap.String("type", msg.Type), zap.Time("at", msg.At))
	}
}
