// Command server runs the portico authentication engine: the HTTP API, the
// refresh token ledger, session management and the background cleanup sweep.
// main wires dependencies and owns the process lifecycle; business logic
// lives in the internal packages.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"portico/internal/audit"
	"portico/internal/identity/authz"
	"portico/internal/identity/email"
	"portico/internal/identity/ledger"
	"portico/internal/identity/service"
	refreshtokenstore "portico/internal/identity/store/refreshtoken"
	sessionstore "portico/internal/identity/store/session"
	tenantstore "portico/internal/identity/store/tenant"
	userstore "portico/internal/identity/store/user"
	"portico/internal/identity/token"
	"portico/internal/identity/workers/cleanup"
	"portico/internal/platform/config"
	"portico/internal/platform/database"
	"portico/internal/platform/logger"
	"portico/internal/platform/metrics"
	httptransport "portico/internal/transport/http"
)

// Composite store views main needs to wire one backend into several
// consumers.
type sessionBackend interface {
	service.SessionStore
	cleanup.SessionSweeper
}

type assignmentBackend interface {
	service.AssignmentStore
	authz.AssignmentFinder
	authz.TenantFinder
}

const tokenRetention = 90 * 24 * time.Hour

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log.Info("initializing portico",
		"addr", cfg.Addr,
		"postgres", cfg.DatabaseURL != "",
		"redis", cfg.RedisURL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Persistence. Without DATABASE_URL everything runs in memory, which is
	// the local development mode; state is lost on restart.
	var (
		users       service.UserStore
		sessions    sessionBackend
		assignments assignmentBackend
		tokens      ledger.Store
		auditStore  audit.Store
	)
	if cfg.DatabaseURL != "" {
		poolCfg := database.DefaultConfig()
		poolCfg.URL = cfg.DatabaseURL
		pool, err := database.New(ctx, poolCfg)
		if err != nil {
			log.Error("could not connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		users = userstore.NewPostgres(pool.DB())
		sessions = sessionstore.NewPostgres(pool.DB())
		assignments = tenantstore.NewPostgres(pool.DB())
		tokens = refreshtokenstore.NewPostgres(pool.DB())
		auditStore = audit.NewPostgresStore(pool.DB())
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		users = userstore.NewInMemory()
		sessions = sessionstore.NewInMemory()
		assignments = tenantstore.NewInMemory()
		tokens = refreshtokenstore.NewInMemory()
		auditStore = audit.NewInMemoryStore()
	}

	// Redis, when configured, replaces the session backend; sessions are the
	// hottest records and expire naturally under a TTL there.
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("could not connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		sessions = sessionstore.NewRedis(redisClient, cfg.SessionMaxAge)
	}

	signer, err := token.NewSigner(cfg.JWTSigningKey, "portico", cfg.TokenTTL)
	if err != nil {
		log.Error("could not build token signer", "error", err)
		os.Exit(1)
	}

	tokenLedger := ledger.New(tokens, cfg.RefreshTokenTTL, ledger.WithLogger(log))

	auditPublisher := audit.NewPublisher(auditStore,
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(log),
	)
	defer auditPublisher.Close()

	mailQueue := email.NewQueue(email.NewLogMailer(log), 64, log)
	defer mailQueue.Close()

	authService := service.New(
		users,
		sessions,
		assignments,
		tokenLedger,
		signer,
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMailQueue(mailQueue),
		service.WithMetrics(m),
		service.WithResetTokenTTL(cfg.ResetTokenTTL),
	)

	sweeper, err := cleanup.New(tokenLedger, sessions, tokenRetention, cfg.SessionMaxAge,
		cleanup.WithInterval(cfg.CleanupInterval),
		cleanup.WithLogger(log),
		cleanup.WithMetrics(m),
		cleanup.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		log.Error("could not build cleanup worker", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := sweeper.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("cleanup worker stopped", "error", err)
		}
	}()

	checker := authz.New(assignments, assignments, authz.WithLogger(log))

	handler := httptransport.New(authService, sessions, signer, log,
		httptransport.WithCookie("portico_session", int(cfg.SessionMaxAge.Seconds())),
	)
	adminHandler := httptransport.NewAdmin(sessions, signer, checker, auditStore, log)
	router := httptransport.NewRouter(handler, adminHandler, log, httptransport.RouterConfig{
		AllowedOrigins:      cfg.AllowedOrigins,
		CredentialRatePerIP: cfg.SignInRatePerIP,
		CredentialBurst:     cfg.SignInBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdown(srv, log)
}

func shutdown(srv *http.Server, log *slog.Logger) {
	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
