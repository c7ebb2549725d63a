package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/oh-my-collab/performance-service/internal/api"
	"github.com/oh-my-collab/performance-service/internal/auth"
	"github.com/oh-my-collab/performance-service/internal/cache"
	"github.com/oh-my-collab/performance-service/internal/config"
	"github.com/oh-my-collab/performance-service/internal/domain"
	"github.com/oh-my-collab/performance-service/internal/outbox"
	persistence "github.com/oh-my-collab/performance-service/internal/persistence/postgres"
	httptransport "github.com/oh-my-collab/performance-service/internal/transport/http"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry,
		cfg.OutboxPollInterval, cfg.OutboxBatchSize,
		outbox.WithLogger(logger.Named("outbox")))

	go dispatcher.Start(ctx)

	var insights cache.InsightsCache = cache.NoopCache{}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		insights = cache.NewRedisCache(client, cfg.InsightsCacheTTL)
	}

	scorer := domain.NewScorer(repo, repo)
	evidence := domain.NewEvidenceBuilder(repo, repo, repo, repo)
	cycles := domain.NewCycleService(repo)
	reviews := domain.NewReviewService(repo, repo)
	roles := domain.NewRoleGuard(repo)
	auditor := domain.NewAuditor(repo)

	handler := api.NewHandler(scorer, evidence, cycles, reviews, roles, auditor, insights, logger.Named("api"))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	requestLog := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	// CORS sits outside auth so browser preflights succeed without a token.
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, requestLog(httptransport.CORS(cfg.CORSOrigin, authMiddleware.Wrap(mux))))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("performance-service listening", zap.String("address", cfg.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	dispatcher.Wait()
}
