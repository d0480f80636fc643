package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"alertledger/pkg/auth"
	"alertledger/pkg/classifier"
	"alertledger/pkg/database"
	"alertledger/pkg/ledger"
	"alertledger/pkg/livestream"
	"alertledger/pkg/pipeline"
	"alertledger/pkg/ratelimit"
	"alertledger/pkg/registry"
	"alertledger/pkg/structlog"
)

const serviceName = "ingest"

func main() {
	port := getenvInt("INGEST_PORT", 8080)
	logger := structlog.New(serviceName, structlog.LevelInfo, os.Stdout)

	secret := os.Getenv("AUTH_JWT_SECRET")
	if secret == "" {
		log.Fatalf("[%s] AUTH_JWT_SECRET is required", serviceName)
	}
	owner := os.Getenv("LEDGER_OWNER")
	if owner == "" {
		log.Fatalf("[%s] LEDGER_OWNER is required", serviceName)
	}
	sessions, err := auth.NewManager(secret, serviceName, time.Duration(getenvInt("AUTH_TOKEN_TTL_HOURS", 24))*time.Hour)
	if err != nil {
		log.Fatalf("[%s] auth: %v", serviceName, err)
	}

	var store ledger.Store
	var reg registry.Registry
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := database.Open(dsn, database.PoolConfig{
			MaxOpenConns: getenvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getenvInt("DB_MAX_IDLE_CONNS", 5),
		})
		if err != nil {
			log.Fatalf("[%s] open database: %v", serviceName, err)
		}
		pgStore, err := ledger.NewPostgresStore(db, getenv("DB_NAME", "alertledger"))
		if err != nil {
			log.Fatalf("[%s] ledger store: %v", serviceName, err)
		}
		pgReg, err := registry.NewPostgres(db, owner)
		if err != nil {
			log.Fatalf("[%s] reporter registry: %v", serviceName, err)
		}
		store, reg = pgStore, pgReg
		logger.Info("using postgres backends", nil)
	} else {
		store = ledger.NewMemoryStore()
		reg = registry.NewMemory(owner)
		logger.Warn("DATABASE_URL not set, using in-memory backends", nil)
	}

	hub := livestream.NewHub(getenvInt("LIVE_BUFFER", 64))
	var broadcaster pipeline.Broadcaster = hub
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	var rdb *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
		relay := livestream.NewRedisRelay(rdb, hub, getenv("REDIS_LIVE_CHANNEL", livestream.DefaultChannel), uuid.New().String())
		go func() {
			if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("redis relay stopped", structlog.Fields{"error": err.Error()})
			}
		}()
		broadcaster = relay
		logger.Info("live events relayed through redis", structlog.Fields{"addr": addr})
	}

	cls, err := buildClassifier()
	if err != nil {
		log.Fatalf("[%s] classifier: %v", serviceName, err)
	}

	engine := ledger.NewEngine(store, reg, ledger.EngineConfig{
		MaxAttempts: getenvInt("LEDGER_MAX_ATTEMPTS", 3),
		Backoff:     time.Duration(getenvInt("LEDGER_BACKOFF_MS", 100)) * time.Millisecond,
	})
	coord := pipeline.New(cls, engine, broadcaster, logger)

	limiter := ratelimit.New(rdb, getenvInt("INGEST_RATE_LIMIT", 300), time.Duration(getenvInt("INGEST_RATE_WINDOW_SEC", 60))*time.Second)
	srv := newServer(coord, store, reg, hub, sessions, limiter, logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[%s] shutdown error: %v", serviceName, err)
		} else {
			log.Printf("[%s] shutdown complete", serviceName)
		}
	}()

	logger.Info("listening", structlog.Fields{"addr": httpSrv.Addr})
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[%s] serve: %v", serviceName, err)
	}
}

// buildClassifier picks the verdict strategy for this deployment.
// CLASSIFIER_MODE: rules (default), remote, or hint.
func buildClassifier() (classifier.Classifier, error) {
	switch mode := getenv("CLASSIFIER_MODE", "rules"); mode {
	case "rules":
		return classifier.DefaultRuleSet(), nil
	case "remote":
		url := os.Getenv("CLASSIFIER_URL")
		if url == "" {
			return nil, fmt.Errorf("CLASSIFIER_MODE=remote requires CLASSIFIER_URL")
		}
		timeout := time.Duration(getenvInt("CLASSIFIER_TIMEOUT_MS", 5000)) * time.Millisecond
		return classifier.NewScoringClient(url, timeout), nil
	case "hint":
		return classifier.DefaultSeverityPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown CLASSIFIER_MODE %q", mode)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
