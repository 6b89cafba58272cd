package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/fundsight/fund-engine/internal/benchmark"
	"github.com/fundsight/fund-engine/internal/events"
	"github.com/fundsight/fund-engine/internal/ledger"
	"github.com/fundsight/fund-engine/internal/metrics"
	"github.com/fundsight/fund-engine/internal/oracle"
	"github.com/fundsight/fund-engine/internal/registry"
	"github.com/fundsight/fund-engine/internal/resolver"
	"github.com/fundsight/fund-engine/internal/store"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- NAV oracle ---
	var orc oracle.Oracle = oracle.NewMFAPIClient(os.Getenv("MFAPI_BASE_URL"))

	// Wrap with a Redis read-through cache if configured. The sell path
	// re-fetches history per candidate day, so the cache matters there.
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		orc = oracle.NewCachedOracle(orc, rdb, 15*time.Minute)
		slog.Info("Redis NAV cache enabled")
	}

	// --- WebSocket hub ---
	hub := events.NewHub()
	go hub.Run()

	// --- Services ---
	ledgerSvc := ledger.NewService(st, resolver.New(orc), hub)
	registrySvc := registry.NewService(st, orc, hub, envDecimal("FUND_SIP_AMOUNT"), envInt("FUND_SIP_MONTHS"))
	benchmarkCli := benchmark.NewClient("", os.Getenv("BENCHMARK_SYMBOL"))

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"fund-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time ledger and fund updates.
		r.Get("/ws", hub.HandleWS)

		// Ledger.
		r.Post("/transactions/buy", ledgerSvc.SubmitBuy)
		r.Post("/transactions/sell", ledgerSvc.SubmitSell)
		r.Get("/schemes/{schemeCode}/transactions", ledgerSvc.ListTransactions)
		r.Get("/schemes/{schemeCode}/average-nav", ledgerSvc.AverageNav)

		// Fund registry.
		r.Post("/funds/{schemeCode}/refresh", registrySvc.RefreshFund)
		r.Get("/funds", registrySvc.ListFunds)
		r.Delete("/funds/{schemeCode}", registrySvc.RemoveFund)

		// Benchmark index.
		r.Get("/benchmark", benchmarkCli.HandleLatest)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("fund-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down fund-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("fund-engine stopped")
}

// envDecimal parses a decimal environment variable, zero when unset or
// malformed (callers treat zero as "use the default").
func envDecimal(key string) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		slog.Warn("ignoring malformed env var", "key", key, "value", v)
		return decimal.Zero
	}
	return d
}

// envInt parses an integer environment variable, zero when unset or malformed.
func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring malformed env var", "key", key, "value", v)
		return 0
	}
	return n
}
