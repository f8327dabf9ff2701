package api

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"pizzaplan/internal/config"
	"pizzaplan/internal/engine"
	"pizzaplan/internal/solve"
	"pizzaplan/internal/store"
	"pizzaplan/internal/webhooks"
)

type Server struct {
	Store   store.Store
	Engine  *engine.Engine
	Pub     *webhooks.Publisher
	Broker  EventBroker
	Cfg     config.Solver
	limiter *rate.Limiter
}

// NewServer wires the server from config and environment. If DATABASE_URL is
// unset, an in-memory store is used.
func NewServer(cfg config.Config) (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			if err := sp.MigrateDir("db/migrations"); err != nil {
				log.Printf("migrate: %v", err)
			}
		}
		s = sp
	}

	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			log.Printf("redis broker unavailable, using in-memory: %v", err)
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	solver, err := solve.New(cfg.Solver.Backend, cfg.Solver.Workers)
	if err != nil {
		return nil, err
	}
	eng := &engine.Engine{
		Solver:        solver,
		TimeLimit:     cfg.Solver.TimeLimit(),
		ToppingCap:    cfg.Solver.MaxToppingsPerPizza,
		DislikeWeight: cfg.Solver.DislikeWeight,
		BalanceLoad:   cfg.Solver.BalanceLoad,
	}

	return &Server{
		Store:   s,
		Engine:  eng,
		Pub:     webhooks.NewPublisher(s),
		Broker:  broker,
		Cfg:     cfg.Solver,
		limiter: limiterFromEnv(),
	}, nil
}

func limiterFromEnv() *rate.Limiter {
	rps := 0
	if v := os.Getenv("RATE_RPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			rps = n
		}
	}
	if rps <= 0 {
		return nil
	}
	burst := rps
	if v := os.Getenv("RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			burst = n
		}
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// RateLimit rejects requests above the configured rate with 429. With no
// RATE_RPS set it is a pass-through.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeProblem(w, http.StatusTooManyRequests, "Rate limit exceeded", "", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}
