package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"pizzaplan/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"solver": map[string]any{
			"backend":             s.Cfg.Backend,
			"timeLimitMs":         s.Cfg.TimeLimitMs,
			"workers":             s.Cfg.Workers,
			"maxToppingsPerPizza": s.Cfg.MaxToppingsPerPizza,
			"dislikeWeight":       s.Cfg.DislikeWeight,
			"balanceLoad":         s.Cfg.BalanceLoad,
		},
		"config": map[string]any{
			"PORT":                 os.Getenv("PORT"),
			"RATE_RPS":             os.Getenv("RATE_RPS"),
			"RATE_BURST":           os.Getenv("RATE_BURST"),
			"WEBHOOK_MAX_ATTEMPTS": os.Getenv("WEBHOOK_MAX_ATTEMPTS"),
			"HAS_DATABASE_URL":     os.Getenv("DATABASE_URL") != "",
			"HAS_REDIS_URL":        os.Getenv("REDIS_URL") != "",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
