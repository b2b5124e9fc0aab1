package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kiwari-pos/fulfillment/internal/cache"
	"github.com/sirupsen/logrus"
)

// Pinger checks store connectivity. Satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheStats reports cache activity. Satisfied by *cache.Cache.
type CacheStats interface {
	Stats() cache.Stats
}

type healthResponse struct {
	Status  string       `json:"status"`
	Version string       `json:"version"`
	Cache   *cache.Stats `json:"cache,omitempty"`
}

// Health handles GET /health. It reports 503 when the database is
// unreachable. stats may be nil.
func Health(db Pinger, stats CacheStats, version string, log logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Version: version}
		if stats != nil {
			s := stats.Stats()
			resp.Cache = &s
		}

		if err := db.Ping(ctx); err != nil {
			log.WithError(err).Warn("health check: database unreachable")
			resp.Status = "unavailable"
			writeJSON(w, log, http.StatusServiceUnavailable, resp)
			return
		}
		writeJSON(w, log, http.StatusOK, resp)
	}
}
