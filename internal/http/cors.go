package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/hlog"
	"github.com/wolfeidau/unirating/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OriginMatcher decides whether a browser origin may call the API.
type OriginMatcher interface {
	Allow(origin string) bool
}

const corsRejectedMessage = "CORS policy does not allow access from the specified Origin."

// WithCORS rejects requests from origins the matcher denies before they reach
// h, and adds credentialed CORS headers for the ones it allows.
func WithCORS(matcher OriginMatcher, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowOriginFunc:  matcher.Allow,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Requested-With"},
		AllowCredentials: true, // Required for cookie-based authentication
	})

	allowed := middleware.Handler(h)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && !matcher.Allow(origin) {
			hlog.FromRequest(r).Warn().Str("origin", origin).Str("path", r.URL.Path).Msg("Rejected cross-origin request")
			telemetry.GetMetrics().CORSRejectedTotal.Add(r.Context(), 1,
				metric.WithAttributes(attribute.String("method", r.Method)))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": corsRejectedMessage})
			return
		}

		allowed.ServeHTTP(w, r)
	})
}

// Health reports that the process is serving. It only runs after the readiness gate.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}
