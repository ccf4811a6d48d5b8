package runtime

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/docflow/internal/runtime/jsoncodec"
)

type healthResponse struct {
	Status      string   `json:"status"`
	Substrate   string   `json:"substrate"`
	Middlewares []string `json:"middlewares"`
}

// adminRouter serves the admin API: health, middleware descriptions and,
// when enabled, metrics.
func (s *Service) adminRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(s.corsMiddleware)
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/middlewares", s.handleGetMiddlewares)
	r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if s.Conf.MetricsEnabled {
		r.Handle("/metrics", s.metricsHandler())
	}
	return r
}

func (s *Service) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	infos := s.Middlewares()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	s.writeJSON(w, healthResponse{Status: "ok", Substrate: s.caps.Name, Middlewares: names})
}

func (s *Service) handleGetMiddlewares(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.Middlewares())
}

func (s *Service) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := jsoncodec.Encode(w, v); err != nil {
		s.Logger.Error("Failed to encode admin response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Service) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedCORSOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		next.ServeHTTP(w, r)
	})
}

// allowedCORSOrigin returns the Access-Control-Allow-Origin value for
// requestOrigin, or "" when it is not allowed.
func (s *Service) allowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range s.Conf.AdminCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if requestOrigin != "" && strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
