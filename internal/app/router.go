// Package app wires the HTTP surface: middleware stack, routes, CORS and
// rate limiting.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/claymoreai/claymore/internal/adapter/httpserver"
	"github.com/claymoreai/claymore/internal/config"
	"github.com/claymoreai/claymore/internal/observability"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. An empty input means any origin.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middleware and routes.
// Everything under /v2 requires a bearer token; mutating endpoints are
// additionally rate limited per client IP.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(cfg.HTTPWriteTimeout))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/v2", func(v2 chi.Router) {
		v2.Use(srv.Auth.Middleware)

		// Read-only endpoints
		v2.Get("/module", srv.ModuleInfoHandler())
		v2.Get("/module/list", srv.ModuleListHandler())

		// Mutating endpoints, rate limited
		v2.Group(func(wr chi.Router) {
			wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
			wr.Post("/module", srv.CreateModuleHandler())
			wr.Post("/module/save", srv.SaveModuleHandler())
			wr.Post("/module/reset", srv.ResetModuleHandler())
			wr.Post("/module/run", srv.RunModuleHandler())
			wr.Post("/module/try", srv.TryModuleHandler())
			wr.Post("/module/saveData", srv.SaveDataHandler())
			wr.Post("/module/assignData", srv.AssignDataHandler())
			wr.Post("/module/clearFiles", srv.ClearFilesHandler())
			wr.Post("/job/operate", srv.JobOperateHandler())
			wr.Post("/chat", srv.ChatHandler())
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}
