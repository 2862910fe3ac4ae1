package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/candy-heist/internal/middleware"
	"github.com/Proton-105/candy-heist/pkg/logger"
)

type statusResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// NewRouter returns the ops HTTP handler: /livez always answers, /healthz runs every check and
// answers 503 when one fails, /metrics exposes the Prometheus registry.
func NewRouter(checker *Checker, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(logger.Middleware)
	r.Use(middleware.New(log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(10 * time.Second))

	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		results := map[string]string{}
		if checker != nil {
			results = checker.Check(req.Context())
		}

		if !Healthy(results) {
			writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "degraded", Components: results})
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Components: results})
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
