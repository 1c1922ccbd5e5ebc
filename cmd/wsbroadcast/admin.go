package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/livecaption/wsbroadcast/pkg/broadcast"
	"github.com/livecaption/wsbroadcast/pkg/pool"
)

type serverHealth struct {
	Port        int    `json:"port"`
	State       string `json:"state"`
	Connections int64  `json:"connections"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Stale       uint64 `json:"stale"`
}

type healthResponse struct {
	Status  string         `json:"status"`
	Servers []serverHealth `json:"servers"`
}

// adminRouter serves /healthz and, when gatherer is non-nil, /metrics.
func adminRouter(p *pool.Pool, want []int, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		resp := healthResponse{Status: "ok"}
		listening := make(map[int]bool)
		for _, st := range p.Stats() {
			resp.Servers = append(resp.Servers, serverHealth{
				Port:        st.Port,
				State:       st.State.String(),
				Connections: st.Connections,
				Published:   st.Published,
				Dropped:     st.Dropped,
				Stale:       st.Stale,
			})
			if st.State == broadcast.StateListening {
				listening[st.Port] = true
			}
		}
		code := http.StatusOK
		for _, port := range want {
			if !listening[port] {
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Debug("healthz encode failed", "error", err)
		}
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}
