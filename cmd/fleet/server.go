package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rxtech-lab/argo-fleet/internal/types"
)

type healthResponse struct {
	Healthy bool                 `json:"healthy"`
	Agents  []types.HealthRecord `json:"agents"`
}

// newRouter serves Prometheus metrics and the latest health sweep.
func newRouter(reg *prometheus.Registry, health func() []types.HealthRecord) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		records := health()
		resp := healthResponse{Healthy: true, Agents: records}

		for _, r := range records {
			if !r.Healthy {
				resp.Healthy = false
			}
		}

		if resp.Agents == nil {
			resp.Agents = []types.HealthRecord{}
		}

		w.Header().Set("Content-Type", "application/json")

		if !resp.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(resp)
	}).Methods(http.MethodGet)

	return router
}

func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
