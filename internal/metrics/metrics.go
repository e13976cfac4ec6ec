// Package metrics holds the prometheus collectors of the pipeline. Each
// Metrics owns its registry so tests and multiple apps never collide.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Registry *prometheus.Registry

	Responses *prometheus.CounterVec
	Uploads   *prometheus.CounterVec
	Downloads *prometheus.CounterVec
	Requests  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stablebatch",
			Name:      "job_responses_total",
			Help:      "Generation API responses by source (dispatch, fetch) and status.",
		}, []string{"source", "status"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stablebatch",
			Name:      "uploads_total",
			Help:      "Image reference resolutions by result (hit, miss, remote).",
		}, []string{"result"}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stablebatch",
			Name:      "image_downloads_total",
			Help:      "Output image downloads by result (ok, skipped, failed).",
		}, []string{"result"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stablebatch",
			Name:      "http_requests_total",
			Help:      "Control API requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
	}
	m.Registry.MustRegister(m.Responses, m.Uploads, m.Downloads, m.Requests)
	return m
}
