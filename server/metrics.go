package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type metrics struct {
	requests  *prometheus.CounterVec
	folded    prometheus.Counter
	malformed prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, store *Store) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shapehist",
			Name:      "http_requests_total",
			Help:      "HTTP requests handled, by route template and status code.",
		}, []string{"route", "code"}),
		folded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shapehist",
			Name:      "values_folded_total",
			Help:      "JSON values folded into histograms.",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shapehist",
			Name:      "malformed_lines_total",
			Help:      "Uploads rejected because of a line that is not valid JSON.",
		}),
	}

	histograms := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "shapehist",
		Name:      "histograms",
		Help:      "Histograms currently held in memory.",
	}, func() float64 {
		return float64(store.Len())
	})

	reg.MustRegister(
		m.requests,
		m.folded,
		m.malformed,
		histograms,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
