// Package server exposes running shape histograms over HTTP.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/siegeai/shapehist/sink"
)

type Server struct {
	router   *mux.Router
	store    *Store
	sink     sink.Sink
	registry *prometheus.Registry
	metrics  *metrics
}

type Option func(*Server)

// WithSink enables POST /histograms/{id}/snapshot.
func WithSink(s sink.Sink) Option {
	return func(srv *Server) {
		srv.sink = s
	}
}

func WithStore(st *Store) Option {
	return func(srv *Server) {
		srv.store = st
	}
}

func New(opts ...Option) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		store:    NewStore(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(s.registry, s.store)
	s.setupRoutes()
	return s
}

func (s *Server) Store() *Store {
	return s.store
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
