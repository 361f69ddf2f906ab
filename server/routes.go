package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/negroni"

	"github.com/siegeai/shapehist/bucket"
	"github.com/siegeai/shapehist/infer"
	"github.com/siegeai/shapehist/stream"
)

const maxMergeBody = 64 << 20

// IdempotencyKeyHeader marks a merge that the client may resend. A key is
// applied once per histogram.
const IdempotencyKeyHeader = "Idempotency-Key"

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/histograms", s.handleCreateHistogram()).Methods("POST")
	s.router.HandleFunc("/histograms", s.handleListHistograms()).Methods("GET")
	s.router.HandleFunc("/histograms/{id}", s.handleEnsureHistogram()).Methods("PUT")
	s.router.HandleFunc("/histograms/{id}", s.handleGetHistogram()).Methods("GET")
	s.router.HandleFunc("/histograms/{id}", s.handleDeleteHistogram()).Methods("DELETE")
	s.router.HandleFunc("/histograms/{id}/values", s.handleAppendValues()).Methods("POST")
	s.router.HandleFunc("/histograms/{id}/merge", s.handleMergeHistogram()).Methods("POST")
	s.router.HandleFunc("/histograms/{id}/schema", s.handleGetSchema()).Methods("GET")
	s.router.HandleFunc("/histograms/{id}/snapshot", s.handleSnapshot()).Methods("POST")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods("GET")
	s.router.Use(s.logMiddleware)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := negroni.NewResponseWriter(w)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.requests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		slog.Info("handled", "method", r.Method, "uri", r.RequestURI, "status", ww.Status(), "size", ww.Size())
	})
}

type createdResponse struct {
	ID string `json:"id"`
}

type listResponse struct {
	IDs []string `json:"ids"`
}

type appendResponse struct {
	Folded   int `json:"folded"`
	Observed int `json:"observed"`
}

type errorResponse struct {
	Error string `json:"error"`
	Line  int    `json:"line,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("could not write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleCreateHistogram() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		s.store.Create(id)
		w.Header().Set("Location", "/histograms/"+id)
		writeJSON(w, http.StatusCreated, createdResponse{ID: id})
	}
}

func (s *Server) handleListHistograms() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, listResponse{IDs: s.store.IDs()})
	}
}

func (s *Server) handleEnsureHistogram() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if _, err := uuid.Parse(id); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("histogram id must be a uuid: %w", err))
			return
		}

		status := http.StatusOK
		if s.store.Create(id) {
			status = http.StatusCreated
		}
		writeJSON(w, status, createdResponse{ID: id})
	}
}

func (s *Server) handleGetHistogram() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := s.store.Snapshot(mux.Vars(r)["id"])
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}

		etag := fmt.Sprintf(`"%016x"`, b.Fingerprint())
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func (s *Server) handleDeleteHistogram() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.store.Delete(mux.Vars(r)["id"]) {
			writeError(w, http.StatusNotFound, ErrNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleAppendValues folds a newline-delimited JSON body. The upload is all or
// nothing: it is folded into a scratch bucket and merged only once every line
// parsed.
func (s *Server) handleAppendValues() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !s.store.Has(id) {
			writeError(w, http.StatusNotFound, ErrNotFound)
			return
		}

		body, err := stream.NewEncodedReader(r.Header.Get("Content-Encoding"), r.Body)
		if err != nil {
			writeError(w, http.StatusUnsupportedMediaType, err)
			return
		}
		defer body.Close()

		fresh, err := stream.Fold(r.Context(), body, nil)
		if err != nil {
			var le *stream.LineError
			if errors.As(err, &le) {
				s.metrics.malformed.Inc()
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Line: le.Line})
				return
			}
			writeError(w, http.StatusBadRequest, err)
			return
		}

		var observed int
		err = s.store.Update(id, false, func(b *bucket.Bucket) error {
			bucket.MergeInto(b, fresh)
			observed = b.Total()
			return nil
		})
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}

		s.metrics.folded.Add(float64(fresh.Total()))
		writeJSON(w, http.StatusOK, appendResponse{Folded: fresh.Total(), Observed: observed})
	}
}

func (s *Server) handleMergeHistogram() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if _, err := uuid.Parse(id); err != nil && !s.store.Has(id) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("histogram id must be a uuid: %w", err))
			return
		}

		var other bucket.Bucket
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMergeBody)).Decode(&other); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := other.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		var observed int
		applied, _ := s.store.UpdateOnce(id, r.Header.Get(IdempotencyKeyHeader), true, func(b *bucket.Bucket) error {
			bucket.MergeInto(b, &other)
			observed = b.Total()
			return nil
		})
		if !applied {
			slog.Info("merge already applied", "id", id)
			current, err := s.store.Snapshot(id)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, appendResponse{Observed: current.Total()})
			return
		}

		s.metrics.folded.Add(float64(other.Total()))
		writeJSON(w, http.StatusOK, appendResponse{Folded: other.Total(), Observed: observed})
	}
}

func (s *Server) handleGetSchema() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := s.store.Snapshot(mux.Vars(r)["id"])
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, infer.Schema(b))
	}
}

func (s *Server) handleSnapshot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.sink == nil {
			writeError(w, http.StatusServiceUnavailable, errors.New("no snapshot sink configured"))
			return
		}

		id := mux.Vars(r)["id"]
		b, err := s.store.Snapshot(id)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}

		if err := s.sink.Write(r.Context(), id, b); err != nil {
			slog.Error("could not write snapshot", "id", id, "err", err)
			writeError(w, http.StatusBadGateway, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
