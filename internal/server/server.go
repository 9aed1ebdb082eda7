// Package server exposes the recommendation service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/andeslab/thesisrec/internal/metadata"
	"github.com/andeslab/thesisrec/internal/recommend"
	"github.com/andeslab/thesisrec/internal/storage"
)

// DefaultK is the result count when a request omits k.
const DefaultK = 5

const shutdownTimeout = 10 * time.Second

// Server routes API requests to the recommendation service.
type Server struct {
	svc *recommend.Service
	mux *http.ServeMux
}

// New creates a server over the given service.
func New(svc *recommend.Service) *Server {
	s := &Server{
		svc: svc,
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /recommend", s.handleRecommend)
	s.mux.HandleFunc("GET /items/{uuid}", s.handleGetItem)
	s.mux.HandleFunc("GET /items/{uuid}/related", s.handleRelated)
	return s
}

// ServeHTTP implements http.Handler with a request log line per call.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	log.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// serviceCard is the GET / payload.
type serviceCard struct {
	Service   string   `json:"service"`
	Model     string   `json:"model"`
	Endpoints []string `json:"endpoints"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, serviceCard{
		Service: "thesisrec",
		Model:   s.svc.ModelName(),
		Endpoints: []string{
			"GET /health",
			"POST /recommend",
			"GET /items/{uuid}",
			"GET /items/{uuid}/related",
		},
	})
}

// healthResponse wraps the service status. The endpoint answers 200 in
// every state; "ok" means the process is up, "ready" means the index is
// loaded and queryable.
type healthResponse struct {
	OK bool `json:"ok"`
	recommend.Status
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{OK: true, Status: s.svc.Health()})
}

type recommendRequest struct {
	Text            string `json:"text"`
	K               int    `json:"k"`
	IncludeAbstract bool   `json:"include_abstract"`
}

type recommendResponse struct {
	ModelName string                     `json:"model_name"`
	K         int                        `json:"k"`
	Results   []recommend.Recommendation `json:"results"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.K == 0 {
		req.K = DefaultK
	}

	results, err := s.svc.Recommend(r.Context(), req.Text, req.K, req.IncludeAbstract)
	if err != nil {
		switch {
		case errors.Is(err, recommend.ErrNotReady):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, recommend.ErrEmptyQuery), errors.Is(err, recommend.ErrInvalidK):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, recommendResponse{
		ModelName: s.svc.ModelName(),
		K:         len(results),
		Results:   results,
	})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.svc.GetItem(r.PathValue("uuid"))
	if err != nil {
		if errors.Is(err, storage.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, it)
}

type relatedResponse struct {
	UUID    string          `json:"uuid"`
	Related []metadata.Item `json:"related"`
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	uuid := r.PathValue("uuid")
	items, err := s.svc.RelatedByTopic(uuid, 10)
	if err != nil {
		if errors.Is(err, storage.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, relatedResponse{UUID: uuid, Related: items})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
