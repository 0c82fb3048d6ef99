package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"ai-voice-gateway/internal/service/ingest"
	"ai-voice-gateway/internal/service/session"
)

// Sessions lists live sessions and reports readiness.
type Sessions interface {
	Snapshot() []session.Info
	Ready() error
}

// Ingester stores uploaded documents.
type Ingester interface {
	Ingest(ctx context.Context, origin, filename string, data []byte) (ingest.Report, error)
}

// Handlers are the components the router exposes. Nil members disable
// their routes.
type Handlers struct {
	WSPath       string
	Gateway      http.Handler
	Sessions     Sessions
	Ingester     Ingester
	MaxFileBytes int64
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if h.Gateway != nil {
		path := h.WSPath
		if path == "" {
			path = "/ws"
		}
		r.Handle(path, h.Gateway)
	}

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if h.Sessions != nil {
			if err := h.Sessions.Ready(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		if h.Sessions != nil {
			r.Get("/sessions", listSessions(h.Sessions))
		}
		if h.Ingester != nil {
			r.Post("/documents", uploadDocument(h.Ingester, h.MaxFileBytes))
		}
	})

	return r
}

type sessionsResponse struct {
	Count    int            `json:"count"`
	Sessions []session.Info `json:"sessions"`
}

func listSessions(sessions Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		infos := sessions.Snapshot()
		writeJSON(w, http.StatusOK, sessionsResponse{Count: len(infos), Sessions: infos})
	}
}

type documentResponse struct {
	Filename string   `json:"filename"`
	Status   string   `json:"status"`
	Chunks   int      `json:"chunks"`
	IDs      []string `json:"ids"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// uploadDocument stores the raw request body under the filename query
// parameter.
func uploadDocument(ingester Ingester, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := r.URL.Query().Get("filename")

		body := r.Body
		if maxBytes > 0 {
			// One extra byte lets the ingester report the limit itself.
			body = http.MaxBytesReader(w, r.Body, maxBytes+1)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: ingest.ErrTooLarge.Error()})
				return
			}
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}

		report, err := ingester.Ingest(r.Context(), ingest.OriginREST, filename, data)
		if err != nil {
			writeJSON(w, ingestStatus(err), errorResponse{Error: err.Error()})
			return
		}

		writeJSON(w, http.StatusCreated, documentResponse{
			Filename: report.Source,
			Status:   "success",
			Chunks:   report.Chunks(),
			IDs:      report.IDs,
		})
	}
}

func ingestStatus(err error) int {
	switch {
	case errors.Is(err, ingest.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ingest.ErrExtensionNotAllowed):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ingest.ErrInvalidFilename),
		errors.Is(err, ingest.ErrNotText),
		errors.Is(err, ingest.ErrEmptyDocument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}
