package httpadapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gorilla/mux"

	"github.com/kirillkom/sd-photo-assistant/internal/config"
	"github.com/kirillkom/sd-photo-assistant/internal/core/ports"
	"github.com/kirillkom/sd-photo-assistant/internal/observability/metrics"
)

const (
	serviceName      = "api"
	backpressureWait = 250 * time.Millisecond
	maxBodyBytes     = 1 << 20
)

// Services bundles the inbound ports the API exposes.
type Services struct {
	Ingest   ports.PhotoIngestor
	Classify ports.PhotoClassifier
	Stats    ports.StatisticsService
	Summary  ports.SummaryService
	Organize ports.PhotoOrganizer
	Export   ports.PhotoExporter
	Catalog  ports.PhotoCatalog
	Thumbs   ports.ThumbnailStore
}

type Router struct {
	svc     Services
	cfg     config.Config
	doc     *openapi3.T
	metrics *metrics.HTTPServerMetrics
}

// NewRouter builds the API router. m may be nil.
func NewRouter(cfg config.Config, svc Services, m *metrics.HTTPServerMetrics) (*Router, error) {
	doc, err := LoadOpenAPI()
	if err != nil {
		return nil, err
	}
	return &Router{svc: svc, cfg: cfg, doc: doc, metrics: m}, nil
}

func (rt *Router) Handler() (http.Handler, error) {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", rt.healthz).Methods(http.MethodGet)
	r.HandleFunc("/openapi.json", rt.openAPIDocument).Methods(http.MethodGet)
	if rt.metrics != nil {
		r.Handle("/metrics", rt.metrics.Handler()).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/scans", rt.scan).Methods(http.MethodPost)
	v1.HandleFunc("/scans/preview", rt.previewScan).Methods(http.MethodPost)
	v1.HandleFunc("/classifications", rt.classify).Methods(http.MethodPost)
	v1.HandleFunc("/categories", rt.listCategories).Methods(http.MethodGet)
	v1.HandleFunc("/statistics", rt.statistics).Methods(http.MethodGet)
	v1.HandleFunc("/statistics.xlsx", rt.statisticsWorkbook).Methods(http.MethodGet)
	v1.HandleFunc("/statistics/quick", rt.quickStatistics).Methods(http.MethodGet)
	v1.HandleFunc("/summaries", rt.summary).Methods(http.MethodPost)
	v1.HandleFunc("/photos", rt.listPhotos).Methods(http.MethodGet)
	v1.HandleFunc("/photos/batch-update", rt.batchUpdatePhotos).Methods(http.MethodPost)
	v1.HandleFunc("/photos/batch-delete", rt.batchDeletePhotos).Methods(http.MethodPost)
	v1.HandleFunc("/photos/{id:[0-9]+}", rt.getPhoto).Methods(http.MethodGet)
	v1.HandleFunc("/photos/{id:[0-9]+}", rt.updatePhoto).Methods(http.MethodPatch)
	v1.HandleFunc("/organize", rt.organize).Methods(http.MethodPost)
	v1.HandleFunc("/exports", rt.export).Methods(http.MethodPost)

	r.HandleFunc("/thumbs/{hash:[0-9a-f]{40}}.jpg", rt.thumbnail).Methods(http.MethodGet)

	validated, err := requestValidationMiddleware(rt.doc, r)
	if err != nil {
		return nil, err
	}

	var handler http.Handler = validated
	handler = bearerAuthMiddleware(rt.cfg.APIKey, handler)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler, nil
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPIDocument(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.doc)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	if r.Context().Err() != nil {
		return
	}
	writeError(w, status, err.Error())
}
