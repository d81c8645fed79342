package httpadapter

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/report/xlsx"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type scanRequest struct {
	Path   string `json:"path"`
	Relink bool   `json:"relink"`
}

func (rt *Router) scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	report, err := rt.svc.Ingest.Scan(r.Context(), strings.TrimSpace(req.Path), domain.ScanOptions{Relink: req.Relink})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) previewScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	preview, err := rt.svc.Ingest.Preview(r.Context(), strings.TrimSpace(req.Path))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (rt *Router) classify(w http.ResponseWriter, r *http.Request) {
	var req domain.ClassifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	report, err := rt.svc.Classify.Classify(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) listCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": domain.Categories()})
}

func (rt *Router) statistics(w http.ResponseWriter, r *http.Request) {
	window, err := dateRangeQuery(r.URL.Query())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	report, err := rt.svc.Stats.Compute(r.Context(), window)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) statisticsWorkbook(w http.ResponseWriter, r *http.Request) {
	window, err := dateRangeQuery(r.URL.Query())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	report, err := rt.svc.Stats.Compute(r.Context(), window)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := xlsx.Write(&buf, report); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="statistics.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (rt *Router) quickStatistics(w http.ResponseWriter, r *http.Request) {
	quick, err := rt.svc.Stats.Quick(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quick)
}

func (rt *Router) summary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	window, err := domain.ParseDateRange(req.From, req.To)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	summary, err := rt.svc.Summary.Generate(r.Context(), window)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) listPhotos(w http.ResponseWriter, r *http.Request) {
	filter, err := photoFilterQuery(r.URL.Query())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	page, err := rt.svc.Catalog.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (rt *Router) getPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := pathPhotoID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	photo, err := rt.svc.Catalog.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

func (rt *Router) updatePhoto(w http.ResponseWriter, r *http.Request) {
	id, err := pathPhotoID(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var update domain.PhotoUpdate
	if !decodeJSON(w, r, &update) {
		return
	}
	photo, err := rt.svc.Catalog.Update(r.Context(), id, update)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

func (rt *Router) batchUpdatePhotos(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhotoIDs []int64 `json:"photo_ids"`
		domain.PhotoUpdate
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := rt.svc.Catalog.BatchUpdate(r.Context(), req.PhotoIDs, req.PhotoUpdate)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (rt *Router) batchDeletePhotos(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhotoIDs []int64 `json:"photo_ids"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := rt.svc.Catalog.BatchDelete(r.Context(), req.PhotoIDs)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (rt *Router) organize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LibraryRoot string `json:"library_root"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	report, err := rt.svc.Organize.Organize(r.Context(), req.LibraryRoot)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) export(w http.ResponseWriter, r *http.Request) {
	var req domain.ExportRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	report, err := rt.svc.Export.Export(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) thumbnail(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]
	rc, err := rt.svc.Thumbs.Open(hash)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	n, err := io.Copy(w, rc)
	if err != nil && !errors.Is(err, r.Context().Err()) {
		slog.Warn("thumbnail_write_failed", "hash", hash, "error", err)
	}
	if rt.metrics != nil {
		rt.metrics.RecordThumbnailServed(serviceName, n)
	}
}
