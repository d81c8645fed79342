package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/sd-photo-assistant/internal/config"
	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/observability/metrics"
)

type ingestFake struct {
	err      error
	lastRoot string
	lastOpts domain.ScanOptions
}

func (f *ingestFake) Scan(_ context.Context, root string, opts domain.ScanOptions) (*domain.IngestionReport, error) {
	f.lastRoot, f.lastOpts = root, opts
	if f.err != nil {
		return nil, f.err
	}
	return &domain.IngestionReport{Root: root, TotalFound: 5, NewImported: 4, Duplicates: 1}, nil
}

func (f *ingestFake) Preview(_ context.Context, root string) (*domain.ScanPreview, error) {
	return &domain.ScanPreview{Valid: true, Path: root, JPGCount: 3}, nil
}

type classifyFake struct {
	err  error
	last domain.ClassifyRequest
}

func (f *classifyFake) Classify(_ context.Context, req domain.ClassifyRequest) (*domain.ClassificationReport, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ClassificationReport{Total: len(req.PhotoIDs), Classified: len(req.PhotoIDs)}, nil
}

type statsFake struct{}

func (statsFake) Compute(_ context.Context, window domain.DateRange) (*domain.StatsReport, error) {
	return &domain.StatsReport{Range: window, Total: 2, Categories: []domain.Bucket{{Label: "street", Count: 2}}}, nil
}

func (statsFake) Quick(context.Context) (*domain.QuickStats, error) {
	return &domain.QuickStats{Total: 2}, nil
}

type catalogFake struct {
	lastFilter domain.PhotoFilter
	lastUpdate domain.PhotoUpdate
	lastIDs    []int64
}

func (f *catalogFake) Get(_ context.Context, id int64) (*domain.Photo, error) {
	if id != 7 {
		return nil, domain.WrapError(domain.ErrNotFound, "get photo", errors.New("missing"))
	}
	return &domain.Photo{ID: 7, FileName: "A.JPG"}, nil
}

func (f *catalogFake) List(_ context.Context, filter domain.PhotoFilter) (*domain.PhotoPage, error) {
	f.lastFilter = filter
	return &domain.PhotoPage{Photos: []domain.Photo{}, Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (f *catalogFake) Update(_ context.Context, id int64, update domain.PhotoUpdate) (*domain.Photo, error) {
	f.lastUpdate = update
	return &domain.Photo{ID: id}, nil
}

func (f *catalogFake) BatchUpdate(_ context.Context, ids []int64, update domain.PhotoUpdate) (int, error) {
	f.lastIDs, f.lastUpdate = ids, update
	return len(ids), nil
}

func (f *catalogFake) BatchDelete(_ context.Context, ids []int64) (int, error) {
	f.lastIDs = ids
	return len(ids), nil
}

type thumbsFake struct{}

func (thumbsFake) Ensure(context.Context, string, string) (string, error) { return "", nil }

func (thumbsFake) Open(hash string) (io.ReadCloser, error) {
	if strings.HasPrefix(hash, "a") {
		return io.NopCloser(strings.NewReader("jpeg-bytes")), nil
	}
	return nil, domain.WrapError(domain.ErrNotFound, "open thumbnail", errors.New(hash))
}

type testDeps struct {
	ingest   *ingestFake
	classify *classifyFake
	catalog  *catalogFake
}

func newTestHandlerWith(t *testing.T, cfg config.Config, m *metrics.HTTPServerMetrics) (http.Handler, testDeps) {
	t.Helper()
	deps := testDeps{ingest: &ingestFake{}, classify: &classifyFake{}, catalog: &catalogFake{}}
	rt, err := NewRouter(cfg, Services{
		Ingest:   deps.ingest,
		Classify: deps.classify,
		Stats:    statsFake{},
		Catalog:  deps.catalog,
		Thumbs:   thumbsFake{},
	}, m)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	handler, err := rt.Handler()
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	return handler, deps
}

func newTestHandler(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	handler, _ := newTestHandlerWith(t, cfg, nil)
	return handler
}

func doJSON(handler http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestScanReturnsReport(t *testing.T) {
	handler, deps := newTestHandlerWith(t, config.Config{}, nil)

	res := doJSON(handler, http.MethodPost, "/v1/scans", map[string]any{"path": " /media/card ", "relink": true})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if deps.ingest.lastRoot != "/media/card" || !deps.ingest.lastOpts.Relink {
		t.Fatalf("unexpected scan call root=%q opts=%+v", deps.ingest.lastRoot, deps.ingest.lastOpts)
	}
	var report domain.IngestionReport
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.NewImported != 4 || report.Duplicates != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestScanRejectsBodyWithoutPath(t *testing.T) {
	handler := newTestHandler(t, config.Config{})
	res := doJSON(handler, http.MethodPost, "/v1/scans", map[string]any{"relink": true})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 from request validation, got %d", res.Code)
	}
}

func TestScanMapsInvalidRootTo400(t *testing.T) {
	handler, deps := newTestHandlerWith(t, config.Config{}, nil)
	deps.ingest.err = domain.WrapError(domain.ErrInvalidInput, "scan root", errors.New("not a directory"))

	res := doJSON(handler, http.MethodPost, "/v1/scans", map[string]any{"path": "/nope"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestClassifyConfigErrorMapsTo412(t *testing.T) {
	handler, deps := newTestHandlerWith(t, config.Config{}, nil)
	deps.classify.err = domain.WrapError(domain.ErrConfig, "vision", errors.New("AI_API_KEY is not set"))

	res := doJSON(handler, http.MethodPost, "/v1/classifications", map[string]any{"photo_ids": []int64{1, 2}})
	if res.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d", res.Code)
	}
}

func TestClassifyRejectsTooManyWorkers(t *testing.T) {
	handler := newTestHandler(t, config.Config{})
	res := doJSON(handler, http.MethodPost, "/v1/classifications", map[string]any{"photo_ids": []int64{1}, "workers": 9})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetPhoto(t *testing.T) {
	handler := newTestHandler(t, config.Config{})

	if res := doJSON(handler, http.MethodGet, "/v1/photos/7", nil); res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res := doJSON(handler, http.MethodGet, "/v1/photos/8", nil); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
	if res := doJSON(handler, http.MethodGet, "/v1/photos/0", nil); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for id 0, got %d", res.Code)
	}
}

func TestListPhotosBindsQuery(t *testing.T) {
	handler, deps := newTestHandlerWith(t, config.Config{}, nil)

	res := doJSON(handler, http.MethodGet, "/v1/photos?page=2&page_size=20&category=street&is_selected=true&iso_min=100&from=2026-03-01&to=2026-03-02", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	f := deps.catalog.lastFilter
	if f.Page != 2 || f.PageSize != 20 || f.Category == nil || *f.Category != domain.CategoryStreet {
		t.Fatalf("unexpected filter %+v", f)
	}
	if f.IsSelected == nil || !*f.IsSelected || f.ISOMin == nil || *f.ISOMin != 100 {
		t.Fatalf("unexpected filter %+v", f)
	}
	if f.Range.From.Day() != 1 || f.Range.To.Day() != 2 || f.Range.To.Hour() != 23 {
		t.Fatalf("unexpected range %+v", f.Range)
	}

	if res := doJSON(handler, http.MethodGet, "/v1/photos?page_size=500", nil); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized page, got %d", res.Code)
	}
	if res := doJSON(handler, http.MethodGet, "/v1/photos?from=yesterday", nil); res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", res.Code)
	}
}

func TestBatchUpdateFlattensFields(t *testing.T) {
	handler, deps := newTestHandlerWith(t, config.Config{}, nil)

	res := doJSON(handler, http.MethodPost, "/v1/photos/batch-update", map[string]any{"photo_ids": []int64{1, 2}, "is_selected": true})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if len(deps.catalog.lastIDs) != 2 || deps.catalog.lastUpdate.IsSelected == nil {
		t.Fatalf("unexpected batch update ids=%v update=%+v", deps.catalog.lastIDs, deps.catalog.lastUpdate)
	}

	res = doJSON(handler, http.MethodPost, "/v1/photos/batch-delete", map[string]any{"photo_ids": []int64{}})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty photo_ids, got %d", res.Code)
	}
}

func TestThumbnailServedAndCounted(t *testing.T) {
	m := metrics.NewHTTPServerMetrics("api")
	handler, _ := newTestHandlerWith(t, config.Config{}, m)
	hash := "a" + strings.Repeat("0", 39)

	res := doJSON(handler, http.MethodGet, "/thumbs/"+hash+".jpg", nil)
	if res.Code != http.StatusOK || res.Body.String() != "jpeg-bytes" || res.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("unexpected thumbnail response %d %q", res.Code, res.Body.String())
	}
	if res := doJSON(handler, http.MethodGet, "/thumbs/"+strings.Repeat("b", 40)+".jpg", nil); res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing thumbnail, got %d", res.Code)
	}

	scrape := doJSON(handler, http.MethodGet, "/metrics", nil)
	if !strings.Contains(scrape.Body.String(), `photo_http_thumbnail_bytes_total{service="api"} 10`) {
		t.Fatalf("expected thumbnail bytes metric, got:\n%s", scrape.Body.String())
	}
}

func TestStatisticsWorkbook(t *testing.T) {
	handler := newTestHandler(t, config.Config{})
	res := doJSON(handler, http.MethodGet, "/v1/statistics.xlsx?from=2026-03-01", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if res.Header().Get("Content-Type") != xlsxContentType || res.Body.Len() == 0 {
		t.Fatalf("unexpected workbook response headers=%v len=%d", res.Header(), res.Body.Len())
	}
	// xlsx files are zip archives
	if !bytes.HasPrefix(res.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected zip payload")
	}
}

func TestBearerAuthGuardsAPIRoutes(t *testing.T) {
	handler := newTestHandler(t, config.Config{APIKey: "secret"})

	if res := doJSON(handler, http.MethodGet, "/v1/categories", nil); res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}
	if res := doJSON(handler, http.MethodGet, "/healthz", nil); res.Code != http.StatusOK {
		t.Fatalf("expected healthz to stay open, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/categories", nil)
	req.Header.Set("Authorization", "Bearer secret")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", res.Code)
	}
}

func TestOpenAPIDocumentServed(t *testing.T) {
	res := doJSON(newTestHandler(t, config.Config{}), http.MethodGet, "/openapi.json", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var doc map[string]any
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	if _, ok := paths["/v1/scans"]; !ok {
		t.Fatalf("expected /v1/scans in served document")
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		kind error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrConfig, http.StatusPreconditionFailed},
		{domain.ErrTemporary, http.StatusServiceUnavailable},
		{domain.ErrRemoteTransport, http.StatusServiceUnavailable},
		{domain.ErrRemoteFormat, http.StatusBadGateway},
		{domain.ErrIO, http.StatusInternalServerError},
		{domain.ErrThumbnail, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		err := domain.WrapError(tc.kind, "op", errors.New("boom"))
		if got := mapErrorToHTTPStatus(err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}
