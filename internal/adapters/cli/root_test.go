package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/sd-photo-assistant/internal/config"
	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

type ingestFake struct {
	roots []string
	opts  []domain.ScanOptions
}

func (f *ingestFake) Scan(_ context.Context, root string, opts domain.ScanOptions) (*domain.IngestionReport, error) {
	f.roots = append(f.roots, root)
	f.opts = append(f.opts, opts)
	return &domain.IngestionReport{
		Root:        root,
		TotalFound:  2,
		NewImported: 1,
		Duplicates:  1,
		Photos:      []domain.Photo{{ID: 7}, {ID: 8}},
		Errors:      []domain.ItemError{},
	}, nil
}

func (f *ingestFake) Preview(_ context.Context, root string) (*domain.ScanPreview, error) {
	return &domain.ScanPreview{Valid: true, Path: root, JPGCount: 4, EstimatedCompanionCount: 2}, nil
}

type classifyFake struct {
	reqs []domain.ClassifyRequest
}

func (f *classifyFake) Classify(_ context.Context, req domain.ClassifyRequest) (*domain.ClassificationReport, error) {
	f.reqs = append(f.reqs, req)
	return &domain.ClassificationReport{Total: len(req.PhotoIDs), Classified: len(req.PhotoIDs)}, nil
}

type statsFake struct {
	window domain.DateRange
}

func (f *statsFake) Compute(_ context.Context, window domain.DateRange) (*domain.StatsReport, error) {
	f.window = window
	return &domain.StatsReport{
		Range:      window,
		Total:      3,
		Categories: []domain.Bucket{{Label: "street", Count: 2}, {Label: "food", Count: 1}},
	}, nil
}

func (f *statsFake) Quick(context.Context) (*domain.QuickStats, error) {
	return &domain.QuickStats{Total: 3, Classified: 2, Unclassified: 1}, nil
}

type catalogFake struct {
	filters []domain.PhotoFilter
}

func (f *catalogFake) Get(context.Context, int64) (*domain.Photo, error) {
	return nil, errors.New("not used")
}

func (f *catalogFake) List(_ context.Context, filter domain.PhotoFilter) (*domain.PhotoPage, error) {
	f.filters = append(f.filters, filter)
	if filter.Page > 1 {
		return &domain.PhotoPage{Total: 2, Page: filter.Page}, nil
	}
	return &domain.PhotoPage{Photos: []domain.Photo{{ID: 11}, {ID: 12}}, Total: 2, Page: 1}, nil
}

func (f *catalogFake) Update(context.Context, int64, domain.PhotoUpdate) (*domain.Photo, error) {
	return nil, errors.New("not used")
}

func (f *catalogFake) BatchUpdate(context.Context, []int64, domain.PhotoUpdate) (int, error) {
	return 0, errors.New("not used")
}

func (f *catalogFake) BatchDelete(context.Context, []int64) (int, error) {
	return 0, errors.New("not used")
}

type exportFake struct {
	req domain.ExportRequest
}

func (f *exportFake) Export(_ context.Context, req domain.ExportRequest) (*domain.ExportReport, error) {
	f.req = req
	return &domain.ExportReport{Path: "/tmp/out.zip", ExportedCount: len(req.PhotoIDs)}, nil
}

type fakes struct {
	ingest   *ingestFake
	classify *classifyFake
	stats    *statsFake
	catalog  *catalogFake
	export   *exportFake
	closed   int
}

func runCLI(t *testing.T, args ...string) (string, *fakes, error) {
	t.Helper()
	f := &fakes{
		ingest:   &ingestFake{},
		classify: &classifyFake{},
		stats:    &statsFake{},
		catalog:  &catalogFake{},
		export:   &exportFake{},
	}
	factory := func(config.Config) (*App, error) {
		return &App{
			Ingest:   f.ingest,
			Classify: f.classify,
			Stats:    f.stats,
			Catalog:  f.catalog,
			Export:   f.export,
			Close: func() error {
				f.closed++
				return nil
			},
		}, nil
	}

	cmd := NewRootCommand(factory)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), f, err
}

func TestScanRendersJSON(t *testing.T) {
	out, f, err := runCLI(t, "scan", "/media/card", "--relink", "-o", "json")
	if err != nil {
		t.Fatalf("scan error = %v", err)
	}
	if len(f.ingest.roots) != 1 || f.ingest.roots[0] != "/media/card" || !f.ingest.opts[0].Relink {
		t.Fatalf("unexpected scan calls %+v %+v", f.ingest.roots, f.ingest.opts)
	}
	var report domain.IngestionReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not json: %v\n%s", err, out)
	}
	if report.NewImported != 1 || report.Duplicates != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if f.closed != 1 {
		t.Fatalf("expected app closed once, got %d", f.closed)
	}
}

func TestPreviewRendersYAML(t *testing.T) {
	out, _, err := runCLI(t, "preview", "/media/card", "-o", "yaml")
	if err != nil {
		t.Fatalf("preview error = %v", err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not yaml: %v\n%s", err, out)
	}
	if decoded["jpg_count"] != 4 {
		t.Fatalf("expected jpg_count 4, got %v in\n%s", decoded["jpg_count"], out)
	}
}

func TestClassifyCollectsUnclassifiedIDs(t *testing.T) {
	_, f, err := runCLI(t, "classify", "3", "--unclassified", "--workers", "2", "--skip-classified", "-o", "json")
	if err != nil {
		t.Fatalf("classify error = %v", err)
	}
	if len(f.classify.reqs) != 1 {
		t.Fatalf("expected one classify call, got %d", len(f.classify.reqs))
	}
	req := f.classify.reqs[0]
	if len(req.PhotoIDs) != 3 || req.PhotoIDs[0] != 3 || req.PhotoIDs[2] != 12 {
		t.Fatalf("unexpected ids %v", req.PhotoIDs)
	}
	if req.Workers != 2 || !req.SkipClassified {
		t.Fatalf("unexpected request %+v", req)
	}
	if got := f.catalog.filters[0]; got.Category == nil || *got.Category != domain.CategoryUnclassified {
		t.Fatalf("expected unclassified filter, got %+v", got)
	}
}

func TestClassifyRejectsBadInput(t *testing.T) {
	if _, _, err := runCLI(t, "classify", "-o", "json"); err == nil {
		t.Fatalf("expected error without ids")
	}
	_, _, err := runCLI(t, "classify", "abc", "-o", "json")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestStatsParsesRangeAndWritesWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "stats.xlsx")
	_, f, err := runCLI(t, "stats", "--from", "2026-03-01", "--to", "2026-03-07", "--xlsx", path, "-o", "json")
	if err != nil {
		t.Fatalf("stats error = %v", err)
	}
	if f.stats.window.From.Format("2006-01-02") != "2026-03-01" || f.stats.window.To.Hour() != 23 {
		t.Fatalf("unexpected window %+v", f.stats.window)
	}

	wb, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer wb.Close()
	if idx, _ := wb.GetSheetIndex("Categories"); idx < 0 {
		t.Fatalf("expected Categories sheet, got %v", wb.GetSheetList())
	}
}

func TestStatsRejectsBadDate(t *testing.T) {
	_, _, err := runCLI(t, "stats", "--from", "yesterday", "-o", "json")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestStatsQuickTable(t *testing.T) {
	out, _, err := runCLI(t, "stats", "--quick", "-o", "table")
	if err != nil {
		t.Fatalf("stats error = %v", err)
	}
	if !strings.Contains(out, "3") {
		t.Fatalf("expected totals in table output, got\n%s", out)
	}
}

func TestExportPassesFlags(t *testing.T) {
	_, f, err := runCLI(t, "export", "1", "2", "--dest", "/tmp/x", "--zip", "--raw", "--only-selected", "-o", "json")
	if err != nil {
		t.Fatalf("export error = %v", err)
	}
	req := f.export.req
	if len(req.PhotoIDs) != 2 || req.Destination != "/tmp/x" || !req.CreateZip || !req.IncludeRAW || !req.OnlySelected {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestUnknownOutputFormat(t *testing.T) {
	_, f, err := runCLI(t, "preview", "/x", "-o", "xml")
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Fatalf("expected format error, got %v", err)
	}
	if len(f.ingest.roots) != 0 {
		t.Fatalf("expected no work on a bad format")
	}
}

func TestRescanClassifiesImportedPhotos(t *testing.T) {
	ingest := &ingestFake{}
	classify := &classifyFake{}
	st := &runtimeState{
		output: "json",
		cfg:    config.Config{ClassifyWorkers: 3},
		app:    &App{Ingest: ingest, Classify: classify},
	}
	cmd := NewRootCommand(nil)
	cmd.SetOut(&bytes.Buffer{})
	if err := st.rescan(context.Background(), cmd, "/media/card", true); err != nil {
		t.Fatalf("rescan error = %v", err)
	}
	if len(ingest.roots) != 1 || len(classify.reqs) != 1 {
		t.Fatalf("expected one scan and one classify, got %d and %d", len(ingest.roots), len(classify.reqs))
	}
	req := classify.reqs[0]
	if !req.SkipClassified || req.Workers != 3 || len(req.PhotoIDs) != 2 {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestWatchRejectsMissingDir(t *testing.T) {
	_, _, err := runCLI(t, "watch", filepath.Join(os.TempDir(), "does-not-exist-photoctl"), "-o", "json")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
