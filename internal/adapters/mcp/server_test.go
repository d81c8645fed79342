package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

type ingestFake struct{ root string }

func (f *ingestFake) Scan(_ context.Context, root string, _ domain.ScanOptions) (*domain.IngestionReport, error) {
	f.root = root
	return &domain.IngestionReport{Root: root, TotalFound: 2, NewImported: 2}, nil
}

func (f *ingestFake) Preview(_ context.Context, root string) (*domain.ScanPreview, error) {
	return nil, domain.WrapError(domain.ErrInvalidInput, "preview", errors.New("not a directory"))
}

type classifyFake struct{ last domain.ClassifyRequest }

func (f *classifyFake) Classify(_ context.Context, req domain.ClassifyRequest) (*domain.ClassificationReport, error) {
	f.last = req
	return &domain.ClassificationReport{Total: len(req.PhotoIDs)}, nil
}

type statsFake struct{ window domain.DateRange }

func (f *statsFake) Compute(_ context.Context, window domain.DateRange) (*domain.StatsReport, error) {
	f.window = window
	return &domain.StatsReport{Total: 1}, nil
}

func (f *statsFake) Quick(context.Context) (*domain.QuickStats, error) {
	return &domain.QuickStats{}, nil
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatalf("expected tool content")
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	default:
		t.Fatalf("unexpected content type %T", c)
		return ""
	}
}

func TestScanToolReturnsReportJSON(t *testing.T) {
	ingest := &ingestFake{}
	s := NewServer("test", Services{Ingest: ingest})

	res, err := s.scan(context.Background(), callRequest("scan_photos", map[string]any{"path": "/media/card"}))
	if err != nil {
		t.Fatalf("scan() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	var report domain.IngestionReport
	if err := json.Unmarshal([]byte(resultText(t, res)), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.NewImported != 2 || ingest.root != "/media/card" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestScanToolRequiresPath(t *testing.T) {
	s := NewServer("test", Services{Ingest: &ingestFake{}})
	res, err := s.scan(context.Background(), callRequest("scan_photos", map[string]any{}))
	if err != nil {
		t.Fatalf("scan() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error without path")
	}
}

func TestPreviewToolReportsErrorKind(t *testing.T) {
	s := NewServer("test", Services{Ingest: &ingestFake{}})
	res, _ := s.preview(context.Background(), callRequest("preview_scan", map[string]any{"path": "/nope"}))
	if !res.IsError || !strings.Contains(resultText(t, res), "invalid_input") {
		t.Fatalf("expected invalid_input tool error, got %+v", res)
	}
}

func TestClassifyToolConvertsArguments(t *testing.T) {
	classify := &classifyFake{}
	s := NewServer("test", Services{Classify: classify})

	// JSON numbers arrive as float64.
	args := map[string]any{"photo_ids": []any{float64(3), float64(5)}, "workers": float64(2), "skip_classified": true}
	res, err := s.classify(context.Background(), callRequest("classify_photos", args))
	if err != nil || res.IsError {
		t.Fatalf("classify() = %+v, %v", res, err)
	}
	if len(classify.last.PhotoIDs) != 2 || classify.last.PhotoIDs[1] != 5 || classify.last.Workers != 2 || !classify.last.SkipClassified {
		t.Fatalf("unexpected request %+v", classify.last)
	}
}

func TestStatisticsToolParsesDates(t *testing.T) {
	stats := &statsFake{}
	s := NewServer("test", Services{Stats: stats})

	res, err := s.statistics(context.Background(), callRequest("photo_statistics", map[string]any{"from": "2026-03-01"}))
	if err != nil || res.IsError {
		t.Fatalf("statistics() = %+v, %v", res, err)
	}
	if stats.window.From.IsZero() || !stats.window.To.IsZero() {
		t.Fatalf("unexpected window %+v", stats.window)
	}

	res, _ = s.statistics(context.Background(), callRequest("photo_statistics", map[string]any{"to": "soon"}))
	if !res.IsError {
		t.Fatalf("expected tool error for malformed date")
	}
}
