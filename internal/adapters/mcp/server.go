package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/core/ports"
)

const serverName = "sd-photo-assistant"

type Services struct {
	Ingest   ports.PhotoIngestor
	Classify ports.PhotoClassifier
	Stats    ports.StatisticsService
}

// Server exposes the photo pipeline as MCP tools.
type Server struct {
	svc Services
	mcp *server.MCPServer
}

func NewServer(version string, svc Services) *Server {
	s := &Server{
		svc: svc,
		mcp: server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("scan_photos",
		mcp.WithDescription("Import JPG photos under a directory: hash, read EXIF, build thumbnails and pair RAW files."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Directory or mounted card to scan")),
		mcp.WithBoolean("relink", mcp.Description("Update stored paths when known photos are found at a new location")),
	), s.scan)

	s.mcp.AddTool(mcp.NewTool("preview_scan",
		mcp.WithDescription("Count JPG photos and RAW companions under a directory without importing anything."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Directory to inspect")),
	), s.preview)

	s.mcp.AddTool(mcp.NewTool("classify_photos",
		mcp.WithDescription("Classify imported photos with the configured vision model."),
		mcp.WithArray("photo_ids", mcp.Required(), mcp.Description("Photo ids to classify"), mcp.Items(map[string]any{"type": "integer"})),
		mcp.WithNumber("workers", mcp.Description("Parallel requests, 1 to 8")),
		mcp.WithBoolean("skip_classified", mcp.Description("Skip photos that already have a category")),
	), s.classify)

	s.mcp.AddTool(mcp.NewTool("photo_statistics",
		mcp.WithDescription("Aggregate shooting statistics (categories, cameras, focal length, ISO, aperture)."),
		mcp.WithString("from", mcp.Description("Inclusive start date, YYYY-MM-DD")),
		mcp.WithString("to", mcp.Description("Inclusive end date, YYYY-MM-DD")),
	), s.statistics)

	return s
}

func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) scan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := s.svc.Ingest.Scan(ctx, root, domain.ScanOptions{Relink: req.GetBool("relink", false)})
	if err != nil {
		return toolError("scan", err), nil
	}
	return jsonResult(report)
}

func (s *Server) preview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	preview, err := s.svc.Ingest.Preview(ctx, root)
	if err != nil {
		return toolError("preview", err), nil
	}
	return jsonResult(preview)
}

func (s *Server) classify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireIntSlice("photo_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ids := make([]int64, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, int64(id))
	}
	report, err := s.svc.Classify.Classify(ctx, domain.ClassifyRequest{
		PhotoIDs:       ids,
		Workers:        req.GetInt("workers", 0),
		SkipClassified: req.GetBool("skip_classified", false),
	})
	if err != nil {
		return toolError("classify", err), nil
	}
	return jsonResult(report)
}

func (s *Server) statistics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	window, err := domain.ParseDateRange(req.GetString("from", ""), req.GetString("to", ""))
	if err != nil {
		return toolError("statistics", err), nil
	}
	report, err := s.svc.Stats.Compute(ctx, window)
	if err != nil {
		return toolError("statistics", err), nil
	}
	return jsonResult(report)
}

func toolError(tool string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s failed (%s): %v", tool, domain.KindOf(err), err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
