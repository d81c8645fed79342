package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/core/ports"
)

type StatsUseCase struct {
	repo ports.PhotoRepository
}

func NewStatsUseCase(repo ports.PhotoRepository) *StatsUseCase {
	return &StatsUseCase{repo: repo}
}

func (uc *StatsUseCase) Compute(ctx context.Context, window domain.DateRange) (*domain.StatsReport, error) {
	if err := validateRange(window); err != nil {
		return nil, err
	}
	photos, err := uc.repo.ListForStats(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("load photos for statistics: %w", err)
	}
	return domain.Aggregate(photos, window), nil
}

func (uc *StatsUseCase) Quick(ctx context.Context) (*domain.QuickStats, error) {
	photos, err := uc.repo.ListForStats(ctx, domain.DateRange{})
	if err != nil {
		return nil, fmt.Errorf("load photos for statistics: %w", err)
	}
	quick := &domain.QuickStats{Total: len(photos)}
	for _, p := range photos {
		if p.HasCompanion() {
			quick.WithCompanion++
		}
		if p.IsSelected {
			quick.Selected++
		}
		if p.Category == "" || p.Category == domain.CategoryUnclassified {
			quick.Unclassified++
		} else {
			quick.Classified++
		}
	}
	return quick, nil
}

func validateRange(window domain.DateRange) error {
	if !window.From.IsZero() && !window.To.IsZero() && window.To.Before(window.From) {
		return domain.WrapError(domain.ErrInvalidInput, "statistics", errors.New("date range ends before it starts"))
	}
	return nil
}

const (
	summaryNotConfigured = "AI summary is not configured: set AI_API_KEY (or use the ollama provider) to enable it."
	summaryNoData        = "no photos available for a summary"
)

type SummaryUseCase struct {
	stats  *StatsUseCase
	writer ports.SummaryWriter
	now    func() time.Time
}

// NewSummaryUseCase builds summaries; writer may be nil when no AI is configured.
func NewSummaryUseCase(stats *StatsUseCase, writer ports.SummaryWriter) *SummaryUseCase {
	return &SummaryUseCase{
		stats:  stats,
		writer: writer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (uc *SummaryUseCase) Generate(ctx context.Context, window domain.DateRange) (*domain.Summary, error) {
	report, err := uc.stats.Compute(ctx, window)
	if err != nil {
		return nil, err
	}

	summary := &domain.Summary{
		Stats:       report,
		GeneratedAt: uc.now(),
	}
	if report.NoData {
		summary.NoData = true
		summary.Message = summaryNoData
		return summary, nil
	}
	summary.Charts = ChartsFor(report)

	if uc.writer == nil || uc.writer.Ready() != nil {
		summary.AIText = summaryNotConfigured
		summary.Message = "summary generated without AI review"
		return summary, nil
	}

	summary.AIEnabled = true
	text, err := uc.writer.WriteSummary(ctx, SummaryPrompt(report))
	if err != nil {
		slog.Warn("summary_ai_failed", "error", err)
		summary.AIText = "AI summary failed: " + err.Error()
	} else {
		summary.AIText = strings.TrimSpace(text)
	}
	summary.Message = "summary generated"
	return summary, nil
}

// ChartsFor lays out the report as pie and bar series, plus an overview bar.
func ChartsFor(report *domain.StatsReport) []domain.ChartSeries {
	overview := []domain.Bucket{
		{Label: "total", Count: report.Total},
		{Label: "with_raw", Count: report.WithCompanion},
		{Label: "selected", Count: report.Selected},
	}
	return []domain.ChartSeries{
		domain.NewChartSeries("category", domain.ChartPie, report.Categories),
		domain.NewChartSeries("camera", domain.ChartPie, report.Cameras),
		domain.NewChartSeries("focal_length", domain.ChartBar, report.FocalLengths),
		domain.NewChartSeries("iso", domain.ChartBar, report.ISOs),
		domain.NewChartSeries("aperture", domain.ChartBar, report.Apertures),
		domain.NewChartSeries("overview", domain.ChartBar, overview),
	}
}

// SummaryPrompt asks a text model for a photography coaching review of report.
func SummaryPrompt(report *domain.StatsReport) string {
	payload := map[string]any{
		"total":         report.Total,
		"with_raw":      report.WithCompanion,
		"selected":      report.Selected,
		"categories":    bucketMap(report.Categories),
		"cameras":       bucketMap(report.Cameras),
		"focal_lengths": bucketMap(report.FocalLengths),
		"isos":          bucketMap(report.ISOs),
		"apertures":     bucketMap(report.Apertures),
	}
	raw, _ := json.MarshalIndent(payload, "", "  ")

	return `You are a photography coach. Based on the statistics below, write a shooting review with:
- an overview of the day's themes (2-3 sentences)
- a reading of the data: focal length, ISO, shutter and aperture distributions and what they suggest
- 3 actionable suggestions
- one sentence recommending a highlight

Statistics (JSON):
` + string(raw) + `

Keep the language plain enough for a beginner.`
}

func bucketMap(buckets []domain.Bucket) map[string]int {
	out := make(map[string]int, len(buckets))
	for _, b := range buckets {
		out[b.Label] = b.Count
	}
	return out
}
