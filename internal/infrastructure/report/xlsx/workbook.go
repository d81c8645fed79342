package xlsx

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

const overviewSheet = "Overview"

type distribution struct {
	sheet   string
	buckets []domain.Bucket
	chart   excelize.ChartType
}

// Write renders report as a workbook: an Overview sheet plus one sheet per
// distribution, each with a chart of its buckets.
func Write(w io.Writer, report *domain.StatsReport) error {
	if report == nil {
		return domain.WrapError(domain.ErrInvalidInput, "write workbook", errors.New("nil report"))
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", overviewSheet); err != nil {
		return wrap(err)
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return wrap(err)
	}
	if err := writeOverview(f, report, header); err != nil {
		return err
	}

	for _, d := range []distribution{
		{sheet: "Categories", buckets: report.Categories, chart: excelize.Pie},
		{sheet: "Cameras", buckets: report.Cameras, chart: excelize.Pie},
		{sheet: "FocalLengths", buckets: report.FocalLengths, chart: excelize.Col},
		{sheet: "ISO", buckets: report.ISOs, chart: excelize.Col},
		{sheet: "Apertures", buckets: report.Apertures, chart: excelize.Col},
	} {
		if err := writeDistribution(f, d, header); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return domain.WrapError(domain.ErrIO, "write workbook", err)
	}
	return nil
}

func writeOverview(f *excelize.File, report *domain.StatsReport, header int) error {
	rows := [][]any{
		{"metric", "value"},
		{"total", report.Total},
		{"with_raw", report.WithCompanion},
		{"selected", report.Selected},
		{"from", formatBound(report.Range.From.IsZero(), report.Range.From.Format("2006-01-02"))},
		{"to", formatBound(report.Range.To.IsZero(), report.Range.To.Format("2006-01-02"))},
	}
	if report.NoData {
		rows = append(rows, []any{"note", "no photos in range"})
	}
	if err := setRows(f, overviewSheet, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(overviewSheet, "A1", "B1", header); err != nil {
		return wrap(err)
	}
	return wrap(f.SetColWidth(overviewSheet, "A", "A", 16))
}

func writeDistribution(f *excelize.File, d distribution, header int) error {
	if _, err := f.NewSheet(d.sheet); err != nil {
		return wrap(err)
	}
	rows := make([][]any, 0, len(d.buckets)+1)
	rows = append(rows, []any{"label", "count"})
	for _, b := range d.buckets {
		rows = append(rows, []any{b.Label, b.Count})
	}
	if err := setRows(f, d.sheet, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(d.sheet, "A1", "B1", header); err != nil {
		return wrap(err)
	}
	if len(d.buckets) == 0 {
		return nil
	}

	last := len(d.buckets) + 1
	chart := &excelize.Chart{
		Type: d.chart,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("'%s'!$B$1", d.sheet),
			Categories: fmt.Sprintf("'%s'!$A$2:$A$%d", d.sheet, last),
			Values:     fmt.Sprintf("'%s'!$B$2:$B$%d", d.sheet, last),
		}},
		Title: []excelize.RichTextRun{{Text: d.sheet}},
	}
	return wrap(f.AddChart(d.sheet, "D2", chart))
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return wrap(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return wrap(err)
		}
	}
	return nil
}

func formatBound(open bool, value string) string {
	if open {
		return "open"
	}
	return value
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return domain.WrapError(domain.ErrIO, "build workbook", err)
}
