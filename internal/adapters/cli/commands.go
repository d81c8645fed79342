package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/watch"
)

func newScanCommand(st *runtimeState) *cobra.Command {
	var relink bool
	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "Import JPG photos from a card or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := st.app.Ingest.Scan(cmd.Context(), args[0], domain.ScanOptions{Relink: relink})
			if err != nil {
				return err
			}
			return st.render(cmd, report)
		},
	}
	cmd.Flags().BoolVar(&relink, "relink", false, "update stored paths of known photos found at a new location")
	return cmd
}

func newPreviewCommand(st *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <dir>",
		Short: "Count photos and RAW companions without importing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preview, err := st.app.Ingest.Preview(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return st.render(cmd, preview)
		},
	}
}

func newClassifyCommand(st *runtimeState) *cobra.Command {
	var (
		workers        int
		skipClassified bool
		unclassified   bool
	)
	cmd := &cobra.Command{
		Use:   "classify [photo-id...]",
		Short: "Classify photos with the configured vision model",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if unclassified {
				more, err := unclassifiedIDs(cmd.Context(), st)
				if err != nil {
					return err
				}
				ids = append(ids, more...)
			}
			if len(ids) == 0 {
				return fmt.Errorf("no photo ids given (pass ids or --unclassified)")
			}
			if workers == 0 {
				workers = st.cfg.ClassifyWorkers
			}
			report, err := st.app.Classify.Classify(cmd.Context(), domain.ClassifyRequest{
				PhotoIDs:       ids,
				Workers:        workers,
				SkipClassified: skipClassified,
			})
			if err != nil {
				return err
			}
			return st.render(cmd, report)
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel requests, 1 to 8 (default from CLASSIFY_WORKERS)")
	cmd.Flags().BoolVar(&skipClassified, "skip-classified", false, "skip photos that already have a category")
	cmd.Flags().BoolVar(&unclassified, "unclassified", false, "classify every photo that is still unclassified")
	return cmd
}

func unclassifiedIDs(ctx context.Context, st *runtimeState) ([]int64, error) {
	category := domain.CategoryUnclassified
	filter := domain.PhotoFilter{Category: &category, PageSize: domain.MaxPageSize}
	var ids []int64
	for page := 1; ; page++ {
		filter.Page = page
		result, err := st.app.Catalog.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, p := range result.Photos {
			ids = append(ids, p.ID)
		}
		if len(result.Photos) == 0 || len(ids) >= result.Total {
			return ids, nil
		}
	}
}

func addRangeFlags(cmd *cobra.Command, from, to *string) {
	cmd.Flags().StringVar(from, "from", "", "inclusive start, YYYY-MM-DD or RFC 3339")
	cmd.Flags().StringVar(to, "to", "", "inclusive end, YYYY-MM-DD or RFC 3339")
}

func newStatsCommand(st *runtimeState) *cobra.Command {
	var from, to, workbook string
	var quick bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show shooting statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if quick {
				totals, err := st.app.Stats.Quick(cmd.Context())
				if err != nil {
					return err
				}
				return st.render(cmd, totals)
			}
			window, err := domain.ParseDateRange(from, to)
			if err != nil {
				return err
			}
			report, err := st.app.Stats.Compute(cmd.Context(), window)
			if err != nil {
				return err
			}
			if workbook != "" {
				if err := writeWorkbook(workbook, report); err != nil {
					return err
				}
				slog.Info("workbook_written", "path", workbook)
			}
			return st.render(cmd, report)
		},
	}
	addRangeFlags(cmd, &from, &to)
	cmd.Flags().StringVar(&workbook, "xlsx", "", "also write the statistics workbook to this file")
	cmd.Flags().BoolVar(&quick, "quick", false, "only print totals")
	return cmd
}

func writeWorkbook(path string, report *domain.StatsReport) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.WrapError(domain.ErrIO, "create workbook dir", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return domain.WrapError(domain.ErrIO, "create workbook", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = domain.WrapError(domain.ErrIO, "close workbook", cerr)
		}
	}()
	return xlsx.Write(f, report)
}

func newSummaryCommand(st *runtimeState) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Statistics plus an AI-written shooting review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			window, err := domain.ParseDateRange(from, to)
			if err != nil {
				return err
			}
			summary, err := st.app.Summary.Generate(cmd.Context(), window)
			if err != nil {
				return err
			}
			return st.render(cmd, summary)
		},
	}
	addRangeFlags(cmd, &from, &to)
	return cmd
}

func newOrganizeCommand(st *runtimeState) *cobra.Command {
	var library string
	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Copy imported photos into the dated library tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := st.app.Organize.Organize(cmd.Context(), library)
			if err != nil {
				return err
			}
			return st.render(cmd, report)
		},
	}
	cmd.Flags().StringVar(&library, "library", "", "library root (default from LIBRARY_ROOT)")
	return cmd
}

func newExportCommand(st *runtimeState) *cobra.Command {
	var req domain.ExportRequest
	cmd := &cobra.Command{
		Use:   "export [photo-id...]",
		Short: "Export selected or given photos to a folder or zip archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			req.PhotoIDs = ids
			report, err := st.app.Export.Export(cmd.Context(), req)
			if err != nil {
				return err
			}
			return st.render(cmd, report)
		},
	}
	cmd.Flags().StringVar(&req.Destination, "dest", "", "destination directory (default from EXPORT_ROOT)")
	cmd.Flags().BoolVar(&req.IncludeRAW, "raw", false, "include RAW companions")
	cmd.Flags().BoolVar(&req.CreateZip, "zip", false, "write a zip archive instead of a folder")
	cmd.Flags().BoolVar(&req.OnlySelected, "only-selected", false, "drop given ids that are not marked selected")
	return cmd
}

func newWatchCommand(st *runtimeState) *cobra.Command {
	var (
		debounce time.Duration
		classify bool
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Scan a directory again whenever new photos land in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			w, err := watch.New(root, debounce)
			if err != nil {
				return err
			}
			slog.Info("watch_started", "root", root, "debounce", debounce.String())
			return w.Run(cmd.Context(), func(ctx context.Context) error {
				return st.rescan(ctx, cmd, root, classify)
			})
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a rescan")
	cmd.Flags().BoolVar(&classify, "classify", false, "classify newly imported photos after each scan")
	return cmd
}

func (st *runtimeState) rescan(ctx context.Context, cmd *cobra.Command, root string, classify bool) error {
	report, err := st.app.Ingest.Scan(ctx, root, domain.ScanOptions{})
	if err != nil {
		return err
	}
	if err := st.render(cmd, report); err != nil {
		return err
	}
	if !classify || report.NewImported == 0 {
		return nil
	}
	ids := make([]int64, 0, len(report.Photos))
	for _, p := range report.Photos {
		ids = append(ids, p.ID)
	}
	classified, err := st.app.Classify.Classify(ctx, domain.ClassifyRequest{
		PhotoIDs:       ids,
		Workers:        st.cfg.ClassifyWorkers,
		SkipClassified: true,
	})
	if err != nil {
		return err
	}
	return st.render(cmd, classified)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse photo id", fmt.Errorf("invalid id %q", arg))
		}
		ids = append(ids, id)
	}
	return ids, nil
}
