package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kirillkom/sd-photo-assistant/internal/config"
	"github.com/kirillkom/sd-photo-assistant/internal/core/ports"
	"github.com/kirillkom/sd-photo-assistant/internal/observability/logging"
)

// App is the set of use cases the command tree drives.
type App struct {
	Ingest   ports.PhotoIngestor
	Classify ports.PhotoClassifier
	Stats    ports.StatisticsService
	Summary  ports.SummaryService
	Organize ports.PhotoOrganizer
	Export   ports.PhotoExporter
	Catalog  ports.PhotoCatalog
	Close    func() error
}

// Factory builds the App once configuration is known.
type Factory func(cfg config.Config) (*App, error)

type runtimeState struct {
	factory  Factory
	cfgFile  string
	output   string
	logLevel string

	cfg config.Config
	app *App
}

func NewRootCommand(factory Factory) *cobra.Command {
	st := &runtimeState{factory: factory}

	root := &cobra.Command{
		Use:   "photoctl",
		Short: "Import, classify and review photos from SD cards",
		Long: `photoctl imports JPG photos from a card or directory, pairs them with RAW
files, classifies them with a vision model and summarizes shooting habits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return st.open(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return st.close()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVar(&st.cfgFile, "config", "", "config file (toml, yaml or json)")
	flags.StringVarP(&st.output, "output", "o", "", "output format: table, json or yaml (default table on a terminal, json otherwise)")
	flags.StringVar(&st.logLevel, "log-level", "", "log level override")

	root.AddCommand(
		newScanCommand(st),
		newPreviewCommand(st),
		newClassifyCommand(st),
		newStatsCommand(st),
		newSummaryCommand(st),
		newOrganizeCommand(st),
		newExportCommand(st),
		newWatchCommand(st),
	)
	return root
}

func (st *runtimeState) open(cmd *cobra.Command) error {
	cfg, err := config.LoadFile(st.cfgFile)
	if err != nil {
		return err
	}
	if st.logLevel != "" {
		cfg.LogLevel = st.logLevel
	}
	slog.SetDefault(logging.New(cmd.ErrOrStderr(), "photoctl", cfg.LogLevel, "text"))

	if _, err := resolveFormat(st.output, cmd.OutOrStdout()); err != nil {
		return err
	}

	app, err := st.factory(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	st.cfg = cfg
	st.app = app
	return nil
}

func (st *runtimeState) close() error {
	if st.app == nil || st.app.Close == nil {
		return nil
	}
	err := st.app.Close()
	st.app = nil
	return err
}

func (st *runtimeState) render(cmd *cobra.Command, v any) error {
	format, err := resolveFormat(st.output, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), format, v)
}
