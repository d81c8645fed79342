package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/sd-photo-assistant/internal/adapters/cli"
	"github.com/kirillkom/sd-photo-assistant/internal/bootstrap"
	"github.com/kirillkom/sd-photo-assistant/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(func(cfg config.Config) (*cli.App, error) {
		app, err := bootstrap.New(ctx, cfg, bootstrap.Options{})
		if err != nil {
			return nil, err
		}
		return &cli.App{
			Ingest:   app.IngestUC,
			Classify: app.ClassifyUC,
			Stats:    app.StatsUC,
			Summary:  app.SummaryUC,
			Organize: app.OrganizeUC,
			Export:   app.ExportUC,
			Catalog:  app.CatalogUC,
			Close:    app.Close,
		}, nil
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
