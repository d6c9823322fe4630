// Export command: render a single insight or dashboard without the queue.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"rendersnap/internal/browser"
	"rendersnap/internal/config"
	"rendersnap/internal/export"
	"rendersnap/internal/report"
	"rendersnap/internal/storage"
	"rendersnap/internal/token"
)

var (
	exportInsightID   string
	exportDashboardID string
	exportTeamID      string
	exportFormat      string
	exportOutDir      string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run a one-shot export and store the image locally",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportInsightID, "insight", "", "insight ID to export")
	exportCmd.Flags().StringVar(&exportDashboardID, "dashboard", "", "dashboard ID to export")
	exportCmd.Flags().StringVar(&exportTeamID, "team", "", "team ID the asset belongs to")
	exportCmd.Flags().StringVar(&exportFormat, "format", export.FormatPNG, "export format")
	exportCmd.Flags().StringVar(&exportOutDir, "out", "exports", "output directory")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exporter := export.NewExporter(
		exportConfig(cfg),
		browser.NewFactory(browserConfig(cfg), logger),
		storage.NewLocal(exportOutDir),
		token.NewIssuer(cfg.Token.Secret, cfg.Token.TTL),
		report.NewZapReporter(logger),
		logger,
	)

	req := export.ExportRequest{
		ID:          uuid.NewString(),
		TeamID:      exportTeamID,
		InsightID:   exportInsightID,
		DashboardID: exportDashboardID,
		Format:      exportFormat,
	}

	key, err := exporter.Export(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("exported %s\n", key)
	return nil
}
