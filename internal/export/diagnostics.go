package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"rendersnap/internal/report"
)

const maxConsoleEntries = 200

// collectDiagnostics runs a small ordered list of best-effort diagnostic
// actions around the failure, then forwards the original error with
// contextual tags. Each action is wrapped so its own failure is discarded;
// diagnostics must never mask or replace the error that triggered them.
func (e *Exporter) collectDiagnostics(ctx context.Context, sess Session, req ExportRequest, target RenderTarget, imagePath string, cause error) {
	var attachments []report.Attachment

	steps := []struct {
		name string
		run  func() error
	}{
		{"console_log", func() error {
			entries := sess.ConsoleTail(maxConsoleEntries)
			data, err := json.Marshal(entries)
			if err != nil {
				return err
			}
			attachments = append(attachments, report.Attachment{Name: "logs.txt", Data: data})
			return nil
		}},
		{"screenshot", func() error {
			data, err := sess.Screenshot(ctx)
			if err != nil {
				return err
			}
			if err := os.WriteFile(imagePath, data, 0o600); err != nil {
				return err
			}
			attachments = append(attachments, report.Attachment{Name: filepath.Base(imagePath), Data: data})
			return nil
		}},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			e.log.Debug("image_exporter.diagnostic_failed",
				zap.String("step", step.name),
				zap.Error(err))
		}
	}

	e.reporter.CaptureException(cause, e.tags(req, target), attachments...)
}

func (e *Exporter) tags(req ExportRequest, target RenderTarget) map[string]string {
	tags := map[string]string{
		"task":          "image_export",
		"url_to_render": target.URL,
		"export_id":     req.ID,
		"team_id":       req.TeamID,
	}
	if req.InsightID != "" {
		tags["insight_id"] = req.InsightID
	}
	if req.DashboardID != "" {
		tags["dashboard_id"] = req.DashboardID
	}
	return tags
}
