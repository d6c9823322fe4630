// Package export implements the image export pipeline: render an insight or
// dashboard in a disposable headless browser and persist a PNG of it.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rendersnap/internal/report"
	"rendersnap/internal/storage"
)

// Config carries the tunables of the capture pipeline. The defaults are the
// empirically determined values the render-only view was calibrated against.
type Config struct {
	// SiteURL is the base URL of the web app serving the render-only view.
	SiteURL string

	// TmpDir holds per-attempt screenshot files; created on demand.
	TmpDir string

	// NavigationTimeout bounds the wait for the root render marker.
	NavigationTimeout time.Duration

	// StabilityTimeout bounds the wait for loading indicators to clear.
	// Expiry is non-fatal.
	StabilityTimeout time.Duration

	// SettleDelay is the fixed pause between the two sizing passes, long
	// enough for client-side reflow to finish.
	SettleDelay time.Duration

	// HeightOffset compensates for browser chrome that the engine includes
	// in height measurements. Tied to the Chrome rendering behavior; re-tune
	// if the target browser engine changes.
	HeightOffset int

	// MaxContentWidth caps how far a wide table can grow the capture.
	MaxContentWidth int
}

func DefaultConfig() Config {
	return Config{
		TmpDir:            filepath.Join(os.TempDir(), "rendersnap"),
		NavigationTimeout: 20 * time.Second,
		StabilityTimeout:  20 * time.Second,
		SettleDelay:       500 * time.Millisecond,
		HeightOffset:      85,
		MaxContentWidth:   1800,
	}
}

// TokenIssuer mints the short-lived access token embedded in the render URL.
type TokenIssuer interface {
	RenderToken(assetID, teamID string) (string, error)
}

// Exporter runs the capture pipeline. One call to Export owns exactly one
// browser session; concurrent calls never share state.
type Exporter struct {
	cfg      Config
	sessions SessionFactory
	store    storage.Store
	tokens   TokenIssuer
	reporter report.Reporter
	log      *zap.Logger
}

func NewExporter(cfg Config, sessions SessionFactory, store storage.Store, tokens TokenIssuer, reporter report.Reporter, log *zap.Logger) *Exporter {
	if reporter == nil {
		reporter = report.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{
		cfg:      cfg,
		sessions: sessions,
		store:    store,
		tokens:   tokens,
		reporter: reporter,
		log:      log,
	}
}

// Export renders the requested artifact and persists the captured PNG,
// returning the storage key. A failed export leaves no temp file and no
// browser process behind.
func (e *Exporter) Export(ctx context.Context, req ExportRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	key, err := e.exportPNG(ctx, req)
	if err != nil {
		e.log.Error("image_exporter.failed",
			zap.String("export_id", req.ID),
			zap.String("team_id", req.TeamID),
			zap.Error(err))
		return "", err
	}
	return key, nil
}

func (e *Exporter) exportPNG(ctx context.Context, req ExportRequest) (key string, err error) {
	if strings.TrimSpace(e.cfg.SiteURL) == "" {
		return "", fmt.Errorf("%w: site URL is not set; the exporter needs HTTP access to the web app", ErrPreflight)
	}

	target, err := e.renderTarget(req)
	if err != nil {
		return "", err
	}

	if err = os.MkdirAll(e.cfg.TmpDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create tmp dir: %v", ErrCapture, err)
	}
	imagePath := filepath.Join(e.cfg.TmpDir, uuid.NewString()+".png")

	// The temp file must be gone on every exit path, including when the
	// diagnostics collector wrote it after a stage failure.
	defer func() {
		if err == nil {
			return
		}
		removeIfExists(imagePath, e.log)
		e.logIfSiteUnreachable()
	}()

	e.log.Info("exporting_asset",
		zap.String("export_id", req.ID),
		zap.String("team_id", req.TeamID),
		zap.String("render_url", target.URL))

	if err = e.screenshotAsset(ctx, req, target, imagePath); err != nil {
		return "", err
	}

	data, readErr := os.ReadFile(imagePath)
	if readErr != nil {
		err = fmt.Errorf("%w: read screenshot file: %v", ErrCapture, readErr)
		return "", err
	}

	key = req.ID + ".png"
	if _, putErr := e.store.Put(ctx, key, FormatPNG, data); putErr != nil {
		err = fmt.Errorf("persist exported image: %w", putErr)
		return "", err
	}

	removeIfExists(imagePath, e.log)
	return key, nil
}

// screenshotAsset owns the browser session scope: everything from driver
// acquisition to the screenshot landing in imagePath. On failure the
// diagnostics collector runs before the session is torn down, and the
// original error is returned unchanged.
func (e *Exporter) screenshotAsset(ctx context.Context, req ExportRequest, target RenderTarget, imagePath string) (err error) {
	sess, launchErr := e.sessions.Launch(ctx)
	if launchErr != nil {
		return fmt.Errorf("%w: %v", ErrDriverUnavailable, launchErr)
	}
	defer sess.Close()
	defer func() {
		if err != nil {
			e.collectDiagnostics(ctx, sess, req, target, imagePath, err)
		}
	}()

	if vErr := sess.SetViewport(target.Width, initialViewportHeight); vErr != nil {
		return fmt.Errorf("set initial viewport: %w", vErr)
	}
	if nErr := sess.Navigate(ctx, target.URL); nErr != nil {
		return fmt.Errorf("navigate to render view: %w", nErr)
	}
	if wErr := sess.WaitVisible(ctx, target.Marker, e.cfg.NavigationTimeout); wErr != nil {
		return fmt.Errorf("%w: %q absent after %s: %v", ErrNavigationTimeout, target.Marker, e.cfg.NavigationTimeout, wErr)
	}

	e.awaitStable(ctx, sess, target, imagePath)

	if sErr := e.applySize(ctx, sess, target.Width); sErr != nil {
		return sErr
	}

	data, capErr := sess.Screenshot(ctx)
	if capErr != nil {
		return fmt.Errorf("%w: %v", ErrCapture, capErr)
	}
	if wErr := os.WriteFile(imagePath, data, 0o600); wErr != nil {
		return fmt.Errorf("%w: write %s: %v", ErrCapture, imagePath, wErr)
	}
	return nil
}

// awaitStable waits for loading indicators to clear. Expiry is deliberately
// non-fatal: a dashboard with one stuck widget still renders mostly usable
// content, so the attempt proceeds with whatever is present. The escalation
// is logged and reported with a best-effort screenshot attachment.
func (e *Exporter) awaitStable(ctx context.Context, sess Session, target RenderTarget, imagePath string) {
	err := sess.WaitGone(ctx, spinnerSelector, e.cfg.StabilityTimeout)
	if err == nil {
		return
	}

	e.log.Warn("image_exporter.timeout",
		zap.String("render_url", target.URL),
		zap.String("marker", target.Marker),
		zap.String("image_path", imagePath),
		zap.Error(err))

	var attachments []report.Attachment
	if data, shotErr := sess.Screenshot(ctx); shotErr == nil {
		if writeErr := os.WriteFile(imagePath, data, 0o600); writeErr == nil {
			attachments = append(attachments, report.Attachment{Name: filepath.Base(imagePath), Data: data})
		}
	}
	stability := fmt.Errorf("%w: %q still present after %s", ErrStabilityTimeout, spinnerSelector, e.cfg.StabilityTimeout)
	e.reporter.CaptureException(stability, map[string]string{"url_to_render": target.URL}, attachments...)
}

const spinnerSelector = ".Spinner"

func removeIfExists(path string, log *zap.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("image_exporter.tmp_cleanup_failed", zap.String("path", path), zap.Error(err))
	}
}
