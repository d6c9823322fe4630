// Package browser owns the headless Chrome process used to render exports.
// One Session wraps one disposable browser process; it is never shared or
// reused across exports.
package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"rendersnap/internal/export"
)

// Config holds the per-deployment browser settings. Rendering flags are
// fixed; only the binary location and headless toggle vary by environment.
type Config struct {
	// Bin is an explicit Chrome/Chromium binary path. Empty means the
	// launcher resolves (and downloads if needed) a managed browser.
	Bin string

	// Headless is on in every deployment; turning it off helps debugging.
	Headless bool

	// DeviceScaleFactor scales the capture for higher resolution output.
	DeviceScaleFactor float64

	// NavigationTimeout bounds the page load itself, separate from the
	// render marker wait.
	NavigationTimeout time.Duration

	// ConsoleTailSize caps how many console entries are retained for
	// failure diagnostics.
	ConsoleTailSize int
}

func DefaultConfig() Config {
	return Config{
		Headless:          true,
		DeviceScaleFactor: 2,
		NavigationTimeout: 30 * time.Second,
		ConsoleTailSize:   200,
	}
}

// Factory launches one disposable session per export attempt.
type Factory struct {
	cfg Config
	log *zap.Logger
}

func NewFactory(cfg Config, log *zap.Logger) *Factory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Factory{cfg: cfg, log: log}
}

func (f *Factory) Launch(ctx context.Context) (export.Session, error) {
	s, err := launch(ctx, f.cfg, f.log)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Session is an exclusive handle to one running browser process.
type Session struct {
	cfg      Config
	log      *zap.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	mu      sync.Mutex
	console []export.ConsoleEntry

	closeOnce sync.Once
}

func launch(ctx context.Context, cfg Config, log *zap.Logger) (*Session, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("force-device-scale-factor", strconv.FormatFloat(cfg.DeviceScaleFactor, 'g', -1, 64)).
		Set("use-gl", "swiftshader").
		Set("disable-software-rasterizer").
		Set("no-sandbox").
		Set("disable-gpu").
		// Slower but reliable in memory-constrained containers.
		Set("disable-dev-shm-usage").
		// Drops the "controlled by automated test software" bar.
		Delete(flags.Flag("enable-automation"))

	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		l.Cleanup()
		return nil, fmt.Errorf("create page: %w", err)
	}

	s := &Session{
		cfg:      cfg,
		log:      log,
		launcher: l,
		browser:  b,
		page:     page,
	}
	s.startConsoleStream(ctx)
	return s, nil
}

// startConsoleStream accumulates console messages so the diagnostics
// collector can attach them after a stage failure. The stream ends when the
// page closes.
func (s *Session) startConsoleStream(ctx context.Context) {
	wait := s.page.Context(ctx).EachEvent(func(ev *proto.RuntimeConsoleAPICalled) {
		entry := export.ConsoleEntry{
			Level: string(ev.Type),
			Text:  stringifyConsoleArgs(ev.Args),
			At:    time.Now(),
		}
		s.mu.Lock()
		s.console = append(s.console, entry)
		if max := s.cfg.ConsoleTailSize; max > 0 && len(s.console) > max {
			s.console = s.console[len(s.console)-max:]
		}
		s.mu.Unlock()
	})
	go wait()
}

func (s *Session) SetViewport(width, height int) error {
	return proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}.Call(s.page)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.page.Context(ctx).Timeout(s.cfg.NavigationTimeout).Navigate(url)
}

func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := s.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q: %w", selector, err)
	}
	return nil
}

func (s *Session) WaitGone(ctx context.Context, selector string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		has, _, err := s.page.Context(ctx).Has(selector)
		if err != nil {
			return fmt.Errorf("query %q: %w", selector, err)
		}
		if !has {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("element %q still present after %s", selector, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (s *Session) Eval(ctx context.Context, js string) (any, error) {
	res, err := s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, err
	}
	if res == nil || res.Value.Nil() {
		return nil, nil
	}
	return res.Value.Val(), nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(true, nil)
}

func (s *Session) ConsoleTail(limit int) []export.ConsoleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.console
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]export.ConsoleEntry, len(entries))
	copy(out, entries)
	return out
}

// Close terminates the browser process. Idempotent; failures are logged
// only, since teardown runs on paths that already carry an error.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.page != nil {
			if err := s.page.Close(); err != nil {
				s.log.Debug("browser.page_close_failed", zap.Error(err))
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				s.log.Debug("browser.close_failed", zap.Error(err))
			}
		}
		if s.launcher != nil {
			s.launcher.Cleanup()
		}
	})
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}
