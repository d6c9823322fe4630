package export

import (
	"context"
	"time"
)

// ConsoleEntry is one accumulated browser console message, kept for
// failure diagnostics.
type ConsoleEntry struct {
	Level string    `json:"level"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// Session is an exclusive handle to one browser process for the duration of
// a single export. Implementations must make Close idempotent and
// best-effort; the pipeline calls it on every exit path.
type Session interface {
	// SetViewport applies the given viewport dimensions.
	SetViewport(width, height int) error

	// Navigate loads the URL into the session.
	Navigate(ctx context.Context, url string) error

	// WaitVisible blocks until an element matching selector is present in
	// the DOM, or the timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// WaitGone blocks until no element matches selector, or the timeout
	// elapses.
	WaitGone(ctx context.Context, selector string, timeout time.Duration) error

	// Eval runs a script in the page and returns its result by value.
	// A nil result means the script produced undefined or null.
	Eval(ctx context.Context, js string) (any, error)

	// Screenshot captures the current full page as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// ConsoleTail returns up to limit of the most recent console entries.
	ConsoleTail(limit int) []ConsoleEntry

	// Close terminates the browser process. Never fails observably.
	Close()
}

// SessionFactory starts one disposable browser session per export attempt.
// Sessions are never pooled or reused across attempts.
type SessionFactory interface {
	Launch(ctx context.Context) (Session, error)
}
