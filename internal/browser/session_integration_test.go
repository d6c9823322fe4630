//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rendersnap/internal/browser"
)

// Requires a Chrome/Chromium binary (or network access for the managed
// download). Run with: go test -tags integration ./internal/browser/...

func TestSession_RenderAndCapture_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><body>
			<div class="ExportedInsight" style="height:300px">rendered</div>
			<script>console.log("render done")</script>
		</body></html>`)
	}))
	defer ts.Close()

	cfg := browser.DefaultConfig()
	cfg.NavigationTimeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	factory := browser.NewFactory(cfg, nil)
	sess, err := factory.Launch(ctx)
	require.NoError(t, err, "failed to launch browser")
	defer sess.Close()

	require.NoError(t, sess.SetViewport(800, 600))
	require.NoError(t, sess.Navigate(ctx, ts.URL))
	require.NoError(t, sess.WaitVisible(ctx, ".ExportedInsight", 10*time.Second))

	// No spinner on the page, so this returns immediately.
	require.NoError(t, sess.WaitGone(ctx, ".Spinner", 5*time.Second))

	v, err := sess.Eval(ctx, `() => document.body.scrollHeight`)
	require.NoError(t, err)
	height, ok := v.(float64)
	require.True(t, ok, "scrollHeight should resolve to a number, got %T", v)
	assert.Greater(t, height, float64(0))

	// A selector-less page resolves the table script to undefined.
	v, err = sess.Eval(ctx, `() => { const e = document.querySelector('table'); if (e) { return e.offsetWidth; } }`)
	require.NoError(t, err)
	assert.Nil(t, v)

	data, err := sess.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	// PNG magic bytes.
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data[:4])

	// The console stream should have picked up the page's log line.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(sess.ConsoleTail(0)) > 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	entries := sess.ConsoleTail(0)
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[len(entries)-1].Text, "render done")

	// Close is idempotent.
	sess.Close()
	sess.Close()
}

func TestSession_WaitVisibleTimeout_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><body><p>nothing to see</p></body></html>`)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	factory := browser.NewFactory(browser.DefaultConfig(), nil)
	sess, err := factory.Launch(ctx)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Navigate(ctx, ts.URL))
	err = sess.WaitVisible(ctx, ".ExportedInsight", 2*time.Second)
	assert.Error(t, err)
}
