package export

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	exporter *Exporter
	factory  *fakeFactory
	store    *fakeStore
	reporter *fakeReporter
	tmpDir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	// A live site keeps the post-failure reachability probe local and fast.
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(site.Close)

	cfg := DefaultConfig()
	cfg.SiteURL = site.URL
	cfg.TmpDir = t.TempDir()
	cfg.NavigationTimeout = 2 * time.Second
	cfg.StabilityTimeout = 2 * time.Second
	cfg.SettleDelay = 0

	factory := &fakeFactory{}
	store := newFakeStore()
	reporter := &fakeReporter{}
	return &testEnv{
		exporter: NewExporter(cfg, factory, store, staticIssuer{token: "tok"}, reporter, nil),
		factory:  factory,
		store:    store,
		reporter: reporter,
		tmpDir:   cfg.TmpDir,
	}
}

func (env *testEnv) assertTmpEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(env.tmpDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp dir should hold no leftover files")
}

func insightRequest() ExportRequest {
	return ExportRequest{ID: "exp-1", TeamID: "7", InsightID: "ins-42", Format: FormatPNG}
}

func dashboardRequest() ExportRequest {
	return ExportRequest{ID: "exp-2", TeamID: "7", DashboardID: "dash-9", Format: FormatPNG}
}

func TestExportInsightSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.factory.prepare = func(s *fakeSession) {
		s.heights = []float64{500, 520}
	}

	key, err := env.exporter.Export(context.Background(), insightRequest())
	require.NoError(t, err)
	assert.Equal(t, "exp-1.png", key)

	data, ok := env.store.get("exp-1.png")
	require.True(t, ok, "image should be persisted under the request ID")
	assert.Equal(t, []byte("png-bytes"), data)

	require.Equal(t, 1, env.factory.launchCount())
	sess := env.factory.launched[0]
	want := [][2]int{
		{800, 600}, // initial, before navigation
		{800, 585}, // first pass: 500 + offset
		{800, 605}, // second pass: 520 + offset
	}
	if diff := cmp.Diff(want, sess.viewports); diff != "" {
		t.Errorf("viewport sequence mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, sess.navigated, 1)
	assert.Contains(t, sess.navigated[0], "/exporter?token=tok")
	assert.Contains(t, sess.navigated[0], "&legend")

	assert.Equal(t, 1, sess.closeCount())
	assert.Empty(t, env.reporter.all())
	env.assertTmpEmpty(t)
}

func TestExportDashboardOmitsLegend(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.exporter.Export(context.Background(), dashboardRequest())
	require.NoError(t, err)

	sess := env.factory.launched[0]
	require.Len(t, sess.navigated, 1)
	assert.NotContains(t, sess.navigated[0], "legend")
	assert.Equal(t, [2]int{1920, 600}, sess.viewports[0])
}

func TestExportWideTableCappedAtMaxWidth(t *testing.T) {
	env := newTestEnv(t)
	env.factory.prepare = func(s *fakeSession) {
		s.widthHint = float64(1950)
	}

	_, err := env.exporter.Export(context.Background(), insightRequest())
	require.NoError(t, err)

	sess := env.factory.launched[0]
	require.Len(t, sess.viewports, 3)
	assert.Equal(t, 1800, sess.viewports[1][0])
	assert.Equal(t, 1800, sess.viewports[2][0])
}

func TestExportRejectsUnsupportedFormat(t *testing.T) {
	env := newTestEnv(t)

	req := insightRequest()
	req.Format = "application/pdf"
	_, err := env.exporter.Export(context.Background(), req)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Zero(t, env.factory.launchCount(), "no browser work for an invalid request")
}

func TestExportRejectsMissingTarget(t *testing.T) {
	env := newTestEnv(t)

	req := ExportRequest{ID: "exp-3", TeamID: "7", Format: FormatPNG}
	_, err := env.exporter.Export(context.Background(), req)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Zero(t, env.factory.launchCount())
}

func TestExportRejectsAmbiguousTarget(t *testing.T) {
	env := newTestEnv(t)

	req := insightRequest()
	req.DashboardID = "dash-9"
	_, err := env.exporter.Export(context.Background(), req)
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Zero(t, env.factory.launchCount())
}

func TestExportRequiresSiteURL(t *testing.T) {
	env := newTestEnv(t)
	env.exporter.cfg.SiteURL = ""

	_, err := env.exporter.Export(context.Background(), insightRequest())
	require.ErrorIs(t, err, ErrPreflight)
	assert.Zero(t, env.factory.launchCount())
}

func TestExportNavigationTimeoutCollectsDiagnostics(t *testing.T) {
	env := newTestEnv(t)
	env.factory.prepare = func(s *fakeSession) {
		s.markerErr = errors.New("element not found")
		s.console = []ConsoleEntry{{Level: "error", Text: "boom", At: time.Now()}}
	}

	_, err := env.exporter.Export(context.Background(), insightRequest())
	require.ErrorIs(t, err, ErrNavigationTimeout)

	captures := env.reporter.all()
	require.Len(t, captures, 1, "each failure is reported exactly once")
	assert.ErrorIs(t, captures[0].err, ErrNavigationTimeout)
	assert.Equal(t, "image_export", captures[0].tags["task"])
	assert.Equal(t, "ins-42", captures[0].tags["insight_id"])
	assert.Contains(t, captures[0].tags["url_to_render"], "/exporter?token=")
	assert.Contains(t, captures[0].attachments, "logs.txt")
	require.Len(t, captures[0].attachments, 2, "console log plus diagnostic screenshot")

	sess := env.factory.launched[0]
	assert.Equal(t, 1, sess.closeCount())
	env.assertTmpEmpty(t)
}

func TestExportStabilityTimeoutIsNonFatal(t *testing.T) {
	env := newTestEnv(t)
	env.factory.prepare = func(s *fakeSession) {
		s.spinnerErr = errors.New("spinner still present")
	}

	key, err := env.exporter.Export(context.Background(), insightRequest())
	require.NoError(t, err, "a stuck loading indicator must not abort the export")

	_, ok := env.store.get(key)
	assert.True(t, ok)

	captures := env.reporter.all()
	require.Len(t, captures, 1)
	assert.ErrorIs(t, captures[0].err, ErrStabilityTimeout)
	env.assertTmpEmpty(t)
}

func TestExportCaptureFailureCleansUp(t *testing.T) {
	env := newTestEnv(t)
	env.factory.prepare = func(s *fakeSession) {
		s.shotErr = errors.New("target crashed")
	}

	_, err := env.exporter.Export(context.Background(), insightRequest())
	require.ErrorIs(t, err, ErrCapture)

	captures := env.reporter.all()
	require.Len(t, captures, 1)
	// The diagnostic screenshot fails the same way, so only the console
	// log attachment survives.
	assert.Equal(t, []string{"logs.txt"}, captures[0].attachments)

	assert.Equal(t, 1, env.factory.launched[0].closeCount())
	env.assertTmpEmpty(t)
}

func TestExportDriverUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.factory.err = errors.New("no chrome binary")

	_, err := env.exporter.Export(context.Background(), insightRequest())
	require.ErrorIs(t, err, ErrDriverUnavailable)
	assert.Empty(t, env.reporter.all(), "no session means no diagnostics to collect")
	env.assertTmpEmpty(t)
}

func TestExportStoreFailureRemovesTempFile(t *testing.T) {
	env := newTestEnv(t)
	env.store.err = errors.New("bucket gone")

	_, err := env.exporter.Export(context.Background(), insightRequest())
	require.Error(t, err)
	assert.Equal(t, 1, env.factory.launched[0].closeCount())
	env.assertTmpEmpty(t)
}

func TestExportCancellationClosesSession(t *testing.T) {
	env := newTestEnv(t)
	env.exporter.cfg.SettleDelay = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := env.exporter.Export(ctx, insightRequest())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, env.factory.launched[0].closeCount())
	env.assertTmpEmpty(t)
}

func TestConcurrentExportsUseDistinctSessions(t *testing.T) {
	env := newTestEnv(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	reqs := []ExportRequest{insightRequest(), dashboardRequest()}
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.exporter.Export(context.Background(), reqs[i])
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, 2, env.factory.launchCount())
	for _, sess := range env.factory.launched {
		assert.Equal(t, 1, sess.closeCount())
	}
	_, ok := env.store.get("exp-1.png")
	assert.True(t, ok)
	_, ok = env.store.get("exp-2.png")
	assert.True(t, ok)
}
