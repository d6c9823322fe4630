package export

import (
	"context"
	"errors"
	"sync"
	"time"

	"rendersnap/internal/report"
)

// fakeSession scripts the browser surface the pipeline drives.
type fakeSession struct {
	mu        sync.Mutex
	viewports [][2]int
	navigated []string

	navigateErr error
	markerErr   error // WaitVisible result
	spinnerErr  error // WaitGone result

	heights    []float64 // successive height measurements
	heightIdx  int
	widthHint  any // width hint script result; nil means no table
	evalErr    error
	shot       []byte
	shotErr    error
	console    []ConsoleEntry
	consoleErr bool

	closed int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		heights: []float64{500, 500},
		shot:    []byte("png-bytes"),
	}
}

func (s *fakeSession) SetViewport(width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewports = append(s.viewports, [2]int{width, height})
	return nil
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = append(s.navigated, url)
	return s.navigateErr
}

func (s *fakeSession) WaitVisible(context.Context, string, time.Duration) error {
	return s.markerErr
}

func (s *fakeSession) WaitGone(context.Context, string, time.Duration) error {
	return s.spinnerErr
}

func (s *fakeSession) Eval(_ context.Context, js string) (any, error) {
	if s.evalErr != nil {
		return nil, s.evalErr
	}
	switch js {
	case measureHeightJS:
		s.mu.Lock()
		defer s.mu.Unlock()
		h := s.heights[len(s.heights)-1]
		if s.heightIdx < len(s.heights) {
			h = s.heights[s.heightIdx]
			s.heightIdx++
		}
		return h, nil
	case measureWidthHintJS:
		return s.widthHint, nil
	}
	return nil, errors.New("unexpected script")
}

func (s *fakeSession) Screenshot(context.Context) ([]byte, error) {
	if s.shotErr != nil {
		return nil, s.shotErr
	}
	return s.shot, nil
}

func (s *fakeSession) ConsoleTail(limit int) []ConsoleEntry {
	if s.consoleErr {
		return nil
	}
	if limit > 0 && len(s.console) > limit {
		return s.console[len(s.console)-limit:]
	}
	return s.console
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeFactory hands out one fresh fake session per launch.
type fakeFactory struct {
	mu       sync.Mutex
	launched []*fakeSession
	err      error
	prepare  func(*fakeSession)
}

func (f *fakeFactory) Launch(context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := newFakeSession()
	if f.prepare != nil {
		f.prepare(s)
	}
	f.launched = append(f.launched, s)
	return s, nil
}

func (f *fakeFactory) launchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.launched)
}

type fakeStore struct {
	mu   sync.Mutex
	puts map[string][]byte
	err  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{puts: make(map[string][]byte)}
}

func (s *fakeStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.puts[key] = data
	return key, nil
}

func (s *fakeStore) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.puts[key]
	return data, ok
}

type capturedReport struct {
	err         error
	tags        map[string]string
	attachments []string
}

type fakeReporter struct {
	mu       sync.Mutex
	captures []capturedReport
}

func (r *fakeReporter) CaptureException(err error, tags map[string]string, attachments ...report.Attachment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		names = append(names, a.Name)
	}
	r.captures = append(r.captures, capturedReport{err: err, tags: tags, attachments: names})
}

func (r *fakeReporter) all() []capturedReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]capturedReport, len(r.captures))
	copy(out, r.captures)
	return out
}

type staticIssuer struct{ token string }

func (i staticIssuer) RenderToken(string, string) (string, error) { return i.token, nil }
