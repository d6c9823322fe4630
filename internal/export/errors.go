package export

import "errors"

// Error taxonomy for a single export attempt. Callers branch with errors.Is;
// the concrete message carries the stage detail.
var (
	// ErrConfiguration means the request itself is unusable: no insight or
	// dashboard reference, or an export format this pipeline does not handle.
	// Raised before any browser work begins.
	ErrConfiguration = errors.New("export request misconfigured")

	// ErrPreflight means a deployment precondition is unmet, e.g. the site
	// base URL is not configured so the render-only view cannot be reached.
	ErrPreflight = errors.New("exporter preflight failed")

	// ErrDriverUnavailable means the browser process could not be started.
	ErrDriverUnavailable = errors.New("browser driver unavailable")

	// ErrNavigationTimeout means the root render marker never appeared
	// within the navigation bound.
	ErrNavigationTimeout = errors.New("render marker did not appear")

	// ErrStabilityTimeout means a loading indicator never disappeared. This
	// is absorbed inside the pipeline and never surfaces to callers.
	ErrStabilityTimeout = errors.New("loading indicator did not disappear")

	// ErrCapture means the screenshot or its file I/O failed.
	ErrCapture = errors.New("screenshot capture failed")
)
