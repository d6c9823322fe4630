package export

import (
	"fmt"
	"net/url"
	"strings"
)

// FormatPNG is the only export format this pipeline handles.
const FormatPNG = "image/png"

const (
	markerInsight   = ".ExportedInsight"
	markerDashboard = ".InsightCard"

	widthInsight   = 800
	widthDashboard = 1920
)

// ExportRequest identifies one artifact to render. Exactly one of InsightID
// and DashboardID must be set.
type ExportRequest struct {
	ID          string `json:"id"`
	TeamID      string `json:"team_id"`
	InsightID   string `json:"insight_id,omitempty"`
	DashboardID string `json:"dashboard_id,omitempty"`
	Format      string `json:"format"`
}

// Validate enforces the request invariants before any browser work.
func (r ExportRequest) Validate() error {
	if r.Format != FormatPNG {
		return fmt.Errorf("%w: format %q is not supported", ErrConfiguration, r.Format)
	}
	hasInsight := strings.TrimSpace(r.InsightID) != ""
	hasDashboard := strings.TrimSpace(r.DashboardID) != ""
	switch {
	case !hasInsight && !hasDashboard:
		return fmt.Errorf("%w: missing required dashboard or insight ID", ErrConfiguration)
	case hasInsight && hasDashboard:
		return fmt.Errorf("%w: both dashboard and insight ID set", ErrConfiguration)
	}
	return nil
}

// RenderTarget is the derived, per-attempt description of what to load and
// what to wait for. Created once per attempt and never mutated.
type RenderTarget struct {
	URL    string
	Marker string
	Width  int
}

// renderTarget derives the render-only URL, marker selector and initial
// capture width from the request. Insights render with the legend flag at
// 800px; dashboards render without it at 1920px.
func (e *Exporter) renderTarget(req ExportRequest) (RenderTarget, error) {
	accessToken, err := e.tokens.RenderToken(req.ID, req.TeamID)
	if err != nil {
		return RenderTarget{}, fmt.Errorf("%w: issue render access token: %v", ErrPreflight, err)
	}

	base := strings.TrimRight(e.cfg.SiteURL, "/")
	renderURL := base + "/exporter?token=" + url.QueryEscape(accessToken)

	if req.InsightID != "" {
		return RenderTarget{
			URL:    renderURL + "&legend",
			Marker: markerInsight,
			Width:  widthInsight,
		}, nil
	}
	return RenderTarget{
		URL:    renderURL,
		Marker: markerDashboard,
		Width:  widthDashboard,
	}, nil
}
