package export

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const reachabilityTimeout = 5 * time.Second

// logIfSiteUnreachable runs a best-effort reachability probe against the
// site base URL after a failed export. An unreachable site is by far the
// most common root cause in fresh deployments, so the extra log line saves
// a debugging round trip. Never alters the propagated error.
func (e *Exporter) logIfSiteUnreachable() {
	if e.cfg.SiteURL == "" {
		return
	}

	// Deliberately not the export context: the probe should still run when
	// the export was cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), reachabilityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, e.cfg.SiteURL, nil)
	if err != nil {
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.log.Error("site_url_not_reachable",
			zap.String("site_url", e.cfg.SiteURL),
			zap.Error(err))
		return
	}
	_ = resp.Body.Close()
}
