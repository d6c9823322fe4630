package export

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Initial window height before navigation; prevents pathological first
// layouts on very small default viewports.
const initialViewportHeight = 600

// measureHeightJS resolves the known visualization container when present
// and takes the greater of its bounding box and the document scroll height.
// Falls back to the document scroll height alone, so it always resolves to
// a number.
const measureHeightJS = `() => {
	const element = document.querySelector('.InsightCard__viz') || document.querySelector('.ExportedInsight__content');
	if (element) {
		const rect = element.getBoundingClientRect();
		return Math.max(rect.height, document.body.scrollHeight);
	}
	return document.body.scrollHeight;
}`

// measureWidthHintJS returns 1.5x the rendered width of a data table when
// one exists. Funnel-style tables overflow their container, so the raw
// viewport width undershoots. Resolves to undefined when no table exists.
const measureWidthHintJS = `() => {
	const tableElement = document.querySelector('table');
	if (tableElement) {
		return tableElement.offsetWidth * 1.5;
	}
}`

// applySize runs the two-pass measure/resize algorithm: measure content,
// apply provisional dimensions, let the page reflow for a fixed settle
// interval, then re-measure and apply the final dimensions. Missing
// containers or tables degrade to document metrics and the requested width;
// they never error.
func (e *Exporter) applySize(ctx context.Context, sess Session, requestedWidth int) error {
	height, err := e.measureHeight(ctx, sess)
	if err != nil {
		return err
	}

	width := requestedWidth
	hint, ok, err := e.measureWidthHint(ctx, sess)
	if err != nil {
		return err
	}
	if ok {
		width = clampWidth(requestedWidth, hint, e.cfg.MaxContentWidth)
	}

	if err := sess.SetViewport(width, height+e.cfg.HeightOffset); err != nil {
		return fmt.Errorf("apply provisional viewport: %w", err)
	}

	// Charts re-measure their container asynchronously after a resize, so
	// the first measurement is stale by the time it is applied.
	if err := sleepCtx(ctx, e.cfg.SettleDelay); err != nil {
		return err
	}

	height, err = e.measureHeight(ctx, sess)
	if err != nil {
		return err
	}
	if err := sess.SetViewport(width, height+e.cfg.HeightOffset); err != nil {
		return fmt.Errorf("apply final viewport: %w", err)
	}
	return nil
}

func (e *Exporter) measureHeight(ctx context.Context, sess Session) (int, error) {
	v, err := sess.Eval(ctx, measureHeightJS)
	if err != nil {
		return 0, fmt.Errorf("measure content height: %w", err)
	}
	f, ok := asNumber(v)
	if !ok {
		return 0, fmt.Errorf("measure content height: non-numeric result %v", v)
	}
	return int(math.Round(f)), nil
}

// measureWidthHint reports ok=false when the script resolves to anything
// but a positive number, which is the no-table case.
func (e *Exporter) measureWidthHint(ctx context.Context, sess Session) (int, bool, error) {
	v, err := sess.Eval(ctx, measureWidthHintJS)
	if err != nil {
		return 0, false, fmt.Errorf("measure table width: %w", err)
	}
	f, ok := asNumber(v)
	if !ok || f <= 0 {
		return 0, false, nil
	}
	return int(math.Round(f)), true, nil
}

// clampWidth honors the width hint only within [requested, maxWidth]: the
// requested width is a floor, maxWidth a ceiling on how far a wide table
// can grow the capture.
func clampWidth(requested, hint, maxWidth int) int {
	if hint > maxWidth {
		hint = maxWidth
	}
	if hint < requested {
		return requested
	}
	return hint
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
