// Package report is the write-only error reporting sink the export pipeline
// forwards enriched failures to. The pipeline never reads anything back.
package report

import (
	"go.uber.org/zap"
)

// Attachment is an opaque diagnostic artifact collected on the error path.
type Attachment struct {
	Name string
	Data []byte
}

// Reporter receives a failure with contextual tags and best-effort
// diagnostic attachments. Implementations must not fail observably.
type Reporter interface {
	CaptureException(err error, tags map[string]string, attachments ...Attachment)
}

// ZapReporter logs captured failures as structured events. It stands in for
// a hosted error tracker in deployments that do not run one.
type ZapReporter struct {
	log *zap.Logger
}

func NewZapReporter(log *zap.Logger) *ZapReporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapReporter{log: log.Named("report")}
}

func (r *ZapReporter) CaptureException(err error, tags map[string]string, attachments ...Attachment) {
	fields := make([]zap.Field, 0, len(tags)+len(attachments)+1)
	fields = append(fields, zap.Error(err))
	for k, v := range tags {
		fields = append(fields, zap.String(k, v))
	}
	for _, a := range attachments {
		fields = append(fields, zap.Int("attachment_bytes_"+a.Name, len(a.Data)))
	}
	r.log.Error("captured_exception", fields...)
}

// Nop discards everything. Used in tests and one-shot CLI runs.
type Nop struct{}

func (Nop) CaptureException(error, map[string]string, ...Attachment) {}
