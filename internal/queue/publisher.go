package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"rendersnap/internal/export"
)

// Publisher enqueues export jobs.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	log     *zap.Logger
}

func NewPublisher(cfg Config, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	nc, js, err := connect(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := ensureStream(js, cfg); err != nil {
		nc.Close()
		return nil, err
	}
	return &Publisher{nc: nc, js: js, subject: cfg.Subject, log: log}, nil
}

func (p *Publisher) Publish(ctx context.Context, req export.ExportRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal export request: %w", err)
	}
	if _, err := p.js.Publish(p.subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish export request: %w", err)
	}
	p.log.Debug("queue.enqueued",
		zap.String("subject", p.subject),
		zap.String("export_id", req.ID))
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
