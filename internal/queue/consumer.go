package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"rendersnap/internal/export"
	"rendersnap/internal/metrics"
)

const exportType = "image"

// Handler runs one export job. It is invoked at most once per message
// delivery.
type Handler func(ctx context.Context, req export.ExportRequest) (string, error)

// Consumer pulls export jobs from a durable JetStream consumer and drives
// the pipeline. Retry policy: configuration errors terminate the message
// (redelivery cannot fix a bad request); everything else is negatively
// acknowledged for redelivery.
type Consumer struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	handler Handler
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewConsumer(cfg Config, handler Handler, m *metrics.Metrics, log *zap.Logger) (*Consumer, error) {
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
	sub, err := js.PullSubscribe(cfg.Subject, cfg.Durable)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return &Consumer{
		nc:      nc,
		sub:     sub,
		handler: handler,
		metrics: m,
		log:     log,
	}, nil
}

// Run fetches and processes jobs until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgs, err := c.sub.Fetch(1, nats.Context(ctx))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			c.log.Warn("queue.fetch_failed", zap.Error(err))
			if serr := sleepCtx(ctx, time.Second); serr != nil {
				return serr
			}
			continue
		}
		for _, msg := range msgs {
			c.process(ctx, msg.Data, natsAcker{msg})
		}
	}
}

func (c *Consumer) Close() {
	if c.nc != nil {
		c.log.Info("queue.closing")
		c.nc.Close()
	}
}

// acker abstracts the message acknowledgement surface for testability.
type acker interface {
	Ack() error
	Nak() error
	Term() error
}

type natsAcker struct{ msg *nats.Msg }

func (a natsAcker) Ack() error  { return a.msg.Ack() }
func (a natsAcker) Nak() error  { return a.msg.Nak() }
func (a natsAcker) Term() error { return a.msg.Term() }

func (c *Consumer) process(ctx context.Context, data []byte, ack acker) {
	var req export.ExportRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.log.Warn("queue.bad_payload", zap.Error(err))
		c.metrics.ExportFailed.WithLabelValues(exportType).Inc()
		_ = ack.Term()
		return
	}

	start := time.Now()
	key, err := c.handler(ctx, req)
	c.metrics.ExportDuration.WithLabelValues(exportType).Observe(time.Since(start).Seconds())

	if err == nil {
		c.metrics.ExportSucceeded.WithLabelValues(exportType).Inc()
		c.log.Info("queue.export_done",
			zap.String("export_id", req.ID),
			zap.String("storage_key", key))
		_ = ack.Ack()
		return
	}

	c.metrics.ExportFailed.WithLabelValues(exportType).Inc()
	if errors.Is(err, export.ErrConfiguration) {
		_ = ack.Term()
		return
	}
	_ = ack.Nak()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
