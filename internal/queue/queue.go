// Package queue moves export jobs over NATS JetStream. The worker consumes
// one job per message and invokes the pipeline exactly once for it.
package queue

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type Config struct {
	URL     string
	Stream  string
	Subject string
	Durable string
}

func DefaultConfig() Config {
	return Config{
		URL:     nats.DefaultURL,
		Stream:  "EXPORTS",
		Subject: "exports.image",
		Durable: "rendersnap-worker",
	}
}

// connect dials NATS with retry and returns the connection plus a JetStream
// context.
func connect(cfg Config, log *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats.disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats.reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	log.Info("nats.connected", zap.String("url", cfg.URL))
	return nc, js, nil
}

// ensureStream creates the export stream when it does not exist yet.
func ensureStream(js nats.JetStreamContext, cfg Config) error {
	_, err := js.StreamInfo(cfg.Stream)
	if err == nil {
		return nil
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Subject},
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", cfg.Stream, err)
	}
	return nil
}
