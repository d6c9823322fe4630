// Worker command: consumes export jobs from the queue until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rendersnap/internal/browser"
	"rendersnap/internal/config"
	"rendersnap/internal/export"
	"rendersnap/internal/metrics"
	"rendersnap/internal/queue"
	"rendersnap/internal/report"
	"rendersnap/internal/storage"
	"rendersnap/internal/token"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume export jobs from the queue and render them",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}

	exporter := export.NewExporter(
		exportConfig(cfg),
		browser.NewFactory(browserConfig(cfg), logger),
		store,
		token.NewIssuer(cfg.Token.Secret, cfg.Token.TTL),
		report.NewZapReporter(logger),
		logger,
	)

	m := metrics.New()
	consumer, err := queue.NewConsumer(queueConfig(cfg), exporter.Export, m, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	logger.Info("worker.started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(ctx) })
	g.Go(func() error { return m.Serve(ctx, cfg.Metrics.Addr) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("worker.stopped")
	return nil
}

func buildStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "local", "":
		return storage.NewLocal(cfg.Storage.Local.Dir), nil
	case "s3":
		return storage.NewS3(ctx, storage.S3Config{
			Bucket:          cfg.Storage.S3.Bucket,
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			UsePathStyle:    cfg.Storage.S3.UsePathStyle,
			URLMode:         storage.URLMode(cfg.Storage.S3.URLMode),
			PresignedTTL:    cfg.Storage.S3.PresignedTTL,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func exportConfig(cfg config.Config) export.Config {
	out := export.DefaultConfig()
	out.SiteURL = cfg.SiteURL
	if cfg.TmpDir != "" {
		out.TmpDir = cfg.TmpDir
	}
	if cfg.Export.NavigationTimeout > 0 {
		out.NavigationTimeout = cfg.Export.NavigationTimeout
	}
	if cfg.Export.StabilityTimeout > 0 {
		out.StabilityTimeout = cfg.Export.StabilityTimeout
	}
	if cfg.Export.SettleDelay > 0 {
		out.SettleDelay = cfg.Export.SettleDelay
	}
	if cfg.Export.HeightOffset > 0 {
		out.HeightOffset = cfg.Export.HeightOffset
	}
	if cfg.Export.MaxContentWidth > 0 {
		out.MaxContentWidth = cfg.Export.MaxContentWidth
	}
	return out
}

func browserConfig(cfg config.Config) browser.Config {
	out := browser.DefaultConfig()
	out.Bin = cfg.Browser.Bin
	out.Headless = cfg.Browser.Headless
	if cfg.Browser.DeviceScaleFactor > 0 {
		out.DeviceScaleFactor = cfg.Browser.DeviceScaleFactor
	}
	if cfg.Browser.NavigationTimeout > 0 {
		out.NavigationTimeout = cfg.Browser.NavigationTimeout
	}
	return out
}

func queueConfig(cfg config.Config) queue.Config {
	out := queue.DefaultConfig()
	if cfg.Queue.URL != "" {
		out.URL = cfg.Queue.URL
	}
	if cfg.Queue.Stream != "" {
		out.Stream = cfg.Queue.Stream
	}
	if cfg.Queue.Subject != "" {
		out.Subject = cfg.Queue.Subject
	}
	if cfg.Queue.Durable != "" {
		out.Durable = cfg.Queue.Durable
	}
	return out
}
