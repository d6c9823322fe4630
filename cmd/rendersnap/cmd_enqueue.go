// Enqueue command: publish an export job for the worker fleet.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"rendersnap/internal/config"
	"rendersnap/internal/export"
	"rendersnap/internal/queue"
)

var (
	enqueueInsightID   string
	enqueueDashboardID string
	enqueueTeamID      string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Publish an export job to the queue",
	RunE:  runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueInsightID, "insight", "", "insight ID to export")
	enqueueCmd.Flags().StringVar(&enqueueDashboardID, "dashboard", "", "dashboard ID to export")
	enqueueCmd.Flags().StringVar(&enqueueTeamID, "team", "", "team ID the asset belongs to")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	req := export.ExportRequest{
		ID:          uuid.NewString(),
		TeamID:      enqueueTeamID,
		InsightID:   enqueueInsightID,
		DashboardID: enqueueDashboardID,
		Format:      export.FormatPNG,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	publisher, err := queue.NewPublisher(queueConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := publisher.Publish(ctx, req); err != nil {
		return err
	}
	fmt.Printf("enqueued export %s\n", req.ID)
	return nil
}
