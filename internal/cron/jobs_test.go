package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/couriers"
	webhookcouriers "github.com/angelmondragon/packfinderz-fulfillment/internal/webhooks/couriers"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
)

type replayerFunc func(ctx context.Context, limit int) (webhookcouriers.ReplayReport, error)

func (f replayerFunc) ReplayDue(ctx context.Context, limit int) (webhookcouriers.ReplayReport, error) {
	return f(ctx, limit)
}

type syncerFunc func(ctx context.Context, staleBefore time.Time, limit int) (couriers.SyncReport, error)

func (f syncerFunc) SyncStale(ctx context.Context, staleBefore time.Time, limit int) (couriers.SyncReport, error) {
	return f(ctx, staleBefore, limit)
}

func TestWebhookReplayJobUsesBatchSize(t *testing.T) {
	var gotLimit int
	job, err := NewWebhookReplayJob(WebhookReplayJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Replayer: replayerFunc(func(_ context.Context, limit int) (webhookcouriers.ReplayReport, error) {
			gotLimit = limit
			return webhookcouriers.ReplayReport{Attempted: 3, Replayed: 2, Exhausted: 1}, nil
		}),
		BatchSize: 25,
	})
	if err != nil {
		t.Fatalf("NewWebhookReplayJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotLimit != 25 {
		t.Fatalf("expected limit 25, got %d", gotLimit)
	}
}

func TestWebhookReplayJobPropagatesError(t *testing.T) {
	job, err := NewWebhookReplayJob(WebhookReplayJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Replayer: replayerFunc(func(context.Context, int) (webhookcouriers.ReplayReport, error) {
			return webhookcouriers.ReplayReport{}, errors.New("db down")
		}),
	})
	if err != nil {
		t.Fatalf("NewWebhookReplayJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCourierSyncJobComputesStaleCutoff(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var gotBefore time.Time
	var gotLimit int
	jobIface, err := NewCourierSyncJob(CourierSyncJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Syncer: syncerFunc(func(_ context.Context, staleBefore time.Time, limit int) (couriers.SyncReport, error) {
			gotBefore, gotLimit = staleBefore, limit
			return couriers.SyncReport{Checked: 4, Applied: 3, Failed: 1}, nil
		}),
		StaleAfter: 2 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewCourierSyncJob: %v", err)
	}
	job := jobIface.(*courierSyncJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-2 * time.Hour); !gotBefore.Equal(want) {
		t.Fatalf("expected stale cutoff %s, got %s", want, gotBefore)
	}
	if gotLimit != defaultSyncBatch {
		t.Fatalf("expected default batch %d, got %d", defaultSyncBatch, gotLimit)
	}
}

func TestJobConstructorsRequireDependencies(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	if _, err := NewWebhookReplayJob(WebhookReplayJobParams{Logger: logg}); err == nil {
		t.Fatal("expected replayer error")
	}
	if _, err := NewCourierSyncJob(CourierSyncJobParams{Logger: logg}); err == nil {
		t.Fatal("expected syncer error")
	}
	if _, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logg}); err == nil {
		t.Fatal("expected db error")
	}
}
