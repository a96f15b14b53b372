package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/couriers"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
)

const (
	defaultSyncStaleAfter = 6 * time.Hour
	defaultSyncBatch      = 100
)

type staleSyncer interface {
	SyncStale(ctx context.Context, staleBefore time.Time, limit int) (couriers.SyncReport, error)
}

type CourierSyncJobParams struct {
	Logger     *logger.Logger
	Syncer     staleSyncer
	StaleAfter time.Duration
	BatchSize  int
}

// NewCourierSyncJob polls couriers for orders whose status has not moved in
// StaleAfter. It backs up webhooks that never arrived.
func NewCourierSyncJob(params CourierSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Syncer == nil {
		return nil, fmt.Errorf("courier syncer required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultSyncStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSyncBatch
	}
	return &courierSyncJob{
		logg:       params.Logger,
		syncer:     params.Syncer,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type courierSyncJob struct {
	logg       *logger.Logger
	syncer     staleSyncer
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

func (j *courierSyncJob) Name() string { return "courier-sync" }

func (j *courierSyncJob) Run(ctx context.Context) error {
	staleBefore := j.now().UTC().Add(-j.staleAfter)
	report, err := j.syncer.SyncStale(ctx, staleBefore, j.batch)
	if err != nil {
		return fmt.Errorf("courier sync: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"stale_before": staleBefore,
		"checked":      report.Checked,
		"applied":      report.Applied,
		"failed":       report.Failed,
	}), "cron.courier_sync")
	return nil
}
