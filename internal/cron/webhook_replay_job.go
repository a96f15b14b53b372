package cron

import (
	"context"
	"fmt"

	webhookcouriers "github.com/angelmondragon/packfinderz-fulfillment/internal/webhooks/couriers"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
)

const defaultReplayBatch = 50

type deadLetterReplayer interface {
	ReplayDue(ctx context.Context, limit int) (webhookcouriers.ReplayReport, error)
}

type WebhookReplayJobParams struct {
	Logger    *logger.Logger
	Replayer  deadLetterReplayer
	BatchSize int
}

// NewWebhookReplayJob retries courier webhook dead letters whose backoff has
// elapsed.
func NewWebhookReplayJob(params WebhookReplayJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Replayer == nil {
		return nil, fmt.Errorf("dead letter replayer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReplayBatch
	}
	return &webhookReplayJob{logg: params.Logger, replayer: params.Replayer, batch: batch}, nil
}

type webhookReplayJob struct {
	logg     *logger.Logger
	replayer deadLetterReplayer
	batch    int
}

func (j *webhookReplayJob) Name() string { return "webhook-replay" }

func (j *webhookReplayJob) Run(ctx context.Context) error {
	report, err := j.replayer.ReplayDue(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("replay dead letters: %w", err)
	}
	fields := map[string]any{
		"attempted": report.Attempted,
		"replayed":  report.Replayed,
		"retrying":  report.Retrying,
		"exhausted": report.Exhausted,
	}
	if report.Exhausted > 0 {
		j.logg.Warn(j.logg.WithFields(ctx, fields), "cron.webhook_replay_exhausted")
		return nil
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "cron.webhook_replay")
	return nil
}
