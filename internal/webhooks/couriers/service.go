package courierwebhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/couriers"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/metrics"
)

// Response messages are part of the courier-facing contract.
const (
	MessageUnreadable      = "Unable to read payload"
	MessageInvalidSig      = "Invalid signature"
	MessageOrderNotFound   = "Order not found for this tracking ID"
	MessageAcknowledged    = "Webhook acknowledged"
	MessageReceived        = "Webhook received"
	MessageDuplicate       = "Duplicate webhook ignored"
	MessageProcessed       = "Webhook processed"
	MessageUnmapped        = "Status recorded without mapping"
	MessageNotApplicable   = "Status recorded; transition not applicable"
	pingResponse           = "OK"
	maxBackoff             = 24 * time.Hour
	defaultMaxAttempts     = 8
	defaultReplayBatchSize = 50
)

// Metric outcome labels.
const (
	outcomeTestPing      = "test_ping"
	outcomeUnverified    = "unverified_provider"
	outcomeNotFound      = "order_not_found"
	outcomeInvalidSig    = "invalid_signature"
	outcomeNormalizeFail = "normalize_failed"
	outcomeDuplicate     = "duplicate"
	outcomeLookupFail    = "lookup_failed"
	outcomeFailed        = "processing_failed"
	outcomeDedupError    = "dedup_unavailable"
)

// storedHeaders are the request headers kept with a dead letter. Signature
// headers are never stored.
var storedHeaders = []string{"Content-Type", "User-Agent", "X-Request-Id"}

// Delivery is one inbound courier webhook.
type Delivery struct {
	ProviderName string
	Body         []byte
	Headers      http.Header
}

// Response is the body returned to the courier. The HTTP status is always 200.
type Response struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message,omitempty"`
	Response string            `json:"response,omitempty"`
	Headers  map[string]string `json:"-"`
}

// ReplayResult reports one dead-letter replay.
type ReplayResult struct {
	DeadLetter *models.WebhookDeadLetter `json:"dead_letter"`
	Message    string                    `json:"message"`
	Error      string                    `json:"error,omitempty"`
}

// ReplayReport summarizes a ReplayDue pass.
type ReplayReport struct {
	Attempted int `json:"attempted"`
	Replayed  int `json:"replayed"`
	Retrying  int `json:"retrying"`
	Exhausted int `json:"exhausted"`
}

type adapterResolver interface {
	ResolveName(name string) (couriers.Adapter, enums.LogisticsProvider, bool)
}

type statusTracker interface {
	Apply(ctx context.Context, provider enums.LogisticsProvider, order *models.Order, event *couriers.CanonicalEvent, source enums.CourierEventSource) (*couriers.ApplyResult, error)
}

type dedupGuard interface {
	CheckAndMark(ctx context.Context, provider enums.LogisticsProvider, payloadHash string) (bool, error)
	Release(ctx context.Context, provider enums.LogisticsProvider, payloadHash string) error
}

// ServiceParams collects the ingestion dependencies.
type ServiceParams struct {
	Registry          adapterResolver
	Tracker           statusTracker
	Guard             dedupGuard
	DeadLetters       DeadLetterRepository
	Metrics           *metrics.CourierWebhookMetrics
	Logger            *logger.Logger
	MaxReplayAttempts int
	ReplayBaseBackoff time.Duration
}

// Service ingests courier webhooks and replays the ones that failed.
type Service struct {
	registry    adapterResolver
	tracker     statusTracker
	guard       dedupGuard
	deadLetters DeadLetterRepository
	metrics     *metrics.CourierWebhookMetrics
	logg        *logger.Logger
	maxAttempts int
	baseBackoff time.Duration
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Registry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "courier registry required")
	}
	if params.Tracker == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "courier tracker required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dedup guard required")
	}
	if params.DeadLetters == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dead letter repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	maxAttempts := params.MaxReplayAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	backoff := params.ReplayBaseBackoff
	if backoff <= 0 {
		backoff = time.Minute
	}
	return &Service{
		registry:    params.Registry,
		tracker:     params.Tracker,
		guard:       params.Guard,
		deadLetters: params.DeadLetters,
		metrics:     params.Metrics,
		logg:        logg,
		maxAttempts: maxAttempts,
		baseBackoff: backoff,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Unreadable is the response when the request body cannot be read.
func Unreadable() Response {
	return Response{Success: false, Message: MessageUnreadable}
}

// Handle processes one delivery. It never returns an error: failures are
// logged, dead-lettered and acknowledged so the courier stops retrying.
func (s *Service) Handle(ctx context.Context, delivery Delivery) Response {
	name := strings.ToLower(strings.TrimSpace(delivery.ProviderName))
	ctx = s.logg.WithProvider(ctx, name)

	if couriers.IsTestPing(delivery.Body) {
		s.metrics.Inc(name, outcomeTestPing)
		resp := Response{Success: true, Response: pingResponse}
		adapter, _, _ := s.registry.ResolveName(name)
		if responder, ok := adapter.(couriers.PingResponder); ok {
			resp.Headers = responder.PingHeaders()
		}
		s.logg.Info(ctx, "webhook.test_ping")
		return resp
	}

	hash := PayloadHash(delivery.Body)
	adapter, provider, known := s.registry.ResolveName(name)
	if !known {
		return s.handleUnverified(ctx, name, adapter, delivery, hash)
	}

	if !adapter.VerifySignature(delivery.Headers.Get(adapter.SignatureHeader()), delivery.Body) {
		s.metrics.Inc(name, outcomeInvalidSig)
		s.logg.Warn(ctx, "webhook.invalid_signature")
		return Response{Success: false, Message: MessageInvalidSig}
	}

	event, err := adapter.NormalizeWebhook(delivery.Body)
	if err != nil {
		s.metrics.Inc(name, outcomeNormalizeFail)
		s.deadLetter(ctx, name, delivery, hash, enums.DeadLetterReasonNormalize, err)
		return Response{Success: true, Message: MessageReceived}
	}
	event.PayloadHash = hash

	duplicate, err := s.guard.CheckAndMark(ctx, provider, hash)
	if err != nil {
		// process anyway; Tracker is idempotent on status
		s.metrics.Inc(name, outcomeDedupError)
		s.logg.Error(ctx, "webhook.dedup_unavailable", err)
	} else if duplicate {
		s.metrics.Inc(name, outcomeDuplicate)
		s.logg.Info(s.logg.WithField(ctx, "tracking_id", event.TrackingID), "webhook.duplicate")
		return Response{Success: true, Message: MessageDuplicate}
	}

	message, outcome, reason, err := s.apply(ctx, adapter, provider, event)
	s.metrics.Inc(name, outcome)
	if err != nil {
		if releaseErr := s.guard.Release(ctx, provider, hash); releaseErr != nil {
			s.logg.Error(ctx, "webhook.dedup_release_failed", releaseErr)
		}
		s.deadLetter(ctx, name, delivery, hash, reason, err)
		return Response{Success: true, Message: MessageReceived}
	}
	return Response{Success: true, Message: message}
}

// handleUnverified acknowledges payloads from couriers without an adapter.
// Nothing they carry is applied to an order.
func (s *Service) handleUnverified(ctx context.Context, name string, adapter couriers.Adapter, delivery Delivery, hash string) Response {
	event, err := adapter.NormalizeWebhook(delivery.Body)
	if err != nil {
		s.metrics.Inc(name, outcomeNotFound)
		return Response{Success: true, Message: MessageOrderNotFound}
	}
	order, err := adapter.FindOrderByTracking(ctx, event.TrackingID)
	if err != nil {
		s.metrics.Inc(name, outcomeLookupFail)
		s.deadLetter(ctx, name, delivery, hash, enums.DeadLetterReasonLookup, err)
		return Response{Success: true, Message: MessageReceived}
	}
	if order == nil {
		s.metrics.Inc(name, outcomeNotFound)
		return Response{Success: true, Message: MessageOrderNotFound}
	}
	s.metrics.Inc(name, outcomeUnverified)
	s.deadLetter(ctx, name, delivery, hash, enums.DeadLetterReasonUnverifiedProvider, nil)
	return Response{Success: true, Message: MessageAcknowledged}
}

// apply runs the order lookup and the tracker. The reason is only meaningful
// when err is set.
func (s *Service) apply(ctx context.Context, adapter couriers.Adapter, provider enums.LogisticsProvider, event *couriers.CanonicalEvent) (string, string, enums.DeadLetterReason, error) {
	order, err := adapter.FindOrderByTracking(ctx, event.TrackingID)
	if err != nil {
		return "", outcomeLookupFail, enums.DeadLetterReasonLookup, err
	}
	if order == nil {
		s.logg.Info(s.logg.WithField(ctx, "tracking_id", event.TrackingID), "webhook.order_not_found")
		return MessageOrderNotFound, outcomeNotFound, "", nil
	}

	result, err := s.tracker.Apply(ctx, provider, order, event, enums.CourierEventWebhook)
	if err != nil {
		return "", outcomeFailed, enums.DeadLetterReasonProcessing, err
	}
	switch result.Outcome {
	case couriers.OutcomeUnmapped:
		return MessageUnmapped, string(result.Outcome), "", nil
	case couriers.OutcomeNotApplicable:
		return MessageNotApplicable, string(result.Outcome), "", nil
	default:
		return MessageProcessed, string(result.Outcome), "", nil
	}
}

func (s *Service) deadLetter(ctx context.Context, provider string, delivery Delivery, hash string, reason enums.DeadLetterReason, cause error) {
	now := s.now()
	letter := &models.WebhookDeadLetter{
		Provider:    provider,
		Headers:     headerSubset(delivery.Headers),
		Payload:     delivery.Body,
		PayloadHash: hash,
		Reason:      reason,
		Status:      enums.DeadLetterPending,
	}
	if cause != nil {
		msg := cause.Error()
		letter.LastError = &msg
	}
	// unverified payloads are kept for inspection, never replayed automatically
	if reason != enums.DeadLetterReasonUnverifiedProvider {
		letter.NextAttemptAt = &now
	}
	if err := s.deadLetters.Create(ctx, letter); err != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"payload_hash": hash,
			"reason":       reason,
		}), "webhook.dead_letter_failed", err)
		return
	}
	fields := s.logg.WithFields(ctx, map[string]any{
		"dead_letter_id": letter.ID.String(),
		"payload_hash":   hash,
		"reason":         reason,
	})
	if cause != nil {
		s.logg.Error(fields, "webhook.dead_lettered", cause)
		return
	}
	s.logg.Warn(fields, "webhook.dead_lettered")
}

// Replay re-runs normalization, dedup, lookup and tracking for a pending
// dead letter. The signature was verified when the payload was received.
func (s *Service) Replay(ctx context.Context, id uuid.UUID) (*ReplayResult, error) {
	letter, err := s.deadLetters.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load dead letter")
	}
	if letter.Status != enums.DeadLetterPending {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("dead letter is %s", letter.Status))
	}
	adapter, provider, known := s.registry.ResolveName(letter.Provider)
	if !known {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dead letters from unintegrated couriers cannot be replayed").
			WithDetails(map[string]any{"provider": letter.Provider})
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"dead_letter_id": letter.ID.String(),
		"provider":       letter.Provider,
	})
	message, procErr := s.replayOnce(ctx, adapter, provider, letter)
	if err := s.recordAttempt(ctx, letter, procErr); err != nil {
		return nil, err
	}
	result := &ReplayResult{DeadLetter: letter, Message: message}
	if procErr != nil {
		result.Error = procErr.Error()
		result.Message = MessageReceived
		s.logg.Warn(s.logg.WithField(ctx, "attempt_count", letter.AttemptCount), "webhook.replay_failed")
	} else {
		s.logg.Info(ctx, "webhook.replayed")
	}
	return result, nil
}

func (s *Service) replayOnce(ctx context.Context, adapter couriers.Adapter, provider enums.LogisticsProvider, letter *models.WebhookDeadLetter) (string, error) {
	event, err := adapter.NormalizeWebhook(letter.Payload)
	if err != nil {
		return "", err
	}
	event.PayloadHash = letter.PayloadHash

	duplicate, err := s.guard.CheckAndMark(ctx, provider, letter.PayloadHash)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim dedup key")
	}
	if duplicate {
		return MessageDuplicate, nil
	}

	message, outcome, _, err := s.apply(ctx, adapter, provider, event)
	s.metrics.Inc(string(provider), "replay_"+outcome)
	if err != nil {
		if releaseErr := s.guard.Release(ctx, provider, letter.PayloadHash); releaseErr != nil {
			s.logg.Error(ctx, "webhook.dedup_release_failed", releaseErr)
		}
		return "", err
	}
	return message, nil
}

func (s *Service) recordAttempt(ctx context.Context, letter *models.WebhookDeadLetter, procErr error) error {
	now := s.now()
	letter.AttemptCount++
	letter.LastAttemptAt = &now
	updates := map[string]any{
		"attempt_count":   letter.AttemptCount,
		"last_attempt_at": now,
		"updated_at":      now,
	}
	switch {
	case procErr == nil:
		letter.Status = enums.DeadLetterReplayed
		letter.NextAttemptAt = nil
		updates["next_attempt_at"] = nil
	case letter.AttemptCount >= s.maxAttempts:
		letter.Status = enums.DeadLetterExhausted
		letter.NextAttemptAt = nil
		updates["next_attempt_at"] = nil
	default:
		next := now.Add(s.backoff(letter.AttemptCount))
		letter.NextAttemptAt = &next
		updates["next_attempt_at"] = next
	}
	if procErr != nil {
		msg := procErr.Error()
		letter.LastError = &msg
		updates["last_error"] = msg
	}
	updates["status"] = letter.Status
	if err := s.deadLetters.Update(ctx, letter.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update dead letter")
	}
	return nil
}

// backoff doubles from the base delay per failed attempt.
func (s *Service) backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := float64(s.baseBackoff) * math.Pow(2, float64(attempts-1))
	if delay > float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(delay)
}

// ReplayDue replays up to limit due dead letters.
func (s *Service) ReplayDue(ctx context.Context, limit int) (ReplayReport, error) {
	var report ReplayReport
	if limit <= 0 {
		limit = defaultReplayBatchSize
	}
	letters, err := s.deadLetters.ListDue(ctx, s.now(), limit)
	if err != nil {
		return report, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due dead letters")
	}
	for _, letter := range letters {
		res, err := s.Replay(ctx, letter.ID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
				return report, err
			}
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"dead_letter_id": letter.ID.String(),
				"error":          err.Error(),
			}), "webhook.replay_skipped")
			continue
		}
		report.Attempted++
		switch res.DeadLetter.Status {
		case enums.DeadLetterReplayed:
			report.Replayed++
		case enums.DeadLetterExhausted:
			report.Exhausted++
		default:
			report.Retrying++
		}
	}
	return report, nil
}

// List returns dead letters, newest first. An empty status lists all.
func (s *Service) List(ctx context.Context, status enums.DeadLetterStatus, limit int) ([]models.WebhookDeadLetter, error) {
	if status != "" && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown dead letter status %q", status))
	}
	if limit <= 0 || limit > 200 {
		limit = defaultReplayBatchSize
	}
	letters, err := s.deadLetters.List(ctx, status, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters")
	}
	return letters, nil
}

// PayloadHash is the hex SHA-256 of a webhook body.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func headerSubset(headers http.Header) json.RawMessage {
	kept := map[string]string{}
	for _, name := range storedHeaders {
		if value := headers.Get(name); value != "" {
			kept[name] = value
		}
	}
	raw, err := json.Marshal(kept)
	if err != nil {
		return nil
	}
	return raw
}
