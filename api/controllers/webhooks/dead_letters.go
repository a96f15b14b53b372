package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/api/responses"
	"github.com/angelmondragon/packfinderz-fulfillment/api/validators"
	courierwebhook "github.com/angelmondragon/packfinderz-fulfillment/internal/webhooks/couriers"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
)

// DeadLetterService lists and replays webhook deliveries that failed processing.
type DeadLetterService interface {
	List(ctx context.Context, status enums.DeadLetterStatus, limit int) ([]models.WebhookDeadLetter, error)
	Replay(ctx context.Context, id uuid.UUID) (*courierwebhook.ReplayResult, error)
}

// DeadLetterView is the admin shape of a stored delivery. The raw payload is
// returned as text since courier bodies are JSON.
type DeadLetterView struct {
	ID            uuid.UUID              `json:"id"`
	Provider      string                 `json:"provider"`
	Reason        enums.DeadLetterReason `json:"reason"`
	Status        enums.DeadLetterStatus `json:"status"`
	AttemptCount  int                    `json:"attempt_count"`
	LastError     *string                `json:"last_error,omitempty"`
	PayloadHash   string                 `json:"payload_hash"`
	Payload       string                 `json:"payload"`
	Headers       json.RawMessage        `json:"headers,omitempty"`
	NextAttemptAt *time.Time             `json:"next_attempt_at,omitempty"`
	LastAttemptAt *time.Time             `json:"last_attempt_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

func newDeadLetterView(letter *models.WebhookDeadLetter) DeadLetterView {
	return DeadLetterView{
		ID:            letter.ID,
		Provider:      letter.Provider,
		Reason:        letter.Reason,
		Status:        letter.Status,
		AttemptCount:  letter.AttemptCount,
		LastError:     letter.LastError,
		PayloadHash:   letter.PayloadHash,
		Payload:       string(letter.Payload),
		Headers:       letter.Headers,
		NextAttemptAt: letter.NextAttemptAt,
		LastAttemptAt: letter.LastAttemptAt,
		CreatedAt:     letter.CreatedAt,
	}
}

type replayView struct {
	DeadLetter DeadLetterView `json:"dead_letter"`
	Message    string         `json:"message"`
	Error      string         `json:"error,omitempty"`
}

func ListDeadLetters(svc DeadLetterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		status := enums.DeadLetterStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))))
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		letters, err := svc.List(r.Context(), status, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]DeadLetterView, 0, len(letters))
		for i := range letters {
			views = append(views, newDeadLetterView(&letters[i]))
		}
		responses.WriteSuccess(w, views)
	}
}

// ReplayDeadLetter reprocesses one stored delivery on operator request.
func ReplayDeadLetter(svc DeadLetterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Replay(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view := replayView{Message: result.Message, Error: result.Error}
		if result.DeadLetter != nil {
			view.DeadLetter = newDeadLetterView(result.DeadLetter)
		}
		responses.WriteSuccess(w, view)
	}
}
