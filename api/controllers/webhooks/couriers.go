package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-fulfillment/api/responses"
	courierwebhook "github.com/angelmondragon/packfinderz-fulfillment/internal/webhooks/couriers"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
)

const maxWebhookBodyBytes = 1 << 20

// CourierWebhookService acknowledges and processes courier deliveries.
type CourierWebhookService interface {
	Handle(ctx context.Context, delivery courierwebhook.Delivery) courierwebhook.Response
}

// CourierWebhook answers every delivery with 200 so couriers do not retry.
// Failures are carried in the body and dead-lettered by the service.
func CourierWebhook(svc CourierWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		provider := chi.URLParam(r, "provider")
		if logg != nil {
			ctx = logg.WithProvider(ctx, provider)
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook.body_unreadable")
			}
			responses.WriteRaw(w, http.StatusOK, courierwebhook.Unreadable())
			return
		}
		if svc == nil {
			if logg != nil {
				logg.Error(ctx, "webhook.service_unavailable", nil)
			}
			responses.WriteRaw(w, http.StatusOK, courierwebhook.Response{Success: false, Message: "webhook processing unavailable"})
			return
		}

		resp := svc.Handle(ctx, courierwebhook.Delivery{
			ProviderName: provider,
			Body:         body,
			Headers:      r.Header,
		})
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		responses.WriteRaw(w, http.StatusOK, resp)
	}
}
