package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packfinderz-fulfillment/api/controllers"
	manifestcontrollers "github.com/angelmondragon/packfinderz-fulfillment/api/controllers/manifests"
	ordercontrollers "github.com/angelmondragon/packfinderz-fulfillment/api/controllers/orders"
	returncontrollers "github.com/angelmondragon/packfinderz-fulfillment/api/controllers/returns"
	settlementcontrollers "github.com/angelmondragon/packfinderz-fulfillment/api/controllers/settlements"
	webhookcontrollers "github.com/angelmondragon/packfinderz-fulfillment/api/controllers/webhooks"
	"github.com/angelmondragon/packfinderz-fulfillment/api/middleware"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	pkgredis "github.com/angelmondragon/packfinderz-fulfillment/pkg/redis"
)

// Deps are the services the HTTP surface dispatches to. Nil services answer
// with an internal error rather than panicking.
type Deps struct {
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	Gatherer    prometheus.Gatherer

	Orders      ordercontrollers.OrderService
	Dispatch    ordercontrollers.CourierDispatcher
	Manifests   manifestcontrollers.ManifestService
	Handovers   manifestcontrollers.HandoverService
	Returns     returncontrollers.Service
	Settlements settlementcontrollers.Service
	Webhooks    webhookcontrollers.CourierWebhookService
	DeadLetters webhookcontrollers.DeadLetterService
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)
	if len(cfg.App.CORSOrigins) > 0 || cfg.App.IsDev() {
		r.Use(middleware.CORS(cfg.App.CORSOrigins))
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Redis, logg))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Couriers do not send operator headers.
	r.Post("/api/v1/webhooks/couriers/{provider}", webhookcontrollers.CourierWebhook(deps.Webhooks, logg))

	// Group keeps the full pattern visible to Idempotency, which keys its TTL
	// rules on it.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Post("/api/v1/orders/bulk-assign", ordercontrollers.BulkAssign(deps.Orders, logg))
		r.Post("/api/v1/orders/{orderId}/pack", ordercontrollers.Pack(deps.Orders, logg))
		r.Post("/api/v1/orders/{orderId}/transition", ordercontrollers.Transition(deps.Orders, logg))
		r.Post("/api/v1/orders/{orderId}/courier-sync", ordercontrollers.CourierSync(deps.Dispatch, logg))
		r.Post("/api/v1/courier-orders/bulk", ordercontrollers.BulkCreateCourierOrders(deps.Dispatch, logg))

		r.Post("/api/v1/manifests", manifestcontrollers.Create(deps.Manifests, logg))
		r.Get("/api/v1/manifests", manifestcontrollers.List(deps.Manifests, logg))
		r.Get("/api/v1/manifests/{manifestId}", manifestcontrollers.Get(deps.Manifests, logg))
		r.Post("/api/v1/manifests/{manifestId}/dispatch", manifestcontrollers.Dispatch(deps.Manifests, logg))
		r.Post("/api/v1/manifests/{manifestId}/outcomes", manifestcontrollers.RecordOutcome(deps.Manifests, logg))
		r.Post("/api/v1/manifests/{manifestId}/settle", manifestcontrollers.Settle(deps.Manifests, logg))

		r.Post("/api/v1/courier-handovers", manifestcontrollers.CreateHandover(deps.Handovers, logg))
		r.Get("/api/v1/courier-handovers", manifestcontrollers.ListHandovers(deps.Handovers, logg))
		r.Get("/api/v1/courier-handovers/{batchId}", manifestcontrollers.GetHandover(deps.Handovers, logg))
		r.Post("/api/v1/courier-handovers/{batchId}/handover", manifestcontrollers.MarkHandedOver(deps.Handovers, logg))

		r.Post("/api/v1/returns/rto/verify", returncontrollers.VerifyRTO(deps.Returns, logg))
		r.Post("/api/v1/returns/rto/{orderId}/lost", returncontrollers.MarkLost(deps.Returns, logg))
		r.Post("/api/v1/returns/rto/{orderId}/restore", returncontrollers.RetryRestore(deps.Returns, logg))
		r.Post("/api/v1/returns/handovers", returncontrollers.ReceiveHandover(deps.Returns, logg))
		r.Get("/api/v1/returns/handovers/{recordId}", returncontrollers.GetRecord(deps.Returns, logg))
		r.Post("/api/v1/returns/handovers/{recordId}/settle", returncontrollers.SettleRecord(deps.Returns, logg))

		r.Post("/api/v1/settlements", settlementcontrollers.Create(deps.Settlements, logg))
		r.Post("/api/v1/settlements/bulk", settlementcontrollers.BulkCreate(deps.Settlements, logg))
		r.Post("/api/v1/settlements/{settlementId}/verify", settlementcontrollers.Verify(deps.Settlements, logg))
		r.Get("/api/v1/riders/{riderId}/settlement-summary", settlementcontrollers.RiderSummary(deps.Settlements, logg))

		r.Get("/api/v1/admin/webhooks/dead-letters", webhookcontrollers.ListDeadLetters(deps.DeadLetters, logg))
		r.Post("/api/v1/admin/webhooks/dead-letters/{id}/replay", webhookcontrollers.ReplayDeadLetter(deps.DeadLetters, logg))
	})

	return r
}
