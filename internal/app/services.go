// Package app assembles the fulfillment services shared by the api and
// cron-worker binaries.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/couriers"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/ledger"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/manifests"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/returns"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/settlements"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/stock"
	courierwebhook "github.com/angelmondragon/packfinderz-fulfillment/internal/webhooks/couriers"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/metrics"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/outbox"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/redis"
)

type Services struct {
	Outbox      *outbox.Service
	OutboxRepo  *outbox.Repository
	Stock       stock.Service
	Orders      orders.Service
	OrderRepo   orders.Repository
	Ledger      ledger.Service
	Settlements settlements.Service
	Manifests   manifests.Service
	Returns     returns.Service
	Couriers    *couriers.Registry
	Dispatch    *couriers.DispatchService
	Webhooks    *courierwebhook.Service
}

// Params carry the shared clients. Registerer may be nil to skip metrics.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      redis.IdempotencyStore
	Registerer prometheus.Registerer
}

func Build(p Params) (*Services, error) {
	if p.Config == nil || p.Logger == nil || p.DB == nil || p.Redis == nil {
		return nil, fmt.Errorf("config, logger, database and redis are required")
	}
	cfg, logg, conn := p.Config, p.Logger, p.DB.DB()

	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)

	stockLedger, err := stock.NewService(stock.NewRepository(conn), p.DB, logg, metrics.NewStockMetrics(p.Registerer))
	if err != nil {
		return nil, fmt.Errorf("stock service: %w", err)
	}
	riderLedger, err := ledger.NewService(ledger.NewRepository(conn), p.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	orderRepo := orders.NewRepository(conn)
	orderSvc, err := orders.NewService(orderRepo, p.DB, stockLedger, emitter, logg, orders.WithRiderLedger(riderLedger))
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}
	settlementSvc, err := settlements.NewService(settlements.NewRepository(conn), p.DB, riderLedger, emitter, logg)
	if err != nil {
		return nil, fmt.Errorf("settlements service: %w", err)
	}
	manifestSvc, err := manifests.NewService(manifests.Config{
		Repo:        manifests.NewRepository(conn),
		Orders:      orderRepo,
		Transitions: orderSvc,
		Tx:          p.DB,
		Ledger:      riderLedger,
		Settlements: settlementSvc,
		Outbox:      emitter,
		Logger:      logg,
	})
	if err != nil {
		return nil, fmt.Errorf("manifests service: %w", err)
	}
	returnSvc, err := returns.NewService(returns.Config{
		Repo:        returns.NewRepository(conn),
		Orders:      orderRepo,
		Transitions: orderSvc,
		Stock:       stockLedger,
		Tx:          p.DB,
		Outbox:      emitter,
		Logger:      logg,
	})
	if err != nil {
		return nil, fmt.Errorf("returns service: %w", err)
	}

	mappings, err := couriers.LoadStatusMappings(cfg.Couriers.MappingsPath)
	if err != nil {
		return nil, err
	}
	registry, err := couriers.NewRegistryFromConfig(cfg.Couriers, mappings, orderRepo)
	if err != nil {
		return nil, fmt.Errorf("courier registry: %w", err)
	}
	tracker, err := couriers.NewTracker(p.DB, orderRepo, orderSvc, couriers.NewEventRepository(conn), logg)
	if err != nil {
		return nil, fmt.Errorf("courier tracker: %w", err)
	}
	dispatch, err := couriers.NewDispatchService(couriers.DispatchConfig{
		Registry:    registry,
		Orders:      orderRepo,
		Transitions: orderSvc,
		Tx:          p.DB,
		Tracker:     tracker,
		PushEnabled: cfg.FeatureFlags.CourierPush,
		Logger:      logg,
	})
	if err != nil {
		return nil, fmt.Errorf("courier dispatch: %w", err)
	}

	guard, err := courierwebhook.NewDedupGuard(p.Redis, cfg.Webhooks.DedupTTL)
	if err != nil {
		return nil, fmt.Errorf("webhook dedup guard: %w", err)
	}
	webhooks, err := courierwebhook.NewService(courierwebhook.ServiceParams{
		Registry:          registry,
		Tracker:           tracker,
		Guard:             guard,
		DeadLetters:       courierwebhook.NewDeadLetterRepository(conn),
		Metrics:           metrics.NewCourierWebhookMetrics(p.Registerer),
		Logger:            logg,
		MaxReplayAttempts: cfg.Webhooks.MaxReplayAttempts,
		ReplayBaseBackoff: cfg.Webhooks.ReplayBaseBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("courier webhooks: %w", err)
	}

	return &Services{
		Outbox:      emitter,
		OutboxRepo:  outboxRepo,
		Stock:       stockLedger,
		Orders:      orderSvc,
		OrderRepo:   orderRepo,
		Ledger:      riderLedger,
		Settlements: settlementSvc,
		Manifests:   manifestSvc,
		Returns:     returnSvc,
		Couriers:    registry,
		Dispatch:    dispatch,
		Webhooks:    webhooks,
	}, nil
}
