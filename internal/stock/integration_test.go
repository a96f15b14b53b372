package stock_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-fulfillment/internal/stock"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/config"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/migrate"
)

// PostgresLedgerSuite exercises the single-statement stock update against a
// real Postgres so concurrent callers race on the same rows.
type PostgresLedgerSuite struct {
	suite.Suite
	container *postgres.PostgresContainer
	client    *db.Client
	svc       stock.Service
}

func TestPostgresLedgerSuite(t *testing.T) {
	if os.Getenv("PACKFINDERZ_INTEGRATION") != "1" {
		t.Skip("set PACKFINDERZ_INTEGRATION=1 to run Postgres integration tests")
	}
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("fulfillment"),
		postgres.WithUsername("fulfillment"),
		postgres.WithPassword("fulfillment"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	client, err := db.New(ctx, config.DBConfig{DSN: dsn, MaxOpenConns: 16}, nil)
	s.Require().NoError(err)
	s.client = client

	sqlDB, err := client.DB().DB()
	s.Require().NoError(err)
	s.Require().NoError(migrate.Run(ctx, sqlDB, "../../pkg/migrate/migrations", "up"))

	svc, err := stock.NewService(stock.NewRepository(client.DB()), client, logger.Nop(), nil)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *PostgresLedgerSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

func (s *PostgresLedgerSuite) TestConcurrentDeductsOfOneItemApplyOnce() {
	ctx := context.Background()
	variant := &models.ProductVariant{SKU: "PG-ONCE", Stock: 10}
	s.Require().NoError(s.client.DB().Create(variant).Error)
	line := stock.Line{VariantID: variant.ID, Quantity: 2, RefID: uuid.New()}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
				result, err := s.svc.Deduct(ctx, tx, line, enums.StockReasonPackDeduction, nil)
				if err != nil {
					return err
				}
				if result.Applied {
					mu.Lock()
					applied++
					mu.Unlock()
				}
				return nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Equal(1, applied)
	s.Equal(int64(8), s.stockOf(variant.ID))
}

func (s *PostgresLedgerSuite) TestConcurrentDeductsOfDifferentItemsNeverLoseUpdates() {
	ctx := context.Background()
	variant := &models.ProductVariant{SKU: "PG-MANY", Stock: 3}
	s.Require().NoError(s.client.DB().Create(variant).Error)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.Deduct(ctx, s.client.DB(), stock.Line{VariantID: variant.ID, Quantity: 1, RefID: uuid.New()}, enums.StockReasonPackDeduction, nil)
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Equal(int64(-7), s.stockOf(variant.ID))
}

func (s *PostgresLedgerSuite) TestMissingVariantRaisesNotFound() {
	_, err := s.svc.Restore(context.Background(), s.client.DB(), stock.Line{VariantID: uuid.New(), Quantity: 1, RefID: uuid.New()}, enums.StockReasonRTORestore, nil)
	s.Require().Error(err)
	s.Contains(err.Error(), "NOT_FOUND")
}

func (s *PostgresLedgerSuite) stockOf(id uuid.UUID) int64 {
	var variant models.ProductVariant
	s.Require().NoError(s.client.DB().First(&variant, "id = ?", id).Error)
	return variant.Stock
}
