package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// Variant inserts a product variant with the given stock.
func Variant(t *testing.T, client *db.Client, sku string, stock int64) *models.ProductVariant {
	t.Helper()
	variant := &models.ProductVariant{SKU: sku, Stock: stock}
	require.NoError(t, client.DB().Create(variant).Error)
	return variant
}

// Stock reads the current stock of a variant.
func Stock(t *testing.T, client *db.Client, variantID uuid.UUID) int64 {
	t.Helper()
	var variant models.ProductVariant
	require.NoError(t, client.DB().First(&variant, "id = ?", variantID).Error)
	return variant.Stock
}

// ItemSeed describes one order line for OrderSeed.
type ItemSeed struct {
	Variant  *models.ProductVariant
	Quantity int
	Price    string
}

// OrderSeed describes an order to insert. Zero values get sensible defaults.
type OrderSeed struct {
	Status        enums.OrderStatus
	PaymentMethod enums.PaymentMethod
	Payable       string
	TrackingID    string
	Provider      enums.LogisticsProvider
	RiderID       *uuid.UUID
	StockDeducted bool
	Items         []ItemSeed
}

var orderSeq int

// Order inserts an order with its items and returns it with Items loaded.
func Order(t *testing.T, client *db.Client, seed OrderSeed) *models.Order {
	t.Helper()
	orderSeq++

	if seed.Status == "" {
		seed.Status = enums.OrderStatusConverted
	}
	if seed.PaymentMethod == "" {
		seed.PaymentMethod = enums.PaymentMethodCOD
	}
	if seed.Payable == "" {
		seed.Payable = "0"
	}

	order := &models.Order{
		ReadableID:      fmt.Sprintf("PF-%d", 1000+orderSeq),
		OrderNumber:     fmt.Sprintf("#%d", 5000+orderSeq),
		Status:          seed.Status,
		FulfillmentType: enums.FulfillmentInsideRegion,
		RecipientName:   "Test Recipient",
		RecipientPhone:  "01700000000",
		PaymentMethod:   seed.PaymentMethod,
		PayableAmount:   decimal.RequireFromString(seed.Payable),
		RiderID:         seed.RiderID,
		StockDeducted:   seed.StockDeducted,
	}
	if seed.TrackingID != "" {
		tracking := seed.TrackingID
		order.TrackingID = &tracking
	}
	if seed.Provider != "" {
		provider := seed.Provider
		order.LogisticsProvider = &provider
	}
	for _, item := range seed.Items {
		price := item.Price
		if price == "" {
			price = "100"
		}
		order.Items = append(order.Items, models.OrderItem{
			VariantID: item.Variant.ID,
			SKU:       item.Variant.SKU,
			Quantity:  item.Quantity,
			UnitPrice: decimal.RequireFromString(price),
		})
	}
	require.NoError(t, client.DB().Create(order).Error)
	return order
}

// Reload fetches an order with its items.
func Reload(t *testing.T, client *db.Client, orderID uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, client.DB().Preload("Items").First(&order, "id = ?", orderID).Error)
	return &order
}
