package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/store"
	"dukkan/backend/internal/store/memory"
)

func ptr[T any](v T) *T { return &v }

func newTestCatalog() *Catalog {
	now := time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)
	return New(memory.NewSeeded()).WithClock(func() time.Time { return now })
}

func TestCreateProductDefaults(t *testing.T) {
	c := newTestCatalog()

	p, err := c.CreateProduct(context.Background(), ProductInput{
		Name:       ptr("  Dates 1kg "),
		Category:   ptr("grocery"),
		PriceCents: ptr(int64(3000)),
		Quantity:   ptr(12),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Dates 1kg", p.Name)
	assert.Equal(t, domain.DefaultMinQuantity, p.MinQuantity)
	assert.True(t, p.Active)
}

func TestCreateProductRejectsInvalidInput(t *testing.T) {
	c := newTestCatalog()
	ctx := context.Background()

	_, err := c.CreateProduct(ctx, ProductInput{Name: ptr(" ")})
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = c.CreateProduct(ctx, ProductInput{Name: ptr("x"), Quantity: ptr(-1)})
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = c.CreateProduct(ctx, ProductInput{Name: ptr("dup"), Barcode: ptr("6281000000011")})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestUpdateProductKeepsBarcodeUnique(t *testing.T) {
	c := newTestCatalog()
	ctx := context.Background()

	_, err := c.UpdateProduct(ctx, "prd-0002", ProductInput{Barcode: ptr("6281000000011")})
	assert.ErrorIs(t, err, store.ErrValidation)

	same, err := c.UpdateProduct(ctx, "prd-0001", ProductInput{Barcode: ptr("6281000000011"), PriceCents: ptr(int64(2600))})
	require.NoError(t, err)
	assert.Equal(t, int64(2600), same.PriceCents)

	cleared, err := c.UpdateProduct(ctx, "prd-0001", ProductInput{Barcode: ptr("")})
	require.NoError(t, err)
	assert.Empty(t, cleared.Barcode)

	_, err = c.UpdateProduct(ctx, "missing", ProductInput{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestInactiveProductsAreHidden(t *testing.T) {
	c := newTestCatalog()
	ctx := context.Background()

	_, err := c.SetProductActive(ctx, "prd-0003", false)
	require.NoError(t, err)

	active, err := c.ListProducts(ctx, false)
	require.NoError(t, err)
	for _, p := range active {
		assert.NotEqual(t, "prd-0003", p.ID)
	}

	all, err := c.ListProducts(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, len(active)+1)

	_, err = c.FindByBarcode(ctx, "6281000000035")
	assert.ErrorIs(t, err, store.ErrNotFound)

	found, err := c.FindByBarcode(ctx, "6281000000011")
	require.NoError(t, err)
	assert.Equal(t, "prd-0001", found.ID)
}

func TestRestockAndDelete(t *testing.T) {
	c := newTestCatalog()
	ctx := context.Background()

	p, err := c.Restock(ctx, "prd-0005", 24)
	require.NoError(t, err)
	assert.Equal(t, 24, p.Quantity)

	_, err = c.Restock(ctx, "prd-0005", 0)
	assert.ErrorIs(t, err, store.ErrValidation)

	require.NoError(t, c.DeleteProduct(ctx, "prd-0005"))
	assert.ErrorIs(t, c.DeleteProduct(ctx, "prd-0005"), store.ErrNotFound)
}

func TestLowStockAndExpiring(t *testing.T) {
	c := newTestCatalog()
	ctx := context.Background()

	low, err := c.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "prd-0005", low[0].ID)
	assert.Equal(t, "prd-0004", low[1].ID)

	expiring, err := c.ExpiringSoon(ctx, 30)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "prd-0004", expiring[0].ID)

	expiring, err = c.ExpiringSoon(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, expiring)
}

func TestSuppliersLifecycle(t *testing.T) {
	c := newTestCatalog()
	ctx := context.Background()

	_, err := c.CreateSupplier(ctx, SupplierInput{Name: ptr("")})
	assert.ErrorIs(t, err, store.ErrValidation)

	sup, err := c.CreateSupplier(ctx, SupplierInput{Name: ptr("Gulf Foods"), Email: ptr("sales@gulf.example")})
	require.NoError(t, err)
	assert.True(t, sup.Active)

	sup, err = c.AdjustSupplierBalance(ctx, sup.ID, 5000)
	require.NoError(t, err)
	sup, err = c.AdjustSupplierBalance(ctx, sup.ID, -2000)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), sup.BalanceCents)

	sup, err = c.UpdateSupplier(ctx, sup.ID, SupplierInput{Phone: ptr("0551234567")})
	require.NoError(t, err)
	assert.Equal(t, "Gulf Foods", sup.Name)
	assert.Equal(t, "0551234567", sup.Phone)

	require.NoError(t, c.DeleteSupplier(ctx, sup.ID))
	_, err = c.GetSupplier(ctx, sup.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordPurchaseUpdatesStockCostAndBalance(t *testing.T) {
	c := newTestCatalog()
	ctx := domain.WithOperator(context.Background(), domain.Operator{Username: "mgr", DisplayName: "Manager"})

	purchase, err := c.RecordPurchase(ctx, PurchaseRequest{
		SupplierID: "sup-0001",
		Lines: []PurchaseLineInput{
			{ProductID: "prd-0005", Quantity: 10, UnitCostCents: 1500},
			{ProductID: "prd-0002", Quantity: 5, UnitCostCents: 620},
		},
		PaidCents: 10000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(18100), purchase.TotalCents)
	assert.Equal(t, "Manager", purchase.Operator)
	assert.Equal(t, "Al Noor Trading", purchase.SupplierName)

	oil, err := c.GetProduct(ctx, "prd-0005")
	require.NoError(t, err)
	assert.Equal(t, 10, oil.Quantity)
	assert.Equal(t, int64(1500), oil.CostCents)

	sup, err := c.GetSupplier(ctx, "sup-0001")
	require.NoError(t, err)
	assert.Equal(t, int64(8100), sup.BalanceCents)

	list, err := c.ListPurchases(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRecordPurchaseIsAllOrNothing(t *testing.T) {
	c := newTestCatalog()
	ctx := context.Background()

	_, err := c.RecordPurchase(ctx, PurchaseRequest{
		SupplierID: "sup-0001",
		Lines: []PurchaseLineInput{
			{ProductID: "prd-0002", Quantity: 5, UnitCostCents: 600},
			{ProductID: "missing", Quantity: 1, UnitCostCents: 100},
		},
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	sugar, err := c.GetProduct(ctx, "prd-0002")
	require.NoError(t, err)
	assert.Equal(t, 30, sugar.Quantity)

	_, err = c.RecordPurchase(ctx, PurchaseRequest{
		SupplierID: "sup-0001",
		Lines:      []PurchaseLineInput{{ProductID: "prd-0002", Quantity: 1, UnitCostCents: 100}},
		PaidCents:  200,
	})
	assert.ErrorIs(t, err, store.ErrValidation)
}
