package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/store"
)

// Catalog owns product and supplier records and every stock mutation that is
// not part of a sale.
type Catalog struct {
	store     store.Store
	products  store.Collection[domain.Product]
	suppliers store.Collection[domain.Supplier]
	purchases store.Collection[domain.Purchase]
	now       func() time.Time
}

func New(s store.Store) *Catalog {
	return &Catalog{
		store:     s,
		products:  store.NewCollection[domain.Product](s, domain.CollectionProducts),
		suppliers: store.NewCollection[domain.Supplier](s, domain.CollectionSuppliers),
		purchases: store.NewCollection[domain.Purchase](s, domain.CollectionPurchases),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for expiry checks and purchase dates.
func (c *Catalog) WithClock(now func() time.Time) *Catalog {
	c.now = now
	return c
}

// ProductInput carries the fields to set. Nil fields are left unchanged on
// update and take their defaults on create.
type ProductInput struct {
	Name        *string `json:"name"`
	Category    *string `json:"category"`
	Barcode     *string `json:"barcode"`
	Description *string `json:"description"`
	PriceCents  *int64  `json:"price_cents"`
	CostCents   *int64  `json:"cost_cents"`
	Quantity    *int    `json:"quantity"`
	MinQuantity *int    `json:"min_quantity"`
	SupplierID  *string `json:"supplier_id"`
	ExpiryDate  *string `json:"expiry_date"`
	Active      *bool   `json:"active"`
}

func (in ProductInput) apply(p *domain.Product) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Category != nil {
		p.Category = strings.TrimSpace(*in.Category)
	}
	if in.Barcode != nil {
		p.Barcode = strings.TrimSpace(*in.Barcode)
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.PriceCents != nil {
		p.PriceCents = *in.PriceCents
	}
	if in.CostCents != nil {
		p.CostCents = *in.CostCents
	}
	if in.Quantity != nil {
		p.Quantity = *in.Quantity
	}
	if in.MinQuantity != nil {
		p.MinQuantity = *in.MinQuantity
	}
	if in.SupplierID != nil {
		p.SupplierID = strings.TrimSpace(*in.SupplierID)
	}
	if in.ExpiryDate != nil {
		p.ExpiryDate = strings.TrimSpace(*in.ExpiryDate)
	}
	if in.Active != nil {
		p.Active = *in.Active
	}
}

func (c *Catalog) CreateProduct(ctx context.Context, in ProductInput) (domain.Product, error) {
	product := domain.Product{MinQuantity: domain.DefaultMinQuantity, Active: true}
	in.apply(&product)
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}

	var created domain.Product
	err := c.store.Atomic(ctx, func(ctx context.Context, tx store.Backend) error {
		products := c.products.On(tx)
		if err := ensureBarcodeFree(ctx, products, product.Barcode, ""); err != nil {
			return err
		}
		out, err := products.Add(ctx, product)
		created = out
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}
	return created, nil
}

func (c *Catalog) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return c.products.Get(ctx, strings.TrimSpace(id))
}

func (c *Catalog) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	all, err := c.products.All(ctx)
	if err != nil {
		return nil, err
	}
	if includeInactive {
		return all, nil
	}
	return filterProducts(all, func(p domain.Product) bool { return p.Active }), nil
}

// FindByBarcode returns the active product carrying code.
func (c *Catalog) FindByBarcode(ctx context.Context, code string) (domain.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Product{}, fmt.Errorf("%w: barcode is required", store.ErrValidation)
	}
	matches, err := c.products.FindBy(ctx, "barcode", code)
	if err != nil {
		return domain.Product{}, err
	}
	for _, p := range matches {
		if p.Active {
			return p, nil
		}
	}
	return domain.Product{}, fmt.Errorf("%w: no active product with barcode %s", store.ErrNotFound, code)
}

func (c *Catalog) UpdateProduct(ctx context.Context, id string, in ProductInput) (domain.Product, error) {
	var updated domain.Product
	err := c.store.Atomic(ctx, func(ctx context.Context, tx store.Backend) error {
		products := c.products.On(tx)
		product, err := products.Get(ctx, id)
		if err != nil {
			return err
		}
		in.apply(&product)
		if err := product.Validate(); err != nil {
			return err
		}
		if in.Barcode != nil {
			if err := ensureBarcodeFree(ctx, products, product.Barcode, product.ID); err != nil {
				return err
			}
		}
		out, err := products.Update(ctx, id, product)
		updated = out
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

// SetProductActive hides a product from sale or brings it back.
func (c *Catalog) SetProductActive(ctx context.Context, id string, active bool) (domain.Product, error) {
	return c.UpdateProduct(ctx, id, ProductInput{Active: &active})
}

// DeleteProduct removes the record. Historical sale lines keep their copy.
func (c *Catalog) DeleteProduct(ctx context.Context, id string) error {
	removed, err := c.products.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	return nil
}

// Restock adds qty units to a product outside of any purchase record.
func (c *Catalog) Restock(ctx context.Context, id string, qty int) (domain.Product, error) {
	var updated domain.Product
	err := c.store.Atomic(ctx, func(ctx context.Context, tx store.Backend) error {
		products := c.products.On(tx)
		product, err := products.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := product.Restore(qty); err != nil {
			return err
		}
		out, err := products.Update(ctx, id, map[string]any{"quantity": product.Quantity})
		updated = out
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

// LowStock lists active products at or below their minimum quantity, emptiest first.
func (c *Catalog) LowStock(ctx context.Context) ([]domain.Product, error) {
	active, err := c.ListProducts(ctx, false)
	if err != nil {
		return nil, err
	}
	low := filterProducts(active, domain.Product.LowStock)
	sort.SliceStable(low, func(i, j int) bool { return low[i].Quantity < low[j].Quantity })
	return low, nil
}

// ExpiringSoon lists active products whose expiry date falls within days from
// today, including those already expired.
func (c *Catalog) ExpiringSoon(ctx context.Context, days int) ([]domain.Product, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: days must not be negative", store.ErrValidation)
	}
	active, err := c.ListProducts(ctx, false)
	if err != nil {
		return nil, err
	}
	limit := c.now().AddDate(0, 0, days).Format(domain.DateLayout)
	out := filterProducts(active, func(p domain.Product) bool {
		return p.ExpiryDate != "" && p.ExpiryDate <= limit
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiryDate < out[j].ExpiryDate })
	return out, nil
}

func ensureBarcodeFree(ctx context.Context, products store.Collection[domain.Product], barcode string, selfID string) error {
	if barcode == "" {
		return nil
	}
	matches, err := products.FindBy(ctx, "barcode", barcode)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	for _, p := range matches {
		if p.ID != selfID {
			return fmt.Errorf("%w: barcode %s already used by %s", store.ErrValidation, barcode, p.Name)
		}
	}
	return nil
}

func filterProducts(in []domain.Product, keep func(domain.Product) bool) []domain.Product {
	out := make([]domain.Product, 0, len(in))
	for _, p := range in {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
