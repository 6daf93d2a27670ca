package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/store"
)

// ProductLookup reads the current state of a product.
type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	FindByBarcode(ctx context.Context, code string) (domain.Product, error)
}

// Cart accumulates the lines of one in-progress sale. It never touches stored
// state and is not safe for concurrent use.
type Cart struct {
	products ProductLookup
	lines    []domain.CartLine
	discount domain.Discount
}

// Ticket is a frozen copy of a cart handed to settlement.
type Ticket struct {
	Lines    []domain.CartLine `json:"lines"`
	Discount domain.Discount   `json:"discount"`
	Totals   domain.Totals     `json:"totals"`
}

func New(products ProductLookup) *Cart {
	return &Cart{products: products, discount: noDiscount()}
}

func noDiscount() domain.Discount {
	return domain.Discount{Kind: domain.DiscountNone, Value: decimal.Zero}
}

// AddLine adds qty units of a product, merging with an existing line. The
// resulting quantity may not exceed the product's current stock.
func (c *Cart) AddLine(ctx context.Context, productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
	}
	product, err := c.products.GetProduct(ctx, strings.TrimSpace(productID))
	if err != nil {
		return err
	}
	return c.add(product, qty)
}

// AddByBarcode is AddLine for a scanned code.
func (c *Cart) AddByBarcode(ctx context.Context, code string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
	}
	product, err := c.products.FindByBarcode(ctx, code)
	if err != nil {
		return err
	}
	return c.add(product, qty)
}

func (c *Cart) add(product domain.Product, qty int) error {
	if !product.Active {
		return fmt.Errorf("%w: %s is not for sale", store.ErrNotFound, product.Name)
	}
	if product.Quantity <= 0 {
		return fmt.Errorf("%w: %s", store.ErrOutOfStock, product.Name)
	}

	if i := c.indexOf(product.ID); i >= 0 {
		line := &c.lines[i]
		combined := line.Quantity + qty
		if combined > product.Quantity {
			return fmt.Errorf("%w: %s has %d in stock, cart would hold %d",
				store.ErrInsufficientStock, product.Name, product.Quantity, combined)
		}
		line.Quantity = combined
		line.MaxQuantity = product.Quantity
		line.TotalCents = int64(line.Quantity) * line.PriceCents
		return nil
	}

	if qty > product.Quantity {
		return fmt.Errorf("%w: %s has %d in stock, requested %d",
			store.ErrInsufficientStock, product.Name, product.Quantity, qty)
	}
	c.lines = append(c.lines, domain.CartLine{
		ProductID:   product.ID,
		Name:        product.Name,
		PriceCents:  product.PriceCents,
		Quantity:    qty,
		MaxQuantity: product.Quantity,
		TotalCents:  int64(qty) * product.PriceCents,
	})
	return nil
}

// ChangeQuantity moves a line's quantity by delta. Dropping below one removes
// the line; exceeding the captured stock ceiling is rejected.
func (c *Cart) ChangeQuantity(productID string, delta int) error {
	i := c.indexOf(productID)
	if i < 0 {
		return fmt.Errorf("%w: product %s is not in the cart", store.ErrNotFound, productID)
	}
	line := &c.lines[i]
	next := line.Quantity + delta
	if next < 1 {
		c.RemoveLine(productID)
		return nil
	}
	if next > line.MaxQuantity {
		return fmt.Errorf("%w: %s has %d in stock, requested %d",
			store.ErrInsufficientStock, line.Name, line.MaxQuantity, next)
	}
	line.Quantity = next
	line.TotalCents = int64(next) * line.PriceCents
	return nil
}

func (c *Cart) RemoveLine(productID string) {
	if i := c.indexOf(productID); i >= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
	}
}

// ApplyDiscount sets the cart's single discount. Percent values are in
// percent units; fixed values are in cents.
func (c *Cart) ApplyDiscount(kind domain.DiscountKind, value decimal.Decimal) error {
	switch kind {
	case domain.DiscountNone:
		c.discount = noDiscount()
		return nil
	case domain.DiscountPercent, domain.DiscountFixed:
	default:
		return fmt.Errorf("%w: unknown discount kind %q", store.ErrValidation, kind)
	}
	if value.IsNegative() {
		return fmt.Errorf("%w: discount must not be negative", store.ErrValidation)
	}
	c.discount = domain.Discount{Kind: kind, Value: value}
	return nil
}

func (c *Cart) Totals() domain.Totals {
	var subtotal int64
	for _, line := range c.lines {
		subtotal += line.TotalCents
	}
	discount := discountAmount(c.discount, subtotal)
	return domain.Totals{
		SubtotalCents: subtotal,
		DiscountCents: discount,
		TotalCents:    subtotal - discount,
	}
}

// discountAmount never exceeds subtotal, so totals stay non-negative.
func discountAmount(d domain.Discount, subtotal int64) int64 {
	var amount decimal.Decimal
	switch d.Kind {
	case domain.DiscountPercent:
		amount = decimal.NewFromInt(subtotal).Mul(d.Value).Div(decimal.NewFromInt(100))
	case domain.DiscountFixed:
		amount = d.Value
	default:
		return 0
	}
	cents := amount.Round(0).IntPart()
	if cents > subtotal {
		return subtotal
	}
	if cents < 0 {
		return 0
	}
	return cents
}

func (c *Cart) Lines() []domain.CartLine {
	return append([]domain.CartLine(nil), c.lines...)
}

func (c *Cart) Discount() domain.Discount {
	return c.discount
}

func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

func (c *Cart) Clear() {
	c.lines = nil
	c.discount = noDiscount()
}

func (c *Cart) Ticket() Ticket {
	return Ticket{
		Lines:    c.Lines(),
		Discount: c.discount,
		Totals:   c.Totals(),
	}
}

func (c *Cart) indexOf(productID string) int {
	for i, line := range c.lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}
