package domain

import (
	"fmt"
	"strings"
	"time"

	"dukkan/backend/internal/store"
)

// Validate checks the fields every stored product must satisfy.
func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", store.ErrValidation)
	}
	if p.PriceCents < 0 {
		return fmt.Errorf("%w: product price must not be negative", store.ErrValidation)
	}
	if p.Quantity < 0 {
		return fmt.Errorf("%w: product quantity must not be negative", store.ErrValidation)
	}
	if p.MinQuantity < 0 {
		return fmt.Errorf("%w: minimum quantity must not be negative", store.ErrValidation)
	}
	if p.ExpiryDate != "" {
		if _, err := time.Parse(DateLayout, p.ExpiryDate); err != nil {
			return fmt.Errorf("%w: expiry date must be YYYY-MM-DD", store.ErrValidation)
		}
	}
	return nil
}

// Withdraw takes qty units out of stock. Stock never goes below zero.
func (p *Product) Withdraw(qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
	}
	if qty > p.Quantity {
		return fmt.Errorf("%w: %s has %d, requested %d", store.ErrInsufficientStock, p.Name, p.Quantity, qty)
	}
	p.Quantity -= qty
	return nil
}

// Restore puts qty units back into stock.
func (p *Product) Restore(qty int) error {
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", store.ErrValidation)
	}
	p.Quantity += qty
	return nil
}

// NewCreditSale opens a ledger entry for a deferred sale with the full total outstanding.
func NewCreditSale(sale Sale) (CreditSale, error) {
	if !sale.PaymentMethod.Deferred() {
		return CreditSale{}, fmt.Errorf("%w: sale %s is not deferred", store.ErrValidation, sale.InvoiceNumber)
	}
	if strings.TrimSpace(sale.CustomerName) == "" {
		return CreditSale{}, fmt.Errorf("%w: customer name is required for deferred payment", store.ErrValidation)
	}
	if sale.TotalCents <= 0 {
		return CreditSale{}, fmt.Errorf("%w: deferred sale total must be positive", store.ErrValidation)
	}
	return CreditSale{
		Sale:           sale,
		RemainingCents: sale.TotalCents,
		Payments:       []Payment{},
	}, nil
}

// Apply records p against the outstanding balance. It reports true once the
// balance has reached zero.
func (c *CreditSale) Apply(p Payment) (bool, error) {
	if p.AmountCents <= 0 {
		return false, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}
	if p.AmountCents > c.RemainingCents {
		return false, fmt.Errorf("%w: %s has %d outstanding, payment is %d",
			store.ErrInsufficientRemaining, c.InvoiceNumber, c.RemainingCents, p.AmountCents)
	}
	c.RemainingCents -= p.AmountCents
	c.Payments = append(c.Payments, p)
	return c.RemainingCents == 0, nil
}

// Settle turns a fully paid credit sale into its archived form.
func (c CreditSale) Settle(paidAt time.Time, method PaymentMethod) (PaidCreditSale, error) {
	if c.RemainingCents != 0 {
		return PaidCreditSale{}, fmt.Errorf("%w: %s still has %d outstanding", store.ErrValidation, c.InvoiceNumber, c.RemainingCents)
	}
	return PaidCreditSale{
		CreditSale:  c,
		PaidAt:      paidAt.Format(DateLayout),
		SettledWith: method,
	}, nil
}

// DueDate is the sale date plus graceDays.
func (c CreditSale) DueDate(graceDays int) (time.Time, error) {
	day, err := time.Parse(DateLayout, c.Date)
	if err != nil {
		return time.Time{}, err
	}
	return day.AddDate(0, 0, graceDays), nil
}

// DaysOverdue counts whole days past the due date as of now. Zero means not overdue.
func (c CreditSale) DaysOverdue(now time.Time, graceDays int) int {
	due, err := c.DueDate(graceDays)
	if err != nil {
		return 0
	}
	today, _ := time.Parse(DateLayout, now.Format(DateLayout))
	if !today.After(due) {
		return 0
	}
	return int(today.Sub(due).Hours() / 24)
}

func (c CreditSale) Overdue(now time.Time, graceDays int) bool {
	return c.DaysOverdue(now, graceDays) > 0
}
