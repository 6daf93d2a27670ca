package sales

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dukkan/backend/internal/cart"
	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/store"
	"dukkan/backend/internal/xid"
)

const invoiceAttempts = 5

// Engine turns tickets into sale records and reverses completed sales.
type Engine struct {
	store       store.Store
	products    store.Collection[domain.Product]
	sales       store.Collection[domain.Sale]
	credits     store.Collection[domain.CreditSale]
	paidCredits store.Collection[domain.PaidCreditSale]
	now         func() time.Time
}

func New(s store.Store) *Engine {
	return &Engine{
		store:       s,
		products:    store.NewCollection[domain.Product](s, domain.CollectionProducts),
		sales:       store.NewCollection[domain.Sale](s, domain.CollectionSales),
		credits:     store.NewCollection[domain.CreditSale](s, domain.CollectionCreditSales),
		paidCredits: store.NewCollection[domain.PaidCreditSale](s, domain.CollectionPaidCreditSales),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CompleteSale settles ticket. Every line is checked against current stock
// before any product is touched; a deferred sale goes to the open credit ledger
// instead of the sales collection.
func (e *Engine) CompleteSale(ctx context.Context, ticket cart.Ticket, method domain.PaymentMethod, customerName string) (domain.Settlement, error) {
	if len(ticket.Lines) == 0 {
		return domain.Settlement{}, store.ErrEmptyCart
	}
	method, ok := domain.ParsePaymentMethod(string(method))
	if !ok {
		return domain.Settlement{}, fmt.Errorf("%w: unknown payment method", store.ErrValidation)
	}
	customerName = strings.TrimSpace(customerName)
	if method.Deferred() && customerName == "" {
		return domain.Settlement{}, fmt.Errorf("%w: customer name is required for deferred payment", store.ErrValidation)
	}
	if !method.Deferred() {
		customerName = ""
	}

	now := e.now()
	operator := domain.OperatorName(ctx)

	var settled domain.Settlement
	err := e.store.Atomic(ctx, func(ctx context.Context, tx store.Backend) error {
		products := e.products.On(tx)

		current := make(map[string]*domain.Product, len(ticket.Lines))
		order := make([]string, 0, len(ticket.Lines))
		for _, line := range ticket.Lines {
			product, seen := current[line.ProductID]
			if !seen {
				loaded, err := products.Get(ctx, line.ProductID)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("%w: %s is no longer in the catalog", store.ErrNotFound, line.Name)
				}
				if err != nil {
					return err
				}
				product = &loaded
				current[line.ProductID] = product
				order = append(order, line.ProductID)
			}
			if err := product.Withdraw(line.Quantity); err != nil {
				return err
			}
		}
		for _, id := range order {
			if _, err := products.Update(ctx, id, map[string]any{"quantity": current[id].Quantity}); err != nil {
				return err
			}
		}

		invoice, err := e.newInvoice(ctx, tx, now)
		if err != nil {
			return err
		}
		lines, totals := saleLines(ticket)
		sale := domain.Sale{
			InvoiceNumber: invoice,
			Date:          now.Format(domain.DateLayout),
			Time:          now.Format(domain.TimeLayout),
			Lines:         lines,
			SubtotalCents: totals.SubtotalCents,
			DiscountCents: totals.DiscountCents,
			TotalCents:    totals.TotalCents,
			PaymentMethod: method,
			CustomerName:  customerName,
			Operator:      operator,
		}

		if !method.Deferred() {
			stored, err := e.sales.On(tx).Add(ctx, sale)
			if err != nil {
				return err
			}
			settled = domain.Settlement{Sale: stored}
			return nil
		}

		credit, err := domain.NewCreditSale(sale)
		if err != nil {
			return err
		}
		stored, err := e.credits.On(tx).Add(ctx, credit)
		if err != nil {
			return err
		}
		settled = domain.Settlement{Sale: stored.Sale, Credit: &stored}
		return nil
	})
	if err != nil {
		return domain.Settlement{}, err
	}
	return settled, nil
}

// saleLines freezes the ticket lines and recomputes totals from them, keeping
// the discount within the subtotal.
func saleLines(ticket cart.Ticket) ([]domain.SaleLine, domain.Totals) {
	out := make([]domain.SaleLine, 0, len(ticket.Lines))
	var totals domain.Totals
	for _, line := range ticket.Lines {
		total := int64(line.Quantity) * line.PriceCents
		out = append(out, domain.SaleLine{
			ProductID:  line.ProductID,
			Name:       line.Name,
			PriceCents: line.PriceCents,
			Quantity:   line.Quantity,
			TotalCents: total,
		})
		totals.SubtotalCents += total
	}
	totals.DiscountCents = min(max(ticket.Totals.DiscountCents, 0), totals.SubtotalCents)
	totals.TotalCents = totals.SubtotalCents - totals.DiscountCents
	return out, totals
}

// newInvoice draws invoice numbers until one is unused in every sale collection.
func (e *Engine) newInvoice(ctx context.Context, tx store.Backend, now time.Time) (string, error) {
	for range invoiceAttempts {
		invoice := xid.Invoice("INV", now)
		taken, err := e.invoiceTaken(ctx, tx, invoice)
		if err != nil {
			return "", err
		}
		if !taken {
			return invoice, nil
		}
	}
	return "", fmt.Errorf("%w: could not allocate an invoice number", store.ErrConflict)
}

func (e *Engine) invoiceTaken(ctx context.Context, tx store.Backend, invoice string) (bool, error) {
	for _, name := range []string{domain.CollectionSales, domain.CollectionCreditSales, domain.CollectionPaidCreditSales} {
		found, err := tx.FindByField(ctx, name, "invoice_number", invoice)
		if err != nil {
			return false, err
		}
		if len(found) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// DeleteSale removes a completed immediate sale and puts its quantities back
// into stock. Lines whose product no longer exists are returned as skipped.
func (e *Engine) DeleteSale(ctx context.Context, invoice string) (domain.Reversal, error) {
	invoice = strings.TrimSpace(invoice)
	if invoice == "" {
		return domain.Reversal{}, fmt.Errorf("%w: invoice number is required", store.ErrValidation)
	}

	var reversal domain.Reversal
	err := e.store.Atomic(ctx, func(ctx context.Context, tx store.Backend) error {
		sales := e.sales.On(tx)
		products := e.products.On(tx)

		sale, err := sales.FindOne(ctx, "invoice_number", invoice)
		if errors.Is(err, store.ErrNotFound) {
			return e.explainMissing(ctx, tx, invoice)
		}
		if err != nil {
			return err
		}

		result := domain.Reversal{
			InvoiceNumber: sale.InvoiceNumber,
			Restored:      []domain.StockRestore{},
			Skipped:       []domain.SaleLine{},
		}
		for _, line := range sale.Lines {
			product, err := products.Get(ctx, line.ProductID)
			if errors.Is(err, store.ErrNotFound) {
				result.Skipped = append(result.Skipped, line)
				continue
			}
			if err != nil {
				return err
			}
			if err := product.Restore(line.Quantity); err != nil {
				return err
			}
			if _, err := products.Update(ctx, product.ID, map[string]any{"quantity": product.Quantity}); err != nil {
				return err
			}
			result.Restored = append(result.Restored, domain.StockRestore{
				ProductID:  product.ID,
				Name:       product.Name,
				Quantity:   line.Quantity,
				StockAfter: product.Quantity,
			})
		}

		if _, err := sales.Remove(ctx, sale.ID); err != nil {
			return err
		}
		reversal = result
		return nil
	})
	if err != nil {
		return domain.Reversal{}, err
	}
	return reversal, nil
}

func (e *Engine) explainMissing(ctx context.Context, tx store.Backend, invoice string) error {
	for _, name := range []string{domain.CollectionCreditSales, domain.CollectionPaidCreditSales} {
		found, err := tx.FindByField(ctx, name, "invoice_number", invoice)
		if err != nil {
			return err
		}
		if len(found) > 0 {
			return fmt.Errorf("%w: credit sale %s cannot be reversed", store.ErrValidation, invoice)
		}
	}
	return fmt.Errorf("%w: sale %s", store.ErrNotFound, invoice)
}

// ListSales returns immediate sales newest first.
func (e *Engine) ListSales(ctx context.Context) ([]domain.Sale, error) {
	all, err := e.sales.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return all, nil
}

func (e *Engine) GetSale(ctx context.Context, invoice string) (domain.Sale, error) {
	return e.sales.FindOne(ctx, "invoice_number", strings.TrimSpace(invoice))
}

// Stats summarizes immediate sales. Deferred sales are reported by the credit ledger.
func (e *Engine) Stats(ctx context.Context) (domain.SalesStats, error) {
	all, err := e.sales.All(ctx)
	if err != nil {
		return domain.SalesStats{}, err
	}
	today := e.now().Format(domain.DateLayout)
	stats := domain.SalesStats{ByMethod: map[domain.PaymentMethod]int64{}}
	for _, sale := range all {
		stats.Count++
		stats.TotalCents += sale.TotalCents
		stats.ByMethod[sale.PaymentMethod] += sale.TotalCents
		if sale.Date == today {
			stats.TodayCount++
			stats.TodayCents += sale.TotalCents
		}
	}
	if stats.Count > 0 {
		stats.AverageCents = decimal.NewFromInt(stats.TotalCents).
			Div(decimal.NewFromInt(int64(stats.Count))).
			Round(0).
			IntPart()
	}
	return stats, nil
}
