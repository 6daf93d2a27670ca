package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"dukkan/backend/internal/cart"
	"dukkan/backend/internal/catalog"
	"dukkan/backend/internal/credit"
	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/sales"
	"dukkan/backend/internal/store"
)

const maxTerminalIDLength = 64

// Service wires the catalog, the per-terminal carts, settlement and the credit
// ledger over one store.
type Service struct {
	store   store.Store
	catalog *catalog.Catalog
	sales   *sales.Engine
	ledger  *credit.Ledger

	expiryWarningDays int
	now               func() time.Time

	mu        sync.Mutex
	terminals map[string]*terminal
}

type terminal struct {
	mu   sync.Mutex
	cart *cart.Cart
}

func New(st store.Store, ledger *credit.Ledger, expiryWarningDays int) *Service {
	if ledger == nil {
		ledger = credit.New(st, nil, 0)
	}
	if expiryWarningDays <= 0 {
		expiryWarningDays = 30
	}
	return &Service{
		store:             st,
		catalog:           catalog.New(st),
		sales:             sales.New(st),
		ledger:            ledger,
		expiryWarningDays: expiryWarningDays,
		now:               func() time.Time { return time.Now().UTC() },
		terminals:         make(map[string]*terminal),
	}
}

// WithClock replaces the clock of every component. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.catalog.WithClock(now)
	s.sales.WithClock(now)
	s.ledger.WithClock(now)
	return s
}

func (s *Service) terminal(id string) (*terminal, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxTerminalIDLength {
		return nil, fmt.Errorf("%w: terminal id must be 1-%d characters", store.ErrValidation, maxTerminalIDLength)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.terminals[id]
	if !ok {
		t = &terminal{cart: cart.New(s.catalog)}
		s.terminals[id] = t
	}
	return t, nil
}

// withCart runs fn while holding the terminal's cart.
func (s *Service) withCart(terminalID string, fn func(c *cart.Cart) error) (cart.Ticket, error) {
	t, err := s.terminal(terminalID)
	if err != nil {
		return cart.Ticket{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := fn(t.cart); err != nil {
		return cart.Ticket{}, err
	}
	return t.cart.Ticket(), nil
}

type AddLineRequest struct {
	ProductID string `json:"product_id"`
	Barcode   string `json:"barcode"`
	Quantity  int    `json:"quantity"`
}

type DiscountRequest struct {
	Kind  domain.DiscountKind `json:"kind"`
	Value decimal.Decimal     `json:"value"`
}

type CheckoutRequest struct {
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	CustomerName  string               `json:"customer_name"`
}

func (s *Service) Cart(terminalID string) (cart.Ticket, error) {
	return s.withCart(terminalID, func(*cart.Cart) error { return nil })
}

// AddToCart adds by product id, or by barcode when no id is given. Quantity
// defaults to one.
func (s *Service) AddToCart(ctx context.Context, terminalID string, req AddLineRequest) (cart.Ticket, error) {
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	productID := strings.TrimSpace(req.ProductID)
	barcode := strings.TrimSpace(req.Barcode)
	if productID == "" && barcode == "" {
		return cart.Ticket{}, fmt.Errorf("%w: product_id or barcode is required", store.ErrValidation)
	}
	return s.withCart(terminalID, func(c *cart.Cart) error {
		if productID != "" {
			return c.AddLine(ctx, productID, req.Quantity)
		}
		return c.AddByBarcode(ctx, barcode, req.Quantity)
	})
}

func (s *Service) ChangeCartQuantity(terminalID string, productID string, delta int) (cart.Ticket, error) {
	return s.withCart(terminalID, func(c *cart.Cart) error {
		return c.ChangeQuantity(productID, delta)
	})
}

func (s *Service) RemoveCartLine(terminalID string, productID string) (cart.Ticket, error) {
	return s.withCart(terminalID, func(c *cart.Cart) error {
		c.RemoveLine(productID)
		return nil
	})
}

func (s *Service) ApplyCartDiscount(terminalID string, req DiscountRequest) (cart.Ticket, error) {
	return s.withCart(terminalID, func(c *cart.Cart) error {
		return c.ApplyDiscount(req.Kind, req.Value)
	})
}

func (s *Service) ClearCart(terminalID string) (cart.Ticket, error) {
	return s.withCart(terminalID, func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

// Checkout settles the terminal's cart. The cart is cleared only when the sale
// is recorded; on failure it stays as it was so the operator can correct it.
func (s *Service) Checkout(ctx context.Context, terminalID string, req CheckoutRequest) (domain.Settlement, error) {
	t, err := s.terminal(terminalID)
	if err != nil {
		return domain.Settlement{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	settled, err := s.sales.CompleteSale(ctx, t.cart.Ticket(), req.PaymentMethod, req.CustomerName)
	if err != nil {
		return domain.Settlement{}, err
	}
	t.cart.Clear()

	log.Info().
		Str("invoice", settled.Sale.InvoiceNumber).
		Str("terminal", terminalID).
		Str("method", string(settled.Sale.PaymentMethod)).
		Int64("total_cents", settled.Sale.TotalCents).
		Str("operator", settled.Sale.Operator).
		Msg("sale completed")

	if settled.Credit != nil {
		if err := s.ledger.InvalidateStats(ctx); err != nil {
			log.Warn().Err(err).Msg("credit stats cache invalidation failed")
		}
	}
	return settled, nil
}

// DeleteSale reverses an immediate sale. Lines whose product has since been
// deleted cannot be restocked and are reported in the result.
func (s *Service) DeleteSale(ctx context.Context, invoice string) (domain.Reversal, error) {
	reversal, err := s.sales.DeleteSale(ctx, invoice)
	if err != nil {
		return domain.Reversal{}, err
	}
	event := log.Info()
	if !reversal.Complete() {
		skipped := make([]string, 0, len(reversal.Skipped))
		for _, line := range reversal.Skipped {
			skipped = append(skipped, line.ProductID)
		}
		event = log.Warn().Strs("skipped_products", skipped)
	}
	event.
		Str("invoice", reversal.InvoiceNumber).
		Int("restored_lines", len(reversal.Restored)).
		Str("operator", domain.OperatorName(ctx)).
		Msg("sale reversed")
	return reversal, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.sales.ListSales(ctx)
}

func (s *Service) GetSale(ctx context.Context, invoice string) (domain.Sale, error) {
	return s.sales.GetSale(ctx, invoice)
}

func (s *Service) SalesStats(ctx context.Context) (domain.SalesStats, error) {
	return s.sales.Stats(ctx)
}

type PaymentRequest struct {
	AmountCents int64                `json:"amount_cents"`
	Method      domain.PaymentMethod `json:"method"`
}

func (s *Service) ApplyPayment(ctx context.Context, invoice string, req PaymentRequest) (credit.PaymentResult, error) {
	result, err := s.ledger.ApplyPayment(ctx, invoice, req.AmountCents, req.Method)
	if err != nil {
		return credit.PaymentResult{}, err
	}
	log.Info().
		Str("invoice", result.Payment.InvoiceNumber).
		Int64("amount_cents", result.Payment.AmountCents).
		Str("method", string(result.Payment.Method)).
		Bool("settled", result.Settled()).
		Str("operator", result.Payment.RecordedBy).
		Msg("credit payment applied")
	return result, nil
}

func (s *Service) SendReminder(ctx context.Context, invoice string) (credit.View, error) {
	sale, err := s.ledger.SendReminder(ctx, invoice)
	if err != nil {
		return credit.View{}, err
	}
	log.Info().Str("invoice", sale.InvoiceNumber).Str("customer", sale.CustomerName).Msg("credit reminder recorded")
	return s.ledger.View(sale), nil
}

// CreditEntry is an open or archived credit sale as shown to operators.
type CreditEntry struct {
	Status string `json:"status"`
	credit.View
	PaidAt      string               `json:"paid_at,omitempty"`
	SettledWith domain.PaymentMethod `json:"settled_with,omitempty"`
}

const (
	CreditStatusOpen    = "open"
	CreditStatusPaid    = "paid"
	CreditStatusOverdue = "overdue"
)

func (s *Service) openEntry(sale domain.CreditSale) CreditEntry {
	return CreditEntry{Status: CreditStatusOpen, View: s.ledger.View(sale)}
}

func (s *Service) paidEntry(sale domain.PaidCreditSale) CreditEntry {
	view := s.ledger.View(sale.CreditSale)
	view.Overdue = false
	view.DaysOverdue = 0
	return CreditEntry{
		Status:      CreditStatusPaid,
		View:        view,
		PaidAt:      sale.PaidAt,
		SettledWith: sale.SettledWith,
	}
}

func (s *Service) ListCredits(ctx context.Context, status string) ([]CreditEntry, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", CreditStatusOpen:
		open, err := s.ledger.ListOpen(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]CreditEntry, 0, len(open))
		for _, sale := range open {
			out = append(out, s.openEntry(sale))
		}
		return out, nil
	case CreditStatusOverdue:
		overdue, err := s.ledger.Overdue(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]CreditEntry, 0, len(overdue))
		for _, sale := range overdue {
			out = append(out, s.openEntry(sale))
		}
		return out, nil
	case CreditStatusPaid:
		paid, err := s.ledger.ListPaid(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]CreditEntry, 0, len(paid))
		for _, sale := range paid {
			out = append(out, s.paidEntry(sale))
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: status must be open, paid or overdue", store.ErrValidation)
}

// GetCredit looks the invoice up in the open ledger first, then the archive.
func (s *Service) GetCredit(ctx context.Context, invoice string) (CreditEntry, error) {
	open, err := s.ledger.GetOpen(ctx, invoice)
	if err == nil {
		return s.openEntry(open), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return CreditEntry{}, err
	}
	paid, err := s.ledger.GetPaid(ctx, invoice)
	if err != nil {
		return CreditEntry{}, err
	}
	return s.paidEntry(paid), nil
}

func (s *Service) CreditStats(ctx context.Context) (domain.CreditStats, error) {
	return s.ledger.Stats(ctx)
}

func (s *Service) CreditReport(ctx context.Context, from string, to string) (domain.CreditReport, error) {
	return s.ledger.Report(ctx, from, to)
}

func (s *Service) ExportBackup(ctx context.Context) (store.Backup, error) {
	return store.Export(ctx, s.store, domain.Collections, s.now())
}

// RestoreBackup replaces the collections present in backup. Open carts are
// emptied because their lines may reference products that no longer exist.
func (s *Service) RestoreBackup(ctx context.Context, backup store.Backup) (store.ImportResult, error) {
	result, err := store.Import(ctx, s.store, backup, domain.Collections)
	if err != nil {
		return store.ImportResult{}, err
	}

	s.mu.Lock()
	for _, t := range s.terminals {
		t.mu.Lock()
		t.cart.Clear()
		t.mu.Unlock()
	}
	s.mu.Unlock()

	if err := s.ledger.InvalidateStats(ctx); err != nil {
		log.Warn().Err(err).Msg("credit stats cache invalidation failed")
	}
	event := log.Info()
	if len(result.Reset) > 0 {
		event = log.Warn().Strs("reset", result.Reset)
	}
	event.Strs("ignored", result.Ignored).Str("operator", domain.OperatorName(ctx)).Msg("backup restored")
	return result, nil
}
