package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dukkan/backend/internal/credit"
	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/store"
	"dukkan/backend/internal/store/memory"
)

type countingCache struct {
	mu            sync.Mutex
	invalidations int
}

func (c *countingCache) Get(context.Context, string) (*domain.CreditStats, bool, error) {
	return nil, false, nil
}

func (c *countingCache) Set(context.Context, string, *domain.CreditStats, time.Duration) error {
	return nil
}

func (c *countingCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations++
	return nil
}

func newTestService() (*Service, *countingCache) {
	st := memory.NewSeeded()
	statsCache := &countingCache{}
	return New(st, credit.New(st, statsCache, time.Minute), 30), statsCache
}

func stockOf(t *testing.T, svc *Service, id string) int {
	t.Helper()
	p, err := svc.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return p.Quantity
}

func TestCheckoutClearsCartOnlyOnSuccess(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.AddToCart(ctx, "till-1", AddLineRequest{ProductID: "prd-0002", Quantity: 3}); err != nil {
		t.Fatalf("add to cart: %v", err)
	}

	_, err := svc.Checkout(ctx, "till-1", CheckoutRequest{PaymentMethod: domain.PaymentDeferred})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error without customer, got %v", err)
	}
	ticket, _ := svc.Cart("till-1")
	if len(ticket.Lines) != 1 {
		t.Fatalf("expected cart to survive a failed checkout, got %d lines", len(ticket.Lines))
	}

	settled, err := svc.Checkout(ctx, "till-1", CheckoutRequest{PaymentMethod: domain.PaymentCard})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if settled.Sale.TotalCents != 2400 {
		t.Fatalf("expected total 2400, got %d", settled.Sale.TotalCents)
	}
	ticket, _ = svc.Cart("till-1")
	if len(ticket.Lines) != 0 {
		t.Fatalf("expected empty cart after checkout")
	}
	if got := stockOf(t, svc, "prd-0002"); got != 27 {
		t.Fatalf("expected stock 27, got %d", got)
	}

	_, err = svc.Checkout(ctx, "till-1", CheckoutRequest{})
	if !errors.Is(err, store.ErrEmptyCart) {
		t.Fatalf("expected empty cart error, got %v", err)
	}
}

func TestCartsAreIsolatedPerTerminal(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.AddToCart(ctx, "till-1", AddLineRequest{Barcode: "6281000000011"}); err != nil {
		t.Fatalf("add by barcode: %v", err)
	}
	other, err := svc.Cart("till-2")
	if err != nil {
		t.Fatalf("cart: %v", err)
	}
	if len(other.Lines) != 0 {
		t.Fatalf("expected till-2 cart to be empty")
	}

	if _, err := svc.Cart(" "); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for blank terminal, got %v", err)
	}
	if _, err := svc.AddToCart(ctx, "till-1", AddLineRequest{}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error without product, got %v", err)
	}
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	const terminals = 8

	// Fresh Milk has 8 in stock; every terminal tries to sell 2.
	for i := range terminals {
		if _, err := svc.AddToCart(ctx, fmt.Sprintf("till-%d", i), AddLineRequest{ProductID: "prd-0004", Quantity: 2}); err != nil {
			t.Fatalf("add to cart: %v", err)
		}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := range terminals {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.Checkout(ctx, id, CheckoutRequest{PaymentMethod: domain.PaymentCash})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, store.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected checkout error: %v", err)
			}
		}(fmt.Sprintf("till-%d", i))
	}
	wg.Wait()

	if succeeded != 4 || rejected != 4 {
		t.Fatalf("expected 4 sales and 4 rejections, got %d and %d", succeeded, rejected)
	}
	if got := stockOf(t, svc, "prd-0004"); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestDeferredCheckoutAndSettlement(t *testing.T) {
	svc, statsCache := newTestService()
	ctx := context.Background()

	if _, err := svc.AddToCart(ctx, "till-1", AddLineRequest{ProductID: "prd-0003", Quantity: 2}); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	settled, err := svc.Checkout(ctx, "till-1", CheckoutRequest{PaymentMethod: domain.PaymentDeferred, CustomerName: "Ali"})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if settled.Credit == nil {
		t.Fatalf("expected a credit sale")
	}
	if statsCache.invalidations != 1 {
		t.Fatalf("expected deferred checkout to invalidate stats, got %d", statsCache.invalidations)
	}

	invoice := settled.Sale.InvoiceNumber
	entry, err := svc.GetCredit(ctx, invoice)
	if err != nil {
		t.Fatalf("get credit: %v", err)
	}
	if entry.Status != CreditStatusOpen || entry.RemainingCents != 3000 {
		t.Fatalf("unexpected open entry: %+v", entry)
	}

	if _, err := svc.DeleteSale(ctx, invoice); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected credit reversal to be rejected, got %v", err)
	}

	if _, err := svc.SendReminder(ctx, invoice); err != nil {
		t.Fatalf("send reminder: %v", err)
	}

	result, err := svc.ApplyPayment(ctx, invoice, PaymentRequest{AmountCents: 3000})
	if err != nil {
		t.Fatalf("apply payment: %v", err)
	}
	if !result.Settled() {
		t.Fatalf("expected full payment to settle the credit")
	}

	entry, err = svc.GetCredit(ctx, invoice)
	if err != nil {
		t.Fatalf("get credit: %v", err)
	}
	if entry.Status != CreditStatusPaid || entry.SettledWith != domain.PaymentCash {
		t.Fatalf("unexpected paid entry: %+v", entry)
	}

	open, err := svc.ListCredits(ctx, "open")
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	paid, err := svc.ListCredits(ctx, "paid")
	if err != nil {
		t.Fatalf("list paid: %v", err)
	}
	if len(open) != 0 || len(paid) != 1 {
		t.Fatalf("expected 0 open and 1 paid, got %d and %d", len(open), len(paid))
	}
	if _, err := svc.ListCredits(ctx, "lost"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}

func TestDeleteSaleReportsSkippedLines(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for _, id := range []string{"prd-0001", "prd-0003"} {
		if _, err := svc.AddToCart(ctx, "till-1", AddLineRequest{ProductID: id, Quantity: 1}); err != nil {
			t.Fatalf("add to cart: %v", err)
		}
	}
	settled, err := svc.Checkout(ctx, "till-1", CheckoutRequest{})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if err := svc.DeleteProduct(ctx, "prd-0003"); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	reversal, err := svc.DeleteSale(ctx, settled.Sale.InvoiceNumber)
	if err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	if len(reversal.Restored) != 1 || len(reversal.Skipped) != 1 {
		t.Fatalf("expected 1 restored and 1 skipped line, got %+v", reversal)
	}
	if got := stockOf(t, svc, "prd-0001"); got != 50 {
		t.Fatalf("expected rice stock back at 50, got %d", got)
	}
}

func TestRestoreBackupEmptiesCarts(t *testing.T) {
	svc, statsCache := newTestService()
	ctx := context.Background()

	backup, err := svc.ExportBackup(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := svc.AddToCart(ctx, "till-1", AddLineRequest{ProductID: "prd-0001"}); err != nil {
		t.Fatalf("add to cart: %v", err)
	}

	result, err := svc.RestoreBackup(ctx, backup)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if result.Restored[domain.CollectionProducts] != 5 {
		t.Fatalf("expected 5 products restored, got %d", result.Restored[domain.CollectionProducts])
	}
	ticket, _ := svc.Cart("till-1")
	if len(ticket.Lines) != 0 {
		t.Fatalf("expected carts to be emptied by a restore")
	}
	if statsCache.invalidations != 1 {
		t.Fatalf("expected restore to invalidate stats")
	}
}

func TestSaveOperatorUpserts(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, err := svc.SaveOperator(ctx, domain.OperatorAccount{Username: " Amal ", PasswordHash: "$2a$hash1", Active: true})
	if err != nil {
		t.Fatalf("save operator: %v", err)
	}
	second, err := svc.SaveOperator(ctx, domain.OperatorAccount{Username: "amal", DisplayName: "Amal", PasswordHash: "$2a$hash2", Active: true})
	if err != nil {
		t.Fatalf("save operator: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same account to be updated")
	}

	found, err := svc.FindOperator(ctx, "AMAL")
	if err != nil {
		t.Fatalf("find operator: %v", err)
	}
	if found.PasswordHash != "$2a$hash2" || found.DisplayName != "Amal" {
		t.Fatalf("unexpected operator: %+v", found)
	}

	if _, err := svc.FindOperator(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.SaveOperator(ctx, domain.OperatorAccount{Username: "two words", PasswordHash: "x"}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
