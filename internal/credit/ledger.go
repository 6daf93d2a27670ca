package credit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"dukkan/backend/internal/cache"
	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/store"
	"dukkan/backend/internal/xid"
)

// Ledger tracks open credit sales and the archive of fully paid ones.
type Ledger struct {
	store     store.Store
	open      store.Collection[domain.CreditSale]
	paid      store.Collection[domain.PaidCreditSale]
	stats     cache.CreditStatsCache
	statsTTL  time.Duration
	graceDays int
	now       func() time.Time
}

func New(s store.Store, stats cache.CreditStatsCache, statsTTL time.Duration) *Ledger {
	if stats == nil {
		stats = cache.NoopCreditStatsCache{}
	}
	if statsTTL <= 0 {
		statsTTL = time.Minute
	}
	return &Ledger{
		store:     s,
		open:      store.NewCollection[domain.CreditSale](s, domain.CollectionCreditSales),
		paid:      store.NewCollection[domain.PaidCreditSale](s, domain.CollectionPaidCreditSales),
		stats:     stats,
		statsTTL:  statsTTL,
		graceDays: domain.DefaultGraceDays,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (l *Ledger) WithGraceDays(days int) *Ledger {
	if days > 0 {
		l.graceDays = days
	}
	return l
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) GraceDays() int {
	return l.graceDays
}

// PaymentResult carries exactly one of Open (balance left) or Archived (settled).
type PaymentResult struct {
	Payment  domain.Payment         `json:"payment"`
	Open     *domain.CreditSale     `json:"open,omitempty"`
	Archived *domain.PaidCreditSale `json:"archived,omitempty"`
}

func (r PaymentResult) Settled() bool {
	return r.Archived != nil
}

// ApplyPayment records a payment against an open credit sale. A payment that
// clears the balance moves the sale to the paid archive in the same transaction.
func (l *Ledger) ApplyPayment(ctx context.Context, invoice string, amountCents int64, method domain.PaymentMethod) (PaymentResult, error) {
	if amountCents <= 0 {
		return PaymentResult{}, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}
	parsed, ok := domain.ParsePaymentMethod(string(method))
	if !ok || parsed.Deferred() {
		return PaymentResult{}, fmt.Errorf("%w: %q cannot settle a credit sale", store.ErrValidation, method)
	}
	method = parsed
	invoice = strings.TrimSpace(invoice)

	now := l.now()
	payment := domain.Payment{
		ID:            xid.New("pay"),
		InvoiceNumber: invoice,
		AmountCents:   amountCents,
		Method:        method,
		Date:          now.Format(domain.DateLayout),
		RecordedBy:    domain.OperatorName(ctx),
		CreatedAt:     now,
	}

	var result PaymentResult
	err := l.store.Atomic(ctx, func(ctx context.Context, tx store.Backend) error {
		open := l.open.On(tx)
		sale, err := l.findOpen(ctx, tx, invoice)
		if err != nil {
			return err
		}

		settled, err := sale.Apply(payment)
		if err != nil {
			return err
		}

		if !settled {
			updated, err := open.Update(ctx, sale.ID, map[string]any{
				"remaining_cents": sale.RemainingCents,
				"payments":        sale.Payments,
			})
			if err != nil {
				return err
			}
			result = PaymentResult{Payment: payment, Open: &updated}
			return nil
		}

		archived, err := sale.Settle(now, method)
		if err != nil {
			return err
		}
		if _, err := open.Remove(ctx, sale.ID); err != nil {
			return err
		}
		stored, err := l.paid.On(tx).Add(ctx, archived)
		if err != nil {
			return err
		}
		result = PaymentResult{Payment: payment, Archived: &stored}
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}
	l.invalidate(ctx)
	return result, nil
}

// SendReminder stamps the time a customer was last reminded of an open balance.
func (l *Ledger) SendReminder(ctx context.Context, invoice string) (domain.CreditSale, error) {
	invoice = strings.TrimSpace(invoice)
	var reminded domain.CreditSale
	err := l.store.Atomic(ctx, func(ctx context.Context, tx store.Backend) error {
		sale, err := l.findOpen(ctx, tx, invoice)
		if err != nil {
			return err
		}
		out, err := l.open.On(tx).Update(ctx, sale.ID, map[string]any{"last_reminder_at": l.now()})
		reminded = out
		return err
	})
	if err != nil {
		return domain.CreditSale{}, err
	}
	return reminded, nil
}

func (l *Ledger) findOpen(ctx context.Context, tx store.Backend, invoice string) (domain.CreditSale, error) {
	if invoice == "" {
		return domain.CreditSale{}, fmt.Errorf("%w: invoice number is required", store.ErrValidation)
	}
	sale, err := l.open.On(tx).FindOne(ctx, "invoice_number", invoice)
	if errors.Is(err, store.ErrNotFound) {
		return domain.CreditSale{}, fmt.Errorf("%w: no open credit sale %s", store.ErrNotFound, invoice)
	}
	return sale, err
}

// InvalidateStats drops cached statistics. Deferred settlements happen outside
// the ledger, so their caller invalidates through here.
func (l *Ledger) InvalidateStats(ctx context.Context) error {
	return l.stats.Invalidate(ctx)
}

func (l *Ledger) invalidate(ctx context.Context) {
	_ = l.stats.Invalidate(ctx)
}

// ListOpen returns open credit sales, oldest first.
func (l *Ledger) ListOpen(ctx context.Context) ([]domain.CreditSale, error) {
	all, err := l.open.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return all, nil
}

// ListPaid returns archived credit sales, most recently settled first.
func (l *Ledger) ListPaid(ctx context.Context) ([]domain.PaidCreditSale, error) {
	all, err := l.paid.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].PaidAt > all[j].PaidAt })
	return all, nil
}

func (l *Ledger) GetOpen(ctx context.Context, invoice string) (domain.CreditSale, error) {
	return l.findOpen(ctx, l.store, strings.TrimSpace(invoice))
}

func (l *Ledger) GetPaid(ctx context.Context, invoice string) (domain.PaidCreditSale, error) {
	return l.paid.FindOne(ctx, "invoice_number", strings.TrimSpace(invoice))
}

// Overdue lists open credit sales past their grace window, longest overdue first.
func (l *Ledger) Overdue(ctx context.Context) ([]domain.CreditSale, error) {
	open, err := l.open.All(ctx)
	if err != nil {
		return nil, err
	}
	now := l.now()
	out := make([]domain.CreditSale, 0)
	for _, sale := range open {
		if sale.Overdue(now, l.graceDays) {
			out = append(out, sale)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DaysOverdue(now, l.graceDays) > out[j].DaysOverdue(now, l.graceDays)
	})
	return out, nil
}

// View is a credit sale with its derived due date and overdue state.
type View struct {
	domain.CreditSale
	DueDate     string `json:"due_date"`
	Overdue     bool   `json:"overdue"`
	DaysOverdue int    `json:"days_overdue"`
}

func (l *Ledger) View(sale domain.CreditSale) View {
	now := l.now()
	view := View{CreditSale: sale}
	if due, err := sale.DueDate(l.graceDays); err == nil {
		view.DueDate = due.Format(domain.DateLayout)
	}
	view.DaysOverdue = sale.DaysOverdue(now, l.graceDays)
	view.Overdue = view.DaysOverdue > 0
	return view
}

// Stats totals the ledger as of today. Results are cached per day until the
// next ledger mutation or the cache TTL.
func (l *Ledger) Stats(ctx context.Context) (domain.CreditStats, error) {
	now := l.now()
	day := now.Format(domain.DateLayout)
	if cached, ok, err := l.stats.Get(ctx, day); err == nil && ok {
		return *cached, nil
	}

	open, err := l.open.All(ctx)
	if err != nil {
		return domain.CreditStats{}, err
	}
	paid, err := l.paid.All(ctx)
	if err != nil {
		return domain.CreditStats{}, err
	}

	var stats domain.CreditStats
	for _, sale := range open {
		stats.OpenCount++
		stats.TotalCreditCents += sale.TotalCents
		stats.TotalUnpaidCents += sale.RemainingCents
		stats.TotalPaidCents += sale.TotalCents - sale.RemainingCents
		if sale.Overdue(now, l.graceDays) {
			stats.OverdueCount++
			stats.TotalOverdueCents += sale.RemainingCents
		}
	}
	for _, sale := range paid {
		stats.PaidCount++
		stats.TotalCreditCents += sale.TotalCents
		stats.TotalPaidCents += sale.TotalCents
	}

	_ = l.stats.Set(ctx, day, &stats, l.statsTTL)
	return stats, nil
}

// Report collects credit sales made between from and to inclusive (YYYY-MM-DD).
func (l *Ledger) Report(ctx context.Context, from string, to string) (domain.CreditReport, error) {
	fromDay, err := time.Parse(domain.DateLayout, strings.TrimSpace(from))
	if err != nil {
		return domain.CreditReport{}, fmt.Errorf("%w: from must be YYYY-MM-DD", store.ErrValidation)
	}
	toDay, err := time.Parse(domain.DateLayout, strings.TrimSpace(to))
	if err != nil {
		return domain.CreditReport{}, fmt.Errorf("%w: to must be YYYY-MM-DD", store.ErrValidation)
	}
	if toDay.Before(fromDay) {
		return domain.CreditReport{}, fmt.Errorf("%w: from is after to", store.ErrValidation)
	}
	lo, hi := fromDay.Format(domain.DateLayout), toDay.Format(domain.DateLayout)
	within := func(date string) bool { return date >= lo && date <= hi }

	open, err := l.ListOpen(ctx)
	if err != nil {
		return domain.CreditReport{}, err
	}
	paid, err := l.ListPaid(ctx)
	if err != nil {
		return domain.CreditReport{}, err
	}

	report := domain.CreditReport{
		From: lo,
		To:   hi,
		Open: []domain.CreditSale{},
		Paid: []domain.PaidCreditSale{},
	}
	for _, sale := range open {
		if !within(sale.Date) {
			continue
		}
		report.Open = append(report.Open, sale)
		report.TotalCents += sale.TotalCents
		report.CollectedCents += sale.TotalCents - sale.RemainingCents
		report.OutstandingCents += sale.RemainingCents
	}
	for _, sale := range paid {
		if !within(sale.Date) {
			continue
		}
		report.Paid = append(report.Paid, sale)
		report.TotalCents += sale.TotalCents
		report.CollectedCents += sale.TotalCents
	}
	return report, nil
}
