package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	CollectionProducts        = "products"
	CollectionSuppliers       = "suppliers"
	CollectionPurchases       = "purchases"
	CollectionSales           = "sales"
	CollectionCreditSales     = "credit_sales"
	CollectionPaidCreditSales = "paid_credit_sales"
	CollectionOperators       = "operators"
)

// Collections is every collection covered by backup and restore. Operator
// accounts hold password hashes and stay out of backups.
var Collections = []string{
	CollectionProducts,
	CollectionSuppliers,
	CollectionPurchases,
	CollectionSales,
	CollectionCreditSales,
	CollectionPaidCreditSales,
}

// IDPrefix is the identifier prefix used for records of a collection.
func IDPrefix(collection string) string {
	switch collection {
	case CollectionProducts:
		return "prd"
	case CollectionSuppliers:
		return "sup"
	case CollectionPurchases:
		return "pur"
	case CollectionSales, CollectionCreditSales, CollectionPaidCreditSales:
		return "sal"
	case CollectionOperators:
		return "opr"
	}
	return "rec"
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"

	DefaultMinQuantity = 10
	DefaultGraceDays   = 30
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentWallet   PaymentMethod = "wallet"
	PaymentOther    PaymentMethod = "other"
	PaymentDeferred PaymentMethod = "deferred"
)

// ParsePaymentMethod normalizes raw. An empty value means cash.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	method := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	switch method {
	case "":
		return PaymentCash, true
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentWallet, PaymentOther, PaymentDeferred:
		return method, true
	}
	return "", false
}

func (m PaymentMethod) Deferred() bool {
	return m == PaymentDeferred
}

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Barcode     string    `json:"barcode"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	CostCents   int64     `json:"cost_cents"`
	Quantity    int       `json:"quantity"`
	MinQuantity int       `json:"min_quantity"`
	SupplierID  string    `json:"supplier_id"`
	ExpiryDate  string    `json:"expiry_date"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p Product) LowStock() bool {
	return p.Quantity <= p.MinQuantity
}

type Supplier struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Contact      string    `json:"contact"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	Address      string    `json:"address"`
	BalanceCents int64     `json:"balance_cents"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type PurchaseLine struct {
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	UnitCostCents int64  `json:"unit_cost_cents"`
	TotalCents    int64  `json:"total_cents"`
}

type Purchase struct {
	ID            string         `json:"id"`
	InvoiceNumber string         `json:"invoice_number"`
	SupplierID    string         `json:"supplier_id"`
	SupplierName  string         `json:"supplier_name"`
	Date          string         `json:"date"`
	Lines         []PurchaseLine `json:"lines"`
	TotalCents    int64          `json:"total_cents"`
	PaidCents     int64          `json:"paid_cents"`
	Operator      string         `json:"operator"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type CartLine struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	PriceCents  int64  `json:"price_cents"`
	Quantity    int    `json:"quantity"`
	MaxQuantity int    `json:"max_quantity"`
	TotalCents  int64  `json:"total_cents"`
}

type DiscountKind string

const (
	DiscountNone    DiscountKind = "none"
	DiscountPercent DiscountKind = "percent"
	DiscountFixed   DiscountKind = "fixed"
)

// Discount holds a percentage (Value 12.5 means 12.5%) or a fixed amount in cents.
type Discount struct {
	Kind  DiscountKind    `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

type Totals struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TotalCents    int64 `json:"total_cents"`
}

type SaleLine struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
	TotalCents int64  `json:"total_cents"`
}

type Sale struct {
	ID            string        `json:"id"`
	InvoiceNumber string        `json:"invoice_number"`
	Date          string        `json:"date"`
	Time          string        `json:"time"`
	Lines         []SaleLine    `json:"lines"`
	SubtotalCents int64         `json:"subtotal_cents"`
	DiscountCents int64         `json:"discount_cents"`
	TotalCents    int64         `json:"total_cents"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	CustomerName  string        `json:"customer_name,omitempty"`
	Operator      string        `json:"operator"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type Payment struct {
	ID            string        `json:"id"`
	InvoiceNumber string        `json:"invoice_number"`
	AmountCents   int64         `json:"amount_cents"`
	Method        PaymentMethod `json:"method"`
	Date          string        `json:"date"`
	RecordedBy    string        `json:"recorded_by"`
	CreatedAt     time.Time     `json:"created_at"`
}

// CreditSale is an open deferred-payment sale.
type CreditSale struct {
	Sale
	RemainingCents int64      `json:"remaining_cents"`
	Payments       []Payment  `json:"payments"`
	LastReminderAt *time.Time `json:"last_reminder_at,omitempty"`
}

// PaidCreditSale is a fully settled credit sale moved to the archive.
type PaidCreditSale struct {
	CreditSale
	PaidAt      string        `json:"paid_at"`
	SettledWith PaymentMethod `json:"settled_with"`
}

type Settlement struct {
	Sale Sale `json:"sale"`
	// Credit is set when the sale was deferred; the sale then lives only in the
	// credit ledger.
	Credit *CreditSale `json:"credit,omitempty"`
}

type StockRestore struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	StockAfter int    `json:"stock_after"`
}

type Reversal struct {
	InvoiceNumber string         `json:"invoice_number"`
	Restored      []StockRestore `json:"restored"`
	Skipped       []SaleLine     `json:"skipped"`
}

// Complete reports whether every line of the reversed sale went back to stock.
func (r Reversal) Complete() bool {
	return len(r.Skipped) == 0
}

type SalesStats struct {
	TotalCents   int64                   `json:"total_cents"`
	Count        int                     `json:"count"`
	TodayCents   int64                   `json:"today_cents"`
	TodayCount   int                     `json:"today_count"`
	ByMethod     map[PaymentMethod]int64 `json:"by_method"`
	AverageCents int64                   `json:"average_cents"`
}

type CreditStats struct {
	TotalUnpaidCents  int64 `json:"total_unpaid_cents"`
	TotalPaidCents    int64 `json:"total_paid_cents"`
	TotalCreditCents  int64 `json:"total_credit_cents"`
	TotalOverdueCents int64 `json:"total_overdue_cents"`
	OpenCount         int   `json:"open_count"`
	PaidCount         int   `json:"paid_count"`
	OverdueCount      int   `json:"overdue_count"`
}

type CreditReport struct {
	From             string           `json:"from"`
	To               string           `json:"to"`
	Open             []CreditSale     `json:"open"`
	Paid             []PaidCreditSale `json:"paid"`
	TotalCents       int64            `json:"total_cents"`
	CollectedCents   int64            `json:"collected_cents"`
	OutstandingCents int64            `json:"outstanding_cents"`
}

type OperatorAccount struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"password_hash"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Operator    string `json:"operator"`
	ExpiresAt   string `json:"expires_at"`
}
