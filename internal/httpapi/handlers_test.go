package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dukkan/backend/internal/credit"
	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/service"
	"dukkan/backend/internal/store/memory"
)

const testAdminPassword = "admin-pass-123"

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	st := memory.NewSeeded()
	svc := service.New(st, credit.New(st, nil, time.Minute), 30)
	auth := NewAuthManager("test-secret-key-with-at-least-32-chars", time.Hour, svc, "counter")
	if err := auth.EnsureOperator(context.Background(), "admin", "Store Admin", testAdminPassword); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	return New(svc, auth, "*")
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, payload any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (status %d)", err, rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: "admin", Password: "wrong-password"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: "admin", Password: testAdminPassword}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	decodeBody(t, rec, &resp)
	if resp.AccessToken == "" || resp.Operator != "Store Admin" {
		t.Fatalf("unexpected login response: %+v", resp)
	}
}

func TestInvalidTokenIsRejected(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", nil, "not-a-token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected anonymous request to succeed, got %d", rec.Code)
	}
}

func TestCheckoutRecordsOperator(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsAdmin(t, api)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/terminals/till-1/cart/lines", map[string]any{"product_id": "prd-0001", "quantity": 2}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("add line: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/terminals/till-1/checkout", map[string]any{"payment_method": "cash"}, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: %d %s", rec.Code, rec.Body.String())
	}
	var settled domain.Settlement
	decodeBody(t, rec, &settled)
	if settled.Sale.Operator != "Store Admin" {
		t.Fatalf("expected sale operator from token, got %q", settled.Sale.Operator)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/terminals/till-1/cart/lines", map[string]any{"barcode": "6281000000028"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("add by barcode: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/terminals/till-1/checkout", map[string]any{}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: %d %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &settled)
	if settled.Sale.Operator != "counter" {
		t.Fatalf("expected default operator, got %q", settled.Sale.Operator)
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/terminals/till-1/checkout", map[string]any{"payment_method": "cash"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/terminals/till-1/cart/lines", map[string]any{"product_id": "prd-0005"}, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for out of stock, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/terminals/till-1/cart/lines", map[string]any{"product_id": "prd-0003", "quantity": 4}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("add line: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/terminals/till-1/cart/lines/prd-0003", map[string]any{"delta": 100}, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for quantity over stock, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPut, "/api/v1/terminals/till-1/cart/discount", map[string]any{"kind": "percent", "value": "10"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("discount: %d %s", rec.Code, rec.Body.String())
	}
	var cartResp struct {
		Cart struct {
			Totals domain.Totals `json:"totals"`
		} `json:"cart"`
	}
	decodeBody(t, rec, &cartResp)
	if cartResp.Cart.Totals.TotalCents != 5400 {
		t.Fatalf("expected total 5400 after 10%% off 6000, got %d", cartResp.Cart.Totals.TotalCents)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/terminals/till-1/checkout", map[string]any{"payment_method": "card"}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: %d %s", rec.Code, rec.Body.String())
	}
	var settled domain.Settlement
	decodeBody(t, rec, &settled)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+settled.Sale.InvoiceNumber, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get sale: %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/sales/"+settled.Sale.InvoiceNumber, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete sale: %d %s", rec.Code, rec.Body.String())
	}
	var reversal struct {
		Complete bool `json:"complete"`
	}
	decodeBody(t, rec, &reversal)
	if !reversal.Complete {
		t.Fatalf("expected a complete reversal")
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products/prd-0003", nil, "")
	var productResp struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, rec, &productResp)
	if productResp.Product.Quantity != 20 {
		t.Fatalf("expected stock restored to 20, got %d", productResp.Product.Quantity)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/sales/"+settled.Sale.InvoiceNumber, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestCreditLifecycleOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/terminals/till-9/cart/lines", map[string]any{"product_id": "prd-0001", "quantity": 1}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("add line: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/terminals/till-9/checkout", map[string]any{"payment_method": "deferred", "customer_name": "Ali"}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: %d %s", rec.Code, rec.Body.String())
	}
	var settled domain.Settlement
	decodeBody(t, rec, &settled)
	if settled.Credit == nil {
		t.Fatalf("expected a credit sale in the response")
	}
	invoice := settled.Sale.InvoiceNumber

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/credits/"+invoice+"/payments", map[string]any{"amount_cents": 2600}, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for overpayment, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/credits/"+invoice+"/payments", map[string]any{"amount_cents": 0}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero payment, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/credits/"+invoice+"/reminders", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reminder: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/credits/"+invoice+"/payments", map[string]any{"amount_cents": 2500, "method": "wallet"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("payment: %d %s", rec.Code, rec.Body.String())
	}
	var result credit.PaymentResult
	decodeBody(t, rec, &result)
	if result.Archived == nil || result.Archived.SettledWith != domain.PaymentWallet {
		t.Fatalf("expected archived credit settled with wallet, got %+v", result)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/credits/"+invoice, nil, "")
	var entry struct {
		Credit service.CreditEntry `json:"credit"`
	}
	decodeBody(t, rec, &entry)
	if entry.Credit.Status != service.CreditStatusPaid {
		t.Fatalf("expected paid credit, got %q", entry.Credit.Status)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/credits/stats", nil, "")
	var stats domain.CreditStats
	decodeBody(t, rec, &stats)
	if stats.PaidCount != 1 || stats.TotalPaidCents != 2500 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/credits?status=bogus", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestUnknownFieldsAreRejected(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", map[string]any{"name": "Dates", "colour": "brown"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestBackupRoundTripOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/backup", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d", rec.Code)
	}
	raw := rec.Body.Bytes()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/backup/restore", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("restore: %d %s", res.Code, res.Body.String())
	}
	var result struct {
		Restored map[string]int `json:"restored"`
	}
	decodeBody(t, res, &result)
	if result.Restored[domain.CollectionProducts] != 5 {
		t.Fatalf("expected 5 products restored, got %v", result.Restored)
	}
}
