package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/store"
	"dukkan/backend/internal/xid"
)

type PurchaseLineInput struct {
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
	UnitCostCents int64  `json:"unit_cost_cents"`
}

type PurchaseRequest struct {
	SupplierID string              `json:"supplier_id"`
	Lines      []PurchaseLineInput `json:"lines"`
	PaidCents  int64               `json:"paid_cents"`
}

// RecordPurchase receives goods from a supplier: stock and unit cost of every
// line are updated and the unpaid part is added to the supplier balance.
func (c *Catalog) RecordPurchase(ctx context.Context, req PurchaseRequest) (domain.Purchase, error) {
	supplierID := strings.TrimSpace(req.SupplierID)
	if supplierID == "" {
		return domain.Purchase{}, fmt.Errorf("%w: supplier is required", store.ErrValidation)
	}
	if len(req.Lines) == 0 {
		return domain.Purchase{}, fmt.Errorf("%w: purchase has no lines", store.ErrValidation)
	}
	seen := make(map[string]bool, len(req.Lines))
	for _, line := range req.Lines {
		if line.Quantity < 1 {
			return domain.Purchase{}, fmt.Errorf("%w: quantity for %s must be at least 1", store.ErrValidation, line.ProductID)
		}
		if line.UnitCostCents < 0 {
			return domain.Purchase{}, fmt.Errorf("%w: unit cost for %s must not be negative", store.ErrValidation, line.ProductID)
		}
		if seen[line.ProductID] {
			return domain.Purchase{}, fmt.Errorf("%w: product %s appears twice", store.ErrValidation, line.ProductID)
		}
		seen[line.ProductID] = true
	}
	if req.PaidCents < 0 {
		return domain.Purchase{}, fmt.Errorf("%w: paid amount must not be negative", store.ErrValidation)
	}

	now := c.now()
	operator := domain.OperatorName(ctx)

	var recorded domain.Purchase
	err := c.store.Atomic(ctx, func(ctx context.Context, tx store.Backend) error {
		suppliers := c.suppliers.On(tx)
		products := c.products.On(tx)

		supplier, err := suppliers.Get(ctx, supplierID)
		if err != nil {
			return err
		}

		purchase := domain.Purchase{
			InvoiceNumber: xid.Invoice("PUR", now),
			SupplierID:    supplier.ID,
			SupplierName:  supplier.Name,
			Date:          now.Format(domain.DateLayout),
			Lines:         make([]domain.PurchaseLine, 0, len(req.Lines)),
			PaidCents:     req.PaidCents,
			Operator:      operator,
		}
		for _, line := range req.Lines {
			product, err := products.Get(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if err := product.Restore(line.Quantity); err != nil {
				return err
			}
			patch := map[string]any{"quantity": product.Quantity, "cost_cents": line.UnitCostCents}
			if _, err := products.Update(ctx, product.ID, patch); err != nil {
				return err
			}
			total := int64(line.Quantity) * line.UnitCostCents
			purchase.Lines = append(purchase.Lines, domain.PurchaseLine{
				ProductID:     product.ID,
				Name:          product.Name,
				Quantity:      line.Quantity,
				UnitCostCents: line.UnitCostCents,
				TotalCents:    total,
			})
			purchase.TotalCents += total
		}
		if purchase.PaidCents > purchase.TotalCents {
			return fmt.Errorf("%w: paid amount exceeds purchase total", store.ErrValidation)
		}

		if owed := purchase.TotalCents - purchase.PaidCents; owed > 0 {
			if _, err := adjustBalance(ctx, suppliers, supplier.ID, owed); err != nil {
				return err
			}
		}

		out, err := c.purchases.On(tx).Add(ctx, purchase)
		recorded = out
		return err
	})
	if err != nil {
		return domain.Purchase{}, err
	}
	return recorded, nil
}

// ListPurchases returns purchases newest first.
func (c *Catalog) ListPurchases(ctx context.Context) ([]domain.Purchase, error) {
	all, err := c.purchases.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return all, nil
}
