package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"dukkan/backend/internal/catalog"
	"dukkan/backend/internal/domain"
)

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	return s.catalog.ListProducts(ctx, includeInactive)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.catalog.GetProduct(ctx, id)
}

func (s *Service) FindByBarcode(ctx context.Context, code string) (domain.Product, error) {
	return s.catalog.FindByBarcode(ctx, code)
}

func (s *Service) CreateProduct(ctx context.Context, in catalog.ProductInput) (domain.Product, error) {
	product, err := s.catalog.CreateProduct(ctx, in)
	if err != nil {
		return domain.Product{}, err
	}
	s.audit(ctx, "product_create", product.ID)
	return product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, in catalog.ProductInput) (domain.Product, error) {
	product, err := s.catalog.UpdateProduct(ctx, id, in)
	if err != nil {
		return domain.Product{}, err
	}
	s.audit(ctx, "product_update", product.ID)
	return product, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.catalog.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "product_delete", id)
	return nil
}

func (s *Service) Restock(ctx context.Context, id string, qty int) (domain.Product, error) {
	product, err := s.catalog.Restock(ctx, id, qty)
	if err != nil {
		return domain.Product{}, err
	}
	log.Info().Str("product", product.ID).Int("added", qty).Int("stock", product.Quantity).
		Str("operator", domain.OperatorName(ctx)).Msg("product restocked")
	return product, nil
}

func (s *Service) LowStock(ctx context.Context) ([]domain.Product, error) {
	return s.catalog.LowStock(ctx)
}

// ExpiringSoon uses the configured warning window when days is zero.
func (s *Service) ExpiringSoon(ctx context.Context, days int) ([]domain.Product, error) {
	if days == 0 {
		days = s.expiryWarningDays
	}
	return s.catalog.ExpiringSoon(ctx, days)
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.catalog.ListSuppliers(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, in catalog.SupplierInput) (domain.Supplier, error) {
	supplier, err := s.catalog.CreateSupplier(ctx, in)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.audit(ctx, "supplier_create", supplier.ID)
	return supplier, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, id string, in catalog.SupplierInput) (domain.Supplier, error) {
	supplier, err := s.catalog.UpdateSupplier(ctx, id, in)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.audit(ctx, "supplier_update", supplier.ID)
	return supplier, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, id string) error {
	if err := s.catalog.DeleteSupplier(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, "supplier_delete", id)
	return nil
}

func (s *Service) AdjustSupplierBalance(ctx context.Context, id string, deltaCents int64) (domain.Supplier, error) {
	supplier, err := s.catalog.AdjustSupplierBalance(ctx, id, deltaCents)
	if err != nil {
		return domain.Supplier{}, err
	}
	log.Info().Str("supplier", supplier.ID).Int64("delta_cents", deltaCents).Int64("balance_cents", supplier.BalanceCents).
		Str("operator", domain.OperatorName(ctx)).Msg("supplier balance adjusted")
	return supplier, nil
}

func (s *Service) ListPurchases(ctx context.Context) ([]domain.Purchase, error) {
	return s.catalog.ListPurchases(ctx)
}

func (s *Service) RecordPurchase(ctx context.Context, req catalog.PurchaseRequest) (domain.Purchase, error) {
	purchase, err := s.catalog.RecordPurchase(ctx, req)
	if err != nil {
		return domain.Purchase{}, err
	}
	log.Info().Str("invoice", purchase.InvoiceNumber).Str("supplier", purchase.SupplierID).
		Int64("total_cents", purchase.TotalCents).Int64("paid_cents", purchase.PaidCents).
		Str("operator", purchase.Operator).Msg("purchase recorded")
	return purchase, nil
}

func (s *Service) audit(ctx context.Context, action string, entityID string) {
	log.Info().Str("action", action).Str("entity", entityID).Str("operator", domain.OperatorName(ctx)).Msg("catalog changed")
}
