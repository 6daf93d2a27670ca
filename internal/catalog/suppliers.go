package catalog

import (
	"context"
	"fmt"
	"strings"

	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/store"
)

type SupplierInput struct {
	Name    *string `json:"name"`
	Contact *string `json:"contact"`
	Phone   *string `json:"phone"`
	Email   *string `json:"email"`
	Address *string `json:"address"`
	Active  *bool   `json:"active"`
}

func (in SupplierInput) apply(s *domain.Supplier) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&s.Name, in.Name)
	set(&s.Contact, in.Contact)
	set(&s.Phone, in.Phone)
	set(&s.Email, in.Email)
	set(&s.Address, in.Address)
	if in.Active != nil {
		s.Active = *in.Active
	}
}

func validateSupplier(s domain.Supplier) error {
	if s.Name == "" {
		return fmt.Errorf("%w: supplier name is required", store.ErrValidation)
	}
	if s.Email != "" && !strings.Contains(s.Email, "@") {
		return fmt.Errorf("%w: supplier email is malformed", store.ErrValidation)
	}
	return nil
}

func (c *Catalog) CreateSupplier(ctx context.Context, in SupplierInput) (domain.Supplier, error) {
	supplier := domain.Supplier{Active: true}
	in.apply(&supplier)
	if err := validateSupplier(supplier); err != nil {
		return domain.Supplier{}, err
	}
	return c.suppliers.Add(ctx, supplier)
}

func (c *Catalog) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	return c.suppliers.Get(ctx, id)
}

func (c *Catalog) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return c.suppliers.All(ctx)
}

func (c *Catalog) UpdateSupplier(ctx context.Context, id string, in SupplierInput) (domain.Supplier, error) {
	var updated domain.Supplier
	err := c.store.Atomic(ctx, func(ctx context.Context, tx store.Backend) error {
		suppliers := c.suppliers.On(tx)
		supplier, err := suppliers.Get(ctx, id)
		if err != nil {
			return err
		}
		in.apply(&supplier)
		if err := validateSupplier(supplier); err != nil {
			return err
		}
		out, err := suppliers.Update(ctx, id, supplier)
		updated = out
		return err
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return updated, nil
}

// DeleteSupplier removes the supplier. Products keep their now dangling reference.
func (c *Catalog) DeleteSupplier(ctx context.Context, id string) error {
	removed, err := c.suppliers.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: supplier %s", store.ErrNotFound, id)
	}
	return nil
}

// AdjustSupplierBalance adds deltaCents (negative for a settlement) to what the
// store owes the supplier.
func (c *Catalog) AdjustSupplierBalance(ctx context.Context, id string, deltaCents int64) (domain.Supplier, error) {
	if deltaCents == 0 {
		return domain.Supplier{}, fmt.Errorf("%w: balance change must not be zero", store.ErrValidation)
	}
	var updated domain.Supplier
	err := c.store.Atomic(ctx, func(ctx context.Context, tx store.Backend) error {
		out, err := adjustBalance(ctx, c.suppliers.On(tx), id, deltaCents)
		updated = out
		return err
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return updated, nil
}

func adjustBalance(ctx context.Context, suppliers store.Collection[domain.Supplier], id string, deltaCents int64) (domain.Supplier, error) {
	supplier, err := suppliers.Get(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	return suppliers.Update(ctx, id, map[string]any{"balance_cents": supplier.BalanceCents + deltaCents})
}
