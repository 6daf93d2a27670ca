package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/store"
)

func (s *Service) operators() store.Collection[domain.OperatorAccount] {
	return store.NewCollection[domain.OperatorAccount](s.store, domain.CollectionOperators)
}

// FindOperator returns the account with the given username.
func (s *Service) FindOperator(ctx context.Context, username string) (domain.OperatorAccount, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return domain.OperatorAccount{}, fmt.Errorf("%w: operator", store.ErrNotFound)
	}
	return s.operators().FindOne(ctx, "username", username)
}

// SaveOperator creates the account or replaces the display name, password hash
// and active flag of an existing one with the same username.
func (s *Service) SaveOperator(ctx context.Context, account domain.OperatorAccount) (domain.OperatorAccount, error) {
	account.Username = strings.ToLower(strings.TrimSpace(account.Username))
	if account.Username == "" || strings.ContainsAny(account.Username, " \t\r\n") {
		return domain.OperatorAccount{}, fmt.Errorf("%w: username must be a single word", store.ErrValidation)
	}
	if account.PasswordHash == "" {
		return domain.OperatorAccount{}, fmt.Errorf("%w: password hash is required", store.ErrValidation)
	}

	var saved domain.OperatorAccount
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Backend) error {
		operators := s.operators().On(tx)
		existing, err := operators.FindOne(ctx, "username", account.Username)
		if errors.Is(err, store.ErrNotFound) {
			account.ID = ""
			out, err := operators.Add(ctx, account)
			saved = out
			return err
		}
		if err != nil {
			return err
		}
		out, err := operators.Update(ctx, existing.ID, map[string]any{
			"display_name":  account.DisplayName,
			"password_hash": account.PasswordHash,
			"active":        account.Active,
		})
		saved = out
		return err
	})
	if err != nil {
		return domain.OperatorAccount{}, err
	}
	return saved, nil
}
