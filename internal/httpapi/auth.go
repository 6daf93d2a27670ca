package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"dukkan/backend/internal/domain"
	"dukkan/backend/internal/store"
)

var errInvalidCredentials = errors.New("invalid credentials")

// AuthManager issues and checks operator tokens. Tokens only identify who
// records a sale or payment; they do not grant or restrict anything.
type AuthManager struct {
	secret          []byte
	tokenTTL        time.Duration
	operators       OperatorStore
	defaultOperator domain.Operator
}

type OperatorStore interface {
	FindOperator(ctx context.Context, username string) (domain.OperatorAccount, error)
	SaveOperator(ctx context.Context, account domain.OperatorAccount) (domain.OperatorAccount, error)
}

type operatorClaims struct {
	jwtlib.RegisteredClaims
	DisplayName string `json:"name,omitempty"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, operators OperatorStore, defaultOperator string) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	defaultOperator = strings.ToLower(strings.TrimSpace(defaultOperator))
	if defaultOperator == "" {
		defaultOperator = domain.SystemOperator
	}
	return &AuthManager{
		secret:          []byte(secret),
		tokenTTL:        tokenTTL,
		operators:       operators,
		defaultOperator: domain.Operator{Username: defaultOperator},
	}
}

// DefaultOperator is the identity used for requests without a token.
func (a *AuthManager) DefaultOperator() domain.Operator {
	return a.defaultOperator
}

// EnsureOperator creates or resets an operator account with the given password.
func (a *AuthManager) EnsureOperator(ctx context.Context, username string, displayName string, password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", store.ErrValidation)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = a.operators.SaveOperator(ctx, domain.OperatorAccount{
		Username:     username,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
		Active:       true,
	})
	return err
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	account, err := a.operators.FindOperator(ctx, req.Username)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if !verifyPassword(account.PasswordHash, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !account.Active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(account.Username, account.DisplayName, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	op := domain.Operator{Username: account.Username, DisplayName: account.DisplayName}
	return domain.LoginResponse{
		AccessToken: token,
		Operator:    op.Name(),
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Operator, error) {
	claims := &operatorClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Operator{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Operator{}, errors.New("invalid token subject")
	}
	return domain.Operator{Username: sub, DisplayName: claims.DisplayName}, nil
}

func (a *AuthManager) sign(username string, displayName string, expiresAt time.Time) (string, error) {
	claims := operatorClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "dukkan",
		},
		DisplayName: displayName,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
