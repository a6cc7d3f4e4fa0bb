package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/atvirokodosprendimai/invoices/internal/core/domain"
	"github.com/atvirokodosprendimai/invoices/internal/core/ports"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoInvoiceRights rejects active keys that grant none of the invoice rights.
	ErrNoInvoiceRights = errors.New("api key grants no invoice rights")
)

type AuthService struct {
	repo ports.APIKeyRepository
}

func NewAuthService(repo ports.APIKeyRepository) *AuthService {
	return &AuthService{repo: repo}
}

// Authenticate resolves a raw token to the calling principal. The principal's KeyID
// is the token hash, so sessions can be bound to the key that mounted them.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Principal{}, ErrUnauthorized
	}

	hash := HashToken(token)
	key, err := s.repo.FindByTokenHash(ctx, hash)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.Principal{}, ErrUnauthorized
	case err != nil:
		return domain.Principal{}, err
	case !key.Active:
		return domain.Principal{}, ErrUnauthorized
	case !key.Rights.HasAny(domain.InvoiceRights...):
		return domain.Principal{}, ErrNoInvoiceRights
	}

	return domain.Principal{
		TenantID: key.TenantID,
		KeyID:    hash,
		Name:     key.Name,
		Rights:   key.Rights,
	}, nil
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
