package dealers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/forecourt/forecourt/internal/platform/httpx"
)

// Service exposes dealer profile operations.
type Service struct {
	repo     Repository
	validate *validator.Validate
}

// NewService builds a dealer Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

// ForUser returns the dealer the user belongs to, ErrNotFound when unassigned.
func (s *Service) ForUser(ctx context.Context, userID int64) (*Dealer, error) {
	return s.repo.ForUser(ctx, userID)
}

// Get loads a dealer by id.
func (s *Service) Get(ctx context.Context, id int64) (*Dealer, error) {
	return s.repo.Get(ctx, id)
}

// Update replaces the editable profile.
func (s *Service) Update(ctx context.Context, id int64, req UpdateDealerRequest) (*Dealer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Postcode = strings.ToUpper(strings.TrimSpace(req.Postcode))
	req.VATNumber = strings.ToUpper(strings.ReplaceAll(req.VATNumber, " ", ""))
	if err := s.validate.Struct(req); err != nil {
		return nil, httpx.Invalid(err)
	}
	if req.DefaultVATRate.IsNegative() || req.DefaultVATRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, httpx.Invalid(errors.New("default VAT rate must be between 0 and 1"))
	}
	if err := s.repo.Update(ctx, id, req); err != nil {
		return nil, fmt.Errorf("update dealer: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// SetLogo records the object key of the dealer's invoice logo.
func (s *Service) SetLogo(ctx context.Context, id int64, key string) error {
	return s.repo.SetLogo(ctx, id, key)
}
