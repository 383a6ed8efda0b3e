package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ttacon/libphonenumber"

	"github.com/forecourt/forecourt/internal/platform/httpx"
)

// DefaultRegion is used to read phone numbers written without a country code.
const DefaultRegion = "GB"

// ErrInvalidPhone is returned for numbers libphonenumber cannot validate.
var ErrInvalidPhone = errors.New("phone number is not valid")

type Service struct {
	repo     Repository
	validate *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

// NormalisePhone returns the number in E.164, reading national numbers as UK.
// Blank input stays blank.
func NormalisePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := libphonenumber.Parse(raw, DefaultRegion)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPhone, err)
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

func (s *Service) prepare(in CustomerInput) (CustomerInput, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Postcode = strings.ToUpper(strings.TrimSpace(in.Postcode))
	if err := s.validate.Struct(in); err != nil {
		return in, httpx.Invalid(err)
	}
	phone, err := NormalisePhone(in.Phone)
	if err != nil {
		return in, httpx.Invalid(err)
	}
	in.Phone = phone
	return in, nil
}

func apply(c *Customer, in CustomerInput) {
	c.Title = in.Title
	c.FirstName = in.FirstName
	c.MiddleName = in.MiddleName
	c.LastName = in.LastName
	c.Email = in.Email
	c.Phone = in.Phone
	c.AddressLine1 = in.AddressLine1
	c.AddressLine2 = in.AddressLine2
	c.City = in.City
	c.County = in.County
	c.Postcode = in.Postcode
	c.Notes = in.Notes
}

// Create stores a new customer with the next free code.
func (s *Service) Create(ctx context.Context, dealerID, createdBy int64, in CustomerInput) (*Customer, error) {
	in, err := s.prepare(in)
	if err != nil {
		return nil, err
	}
	customer := Customer{DealerID: dealerID, CreatedBy: createdBy}
	apply(&customer, in)

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		code, err := repo.NextCode(ctx, dealerID)
		if err != nil {
			return err
		}
		customer.Code = code
		customer.ID, err = repo.Create(ctx, customer)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, httpx.Conflict(err)
		}
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return &customer, nil
}

// Update replaces the editable fields.
func (s *Service) Update(ctx context.Context, dealerID, id int64, in CustomerInput) (*Customer, error) {
	existing, err := s.repo.Get(ctx, dealerID, id)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	in, err = s.prepare(in)
	if err != nil {
		return existing, err
	}
	apply(existing, in)
	if err := s.repo.Update(ctx, *existing); err != nil {
		return existing, fmt.Errorf("update customer: %w", err)
	}
	return s.repo.Get(ctx, dealerID, id)
}

func (s *Service) Get(ctx context.Context, dealerID, id int64) (*Customer, error) {
	return s.repo.Get(ctx, dealerID, id)
}

func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	req.Search = strings.TrimSpace(req.Search)
	if err := s.validate.Struct(req); err != nil {
		return nil, 0, httpx.Invalid(err)
	}
	return s.repo.List(ctx, req)
}
