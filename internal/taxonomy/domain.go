// Package taxonomy talks to the external vehicle taxonomy and valuation API and
// drives the valuation wizard on top of it.
package taxonomy

import (
	"errors"
	"fmt"
)

// MaxDerivativesBeforeFacets is the number of derivatives above which the wizard
// asks for trim, engine or fuel before listing derivatives.
const MaxDerivativesBeforeFacets = 8

var (
	// ErrInvalidSelection is returned when a selection does not exist upstream or
	// filters the derivative list down to nothing.
	ErrInvalidSelection = errors.New("taxonomy: invalid selection")
	// ErrUnavailable wraps transport failures and 5xx responses.
	ErrUnavailable = errors.New("taxonomy: service unavailable")
)

// APIError is a non-2xx answer from the taxonomy API.
type APIError struct {
	Status   int
	Resource string
	Message  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("taxonomy %s: status %d: %s", e.Resource, e.Status, e.Message)
	}
	return fmt.Sprintf("taxonomy %s: status %d", e.Resource, e.Status)
}

// Unwrap maps the status to ErrInvalidSelection or ErrUnavailable.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == 404 || e.Status == 400 || e.Status == 422:
		return ErrInvalidSelection
	case e.Status >= 500 || e.Status == 429:
		return ErrUnavailable
	}
	return nil
}

// Option is a selectable value in one wizard step.
type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Derivative is a concrete variant of a model generation.
type Derivative struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Trim     string `json:"trim"`
	Engine   string `json:"engine"`
	FuelType string `json:"fuelType"`
}

// YearOption is a registration year with its UK plate identifier.
type YearOption struct {
	Year  int    `json:"year"`
	Plate string `json:"plate"`
}

// ValuationRequest asks for the value of a derivative at a given age and mileage.
type ValuationRequest struct {
	DerivativeID string `json:"derivativeId"`
	Year         int    `json:"year"`
	Mileage      int    `json:"mileage"`
}

// Valuation is the priced answer. Amounts are whole pounds as returned upstream.
type Valuation struct {
	DerivativeID string `json:"derivativeId"`
	Retail       int64  `json:"retail"`
	Trade        int64  `json:"trade"`
	PartExchange int64  `json:"partExchange"`
	Currency     string `json:"currency"`
}
