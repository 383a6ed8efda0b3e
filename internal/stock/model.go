package stock

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// Status is where a vehicle is in the sales cycle.
type Status string

const (
	StatusInStock  Status = "in_stock"
	StatusReserved Status = "reserved"
	StatusSold     Status = "sold"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusInStock || s == StatusReserved || s == StatusSold
}

// Label is the human form used in lists and exports.
func (s Status) Label() string {
	switch s {
	case StatusInStock:
		return "In stock"
	case StatusReserved:
		return "Reserved"
	case StatusSold:
		return "Sold"
	}
	return string(s)
}

type Vehicle struct {
	ID            int64           `json:"id"`
	DealerID      int64           `json:"dealerId"`
	Registration  string          `json:"registration"`
	VIN           string          `json:"vin"`
	Make          string          `json:"make"`
	Model         string          `json:"model"`
	Derivative    string          `json:"derivative"`
	Year          int             `json:"year"`
	Mileage       int             `json:"mileage"`
	Colour        string          `json:"colour"`
	FuelType      string          `json:"fuelType"`
	Transmission  string          `json:"transmission"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	RetailPrice   decimal.Decimal `json:"retailPrice"`
	Status        Status          `json:"status"`
	Notes         string          `json:"notes"`
	SoldAt        *time.Time      `json:"soldAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Images        []Image         `json:"images,omitempty"`
}

// Title is make, model and derivative for headings.
func (v Vehicle) Title() string {
	return strings.TrimSpace(strings.Join([]string{v.Make, v.Model, v.Derivative}, " "))
}

// Margin is retail minus purchase price.
func (v Vehicle) Margin() decimal.Decimal {
	return v.RetailPrice.Sub(v.PurchasePrice)
}

type Image struct {
	ID           int64     `json:"id"`
	VehicleID    int64     `json:"vehicleId"`
	ObjectKey    string    `json:"objectKey"`
	ThumbnailKey string    `json:"thumbnailKey"`
	ContentType  string    `json:"contentType"`
	Position     int       `json:"position"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NormaliseRegistration upper-cases a plate and strips everything but letters
// and digits, so "ab12 cde" and "AB12CDE" are the same vehicle.
func NormaliseRegistration(reg string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(reg) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
