package customers

import (
	"strings"
	"time"
)

type Customer struct {
	ID           int64     `json:"id"`
	DealerID     int64     `json:"dealerId"`
	Code         string    `json:"code"`
	Title        string    `json:"title"`
	FirstName    string    `json:"firstName"`
	MiddleName   string    `json:"middleName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	AddressLine1 string    `json:"addressLine1"`
	AddressLine2 string    `json:"addressLine2"`
	City         string    `json:"city"`
	County       string    `json:"county"`
	Postcode     string    `json:"postcode"`
	Notes        string    `json:"notes"`
	CreatedBy    int64     `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FullName joins title and names, skipping blanks.
func (c Customer) FullName() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{c.Title, c.FirstName, c.MiddleName, c.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
