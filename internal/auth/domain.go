package auth

import "time"

// User represents an authenticated user account.
type User struct {
	ID int64
	// DealerID is zero for users not yet attached to a dealership.
	DealerID     int64
	Email        string
	Name         string
	Role         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TokenResponse is returned by the bearer token endpoint.
type TokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
	DealerID    int64     `json:"dealerId,omitempty"`
}
