package repository

import (
	"time"

	"github.com/google/uuid"
)

// Role is the account type. Closed set; the auth middleware rejects others.
type Role string

const (
	RoleRequester Role = "requester"
	RoleProvider  Role = "provider"
	RoleAdmin     Role = "admin"
)

// Valid reports whether the role is one a client may register as.
func (r Role) Valid() bool {
	return r == RoleRequester || r == RoleProvider
}

// Account is a requester, provider or admin login.
type Account struct {
	ID           uuid.UUID  `db:"id"`
	Role         Role       `db:"role"`
	Email        string     `db:"email"`
	Phone        string     `db:"phone"`
	PasswordHash string     `db:"password_hash"`
	FullName     string     `db:"full_name"`
	LastLoginAt  *time.Time `db:"last_login_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// ProviderProfile extends a provider account with the matching attributes.
type ProviderProfile struct {
	AccountID       uuid.UUID `db:"account_id"`
	BusinessName    string    `db:"business_name"`
	Bio             string    `db:"bio"`
	Regions         []string  `db:"regions"`
	Specialties     []string  `db:"specialties"`
	Latitude        *float64  `db:"latitude"`
	Longitude       *float64  `db:"longitude"`
	Available       bool      `db:"available"`
	Verified        bool      `db:"verified"`
	PriorityListing bool      `db:"priority_listing"`
	Rating          float64   `db:"rating"`
	RatingCount     int       `db:"rating_count"`
	CompletedJobs   int       `db:"completed_jobs"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// Vehicle belongs to a requester. At most one per account is primary.
type Vehicle struct {
	ID        uuid.UUID `db:"id"`
	AccountID uuid.UUID `db:"account_id"`
	Make      string    `db:"make"`
	Model     string    `db:"model"`
	Year      int       `db:"year"`
	Plate     string    `db:"plate"`
	IsPrimary bool      `db:"is_primary"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
