// Package transport defines request/response DTOs for the accounts module.
package transport

import (
	"time"

	"driveassist_backend/internal/accounts/repository"

	"github.com/google/uuid"
)

type RegisterRequest struct {
	Role     string `json:"role" binding:"required,oneof=requester provider"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"required,max=32"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	FullName string `json:"fullName" binding:"required,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type TokenResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	AccountID    uuid.UUID `json:"accountId"`
	Role         string    `json:"role"`
}

type AccountResponse struct {
	ID        uuid.UUID `json:"id"`
	Role      string    `json:"role"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	FullName  string    `json:"fullName"`
	CreatedAt time.Time `json:"createdAt"`
}

func ToAccountResponse(a *repository.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID,
		Role:      string(a.Role),
		Email:     a.Email,
		Phone:     a.Phone,
		FullName:  a.FullName,
		CreatedAt: a.CreatedAt,
	}
}

type ProfileRequest struct {
	BusinessName string   `json:"businessName" binding:"required,max=128"`
	Bio          string   `json:"bio" binding:"max=2000"`
	Regions      []string `json:"regions" binding:"required,min=1,dive,max=64"`
	Specialties  []string `json:"specialties" binding:"dive,max=64"`
	Latitude     *float64 `json:"latitude" binding:"omitempty,latitude"`
	Longitude    *float64 `json:"longitude" binding:"omitempty,longitude"`
	Available    bool     `json:"available"`
}

type ProfileResponse struct {
	AccountID       uuid.UUID `json:"accountId"`
	BusinessName    string    `json:"businessName"`
	Bio             string    `json:"bio"`
	Regions         []string  `json:"regions"`
	Specialties     []string  `json:"specialties"`
	Latitude        *float64  `json:"latitude,omitempty"`
	Longitude       *float64  `json:"longitude,omitempty"`
	Available       bool      `json:"available"`
	Verified        bool      `json:"verified"`
	PriorityListing bool      `json:"priorityListing"`
	Rating          float64   `json:"rating"`
	RatingCount     int       `json:"ratingCount"`
	CompletedJobs   int       `json:"completedJobs"`
}

func ToProfileResponse(p *repository.ProviderProfile) ProfileResponse {
	return ProfileResponse{
		AccountID:       p.AccountID,
		BusinessName:    p.BusinessName,
		Bio:             p.Bio,
		Regions:         p.Regions,
		Specialties:     p.Specialties,
		Latitude:        p.Latitude,
		Longitude:       p.Longitude,
		Available:       p.Available,
		Verified:        p.Verified,
		PriorityListing: p.PriorityListing,
		Rating:          p.Rating,
		RatingCount:     p.RatingCount,
		CompletedJobs:   p.CompletedJobs,
	}
}

type AvailabilityRequest struct {
	Available bool `json:"available"`
}

type VerifyProviderRequest struct {
	Verified        bool `json:"verified"`
	PriorityListing bool `json:"priorityListing"`
}

type VehicleRequest struct {
	Make  string `json:"make" binding:"required,max=64"`
	Model string `json:"model" binding:"required,max=64"`
	Year  int    `json:"year" binding:"required,min=1950,max=2100"`
	Plate string `json:"plate" binding:"required,max=16"`
}

type VehicleResponse struct {
	ID        uuid.UUID `json:"id"`
	Make      string    `json:"make"`
	Model     string    `json:"model"`
	Year      int       `json:"year"`
	Plate     string    `json:"plate"`
	IsPrimary bool      `json:"isPrimary"`
	CreatedAt time.Time `json:"createdAt"`
}

func ToVehicleResponse(v *repository.Vehicle) VehicleResponse {
	return VehicleResponse{
		ID:        v.ID,
		Make:      v.Make,
		Model:     v.Model,
		Year:      v.Year,
		Plate:     v.Plate,
		IsPrimary: v.IsPrimary,
		CreatedAt: v.CreatedAt,
	}
}
