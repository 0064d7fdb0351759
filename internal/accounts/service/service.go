package service

import (
	"context"
	"strings"
	"time"

	"driveassist_backend/internal/accounts/password"
	"driveassist_backend/internal/accounts/repository"
	"driveassist_backend/internal/accounts/token"
	"driveassist_backend/internal/events"
	"driveassist_backend/platform/apperr"
	"driveassist_backend/platform/config"
	"driveassist_backend/platform/logger"
	"driveassist_backend/platform/phone"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	accessTokenType = "access"
)

// AllowanceProvisioner seeds the credit meters of a fresh account.
type AllowanceProvisioner interface {
	Provision(ctx context.Context, accountID uuid.UUID) error
}

// EventBus publishes domain events.
type EventBus interface {
	Publish(ctx context.Context, event events.Event)
}

type Service struct {
	repo        *repository.Repository
	cfg         config.AuthServiceConfig
	provisioner AllowanceProvisioner
	bus         EventBus
	logger      *logger.Logger
}

func New(repo *repository.Repository, cfg config.AuthServiceConfig, provisioner AllowanceProvisioner, bus EventBus, log *logger.Logger) *Service {
	return &Service{repo: repo, cfg: cfg, provisioner: provisioner, bus: bus, logger: log}
}

// RegisterInput carries validated registration data from the handler.
type RegisterInput struct {
	Role     repository.Role
	Email    string
	Phone    string
	Password string
	FullName string
}

// TokenPair is the result of a successful sign-in or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccountID    uuid.UUID
	Role         repository.Role
}

// Register creates the account, provisions its credit meters and, for
// providers, an empty profile awaiting completion.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*repository.Account, error) {
	if !in.Role.Valid() {
		return nil, apperr.Validation("role must be requester or provider")
	}

	normalized := phone.NormalizeE164(in.Phone)

	hash, err := password.Hash(in.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to hash password", err)
	}

	account := &repository.Account{
		ID:           uuid.New(),
		Role:         in.Role,
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:        normalized,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(in.FullName),
	}

	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	if err := s.provisioner.Provision(ctx, account.ID); err != nil {
		return nil, err
	}

	if in.Role == repository.RoleProvider {
		if err := s.repo.EnsureProfile(ctx, account.ID); err != nil {
			return nil, err
		}
	}

	s.bus.Publish(ctx, events.AccountRegistered{
		BaseEvent: events.NewBaseEvent(),
		AccountID: account.ID,
		Role:      string(account.Role),
		Email:     account.Email,
	})

	s.logger.AuthEvent("register", account.Email, true, "")
	return account, nil
}

// Login verifies credentials and issues an access/refresh token pair.
func (s *Service) Login(ctx context.Context, email, plainPassword string) (*TokenPair, error) {
	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		s.logger.AuthEvent("login", email, false, "unknown email")
		return nil, apperr.Unauthorized("invalid credentials")
	}

	if err := password.Compare(account.PasswordHash, plainPassword); err != nil {
		s.logger.AuthEvent("login", email, false, "wrong password")
		return nil, apperr.Unauthorized("invalid credentials")
	}

	if err := s.repo.TouchLastLogin(ctx, account.ID); err != nil {
		s.logger.Error("failed to record login time", "error", err)
	}

	s.logger.AuthEvent("login", email, true, "")
	return s.issueTokens(ctx, account)
}

// Refresh rotates a refresh token and issues a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	hash := token.HashSHA256(refreshToken)
	accountID, expiresAt, err := s.repo.GetRefreshToken(ctx, hash)
	if err != nil {
		return nil, err
	}

	if time.Now().After(expiresAt) {
		_ = s.repo.RevokeRefreshToken(ctx, hash)
		return nil, apperr.Unauthorized("refresh token expired")
	}

	if err := s.repo.RevokeRefreshToken(ctx, hash); err != nil {
		return nil, err
	}

	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, account)
}

// Logout revokes the presented refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.repo.RevokeRefreshToken(ctx, token.HashSHA256(refreshToken))
}

func (s *Service) issueTokens(ctx context.Context, account *repository.Account) (*TokenPair, error) {
	claims := jwt.MapClaims{
		"sub":  account.ID.String(),
		"role": string(account.Role),
		"type": accessTokenType,
		"exp":  time.Now().Add(s.cfg.GetAccessTokenTTL()).Unix(),
		"iat":  time.Now().Unix(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.cfg.GetJWTAccessSecret()))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to sign access token", err)
	}

	refreshToken, err := token.GenerateRandomToken(48)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to generate refresh token", err)
	}

	expiresAt := time.Now().Add(s.cfg.GetRefreshTokenTTL())
	if err := s.repo.CreateRefreshToken(ctx, account.ID, token.HashSHA256(refreshToken), expiresAt); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccountID:    account.ID,
		Role:         account.Role,
	}, nil
}

// GetMe returns the account for the authenticated identity.
func (s *Service) GetMe(ctx context.Context, accountID uuid.UUID) (*repository.Account, error) {
	return s.repo.GetByID(ctx, accountID)
}

// ProfileInput is the editable subset of a provider profile.
type ProfileInput struct {
	BusinessName string
	Bio          string
	Regions      []string
	Specialties  []string
	Latitude     *float64
	Longitude    *float64
	Available    bool
}

func (s *Service) GetProfile(ctx context.Context, accountID uuid.UUID) (*repository.ProviderProfile, error) {
	return s.repo.GetProfile(ctx, accountID)
}

func (s *Service) UpdateProfile(ctx context.Context, accountID uuid.UUID, in ProfileInput) (*repository.ProviderProfile, error) {
	profile, err := s.repo.GetProfile(ctx, accountID)
	if err != nil {
		return nil, err
	}

	profile.BusinessName = strings.TrimSpace(in.BusinessName)
	profile.Bio = strings.TrimSpace(in.Bio)
	profile.Regions = in.Regions
	profile.Specialties = in.Specialties
	profile.Latitude = in.Latitude
	profile.Longitude = in.Longitude
	profile.Available = in.Available

	if err := s.repo.UpdateProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *Service) SetAvailability(ctx context.Context, accountID uuid.UUID, available bool) error {
	return s.repo.SetAvailability(ctx, accountID, available)
}

// VerifyProvider is the admin KYC action.
func (s *Service) VerifyProvider(ctx context.Context, accountID uuid.UUID, verified, priority bool) error {
	return s.repo.SetVerification(ctx, accountID, verified, priority)
}

// VehicleInput carries validated vehicle data from the handler.
type VehicleInput struct {
	Make  string
	Model string
	Year  int
	Plate string
}

// AddVehicle registers a vehicle; the first vehicle becomes primary.
func (s *Service) AddVehicle(ctx context.Context, accountID uuid.UUID, in VehicleInput) (*repository.Vehicle, error) {
	existing, err := s.repo.ListVehicles(ctx, accountID)
	if err != nil {
		return nil, err
	}

	vehicle := &repository.Vehicle{
		ID:        uuid.New(),
		AccountID: accountID,
		Make:      strings.TrimSpace(in.Make),
		Model:     strings.TrimSpace(in.Model),
		Year:      in.Year,
		Plate:     strings.ToUpper(strings.TrimSpace(in.Plate)),
		IsPrimary: len(existing) == 0,
	}
	if err := s.repo.InsertVehicle(ctx, vehicle); err != nil {
		return nil, err
	}
	return vehicle, nil
}

func (s *Service) ListVehicles(ctx context.Context, accountID uuid.UUID) ([]repository.Vehicle, error) {
	return s.repo.ListVehicles(ctx, accountID)
}

func (s *Service) SetPrimaryVehicle(ctx context.Context, accountID, vehicleID uuid.UUID) error {
	return s.repo.SetPrimaryVehicle(ctx, accountID, vehicleID)
}

func (s *Service) RemoveVehicle(ctx context.Context, accountID, vehicleID uuid.UUID) error {
	return s.repo.DeleteVehicle(ctx, accountID, vehicleID)
}
