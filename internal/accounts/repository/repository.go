package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"driveassist_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, role, email, phone, password_hash, full_name, last_login_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Role, &a.Email, &a.Phone, &a.PasswordHash, &a.FullName, &a.LastLoginAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("account not found")
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}

func (r *Repository) CreateAccount(ctx context.Context, a *Account) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accounts (id, role, email, phone, password_hash, full_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		a.ID, a.Role, a.Email, a.Phone, a.PasswordHash, a.FullName,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("an account with this email already exists")
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
	return scanAccount(row)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (r *Repository) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE accounts SET last_login_at = now(), updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to touch last login: %w", err)
	}
	return nil
}

const profileColumns = `account_id, business_name, bio, regions, specialties, latitude, longitude,
	available, verified, priority_listing, rating, rating_count, completed_jobs, created_at, updated_at`

func scanProfile(row pgx.Row) (*ProviderProfile, error) {
	var p ProviderProfile
	err := row.Scan(&p.AccountID, &p.BusinessName, &p.Bio, &p.Regions, &p.Specialties,
		&p.Latitude, &p.Longitude, &p.Available, &p.Verified, &p.PriorityListing,
		&p.Rating, &p.RatingCount, &p.CompletedJobs, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("provider profile not found")
		}
		return nil, fmt.Errorf("failed to scan provider profile: %w", err)
	}
	return &p, nil
}

// EnsureProfile creates an empty profile row for a newly registered provider.
func (r *Repository) EnsureProfile(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO provider_profiles (account_id, business_name, bio, regions, specialties, created_at, updated_at)
		 VALUES ($1, '', '', '{}', '{}', now(), now())
		 ON CONFLICT (account_id) DO NOTHING`,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure provider profile: %w", err)
	}
	return nil
}

func (r *Repository) GetProfile(ctx context.Context, accountID uuid.UUID) (*ProviderProfile, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM provider_profiles WHERE account_id = $1`, accountID)
	return scanProfile(row)
}

func (r *Repository) UpdateProfile(ctx context.Context, p *ProviderProfile) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE provider_profiles
		 SET business_name = $2, bio = $3, regions = $4, specialties = $5,
		     latitude = $6, longitude = $7, available = $8, updated_at = now()
		 WHERE account_id = $1`,
		p.AccountID, p.BusinessName, p.Bio, p.Regions, p.Specialties,
		p.Latitude, p.Longitude, p.Available,
	)
	if err != nil {
		return fmt.Errorf("failed to update provider profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("provider profile not found")
	}
	return nil
}

func (r *Repository) SetAvailability(ctx context.Context, accountID uuid.UUID, available bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE provider_profiles SET available = $2, updated_at = now() WHERE account_id = $1`,
		accountID, available,
	)
	if err != nil {
		return fmt.Errorf("failed to set availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("provider profile not found")
	}
	return nil
}

// SetVerification is an admin action flipping KYC status and priority listing.
func (r *Repository) SetVerification(ctx context.Context, accountID uuid.UUID, verified, priority bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE provider_profiles SET verified = $2, priority_listing = $3, updated_at = now()
		 WHERE account_id = $1`,
		accountID, verified, priority,
	)
	if err != nil {
		return fmt.Errorf("failed to set verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("provider profile not found")
	}
	return nil
}

// IncrementCompletedJobs bumps the counter used for match ordering. Called
// when a lead converts or an appointment completes.
func (r *Repository) IncrementCompletedJobs(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE provider_profiles SET completed_jobs = completed_jobs + 1, updated_at = now()
		 WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to increment completed jobs: %w", err)
	}
	return nil
}

// AddRating folds a new rating into the running average.
func (r *Repository) AddRating(ctx context.Context, accountID uuid.UUID, stars int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE provider_profiles
		 SET rating = (rating * rating_count + $2) / (rating_count + 1),
		     rating_count = rating_count + 1,
		     updated_at = now()
		 WHERE account_id = $1`,
		accountID, stars,
	)
	if err != nil {
		return fmt.Errorf("failed to add rating: %w", err)
	}
	return nil
}

// ListCandidates returns available verified providers serving a region,
// optionally filtered by specialty. Ordering happens in the caller.
func (r *Repository) ListCandidates(ctx context.Context, region, specialty string) ([]ProviderProfile, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+profileColumns+`
		 FROM provider_profiles
		 WHERE available = true AND verified = true
		   AND ($1 = '' OR $1 = ANY(regions))
		   AND ($2 = '' OR $2 = ANY(specialties))`,
		region, specialty,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider candidates: %w", err)
	}
	defer rows.Close()

	var items []ProviderProfile
	for rows.Next() {
		var p ProviderProfile
		if err := rows.Scan(&p.AccountID, &p.BusinessName, &p.Bio, &p.Regions, &p.Specialties,
			&p.Latitude, &p.Longitude, &p.Available, &p.Verified, &p.PriorityListing,
			&p.Rating, &p.RatingCount, &p.CompletedJobs, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan provider candidate: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const vehicleColumns = `id, account_id, make, model, year, plate, is_primary, created_at, updated_at`

func (r *Repository) InsertVehicle(ctx context.Context, v *Vehicle) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO vehicles (id, account_id, make, model, year, plate, is_primary, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())`,
		v.ID, v.AccountID, v.Make, v.Model, v.Year, v.Plate, v.IsPrimary,
	)
	if err != nil {
		return fmt.Errorf("failed to insert vehicle: %w", err)
	}
	return nil
}

func (r *Repository) ListVehicles(ctx context.Context, accountID uuid.UUID) ([]Vehicle, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE account_id = $1 ORDER BY created_at ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	defer rows.Close()

	var items []Vehicle
	for rows.Next() {
		var v Vehicle
		if err := rows.Scan(&v.ID, &v.AccountID, &v.Make, &v.Model, &v.Year, &v.Plate,
			&v.IsPrimary, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

func (r *Repository) GetVehicle(ctx context.Context, accountID, vehicleID uuid.UUID) (*Vehicle, error) {
	var v Vehicle
	err := r.pool.QueryRow(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1 AND account_id = $2`,
		vehicleID, accountID,
	).Scan(&v.ID, &v.AccountID, &v.Make, &v.Model, &v.Year, &v.Plate, &v.IsPrimary, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("vehicle not found")
		}
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return &v, nil
}

// SetPrimaryVehicle flips the primary flag to the given vehicle and clears it
// on every other vehicle of the account in one statement, so two concurrent
// calls can never leave two primaries behind.
func (r *Repository) SetPrimaryVehicle(ctx context.Context, accountID, vehicleID uuid.UUID) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM vehicles WHERE id = $1 AND account_id = $2)`,
			vehicleID, accountID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check vehicle ownership: %w", err)
		}
		if !exists {
			return apperr.NotFound("vehicle not found")
		}

		_, err = tx.Exec(ctx,
			`UPDATE vehicles SET is_primary = (id = $2), updated_at = now() WHERE account_id = $1`,
			accountID, vehicleID,
		)
		if err != nil {
			return fmt.Errorf("failed to set primary vehicle: %w", err)
		}
		return nil
	})
}

func (r *Repository) DeleteVehicle(ctx context.Context, accountID, vehicleID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM vehicles WHERE id = $1 AND account_id = $2`,
		vehicleID, accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete vehicle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("vehicle not found")
	}
	return nil
}

// Refresh tokens are stored hashed; the raw token never touches the database.

func (r *Repository) CreateRefreshToken(ctx context.Context, accountID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (token_hash, account_id, expires_at, created_at)
		 VALUES ($1, $2, $3, now())`,
		tokenHash, accountID, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

func (r *Repository) GetRefreshToken(ctx context.Context, tokenHash string) (uuid.UUID, time.Time, error) {
	var accountID uuid.UUID
	var expiresAt time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT account_id, expires_at FROM refresh_tokens WHERE token_hash = $1 AND revoked_at IS NULL`,
		tokenHash,
	).Scan(&accountID, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, time.Time{}, apperr.Unauthorized("invalid refresh token")
		}
		return uuid.Nil, time.Time{}, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return accountID, expiresAt, nil
}

func (r *Repository) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE token_hash = $1 AND revoked_at IS NULL`,
		tokenHash,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (r *Repository) RevokeAllRefreshTokens(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE account_id = $1 AND revoked_at IS NULL`,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
