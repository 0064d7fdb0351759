package repository

import (
	"context"
	"errors"
	"fmt"

	"driveassist_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, requester_id, vehicle_id, status, complaint, region, summary,
	probable_causes, recommended_actions, urgency, specialty, confidence, lead_count, created_at, updated_at`

func (r *Repository) Insert(ctx context.Context, d *Diagnosis) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO diagnoses (id, requester_id, vehicle_id, status, complaint, region, summary,
		   probable_causes, recommended_actions, urgency, specialty, confidence, lead_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 0, now(), now())`,
		d.ID, d.RequesterID, d.VehicleID, d.Status, d.Complaint, d.Region, d.Summary,
		d.ProbableCauses, d.RecommendedActions, d.Urgency, d.Specialty, d.Confidence,
	)
	if err != nil {
		return fmt.Errorf("failed to insert diagnosis: %w", err)
	}
	return nil
}

// MarkCompleted flips a dispatching diagnosis to completed and records how
// many leads went out.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, leadCount int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE diagnoses SET status = 'completed', lead_count = $2, updated_at = now()
		 WHERE id = $1 AND status = 'dispatching'`,
		id, leadCount,
	)
	if err != nil {
		return fmt.Errorf("failed to complete diagnosis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("diagnosis not found")
	}
	return nil
}

// Delete removes a diagnosis whose dispatch failed, as compensation.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM diagnoses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete diagnosis: %w", err)
	}
	return nil
}

// GetByID returns a diagnosis that has left the dispatching state.
// Dispatching rows stay hidden until the fan-out settles.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Diagnosis, error) {
	var d Diagnosis
	err := r.pool.QueryRow(ctx,
		`SELECT `+columns+` FROM diagnoses WHERE id = $1 AND status <> 'dispatching'`, id,
	).Scan(&d.ID, &d.RequesterID, &d.VehicleID, &d.Status, &d.Complaint, &d.Region, &d.Summary,
		&d.ProbableCauses, &d.RecommendedActions, &d.Urgency, &d.Specialty, &d.Confidence, &d.LeadCount, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("diagnosis not found")
		}
		return nil, fmt.Errorf("failed to get diagnosis: %w", err)
	}
	return &d, nil
}

func (r *Repository) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]Diagnosis, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+columns+` FROM diagnoses
		 WHERE requester_id = $1 AND status <> 'dispatching'
		 ORDER BY created_at DESC`,
		requesterID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list diagnoses: %w", err)
	}
	defer rows.Close()

	var items []Diagnosis
	for rows.Next() {
		var d Diagnosis
		if err := rows.Scan(&d.ID, &d.RequesterID, &d.VehicleID, &d.Status, &d.Complaint, &d.Region, &d.Summary,
			&d.ProbableCauses, &d.RecommendedActions, &d.Urgency, &d.Specialty, &d.Confidence, &d.LeadCount, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan diagnosis: %w", err)
		}
		items = append(items, d)
	}
	return items, rows.Err()
}
