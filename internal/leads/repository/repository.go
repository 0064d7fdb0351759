package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"driveassist_backend/internal/leads/domain"
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

const leadColumns = `id, diagnosis_id, requester_id, provider_id, status, is_preview,
	viewed_at, contacted_at, converted_at, closed_at, close_reason, created_at, updated_at`

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.DiagnosisID, &l.RequesterID, &l.ProviderID, &l.Status, &l.IsPreview,
		&l.ViewedAt, &l.ContactedAt, &l.ConvertedAt, &l.ClosedAt, &l.CloseReason, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("lead not found")
		}
		return nil, fmt.Errorf("failed to scan lead: %w", err)
	}
	return &l, nil
}

func (r *Repository) Insert(ctx context.Context, l *Lead) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO leads (id, diagnosis_id, requester_id, provider_id, status, is_preview, close_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, '', now(), now())`,
		l.ID, l.DiagnosisID, l.RequesterID, l.ProviderID, l.Status, l.IsPreview,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lead: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	return scanLead(row)
}

func (r *Repository) ListByProvider(ctx context.Context, providerID uuid.UUID, status domain.Status) ([]Lead, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE provider_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC`,
		providerID, status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	return collectLeads(rows)
}

func (r *Repository) ListByDiagnosis(ctx context.Context, diagnosisID uuid.UUID) ([]Lead, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE diagnosis_id = $1 ORDER BY created_at ASC`,
		diagnosisID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	return collectLeads(rows)
}

func collectLeads(rows pgx.Rows) ([]Lead, error) {
	defer rows.Close()

	var items []Lead
	for rows.Next() {
		var l Lead
		if err := rows.Scan(&l.ID, &l.DiagnosisID, &l.RequesterID, &l.ProviderID, &l.Status, &l.IsPreview,
			&l.ViewedAt, &l.ContactedAt, &l.ConvertedAt, &l.ClosedAt, &l.CloseReason, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

// UpdateStatusFrom advances the lead only when it still sits at the expected
// status. A concurrent transition makes the guard fail, which distinguishes a
// lost race from a missing row.
func (r *Repository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, from, to domain.Status, at time.Time, closeReason string) (*Lead, error) {
	stampColumn := ""
	switch to {
	case domain.StatusViewed:
		stampColumn = "viewed_at"
	case domain.StatusContacted:
		stampColumn = "contacted_at"
	case domain.StatusConverted:
		stampColumn = "converted_at"
	case domain.StatusClosed:
		stampColumn = "closed_at"
	default:
		return nil, apperr.Validation(fmt.Sprintf("unknown lead status %q", to))
	}

	// Timestamps are set once; COALESCE keeps an already recorded stamp.
	query := fmt.Sprintf(
		`UPDATE leads
		 SET status = $3, %s = COALESCE(%s, $4), close_reason = CASE WHEN $3 = 'closed' THEN $5 ELSE close_reason END, updated_at = now()
		 WHERE id = $1 AND status = $2
		 RETURNING `+leadColumns,
		stampColumn, stampColumn,
	)

	row := r.pool.QueryRow(ctx, query, id, from, to, at, closeReason)
	lead, err := scanLead(row)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.InvalidTransition(fmt.Sprintf("lead is no longer %s", from))
		}
		return nil, err
	}
	return lead, nil
}

// ClearPreview unmasks a preview lead after the provider pays for it. The
// guard on is_preview makes a double unlock fail instead of double charging.
func (r *Repository) ClearPreview(ctx context.Context, id, providerID uuid.UUID) (*Lead, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE leads SET is_preview = false, updated_at = now()
		 WHERE id = $1 AND provider_id = $2 AND is_preview = true
		 RETURNING `+leadColumns,
		id, providerID,
	)
	lead, err := scanLead(row)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Conflict("lead is not a locked preview")
		}
		return nil, err
	}
	return lead, nil
}

// AppendActivity writes one entry to the append-only log.
func (r *Repository) AppendActivity(ctx context.Context, a *Activity) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO lead_activities (id, lead_id, actor_id, action, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())`,
		a.ID, a.LeadID, a.ActorID, a.Action, a.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to append lead activity: %w", err)
	}
	return nil
}

func (r *Repository) ListActivities(ctx context.Context, leadID uuid.UUID) ([]Activity, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, lead_id, actor_id, action, note, created_at
		 FROM lead_activities WHERE lead_id = $1 ORDER BY created_at ASC`,
		leadID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list lead activities: %w", err)
	}
	defer rows.Close()

	var items []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.LeadID, &a.ActorID, &a.Action, &a.Note, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lead activity: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
