package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres reads the directory tables replicated into the booking database.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates the in-process directory adapter.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Patient(ctx context.Context, id uuid.UUID) (Patient, error) {
	var out Patient
	err := p.pool.QueryRow(ctx, `SELECT id, full_name FROM patients WHERE id = $1`, id).
		Scan(&out.ID, &out.FullName)
	return out, mapRowErr("patient", err)
}

func (p *Postgres) Doctor(ctx context.Context, id uuid.UUID) (Doctor, error) {
	var out Doctor
	err := p.pool.QueryRow(ctx, `
		SELECT id, full_name, self_employed_fee_cents, is_verified, is_available
		FROM doctors WHERE id = $1`, id).
		Scan(&out.ID, &out.FullName, &out.SelfEmployedFeeCents, &out.IsVerified, &out.IsAvailable)
	return out, mapRowErr("doctor", err)
}

func (p *Postgres) Hospital(ctx context.Context, id uuid.UUID) (Hospital, error) {
	var out Hospital
	err := p.pool.QueryRow(ctx, `SELECT id, name FROM hospitals WHERE id = $1`, id).
		Scan(&out.ID, &out.Name)
	return out, mapRowErr("hospital", err)
}

func (p *Postgres) Specialty(ctx context.Context, id uuid.UUID) (Specialty, error) {
	var out Specialty
	err := p.pool.QueryRow(ctx, `SELECT id, name FROM specialties WHERE id = $1`, id).
		Scan(&out.ID, &out.Name)
	return out, mapRowErr("specialty", err)
}

func (p *Postgres) HospitalDoctors(ctx context.Context, hospitalID uuid.UUID) ([]Association, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT doctor_id, hospital_id, consultation_fee_cents, status
		FROM hospital_doctors WHERE hospital_id = $1
		ORDER BY doctor_id`, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hospital doctors: %w: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	items := make([]Association, 0)
	for rows.Next() {
		var a Association
		if err := rows.Scan(&a.DoctorID, &a.HospitalID, &a.ConsultationFeeCents, &a.Status); err != nil {
			return nil, fmt.Errorf("failed to scan hospital doctor: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate hospital doctors: %w: %w", ErrUnavailable, err)
	}
	return items, nil
}

func mapRowErr(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("failed to load %s: %w: %w", what, ErrUnavailable, err)
}
