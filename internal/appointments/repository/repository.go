package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clinicbook_backend/internal/appointments/domain"
	"clinicbook_backend/internal/notification/outbox"
	"clinicbook_backend/platform/apperr"
	"clinicbook_backend/platform/events"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	appointmentNotFoundMsg = "appointment not found"
	// SlotTakenMsg is returned when the doctor already holds an active booking
	// at the requested date and time.
	SlotTakenMsg = "doctor already has an appointment at this date and time"

	activeSlotIndex = "appointments_active_slot_key"
	numberUniqueKey = "appointments_number_key"
	uniqueViolation = "23505"

	// numberCounter is the appointment_counters row behind appointment numbers.
	numberCounter = "appointment_number"
)

// TxStore is the set of writes that run inside one booking transaction.
type TxStore interface {
	// NextAppointmentNumber advances the number counter. The counter row stays
	// locked until the transaction ends and a rollback undoes the increment.
	NextAppointmentNumber(ctx context.Context) (int64, error)
	HasActiveConflict(ctx context.Context, doctorID uuid.UUID, date, clock string, excludeID *uuid.UUID) (bool, error)
	Insert(ctx context.Context, appt *domain.Appointment) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Appointment, error)
	Update(ctx context.Context, appt *domain.Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	EnqueueEvent(ctx context.Context, env events.Envelope, patientID *uuid.UUID) error
}

// Repository provides database operations for appointments
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new appointments repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// InTx runs fn in a transaction. The transaction commits only when fn
// returns nil; any error, panic or ctx deadline rolls it back.
func (r *Repository) InTx(ctx context.Context, fn func(tx TxStore) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapWriteError(err, "commit appointment transaction")
	}
	return nil
}

const selectColumns = `id, appointment_number, patient_id, doctor_id, hospital_id, specialty_id,
	to_char(appointment_date, 'YYYY-MM-DD'), to_char(appointment_time, 'HH24:MI'), duration_minutes,
	status, consultation_type, consultation_fee, payment_status, reason, description, notes,
	cancelled_by, cancelled_at, cancellation_reason, completed_at, created_by, created_at, updated_at`

func scanAppointment(row pgx.Row) (*domain.Appointment, error) {
	var (
		appt             domain.Appointment
		status           string
		consultationType string
		paymentStatus    string
		cancelledBy      *string
		createdBy        string
	)
	err := row.Scan(
		&appt.ID, &appt.Number, &appt.PatientID, &appt.DoctorID, &appt.HospitalID, &appt.SpecialtyID,
		&appt.Date, &appt.Time, &appt.DurationMinutes,
		&status, &consultationType, &appt.ConsultationFeeCents, &paymentStatus,
		&appt.Reason, &appt.Description, &appt.Notes,
		&cancelledBy, &appt.CancelledAt, &appt.CancellationReason, &appt.CompletedAt,
		&createdBy, &appt.CreatedAt, &appt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	appt.Status = domain.Status(status)
	appt.ConsultationType = domain.ConsultationType(consultationType)
	appt.PaymentStatus = domain.PaymentStatus(paymentStatus)
	appt.CreatedBy = domain.Creator(createdBy)
	if cancelledBy != nil {
		actor := domain.Actor(*cancelledBy)
		appt.CancelledBy = &actor
	}
	return &appt, nil
}

func getByID(ctx context.Context, q queryer, id uuid.UUID, forUpdate bool) (*domain.Appointment, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	appt, err := scanAppointment(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(appointmentNotFoundMsg).WithDetails(map[string]any{"id": id})
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return appt, nil
}

// GetByID retrieves an appointment by its ID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	return getByID(ctx, r.pool, id, false)
}

// BookedTimes returns the HH:MM start times of the doctor's active bookings
// on date.
func (r *Repository) BookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT to_char(appointment_time, 'HH24:MI') FROM appointments
		 WHERE doctor_id = $1 AND appointment_date = $2::date AND status <> ALL($3)
		 ORDER BY appointment_time`,
		doctorID, date, inactiveStatuses(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list booked times: %w", err)
	}
	times, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan booked times: %w", err)
	}
	return times, nil
}

// ListParams contains parameters for listing appointments
type ListParams struct {
	PatientID     *uuid.UUID
	DoctorID      *uuid.UUID
	HospitalID    *uuid.UUID
	Status        *string
	PaymentStatus *string
	DateFrom      *string
	DateTo        *string
	SortBy        string
	SortOrder     string
	Page          int
	PageSize      int
}

// ListResult contains the result of listing appointments
type ListResult struct {
	Items      []domain.Appointment
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

var sortColumns = map[string][]string{
	"appointmentNumber": {"appointment_number"},
	"appointmentDate":   {"appointment_date", "appointment_time"},
	"status":            {"status"},
	"paymentStatus":     {"payment_status"},
	"consultationFee":   {"consultation_fee"},
	"createdAt":         {"created_at"},
	"updatedAt":         {"updated_at"},
}

// List retrieves appointments with optional filtering
func (r *Repository) List(ctx context.Context, params ListParams) (*ListResult, error) {
	baseQuery := `FROM appointments WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	addFilter(&baseQuery, &args, &argIndex, params.PatientID != nil, " AND patient_id = $%d", derefUUID(params.PatientID))
	addFilter(&baseQuery, &args, &argIndex, params.DoctorID != nil, " AND doctor_id = $%d", derefUUID(params.DoctorID))
	addFilter(&baseQuery, &args, &argIndex, params.HospitalID != nil, " AND hospital_id = $%d", derefUUID(params.HospitalID))
	addFilter(&baseQuery, &args, &argIndex, params.Status != nil, " AND status = $%d", derefString(params.Status))
	addFilter(&baseQuery, &args, &argIndex, params.PaymentStatus != nil, " AND payment_status = $%d", derefString(params.PaymentStatus))
	addFilter(&baseQuery, &args, &argIndex, params.DateFrom != nil, " AND appointment_date >= $%d::date", derefString(params.DateFrom))
	addFilter(&baseQuery, &args, &argIndex, params.DateTo != nil, " AND appointment_date <= $%d::date", derefString(params.DateTo))

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count appointments: %w", err)
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 20
	}
	totalPages := (total + params.PageSize - 1) / params.PageSize
	offset := (params.Page - 1) * params.PageSize

	orderBy := sortColumns["appointmentDate"]
	if params.SortBy != "" {
		col, ok := sortColumns[params.SortBy]
		if !ok {
			return nil, apperr.BadRequest("invalid sort field")
		}
		orderBy = col
	}
	sortDir := "ASC"
	switch params.SortOrder {
	case "", "asc":
	case "desc":
		sortDir = "DESC"
	default:
		return nil, apperr.BadRequest("invalid sort order")
	}

	order := make([]string, 0, len(orderBy)+1)
	for _, col := range append(orderBy, "appointment_number") {
		order = append(order, col+" "+sortDir)
	}
	selectQuery := fmt.Sprintf(`SELECT %s %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		selectColumns, baseQuery, strings.Join(order, ", "), argIndex, argIndex+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Appointment, 0)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		items = append(items, *appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}

	return &ListResult{
		Items:      items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
	}, nil
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) NextAppointmentNumber(ctx context.Context) (int64, error) {
	var next int64
	err := s.tx.QueryRow(ctx, `
		INSERT INTO appointment_counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = appointment_counters.value + 1
		RETURNING value`, numberCounter).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate appointment number: %w", err)
	}
	return next, nil
}

func (s *txStore) HasActiveConflict(ctx context.Context, doctorID uuid.UUID, date, clock string, excludeID *uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2::date AND appointment_time = $3::time
		  AND status <> ALL($4)`
	args := []interface{}{doctorID, date, clock, inactiveStatuses()}
	if excludeID != nil {
		query += ` AND id <> $5`
		args = append(args, *excludeID)
	}
	query += `)`

	var exists bool
	if err := s.tx.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check slot conflict: %w", err)
	}
	return exists, nil
}

func (s *txStore) Insert(ctx context.Context, appt *domain.Appointment) error {
	_, err := s.tx.Exec(ctx, `
		INSERT INTO appointments (
			id, appointment_number, patient_id, doctor_id, hospital_id, specialty_id,
			appointment_date, appointment_time, duration_minutes, status, consultation_type,
			consultation_fee, payment_status, reason, description, notes, created_by, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7::date, $8::time, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)`,
		appt.ID, appt.Number, appt.PatientID, appt.DoctorID, appt.HospitalID, appt.SpecialtyID,
		appt.Date, appt.Time, appt.DurationMinutes, string(appt.Status), string(appt.ConsultationType),
		appt.ConsultationFeeCents, string(appt.PaymentStatus), appt.Reason, appt.Description, appt.Notes,
		string(appt.CreatedBy), appt.CreatedAt, appt.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, "create appointment")
	}
	return nil
}

func (s *txStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Appointment, error) {
	return getByID(ctx, s.tx, id, true)
}

func (s *txStore) Update(ctx context.Context, appt *domain.Appointment) error {
	var cancelledBy *string
	if appt.CancelledBy != nil {
		v := string(*appt.CancelledBy)
		cancelledBy = &v
	}
	result, err := s.tx.Exec(ctx, `
		UPDATE appointments SET
			doctor_id = $2,
			appointment_date = $3::date,
			appointment_time = $4::time,
			duration_minutes = $5,
			status = $6,
			consultation_type = $7,
			consultation_fee = $8,
			payment_status = $9,
			reason = $10,
			description = $11,
			notes = $12,
			cancelled_by = $13,
			cancelled_at = $14,
			cancellation_reason = $15,
			completed_at = $16,
			updated_at = $17
		WHERE id = $1`,
		appt.ID, appt.DoctorID, appt.Date, appt.Time, appt.DurationMinutes, string(appt.Status),
		string(appt.ConsultationType), appt.ConsultationFeeCents, string(appt.PaymentStatus),
		appt.Reason, appt.Description, appt.Notes, cancelledBy, appt.CancelledAt,
		appt.CancellationReason, appt.CompletedAt, appt.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, "update appointment")
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(appointmentNotFoundMsg)
	}
	return nil
}

func (s *txStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(appointmentNotFoundMsg)
	}
	return nil
}

func (s *txStore) EnqueueEvent(ctx context.Context, env events.Envelope, patientID *uuid.UUID) error {
	return outbox.Insert(ctx, s.tx, env, patientID)
}

// mapWriteError turns unique violations on the slot and number indexes into
// Conflict; everything else is wrapped as a storage failure.
func mapWriteError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case activeSlotIndex:
			return apperr.Conflict(SlotTakenMsg)
		case numberUniqueKey:
			return apperr.Conflict("appointment number already allocated")
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func inactiveStatuses() []string {
	out := make([]string, 0, len(domain.InactiveStatuses))
	for _, s := range domain.InactiveStatuses {
		out = append(out, string(s))
	}
	return out
}

func addFilter(baseQuery *string, args *[]interface{}, argIndex *int, apply bool, clause string, value interface{}) {
	if !apply {
		return
	}
	*baseQuery += fmt.Sprintf(clause, *argIndex)
	*args = append(*args, value)
	*argIndex++
}

func derefUUID(value *uuid.UUID) uuid.UUID {
	if value == nil {
		return uuid.UUID{}
	}
	return *value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
