// Package service coordinates appointment bookings: reference validation and
// fee resolution before the transaction, then slot conflict detection, number
// allocation, the write and its outbox event inside it.
package service

import (
	"context"
	"fmt"
	"time"

	"clinicbook_backend/internal/appointments/domain"
	"clinicbook_backend/internal/appointments/repository"
	"clinicbook_backend/internal/appointments/transport"
	"clinicbook_backend/internal/directory"
	"clinicbook_backend/platform/apperr"
	"clinicbook_backend/platform/events"
	"clinicbook_backend/platform/logger"
	"clinicbook_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	errAccessDenied      = "not allowed to access this appointment"
	errDoctorUnavailable = "doctor is not available for booking"
	errDoctorUnverified  = "doctor is not verified"
	errPatientIDRequired = "patientId is required"
	defaultListPageSize  = 20
	maxListPageSize      = 100
)

// Store is the appointment persistence used by the service.
type Store interface {
	InTx(ctx context.Context, fn func(tx repository.TxStore) error) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error)
	List(ctx context.Context, params repository.ListParams) (*repository.ListResult, error)
	BookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)
}

// Directory validates references to records owned by other services.
// *directory.Validator implements it.
type Directory interface {
	Patient(ctx context.Context, id uuid.UUID) (directory.Patient, error)
	Doctor(ctx context.Context, id uuid.UUID) (directory.Doctor, error)
	Hospital(ctx context.Context, id uuid.UUID) (directory.Hospital, error)
	Specialty(ctx context.Context, id uuid.UUID) (directory.Specialty, error)
	Association(ctx context.Context, hospitalID, doctorID uuid.UUID) (*directory.Association, error)
}

// Notifier is nudged after a commit that wrote an outbox event.
type Notifier interface {
	Notify()
}

// Settings carries the booking configuration.
type Settings struct {
	Location        *time.Location
	Grid            domain.Grid
	DefaultDuration int
}

// Service provides business logic for appointments
type Service struct {
	store    Store
	dir      Directory
	notifier Notifier
	settings Settings
	now      func() time.Time
	log      *logger.Logger
}

// New creates a new appointments service
func New(store Store, dir Directory, notifier Notifier, settings Settings, log *logger.Logger) *Service {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.Grid.Step <= 0 {
		settings.Grid = domain.DefaultGrid
	}
	if settings.DefaultDuration <= 0 {
		settings.DefaultDuration = domain.DefaultDurationMinutes
	}
	return &Service{
		store:    store,
		dir:      dir,
		notifier: notifier,
		settings: settings,
		now:      time.Now,
		log:      log,
	}
}

// Create books a new appointment.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, isAdmin bool, req transport.CreateAppointmentRequest) (*transport.AppointmentResponse, error) {
	patientID, createdBy, err := resolvePatient(userID, isAdmin, req.PatientID)
	if err != nil {
		return nil, err
	}
	if req.DoctorID == nil && req.HospitalID == nil {
		return nil, apperr.BadRequest("either doctorId or hospitalId is required")
	}

	now := s.now()
	start, err := domain.ParseSlot(req.AppointmentDate, req.AppointmentTime, s.settings.Location)
	if err != nil {
		return nil, err
	}
	if err := domain.RequireFuture(start, now); err != nil {
		return nil, err
	}

	fee, err := s.validateReferences(ctx, patientID, req.DoctorID, req.HospitalID, req.SpecialtyID)
	if err != nil {
		return nil, err
	}

	appt := &domain.Appointment{
		ID:                   uuid.New(),
		PatientID:            patientID,
		DoctorID:             req.DoctorID,
		HospitalID:           req.HospitalID,
		SpecialtyID:          req.SpecialtyID,
		Date:                 req.AppointmentDate,
		Time:                 req.AppointmentTime,
		DurationMinutes:      s.settings.DefaultDuration,
		Status:               domain.StatusPending,
		ConsultationType:     domain.ConsultationInPerson,
		ConsultationFeeCents: fee,
		PaymentStatus:        domain.PaymentPending,
		Reason:               sanitize.TextPtr(req.Reason),
		Description:          sanitize.TextPtr(req.Description),
		Notes:                sanitize.TextPtr(req.Notes),
		CreatedBy:            createdBy,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if req.Duration != nil {
		appt.DurationMinutes = *req.Duration
	}
	if req.ConsultationType != "" {
		appt.ConsultationType = domain.ConsultationType(req.ConsultationType)
	}

	err = s.store.InTx(ctx, func(tx repository.TxStore) error {
		number, err := tx.NextAppointmentNumber(ctx)
		if err != nil {
			return err
		}
		if err := checkSlot(ctx, tx, appt, nil); err != nil {
			return err
		}
		appt.Number = number
		if err := tx.Insert(ctx, appt); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, domain.EventCreated, appt, nil, nil)
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit()

	s.log.WithContext(ctx).Info("appointment created", "appointment_id", appt.ID.String(), "number", appt.Number)
	resp := transport.ToResponse(appt)
	return &resp, nil
}

// GetByID returns one appointment. Patients only see their own.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID, userID uuid.UUID, isAdmin bool) (*transport.AppointmentResponse, error) {
	appt, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureAccess(appt, userID, isAdmin); err != nil {
		return nil, err
	}
	resp := transport.ToResponse(appt)
	return &resp, nil
}

// Update applies a partial change: doctor reassignment, reschedule, status,
// payment and free text. Everything happens in one transaction; any failure
// leaves the appointment untouched.
func (s *Service) Update(ctx context.Context, id uuid.UUID, userID uuid.UUID, isAdmin bool, req transport.UpdateAppointmentRequest) (*transport.AppointmentResponse, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureAccess(current, userID, isAdmin); err != nil {
		return nil, err
	}
	if !isAdmin {
		if err := restrictPatientUpdate(&req); err != nil {
			return nil, err
		}
	}

	// A new doctor is validated and priced before the transaction opens.
	var reassignFee *int64
	if req.DoctorID != nil && !sameUUID(current.DoctorID, req.DoctorID) {
		if err := current.EnsureReschedulable(); err != nil {
			return nil, err
		}
		doctor, err := s.validateDoctor(ctx, *req.DoctorID)
		if err != nil {
			return nil, err
		}
		fee, err := s.resolveFee(ctx, current.HospitalID, req.DoctorID, &doctor)
		if err != nil {
			return nil, err
		}
		reassignFee = &fee
	}

	now := s.now()
	var (
		appt      *domain.Appointment
		eventType string
	)
	err = s.store.InTx(ctx, func(tx repository.TxStore) error {
		var err error
		appt, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		prev := appt.Status

		changes, err := s.apply(ctx, tx, appt, req, reassignFee, now)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}

		appt.UpdatedAt = now
		if err := tx.Update(ctx, appt); err != nil {
			return err
		}
		eventType = eventFor(prev, appt.Status)
		return s.enqueue(ctx, tx, eventType, appt, &prev, changes)
	})
	if err != nil {
		return nil, err
	}
	if eventType != "" {
		s.afterCommit()
		s.log.WithContext(ctx).Info("appointment updated", "appointment_id", appt.ID.String(), "event", eventType)
	}

	resp := transport.ToResponse(appt)
	return &resp, nil
}

// apply mutates appt according to req and returns the names of the changed
// fields.
func (s *Service) apply(ctx context.Context, tx repository.TxStore, appt *domain.Appointment, req transport.UpdateAppointmentRequest, reassignFee *int64, now time.Time) ([]string, error) {
	var changes []string
	slotMoved := false

	if reassignFee != nil && !sameUUID(appt.DoctorID, req.DoctorID) {
		if err := appt.EnsureReschedulable(); err != nil {
			return nil, err
		}
		doctorID := *req.DoctorID
		appt.DoctorID = &doctorID
		changes = append(changes, "doctorId")
		if appt.ConsultationFeeCents != *reassignFee {
			appt.ConsultationFeeCents = *reassignFee
			changes = append(changes, "consultationFee")
		}
		slotMoved = true
	}

	date, clock := appt.Date, appt.Time
	if req.AppointmentDate != nil {
		date = *req.AppointmentDate
	}
	if req.AppointmentTime != nil {
		clock = *req.AppointmentTime
	}
	if date != appt.Date || clock != appt.Time {
		if err := appt.EnsureReschedulable(); err != nil {
			return nil, err
		}
		start, err := domain.ParseSlot(date, clock, s.settings.Location)
		if err != nil {
			return nil, err
		}
		if err := domain.RequireFuture(start, now); err != nil {
			return nil, err
		}
		appt.Date, appt.Time = date, clock
		changes = append(changes, "appointmentDate", "appointmentTime")
		slotMoved = true
	}

	if slotMoved {
		if err := checkSlot(ctx, tx, appt, &appt.ID); err != nil {
			return nil, err
		}
	}

	if req.Duration != nil && *req.Duration != appt.DurationMinutes {
		appt.DurationMinutes = *req.Duration
		changes = append(changes, "duration")
	}
	if req.ConsultationType != nil && domain.ConsultationType(*req.ConsultationType) != appt.ConsultationType {
		appt.ConsultationType = domain.ConsultationType(*req.ConsultationType)
		changes = append(changes, "consultationType")
	}
	changes = applyText(&appt.Reason, req.Reason, "reason", changes)
	changes = applyText(&appt.Description, req.Description, "description", changes)
	changes = applyText(&appt.Notes, req.Notes, "notes", changes)

	if req.PaymentStatus != nil {
		prevStatus := appt.Status
		changed, err := appt.SetPayment(domain.PaymentStatus(*req.PaymentStatus))
		if err != nil {
			return nil, err
		}
		if changed {
			changes = append(changes, "paymentStatus")
			if appt.Status != prevStatus {
				changes = append(changes, "status")
			}
		}
	}

	if req.Status != nil {
		cancel := domain.Cancellation{Reason: sanitize.TextPtr(req.CancellationReason)}
		if req.CancelledBy != nil {
			by := domain.Actor(*req.CancelledBy)
			cancel.By = &by
		}
		changed, err := appt.Transition(domain.Status(*req.Status), cancel, now)
		if err != nil {
			return nil, err
		}
		if changed {
			changes = append(changes, "status")
		}
	}

	return changes, nil
}

// Delete hard-deletes an appointment. Only admins may do this; cancelling is
// the regular way to release a slot.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, isAdmin bool) error {
	if !isAdmin {
		return apperr.Forbidden("only admins can delete appointments")
	}

	err := s.store.InTx(ctx, func(tx repository.TxStore) error {
		appt, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, domain.EventDeleted, appt, nil, nil)
	})
	if err != nil {
		return err
	}
	s.afterCommit()
	s.log.WithContext(ctx).Info("appointment deleted", "appointment_id", id.String())
	return nil
}

// List returns a page of appointments. Patients only see their own.
func (s *Service) List(ctx context.Context, userID uuid.UUID, isAdmin bool, req transport.ListAppointmentsRequest) (*transport.AppointmentListResponse, error) {
	params := repository.ListParams{
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
		Page:      req.Page,
		PageSize:  clampPageSize(req.PageSize),
	}
	if params.Page < 1 {
		params.Page = 1
	}

	var err error
	if params.PatientID, err = optionalUUID(req.PatientID, "patientId"); err != nil {
		return nil, err
	}
	if params.DoctorID, err = optionalUUID(req.DoctorID, "doctorId"); err != nil {
		return nil, err
	}
	if params.HospitalID, err = optionalUUID(req.HospitalID, "hospitalId"); err != nil {
		return nil, err
	}
	if !isAdmin {
		if params.PatientID != nil && *params.PatientID != userID {
			return nil, apperr.Forbidden(errAccessDenied)
		}
		params.PatientID = &userID
	}
	params.Status = optionalString(req.Status)
	params.PaymentStatus = optionalString(req.PaymentStatus)
	params.DateFrom = optionalString(req.DateFrom)
	params.DateTo = optionalString(req.DateTo)
	if params.DateFrom != nil && params.DateTo != nil && *params.DateFrom > *params.DateTo {
		return nil, apperr.BadRequest("dateFrom must not be after dateTo")
	}

	result, err := s.store.List(ctx, params)
	if err != nil {
		return nil, err
	}

	items := make([]transport.AppointmentResponse, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, transport.ToResponse(&result.Items[i]))
	}
	return &transport.AppointmentListResponse{
		Items:      items,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	}, nil
}

// AvailableSlots returns the doctor's free grid slots on a date.
func (s *Service) AvailableSlots(ctx context.Context, req transport.AvailableSlotsRequest) (*transport.AvailableSlotsResponse, error) {
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return nil, apperr.BadRequest("invalid doctorId")
	}
	if _, err := s.dir.Doctor(ctx, doctorID); err != nil {
		return nil, err
	}

	booked, err := s.store.BookedTimes(ctx, doctorID, req.Date)
	if err != nil {
		return nil, err
	}
	slots, err := domain.AvailableSlots(s.settings.Grid, req.Date, booked, s.now(), s.settings.Location)
	if err != nil {
		return nil, err
	}
	return &transport.AvailableSlotsResponse{DoctorID: doctorID, Date: req.Date, Slots: slots}, nil
}

// validateReferences checks the referenced records one at a time, patient
// first, then doctor, then hospital and its association terms, then
// specialty, so the first missing record decides the error. It returns the
// resolved consultation fee.
func (s *Service) validateReferences(ctx context.Context, patientID uuid.UUID, doctorID, hospitalID, specialtyID *uuid.UUID) (int64, error) {
	if _, err := s.dir.Patient(ctx, patientID); err != nil {
		return 0, err
	}

	var doctor *directory.Doctor
	if doctorID != nil {
		d, err := s.validateDoctor(ctx, *doctorID)
		if err != nil {
			return 0, err
		}
		doctor = &d
	}

	if hospitalID != nil {
		if _, err := s.dir.Hospital(ctx, *hospitalID); err != nil {
			return 0, err
		}
	}
	fee, err := s.resolveFee(ctx, hospitalID, doctorID, doctor)
	if err != nil {
		return 0, err
	}

	if specialtyID != nil {
		if _, err := s.dir.Specialty(ctx, *specialtyID); err != nil {
			return 0, err
		}
	}
	return fee, nil
}

func (s *Service) validateDoctor(ctx context.Context, id uuid.UUID) (directory.Doctor, error) {
	d, err := s.dir.Doctor(ctx, id)
	if err != nil {
		return directory.Doctor{}, err
	}
	if !d.IsVerified {
		return directory.Doctor{}, apperr.BadRequest(errDoctorUnverified).WithDetails(map[string]any{"doctorId": id})
	}
	if !d.IsAvailable {
		return directory.Doctor{}, apperr.BadRequest(errDoctorUnavailable).WithDetails(map[string]any{"doctorId": id})
	}
	return d, nil
}

func (s *Service) resolveFee(ctx context.Context, hospitalID, doctorID *uuid.UUID, doctor *directory.Doctor) (int64, error) {
	in := domain.FeeInput{
		HasHospital: hospitalID != nil,
		HasDoctor:   doctorID != nil,
	}
	if doctor != nil {
		in.SelfEmployedFeeCents = doctor.SelfEmployedFeeCents
	}
	if in.HasHospital && in.HasDoctor {
		assoc, err := s.dir.Association(ctx, *hospitalID, *doctorID)
		if err != nil {
			return 0, err
		}
		if assoc != nil {
			in.Association = &domain.AssociationTerms{FeeCents: assoc.ConsultationFeeCents, Status: assoc.Status}
		}
	}
	return domain.ResolveFee(in)
}

func (s *Service) enqueue(ctx context.Context, tx repository.TxStore, eventType string, appt *domain.Appointment, prev *domain.Status, changes []string) error {
	event := domain.NewEvent(eventType, appt, s.now())
	event.PreviousStatus = prev
	event.Changes = changes

	env, err := events.Wrap(appt.ID, event)
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", eventType, err)
	}
	patientID := appt.PatientID
	return tx.EnqueueEvent(ctx, env, &patientID)
}

func (s *Service) afterCommit() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

// checkSlot fails with Conflict when the doctor already holds an active
// booking at the appointment's slot.
func checkSlot(ctx context.Context, tx repository.TxStore, appt *domain.Appointment, excludeID *uuid.UUID) error {
	if !appt.HasDoctor() || !appt.Status.IsActive() {
		return nil
	}
	taken, err := tx.HasActiveConflict(ctx, *appt.DoctorID, appt.Date, appt.Time, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflict(repository.SlotTakenMsg).WithDetails(map[string]any{
			"doctorId":        appt.DoctorID,
			"appointmentDate": appt.Date,
			"appointmentTime": appt.Time,
		})
	}
	return nil
}

func eventFor(prev, next domain.Status) string {
	if prev == next {
		return domain.EventUpdated
	}
	switch next {
	case domain.StatusCancelled:
		return domain.EventCancelled
	case domain.StatusConfirmed:
		return domain.EventConfirmed
	}
	return domain.EventUpdated
}

func resolvePatient(userID uuid.UUID, isAdmin bool, requested *uuid.UUID) (uuid.UUID, domain.Creator, error) {
	if isAdmin {
		if requested == nil || *requested == uuid.Nil {
			return uuid.Nil, "", apperr.BadRequest(errPatientIDRequired)
		}
		return *requested, domain.CreatedByAdmin, nil
	}
	if requested != nil && *requested != userID {
		return uuid.Nil, "", apperr.Forbidden("patients can only book for themselves")
	}
	return userID, domain.CreatedByPatient, nil
}

func ensureAccess(appt *domain.Appointment, userID uuid.UUID, isAdmin bool) error {
	if isAdmin || appt.PatientID == userID {
		return nil
	}
	return apperr.Forbidden(errAccessDenied)
}

// restrictPatientUpdate limits patients to rescheduling, cancelling and their
// own free text.
func restrictPatientUpdate(req *transport.UpdateAppointmentRequest) error {
	if req.DoctorID != nil || req.PaymentStatus != nil || req.Notes != nil || req.ConsultationType != nil || req.Duration != nil {
		return apperr.Forbidden("patients cannot change doctor, payment, notes, duration or consultation type")
	}
	if req.Status == nil {
		if req.CancelledBy != nil {
			return apperr.BadRequest("cancelledBy requires status CANCELLED")
		}
		return nil
	}
	if domain.Status(*req.Status) != domain.StatusCancelled {
		return apperr.Forbidden("patients can only cancel appointments")
	}
	if req.CancelledBy == nil {
		by := string(domain.ActorPatient)
		req.CancelledBy = &by
	}
	if domain.Actor(*req.CancelledBy) != domain.ActorPatient {
		return apperr.Forbidden("patients can only cancel as PATIENT")
	}
	return nil
}

func applyText(field **string, value *string, name string, changes []string) []string {
	if value == nil {
		return changes
	}
	clean := sanitize.TextPtr(value)
	if equalStrings(*field, clean) {
		return changes
	}
	*field = clean
	return append(changes, name)
}

func equalStrings(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameUUID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func optionalUUID(raw, field string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.BadRequest("invalid " + field)
	}
	return &id, nil
}

func optionalString(raw string) *string {
	if raw == "" {
		return nil
	}
	return &raw
}

func clampPageSize(size int) int {
	if size < 1 {
		return defaultListPageSize
	}
	if size > maxListPageSize {
		return maxListPageSize
	}
	return size
}
