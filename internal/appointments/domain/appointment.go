// Package domain holds the appointment aggregate and the pure rules that
// govern it: fee resolution, status transitions and slot arithmetic.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusConfirmed   Status = "CONFIRMED"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
	StatusNoShow      Status = "NO_SHOW"
	StatusRescheduled Status = "RESCHEDULED"
)

// InactiveStatuses release the doctor's slot.
var InactiveStatuses = []Status{StatusCancelled, StatusNoShow, StatusRescheduled}

// IsActive reports whether an appointment in status s holds its slot.
func (s Status) IsActive() bool {
	for _, inactive := range InactiveStatuses {
		if s == inactive {
			return false
		}
	}
	return true
}

// IsTerminal reports whether no further status change is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type ConsultationType string

const (
	ConsultationInPerson ConsultationType = "IN_PERSON"
	ConsultationVideo    ConsultationType = "VIDEO"
	ConsultationPhone    ConsultationType = "PHONE"
)

// Actor is who cancelled an appointment.
type Actor string

const (
	ActorAdmin   Actor = "ADMIN"
	ActorPatient Actor = "PATIENT"
	ActorDoctor  Actor = "DOCTOR"
)

// Creator is who booked an appointment.
type Creator string

const (
	CreatedByAdmin   Creator = "ADMIN"
	CreatedByPatient Creator = "PATIENT"
)

// DefaultDurationMinutes applies when a booking does not specify a duration.
const DefaultDurationMinutes = 30

// Appointment is the aggregate root. Date is YYYY-MM-DD and Time is HH:MM,
// both interpreted in the configured booking time zone.
type Appointment struct {
	ID                   uuid.UUID
	Number               int64
	PatientID            uuid.UUID
	DoctorID             *uuid.UUID
	HospitalID           *uuid.UUID
	SpecialtyID          *uuid.UUID
	Date                 string
	Time                 string
	DurationMinutes      int
	Status               Status
	ConsultationType     ConsultationType
	ConsultationFeeCents int64
	PaymentStatus        PaymentStatus
	Reason               *string
	Description          *string
	Notes                *string
	CancelledBy          *Actor
	CancelledAt          *time.Time
	CancellationReason   *string
	CompletedAt          *time.Time
	CreatedBy            Creator
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HasDoctor reports whether a doctor is assigned.
func (a *Appointment) HasDoctor() bool { return a.DoctorID != nil && *a.DoctorID != uuid.Nil }

// HasHospital reports whether the appointment belongs to a hospital.
func (a *Appointment) HasHospital() bool { return a.HospitalID != nil && *a.HospitalID != uuid.Nil }

// Start returns the appointment instant in loc.
func (a *Appointment) Start(loc *time.Location) (time.Time, error) {
	return ParseSlot(a.Date, a.Time, loc)
}
