package domain

import (
	"time"

	"clinicbook_backend/platform/events"

	"github.com/google/uuid"
)

const (
	EventCreated   = "appointment.created"
	EventUpdated   = "appointment.updated"
	EventCancelled = "appointment.cancelled"
	EventConfirmed = "appointment.confirmed"
	EventDeleted   = "appointment.deleted"
	EventReminder  = "appointment.reminder"
)

// EventTypes lists the lifecycle events written to the outbox.
var EventTypes = []string{EventCreated, EventUpdated, EventCancelled, EventConfirmed, EventDeleted}

// Snapshot is the appointment state carried in event payloads.
type Snapshot struct {
	ID                   uuid.UUID     `json:"id"`
	Number               int64         `json:"appointmentNumber"`
	PatientID            uuid.UUID     `json:"patientId"`
	DoctorID             *uuid.UUID    `json:"doctorId,omitempty"`
	HospitalID           *uuid.UUID    `json:"hospitalId,omitempty"`
	SpecialtyID          *uuid.UUID    `json:"specialtyId,omitempty"`
	Date                 string        `json:"appointmentDate"`
	Time                 string        `json:"appointmentTime"`
	DurationMinutes      int           `json:"duration"`
	Status               Status        `json:"status"`
	PaymentStatus        PaymentStatus `json:"paymentStatus"`
	ConsultationFeeCents int64         `json:"consultationFeeCents"`
	CancelledBy          *Actor        `json:"cancelledBy,omitempty"`
}

// SnapshotOf copies the fields published with an event.
func SnapshotOf(a *Appointment) Snapshot {
	return Snapshot{
		ID:                   a.ID,
		Number:               a.Number,
		PatientID:            a.PatientID,
		DoctorID:             a.DoctorID,
		HospitalID:           a.HospitalID,
		SpecialtyID:          a.SpecialtyID,
		Date:                 a.Date,
		Time:                 a.Time,
		DurationMinutes:      a.DurationMinutes,
		Status:               a.Status,
		PaymentStatus:        a.PaymentStatus,
		ConsultationFeeCents: a.ConsultationFeeCents,
		CancelledBy:          a.CancelledBy,
	}
}

// AppointmentEvent is the payload of every appointment lifecycle event.
type AppointmentEvent struct {
	events.BaseEvent
	Type           string   `json:"-"`
	Appointment    Snapshot `json:"appointment"`
	PreviousStatus *Status  `json:"previousStatus,omitempty"`
	Changes        []string `json:"changes,omitempty"`
}

// EventName implements events.Event.
func (e AppointmentEvent) EventName() string { return e.Type }

// NewEvent builds an event of eventType for a.
func NewEvent(eventType string, a *Appointment, now time.Time) AppointmentEvent {
	return AppointmentEvent{
		BaseEvent:   events.NewBaseEvent(now),
		Type:        eventType,
		Appointment: SnapshotOf(a),
	}
}
