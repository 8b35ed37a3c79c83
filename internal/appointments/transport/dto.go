package transport

import (
	"time"

	"clinicbook_backend/internal/appointments/domain"

	"github.com/google/uuid"
)

// CreateAppointmentRequest is the request body for creating an appointment.
// PatientID is honoured for admins only; patients always book for themselves.
type CreateAppointmentRequest struct {
	PatientID        *uuid.UUID `json:"patientId,omitempty"`
	DoctorID         *uuid.UUID `json:"doctorId,omitempty" validate:"required_without=HospitalID"`
	HospitalID       *uuid.UUID `json:"hospitalId,omitempty" validate:"required_without=DoctorID"`
	SpecialtyID      *uuid.UUID `json:"specialtyId,omitempty"`
	AppointmentDate  string     `json:"appointmentDate" validate:"required,isodate"`
	AppointmentTime  string     `json:"appointmentTime" validate:"required,hhmm"`
	Duration         *int       `json:"duration,omitempty" validate:"omitempty,min=5,max=480"`
	ConsultationType string     `json:"consultationType,omitempty" validate:"omitempty,oneof=IN_PERSON VIDEO PHONE"`
	Reason           *string    `json:"reason,omitempty" validate:"omitempty,max=500"`
	Description      *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	Notes            *string    `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// UpdateAppointmentRequest is the request body for updating an appointment.
// Every field is optional; only supplied fields change.
type UpdateAppointmentRequest struct {
	AppointmentDate    *string    `json:"appointmentDate,omitempty" validate:"omitempty,isodate"`
	AppointmentTime    *string    `json:"appointmentTime,omitempty" validate:"omitempty,hhmm"`
	Duration           *int       `json:"duration,omitempty" validate:"omitempty,min=5,max=480"`
	DoctorID           *uuid.UUID `json:"doctorId,omitempty"`
	Status             *string    `json:"status,omitempty" validate:"omitempty,oneof=PENDING CONFIRMED COMPLETED CANCELLED NO_SHOW RESCHEDULED"`
	PaymentStatus      *string    `json:"paymentStatus,omitempty" validate:"omitempty,oneof=PENDING PAID REFUNDED"`
	ConsultationType   *string    `json:"consultationType,omitempty" validate:"omitempty,oneof=IN_PERSON VIDEO PHONE"`
	CancelledBy        *string    `json:"cancelledBy,omitempty" validate:"omitempty,oneof=ADMIN PATIENT DOCTOR"`
	CancellationReason *string    `json:"cancellationReason,omitempty" validate:"omitempty,max=1000"`
	Reason             *string    `json:"reason,omitempty" validate:"omitempty,max=500"`
	Description        *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	Notes              *string    `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// ListAppointmentsRequest is the query parameters for listing appointments
type ListAppointmentsRequest struct {
	PatientID     string `form:"patientId" validate:"omitempty,uuid"`
	DoctorID      string `form:"doctorId" validate:"omitempty,uuid"`
	HospitalID    string `form:"hospitalId" validate:"omitempty,uuid"`
	Status        string `form:"status" validate:"omitempty,oneof=PENDING CONFIRMED COMPLETED CANCELLED NO_SHOW RESCHEDULED"`
	PaymentStatus string `form:"paymentStatus" validate:"omitempty,oneof=PENDING PAID REFUNDED"`
	DateFrom      string `form:"dateFrom" validate:"omitempty,isodate"`
	DateTo        string `form:"dateTo" validate:"omitempty,isodate"`
	SortBy        string `form:"sortBy"`
	SortOrder     string `form:"sortOrder" validate:"omitempty,oneof=asc desc"`
	Page          int    `form:"page" validate:"min=1"`
	PageSize      int    `form:"pageSize" validate:"min=1,max=100"`
}

// AvailableSlotsRequest is the query for a doctor's free slots on one day.
type AvailableSlotsRequest struct {
	DoctorID string `form:"doctorId" validate:"required,uuid"`
	Date     string `form:"date" validate:"required,isodate"`
}

// AppointmentResponse is the response body for an appointment
type AppointmentResponse struct {
	ID                   uuid.UUID  `json:"id"`
	AppointmentNumber    int64      `json:"appointmentNumber"`
	PatientID            uuid.UUID  `json:"patientId"`
	DoctorID             *uuid.UUID `json:"doctorId,omitempty"`
	HospitalID           *uuid.UUID `json:"hospitalId,omitempty"`
	SpecialtyID          *uuid.UUID `json:"specialtyId,omitempty"`
	AppointmentDate      string     `json:"appointmentDate"`
	AppointmentTime      string     `json:"appointmentTime"`
	Duration             int        `json:"duration"`
	Status               string     `json:"status"`
	ConsultationType     string     `json:"consultationType"`
	ConsultationFeeCents int64      `json:"consultationFeeCents"`
	PaymentStatus        string     `json:"paymentStatus"`
	Reason               *string    `json:"reason,omitempty"`
	Description          *string    `json:"description,omitempty"`
	Notes                *string    `json:"notes,omitempty"`
	CancelledBy          *string    `json:"cancelledBy,omitempty"`
	CancelledAt          *time.Time `json:"cancelledAt,omitempty"`
	CancellationReason   *string    `json:"cancellationReason,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
	CreatedBy            string     `json:"createdBy"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// AppointmentListResponse is the paginated response for listing appointments
type AppointmentListResponse struct {
	Items      []AppointmentResponse `json:"items"`
	Total      int                   `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"pageSize"`
	TotalPages int                   `json:"totalPages"`
}

type AvailableSlotsResponse struct {
	DoctorID uuid.UUID `json:"doctorId"`
	Date     string    `json:"date"`
	Slots    []string  `json:"slots"`
}

// ToResponse converts the aggregate to its API shape.
func ToResponse(a *domain.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                   a.ID,
		AppointmentNumber:    a.Number,
		PatientID:            a.PatientID,
		DoctorID:             a.DoctorID,
		HospitalID:           a.HospitalID,
		SpecialtyID:          a.SpecialtyID,
		AppointmentDate:      a.Date,
		AppointmentTime:      a.Time,
		Duration:             a.DurationMinutes,
		Status:               string(a.Status),
		ConsultationType:     string(a.ConsultationType),
		ConsultationFeeCents: a.ConsultationFeeCents,
		PaymentStatus:        string(a.PaymentStatus),
		Reason:               a.Reason,
		Description:          a.Description,
		Notes:                a.Notes,
		CancelledAt:          a.CancelledAt,
		CancellationReason:   a.CancellationReason,
		CompletedAt:          a.CompletedAt,
		CreatedBy:            string(a.CreatedBy),
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
	if a.CancelledBy != nil {
		by := string(*a.CancelledBy)
		resp.CancelledBy = &by
	}
	return resp
}
