// Package directory reads the patient, doctor, hospital and specialty records
// that the booking core references but does not own. One Source port has two
// adapters: an in-process one over local tables and an HTTP client for the
// remote directory services. Validator wraps either with bounded retry.
package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Kind names the directory a lookup goes to.
type Kind string

const (
	KindPatient   Kind = "patient"
	KindDoctor    Kind = "doctor"
	KindHospital  Kind = "hospital"
	KindSpecialty Kind = "specialty"
)

// distinguishesTransient reports whether exhausted lookups of this kind tell
// an unavailable service apart from a missing record.
func (k Kind) distinguishesTransient() bool {
	return k == KindDoctor || k == KindSpecialty
}

// AssociationActive is the only association status that can be booked.
const AssociationActive = "ACTIVE"

var (
	// ErrNotFound means the directory answered and the record does not exist (yet).
	ErrNotFound = errors.New("directory record not found")
	// ErrUnavailable means the directory could not answer: rate limited, 5xx or network failure.
	ErrUnavailable = errors.New("directory service unavailable")
)

type Patient struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"fullName"`
}

// Doctor carries the fields the booking core needs. SelfEmployedFeeCents is nil
// when the doctor never configured a fee.
type Doctor struct {
	ID                   uuid.UUID `json:"id"`
	FullName             string    `json:"fullName"`
	SelfEmployedFeeCents *int64    `json:"selfEmployedFeeCents"`
	IsVerified           bool      `json:"isVerified"`
	IsAvailable          bool      `json:"isAvailable"`
}

type Hospital struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type Specialty struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Association links a doctor to a hospital with the hospital-specific fee.
type Association struct {
	DoctorID             uuid.UUID `json:"doctorId"`
	HospitalID           uuid.UUID `json:"hospitalId"`
	ConsultationFeeCents int64     `json:"consultationFeeCents"`
	Status               string    `json:"status"`
}

// Source is implemented by each directory adapter. Implementations return
// ErrNotFound for missing records and wrap ErrUnavailable for transient failures.
type Source interface {
	Patient(ctx context.Context, id uuid.UUID) (Patient, error)
	Doctor(ctx context.Context, id uuid.UUID) (Doctor, error)
	Hospital(ctx context.Context, id uuid.UUID) (Hospital, error)
	Specialty(ctx context.Context, id uuid.UUID) (Specialty, error)
	HospitalDoctors(ctx context.Context, hospitalID uuid.UUID) ([]Association, error)
}
