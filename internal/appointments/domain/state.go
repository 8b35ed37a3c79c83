package domain

import (
	"fmt"
	"strings"
	"time"

	"clinicbook_backend/platform/apperr"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled},
}

// Valid reports whether a is a known actor.
func (a Actor) Valid() bool {
	switch a {
	case ActorAdmin, ActorPatient, ActorDoctor:
		return true
	}
	return false
}

// Cancellation carries the fields recorded when an appointment is cancelled.
type Cancellation struct {
	By     *Actor
	Reason *string
}

// Transition moves the appointment to target. Re-applying the current status
// is a no-op. Cancelling requires an actor and stamps cancelledAt; completing
// stamps completedAt.
func (a *Appointment) Transition(target Status, cancel Cancellation, now time.Time) (bool, error) {
	if target == a.Status {
		return false, nil
	}
	if a.Status.IsTerminal() {
		return false, terminalError(a.Status)
	}
	if !allowed(a.Status, target) {
		return false, apperr.BadRequest(fmt.Sprintf("invalid status transition from %s to %s", a.Status, target))
	}

	switch target {
	case StatusCancelled:
		if cancel.By == nil {
			return false, apperr.BadRequest("cancelledBy is required to cancel an appointment")
		}
		if !cancel.By.Valid() {
			return false, apperr.BadRequest("cancelledBy must be ADMIN, PATIENT or DOCTOR")
		}
		by := *cancel.By
		at := now
		a.CancelledBy = &by
		a.CancelledAt = &at
		a.CancellationReason = cancel.Reason
	case StatusCompleted:
		at := now
		a.CompletedAt = &at
	}

	a.Status = target
	return true, nil
}

// SetPayment applies a payment status change. Paying a PENDING appointment
// confirms it in the same step.
func (a *Appointment) SetPayment(target PaymentStatus) (bool, error) {
	if target == a.PaymentStatus {
		return false, nil
	}

	switch target {
	case PaymentPaid:
		if a.PaymentStatus != PaymentPending {
			return false, apperr.BadRequest("only pending payments can be marked as paid")
		}
		if !a.Status.IsActive() {
			return false, apperr.BadRequest(fmt.Sprintf("cannot take payment for a %s appointment", strings.ToLower(string(a.Status))))
		}
		a.PaymentStatus = PaymentPaid
		if a.Status == StatusPending {
			a.Status = StatusConfirmed
		}
	case PaymentRefunded:
		if a.PaymentStatus != PaymentPaid {
			return false, apperr.BadRequest("only paid appointments can be refunded")
		}
		a.PaymentStatus = PaymentRefunded
	case PaymentPending:
		return false, apperr.BadRequest("payment status cannot be reset to PENDING")
	default:
		return false, apperr.BadRequest("invalid payment status")
	}
	return true, nil
}

// EnsureReschedulable rejects slot and doctor changes once the appointment is terminal.
func (a *Appointment) EnsureReschedulable() error {
	if a.Status.IsTerminal() {
		return terminalError(a.Status)
	}
	return nil
}

func allowed(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func terminalError(s Status) *apperr.Error {
	return apperr.BadRequest(fmt.Sprintf("appointment is %s and can no longer be changed", strings.ToLower(string(s))))
}
