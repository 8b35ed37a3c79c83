package domain

import "clinicbook_backend/platform/apperr"

const associationActive = "ACTIVE"

// AssociationTerms is the fee-relevant part of a hospital-doctor association.
type AssociationTerms struct {
	FeeCents int64
	Status   string
}

// FeeInput describes which fee sources exist for an appointment.
// Association is nil when the doctor is not associated with the hospital.
type FeeInput struct {
	HasHospital          bool
	HasDoctor            bool
	Association          *AssociationTerms
	SelfEmployedFeeCents *int64
}

// ResolveFee returns the consultation fee in cents.
//
// With both a hospital and a doctor the association is the only source and its
// fee is used verbatim. A hospital without a doctor is free until a doctor is
// assigned. A doctor without a hospital bills the self-employed fee, which must
// be positive.
func ResolveFee(in FeeInput) (int64, error) {
	switch {
	case in.HasHospital && in.HasDoctor:
		if in.Association == nil {
			return 0, apperr.NotFound("doctor not associated with hospital")
		}
		if in.Association.Status != associationActive {
			return 0, apperr.BadRequest("doctor association with hospital is not active")
		}
		if in.Association.FeeCents < 0 {
			return 0, apperr.BadRequest("invalid consultation fee configured for hospital")
		}
		return in.Association.FeeCents, nil
	case in.HasHospital:
		return 0, nil
	case in.HasDoctor:
		if in.SelfEmployedFeeCents == nil || *in.SelfEmployedFeeCents <= 0 {
			return 0, apperr.BadRequest("no fee configured for self-employed appointments")
		}
		return *in.SelfEmployedFeeCents, nil
	default:
		return 0, apperr.BadRequest("either doctorId or hospitalId is required")
	}
}
