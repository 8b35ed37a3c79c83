package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinicbook_backend/platform/apperr"
	"clinicbook_backend/platform/backoff"
	"clinicbook_backend/platform/cache"
	"clinicbook_backend/platform/logger"

	"github.com/google/uuid"
)

const associationsKeyPrefix = "directory:hospital_doctors:"

// Options configures a Validator. Zero values fall back to the default lookup
// policy, a real timer sleeper and no caching.
type Options struct {
	Policy   backoff.Policy
	Sleeper  backoff.Sleeper
	Cache    cache.Cache
	CacheTTL time.Duration
	Logger   *logger.Logger
}

// Validator confirms that referenced records exist, retrying every failure
// (including not-found) so that a booking arriving just before a directory
// write has replicated still succeeds.
type Validator struct {
	src      Source
	policy   backoff.Policy
	sleeper  backoff.Sleeper
	cache    cache.Cache
	cacheTTL time.Duration
	log      *logger.Logger
}

// NewValidator wraps src with retry and association caching.
func NewValidator(src Source, opts Options) *Validator {
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = backoff.DefaultLookupPolicy
	}
	if opts.Sleeper == nil {
		opts.Sleeper = backoff.TimerSleeper{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Validator{
		src:      src,
		policy:   opts.Policy,
		sleeper:  opts.Sleeper,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		log:      opts.Logger,
	}
}

// Patient returns the patient or a NotFound error carrying id.
func (v *Validator) Patient(ctx context.Context, id uuid.UUID) (Patient, error) {
	var out Patient
	err := v.retry(ctx, KindPatient, id, func(ctx context.Context) error {
		rec, err := v.src.Patient(ctx, id)
		out = rec
		return err
	})
	return out, err
}

// Doctor returns the doctor or a NotFound error that says whether the doctor
// directory was unavailable or the doctor is missing.
func (v *Validator) Doctor(ctx context.Context, id uuid.UUID) (Doctor, error) {
	var out Doctor
	err := v.retry(ctx, KindDoctor, id, func(ctx context.Context) error {
		rec, err := v.src.Doctor(ctx, id)
		out = rec
		return err
	})
	return out, err
}

// Hospital returns the hospital or a NotFound error carrying id.
func (v *Validator) Hospital(ctx context.Context, id uuid.UUID) (Hospital, error) {
	var out Hospital
	err := v.retry(ctx, KindHospital, id, func(ctx context.Context) error {
		rec, err := v.src.Hospital(ctx, id)
		out = rec
		return err
	})
	return out, err
}

// Specialty returns the specialty or a NotFound error that distinguishes
// unavailability from absence.
func (v *Validator) Specialty(ctx context.Context, id uuid.UUID) (Specialty, error) {
	var out Specialty
	err := v.retry(ctx, KindSpecialty, id, func(ctx context.Context) error {
		rec, err := v.src.Specialty(ctx, id)
		out = rec
		return err
	})
	return out, err
}

// Association returns the hospital-doctor association, or nil when the doctor
// is not associated with the hospital. A cached list that lacks the doctor is
// invalidated and fetched again once before concluding.
func (v *Validator) Association(ctx context.Context, hospitalID, doctorID uuid.UUID) (*Association, error) {
	list, cached, err := v.associations(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	if a := findAssociation(list, doctorID); a != nil {
		return a, nil
	}
	if !cached {
		return nil, nil
	}

	if err := v.cache.Invalidate(ctx, associationsKeyPrefix+hospitalID.String()); err != nil {
		v.log.Warn("failed to invalidate association cache", "hospitalId", hospitalID, "error", err)
	}
	list, _, err = v.associations(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	return findAssociation(list, doctorID), nil
}

func (v *Validator) associations(ctx context.Context, hospitalID uuid.UUID) ([]Association, bool, error) {
	key := associationsKeyPrefix + hospitalID.String()
	if v.cache != nil {
		var cached []Association
		found, err := v.cache.Get(ctx, key, &cached)
		if err != nil {
			v.log.Warn("association cache read failed", "hospitalId", hospitalID, "error", err)
		} else if found {
			return cached, true, nil
		}
	}

	var list []Association
	err := backoff.Do(ctx, v.policy, v.sleeper, func(ctx context.Context, attempt int) error {
		rec, err := v.src.HospitalDoctors(ctx, hospitalID)
		if err != nil {
			v.log.DirectoryRetry("hospital_doctors", hospitalID.String(), attempt, err)
			return err
		}
		list = rec
		return nil
	})
	if err != nil {
		if isContextErr(err) {
			return nil, false, timeoutError(KindHospital, err)
		}
		return nil, false, apperr.Wrap(apperr.KindNotFound, "hospital doctor associations temporarily unavailable", err).
			WithDetails(map[string]any{"hospitalId": hospitalID, "retryable": true})
	}

	if v.cache != nil {
		if err := v.cache.Set(ctx, key, list, v.cacheTTL); err != nil {
			v.log.Warn("association cache write failed", "hospitalId", hospitalID, "error", err)
		}
	}
	return list, false, nil
}

func findAssociation(list []Association, doctorID uuid.UUID) *Association {
	for i := range list {
		if list[i].DoctorID == doctorID {
			a := list[i]
			return &a
		}
	}
	return nil
}

func (v *Validator) retry(ctx context.Context, kind Kind, id uuid.UUID, fetch func(ctx context.Context) error) error {
	err := backoff.Do(ctx, v.policy, v.sleeper, func(ctx context.Context, attempt int) error {
		err := fetch(ctx)
		if err != nil {
			v.log.DirectoryRetry(string(kind), id.String(), attempt, err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if isContextErr(err) {
		return timeoutError(kind, err)
	}
	return exhaustedError(kind, id, err)
}

// exhaustedError maps the final lookup failure to a NotFound error.
func exhaustedError(kind Kind, id uuid.UUID, cause error) *apperr.Error {
	details := map[string]any{"kind": kind, "id": id}
	if kind.distinguishesTransient() && errors.Is(cause, ErrUnavailable) {
		details["retryable"] = true
		return apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("%s service temporarily unavailable", kind), cause).WithDetails(details)
	}
	return apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("%s not found", kind), cause).WithDetails(details)
}

func timeoutError(kind Kind, cause error) *apperr.Error {
	return apperr.Wrap(apperr.KindTransient, fmt.Sprintf("%s lookup did not finish before the request deadline", kind), cause).
		WithDetails(map[string]any{"retryable": true})
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
