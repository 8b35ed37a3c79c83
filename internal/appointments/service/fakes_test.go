package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"clinicbook_backend/internal/appointments/domain"
	"clinicbook_backend/internal/appointments/repository"
	"clinicbook_backend/internal/directory"
	"clinicbook_backend/internal/notification/outbox"
	"clinicbook_backend/platform/apperr"
	"clinicbook_backend/platform/events"

	"github.com/google/uuid"
)

type memState struct {
	appointments map[uuid.UUID]domain.Appointment
	outbox       []outbox.Record
	lastNumber   int64
}

func (s memState) clone() memState {
	out := memState{
		appointments: make(map[uuid.UUID]domain.Appointment, len(s.appointments)),
		outbox:       append([]outbox.Record(nil), s.outbox...),
		lastNumber:   s.lastNumber,
	}
	for id, a := range s.appointments {
		out.appointments[id] = a
	}
	return out
}

// memStore is an in-memory Store. InTx works on a copy that replaces the
// committed state only when fn succeeds.
type memStore struct {
	mu    sync.Mutex
	state memState
	txs   int
}

func newMemStore() *memStore {
	return &memStore{state: memState{appointments: make(map[uuid.UUID]domain.Appointment)}}
}

func (m *memStore) InTx(ctx context.Context, fn func(tx repository.TxStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs++

	work := m.state.clone()
	if err := fn(&memTx{state: &work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.state.appointments[id]
	if !ok {
		return nil, apperr.NotFound("appointment not found")
	}
	return &a, nil
}

func (m *memStore) List(_ context.Context, params repository.ListParams) (*repository.ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]domain.Appointment, 0)
	for _, a := range m.state.appointments {
		if params.PatientID != nil && a.PatientID != *params.PatientID {
			continue
		}
		if params.Status != nil && string(a.Status) != *params.Status {
			continue
		}
		items = append(items, a)
	}
	return &repository.ListResult{Items: items, Total: len(items), Page: params.Page, PageSize: params.PageSize, TotalPages: 1}, nil
}

func (m *memStore) BookedTimes(_ context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.state.appointments {
		if a.DoctorID != nil && *a.DoctorID == doctorID && a.Date == date && a.Status.IsActive() {
			out = append(out, a.Time)
		}
	}
	return out, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.appointments)
}

func (m *memStore) events() []events.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Envelope, 0, len(m.state.outbox))
	for _, rec := range m.state.outbox {
		env, _ := rec.Envelope()
		out = append(out, env)
	}
	return out
}

type memTx struct {
	state *memState
}

func (t *memTx) NextAppointmentNumber(context.Context) (int64, error) {
	t.state.lastNumber++
	return t.state.lastNumber, nil
}

func (t *memTx) HasActiveConflict(_ context.Context, doctorID uuid.UUID, date, clock string, excludeID *uuid.UUID) (bool, error) {
	for id, a := range t.state.appointments {
		if excludeID != nil && id == *excludeID {
			continue
		}
		if a.DoctorID != nil && *a.DoctorID == doctorID && a.Date == date && a.Time == clock && a.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) Insert(_ context.Context, appt *domain.Appointment) error {
	t.state.appointments[appt.ID] = *appt
	return nil
}

func (t *memTx) GetForUpdate(_ context.Context, id uuid.UUID) (*domain.Appointment, error) {
	a, ok := t.state.appointments[id]
	if !ok {
		return nil, apperr.NotFound("appointment not found")
	}
	return &a, nil
}

func (t *memTx) Update(_ context.Context, appt *domain.Appointment) error {
	if _, ok := t.state.appointments[appt.ID]; !ok {
		return apperr.NotFound("appointment not found")
	}
	t.state.appointments[appt.ID] = *appt
	return nil
}

func (t *memTx) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := t.state.appointments[id]; !ok {
		return apperr.NotFound("appointment not found")
	}
	delete(t.state.appointments, id)
	return nil
}

func (t *memTx) EnqueueEvent(_ context.Context, env events.Envelope, patientID *uuid.UUID) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	t.state.outbox = append(t.state.outbox, outbox.Record{
		ID:          env.ID,
		EventType:   env.Type,
		AggregateID: env.AggregateID,
		PatientID:   patientID,
		Payload:     payload,
		Status:      outbox.StatusPending,
	})
	return nil
}

// memOutbox exposes the committed outbox rows of a memStore to a dispatcher.
type memOutbox struct {
	store     *memStore
	completed map[uuid.UUID]bool
}

func (o *memOutbox) ClaimDue(_ context.Context, limit int, _ time.Duration) ([]outbox.Record, error) {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	var out []outbox.Record
	for _, rec := range o.store.state.outbox {
		if o.completed[rec.ID] || len(out) == limit {
			continue
		}
		rec.Attempts++
		out = append(out, rec)
	}
	return out, nil
}

func (o *memOutbox) MarkSinkDelivered(context.Context, uuid.UUID, outbox.Sink) error { return nil }

func (o *memOutbox) Complete(_ context.Context, id uuid.UUID) error {
	o.completed[id] = true
	return nil
}

func (o *memOutbox) Reschedule(context.Context, uuid.UUID, time.Time, string) error { return nil }

func (o *memOutbox) Fail(context.Context, uuid.UUID, string) error { return nil }

type fakeDirectory struct {
	patients     map[uuid.UUID]bool
	doctors      map[uuid.UUID]directory.Doctor
	hospitals    map[uuid.UUID]bool
	specialties  map[uuid.UUID]bool
	associations map[[2]uuid.UUID]directory.Association
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		patients:     make(map[uuid.UUID]bool),
		doctors:      make(map[uuid.UUID]directory.Doctor),
		hospitals:    make(map[uuid.UUID]bool),
		specialties:  make(map[uuid.UUID]bool),
		associations: make(map[[2]uuid.UUID]directory.Association),
	}
}

func (d *fakeDirectory) addDoctor(fee *int64) uuid.UUID {
	id := uuid.New()
	d.doctors[id] = directory.Doctor{ID: id, FullName: "Dr. Test", SelfEmployedFeeCents: fee, IsVerified: true, IsAvailable: true}
	return id
}

func (d *fakeDirectory) addPatient() uuid.UUID {
	id := uuid.New()
	d.patients[id] = true
	return id
}

func (d *fakeDirectory) addHospital() uuid.UUID {
	id := uuid.New()
	d.hospitals[id] = true
	return id
}

func (d *fakeDirectory) associate(hospitalID, doctorID uuid.UUID, fee int64, status string) {
	d.associations[[2]uuid.UUID{hospitalID, doctorID}] = directory.Association{
		DoctorID: doctorID, HospitalID: hospitalID, ConsultationFeeCents: fee, Status: status,
	}
}

func (d *fakeDirectory) Patient(_ context.Context, id uuid.UUID) (directory.Patient, error) {
	if !d.patients[id] {
		return directory.Patient{}, apperr.NotFound("patient not found")
	}
	return directory.Patient{ID: id}, nil
}

func (d *fakeDirectory) Doctor(_ context.Context, id uuid.UUID) (directory.Doctor, error) {
	doc, ok := d.doctors[id]
	if !ok {
		return directory.Doctor{}, apperr.NotFound("doctor not found")
	}
	return doc, nil
}

func (d *fakeDirectory) Hospital(_ context.Context, id uuid.UUID) (directory.Hospital, error) {
	if !d.hospitals[id] {
		return directory.Hospital{}, apperr.NotFound("hospital not found")
	}
	return directory.Hospital{ID: id}, nil
}

func (d *fakeDirectory) Specialty(_ context.Context, id uuid.UUID) (directory.Specialty, error) {
	if !d.specialties[id] {
		return directory.Specialty{}, apperr.NotFound("specialty not found")
	}
	return directory.Specialty{ID: id}, nil
}

func (d *fakeDirectory) Association(_ context.Context, hospitalID, doctorID uuid.UUID) (*directory.Association, error) {
	a, ok := d.associations[[2]uuid.UUID{hospitalID, doctorID}]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

type countingNotifier struct {
	mu sync.Mutex
	n  int
}

func (c *countingNotifier) Notify() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
