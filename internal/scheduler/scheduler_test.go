package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"clinicbook_backend/internal/appointments/domain"
	"clinicbook_backend/internal/notification/live"
	"clinicbook_backend/platform/apperr"
	"clinicbook_backend/platform/events"
	"clinicbook_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type fakeReminderScheduler struct {
	payloads []AppointmentReminderPayload
	runAts   []time.Time
}

func (f *fakeReminderScheduler) ScheduleAppointmentReminder(_ context.Context, payload AppointmentReminderPayload, runAt time.Time) error {
	f.payloads = append(f.payloads, payload)
	f.runAts = append(f.runAts, runAt)
	return nil
}

type fakeReader struct {
	appt *domain.Appointment
}

func (f *fakeReader) GetByID(_ context.Context, id uuid.UUID) (*domain.Appointment, error) {
	if f.appt == nil || f.appt.ID != id {
		return nil, apperr.NotFound("appointment not found")
	}
	return f.appt, nil
}

func sampleAppointment(status domain.Status) *domain.Appointment {
	doctor := uuid.New()
	return &domain.Appointment{
		ID:              uuid.New(),
		Number:          7,
		PatientID:       uuid.New(),
		DoctorID:        &doctor,
		Date:            "2026-03-10",
		Time:            "10:00",
		DurationMinutes: 30,
		Status:          status,
		PaymentStatus:   domain.PaymentPending,
	}
}

func envelopeFor(t *testing.T, eventType string, appt *domain.Appointment) events.Envelope {
	t.Helper()
	env, err := events.Wrap(appt.ID, domain.NewEvent(eventType, appt, time.Now()))
	if err != nil {
		t.Fatalf("wrap event: %v", err)
	}
	return env
}

func TestParseEventTaskRejectsMismatchedType(t *testing.T) {
	env := events.Envelope{ID: uuid.New(), Type: domain.EventCreated, Data: json.RawMessage(`{}`)}
	data, _ := json.Marshal(env)

	if _, err := ParseEventTask(asynq.NewTask(domain.EventCreated, data)); err != nil {
		t.Fatalf("expected matching task to parse, got %v", err)
	}
	if _, err := ParseEventTask(asynq.NewTask(domain.EventDeleted, data)); err == nil {
		t.Fatal("expected mismatched task type to be rejected")
	}
}

func TestReminderPlannerSchedulesDayBefore(t *testing.T) {
	sched := &fakeReminderScheduler{}
	planner := NewReminderPlanner(sched, time.UTC, 0, logger.Nop())
	planner.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	appt := sampleAppointment(domain.StatusPending)
	if err := planner.Handle(context.Background(), envelopeFor(t, domain.EventCreated, appt)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(sched.payloads) != 1 {
		t.Fatalf("expected one reminder, got %d", len(sched.payloads))
	}
	want := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	if !sched.runAts[0].Equal(want) {
		t.Fatalf("expected reminder at %s, got %s", want, sched.runAts[0])
	}
	if sched.payloads[0].AppointmentID != appt.ID.String() {
		t.Fatalf("unexpected payload %+v", sched.payloads[0])
	}
}

func TestReminderPlannerSkipsPastAndInactive(t *testing.T) {
	sched := &fakeReminderScheduler{}
	planner := NewReminderPlanner(sched, time.UTC, 0, logger.Nop())
	planner.now = func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) }

	if err := planner.Handle(context.Background(), envelopeFor(t, domain.EventCreated, sampleAppointment(domain.StatusPending))); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	planner.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	if err := planner.Handle(context.Background(), envelopeFor(t, domain.EventUpdated, sampleAppointment(domain.StatusCancelled))); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(sched.payloads) != 0 {
		t.Fatalf("expected no reminders, got %d", len(sched.payloads))
	}
}

func TestReminderPlannerSubscribesOnBus(t *testing.T) {
	sched := &fakeReminderScheduler{}
	planner := NewReminderPlanner(sched, time.UTC, time.Hour, logger.Nop())
	planner.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	bus := events.NewInMemoryBus(logger.Nop())
	planner.Subscribe(bus)

	appt := sampleAppointment(domain.StatusConfirmed)
	if err := bus.PublishSync(context.Background(), envelopeFor(t, domain.EventConfirmed, appt)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := bus.PublishSync(context.Background(), envelopeFor(t, domain.EventDeleted, appt)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sched.payloads) != 1 {
		t.Fatalf("expected one reminder from the confirmed event, got %d", len(sched.payloads))
	}
}

func TestHandleEventPublishesToBus(t *testing.T) {
	bus := events.NewInMemoryBus(logger.Nop())
	var received []string
	bus.Subscribe(domain.EventCancelled, events.HandlerFunc(func(_ context.Context, env events.Envelope) error {
		received = append(received, env.Type)
		return nil
	}))

	handlers := NewTaskHandlers(&fakeReader{}, bus, nil, logger.Nop())
	task, err := NewEventTask(envelopeFor(t, domain.EventCancelled, sampleAppointment(domain.StatusCancelled)))
	if err != nil {
		t.Fatalf("expected task, got %v", err)
	}
	if err := handlers.HandleEvent(context.Background(), task); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected one delivered event, got %d", len(received))
	}
}

func TestHandleAppointmentReminder(t *testing.T) {
	appt := sampleAppointment(domain.StatusConfirmed)
	hub := live.NewHub(logger.Nop())
	sub := hub.Register(live.PatientTopic(appt.PatientID))
	handlers := NewTaskHandlers(&fakeReader{appt: appt}, nil, hub, logger.Nop())

	payload := AppointmentReminderPayload{AppointmentID: appt.ID.String(), Date: appt.Date, Time: appt.Time}
	task, _ := NewAppointmentReminderTask(payload)
	if err := handlers.HandleAppointmentReminder(context.Background(), task); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sub.Send) != 1 {
		t.Fatalf("expected reminder to reach the patient, got %d messages", len(sub.Send))
	}

	// Moved appointment: stale reminder is dropped.
	stale := AppointmentReminderPayload{AppointmentID: appt.ID.String(), Date: appt.Date, Time: "08:00"}
	task, _ = NewAppointmentReminderTask(stale)
	if err := handlers.HandleAppointmentReminder(context.Background(), task); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sub.Send) != 1 {
		t.Fatalf("expected stale reminder to be skipped, got %d messages", len(sub.Send))
	}

	// Deleted appointment: nothing to do.
	gone := AppointmentReminderPayload{AppointmentID: uuid.NewString(), Date: appt.Date, Time: appt.Time}
	task, _ = NewAppointmentReminderTask(gone)
	if err := handlers.HandleAppointmentReminder(context.Background(), task); err != nil {
		t.Fatalf("expected missing appointment to be ignored, got %v", err)
	}
}

type fakePruner struct {
	cutoffs []time.Time
}

func (f *fakePruner) DeleteFinishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, nil
}

func TestOutboxCleanupUsesRetention(t *testing.T) {
	pruner := &fakePruner{}
	cleanup := NewOutboxCleanup(pruner, logger.Nop(), time.Hour, 48*time.Hour)
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	cleanup.now = func() time.Time { return now }

	cleanup.cleanup(context.Background())

	if len(pruner.cutoffs) != 1 || !pruner.cutoffs[0].Equal(now.Add(-48*time.Hour)) {
		t.Fatalf("expected cutoff 48h before now, got %v", pruner.cutoffs)
	}
}
