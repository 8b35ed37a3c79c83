package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"clinicbook_backend/internal/appointments/domain"
	"clinicbook_backend/platform/events"
	"clinicbook_backend/platform/logger"
)

// DefaultReminderLead is how long before the start a reminder fires.
const DefaultReminderLead = 24 * time.Hour

// ReminderPlanner schedules a reminder whenever an appointment is booked,
// confirmed or moved.
type ReminderPlanner struct {
	scheduler ReminderScheduler
	loc       *time.Location
	lead      time.Duration
	now       func() time.Time
	log       *logger.Logger
}

func NewReminderPlanner(scheduler ReminderScheduler, loc *time.Location, lead time.Duration, log *logger.Logger) *ReminderPlanner {
	if loc == nil {
		loc = time.UTC
	}
	if lead <= 0 {
		lead = DefaultReminderLead
	}
	return &ReminderPlanner{scheduler: scheduler, loc: loc, lead: lead, now: time.Now, log: log}
}

// Subscribe registers the planner on bus.
func (p *ReminderPlanner) Subscribe(bus events.Bus) {
	handler := events.HandlerFunc(p.Handle)
	bus.Subscribe(domain.EventCreated, handler)
	bus.Subscribe(domain.EventConfirmed, handler)
	bus.Subscribe(domain.EventUpdated, handler)
}

func (p *ReminderPlanner) Handle(ctx context.Context, env events.Envelope) error {
	var event domain.AppointmentEvent
	if err := json.Unmarshal(env.Data, &event); err != nil {
		p.log.Warn("ignoring undecodable appointment event", "event_id", env.ID.String(), "error", err)
		return nil
	}
	snap := event.Appointment
	if snap.Status.IsTerminal() || !snap.Status.IsActive() {
		return nil
	}

	start, err := domain.ParseSlot(snap.Date, snap.Time, p.loc)
	if err != nil {
		return nil
	}
	runAt := start.Add(-p.lead)
	if !runAt.After(p.now()) {
		return nil
	}

	return p.scheduler.ScheduleAppointmentReminder(ctx, AppointmentReminderPayload{
		AppointmentID: snap.ID.String(),
		Date:          snap.Date,
		Time:          snap.Time,
	}, runAt)
}
