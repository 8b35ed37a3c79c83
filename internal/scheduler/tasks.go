package scheduler

import (
	"encoding/json"
	"fmt"

	"clinicbook_backend/platform/events"

	"github.com/hibiken/asynq"
)

const TaskAppointmentReminder = "appointments.reminder"

type AppointmentReminderPayload struct {
	AppointmentID string `json:"appointmentId"`
	Date          string `json:"appointmentDate"`
	Time          string `json:"appointmentTime"`
}

// NewEventTask wraps an envelope in a task typed by the event type.
func NewEventTask(env events.Envelope) (*asynq.Task, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(env.Type, data), nil
}

func ParseEventTask(task *asynq.Task) (events.Envelope, error) {
	var env events.Envelope
	if err := json.Unmarshal(task.Payload(), &env); err != nil {
		return events.Envelope{}, err
	}
	if env.Type != task.Type() {
		return events.Envelope{}, fmt.Errorf("envelope type %q does not match task type %q", env.Type, task.Type())
	}
	return env, nil
}

func NewAppointmentReminderTask(payload AppointmentReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAppointmentReminder, data), nil
}

func ParseAppointmentReminderPayload(task *asynq.Task) (AppointmentReminderPayload, error) {
	var payload AppointmentReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AppointmentReminderPayload{}, err
	}
	return payload, nil
}

// reminderTaskID keys a reminder by appointment and slot, so re-scheduling
// the same slot is a no-op and a moved appointment gets a new reminder.
func reminderTaskID(p AppointmentReminderPayload) string {
	return "reminder:" + p.AppointmentID + ":" + p.Date + "T" + p.Time
}
