package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"clinicbook_backend/internal/appointments/domain"
	"clinicbook_backend/internal/notification/live"
	"clinicbook_backend/platform/apperr"
	"clinicbook_backend/platform/config"
	"clinicbook_backend/platform/events"
	"clinicbook_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// AppointmentReader loads the current state of an appointment.
type AppointmentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Appointment, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	tasks  *TaskHandlers
	log    *logger.Logger
}

// TaskHandlers holds the asynq handler funcs. They are separate from the
// server so they can be exercised without Redis.
type TaskHandlers struct {
	appointments AppointmentReader
	bus          events.Bus
	live         live.Publisher
	now          func() time.Time
	log          *logger.Logger
}

func NewTaskHandlers(appointments AppointmentReader, bus events.Bus, liveSink live.Publisher, log *logger.Logger) *TaskHandlers {
	return &TaskHandlers{
		appointments: appointments,
		bus:          bus,
		live:         liveSink,
		now:          time.Now,
		log:          log,
	}
}

func NewWorker(cfg config.SchedulerConfig, tasks *TaskHandlers, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	for _, eventType := range domain.EventTypes {
		mux.HandleFunc(eventType, tasks.HandleEvent)
	}
	mux.HandleFunc(TaskAppointmentReminder, tasks.HandleAppointmentReminder)

	return &Worker{server: server, mux: mux, tasks: tasks, log: log}, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// HandleEvent hands a broker-delivered appointment event to local subscribers.
func (h *TaskHandlers) HandleEvent(ctx context.Context, task *asynq.Task) error {
	env, err := ParseEventTask(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if h.bus == nil {
		return nil
	}
	return h.bus.PublishSync(ctx, env)
}

// HandleAppointmentReminder pushes a reminder if the appointment is still
// active and has not moved since the reminder was scheduled.
func (h *TaskHandlers) HandleAppointmentReminder(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAppointmentReminderPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	apptID, err := uuid.Parse(payload.AppointmentID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	appt, err := h.appointments.GetByID(ctx, apptID)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if appt.Status.IsTerminal() || !appt.Status.IsActive() {
		return nil
	}
	if appt.Date != payload.Date || appt.Time != payload.Time {
		return nil
	}
	if h.live == nil {
		return nil
	}

	env, err := events.Wrap(appt.ID, domain.NewEvent(domain.EventReminder, appt, h.now()))
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	for _, topic := range live.TopicsFor(&appt.PatientID) {
		if err := h.live.Publish(ctx, topic, data); err != nil {
			return err
		}
	}
	h.log.Info("appointment reminder sent", "appointment_id", appt.ID.String(), "number", appt.Number)
	return nil
}
