package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"smarterdog/internal/calendar"
	"smarterdog/internal/config"
	"smarterdog/internal/domain"
	"smarterdog/internal/events"
	"smarterdog/internal/export"
	"smarterdog/internal/metrics"
	"smarterdog/internal/models"
	"smarterdog/internal/pricing"
	"smarterdog/internal/schedule"
	"smarterdog/internal/worker"

	"github.com/rs/zerolog"
)

// AppointmentService handles committed appointments: fees, cancellation,
// calendar export and reports.
type AppointmentService struct {
	store        domain.Datastore
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	business     config.BusinessConfig
	loc          *time.Location
	now          func() time.Time
	logger       *zerolog.Logger
}

func NewAppointmentService(store domain.Datastore, eventBus domain.EventPublisher, sheetsWorker domain.SyncWorker, business config.BusinessConfig, logger *zerolog.Logger) (*AppointmentService, error) {
	loc, err := time.LoadLocation(business.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", business.Timezone, err)
	}
	return &AppointmentService{
		store:        store,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		business:     business,
		loc:          loc,
		now:          time.Now,
		logger:       logger,
	}, nil
}

func (s *AppointmentService) Get(ctx context.Context, id string) (*models.Appointment, error) {
	return s.store.GetAppointment(ctx, id)
}

// FeeQuote is what cancelling an appointment right now would cost.
type FeeQuote struct {
	AppointmentID string  `json:"appointment_id"`
	HoursUntil    float64 `json:"hours_until"`
	FeeCents      int64   `json:"fee"`
	Formatted     string  `json:"formatted"`
	Cancellable   bool    `json:"cancellable"`
}

func (s *AppointmentService) CancellationFee(ctx context.Context, id string) (*FeeQuote, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	hours, err := s.hoursUntil(appt)
	if err != nil {
		return nil, err
	}
	fee := pricing.CalculateCancellationFee(appt.TotalCents, hours)
	return &FeeQuote{
		AppointmentID: appt.ID,
		HoursUntil:    hours,
		FeeCents:      fee,
		Formatted:     pricing.FormatPrice(fee),
		Cancellable:   appt.Status.Cancellable(),
	}, nil
}

// Cancel cancels the appointment and records the fee due at this moment.
func (s *AppointmentService) Cancel(ctx context.Context, id string) (*models.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	hours, err := s.hoursUntil(appt)
	if err != nil {
		return nil, err
	}
	fee := pricing.CalculateCancellationFee(appt.TotalCents, hours)

	cancelled, err := s.store.CancelAppointment(ctx, id, fee, now)
	if err != nil {
		return nil, err
	}

	metrics.AppointmentCancelled()
	s.publishEvent(events.EventAppointmentCancelled, cancelled)
	s.enqueueSync(ctx, worker.TaskUpdateStatus, cancelled)
	s.logger.Info().
		Str("appointment_id", id).
		Float64("hours_until", hours).
		Int64("fee", fee).
		Msg("appointment cancelled")
	return cancelled, nil
}

// RecordMatting stores the de-matting time found at the salon and its fee.
func (s *AppointmentService) RecordMatting(ctx context.Context, id string, minutes int) (*models.Appointment, error) {
	if minutes < 0 {
		return nil, fmt.Errorf("%w: matting minutes must not be negative", ErrInvalidRequest)
	}
	appt, err := s.store.UpdateMatting(ctx, id, minutes, pricing.CalculateMattingFee(minutes))
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventAppointmentUpdated, appt)
	s.enqueueSync(ctx, worker.TaskUpsert, appt)
	return appt, nil
}

// ICS renders the appointment as an iCalendar document.
func (s *AppointmentService) ICS(ctx context.Context, id string) (string, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return "", err
	}
	ev, err := s.calendarEvent(appt)
	if err != nil {
		return "", err
	}
	return calendar.ICS(ev, calendar.Options{
		ProdID:    s.business.ProdID,
		Domain:    s.business.CalendarDomain,
		CreatedAt: appt.CreatedAt,
	}), nil
}

func (s *AppointmentService) CalendarLink(ctx context.Context, id string) (string, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return "", err
	}
	ev, err := s.calendarEvent(appt)
	if err != nil {
		return "", err
	}
	return calendar.GoogleCalendarURL(ev), nil
}

// Export writes the appointments between from and to, inclusive, as xlsx.
func (s *AppointmentService) Export(ctx context.Context, from, to string, w io.Writer) error {
	fromDate, err := schedule.ParseDate(from)
	if err != nil {
		return err
	}
	toDate, err := schedule.ParseDate(to)
	if err != nil {
		return err
	}
	if toDate.Before(fromDate) {
		return fmt.Errorf("%w: from %s is after to %s", ErrInvalidRequest, from, to)
	}

	appts, err := s.store.ListAppointmentsInRange(ctx, from, to)
	if err != nil {
		return err
	}
	if err := export.WriteAppointments(w, from, to, appts); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	s.logger.Info().Str("from", from).Str("to", to).Int("appointments", len(appts)).Msg("appointments exported")
	return nil
}

func (s *AppointmentService) hoursUntil(appt *models.Appointment) (float64, error) {
	date, err := schedule.ParseDate(appt.Date)
	if err != nil {
		return 0, err
	}
	start, err := schedule.ParseClock(appt.StartTime)
	if err != nil {
		return 0, err
	}
	return schedule.HoursUntil(date, start, s.now(), s.loc), nil
}

func (s *AppointmentService) calendarEvent(appt *models.Appointment) (calendar.Event, error) {
	date, err := schedule.ParseDate(appt.Date)
	if err != nil {
		return calendar.Event{}, err
	}
	start, err := schedule.ParseClock(appt.StartTime)
	if err != nil {
		return calendar.Event{}, err
	}
	startAt := schedule.At(date, start, s.loc)

	petName := "your dog"
	if appt.Pet != nil && appt.Pet.Name != "" {
		petName = appt.Pet.Name
	}
	names := make([]string, 0, len(appt.Services))
	for _, li := range appt.Services {
		names = append(names, li.Name)
	}

	var desc strings.Builder
	fmt.Fprintf(&desc, "Grooming appointment for %s\n", petName)
	if len(names) > 0 {
		fmt.Fprintf(&desc, "Services: %s\n", strings.Join(names, ", "))
	}
	if appt.GroomerName != "" {
		fmt.Fprintf(&desc, "Groomer: %s\n", appt.GroomerName)
	}
	fmt.Fprintf(&desc, "Total: %s\n", pricing.FormatPrice(appt.TotalCents))
	fmt.Fprintf(&desc, "Deposit: %s\n", pricing.FormatPrice(appt.DepositCents))
	fmt.Fprintf(&desc, "Booking reference: %s", appt.ID)

	return calendar.Event{
		Title:       fmt.Sprintf("%s: %s grooming", s.business.Name, petName),
		Description: desc.String(),
		Location:    s.business.Location,
		Start:       startAt,
		End:         startAt.Add(time.Duration(appt.DurationMinutes) * time.Minute),
	}, nil
}

func (s *AppointmentService) publishEvent(eventType string, appt *models.Appointment) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, events.NewAppointmentPayload(appt)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("appointment_id", appt.ID).Msg("publish event error")
	}
}

func (s *AppointmentService) enqueueSync(ctx context.Context, taskType string, appt *models.Appointment) {
	if s.sheetsWorker == nil {
		return
	}
	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, appt); err != nil {
		s.logger.Error().Err(err).Str("appointment_id", appt.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}
