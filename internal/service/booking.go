package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"smarterdog/internal/config"
	"smarterdog/internal/database"
	"smarterdog/internal/domain"
	"smarterdog/internal/events"
	"smarterdog/internal/metrics"
	"smarterdog/internal/models"
	"smarterdog/internal/phone"
	"smarterdog/internal/pricing"
	"smarterdog/internal/schedule"
	"smarterdog/internal/wizard"
	"smarterdog/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type BookingOptions struct {
	SubmitLockTTL time.Duration
	SubmitTimeout time.Duration
	DepositPct    float64
	// StartLimit sessions per client and StartWindow.
	StartLimit  int
	StartWindow time.Duration
}

func BookingOptionsFromConfig(cfg *config.Config) BookingOptions {
	return BookingOptions{
		SubmitLockTTL: cfg.Wizard.SubmitLockTTL(),
		SubmitTimeout: cfg.Wizard.SubmitTimeout(),
		DepositPct:    cfg.Business.DepositPercentage,
		StartLimit:    30,
		StartWindow:   time.Hour,
	}
}

// Session is a wizard state as returned to the client.
type Session struct {
	ID       string `json:"id"`
	StepName string `json:"step_name"`
	wizard.State
}

func newSession(id string, st wizard.State) *Session {
	return &Session{ID: id, StepName: st.Step.String(), State: st}
}

// BookingService drives the booking wizard for one session at a time and
// commits the finished draft as an appointment.
type BookingService struct {
	sessions     domain.DraftRepository
	guard        domain.SubmissionGuard
	store        domain.Datastore
	catalog      *CatalogService
	availability *AvailabilityService
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	opts         BookingOptions
	logger       *zerolog.Logger
}

func NewBookingService(
	sessions domain.DraftRepository,
	guard domain.SubmissionGuard,
	store domain.Datastore,
	catalog *CatalogService,
	availability *AvailabilityService,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	opts BookingOptions,
	logger *zerolog.Logger,
) *BookingService {
	if opts.SubmitLockTTL <= 0 {
		opts.SubmitLockTTL = 30 * time.Second
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 10 * time.Second
	}
	if opts.DepositPct <= 0 {
		opts.DepositPct = pricing.DefaultDepositPercentage
	}
	return &BookingService{
		sessions:     sessions,
		guard:        guard,
		store:        store,
		catalog:      catalog,
		availability: availability,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		opts:         opts,
		logger:       logger,
	}
}

// Start opens a new wizard session. clientKey identifies the caller for
// rate limiting; empty disables the limit.
func (s *BookingService) Start(ctx context.Context, clientKey string) (*Session, error) {
	if clientKey != "" && s.opts.StartLimit > 0 {
		allowed, err := s.sessions.CheckRateLimit(ctx, "start:"+clientKey, s.opts.StartLimit, s.opts.StartWindow)
		if err != nil {
			s.logger.Warn().Err(err).Str("client", clientKey).Msg("rate limit check failed")
		} else if !allowed {
			metrics.IncWizard("start", "rate_limited")
			return nil, ErrRateLimited
		}
	}

	id := uuid.NewString()
	st := wizard.New()
	if err := s.sessions.SetSession(ctx, id, &st); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	metrics.IncWizard("start", "ok")
	s.logger.Debug().Str("session_id", id).Msg("booking session started")
	return newSession(id, st), nil
}

func (s *BookingService) Get(ctx context.Context, id string) (*Session, error) {
	st, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return newSession(id, *st), nil
}

// Next validates the current step with patch applied and moves forward.
func (s *BookingService) Next(ctx context.Context, id string, patch models.DraftPatch) (*Session, error) {
	st, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if !st.Confirmed && !st.Submitting {
		if err := s.enrich(ctx, st, &patch); err != nil {
			metrics.IncWizard("next", "rejected")
			return nil, err
		}
	}

	next, err := wizard.Transition(*st, wizard.Advance{Patch: patch})
	if err != nil {
		metrics.IncWizard("next", "rejected")
		return nil, err
	}
	if st.Step == wizard.StepAddOns && next.Step == wizard.StepReview {
		if err := s.attachQuote(ctx, &next); err != nil {
			metrics.IncWizard("next", "rejected")
			return nil, err
		}
	}

	return s.save(ctx, id, next, "next")
}

func (s *BookingService) Back(ctx context.Context, id string) (*Session, error) {
	st, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := wizard.Transition(*st, wizard.Back{})
	if err != nil {
		metrics.IncWizard("back", "rejected")
		return nil, err
	}
	return s.save(ctx, id, next, "back")
}

// Skip leaves the add-ons step without add-ons.
func (s *BookingService) Skip(ctx context.Context, id string) (*Session, error) {
	st, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := wizard.Transition(*st, wizard.SkipAddOns{})
	if err != nil {
		metrics.IncWizard("skip", "rejected")
		return nil, err
	}
	if err := s.attachQuote(ctx, &next); err != nil {
		metrics.IncWizard("skip", "rejected")
		return nil, err
	}
	return s.save(ctx, id, next, "skip")
}

// Slots lists start times for the session's selected date, sized for the
// pet and services chosen so far.
func (s *BookingService) Slots(ctx context.Context, id string) ([]models.TimeSlot, error) {
	st, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Draft.SelectedDate == "" {
		return nil, fmt.Errorf("%w: no date selected", ErrInvalidRequest)
	}
	return s.availability.Slots(ctx, st.Draft.SelectedDate, s.draftDuration(ctx, st.Draft))
}

// Submit commits the draft. A retry from the same session with the same
// idempotency key returns the appointment created by the first submission.
// Keys are scoped to the session, so another session reusing a key books
// on its own.
func (s *BookingService) Submit(ctx context.Context, id, idempotencyKey string) (*Session, *models.Appointment, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, nil, err
	}

	owner := uuid.NewString()
	locked, err := s.guard.AcquireSubmitLock(ctx, id, owner, s.opts.SubmitLockTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire submit lock: %w", err)
	}
	if !locked {
		metrics.IncWizard("submit", "locked")
		return nil, nil, ErrSubmitLocked
	}
	defer func() {
		if err := s.guard.ReleaseSubmitLock(context.WithoutCancel(ctx), id, owner); err != nil {
			s.logger.Warn().Err(err).Str("session_id", id).Msg("release submit lock")
		}
	}()

	// Состояние читаем только под блокировкой: пока мы ждали, другая
	// отправка могла подтвердить бронь.
	st, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if st.Confirmed {
		metrics.IncWizard("submit", "rejected")
		return newSession(id, *st), s.confirmedAppointment(ctx, id, st.AppointmentID), wizard.ErrBookingClosed
	}

	// Флаг остался от прерванной отправки: блокировка наша, значит никто
	// другой сейчас не отправляет.
	if st.Submitting {
		recovered, err := wizard.Transition(*st, wizard.SubmitFailed{Reason: "previous submission interrupted"})
		if err == nil {
			st = &recovered
		}
	}

	if idempotencyKey == "" && st.IdempotencyKey == "" {
		idempotencyKey = "session:" + id
	}
	inFlight, err := wizard.Transition(*st, wizard.Submit{IdempotencyKey: idempotencyKey})
	if err != nil {
		metrics.IncWizard("submit", "rejected")
		return nil, nil, err
	}
	if err := s.sessions.SetSession(ctx, id, &inFlight); err != nil {
		return nil, nil, fmt.Errorf("save session: %w", err)
	}

	appt, created, err := s.commit(ctx, id, inFlight)
	if err != nil {
		failed, terr := wizard.Transition(inFlight, wizard.SubmitFailed{Reason: err.Error()})
		if terr != nil {
			return nil, nil, errors.Join(err, terr)
		}
		if serr := s.sessions.SetSession(context.WithoutCancel(ctx), id, &failed); serr != nil {
			s.logger.Error().Err(serr).Str("session_id", id).Msg("save failed submission")
		}
		if errors.Is(err, database.ErrSlotTaken) {
			metrics.SlotConflict()
		}
		metrics.IncWizard("submit", "failed")
		s.logger.Warn().Err(err).Str("session_id", id).Msg("booking submission failed")
		return newSession(id, failed), nil, err
	}

	done, err := wizard.Transition(inFlight, wizard.SubmitSucceeded{AppointmentID: appt.ID})
	if err != nil {
		return nil, nil, err
	}
	if err := s.sessions.SetSession(context.WithoutCancel(ctx), id, &done); err != nil {
		s.logger.Error().Err(err).Str("session_id", id).Str("appointment_id", appt.ID).Msg("save confirmed session")
	}

	if created {
		metrics.AppointmentCreated(appt.TotalCents)
		s.publishEvent(events.EventAppointmentCreated, appt)
		s.enqueueSync(ctx, worker.TaskUpsert, appt)
		s.logger.Info().
			Str("appointment_id", appt.ID).
			Str("date", appt.Date).
			Str("start_time", appt.StartTime).
			Str("groomer_id", appt.GroomerID).
			Int64("total", appt.TotalCents).
			Msg("appointment booked")
	}
	metrics.IncWizard("submit", "ok")
	return newSession(id, done), appt, nil
}

// scopedIdempotencyKey is the key stored with the appointment.
func scopedIdempotencyKey(sessionID, key string) string {
	if key == "" {
		return ""
	}
	return sessionID + ":" + key
}

func (s *BookingService) confirmedAppointment(ctx context.Context, sessionID, apptID string) *models.Appointment {
	if apptID == "" {
		return nil
	}
	appt, err := s.store.GetAppointment(ctx, apptID)
	if err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Str("appointment_id", apptID).Msg("load confirmed appointment")
		return nil
	}
	return appt
}

func (s *BookingService) load(ctx context.Context, id string) (*wizard.State, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}
	st, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if st == nil {
		return nil, ErrSessionNotFound
	}
	return st, nil
}

func (s *BookingService) save(ctx context.Context, id string, st wizard.State, action string) (*Session, error) {
	if err := s.sessions.SetSession(ctx, id, &st); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	metrics.IncWizard(action, "ok")
	return newSession(id, st), nil
}

// enrich resolves the client's choices for the current step against the
// catalog and the schedule before the wizard validates them.
func (s *BookingService) enrich(ctx context.Context, st *wizard.State, patch *models.DraftPatch) error {
	switch st.Step {
	case wizard.StepService:
		if patch.MainService == nil {
			return nil
		}
		svc, err := s.catalog.mainService(ctx, patch.MainService.ID)
		if err != nil {
			return err
		}
		patch.MainService = &models.ServiceRef{ID: svc.ID, Name: svc.Name, Type: svc.Type}

	case wizard.StepPet:
		if patch.Customer != nil {
			c := *patch.Customer
			c.FirstName = strings.TrimSpace(c.FirstName)
			c.LastName = strings.TrimSpace(c.LastName)
			c.Email = strings.ToLower(strings.TrimSpace(c.Email))
			c.Phone = phone.Format(c.Phone)
			patch.Customer = &c
		}
		if patch.Pet != nil {
			p := *patch.Pet
			p.Name = strings.TrimSpace(p.Name)
			if size, err := models.ParseSizeCategory(string(p.Size)); err == nil {
				p.Size = size
			}
			if coat, err := models.ParseCoatType(string(p.CoatType)); err == nil {
				p.CoatType = coat
			}
			patch.Pet = &p
		}

	case wizard.StepDate:
		if patch.SelectedDate == "" {
			return nil
		}
		if _, err := s.availability.CheckDate(patch.SelectedDate); err != nil {
			return err
		}
		if patch.SelectedDate != st.Draft.SelectedDate {
			st.Draft.SelectedTime = ""
			st.Draft.GroomerID = ""
			st.Draft.GroomerName = ""
		}

	case wizard.StepTime:
		startTime := patch.SelectedTime
		if startTime == "" {
			startTime = st.Draft.SelectedTime
		}
		if startTime == "" {
			return nil
		}
		g, c, err := s.availability.Reserve(ctx, st.Draft.SelectedDate, startTime, s.draftDuration(ctx, st.Draft), patch.GroomerID)
		if err != nil {
			return err
		}
		patch.SelectedTime = c.String()
		patch.GroomerID = g.ID
		patch.GroomerName = g.Name

	case wizard.StepAddOns:
		if patch.AddOnIDs == nil {
			return nil
		}
		if st.Draft.Pet == nil {
			return &wizard.MissingFieldsError{Step: wizard.StepPet, Fields: []string{"pet"}}
		}
		addOns, err := s.catalog.addOnServices(ctx, patch.AddOnIDs)
		if err != nil {
			return err
		}
		lines := make([]models.LineItem, 0, len(addOns))
		for _, a := range addOns {
			lines = append(lines, pricing.LineItemFor(a, st.Draft.Pet.Size))
		}
		patch.AddOns = lines
	}
	return nil
}

// attachQuote prices the draft and re-checks that the groomer is free for
// the full duration including add-ons.
func (s *BookingService) attachQuote(ctx context.Context, st *wizard.State) error {
	q, err := s.quote(ctx, st.Draft)
	if err != nil {
		return err
	}

	d := &st.Draft
	if d.SelectedDate != "" && d.SelectedTime != "" {
		if _, _, err := s.availability.Reserve(ctx, d.SelectedDate, d.SelectedTime, q.DurationMinutes, d.GroomerID); err != nil {
			return err
		}
	}

	subtotal, deposit, total := q.SubtotalCents, q.DepositCents, q.TotalCents
	d.Subtotal = &subtotal
	d.Deposit = &deposit
	d.Total = &total
	d.DurationMinutes = q.DurationMinutes
	return nil
}

// quote prices the draft from the catalog. Add-on prices are resolved again
// so the stored totals never come from the client.
func (s *BookingService) quote(ctx context.Context, d models.BookingDraft) (pricing.Quote, error) {
	if d.MainService == nil {
		return pricing.Quote{}, &wizard.MissingFieldsError{Step: wizard.StepService, Fields: []string{"main_service"}}
	}
	if d.Pet == nil {
		return pricing.Quote{}, &wizard.MissingFieldsError{Step: wizard.StepPet, Fields: []string{"pet"}}
	}

	main, err := s.catalog.mainService(ctx, d.MainService.ID)
	if err != nil {
		return pricing.Quote{}, err
	}
	ids := make([]string, 0, len(d.AddOns))
	for _, a := range d.AddOns {
		ids = append(ids, a.ServiceID)
	}
	addOns, err := s.catalog.addOnServices(ctx, ids)
	if err != nil {
		return pricing.Quote{}, err
	}

	q := pricing.BuildQuote(*main, addOns, d.Pet.Size, d.Pet.CoatType, s.opts.DepositPct)
	if q.MainPriceMissing {
		s.logger.Warn().Str("service_id", main.ID).Str("size", string(d.Pet.Size)).Msg("main service resolved to zero price")
	}
	return q, nil
}

// draftDuration is the estimated duration of the draft, or zero while the
// service or pet is still unknown.
func (s *BookingService) draftDuration(ctx context.Context, d models.BookingDraft) int {
	if d.DurationMinutes > 0 {
		return d.DurationMinutes
	}
	if d.MainService == nil || d.Pet == nil {
		return 0
	}
	q, err := s.quote(ctx, d)
	if err != nil {
		s.logger.Debug().Err(err).Msg("estimate draft duration")
		return 0
	}
	return q.DurationMinutes
}

func (s *BookingService) commit(ctx context.Context, id string, st wizard.State) (*models.Appointment, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SubmitTimeout)
	defer cancel()

	d := st.Draft
	if _, err := s.availability.CheckDate(d.SelectedDate); err != nil {
		return nil, false, err
	}
	start, err := schedule.ParseClock(d.SelectedTime)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	q, err := s.quote(ctx, d)
	if err != nil {
		return nil, false, err
	}
	if d.Total != nil && *d.Total != q.TotalCents {
		s.logger.Warn().
			Int64("draft_total", *d.Total).
			Int64("total", q.TotalCents).
			Msg("catalog prices changed during booking")
	}

	na := &models.NewAppointment{
		Appointment: models.Appointment{
			CustomerID:      d.CustomerID,
			GroomerID:       d.GroomerID,
			Date:            d.SelectedDate,
			StartTime:       start.String(),
			DurationMinutes: q.DurationMinutes,
			Status:          models.StatusPending,
			Services:        append([]models.LineItem{q.Main}, q.AddOns...),
			SubtotalCents:   q.SubtotalCents,
			DepositCents:    q.DepositCents,
			TotalCents:      q.TotalCents,
			CustomerNotes:   strings.TrimSpace(d.CustomerNotes),
			IdempotencyKey:  scopedIdempotencyKey(id, st.IdempotencyKey),
		},
		Pet: models.Pet{
			CustomerID:        d.CustomerID,
			Name:              d.Pet.Name,
			Breed:             d.Pet.Breed,
			Size:              d.Pet.Size,
			CoatType:          d.Pet.CoatType,
			WeightLbs:         d.Pet.WeightLbs,
			BehavioralNotes:   d.Pet.BehavioralNotes,
			MedicalConditions: d.Pet.MedicalConditions,
		},
	}
	if d.Customer != nil {
		na.Customer = &models.Customer{
			FirstName: d.Customer.FirstName,
			LastName:  d.Customer.LastName,
			Email:     strings.ToLower(strings.TrimSpace(d.Customer.Email)),
			Phone:     phone.Format(d.Customer.Phone),
		}
	}

	return s.store.CreateAppointment(ctx, na)
}

func (s *BookingService) publishEvent(eventType string, appt *models.Appointment) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, events.NewAppointmentPayload(appt)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("appointment_id", appt.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, taskType string, appt *models.Appointment) {
	if s.sheetsWorker == nil {
		return
	}
	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, appt); err != nil {
		s.logger.Error().Err(err).Str("appointment_id", appt.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}
