package service

import (
	"context"
	"fmt"
	"time"

	"smarterdog/internal/config"
	"smarterdog/internal/domain"
	"smarterdog/internal/models"
	"smarterdog/internal/schedule"

	"github.com/rs/zerolog"
)

// AvailabilityService publishes bookable dates and start times.
type AvailabilityService struct {
	store    domain.Datastore
	filter   schedule.DateFilter
	first    schedule.Clock
	last     schedule.Clock
	interval int
	loc      *time.Location
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewAvailabilityService(store domain.Datastore, cfg config.BusinessConfig, logger *zerolog.Logger) (*AvailabilityService, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	openDays, err := cfg.OpenWeekdays()
	if err != nil {
		return nil, err
	}

	first, last := schedule.FirstSlot, schedule.LastSlot
	if cfg.FirstSlot != "" {
		if first, err = schedule.ParseClock(cfg.FirstSlot); err != nil {
			return nil, fmt.Errorf("first slot: %w", err)
		}
	}
	if cfg.LastSlot != "" {
		if last, err = schedule.ParseClock(cfg.LastSlot); err != nil {
			return nil, fmt.Errorf("last slot: %w", err)
		}
	}

	return &AvailabilityService{
		store:    store,
		filter:   schedule.NewDateFilter(openDays, cfg.BookingHorizonDays, loc),
		first:    first,
		last:     last,
		interval: cfg.SlotIntervalMinutes,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
	}, nil
}

func (s *AvailabilityService) Location() *time.Location {
	return s.loc
}

// MonthCalendar returns every day of a YYYY-MM month with its availability.
func (s *AvailabilityService) MonthCalendar(month string) ([]schedule.Day, error) {
	year, m, err := schedule.ParseMonth(month)
	if err != nil {
		return nil, err
	}
	return s.filter.MonthDays(year, m, s.now()), nil
}

// CheckDate parses a booking date and applies the date filter.
func (s *AvailabilityService) CheckDate(date string) (time.Time, error) {
	d, err := schedule.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.filter.Check(d, s.now()); err != nil {
		return time.Time{}, err
	}
	return d, nil
}

// Slots lists the start times of a date. A slot is available when at least
// one active groomer is free for durationMinutes from that time; the first
// free groomer is attached to it.
func (s *AvailabilityService) Slots(ctx context.Context, date string, durationMinutes int) ([]models.TimeSlot, error) {
	d, err := s.CheckDate(date)
	if err != nil {
		return nil, err
	}
	groomers, appts, err := s.dayState(ctx, date)
	if err != nil {
		return nil, err
	}

	duration := s.slotDuration(durationMinutes)
	now := s.now()
	slots := make([]models.TimeSlot, 0, 16)
	for c := range schedule.GenerateTimeSlots(s.first, s.last, s.interval) {
		slot := models.TimeSlot{Time: c.String()}
		if schedule.At(d, c, s.loc).After(now) {
			if g := firstFreeGroomer(groomers, appts, c, duration, ""); g != nil {
				slot.Available = true
				slot.GroomerID = g.ID
				slot.GroomerName = g.Name
			}
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// Reserve finds the groomer for a start time. preferredID restricts the
// search to one groomer. ErrSlotUnavailable is returned when nobody is free.
func (s *AvailabilityService) Reserve(ctx context.Context, date, startTime string, durationMinutes int, preferredID string) (*models.Groomer, schedule.Clock, error) {
	d, err := s.CheckDate(date)
	if err != nil {
		return nil, 0, err
	}
	c, err := schedule.ParseClock(startTime)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if !s.onGrid(c) {
		return nil, 0, fmt.Errorf("%w: %s is not a bookable start time", ErrSlotUnavailable, c.Short())
	}
	if !schedule.At(d, c, s.loc).After(s.now()) {
		return nil, 0, fmt.Errorf("%w: %s has already passed", ErrSlotUnavailable, c.Short())
	}

	groomers, appts, err := s.dayState(ctx, date)
	if err != nil {
		return nil, 0, err
	}
	g := firstFreeGroomer(groomers, appts, c, s.slotDuration(durationMinutes), preferredID)
	if g == nil {
		return nil, 0, fmt.Errorf("%w: %s %s", ErrSlotUnavailable, date, c.Short())
	}
	return g, c, nil
}

func (s *AvailabilityService) dayState(ctx context.Context, date string) ([]models.Groomer, []models.Appointment, error) {
	groomers, err := s.store.ListGroomers(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list groomers: %w", err)
	}
	appts, err := s.store.ListAppointmentsByDate(ctx, date)
	if err != nil {
		return nil, nil, fmt.Errorf("list appointments: %w", err)
	}
	return groomers, appts, nil
}

func (s *AvailabilityService) onGrid(c schedule.Clock) bool {
	for slot := range schedule.GenerateTimeSlots(s.first, s.last, s.interval) {
		if slot == c {
			return true
		}
	}
	return false
}

func (s *AvailabilityService) slotDuration(minutes int) int {
	if minutes > 0 {
		return minutes
	}
	if s.interval > 0 {
		return s.interval
	}
	return schedule.DefaultIntervalMinutes
}

func firstFreeGroomer(groomers []models.Groomer, appts []models.Appointment, start schedule.Clock, minutes int, preferredID string) *models.Groomer {
	for i := range groomers {
		g := &groomers[i]
		if !g.IsActive || (preferredID != "" && g.ID != preferredID) {
			continue
		}
		if groomerFree(g.ID, appts, start, minutes) {
			return g
		}
	}
	return nil
}

func groomerFree(groomerID string, appts []models.Appointment, start schedule.Clock, minutes int) bool {
	for _, a := range appts {
		if a.GroomerID != groomerID || !a.Status.Blocking() {
			continue
		}
		aStart, err := schedule.ParseClock(a.StartTime)
		if err != nil {
			continue
		}
		if schedule.Overlaps(start, minutes, aStart, a.DurationMinutes) {
			return false
		}
	}
	return true
}
