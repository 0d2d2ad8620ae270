package wizard

import (
	"fmt"

	"smarterdog/internal/models"
)

// Transition applies a to s. On error the returned state equals s.
func Transition(s State, a Action) (State, error) {
	if s.Confirmed {
		return s, ErrBookingClosed
	}
	if !s.Step.Valid() {
		s.Step = FirstStep
	}

	switch a := a.(type) {
	case Advance:
		return advance(s, a)
	case Back:
		return back(s)
	case SkipAddOns:
		return skipAddOns(s)
	case Submit:
		return submit(s, a)
	case SubmitSucceeded:
		return submitSucceeded(s, a)
	case SubmitFailed:
		return submitFailed(s, a)
	default:
		return s, fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
}

func advance(s State, a Advance) (State, error) {
	if s.Submitting {
		return s, ErrSubmissionInFlight
	}

	next := s
	next.Draft = Merge(s.Draft, a.Patch)
	if next.Step == StepAddOns && next.Draft.AddOns == nil {
		next.Draft.AddOns = []models.LineItem{}
	}
	if err := ValidateStep(next.Step, next.Draft); err != nil {
		return s, err
	}
	next.Step = clamp(next.Step + 1)
	return next, nil
}

func back(s State) (State, error) {
	if s.Submitting {
		return s, ErrSubmissionInFlight
	}
	s.Step = clamp(s.Step - 1)
	return s, nil
}

func skipAddOns(s State) (State, error) {
	if s.Step != StepAddOns {
		return s, fmt.Errorf("%w: skip on %s", ErrWrongStep, s.Step)
	}
	s.Draft.AddOns = []models.LineItem{}
	s.Step = StepReview
	return s, nil
}

func submit(s State, a Submit) (State, error) {
	if s.Step != StepPayment {
		return s, fmt.Errorf("%w: submit on %s", ErrWrongStep, s.Step)
	}
	if s.Submitting {
		return s, ErrSubmissionInFlight
	}

	key := a.IdempotencyKey
	if key == "" {
		key = s.IdempotencyKey
	}
	if key == "" {
		return s, &MissingFieldsError{Step: StepPayment, Fields: []string{"idempotency_key"}}
	}
	if err := ValidateDraft(s.Draft); err != nil {
		return s, err
	}

	s.Submitting = true
	s.IdempotencyKey = key
	s.LastError = ""
	return s, nil
}

func submitSucceeded(s State, a SubmitSucceeded) (State, error) {
	if !s.Submitting {
		return s, ErrNotSubmitting
	}
	s.Submitting = false
	s.Confirmed = true
	s.AppointmentID = a.AppointmentID
	s.LastError = ""
	return s, nil
}

func submitFailed(s State, a SubmitFailed) (State, error) {
	if !s.Submitting {
		return s, ErrNotSubmitting
	}
	s.Submitting = false
	s.LastError = a.Reason
	return s, nil
}

func clamp(step Step) Step {
	switch {
	case step < FirstStep:
		return FirstStep
	case step > LastStep:
		return LastStep
	}
	return step
}

// Merge overlays the set fields of p onto d.
func Merge(d models.BookingDraft, p models.DraftPatch) models.BookingDraft {
	if p.MainService != nil {
		ref := *p.MainService
		d.MainService = &ref
	}
	if p.IsNewCustomer != nil {
		d.IsNewCustomer = *p.IsNewCustomer
	}
	if p.CustomerID != "" {
		d.CustomerID = p.CustomerID
	}
	if p.Customer != nil {
		c := *p.Customer
		d.Customer = &c
	}
	if p.Pet != nil {
		pet := *p.Pet
		d.Pet = &pet
	}
	if p.SelectedDate != "" {
		d.SelectedDate = p.SelectedDate
	}
	if p.SelectedTime != "" {
		d.SelectedTime = p.SelectedTime
	}
	if p.GroomerID != "" {
		d.GroomerID = p.GroomerID
	}
	if p.GroomerName != "" {
		d.GroomerName = p.GroomerName
	}
	if p.AddOns != nil {
		d.AddOns = append([]models.LineItem{}, p.AddOns...)
	}
	if p.Subtotal != nil {
		d.Subtotal = p.Subtotal
	}
	if p.Deposit != nil {
		d.Deposit = p.Deposit
	}
	if p.Total != nil {
		d.Total = p.Total
	}
	if p.DurationMinutes != 0 {
		d.DurationMinutes = p.DurationMinutes
	}
	if p.CustomerNotes != "" {
		d.CustomerNotes = p.CustomerNotes
	}
	return d
}
