// Package wizard is the booking wizard state machine. Transition is pure:
// it never touches storage, and the caller persists the returned State.
package wizard

import (
	"errors"
	"fmt"
	"strings"

	"smarterdog/internal/models"
)

type Step int

const (
	StepService Step = iota + 1
	StepPet
	StepDate
	StepTime
	StepAddOns
	StepReview
	StepPayment
)

const (
	FirstStep = StepService
	LastStep  = StepPayment
)

var stepNames = map[Step]string{
	StepService: "service",
	StepPet:     "pet",
	StepDate:    "date",
	StepTime:    "time",
	StepAddOns:  "add_ons",
	StepReview:  "review",
	StepPayment: "payment",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

func (s Step) Valid() bool {
	return s >= FirstStep && s <= LastStep
}

var (
	ErrMissingFields      = errors.New("missing required fields")
	ErrSubmissionInFlight = errors.New("submission already in flight")
	ErrNotSubmitting      = errors.New("no submission in flight")
	ErrWrongStep          = errors.New("action not allowed on this step")
	ErrBookingClosed      = errors.New("booking already confirmed")
	ErrUnknownAction      = errors.New("unknown wizard action")
)

// MissingFieldsError lists the fields that blocked a step.
type MissingFieldsError struct {
	Step   Step
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%s step: %s: %s", e.Step, ErrMissingFields, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Unwrap() error {
	return ErrMissingFields
}

// State is one wizard session.
type State struct {
	Step           Step                `json:"step"`
	Draft          models.BookingDraft `json:"draft"`
	Submitting     bool                `json:"submitting"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
	AppointmentID  string              `json:"appointment_id,omitempty"`
	Confirmed      bool                `json:"confirmed"`
	LastError      string              `json:"last_error,omitempty"`
}

func New() State {
	return State{Step: FirstStep}
}

// Action is one of Advance, Back, SkipAddOns, Submit, SubmitSucceeded or
// SubmitFailed.
type Action interface {
	action()
}

type Advance struct {
	Patch models.DraftPatch
}

type Back struct{}

type SkipAddOns struct{}

type Submit struct {
	IdempotencyKey string
}

type SubmitSucceeded struct {
	AppointmentID string
}

type SubmitFailed struct {
	Reason string
}

func (Advance) action()         {}
func (Back) action()            {}
func (SkipAddOns) action()      {}
func (Submit) action()          {}
func (SubmitSucceeded) action() {}
func (SubmitFailed) action()    {}
