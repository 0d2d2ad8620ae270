package wizard

import (
	"errors"
	"testing"

	"smarterdog/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func servicePatch() models.DraftPatch {
	return models.DraftPatch{MainService: &models.ServiceRef{ID: "svc-full", Name: "Full Groom", Type: models.ServiceTypeFullGroom}}
}

func petPatch() models.DraftPatch {
	isNew := true
	return models.DraftPatch{
		IsNewCustomer: &isNew,
		Customer: &models.CustomerDetails{
			FirstName: "Jane",
			LastName:  "Doe",
			Email:     "jane@example.com",
			Phone:     "07700 900123",
		},
		Pet: &models.PetDetails{Name: "Rex", Size: models.SizeMedium, CoatType: models.CoatCurly},
	}
}

func int64p(v int64) *int64 { return &v }

func mustAdvance(t *testing.T, s State, p models.DraftPatch) State {
	t.Helper()
	next, err := Transition(s, Advance{Patch: p})
	require.NoError(t, err)
	return next
}

// stateAtPayment walks a complete draft to the payment step.
func stateAtPayment(t *testing.T) State {
	t.Helper()
	s := New()
	s = mustAdvance(t, s, servicePatch())
	s = mustAdvance(t, s, petPatch())
	s = mustAdvance(t, s, models.DraftPatch{SelectedDate: "2025-06-09"})
	s = mustAdvance(t, s, models.DraftPatch{SelectedTime: "09:00:00", GroomerID: "g1", GroomerName: "Sam"})
	s, err := Transition(s, SkipAddOns{})
	require.NoError(t, err)
	s = mustAdvance(t, s, models.DraftPatch{Subtotal: int64p(4500), Deposit: int64p(2250), Total: int64p(4500)})
	require.Equal(t, StepPayment, s.Step)
	return s
}

func TestAdvanceMergesDraft(t *testing.T) {
	s := New()
	assert.Equal(t, StepService, s.Step)

	s = mustAdvance(t, s, servicePatch())
	assert.Equal(t, StepPet, s.Step)

	s = mustAdvance(t, s, petPatch())
	assert.Equal(t, StepDate, s.Step)
	require.NotNil(t, s.Draft.MainService)
	require.NotNil(t, s.Draft.Pet)
	assert.Equal(t, "svc-full", s.Draft.MainService.ID)
	assert.Equal(t, "Rex", s.Draft.Pet.Name)

	t.Run("BackPreservesDraft", func(t *testing.T) {
		back, err := Transition(s, Back{})
		require.NoError(t, err)
		assert.Equal(t, StepPet, back.Step)
		assert.Equal(t, s.Draft, back.Draft)
	})

	t.Run("LaterWriteOverwrites", func(t *testing.T) {
		back, err := Transition(s, Back{})
		require.NoError(t, err)
		patch := petPatch()
		patch.Pet.Name = "Max"
		again := mustAdvance(t, back, patch)
		assert.Equal(t, "Max", again.Draft.Pet.Name)
		assert.Equal(t, "svc-full", again.Draft.MainService.ID)
	})
}

func TestAdvanceBlocksOnMissingFields(t *testing.T) {
	s := New()
	next, err := Transition(s, Advance{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingFields))
	assert.Equal(t, s, next)

	var mf *MissingFieldsError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, StepService, mf.Step)
	assert.Equal(t, []string{"main_service"}, mf.Fields)
}

func TestPetStepValidation(t *testing.T) {
	s := mustAdvance(t, New(), servicePatch())

	t.Run("InvalidFields", func(t *testing.T) {
		p := petPatch()
		p.Customer.Phone = "12345"
		p.Customer.Email = "not-an-email"
		p.Pet.Size = "huge"
		_, err := Transition(s, Advance{Patch: p})

		var mf *MissingFieldsError
		require.ErrorAs(t, err, &mf)
		assert.ElementsMatch(t, []string{"pet.size", "customer.email", "customer.phone"}, mf.Fields)
	})

	t.Run("ReturningCustomerNeedsNoDetails", func(t *testing.T) {
		next, err := Transition(s, Advance{Patch: models.DraftPatch{
			CustomerID: "cust-1",
			Pet:        &models.PetDetails{Name: "Rex", Size: models.SizeSmall, CoatType: models.CoatShort},
		}})
		require.NoError(t, err)
		assert.Equal(t, StepDate, next.Step)
	})

	t.Run("MissingPet", func(t *testing.T) {
		_, err := Transition(s, Advance{Patch: models.DraftPatch{CustomerID: "cust-1"}})
		var mf *MissingFieldsError
		require.ErrorAs(t, err, &mf)
		assert.Equal(t, []string{"pet"}, mf.Fields)
	})
}

func TestDateAndTimeSteps(t *testing.T) {
	s := mustAdvance(t, mustAdvance(t, New(), servicePatch()), petPatch())

	_, err := Transition(s, Advance{Patch: models.DraftPatch{SelectedDate: "09/06/2025"}})
	assert.ErrorIs(t, err, ErrMissingFields)

	s = mustAdvance(t, s, models.DraftPatch{SelectedDate: "2025-06-09"})
	assert.Equal(t, StepTime, s.Step)

	_, err = Transition(s, Advance{Patch: models.DraftPatch{SelectedTime: "09:00:00"}})
	var mf *MissingFieldsError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, []string{"groomer_id"}, mf.Fields)
}

func TestBackClampsAtFirstStep(t *testing.T) {
	s, err := Transition(New(), Back{})
	require.NoError(t, err)
	assert.Equal(t, StepService, s.Step)
}

func TestAdvanceClampsAtLastStep(t *testing.T) {
	s := stateAtPayment(t)
	next, err := Transition(s, Advance{})
	require.NoError(t, err)
	assert.Equal(t, StepPayment, next.Step)
}

func TestSkipAddOns(t *testing.T) {
	t.Run("OnlyOnAddOnsStep", func(t *testing.T) {
		_, err := Transition(New(), SkipAddOns{})
		assert.ErrorIs(t, err, ErrWrongStep)
	})

	t.Run("ClearsChosenAddOns", func(t *testing.T) {
		s := State{Step: StepAddOns, Draft: models.BookingDraft{AddOns: []models.LineItem{{ServiceID: "nails"}}}}
		next, err := Transition(s, SkipAddOns{})
		require.NoError(t, err)
		assert.Equal(t, StepReview, next.Step)
		assert.NotNil(t, next.Draft.AddOns)
		assert.Empty(t, next.Draft.AddOns)
	})

	t.Run("AdvanceWithoutAddOnsDefaultsEmpty", func(t *testing.T) {
		next, err := Transition(State{Step: StepAddOns}, Advance{})
		require.NoError(t, err)
		assert.Equal(t, StepReview, next.Step)
		assert.NotNil(t, next.Draft.AddOns)
	})
}

func TestReviewRequiresTotals(t *testing.T) {
	_, err := Transition(State{Step: StepReview}, Advance{})
	var mf *MissingFieldsError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, []string{"subtotal", "deposit", "total"}, mf.Fields)
}

func TestSubmitFlow(t *testing.T) {
	s := stateAtPayment(t)

	t.Run("NeedsKey", func(t *testing.T) {
		_, err := Transition(s, Submit{})
		assert.ErrorIs(t, err, ErrMissingFields)
	})

	t.Run("WrongStep", func(t *testing.T) {
		_, err := Transition(State{Step: StepReview}, Submit{IdempotencyKey: "k"})
		assert.ErrorIs(t, err, ErrWrongStep)
	})

	inFlight, err := Transition(s, Submit{IdempotencyKey: "key-1"})
	require.NoError(t, err)
	assert.True(t, inFlight.Submitting)
	assert.Equal(t, "key-1", inFlight.IdempotencyKey)

	t.Run("DuplicateRejected", func(t *testing.T) {
		_, err := Transition(inFlight, Submit{IdempotencyKey: "key-2"})
		assert.ErrorIs(t, err, ErrSubmissionInFlight)
		_, err = Transition(inFlight, Back{})
		assert.ErrorIs(t, err, ErrSubmissionInFlight)
		_, err = Transition(inFlight, Advance{})
		assert.ErrorIs(t, err, ErrSubmissionInFlight)
	})

	t.Run("FailureAllowsManualRetry", func(t *testing.T) {
		failed, err := Transition(inFlight, SubmitFailed{Reason: "datastore unavailable"})
		require.NoError(t, err)
		assert.False(t, failed.Submitting)
		assert.False(t, failed.Confirmed)
		assert.Equal(t, "datastore unavailable", failed.LastError)
		assert.Equal(t, StepPayment, failed.Step)

		retry, err := Transition(failed, Submit{})
		require.NoError(t, err)
		assert.Equal(t, "key-1", retry.IdempotencyKey)
		assert.Empty(t, retry.LastError)
	})

	t.Run("SuccessClosesBooking", func(t *testing.T) {
		done, err := Transition(inFlight, SubmitSucceeded{AppointmentID: "appt-1"})
		require.NoError(t, err)
		assert.True(t, done.Confirmed)
		assert.False(t, done.Submitting)
		assert.Equal(t, "appt-1", done.AppointmentID)

		for _, a := range []Action{Advance{}, Back{}, SkipAddOns{}, Submit{IdempotencyKey: "x"}, SubmitFailed{}, SubmitSucceeded{}} {
			_, err := Transition(done, a)
			assert.ErrorIs(t, err, ErrBookingClosed)
		}
	})

	t.Run("OutcomeWithoutSubmission", func(t *testing.T) {
		_, err := Transition(s, SubmitSucceeded{AppointmentID: "x"})
		assert.ErrorIs(t, err, ErrNotSubmitting)
		_, err = Transition(s, SubmitFailed{Reason: "x"})
		assert.ErrorIs(t, err, ErrNotSubmitting)
	})
}

func TestSubmitValidatesWholeDraft(t *testing.T) {
	s := State{Step: StepPayment, Draft: models.BookingDraft{MainService: &models.ServiceRef{ID: "svc"}}}
	_, err := Transition(s, Submit{IdempotencyKey: "k"})
	var mf *MissingFieldsError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, StepPet, mf.Step)
}

func TestTransitionRepairsInvalidStep(t *testing.T) {
	next, err := Transition(State{Step: 42}, Back{})
	require.NoError(t, err)
	assert.Equal(t, StepService, next.Step)
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "add_ons", StepAddOns.String())
	assert.Equal(t, "step(9)", Step(9).String())
}

func TestMergeCopiesAddOns(t *testing.T) {
	src := []models.LineItem{{ServiceID: "nails"}}
	d := Merge(models.BookingDraft{}, models.DraftPatch{AddOns: src})
	src[0].ServiceID = "changed"
	assert.Equal(t, "nails", d.AddOns[0].ServiceID)
}
