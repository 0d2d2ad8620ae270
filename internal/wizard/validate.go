package wizard

import (
	"errors"
	"reflect"
	"strings"

	"smarterdog/internal/models"
	"smarterdog/internal/phone"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// tags are constant, registration cannot fail
	_ = phone.RegisterValidation(v)
	_ = v.RegisterValidation("sizecategory", func(fl validator.FieldLevel) bool {
		return models.SizeCategory(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("coattype", func(fl validator.FieldLevel) bool {
		return models.CoatType(fl.Field().String()).Valid()
	})
	return v
}

// Validator returns the validator used for wizard forms, with the ukphone,
// sizecategory and coattype tags registered.
func Validator() *validator.Validate {
	return validate
}

// ValidateStep checks the fields step needs before the wizard can leave it.
func ValidateStep(step Step, d models.BookingDraft) error {
	var fields []string

	switch step {
	case StepService:
		if d.MainService == nil || d.MainService.ID == "" {
			fields = append(fields, "main_service")
		}
	case StepPet:
		if d.Pet == nil {
			fields = append(fields, "pet")
		} else {
			fields = append(fields, structErrors("pet", validate.Struct(d.Pet))...)
		}
		if d.IsNewCustomer || d.CustomerID == "" {
			if d.Customer == nil {
				fields = append(fields, "customer")
			} else {
				fields = append(fields, structErrors("customer", validate.Struct(d.Customer))...)
			}
		}
	case StepDate:
		if validate.Var(d.SelectedDate, "required,datetime=2006-01-02") != nil {
			fields = append(fields, "selected_date")
		}
	case StepTime:
		if d.SelectedTime == "" {
			fields = append(fields, "selected_time")
		}
		if d.GroomerID == "" {
			fields = append(fields, "groomer_id")
		}
	case StepAddOns:
		if d.AddOns == nil {
			fields = append(fields, "add_ons")
		}
	case StepReview:
		if d.Subtotal == nil {
			fields = append(fields, "subtotal")
		}
		if d.Deposit == nil {
			fields = append(fields, "deposit")
		}
		if d.Total == nil {
			fields = append(fields, "total")
		}
	case StepPayment:
	}

	if len(fields) > 0 {
		return &MissingFieldsError{Step: step, Fields: fields}
	}
	return nil
}

// ValidateDraft checks every step up to payment.
func ValidateDraft(d models.BookingDraft) error {
	for step := FirstStep; step < LastStep; step++ {
		if err := ValidateStep(step, d); err != nil {
			return err
		}
	}
	return nil
}

func structErrors(prefix string, err error) []string {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{prefix}
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, prefix+"."+fe.Field())
	}
	return fields
}
