package models

// ServiceRef identifies the chosen main service inside a booking draft.
type ServiceRef struct {
	ID   string      `json:"id"`
	Name string      `json:"name,omitempty"`
	Type ServiceType `json:"type,omitempty"`
}

type CustomerDetails struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,ukphone"`
}

type PetDetails struct {
	Name              string       `json:"name" validate:"required"`
	Breed             string       `json:"breed,omitempty"`
	Size              SizeCategory `json:"size" validate:"required,sizecategory"`
	CoatType          CoatType     `json:"coat_type" validate:"required,coattype"`
	WeightLbs         *float64     `json:"weight_lbs,omitempty" validate:"omitempty,gt=0"`
	BehavioralNotes   string       `json:"behavioral_notes,omitempty"`
	MedicalConditions string       `json:"medical_conditions,omitempty"`
}

// BookingDraft accumulates wizard input. It is never written to the
// datastore before submission.
type BookingDraft struct {
	MainService     *ServiceRef      `json:"main_service,omitempty"`
	IsNewCustomer   bool             `json:"is_new_customer"`
	CustomerID      string           `json:"customer_id,omitempty"`
	Customer        *CustomerDetails `json:"customer,omitempty"`
	Pet             *PetDetails      `json:"pet,omitempty"`
	SelectedDate    string           `json:"selected_date,omitempty"`
	SelectedTime    string           `json:"selected_time,omitempty"`
	GroomerID       string           `json:"groomer_id,omitempty"`
	GroomerName     string           `json:"groomer_name,omitempty"`
	AddOns          []LineItem       `json:"add_ons"`
	Subtotal        *int64           `json:"subtotal,omitempty"`
	Deposit         *int64           `json:"deposit,omitempty"`
	Total           *int64           `json:"total,omitempty"`
	DurationMinutes int              `json:"duration_minutes,omitempty"`
	CustomerNotes   string           `json:"customer_notes,omitempty"`
}

// DraftPatch is a partial update from one wizard step. Set fields overwrite
// the draft; unset fields leave it alone.
type DraftPatch struct {
	MainService     *ServiceRef      `json:"main_service,omitempty"`
	IsNewCustomer   *bool            `json:"is_new_customer,omitempty"`
	CustomerID      string           `json:"customer_id,omitempty"`
	Customer        *CustomerDetails `json:"customer,omitempty"`
	Pet             *PetDetails      `json:"pet,omitempty"`
	SelectedDate    string           `json:"selected_date,omitempty"`
	SelectedTime    string           `json:"selected_time,omitempty"`
	GroomerID       string           `json:"groomer_id,omitempty"`
	GroomerName     string           `json:"groomer_name,omitempty"`
	AddOnIDs        []string         `json:"add_on_ids,omitempty"`
	AddOns          []LineItem       `json:"-"`
	Subtotal        *int64           `json:"-"`
	Deposit         *int64           `json:"-"`
	Total           *int64           `json:"-"`
	DurationMinutes int              `json:"-"`
	CustomerNotes   string           `json:"customer_notes,omitempty"`
}

type TimeSlot struct {
	Time        string `json:"time"`
	Available   bool   `json:"available"`
	GroomerID   string `json:"groomer_id,omitempty"`
	GroomerName string `json:"groomer_name,omitempty"`
}
