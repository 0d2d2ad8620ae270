package models

import "time"

type Groomer struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Email     string    `json:"email,omitempty" yaml:"email"`
	Phone     string    `json:"phone,omitempty" yaml:"phone"`
	ColorCode string    `json:"color_code,omitempty" yaml:"color_code"`
	IsActive  bool      `json:"is_active" yaml:"is_active"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

type Customer struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

func (c Customer) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type Pet struct {
	ID                string       `json:"id"`
	CustomerID        string       `json:"customer_id"`
	Name              string       `json:"name"`
	Breed             string       `json:"breed,omitempty"`
	Size              SizeCategory `json:"size"`
	CoatType          CoatType     `json:"coat_type"`
	WeightLbs         *float64     `json:"weight_lbs,omitempty"`
	BehavioralNotes   string       `json:"behavioral_notes,omitempty"`
	MedicalConditions string       `json:"medical_conditions,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}
