package models

import "time"

type AppointmentStatus string

const (
	StatusPending    AppointmentStatus = "pending"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
	StatusNoShow     AppointmentStatus = "no_show"
)

// Blocking reports whether an appointment with this status occupies its groomer.
func (s AppointmentStatus) Blocking() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

// Cancellable reports whether the appointment can still be cancelled.
func (s AppointmentStatus) Cancellable() bool {
	return s == StatusPending || s == StatusConfirmed
}

// LineItem is one priced service on a booking or appointment.
type LineItem struct {
	ServiceID       string      `json:"service_id"`
	Name            string      `json:"name"`
	Type            ServiceType `json:"type"`
	PriceCents      int64       `json:"price"`
	DurationMinutes int         `json:"duration_minutes"`
}

type Appointment struct {
	ID                   string            `json:"id"`
	CustomerID           string            `json:"customer_id"`
	PetID                string            `json:"pet_id"`
	GroomerID            string            `json:"groomer_id"`
	Date                 string            `json:"date"`
	StartTime            string            `json:"start_time"`
	EndTime              string            `json:"end_time"`
	DurationMinutes      int               `json:"duration_minutes"`
	Status               AppointmentStatus `json:"status"`
	Services             []LineItem        `json:"services"`
	SubtotalCents        int64             `json:"subtotal"`
	DepositCents         int64             `json:"deposit"`
	TotalCents           int64             `json:"total"`
	DepositPaid          bool              `json:"deposit_paid"`
	CustomerNotes        string            `json:"customer_notes,omitempty"`
	MattingMinutes       int               `json:"matting_minutes"`
	MattingFeeCents      int64             `json:"matting_fee"`
	CancelledAt          *time.Time        `json:"cancelled_at,omitempty"`
	CancellationFeeCents int64             `json:"cancellation_fee"`
	IdempotencyKey       string            `json:"-"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`

	// Joined for display; not stored on the appointment row.
	Customer    *Customer `json:"customer,omitempty"`
	Pet         *Pet      `json:"pet,omitempty"`
	GroomerName string    `json:"groomer_name,omitempty"`
}

// BalanceDueCents is what the customer owes at the salon.
func (a *Appointment) BalanceDueCents() int64 {
	due := a.TotalCents + a.MattingFeeCents
	if a.DepositPaid {
		due -= a.DepositCents
	}
	return due
}

// NewAppointment is everything the datastore needs to commit a booking.
type NewAppointment struct {
	Appointment Appointment
	Customer    *Customer
	Pet         Pet
}
