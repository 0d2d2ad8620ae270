package events

import (
	"encoding/json"
	"sync"
	"time"

	"smarterdog/internal/models"
)

const (
	EventAppointmentCreated   = "appointment_created"
	EventAppointmentCancelled = "appointment_cancelled"
	EventAppointmentUpdated   = "appointment_updated"
)

// AppointmentEventPayload is the appointment snapshot handed to subscribers.
type AppointmentEventPayload struct {
	AppointmentID   string   `json:"appointment_id"`
	Status          string   `json:"status"`
	Date            string   `json:"date"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	GroomerID       string   `json:"groomer_id"`
	GroomerName     string   `json:"groomer_name,omitempty"`
	CustomerName    string   `json:"customer_name"`
	CustomerPhone   string   `json:"customer_phone,omitempty"`
	PetName         string   `json:"pet_name"`
	PetSize         string   `json:"pet_size,omitempty"`
	Services        []string `json:"services"`
	TotalCents      int64    `json:"total"`
	DepositCents    int64    `json:"deposit"`
	CancellationFee int64    `json:"cancellation_fee,omitempty"`
	MattingFee      int64    `json:"matting_fee,omitempty"`
	CustomerNotes   string   `json:"customer_notes,omitempty"`
}

// NewAppointmentPayload flattens an appointment and its joined records.
func NewAppointmentPayload(a *models.Appointment) AppointmentEventPayload {
	p := AppointmentEventPayload{
		AppointmentID:   a.ID,
		Status:          string(a.Status),
		Date:            a.Date,
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		GroomerID:       a.GroomerID,
		GroomerName:     a.GroomerName,
		Services:        make([]string, 0, len(a.Services)),
		TotalCents:      a.TotalCents,
		DepositCents:    a.DepositCents,
		CancellationFee: a.CancellationFeeCents,
		MattingFee:      a.MattingFeeCents,
		CustomerNotes:   a.CustomerNotes,
	}
	if a.Customer != nil {
		p.CustomerName = a.Customer.FullName()
		p.CustomerPhone = a.Customer.Phone
	}
	if a.Pet != nil {
		p.PetName = a.Pet.Name
		p.PetSize = string(a.Pet.Size)
	}
	for _, li := range a.Services {
		p.Services = append(p.Services, li.Name)
	}
	return p
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	onError     func(event *Event, err error)
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError installs a hook for handler failures, typically a logger.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
