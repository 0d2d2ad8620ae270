package domain

import (
	"context"
	"time"

	"smarterdog/internal/models"
	"smarterdog/internal/wizard"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Datastore is the relational store for the catalog and appointments.
type Datastore interface {
	ListServices(ctx context.Context, types ...models.ServiceType) ([]models.Service, error)
	GetService(ctx context.Context, id string) (*models.Service, error)
	ListGroomers(ctx context.Context) ([]models.Groomer, error)
	GetGroomer(ctx context.Context, id string) (*models.Groomer, error)
	ListAppointmentsByDate(ctx context.Context, date string) ([]models.Appointment, error)
	ListAppointmentsInRange(ctx context.Context, from, to string) ([]models.Appointment, error)
	// CreateAppointment commits customer, pet, appointment and line items in
	// one transaction. created is false when the idempotency key was already
	// used; the existing appointment is returned.
	CreateAppointment(ctx context.Context, na *models.NewAppointment) (appt *models.Appointment, created bool, err error)
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	CancelAppointment(ctx context.Context, id string, feeCents int64, at time.Time) (*models.Appointment, error)
	UpdateMatting(ctx context.Context, id string, minutes int, feeCents int64) (*models.Appointment, error)
	UpsertService(ctx context.Context, svc *models.Service) error
	UpsertGroomer(ctx context.Context, g *models.Groomer) error
	Ping(ctx context.Context) error
}

// DraftRepository keeps wizard sessions between requests. GetSession
// returns nil, nil for unknown or expired sessions.
type DraftRepository interface {
	GetSession(ctx context.Context, id string) (*wizard.State, error)
	SetSession(ctx context.Context, id string, state *wizard.State) error
	ClearSession(ctx context.Context, id string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SubmissionGuard serialises submissions of one session. Release only drops
// the lock while owner still holds it.
type SubmissionGuard interface {
	AcquireSubmitLock(ctx context.Context, sessionID, owner string, ttl time.Duration) (bool, error)
	ReleaseSubmitLock(ctx context.Context, sessionID, owner string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	UpsertAppointment(ctx context.Context, appt *models.Appointment) error
	UpdateAppointmentStatus(ctx context.Context, appointmentID string, status models.AppointmentStatus) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, appt *models.Appointment) error
}
