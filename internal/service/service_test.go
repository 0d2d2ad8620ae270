package service

import (
	"context"
	"io"
	"testing"
	"time"

	"smarterdog/internal/config"
	"smarterdog/internal/database"
	"smarterdog/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Понедельник, до перехода на летнее время: Europe/London совпадает с UTC.
var fixedNow = time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)

const (
	tuesday  = "2030-03-05"
	thursday = "2030-03-07"
)

func testBusiness() config.BusinessConfig {
	return config.BusinessConfig{
		Name:                "Smarter Dog",
		Location:            "Ashton-under-Lyne",
		Timezone:            "Europe/London",
		OpenDays:            []string{"monday", "tuesday", "wednesday"},
		FirstSlot:           "08:30",
		LastSlot:            "14:00",
		SlotIntervalMinutes: 30,
		BookingHorizonDays:  56,
		DepositPercentage:   0.5,
		CalendarDomain:      "smarterdog.test",
		ProdID:              "-//Smarter Dog//Test//EN",
	}
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func testCatalog() ([]models.Service, []models.Groomer) {
	services := []models.Service{
		{
			ID: "full-groom", Name: "Full Groom", Type: models.ServiceTypeFullGroom,
			Prices:              models.PriceTable{Small: models.Price(4000), Medium: models.Price(5000), Large: models.Price(6000)},
			BaseDurationMinutes: 60, IsActive: true, SortOrder: 1,
		},
		{
			ID: "nail-trim", Name: "Nail Trim", Type: models.ServiceTypeNailTrim,
			Prices:              models.PriceTable{Small: models.Price(1200)},
			BaseDurationMinutes: 15, IsActive: true, SortOrder: 2,
		},
		{
			ID: "teeth", Name: "Teeth Cleaning", Type: models.ServiceTypeAddon,
			Prices:              models.PriceTable{Small: models.Price(500), Large: models.Price(800)},
			BaseDurationMinutes: 15, IsActive: true, SortOrder: 10,
		},
		{
			ID: "old-spa", Name: "Old Spa", Type: models.ServiceTypeAddon,
			Prices:              models.PriceTable{Small: models.Price(900)},
			BaseDurationMinutes: 20, IsActive: false, SortOrder: 11,
		},
	}
	groomers := []models.Groomer{
		{ID: "groomer-1", Name: "Sarah", IsActive: true},
		{ID: "groomer-2", Name: "Emma", IsActive: true},
	}
	return services, groomers
}

func setupStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	services, groomers := testCatalog()
	catalog := NewCatalogService(db, 0.5, testLogger())
	require.NoError(t, catalog.Seed(context.Background(), services, groomers))
	return db
}

func setupAvailability(t *testing.T, store *database.DB) *AvailabilityService {
	t.Helper()
	avail, err := NewAvailabilityService(store, testBusiness(), testLogger())
	require.NoError(t, err)
	avail.now = func() time.Time { return fixedNow }
	return avail
}

// bookDirect puts an appointment straight into the datastore.
func bookDirect(t *testing.T, store *database.DB, groomerID, date, start string, minutes int) *models.Appointment {
	t.Helper()
	appt, _, err := store.CreateAppointment(context.Background(), &models.NewAppointment{
		Appointment: models.Appointment{
			GroomerID:       groomerID,
			Date:            date,
			StartTime:       start,
			DurationMinutes: minutes,
			Services: []models.LineItem{
				{ServiceID: "full-groom", Name: "Full Groom", Type: models.ServiceTypeFullGroom, PriceCents: 4000, DurationMinutes: minutes},
			},
			SubtotalCents: 4000,
			DepositCents:  2000,
			TotalCents:    4000,
		},
		Customer: &models.Customer{FirstName: "Other", LastName: "Owner", Email: groomerID + start + "@example.com", Phone: "07000 000000"},
		Pet:      models.Pet{Name: "Bella", Size: models.SizeSmall, CoatType: models.CoatShort},
	})
	require.NoError(t, err)
	return appt
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, tt string, a *models.Appointment) error {
	return m.Called(ctx, tt, a).Error(0)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListServices(ctx context.Context, types ...models.ServiceType) ([]models.Service, error) {
	args := m.Called(ctx, types)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Service), args.Error(1)
}
func (m *mockStore) GetService(ctx context.Context, id string) (*models.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Service), args.Error(1)
}
func (m *mockStore) ListGroomers(ctx context.Context) ([]models.Groomer, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Groomer), args.Error(1)
}
func (m *mockStore) GetGroomer(ctx context.Context, id string) (*models.Groomer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Groomer), args.Error(1)
}
func (m *mockStore) ListAppointmentsByDate(ctx context.Context, date string) ([]models.Appointment, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Appointment), args.Error(1)
}
func (m *mockStore) ListAppointmentsInRange(ctx context.Context, from, to string) ([]models.Appointment, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Appointment), args.Error(1)
}
func (m *mockStore) CreateAppointment(ctx context.Context, na *models.NewAppointment) (*models.Appointment, bool, error) {
	args := m.Called(ctx, na)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Appointment), args.Bool(1), args.Error(2)
}
func (m *mockStore) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}
func (m *mockStore) CancelAppointment(ctx context.Context, id string, fee int64, at time.Time) (*models.Appointment, error) {
	args := m.Called(ctx, id, fee, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}
func (m *mockStore) UpdateMatting(ctx context.Context, id string, minutes int, fee int64) (*models.Appointment, error) {
	args := m.Called(ctx, id, minutes, fee)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}
func (m *mockStore) UpsertService(ctx context.Context, svc *models.Service) error {
	return m.Called(ctx, svc).Error(0)
}
func (m *mockStore) UpsertGroomer(ctx context.Context, g *models.Groomer) error {
	return m.Called(ctx, g).Error(0)
}
func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
