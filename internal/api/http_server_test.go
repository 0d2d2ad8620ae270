package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smarterdog/internal/config"
	"smarterdog/internal/database"
	"smarterdog/internal/models"
	"smarterdog/internal/repository"
	"smarterdog/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const (
	adminKey  = "admin-secret"
	viewerKey = "viewer-secret"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

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

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: adminKey, Name: "front-desk"},
				{Key: viewerKey, Name: "accounts", Permissions: []string{permExportAppointments}},
			},
		},
	}
}

// nextOpenDate returns an open day at least two days out so that every
// start time on it is still in the future.
func nextOpenDate(t *testing.T) string {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	d := time.Now().In(loc).AddDate(0, 0, 2)
	for d.Weekday() != time.Monday && d.Weekday() != time.Tuesday && d.Weekday() != time.Wednesday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format("2006-01-02")
}

// nextClosedDate returns a Thursday inside the booking horizon.
func nextClosedDate(t *testing.T) string {
	t.Helper()
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	d := time.Now().In(loc).AddDate(0, 0, 1)
	for d.Weekday() != time.Thursday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format("2006-01-02")
}

func newTestServer(t *testing.T, cfg config.APIConfig, readiness map[string]ReadinessCheck) *HTTPServer {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()

	db, err := database.NewDB(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	catalog := service.NewCatalogService(db, 0.5, logger)
	require.NoError(t, catalog.Seed(ctx,
		[]models.Service{
			{
				ID: "full-groom", Name: "Full Groom", Type: models.ServiceTypeFullGroom,
				Prices:              models.PriceTable{Small: models.Price(4000), Medium: models.Price(5000), Large: models.Price(6000)},
				BaseDurationMinutes: 60, IsActive: true, SortOrder: 1,
			},
			{
				ID: "teeth", Name: "Teeth Cleaning", Type: models.ServiceTypeAddon,
				Prices:              models.PriceTable{Small: models.Price(500), Large: models.Price(800)},
				BaseDurationMinutes: 15, IsActive: true, SortOrder: 10,
			},
		},
		[]models.Groomer{{ID: "groomer-1", Name: "Sarah", IsActive: true}},
	))

	availability, err := service.NewAvailabilityService(db, testBusiness(), logger)
	require.NoError(t, err)
	appointments, err := service.NewAppointmentService(db, nil, nil, testBusiness(), logger)
	require.NoError(t, err)

	repo := repository.NewMemoryStateRepository(time.Hour)
	bookings := service.NewBookingService(repo, repo, db, catalog, availability, nil, nil, service.BookingOptions{
		StartLimit:  30,
		StartWindow: time.Hour,
	}, logger)

	if readiness == nil {
		readiness = map[string]ReadinessCheck{"database": db.Ping}
	}
	return NewHTTPServer(cfg, Services{
		Catalog:      catalog,
		Availability: availability,
		Bookings:     bookings,
		Appointments: appointments,
		Readiness:    readiness,
	}, logger)
}

func do(t *testing.T, srv *HTTPServer, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type sessionBody struct {
	ID       string              `json:"id"`
	Step     int                 `json:"step"`
	StepName string              `json:"step_name"`
	Draft    models.BookingDraft `json:"draft"`
}

func petPatch() map[string]any {
	return map[string]any{
		"is_new_customer": true,
		"customer": map[string]any{
			"first_name": "Jane",
			"last_name":  "Doe",
			"email":      "jane@example.com",
			"phone":      "07123456789",
		},
		"pet": map[string]any{
			"name":      "Rex",
			"size":      "small",
			"coat_type": "short",
		},
	}
}

// bookThroughAPI walks the whole wizard and returns the confirmed appointment.
func bookThroughAPI(t *testing.T, srv *HTTPServer, date string) models.Appointment {
	t.Helper()

	rec := do(t, srv, http.MethodPost, "/api/v1/bookings", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sess := decode[sessionBody](t, rec)
	base := "/api/v1/bookings/" + sess.ID

	steps := []map[string]any{
		{"main_service": map[string]any{"id": "full-groom"}},
		petPatch(),
		{"selected_date": date},
		{"selected_time": "10:00"},
		{"add_on_ids": []string{"teeth"}},
		{},
	}
	for _, patch := range steps {
		rec = do(t, srv, http.MethodPost, base+"/next", patch)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	sess = decode[sessionBody](t, rec)
	require.Equal(t, "payment", sess.StepName)

	rec = do(t, srv, http.MethodPost, base+"/submit", nil, "Idempotency-Key", "key-"+sess.ID)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out struct {
		Appointment models.Appointment `json:"appointment"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Appointment
}

func TestHTTPServer_Health(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{}, nil)

	rec := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = do(t, srv, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"ok"`)

	rec = do(t, srv, http.MethodGet, "/healthz", nil, requestIDHeader, "req-42")
	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
}

func TestHTTPServer_ReadinessFailure(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{}, map[string]ReadinessCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})

	rec := do(t, srv, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestHTTPServer_Catalog(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{}, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/services", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	services := decode[struct {
		Services []models.Service `json:"services"`
	}](t, rec)
	require.Len(t, services.Services, 1)
	assert.Equal(t, "full-groom", services.Services[0].ID)

	rec = do(t, srv, http.MethodGet, "/api/v1/services/addons?size=large", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"price":800`)

	rec = do(t, srv, http.MethodGet, "/api/v1/services/addons?size=huge", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/groomers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sarah")

	rec = do(t, srv, http.MethodPost, "/api/v1/quotes", map[string]any{
		"service_id": "full-groom",
		"add_on_ids": []string{"teeth"},
		"size":       "small",
		"coat_type":  "short",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"total":4500`)

	rec = do(t, srv, http.MethodPost, "/api/v1/quotes", map[string]any{"service_id": "teeth", "size": "small"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/quotes", map[string]any{"bogus": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPServer_Availability(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{}, nil)
	date := nextOpenDate(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/availability/dates?month="+date[:7], nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), date)

	rec = do(t, srv, http.MethodGet, "/api/v1/availability/dates?month=2030-13", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/availability/slots?date="+date, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decode[struct {
		Slots []models.TimeSlot `json:"slots"`
	}](t, rec)
	assert.Len(t, slots.Slots, 12)

	rec = do(t, srv, http.MethodGet, "/api/v1/availability/slots?date="+nextClosedDate(t), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/availability/slots", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/availability/slots?date="+date+"&duration=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPServer_BookingWizard(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{}, nil)
	date := nextOpenDate(t)

	appt := bookThroughAPI(t, srv, date)
	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, date, appt.Date)
	assert.Equal(t, "10:00:00", appt.StartTime)
	assert.Equal(t, int64(4500), appt.TotalCents)
	assert.Equal(t, int64(2250), appt.DepositCents)
	assert.Equal(t, "groomer-1", appt.GroomerID)

	rec := do(t, srv, http.MethodGet, "/api/v1/appointments/"+appt.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/appointments/"+appt.ID+"/calendar.ics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")

	rec = do(t, srv, http.MethodGet, "/api/v1/appointments/"+appt.ID+"/calendar-link", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "calendar.google.com")

	rec = do(t, srv, http.MethodGet, "/api/v1/appointments/"+appt.ID+"/cancellation-fee", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cancellable":true`)
}

func TestHTTPServer_WizardErrors(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{}, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/bookings/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/bookings", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/api/v1/bookings/" + decode[sessionBody](t, rec).ID

	rec = do(t, srv, http.MethodPost, base+"/next", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.NotEmpty(t, body.Fields)

	rec = do(t, srv, http.MethodPost, base+"/next", map[string]any{"main_service": map[string]any{"id": "teeth"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, srv, http.MethodPost, base+"/skip", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, srv, http.MethodGet, base+"/slots", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, base+"/next", map[string]any{"main_service": map[string]any{"id": "full-groom"}})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, srv, http.MethodPost, base+"/back", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "service", decode[sessionBody](t, rec).StepName)

	rec = do(t, srv, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, srv, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPServer_SlotTakenOnSubmit(t *testing.T) {
	srv := newTestServer(t, config.APIConfig{}, nil)
	date := nextOpenDate(t)

	// Второй клиент доходит до оплаты раньше, чем первый подтверждает запись.
	start := func() string {
		rec := do(t, srv, http.MethodPost, "/api/v1/bookings", nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		return "/api/v1/bookings/" + decode[sessionBody](t, rec).ID
	}
	first, second := start(), start()
	for _, base := range []string{first, second} {
		for _, patch := range []map[string]any{
			{"main_service": map[string]any{"id": "full-groom"}},
			petPatch(),
			{"selected_date": date},
			{"selected_time": "10:00"},
		} {
			rec := do(t, srv, http.MethodPost, base+"/next", patch)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		}
		rec := do(t, srv, http.MethodPost, base+"/skip", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rec = do(t, srv, http.MethodPost, base+"/next", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := do(t, srv, http.MethodPost, first+"/submit", map[string]any{"idempotency_key": "first"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPost, second+"/submit", map[string]any{"idempotency_key": "second"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodGet, second, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "payment", decode[sessionBody](t, rec).StepName)
}

func TestHTTPServer_AdminAuth(t *testing.T) {
	srv := newTestServer(t, testAPIConfig(), nil)
	date := nextOpenDate(t)
	appt := bookThroughAPI(t, srv, date)
	cancel := "/api/v1/admin/appointments/" + appt.ID + "/cancel"

	rec := do(t, srv, http.MethodPost, cancel, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, srv, http.MethodPost, cancel, nil, "x-api-key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, srv, http.MethodPost, cancel, nil, "x-api-key", viewerKey)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/admin/appointments/"+appt.ID+"/matting",
		map[string]any{"minutes": 10}, "x-api-key", adminKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"matting_fee":2000`)

	rec = do(t, srv, http.MethodPost, "/api/v1/admin/appointments/"+appt.ID+"/matting",
		map[string]any{"minutes": -1}, "x-api-key", adminKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, cancel, nil, "x-api-key", adminKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)

	rec = do(t, srv, http.MethodPost, cancel, nil, "x-api-key", adminKey)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/admin/appointments/missing/cancel", nil, "x-api-key", adminKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPServer_Export(t *testing.T) {
	srv := newTestServer(t, testAPIConfig(), nil)
	date := nextOpenDate(t)
	bookThroughAPI(t, srv, date)

	path := "/api/v1/admin/appointments/export?from=" + date + "&to=" + date
	rec := do(t, srv, http.MethodGet, path, nil, "x-api-key", viewerKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.NotEmpty(t, f.GetSheetList())

	rec = do(t, srv, http.MethodGet, "/api/v1/admin/appointments/export?from="+date, nil, "x-api-key", viewerKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPServer_RateLimit(t *testing.T) {
	cfg := config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 2}}
	srv := newTestServer(t, cfg, nil)

	for i := 0; i < 2; i++ {
		rec := do(t, srv, http.MethodGet, "/api/v1/groomers", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, srv, http.MethodGet, "/api/v1/groomers", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Ключ API получает отдельную квоту.
	rec = do(t, srv, http.MethodGet, "/api/v1/groomers", nil, "x-api-key", "another")
	assert.Equal(t, http.StatusOK, rec.Code)

	// health вне лимита
	rec = do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPServer_CORS(t *testing.T) {
	cfg := config.APIConfig{CORS: config.APICORSConfig{AllowedOrigins: []string{"https://book.smarterdog.test"}}}
	srv := newTestServer(t, cfg, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/groomers", nil, "Origin", "https://book.smarterdog.test")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://book.smarterdog.test", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, srv, http.MethodGet, "/api/v1/groomers", nil, "Origin", "https://evil.test")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, statusFor(service.ErrRateLimited))
	assert.Equal(t, http.StatusConflict, statusFor(database.ErrSlotTaken))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
