package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smarterdog/internal/export"
	"smarterdog/internal/models"
	"smarterdog/internal/service"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 64 << 10

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.svc.Readiness))
	ready := true
	for name, check := range s.svc.Readiness {
		if err := check(ctx); err != nil {
			s.log.Warn().Err(err).Str("check", name).Msg("readiness check failed")
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": ready, "checks": checks})
}

func (s *HTTPServer) handleServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.svc.Catalog.MainServices(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (s *HTTPServer) handleAddOns(w http.ResponseWriter, r *http.Request) {
	size := models.SizeCategory(strings.TrimSpace(r.URL.Query().Get("size")))
	addOns, err := s.svc.Catalog.AddOns(r.Context(), size)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"add_ons": addOns})
}

func (s *HTTPServer) handleGroomers(w http.ResponseWriter, r *http.Request) {
	groomers, err := s.svc.Catalog.Groomers(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groomers": groomers})
}

func (s *HTTPServer) handleAvailableDates(w http.ResponseWriter, r *http.Request) {
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if month == "" {
		month = time.Now().In(s.svc.Availability.Location()).Format("2006-01")
	}
	days, err := s.svc.Availability.MonthCalendar(month)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": month, "days": days})
}

func (s *HTTPServer) handleAvailableSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	duration := 0
	if raw := q.Get("duration"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "duration must be a positive number of minutes")
			return
		}
		duration = d
	}

	slots, err := s.svc.Availability.Slots(r.Context(), date, duration)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": slots})
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req service.QuoteRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	q, err := s.svc.Catalog.Quote(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *HTTPServer) handleStartBooking(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Bookings.Start(r.Context(), clientKey(r, s.auth.header()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Bookings.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *HTTPServer) handleNext(w http.ResponseWriter, r *http.Request) {
	var patch models.DraftPatch
	if !s.decodeBody(w, r, &patch) {
		return
	}
	sess, err := s.svc.Bookings.Next(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *HTTPServer) handleBack(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Bookings.Back(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *HTTPServer) handleSkip(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Bookings.Skip(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type submitRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

type submitResponse struct {
	Session     *service.Session    `json:"session"`
	Appointment *models.Appointment `json:"appointment,omitempty"`
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}

	sess, appt, err := s.svc.Bookings.Submit(r.Context(), mux.Vars(r)["id"], key)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{Session: sess, Appointment: appt})
}

func (s *HTTPServer) handleBookingSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := s.svc.Bookings.Slots(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (s *HTTPServer) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := s.svc.Appointments.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleICS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ics, err := s.svc.Appointments.ICS(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="smarterdog-`+id+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ics)
}

func (s *HTTPServer) handleCalendarLink(w http.ResponseWriter, r *http.Request) {
	link, err := s.svc.Appointments.CalendarLink(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

func (s *HTTPServer) handleCancellationFee(w http.ResponseWriter, r *http.Request) {
	fee, err := s.svc.Appointments.CancellationFee(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fee)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	appt, err := s.svc.Appointments.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type mattingRequest struct {
	Minutes int `json:"minutes"`
}

func (s *HTTPServer) handleMatting(w http.ResponseWriter, r *http.Request) {
	var req mattingRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	appt, err := s.svc.Appointments.RecordMatting(r.Context(), mux.Vars(r)["id"], req.Minutes)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	// Файл собирается в памяти, чтобы ошибка не оборвала ответ на середине.
	var buf strings.Builder
	if err := s.svc.Appointments.Export(r.Context(), from, to, &buf); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(from, to)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, buf.String())
}

// decodeBody reads a JSON body into dst. An empty body leaves dst as is.
func (s *HTTPServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
