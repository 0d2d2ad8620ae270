package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"smarterdog/internal/models"
	"smarterdog/internal/pricing"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const timestampLayout = "2006-01-02 15:04:05"

var ErrRowNotFound = errors.New("appointment row not found")

var ledgerHeaders = []any{
	"ID", "Date", "Start", "End", "Groomer", "Customer", "Phone", "Pet", "Size",
	"Services", "Total", "Deposit", "Status", "Created At", "Updated At",
}

// AppointmentsSheet mirrors appointments into a spreadsheet for salon staff.
// Rows are keyed by the appointment id in column A.
type AppointmentsSheet struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	rowCache      map[string]int
	cacheMu       sync.RWMutex
	logger        *zerolog.Logger
}

// NewAppointmentsSheet authenticates with a service account key and keeps
// the row cache warm until ctx is cancelled.
func NewAppointmentsSheet(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, logger *zerolog.Logger) (*AppointmentsSheet, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	s := newAppointmentsSheet(srv, spreadsheetID, sheetName, logger)

	go func() {
		s.refresh(ctx)
		ticker := time.NewTicker(models.SheetsCacheTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refresh(ctx)
			}
		}
	}()

	return s, nil
}

func newAppointmentsSheet(srv *sheets.Service, spreadsheetID, sheetName string, logger *zerolog.Logger) *AppointmentsSheet {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if sheetName == "" {
		sheetName = "Appointments"
	}
	return &AppointmentsSheet{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		rowCache:      make(map[string]int),
		logger:        logger,
	}
}

func (s *AppointmentsSheet) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.WarmUpCache(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to warm up sheet row cache")
	}
}

func (s *AppointmentsSheet) rangeOf(cells string) string {
	return s.sheetName + "!" + cells
}

// TestConnection проверяет подключение к таблице
func (s *AppointmentsSheet) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ServiceAccountEmail returns the client_email of a credentials file, the
// address the spreadsheet has to be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *AppointmentsSheet) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
	for i, row := range resp.Values {
		if id := cellID(row); id != "" && id != "ID" {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// AppendAppointment adds a new row and remembers where it landed.
func (s *AppointmentsSheet) AppendAppointment(ctx context.Context, appt *models.Appointment) error {
	valueRange := &sheets.ValueRange{Values: [][]any{appointmentRowValues(appt)}}

	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rangeOf("A:A"), valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if row, ok := firstRow(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(appt.ID, row)
		}
	}
	return nil
}

// UpsertAppointment updates an existing row or appends a new one if not found.
func (s *AppointmentsSheet) UpsertAppointment(ctx context.Context, appt *models.Appointment) error {
	if appt == nil {
		return errors.New("appointment is nil")
	}

	rowIdx, err := s.FindAppointmentRow(ctx, appt.ID)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return s.AppendAppointment(ctx, appt)
		}
		return err
	}

	valueRange := &sheets.ValueRange{Values: [][]any{appointmentRowValues(appt)}}
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeOf(fmt.Sprintf("A%d:O%d", rowIdx, rowIdx)), valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// UpdateAppointmentStatus rewrites the status and updated-at cells of a row.
func (s *AppointmentsSheet) UpdateAppointmentStatus(ctx context.Context, appointmentID string, status models.AppointmentStatus) error {
	rowIdx, err := s.FindAppointmentRow(ctx, appointmentID)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(timestampLayout)
	_, err = s.service.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data: []*sheets.ValueRange{
			{Range: s.rangeOf(fmt.Sprintf("M%d", rowIdx)), Values: [][]any{{string(status)}}},
			{Range: s.rangeOf(fmt.Sprintf("O%d", rowIdx)), Values: [][]any{{now}}},
		},
	}).Context(ctx).Do()
	return err
}

// FindAppointmentRow locates the 1-based row for an appointment id.
func (s *AppointmentsSheet) FindAppointmentRow(ctx context.Context, appointmentID string) (int, error) {
	if appointmentID == "" {
		return 0, errors.New("appointment id is required")
	}
	if row, ok := s.getCachedRow(appointmentID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeOf("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if cellID(row) == appointmentID {
			rowIdx := i + 1 // Values are zero-based; sheet rows are 1-based
			s.setCachedRow(appointmentID, rowIdx)
			return rowIdx, nil
		}
	}
	return 0, ErrRowNotFound
}

// ReplaceAppointments rewrites the whole ledger, header included.
func (s *AppointmentsSheet) ReplaceAppointments(ctx context.Context, appts []models.Appointment) error {
	values := [][]any{ledgerHeaders}
	for i := range appts {
		values = append(values, appointmentRowValues(&appts[i]))
	}

	if _, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rangeOf("A:O"), &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet: %w", err)
	}
	s.ClearCache()

	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeOf(fmt.Sprintf("A1:O%d", len(values))), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	s.rowCache = make(map[string]int, len(appts))
	for i := range appts {
		s.rowCache[appts[i].ID] = i + 2
	}
	s.cacheMu.Unlock()
	return nil
}

func (s *AppointmentsSheet) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *AppointmentsSheet) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

// ClearCache clears the row index cache.
func (s *AppointmentsSheet) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
}

func cellID(row []any) string {
	if len(row) == 0 {
		return ""
	}
	switch v := row[0].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

var rowPattern = regexp.MustCompile(`![A-Z]+(\d+)`)

// firstRow extracts 10 from "Appointments!A10:O10".
func firstRow(a1 string) (int, bool) {
	m := rowPattern.FindStringSubmatch(a1)
	if m == nil {
		return 0, false
	}
	row, err := strconv.Atoi(m[1])
	return row, err == nil
}

func appointmentRowValues(a *models.Appointment) []any {
	var customer, phone, pet, size string
	if a.Customer != nil {
		customer = a.Customer.FullName()
		phone = a.Customer.Phone
	}
	if a.Pet != nil {
		pet = a.Pet.Name
		size = a.Pet.Size.Label()
	}

	names := make([]string, 0, len(a.Services))
	for _, li := range a.Services {
		names = append(names, li.Name)
	}

	return []any{
		a.ID,
		a.Date,
		a.StartTime,
		a.EndTime,
		a.GroomerName,
		customer,
		phone,
		pet,
		size,
		strings.Join(names, ", "),
		pricing.FormatPrice(a.TotalCents),
		pricing.FormatPrice(a.DepositCents),
		string(a.Status),
		a.CreatedAt.UTC().Format(timestampLayout),
		a.UpdatedAt.UTC().Format(timestampLayout),
	}
}
