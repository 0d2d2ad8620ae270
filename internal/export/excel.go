package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"smarterdog/internal/models"
	"smarterdog/internal/pricing"

	"github.com/xuri/excelize/v2"
)

const (
	AppointmentsSheet = "Appointments"
	ScheduleSheet     = "Schedule"
	ContentType       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var appointmentHeaders = []string{
	"Date", "Start", "End", "Groomer", "Customer", "Phone", "Email", "Pet", "Breed", "Size", "Coat",
	"Services", "Status", "Subtotal", "Deposit", "Deposit Paid", "Matting Fee", "Cancellation Fee", "Total", "Notes",
}

var statusColors = map[models.AppointmentStatus]string{
	models.StatusPending:    "#FFF2CC",
	models.StatusConfirmed:  "#E2EFDA",
	models.StatusInProgress: "#DDEBF7",
	models.StatusCompleted:  "#C6E0B4",
	models.StatusCancelled:  "#F8CBAD",
	models.StatusNoShow:     "#D9D9D9",
}

// Filename is the download name for an export of the given period.
func Filename(from, to string) string {
	return fmt.Sprintf("appointments_%s_to_%s.xlsx", from, to)
}

// WriteAppointments renders appointments as an xlsx workbook with a flat
// list sheet and a date by groomer schedule sheet.
func WriteAppointments(w io.Writer, from, to string, appts []models.Appointment) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(AppointmentsSheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := writeList(f, from, to, appts); err != nil {
		return err
	}
	if _, err := f.NewSheet(ScheduleSheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	if err := writeSchedule(f, appts); err != nil {
		return err
	}

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func writeList(f *excelize.File, from, to string, appts []models.Appointment) error {
	sheet := AppointmentsSheet
	_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("Appointments %s to %s", from, to))
	lastCol, _ := excelize.ColumnNumberToName(len(appointmentHeaders))
	_ = f.MergeCell(sheet, "A1", lastCol+"1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, h := range appointmentHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheet, cell, h)
	}
	_ = f.SetCellStyle(sheet, "A2", lastCol+"2", headerStyle)

	var revenue, deposits int64
	row := 3
	for i := range appts {
		a := &appts[i]
		values := listRow(a)
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}
		if a.Status != models.StatusCancelled {
			revenue += a.TotalCents + a.MattingFeeCents
		}
		revenue += a.CancellationFeeCents
		if a.DepositPaid {
			deposits += a.DepositCents
		}
		row++
	}

	totalStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row+1), fmt.Sprintf("Appointments: %d", len(appts)))
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row+2), "Expected revenue: "+pricing.FormatPrice(revenue))
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row+3), "Deposits received: "+pricing.FormatPrice(deposits))
	_ = f.SetCellStyle(sheet, fmt.Sprintf("A%d", row+1), fmt.Sprintf("A%d", row+3), totalStyle)

	_ = f.SetColWidth(sheet, "A", lastCol, 14)
	_ = f.SetColWidth(sheet, "L", "L", 40)
	_ = f.SetColWidth(sheet, "T", "T", 40)
	return nil
}

func listRow(a *models.Appointment) []any {
	var customer, phone, email, pet, breed, size, coat string
	if a.Customer != nil {
		customer, phone, email = a.Customer.FullName(), a.Customer.Phone, a.Customer.Email
	}
	if a.Pet != nil {
		pet, breed, size, coat = a.Pet.Name, a.Pet.Breed, a.Pet.Size.Label(), a.Pet.CoatType.Label()
	}
	deposit := "No"
	if a.DepositPaid {
		deposit = "Yes"
	}
	return []any{
		a.Date, short(a.StartTime), short(a.EndTime), a.GroomerName,
		customer, phone, email, pet, breed, size, coat,
		serviceNames(a), string(a.Status),
		pricing.FormatPrice(a.SubtotalCents), pricing.FormatPrice(a.DepositCents), deposit,
		pricing.FormatPrice(a.MattingFeeCents), pricing.FormatPrice(a.CancellationFeeCents),
		pricing.FormatPrice(a.TotalCents), a.CustomerNotes,
	}
}

func writeSchedule(f *excelize.File, appts []models.Appointment) error {
	sheet := ScheduleSheet

	dates := []string{}
	groomers := []string{}
	seenDate := map[string]int{}
	seenGroomer := map[string]int{}
	for i := range appts {
		if _, ok := seenDate[appts[i].Date]; !ok {
			seenDate[appts[i].Date] = 0
			dates = append(dates, appts[i].Date)
		}
		name := groomerLabel(&appts[i])
		if _, ok := seenGroomer[name]; !ok {
			seenGroomer[name] = 0
			groomers = append(groomers, name)
		}
	}
	sort.Strings(dates)
	sort.Strings(groomers)
	for i, d := range dates {
		seenDate[d] = i + 2
	}
	for i, g := range groomers {
		seenGroomer[g] = i + 2
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for d, col := range seenDate {
		cell, _ := excelize.CoordinatesToCellName(col, 1)
		_ = f.SetCellValue(sheet, cell, d)
		_ = f.SetCellStyle(sheet, cell, cell, headerStyle)
	}
	for g, row := range seenGroomer {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(sheet, cell, g)
		_ = f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	cells := map[string][]*models.Appointment{}
	for i := range appts {
		a := &appts[i]
		cell, _ := excelize.CoordinatesToCellName(seenDate[a.Date], seenGroomer[groomerLabel(a)])
		cells[cell] = append(cells[cell], a)
	}
	for cell, list := range cells {
		lines := make([]string, 0, len(list))
		for _, a := range list {
			pet := ""
			if a.Pet != nil {
				pet = a.Pet.Name
			}
			lines = append(lines, fmt.Sprintf("%s %s (%s)", short(a.StartTime), pet, a.Status))
		}
		_ = f.SetCellValue(sheet, cell, strings.Join(lines, "\n"))

		style, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{cellColor(list)}, Pattern: 1},
			Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		})
		if err == nil {
			_ = f.SetCellStyle(sheet, cell, cell, style)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 20)
	if len(dates) > 0 {
		last, _ := excelize.ColumnNumberToName(len(dates) + 1)
		_ = f.SetColWidth(sheet, "B", last, 28)
	}
	return nil
}

// cellColor uses the first appointment that still occupies the groomer.
func cellColor(list []*models.Appointment) string {
	for _, a := range list {
		if a.Status.Blocking() {
			return statusColors[a.Status]
		}
	}
	return statusColors[list[0].Status]
}

func groomerLabel(a *models.Appointment) string {
	if a.GroomerName != "" {
		return a.GroomerName
	}
	return a.GroomerID
}

func serviceNames(a *models.Appointment) string {
	names := make([]string, 0, len(a.Services))
	for _, li := range a.Services {
		names = append(names, li.Name)
	}
	return strings.Join(names, ", ")
}

func short(t string) string {
	if len(t) == 8 {
		return t[:5]
	}
	return t
}
