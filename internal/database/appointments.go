package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"smarterdog/internal/models"
	"smarterdog/internal/schedule"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var appointmentColumns = []string{
	"a.id", "a.customer_id", "a.pet_id", "a.groomer_id", "a.date", "a.start_time", "a.end_time",
	"a.duration_minutes", "a.status", "a.subtotal", "a.deposit", "a.total", "a.deposit_paid",
	"a.customer_notes", "a.matting_minutes", "a.matting_fee", "a.cancelled_at", "a.cancellation_fee",
	"a.idempotency_key", "a.created_at", "a.updated_at",
	"c.first_name", "c.last_name", "c.email", "c.phone",
	"p.name", "p.breed", "p.size", "p.coat_type", "p.weight_lbs", "p.behavioral_notes", "p.medical_conditions",
	"g.name",
}

var blockingStatuses = []string{
	string(models.StatusPending),
	string(models.StatusConfirmed),
	string(models.StatusInProgress),
}

func (db *DB) selectAppointments() sq.SelectBuilder {
	return db.sb.Select(appointmentColumns...).
		From("appointments a").
		LeftJoin("customers c ON c.id = a.customer_id").
		LeftJoin("pets p ON p.id = a.pet_id").
		LeftJoin("groomers g ON g.id = a.groomer_id")
}

func scanAppointment(row rowScanner) (models.Appointment, error) {
	var a models.Appointment
	var cancelledAt sql.NullTime
	var idemKey sql.NullString
	var cFirst, cLast, cEmail, cPhone sql.NullString
	var pName, pBreed, pSize, pCoat, pNotes, pMedical, gName sql.NullString
	var pWeight sql.NullFloat64

	err := row.Scan(
		&a.ID, &a.CustomerID, &a.PetID, &a.GroomerID, &a.Date, &a.StartTime, &a.EndTime,
		&a.DurationMinutes, &a.Status, &a.SubtotalCents, &a.DepositCents, &a.TotalCents, &a.DepositPaid,
		&a.CustomerNotes, &a.MattingMinutes, &a.MattingFeeCents, &cancelledAt, &a.CancellationFeeCents,
		&idemKey, &a.CreatedAt, &a.UpdatedAt,
		&cFirst, &cLast, &cEmail, &cPhone,
		&pName, &pBreed, &pSize, &pCoat, &pWeight, &pNotes, &pMedical,
		&gName,
	)
	if err != nil {
		return a, err
	}

	if cancelledAt.Valid {
		t := cancelledAt.Time
		a.CancelledAt = &t
	}
	a.IdempotencyKey = idemKey.String
	if cFirst.Valid {
		a.Customer = &models.Customer{
			ID:        a.CustomerID,
			FirstName: cFirst.String,
			LastName:  cLast.String,
			Email:     cEmail.String,
			Phone:     cPhone.String,
		}
	}
	if pName.Valid {
		a.Pet = &models.Pet{
			ID:                a.PetID,
			CustomerID:        a.CustomerID,
			Name:              pName.String,
			Breed:             pBreed.String,
			Size:              models.SizeCategory(pSize.String),
			CoatType:          models.CoatType(pCoat.String),
			BehavioralNotes:   pNotes.String,
			MedicalConditions: pMedical.String,
		}
		if pWeight.Valid {
			w := pWeight.Float64
			a.Pet.WeightLbs = &w
		}
	}
	a.GroomerName = gName.String
	return a, nil
}

// GetAppointment loads an appointment with its customer, pet and services.
func (db *DB) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	return db.getAppointment(ctx, db.DB, sq.Eq{"a.id": id})
}

func (db *DB) getAppointment(ctx context.Context, q queryer, where sq.Eq) (*models.Appointment, error) {
	query, args, err := db.selectAppointments().Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get appointment query: %w", err)
	}

	a, err := scanAppointment(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("appointment: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	items, err := db.lineItems(ctx, q, []string{a.ID})
	if err != nil {
		return nil, err
	}
	a.Services = items[a.ID]
	if a.Services == nil {
		a.Services = []models.LineItem{}
	}
	return &a, nil
}

// ListAppointmentsByDate returns every appointment on a YYYY-MM-DD date.
func (db *DB) ListAppointmentsByDate(ctx context.Context, date string) ([]models.Appointment, error) {
	return db.listAppointments(ctx, sq.Eq{"a.date": date})
}

// ListAppointmentsInRange returns appointments between two dates, inclusive.
func (db *DB) ListAppointmentsInRange(ctx context.Context, from, to string) ([]models.Appointment, error) {
	return db.listAppointments(ctx, sq.And{sq.GtOrEq{"a.date": from}, sq.LtOrEq{"a.date": to}})
}

func (db *DB) listAppointments(ctx context.Context, where sq.Sqlizer) ([]models.Appointment, error) {
	query, args, err := db.selectAppointments().
		Where(where).
		OrderBy("a.date", "a.start_time", "a.groomer_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list appointments query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}

	appts := []models.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appts = append(appts, a)
	}
	// rows must be closed before the next query on a single-connection pool
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}

	if len(appts) == 0 {
		return appts, nil
	}
	ids := make([]string, len(appts))
	for i := range appts {
		ids[i] = appts[i].ID
	}
	items, err := db.lineItems(ctx, db.DB, ids)
	if err != nil {
		return nil, err
	}
	for i := range appts {
		appts[i].Services = items[appts[i].ID]
		if appts[i].Services == nil {
			appts[i].Services = []models.LineItem{}
		}
	}
	return appts, nil
}

func (db *DB) lineItems(ctx context.Context, q queryer, ids []string) (map[string][]models.LineItem, error) {
	query, args, err := db.sb.Select("appointment_id", "service_id", "name", "type", "price", "duration_minutes").
		From("appointment_services").
		Where(sq.Eq{"appointment_id": ids}).
		OrderBy("appointment_id", "position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build line items query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load line items: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.LineItem, len(ids))
	for rows.Next() {
		var apptID string
		var li models.LineItem
		if err := rows.Scan(&apptID, &li.ServiceID, &li.Name, &li.Type, &li.PriceCents, &li.DurationMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		out[apptID] = append(out[apptID], li)
	}
	return out, rows.Err()
}

// CreateAppointment commits a booking. A repeated idempotency key returns the
// appointment created by the first call with created=false.
func (db *DB) CreateAppointment(ctx context.Context, na *models.NewAppointment) (*models.Appointment, bool, error) {
	if err := validateNewAppointment(na); err != nil {
		return nil, false, err
	}
	appt := na.Appointment

	if appt.IdempotencyKey != "" {
		existing, err := db.getAppointment(ctx, db.DB, sq.Eq{"a.idempotency_key": appt.IdempotencyKey})
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := db.lockGroomerDay(ctx, tx, appt.GroomerID, appt.Date); err != nil {
			return err
		}
		if err := db.checkGroomer(ctx, tx, appt.GroomerID); err != nil {
			return err
		}
		if err := db.checkOverlap(ctx, tx, &appt); err != nil {
			return err
		}

		customerID, err := db.saveCustomer(ctx, tx, na.Customer, appt.CustomerID)
		if err != nil {
			return err
		}
		appt.CustomerID = customerID

		pet := na.Pet
		pet.CustomerID = customerID
		petID, err := db.savePet(ctx, tx, &pet)
		if err != nil {
			return err
		}
		appt.PetID = petID

		return db.insertAppointment(ctx, tx, &appt)
	})
	if err != nil {
		if appt.IdempotencyKey != "" && isUniqueViolation(err) {
			// lost a race with an identical submission
			existing, getErr := db.getAppointment(ctx, db.DB, sq.Eq{"a.idempotency_key": appt.IdempotencyKey})
			if getErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	created, err := db.GetAppointment(ctx, appt.ID)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func validateNewAppointment(na *models.NewAppointment) error {
	a := na.Appointment
	var missing []string
	if a.GroomerID == "" {
		missing = append(missing, "groomer_id")
	}
	if _, err := schedule.ParseDate(a.Date); err != nil {
		missing = append(missing, "date")
	}
	if _, err := schedule.ParseClock(a.StartTime); err != nil {
		missing = append(missing, "start_time")
	}
	if a.DurationMinutes <= 0 {
		missing = append(missing, "duration_minutes")
	}
	if na.Customer == nil && a.CustomerID == "" {
		missing = append(missing, "customer")
	}
	if na.Pet.Name == "" || !na.Pet.Size.Valid() {
		missing = append(missing, "pet")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// lockGroomerDay serialises bookings for one groomer and day on PostgreSQL.
// SQLite write transactions are already exclusive.
func (db *DB) lockGroomerDay(ctx context.Context, tx *sql.Tx, groomerID, date string) error {
	if db.driver != DriverPostgres {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", groomerID+"|"+date); err != nil {
		return fmt.Errorf("failed to lock groomer schedule: %w", err)
	}
	return nil
}

func (db *DB) checkGroomer(ctx context.Context, tx *sql.Tx, groomerID string) error {
	query, args, err := db.sb.Select("is_active").From("groomers").Where(sq.Eq{"id": groomerID}).ToSql()
	if err != nil {
		return fmt.Errorf("build groomer query: %w", err)
	}
	var active bool
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("groomer %s: %w", groomerID, ErrNotFound)
		}
		return fmt.Errorf("failed to get groomer: %w", err)
	}
	if !active {
		return fmt.Errorf("%w: groomer %s is not taking bookings", ErrInvalidInput, groomerID)
	}
	return nil
}

func (db *DB) checkOverlap(ctx context.Context, tx *sql.Tx, appt *models.Appointment) error {
	start, err := schedule.ParseClock(appt.StartTime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	query, args, err := db.sb.Select("start_time", "duration_minutes").
		From("appointments").
		Where(sq.Eq{"groomer_id": appt.GroomerID, "date": appt.Date, "status": blockingStatuses}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build overlap query: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to check groomer schedule: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var other string
		var minutes int
		if err := rows.Scan(&other, &minutes); err != nil {
			return fmt.Errorf("failed to scan schedule: %w", err)
		}
		otherStart, err := schedule.ParseClock(other)
		if err != nil {
			continue
		}
		if schedule.Overlaps(start, appt.DurationMinutes, otherStart, minutes) {
			return ErrSlotTaken
		}
	}
	return rows.Err()
}

// saveCustomer reuses the customer with the same email, refreshing name and
// phone, or creates a new one.
func (db *DB) saveCustomer(ctx context.Context, tx *sql.Tx, c *models.Customer, existingID string) (string, error) {
	if c == nil {
		var id string
		query, args, err := db.sb.Select("id").From("customers").Where(sq.Eq{"id": existingID}).ToSql()
		if err != nil {
			return "", fmt.Errorf("build customer query: %w", err)
		}
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", fmt.Errorf("customer %s: %w", existingID, ErrNotFound)
			}
			return "", fmt.Errorf("failed to get customer: %w", err)
		}
		return id, nil
	}

	email := strings.ToLower(strings.TrimSpace(c.Email))
	query, args, err := db.sb.Select("id").From("customers").Where(sq.Eq{"email": email}).ToSql()
	if err != nil {
		return "", fmt.Errorf("build customer lookup: %w", err)
	}

	var id string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	switch {
	case err == nil:
		upd, uargs, err := db.sb.Update("customers").
			Set("first_name", c.FirstName).
			Set("last_name", c.LastName).
			Set("phone", c.Phone).
			Where(sq.Eq{"id": id}).
			ToSql()
		if err != nil {
			return "", fmt.Errorf("build customer update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, upd, uargs...); err != nil {
			return "", fmt.Errorf("failed to update customer: %w", err)
		}
		return id, nil
	case errors.Is(err, sql.ErrNoRows):
	default:
		return "", fmt.Errorf("failed to look up customer: %w", err)
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	ins, iargs, err := db.sb.Insert("customers").
		Columns("id", "first_name", "last_name", "email", "phone", "created_at").
		Values(c.ID, c.FirstName, c.LastName, email, c.Phone, time.Now().UTC()).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build customer insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, ins, iargs...); err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}
	return c.ID, nil
}

// savePet matches an existing pet of the customer by name, case-insensitively.
func (db *DB) savePet(ctx context.Context, tx *sql.Tx, p *models.Pet) (string, error) {
	query, args, err := db.sb.Select("id").
		From("pets").
		Where(sq.Eq{"customer_id": p.CustomerID}).
		Where(sq.Expr("LOWER(name) = ?", strings.ToLower(p.Name))).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build pet lookup: %w", err)
	}

	var id string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	switch {
	case err == nil:
		upd, uargs, err := db.sb.Update("pets").
			Set("breed", p.Breed).
			Set("size", string(p.Size)).
			Set("coat_type", string(p.CoatType)).
			Set("weight_lbs", p.WeightLbs).
			Set("behavioral_notes", p.BehavioralNotes).
			Set("medical_conditions", p.MedicalConditions).
			Where(sq.Eq{"id": id}).
			ToSql()
		if err != nil {
			return "", fmt.Errorf("build pet update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, upd, uargs...); err != nil {
			return "", fmt.Errorf("failed to update pet: %w", err)
		}
		return id, nil
	case errors.Is(err, sql.ErrNoRows):
	default:
		return "", fmt.Errorf("failed to look up pet: %w", err)
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	ins, iargs, err := db.sb.Insert("pets").
		Columns("id", "customer_id", "name", "breed", "size", "coat_type", "weight_lbs",
			"behavioral_notes", "medical_conditions", "created_at").
		Values(p.ID, p.CustomerID, p.Name, p.Breed, string(p.Size), string(p.CoatType), p.WeightLbs,
			p.BehavioralNotes, p.MedicalConditions, time.Now().UTC()).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build pet insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, ins, iargs...); err != nil {
		return "", fmt.Errorf("failed to create pet: %w", err)
	}
	return p.ID, nil
}

func (db *DB) insertAppointment(ctx context.Context, tx *sql.Tx, a *models.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.StatusPending
	}
	start, _ := schedule.ParseClock(a.StartTime)
	a.StartTime = start.String()
	a.EndTime = start.AddMinutes(a.DurationMinutes).String()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	var idemKey any
	if a.IdempotencyKey != "" {
		idemKey = a.IdempotencyKey
	}

	query, args, err := db.sb.Insert("appointments").
		Columns(
			"id", "customer_id", "pet_id", "groomer_id", "date", "start_time", "end_time",
			"duration_minutes", "status", "subtotal", "deposit", "total", "deposit_paid",
			"customer_notes", "matting_minutes", "matting_fee", "cancellation_fee",
			"idempotency_key", "created_at", "updated_at",
		).
		Values(
			a.ID, a.CustomerID, a.PetID, a.GroomerID, a.Date, a.StartTime, a.EndTime,
			a.DurationMinutes, string(a.Status), a.SubtotalCents, a.DepositCents, a.TotalCents, a.DepositPaid,
			a.CustomerNotes, a.MattingMinutes, a.MattingFeeCents, a.CancellationFeeCents,
			idemKey, a.CreatedAt, a.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build appointment insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}

	if len(a.Services) == 0 {
		return nil
	}
	items := db.sb.Insert("appointment_services").
		Columns("appointment_id", "position", "service_id", "name", "type", "price", "duration_minutes")
	for i, li := range a.Services {
		items = items.Values(a.ID, i, li.ServiceID, li.Name, string(li.Type), li.PriceCents, li.DurationMinutes)
	}
	query, args, err = items.ToSql()
	if err != nil {
		return fmt.Errorf("build line items insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert line items: %w", err)
	}
	return nil
}

// CancelAppointment marks a pending or confirmed appointment cancelled and
// records the fee charged.
func (db *DB) CancelAppointment(ctx context.Context, id string, feeCents int64, at time.Time) (*models.Appointment, error) {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		query, args, err := db.sb.Select("status").From("appointments").Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("build status query: %w", err)
		}
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("appointment %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to get appointment status: %w", err)
		}
		if !models.AppointmentStatus(status).Cancellable() {
			return fmt.Errorf("%w: status %s", ErrNotCancellable, status)
		}

		upd, uargs, err := db.sb.Update("appointments").
			Set("status", string(models.StatusCancelled)).
			Set("cancelled_at", at.UTC()).
			Set("cancellation_fee", feeCents).
			Set("updated_at", time.Now().UTC()).
			Where(sq.Eq{"id": id}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build cancel update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, upd, uargs...); err != nil {
			return fmt.Errorf("failed to cancel appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return db.GetAppointment(ctx, id)
}

// UpdateMatting records de-matting time and its fee.
func (db *DB) UpdateMatting(ctx context.Context, id string, minutes int, feeCents int64) (*models.Appointment, error) {
	query, args, err := db.sb.Update("appointments").
		Set("matting_minutes", minutes).
		Set("matting_fee", feeCents).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build matting update: %w", err)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update matting: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	return db.GetAppointment(ctx, id)
}
