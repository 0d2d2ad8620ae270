package database

import (
	"database/sql"
	"fmt"
)

// Column types are chosen to mean the same thing on SQLite and PostgreSQL.
var commonTables = []string{
	`CREATE TABLE IF NOT EXISTS services (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price_xs BIGINT,
		price_small BIGINT,
		price_medium BIGINT,
		price_large BIGINT,
		price_xl BIGINT,
		price_giant BIGINT,
		base_duration_minutes INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS groomers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		color_code TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pets (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		name TEXT NOT NULL,
		breed TEXT NOT NULL DEFAULT '',
		size TEXT NOT NULL,
		coat_type TEXT NOT NULL,
		weight_lbs REAL,
		behavioral_notes TEXT NOT NULL DEFAULT '',
		medical_conditions TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		pet_id TEXT NOT NULL REFERENCES pets(id),
		groomer_id TEXT NOT NULL REFERENCES groomers(id),
		date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		subtotal BIGINT NOT NULL DEFAULT 0,
		deposit BIGINT NOT NULL DEFAULT 0,
		total BIGINT NOT NULL DEFAULT 0,
		deposit_paid BOOLEAN NOT NULL DEFAULT FALSE,
		customer_notes TEXT NOT NULL DEFAULT '',
		matting_minutes INTEGER NOT NULL DEFAULT 0,
		matting_fee BIGINT NOT NULL DEFAULT 0,
		cancelled_at TIMESTAMP,
		cancellation_fee BIGINT NOT NULL DEFAULT 0,
		idempotency_key TEXT UNIQUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS appointment_services (
		appointment_id TEXT NOT NULL REFERENCES appointments(id),
		position INTEGER NOT NULL,
		service_id TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		price BIGINT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		PRIMARY KEY (appointment_id, position)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_services_type ON services(type)`,
	`CREATE INDEX IF NOT EXISTS idx_pets_customer ON pets(customer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_date ON appointments(date)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_groomer_date ON appointments(groomer_id, date)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status)`,
}

var syncQueueTable = map[string]string{
	DriverSQLite: `CREATE TABLE IF NOT EXISTS sync_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_type TEXT NOT NULL,
		appointment_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP,
		next_retry_at TIMESTAMP
	)`,
	DriverPostgres: `CREATE TABLE IF NOT EXISTS sync_queue (
		id BIGSERIAL PRIMARY KEY,
		task_type TEXT NOT NULL,
		appointment_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP,
		next_retry_at TIMESTAMP
	)`,
}

func createTables(db *sql.DB, driver string) error {
	queries := append([]string{}, commonTables...)
	queries = append(queries,
		syncQueueTable[driver],
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	)

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}
