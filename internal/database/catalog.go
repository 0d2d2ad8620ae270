package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"smarterdog/internal/models"

	sq "github.com/Masterminds/squirrel"
)

var serviceColumns = []string{
	"id", "name", "type", "description",
	"price_xs", "price_small", "price_medium", "price_large", "price_xl", "price_giant",
	"base_duration_minutes", "is_active", "sort_order", "created_at",
}

var groomerColumns = []string{"id", "name", "email", "phone", "color_code", "is_active", "created_at"}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (models.Service, error) {
	var s models.Service
	var xs, small, medium, large, xl, giant sql.NullInt64
	err := row.Scan(
		&s.ID, &s.Name, &s.Type, &s.Description,
		&xs, &small, &medium, &large, &xl, &giant,
		&s.BaseDurationMinutes, &s.IsActive, &s.SortOrder, &s.CreatedAt,
	)
	if err != nil {
		return s, err
	}
	s.Prices = models.PriceTable{
		ExtraSmall: nullInt(xs),
		Small:      nullInt(small),
		Medium:     nullInt(medium),
		Large:      nullInt(large),
		ExtraLarge: nullInt(xl),
		Giant:      nullInt(giant),
	}
	return s, nil
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

// ListServices returns active services, optionally filtered by type, in
// display order.
func (db *DB) ListServices(ctx context.Context, types ...models.ServiceType) ([]models.Service, error) {
	qb := db.sb.Select(serviceColumns...).
		From("services").
		Where(sq.Eq{"is_active": true}).
		OrderBy("sort_order", "name")
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		qb = qb.Where(sq.Eq{"type": names})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list services query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	services := []models.Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (db *DB) GetService(ctx context.Context, id string) (*models.Service, error) {
	query, args, err := db.sb.Select(serviceColumns...).From("services").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get service query: %w", err)
	}

	s, err := scanService(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &s, nil
}

// UpsertService inserts the service or replaces the stored one with the same id.
func (db *DB) UpsertService(ctx context.Context, svc *models.Service) error {
	if svc.ID == "" || svc.Name == "" || !svc.Type.Valid() {
		return fmt.Errorf("%w: service needs id, name and a known type", ErrInvalidInput)
	}
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = time.Now().UTC()
	}

	p := svc.Prices
	query, args, err := db.sb.Insert("services").
		Columns(serviceColumns...).
		Values(
			svc.ID, svc.Name, string(svc.Type), svc.Description,
			p.ExtraSmall, p.Small, p.Medium, p.Large, p.ExtraLarge, p.Giant,
			svc.BaseDurationMinutes, svc.IsActive, svc.SortOrder, svc.CreatedAt,
		).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			description = excluded.description,
			price_xs = excluded.price_xs,
			price_small = excluded.price_small,
			price_medium = excluded.price_medium,
			price_large = excluded.price_large,
			price_xl = excluded.price_xl,
			price_giant = excluded.price_giant,
			base_duration_minutes = excluded.base_duration_minutes,
			is_active = excluded.is_active,
			sort_order = excluded.sort_order`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert service query: %w", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert service: %w", err)
	}
	return nil
}

func scanGroomer(row rowScanner) (models.Groomer, error) {
	var g models.Groomer
	err := row.Scan(&g.ID, &g.Name, &g.Email, &g.Phone, &g.ColorCode, &g.IsActive, &g.CreatedAt)
	return g, err
}

// ListGroomers returns active groomers ordered by name.
func (db *DB) ListGroomers(ctx context.Context) ([]models.Groomer, error) {
	query, args, err := db.sb.Select(groomerColumns...).
		From("groomers").
		Where(sq.Eq{"is_active": true}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list groomers query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list groomers: %w", err)
	}
	defer rows.Close()

	groomers := []models.Groomer{}
	for rows.Next() {
		g, err := scanGroomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan groomer: %w", err)
		}
		groomers = append(groomers, g)
	}
	return groomers, rows.Err()
}

func (db *DB) GetGroomer(ctx context.Context, id string) (*models.Groomer, error) {
	query, args, err := db.sb.Select(groomerColumns...).From("groomers").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get groomer query: %w", err)
	}

	g, err := scanGroomer(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("groomer %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get groomer: %w", err)
	}
	return &g, nil
}

func (db *DB) UpsertGroomer(ctx context.Context, g *models.Groomer) error {
	if g.ID == "" || g.Name == "" {
		return fmt.Errorf("%w: groomer needs id and name", ErrInvalidInput)
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	query, args, err := db.sb.Insert("groomers").
		Columns(groomerColumns...).
		Values(g.ID, g.Name, g.Email, g.Phone, g.ColorCode, g.IsActive, g.CreatedAt).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			color_code = excluded.color_code,
			is_active = excluded.is_active`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert groomer query: %w", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert groomer: %w", err)
	}
	return nil
}
