package service

import (
	"context"
	"errors"
	"fmt"

	"smarterdog/internal/database"
	"smarterdog/internal/domain"
	"smarterdog/internal/models"
	"smarterdog/internal/pricing"

	"github.com/rs/zerolog"
)

// CatalogService serves services, add-ons and groomers and prices quotes.
type CatalogService struct {
	store      domain.Datastore
	depositPct float64
	logger     *zerolog.Logger
}

func NewCatalogService(store domain.Datastore, depositPct float64, logger *zerolog.Logger) *CatalogService {
	if depositPct <= 0 {
		depositPct = pricing.DefaultDepositPercentage
	}
	return &CatalogService{
		store:      store,
		depositPct: depositPct,
		logger:     logger,
	}
}

func (s *CatalogService) MainServices(ctx context.Context) ([]models.Service, error) {
	return s.store.ListServices(ctx, models.MainServiceTypes...)
}

// PricedService is an add-on with its price resolved for one pet size.
type PricedService struct {
	models.Service
	PriceCents int64 `json:"price"`
}

// AddOns lists active add-ons. When size is set each entry carries the
// price for that size.
func (s *CatalogService) AddOns(ctx context.Context, size models.SizeCategory) ([]PricedService, error) {
	if size != "" && !size.Valid() {
		return nil, fmt.Errorf("%w: size %q", ErrInvalidRequest, size)
	}
	addOns, err := s.store.ListServices(ctx, models.ServiceTypeAddon)
	if err != nil {
		return nil, err
	}

	result := make([]PricedService, 0, len(addOns))
	for _, a := range addOns {
		ps := PricedService{Service: a}
		if size != "" {
			ps.PriceCents = pricing.EffectivePrice(a, size)
		}
		result = append(result, ps)
	}
	return result, nil
}

func (s *CatalogService) Groomers(ctx context.Context) ([]models.Groomer, error) {
	return s.store.ListGroomers(ctx)
}

// QuoteRequest is the input of a standalone price quote.
type QuoteRequest struct {
	ServiceID string              `json:"service_id"`
	AddOnIDs  []string            `json:"add_on_ids"`
	Size      models.SizeCategory `json:"size"`
	CoatType  models.CoatType     `json:"coat_type"`
}

func (s *CatalogService) Quote(ctx context.Context, req QuoteRequest) (pricing.Quote, error) {
	if !req.Size.Valid() {
		return pricing.Quote{}, fmt.Errorf("%w: size %q", ErrInvalidRequest, req.Size)
	}
	if req.CoatType != "" && !req.CoatType.Valid() {
		return pricing.Quote{}, fmt.Errorf("%w: coat type %q", ErrInvalidRequest, req.CoatType)
	}

	main, err := s.mainService(ctx, req.ServiceID)
	if err != nil {
		return pricing.Quote{}, err
	}
	addOns, err := s.addOnServices(ctx, req.AddOnIDs)
	if err != nil {
		return pricing.Quote{}, err
	}

	q := pricing.BuildQuote(*main, addOns, req.Size, req.CoatType, s.depositPct)
	if q.MainPriceMissing {
		s.logger.Warn().Str("service_id", main.ID).Str("size", string(req.Size)).Msg("main service resolved to zero price")
	}
	return q, nil
}

// Seed upserts the configured catalog.
func (s *CatalogService) Seed(ctx context.Context, services []models.Service, groomers []models.Groomer) error {
	for i := range services {
		if !services[i].Type.Valid() {
			return fmt.Errorf("%w: service %q has type %q", ErrInvalidRequest, services[i].ID, services[i].Type)
		}
		if err := s.store.UpsertService(ctx, &services[i]); err != nil {
			return fmt.Errorf("seed service %s: %w", services[i].ID, err)
		}
	}
	for i := range groomers {
		if err := s.store.UpsertGroomer(ctx, &groomers[i]); err != nil {
			return fmt.Errorf("seed groomer %s: %w", groomers[i].ID, err)
		}
	}

	s.logger.Info().Int("services", len(services)).Int("groomers", len(groomers)).Msg("catalog seeded")
	return nil
}

func (s *CatalogService) mainService(ctx context.Context, id string) (*models.Service, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: service id is required", ErrInvalidService)
	}
	svc, err := s.store.GetService(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown service %q", ErrInvalidService, id)
	}
	if err != nil {
		return nil, err
	}
	if !svc.IsActive || !svc.Type.IsMain() {
		return nil, fmt.Errorf("%w: %q is not a bookable service", ErrInvalidService, id)
	}
	return svc, nil
}

func (s *CatalogService) addOnServices(ctx context.Context, ids []string) ([]models.Service, error) {
	addOns := make([]models.Service, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		svc, err := s.store.GetService(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown add-on %q", ErrInvalidService, id)
		}
		if err != nil {
			return nil, err
		}
		if !svc.IsActive || svc.Type != models.ServiceTypeAddon {
			return nil, fmt.Errorf("%w: %q is not an add-on", ErrInvalidService, id)
		}
		addOns = append(addOns, *svc)
	}
	return addOns, nil
}
