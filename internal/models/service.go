package models

import "time"

type ServiceType string

const (
	ServiceTypeFullGroom ServiceType = "full_groom"
	ServiceTypeBathBrush ServiceType = "bath_brush"
	ServiceTypeNailTrim  ServiceType = "nail_trim"
	ServiceTypeAddon     ServiceType = "addon"
)

// MainServiceTypes are the services a booking can be built around.
var MainServiceTypes = []ServiceType{ServiceTypeFullGroom, ServiceTypeBathBrush, ServiceTypeNailTrim}

func (t ServiceType) Valid() bool {
	switch t {
	case ServiceTypeFullGroom, ServiceTypeBathBrush, ServiceTypeNailTrim, ServiceTypeAddon:
		return true
	}
	return false
}

func (t ServiceType) IsMain() bool {
	return t.Valid() && t != ServiceTypeAddon
}

// PriceTable holds one optional price per size tier, in pence.
type PriceTable struct {
	ExtraSmall *int64 `json:"price_xs,omitempty" yaml:"price_xs"`
	Small      *int64 `json:"price_small,omitempty" yaml:"price_small"`
	Medium     *int64 `json:"price_medium,omitempty" yaml:"price_medium"`
	Large      *int64 `json:"price_large,omitempty" yaml:"price_large"`
	ExtraLarge *int64 `json:"price_xl,omitempty" yaml:"price_xl"`
	Giant      *int64 `json:"price_giant,omitempty" yaml:"price_giant"`
}

// For returns the tier field for the size, nil when unset or size unknown.
func (p PriceTable) For(size SizeCategory) *int64 {
	switch size {
	case SizeExtraSmall:
		return p.ExtraSmall
	case SizeSmall:
		return p.Small
	case SizeMedium:
		return p.Medium
	case SizeLarge:
		return p.Large
	case SizeExtraLarge:
		return p.ExtraLarge
	case SizeGiant:
		return p.Giant
	}
	return nil
}

type Service struct {
	ID                  string      `json:"id" yaml:"id"`
	Name                string      `json:"name" yaml:"name"`
	Type                ServiceType `json:"type" yaml:"type"`
	Description         string      `json:"description,omitempty" yaml:"description"`
	Prices              PriceTable  `json:"prices" yaml:"prices"`
	BaseDurationMinutes int         `json:"base_duration_minutes" yaml:"base_duration_minutes"`
	IsActive            bool        `json:"is_active" yaml:"is_active"`
	SortOrder           int         `json:"sort_order" yaml:"sort_order"`
	CreatedAt           time.Time   `json:"created_at" yaml:"-"`
}

// Price is a small helper for building price tables in code.
func Price(pence int64) *int64 {
	return &pence
}
