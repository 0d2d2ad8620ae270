package models

import (
	"fmt"
	"strings"
)

type SizeCategory string

const (
	SizeExtraSmall SizeCategory = "extra_small"
	SizeSmall      SizeCategory = "small"
	SizeMedium     SizeCategory = "medium"
	SizeLarge      SizeCategory = "large"
	SizeExtraLarge SizeCategory = "extra_large"
	SizeGiant      SizeCategory = "giant"
)

// AllSizes is ordered from smallest to largest.
var AllSizes = []SizeCategory{SizeExtraSmall, SizeSmall, SizeMedium, SizeLarge, SizeExtraLarge, SizeGiant}

var sizeLabels = map[SizeCategory][2]string{
	SizeExtraSmall: {"Extra Small", "Under 10 lbs"},
	SizeSmall:      {"Small", "10-29 lbs"},
	SizeMedium:     {"Medium", "30-44 lbs"},
	SizeLarge:      {"Large", "45-64 lbs"},
	SizeExtraLarge: {"Extra Large", "65-100 lbs"},
	SizeGiant:      {"Giant", "100+ lbs"},
}

func ParseSizeCategory(s string) (SizeCategory, error) {
	size := SizeCategory(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := sizeLabels[size]; !ok {
		return "", fmt.Errorf("%w: size %q", ErrInvalidValue, s)
	}
	return size, nil
}

func (s SizeCategory) Valid() bool {
	_, ok := sizeLabels[s]
	return ok
}

func (s SizeCategory) Label() string {
	return sizeLabels[s][0]
}

func (s SizeCategory) WeightBand() string {
	return sizeLabels[s][1]
}

type CoatType string

const (
	CoatShort  CoatType = "short"
	CoatMedium CoatType = "medium"
	CoatLong   CoatType = "long"
	CoatCurly  CoatType = "curly"
	CoatWire   CoatType = "wire"
	CoatDouble CoatType = "double"
)

var AllCoats = []CoatType{CoatShort, CoatMedium, CoatLong, CoatCurly, CoatWire, CoatDouble}

var coatLabels = map[CoatType]string{
	CoatShort:  "Short",
	CoatMedium: "Medium",
	CoatLong:   "Long",
	CoatCurly:  "Curly/Doodle",
	CoatWire:   "Wire",
	CoatDouble: "Double Coat",
}

func ParseCoatType(s string) (CoatType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "double-coat" || v == "double_coat" {
		v = string(CoatDouble)
	}
	coat := CoatType(v)
	if _, ok := coatLabels[coat]; !ok {
		return "", fmt.Errorf("%w: coat type %q", ErrInvalidValue, s)
	}
	return coat, nil
}

func (c CoatType) Valid() bool {
	_, ok := coatLabels[c]
	return ok
}

func (c CoatType) Label() string {
	return coatLabels[c]
}

// HeavyCoat reports whether the coat takes longer to groom.
func (c CoatType) HeavyCoat() bool {
	return c == CoatCurly || c == CoatDouble
}
