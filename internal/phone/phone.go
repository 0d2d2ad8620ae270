// Package phone normalizes and validates UK phone numbers.
package phone

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Tag is the validator tag checked by IsValid.
const Tag = "ukphone"

// Normalize strips everything except digits.
func Normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r <= unicode.MaxASCII {
			return r
		}
		return -1
	}, s)
}

// Format groups a recognised number: "07xxx xxxxxx", "0xxx xxx xxx" or
// "0xxxx xxxxxx". Anything else is returned unchanged.
func Format(s string) string {
	d := Normalize(s)
	switch {
	case len(d) == 11 && strings.HasPrefix(d, "0"):
		return d[:5] + " " + d[5:]
	case len(d) == 10 && strings.HasPrefix(d, "0"):
		return d[:4] + " " + d[4:7] + " " + d[7:]
	}
	return s
}

// IsMobile reports whether s is an 11-digit 07 number.
func IsMobile(s string) bool {
	d := Normalize(s)
	return len(d) == 11 && strings.HasPrefix(d, "07")
}

func IsValid(s string) bool {
	d := Normalize(s)
	if !strings.HasPrefix(d, "0") {
		return false
	}
	return len(d) == 10 || len(d) == 11
}

// RegisterValidation adds the ukphone tag to v.
func RegisterValidation(v *validator.Validate) error {
	return v.RegisterValidation(Tag, func(fl validator.FieldLevel) bool {
		return IsValid(fl.Field().String())
	})
}
