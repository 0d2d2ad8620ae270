package pricing

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

const CurrencySymbol = "£"

// FormatPrice renders pence as pounds, e.g. 123400 -> "£1,234.00".
func FormatPrice(pence int64) string {
	sign := ""
	if pence < 0 {
		sign = "-"
		pence = -pence
	}
	return fmt.Sprintf("%s%s%s.%02d", sign, CurrencySymbol, humanize.Comma(pence/100), pence%100)
}
