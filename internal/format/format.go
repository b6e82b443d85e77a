package format

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/locale"
)

var symbols = map[string]string{
	"CRC": "₡",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"MXN": "MX$",
}

// Price formats amount in the given ISO currency using the locale's digit grouping.
// Example: Price(decimal.NewFromInt(52000), "CRC", locale.English) => "₡52,000"
func Price(amount decimal.Decimal, code string, loc locale.Locale) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	scale := 2
	if unit, err := currency.ParseISO(code); err == nil {
		s, _ := currency.Cash.Rounding(unit)
		scale = s
	}
	rounded := amount.Round(int32(scale))
	neg := rounded.IsNegative()
	if neg {
		rounded = rounded.Neg()
	}
	p := message.NewPrinter(loc.Tag())
	digits := p.Sprint(number.Decimal(rounded.InexactFloat64(), number.Scale(scale)))

	prefix := code + " "
	if sym, ok := symbols[code]; ok {
		prefix = sym
	}
	if neg {
		return "-" + prefix + digits
	}
	return prefix + digits
}

// PriceNull formats a nullable amount, returning "" when it is not set.
func PriceNull(amount decimal.NullDecimal, code string, loc locale.Locale) string {
	if !amount.Valid {
		return ""
	}
	return Price(amount.Decimal, code, loc)
}

var monthsES = [...]string{"ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sep", "oct", "nov", "dic"}

// Date formats t in a short locale-friendly form.
func Date(t time.Time, loc locale.Locale) string {
	if loc == locale.Spanish {
		return t.Format("2") + " " + monthsES[t.Month()-1] + " " + t.Format("2006")
	}
	return t.Format("Jan 2, 2006")
}
