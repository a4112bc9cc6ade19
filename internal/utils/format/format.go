package format

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Audience selects how much of a sensitive value is revealed.
type Audience int

const (
	AudienceCustomer Audience = iota
	AudienceAdmin
)

const visibleDigits = 4

var usPrinter = message.NewPrinter(language.AmericanEnglish)

// USD renders an amount as "$1,234.56", rounded to cents.
func USD(amount decimal.Decimal) string {
	cents := amount.Abs().Round(2).Shift(2).IntPart()
	sign := ""
	if amount.IsNegative() && cents > 0 {
		sign = "-"
	}
	return usPrinter.Sprintf("%s$%d", sign, cents/100) + fmt.Sprintf(".%02d", cents%100)
}

// Sensitive masks account numbers, routing numbers and SSNs. Customers see
// the last four characters; admins see the full value.
func Sensitive(value string, audience Audience) string {
	if value == "" || audience == AudienceAdmin {
		return value
	}
	if len(value) <= visibleDigits {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-visibleDigits) + value[len(value)-visibleDigits:]
}
