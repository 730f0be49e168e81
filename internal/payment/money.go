package payment

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ToMinorUnits converts 12.34 to 1234, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts 1234 to 12.34.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// FormatAmount renders a two-decimal string as gateways expect ("110.00").
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// Amount accepts gateway amounts sent either as JSON numbers or as strings.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		a.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	a.Decimal = d
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Decimal.String())
}
