package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Cents is an amount of money in minor currency units.
type Cents int64

// String renders the amount as a fixed two-decimal number, e.g. "105.00".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Times multiplies the amount by a whole quantity.
func (c Cents) Times(n int) Cents {
	return c * Cents(n)
}

// ParseCents parses a decimal amount such as "35", "35.5" or "35.00".
// More than two fractional digits are rejected instead of rounded.
func ParseCents(raw string) (Cents, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac {
		if frac == "" || len(frac) > 2 {
			return 0, fmt.Errorf("invalid amount %q", raw)
		}
		if len(frac) == 1 {
			frac += "0"
		}
	} else {
		frac = "00"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	minor, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || minor < 0 {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}

	total := units*100 + minor
	if negative {
		total = -total
	}
	return Cents(total), nil
}

// UnmarshalYAML accepts both "35.00" strings and bare numbers in seed files.
func (c *Cents) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseCents(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
