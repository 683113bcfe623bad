package feed

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Location is the zone Koinor timestamps are interpreted in
var Location = time.UTC

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// parseAmount reads a Koinor amount. Empty input is zero.
func parseAmount(value string) (decimal.Decimal, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return decimal.Zero, nil
	}
	// some exports use a decimal comma
	if strings.Contains(v, ",") && !strings.Contains(v, ".") {
		v = strings.ReplaceAll(v, ",", ".")
	}
	return decimal.NewFromString(v)
}

// parseDate accepts YYYY-MM-DD with optional time and DD/MM/YYYY.
// Empty input yields nil without error.
func parseDate(value string) (*time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, nil
	}
	// fractional seconds appear on some agent exports
	if i := strings.IndexByte(v, '.'); i > 0 && strings.Contains(v[:i], ":") {
		v = v[:i]
	}
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, v, Location)
		if err == nil {
			return &t, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
