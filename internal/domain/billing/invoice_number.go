package billing

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// MinSequenceLength is the shortest trailing sequence accepted for fuzzy matching
const MinSequenceLength = 5

var (
	// raw Koinor spelling: 001002-00123341
	rawInvoicePattern = regexp.MustCompile(`^(\d{3})(\d{3})-(\d{8})$`)
	// canonical spelling: 001-002-000123341
	canonicalInvoicePattern = regexp.MustCompile(`^\d{3}-\d{3}-\d{9}$`)
	// canonical with a zero-padded sequence, the only shape that maps back to raw
	paddedCanonicalPattern = regexp.MustCompile(`^(\d{3})-(\d{3})-0(\d{8})$`)
	compactPattern         = regexp.MustCompile(`^\d{14,15}$`)
	nonDigitPattern        = regexp.MustCompile(`\D`)
)

// Canonicalizer converts invoice numbers between the raw and canonical shapes.
// All methods are total: unexpected input is logged and returned trimmed.
type Canonicalizer struct {
	logger *zap.Logger
}

// NewCanonicalizer creates a Canonicalizer. A nil logger is replaced by a no-op.
func NewCanonicalizer(logger *zap.Logger) *Canonicalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Canonicalizer{logger: logger.Named("invoice_number")}
}

// Normalize converts AAABBB-CCCCCCCC into AAA-BBB-0CCCCCCCC.
// Canonical input is returned as-is.
func (c *Canonicalizer) Normalize(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return ""
	}
	if m := rawInvoicePattern.FindStringSubmatch(cleaned); m != nil {
		return m[1] + "-" + m[2] + "-0" + m[3]
	}
	if canonicalInvoicePattern.MatchString(cleaned) {
		return cleaned
	}
	c.logger.Warn("Could not normalize invoice number", zap.String("value", raw))
	return cleaned
}

// Denormalize converts AAA-BBB-0CCCCCCCC back into AAABBB-CCCCCCCC.
// Raw input is returned as-is.
func (c *Canonicalizer) Denormalize(canonical string) string {
	cleaned := strings.TrimSpace(canonical)
	if cleaned == "" {
		return ""
	}
	if m := paddedCanonicalPattern.FindStringSubmatch(cleaned); m != nil {
		return m[1] + m[2] + "-" + m[3]
	}
	if rawInvoicePattern.MatchString(cleaned) {
		return cleaned
	}
	c.logger.Warn("Could not denormalize invoice number", zap.String("value", canonical))
	return cleaned
}

// VariantsOf returns every plausible spelling of value: as given, raw,
// canonical and the digit-only compactions of both.
func (c *Canonicalizer) VariantsOf(value string) []string {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return nil
	}

	seen := make(map[string]struct{}, 5)
	variants := make([]string, 0, 5)
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		variants = append(variants, v)
	}

	add(cleaned)
	expanded := expandCompact(cleaned)
	add(expanded)

	switch {
	case rawInvoicePattern.MatchString(expanded):
		canonical := c.Normalize(expanded)
		add(canonical)
		add(compact(expanded))
		add(compact(canonical))
	case paddedCanonicalPattern.MatchString(expanded):
		add(c.Denormalize(expanded))
		add(compact(expanded))
		add(compact(c.Denormalize(expanded)))
	case canonicalInvoicePattern.MatchString(expanded):
		add(compact(expanded))
	}
	return variants
}

// ExtractSequence returns the trailing numeric segment without leading zeros
func (c *Canonicalizer) ExtractSequence(value string) string {
	return ExtractSequence(value)
}

// ExtractSequence returns the trailing numeric segment of any spelling with
// leading zeros stripped; "0" when the segment is all zeros.
func ExtractSequence(value string) string {
	cleaned := expandCompact(strings.TrimSpace(value))
	if cleaned == "" {
		return ""
	}
	parts := strings.Split(cleaned, "-")
	last := strings.TrimLeft(parts[len(parts)-1], "0")
	if last == "" {
		return "0"
	}
	return last
}

// SequenceMatches reports whether a and b share a trailing sequence of at
// least MinSequenceLength digits.
func SequenceMatches(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}
	sa, sb := ExtractSequence(a), ExtractSequence(b)
	return sa == sb && len(sa) >= MinSequenceLength
}

// CleanTaxID strips everything but digits from a cedula/RUC
func CleanTaxID(value string) string {
	return nonDigitPattern.ReplaceAllString(value, "")
}

func compact(v string) string {
	return strings.ReplaceAll(v, "-", "")
}

// expandCompact restores dashes on a digit-only spelling: 14 digits is raw,
// 15 digits is canonical.
func expandCompact(v string) string {
	if !compactPattern.MatchString(v) {
		return v
	}
	if len(v) == 14 {
		return v[:6] + "-" + v[6:]
	}
	return v[:3] + "-" + v[3:6] + "-" + v[6:]
}
