package validate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"popjoy/internal/domain"
)

var (
	reID      = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	reCode    = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)
	reCountry = regexp.MustCompile(`^[A-Z]{2}$`)
)

const (
	// MaxQuantity bounds a single allocation, sale or batch.
	MaxQuantity = 10000
	maxUnitIDs  = 1000
)

// ID validates a resource identifier (uuid or seeded slug).
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

// OptionalID accepts an empty string or a valid ID.
func OptionalID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}
	return ID(s)
}

// IDs validates a list of identifiers and drops duplicates, keeping order.
func IDs(in []string) ([]string, bool) {
	if len(in) > maxUnitIDs {
		return nil, false
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		id, ok := ID(s)
		if !ok {
			return nil, false
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, true
}

func Quantity(n int) bool { return n > 0 && n <= MaxQuantity }

// QuantityParam parses a query-string quantity; 0 means invalid.
func QuantityParam(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !Quantity(n) {
		return 0
	}
	return n
}

// Name validates a displayable name with a minimum of two characters.
func Name(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || len(s) > 120 {
		return "", false
	}
	return s, true
}

// Code validates a batch code used as the unit SKU prefix.
func Code(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reCode.MatchString(s)
}

func Country(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	return s, reCountry.MatchString(s)
}

func EventStatus(s string) (domain.EventStatus, bool) {
	st := domain.EventStatus(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.Valid()
}

func Movement(s string) (domain.MovementStatus, bool) {
	m := domain.MovementStatus(strings.ToLower(strings.TrimSpace(s)))
	return m, m.Valid()
}

// Time parses an RFC 3339 timestamp or a plain date.
func Time(s string) (domain.Time, bool) {
	t, err := domain.ParseTime(strings.TrimSpace(s))
	return t, err == nil
}

// Money parses a non-negative amount with at most two decimals.
func Money(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() || !d.Equal(d.Round(2)) {
		return decimal.Decimal{}, false
	}
	return d.Round(2), true
}

func Rating(n int) bool { return n >= 1 && n <= 5 }

// Filters validates the optional selector filters in place.
func Filters(f domain.Filters) (domain.Filters, error) {
	var ok bool
	if f.VariantID, ok = OptionalID(f.VariantID); !ok {
		return f, domain.Invalid("variantId", "malformed id")
	}
	if f.BatchID, ok = OptionalID(f.BatchID); !ok {
		return f, domain.Invalid("batchId", "malformed id")
	}
	return f, nil
}
