package quote

import (
	"fmt"
	"strconv"
	"strings"
)

// NumberPrefix returns the quote number prefix for a year, e.g. "QT-2025-".
func NumberPrefix(year int) string {
	return fmt.Sprintf("QT-%d-", year)
}

// NextNumber derives the next quote number for a year from the greatest
// persisted number with that year's prefix. An empty latest value starts
// the year at 0001. The formatted suffix can exceed four digits, but
// the lookup orders numbers lexicographically, so four digits is the
// practical per-year capacity.
func NextNumber(latest string, year int) (string, error) {
	prefix := NumberPrefix(year)
	if latest == "" {
		return fmt.Sprintf("%s%04d", prefix, 1), nil
	}
	if !strings.HasPrefix(latest, prefix) {
		return "", fmt.Errorf("quote: number %q does not match prefix %q", latest, prefix)
	}
	suffix := latest[len(prefix):]
	seq, err := strconv.Atoi(suffix)
	if err != nil {
		return "", fmt.Errorf("quote: malformed number suffix %q: %w", suffix, err)
	}
	return fmt.Sprintf("%s%04d", prefix, seq+1), nil
}
