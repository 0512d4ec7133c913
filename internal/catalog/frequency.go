package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownFrequency is returned for an update frequency with no catalog code.
var ErrUnknownFrequency = errors.New("unknown update frequency")

// Catalog update frequency codes, in days, with the special values
// -2 (as needed), -1 (never) and 0 (live).
var frequencyCodes = map[string]string{
	"as needed":      "-2",
	"adhoc":          "-2",
	"ad hoc":         "-2",
	"never":          "-1",
	"live":           "0",
	"day":            "1",
	"daily":          "1",
	"week":           "7",
	"weekly":         "7",
	"two weeks":      "14",
	"fortnightly":    "14",
	"biweekly":       "14",
	"month":          "30",
	"monthly":        "30",
	"three months":   "90",
	"quarter":        "90",
	"quarterly":      "90",
	"six months":     "180",
	"semiannually":   "180",
	"semi-annually":  "180",
	"biannually":     "180",
	"year":           "365",
	"yearly":         "365",
	"annually":       "365",
	"annual":         "365",
}

// FrequencyCode maps an update frequency label such as "Every month" or
// "adhoc" to the catalog's numeric code. Numeric codes pass through.
func FrequencyCode(label string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))

	if _, err := strconv.Atoi(normalized); err == nil {
		return normalized, nil
	}

	normalized = strings.TrimPrefix(normalized, "every ")

	if code, ok := frequencyCodes[normalized]; ok {
		return code, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownFrequency, label)
}
