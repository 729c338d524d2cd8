package survey

import (
	"strconv"
	"strings"
	"time"
)

// TimestampYear returns the 4-digit year of a form timestamp. Slash dates
// ("1/2/2024 10:00") carry the year last, dash dates ("2024-01-02") carry it
// first. The year of now is used when neither form parses.
func TimestampYear(timestamp string, now time.Time) string {
	datePart := strings.TrimSpace(timestamp)
	if i := strings.IndexAny(datePart, " T"); i >= 0 {
		datePart = datePart[:i]
	}

	var candidate string
	switch {
	case strings.Contains(datePart, "/"):
		parts := strings.Split(datePart, "/")
		candidate = parts[len(parts)-1]
	case strings.Contains(datePart, "-"):
		candidate = strings.Split(datePart, "-")[0]
	}

	if len(candidate) == 4 {
		if y, err := strconv.Atoi(candidate); err == nil && y >= 1900 && y < 2200 {
			return candidate
		}
	}
	return strconv.Itoa(now.Year())
}
