package filter

import (
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Timestamp layouts accepted from the feed. Layouts without a zone are read
// as wall-clock time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// civilDate is a calendar date encoded as yyyymmdd so it compares as an int.
type civilDate int

func toCivil(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate(y*10000 + int(m)*100 + d)
}

// parseDate returns the calendar date of a timestamp or date string.
// Zoned timestamps are converted to loc when loc is non-nil.
func parseDate(s string, loc *time.Location) (civilDate, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if loc != nil && hasZone(layout) {
			t = t.In(loc)
		}
		return toCivil(t), true
	}
	return 0, false
}

func hasZone(layout string) bool {
	return layout == time.RFC3339 || layout == time.RFC3339Nano
}

// dateBounds resolves the range. ok is false when neither bound parses.
func dateBounds(r domain.DateRange) (start, end civilDate, ok bool) {
	start, hasStart := parseDate(r.Start, nil)
	end, hasEnd := parseDate(r.End, nil)
	if !hasStart {
		start = 0
	}
	if !hasEnd {
		end = 99991231
	}
	return start, end, hasStart || hasEnd
}

// inDateRange reports whether the timestamp's date lies in [start, end].
// Unparseable timestamps never match.
func inDateRange(timestamp string, start, end civilDate, loc *time.Location) bool {
	d, ok := parseDate(timestamp, loc)
	if !ok {
		return false
	}
	return d >= start && d <= end
}
