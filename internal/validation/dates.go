package validation

import (
	"strings"
	"time"
)

// Day-first layouts are tried before month-first ones, so ambiguous values
// such as 03/04/1990 read as 3 April.
var dateLayouts = []string{
	"2006-1-2",
	"2-1-2006",
	"1-2-2006",
	"2006-2-1",
	"January 2 2006",
	"2 January 2006",
	"Jan 2 2006",
	"2 Jan 2006",
}

// normalizeDate renders a date as YYYY-MM-DD, or returns the trimmed input
// when no known layout matches.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	cleaned := strings.NewReplacer("/", "-", ".", "-", ",", " ").Replace(s)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	numeric := strings.ReplaceAll(cleaned, " ", "-")
	for _, layout := range dateLayouts {
		candidate := numeric
		if strings.Contains(layout, " ") {
			candidate = cleaned
		}
		if t, err := time.Parse(layout, candidate); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}
