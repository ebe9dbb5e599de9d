// Package dateparse interprets the free-form posting-date text the portal
// renders ("Today", "3 days ago", "Posted: Jan 02, 2026") into timestamps.
// The pipeline only depends on the Parser interface; a richer implementation
// can be swapped in without touching the engines.
package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Parser converts raw posting-date text into a timestamp
type Parser interface {
	Parse(raw string, now time.Time) (time.Time, bool)
}

// PostingDateParser is the default Parser implementation
type PostingDateParser struct{}

// New creates the default posting-date parser
func New() *PostingDateParser {
	return &PostingDateParser{}
}

var (
	labelRe   = regexp.MustCompile(`(?i)^(?:posted|updated|listed)\s*:?\s*`)
	agoRe     = regexp.MustCompile(`(?i)(\d+)\s*(minute|min|hour|hr|day|week|month|year)s?\s*(?:ago|back)`)
	fewDaysRe = regexp.MustCompile(`(?i)\bfew\s+(day|week)s?\b`)
)

// Parse interprets relative phrases first, then falls back to absolute
// formats. Returns false when the text carries no usable date.
func (p *PostingDateParser) Parse(raw string, now time.Time) (time.Time, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return time.Time{}, false
	}
	text = labelRe.ReplaceAllString(text, "")
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "just now"):
		return now, true
	case strings.Contains(lower, "today"):
		return now.Truncate(24 * time.Hour), true
	case strings.Contains(lower, "yesterday"):
		return now.Truncate(24 * time.Hour).Add(-24 * time.Hour), true
	}

	if m := agoRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return now.Add(-relativeUnit(m[2], n)), true
		}
	}

	// "Few days ago" style phrases: treat as a coarse 3-unit offset
	if m := fewDaysRe.FindStringSubmatch(lower); m != nil {
		return now.Add(-relativeUnit(m[1], 3)), true
	}

	if ts, err := dateparse.ParseAny(text); err == nil {
		// The portal never posts future dates; a future parse means the
		// year was omitted and inferred wrong
		if ts.After(now.Add(24 * time.Hour)) {
			ts = ts.AddDate(-1, 0, 0)
		}
		return ts, true
	}

	return time.Time{}, false
}

func relativeUnit(unit string, n int) time.Duration {
	switch unit {
	case "minute", "min":
		return time.Duration(n) * time.Minute
	case "hour", "hr":
		return time.Duration(n) * time.Hour
	case "day":
		return time.Duration(n) * 24 * time.Hour
	case "week":
		return time.Duration(n) * 7 * 24 * time.Hour
	case "month":
		return time.Duration(n) * 30 * 24 * time.Hour
	case "year":
		return time.Duration(n) * 365 * 24 * time.Hour
	}
	return 0
}

// ResolveCanonical picks the canonical timestamp when the card exposes two
// posted-date positions: both are parsed and the earlier one wins.
func ResolveCanonical(p Parser, primary, alt string, now time.Time) (time.Time, string, bool) {
	t1, ok1 := p.Parse(primary, now)
	t2, ok2 := p.Parse(alt, now)

	switch {
	case ok1 && ok2:
		if t2.Before(t1) {
			return t2, "alt_position", true
		}
		return t1, "primary_position", true
	case ok1:
		return t1, "primary_position", true
	case ok2:
		return t2, "alt_position", true
	}
	return time.Time{}, "", false
}
