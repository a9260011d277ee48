// Package dateparse normalizes human-readable relative date expressions
// into absolute [start, end] ISO date pairs. It follows
// internal/timeparsing's vocabulary of relative deltas, widened from
// single timestamps to the day/week/month/quarter/year phrase grammar
// time dimensions use.
package dateparse

import (
	"strconv"
	"strings"
	"time"

	"github.com/cubedlayer/cubed/internal/cubederr"
)

const isoDate = "2006-01-02"

// Range is an absolute, inclusive [Start, End] pair in YYYY-MM-DD form.
type Range struct {
	Start string
	End   string
}

// Parse normalizes expr relative to now. An already-ISO date or an
// already-normalized range is passed through unchanged.
func Parse(expr string, now time.Time) (Range, error) {
	expr = strings.TrimSpace(expr)
	lower := strings.ToLower(expr)

	if d, err := time.Parse(isoDate, expr); err == nil {
		return Range{Start: d.Format(isoDate), End: d.Format(isoDate)}, nil
	}

	switch lower {
	case "today":
		d := startOfDay(now)
		return dayRange(d), nil
	case "yesterday":
		d := startOfDay(now).AddDate(0, 0, -1)
		return dayRange(d), nil
	case "tomorrow":
		d := startOfDay(now).AddDate(0, 0, 1)
		return dayRange(d), nil
	}

	if r, ok, err := parsePeriodPhrase(lower, now); ok {
		return r, err
	}
	if r, ok, err := parseRelativeN(lower, now); ok {
		return r, err
	}
	if r, ok, err := parseFromTo(expr, now); ok {
		return r, err
	}

	return Range{}, cubederr.Query("unparseable date expression %q", expr)
}

// parsePeriodPhrase handles "(this|last|next) (week|month|quarter|year)".
func parsePeriodPhrase(lower string, now time.Time) (Range, bool, error) {
	parts := strings.Fields(lower)
	if len(parts) != 2 {
		return Range{}, false, nil
	}
	qualifier, unit := parts[0], parts[1]
	if qualifier != "this" && qualifier != "last" && qualifier != "next" {
		return Range{}, false, nil
	}

	offset := 0
	switch qualifier {
	case "last":
		offset = -1
	case "next":
		offset = 1
	}

	switch unit {
	case "week":
		start := startOfWeek(now).AddDate(0, 0, 7*offset)
		return Range{Start: start.Format(isoDate), End: start.AddDate(0, 0, 6).Format(isoDate)}, true, nil
	case "month":
		start := startOfMonth(now).AddDate(0, offset, 0)
		return Range{Start: start.Format(isoDate), End: endOfMonth(start).Format(isoDate)}, true, nil
	case "quarter":
		start := startOfQuarter(now).AddDate(0, 3*offset, 0)
		return Range{Start: start.Format(isoDate), End: endOfMonth(start.AddDate(0, 2, 0)).Format(isoDate)}, true, nil
	case "year":
		start := startOfYear(now).AddDate(offset, 0, 0)
		return Range{Start: start.Format(isoDate), End: start.AddDate(1, 0, -1).Format(isoDate)}, true, nil
	}
	return Range{}, false, nil
}

// parseRelativeN handles "last N (days|weeks|months|years)" and the
// symmetric "next N …".
func parseRelativeN(lower string, now time.Time) (Range, bool, error) {
	parts := strings.Fields(lower)
	if len(parts) != 3 {
		return Range{}, false, nil
	}
	qualifier, nStr, unit := parts[0], parts[1], strings.TrimSuffix(parts[2], "s")
	if qualifier != "last" && qualifier != "next" {
		return Range{}, false, nil
	}
	n, err := strconv.Atoi(nStr)
	if err != nil || n <= 0 {
		return Range{}, true, cubederr.Query("invalid relative count in %q", lower)
	}

	today := startOfDay(now)
	switch qualifier {
	case "last":
		switch unit {
		case "day":
			return Range{Start: today.AddDate(0, 0, -(n - 1)).Format(isoDate), End: today.Format(isoDate)}, true, nil
		case "week":
			return Range{Start: today.AddDate(0, 0, -(7*n - 1)).Format(isoDate), End: today.Format(isoDate)}, true, nil
		case "month":
			return Range{Start: today.AddDate(0, -n, 1).Format(isoDate), End: today.Format(isoDate)}, true, nil
		case "year":
			return Range{Start: today.AddDate(-n, 0, 1).Format(isoDate), End: today.Format(isoDate)}, true, nil
		}
	case "next":
		switch unit {
		case "day":
			return Range{Start: today.AddDate(0, 0, 1).Format(isoDate), End: today.AddDate(0, 0, n).Format(isoDate)}, true, nil
		case "week":
			return Range{Start: today.AddDate(0, 0, 1).Format(isoDate), End: today.AddDate(0, 0, 7*n).Format(isoDate)}, true, nil
		case "month":
			return Range{Start: today.AddDate(0, 0, 1).Format(isoDate), End: today.AddDate(0, n, 0).Format(isoDate)}, true, nil
		case "year":
			return Range{Start: today.AddDate(0, 0, 1).Format(isoDate), End: today.AddDate(n, 0, 0).Format(isoDate)}, true, nil
		}
	}
	return Range{}, false, nil
}

// parseFromTo handles "from <expr> to <expr>" where each endpoint is
// "now", "N days ago", "N weeks from now", or an ISO date.
func parseFromTo(expr string, now time.Time) (Range, bool, error) {
	lower := strings.ToLower(expr)
	if !strings.HasPrefix(lower, "from ") {
		return Range{}, false, nil
	}
	rest := expr[len("from "):]
	idx := strings.Index(strings.ToLower(rest), " to ")
	if idx < 0 {
		return Range{}, true, cubederr.Query("malformed from/to expression %q", expr)
	}
	startExpr := strings.TrimSpace(rest[:idx])
	endExpr := strings.TrimSpace(rest[idx+len(" to "):])

	start, err := parseEndpoint(startExpr, now)
	if err != nil {
		return Range{}, true, err
	}
	end, err := parseEndpoint(endExpr, now)
	if err != nil {
		return Range{}, true, err
	}
	return Range{Start: startOfDay(start).Format(isoDate), End: startOfDay(end).Format(isoDate)}, true, nil
}

func parseEndpoint(expr string, now time.Time) (time.Time, error) {
	lower := strings.ToLower(strings.TrimSpace(expr))
	if lower == "now" {
		return now, nil
	}
	if d, err := time.Parse(isoDate, expr); err == nil {
		return d, nil
	}

	fields := strings.Fields(lower)
	switch {
	case len(fields) == 3 && fields[1] == "days" && fields[2] == "ago":
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return time.Time{}, cubederr.Query("invalid endpoint %q", expr)
		}
		return now.AddDate(0, 0, -n), nil
	case len(fields) == 4 && fields[1] == "weeks" && fields[2] == "from" && fields[3] == "now":
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return time.Time{}, cubederr.Query("invalid endpoint %q", expr)
		}
		return now.AddDate(0, 0, 7*n), nil
	}
	return time.Time{}, cubederr.Query("unrecognized from/to endpoint %q", expr)
}

func dayRange(d time.Time) Range {
	return Range{Start: d.Format(isoDate), End: d.Format(isoDate)}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the Monday of t's week; weeks are Monday-anchored.
func startOfWeek(t time.Time) time.Time {
	d := startOfDay(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	return d.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// endOfMonth returns the last day of the month containing t: the first
// day of the following month, minus one day.
func endOfMonth(t time.Time) time.Time {
	return startOfMonth(t).AddDate(0, 1, -1)
}

func startOfQuarter(t time.Time) time.Time {
	q := (int(t.Month()) - 1) / 3
	return time.Date(t.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, t.Location())
}

func startOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

// Validate checks that a caller-supplied pair is already well-formed ISO
// dates with start <= end — the passthrough case for values that arrive
// as an already-resolved [start,end] pair.
func Validate(start, end string) error {
	s, err := time.Parse(isoDate, start)
	if err != nil {
		return cubederr.Query("invalid range start %q: %v", start, err)
	}
	e, err := time.Parse(isoDate, end)
	if err != nil {
		return cubederr.Query("invalid range end %q: %v", end, err)
	}
	if e.Before(s) {
		return cubederr.Query("range end %q is before start %q", end, start)
	}
	return nil
}
