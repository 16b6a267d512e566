// Package timeref resolves time references (absolute, relative, symbolic,
// or a small natural-language grammar) into absolute instants, and resolves
// time ranges from pairs of references.
package timeref

import (
	"fmt"
	"strings"
	"time"

	"github.com/jszwedko/go-datemath"
)

// ErrInvalidReference is wrapped into every parse failure.
type ErrInvalidReference struct {
	Reference string
	Reason    string
}

func (e *ErrInvalidReference) Error() string {
	return fmt.Sprintf("invalid-time-reference: %q: %s", e.Reference, e.Reason)
}

// Resolver resolves time references against a configured timezone.
type Resolver struct {
	Location *time.Location
}

// NewResolver builds a Resolver for the named timezone (e.g. "UTC",
// "America/New_York"). Falls back to UTC if the name cannot be loaded.
func NewResolver(tz string) *Resolver {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return &Resolver{Location: loc}
}

// Resolve parses ref relative to the reference instant `now` and returns an
// absolute instant in the resolver's timezone.
//
// Precedence: RFC3339 -> signed duration -> symbolic keyword -> restricted
// natural-language phrase -> go-datemath expression.
func (r *Resolver) Resolve(ref string, now time.Time) (time.Time, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return time.Time{}, &ErrInvalidReference{Reference: ref, Reason: "empty reference"}
	}

	if t, err := time.Parse(time.RFC3339, ref); err == nil {
		return t.In(r.Location), nil
	}

	if t, ok := r.parseSignedDuration(ref, now); ok {
		return t, nil
	}

	if t, ok := r.parseSymbolic(ref, now); ok {
		return t, nil
	}

	if t, ok := r.parseNaturalLanguage(ref, now); ok {
		return t, nil
	}

	return time.Time{}, &ErrInvalidReference{Reference: ref, Reason: "no recognized form"}
}

// parseSignedDuration handles "15m" (treated as 15 minutes ago), "-2h"
// (2 hours ago), and "+30m" (30 minutes from now).
func (r *Resolver) parseSignedDuration(ref string, now time.Time) (time.Time, bool) {
	switch {
	case strings.HasPrefix(ref, "+"):
		d, err := time.ParseDuration(ref[1:])
		if err != nil {
			return time.Time{}, false
		}
		return now.Add(d).In(r.Location), true
	case strings.HasPrefix(ref, "-"):
		d, err := time.ParseDuration(ref[1:])
		if err != nil {
			return time.Time{}, false
		}
		return now.Add(-d).In(r.Location), true
	default:
		d, err := time.ParseDuration(ref)
		if err != nil {
			return time.Time{}, false
		}
		return now.Add(-d).In(r.Location), true
	}
}

func (r *Resolver) parseSymbolic(ref string, now time.Time) (time.Time, bool) {
	nowLocal := now.In(r.Location)
	switch strings.ToLower(ref) {
	case "now":
		return nowLocal, true
	case "today":
		y, m, d := nowLocal.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, r.Location), true
	case "yesterday":
		y, m, d := nowLocal.AddDate(0, 0, -1).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, r.Location), true
	default:
		return time.Time{}, false
	}
}

// parseNaturalLanguage recognizes a deliberately small grammar:
//
//	"since <HH:MM>"             -> today at HH:MM (or yesterday, if that is in the future)
//	"yesterday <HH:MM>"         -> yesterday at HH:MM
//
// Anything outside this grammar is handed to go-datemath as a literal
// datemath expression (e.g. "now-1h/h", "now/d"); if that also fails, the
// reference is rejected.
func (r *Resolver) parseNaturalLanguage(ref string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(strings.TrimSpace(ref))

	if rest, ok := cutPrefix(lower, "since "); ok {
		if t, ok := r.timeOfDayToday(rest, now); ok {
			return t, true
		}
	}

	if rest, ok := cutPrefix(lower, "yesterday "); ok {
		if hh, mm, ok := parseClock(rest); ok {
			nowLocal := now.In(r.Location)
			y, m, d := nowLocal.AddDate(0, 0, -1).Date()
			return time.Date(y, m, d, hh, mm, 0, 0, r.Location), true
		}
	}

	expr, err := datemath.Parse(ref, datemath.WithNow(now.In(r.Location)), datemath.WithLocation(r.Location))
	if err != nil {
		return time.Time{}, false
	}
	return expr.Time().In(r.Location), true
}

// timeOfDayToday resolves "HH:MM" to today at that time, or yesterday at
// that time if today's occurrence would be in the future relative to now.
func (r *Resolver) timeOfDayToday(clock string, now time.Time) (time.Time, bool) {
	hh, mm, ok := parseClock(clock)
	if !ok {
		return time.Time{}, false
	}
	nowLocal := now.In(r.Location)
	y, m, d := nowLocal.Date()
	candidate := time.Date(y, m, d, hh, mm, 0, 0, r.Location)
	if candidate.After(nowLocal) {
		candidate = candidate.AddDate(0, 0, -1)
	}
	return candidate, true
}

func parseClock(s string) (hh, mm int, ok bool) {
	s = strings.TrimSpace(s)
	var h, m int
	n, err := fmt.Sscanf(s, "%d:%d", &h, &m)
	if err != nil || n != 2 || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

func cutPrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return s[len(prefix):], true
	}
	return "", false
}

// Range is a resolved, absolute time range with start <= end.
type Range struct {
	Start time.Time
	End   time.Time
}

// ResolveRange resolves a pair of (possibly empty) time references into an
// absolute range, filling in defaults per spec: missing end = now, missing
// start = end - defaultWindow. Rejects ranges where end < start.
func (r *Resolver) ResolveRange(startRef, endRef string, now time.Time, defaultWindow, maxWindow time.Duration) (Range, error) {
	var start, end time.Time
	var err error

	if endRef == "" {
		end = now.In(r.Location)
	} else {
		end, err = r.Resolve(endRef, now)
		if err != nil {
			return Range{}, err
		}
	}

	if startRef == "" {
		start = end.Add(-defaultWindow)
	} else {
		start, err = r.Resolve(startRef, now)
		if err != nil {
			return Range{}, err
		}
	}

	if end.Before(start) {
		return Range{}, fmt.Errorf("invalid-time-reference: resolved end %s is before start %s", end, start)
	}

	if maxWindow > 0 && end.Sub(start) > maxWindow {
		return Range{}, fmt.Errorf("invalid-time-reference: range %s exceeds configured maximum %s", end.Sub(start), maxWindow)
	}

	return Range{Start: start, End: end}, nil
}

// Round rounds an instant down to the nearest multiple of granularity,
// measured from the zero time (as time.Time.Truncate does). Used by the fingerprint cache to make
// adjacent calls collide deliberately (spec.md §3, "Request fingerprint").
func Round(t time.Time, granularity time.Duration) time.Time {
	if granularity <= 0 {
		return t
	}
	return t.Truncate(granularity)
}
