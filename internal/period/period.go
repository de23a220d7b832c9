// Package period computes half-open budget periods [start, end) for a
// configurable interval granularity and formats their canonical labels.
//
// Conventions, applied uniformly across start/end/iterate/format/parse:
//   - A boundary date belongs to the period that starts on it.
//   - Weeks are ISO weeks and start on Monday.
//   - Custom intervals are anchored to 2000-01-01: a date is floored to the
//     nearest multiple of the custom day count from that epoch.
//
// All functions are pure; dates are normalized to UTC midnight.
package period

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strconv"
	"time"
)

type Interval string

const (
	Day     Interval = "day"
	Week    Interval = "week"
	Month   Interval = "month"
	Quarter Interval = "quarter"
	Year    Interval = "year"
	Custom  Interval = "custom"
)

var (
	ErrUnknownInterval    = errors.New("unknown interval")
	ErrCustomDaysRequired = errors.New("custom interval requires a positive day count")
	ErrInvalidPeriod      = errors.New("invalid period label")
)

// customEpoch anchors custom-N-day periods. Arbitrary but fixed forever:
// moving it would shift every historical custom period boundary.
var customEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Label shapes must match in full; Sscanf-style prefix matching would let
// trailing junk through.
var (
	weekLabelRe    = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)
	quarterLabelRe = regexp.MustCompile(`^(\d{4})-Q([1-4])$`)
)

// Range is one period: Start inclusive, End exclusive.
type Range struct {
	Start time.Time
	End   time.Time
}

// ParseInterval converts a configuration string into an Interval.
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case Day, Week, Month, Quarter, Year, Custom:
		return Interval(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownInterval, s)
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func validate(interval Interval, customDays int) error {
	switch interval {
	case Day, Week, Month, Quarter, Year:
		return nil
	case Custom:
		if customDays < 1 {
			return ErrCustomDaysRequired
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownInterval, string(interval))
}

// Start returns the start of the period containing date.
func Start(date time.Time, interval Interval, customDays int) (time.Time, error) {
	if err := validate(interval, customDays); err != nil {
		return time.Time{}, err
	}
	d := truncateToDay(date)
	switch interval {
	case Day:
		return d, nil
	case Week:
		// Back to Monday.
		offset := (int(d.Weekday()) + 6) % 7
		return d.AddDate(0, 0, -offset), nil
	case Month:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	case Quarter:
		qm := time.Month((int(d.Month())-1)/3*3 + 1)
		return time.Date(d.Year(), qm, 1, 0, 0, 0, 0, time.UTC), nil
	case Year:
		return time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), nil
	default: // Custom
		days := floorDiv(daysBetween(customEpoch, d), customDays)
		return customEpoch.AddDate(0, 0, days*customDays), nil
	}
}

// End returns the exclusive end of the period beginning at start: the next
// interval boundary. Month-based intervals add whole calendar months; a
// start day that does not exist in the target month rolls over to the first
// of the following month (Jan 31 + one month ends Mar 1).
func End(start time.Time, interval Interval, customDays int) (time.Time, error) {
	if err := validate(interval, customDays); err != nil {
		return time.Time{}, err
	}
	s := truncateToDay(start)
	switch interval {
	case Day:
		return s.AddDate(0, 0, 1), nil
	case Week:
		return s.AddDate(0, 0, 7), nil
	case Month:
		return addMonths(s, 1), nil
	case Quarter:
		return addMonths(s, 3), nil
	case Year:
		// Go normalizes Feb 29 + 1 year to Mar 1, which is the next boundary.
		return s.AddDate(1, 0, 0), nil
	default: // Custom
		return s.AddDate(0, 0, customDays), nil
	}
}

// At returns the period containing date.
func At(date time.Time, interval Interval, customDays int) (Range, error) {
	start, err := Start(date, interval, customDays)
	if err != nil {
		return Range{}, err
	}
	end, err := End(start, interval, customDays)
	if err != nil {
		return Range{}, err
	}
	return Range{Start: start, End: end}, nil
}

// Current returns the period containing the present moment.
func Current(interval Interval, customDays int) (Range, error) {
	return At(time.Now().UTC(), interval, customDays)
}

// Format renders the canonical label for a period start. The label is a
// stable key: identical inputs always yield the identical label.
func Format(start time.Time, interval Interval) string {
	s := truncateToDay(start)
	switch interval {
	case Month:
		return s.Format("2006-01")
	case Week:
		y, w := s.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case Quarter:
		return fmt.Sprintf("%d-Q%d", s.Year(), (int(s.Month())-1)/3+1)
	case Year:
		return s.Format("2006")
	default: // Day, Custom
		return s.Format("2006-01-02")
	}
}

// Parse is the inverse of Format, returning the period start encoded in the
// label. Malformed labels fail with ErrInvalidPeriod.
func Parse(label string, interval Interval) (time.Time, error) {
	switch interval {
	case Month:
		t, err := time.ParseInLocation("2006-01", label, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
		}
		return t, nil
	case Week:
		m := weekLabelRe.FindStringSubmatch(label)
		if m == nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
		}
		y, _ := strconv.Atoi(m[1])
		w, _ := strconv.Atoi(m[2])
		if w < 1 || w > 53 {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
		}
		start := isoWeekStart(y, w)
		if gotY, gotW := start.ISOWeek(); gotY != y || gotW != w {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
		}
		return start, nil
	case Quarter:
		m := quarterLabelRe.FindStringSubmatch(label)
		if m == nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
		}
		y, _ := strconv.Atoi(m[1])
		q, _ := strconv.Atoi(m[2])
		return time.Date(y, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC), nil
	case Year:
		t, err := time.ParseInLocation("2006", label, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
		}
		return t, nil
	case Day, Custom:
		t, err := time.ParseInLocation("2006-01-02", label, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownInterval, string(interval))
}

// Iterate yields consecutive periods covering [firstStart, lastEnd) in order,
// with no gaps or overlaps. firstStart must be a period start. The sequence
// is a pure function of its inputs and can be ranged over any number of
// times.
func Iterate(firstStart, lastEnd time.Time, interval Interval, customDays int) (iter.Seq[Range], error) {
	if err := validate(interval, customDays); err != nil {
		return nil, err
	}
	first := truncateToDay(firstStart)
	last := truncateToDay(lastEnd)
	return func(yield func(Range) bool) {
		for start := first; start.Before(last); {
			end, err := End(start, interval, customDays)
			if err != nil {
				return // unreachable: inputs were validated above
			}
			if !yield(Range{Start: start, End: end}) {
				return
			}
			start = end
		}
	}, nil
}

// DaysRemaining reports how many whole days of the period beginning at start
// are left as of now. Zero on or after the period end, never negative.
func DaysRemaining(start time.Time, interval Interval, customDays int, now time.Time) (int, error) {
	end, err := End(start, interval, customDays)
	if err != nil {
		return 0, err
	}
	today := truncateToDay(now)
	if !today.Before(end) {
		return 0, nil
	}
	return daysBetween(today, end), nil
}

// addMonths adds whole calendar months, rolling an overflowing day-of-month
// over to the first of the following month instead of Go's normalization
// (which would land mid-month).
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		return first.AddDate(0, 1, 0)
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// isoWeekStart returns the Monday of ISO week w in ISO week-year y.
func isoWeekStart(y, w int) time.Time {
	// Jan 4 is always inside ISO week 1.
	jan4 := time.Date(y, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	week1 := jan4.AddDate(0, 0, -offset)
	return week1.AddDate(0, 0, (w-1)*7)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
