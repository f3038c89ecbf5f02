package schedule

import "time"

// =============================================================================
// DATE - Day-granularity calendar date (due dates have no time component)
// =============================================================================

// Date is a calendar date normalized to midnight UTC.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return DateOf(time.Now().UTC())
}

// Comparison
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }
func (d Date) IsZero() bool           { return d.Time.IsZero() }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }

func (d Date) String() string { return d.Time.Format("2006-01-02") }

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// =============================================================================
// DUE-DATE ARITHMETIC
// =============================================================================

// daysInMonth returns the number of days in the given month.
// Day 0 of the next month is the last day of this one.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// dueDate computes the due date monthsAhead months after ref, with the
// day-of-month clamped to the last day of the target month when the
// configured due day exceeds it (e.g. due day 31 in February).
//
// Month stepping is done on year/month indices, not time.AddDate, so a
// reference date late in a long month never spills into the following
// month.
func dueDate(ref Date, monthsAhead, day int) Date {
	idx := int(ref.Month()) - 1 + monthsAhead
	year := ref.Year() + idx/12
	month := time.Month(idx%12 + 1)
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return NewDate(year, month, day)
}
