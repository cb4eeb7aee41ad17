package core

import (
	"strings"
	"time"
)

const (
	PeriodMonth PeriodKind = "month"
	PeriodWeek  PeriodKind = "week"

	MonthLayout = "2006-01"
	DayLayout   = "2006-01-02"
)

// PeriodKind distinguishes calendar months from anchored weeks.
type PeriodKind string

// Period is an aggregation window [Start, End) in UTC.
type Period struct {
	Kind  PeriodKind
	Key   string
	Start time.Time
	End   time.Time
}

// ParseMonth parses a strict YYYY-MM key.
func ParseMonth(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(MonthLayout) {
		return Period{}, InvalidArgument("month must be YYYY-MM, got %q", s)
	}
	t, err := time.Parse(MonthLayout, s)
	if err != nil {
		return Period{}, InvalidArgument("month must be YYYY-MM, got %q", s)
	}
	return MonthOf(t), nil
}

// MonthOf returns the calendar month containing t (in UTC).
func MonthOf(t time.Time) Period {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Kind:  PeriodMonth,
		Key:   start.Format(MonthLayout),
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}
}

// ParseWeek parses a strict YYYY-MM-DD week start that must fall on anchor.
func ParseWeek(s string, anchor time.Weekday) (Period, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(DayLayout) {
		return Period{}, InvalidArgument("week_start must be YYYY-MM-DD, got %q", s)
	}
	start, err := time.Parse(DayLayout, s)
	if err != nil {
		return Period{}, InvalidArgument("week_start must be YYYY-MM-DD, got %q", s)
	}
	if start.Weekday() != anchor {
		return Period{}, InvalidArgument("week_start must be a %s, %s is a %s", anchor, s, start.Weekday())
	}
	return Period{
		Kind:  PeriodWeek,
		Key:   s,
		Start: start,
		End:   start.AddDate(0, 0, 7),
	}, nil
}

// ParseWeekday accepts full or three-letter English weekday names.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, InvalidArgument("unknown weekday %q", s)
}

// Contains reports whether t falls inside [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Days is the number of calendar days in the period.
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours() / 24)
}

// Previous returns the period of the same kind immediately before p.
func (p Period) Previous() Period {
	if p.Kind == PeriodWeek {
		start := p.Start.AddDate(0, 0, -7)
		return Period{Kind: PeriodWeek, Key: start.Format(DayLayout), Start: start, End: p.Start}
	}
	return MonthOf(p.Start.AddDate(0, -1, 0))
}

// Months lists the calendar months overlapping p, in order.
func (p Period) Months() []Period {
	var out []Period
	for m := MonthOf(p.Start); m.Start.Before(p.End); m = MonthOf(m.End) {
		out = append(out, m)
	}
	return out
}

// Overlap returns the number of whole days p and o share.
func (p Period) Overlap(o Period) int {
	start, end := p.Start, p.End
	if o.Start.After(start) {
		start = o.Start
	}
	if o.End.Before(end) {
		end = o.End
	}
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start).Hours() / 24)
}
