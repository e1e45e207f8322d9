package scheduling

import "time"

// DefaultHorizonMonths bounds how far ahead a recurring series is expanded.
const DefaultHorizonMonths = 6

// Occurrences returns the start times of a series beginning at first. The
// horizon is inclusive: an occurrence exactly horizonMonths after first is kept.
// Monthly series pinned to the 29th-31st land on the last day of shorter months
// and return to the original day afterwards.
func Occurrences(first time.Time, repeat Repeat, horizonMonths int) []time.Time {
	if repeat == "" || repeat == RepeatNone {
		return []time.Time{first}
	}
	if horizonMonths <= 0 {
		horizonMonths = DefaultHorizonMonths
	}
	horizon := addMonthsClamped(first, horizonMonths)

	var out []time.Time
	for i := 0; ; i++ {
		var next time.Time
		switch repeat {
		case RepeatWeekly:
			next = first.AddDate(0, 0, 7*i)
		case RepeatBiweekly:
			next = first.AddDate(0, 0, 14*i)
		case RepeatMonthly:
			next = addMonthsClamped(first, i)
		default:
			return []time.Time{first}
		}
		if next.After(horizon) {
			break
		}
		out = append(out, next)
	}
	return out
}

// addMonthsClamped adds n calendar months keeping the wall clock, clamping the
// day to the target month's length. time.AddDate would normalise Jan 31 + 1
// month into March.
func addMonthsClamped(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := daysIn(firstOfTarget.Year(), firstOfTarget.Month(), t.Location())
	if d > last {
		d = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// ExpandSeries copies template once per occurrence, keeping the template's
// length. Recurring copies share seriesID. IDs come from newID.
func ExpandSeries(template *Appointment, horizonMonths int, seriesID string, newID func() string) []*Appointment {
	length := template.End.Sub(template.Start)
	starts := Occurrences(template.Start, template.Repeats, horizonMonths)
	out := make([]*Appointment, 0, len(starts))
	for _, start := range starts {
		appt := template.Clone()
		appt.ID = newID()
		appt.Start = start
		appt.End = start.Add(length)
		if template.Repeats != "" && template.Repeats != RepeatNone {
			appt.SeriesID = seriesID
		}
		out = append(out, appt)
	}
	return out
}
