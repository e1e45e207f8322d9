package voice

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

const (
	monthAlt   = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`
	weekdayAlt = `monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues|tue|wed|thurs|thur|thu|fri|sat|sun`
)

var (
	isoDateRE      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDateRE    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	monthDayRE     = regexp.MustCompile(`\b(` + monthAlt + `)\.? (\d{1,2})(?:st|nd|rd|th)?(?:,? (\d{4}))?\b`)
	dayOfMonthRE   = regexp.MustCompile(`\b(?:the )?(\d{1,2})(?:st|nd|rd|th) of (` + monthAlt + `)(?:,? (\d{4}))?\b`)
	theOrdinalRE   = regexp.MustCompile(`\bthe (\d{1,2})(?:st|nd|rd|th)\b`)
	weekdayRE      = regexp.MustCompile(`\b(?:(this coming|this|next|coming) )?(` + weekdayAlt + `)s?\b`)
	relativeDayRE  = regexp.MustCompile(`\b(day after tomorrow|today|tonight|tomorrow|yesterday)\b`)
	inDaysRE       = regexp.MustCompile(`\bin (\d+|a) (day|days|week|weeks)\b`)
	weekSpanRE     = regexp.MustCompile(`\b(this week|next week|this weekend)\b`)
	dateExprOrder  = []*regexp.Regexp{isoDateRE, dayOfMonthRE, monthDayRE, slashDateRE, relativeDayRE, inDaysRE, weekSpanRE, weekdayRE, theOrdinalRE}
)

// DateRange is a half-open span of whole days in the practice timezone.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days is the number of calendar days the range covers.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24 + 0.5)
}

type resolvedDate struct {
	DateRange
	bareWeekday bool
}

type dateMatch struct {
	start, end int
	text       string
}

// ResolveDate turns a relative or absolute date expression into the start of
// that day in now's location.
func ResolveDate(expr string, now time.Time) (time.Time, bool) {
	r, ok := resolveDate(expr, now)
	if !ok {
		return time.Time{}, false
	}
	return r.Start, true
}

// ResolveRange is ResolveDate for expressions that can name more than one day,
// such as "next week".
func ResolveRange(expr string, now time.Time) (DateRange, bool) {
	r, ok := resolveDate(expr, now)
	return r.DateRange, ok
}

func resolveDate(expr string, now time.Time) (resolvedDate, bool) {
	expr = strings.TrimSpace(NormalizeNumbers(expr))
	expr = strings.TrimPrefix(expr, "on ")
	today := startOfDay(now)
	day := func(t time.Time) (resolvedDate, bool) {
		return resolvedDate{DateRange: DateRange{Start: t, End: t.AddDate(0, 0, 1)}}, true
	}

	if m := fullMatch(isoDateRE, expr); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if t, ok := makeDate(y, time.Month(mo), d, now.Location()); ok {
			return day(t)
		}
		return resolvedDate{}, false
	}
	if m := fullMatch(dayOfMonthRE, expr); m != nil {
		d, _ := strconv.Atoi(m[1])
		if t, ok := resolveMonthDay(monthNames[m[2]], d, m[3], today); ok {
			return day(t)
		}
		return resolvedDate{}, false
	}
	if m := fullMatch(monthDayRE, expr); m != nil {
		d, _ := strconv.Atoi(m[2])
		if t, ok := resolveMonthDay(monthNames[m[1]], d, m[3], today); ok {
			return day(t)
		}
		return resolvedDate{}, false
	}
	if m := fullMatch(slashDateRE, expr); m != nil {
		mo, _ := strconv.Atoi(m[1])
		d, _ := strconv.Atoi(m[2])
		if mo < 1 || mo > 12 {
			return resolvedDate{}, false
		}
		if t, ok := resolveMonthDay(time.Month(mo), d, m[3], today); ok {
			return day(t)
		}
		return resolvedDate{}, false
	}
	if m := fullMatch(relativeDayRE, expr); m != nil {
		switch m[1] {
		case "today", "tonight":
			return day(today)
		case "tomorrow":
			return day(today.AddDate(0, 0, 1))
		case "day after tomorrow":
			return day(today.AddDate(0, 0, 2))
		case "yesterday":
			return day(today.AddDate(0, 0, -1))
		}
	}
	if m := fullMatch(inDaysRE, expr); m != nil {
		n := 1
		if m[1] != "a" {
			n, _ = strconv.Atoi(m[1])
		}
		if strings.HasPrefix(m[2], "week") {
			n *= 7
		}
		return day(today.AddDate(0, 0, n))
	}
	if m := fullMatch(weekSpanRE, expr); m != nil {
		monday := startOfWeek(today)
		switch m[1] {
		case "this week":
			return resolvedDate{DateRange: DateRange{Start: today, End: monday.AddDate(0, 0, 7)}}, true
		case "next week":
			next := monday.AddDate(0, 0, 7)
			return resolvedDate{DateRange: DateRange{Start: next, End: next.AddDate(0, 0, 7)}}, true
		case "this weekend":
			sat := monday.AddDate(0, 0, 5)
			if sat.Before(today) {
				sat = today
			}
			return resolvedDate{DateRange: DateRange{Start: sat, End: monday.AddDate(0, 0, 7)}}, true
		}
	}
	if m := fullMatch(weekdayRE, expr); m != nil {
		wd := weekdayNames[m[2]]
		switch m[1] {
		case "next":
			return day(nextWeekday(today, wd))
		case "":
			r, ok := day(upcomingWeekday(today, wd))
			r.bareWeekday = true
			return r, ok
		default:
			return day(upcomingWeekday(today, wd))
		}
	}
	if m := fullMatch(theOrdinalRE, expr); m != nil {
		d, _ := strconv.Atoi(m[1])
		for i := 0; i < 12; i++ {
			month := today.AddDate(0, i, 1-today.Day())
			t, ok := makeDate(month.Year(), month.Month(), d, now.Location())
			if ok && !t.Before(today) {
				return day(t)
			}
		}
	}
	return resolvedDate{}, false
}

// findDates returns the date expressions in text in reading order. Earlier
// patterns in dateExprOrder win when two expressions overlap.
func findDates(text string) []dateMatch {
	var found []dateMatch
	for _, re := range dateExprOrder {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			m := dateMatch{start: loc[0], end: loc[1], text: text[loc[0]:loc[1]]}
			if re == weekdayRE && isAmbiguousWeekday(m.text) {
				continue
			}
			if overlapsAny(found, m) {
				continue
			}
			found = append(found, m)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })
	return found
}

// Short weekday forms that are also ordinary words are ignored in free text.
func isAmbiguousWeekday(match string) bool {
	fields := strings.Fields(match)
	switch strings.TrimSuffix(fields[len(fields)-1], "s") {
	case "sat", "sun", "wed", "mon":
		return true
	}
	return false
}

func overlapsAny(found []dateMatch, m dateMatch) bool {
	for _, f := range found {
		if m.start < f.end && f.start < m.end {
			return true
		}
	}
	return false
}

func fullMatch(re *regexp.Regexp, expr string) []string {
	m := re.FindStringSubmatchIndex(expr)
	if m == nil || m[0] != 0 || m[1] != len(expr) {
		return nil
	}
	out := make([]string, len(m)/2)
	for i := range out {
		if m[2*i] >= 0 {
			out[i] = expr[m[2*i]:m[2*i+1]]
		}
	}
	return out
}

func resolveMonthDay(month time.Month, d int, yearText string, today time.Time) (time.Time, bool) {
	loc := today.Location()
	if yearText != "" {
		y, _ := strconv.Atoi(yearText)
		if y < 100 {
			y += 2000
		}
		return makeDate(y, month, d, loc)
	}
	t, ok := makeDate(today.Year(), month, d, loc)
	if !ok {
		// Feb 29 outside a leap year.
		return makeDate(today.Year()+1, month, d, loc)
	}
	if t.Before(today) {
		return makeDate(today.Year()+1, month, d, loc)
	}
	return t, true
}

func makeDate(y int, month time.Month, d int, loc *time.Location) (time.Time, bool) {
	if d < 1 || d > 31 || month < time.January || month > time.December {
		return time.Time{}, false
	}
	t := time.Date(y, month, d, 0, 0, 0, 0, loc)
	if t.Month() != month || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the Monday on or before day.
func startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// upcomingWeekday is the nearest wd on or after today.
func upcomingWeekday(today time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(today.Weekday()) + 7) % 7
	return today.AddDate(0, 0, delta)
}

// nextWeekday is the nearest wd after today, pushed out a week when that
// still falls inside the current Monday-start week.
func nextWeekday(today time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(today.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	t := today.AddDate(0, 0, delta)
	if startOfWeek(t).Equal(startOfWeek(today)) {
		t = t.AddDate(0, 0, 7)
	}
	return t
}

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// On places the time on day's date in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

func (t TimeOfDay) String() string {
	return time.Date(2000, 1, 1, t.Hour, t.Minute, 0, 0, time.UTC).Format("3:04 PM")
}

var (
	noonRE       = regexp.MustCompile(`\b(noon|midday|midnight)\b`)
	pastRE       = regexp.MustCompile(`\b(half|quarter) past (\d{1,2})\b`)
	quarterToRE  = regexp.MustCompile(`\bquarter (?:to|till|til|of) (\d{1,2})\b`)
	clockRE      = regexp.MustCompile(`\b(\d{1,2}):(\d{2})(?:\s*(am|pm)\b)?`)
	meridiemRE   = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm|o'?clock)\b`)
	bareHourRE   = regexp.MustCompile(`\b(?:at|around|by|from) (\d{1,2})\b`)
	unitAfterRE  = regexp.MustCompile(`^\s*(?:minutes?|mins?|hours?|hrs?|days?|weeks?|months?)\b`)
	periodRE     = regexp.MustCompile(`\b(?:in the )?(morning|afternoon|evening|tonight)\b`)
	timeExprList = []*regexp.Regexp{noonRE, pastRE, quarterToRE, clockRE, meridiemRE, bareHourRE}
)

var periodDefaults = map[string]TimeOfDay{
	"morning":   {Hour: 9},
	"afternoon": {Hour: 14},
	"evening":   {Hour: 18},
	"tonight":   {Hour: 19},
}

// ParseTimeOfDay reads a spoken time. A bare hour from 1 to 7 is taken as PM
// and 8 to 11 as AM; a period word ("in the morning") overrides that.
func ParseTimeOfDay(expr string) (TimeOfDay, bool) {
	text := NormalizeNumbers(expr)
	m, ok := findTime(text)
	if !ok {
		return TimeOfDay{}, false
	}
	return m.value, true
}

type timeMatch struct {
	start, end int
	value      TimeOfDay
	explicit   bool
}

// findTime returns the first time expression in text. A trailing period word
// fixes AM/PM; a period word on its own supplies a default hour.
func findTime(text string) (timeMatch, bool) {
	all := findTimes(text)
	if len(all) > 0 {
		return all[0], true
	}
	if loc := periodRE.FindStringSubmatchIndex(text); loc != nil {
		word := text[loc[2]:loc[3]]
		return timeMatch{start: loc[0], end: loc[1], value: periodDefaults[word]}, true
	}
	return timeMatch{}, false
}

func findTimes(text string) []timeMatch {
	var out []timeMatch
	taken := func(start, end int) bool {
		for _, m := range out {
			if start < m.end && m.start < end {
				return true
			}
		}
		return false
	}
	for _, re := range timeExprList {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			if taken(loc[0], loc[1]) {
				continue
			}
			if re == bareHourRE && unitAfterRE.MatchString(text[loc[1]:]) {
				continue
			}
			groups := submatches(text, loc)
			m, ok := buildTime(re, groups)
			if !ok {
				continue
			}
			m.start, m.end = loc[0], loc[1]
			if !m.explicit {
				m.value = applyPeriod(m.value, text[:loc[0]], text[loc[1]:])
			}
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

func submatches(text string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		if loc[2*i] >= 0 {
			out[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return out
}

func buildTime(re *regexp.Regexp, g []string) (timeMatch, bool) {
	switch re {
	case noonRE:
		if g[1] == "midnight" {
			return timeMatch{value: TimeOfDay{}, explicit: true}, true
		}
		return timeMatch{value: TimeOfDay{Hour: 12}, explicit: true}, true
	case pastRE:
		h, _ := strconv.Atoi(g[2])
		if h < 1 || h > 12 {
			return timeMatch{}, false
		}
		minute := 30
		if g[1] == "quarter" {
			minute = 15
		}
		return timeMatch{value: bareHour(h, minute)}, true
	case quarterToRE:
		h, _ := strconv.Atoi(g[1])
		if h < 1 || h > 12 {
			return timeMatch{}, false
		}
		h--
		if h == 0 {
			h = 12
		}
		return timeMatch{value: bareHour(h, 45)}, true
	case clockRE:
		h, _ := strconv.Atoi(g[1])
		minute, _ := strconv.Atoi(g[2])
		if h > 23 || minute > 59 {
			return timeMatch{}, false
		}
		if g[3] != "" {
			return withMeridiem(h, minute, g[3])
		}
		if h == 0 || h > 12 {
			return timeMatch{value: TimeOfDay{Hour: h, Minute: minute}, explicit: true}, true
		}
		return timeMatch{value: bareHour(h, minute)}, true
	case meridiemRE:
		h, _ := strconv.Atoi(g[1])
		if strings.HasPrefix(g[2], "o") {
			if h < 1 || h > 12 {
				return timeMatch{}, false
			}
			return timeMatch{value: bareHour(h, 0)}, true
		}
		return withMeridiem(h, 0, g[2])
	case bareHourRE:
		h, _ := strconv.Atoi(g[1])
		if h < 1 || h > 12 {
			return timeMatch{}, false
		}
		return timeMatch{value: bareHour(h, 0)}, true
	}
	return timeMatch{}, false
}

func withMeridiem(h, minute int, meridiem string) (timeMatch, bool) {
	if h < 1 || h > 12 {
		return timeMatch{}, false
	}
	if strings.HasPrefix(meridiem, "p") && h != 12 {
		h += 12
	}
	if strings.HasPrefix(meridiem, "a") && h == 12 {
		h = 0
	}
	return timeMatch{value: TimeOfDay{Hour: h, Minute: minute}, explicit: true}, true
}

func bareHour(h, minute int) TimeOfDay {
	switch {
	case h >= 1 && h <= 7:
		return TimeOfDay{Hour: h + 12, Minute: minute}
	case h == 12:
		return TimeOfDay{Hour: 12, Minute: minute}
	default:
		return TimeOfDay{Hour: h, Minute: minute}
	}
}

// applyPeriod lets "9 in the evening" or "tomorrow morning at 7" override the
// bare hour default.
func applyPeriod(t TimeOfDay, before, after string) TimeOfDay {
	period := ""
	after = strings.TrimSpace(after)
	if loc := periodRE.FindStringSubmatchIndex(after); loc != nil && loc[0] <= 3 {
		period = after[loc[2]:loc[3]]
	} else {
		if len(before) > 20 {
			before = before[len(before)-20:]
		}
		if all := periodRE.FindAllStringSubmatch(before, -1); len(all) > 0 {
			period = all[len(all)-1][1]
		}
	}
	if period == "" {
		return t
	}
	hour := t.Hour % 12
	if t.Hour == 12 {
		hour = 12
	}
	switch period {
	case "morning":
		if hour == 12 {
			hour = 0
		}
		return TimeOfDay{Hour: hour, Minute: t.Minute}
	default:
		if hour < 12 {
			hour += 12
		}
		return TimeOfDay{Hour: hour, Minute: t.Minute}
	}
}
