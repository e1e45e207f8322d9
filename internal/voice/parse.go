package voice

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/practice-scheduler/internal/scheduling"
)

// Slot is a date and/or time named in a command. Either part may be missing.
type Slot struct {
	Date     time.Time `json:"date,omitempty"`
	HasDate  bool      `json:"hasDate"`
	Time     TimeOfDay `json:"time"`
	HasTime  bool      `json:"hasTime"`
	DateText string    `json:"dateText,omitempty"`
	TimeText string    `json:"timeText,omitempty"`

	bareWeekday bool
	span        DateRange
}

// Empty reports whether the slot names neither a date nor a time.
func (s Slot) Empty() bool {
	return !s.HasDate && !s.HasTime
}

// Range is the span of days the date names, such as a whole week for "next week".
func (s Slot) Range() (DateRange, bool) {
	if !s.HasDate {
		return DateRange{}, false
	}
	return s.span, true
}

// Start combines the date and time. A bare weekday ("Friday at 3") that lands
// on today with the time already gone rolls to the following week. A time with
// no date is read as today.
func (s Slot) Start(now time.Time) (time.Time, bool) {
	if !s.HasTime {
		return time.Time{}, false
	}
	day := startOfDay(now)
	if s.HasDate {
		day = s.Date
	}
	start := s.Time.On(day)
	if s.bareWeekday && start.Before(now) && day.Equal(startOfDay(now)) {
		start = s.Time.On(day.AddDate(0, 0, 7))
	}
	return start, true
}

// Command is the structured reading of a transcript.
type Command struct {
	Transcript      string            `json:"transcript"`
	Kind            Kind              `json:"kind"`
	Action          Action            `json:"action,omitempty"`
	ClientName      string            `json:"clientName,omitempty"`
	When            Slot              `json:"when"`
	NewWhen         Slot              `json:"newWhen"`
	DurationMinutes int               `json:"duration,omitempty"`
	Repeats         scheduling.Repeat `json:"repeats,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	// Shift moves a rescheduled appointment relative to its current start.
	Shift time.Duration `json:"shift,omitempty"`
	// NextOnly asks a query for the single next appointment.
	NextOnly bool `json:"nextOnly,omitempty"`
}

var (
	notesRE = regexp.MustCompile(`\b(?:about|regarding|re|note|notes|to discuss)\b:?\s+(.+)$`)

	durationPatterns = []struct {
		re      *regexp.Regexp
		minutes func(g []string) int
	}{
		{regexp.MustCompile(`\b(?:for )?(?:an?|1) hour and a half\b`), func([]string) int { return 90 }},
		{regexp.MustCompile(`\b(?:for )?(\d+) and a half hours?\b`), func(g []string) int { return atoi(g[1])*60 + 30 }},
		{regexp.MustCompile(`\b(?:for )?(?:half an hour|a half hour|30 mins?)\b`), func([]string) int { return 30 }},
		{regexp.MustCompile(`\b(?:for )?(\d+(?:\.\d+)?) (?:hours?|hrs?)\b`), func(g []string) int { return hoursToMinutes(g[1]) }},
		{regexp.MustCompile(`\bfor an? hour\b`), func([]string) int { return 60 }},
		{regexp.MustCompile(`\ban? hour long\b`), func([]string) int { return 60 }},
		{regexp.MustCompile(`\b(?:for )?(\d+) ?(?:minutes?|mins?)\b`), func(g []string) int { return atoi(g[1]) }},
	}

	biweeklyRE = regexp.MustCompile(`\b(?:bi ?weekly|fortnightly|every (?:other|2) (?:weeks?|` + weekdayAlt + `)s?|every fortnight)\b`)
	weeklyRE   = regexp.MustCompile(`\b(?:weekly|every week|each week|once a week|every (?:` + weekdayAlt + `)|on (?:` + weekdayAlt + `)s)\b`)
	monthlyRE  = regexp.MustCompile(`\b(?:monthly|every month|each month|once a month)\b`)

	shiftRE     = regexp.MustCompile(`\b(back|later|forward|earlier|up)\s+(?:by\s+)?(an?|\d+)\s*(hours?|minutes?|mins?)\b`)
	splitToRE   = regexp.MustCompile(`\b(?:to|until|till|for)\b`)
	fromRE      = regexp.MustCompile(`\bfrom\b`)
	nextApptRE  = regexp.MustCompile(`\bnext (?:appointment|session|appt|visit)\b`)
	clockToRE   = regexp.MustCompile(`\bquarter $`)
	nameAfterRE = regexp.MustCompile(`\b(?:with|for) `)
)

var honorifics = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "miss": {}, "mx": {}, "dr": {}, "doctor": {}, "prof": {}, "professor": {},
}

// nameLeadFillers may appear between the verb and the client name.
var nameLeadFillers = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "my": {}, "our": {}, "with": {}, "for": {}, "in": {},
	"up": {}, "new": {}, "me": {}, "please": {}, "appointment": {}, "appointments": {},
	"session": {}, "sessions": {}, "appt": {}, "meeting": {}, "visit": {}, "minute": {},
	"minutes": {}, "hour": {}, "long": {}, "therapy": {}, "off": {}, "client": {},
	"recurring": {}, "weekly": {}, "biweekly": {}, "monthly": {}, "follow": {},
	"followup": {}, "intake": {}, "consult": {}, "consultation": {}, "is": {}, "was": {},
	"had": {}, "has": {}, "next": {}, "do": {}, "i": {}, "have": {},
}

// nameStopWords end a client-name run.
var nameStopWords = map[string]struct{}{
	"on": {}, "at": {}, "for": {}, "with": {}, "to": {}, "from": {}, "in": {}, "by": {},
	"about": {}, "regarding": {}, "re": {}, "and": {}, "the": {}, "a": {}, "an": {},
	"this": {}, "next": {}, "coming": {}, "every": {}, "each": {}, "today": {}, "tonight": {},
	"tomorrow": {}, "yesterday": {}, "day": {}, "after": {}, "noon": {}, "midnight": {},
	"morning": {}, "afternoon": {}, "evening": {}, "am": {}, "pm": {}, "oclock": {},
	"o'clock": {}, "half": {}, "quarter": {}, "past": {}, "appointment": {}, "appointments": {},
	"session": {}, "sessions": {}, "appt": {}, "meeting": {}, "visit": {}, "weekly": {},
	"biweekly": {}, "monthly": {}, "week": {}, "weeks": {}, "month": {}, "instead": {},
	"please": {}, "again": {}, "back": {}, "up": {}, "later": {}, "earlier": {}, "it": {},
	"that": {}, "is": {}, "was": {}, "my": {}, "her": {}, "his": {}, "their": {}, "of": {},
	"as": {}, "until": {}, "till": {}, "over": {}, "off": {}, "out": {}, "minute": {},
	"minutes": {}, "hour": {}, "hours": {}, "forward": {}, "then": {}, "so": {},
	"appointment's": {}, "session's": {}, "new": {}, "into": {}, "onto": {},
}

// commandWords are verbs, pronouns and question words that never start or
// extend a client name.
var commandWords = map[string]struct{}{
	"cancel": {}, "cancelled": {}, "canceled": {}, "schedule": {}, "book": {}, "reschedule": {},
	"postpone": {}, "rebook": {}, "move": {}, "push": {}, "change": {}, "shift": {}, "bump": {},
	"add": {}, "set": {}, "put": {}, "pencil": {}, "make": {}, "remove": {}, "delete": {},
	"drop": {}, "clear": {}, "call": {}, "when": {}, "what": {}, "whats": {}, "who": {},
	"which": {}, "where": {}, "how": {}, "show": {}, "list": {}, "tell": {}, "give": {},
	"read": {}, "do": {}, "does": {}, "did": {}, "i": {}, "me": {}, "you": {}, "we": {},
	"have": {}, "has": {}, "got": {}, "see": {}, "seeing": {}, "meet": {}, "are": {},
	"can": {}, "could": {}, "would": {}, "will": {}, "need": {}, "want": {}, "like": {},
	"hey": {}, "ok": {}, "okay": {}, "yes": {}, "no": {}, "just": {}, "also": {}, "all": {},
	"any": {}, "anything": {}, "i'd": {}, "i'm": {}, "get": {}, "find": {}, "check": {},
}

// ParseCommand extracts the action parameters from a transcript. now anchors
// relative dates and should be in the practice timezone.
func ParseCommand(text string, now time.Time) Command {
	class := Classify(text)
	cmd := Command{Transcript: strings.TrimSpace(text), Kind: class.Kind, Action: class.Action}
	if class.Kind != KindCalendar {
		return cmd
	}
	body := class.Normalized

	if loc := notesRE.FindStringSubmatchIndex(body); loc != nil && loc[0] >= class.VerbEnd {
		cmd.Notes = strings.TrimSpace(strings.TrimRight(body[loc[2]:loc[3]], ".!? "))
		body = strings.TrimSpace(body[:loc[0]])
	}

	cmd.ClientName = extractName(body, class.VerbEnd)
	cmd.Repeats = extractRepeat(body)

	// "back by 30 minutes" is a shift, not a length.
	durationText := body
	if cmd.Action == ActionReschedule {
		if loc := shiftRE.FindStringIndex(body); loc != nil {
			cmd.Shift = extractShift(body)
			durationText = body[:loc[0]] + body[loc[1]:]
		}
	}
	cmd.DurationMinutes = extractDuration(durationText)

	switch cmd.Action {
	case ActionReschedule:
		original, target := splitReschedule(body, class.VerbEnd)
		cmd.When = extractSlot(original, now)
		cmd.NewWhen = extractSlot(target, now)
	case ActionQuery:
		cmd.When = extractSlot(body, now)
		cmd.NextOnly = nextApptRE.MatchString(body)
	default:
		cmd.When = extractSlot(body, now)
	}
	return cmd
}

// splitReschedule separates "from X to Y". Text after the first "to" that
// introduces a date or time is the new slot; "from ..." or anything before it
// identifies the original appointment. Without a "to", every date and time in
// the command describes the new slot.
func splitReschedule(body string, verbEnd int) (original, target string) {
	start := 0
	if verbEnd > 0 && verbEnd <= len(body) {
		start = verbEnd
	}
	for _, loc := range splitToRE.FindAllStringIndex(body[start:], -1) {
		at := start + loc[0]
		if clockToRE.MatchString(body[:at]) {
			continue
		}
		rest := strings.TrimSpace(body[start+loc[1]:])
		rest = strings.TrimPrefix(rest, "on ")
		rest = strings.TrimPrefix(rest, "at ")
		if introducesSlot(rest) {
			return body[:at], body[at:]
		}
	}
	if fromRE.MatchString(body[start:]) {
		return body, ""
	}
	return "", body
}

// introducesSlot reports whether text opens with a date or time expression.
func introducesSlot(text string) bool {
	for _, d := range findDates(text) {
		if d.start <= 5 {
			return true
		}
	}
	for _, t := range findTimes(text) {
		if t.start <= 5 {
			return true
		}
	}
	if m, ok := findTime(text); ok && m.start <= 8 {
		return true
	}
	_, isTime := leadingClock(text)
	return isTime
}

var leadingClockRE = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\b`)

// leadingClock accepts a bare "4" or "4:30" right after "to".
func leadingClock(text string) (TimeOfDay, bool) {
	m := leadingClockRE.FindStringSubmatch(text)
	if m == nil {
		return TimeOfDay{}, false
	}
	if unitAfterRE.MatchString(text[len(m[0]):]) {
		return TimeOfDay{}, false
	}
	h := atoi(m[1])
	if h < 1 || h > 12 {
		return TimeOfDay{}, false
	}
	minute := 0
	if m[2] != "" {
		minute = atoi(m[2])
	}
	return bareHour(h, minute), true
}

func extractSlot(text string, now time.Time) Slot {
	var slot Slot
	text = strings.TrimSpace(text)
	if text == "" {
		return slot
	}
	dates := findDates(text)
	for _, d := range dates {
		r, ok := resolveDate(d.text, now)
		if !ok {
			continue
		}
		slot.Date = r.Start
		slot.HasDate = true
		slot.DateText = d.text
		slot.bareWeekday = r.bareWeekday
		slot.span = r.DateRange
		break
	}
	for _, t := range findTimes(text) {
		if overlapsDate(dates, t.start, t.end) {
			continue
		}
		slot.Time = t.value
		slot.HasTime = true
		slot.TimeText = text[t.start:t.end]
		return slot
	}
	if clock, ok := leadingClock(strings.TrimPrefix(strings.TrimPrefix(text, "to "), "at ")); ok {
		slot.Time = clock
		slot.HasTime = true
		return slot
	}
	if m, ok := findTime(text); ok {
		slot.Time = m.value
		slot.HasTime = true
		slot.TimeText = text[m.start:m.end]
	}
	return slot
}

func overlapsDate(dates []dateMatch, start, end int) bool {
	for _, d := range dates {
		if start < d.end && d.start < end {
			return true
		}
	}
	return false
}

// extractName finds the client: a possessive name anywhere ("Jane's session"),
// otherwise the run of non-keyword words after the verb. Queries have no verb,
// so their name follows "with" or "for".
func extractName(body string, verbEnd int) string {
	words := strings.Fields(body)
	if possessive := possessiveName(body); possessive != "" {
		for i, w := range words {
			clean, _ := splitTrailingPunct(w)
			if strings.TrimSuffix(strings.TrimSuffix(clean, "'s"), "'") != possessive {
				continue
			}
			name := []string{possessive}
			for j := i - 1; j >= 0 && len(name) < 3; j-- {
				prev, trail := splitTrailingPunct(words[j])
				if trail != "" || !isNameWord(prev) {
					break
				}
				name = append([]string{prev}, name...)
			}
			return cleanName(name)
		}
	}

	var rest string
	switch {
	case verbEnd > 0 && verbEnd <= len(body):
		rest = body[verbEnd:]
	default:
		loc := nameAfterRE.FindStringIndex(body)
		if loc == nil {
			return ""
		}
		rest = body[loc[1]:]
	}
	tokens := strings.Fields(rest)
	i := 0
	for i < len(tokens) {
		tok, _ := splitTrailingPunct(tokens[i])
		if _, filler := nameLeadFillers[tok]; filler || startsWithDigit(tok) {
			i++
			continue
		}
		break
	}
	var name []string
	for ; i < len(tokens) && len(name) < 4; i++ {
		tok, trail := splitTrailingPunct(tokens[i])
		if _, title := honorifics[tok]; title && len(name) == 0 {
			continue
		}
		if !isNameWord(tok) {
			break
		}
		if _, month := monthNames[tok]; month && i+1 < len(tokens) && startsWithDigit(tokens[i+1]) {
			break
		}
		name = append(name, tok)
		if trail != "" {
			break
		}
	}
	return cleanName(name)
}

func isNameWord(tok string) bool {
	if tok == "" || isNumeric(tok) {
		return false
	}
	if _, stop := nameStopWords[tok]; stop {
		return false
	}
	if _, common := commandWords[tok]; common {
		return false
	}
	if _, ok := weekdayNames[strings.TrimSuffix(tok, "s")]; ok {
		return false
	}
	if _, ok := weekdayNames[tok]; ok {
		return false
	}
	for _, r := range tok {
		if (r < 'a' || r > 'z') && r != '\'' && r != '.' && r < 0x80 {
			return false
		}
	}
	return true
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

func cleanName(words []string) string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSuffix(strings.TrimSuffix(w, "'s"), "'")
		w = strings.Trim(w, ".")
		if _, ok := honorifics[w]; ok {
			continue
		}
		if w != "" {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

func extractDuration(body string) int {
	for _, p := range durationPatterns {
		if g := p.re.FindStringSubmatch(body); g != nil {
			if minutes := p.minutes(g); minutes > 0 && minutes <= 12*60 {
				return minutes
			}
		}
	}
	return 0
}

func extractRepeat(body string) scheduling.Repeat {
	switch {
	case biweeklyRE.MatchString(body):
		return scheduling.RepeatBiweekly
	case monthlyRE.MatchString(body):
		return scheduling.RepeatMonthly
	case weeklyRE.MatchString(body):
		return scheduling.RepeatWeekly
	}
	return scheduling.RepeatNone
}

func extractShift(body string) time.Duration {
	m := shiftRE.FindStringSubmatch(body)
	if m == nil {
		return 0
	}
	n := 1
	if m[2] != "a" && m[2] != "an" {
		n = atoi(m[2])
	}
	unit := time.Minute
	if strings.HasPrefix(m[3], "hour") {
		unit = time.Hour
	}
	d := time.Duration(n) * unit
	switch m[1] {
	case "earlier", "forward", "up":
		return -d
	}
	return d
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func hoursToMinutes(s string) int {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f*60 + 0.5)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != ':' {
			return false
		}
	}
	return true
}
