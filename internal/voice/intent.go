package voice

import (
	"regexp"
	"strings"
)

// Kind is the broad class of an utterance.
type Kind string

const (
	KindCalendar Kind = "calendar"
	KindGeneral  Kind = "general"
	KindConfirm  Kind = "confirm"
	KindDecline  Kind = "decline"
)

// Action is the calendar operation a command asks for.
type Action string

const (
	ActionNone       Action = ""
	ActionCreate     Action = "create"
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
	ActionQuery      Action = "query"
)

// Classification is the outcome of Classify. VerbEnd is the byte offset in
// Normalized just past the verb that decided the action, or -1.
type Classification struct {
	Kind       Kind   `json:"kind"`
	Action     Action `json:"action,omitempty"`
	Normalized string `json:"-"`
	VerbEnd    int    `json:"-"`
}

var confirmPhrases = map[string]struct{}{
	"yes": {}, "yeah": {}, "yep": {}, "yup": {}, "sure": {}, "ok": {}, "okay": {},
	"confirm": {}, "confirmed": {}, "correct": {}, "do it": {}, "go ahead": {},
	"go for it": {}, "sounds good": {}, "that's right": {}, "that is right": {},
	"book it": {}, "perfect": {}, "affirmative": {}, "yes please": {}, "please do": {},
	"looks good": {}, "that works": {}, "save it": {},
}

var declinePhrases = map[string]struct{}{
	"no": {}, "nope": {}, "nah": {}, "cancel": {}, "cancel that": {}, "cancel it": {},
	"never mind": {}, "nevermind": {}, "forget it": {}, "forget that": {}, "don't": {},
	"do not": {}, "stop": {}, "no thanks": {}, "no thank you": {}, "scratch that": {},
	"discard": {}, "discard it": {}, "don't do it": {}, "not now": {},
}

var (
	politePrefixRE = regexp.MustCompile(`^(?:(?:hey|hi|ok|okay|so|um|uh|please|alright|all right),? )*(?:(?:can|could|would|will) you (?:please )?|i (?:want|need|would like|'d like) to |i'd like to |let's |lets |go ahead and |please )*`)
	fillerSuffixRE = regexp.MustCompile(`[\s,]*(?:please|thanks|thank you)?[.!?\s]*$`)

	rescheduleStrongRE = regexp.MustCompile(`\b(?:re ?schedul(?:e|ed|ing)|postpone|re ?book)\b`)
	cancelStrongRE     = regexp.MustCompile(`\bcancel(?:l?ed|l?ing)?\b`)
	createStrongRE     = regexp.MustCompile(`\b(?:schedul(?:e|ed|ing)|book(?:ed|ing)?)\b`)
	rescheduleWeakRE   = regexp.MustCompile(`\b(?:move|moving|change|push|shift|bump)\b`)
	cancelWeakRE       = regexp.MustCompile(`\b(?:call off|remove|delete|drop|clear)\b`)
	createWeakRE       = regexp.MustCompile(`\b(?:add|set up|setup|put|pencil in|pencil|make)\b`)

	queryLeadRE    = regexp.MustCompile(`^(?:what|what's|whats|when|when's|who|who's|which|how many|do i|am i|is there|are there|is|does|any|show|list|tell me|give me|read)\b`)
	calendarWordRE = regexp.MustCompile(`\b(?:appointments?|appts?|sessions?|meetings?|visits?|schedule|calendar|booked|free|busy|slots?|openings?|clients?|agenda)\b`)
	haveRE         = regexp.MustCompile(`\b(?:have|got|seeing|see|meet)\b`)
	possessiveRE   = regexp.MustCompile(`\b([a-z]+)'s\b|\b([a-z]+s)'(?:\s|$)`)
)

var nonNamePossessives = map[string]struct{}{
	"it": {}, "that": {}, "what": {}, "let": {}, "there": {}, "who": {}, "where": {},
	"when": {}, "how": {}, "here": {}, "today": {}, "tomorrow": {}, "tonight": {},
	"week": {}, "month": {}, "year": {}, "he": {}, "she": {}, "one": {}, "everyone": {},
	"nobody": {}, "somebody": {}, "someone": {}, "this": {}, "next": {},
}

// Classify decides whether text is a calendar command, a general question or a
// reply to a pending confirmation. Reschedule verbs are checked before create
// verbs so "reschedule" never reads as "schedule".
func Classify(text string) Classification {
	normalized := NormalizeNumbers(text)
	core := stripPoliteness(normalized)
	out := Classification{Kind: KindGeneral, Normalized: normalized, VerbEnd: -1}
	if core == "" {
		return out
	}

	if _, ok := confirmPhrases[core]; ok {
		out.Kind = KindConfirm
		return out
	}
	if _, ok := declinePhrases[core]; ok {
		out.Kind = KindDecline
		return out
	}
	if kind, ok := shortReply(core); ok {
		out.Kind = kind
		return out
	}

	offset := strings.Index(normalized, core)
	if offset < 0 {
		offset = 0
	}
	mark := func(action Action, loc []int) Classification {
		out.Kind = KindCalendar
		out.Action = action
		if loc != nil {
			out.VerbEnd = offset + loc[1]
		}
		return out
	}

	if queryLeadRE.MatchString(core) && isCalendarQuestion(core) {
		return mark(ActionQuery, nil)
	}
	if loc := rescheduleStrongRE.FindStringIndex(core); loc != nil {
		return mark(ActionReschedule, loc)
	}
	if loc := cancelStrongRE.FindStringIndex(core); loc != nil {
		return mark(ActionCancel, loc)
	}
	if loc := createStrongRE.FindStringIndex(core); loc != nil {
		return mark(ActionCreate, loc)
	}

	if hasCalendarContext(core) {
		if loc := rescheduleWeakRE.FindStringIndex(core); loc != nil {
			return mark(ActionReschedule, loc)
		}
		if loc := cancelWeakRE.FindStringIndex(core); loc != nil {
			return mark(ActionCancel, loc)
		}
		if loc := createWeakRE.FindStringIndex(core); loc != nil {
			return mark(ActionCreate, loc)
		}
	}
	return out
}

// shortReply catches "yes, go ahead" or "no, don't" style answers of a few words.
func shortReply(core string) (Kind, bool) {
	words := strings.Fields(strings.NewReplacer(",", " ", ".", " ", "!", " ").Replace(core))
	if len(words) == 0 || len(words) > 4 {
		return "", false
	}
	rest := strings.Join(words[1:], " ")
	switch words[0] {
	case "yes", "yeah", "yep", "yup", "sure", "ok", "okay":
		if rest == "" {
			return KindConfirm, true
		}
		if _, ok := confirmPhrases[rest]; ok {
			return KindConfirm, true
		}
	case "no", "nope", "nah":
		if rest == "" {
			return KindDecline, true
		}
		if _, ok := declinePhrases[rest]; ok {
			return KindDecline, true
		}
	}
	return "", false
}

func stripPoliteness(normalized string) string {
	core := politePrefixRE.ReplaceAllString(normalized, "")
	core = fillerSuffixRE.ReplaceAllString(core, "")
	return strings.TrimSpace(strings.Trim(core, ",.!? "))
}

// isCalendarQuestion accepts "what do I have tomorrow" and "when is John's next
// appointment" but not "what is cognitive behavioral therapy".
func isCalendarQuestion(core string) bool {
	if calendarWordRE.MatchString(core) {
		return true
	}
	hasDate := len(findDates(core)) > 0 || len(findTimes(core)) > 0
	if hasDate && haveRE.MatchString(core) {
		return true
	}
	return hasDate && strings.HasPrefix(core, "any")
}

// hasCalendarContext is the gate for weak verbs: an appointment word, a date or
// time, or a possessive name.
func hasCalendarContext(core string) bool {
	if calendarWordRE.MatchString(core) {
		return true
	}
	if len(findDates(core)) > 0 || len(findTimes(core)) > 0 {
		return true
	}
	return possessiveName(core) != ""
}

// possessiveName returns the first "<name>'s" token that is not a contraction.
func possessiveName(core string) string {
	for _, m := range possessiveRE.FindAllStringSubmatch(core, -1) {
		word := m[1]
		if word == "" {
			word = m[2]
		}
		if _, skip := nonNamePossessives[word]; skip {
			continue
		}
		return word
	}
	return ""
}
