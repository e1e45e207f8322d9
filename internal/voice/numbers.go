package voice

import (
	"regexp"
	"strconv"
	"strings"
)

var unitWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11,
	"twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var tensWords = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
}

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	"eleventh": 11, "twelfth": 12, "thirteenth": 13, "fourteenth": 14,
	"fifteenth": 15, "sixteenth": 16, "seventeenth": 17, "eighteenth": 18,
	"nineteenth": 19, "twentieth": 20, "thirtieth": 30,
}

var (
	spacedClockRE  = regexp.MustCompile(`\b(\d{1,2}) (\d{2})\s*(a\.?m\.?|p\.?m\.?)`)
	atSpacedRE     = regexp.MustCompile(`\b(at|around|by) (\d{1,2}) (\d{2})\b`)
	ohClockRE      = regexp.MustCompile(`\b(\d{1,2}) oh (\d)\b`)
	dottedMeridiem = regexp.MustCompile(`(^|[\s\d])([ap])\.m\.?`)
	wordHyphenRE   = regexp.MustCompile(`([a-z0-9])-([a-z])`)
	spacesRE       = regexp.MustCompile(`\s+`)
)

// normalizeText lowercases s, folds curly apostrophes and collapses whitespace.
func normalizeText(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("’", "'", "‘", "'", "“", " ", "”", " ", "\"", " ").Replace(s)
	return strings.TrimSpace(spacesRE.ReplaceAllString(s, " "))
}

// NormalizeNumbers rewrites spoken numbers as digits so the date, time and
// duration patterns only deal with one form: "three thirty p.m." becomes
// "3:30 pm" and "the twenty first" becomes "the 21st".
func NormalizeNumbers(text string) string {
	text = normalizeText(text)
	if text == "" {
		return ""
	}
	text = wordHyphenRE.ReplaceAllString(text, "$1 $2")
	words := strings.Fields(text)
	out := make([]string, 0, len(words))

	for i := 0; i < len(words); i++ {
		word, trail := splitTrailingPunct(words[i])
		if tens, ok := tensWords[word]; ok {
			if i+1 < len(words) {
				next, nextTrail := splitTrailingPunct(words[i+1])
				if unit, ok := unitWords[next]; ok && unit > 0 && unit < 10 && trail == "" {
					out = append(out, strconv.Itoa(tens+unit)+nextTrail)
					i++
					continue
				}
				if ord, ok := ordinalWords[next]; ok && ord < 10 && trail == "" {
					out = append(out, ordinalSuffix(tens+ord)+nextTrail)
					i++
					continue
				}
			}
			out = append(out, strconv.Itoa(tens)+trail)
			continue
		}
		if unit, ok := unitWords[word]; ok {
			out = append(out, strconv.Itoa(unit)+trail)
			continue
		}
		if ord, ok := ordinalWords[word]; ok && !ambiguousOrdinal(word, words, i) {
			out = append(out, ordinalSuffix(ord)+trail)
			continue
		}
		out = append(out, words[i])
	}

	text = strings.Join(out, " ")
	text = dottedMeridiem.ReplaceAllString(text, "${1}${2}m")
	text = ohClockRE.ReplaceAllString(text, "$1:0$2")
	text = spacedClockRE.ReplaceAllString(text, "$1:$2 $3")
	text = atSpacedRE.ReplaceAllString(text, "$1 $2:$3")
	return text
}

// "second" is only a number when it reads like a date ("the second", "march second").
func ambiguousOrdinal(word string, words []string, i int) bool {
	if word != "second" {
		return false
	}
	if i == 0 {
		return true
	}
	prev, _ := splitTrailingPunct(words[i-1])
	if prev == "the" || prev == "on" {
		return false
	}
	_, isMonth := monthNames[prev]
	return !isMonth
}

func ordinalSuffix(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return strconv.Itoa(n) + suffix
}

func splitTrailingPunct(word string) (string, string) {
	trimmed := strings.TrimRight(word, ",.?!;:")
	return trimmed, word[len(trimmed):]
}
