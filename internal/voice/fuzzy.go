package voice

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/wolfman30/practice-scheduler/internal/scheduling"
)

const (
	// DefaultMatchThreshold is the lowest score accepted as a match.
	DefaultMatchThreshold = 0.72
	// AmbiguityMargin is how close the runner-up must be to the best score for
	// the match to need clarification.
	AmbiguityMargin = 0.05

	tokenMatchWeight = 0.94
	phoneticScore    = 0.9
	tokenPhonetic    = 0.86
)

// Candidate is one client scored against a spoken name.
type Candidate struct {
	ClientID string  `json:"clientId"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// MatchResult lists candidates best first. Best is nil when nothing reaches the
// threshold.
type MatchResult struct {
	Query      string      `json:"query"`
	Best       *Candidate  `json:"best,omitempty"`
	Candidates []Candidate `json:"candidates"`
	Ambiguous  bool        `json:"ambiguous"`
}

type indexEntry struct {
	id        string
	name      string
	norm      string
	tokens    []string
	phonetic  string
	tokenKeys []string
}

// NameIndex matches spoken names against a client list.
type NameIndex struct {
	entries   []indexEntry
	threshold float64
}

// NewNameIndex indexes clients. A threshold of zero uses DefaultMatchThreshold.
func NewNameIndex(clients []*scheduling.Client, threshold float64) *NameIndex {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultMatchThreshold
	}
	ix := &NameIndex{threshold: threshold, entries: make([]indexEntry, 0, len(clients))}
	for _, c := range clients {
		if c == nil {
			continue
		}
		n := NormalizeName(c.Name)
		if n == "" {
			continue
		}
		tokens := strings.Fields(n)
		keys := make([]string, len(tokens))
		for i, tok := range tokens {
			keys[i] = PhoneticKey(tok)
		}
		ix.entries = append(ix.entries, indexEntry{
			id:        c.ID,
			name:      c.Name,
			norm:      n,
			tokens:    tokens,
			phonetic:  PhoneticKey(strings.ReplaceAll(n, " ", "")),
			tokenKeys: keys,
		})
	}
	return ix
}

// Len is the number of indexed clients.
func (ix *NameIndex) Len() int {
	return len(ix.entries)
}

// Match scores query against every client. Candidates scoring under half are
// dropped; Best is set only when the top score reaches the threshold.
func (ix *NameIndex) Match(query string) MatchResult {
	q := NormalizeName(query)
	res := MatchResult{Query: query}
	if q == "" {
		return res
	}
	qTokens := strings.Fields(q)
	qKey := PhoneticKey(strings.ReplaceAll(q, " ", ""))

	for _, e := range ix.entries {
		score := scoreEntry(q, qTokens, qKey, e)
		if score < 0.5 {
			continue
		}
		res.Candidates = append(res.Candidates, Candidate{ClientID: e.id, Name: e.name, Score: score})
	}
	sort.SliceStable(res.Candidates, func(i, j int) bool {
		if res.Candidates[i].Score != res.Candidates[j].Score {
			return res.Candidates[i].Score > res.Candidates[j].Score
		}
		return res.Candidates[i].Name < res.Candidates[j].Name
	})

	if len(res.Candidates) == 0 || res.Candidates[0].Score < ix.threshold {
		return res
	}
	best := res.Candidates[0]
	res.Best = &best
	if len(res.Candidates) > 1 && best.Score-res.Candidates[1].Score < AmbiguityMargin {
		res.Ambiguous = true
	}
	return res
}

func scoreEntry(q string, qTokens []string, qKey string, e indexEntry) float64 {
	if q == e.norm {
		return 1
	}
	best := Similarity(q, e.norm)

	// Every spoken token must find a partner in the client's name.
	var tokenSum float64
	for _, qt := range qTokens {
		var tokBest float64
		for i, et := range e.tokens {
			s := Similarity(qt, et)
			if len(qt) >= 3 && strings.HasPrefix(et, qt) {
				s = max(s, 0.75+0.25*float64(len(qt))/float64(len(et)))
			}
			if qt != et && PhoneticKey(qt) == e.tokenKeys[i] && len(e.tokenKeys[i]) > 1 {
				s = max(s, tokenPhonetic)
			}
			tokBest = max(tokBest, s)
		}
		tokenSum += tokBest
	}
	if len(qTokens) > 0 {
		best = max(best, tokenMatchWeight*tokenSum/float64(len(qTokens)))
	}

	if len(q) >= 3 && strings.HasPrefix(e.norm, q) {
		best = max(best, 0.75+0.25*float64(len(q))/float64(len(e.norm)))
	}
	if qKey != "" && qKey == e.phonetic {
		best = max(best, phoneticScore)
	}
	return best
}

// Similarity is the normalised Levenshtein similarity of a and b in [0, 1].
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	return levenshtein.Similarity(a, b, nil)
}

var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName folds accents, lowercases, strips punctuation and drops
// honorifics: "Dr. José O'Neil" becomes "jose oneil".
func NormalizeName(s string) string {
	folded, _, err := transform.String(foldAccents, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = strings.TrimSuffix(strings.TrimSpace(folded), "'s")

	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			b.WriteRune(' ')
		}
	}
	words := strings.Fields(b.String())
	out := words[:0]
	for _, w := range words {
		if _, ok := honorifics[w]; ok {
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

var phoneticDigraphs = strings.NewReplacer(
	"ph", "f",
	"ck", "k",
	"th", "t",
	"sch", "sk",
	"gh", "g",
	"kn", "n",
	"wr", "r",
	"x", "ks",
	"q", "k",
	"z", "s",
	"v", "f",
)

// PhoneticKey is a loose sound-alike key: common digraphs are folded, c reads
// as s before e/i/y and k otherwise, doubled letters collapse and vowels (with
// h, w and y) after the first letter are dropped. "Katherine" and "Catherine"
// share "ktrn"; "Jon" and "John" share "jn".
func PhoneticKey(s string) string {
	s = strings.ReplaceAll(NormalizeName(s), " ", "")
	if s == "" {
		return ""
	}
	s = phoneticDigraphs.Replace(s)

	src := []rune(s)
	mapped := make([]rune, 0, len(src))
	for i, r := range src {
		if r == 'c' {
			if i+1 < len(src) && strings.ContainsRune("eiy", src[i+1]) {
				r = 's'
			} else {
				r = 'k'
			}
		}
		mapped = append(mapped, r)
	}

	var b strings.Builder
	var prev rune
	for i, r := range mapped {
		if r == prev {
			continue
		}
		prev = r
		if i > 0 && strings.ContainsRune("aeiouhwy", r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
