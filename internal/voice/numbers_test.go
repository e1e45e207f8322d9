package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNumbers(t *testing.T) {
	cases := map[string]string{
		"Book Jane at three thirty PM":   "book jane at 3:30 pm",
		"on the twenty first":            "on the 21st",
		"for twenty five minutes":        "for 25 minutes",
		"March second at noon":           "march 2nd at noon",
		"hold on one second":             "hold on 1 second",
		"at 3 30":                        "at 3:30",
		"four oh five pm":                "4:05 pm",
		"at 3p.m.":                       "at 3pm",
		"a follow-up on 2026-10-20":      "a follow up on 2026-10-20",
		"Jane’s   session":               "jane's session",
		"the thirtieth":                  "the 30th",
		"twenty, then":                   "20, then",
		"":                               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeNumbers(in), in)
	}
}

func TestOrdinalSuffix(t *testing.T) {
	assert.Equal(t, "1st", ordinalSuffix(1))
	assert.Equal(t, "2nd", ordinalSuffix(2))
	assert.Equal(t, "3rd", ordinalSuffix(3))
	assert.Equal(t, "11th", ordinalSuffix(11))
	assert.Equal(t, "12th", ordinalSuffix(12))
	assert.Equal(t, "22nd", ordinalSuffix(22))
	assert.Equal(t, "31st", ordinalSuffix(31))
}
