package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/practice-scheduler/internal/scheduling"
)

func testClients() []*scheduling.Client {
	return []*scheduling.Client{
		{ID: "c1", Name: "Jane Doe"},
		{ID: "c2", Name: "John Smith"},
		{ID: "c3", Name: "Katherine O'Neil"},
		{ID: "c4", Name: "José Álvarez"},
		{ID: "c5", Name: "Maria Garcia"},
		{ID: "c6", Name: "Mario Garcia"},
	}
}

func TestNameIndexExactAndCaseInsensitive(t *testing.T) {
	ix := NewNameIndex(testClients(), 0)
	assert.Equal(t, 6, ix.Len())

	res := ix.Match("jane doe")
	require.NotNil(t, res.Best)
	assert.Equal(t, "c1", res.Best.ClientID)
	assert.Equal(t, 1.0, res.Best.Score)
	assert.False(t, res.Ambiguous)
}

func TestNameIndexFirstNameAndAccents(t *testing.T) {
	ix := NewNameIndex(testClients(), 0)

	res := ix.Match("jose")
	require.NotNil(t, res.Best)
	assert.Equal(t, "c4", res.Best.ClientID)

	res = ix.Match("john")
	require.NotNil(t, res.Best)
	assert.Equal(t, "c2", res.Best.ClientID)
}

func TestNameIndexSoundAlike(t *testing.T) {
	ix := NewNameIndex(testClients(), 0)
	res := ix.Match("catherine oneil")
	require.NotNil(t, res.Best)
	assert.Equal(t, "c3", res.Best.ClientID)
	assert.GreaterOrEqual(t, res.Best.Score, DefaultMatchThreshold)
}

func TestNameIndexAmbiguous(t *testing.T) {
	ix := NewNameIndex(testClients(), 0)
	res := ix.Match("garcia")
	require.NotNil(t, res.Best)
	assert.True(t, res.Ambiguous)
	require.GreaterOrEqual(t, len(res.Candidates), 2)
	assert.Equal(t, "Maria Garcia", res.Candidates[0].Name)
	assert.Equal(t, "Mario Garcia", res.Candidates[1].Name)
}

func TestNameIndexNoMatch(t *testing.T) {
	ix := NewNameIndex(testClients(), 0)
	res := ix.Match("bartholomew")
	assert.Nil(t, res.Best)

	res = ix.Match("")
	assert.Nil(t, res.Best)
	assert.Empty(t, res.Candidates)

	empty := NewNameIndex(nil, 0.9)
	assert.Nil(t, empty.Match("jane").Best)
}

func TestNameIndexThreshold(t *testing.T) {
	strict := NewNameIndex(testClients(), 0.99)
	res := strict.Match("jane do")
	assert.Nil(t, res.Best)
	assert.NotEmpty(t, res.Candidates)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "jose oneil", NormalizeName("Dr. José O'Neil"))
	assert.Equal(t, "mary ann", NormalizeName("Mary-Ann"))
	assert.Equal(t, "jane", NormalizeName("  Jane's "))
	assert.Equal(t, "", NormalizeName("Mr."))
}

func TestPhoneticKey(t *testing.T) {
	assert.Equal(t, PhoneticKey("Katherine"), PhoneticKey("Catherine"))
	assert.Equal(t, PhoneticKey("Jon"), PhoneticKey("John"))
	assert.Equal(t, PhoneticKey("Philip"), PhoneticKey("Filip"))
	assert.NotEqual(t, PhoneticKey("Jane"), PhoneticKey("Mark"))
	assert.Equal(t, "", PhoneticKey(""))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("jane", "jane"))
	assert.InDelta(t, 0.75, Similarity("jane", "jade"), 0.001)
	assert.Less(t, Similarity("jane", "bartholomew"), 0.3)
}
