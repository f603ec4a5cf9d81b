package sfs

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  Identifier
	}{
		{name: "plain", input: "2010:5", want: Identifier{Year: 2010, Seq: 5}},
		{name: "space after colon", input: "2010: 1969", want: Identifier{Year: 2010, Seq: 1969}},
		{name: "citation prefix", input: "SFS 1998:204", want: Identifier{Year: 1998, Seq: 204}},
		{name: "leading zeros", input: "1736:0123", want: Identifier{Year: 1736, Seq: 123, digits: "0123"}},
		{name: "suffix", input: "1736:0123 2", want: Identifier{Year: 1736, Seq: 123, Suffix: " 2", digits: "0123"}},
		{name: "zero", input: "2010:0", want: Identifier{Year: 2010, Seq: 0}},
		{name: "foreign authority", input: "N1992:31", want: Identifier{Authority: "N", Year: 1992, Seq: 31}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			parsed, err := Parse(testCase.input)
			require.NoError(t, err)
			assert.Equal(t, testCase.want, parsed)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{"", "2010", "10:5", "abc:def", "2010:"} {
		_, err := Parse(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestIdentifierCompare(t *testing.T) {
	assert.Equal(t, -1, MustParse("2010:5").Compare(MustParse("2012:30")))
	assert.Equal(t, -1, MustParse("2012:5").Compare(MustParse("2012:30")))
	assert.Equal(t, 0, MustParse("2012:30").Compare(MustParse("2012:30")))
	assert.Equal(t, 1, MustParse("2013:1").Compare(MustParse("2012:900")))
	assert.True(t, MustParse("1736:123").Before(MustParse("1736:123 2")))
	assert.True(t, MustParse("2010:05").Before(MustParse("2010:6")), "leading zeros compare numerically")
	assert.True(t, MustParse("2010:9").Before(MustParse("2010:010")))
}

func TestIdentifierKeepsLeadingZeros(t *testing.T) {
	assert.Equal(t, "1736:0123 2", MustParse("1736:0123 2").String())
	assert.Equal(t, "2010:05", MustParse("SFS 2010:05").String())
	assert.Equal(t, "0123", MustParse("1736:0123").SeqText())
	assert.Equal(t, New(2010, 5), MustParse("2010:5"), "plain numbers equal their constructed form")
	assert.NotEqual(t, MustParse("2010:5"), MustParse("2010:05"))
	assert.Equal(t, New(2010, 6), MustParse("2010:05").Next())
}

func TestIdentifierNext(t *testing.T) {
	assert.Equal(t, New(2020, 4), New(2020, 3).Next())
	assert.Equal(t, New(1736, 124), MustParse("1736:123 2").Next())
}

func TestIdentifierCanonical(t *testing.T) {
	assert.True(t, MustParse("1992:31").IsCanonical())
	assert.False(t, MustParse("N1992:31").IsCanonical())
}

func TestIdentifierJSON(t *testing.T) {
	type wrapper struct {
		ID Identifier `json:"id"`
	}

	encoded, err := json.Marshal(wrapper{ID: New(2008, 605)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"2008:605"}`, string(encoded))

	var decoded wrapper
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, New(2008, 605), decoded.ID)
}

// TestIdentifierRoundTrip checks that "year:seq[suffix]" strings survive
// Parse followed by String unchanged, leading zeros and suffixes included.
func TestIdentifierRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("Parse(s).String() == s", prop.ForAll(
		func(year int, zeros int, seq int, suffix string) bool {
			text := fmt.Sprintf("%d:%s%d%s", year, strings.Repeat("0", zeros), seq, suffix)
			parsed, err := Parse(text)
			if err != nil {
				return false
			}
			return parsed.String() == text && parsed.Seq == seq
		},
		gen.IntRange(1000, 9999),
		gen.IntRange(0, 3),
		gen.IntRange(0, 99999),
		gen.OneConstOf("", " 2", " s. 3"),
	))

	properties.Property("numeric order ignores leading zeros", prop.ForAll(
		func(left int, right int, zeros int) bool {
			padded := MustParse(fmt.Sprintf("2010:%s%d", strings.Repeat("0", zeros), left))
			return left == right || padded.Before(New(2010, right)) == (left < right)
		},
		gen.IntRange(0, 9999),
		gen.IntRange(0, 9999),
		gen.IntRange(1, 3),
	))

	properties.TestingRun(t)
}
