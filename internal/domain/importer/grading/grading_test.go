package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		score  float64
		letter string
		scale4 float64
		passed bool
	}{
		{10, "A", 4.0, true},
		{8.5, "A", 4.0, true},
		{8.49, "B+", 3.5, true},
		{7.8, "B+", 3.5, true},
		{7.0, "B", 3.0, true},
		{6.3, "C+", 2.5, true},
		{5.5, "C", 2.0, true},
		{4.8, "D+", 1.5, true},
		{4.0, "D", 1.0, true},
		{3.99, "F", 0.0, false},
		{0, "F", 0.0, false},
	}
	for _, tc := range cases {
		g := Classify(tc.score)
		assert.Equal(t, tc.letter, g.Letter, "score %v", tc.score)
		assert.Equal(t, tc.scale4, g.Scale4, "score %v", tc.score)
		assert.Equal(t, tc.passed, g.Passed, "score %v", tc.score)
	}
}

func TestParseTerm(t *testing.T) {
	tm := ParseTerm("HK1 2024-2025")
	assert.Equal(t, 2024, tm.Year)
	assert.Equal(t, 1, tm.Seq)

	tm = ParseTerm("HK2")
	assert.Equal(t, 0, tm.Year)
	assert.Equal(t, 2, tm.Seq)

	tm = ParseTerm("HK")
	assert.Equal(t, 0, tm.Year)
	assert.Equal(t, 0, tm.Seq)
}

func TestTermCompare(t *testing.T) {
	assert.Equal(t, -1, ParseTerm("HK2 2023-2024").Compare(ParseTerm("HK1 2024-2025")))
	assert.Equal(t, 1, ParseTerm("HK2 2024").Compare(ParseTerm("HK1 2024")))
	assert.Equal(t, 0, ParseTerm("HK1 2024").Compare(ParseTerm("HK1 2024")))
	// No digits at all: raw label ordering is the last resort.
	assert.Equal(t, -1, ParseTerm("HKA").Compare(ParseTerm("HKB")))
}

func TestApplyRetakePolicy(t *testing.T) {
	t.Run("first attempt always final", func(t *testing.T) {
		a := &Attempt{Scale4: 1.0, Term: ParseTerm("HK1")}
		ApplyRetakePolicy(PolicyBest, []*Attempt{a})
		assert.True(t, a.Final)
	})

	t.Run("keep latest", func(t *testing.T) {
		old := &Attempt{Scale4: 4.0, Term: ParseTerm("HK1 2023"), Final: true}
		nw := &Attempt{Scale4: 1.0, Term: ParseTerm("HK1 2024")}
		ApplyRetakePolicy(PolicyKeepLatest, []*Attempt{old, nw})
		assert.False(t, old.Final)
		assert.True(t, nw.Final)
	})

	t.Run("best keeps maximum scale4", func(t *testing.T) {
		old := &Attempt{Scale4: 4.0, Term: ParseTerm("HK1 2023"), Final: true}
		nw := &Attempt{Scale4: 1.0, Term: ParseTerm("HK1 2024")}
		ApplyRetakePolicy(PolicyBest, []*Attempt{old, nw})
		assert.True(t, old.Final)
		assert.False(t, nw.Final)
	})

	t.Run("best breaks ties by most recent term", func(t *testing.T) {
		a := &Attempt{Scale4: 3.5, Term: ParseTerm("HK1 2023")}
		b := &Attempt{Scale4: 3.5, Term: ParseTerm("HK2 2023")}
		ApplyRetakePolicy(PolicyBest, []*Attempt{a, b})
		assert.False(t, a.Final)
		assert.True(t, b.Final)
	})

	t.Run("exactly one final under best", func(t *testing.T) {
		attempts := []*Attempt{
			{Scale4: 2.0, Term: ParseTerm("HK1 2022"), Final: true},
			{Scale4: 3.0, Term: ParseTerm("HK2 2022")},
			{Scale4: 3.0, Term: ParseTerm("HK1 2023")},
			{Scale4: 1.0, Term: ParseTerm("HK2 2023")},
		}
		ApplyRetakePolicy(PolicyBest, attempts)
		finals := 0
		var max float64
		for _, a := range attempts {
			if a.Scale4 > max {
				max = a.Scale4
			}
			if a.Final {
				finals++
				assert.Equal(t, 3.0, a.Scale4)
				assert.Equal(t, ParseTerm("HK1 2023"), a.Term)
			}
		}
		require.Equal(t, 1, finals)
		assert.Equal(t, 3.0, max)
	})

	t.Run("idempotent", func(t *testing.T) {
		attempts := []*Attempt{
			{Scale4: 2.0, Term: ParseTerm("HK1 2022")},
			{Scale4: 3.0, Term: ParseTerm("HK2 2022")},
		}
		ApplyRetakePolicy(PolicyBest, attempts)
		first := []bool{attempts[0].Final, attempts[1].Final}
		ApplyRetakePolicy(PolicyBest, attempts)
		assert.Equal(t, first, []bool{attempts[0].Final, attempts[1].Final})
	})
}

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, PolicyBest, ParsePolicy("best"))
	assert.Equal(t, PolicyKeepLatest, ParsePolicy("keep-latest"))
	assert.Equal(t, PolicyKeepLatest, ParsePolicy(""))
	assert.Equal(t, PolicyKeepLatest, ParsePolicy("anything"))
}
