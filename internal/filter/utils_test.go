package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShannonEntropy(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{name: "empty string", in: "", want: 0},
		{name: "single character alphabet", in: "aaaa", want: 0},
		{name: "two characters even split", in: "abab", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ShannonEntropy(tt.in), 1e-9)
		})
	}
}

func TestShannonEntropy_OrderIndependent(t *testing.T) {
	assert.InDelta(t, ShannonEntropy("abcd"), ShannonEntropy("dcba"), 1e-9)
}

func TestShannonEntropy_RandomTextScoresHigher(t *testing.T) {
	repetitive := ShannonEntropy("xxxxxxxxxxxxxxxx")
	varied := ShannonEntropy("k9$Tq2&mZp!wR4#v")
	assert.Greater(t, varied, repetitive)
}

func TestChangeScore(t *testing.T) {
	tests := []struct {
		name string
		line string
		prev string
		want float64
	}{
		{name: "identical lines", line: "same", prev: "same", want: 0},
		{name: "empty against nonempty", line: "", prev: "x", want: 1},
		{name: "disjoint character sets", line: "abc", prev: "xyz", want: 1},
		{name: "full overlap different order", line: "abc", prev: "cba", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ChangeScore(tt.line, tt.prev), 1e-9)
		})
	}
}

func TestChangeScore_PartialOverlap(t *testing.T) {
	// Sets {a,b} and {b,c}: intersection 1, union 3.
	assert.InDelta(t, 1-1.0/3.0, ChangeScore("ab", "bc"), 1e-9)
}

func TestPercentile(t *testing.T) {
	scores := []float64{1, 2, 3, 4, 5}

	tests := []struct {
		name string
		p    float64
		want float64
	}{
		{name: "zeroth", p: 0, want: 1},
		{name: "median", p: 0.5, want: 3},
		{name: "eightieth", p: 0.8, want: 5},
		{name: "full clamps to last", p: 1.0, want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percentile(scores, tt.p))
		})
	}
}

func TestPercentile_Empty(t *testing.T) {
	assert.Equal(t, 0.0, Percentile(nil, 0.5))
}

func TestPercentile_DoesNotMutateInput(t *testing.T) {
	scores := []float64{3, 1, 2}
	Percentile(scores, 0.5)
	assert.Equal(t, []float64{3, 1, 2}, scores)
}
