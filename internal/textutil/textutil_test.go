package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "helloworld", Normalize("Hello · World"))
	assert.Equal(t, "群论定义", Normalize("群论·定义"))
	assert.Equal(t, "eulerformula", Normalize("Euler-Formula"))
	assert.Equal(t, "", Normalize(""))
	assert.True(t, Equal("Fermat's Last Theorem", "fermat's last  theorem"))
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"exact", "Hello", "hello", 100},
		{"substring", "群论", "群论的定义", 70 + 25*2.0/5.0},
		{"empty", "", "abc", 0},
		{"disjoint short", "ab", "cd", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 0.001)
		})
	}
}

func TestSimilarityRatio(t *testing.T) {
	// "fermat" vs "format": f,r,m,a,t in common
	got := Similarity("fermat", "format")
	assert.Greater(t, got, 50.0)
	assert.Less(t, got, 100.0)

	assert.InDelta(t, 1.0, Ratio("", ""), 0.001)
	assert.InDelta(t, 0.5, Ratio("ab", "ac"), 0.001)
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance("abc", "abc"))
	assert.Equal(t, 1, Distance("abc", "abd"))
	assert.Equal(t, 3, Distance("", "abc"))
}

func TestBestMatch(t *testing.T) {
	best, score := BestMatch("群论", []string{"环论", "群论", "域论"})
	assert.Equal(t, "群论", best)
	assert.Equal(t, 100.0, score)

	best, score = BestMatch("x", nil)
	assert.Equal(t, "", best)
	assert.Zero(t, score)
}
