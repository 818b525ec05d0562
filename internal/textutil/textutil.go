// Package textutil holds text normalization and fuzzy matching helpers.
package textutil

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Characters dropped by Normalize.
const normalizableChars = " ·•-ˈ∙"

const (
	exactMatch           = 100.0
	substringBase        = 70.0
	substringBonus       = 25.0
	shortStringLen       = 4
	shortStringThreshold = 0.8
	shortStringPenalty   = 80.0
)

var dmp = diffmatchpatch.New()

// Normalize lowercases text and strips spacing and separator punctuation.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToLower(text)
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(normalizableChars, r) {
			return -1
		}
		return r
	}, text)
}

// Equal reports whether a and b are the same after normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Ratio returns the share of characters a and b have in common, in [0,1].
func Ratio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	matched := 0
	for _, d := range dmp.DiffMain(a, b, false) {
		if d.Type == diffmatchpatch.DiffEqual {
			matched += utf8.RuneCountInString(d.Text)
		}
	}
	return 2 * float64(matched) / float64(total)
}

// Distance returns the Levenshtein distance between a and b.
func Distance(a, b string) int {
	return dmp.DiffLevenshtein(dmp.DiffMain(a, b, false))
}

// Similarity scores a against b from 0 to 100 after normalization. Exact
// matches score 100, substrings score between 70 and 95 by length ratio,
// everything else scales the common-character ratio. Short strings with a
// weak ratio are penalized.
func Similarity(a, b string) float64 {
	a, b = Normalize(a), Normalize(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return exactMatch
	}

	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter, longer := min(la, lb), max(la, lb)
		return substringBase + substringBonus*float64(shorter)/float64(longer)
	}

	ratio := Ratio(a, b)
	if (la <= shortStringLen || lb <= shortStringLen) && ratio < shortStringThreshold {
		return ratio * shortStringPenalty
	}
	return ratio * 100
}

// BestMatch returns the candidate most similar to text and its score.
func BestMatch(text string, candidates []string) (string, float64) {
	if len(candidates) == 0 {
		return "", 0
	}
	best, score := candidates[0], Similarity(text, candidates[0])
	for _, c := range candidates[1:] {
		if s := Similarity(text, c); s > score {
			best, score = c, s
		}
	}
	return best, score
}
