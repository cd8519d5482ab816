// Package matcher decides whether two differently formatted titles name the same song.
package matcher

import (
	"math"
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/cockroachdb/errors"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/xrash/smetrics"
)

// Threshold is the score a pair of titles must exceed to count as the same song.
const Threshold = 80.0

// Algorithm names accepted by New.
const (
	AlgorithmSequence    = "sequence"
	AlgorithmJaroWinkler = "jarowinkler"
	AlgorithmLevenshtein = "levenshtein"
)

// remasterTokens are removed in this order, so "Remastered" never leaves a stray "ed".
var remasterTokens = []string{"Remastered", "Remaster"}

// Matcher scores two titles on a 0-100 scale and applies the acceptance threshold.
type Matcher interface {
	Name() string
	Score(a, b string) float64
	Match(a, b string) bool
}

// New returns the matcher registered under name. An empty name selects the sequence matcher.
func New(name string) (Matcher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", AlgorithmSequence:
		return SequenceMatcher{}, nil
	case AlgorithmJaroWinkler:
		return JaroWinklerMatcher{}, nil
	case AlgorithmLevenshtein:
		return LevenshteinMatcher{}, nil
	default:
		return nil, errors.Newf("unknown match algorithm %q", name)
	}
}

// StripRemaster removes the case-sensitive "Remastered" and "Remaster" tokens.
func StripRemaster(s string) string {
	for _, token := range remasterTokens {
		s = strings.ReplaceAll(s, token, "")
	}
	return s
}

// AlphaOnly keeps letters and drops digits, punctuation and whitespace. Case is preserved.
func AlphaOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize reduces a title to its comparable alphabetic core.
func Normalize(s string) string {
	return AlphaOnly(StripRemaster(s))
}

// Accept reports whether score clears the threshold.
func Accept(score float64) bool {
	return score > Threshold
}

// Score rates a and b with the default sequence matcher.
func Score(a, b string) float64 {
	return SequenceMatcher{}.Score(a, b)
}

// SequenceMatcher rates titles with the longest-matching-blocks ratio 2*M/T.
type SequenceMatcher struct{}

func (SequenceMatcher) Name() string { return AlgorithmSequence }

func (m SequenceMatcher) Score(a, b string) float64 {
	na, nb := ordered(Normalize(a), Normalize(b))
	ratio := difflib.NewMatcher(splitRunes(na), splitRunes(nb)).Ratio()
	return percent(ratio)
}

func (m SequenceMatcher) Match(a, b string) bool { return Accept(m.Score(a, b)) }

// JaroWinklerMatcher favours titles sharing a common prefix.
type JaroWinklerMatcher struct{}

func (JaroWinklerMatcher) Name() string { return AlgorithmJaroWinkler }

func (m JaroWinklerMatcher) Score(a, b string) float64 {
	na, nb := ordered(Normalize(a), Normalize(b))
	if na == nb {
		return 100
	}
	return percent(strutil.Similarity(na, nb, metrics.NewJaroWinkler()))
}

func (m JaroWinklerMatcher) Match(a, b string) bool { return Accept(m.Score(a, b)) }

// LevenshteinMatcher derives a ratio from the Wagner-Fischer edit distance with
// substitutions costing two, which bounds the distance by the combined length.
type LevenshteinMatcher struct{}

func (LevenshteinMatcher) Name() string { return AlgorithmLevenshtein }

func (m LevenshteinMatcher) Score(a, b string) float64 {
	na, nb := ordered(Normalize(a), Normalize(b))
	total := len(na) + len(nb)
	if total == 0 {
		return 100
	}
	distance := smetrics.WagnerFischer(na, nb, 1, 1, 2)
	return percent(1 - float64(distance)/float64(total))
}

func (m LevenshteinMatcher) Match(a, b string) bool { return Accept(m.Score(a, b)) }

// ordered puts the pair in a canonical order. The block matcher is greedy and
// can report a different M depending on argument order.
func ordered(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func percent(ratio float64) float64 {
	return math.Round(ratio*1000) / 10
}
