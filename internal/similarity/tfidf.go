package similarity

import (
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// MinLength is the shortest trimmed input that is scored at all.
const MinLength = 3

// MaxScore is the score of two identical, non-trivial subjects.
const MaxScore = 100.0

// wordRun matches maximal runs of letters, digits and underscores.
// Combining marks split a run; runs shorter than two characters are
// dropped by tokenize.
var wordRun = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Score returns the TF-IDF cosine similarity of a and b scaled to [0, 100].
//
// Both inputs are trimmed and lower-cased first. Inputs shorter than
// MinLength characters, and pairs whose combined vocabulary is empty after
// stop word removal, score 0. The result is symmetric in its arguments.
func Score(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if utf8.RuneCountInString(a) < MinLength || utf8.RuneCountInString(b) < MinLength {
		return 0
	}

	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}

	va, vb := vectorize(ta, tb)
	cos := dot(va, vb)

	score := cos * MaxScore
	// Rounding can push identical vectors a hair above 1.
	if score > MaxScore {
		score = MaxScore
	}
	if score < 0 {
		score = 0
	}
	return score
}

// tokenize splits s into term counts, skipping stop words and single
// characters.
func tokenize(s string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range wordRun.FindAllString(s, -1) {
		if utf8.RuneCountInString(tok) < 2 || IsStopWord(tok) {
			continue
		}
		counts[tok]++
	}
	return counts
}

// vectorize builds l2-normalised TF-IDF vectors for a two document corpus
// using smoothed inverse document frequency: ln((1+n)/(1+df)) + 1.
func vectorize(ta, tb map[string]int) (map[string]float64, map[string]float64) {
	const n = 2.0

	idf := func(term string) float64 {
		df := 0.0
		if _, ok := ta[term]; ok {
			df++
		}
		if _, ok := tb[term]; ok {
			df++
		}
		return math.Log((1+n)/(1+df)) + 1
	}

	weigh := func(tf map[string]int) map[string]float64 {
		v := make(map[string]float64, len(tf))
		var norm float64
		for _, term := range sortedKeys(tf) {
			w := float64(tf[term]) * idf(term)
			v[term] = w
			norm += w * w
		}
		if norm == 0 {
			return v
		}
		norm = math.Sqrt(norm)
		for term := range v {
			v[term] /= norm
		}
		return v
	}

	return weigh(ta), weigh(tb)
}

// dot sums over shared terms in sorted order so that Score(a, b) and
// Score(b, a) produce bit-identical results.
func dot(a, b map[string]float64) float64 {
	var shared []string
	for term := range a {
		if _, ok := b[term]; ok {
			shared = append(shared, term)
		}
	}
	slices.Sort(shared)

	var sum float64
	for _, term := range shared {
		sum += a[term] * b[term]
	}
	return sum
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
