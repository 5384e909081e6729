// Package matching scores media server catalog items against song suggestions.
//
// Everything here is a pure function over strings and [models.LibraryTrack] values.
//
// # Text comparison
//
// [Normalize] folds text to lowercase ASCII words separated by single spaces. [StripStopWords] drops
// low-signal words such as articles and "feat". [IsSimilar] compares two strings in tiers, cheapest first:
//
//  1. equal after normalization
//  2. one contains the other after normalization
//  3. equal after stop-word stripping
//  4. one contains the other after stop-word stripping
//  5. [Similarity] of the stripped forms reaches the threshold
//
// # Scoring
//
// [Score] weighs title, artist and album agreement, and [BestMatch] accepts the highest scoring candidate
// at or above [MinScore]. Ties keep the earliest candidate.
package matching

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gosimple/unidecode"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {},
	"and": {}, "or": {}, "but": {}, "nor": {},
	"of": {}, "in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "with": {}, "by": {}, "from": {},
	"feat": {}, "featuring": {}, "ft": {}, "vs": {}, "versus": {},
}

// Normalize transliterates to ASCII, lowercases, removes punctuation and collapses whitespace.
func Normalize(text string) string {
	folded := strings.ToLower(unidecode.Unidecode(text))

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// StripStopWords removes stop words from whitespace-separated text. The result may be empty.
func StripStopWords(text string) string {
	words := strings.Fields(text)
	kept := words[:0]
	for _, w := range words {
		if _, ok := stopWords[strings.ToLower(w)]; ok {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// Similarity is one minus the Levenshtein distance divided by the longer length in runes.
// Two empty strings have similarity 1.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)
}

// IsSimilar runs the tiered comparison described in the package documentation.
func IsSimilar(a, b string, threshold float64) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == nb || containsEither(na, nb) {
		return true
	}

	sa, sb := significant(na), significant(nb)
	if sa == sb || containsEither(sa, sb) {
		return true
	}

	return Similarity(sa, sb) >= threshold
}

// significant strips stop words but keeps the normalized text when nothing else would remain,
// so a name made only of stop words ("The The") still compares by its words.
func significant(normalized string) string {
	if s := StripStopWords(normalized); s != "" {
		return s
	}
	return normalized
}

func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
