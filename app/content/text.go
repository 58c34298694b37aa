package content

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const wordsPerMinute = 200

// WordCount counts whitespace separated words of body, ignoring markup when
// the body is HTML.
func WordCount(body string, format BodyFormat) int {
	if format == FormatHTML {
		body = PlainText(body)
	}
	return len(strings.Fields(body))
}

// ComputeReadingTime returns the reading time in whole minutes, at least 1
// for non-empty content.
func ComputeReadingTime(words int) int {
	if words <= 0 {
		return 0
	}
	return int(math.Ceil(float64(words) / wordsPerMinute))
}

// WithReadingTime returns a copy of u with ReadingTime computed from the body.
func WithReadingTime(u Universal) Universal {
	u.ReadingTime = ComputeReadingTime(WordCount(u.Body, u.Format()))
	return u
}

// TruncateWords shortens s to at most limit runes, cutting on the last word
// boundary inside the limit when there is one. No ellipsis is appended.
// A limit <= 0 means unbounded.
func TruncateWords(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}

	cut := []rune(s)[:limit]
	boundary := -1
	for i := len(cut) - 1; i > 0; i-- {
		if unicode.IsSpace(cut[i]) {
			boundary = i
			break
		}
	}

	// Cutting exactly before a space of the original keeps the last word whole.
	if next := []rune(s)[limit]; unicode.IsSpace(next) {
		boundary = limit
	}

	if boundary > 0 {
		cut = cut[:boundary]
	}

	return strings.TrimRightFunc(string(cut), unicode.IsSpace), true
}

// NormalizeWhitespace collapses every run of whitespace into a single space
// and trims the ends.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Slugify turns s into a lowercase, hyphen separated ASCII-friendly slug.
// Accents are stripped; letters of other scripts are kept.
func Slugify(s string) string {
	// A chain keeps state between calls, so each call builds its own.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// SlugifyLimit is Slugify bounded to limit runes, never ending in a dash.
func SlugifyLimit(s string, limit int) string {
	slug := Slugify(s)
	if limit <= 0 || utf8.RuneCountInString(slug) <= limit {
		return slug
	}
	return strings.TrimRight(string([]rune(slug)[:limit]), "-")
}

// KeywordDensity returns the share of words of text that are one of the
// keywords, case-insensitively.
func KeywordDensity(text string, keywords []string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 || len(keywords) == 0 {
		return 0
	}

	set := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		for _, w := range strings.Fields(strings.ToLower(k)) {
			set[w] = struct{}{}
		}
	}

	hits := 0
	for _, w := range words {
		if _, ok := set[strings.Trim(w, ".,;:!?\"'()")]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}
