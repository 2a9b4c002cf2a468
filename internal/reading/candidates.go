package reading

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

var textCleaner = strings.NewReplacer(" ", "", ",", ".")

// NormalizeText folds compatibility characters, trims the text and removes
// inner spaces. Commas become decimal points.
func NormalizeText(text string) string {
	text = norm.NFKC.String(text)
	return textCleaner.Replace(strings.TrimSpace(text))
}

// ParseCandidates extracts numeric tokens with at least minDigits digits
// from raw engine output.
func ParseCandidates(text string, minDigits int, variant Variant, mode SegmentationMode) []Candidate {
	var out []Candidate
	for _, m := range numberPattern.FindAllString(NormalizeText(text), -1) {
		digits := countDigits(m)
		if digits < minDigits {
			continue
		}
		out = append(out, Candidate{
			Value:      m,
			HasDecimal: strings.Contains(m, "."),
			DigitCount: digits,
			Variant:    variant,
			Mode:       mode,
		})
	}
	return out
}

func countDigits(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			n++
		}
	}
	return n
}

// SelectBest picks the reading among candidates. When any candidate carries
// a decimal point only those compete, by digit count. Otherwise the longest
// value wins. Ties go to the earliest candidate.
func SelectBest(candidates []Candidate) (Candidate, bool) {
	best := -1
	for i, c := range candidates {
		if c.HasDecimal {
			if best < 0 || c.DigitCount > candidates[best].DigitCount {
				best = i
			}
		}
	}
	if best >= 0 {
		return candidates[best], true
	}

	for i, c := range candidates {
		if best < 0 || len(c.Value) > len(candidates[best].Value) {
			best = i
		}
	}
	if best < 0 {
		return Candidate{}, false
	}
	return candidates[best], true
}
