// Package fuzzy scores name similarity on a 0-100 scale and picks the best
// matching candidate feature for a set of query names.
package fuzzy

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Scorer names a similarity strategy.
type Scorer string

// Supported scorers.
const (
	ScorerRatio        Scorer = "ratio"
	ScorerPartialRatio Scorer = "partial_ratio"
	ScorerTokenSort    Scorer = "token_sort"
	ScorerTokenSet     Scorer = "token_set"
	ScorerJaroWinkler  Scorer = "jaro_winkler"
)

// ParseScorer converts a configuration string into a Scorer.
func ParseScorer(s string) (Scorer, error) {
	switch sc := Scorer(strings.ToLower(strings.TrimSpace(s))); sc {
	case ScorerRatio, ScorerPartialRatio, ScorerTokenSort, ScorerTokenSet, ScorerJaroWinkler:
		return sc, nil
	case "token_sort_ratio":
		return ScorerTokenSort, nil
	case "token_set_ratio":
		return ScorerTokenSet, nil
	default:
		return "", eris.Errorf("fuzzy: unknown scorer %q", s)
	}
}

// Score normalizes a and b and compares them with the scorer's strategy.
// Unknown scorers score 0.
func (s Scorer) Score(a, b string) float64 {
	a, b = Normalize(a), Normalize(b)
	switch s {
	case ScorerRatio:
		return Ratio(a, b)
	case ScorerPartialRatio:
		return PartialRatio(a, b)
	case ScorerTokenSort:
		return TokenSortRatio(a, b)
	case ScorerTokenSet:
		return TokenSetRatio(a, b)
	case ScorerJaroWinkler:
		return JaroWinkler(a, b)
	default:
		return 0
	}
}

var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize strips diacritics, lowercases, turns every non-alphanumeric rune
// into a space and collapses whitespace.
func Normalize(s string) string {
	folded, _, err := transform.String(foldMarks, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

// indel is Levenshtein with substitutions priced as a delete plus an insert.
var indel = &metrics.Levenshtein{
	CaseSensitive: true,
	InsertCost:    1,
	DeleteCost:    1,
	ReplaceCost:   2,
}

var jaroWinkler = metrics.NewJaroWinkler()

// Ratio is the whole-string similarity 100 * (1 - indel / (len(a)+len(b))).
// Either string being empty scores 0.
func Ratio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	if a == b {
		return 100
	}
	total := float64(la + lb)
	return 100 * (total - float64(indel.Distance(a, b))) / total
}

// PartialRatio slides the shorter string across every window of equal length
// in the longer one and keeps the best Ratio. The result never falls below
// the whole-string Ratio.
func PartialRatio(a, b string) float64 {
	shorter, longer := []rune(a), []rune(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) == 0 {
		return 0
	}

	best := Ratio(a, b)
	s := string(shorter)
	for i := 0; i+len(shorter) <= len(longer) && best < 100; i++ {
		if r := Ratio(s, string(longer[i:i+len(shorter)])); r > best {
			best = r
		}
	}
	return best
}

// TokenSortRatio compares the strings after sorting their tokens.
func TokenSortRatio(a, b string) float64 {
	return Ratio(sortedTokens(strings.Fields(a)), sortedTokens(strings.Fields(b)))
}

// TokenSetRatio compares the shared tokens against each side's shared plus
// remaining tokens and keeps the best Ratio.
func TokenSetRatio(a, b string) float64 {
	setA, setB := tokenSet(a), tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for tok := range setA {
		if setB[tok] {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range setB {
		if !setA[tok] {
			onlyB = append(onlyB, tok)
		}
	}

	base := sortedTokens(common)
	withA := strings.TrimSpace(base + " " + sortedTokens(onlyA))
	withB := strings.TrimSpace(base + " " + sortedTokens(onlyB))

	best := Ratio(withA, withB)
	if base != "" {
		best = max(best, Ratio(base, withA), Ratio(base, withB))
	}
	return best
}

// JaroWinkler scales the Jaro-Winkler similarity to 0-100.
func JaroWinkler(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return 100 * strutil.Similarity(a, b, jaroWinkler)
}

func sortedTokens(tokens []string) string {
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}
