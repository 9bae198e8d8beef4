package evaluation

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/joseph-ayodele/catalog-extractor/internal/entity"
	"github.com/joseph-ayodele/catalog-extractor/internal/shape"
)

// Pair is an English field and its Portuguese sibling (FooEN / FooPT).
type Pair struct {
	Field    string
	Location string
	EN       string
	PT       string
}

// TranslationPairs finds every EN/PT sibling pair with a non-empty English
// value, at the record root and in each variant.
func TranslationPairs(rec *shape.Record) []Pair {
	var pairs []Pair
	if root := rec.Root(); root != nil {
		pairs = append(pairs, pairsIn(root, "root")...)
	}
	nested := shape.SubtypesKey
	if rec.Kind() == shape.Supplement {
		nested = shape.PresentationsKey
	}
	if rec.Kind() == shape.FlatList {
		nested = "variants"
	}
	for i, v := range rec.Variants() {
		pairs = append(pairs, pairsIn(v, fmt.Sprintf("%s[%d]", nested, i))...)
	}
	return pairs
}

func pairsIn(obj map[string]any, loc string) []Pair {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		if strings.HasSuffix(k, "EN") && len(k) > 2 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out []Pair
	for _, k := range keys {
		en := shape.Text(obj[k])
		if en == "" {
			continue
		}
		field := strings.TrimSuffix(k, "EN")
		out = append(out, Pair{Field: field, Location: loc, EN: en, PT: shape.Text(obj[field+"PT"])})
	}
	return out
}

// TranslationScorer checks each pair with fixed rules. A pair starts at 100:
// a missing or untranslated PT value scores 0, English-heavy PT text loses 50,
// and each number or brand token dropped in translation loses 25.
type TranslationScorer struct{}

const (
	mixedPenalty       = 50
	consistencyPenalty = 25
	// mixedShare is the English stop-word share above which PT text counts as mixed.
	mixedShare = 0.25
)

// englishStopWords are frequent English words that are not also Portuguese words.
var englishStopWords = map[string]bool{
	"the": true, "and": true, "with": true, "for": true, "of": true, "to": true,
	"in": true, "is": true, "are": true, "this": true, "that": true, "your": true,
	"it": true, "on": true, "from": true, "by": true, "skin": true, "hair": true,
	"apply": true, "daily": true, "after": true, "before": true,
	"which": true, "its": true, "an": true, "be": true, "can": true, "all": true,
}

var (
	reNumber = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	reWord   = regexp.MustCompile(`[\p{L}']+`)
)

func (TranslationScorer) Score(_ context.Context, in Input) (entity.SubScore, error) {
	pairs := TranslationPairs(in.Record)
	if len(pairs) == 0 {
		return entity.SubScore{Score: 100, Reason: "no translation pairs", Method: entity.MethodRule}, nil
	}
	brand := brandOf(in.Record)

	var sum float64
	var issues []string
	for _, p := range pairs {
		score, problems := scorePair(p, brand)
		sum += score
		for _, pr := range problems {
			issues = append(issues, fmt.Sprintf("%s.%s: %s", p.Location, p.Field, pr))
		}
	}

	reason := fmt.Sprintf("%d translation pairs checked", len(pairs))
	if len(issues) > 0 {
		if len(issues) > 8 {
			issues = append(issues[:8], fmt.Sprintf("and %d more", len(issues)-8))
		}
		reason += "; " + strings.Join(issues, "; ")
	}
	return entity.SubScore{Score: sum / float64(len(pairs)), Reason: reason, Method: entity.MethodRule}, nil
}

func scorePair(p Pair, brand string) (float64, []string) {
	if p.PT == "" {
		return 0, []string{"Portuguese value missing"}
	}
	if strings.EqualFold(strings.TrimSpace(p.EN), strings.TrimSpace(p.PT)) && !brandLike(p.EN) {
		return 0, []string{"Portuguese value identical to English"}
	}

	score := 100.0
	var problems []string
	if share := stopWordShare(p.PT); share > mixedShare {
		score -= mixedPenalty
		problems = append(problems, fmt.Sprintf("Portuguese text looks English (%.0f%% English stop words)", share*100))
	}
	for _, n := range reNumber.FindAllString(p.EN, -1) {
		if !strings.Contains(p.PT, n) && !strings.Contains(p.PT, swapDecimal(n)) {
			score -= consistencyPenalty
			problems = append(problems, fmt.Sprintf("number %s not carried over", n))
		}
	}
	if brand != "" && containsFold(p.EN, brand) && !containsFold(p.PT, brand) {
		score -= consistencyPenalty
		problems = append(problems, fmt.Sprintf("brand %q not carried over", brand))
	}
	if score < 0 {
		score = 0
	}
	return score, problems
}

// brandLike reports whether a value is short enough to be a name that
// legitimately stays the same in both languages.
func brandLike(s string) bool {
	words := strings.Fields(s)
	return len(words) <= 3 && len(s) <= 30
}

func stopWordShare(s string) float64 {
	words := reWord.FindAllString(strings.ToLower(s), -1)
	if len(words) < 4 {
		return 0
	}
	n := 0
	for _, w := range words {
		if englishStopWords[w] {
			n++
		}
	}
	return float64(n) / float64(len(words))
}

func swapDecimal(n string) string {
	switch {
	case strings.Contains(n, "."):
		return strings.Replace(n, ".", ",", 1)
	case strings.Contains(n, ","):
		return strings.Replace(n, ",", ".", 1)
	}
	return n
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func brandOf(rec *shape.Record) string {
	if root := rec.Root(); root != nil {
		if b := shape.Text(root["brand"]); b != "" {
			return b
		}
	}
	for _, v := range rec.Variants() {
		if b := shape.Text(v["brand"]); b != "" {
			return b
		}
	}
	return ""
}
