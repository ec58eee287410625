package dedup

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	noiseExpr  = regexp.MustCompile(`https?://\S+|@\w+|#\w+`)
	moneyExpr  = regexp.MustCompile(`(?i)\$?\s?(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s?(k|m|mn|b|bn|thousand|million|billion)?\b`)
	tokenExpr  = regexp.MustCompile(`[a-z0-9]+(?:\.\d+[a-z]*)?`)
	digitsExpr = regexp.MustCompile(`\d`)
)

// phrases are folded before tokenisation so multi-word synonyms collapse.
var phrases = []struct {
	expr *regexp.Regexp
	to   string
}{
	{regexp.MustCompile(`(?i)\ball[-\s]time[-\s]highs?\b`), " ath "},
	{regexp.MustCompile(`(?i)\b(?:record|new|fresh)\s+highs?\b`), " ath "},
	{regexp.MustCompile(`(?i)\b(?:record|new|fresh)\s+lows?\b`), " atl "},
	{regexp.MustCompile(`(?i)\bprice\s+targets?\b`), " pricetarget "},
	{regexp.MustCompile(`(?i)\bspot\s+etfs?\b`), " etf "},
}

var synonyms = map[string]string{
	"bitcoin":  "btc",
	"ethereum": "eth",
	"ether":    "eth",
	"solana":   "sol",
	"ripple":   "xrp",
	"cardano":  "ada",
	"dogecoin": "doge",
	"hit":      "reach",
	"top":      "reach",
	"touch":    "reach",
	"exceed":   "surpass",
	"above":    "surpass",
	"pass":     "surpass",
	"break":    "surpass",
	"cross":    "surpass",
	"climb":    "rise",
	"jump":     "rise",
	"surge":    "rise",
	"soar":     "rise",
	"rally":    "rise",
	"plunge":   "fall",
	"drop":     "fall",
	"tumble":   "fall",
	"slump":    "fall",
	"crash":    "fall",
	"approve":  "approval",
	"approv":   "approval",
	"hack":     "exploit",
	"hacker":   "exploit",
	"attack":   "exploit",
}

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the and for are but not you all any can had her was one our out has
		have been were with this that from they will would there their what about which when make like
		time just know take into year your some could them than then now look only come its over think
		also back after use two how first well way even new want because these give day most into
		amid says said say per via after before more less just still yet while where who whom whose
		today yesterday tomorrow week weeks month months report reports reported according news update
		breaking latest level levels`) {
		stopwords[w] = struct{}{}
	}
}

// Keywords extracts the normalised keyword set of text, sorted.
func Keywords(text string) []string {
	set := keywordSet(text)
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func keywordSet(text string) map[string]struct{} {
	text = noiseExpr.ReplaceAllString(text, " ")
	for _, p := range phrases {
		text = p.expr.ReplaceAllString(text, p.to)
	}
	text = moneyExpr.ReplaceAllStringFunc(text, func(m string) string {
		if tok := canonicalAmount(m); tok != "" {
			return " " + tok + " "
		}
		return m
	})
	text = strings.ToLower(text)

	set := map[string]struct{}{}
	for _, tok := range tokenExpr.FindAllString(text, -1) {
		hasDigit := digitsExpr.MatchString(tok)
		if !hasDigit {
			if len(tok) < 3 {
				continue
			}
			if _, stop := stopwords[tok]; stop {
				continue
			}
			tok = normalizeWord(tok)
		}
		if tok == "" {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

func normalizeWord(w string) string {
	if syn, ok := synonyms[w]; ok {
		return syn
	}
	stemmed := stem(w)
	if syn, ok := synonyms[stemmed]; ok {
		return syn
	}
	return stemmed
}

// stem strips common English inflections; it only needs to be consistent.
func stem(w string) string {
	switch {
	case len(w) > 5 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 5 && strings.HasSuffix(w, "ing"):
		return w[:len(w)-3]
	case len(w) > 4 && strings.HasSuffix(w, "ed"):
		return w[:len(w)-2]
	case len(w) > 4 && (strings.HasSuffix(w, "ches") || strings.HasSuffix(w, "shes") || strings.HasSuffix(w, "sses") || strings.HasSuffix(w, "xes")):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us"):
		return w[:len(w)-1]
	}
	return w
}

// canonicalAmount renders "$100,000", "$100k" and "100 thousand" alike.
// Bare integers without a currency sign, unit or thousands separator are
// left untouched.
func canonicalAmount(raw string) string {
	m := moneyExpr.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	hasDollar := strings.Contains(raw, "$")
	unit := strings.ToLower(m[2])
	if !hasDollar && unit == "" && !strings.Contains(m[1], ",") {
		return ""
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return ""
	}
	switch unit {
	case "k", "thousand":
		value *= 1e3
	case "m", "mn", "million":
		value *= 1e6
	case "b", "bn", "billion":
		value *= 1e9
	}

	switch {
	case value >= 1e9:
		return formatAmount(value/1e9) + "b"
	case value >= 1e6:
		return formatAmount(value/1e6) + "m"
	case value >= 1e3:
		return formatAmount(value/1e3) + "k"
	default:
		return formatAmount(value)
	}
}

func formatAmount(v float64) string {
	v = math.Round(v*10) / 10
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Similarity is the overlap ratio |A∩B| / max(|A|,|B|) of two keyword sets.
func Similarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, k := range a {
		set[k] = struct{}{}
	}
	shared := 0
	seen := make(map[string]struct{}, len(b))
	for _, k := range b {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := set[k]; ok {
			shared++
		}
	}
	longest := len(set)
	if len(seen) > longest {
		longest = len(seen)
	}
	return float64(shared) / float64(longest)
}

// TextSimilarity extracts keywords from both texts and compares them.
func TextSimilarity(a, b string) float64 {
	return Similarity(Keywords(a), Keywords(b))
}
