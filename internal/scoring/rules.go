package scoring

import (
	"fmt"
	"regexp"
	"strings"

	"MorningPulse/internal/config"
)

// keywordRule is one compiled (matcher, weight) entry of the keyword table.
type keywordRule struct {
	name        string
	weight      float64
	minDistinct int
	terms       []*regexp.Regexp
	pattern     *regexp.Regexp
}

// matches counts distinct terms of the rule found in text and compares it
// against the rule's minimum. A pattern hit counts as one distinct term.
func (r keywordRule) matches(text string) bool {
	distinct := 0
	for _, term := range r.terms {
		if term.MatchString(text) {
			distinct++
			if distinct >= r.minDistinct {
				return true
			}
		}
	}
	if r.pattern != nil && r.pattern.MatchString(text) {
		distinct++
	}
	return distinct >= r.minDistinct
}

func compileRules(classes []config.KeywordClassConfig) ([]keywordRule, error) {
	rules := make([]keywordRule, 0, len(classes))
	for _, class := range classes {
		rule := keywordRule{
			name:        class.Name,
			weight:      class.Weight,
			minDistinct: class.MinDistinct,
		}
		if rule.minDistinct <= 0 {
			rule.minDistinct = 1
		}

		for _, term := range class.Terms {
			re, err := compileTerm(term)
			if err != nil {
				return nil, fmt.Errorf("keyword class %s: %w", class.Name, err)
			}
			if re != nil {
				rule.terms = append(rule.terms, re)
			}
		}

		if class.Pattern != "" {
			re, err := regexp.Compile("(?i)" + class.Pattern)
			if err != nil {
				return nil, fmt.Errorf("keyword class %s pattern: %w", class.Name, err)
			}
			rule.pattern = re
		}

		if len(rule.terms) == 0 && rule.pattern == nil {
			return nil, fmt.Errorf("keyword class %s has no terms", class.Name)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// compileTerm turns "etf|etfs" into a case-insensitive whole-word alternation.
func compileTerm(term string) (*regexp.Regexp, error) {
	var aliases []string
	for _, alias := range strings.Split(term, "|") {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		quoted := regexp.QuoteMeta(alias)
		aliases = append(aliases, strings.ReplaceAll(quoted, " ", `\s+`))
	}
	if len(aliases) == 0 {
		return nil, nil
	}

	expr := `(?i)(?:^|[^a-z0-9])(?:` + strings.Join(aliases, "|") + `)(?:[^a-z0-9]|$)`
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("term %q: %w", term, err)
	}
	return re, nil
}
