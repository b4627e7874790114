// Package safety provides the content-safety filter applied to generative
// output before it is persisted. The pipeline consumes the filter as a
// black box: any implementation of Checker can be swapped in.
package safety

import (
	"regexp"
	"strings"
)

// Result is the outcome of checking one block of text.
type Result struct {
	Passed     bool     `json:"passed"`
	Violations []string `json:"violations,omitempty"`
	Clean      string   `json:"clean,omitempty"`
}

// Checker filters free text against content-safety rules.
type Checker interface {
	Check(text string) Result
}

// rule pairs a violation label with the pattern that detects it.
type rule struct {
	name    string
	pattern *regexp.Regexp
}

// RuleChecker is the default rule-based Checker. It flags sentences that
// carry quantitative dosage, procurement, or synthesis guidance and
// returns the text with those sentences removed.
type RuleChecker struct {
	rules []rule
}

// NewRuleChecker builds the default rule set.
func NewRuleChecker() *RuleChecker {
	return &RuleChecker{
		rules: []rule{
			{
				name:    "quantitative_dosage",
				pattern: regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s*(-\s*\d+(\.\d+)?\s*)?(mg|µg|ug|mcg|g|grams?|ml|milligrams?|micrograms?)\b`),
			},
			{
				name:    "procurement",
				pattern: regexp.MustCompile(`(?i)\b(buy|purchase|order|vendor|supplier|darknet|dark web|for sale)\b`),
			},
			{
				name:    "synthesis",
				pattern: regexp.MustCompile(`(?i)\b(synthesi[sz]e|synthesis route|precursor|extraction procedure|how to extract|recrystalli[sz])`),
			},
		},
	}
}

var sentenceSplitRe = regexp.MustCompile(`(?s)[^.!?]*[.!?]+|[^.!?]+$`)

// Check scans the text sentence by sentence. If any sentence trips a rule,
// the result fails, lists the distinct violations, and carries a cleaned
// variant with the offending sentences dropped.
func (c *RuleChecker) Check(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Passed: true}
	}

	violations := map[string]bool{}
	var kept []string

	for _, sentence := range sentenceSplitRe.FindAllString(text, -1) {
		flagged := false
		for _, r := range c.rules {
			if r.pattern.MatchString(sentence) {
				violations[r.name] = true
				flagged = true
			}
		}
		if !flagged {
			kept = append(kept, strings.TrimSpace(sentence))
		}
	}

	if len(violations) == 0 {
		return Result{Passed: true}
	}

	names := make([]string, 0, len(violations))
	for _, r := range c.rules {
		if violations[r.name] {
			names = append(names, r.name)
		}
	}

	return Result{
		Passed:     false,
		Violations: names,
		Clean:      strings.Join(kept, " "),
	}
}
