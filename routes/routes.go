// Package routes compiles route patterns and finds the rule that governs a
// path. Rules are evaluated in declaration order and the first match wins;
// there is no most-specific-match heuristic.
package routes

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jrsteele09/go-auth-guard/flags"
	guarderrors "github.com/jrsteele09/go-auth-guard/internal/errors"
)

// Access is the classification applied to paths no rule matches.
type Access string

const (
	AccessPublic    Access = "public"
	AccessProtected Access = "protected"
)

// Pattern is either a literal/wildcard string or a regular expression.
type Pattern struct {
	text  string
	regex *regexp.Regexp
}

// Literal matches the exact string; each '*' matches any run of characters,
// including '/' and the empty string.
func Literal(s string) Pattern {
	return Pattern{text: s}
}

// Regex uses re as-is. It is not anchored unless re anchors itself.
func Regex(re *regexp.Regexp) Pattern {
	return Pattern{regex: re}
}

// MustRegex compiles expr and panics on error. Intended for static rule tables.
func MustRegex(expr string) Pattern {
	return Regex(regexp.MustCompile(expr))
}

func (p Pattern) IsRegex() bool {
	return p.regex != nil
}

func (p Pattern) String() string {
	if p.regex != nil {
		return "/" + p.regex.String() + "/"
	}
	return p.text
}

// ToRegexp turns a pattern into the expression used for matching.
func ToRegexp(p Pattern) (*regexp.Regexp, error) {
	if p.regex != nil {
		return p.regex, nil
	}
	escaped := regexp.QuoteMeta(p.text)
	if strings.Contains(p.text, "*") {
		// s flag: a wildcard also spans newlines decoded from the path.
		escaped = "(?s)" + strings.ReplaceAll(escaped, `\*`, ".*")
	}
	re, err := regexp.Compile("^" + escaped + "$")
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", p.text, guarderrors.ErrInvalidRoutePattern)
	}
	return re, nil
}

// Rule governs the paths its pattern matches.
type Rule struct {
	Match       Pattern
	Public      bool
	FeatureFlag *flags.Requirement
	// RedirectTo is used when FeatureFlag evaluates false. Empty means "/".
	RedirectTo string
}

// RedirectTarget returns where a failed flag requirement sends the user.
func (r Rule) RedirectTarget() string {
	if r.RedirectTo == "" {
		return "/"
	}
	return r.RedirectTo
}

// GuardConfig is an ordered rule table plus the fallback classification.
type GuardConfig struct {
	Rules         []Rule
	DefaultAccess Access
}

// DefaultGuardConfig protects everything.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{DefaultAccess: AccessProtected}
}

// IsPublicByDefault reports the classification of unmatched paths. An unset
// DefaultAccess means protected.
func (c GuardConfig) IsPublicByDefault() bool {
	return c.DefaultAccess == AccessPublic
}

// FindMatchingRule compiles the rules of cfg and returns the first one whose
// pattern matches the whole path. Rules whose pattern fails to compile never
// match. Prefer Compile for repeated lookups.
func FindMatchingRule(path string, cfg GuardConfig) (*Rule, bool) {
	for i := range cfg.Rules {
		re, err := ToRegexp(cfg.Rules[i].Match)
		if err != nil {
			continue
		}
		if re.MatchString(path) {
			return &cfg.Rules[i], true
		}
	}
	return nil, false
}

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// Matcher is a compiled GuardConfig. It is immutable and safe for concurrent use.
type Matcher struct {
	rules         []compiledRule
	defaultAccess Access
}

// Compile validates every pattern of cfg up front.
func Compile(cfg GuardConfig) (*Matcher, error) {
	m := &Matcher{
		rules:         make([]compiledRule, 0, len(cfg.Rules)),
		defaultAccess: cfg.DefaultAccess,
	}
	if m.defaultAccess == "" {
		m.defaultAccess = AccessProtected
	}
	if m.defaultAccess != AccessPublic && m.defaultAccess != AccessProtected {
		return nil, fmt.Errorf("defaultAccess %q must be %q or %q", cfg.DefaultAccess, AccessPublic, AccessProtected)
	}
	for i, rule := range cfg.Rules {
		re, err := ToRegexp(rule.Match)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		m.rules = append(m.rules, compiledRule{rule: rule, re: re})
	}
	return m, nil
}

// Find returns the first rule matching path.
func (m *Matcher) Find(path string) (Rule, bool) {
	for _, cr := range m.rules {
		if cr.re.MatchString(path) {
			return cr.rule, true
		}
	}
	return Rule{}, false
}

// IsPublic classifies path: a matching rule decides, otherwise DefaultAccess.
func (m *Matcher) IsPublic(path string) bool {
	if rule, ok := m.Find(path); ok {
		return rule.Public
	}
	return m.defaultAccess == AccessPublic
}

func (m *Matcher) DefaultAccess() Access {
	return m.defaultAccess
}

func (m *Matcher) Len() int {
	return len(m.rules)
}
