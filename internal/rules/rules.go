package rules

import (
	"regexp"

	"github.com/cockroachdb/errors"

	"github.com/onion108/onionbell/internal/config"
)

// DefaultRuleName labels selections that fell through to the default sound.
const DefaultRuleName = "default"

// Rule represents a compiled rule ready for evaluation.
type Rule struct {
	Name      string
	Class     *regexp.Regexp
	Title     *regexp.Regexp
	Floating  *bool
	XWayland  *bool
	Workspace *config.WorkspaceSelector
	// Sound is empty when a match should silence the bell.
	Sound  string
	Volume float64
}

// Wildcard reports whether the rule matches every window.
func (r Rule) Wildcard() bool {
	return r.Class == nil && r.Title == nil && r.Floating == nil && r.XWayland == nil && r.Workspace == nil
}

// Set is the immutable, ordered rule list plus the fallback sound.
type Set struct {
	Sound  string
	Volume float64
	Rules  []Rule
}

// Build compiles configuration into an executable rule set.
func Build(cfg *config.Config) (*Set, error) {
	set := &Set{
		Sound:  cfg.Sound,
		Volume: cfg.Volume,
		Rules:  make([]Rule, 0, len(cfg.Rules)),
	}
	for i, rc := range cfg.Rules {
		rule, err := buildRule(i, rc)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %s", rc.Label(i))
		}
		set.Rules = append(set.Rules, rule)
	}
	return set, nil
}

func buildRule(index int, rc config.RuleConfig) (Rule, error) {
	rule := Rule{
		Name:     rc.Label(index),
		Floating: rc.Floating,
		XWayland: rc.XWayland,
		Sound:    rc.Sound,
		Volume:   rc.RuleVolume(),
	}
	var err error
	if rc.ClassRegex != "" {
		if rule.Class, err = regexp.Compile(rc.ClassRegex); err != nil {
			return Rule{}, errors.Wrap(err, "class_regex")
		}
	}
	if rc.TitleRegex != "" {
		if rule.Title, err = regexp.Compile(rc.TitleRegex); err != nil {
			return Rule{}, errors.Wrap(err, "title_regex")
		}
	}
	if rule.Workspace, err = rc.WorkspaceSelector(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}
