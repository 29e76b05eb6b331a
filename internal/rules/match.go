package rules

import (
	"github.com/onion108/onionbell/internal/config"
	"github.com/onion108/onionbell/internal/state"
)

// Selection is the outcome of evaluating a rule set against one window.
type Selection struct {
	// Sound is the file to play; empty means the bell stays silent.
	Sound  string
	Volume float64
	// Rule is the index of the matching rule, -1 when the default applied.
	Rule     int
	RuleName string
}

// Silent reports whether nothing should be played.
func (s Selection) Silent() bool {
	return s.Sound == ""
}

// Matched reports whether a rule, rather than the default, decided.
func (s Selection) Matched() bool {
	return s.Rule >= 0
}

// Select returns the sound of the first rule matching win, even when that
// rule has no sound, or the set's default when no rule matches.
func Select(win state.Window, set *Set) Selection {
	if set == nil {
		return Selection{Rule: -1, RuleName: DefaultRuleName}
	}
	for i := range set.Rules {
		rule := &set.Rules[i]
		if rule.Matches(win) {
			return Selection{
				Sound:    rule.Sound,
				Volume:   rule.Volume,
				Rule:     i,
				RuleName: rule.Name,
			}
		}
	}
	return Selection{
		Sound:    set.Sound,
		Volume:   set.Volume,
		Rule:     -1,
		RuleName: DefaultRuleName,
	}
}

// Matches reports whether every declared predicate holds for win.
func (r *Rule) Matches(win state.Window) bool {
	if r.Workspace != nil && !workspaceMatches(*r.Workspace, win.Workspace) {
		return false
	}
	if r.Floating != nil && *r.Floating != win.Floating {
		return false
	}
	if r.XWayland != nil && *r.XWayland != win.XWayland {
		return false
	}
	if r.Class != nil && !r.Class.MatchString(win.Class) {
		return false
	}
	if r.Title != nil && !r.Title.MatchString(win.Title) {
		return false
	}
	return true
}

func workspaceMatches(sel config.WorkspaceSelector, ws state.Workspace) bool {
	if sel.ID != nil {
		return *sel.ID == ws.ID
	}
	return sel.Name == ws.Name
}
