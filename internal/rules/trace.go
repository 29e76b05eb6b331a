package rules

import (
	"fmt"

	"github.com/onion108/onionbell/internal/state"
)

// Trace records how a single rule evaluated against a window. Shadowed is set
// for rules after the selected one, which Select never consults.
type Trace struct {
	Index    int      `json:"index"`
	Rule     string   `json:"rule"`
	Matched  bool     `json:"matched"`
	Selected bool     `json:"selected"`
	Shadowed bool     `json:"shadowed,omitempty"`
	Failed   []string `json:"failed,omitempty"`
	Sound    string   `json:"sound,omitempty"`
}

// Explain evaluates every rule against win and reports which predicates
// failed. The selected entry agrees with Select.
func Explain(win state.Window, set *Set) []Trace {
	if set == nil {
		return nil
	}
	out := make([]Trace, 0, len(set.Rules))
	selected := -1
	for i := range set.Rules {
		rule := &set.Rules[i]
		failed := rule.mismatches(win)
		entry := Trace{
			Index:   i,
			Rule:    rule.Name,
			Matched: len(failed) == 0,
			Failed:  failed,
			Sound:   rule.Sound,
		}
		switch {
		case selected >= 0:
			entry.Shadowed = true
		case entry.Matched:
			entry.Selected = true
			selected = i
		}
		out = append(out, entry)
	}
	return out
}

func (r *Rule) mismatches(win state.Window) []string {
	var failed []string
	if r.Workspace != nil && !workspaceMatches(*r.Workspace, win.Workspace) {
		failed = append(failed, fmt.Sprintf("workspace %s != %d (%q)", r.Workspace, win.Workspace.ID, win.Workspace.Name))
	}
	if r.Floating != nil && *r.Floating != win.Floating {
		failed = append(failed, fmt.Sprintf("floating %t != %t", *r.Floating, win.Floating))
	}
	if r.XWayland != nil && *r.XWayland != win.XWayland {
		failed = append(failed, fmt.Sprintf("xwayland %t != %t", *r.XWayland, win.XWayland))
	}
	if r.Class != nil && !r.Class.MatchString(win.Class) {
		failed = append(failed, fmt.Sprintf("class_regex %q does not match %q", r.Class, win.Class))
	}
	if r.Title != nil && !r.Title.MatchString(win.Title) {
		failed = append(failed, fmt.Sprintf("title_regex %q does not match %q", r.Title, win.Title))
	}
	return failed
}
