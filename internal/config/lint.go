package config

import "fmt"

// LintError is a non-fatal configuration finding.
type LintError struct {
	Path    string
	Message string
}

func (e LintError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Lint reports rules that can never match and other suspicious but valid
// setups. A rule without predicates matches every window, so anything after
// it is unreachable; the rule order is kept as written.
func (c *Config) Lint() []LintError {
	var out []LintError
	names := map[string]int{}
	for i, r := range c.Rules {
		if r.Name != "" {
			if first, ok := names[r.Name]; ok {
				out = append(out, LintError{
					Path:    fmt.Sprintf("rules[%d]", i),
					Message: fmt.Sprintf("name %q already used by rules[%d]", r.Name, first),
				})
			} else {
				names[r.Name] = i
			}
		}
		if !r.HasPredicates() && i < len(c.Rules)-1 {
			out = append(out, LintError{
				Path: fmt.Sprintf("rules[%d]", i),
				Message: fmt.Sprintf("%s has no predicates and matches every window; %d later rule(s) are unreachable",
					r.Label(i), len(c.Rules)-1-i),
			})
		}
	}
	if len(c.Rules) == 0 && c.Sound == "" {
		out = append(out, LintError{Message: "no sound and no rules configured; bells will be silent"})
	}
	return out
}
