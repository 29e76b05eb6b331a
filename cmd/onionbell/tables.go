package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/onion108/onionbell/internal/config"
	"github.com/onion108/onionbell/internal/rules"
	"github.com/onion108/onionbell/internal/sound"
)

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleRounded),
		})),
		tablewriter.WithPadding(tw.Padding{Left: " ", Right: " "}),
	)
}

func renderRules(w io.Writer, cfg *config.Config) error {
	t := newTable(w)
	t.Header([]string{"#", "Rule", "Predicates", "Sound", "Volume"})
	for i, rc := range cfg.Rules {
		snd := rc.Sound
		if snd == "" {
			snd = "(silent)"
		}
		_ = t.Append([]string{
			strconv.Itoa(i),
			rc.Label(i),
			describePredicates(rc),
			snd,
			formatVolume(rc.RuleVolume()),
		})
	}
	def := cfg.Sound
	if def == "" {
		def = "(silent)"
	}
	_ = t.Append([]string{"-", rules.DefaultRuleName, "no rule matched", def, formatVolume(cfg.Volume)})
	return t.Render()
}

func renderSounds(w io.Writer, checks []sound.Check) error {
	t := newTable(w)
	t.Header([]string{"Sound", "Format", "Size", "Status"})
	for _, c := range checks {
		status := "ok"
		if !c.OK() {
			status = c.Err.Error()
		}
		_ = t.Append([]string{c.Path, c.Format, c.HumanSize(), status})
	}
	return t.Render()
}

func renderTraces(w io.Writer, traces []rules.Trace) error {
	t := newTable(w)
	t.Header([]string{"#", "Rule", "Result", "Failed predicates"})
	for _, tr := range traces {
		result := "no match"
		switch {
		case tr.Selected:
			result = "selected"
		case tr.Matched && tr.Shadowed:
			result = "match (shadowed)"
		case tr.Shadowed:
			result = "not reached"
		}
		_ = t.Append([]string{strconv.Itoa(tr.Index), tr.Rule, result, strings.Join(tr.Failed, "; ")})
	}
	return t.Render()
}

func describePredicates(rc config.RuleConfig) string {
	if !rc.HasPredicates() {
		return "* (every window)"
	}
	var parts []string
	if ws, err := rc.WorkspaceSelector(); err == nil && ws != nil {
		parts = append(parts, "workspace="+ws.String())
	}
	if rc.Floating != nil {
		parts = append(parts, fmt.Sprintf("floating=%t", *rc.Floating))
	}
	if rc.XWayland != nil {
		parts = append(parts, fmt.Sprintf("xwayland=%t", *rc.XWayland))
	}
	if rc.ClassRegex != "" {
		parts = append(parts, "class~"+rc.ClassRegex)
	}
	if rc.TitleRegex != "" {
		parts = append(parts, "title~"+rc.TitleRegex)
	}
	return strings.Join(parts, " ")
}

func formatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
