package compiler

import (
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
)

// RuleFunc is a step preparing a select for code generation. Errors are
// recorded in the Parse.
type RuleFunc func(*sql.Context, *Parse, *tree.Select)

// Rule to prepare selects.
type Rule struct {
	// Name of the rule.
	Name string
	// Apply runs the rule.
	Apply RuleFunc
}

// PrepareRules run, in order, before a select is compiled.
var PrepareRules = []Rule{
	{"expand_select", expandSelectRule},
	{"resolve_names", resolveNamesRule},
	{"add_type_info", addTypeInfoRule},
}

func expandSelectRule(ctx *sql.Context, p *Parse, sel *tree.Select) {
	p.expandSelect(sel)
}

func resolveNamesRule(ctx *sql.Context, p *Parse, sel *tree.Select) {
	p.resolveSelect(sel, nil)
}

func addTypeInfoRule(ctx *sql.Context, p *Parse, sel *tree.Select) {
	p.addTypeInfo(sel)
}

// prepare runs the prepare rules over a select that was not prepared
// yet, stopping at the first rule that records an error.
func (p *Parse) prepare(sel *tree.Select) {
	if sel.HasFlag(tree.SFHasTypeInfo) {
		return
	}

	span, ctx := p.ctx.Span("compile.prepare")
	defer span.Finish()

	for _, rule := range PrepareRules {
		rspan, rctx := ctx.Span(rule.Name)
		rule.Apply(rctx, p, sel)
		rspan.Finish()
		if p.Failed() {
			p.log().WithField("rule", rule.Name).Debug("prepare failed")
			return
		}
	}
}
