// Package target supplies the per-target side of legalization: an
// ordered rule table implementing the legality oracle, a registry of
// custom rewrite callbacks, and YAML loading for rule files. The engine
// in pkg/legalize consumes a RuleSet purely through the Oracle
// interface.
package target

import (
	"github.com/raymyers/ralph-mir/pkg/legalize"
	"github.com/raymyers/ralph-mir/pkg/mir"
)

// CustomFn is a target-supplied rewrite. It must perform every edit
// through the builder and report whether it succeeded.
type CustomFn func(b *mir.Builder, in *mir.Instr) bool

// Registry maps names used in rule files to custom rewrite callbacks
type Registry struct {
	fns map[string]CustomFn
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{fns: make(map[string]CustomFn)}
}

// Register adds a named callback, replacing any previous entry
func (r *Registry) Register(name string, fn CustomFn) {
	r.fns[name] = fn
}

func (r *Registry) lookup(name string) (CustomFn, bool) {
	fn, ok := r.fns[name]
	return fn, ok
}

// Rule is one row of the legality table. A rule applies to instructions
// of its opcode whose primary type passes the Types/Below filters; an
// empty filter matches any type.
type Rule struct {
	Op     mir.Opcode
	Types  []mir.Type // match exactly one of these, if non-empty
	Below  int        // match scalars narrower than this, if non-zero
	Action legalize.ActionKind
	To     mir.Type // widened type for ActionWiden

	custom CustomFn
}

func (r *Rule) matches(op mir.Opcode, t mir.Type) bool {
	if r.Op != op {
		return false
	}
	if len(r.Types) > 0 {
		found := false
		for _, want := range r.Types {
			if want == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.Below > 0 && (!t.Scalar() || t.Bits >= r.Below) {
		return false
	}
	return true
}

// RuleSet is an ordered legality table; the first matching rule wins
// and instructions matching no rule are unsupported. It implements
// legalize.Oracle.
type RuleSet struct {
	rules []Rule
}

// New creates an empty rule set
func New() *RuleSet {
	return &RuleSet{}
}

// Add appends a rule
func (rs *RuleSet) Add(r Rule) {
	rs.rules = append(rs.rules, r)
}

// Legal marks op as directly supported at the given types (any type if
// none given)
func (rs *RuleSet) Legal(op mir.Opcode, types ...mir.Type) {
	rs.Add(Rule{Op: op, Types: types, Action: legalize.ActionLegal})
}

// Widen requests scalar widening to the given type
func (rs *RuleSet) Widen(op mir.Opcode, to mir.Type, types ...mir.Type) {
	rs.Add(Rule{Op: op, Types: types, Action: legalize.ActionWiden, To: to})
}

// WidenBelow requests widening of scalars narrower than bits
func (rs *RuleSet) WidenBelow(op mir.Opcode, bits int, to mir.Type) {
	rs.Add(Rule{Op: op, Below: bits, Action: legalize.ActionWiden, To: to})
}

// Lower requests expansion into simpler generic instructions
func (rs *RuleSet) Lower(op mir.Opcode, types ...mir.Type) {
	rs.Add(Rule{Op: op, Types: types, Action: legalize.ActionLower})
}

// Custom attaches a target-supplied rewrite callback
func (rs *RuleSet) Custom(op mir.Opcode, fn CustomFn, types ...mir.Type) {
	rs.Add(Rule{Op: op, Types: types, Action: legalize.ActionCustom, custom: fn})
}

// Unsupported marks op as not expressible by the target
func (rs *RuleSet) Unsupported(op mir.Opcode, types ...mir.Type) {
	rs.Add(Rule{Op: op, Types: types, Action: legalize.ActionUnsupported})
}

// primaryType is the type a rule filters on: the first result, or the
// stored value for stores
func primaryType(in *mir.Instr, fn *mir.Function) mir.Type {
	if len(in.Defs) > 0 {
		return fn.TypeOf(in.Defs[0])
	}
	if in.Op == mir.Gstore && len(in.Uses) > 0 {
		return fn.TypeOf(in.Uses[0])
	}
	return mir.Type{}
}

func (rs *RuleSet) find(in *mir.Instr, fn *mir.Function) *Rule {
	t := primaryType(in, fn)
	for i := range rs.rules {
		if rs.rules[i].matches(in.Op, t) {
			return &rs.rules[i]
		}
	}
	return nil
}

// Action implements legalize.Oracle
func (rs *RuleSet) Action(in *mir.Instr, fn *mir.Function) legalize.Action {
	r := rs.find(in, fn)
	if r == nil {
		return legalize.Action{Kind: legalize.ActionUnsupported}
	}
	return legalize.Action{Kind: r.Action, Type: r.To}
}

// LegalizeCustom implements legalize.Oracle
func (rs *RuleSet) LegalizeCustom(b *mir.Builder, in *mir.Instr) bool {
	r := rs.find(in, b.Func())
	if r == nil || r.Action != legalize.ActionCustom || r.custom == nil {
		return false
	}
	return r.custom(b, in)
}
