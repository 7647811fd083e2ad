// YAML rule file loading.
//
// A rule file is an ordered list matching the RuleSet semantics:
//
//	rules:
//	  - op: add
//	    types: [s32, s64]
//	    action: legal
//	  - op: add
//	    below: 32
//	    action: widen
//	    to: s32
//	  - op: sub
//	    action: lower
//	  - op: select
//	    action: custom
//	    name: expand-select
//
// Custom actions name a callback registered in the Registry.
package target

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-mir/pkg/legalize"
	"github.com/raymyers/ralph-mir/pkg/mir"
)

type ruleFile struct {
	Pass  string     `yaml:"pass,omitempty"`
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	Op     string   `yaml:"op"`
	Types  []string `yaml:"types,omitempty"`
	Below  int      `yaml:"below,omitempty"`
	Action string   `yaml:"action"`
	To     string   `yaml:"to,omitempty"`
	Name   string   `yaml:"name,omitempty"`
}

var actionKinds = map[string]legalize.ActionKind{
	"legal":       legalize.ActionLegal,
	"widen":       legalize.ActionWiden,
	"narrow":      legalize.ActionNarrow,
	"lower":       legalize.ActionLower,
	"custom":      legalize.ActionCustom,
	"unsupported": legalize.ActionUnsupported,
}

// Load reads a YAML rule file. reg may be nil if the file uses no
// custom actions.
func Load(path string, reg *Registry) (*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rs, err := Decode(f, reg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// Decode reads YAML rules from r with strict field checking
func Decode(r io.Reader, reg *Registry) (*RuleSet, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file ruleFile
	if err := dec.Decode(&file); err != nil {
		return nil, err
	}
	if file.Pass != "" && file.Pass != "legalize" {
		return nil, fmt.Errorf("rule file is for pass %q, not legalize", file.Pass)
	}
	rs := New()
	for i, spec := range file.Rules {
		rule, err := spec.toRule(reg)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		rs.Add(rule)
	}
	return rs, nil
}

func (spec ruleSpec) toRule(reg *Registry) (Rule, error) {
	op, ok := mir.OpcodeByName(spec.Op)
	if !ok {
		return Rule{}, fmt.Errorf("unknown opcode %q", spec.Op)
	}
	kind, ok := actionKinds[spec.Action]
	if !ok {
		return Rule{}, fmt.Errorf("unknown action %q", spec.Action)
	}
	rule := Rule{Op: op, Below: spec.Below, Action: kind}
	for _, ts := range spec.Types {
		t, err := mir.ParseType(ts)
		if err != nil {
			return Rule{}, err
		}
		rule.Types = append(rule.Types, t)
	}
	if kind == legalize.ActionWiden {
		if spec.To == "" {
			return Rule{}, fmt.Errorf("widen rule for %q needs 'to'", spec.Op)
		}
		to, err := mir.ParseType(spec.To)
		if err != nil {
			return Rule{}, err
		}
		rule.To = to
	}
	if kind == legalize.ActionCustom {
		if spec.Name == "" {
			return Rule{}, fmt.Errorf("custom rule for %q needs 'name'", spec.Op)
		}
		if reg == nil {
			return Rule{}, fmt.Errorf("custom rule %q but no registry", spec.Name)
		}
		fn, ok := reg.lookup(spec.Name)
		if !ok {
			return Rule{}, fmt.Errorf("custom callback %q not registered", spec.Name)
		}
		rule.custom = fn
	}
	return rule, nil
}
