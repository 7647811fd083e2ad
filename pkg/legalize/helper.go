// Per-instruction legalization protocol.
package legalize

import (
	"go.uber.org/zap"

	"github.com/raymyers/ralph-mir/pkg/mir"
)

// StepResult is the outcome of legalizing one instruction
type StepResult int

const (
	// AlreadyLegal means the instruction needed no rewrite
	AlreadyLegal StepResult = iota
	// Legalized means the instruction was rewritten into legal form
	Legalized
	// UnableToLegalize means no rewrite rule applies; fatal to the pass
	UnableToLegalize
)

func (r StepResult) String() string {
	switch r {
	case AlreadyLegal:
		return "already legal"
	case Legalized:
		return "legalized"
	}
	return "unable to legalize"
}

// ActionKind says how an instruction must be brought into legal form
type ActionKind int

const (
	// ActionLegal: directly supported by the target
	ActionLegal ActionKind = iota
	// ActionWiden: widen the scalar type, operate, truncate back
	ActionWiden
	// ActionNarrow: split into narrower operations (unimplemented)
	ActionNarrow
	// ActionLower: expand into simpler generic instructions
	ActionLower
	// ActionCustom: target-supplied rewrite callback
	ActionCustom
	// ActionUnsupported: the target cannot express this at all
	ActionUnsupported
)

// Action pairs an ActionKind with its type parameter (the widened type
// for ActionWiden)
type Action struct {
	Kind ActionKind
	Type mir.Type
}

// Oracle is the per-target legality authority. The engine treats it as
// opaque: Action classifies an instruction, LegalizeCustom performs a
// target-supplied rewrite through the builder (so every edit is
// observed).
type Oracle interface {
	Action(in *mir.Instr, fn *mir.Function) Action
	LegalizeCustom(b *mir.Builder, in *mir.Instr) bool
}

// helper rewrites a single instruction according to the oracle's
// verdict. It never touches the instruction list except through the
// builder, so the worklists see every edit before the next pop.
type helper struct {
	b      *mir.Builder
	oracle Oracle
	log    *zap.Logger
}

// step legalizes one instruction
func (h *helper) step(in *mir.Instr) StepResult {
	action := h.oracle.Action(in, h.b.Func())
	switch action.Kind {
	case ActionLegal:
		h.log.Debug("already legal", zap.Stringer("instr", in))
		return AlreadyLegal
	case ActionWiden:
		return h.widenScalar(in, action.Type)
	case ActionLower:
		return h.lower(in)
	case ActionCustom:
		if h.oracle.LegalizeCustom(h.b, in) {
			return Legalized
		}
		return UnableToLegalize
	default:
		return UnableToLegalize
	}
}

// extOpcodes returns the extension opcodes for widening a binary
// operation's operands. Shift amounts must be zero-extended so the
// widened shift count stays in range; arithmetic right shifts need a
// sign-extended value operand and logical right shifts a zero-extended
// one. Everything else tolerates undefined high bits.
func extOpcodes(op mir.Opcode) (lhs, rhs mir.Opcode, ok bool) {
	switch op {
	case mir.Gadd, mir.Gsub, mir.Gmul, mir.Gand, mir.Gor, mir.Gxor:
		return mir.Ganyext, mir.Ganyext, true
	case mir.Gshl:
		return mir.Ganyext, mir.Gzext, true
	case mir.Glshr:
		return mir.Gzext, mir.Gzext, true
	case mir.Gashr:
		return mir.Gsext, mir.Gzext, true
	}
	return 0, 0, false
}

// widenScalar replaces in with the same operation at a wider scalar
// type, extending the operands and truncating the result back to the
// original width
func (h *helper) widenScalar(in *mir.Instr, wide mir.Type) StepResult {
	fn := h.b.Func()
	dst := in.Def()
	if !wide.Scalar() || !fn.TypeOf(dst).Scalar() || wide.Bits <= fn.TypeOf(dst).Bits {
		return UnableToLegalize
	}

	switch in.Op {
	case mir.Gadd, mir.Gsub, mir.Gmul, mir.Gand, mir.Gor, mir.Gxor,
		mir.Gshl, mir.Glshr, mir.Gashr:
		lhsExt, rhsExt, ok := extOpcodes(in.Op)
		if !ok {
			return UnableToLegalize
		}
		op, lhs, rhs := in.Op, in.Uses[0], in.Uses[1]
		h.b.SetInsertBefore(in)
		h.b.Erase(in)
		wl := fn.NewReg(wide)
		h.b.BuildInstr(lhsExt, []mir.Reg{wl}, []mir.Reg{lhs})
		wr := fn.NewReg(wide)
		h.b.BuildInstr(rhsExt, []mir.Reg{wr}, []mir.Reg{rhs})
		wd := fn.NewReg(wide)
		h.b.BuildBinOp(op, wd, wl, wr)
		h.b.BuildInstr(mir.Gtrunc, []mir.Reg{dst}, []mir.Reg{wd})
		h.log.Debug("widened", zap.Stringer("op", op), zap.Stringer("to", wide))
		return Legalized

	case mir.Gconst:
		imm := in.Imm
		h.b.SetInsertBefore(in)
		h.b.Erase(in)
		wc := fn.NewReg(wide)
		h.b.BuildConst(wc, imm)
		h.b.BuildInstr(mir.Gtrunc, []mir.Reg{dst}, []mir.Reg{wc})
		return Legalized
	}
	return UnableToLegalize
}

// lower expands an instruction into simpler generic instructions at the
// same type
func (h *helper) lower(in *mir.Instr) StepResult {
	fn := h.b.Func()
	switch in.Op {
	case mir.Gsub:
		// a - b == a + (~b + 1)
		dst, a, bb := in.Def(), in.Uses[0], in.Uses[1]
		t := fn.TypeOf(dst)
		h.b.SetInsertBefore(in)
		h.b.Erase(in)
		ones := fn.NewReg(t)
		h.b.BuildConst(ones, -1)
		not := fn.NewReg(t)
		h.b.BuildBinOp(mir.Gxor, not, bb, ones)
		one := fn.NewReg(t)
		h.b.BuildConst(one, 1)
		neg := fn.NewReg(t)
		h.b.BuildBinOp(mir.Gadd, neg, not, one)
		h.b.BuildBinOp(mir.Gadd, dst, a, neg)
		return Legalized
	}
	return UnableToLegalize
}
