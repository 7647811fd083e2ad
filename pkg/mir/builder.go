// Instruction building and mutation primitives.
// Every structural edit to a function (insert, erase, operand change)
// goes through a Builder, which keeps the register def/use info current
// and reports the edit to an attached Observer before the next edit can
// be observed out of date.
package mir

// Observer is notified of every instruction-level edit performed through
// a Builder. ChangingInstr fires before an in-place mutation and
// ChangedInstr after it; ErasingInstr fires while the instruction is
// still attached to its block.
type Observer interface {
	CreatedInstr(*Instr)
	ErasingInstr(*Instr)
	ChangingInstr(*Instr)
	ChangedInstr(*Instr)
}

// Builder inserts and mutates instructions at a movable insert point
type Builder struct {
	fn  *Function
	obs Observer

	blk *Block
	idx int
}

// NewBuilder creates a builder for fn. obs may be nil.
func NewBuilder(fn *Function, obs Observer) *Builder {
	return &Builder{fn: fn, obs: obs}
}

// Func returns the function being built
func (b *Builder) Func() *Function {
	return b.fn
}

// StopObserving detaches the observer. Used on the failure path so that
// diagnostics cannot trigger further notifications.
func (b *Builder) StopObserving() {
	b.obs = nil
}

// SetInsertPoint places the insert point before index idx in blk;
// idx == len(blk.Instrs) appends
func (b *Builder) SetInsertPoint(blk *Block, idx int) {
	b.blk = blk
	b.idx = idx
}

// SetInsertBefore places the insert point immediately before in
func (b *Builder) SetInsertBefore(in *Instr) {
	blk := in.block
	for i, other := range blk.Instrs {
		if other == in {
			b.SetInsertPoint(blk, i)
			return
		}
	}
}

// Append places the insert point at the end of blk
func (b *Builder) Append(blk *Block) {
	b.SetInsertPoint(blk, len(blk.Instrs))
}

// Insert splices in at the insert point, records its defs and uses, and
// notifies the observer. The insert point advances past it.
func (b *Builder) Insert(in *Instr) *Instr {
	blk := b.blk
	blk.Instrs = append(blk.Instrs, nil)
	copy(blk.Instrs[b.idx+1:], blk.Instrs[b.idx:])
	blk.Instrs[b.idx] = in
	in.block = blk
	b.idx++
	b.fn.registerInstr(in)
	if b.obs != nil {
		b.obs.CreatedInstr(in)
	}
	return in
}

// BuildInstr builds and inserts a plain register-operand instruction
func (b *Builder) BuildInstr(op Opcode, defs []Reg, uses []Reg) *Instr {
	return b.Insert(&Instr{Op: op, Defs: defs, Uses: uses})
}

// BuildBinOp builds dst = op lhs, rhs
func (b *Builder) BuildBinOp(op Opcode, dst, lhs, rhs Reg) *Instr {
	return b.BuildInstr(op, []Reg{dst}, []Reg{lhs, rhs})
}

// BuildConst builds dst = const v
func (b *Builder) BuildConst(dst Reg, v int64) *Instr {
	return b.Insert(&Instr{Op: Gconst, Defs: []Reg{dst}, Imm: v})
}

// BuildUndef builds dst = implicit_def
func (b *Builder) BuildUndef(dst Reg) *Instr {
	return b.Insert(&Instr{Op: Gimplicitdef, Defs: []Reg{dst}})
}

// Erase detaches in from its block and drops its register info. The
// observer is notified first.
func (b *Builder) Erase(in *Instr) {
	if b.obs != nil {
		b.obs.ErasingInstr(in)
	}
	f := b.fn
	f.removeUses(in)
	for _, d := range in.Defs {
		if f.defs[d] == in {
			delete(f.defs, d)
		}
	}
	blk := in.block
	for i, other := range blk.Instrs {
		if other == in {
			blk.Instrs = append(blk.Instrs[:i], blk.Instrs[i+1:]...)
			if blk == b.blk && i < b.idx {
				b.idx--
			}
			break
		}
	}
	in.block = nil
}

// SetUse rewrites operand i of in to r, with change notifications
func (b *Builder) SetUse(in *Instr, i int, r Reg) {
	if b.obs != nil {
		b.obs.ChangingInstr(in)
	}
	f := b.fn
	f.removeUses(in)
	in.Uses[i] = r
	f.addUses(in)
	if b.obs != nil {
		b.obs.ChangedInstr(in)
	}
}

// ReplaceAllUses rewrites every read of from into a read of to. Each
// affected instruction gets one changing/changed notification pair no
// matter how many of its operands mention from.
func (b *Builder) ReplaceAllUses(from, to Reg) {
	f := b.fn
	for len(f.users[from]) > 0 {
		u := f.users[from][0]
		if b.obs != nil {
			b.obs.ChangingInstr(u)
		}
		f.removeUses(u)
		for i, r := range u.Uses {
			if r == from {
				u.Uses[i] = to
			}
		}
		f.addUses(u)
		if b.obs != nil {
			b.obs.ChangedInstr(u)
		}
	}
}
