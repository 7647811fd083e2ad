// Package mir defines a generic (pre-instruction-selection) machine IR.
// MIR is a CFG of basic blocks holding instructions over typed virtual
// registers, in the style of LLVM's GlobalISel generic machine instructions.
// Target-specific opcodes live in a separate numeric space and are opaque
// to the generic passes.
package mir

import "fmt"

// Reg represents a virtual register (positive integer, infinite supply)
type Reg int

// NoReg is the invalid register.
const NoReg Reg = 0

func (r Reg) String() string {
	return fmt.Sprintf("%%%d", int(r))
}

// --- Low-level types ---

// TypeKind discriminates the low-level type forms
type TypeKind int

const (
	InvalidType TypeKind = iota
	ScalarType
	PointerType
	VectorType
)

// Type is a low-level type: a scalar of N bits, a pointer of N bits,
// or a vector of scalar elements. Value semantics, comparable.
type Type struct {
	Kind  TypeKind
	Bits  int // scalar width, pointer width, or vector element width
	Elems int // element count for vectors, 0 otherwise
}

// Common types
var (
	S1  = S(1)
	S8  = S(8)
	S16 = S(16)
	S32 = S(32)
	S64 = S(64)
	P64 = P(64)
)

// S returns the scalar type of the given bit width
func S(bits int) Type {
	return Type{Kind: ScalarType, Bits: bits}
}

// P returns the pointer type of the given bit width
func P(bits int) Type {
	return Type{Kind: PointerType, Bits: bits}
}

// V returns the vector type with elems elements of width bits
func V(elems, bits int) Type {
	return Type{Kind: VectorType, Bits: bits, Elems: elems}
}

// Valid reports whether t is a usable type
func (t Type) Valid() bool {
	return t.Kind != InvalidType && t.Bits > 0
}

// Scalar reports whether t is a scalar type
func (t Type) Scalar() bool {
	return t.Kind == ScalarType
}

// Size returns the total width of the type in bits
func (t Type) Size() int {
	if t.Kind == VectorType {
		return t.Bits * t.Elems
	}
	return t.Bits
}

func (t Type) String() string {
	switch t.Kind {
	case ScalarType:
		return fmt.Sprintf("s%d", t.Bits)
	case PointerType:
		return fmt.Sprintf("p%d", t.Bits)
	case VectorType:
		return fmt.Sprintf("<%d x s%d>", t.Elems, t.Bits)
	}
	return "?"
}

// --- Opcodes ---

// Opcode identifies an instruction's operation. Opcodes below
// TargetOpcodeBase are generic and subject to legalization; opcodes at or
// above it are target-specific and invariant to the generic passes.
type Opcode int

const (
	// Integer arithmetic and logic
	Gadd Opcode = iota + 1
	Gsub
	Gmul
	Gand
	Gor
	Gxor
	Gshl
	Glshr
	Gashr

	// Comparison and selection
	Gicmp
	Gselect

	// Constants
	Gconst
	Gimplicitdef

	// Memory
	Gload
	Gstore

	// Calls and barriers
	Gcall
	Gfence

	// Control flow
	Gbr
	Gbrcond
	Gret

	// Format-conversion artifacts
	Gtrunc
	Gzext
	Gsext
	Ganyext
	Gmerge
	Gunmerge
	Gconcat
	Gbuildvec

	numGenericOpcodes
)

// TargetOpcodeBase is the start of the target-specific opcode space
const TargetOpcodeBase Opcode = 1 << 10

// TargetOpcode returns the n-th target-specific opcode
func TargetOpcode(n int) Opcode {
	return TargetOpcodeBase + Opcode(n)
}

// IsGeneric reports whether the opcode belongs to the generic,
// pre-selection instruction set
func (op Opcode) IsGeneric() bool {
	return op > 0 && op < numGenericOpcodes
}

// HasSideEffects reports whether the opcode has an observable effect
// beyond its register results
func (op Opcode) HasSideEffects() bool {
	switch op {
	case Gstore, Gcall, Gfence:
		return true
	}
	return false
}

// IsTerminator reports whether the opcode ends a basic block
func (op Opcode) IsTerminator() bool {
	switch op {
	case Gbr, Gbrcond, Gret:
		return true
	}
	return false
}

var opcodeNames = map[Opcode]string{
	Gadd:         "add",
	Gsub:         "sub",
	Gmul:         "mul",
	Gand:         "and",
	Gor:          "or",
	Gxor:         "xor",
	Gshl:         "shl",
	Glshr:        "lshr",
	Gashr:        "ashr",
	Gicmp:        "icmp",
	Gselect:      "select",
	Gconst:       "const",
	Gimplicitdef: "implicit_def",
	Gload:        "load",
	Gstore:       "store",
	Gcall:        "call",
	Gfence:       "fence",
	Gbr:          "br",
	Gbrcond:      "brcond",
	Gret:         "ret",
	Gtrunc:       "trunc",
	Gzext:        "zext",
	Gsext:        "sext",
	Ganyext:      "anyext",
	Gmerge:       "merge",
	Gunmerge:     "unmerge",
	Gconcat:      "concat",
	Gbuildvec:    "build_vector",
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	return m
}()

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	if op >= TargetOpcodeBase {
		return fmt.Sprintf("t%d", int(op-TargetOpcodeBase))
	}
	return fmt.Sprintf("op%d", int(op))
}

// OpcodeByName returns the generic opcode with the given textual name
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

// --- Comparison predicates ---

// Pred is an integer comparison predicate for Gicmp
type Pred int

const (
	PredEQ Pred = iota
	PredNE
	PredSLT
	PredSLE
	PredSGT
	PredSGE
	PredULT
	PredULE
	PredUGT
	PredUGE
)

var predNames = []string{"eq", "ne", "slt", "sle", "sgt", "sge", "ult", "ule", "ugt", "uge"}

func (p Pred) String() string {
	if int(p) < len(predNames) {
		return predNames[p]
	}
	return "?"
}

// PredByName returns the predicate with the given textual name
func PredByName(name string) (Pred, bool) {
	for i, n := range predNames {
		if n == name {
			return Pred(i), true
		}
	}
	return 0, false
}

// --- Instructions ---

// Instr is a single machine instruction. Instructions are mutable in
// place; identity is pointer identity and survives mutation but not
// erasure. All structural edits must go through a Builder so that the
// attached observer sees them.
type Instr struct {
	Op      Opcode
	Defs    []Reg    // result registers (unmerge has several)
	Uses    []Reg    // operand registers
	Imm     int64    // immediate for Gconst
	Pred    Pred     // predicate for Gicmp
	Callee  string   // symbol for Gcall
	Targets []*Block // branch targets for Gbr/Gbrcond

	block *Block
}

// Block returns the basic block holding the instruction, or nil once it
// has been erased
func (in *Instr) Block() *Block {
	return in.block
}

// Def returns the first result register, or NoReg
func (in *Instr) Def() Reg {
	if len(in.Defs) == 0 {
		return NoReg
	}
	return in.Defs[0]
}

// --- Basic blocks ---

// Block is a basic block: an ordered sequence of instructions ending in
// a terminator
type Block struct {
	ID     int
	Instrs []*Instr

	fn *Function
}

// Name returns the block's label
func (b *Block) Name() string {
	return fmt.Sprintf("bb%d", b.ID)
}

// Func returns the enclosing function
func (b *Block) Func() *Function {
	return b.fn
}

// Terminator returns the block's final instruction if it is a
// terminator, else nil
func (b *Block) Terminator() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if !last.Op.IsTerminator() {
		return nil
	}
	return last
}

// Succs returns the block's successor blocks
func (b *Block) Succs() []*Block {
	t := b.Terminator()
	if t == nil {
		return nil
	}
	return t.Targets
}

// --- Functions and programs ---

// Function is a single MIR function: named, with typed parameter
// registers and an ordered list of basic blocks. The function tracks the
// defining instruction and the users of every virtual register; that
// information is maintained by Builder mutations.
type Function struct {
	Name   string
	Params []Reg
	Blocks []*Block
	Entry  *Block

	types   map[Reg]Type
	defs    map[Reg]*Instr
	users   map[Reg][]*Instr // one entry per use occurrence, in insertion order
	nextReg Reg
}

// NewFunction creates an empty function
func NewFunction(name string) *Function {
	return &Function{
		Name:  name,
		types: make(map[Reg]Type),
		defs:  make(map[Reg]*Instr),
		users: make(map[Reg][]*Instr),
	}
}

// NewBlock appends a new empty block; the first block becomes the entry
func (f *Function) NewBlock() *Block {
	b := &Block{ID: len(f.Blocks), fn: f}
	f.Blocks = append(f.Blocks, b)
	if f.Entry == nil {
		f.Entry = b
	}
	return b
}

// NewReg allocates a fresh virtual register of the given type
func (f *Function) NewReg(t Type) Reg {
	f.nextReg++
	r := f.nextReg
	f.types[r] = t
	return r
}

// NewParam allocates a fresh register and appends it to the parameter list
func (f *Function) NewParam(t Type) Reg {
	r := f.NewReg(t)
	f.Params = append(f.Params, r)
	return r
}

// TypeOf returns the type of a register
func (f *Function) TypeOf(r Reg) Type {
	return f.types[r]
}

// Def returns the instruction defining r, or nil for parameters and
// undefined registers
func (f *Function) Def(r Reg) *Instr {
	return f.defs[r]
}

// HasUses reports whether any instruction reads r
func (f *Function) HasUses(r Reg) bool {
	return len(f.users[r]) > 0
}

// OnlyUser returns the unique instruction reading r, or nil if r has no
// users or more than one distinct user
func (f *Function) OnlyUser(r Reg) *Instr {
	us := f.users[r]
	if len(us) == 0 {
		return nil
	}
	first := us[0]
	for _, u := range us[1:] {
		if u != first {
			return nil
		}
	}
	return first
}

// Users returns the distinct instructions reading r, in first-use order
func (f *Function) Users(r Reg) []*Instr {
	var out []*Instr
	seen := make(map[*Instr]bool)
	for _, u := range f.users[r] {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// registerInstr records in's defs and uses in the register info
func (f *Function) registerInstr(in *Instr) {
	for _, d := range in.Defs {
		f.defs[d] = in
	}
	f.addUses(in)
}

func (f *Function) addUses(in *Instr) {
	for _, u := range in.Uses {
		f.users[u] = append(f.users[u], in)
	}
}

func (f *Function) removeUses(in *Instr) {
	for _, u := range in.Uses {
		us := f.users[u]
		for i := len(us) - 1; i >= 0; i-- {
			if us[i] == in {
				us = append(us[:i], us[i+1:]...)
			}
		}
		if len(us) == 0 {
			delete(f.users, u)
		} else {
			f.users[u] = us
		}
	}
}

// Program is an ordered collection of functions
type Program struct {
	Functions []*Function
}
