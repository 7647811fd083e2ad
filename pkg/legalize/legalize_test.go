package legalize_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/raymyers/ralph-mir/pkg/legalize"
	"github.com/raymyers/ralph-mir/pkg/mir"
	"github.com/raymyers/ralph-mir/pkg/target"
)

func parseFn(t *testing.T, src string) *mir.Function {
	t.Helper()
	prog, err := mir.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return prog.Functions[0]
}

func opCount(fn *mir.Function, op mir.Opcode) int {
	n := 0
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == op {
				n++
			}
		}
	}
	return n
}

func printFn(fn *mir.Function) string {
	var sb strings.Builder
	mir.NewPrinter(&sb).PrintFunction(fn)
	return sb.String()
}

func TestLegalProgramUnchanged(t *testing.T) {
	fn := parseFn(t, `
func @f(%x:s32, %p:p64) {
bb0:
  %y:s32 = add %x, %x
  store %y, %p
  ret
}
`)
	before := printFn(fn)

	changed, err := legalize.New(target.Default()).Run(fn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if changed {
		t.Errorf("a fully legal function must report no changes")
	}
	if got := printFn(fn); got != before {
		t.Errorf("function modified:\nbefore:\n%s\nafter:\n%s", before, got)
	}
}

func TestExtTruncCancellation(t *testing.T) {
	// The bridge pair cancels: uses of %c rewrite to %a and both
	// conversions die, while %a survives through its remaining use.
	fn := parseFn(t, `
func @f(%p:p64) {
bb0:
  %a:s32 = const 7
  %b:s64 = sext %a
  %c:s32 = trunc %b
  store %c, %p
  ret
}
`)
	changed, err := legalize.New(target.Default()).Run(fn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !changed {
		t.Errorf("cancellation must report a change")
	}
	if opCount(fn, mir.Gsext) != 0 || opCount(fn, mir.Gtrunc) != 0 {
		t.Errorf("conversions must be erased:\n%s", printFn(fn))
	}
	blk := fn.Blocks[0]
	if len(blk.Instrs) != 3 {
		t.Fatalf("want const/store/ret, got:\n%s", printFn(fn))
	}
	konst, store := blk.Instrs[0], blk.Instrs[1]
	if konst.Op != mir.Gconst || store.Op != mir.Gstore {
		t.Fatalf("unexpected shape:\n%s", printFn(fn))
	}
	if store.Uses[0] != konst.Def() {
		t.Errorf("store must read the constant directly")
	}
}

func TestWidenNarrowAdd(t *testing.T) {
	fn := parseFn(t, `
func @f(%x:s8, %y:s8, %p:p64) {
bb0:
  %s:s8 = add %x, %y
  store %s, %p
  ret
}
`)
	l := legalize.New(target.Default())
	changed, err := l.Run(fn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !changed {
		t.Errorf("widening must report a change")
	}
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == mir.Gadd && fn.TypeOf(in.Def()).Bits < 32 {
				t.Errorf("narrow add survived: %s", in)
			}
		}
	}
	if opCount(fn, mir.Ganyext) != 2 || opCount(fn, mir.Gtrunc) != 1 {
		t.Errorf("expected two extends and one truncate:\n%s", printFn(fn))
	}

	// A second run finds nothing to do.
	changed, err = l.Run(fn)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if changed {
		t.Errorf("legalization must be idempotent:\n%s", printFn(fn))
	}
}

func TestLowerSub(t *testing.T) {
	fn := parseFn(t, `
func @f(%x:s16, %y:s16, %p:p64) {
bb0:
  %d:s16 = sub %x, %y
  store %d, %p
  ret
}
`)
	l := legalize.New(target.Default())
	changed, err := l.Run(fn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !changed {
		t.Errorf("lowering must report a change")
	}
	if opCount(fn, mir.Gsub) != 0 {
		t.Errorf("sub must be expanded:\n%s", printFn(fn))
	}
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			switch in.Op {
			case mir.Gadd, mir.Gxor, mir.Gconst:
				if fn.TypeOf(in.Def()).Bits < 32 {
					t.Errorf("narrow %s survived: %s", in.Op, in)
				}
			}
		}
	}

	changed, err = l.Run(fn)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if changed {
		t.Errorf("legalization must be idempotent:\n%s", printFn(fn))
	}
}

func TestDeadCodeEliminated(t *testing.T) {
	fn := parseFn(t, `
func @f(%x:s32, %p:p64) {
bb0:
  %y:s32 = add %x, %x
  store %x, %p
  ret
}
`)
	changed, err := legalize.New(target.Default()).Run(fn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !changed {
		t.Errorf("erasing dead code must report a change")
	}
	if opCount(fn, mir.Gadd) != 0 {
		t.Errorf("unused add must be erased:\n%s", printFn(fn))
	}
	if opCount(fn, mir.Gstore) != 1 || opCount(fn, mir.Gret) != 1 {
		t.Errorf("side effects and terminators must survive:\n%s", printFn(fn))
	}
}

// recordingOracle records every opcode the engine asks about
type recordingOracle struct {
	inner legalize.Oracle
	seen  map[mir.Opcode]int
}

func (r *recordingOracle) Action(in *mir.Instr, fn *mir.Function) legalize.Action {
	if r.seen == nil {
		r.seen = make(map[mir.Opcode]int)
	}
	r.seen[in.Op]++
	return r.inner.Action(in, fn)
}

func (r *recordingOracle) LegalizeCustom(b *mir.Builder, in *mir.Instr) bool {
	return r.inner.LegalizeCustom(b, in)
}

func TestDeadChainsAreNeverLegalized(t *testing.T) {
	// Bottom-up draining erases the dead consumer before its producer
	// is visited, so neither reaches the oracle.
	fn := parseFn(t, `
func @f(%x:s32, %p:p64) {
bb0:
  %m:s32 = mul %x, %x
  %a:s32 = add %m, %m
  store %x, %p
  ret
}
`)
	rec := &recordingOracle{inner: target.Default()}
	changed, err := legalize.New(rec).Run(fn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !changed {
		t.Errorf("erasing the dead chain must report a change")
	}
	if rec.seen[mir.Gadd] != 0 || rec.seen[mir.Gmul] != 0 {
		t.Errorf("dead instructions must not be legalized: %v", rec.seen)
	}
	if len(fn.Blocks[0].Instrs) != 2 {
		t.Errorf("want store/ret only:\n%s", printFn(fn))
	}
}

func TestUnableToLegalizeKeepsEarlierRewrites(t *testing.T) {
	rs := target.New()
	rs.Legal(mir.Gadd, mir.S32, mir.S64)
	rs.WidenBelow(mir.Gadd, 32, mir.S32)
	rs.Legal(mir.Gstore)
	rs.Legal(mir.Gret)
	rs.Legal(mir.Gtrunc)
	rs.Legal(mir.Ganyext)
	// no rule for mul

	fn := parseFn(t, `
func @f(%x:s8, %y:s8, %p:p64) {
bb0:
  %m:s8 = mul %x, %y
  %s:s8 = add %m, %m
  store %s, %p
  ret
}
`)
	changed, err := legalize.New(rs).Run(fn)
	var ue *legalize.UnableToLegalizeError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want UnableToLegalizeError", err)
	}
	if ue.Func != "f" {
		t.Errorf("Func = %q", ue.Func)
	}
	if !changed {
		t.Errorf("the add was widened before the failure; changed must be true")
	}
	if opCount(fn, mir.Gmul) != 1 {
		t.Errorf("the failing instruction is left in place:\n%s", printFn(fn))
	}
	if opCount(fn, mir.Ganyext) != 2 {
		t.Errorf("rewrites before the failure must remain applied:\n%s", printFn(fn))
	}
}

func TestBlockInsertionIsRejected(t *testing.T) {
	rs := target.New()
	rs.Custom(mir.Gmul, func(b *mir.Builder, in *mir.Instr) bool {
		b.Func().NewBlock()
		dst, x, y := in.Def(), in.Uses[0], in.Uses[1]
		b.SetInsertBefore(in)
		b.Erase(in)
		b.BuildBinOp(mir.Gadd, dst, x, y)
		return true
	})
	rs.Legal(mir.Gadd)
	rs.Legal(mir.Gstore)
	rs.Legal(mir.Gret)

	fn := parseFn(t, `
func @f(%x:s32, %p:p64) {
bb0:
  %m:s32 = mul %x, %x
  store %m, %p
  ret
}
`)
	changed, err := legalize.New(rs).Run(fn)
	var be *legalize.BlockCountError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want BlockCountError", err)
	}
	if be.Before != 1 || be.After != 2 {
		t.Errorf("Before/After = %d/%d, want 1/2", be.Before, be.After)
	}
	if !changed {
		t.Errorf("the custom rewrite ran; changed must be true")
	}
}

func TestMultiBlockLegalization(t *testing.T) {
	fn := parseFn(t, `
func @f(%x:s8, %y:s8, %p:p64) {
entry:
  %c:s1 = icmp slt %x, %y
  brcond %c, left, join
left:
  %s:s8 = add %x, %y
  store %s, %p
  br join
join:
  ret
}
`)
	changed, err := legalize.New(target.Default()).Run(fn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !changed {
		t.Errorf("the narrow add must be widened")
	}
	if len(fn.Blocks) != 3 {
		t.Errorf("block structure must be preserved")
	}
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == mir.Gadd && fn.TypeOf(in.Def()).Bits < 32 {
				t.Errorf("narrow add survived in %s: %s", blk.Name(), in)
			}
		}
	}
}
