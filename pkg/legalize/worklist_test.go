package legalize

import (
	"testing"

	"github.com/raymyers/ralph-mir/pkg/mir"
)

func TestWorklistInsertIsIdempotent(t *testing.T) {
	var w worklist
	a := &mir.Instr{Op: mir.Gadd}
	w.insert(a)
	w.insert(a)
	w.insert(a)

	if w.popBack() != a {
		t.Fatalf("expected a")
	}
	if !w.empty() {
		t.Errorf("duplicate inserts must not duplicate entries")
	}
}

func TestWorklistPopOrder(t *testing.T) {
	var w worklist
	a := &mir.Instr{Op: mir.Gadd}
	b := &mir.Instr{Op: mir.Gmul}
	c := &mir.Instr{Op: mir.Gxor}
	w.insert(a)
	w.insert(b)
	w.insert(c)

	for i, want := range []*mir.Instr{c, b, a} {
		if got := w.popBack(); got != want {
			t.Errorf("pop %d = %v, want %v", i, got, want)
		}
	}
	if w.popBack() != nil {
		t.Errorf("empty worklist pops nil")
	}
}

func TestWorklistRemove(t *testing.T) {
	var w worklist
	a := &mir.Instr{Op: mir.Gadd}
	b := &mir.Instr{Op: mir.Gmul}
	w.insert(a)
	w.insert(b)

	w.remove(b)
	w.remove(b) // idempotent

	if w.empty() {
		t.Fatalf("a is still pending")
	}
	if got := w.popBack(); got != a {
		t.Errorf("pop = %v, want a (removed entries are skipped)", got)
	}
	if !w.empty() {
		t.Errorf("worklist should be empty")
	}
}

func TestWorklistReinsertAfterPop(t *testing.T) {
	var w worklist
	a := &mir.Instr{Op: mir.Gadd}
	w.insert(a)
	if w.popBack() != a {
		t.Fatalf("expected a")
	}
	w.insert(a)
	if w.popBack() != a {
		t.Errorf("popped instructions can be reinserted")
	}
}
