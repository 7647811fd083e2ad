// Deduplicating instruction worklist.
package legalize

import "github.com/raymyers/ralph-mir/pkg/mir"

// worklist is a set-with-order over instructions. Insert is a no-op for
// members, remove tombstones the slot, and popBack drains newest-first,
// which gives the bottom-up processing order the legalizer relies on
// when blocks are seeded top-down.
type worklist struct {
	order []*mir.Instr
	index map[*mir.Instr]int
}

func (w *worklist) insert(in *mir.Instr) {
	if w.index == nil {
		w.index = make(map[*mir.Instr]int)
	}
	if _, ok := w.index[in]; ok {
		return
	}
	w.index[in] = len(w.order)
	w.order = append(w.order, in)
}

func (w *worklist) remove(in *mir.Instr) {
	i, ok := w.index[in]
	if !ok {
		return
	}
	w.order[i] = nil
	delete(w.index, in)
}

func (w *worklist) empty() bool {
	return len(w.index) == 0
}

// popBack removes and returns the most recently inserted live
// instruction, or nil if the list is empty
func (w *worklist) popBack() *mir.Instr {
	for len(w.order) > 0 {
		in := w.order[len(w.order)-1]
		w.order = w.order[:len(w.order)-1]
		if in == nil {
			continue
		}
		delete(w.index, in)
		return in
	}
	return nil
}
