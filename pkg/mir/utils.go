// Small IR predicates shared by passes.
package mir

// IsTriviallyDead reports whether in computes values nobody reads and
// has no observable side effect. Terminators and side-effecting
// instructions (stores, calls, fences) are never dead regardless of use
// counts. The answer depends on the current use info, so callers must
// re-evaluate after any mutation.
func IsTriviallyDead(in *Instr, fn *Function) bool {
	if in.Op.HasSideEffects() || in.Op.IsTerminator() {
		return false
	}
	if len(in.Defs) == 0 {
		return false
	}
	for _, d := range in.Defs {
		if fn.HasUses(d) {
			return false
		}
	}
	return true
}
