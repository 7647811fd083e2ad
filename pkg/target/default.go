// Default rules for a plain 32/64-bit register machine. Used by the CLI
// when no rule file is given; also a convenient target for tests.
package target

import "github.com/raymyers/ralph-mir/pkg/mir"

// Default returns the built-in rule set: 32- and 64-bit integer
// operations are legal, narrower scalars are widened to 32 bits, and
// subtraction below 32 bits is expanded.
func Default() *RuleSet {
	rs := New()

	binary := []mir.Opcode{
		mir.Gadd, mir.Gmul, mir.Gand, mir.Gor, mir.Gxor,
		mir.Gshl, mir.Glshr, mir.Gashr,
	}
	for _, op := range binary {
		rs.Legal(op, mir.S32, mir.S64)
		rs.WidenBelow(op, 32, mir.S32)
	}

	rs.Legal(mir.Gsub, mir.S32, mir.S64)
	rs.Lower(mir.Gsub)

	// s1 constants (branch flags) stay at their width rather than being
	// split into a wide constant and a truncate.
	rs.Legal(mir.Gconst, mir.S1, mir.S32, mir.S64, mir.P64)
	rs.WidenBelow(mir.Gconst, 32, mir.S32)

	// Comparisons, selects, memory, calls and control flow are taken
	// as-is at any width.
	for _, op := range []mir.Opcode{
		mir.Gicmp, mir.Gselect, mir.Gimplicitdef,
		mir.Gload, mir.Gstore, mir.Gcall, mir.Gfence,
		mir.Gbr, mir.Gbrcond, mir.Gret,
	} {
		rs.Legal(op)
	}

	// Artifacts that survive combining are fine as they are.
	for _, op := range []mir.Opcode{
		mir.Gtrunc, mir.Gzext, mir.Gsext, mir.Ganyext,
		mir.Gmerge, mir.Gunmerge, mir.Gconcat, mir.Gbuildvec,
	} {
		rs.Legal(op)
	}

	return rs
}
