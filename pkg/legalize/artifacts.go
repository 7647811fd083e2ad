// Cancellation of format-conversion artifacts.
//
// Legalization rewrites bracket values with extend/truncate/merge/
// unmerge bridges; most of them meet a complementary bridge from a
// neighbouring rewrite and cancel. The combiner performs that local
// cancellation. It either rewrites completely and reports the
// instructions left dead, or leaves the program untouched.
package legalize

import "github.com/raymyers/ralph-mir/pkg/mir"

type combiner struct {
	b *mir.Builder
}

// tryCombine attempts to cancel in against adjacent artifacts. On
// success it appends in, and any producer whose last user was in, to
// dead; the caller owns the erasure. On failure the program is
// unmodified.
func (c *combiner) tryCombine(in *mir.Instr, dead *[]*mir.Instr) bool {
	fn := c.b.Func()
	src := producerOf(in, fn)
	if src == nil {
		return false
	}

	switch in.Op {
	case mir.Gtrunc:
		switch src.Op {
		case mir.Gzext, mir.Gsext, mir.Ganyext:
			// trunc(ext x) cancels when it lands back on x's width.
			orig := src.Uses[0]
			if fn.TypeOf(orig) == fn.TypeOf(in.Def()) {
				c.b.ReplaceAllUses(in.Def(), orig)
				c.markInstAndDefDead(in, src, dead)
				return true
			}
		case mir.Gimplicitdef:
			return c.foldUndef(in, src, dead)
		}
		// trunc(const) deliberately does not fold: the refolded narrow
		// constant would re-enter the ordinary list and a widening rule
		// would rebuild the const/trunc pair, so the pass would never
		// reach a fixpoint. The pair is stable as long as trunc and the
		// wide constant are legal.

	case mir.Ganyext:
		switch src.Op {
		case mir.Gtrunc:
			// anyext(trunc x): the high bits are undefined, so x
			// itself will do when the widths agree. The zext/sext
			// forms must not cancel this way; they promise defined
			// high bits that x does not provide.
			orig := src.Uses[0]
			if fn.TypeOf(orig) == fn.TypeOf(in.Def()) {
				c.b.ReplaceAllUses(in.Def(), orig)
				c.markInstAndDefDead(in, src, dead)
				return true
			}
		case mir.Gconst:
			return c.foldConst(in, src, dead)
		case mir.Gimplicitdef:
			return c.foldUndef(in, src, dead)
		}

	case mir.Gzext, mir.Gsext:
		if src.Op == mir.Gconst {
			return c.foldConst(in, src, dead)
		}

	case mir.Gunmerge:
		if src.Op == mir.Gmerge && len(in.Defs) == len(src.Uses) {
			for i, d := range in.Defs {
				c.b.ReplaceAllUses(d, src.Uses[i])
			}
			c.markInstAndDefDead(in, src, dead)
			return true
		}
	}
	return false
}

// producerOf returns the instruction defining in's first operand
func producerOf(in *mir.Instr, fn *mir.Function) *mir.Instr {
	if len(in.Uses) == 0 {
		return nil
	}
	return fn.Def(in.Uses[0])
}

// foldConst replaces a conversion of a constant with the converted
// constant
func (c *combiner) foldConst(in, src *mir.Instr, dead *[]*mir.Instr) bool {
	fn := c.b.Func()
	dstType := fn.TypeOf(in.Def())
	srcType := fn.TypeOf(src.Def())
	if !dstType.Scalar() || !srcType.Scalar() {
		return false
	}
	var v int64
	switch in.Op {
	case mir.Gzext:
		v = zeroExtend(src.Imm, srcType.Bits)
	case mir.Gsext, mir.Ganyext:
		v = signExtend(src.Imm, srcType.Bits)
	default:
		return false
	}
	nr := fn.NewReg(dstType)
	c.b.SetInsertBefore(in)
	c.b.BuildConst(nr, v)
	c.b.ReplaceAllUses(in.Def(), nr)
	c.markInstAndDefDead(in, src, dead)
	return true
}

// foldUndef replaces a conversion of an undefined value with an
// undefined value of the converted type
func (c *combiner) foldUndef(in, src *mir.Instr, dead *[]*mir.Instr) bool {
	fn := c.b.Func()
	nr := fn.NewReg(fn.TypeOf(in.Def()))
	c.b.SetInsertBefore(in)
	c.b.BuildUndef(nr)
	c.b.ReplaceAllUses(in.Def(), nr)
	c.markInstAndDefDead(in, src, dead)
	return true
}

// markInstAndDefDead records in as dead, plus its producer if in was the
// producer's last remaining user
func (c *combiner) markInstAndDefDead(in, producer *mir.Instr, dead *[]*mir.Instr) {
	*dead = append(*dead, in)
	fn := c.b.Func()
	if fn.OnlyUser(producer.Def()) == in {
		*dead = append(*dead, producer)
	}
}

// signExtend interprets the low bits of v as a signed value
func signExtend(v int64, bits int) int64 {
	if bits >= 64 {
		return v
	}
	shift := uint(64 - bits)
	return v << shift >> shift
}

// zeroExtend interprets the low bits of v as an unsigned value
func zeroExtend(v int64, bits int) int64 {
	if bits >= 64 {
		return v
	}
	return v & (1<<uint(bits) - 1)
}
