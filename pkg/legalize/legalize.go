// Package legalize rewrites a MIR function until every generic
// instruction satisfies the target's legality rules, eliminating dead
// code and cancelling redundant conversion artifacts along the way.
//
// The pass keeps two worklists: ordinary instructions and conversion
// artifacts. Blocks are seeded in reverse postorder with instructions
// added top-down, so draining from the back legalizes consumers before
// producers and lets dead producers fall out without being legalized.
// The ordinary list is drained to a fixpoint, then the artifact list;
// artifacts that cannot be cancelled are reclassified as ordinary, and
// the outer loop repeats until nothing is pending. Reclassification is
// one-way, which is what guarantees termination: every iteration either
// shrinks the instruction count or permanently moves an artifact to the
// ordinary list.
package legalize

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/raymyers/ralph-mir/pkg/mir"
	"github.com/raymyers/ralph-mir/pkg/timing"
)

const passName = "legalize"

// UnableToLegalizeError reports that the oracle had no rewrite for an
// instruction. The pass stops at that instruction; earlier rewrites in
// the same run remain applied.
type UnableToLegalizeError struct {
	Func  string
	Instr string
}

func (e *UnableToLegalizeError) Error() string {
	return fmt.Sprintf("%s: unable to legalize instruction in @%s: %s", passName, e.Func, e.Instr)
}

// BlockCountError reports that a rewrite changed the basic-block count.
// The outer loop does not support mid-pass block insertion.
type BlockCountError struct {
	Func   string
	Before int
	After  int
}

func (e *BlockCountError) Error() string {
	return fmt.Sprintf("%s: @%s block count changed from %d to %d: inserting blocks is not supported", passName, e.Func, e.Before, e.After)
}

// Legalizer drives the legalization of one function at a time. State is
// per-Run, so one Legalizer may be reused and distinct Legalizers may
// run concurrently on distinct functions.
type Legalizer struct {
	oracle Oracle
	log    *zap.Logger
	prof   *timing.Profiler
}

// New creates a legalizer using the given legality oracle
func New(oracle Oracle) *Legalizer {
	return &Legalizer{oracle: oracle, log: zap.NewNop()}
}

// SetLogger attaches a logger for debug tracing and failure diagnostics
func (l *Legalizer) SetLogger(log *zap.Logger) {
	if log != nil {
		l.log = log
	}
}

// SetProfiler attaches a profiler for per-phase timing sections
func (l *Legalizer) SetProfiler(p *timing.Profiler) {
	l.prof = p
}

// Run legalizes fn in place. The returned flag reports whether anything
// changed, including rewrites applied before a failure; err is non-nil
// for UnableToLegalizeError and BlockCountError, and in that case the
// function is left partially rewritten (there is no rollback).
func (l *Legalizer) Run(fn *mir.Function) (bool, error) {
	l.log.Debug("legalizing function", zap.String("function", fn.Name))
	l.prof.Begin(passName, fn.Name)
	defer l.prof.End()

	numBlocks := len(fn.Blocks)

	// Seed both lists. Blocks in RPO, instructions top-down within a
	// block, so popping from the back drains bottom-up.
	l.prof.Begin("seed", fn.Name)
	var insts, artifacts worklist
	for _, blk := range mir.ReversePostOrder(fn) {
		for _, in := range blk.Instrs {
			if !in.Op.IsGeneric() {
				continue
			}
			if isArtifact(in.Op) {
				artifacts.insert(in)
			} else {
				insts.insert(in)
			}
		}
	}
	l.prof.End()

	wlm := &workListManager{insts: &insts, artifacts: &artifacts, log: l.log}
	b := mir.NewBuilder(fn, wlm)
	h := &helper{b: b, oracle: l.oracle, log: l.log}
	comb := &combiner{b: b}

	l.prof.Begin("fixpoint", fn.Name)
	defer l.prof.End()

	changed := false
	for {
		for !insts.empty() {
			in := insts.popBack()
			// A previous rewrite may have removed the last use.
			if mir.IsTriviallyDead(in, fn) {
				l.log.Debug("dead, erasing", zap.Stringer("instr", in))
				b.Erase(in)
				changed = true
				continue
			}
			res := h.step(in)
			if res == UnableToLegalize {
				b.StopObserving()
				l.log.Error("unable to legalize instruction",
					zap.String("pass", passName),
					zap.String("function", fn.Name),
					zap.Stringer("instr", in))
				return changed, &UnableToLegalizeError{Func: fn.Name, Instr: in.String()}
			}
			changed = changed || res == Legalized
		}
		for !artifacts.empty() {
			in := artifacts.popBack()
			if mir.IsTriviallyDead(in, fn) {
				l.log.Debug("dead, erasing", zap.Stringer("instr", in))
				b.Erase(in)
				changed = true
				continue
			}
			var dead []*mir.Instr
			if comb.tryCombine(in, &dead) {
				for _, d := range dead {
					l.log.Debug("dead after combine", zap.Stringer("instr", d))
					b.Erase(d)
				}
				changed = true
				continue
			}
			// Not combinable; treat it as an ordinary instruction and
			// let the legality rules handle it on the next sweep.
			insts.insert(in)
		}
		if insts.empty() {
			break
		}
	}

	if len(fn.Blocks) != numBlocks {
		b.StopObserving()
		l.log.Error("block count changed during legalization",
			zap.String("pass", passName),
			zap.String("function", fn.Name),
			zap.Int("before", numBlocks),
			zap.Int("after", len(fn.Blocks)))
		return changed, &BlockCountError{Func: fn.Name, Before: numBlocks, After: len(fn.Blocks)}
	}
	return changed, nil
}
