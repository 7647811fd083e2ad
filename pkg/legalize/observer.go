// Worklist maintenance under graph mutation.
package legalize

import (
	"go.uber.org/zap"

	"github.com/raymyers/ralph-mir/pkg/mir"
)

// isArtifact reports whether the opcode is a pure format-conversion
// bridge. Artifacts are scheduled on their own list so the combiner can
// cancel matching pairs before the legality rules see them.
func isArtifact(op mir.Opcode) bool {
	switch op {
	case mir.Gtrunc, mir.Gzext, mir.Gsext, mir.Ganyext,
		mir.Gmerge, mir.Gunmerge, mir.Gconcat, mir.Gbuildvec:
		return true
	}
	return false
}

// workListManager keeps the two worklists consistent with every edit the
// rewrite rules make. It implements mir.Observer and stays attached to
// the builder for the whole run.
type workListManager struct {
	insts     *worklist
	artifacts *worklist
	log       *zap.Logger
}

func (m *workListManager) CreatedInstr(in *mir.Instr) {
	// Rewrites may produce target-specific instructions; those are
	// already legal and never enter a list.
	if in.Op.IsGeneric() {
		if isArtifact(in.Op) {
			m.artifacts.insert(in)
		} else {
			m.insts.insert(in)
		}
	}
	m.log.Debug("new instruction", zap.Stringer("instr", in))
}

func (m *workListManager) ErasingInstr(in *mir.Instr) {
	m.log.Debug("erasing instruction", zap.Stringer("instr", in))
	m.insts.remove(in)
	m.artifacts.remove(in)
}

func (m *workListManager) ChangingInstr(in *mir.Instr) {
	m.log.Debug("changing instruction", zap.Stringer("instr", in))
}

func (m *workListManager) ChangedInstr(in *mir.Instr) {
	// A changed instruction needs to be revisited, same as a new one.
	m.log.Debug("changed instruction", zap.Stringer("instr", in))
	m.CreatedInstr(in)
}
