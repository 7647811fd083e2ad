// Package mir textual output. The format round-trips through Parse.
package mir

import (
	"fmt"
	"io"
	"strings"
)

// Printer writes MIR in its textual form
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new MIR printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintProgram prints every function in the program
func (p *Printer) PrintProgram(prog *Program) {
	for i, fn := range prog.Functions {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		p.PrintFunction(fn)
	}
}

// PrintFunction prints a single function
func (p *Printer) PrintFunction(fn *Function) {
	fmt.Fprintf(p.w, "func @%s(", fn.Name)
	for i, r := range fn.Params {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprintf(p.w, "%s:%s", r, fn.TypeOf(r))
	}
	fmt.Fprintln(p.w, ") {")
	for _, blk := range fn.Blocks {
		fmt.Fprintf(p.w, "%s:\n", blk.Name())
		for _, in := range blk.Instrs {
			fmt.Fprintf(p.w, "  %s\n", formatInstr(in, fn))
		}
	}
	fmt.Fprintln(p.w, "}")
}

// String renders the instruction in its textual form. Used by
// diagnostics as well as the printer.
func (in *Instr) String() string {
	var fn *Function
	if in.block != nil {
		fn = in.block.fn
	}
	return formatInstr(in, fn)
}

func formatInstr(in *Instr, fn *Function) string {
	var sb strings.Builder
	if len(in.Defs) > 0 {
		for i, d := range in.Defs {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.String())
			if fn != nil {
				fmt.Fprintf(&sb, ":%s", fn.TypeOf(d))
			}
		}
		sb.WriteString(" = ")
	}
	switch in.Op {
	case Gconst:
		fmt.Fprintf(&sb, "const %d", in.Imm)
	case Gicmp:
		fmt.Fprintf(&sb, "icmp %s %s, %s", in.Pred, in.Uses[0], in.Uses[1])
	case Gcall:
		fmt.Fprintf(&sb, "call @%s(", in.Callee)
		for i, u := range in.Uses {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(u.String())
		}
		sb.WriteString(")")
	case Gbr:
		fmt.Fprintf(&sb, "br %s", in.Targets[0].Name())
	case Gbrcond:
		fmt.Fprintf(&sb, "brcond %s, %s, %s", in.Uses[0], in.Targets[0].Name(), in.Targets[1].Name())
	default:
		sb.WriteString(in.Op.String())
		for i, u := range in.Uses {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(" ")
			sb.WriteString(u.String())
		}
	}
	return sb.String()
}
