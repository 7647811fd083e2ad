// Textual MIR parser. Accepts the form produced by Printer plus blank
// lines and '#' comments; register and block names are arbitrary
// identifiers on input even though the printer emits numeric ones.
package mir

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse parses a textual MIR program
func Parse(src string) (*Program, error) {
	p := &parser{lines: strings.Split(src, "\n")}
	prog := &Program{}
	for {
		line, ok := p.next()
		if !ok {
			break
		}
		if !strings.HasPrefix(line, "func ") {
			return nil, p.errorf("expected 'func', got %q", line)
		}
		fn, err := p.parseFunction(line)
		if err != nil {
			return nil, err
		}
		prog.Functions = append(prog.Functions, fn)
	}
	if len(prog.Functions) == 0 {
		return nil, fmt.Errorf("no functions in input")
	}
	return prog, nil
}

// ParseType parses a textual type: s32, p64, <4 x s32>
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		inner := strings.TrimSuffix(strings.TrimPrefix(s, "<"), ">")
		parts := strings.Split(inner, "x")
		if len(parts) != 2 {
			return Type{}, fmt.Errorf("bad vector type %q", s)
		}
		elems, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return Type{}, fmt.Errorf("bad vector type %q", s)
		}
		elem, err := ParseType(strings.TrimSpace(parts[1]))
		if err != nil || !elem.Scalar() {
			return Type{}, fmt.Errorf("bad vector element in %q", s)
		}
		return V(elems, elem.Bits), nil
	}
	if len(s) < 2 {
		return Type{}, fmt.Errorf("bad type %q", s)
	}
	bits, err := strconv.Atoi(s[1:])
	if err != nil || bits <= 0 {
		return Type{}, fmt.Errorf("bad type %q", s)
	}
	switch s[0] {
	case 's':
		return S(bits), nil
	case 'p':
		return P(bits), nil
	}
	return Type{}, fmt.Errorf("bad type %q", s)
}

type parser struct {
	lines []string
	pos   int // line number of the last line returned by next
}

// next returns the next significant line, trimmed
func (p *parser) next() (string, bool) {
	for p.pos < len(p.lines) {
		line := p.lines[p.pos]
		p.pos++
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			return line, true
		}
	}
	return "", false
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", p.pos, fmt.Sprintf(format, args...))
}

type funcParser struct {
	p      *parser
	fn     *Function
	b      *Builder
	regs   map[string]Reg
	blocks map[string]*Block
}

func (p *parser) parseFunction(header string) (*Function, error) {
	// func @name(%a:s32, %b:p64) {
	rest := strings.TrimPrefix(header, "func ")
	if !strings.HasSuffix(rest, "{") {
		return nil, p.errorf("expected '{' at end of function header")
	}
	rest = strings.TrimSpace(strings.TrimSuffix(rest, "{"))
	open := strings.Index(rest, "(")
	if !strings.HasPrefix(rest, "@") || open < 0 || !strings.HasSuffix(rest, ")") {
		return nil, p.errorf("bad function header %q", header)
	}
	name := rest[1:open]
	params := strings.TrimSuffix(rest[open+1:], ")")

	fp := &funcParser{
		p:      p,
		fn:     NewFunction(name),
		regs:   make(map[string]Reg),
		blocks: make(map[string]*Block),
	}
	fp.b = NewBuilder(fp.fn, nil)

	if strings.TrimSpace(params) != "" {
		for _, param := range strings.Split(params, ",") {
			nm, typ, err := splitTyped(strings.TrimSpace(param))
			if err != nil {
				return nil, p.errorf("bad parameter %q", param)
			}
			if _, dup := fp.regs[nm]; dup {
				return nil, p.errorf("duplicate register %%%s", nm)
			}
			fp.regs[nm] = fp.fn.NewParam(typ)
		}
	}

	// First pass over the body creates the blocks so branches can refer
	// to labels not yet seen.
	start := p.pos
	for {
		line, ok := p.next()
		if !ok {
			return nil, p.errorf("unterminated function @%s", name)
		}
		if line == "}" {
			break
		}
		if isLabel(line) {
			label := strings.TrimSuffix(line, ":")
			if _, dup := fp.blocks[label]; dup {
				return nil, p.errorf("duplicate label %s", label)
			}
			fp.blocks[label] = fp.fn.NewBlock()
		}
	}
	end := p.pos
	p.pos = start

	var cur *Block
	for p.pos < end {
		line, ok := p.next()
		if !ok || line == "}" {
			break
		}
		if isLabel(line) {
			cur = fp.blocks[strings.TrimSuffix(line, ":")]
			fp.b.Append(cur)
			continue
		}
		if cur == nil {
			return nil, p.errorf("instruction before first label")
		}
		if err := fp.parseInstr(line); err != nil {
			return nil, err
		}
	}
	p.pos = end
	return fp.fn, nil
}

func isLabel(line string) bool {
	return strings.HasSuffix(line, ":") && !strings.ContainsAny(line, " =")
}

// splitTyped splits "%name:type" into its parts
func splitTyped(s string) (string, Type, error) {
	if !strings.HasPrefix(s, "%") {
		return "", Type{}, fmt.Errorf("expected register, got %q", s)
	}
	colon := strings.Index(s, ":")
	if colon < 0 {
		return "", Type{}, fmt.Errorf("register %q needs a type", s)
	}
	typ, err := ParseType(s[colon+1:])
	if err != nil {
		return "", Type{}, err
	}
	return s[1:colon], typ, nil
}

func (fp *funcParser) parseInstr(line string) error {
	in := &Instr{}

	body := line
	if eq := strings.Index(line, " = "); eq >= 0 {
		for _, def := range strings.Split(line[:eq], ",") {
			nm, typ, err := splitTyped(strings.TrimSpace(def))
			if err != nil {
				return fp.p.errorf("%v", err)
			}
			if _, dup := fp.regs[nm]; dup {
				return fp.p.errorf("register %%%s defined twice", nm)
			}
			r := fp.fn.NewReg(typ)
			fp.regs[nm] = r
			in.Defs = append(in.Defs, r)
		}
		body = strings.TrimSpace(line[eq+3:])
	}

	opName, rest, _ := strings.Cut(body, " ")
	rest = strings.TrimSpace(rest)
	op, ok := OpcodeByName(opName)
	if !ok {
		return fp.p.errorf("unknown opcode %q", opName)
	}
	in.Op = op

	switch op {
	case Gconst:
		v, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return fp.p.errorf("bad constant %q", rest)
		}
		in.Imm = v
	case Gimplicitdef, Gfence:
		// no operands
	case Gicmp:
		predName, args, _ := strings.Cut(rest, " ")
		pred, ok := PredByName(predName)
		if !ok {
			return fp.p.errorf("unknown predicate %q", predName)
		}
		in.Pred = pred
		if err := fp.parseRegList(in, args); err != nil {
			return err
		}
	case Gcall:
		open := strings.Index(rest, "(")
		if !strings.HasPrefix(rest, "@") || open < 0 || !strings.HasSuffix(rest, ")") {
			return fp.p.errorf("bad call %q", rest)
		}
		in.Callee = rest[1:open]
		if err := fp.parseRegList(in, strings.TrimSuffix(rest[open+1:], ")")); err != nil {
			return err
		}
	case Gbr:
		blk, err := fp.lookupBlock(rest)
		if err != nil {
			return err
		}
		in.Targets = []*Block{blk}
	case Gbrcond:
		parts := strings.Split(rest, ",")
		if len(parts) != 3 {
			return fp.p.errorf("brcond needs a condition and two targets")
		}
		r, err := fp.lookupReg(strings.TrimSpace(parts[0]))
		if err != nil {
			return err
		}
		in.Uses = []Reg{r}
		for _, part := range parts[1:] {
			blk, err := fp.lookupBlock(strings.TrimSpace(part))
			if err != nil {
				return err
			}
			in.Targets = append(in.Targets, blk)
		}
	default:
		if err := fp.parseRegList(in, rest); err != nil {
			return err
		}
	}

	fp.b.Insert(in)
	return nil
}

func (fp *funcParser) parseRegList(in *Instr, args string) error {
	args = strings.TrimSpace(args)
	if args == "" {
		return nil
	}
	for _, arg := range strings.Split(args, ",") {
		r, err := fp.lookupReg(strings.TrimSpace(arg))
		if err != nil {
			return err
		}
		in.Uses = append(in.Uses, r)
	}
	return nil
}

func (fp *funcParser) lookupReg(tok string) (Reg, error) {
	if !strings.HasPrefix(tok, "%") {
		return NoReg, fp.p.errorf("expected register, got %q", tok)
	}
	r, ok := fp.regs[tok[1:]]
	if !ok {
		return NoReg, fp.p.errorf("undefined register %s", tok)
	}
	return r, nil
}

func (fp *funcParser) lookupBlock(label string) (*Block, error) {
	blk, ok := fp.blocks[label]
	if !ok {
		return nil, fp.p.errorf("undefined label %q", label)
	}
	return blk, nil
}
