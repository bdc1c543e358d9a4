package vdbe

import (
	"fmt"

	"gopkg.in/src-d/go-errors.v1"
)

// ErrUnresolvedLabel is returned by Finish when a jump targets a label
// that was never resolved.
var ErrUnresolvedLabel = errors.NewKind("label %d used at address %d was never resolved")

const maxTempRegs = 8

// Builder emits instructions and allocates registers, cursors and jump
// labels for a program.
//
// Labels are negative numbers that can be used as jump targets before the
// target address is known. They are replaced with addresses by Finish.
type Builder struct {
	ops     []Instruction
	labels  []int
	nRegs   int
	nCursor int

	tempRegs  []int
	rangeReg  int
	rangeSize int
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Addr returns the address of the next instruction.
func (b *Builder) Addr() int { return len(b.ops) }

// Add appends an instruction and returns its address.
func (b *Builder) Add(op Opcode, p1, p2, p3 int, p4 interface{}) int {
	b.ops = append(b.ops, Instruction{Op: op, P1: p1, P2: p2, P3: p3, P4: p4})
	return len(b.ops) - 1
}

// Op0 appends an instruction without operands.
func (b *Builder) Op0(op Opcode) int { return b.Add(op, 0, 0, 0, nil) }

// Op1 appends an instruction with one operand.
func (b *Builder) Op1(op Opcode, p1 int) int { return b.Add(op, p1, 0, 0, nil) }

// Op2 appends an instruction with two operands.
func (b *Builder) Op2(op Opcode, p1, p2 int) int { return b.Add(op, p1, p2, 0, nil) }

// Op3 appends an instruction with three operands.
func (b *Builder) Op3(op Opcode, p1, p2, p3 int) int { return b.Add(op, p1, p2, p3, nil) }

// Op4 appends an instruction with three operands and a P4 value.
func (b *Builder) Op4(op Opcode, p1, p2, p3 int, p4 interface{}) int {
	return b.Add(op, p1, p2, p3, p4)
}

// Op returns the instruction at addr. A negative address refers to the
// last instruction.
func (b *Builder) Op(addr int) *Instruction {
	if addr < 0 {
		addr = len(b.ops) - 1
	}
	return &b.ops[addr]
}

// SetP5 sets P5 of the last instruction.
func (b *Builder) SetP5(p5 uint16) {
	if len(b.ops) > 0 {
		b.ops[len(b.ops)-1].P5 = p5
	}
}

// Comment attaches a comment to the last instruction.
func (b *Builder) Comment(format string, args ...interface{}) {
	if len(b.ops) > 0 {
		b.ops[len(b.ops)-1].Comment = fmt.Sprintf(format, args...)
	}
}

// ChangeP1 changes the P1 operand of the instruction at addr.
func (b *Builder) ChangeP1(addr, v int) { b.ops[addr].P1 = v }

// ChangeP2 changes the P2 operand of the instruction at addr.
func (b *Builder) ChangeP2(addr, v int) { b.ops[addr].P2 = v }

// ChangeP3 changes the P3 operand of the instruction at addr.
func (b *Builder) ChangeP3(addr, v int) { b.ops[addr].P3 = v }

// ChangeP4 changes the P4 operand of the instruction at addr.
func (b *Builder) ChangeP4(addr int, v interface{}) { b.ops[addr].P4 = v }

// ChangeOpcode replaces the opcode of the instruction at addr.
func (b *Builder) ChangeOpcode(addr int, op Opcode) { b.ops[addr].Op = op }

// ChangeToNoop turns the instruction at addr into a Noop.
func (b *Builder) ChangeToNoop(addr int) {
	if addr >= 0 && addr < len(b.ops) {
		b.ops[addr] = Instruction{Op: OpNoop}
	}
}

// JumpHere makes the instruction at addr jump to the next address.
func (b *Builder) JumpHere(addr int) {
	if addr >= 0 {
		b.ChangeP2(addr, b.Addr())
	}
}

// MakeLabel returns a new unresolved label.
func (b *Builder) MakeLabel() int {
	b.labels = append(b.labels, -1)
	return -len(b.labels)
}

// ResolveLabel binds the label to the next address.
func (b *Builder) ResolveLabel(label int) {
	idx := -1 - label
	if idx >= 0 && idx < len(b.labels) {
		b.labels[idx] = b.Addr()
	}
}

// IsLabel reports whether v is a label rather than an address.
func IsLabel(v int) bool { return v < 0 }

// AllocReg returns a new register.
func (b *Builder) AllocReg() int {
	b.nRegs++
	return b.nRegs
}

// AllocRegs returns the first of n new consecutive registers.
func (b *Builder) AllocRegs(n int) int {
	first := b.nRegs + 1
	b.nRegs += n
	return first
}

// NumRegs returns the number of registers allocated so far.
func (b *Builder) NumRegs() int { return b.nRegs }

// TempReg returns a scratch register, reusing a released one if any.
func (b *Builder) TempReg() int {
	if n := len(b.tempRegs); n > 0 {
		r := b.tempRegs[n-1]
		b.tempRegs = b.tempRegs[:n-1]
		return r
	}
	return b.AllocReg()
}

// ReleaseTempReg returns a scratch register for reuse.
func (b *Builder) ReleaseTempReg(r int) {
	if r > 0 && len(b.tempRegs) < maxTempRegs {
		b.tempRegs = append(b.tempRegs, r)
	}
}

// TempRange returns the first of n consecutive scratch registers.
func (b *Builder) TempRange(n int) int {
	if n == 1 {
		return b.TempReg()
	}
	if n <= b.rangeSize {
		r := b.rangeReg
		b.rangeReg += n
		b.rangeSize -= n
		return r
	}
	return b.AllocRegs(n)
}

// ReleaseTempRange returns n consecutive scratch registers for reuse.
func (b *Builder) ReleaseTempRange(first, n int) {
	if n == 1 {
		b.ReleaseTempReg(first)
		return
	}
	if n > b.rangeSize {
		b.rangeReg = first
		b.rangeSize = n
	}
}

// ClearTempRegs forgets every released scratch register, so values kept
// in them survive further allocations.
func (b *Builder) ClearTempRegs() {
	b.tempRegs = b.tempRegs[:0]
	b.rangeSize = 0
}

// AllocCursor returns a new cursor number.
func (b *Builder) AllocCursor() int {
	b.nCursor++
	return b.nCursor - 1
}

// NumCursors returns the number of cursors allocated so far.
func (b *Builder) NumCursors() int { return b.nCursor }

// Finish resolves every label and returns the program.
func (b *Builder) Finish(columns []string) (*Program, error) {
	ops := make([]Instruction, len(b.ops))
	copy(ops, b.ops)

	for addr := range ops {
		in := &ops[addr]
		if in.Op == OpJump {
			for _, p := range []*int{&in.P1, &in.P2, &in.P3} {
				if err := b.resolve(p, addr); err != nil {
					return nil, err
				}
			}
			continue
		}

		if !jumpsP2[in.Op] || (in.Op.IsComparison() && in.P5&StoreP2 != 0) {
			continue
		}
		if err := b.resolve(&in.P2, addr); err != nil {
			return nil, err
		}
		if in.Op == OpInitCoroutine {
			if err := b.resolve(&in.P3, addr); err != nil {
				return nil, err
			}
		}
	}

	return &Program{
		Instructions: ops,
		NumRegs:      b.nRegs,
		NumCursors:   b.nCursor,
		Columns:      columns,
	}, nil
}

func (b *Builder) resolve(p *int, addr int) error {
	if *p >= 0 {
		return nil
	}
	idx := -1 - *p
	if idx >= len(b.labels) || b.labels[idx] < 0 {
		return ErrUnresolvedLabel.New(*p, addr)
	}
	*p = b.labels[idx]
	return nil
}
