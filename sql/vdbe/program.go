package vdbe

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// Instruction is a single virtual machine instruction.
type Instruction struct {
	Op      Opcode
	P1      int
	P2      int
	P3      int
	P4      interface{}
	P5      uint16
	Comment string
}

func (i Instruction) p4String() string {
	switch x := i.P4.(type) {
	case nil:
		return ""
	case string:
		return strconv.Quote(x)
	case fmt.Stringer:
		return x.String()
	case interface{ Name() string }:
		return x.Name()
	default:
		return fmt.Sprint(x)
	}
}

// Program is a compiled statement.
type Program struct {
	Instructions []Instruction
	// NumRegs is the highest register used.
	NumRegs int
	// NumCursors is the number of cursors used.
	NumCursors int
	// Columns are the names of the result columns.
	Columns []string
}

// Explain returns one row per instruction: address, opcode, operands and
// comment.
func (p *Program) Explain() [][]string {
	rows := make([][]string, len(p.Instructions))
	for addr, in := range p.Instructions {
		rows[addr] = []string{
			strconv.Itoa(addr),
			in.Op.String(),
			strconv.Itoa(in.P1),
			strconv.Itoa(in.P2),
			strconv.Itoa(in.P3),
			in.p4String(),
			strconv.Itoa(int(in.P5)),
			in.Comment,
		}
	}
	return rows
}

// String renders the program as a table.
func (p *Program) String() string {
	var buf bytes.Buffer
	w := tablewriter.NewWriter(&buf)
	w.SetHeader([]string{"addr", "opcode", "p1", "p2", "p3", "p4", "p5", "comment"})
	w.SetAutoWrapText(false)
	w.SetBorder(false)
	w.AppendBulk(p.Explain())
	w.Render()
	return buf.String()
}

// Count returns the number of instructions with the given opcode.
func (p *Program) Count(op Opcode) int {
	var n int
	for _, in := range p.Instructions {
		if in.Op == op {
			n++
		}
	}
	return n
}
