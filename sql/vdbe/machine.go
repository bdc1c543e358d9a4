package vdbe

import (
	"io"
	"math"
	"sort"

	"github.com/spf13/cast"
	"gopkg.in/src-d/go-errors.v1"
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/function"
)

var (
	// ErrHalt is returned when a program halts with an error.
	ErrHalt = errors.NewKind("%s")

	// ErrInvalidProgram is returned when an instruction cannot run, such as
	// reading a cursor that was never opened.
	ErrInvalidProgram = errors.NewKind("invalid program at address %d: %s")
)

// Storage gives access to the rows of stored tables.
type Storage interface {
	// Rows returns the rows of the table in primary key order.
	Rows(ctx *sql.Context, table *sql.Table) ([]sql.Row, error)
}

// Stats are counters collected while a program runs.
type Stats struct {
	// Steps is the number of instructions executed.
	Steps int
	// TableScans is the number of stored tables opened.
	TableScans int
	// Inserts counts the rows written to ephemeral indexes and sorters.
	Inserts int
	// MaxEphemeralRows is the largest number of rows held at once by any
	// ephemeral index or sorter.
	MaxEphemeralRows int
}

type cursorKind byte

const (
	tableCursor cursorKind = iota
	ephemeralCursor
	sorterCursor
	pseudoCursor
)

type cursor struct {
	kind    cursorKind
	rows    []Record
	key     *KeyDef
	pos     int
	nullRow bool
	deleted bool
	seq     int64
	nextID  int64
	reg     int
}

// search returns the position of the first entry not less than probe.
func (c *cursor) search(probe Record) int {
	return sort.Search(len(c.rows), func(i int) bool {
		return c.key.Compare(c.rows[i], probe) >= 0
	})
}

func (c *cursor) insert(rec Record) {
	i := c.search(rec)
	if i < len(c.rows) && c.key.Compare(c.rows[i], rec) == 0 {
		c.rows[i] = rec
		return
	}
	c.rows = append(c.rows, nil)
	copy(c.rows[i+1:], c.rows[i:])
	c.rows[i] = rec
}

func (c *cursor) remove(i int) {
	c.rows = append(c.rows[:i], c.rows[i+1:]...)
}

// cleared is a NULL that never compares equal to anything, even under
// NullEq.
type cleared struct{}

// Machine runs a program.
type Machine struct {
	prog    *Program
	storage Storage

	regs    []interface{}
	cursors []*cursor
	once    []bool
	pc      int
	cmp     int
	perm    []int
	coll    sql.Collation
	halted  bool
	stats   Stats
}

// NewMachine returns a machine ready to run the program from its first
// instruction.
func NewMachine(p *Program, storage Storage) *Machine {
	return &Machine{
		prog:    p,
		storage: storage,
		regs:    make([]interface{}, p.NumRegs+1),
		cursors: make([]*cursor, p.NumCursors),
		once:    make([]bool, len(p.Instructions)),
		coll:    sql.Binary,
	}
}

// Stats returns the counters collected so far.
func (m *Machine) Stats() Stats { return m.stats }

// Exec runs a program to completion and returns its rows.
func Exec(ctx *sql.Context, p *Program, storage Storage) ([]sql.Row, Stats, error) {
	m := NewMachine(p, storage)
	rows, err := sql.RowIterToRows(m.Iter(ctx))
	return rows, m.stats, err
}

// Iter returns an iterator over the rows produced by the machine.
func (m *Machine) Iter(ctx *sql.Context) sql.RowIter {
	return &machineIter{ctx: ctx, m: m}
}

type machineIter struct {
	ctx *sql.Context
	m   *Machine
}

func (i *machineIter) Next() (sql.Row, error) { return i.m.Step(i.ctx) }

func (i *machineIter) Close() error {
	i.m.halted = true
	return nil
}

func (m *Machine) reg(i int) interface{} {
	if i <= 0 || i >= len(m.regs) {
		return nil
	}
	return m.regs[i]
}

// value returns the register value with cleared NULLs as plain NULLs.
func (m *Machine) value(i int) interface{} {
	v := m.reg(i)
	if _, ok := v.(cleared); ok {
		return nil
	}
	return v
}

func (m *Machine) values(first, n int) []interface{} {
	vs := make([]interface{}, n)
	for i := range vs {
		vs[i] = m.value(first + i)
	}
	return vs
}

func (m *Machine) set(i int, v interface{}) {
	if i <= 0 {
		return
	}
	for i >= len(m.regs) {
		m.regs = append(m.regs, nil)
	}
	m.regs[i] = v
}

func (m *Machine) intValue(i int) int64 {
	return cast.ToInt64(sql.ToNumeric(m.value(i)))
}

func (m *Machine) cursor(i int) (*cursor, error) {
	if i < 0 || i >= len(m.cursors) || m.cursors[i] == nil {
		return nil, ErrInvalidProgram.New(m.pc, "cursor not open")
	}
	return m.cursors[i], nil
}

func (m *Machine) openCursor(i int, c *cursor) {
	for i >= len(m.cursors) {
		m.cursors = append(m.cursors, nil)
	}
	m.cursors[i] = c
}

// current returns the row under the cursor. A pseudo cursor always reads
// its register, even after NullRow.
func (m *Machine) current(c *cursor) Record {
	if c.kind == pseudoCursor {
		rec, _ := m.reg(c.reg).(Record)
		return rec
	}
	if c.nullRow {
		return nil
	}
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil
	}
	return c.rows[c.pos]
}

// size returns the number of rows of the cursor. A pseudo cursor has one
// row while its register holds a record.
func (m *Machine) size(c *cursor) int {
	if c.kind == pseudoCursor {
		if _, ok := m.reg(c.reg).(Record); ok {
			return 1
		}
		return 0
	}
	return len(c.rows)
}

func (m *Machine) noteSize(c *cursor) {
	m.stats.Inserts++
	if len(c.rows) > m.stats.MaxEphemeralRows {
		m.stats.MaxEphemeralRows = len(c.rows)
	}
}

func collationOf(p4 interface{}) sql.Collation {
	if c, ok := p4.(sql.Collation); ok && c != "" {
		return c
	}
	return sql.Binary
}

func boolValue(b bool) interface{} {
	if b {
		return int64(1)
	}
	return int64(0)
}

// Step runs the program until it produces a row, which is returned.
// io.EOF is returned once the program has halted.
func (m *Machine) Step(ctx *sql.Context) (sql.Row, error) {
	ops := m.prog.Instructions
	for !m.halted {
		if m.pc < 0 || m.pc >= len(ops) {
			m.halted = true
			break
		}
		if m.stats.Steps&1023 == 0 {
			if err := ctx.Err(); err != nil {
				m.halted = true
				return nil, err
			}
		}
		m.stats.Steps++

		row, err := m.exec(ctx, &ops[m.pc])
		if err != nil {
			m.halted = true
			return nil, err
		}
		if row != nil {
			return row, nil
		}
	}
	return nil, io.EOF
}

// exec runs one instruction and moves the program counter.
func (m *Machine) exec(ctx *sql.Context, in *Instruction) (sql.Row, error) {
	pc := m.pc
	next := pc + 1
	defer func() { m.pc = next }()

	switch in.Op {
	case OpNoop:
	case OpGoto:
		next = in.P2
	case OpGosub:
		m.set(in.P1, int64(pc))
		next = in.P2
	case OpReturn:
		next = int(m.intValue(in.P1)) + 1
	case OpInitCoroutine:
		m.set(in.P1, int64(in.P3-1))
		if in.P2 != 0 {
			next = in.P2
		}
	case OpYield:
		resume := int(m.intValue(in.P1))
		m.set(in.P1, int64(pc))
		next = resume + 1
	case OpEndCoroutine:
		caller := int(m.intValue(in.P1))
		if caller < 0 || caller >= len(m.prog.Instructions) {
			return nil, ErrInvalidProgram.New(pc, "coroutine ended without caller")
		}
		m.set(in.P1, int64(pc-1))
		next = m.prog.Instructions[caller].P2
	case OpHalt:
		m.halted = true
		if in.P1 != 0 {
			msg, _ := in.P4.(string)
			return nil, ErrHalt.New(msg)
		}
	case OpOnce:
		if m.once[pc] {
			next = in.P2
		}
		m.once[pc] = true
	case OpIf, OpIfNot:
		t, null := sql.Truth(m.value(in.P1))
		if null {
			if in.P3 != 0 {
				next = in.P2
			}
		} else if t == (in.Op == OpIf) {
			next = in.P2
		}
	case OpIfPos:
		if v := m.intValue(in.P1); v > 0 {
			m.set(in.P1, v-int64(in.P3))
			next = in.P2
		}
	case OpIfNotZero:
		if v := m.intValue(in.P1); v != 0 {
			if v > 0 {
				m.set(in.P1, v-1)
			}
			next = in.P2
		}
	case OpDecrJumpZero:
		v := m.intValue(in.P1)
		if v > math.MinInt64 {
			v--
			m.set(in.P1, v)
		}
		if v == 0 {
			next = in.P2
		}
	case OpOffsetLimit:
		limit, offset := m.intValue(in.P1), m.intValue(in.P3)
		if limit <= 0 {
			m.set(in.P2, int64(-1))
		} else {
			if offset < 0 {
				offset = 0
			}
			m.set(in.P2, limit+offset)
		}
	case OpMustBeInt:
		v, err := sql.ToInteger(m.value(in.P1))
		if err != nil {
			if in.P2 == 0 {
				return nil, err
			}
			next = in.P2
		} else {
			m.set(in.P1, v)
		}
	case OpIsNull:
		if m.value(in.P1) == nil {
			next = in.P2
		}
	case OpNotNull:
		if m.value(in.P1) != nil {
			next = in.P2
		}
	case OpJump:
		switch {
		case m.cmp < 0:
			next = in.P1
		case m.cmp == 0:
			next = in.P2
		default:
			next = in.P3
		}

	case OpNull:
		var v interface{}
		if in.P1 != 0 {
			v = cleared{}
		}
		last := in.P3
		if last < in.P2 {
			last = in.P2
		}
		for r := in.P2; r <= last; r++ {
			m.set(r, v)
		}
	case OpInteger:
		m.set(in.P2, int64(in.P1))
	case OpReal, OpString, OpBlob:
		m.set(in.P2, in.P4)
	case OpCopy:
		for i := 0; i <= in.P3; i++ {
			m.set(in.P2+i, m.value(in.P1+i))
		}
	case OpSCopy:
		m.set(in.P2, m.reg(in.P1))
	case OpMove:
		for i := 0; i < in.P3; i++ {
			m.set(in.P2+i, m.reg(in.P1+i))
			m.set(in.P1+i, nil)
		}
	case OpAffinity:
		aff, _ := in.P4.(string)
		for i := 0; i < in.P2 && i < len(aff); i++ {
			m.set(in.P1+i, sql.ApplyAffinity(m.value(in.P1+i), sql.Affinity(aff[i])))
		}
	case OpCast:
		m.set(in.P1, castValue(m.value(in.P1), sql.Affinity(in.P2)))

	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		res := m.compare(in)
		if in.P5&StoreP2 != 0 {
			m.set(in.P2, res)
		} else if res == nil {
			if in.P5&JumpIfNull != 0 {
				next = in.P2
			}
		} else if res.(int64) == 1 {
			next = in.P2
		}

	case OpAnd, OpOr:
		a, an := sql.Truth(m.value(in.P1))
		b, bn := sql.Truth(m.value(in.P2))
		var res interface{}
		if in.Op == OpAnd {
			switch {
			case (!an && !a) || (!bn && !b):
				res = int64(0)
			case an || bn:
			default:
				res = int64(1)
			}
		} else {
			switch {
			case (!an && a) || (!bn && b):
				res = int64(1)
			case an || bn:
			default:
				res = int64(0)
			}
		}
		m.set(in.P3, res)
	case OpNot:
		t, null := sql.Truth(m.value(in.P1))
		if null {
			m.set(in.P2, nil)
		} else {
			m.set(in.P2, boolValue(!t))
		}
	case OpAdd, OpSubtract, OpMultiply, OpDivide, OpRemainder:
		op := map[Opcode]byte{OpAdd: '+', OpSubtract: '-', OpMultiply: '*', OpDivide: '/', OpRemainder: '%'}[in.Op]
		v, err := sql.Arith(op, m.value(in.P1), m.value(in.P2))
		if err != nil {
			return nil, err
		}
		m.set(in.P3, v)
	case OpConcat:
		a, aok := sql.ToText(m.value(in.P1))
		b, bok := sql.ToText(m.value(in.P2))
		if !aok || !bok {
			m.set(in.P3, nil)
		} else {
			m.set(in.P3, a+b)
		}
	case OpNegate:
		switch x := sql.ToNumeric(m.value(in.P1)).(type) {
		case int64:
			if x == math.MinInt64 {
				m.set(in.P2, -float64(x))
			} else {
				m.set(in.P2, -x)
			}
		case float64:
			m.set(in.P2, -x)
		default:
			m.set(in.P2, nil)
		}

	case OpFunction:
		f, ok := in.P4.(*function.Func)
		if !ok {
			return nil, ErrInvalidProgram.New(pc, "missing function")
		}
		v, err := f.Eval(m.coll, m.values(in.P1, in.P2))
		if err != nil {
			return nil, err
		}
		m.set(in.P3, v)
	case OpCollSeq:
		m.coll = collationOf(in.P4)
	case OpAggStep:
		f, ok := in.P4.(*function.Func)
		if !ok || !f.IsAggregate() {
			return nil, ErrInvalidProgram.New(pc, "missing aggregate")
		}
		acc, ok := m.reg(in.P3).(function.Aggregator)
		if !ok {
			acc = f.NewAggregator(m.coll)
			m.set(in.P3, acc)
		}
		if err := acc.Step(m.values(in.P1, in.P2)); err != nil {
			return nil, err
		}
	case OpAggFinal:
		f, ok := in.P4.(*function.Func)
		if !ok || !f.IsAggregate() {
			return nil, ErrInvalidProgram.New(pc, "missing aggregate")
		}
		acc, ok := m.reg(in.P1).(function.Aggregator)
		if !ok {
			acc = f.NewAggregator(m.coll)
		}
		v, err := acc.Final()
		if err != nil {
			return nil, err
		}
		m.set(in.P1, v)

	case OpOpenRead:
		t, ok := in.P4.(*sql.Table)
		if !ok {
			return nil, ErrInvalidProgram.New(pc, "missing table")
		}
		rows, err := m.storage.Rows(ctx, t)
		if err != nil {
			return nil, err
		}
		recs := make([]Record, len(rows))
		for i, r := range rows {
			recs[i] = Record(r)
		}
		m.stats.TableScans++
		m.openCursor(in.P1, &cursor{kind: tableCursor, rows: recs})
	case OpOpenEphemeral, OpSorterOpen:
		key, _ := in.P4.(*KeyDef)
		if key == nil {
			key = NewKeyDef(in.P2)
		}
		kind := ephemeralCursor
		if in.Op == OpSorterOpen {
			kind = sorterCursor
		}
		m.openCursor(in.P1, &cursor{kind: kind, key: key})
	case OpOpenPseudo:
		m.openCursor(in.P1, &cursor{kind: pseudoCursor, reg: in.P2})
	case OpMakeRecord:
		aff, _ := in.P4.(string)
		rec := make(Record, in.P2)
		for i := range rec {
			v := m.value(in.P1 + i)
			if i < len(aff) {
				v = sql.ApplyAffinity(v, sql.Affinity(aff[i]))
			}
			rec[i] = v
		}
		m.set(in.P3, rec)
	case OpClose:
		if in.P1 >= 0 && in.P1 < len(m.cursors) {
			m.cursors[in.P1] = nil
		}

	default:
		return m.execCursor(in, pc, &next)
	}
	return nil, nil
}

// execCursor runs the instructions that work on an open cursor.
func (m *Machine) execCursor(in *Instruction, pc int, next *int) (sql.Row, error) {
	if in.Op == OpResultRow {
		row := make(sql.Row, in.P2)
		copy(row, m.values(in.P1, in.P2))
		return row, nil
	}
	if in.Op == OpPermutation {
		m.perm, _ = in.P4.([]int)
		return nil, nil
	}
	if in.Op == OpCompare {
		m.cmp = m.compareRange(in)
		return nil, nil
	}

	c, err := m.cursor(in.P1)
	if err != nil {
		return nil, err
	}

	switch in.Op {
	case OpRewind, OpSort:
		c.pos, c.nullRow, c.deleted = 0, false, false
		if m.size(c) == 0 {
			*next = in.P2
		}
	case OpLast:
		c.pos, c.nullRow, c.deleted = len(c.rows)-1, false, false
		if len(c.rows) == 0 && in.P2 != 0 {
			*next = in.P2
		}
	case OpNext:
		if c.nullRow {
			c.nullRow = false
			c.pos = m.size(c)
			break
		}
		if c.deleted {
			c.deleted = false
		} else {
			c.pos++
		}
		if c.pos < m.size(c) {
			*next = in.P2
		}
	case OpPrev:
		c.deleted = false
		c.pos--
		if c.pos >= 0 && c.pos < len(c.rows) {
			*next = in.P2
		}
	case OpColumn:
		var v interface{}
		if rec := m.current(c); in.P2 < len(rec) {
			v = rec[in.P2]
		}
		m.set(in.P3, v)
	case OpNullRow:
		c.nullRow = true
	case OpCount:
		m.set(in.P2, int64(len(c.rows)))
	case OpRowData, OpSorterData:
		rec := m.current(c)
		if rec == nil {
			return nil, ErrInvalidProgram.New(pc, "cursor has no current row")
		}
		m.set(in.P2, append(Record(nil), rec...))
	case OpIdxInsert:
		rec, ok := m.reg(in.P2).(Record)
		if !ok {
			return nil, ErrInvalidProgram.New(pc, "register does not hold a record")
		}
		c.insert(rec)
		m.noteSize(c)
	case OpSorterInsert:
		rec, ok := m.reg(in.P2).(Record)
		if !ok {
			return nil, ErrInvalidProgram.New(pc, "register does not hold a record")
		}
		c.rows = append(c.rows, rec)
		m.noteSize(c)
	case OpIdxDelete:
		probe := Record(m.values(in.P2, in.P3))
		if i := c.search(probe); i < len(c.rows) && c.key.ComparePrefix(c.rows[i], probe, in.P3) == 0 {
			c.remove(i)
		}
	case OpDelete:
		if c.pos >= 0 && c.pos < len(c.rows) {
			c.remove(c.pos)
			c.deleted = true
		}
	case OpFound, OpNotFound:
		var probe Record
		if n, _ := in.P4.(int); n > 0 {
			probe = Record(m.values(in.P3, n))
		} else {
			probe, _ = m.reg(in.P3).(Record)
		}
		i := c.search(probe)
		found := i < len(c.rows) && c.key.Compare(c.rows[i], probe) == 0
		if found == (in.Op == OpFound) {
			*next = in.P2
		}
	case OpIdxLE:
		n, _ := in.P4.(int)
		rec := m.current(c)
		if rec != nil && c.key.ComparePrefix(rec, Record(m.values(in.P3, n)), n) <= 0 {
			*next = in.P2
		}
	case OpSequence:
		m.set(in.P2, c.seq)
		c.seq++
	case OpSequenceTest:
		if c.seq == 0 {
			*next = in.P2
		}
		c.seq++
	case OpNextIDEphemeral:
		m.set(in.P2, c.nextID)
		c.nextID++
	case OpResetSorter:
		c.rows, c.pos = nil, 0
	case OpSorterSort:
		sort.SliceStable(c.rows, func(i, j int) bool {
			return c.key.Compare(c.rows[i], c.rows[j]) < 0
		})
		c.pos, c.nullRow = 0, false
		if len(c.rows) == 0 {
			*next = in.P2
		}
	case OpSorterNext:
		c.pos++
		if c.pos < len(c.rows) {
			*next = in.P2
		}
	default:
		return nil, ErrInvalidProgram.New(pc, "unknown opcode "+in.Op.String())
	}
	return nil, nil
}

// compare evaluates a comparison opcode, returning 1, 0 or NULL.
func (m *Machine) compare(in *Instruction) interface{} {
	a, b := m.reg(in.P1), m.reg(in.P3)
	_, aCleared := a.(cleared)
	_, bCleared := b.(cleared)
	aNull, bNull := a == nil || aCleared, b == nil || bCleared

	if aNull || bNull {
		if in.P5&NullEq == 0 || (in.Op != OpEq && in.Op != OpNe) {
			return nil
		}
		eq := aNull && bNull && !aCleared && !bCleared
		return boolValue(eq == (in.Op == OpEq))
	}

	c := sql.Compare(a, b, collationOf(in.P4))
	switch in.Op {
	case OpEq:
		return boolValue(c == 0)
	case OpNe:
		return boolValue(c != 0)
	case OpLt:
		return boolValue(c < 0)
	case OpLe:
		return boolValue(c <= 0)
	case OpGt:
		return boolValue(c > 0)
	default:
		return boolValue(c >= 0)
	}
}

func (m *Machine) compareRange(in *Instruction) int {
	key, _ := in.P4.(*KeyDef)
	for i := 0; i < in.P3; i++ {
		idx := i
		if in.P5&Permute != 0 && i < len(m.perm) {
			idx = m.perm[i]
		}
		part := KeyPart{Collation: sql.Binary}
		if key != nil && i < len(key.Parts) {
			part = key.Parts[i]
		}
		c := sql.Compare(m.value(in.P1+idx), m.value(in.P2+idx), part.Collation)
		if c != 0 {
			if part.Desc {
				return -c
			}
			return c
		}
	}
	return 0
}

func castValue(v interface{}, aff sql.Affinity) interface{} {
	if v == nil {
		return nil
	}
	switch aff {
	case sql.AffinityText:
		s, _ := sql.ToText(v)
		return s
	case sql.AffinityBlob:
		s, _ := sql.ToText(v)
		return []byte(s)
	case sql.AffinityInteger:
		switch x := sql.ToNumeric(v).(type) {
		case float64:
			return int64(x)
		default:
			return x
		}
	case sql.AffinityReal:
		return cast.ToFloat64(sql.ToNumeric(v))
	default:
		return sql.ToNumeric(v)
	}
}
