package compiler

import (
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-selectc.v0/sql/vdbe"
)

// distinctCtx tracks how SELECT DISTINCT removes duplicate rows.
type distinctCtx struct {
	isTnct bool
	kind   DistinctKind
	// tab is the ephemeral index remembering the rows seen so far.
	tab int
	// addrTnct is the address of the instruction opening tab.
	addrTnct int
}

func (d *distinctCtx) active() bool { return d != nil && d.isTnct }

// codeOffset skips the current row while the OFFSET counter is positive.
func (p *Parse) codeOffset(sel *tree.Select, cont int) {
	if sel.OffsetReg > 0 {
		p.b.Op3(vdbe.OpIfPos, sel.OffsetReg, cont, 1)
		p.b.Comment("OFFSET")
	}
}

// codeDistinct jumps to jump when the n registers starting at base were
// already seen, and remembers them otherwise.
func (p *Parse) codeDistinct(cursor, jump, n, base int) {
	b := p.b
	r := b.TempReg()
	b.Op4(vdbe.OpFound, cursor, jump, base, n)
	b.Op3(vdbe.OpMakeRecord, base, n, r)
	b.Op2(vdbe.OpIdxInsert, cursor, r)
	b.ReleaseTempReg(r)
}

// resultKeyDef is the key of an index over the result columns, using the
// collation of each column.
func resultKeyDef(cols tree.ExprList) *vdbe.KeyDef {
	k := &vdbe.KeyDef{Parts: make([]vdbe.KeyPart, len(cols))}
	for i, it := range cols {
		coll, _ := it.Expr.Collation()
		k.Parts[i] = vdbe.KeyPart{Field: i, Collation: normalCollation(coll)}
	}
	return k
}

func normalCollation(c sql.Collation) sql.Collation {
	if c == "" {
		return sql.Binary
	}
	return c
}

// selectInnerLoop emits the code run for each row of a simple select:
// it computes the result columns and hands them to the destination, or to
// the sorter when the rows must be ordered first. srcTab, when not
// negative, is a cursor whose columns are the result. cont moves to the
// next row, brk ends the scan.
func (p *Parse) selectInnerLoop(sel *tree.Select, srcTab int, sort *sortCtx, distinct *distinctCtx, dest *Dest, cont, brk int) {
	b := p.b
	if sort != nil && len(sort.orderBy) == 0 {
		sort = nil
	}
	hasDistinct := DistinctNoop
	if distinct.active() {
		hasDistinct = distinct.kind
	}
	if sort == nil && hasDistinct == DistinctNoop {
		p.codeOffset(sel, cont)
	}

	nResultCol := len(sel.Columns)
	nPrefixReg := 0
	if dest.Reg == 0 {
		if sort != nil {
			nPrefixReg = len(sort.orderBy)
			if !sort.useSorter {
				nPrefixReg++
			}
			b.AllocRegs(nPrefixReg)
		}
		dest.Reg = b.AllocRegs(nResultCol)
		dest.Count = nResultCol
	}
	regResult := dest.Reg
	regOrig := regResult

	switch {
	case srcTab >= 0:
		for i := 0; i < nResultCol; i++ {
			b.Op3(vdbe.OpColumn, srcTab, i, regResult+i)
		}
	case dest.Kind == DestMem:
		p.codeExprList(sel.Columns, regResult, 0)
	default:
		if sort != nil && hasDistinct == DistinctNoop && dest.Kind != DestEphemTab && dest.Kind != DestTable {
			sort.omit = make([]int, nResultCol)
			for i := sort.nOBSat; i < len(sort.orderBy); i++ {
				if j := sort.orderBy[i].OrderByCol; j > 0 {
					sort.omit[j-1] = i + 1 - sort.nOBSat
				}
			}
			regOrig = 0
		}
		n := 0
		for i, it := range sel.Columns {
			if sort != nil && sort.omit != nil && sort.omit[i] > 0 {
				continue
			}
			p.codeExpr(it.Expr, regResult+n)
			n++
		}
		nResultCol = n
	}

	if hasDistinct != DistinctNoop {
		p.codeDistinctRows(sel, distinct, regResult, nResultCol, cont)
		if sort == nil {
			p.codeOffset(sel, cont)
		}
	}

	switch dest.Kind {
	case DestUnion:
		r := b.TempReg()
		b.Op3(vdbe.OpMakeRecord, regResult, nResultCol, r)
		b.Op2(vdbe.OpIdxInsert, dest.Parm, r)
		b.ReleaseTempReg(r)

	case DestExcept:
		b.Op3(vdbe.OpIdxDelete, dest.Parm, regResult, nResultCol)

	case DestFifo, DestDistFifo, DestTable, DestEphemTab:
		r := b.TempReg()
		addr := -1
		if dest.Kind == DestDistFifo {
			b.Op3(vdbe.OpMakeRecord, regResult, nResultCol, r)
			addr = b.Op4(vdbe.OpFound, dest.Parm+1, 0, r, nil)
			b.Op2(vdbe.OpIdxInsert, dest.Parm+1, r)
		}
		if sort != nil {
			p.pushOntoSorter(sort, sel, regResult, regOrig, nResultCol, nPrefixReg)
		} else {
			p.insertEphemeralRow(dest.Parm, regResult, nResultCol)
		}
		b.JumpHere(addr)
		b.ReleaseTempReg(r)

	case DestSet:
		if sort != nil {
			p.pushOntoSorter(sort, sel, regResult, regOrig, nResultCol, nPrefixReg)
			break
		}
		r := b.TempReg()
		b.Op4(vdbe.OpMakeRecord, regResult, nResultCol, r, dest.Affinity)
		b.Op2(vdbe.OpIdxInsert, dest.Parm, r)
		b.ReleaseTempReg(r)

	case DestExists:
		b.Op2(vdbe.OpInteger, 1, dest.Parm)

	case DestMem, DestCoroutine, DestOutput:
		switch {
		case sort != nil:
			p.pushOntoSorter(sort, sel, regResult, regOrig, nResultCol, nPrefixReg)
		case dest.Kind == DestCoroutine:
			b.Op1(vdbe.OpYield, dest.Parm)
		case dest.Kind == DestOutput:
			b.Op2(vdbe.OpResultRow, regResult, nResultCol)
		}

	case DestQueue, DestDistQueue:
		p.pushOntoQueue(dest, regResult, nResultCol)

	case DestDiscard:
	}

	if sort == nil && sel.LimitReg > 0 {
		b.Op2(vdbe.OpDecrJumpZero, sel.LimitReg, brk)
		b.Comment("LIMIT")
	}
}

// codeDistinctRows skips the row in the n registers at regResult when it
// was already produced, using the strategy chosen by the planner.
func (p *Parse) codeDistinctRows(sel *tree.Select, distinct *distinctCtx, regResult, n, cont int) {
	b := p.b
	switch distinct.kind {
	case DistinctOrdered:
		// Duplicates are adjacent: compare with the previous row.
		regPrev := b.AllocRegs(n)
		op := b.Op(distinct.addrTnct)
		op.Op, op.P1, op.P2, op.P3, op.P4 = vdbe.OpNull, 1, regPrev, regPrev+n-1, nil

		iJump := b.Addr() + n
		for i := 0; i < n; i++ {
			coll, _ := sel.Columns[i].Expr.Collation()
			if i < n-1 {
				b.Op4(vdbe.OpNe, regResult+i, iJump, regPrev+i, normalCollation(coll))
			} else {
				b.Op4(vdbe.OpEq, regResult+i, cont, regPrev+i, normalCollation(coll))
			}
			b.SetP5(vdbe.NullEq)
		}
		b.Op3(vdbe.OpCopy, regResult, regPrev, n-1)

	case DistinctUnique:
		b.ChangeToNoop(distinct.addrTnct)

	default:
		p.codeDistinct(distinct.tab, cont, n, regResult)
	}
}

// insertEphemeralRow appends the n registers at reg to the ephemeral
// table cursor, after a row number keeping rows in insertion order.
func (p *Parse) insertEphemeralRow(cursor, reg, n int) {
	b := p.b
	rows := b.TempRange(n + 1)
	b.Op3(vdbe.OpCopy, reg, rows, n-1)
	b.Op2(vdbe.OpNextIDEphemeral, cursor, rows+n)
	r := b.TempReg()
	b.Op3(vdbe.OpMakeRecord, rows, n+1, r)
	b.Op2(vdbe.OpIdxInsert, cursor, r)
	b.ReleaseTempReg(r)
	b.ReleaseTempRange(rows, n+1)
}

// pushOntoQueue inserts the row into the priority queue of a recursive
// query: the ordering key, a sequence number and the row as a record.
func (p *Parse) pushOntoQueue(dest *Dest, regResult, n int) {
	b := p.b
	nKey := len(dest.OrderBy)
	addr := -1
	if dest.Kind == DestDistQueue {
		addr = b.Op4(vdbe.OpFound, dest.Parm+1, 0, regResult, n)
	}

	r1 := b.TempReg()
	r2 := b.TempRange(nKey + 2)
	r3 := r2 + nKey + 1
	b.Op3(vdbe.OpMakeRecord, regResult, n, r3)
	if dest.Kind == DestDistQueue {
		b.Op2(vdbe.OpIdxInsert, dest.Parm+1, r3)
	}
	for i, it := range dest.OrderBy {
		b.Op2(vdbe.OpSCopy, regResult+it.OrderByCol-1, r2+i)
	}
	b.Op2(vdbe.OpSequence, dest.Parm, r2+nKey)
	b.Op3(vdbe.OpMakeRecord, r2, nKey+2, r1)
	b.Op2(vdbe.OpIdxInsert, dest.Parm, r1)
	b.JumpHere(addr)
	b.ReleaseTempRange(r2, nKey+2)
	b.ReleaseTempReg(r1)
}
