package compiler

import (
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-selectc.v0/sql/vdbe"
)

// recursiveQuery emits a recursive common table expression. sel is the
// recursive arm, reading the current row through its IsRecursive FROM
// entry, and sel.Prior the setup query.
//
// The setup query fills a queue. Then, until the queue is empty, the
// first row is taken out of it, output, and the recursive arm runs once
// with it as the content of the recursive table, adding its rows to the
// queue. With UNION rows already queued once are skipped. With ORDER BY
// the queue is a priority queue and rows come out in that order.
func (p *Parse) recursiveQuery(sel *tree.Select, dest *Dest) {
	b := p.b
	setup := sel.Prior
	nCol := len(sel.Columns)

	span, _ := p.ctx.Span("compile.recursive")
	defer span.Finish()

	addrBreak := b.MakeLabel()
	sel.RowEstimate = 1 << 32
	p.computeLimitRegisters(sel, addrBreak)
	limit, offset := sel.Limit, sel.Offset
	regLimit, regOffset := sel.LimitReg, sel.OffsetReg
	sel.Limit, sel.Offset = nil, nil
	sel.LimitReg, sel.OffsetReg = 0, 0
	orderBy := sel.OrderBy
	defer func() {
		sel.OrderBy = orderBy
		sel.Limit, sel.Offset = limit, offset
	}()

	iCurrent := -1
	for _, item := range sel.From {
		if item.IsRecursive {
			iCurrent = item.Cursor
			break
		}
	}

	// The index of seen rows must be the cursor right after the queue.
	iQueue := b.AllocCursor()
	kind := DestFifo
	distinct := sel.Op == tree.Union
	switch {
	case distinct && len(orderBy) > 0:
		kind = DestDistQueue
	case distinct:
		kind = DestDistFifo
	case len(orderBy) > 0:
		kind = DestQueue
	}
	iDistinct := -1
	if distinct {
		iDistinct = b.AllocCursor()
	}
	queue := NewDest(kind, iQueue)

	regCurrent := b.AllocReg()
	b.Op3(vdbe.OpOpenPseudo, iCurrent, regCurrent, nCol)
	if len(orderBy) > 0 {
		b.Op4(vdbe.OpOpenEphemeral, iQueue, len(orderBy)+2, 0, p.orderByKeyDef(sel, 1))
		queue.OrderBy = orderBy
	} else {
		b.Op4(vdbe.OpOpenEphemeral, iQueue, nCol+1, 0, &vdbe.KeyDef{
			Parts: []vdbe.KeyPart{{Field: nCol, Collation: sql.Binary}},
		})
	}
	b.Comment("queue table")
	if distinct {
		sel.AddrOpenEphemeral[0] = b.Op2(vdbe.OpOpenEphemeral, iDistinct, 0)
		sel.Flags |= tree.SFUsesEphemeral
	}

	sel.OrderBy = nil

	next := setup.Next
	setup.Next = nil
	err := p.Select(setup, queue)
	setup.Next = next
	if err != nil {
		return
	}

	addrTop := b.Op2(vdbe.OpRewind, iQueue, addrBreak)
	b.Op1(vdbe.OpNullRow, iCurrent)
	if len(orderBy) > 0 {
		b.Op3(vdbe.OpColumn, iQueue, len(orderBy)+1, regCurrent)
	} else {
		b.Op2(vdbe.OpRowData, iQueue, regCurrent)
	}
	b.Op1(vdbe.OpDelete, iQueue)

	addrCont := b.MakeLabel()
	if regOffset > 0 {
		b.Op3(vdbe.OpIfPos, regOffset, addrCont, 1)
		b.Comment("OFFSET")
	}
	p.selectInnerLoop(sel, iCurrent, nil, nil, dest, addrCont, addrBreak)
	if regLimit > 0 {
		b.Op2(vdbe.OpDecrJumpZero, regLimit, addrBreak)
		b.Comment("LIMIT")
	}
	b.ResolveLabel(addrCont)

	if sel.HasFlag(tree.SFAggregate) {
		p.Error(ErrRecursiveAggregate.New())
		return
	}
	sel.Prior = nil
	queue.Reg, queue.Count = 0, 0
	_ = p.Select(sel, queue)
	sel.Prior = setup

	b.Op2(vdbe.OpGoto, 0, addrTop)
	b.ResolveLabel(addrBreak)
	sel.LimitReg, sel.OffsetReg = regLimit, regOffset
}

// orderByKeyDef is the key of an index over the ORDER BY terms of a
// compound select followed by extra binary fields. A term without COLLATE
// gets the collation of its result column, which is also attached to the
// term so that every arm sorts the same way.
func (p *Parse) orderByKeyDef(sel *tree.Select, extra int) *vdbe.KeyDef {
	k := &vdbe.KeyDef{}
	for i, it := range sel.OrderBy {
		coll, explicit := it.Expr.Collation()
		if !explicit {
			coll = sql.Binary
			if it.OrderByCol > 0 {
				coll = compoundCollation(sel, it.OrderByCol-1)
			}
			it.Expr = &tree.Expr{Op: tree.OpCollate, Name: string(coll), Left: it.Expr}
		}
		k.Parts = append(k.Parts, vdbe.KeyPart{
			Field:     i,
			Collation: normalCollation(coll),
			Desc:      it.Desc,
		})
	}
	n := len(k.Parts)
	for i := 0; i < extra; i++ {
		k.Parts = append(k.Parts, vdbe.KeyPart{Field: n + i, Collation: sql.Binary})
	}
	return k
}
