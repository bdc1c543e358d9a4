package compiler

import (
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-selectc.v0/sql/vdbe"
)

// Select emits the code running sel and sending each of its rows to
// dest. Compile errors are recorded in the Parse; the first one recorded
// while compiling sel is returned.
func (p *Parse) Select(sel *tree.Select, dest *Dest) error {
	nErr := p.ErrorCount()
	p.depth++
	defer func() { p.depth-- }()
	if max := p.Config().MaxDepth; p.depth > max {
		p.Error(ErrTooDeep.New(max))
		return p.errorSince(nErr)
	}

	p.prepare(sel)
	if p.Failed() {
		return p.errorSince(nErr)
	}

	span, _ := p.ctx.Span("compile.select")
	defer span.Finish()

	b := p.b
	if dest.Kind.ignoresOrder() {
		sel.OrderBy = nil
	}
	if dest.Kind.ignoresDistinct() {
		sel.Flags &^= tree.SFDistinct
	}
	if dest.Kind == DestMem {
		dest.Reg, dest.Count = dest.Parm, len(sel.Columns)
	}

	isAgg := sel.HasFlag(tree.SFAggregate)

	// Merge FROM subqueries into sel where possible. Each success restarts
	// the scan since the FROM clause changed.
	for i := 0; sel.Prior == nil && i < len(sel.From); i++ {
		item := sel.From[i]
		sub := item.Select
		if sub == nil {
			continue
		}
		if item.Table != nil && len(item.Table.Columns) != len(sub.Columns) {
			p.Error(ErrFlattenColumnCount.New(len(item.Table.Columns), item.Table.Name, len(sub.Columns)))
			return p.errorSince(nErr)
		}
		subIsAgg := sub.HasFlag(tree.SFAggregate)
		if p.flattenSubquery(sel, i, isAgg, subIsAgg) {
			if subIsAgg {
				isAgg = true
				sel.Flags |= tree.SFAggregate
			}
			i = -1
		}
		if p.Failed() {
			return p.errorSince(nErr)
		}
	}
	if dest.Kind.ignoresOrder() {
		sel.OrderBy = nil
	}

	if sel.Prior != nil {
		p.multiSelect(sel, dest)
		if sel.HasFlag(tree.SFSingleRow) && sel.LimitReg > 0 {
			p.checkSingleRow(sel)
		}
		return p.errorSince(nErr)
	}

	for i, item := range sel.From {
		if item.Select == nil || item.AddrFillSub != 0 {
			continue
		}
		p.compileFromSubquery(sel, i)
		if p.Failed() {
			return p.errorSince(nErr)
		}
	}

	isTnct := sel.HasFlag(tree.SFDistinct)
	// SELECT DISTINCT x ... ORDER BY x is SELECT x ... GROUP BY x ORDER BY x:
	// one sorter serves both.
	if sel.Flags&(tree.SFDistinct|tree.SFAggregate) == tree.SFDistinct && len(sel.OrderBy) > 0 &&
		tree.ListEqual(sel.OrderBy, sel.Columns) {
		sel.Flags &^= tree.SFDistinct
		sel.GroupBy = sel.Columns.Dup()
		for _, it := range sel.GroupBy {
			it.Name, it.Span = "", ""
		}
		isAgg = true
		p.log().Debug("DISTINCT turned into GROUP BY")
	}

	sort := &sortCtx{orderBy: sel.OrderBy, addrSortIndex: -1}
	nCol := len(sel.Columns)
	if len(sort.orderBy) > 0 {
		sort.cursor = b.AllocCursor()
		sort.labelDone = b.MakeLabel()
		sort.addrSortIndex = b.Op4(vdbe.OpOpenEphemeral, sort.cursor, len(sort.orderBy)+1+nCol, 0,
			sortKeyDef(sort.orderBy, 0, 1))
	}

	if dest.Kind == DestEphemTab {
		b.Op4(vdbe.OpOpenEphemeral, dest.Parm, nCol+1, 0, &vdbe.KeyDef{
			Parts: []vdbe.KeyPart{{Field: nCol, Collation: sql.Binary}},
		})
	}

	iEnd := b.MakeLabel()
	if !sel.HasFlag(tree.SFFixedLimit) {
		sel.RowEstimate = 1 << 32
	}
	p.computeLimitRegisters(sel, iEnd)
	if sel.LimitReg == 0 && sort.addrSortIndex >= 0 {
		op := b.Op(sort.addrSortIndex)
		op.Op = vdbe.OpSorterOpen
		op.P4 = sortKeyDef(sort.orderBy, 0, 0)
		sort.useSorter = true
	}

	distinct := &distinctCtx{isTnct: isTnct, kind: DistinctNoop, addrTnct: -1}
	if sel.HasFlag(tree.SFDistinct) {
		distinct.tab = b.AllocCursor()
		distinct.addrTnct = b.Op4(vdbe.OpOpenEphemeral, distinct.tab, 0, 0, resultKeyDef(sel.Columns))
		distinct.kind = DistinctUnordered
	}

	switch {
	case !isAgg && len(sel.GroupBy) == 0:
		var flags WhereFlags
		if isTnct {
			flags |= WhereWantDistinct
		}
		if sel.HasFlag(tree.SFFixedLimit) {
			flags |= WhereUseLimit
		}
		scan, err := p.planner.Begin(p, sel.From, sel.Where, sort.orderBy, sel.Columns, flags, sel.RowEstimate)
		if err != nil {
			p.Error(err)
			return p.errorSince(nErr)
		}
		if n := scan.OutputRowCount(); n < sel.RowEstimate {
			sel.RowEstimate = n
		}
		if isTnct {
			if k := scan.Distinct(); k != DistinctNoop {
				distinct.kind = k
			}
		}
		if len(sort.orderBy) > 0 {
			sort.nOBSat = scan.NumOrdered()
			if sort.nOBSat == len(sort.orderBy) {
				sort.orderBy = nil
			}
		}
		if sort.addrSortIndex >= 0 && len(sort.orderBy) == 0 {
			b.ChangeToNoop(sort.addrSortIndex)
		}
		p.selectInnerLoop(sel, -1, sort, distinct, dest, scan.ContinueLabel(), scan.BreakLabel())
		scan.End()

	case len(sel.GroupBy) > 0:
		p.groupByAggregate(sel, sort, distinct, dest)

	default:
		p.simpleAggregate(sel, sort.orderBy, dest)
		if sort.addrSortIndex >= 0 {
			b.ChangeToNoop(sort.addrSortIndex)
		}
		sort.orderBy = nil
	}
	if p.Failed() {
		return p.errorSince(nErr)
	}

	if distinct.kind == DistinctUnordered {
		p.log().Debug("DISTINCT uses a temporary index")
	}
	if len(sort.orderBy) > 0 {
		p.generateSortTail(sel, sort, nCol, dest)
	} else if sort.labelDone != 0 {
		b.ResolveLabel(sort.labelDone)
	}

	b.ResolveLabel(iEnd)
	if sel.HasFlag(tree.SFSingleRow) && sel.LimitReg > 0 {
		p.checkSingleRow(sel)
	}
	return p.errorSince(nErr)
}

// errorSince returns the first error recorded after the count n.
func (p *Parse) errorSince(n int) error {
	if len(p.errs) > n {
		return p.errs[n]
	}
	return nil
}

// compileFromSubquery emits the subquery of the i-th FROM entry of sel,
// after copying into it the WHERE terms of sel that only depend on its
// columns. The subquery runs as a coroutine when it is the outer loop of
// the scan, and fills an ephemeral table otherwise.
func (p *Parse) compileFromSubquery(sel *tree.Select, i int) {
	b := p.b
	item := sel.From[i]
	sub := item.Select

	if !item.JoinType.IsOuter() {
		if n := p.pushDownWhereTerms(sub, sel.Where, item.Cursor); n > 0 {
			p.log().WithField("terms", n).WithField("cursor", item.Cursor).Debug("WHERE terms pushed down")
		}
	}

	outer := i == 0 && (len(sel.From) == 1 || sel.From[1].JoinType&(tree.JTLeft|tree.JTCross) != 0)
	if outer && !sel.HasFlag(tree.SFAll) && !p.Config().DisableCoroutines {
		co := b.BeginCoroutine()
		b.Comment("%s", item.DisplayName())
		item.RegReturn = co.Reg
		item.AddrFillSub = co.Entry
		item.ViaCoroutine = true
		dest := NewDest(DestCoroutine, co.Reg)
		_ = p.Select(sub, dest)
		item.RegResult = dest.Reg
		if item.Table != nil {
			item.Table.RowEstimate = sub.RowEstimate
		}
		co.End(b)
		p.coroutines[item.Cursor] = item
		b.ClearTempRegs()
		return
	}

	// A subroutine filling the table once, or on every call when the
	// subquery is correlated. The first run falls through.
	item.RegReturn = b.AllocReg()
	topAddr := b.Op2(vdbe.OpInteger, 0, item.RegReturn)
	item.AddrFillSub = topAddr + 1
	onceAddr := -1
	if !item.IsCorrelated {
		onceAddr = b.Op0(vdbe.OpOnce)
	}
	b.Comment("materialize %q", item.DisplayName())
	_ = p.Select(sub, NewDest(DestEphemTab, item.Cursor))
	if item.Table != nil {
		item.Table.RowEstimate = sub.RowEstimate
	}
	b.JumpHere(onceAddr)
	retAddr := b.Op1(vdbe.OpReturn, item.RegReturn)
	b.Comment("end %s", item.DisplayName())
	b.ChangeP1(topAddr, retAddr)
	b.ClearTempRegs()
}

// computeLimitRegisters loads the LIMIT and OFFSET counters of sel, once.
// LIMIT 0 jumps to brk, a negative LIMIT never stops the scan.
//
// A scalar subquery with the limit added by the compiler counts up to two
// rows so that a second one can be reported. One with a LIMIT written in
// the query must be limited with 1.
func (p *Parse) computeLimitRegisters(sel *tree.Select, brk int) {
	if sel.LimitReg > 0 || sel.Limit == nil {
		return
	}
	b := p.b
	limit := b.AllocReg()
	sel.LimitReg = limit
	single := sel.HasFlag(tree.SFSingleRow)
	system := sel.Limit.HasFlag(tree.FlagSystem)

	n, isInt := sel.Limit.IsInteger()
	switch {
	case single && system:
		n, isInt = 2, true
		b.Op2(vdbe.OpInteger, 2, limit)
	case isInt:
		b.Op2(vdbe.OpInteger, int(n), limit)
	default:
		p.codeExpr(sel.Limit, limit)
		b.Op1(vdbe.OpMustBeInt, limit)
	}
	b.Comment("LIMIT counter")

	if single && !system {
		r := b.TempReg()
		ok := b.MakeLabel()
		b.Op2(vdbe.OpInteger, 1, r)
		b.Op3(vdbe.OpEq, r, ok, limit)
		b.Op4(vdbe.OpHalt, 1, 0, 0, msgLimitedWithOne)
		b.ResolveLabel(ok)
		b.ReleaseTempReg(r)
		sel.Flags &^= tree.SFSingleRow
	}

	switch {
	case !isInt:
		b.Op2(vdbe.OpIfNot, limit, brk)
	case n == 0:
		b.Op2(vdbe.OpGoto, 0, brk)
	case n > 0 && sel.RowEstimate > n:
		sel.RowEstimate = n
		sel.Flags |= tree.SFFixedLimit
	}

	if sel.Offset != nil {
		offset := b.AllocRegs(2)
		sel.OffsetReg = offset
		p.codeExpr(sel.Offset, offset)
		b.Op1(vdbe.OpMustBeInt, offset)
		b.Comment("OFFSET counter")
		b.Op3(vdbe.OpOffsetLimit, limit, offset+1, offset)
		b.Comment("LIMIT+OFFSET")
	}
}

// checkSingleRow fails the statement when a scalar subquery produced a
// second row, which used up its limit of two.
func (p *Parse) checkSingleRow(sel *tree.Select) {
	b := p.b
	r := b.TempReg()
	ok := b.MakeLabel()
	b.Op2(vdbe.OpInteger, 0, r)
	b.Op3(vdbe.OpNe, r, ok, sel.LimitReg)
	b.Op4(vdbe.OpHalt, 1, 0, 0, msgTooManyRows)
	b.ResolveLabel(ok)
	b.ReleaseTempReg(r)
}
