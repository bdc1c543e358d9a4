package compiler

import (
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-selectc.v0/sql/vdbe"
)

// groupByAggregate emits an aggregate query with GROUP BY. Rows are
// visited in group order, sorting them first when the scan cannot deliver
// that order, and one output row is produced each time the group changes.
func (p *Parse) groupByAggregate(sel *tree.Select, sort *sortCtx, distinct *distinctCtx, dest *Dest) {
	b := p.b
	groupBy := sel.GroupBy
	nGroupBy := len(groupBy)

	var orderBy tree.ExprList
	if sort != nil {
		orderBy = sort.orderBy
	}
	orderByGrp := len(orderBy) > 0 && tree.ListEqual(groupBy, orderBy)
	addrEnd := b.MakeLabel()

	info := p.analyzeAggregates(sel, orderBy)
	if p.Failed() {
		return
	}

	keyDef := sortKeyDef(groupBy, 0, 0)
	info.sortingIdx = b.AllocCursor()
	addrSortingIdx := b.Op4(vdbe.OpSorterOpen, info.sortingIdx, info.nSortingColumn, 0, keyDef)

	useFlag := b.AllocReg()
	abortFlag := b.AllocReg()
	regOutputRow := b.AllocReg()
	addrOutputRow := b.MakeLabel()
	regReset := b.AllocReg()
	addrReset := b.MakeLabel()
	iAMem := b.AllocRegs(nGroupBy)
	iBMem := b.AllocRegs(nGroupBy)
	b.Op2(vdbe.OpInteger, 0, abortFlag)
	b.Comment("clear abort flag")
	b.Op2(vdbe.OpInteger, 0, useFlag)
	b.Comment("accumulator empty")
	b.Op3(vdbe.OpNull, 0, iAMem, iAMem+nGroupBy-1)
	b.Op2(vdbe.OpGosub, regReset, addrReset)

	flags := WhereGroupBy
	if orderByGrp {
		flags |= WhereSortByGroup
	}
	scan, err := p.planner.Begin(p, sel.From, sel.Where, groupBy, nil, flags, sel.RowEstimate)
	if err != nil {
		p.Error(err)
		return
	}

	groupBySort := scan.NumOrdered() < nGroupBy
	sortPTab, sortOut := 0, 0
	if groupBySort {
		// Push the group terms and the other columns read by the
		// aggregates into the sorter, then loop over the sorted rows.
		nCol := nGroupBy
		for _, c := range info.columns {
			if c.sorterColumn >= nCol {
				nCol++
			}
		}
		regBase := b.TempRange(nCol)
		p.codeExprList(groupBy, regBase, 0)
		j := nGroupBy
		for _, c := range info.columns {
			if c.sorterColumn >= j {
				p.codeColumn(c.cursor, c.column, regBase+j)
				j++
			}
		}
		regRecord := b.TempReg()
		b.Op3(vdbe.OpMakeRecord, regBase, nCol, regRecord)
		b.Op2(vdbe.OpSorterInsert, info.sortingIdx, regRecord)
		b.ReleaseTempReg(regRecord)
		b.ReleaseTempRange(regBase, nCol)
		scan.End()

		sortPTab = b.AllocCursor()
		sortOut = b.AllocReg()
		b.Op3(vdbe.OpOpenPseudo, sortPTab, sortOut, nCol)
		b.Op2(vdbe.OpSorterSort, info.sortingIdx, addrEnd)
		b.Comment("GROUP BY sort")
		info.useSortingIdx = true
		info.sortingIdxPTab = sortPTab
	}

	if orderByGrp && (groupBySort || scan.IsOrdered()) {
		b.ChangeToNoop(sort.addrSortIndex)
		sort.orderBy = nil
	}

	addrTopOfLoop := b.Addr()
	if groupBySort {
		b.Op3(vdbe.OpSorterData, info.sortingIdx, sortOut, sortPTab)
	}
	for j, it := range groupBy {
		if groupBySort {
			b.Op3(vdbe.OpColumn, sortPTab, j, iBMem+j)
		} else {
			p.codeExpr(it.Expr, iBMem+j)
		}
	}
	b.Op4(vdbe.OpCompare, iAMem, iBMem, nGroupBy, keyDef)
	addr1 := b.Addr()
	b.Op3(vdbe.OpJump, addr1+1, 0, addr1+1)

	// The group changed.
	b.Op3(vdbe.OpMove, iBMem, iAMem, nGroupBy)
	b.Op2(vdbe.OpGosub, regOutputRow, addrOutputRow)
	b.Comment("output one row")
	b.Op2(vdbe.OpIfPos, abortFlag, addrEnd)
	b.Comment("check abort flag")
	b.Op2(vdbe.OpGosub, regReset, addrReset)
	b.Comment("reset accumulator")

	b.JumpHere(addr1)
	p.updateAccumulator(info)
	b.Op2(vdbe.OpInteger, 1, useFlag)
	b.Comment("accumulator has data")

	if groupBySort {
		b.Op2(vdbe.OpSorterNext, info.sortingIdx, addrTopOfLoop)
	} else {
		scan.End()
		b.ChangeToNoop(addrSortingIdx)
	}

	b.Op2(vdbe.OpGosub, regOutputRow, addrOutputRow)
	b.Comment("output final row")
	b.Op2(vdbe.OpGoto, 0, addrEnd)

	addrSetAbort := b.Addr()
	b.Op2(vdbe.OpInteger, 1, abortFlag)
	b.Comment("set abort flag")
	b.Op1(vdbe.OpReturn, regOutputRow)

	// Output subroutine: nothing to do for an empty accumulator.
	b.ResolveLabel(addrOutputRow)
	addrOut := b.Addr()
	b.Op2(vdbe.OpIfPos, useFlag, addrOut+2)
	b.Op1(vdbe.OpReturn, regOutputRow)
	p.finalizeAggregates(info)
	p.IfFalse(sel.Having, addrOut+1, true)
	p.selectInnerLoop(sel, -1, sort, distinct, dest, addrOut+1, addrSetAbort)
	b.Op1(vdbe.OpReturn, regOutputRow)
	b.Comment("end group output")

	b.ResolveLabel(addrReset)
	p.resetAccumulator(info)
	b.Op1(vdbe.OpReturn, regReset)

	b.ResolveLabel(addrEnd)
}

// simpleAggregate emits an aggregate query without GROUP BY. It always
// produces exactly one row before HAVING, LIMIT and OFFSET apply.
func (p *Parse) simpleAggregate(sel *tree.Select, orderBy tree.ExprList, dest *Dest) {
	b := p.b
	addrEnd := b.MakeLabel()

	info := p.analyzeAggregates(sel, orderBy)
	if p.Failed() {
		return
	}

	if t := isSimpleCount(sel, info); t != nil {
		cursor := b.AllocCursor()
		b.Op4(vdbe.OpOpenRead, cursor, 0, 0, t)
		b.Op2(vdbe.OpCount, cursor, info.funcs[0].reg)
		b.Op1(vdbe.OpClose, cursor)
		p.log().WithField("table", t.Name).Debug("count(*) from table size")
	} else {
		var flag WhereFlags
		var minMax tree.ExprList
		if sel.Having == nil {
			flag, minMax = p.minMaxQuery(info)
		}

		p.resetAccumulator(info)
		scan, err := p.planner.Begin(p, sel.From, sel.Where, minMax, nil, flag, sel.RowEstimate)
		if err != nil {
			p.Error(err)
			return
		}
		p.updateAccumulator(info)
		if scan.NumOrdered() > 0 {
			b.Op2(vdbe.OpGoto, 0, scan.BreakLabel())
			if flag == WhereOrderByMin {
				b.Comment("min() by index")
			} else {
				b.Comment("max() by index")
			}
		}
		scan.End()
		p.finalizeAggregates(info)
	}

	p.IfFalse(sel.Having, addrEnd, true)
	p.selectInnerLoop(sel, -1, nil, nil, dest, addrEnd, addrEnd)
	b.ResolveLabel(addrEnd)
}
