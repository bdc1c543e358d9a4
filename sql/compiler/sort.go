package compiler

import (
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-selectc.v0/sql/vdbe"
)

// sortCtx is the state of the ORDER BY sorter of a select.
//
// Sorter records hold the ordering terms not satisfied by the scan, a
// sequence number unless useSorter is set, then the result columns not
// already present among the ordering terms.
type sortCtx struct {
	orderBy tree.ExprList
	// nOBSat is the number of leading terms the scan already satisfies.
	nOBSat int
	cursor int
	// addrSortIndex is the address of the instruction opening cursor.
	addrSortIndex int
	// labelDone is reached once every sorted row was output.
	labelDone int
	// labelBkOut and regReturn implement the subroutine flushing the
	// sorter when the satisfied prefix changes.
	labelBkOut int
	regReturn  int
	// useSorter replaces the ephemeral index by a sorter, used when there
	// is no LIMIT to bound its size.
	useSorter bool
	// omit maps each result column to the 1-based sorter field already
	// holding its value, or 0.
	omit []int
}

// sortKeyDef is the key of the sorter over the ordering terms from start,
// followed by extra binary fields.
func sortKeyDef(orderBy tree.ExprList, start, extra int) *vdbe.KeyDef {
	k := &vdbe.KeyDef{}
	for i, it := range orderBy[start:] {
		coll, _ := it.Expr.Collation()
		k.Parts = append(k.Parts, vdbe.KeyPart{
			Field:     i,
			Collation: normalCollation(coll),
			Desc:      it.Desc,
		})
	}
	n := len(k.Parts)
	for i := 0; i < extra; i++ {
		k.Parts = append(k.Parts, vdbe.KeyPart{Field: n + i, Collation: normalCollation("")})
	}
	return k
}

// iLimit is the counter bounding the number of rows the sorter keeps:
// LIMIT+OFFSET when there is an offset, LIMIT otherwise.
func iLimit(sel *tree.Select) int {
	if sel.OffsetReg > 0 {
		return sel.OffsetReg + 1
	}
	return sel.LimitReg
}

// pushOntoSorter adds the row in the nData registers at regData to the
// sorter. nPrefixReg registers right before regData are free for the
// ordering key. regOrigData, when not zero, holds the result columns the
// ordering terms may copy.
func (p *Parse) pushOntoSorter(sort *sortCtx, sel *tree.Select, regData, regOrigData, nData, nPrefixReg int) {
	b := p.b
	bSeq := 1
	if sort.useSorter {
		bSeq = 0
	}
	nExpr := len(sort.orderBy)
	nBase := nExpr + bSeq + nData
	nOBSat := sort.nOBSat
	limit := iLimit(sel)

	regBase := regData - nPrefixReg
	if nPrefixReg == 0 {
		regBase = b.AllocRegs(nBase)
	}

	p.codeExprList(sort.orderBy, regBase, regOrigData)
	if bSeq > 0 {
		b.Op2(vdbe.OpSequence, sort.cursor, regBase+nExpr)
	}
	if nPrefixReg == 0 && nData > 0 {
		b.Op3(vdbe.OpCopy, regData, regBase+nExpr+bSeq, nData-1)
	}

	// The record is packed before a block flush can overwrite regData
	// with the rows it outputs.
	var regRecord int
	if nOBSat > 0 {
		regRecord = b.AllocReg()
	} else {
		regRecord = b.TempReg()
	}
	b.Op3(vdbe.OpMakeRecord, regBase+nOBSat, nBase-nOBSat, regRecord)

	if nOBSat > 0 {
		regPrevKey := b.AllocRegs(nOBSat)
		nKey := nExpr - nOBSat + bSeq

		var addrFirst int
		if bSeq > 0 {
			addrFirst = b.Op1(vdbe.OpIfNot, regBase+nExpr)
		} else {
			addrFirst = b.Op1(vdbe.OpSequenceTest, sort.cursor)
		}
		b.Op4(vdbe.OpCompare, regPrevKey, regBase, nOBSat, sortKeyDef(sort.orderBy[:nOBSat], 0, 0))

		op := b.Op(sort.addrSortIndex)
		op.P2 = nKey + nData
		op.P4 = sortKeyDef(sort.orderBy, nOBSat, bSeq)

		addrJmp := b.Addr()
		b.Op3(vdbe.OpJump, addrJmp+1, 0, addrJmp+1)
		sort.labelBkOut = b.MakeLabel()
		sort.regReturn = b.AllocReg()
		b.Op2(vdbe.OpGosub, sort.regReturn, sort.labelBkOut)
		b.Comment("flush sorted block")
		b.Op1(vdbe.OpResetSorter, sort.cursor)
		if limit > 0 {
			b.Op2(vdbe.OpIfNot, limit, sort.labelDone)
		}
		b.JumpHere(addrFirst)
		b.Op3(vdbe.OpCopy, regBase, regPrevKey, nOBSat-1)
		b.JumpHere(addrJmp)
	}

	skip := -1
	if limit > 0 {
		// A full sorter keeps the new row only when it sorts before the
		// largest row held, which is then dropped.
		addr := b.Op1(vdbe.OpIfNotZero, limit)
		b.Op1(vdbe.OpLast, sort.cursor)
		skip = b.Op4(vdbe.OpIdxLE, sort.cursor, 0, regBase+nOBSat, nExpr-nOBSat)
		b.Op1(vdbe.OpDelete, sort.cursor)
		b.JumpHere(addr)
	}
	if sort.useSorter {
		b.Op2(vdbe.OpSorterInsert, sort.cursor, regRecord)
	} else {
		b.Op2(vdbe.OpIdxInsert, sort.cursor, regRecord)
	}
	b.JumpHere(skip)
	if nOBSat == 0 {
		b.ReleaseTempReg(regRecord)
	}
}

// generateSortTail reads the sorted rows back and sends them to the
// destination.
func (p *Parse) generateSortTail(sel *tree.Select, sort *sortCtx, nColumn int, dest *Dest) {
	b := p.b
	addrBreak := sort.labelDone
	addrContinue := b.MakeLabel()

	if sort.labelBkOut != 0 {
		b.Op2(vdbe.OpGosub, sort.regReturn, sort.labelBkOut)
		b.Op2(vdbe.OpGoto, 0, addrBreak)
		b.ResolveLabel(sort.labelBkOut)
	}

	var regRow int
	switch dest.Kind {
	case DestOutput, DestCoroutine, DestMem:
		regRow = dest.Reg
	default:
		regRow = b.TempRange(nColumn)
	}

	iTab := sort.cursor
	nKey := len(sort.orderBy) - sort.nOBSat
	bSeq := 0
	var iSortTab, addr int
	if sort.useSorter {
		regSortOut := b.AllocReg()
		iSortTab = b.AllocCursor()
		addrOnce := -1
		if sort.labelBkOut != 0 {
			addrOnce = b.Op0(vdbe.OpOnce)
		}
		b.Op3(vdbe.OpOpenPseudo, iSortTab, regSortOut, nKey+1+nColumn)
		b.JumpHere(addrOnce)
		addr = 1 + b.Op2(vdbe.OpSorterSort, iTab, addrBreak)
		p.codeOffset(sel, addrContinue)
		b.Op3(vdbe.OpSorterData, iTab, regSortOut, iSortTab)
	} else {
		addr = 1 + b.Op2(vdbe.OpSort, iTab, addrBreak)
		p.codeOffset(sel, addrContinue)
		iSortTab = iTab
		bSeq = 1
	}

	iCol := nKey + bSeq - 1
	for i := 0; i < nColumn; i++ {
		if !sort.omitted(i) {
			iCol++
		}
	}
	for i := nColumn - 1; i >= 0; i-- {
		iRead := iCol
		if sort.omitted(i) {
			iRead = sort.omit[i] - 1
		} else {
			iCol--
		}
		b.Op3(vdbe.OpColumn, iSortTab, iRead, regRow+i)
	}

	switch dest.Kind {
	case DestTable, DestEphemTab, DestFifo:
		p.insertEphemeralRow(dest.Parm, regRow, nColumn)
	case DestSet:
		r := b.TempReg()
		b.Op4(vdbe.OpMakeRecord, regRow, nColumn, r, dest.Affinity)
		b.Op2(vdbe.OpIdxInsert, dest.Parm, r)
		b.ReleaseTempReg(r)
	case DestMem:
	case DestCoroutine:
		b.Op1(vdbe.OpYield, dest.Parm)
	default:
		b.Op2(vdbe.OpResultRow, regRow, nColumn)
	}
	if regRow != dest.Reg {
		b.ReleaseTempRange(regRow, nColumn)
	}

	b.ResolveLabel(addrContinue)
	if sort.useSorter {
		b.Op2(vdbe.OpSorterNext, iTab, addr)
	} else {
		b.Op2(vdbe.OpNext, iTab, addr)
	}
	if sort.regReturn != 0 {
		b.Op1(vdbe.OpReturn, sort.regReturn)
	}
	b.ResolveLabel(addrBreak)
}

func (s *sortCtx) omitted(i int) bool {
	return s.omit != nil && i < len(s.omit) && s.omit[i] > 0
}
