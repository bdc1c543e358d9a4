package compiler

import (
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-selectc.v0/sql/vdbe"
)

// multiSelectOrderBy emits a compound select with ORDER BY as a merge of
// two coroutines. The arm on the left (A) and sel (B) each produce their
// rows in ORDER BY order. The next row of the result is taken from the
// coroutine with the smaller current row:
//
//	          A<B       A==B      A>B       A done       B done
//	ALL       out A     out A     out B     rest of B    rest of A
//	UNION     out A     skip A    out B     rest of B    rest of A
//	EXCEPT    out A     skip A    skip B    stop         rest of A
//	INTERSECT skip A    out A     skip B    stop         stop
//
// Except for UNION ALL, rows equal to the previous output row are dropped.
func (p *Parse) multiSelectOrderBy(sel *tree.Select, dest *Dest) {
	b := p.b
	op := sel.Op
	prior := sel.Prior
	nCol := len(sel.Columns)

	span, _ := p.ctx.Span("compile.merge")
	defer span.Finish()

	labelEnd := b.MakeLabel()
	labelCmpr := b.MakeLabel()

	// Without UNION ALL the ordering must cover every column for the
	// duplicate checks to see equal rows next to each other.
	orderBy := sel.OrderBy
	if op != tree.UnionAll {
		for i := 1; i <= nCol; i++ {
			found := false
			for _, it := range orderBy {
				if it.OrderByCol == i {
					found = true
					break
				}
			}
			if !found {
				orderBy = append(orderBy, &tree.ExprItem{Expr: tree.NewInteger(int64(i)), OrderByCol: i})
			}
		}
		sel.OrderBy = orderBy
	}

	permute := make([]int, len(orderBy))
	for i, it := range orderBy {
		permute[i] = it.OrderByCol - 1
	}
	keyMerge := p.orderByKeyDef(sel, 0)

	priorOrderBy := make(tree.ExprList, len(orderBy))
	for i, it := range orderBy {
		priorOrderBy[i] = &tree.ExprItem{Expr: it.Expr.Dup(), Desc: it.Desc, OrderByCol: it.OrderByCol}
	}
	prior.OrderBy = priorOrderBy

	regPrev := 0
	var keyDup *vdbe.KeyDef
	if op != tree.UnionAll {
		regPrev = b.AllocRegs(nCol + 1)
		b.Op2(vdbe.OpInteger, 0, regPrev)
		keyDup = &vdbe.KeyDef{Parts: make([]vdbe.KeyPart, nCol)}
		for i := range keyDup.Parts {
			keyDup.Parts[i] = vdbe.KeyPart{Field: i, Collation: compoundCollation(sel, i)}
		}
	}

	// Detach the arms. An arm that is a single select orders by copies of
	// its own result columns.
	sel.Prior = nil
	prior.Next = nil
	defer func() {
		sel.Prior = prior
		prior.Next = sel
	}()
	orderByColumns(p, sel, sel.OrderBy)
	if prior.Prior == nil {
		orderByColumns(p, prior, prior.OrderBy)
	}

	p.computeLimitRegisters(sel, labelEnd)
	regLimitA, regLimitB := 0, 0
	if sel.LimitReg > 0 && op == tree.UnionAll {
		regLimitA = b.AllocReg()
		regLimitB = b.AllocReg()
		src := sel.LimitReg
		if sel.OffsetReg > 0 {
			src = sel.OffsetReg + 1
		}
		b.Op2(vdbe.OpCopy, src, regLimitA)
		b.Op2(vdbe.OpCopy, regLimitA, regLimitB)
	}
	limit, offset := sel.Limit, sel.Offset
	sel.Limit, sel.Offset = nil, nil
	defer func() { sel.Limit, sel.Offset = limit, offset }()

	regOutA := b.AllocReg()
	regOutB := b.AllocReg()

	coA := b.BeginCoroutine()
	b.Comment("left SELECT")
	destA := NewDest(DestCoroutine, coA.Reg)
	prior.LimitReg = regLimitA
	_ = p.Select(prior, destA)
	coA.End(b)

	coB := b.BeginCoroutine()
	b.Comment("right SELECT")
	destB := NewDest(DestCoroutine, coB.Reg)
	savedLimit, savedOffset := sel.LimitReg, sel.OffsetReg
	single := sel.Flags & tree.SFSingleRow
	sel.Flags &^= tree.SFSingleRow
	sel.LimitReg, sel.OffsetReg = regLimitB, 0
	_ = p.Select(sel, destB)
	sel.LimitReg, sel.OffsetReg = savedLimit, savedOffset
	sel.Flags |= single
	coB.End(b)
	if p.Failed() {
		return
	}

	addrInit := b.Op0(vdbe.OpGoto)

	addrOutA := p.outputSubroutine(sel, destA, dest, regOutA, regPrev, keyDup, labelEnd)
	b.Comment("output routine for A")
	addrOutB := 0
	if op == tree.UnionAll || op == tree.Union {
		addrOutB = p.outputSubroutine(sel, destB, dest, regOutB, regPrev, keyDup, labelEnd)
		b.Comment("output routine for B")
	}

	// A is done: output what is left of B.
	var addrEofA, addrEofANoB int
	if op == tree.Except || op == tree.Intersect {
		addrEofA, addrEofANoB = labelEnd, labelEnd
	} else {
		addrEofA = b.Op2(vdbe.OpGosub, regOutB, addrOutB)
		b.Comment("eof-A subroutine")
		addrEofANoB = coB.Resume(b, labelEnd)
		b.Op2(vdbe.OpGoto, 0, addrEofA)
		sel.RowEstimate += prior.RowEstimate
	}

	// B is done: output what is left of A.
	var addrEofB int
	if op == tree.Intersect {
		addrEofB = addrEofA
		if sel.RowEstimate > prior.RowEstimate {
			sel.RowEstimate = prior.RowEstimate
		}
	} else {
		addrEofB = b.Op2(vdbe.OpGosub, regOutA, addrOutA)
		b.Comment("eof-B subroutine")
		coA.Resume(b, labelEnd)
		b.Op2(vdbe.OpGoto, 0, addrEofB)
	}

	addrAltB := b.Op2(vdbe.OpGosub, regOutA, addrOutA)
	b.Comment("A-lt-B subroutine")
	coA.Resume(b, addrEofA)
	b.Op2(vdbe.OpGoto, 0, labelCmpr)

	var addrAeqB int
	switch op {
	case tree.UnionAll:
		addrAeqB = addrAltB
	case tree.Intersect:
		addrAeqB = addrAltB
		addrAltB++
	default:
		addrAeqB = coA.Resume(b, addrEofA)
		b.Comment("A-eq-B subroutine")
		b.Op2(vdbe.OpGoto, 0, labelCmpr)
	}

	addrAgtB := b.Addr()
	if op == tree.UnionAll || op == tree.Union {
		b.Op2(vdbe.OpGosub, regOutB, addrOutB)
		b.Comment("A-gt-B subroutine")
	}
	coB.Resume(b, addrEofB)
	b.Op2(vdbe.OpGoto, 0, labelCmpr)

	b.JumpHere(addrInit)
	coA.Resume(b, addrEofANoB)
	coB.Resume(b, addrEofB)

	b.ResolveLabel(labelCmpr)
	b.Op4(vdbe.OpPermutation, 0, 0, 0, permute)
	b.Op4(vdbe.OpCompare, destA.Reg, destB.Reg, len(orderBy), keyMerge)
	b.SetP5(vdbe.Permute)
	b.Op3(vdbe.OpJump, addrAltB, addrAeqB, addrAgtB)

	b.ResolveLabel(labelEnd)
	p.log().WithField("op", op.String()).Debug("compound select merged")
}

// orderByColumns replaces every ORDER BY term naming a result column of s
// by a copy of that column, keeping a COLLATE the term has.
func orderByColumns(p *Parse, s *tree.Select, orderBy tree.ExprList) {
	for _, it := range orderBy {
		if it.OrderByCol > 0 && it.OrderByCol <= len(s.Columns) {
			p.replaceWithColumn(it, s.Columns[it.OrderByCol-1].Expr)
		}
	}
}

// outputSubroutine emits the subroutine sending the current row of the
// coroutine in to dest. With regPrev set, a row equal to the previous one
// is skipped. It returns the address of the subroutine.
func (p *Parse) outputSubroutine(sel *tree.Select, in, dest *Dest, regReturn, regPrev int, key *vdbe.KeyDef, brk int) int {
	b := p.b
	addr := b.Addr()
	cont := b.MakeLabel()

	if regPrev > 0 {
		addr1 := b.Op1(vdbe.OpIfNot, regPrev)
		addr2 := b.Op4(vdbe.OpCompare, in.Reg, regPrev+1, in.Count, key)
		b.Op3(vdbe.OpJump, addr2+2, cont, addr2+2)
		b.JumpHere(addr1)
		b.Op3(vdbe.OpCopy, in.Reg, regPrev+1, in.Count-1)
		b.Op2(vdbe.OpInteger, 1, regPrev)
	}

	p.codeOffset(sel, cont)

	switch dest.Kind {
	case DestEphemTab, DestTable, DestFifo:
		p.insertEphemeralRow(dest.Parm, in.Reg, in.Count)
	case DestSet:
		r := b.TempReg()
		b.Op4(vdbe.OpMakeRecord, in.Reg, in.Count, r, dest.Affinity)
		b.Op2(vdbe.OpIdxInsert, dest.Parm, r)
		b.ReleaseTempReg(r)
	case DestMem:
		b.Op3(vdbe.OpCopy, in.Reg, dest.Parm, in.Count-1)
	case DestCoroutine:
		if dest.Reg == 0 {
			dest.Reg = b.AllocRegs(in.Count)
			dest.Count = in.Count
		}
		b.Op3(vdbe.OpCopy, in.Reg, dest.Reg, in.Count-1)
		b.Op1(vdbe.OpYield, dest.Parm)
	default:
		b.Op2(vdbe.OpResultRow, in.Reg, in.Count)
	}

	if sel.LimitReg > 0 {
		b.Op2(vdbe.OpDecrJumpZero, sel.LimitReg, brk)
	}
	b.ResolveLabel(cont)
	b.Op1(vdbe.OpReturn, regReturn)
	return addr
}
