package compiler

import (
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-selectc.v0/sql/vdbe"
)

// multiSelect emits a compound select: sel is the right-most arm and
// sel.Prior the chain on its left.
func (p *Parse) multiSelect(sel *tree.Select, dest *Dest) {
	b := p.b
	prior := sel.Prior
	d := *dest
	defer func() { dest.Reg, dest.Count = d.Reg, d.Count }()

	span, _ := p.ctx.Span("compile.compound")
	defer span.Finish()

	for s := sel; s != nil; s = s.Prior {
		s.AddrOpenEphemeral = [2]int{-1, -1}
	}

	if d.Kind == DestEphemTab {
		b.Op4(vdbe.OpOpenEphemeral, d.Parm, len(sel.Columns)+1, 0, &vdbe.KeyDef{
			Parts: []vdbe.KeyPart{{Field: len(sel.Columns), Collation: sql.Binary}},
		})
		d.Kind = DestTable
	}

	switch {
	case sel.HasFlag(tree.SFMultiValue):
		p.multiSelectValues(sel, &d)
		return
	case sel.HasFlag(tree.SFRecursive):
		p.recursiveQuery(sel, &d)
	case len(sel.OrderBy) > 0:
		p.multiSelectOrderBy(sel, &d)
		return
	default:
		switch sel.Op {
		case tree.UnionAll:
			p.unionAll(sel, prior, &d)
		case tree.Union, tree.Except:
			p.unionExcept(sel, prior, &d)
		case tree.Intersect:
			p.intersect(sel, prior, &d)
		}
	}

	if sel.HasFlag(tree.SFUsesEphemeral) && !p.Failed() {
		p.finalizeEphemeralKeys(sel)
	}
}

// compileArm compiles sel alone, detached from the arms on its left and
// with its LIMIT and OFFSET put aside.
func (p *Parse) compileArm(sel *tree.Select, dest *Dest, keepLimit bool) {
	prior, limit, offset := sel.Prior, sel.Limit, sel.Offset
	single := sel.Flags & tree.SFSingleRow
	sel.Prior = nil
	sel.Flags &^= tree.SFSingleRow
	if !keepLimit {
		sel.Limit, sel.Offset = nil, nil
	}
	_ = p.Select(sel, dest)
	sel.Prior = prior
	sel.Limit, sel.Offset = limit, offset
	sel.Flags |= single
}

// unionAll runs the arm on the left then sel, both writing to dest and
// sharing the LIMIT and OFFSET counters.
func (p *Parse) unionAll(sel, prior *tree.Select, dest *Dest) {
	b := p.b
	iEnd := b.MakeLabel()
	p.computeLimitRegisters(sel, iEnd)
	prior.LimitReg, prior.OffsetReg = sel.LimitReg, sel.OffsetReg
	if p.Select(prior, dest) != nil {
		return
	}

	addr := -1
	if sel.LimitReg > 0 {
		addr = b.Op1(vdbe.OpIfNot, sel.LimitReg)
		b.Comment("jump ahead if LIMIT reached")
		if sel.OffsetReg > 0 {
			b.Op3(vdbe.OpOffsetLimit, sel.LimitReg, sel.OffsetReg+1, sel.OffsetReg)
		}
	}
	p.compileArm(sel, dest, true)
	sel.RowEstimate += prior.RowEstimate
	b.JumpHere(addr)
	b.ResolveLabel(iEnd)
}

// unionExcept collects the arms into an ephemeral index, inserting the
// rows of UNION arms and removing those of EXCEPT arms, then reads the
// index back.
func (p *Parse) unionExcept(sel, prior *tree.Select, dest *Dest) {
	b := p.b
	var unionTab int
	if dest.Kind == DestUnion {
		// Reuse the index of an enclosing UNION.
		unionTab = dest.Parm
	} else {
		unionTab = b.AllocCursor()
		sel.AddrOpenEphemeral[0] = b.Op2(vdbe.OpOpenEphemeral, unionTab, 0)
		rightmost(sel).Flags |= tree.SFUsesEphemeral
	}

	unionDest := NewDest(DestUnion, unionTab)
	if p.Select(prior, unionDest) != nil {
		return
	}

	if sel.Op == tree.Except {
		unionDest.Kind = DestExcept
	} else {
		unionDest.Kind = DestUnion
	}
	unionDest.Reg, unionDest.Count = 0, 0
	p.compileArm(sel, unionDest, false)
	sel.OrderBy = nil
	if sel.Op == tree.Union {
		sel.RowEstimate += prior.RowEstimate
	}

	if dest.Kind == DestUnion {
		return
	}
	iBreak, iCont := b.MakeLabel(), b.MakeLabel()
	p.computeLimitRegisters(sel, iBreak)
	b.Op2(vdbe.OpRewind, unionTab, iBreak)
	iStart := b.Addr()
	p.selectInnerLoop(sel, unionTab, nil, nil, dest, iCont, iBreak)
	b.ResolveLabel(iCont)
	b.Op2(vdbe.OpNext, unionTab, iStart)
	b.ResolveLabel(iBreak)
	b.Op1(vdbe.OpClose, unionTab)
}

// intersect collects the left arms and sel into two ephemeral indexes and
// outputs the rows of the first also found in the second.
func (p *Parse) intersect(sel, prior *tree.Select, dest *Dest) {
	b := p.b
	tab1 := b.AllocCursor()
	tab2 := b.AllocCursor()

	sel.AddrOpenEphemeral[0] = b.Op2(vdbe.OpOpenEphemeral, tab1, 0)
	rightmost(sel).Flags |= tree.SFUsesEphemeral
	if p.Select(prior, NewDest(DestUnion, tab1)) != nil {
		return
	}

	sel.AddrOpenEphemeral[1] = b.Op2(vdbe.OpOpenEphemeral, tab2, 0)
	p.compileArm(sel, NewDest(DestUnion, tab2), false)
	if prior.RowEstimate < sel.RowEstimate {
		sel.RowEstimate = prior.RowEstimate
	}

	iBreak, iCont := b.MakeLabel(), b.MakeLabel()
	p.computeLimitRegisters(sel, iBreak)
	b.Op2(vdbe.OpRewind, tab1, iBreak)
	r1 := b.TempReg()
	iStart := b.Op2(vdbe.OpRowData, tab1, r1)
	b.Op4(vdbe.OpNotFound, tab2, iCont, r1, nil)
	b.ReleaseTempReg(r1)
	p.selectInnerLoop(sel, tab1, nil, nil, dest, iCont, iBreak)
	b.ResolveLabel(iCont)
	b.Op2(vdbe.OpNext, tab1, iStart)
	b.ResolveLabel(iBreak)
	b.Op1(vdbe.OpClose, tab2)
	b.Op1(vdbe.OpClose, tab1)
}

// multiSelectValues emits a chain of VALUES rows, left to right, each as
// a select of its own.
func (p *Parse) multiSelectValues(sel *tree.Select, dest *Dest) {
	n := 0
	left := sel
	for ; left.Prior != nil; left = left.Prior {
		n++
	}
	for s := left; s != nil; s = s.Next {
		prior := s.Prior
		s.Prior = nil
		err := p.Select(s, dest)
		s.Prior = prior
		if err != nil {
			return
		}
		s.RowEstimate = int64(n + 1)
		if s == sel {
			break
		}
	}
}

// finalizeEphemeralKeys sets the key of every ephemeral index opened for
// the compound chain ending at sel: one field per result column, using
// the collation of the column.
func (p *Parse) finalizeEphemeralKeys(sel *tree.Select) {
	b := p.b
	n := len(sel.Columns)
	key := &vdbe.KeyDef{Parts: make([]vdbe.KeyPart, n)}
	for i := range key.Parts {
		key.Parts[i] = vdbe.KeyPart{Field: i, Collation: compoundCollation(sel, i)}
	}
	for s := sel; s != nil; s = s.Prior {
		for i, addr := range s.AddrOpenEphemeral {
			if addr < 0 {
				break
			}
			b.ChangeP2(addr, n)
			b.ChangeP4(addr, key.Copy())
			s.AddrOpenEphemeral[i] = -1
		}
	}
}

// compoundCollation is the collation of the i-th column of a compound
// select: the one of the left-most arm that has one, binary otherwise.
func compoundCollation(sel *tree.Select, i int) sql.Collation {
	for s := sel.Leftmost(); s != nil; s = s.Next {
		if i >= len(s.Columns) {
			break
		}
		if c, explicit := s.Columns[i].Expr.Collation(); explicit || (c != "" && c != sql.Binary) {
			return normalCollation(c)
		}
		if s == sel {
			break
		}
	}
	return sql.Binary
}

func rightmost(sel *tree.Select) *tree.Select {
	for sel.Next != nil {
		sel = sel.Next
	}
	return sel
}
