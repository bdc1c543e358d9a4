package compiler

import (
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-selectc.v0/sql/vdbe"
)

var compareOps = map[tree.Op]vdbe.Opcode{
	tree.OpEq:    vdbe.OpEq,
	tree.OpNe:    vdbe.OpNe,
	tree.OpLt:    vdbe.OpLt,
	tree.OpLe:    vdbe.OpLe,
	tree.OpGt:    vdbe.OpGt,
	tree.OpGe:    vdbe.OpGe,
	tree.OpIs:    vdbe.OpEq,
	tree.OpIsNot: vdbe.OpNe,
}

var negatedOps = map[tree.Op]tree.Op{
	tree.OpEq:    tree.OpNe,
	tree.OpNe:    tree.OpEq,
	tree.OpLt:    tree.OpGe,
	tree.OpGe:    tree.OpLt,
	tree.OpLe:    tree.OpGt,
	tree.OpGt:    tree.OpLe,
	tree.OpIs:    tree.OpIsNot,
	tree.OpIsNot: tree.OpIs,
}

var arithOps = map[tree.Op]vdbe.Opcode{
	tree.OpPlus:      vdbe.OpAdd,
	tree.OpMinus:     vdbe.OpSubtract,
	tree.OpMultiply:  vdbe.OpMultiply,
	tree.OpDivide:    vdbe.OpDivide,
	tree.OpRemainder: vdbe.OpRemainder,
	tree.OpConcat:    vdbe.OpConcat,
}

// CodeExpr emits code that computes e into the register target.
func (p *Parse) CodeExpr(e *tree.Expr, target int) { p.codeExpr(e, target) }

// codeTemp computes e into a scratch register the caller must release.
func (p *Parse) codeTemp(e *tree.Expr) int {
	r := p.b.TempReg()
	p.codeExpr(e, r)
	return r
}

// codeExprList computes the expressions of the list into consecutive
// registers. When src is not zero, items referring to a result column
// copy it from the registers starting at src.
func (p *Parse) codeExprList(list tree.ExprList, target, src int) {
	for i, it := range list {
		if src > 0 && it.OrderByCol > 0 {
			p.b.Op3(vdbe.OpCopy, src+it.OrderByCol-1, target+i, 0)
			continue
		}
		p.codeExpr(it.Expr, target+i)
	}
}

// codeColumn reads a column of the row source with the given cursor.
func (p *Parse) codeColumn(cursor, column, target int) {
	if item := p.coroutines[cursor]; item != nil {
		p.b.Op3(vdbe.OpCopy, item.RegResult+column, target, 0)
		return
	}
	if column < 0 {
		p.b.Op2(vdbe.OpNull, 0, target)
		return
	}
	p.b.Op3(vdbe.OpColumn, cursor, column, target)
}

func (p *Parse) codeExpr(e *tree.Expr, target int) {
	b := p.b
	if e == nil {
		b.Op2(vdbe.OpNull, 0, target)
		return
	}

	switch e.Op {
	case tree.OpNull:
		b.Op2(vdbe.OpNull, 0, target)
	case tree.OpInteger:
		v, _ := e.Value.(int64)
		b.Op2(vdbe.OpInteger, int(v), target)
	case tree.OpFloat:
		b.Op4(vdbe.OpReal, 0, target, 0, e.Value)
	case tree.OpString:
		b.Op4(vdbe.OpString, 0, target, 0, e.Value)
	case tree.OpBlob:
		b.Op4(vdbe.OpBlob, 0, target, 0, e.Value)

	case tree.OpColumn:
		p.codeColumn(e.Cursor, e.Column, target)
	case tree.OpAggColumn:
		info := p.aggs[e]
		switch {
		case info == nil:
			p.codeColumn(e.Cursor, e.Column, target)
		case !info.directMode:
			b.Op3(vdbe.OpCopy, info.columns[e.AggIndex].reg, target, 0)
		case info.useSortingIdx:
			b.Op3(vdbe.OpColumn, info.sortingIdxPTab, info.columns[e.AggIndex].sorterColumn, target)
		default:
			p.codeColumn(e.Cursor, e.Column, target)
		}
	case tree.OpAggFunction:
		info := p.aggs[e]
		if info == nil {
			p.Error(ErrAggregateMisuse.New(e.Name))
			b.Op2(vdbe.OpNull, 0, target)
			return
		}
		b.Op3(vdbe.OpCopy, info.funcs[e.AggIndex].reg, target, 0)
	case tree.OpRegister:
		if e.Reg != target {
			b.Op3(vdbe.OpCopy, e.Reg, target, 0)
		}

	case tree.OpEq, tree.OpNe, tree.OpLt, tree.OpLe, tree.OpGt, tree.OpGe, tree.OpIs, tree.OpIsNot:
		if p.vectorError(e.Left, e.Right) {
			return
		}
		r1, r2 := p.codeTemp(e.Left), p.codeTemp(e.Right)
		p.codeCompare(e.Op, e.Left, e.Right, r1, r2, target, vdbe.StoreP2)
		b.ReleaseTempReg(r1)
		b.ReleaseTempReg(r2)

	case tree.OpAnd, tree.OpOr:
		r1, r2 := p.codeTemp(e.Left), p.codeTemp(e.Right)
		op := vdbe.OpAnd
		if e.Op == tree.OpOr {
			op = vdbe.OpOr
		}
		b.Op3(op, r1, r2, target)
		b.ReleaseTempReg(r1)
		b.ReleaseTempReg(r2)
	case tree.OpNot:
		r := p.codeTemp(e.Left)
		b.Op2(vdbe.OpNot, r, target)
		b.ReleaseTempReg(r)

	case tree.OpPlus, tree.OpMinus, tree.OpMultiply, tree.OpDivide, tree.OpRemainder, tree.OpConcat:
		r1, r2 := p.codeTemp(e.Left), p.codeTemp(e.Right)
		b.Op3(arithOps[e.Op], r1, r2, target)
		b.ReleaseTempReg(r1)
		b.ReleaseTempReg(r2)
	case tree.OpNegate:
		switch v := e.Left.Value.(type) {
		case int64:
			if e.Left.Op == tree.OpInteger && v > 0 {
				b.Op2(vdbe.OpInteger, int(-v), target)
				return
			}
		case float64:
			if e.Left.Op == tree.OpFloat {
				b.Op4(vdbe.OpReal, 0, target, 0, -v)
				return
			}
		}
		r := p.codeTemp(e.Left)
		b.Op2(vdbe.OpNegate, r, target)
		b.ReleaseTempReg(r)

	case tree.OpIsNull, tree.OpNotNull:
		r := p.codeTemp(e.Left)
		b.Op2(vdbe.OpInteger, 1, target)
		op := vdbe.OpIsNull
		if e.Op == tree.OpNotNull {
			op = vdbe.OpNotNull
		}
		addr := b.Op1(op, r)
		b.Op2(vdbe.OpInteger, 0, target)
		b.JumpHere(addr)
		b.ReleaseTempReg(r)

	case tree.OpCollate:
		p.codeExpr(e.Left, target)
	case tree.OpCast:
		p.codeExpr(e.Left, target)
		b.Op2(vdbe.OpCast, target, int(sql.AffinityOf(e.Name)))

	case tree.OpFunction:
		p.codeFunction(e, target)
	case tree.OpBetween:
		p.codeExpr(p.betweenExpr(e), target)
	case tree.OpIn:
		if e.Select != nil {
			p.codeInSubquery(e, target)
		} else {
			p.codeInList(e, target)
		}
	case tree.OpExists:
		p.codeExists(e, target)
	case tree.OpSelect:
		p.codeScalarSubquery(e, target)
	case tree.OpCase:
		p.codeCase(e, target)

	case tree.OpVector:
		p.Error(ErrRowValueMisused.New())
	default:
		p.Error(ErrUnsupportedExpression.New(e.String()))
	}
}

// comparisonCollation picks the collation of a comparison: an explicit
// COLLATE on the left, then on the right, then the collation of a column
// operand.
func comparisonCollation(left, right *tree.Expr) sql.Collation {
	lc, lexplicit := left.Collation()
	rc, rexplicit := right.Collation()
	switch {
	case lexplicit:
		return lc
	case rexplicit:
		return rc
	case lc != "" && lc != sql.Binary:
		return lc
	case rc != "":
		return rc
	}
	return sql.Binary
}

// hasAffinity reports whether the expression has a type of its own that
// the other side of a comparison is converted to.
func hasAffinity(e *tree.Expr) bool {
	if e == nil {
		return false
	}
	switch e.Op {
	case tree.OpColumn, tree.OpAggColumn, tree.OpCast, tree.OpSelect:
		return e.Affinity() != sql.AffinityBlob
	case tree.OpCollate:
		return hasAffinity(e.Left)
	}
	return false
}

// comparisonAffinity is the affinity applied to both operands of a
// comparison, or 0 when values are compared as they are.
func comparisonAffinity(left, right *tree.Expr) sql.Affinity {
	la, ra := hasAffinity(left), hasAffinity(right)
	switch {
	case la && ra:
		if left.Affinity().IsNumeric() || right.Affinity().IsNumeric() {
			return sql.AffinityNumeric
		}
		return 0
	case la:
		return left.Affinity()
	case ra:
		return right.Affinity()
	}
	return 0
}

// codeCompare emits a comparison of r1 and r2, holding the values of left
// and right. Without StoreP2 in p5 it jumps to dest when the comparison
// holds; with it, it stores the result in dest.
func (p *Parse) codeCompare(op tree.Op, left, right *tree.Expr, r1, r2, dest int, p5 uint16) {
	if aff := comparisonAffinity(left, right); aff != 0 {
		p.b.Op4(vdbe.OpAffinity, r1, 1, 0, string(aff))
		p.b.Op4(vdbe.OpAffinity, r2, 1, 0, string(aff))
	}
	if op == tree.OpIs || op == tree.OpIsNot {
		p5 |= vdbe.NullEq
		p5 &^= vdbe.JumpIfNull
	}
	p.b.Op4(compareOps[op], r1, dest, r2, comparisonCollation(left, right))
	p.b.SetP5(p5)
}

func (p *Parse) codeFunction(e *tree.Expr, target int) {
	b := p.b
	n := len(e.List)
	f, err := p.funcs.Function(e.Name, n)
	if err != nil {
		p.Error(err)
		return
	}

	base := 0
	if n > 0 {
		base = b.TempRange(n)
		for i, it := range e.List {
			p.codeExpr(it.Expr, base+i)
		}
	}
	if f.NeedCollation {
		b.Op4(vdbe.OpCollSeq, 0, 0, 0, listCollation(e.List))
	}
	b.Op4(vdbe.OpFunction, base, n, target, f)
	if n > 0 {
		b.ReleaseTempRange(base, n)
	}
}

// listCollation returns the first explicit collation among the
// arguments, or the collation of the first column argument.
func listCollation(list tree.ExprList) sql.Collation {
	coll := sql.Binary
	found := false
	for _, it := range list {
		c, explicit := it.Expr.Collation()
		if explicit {
			return c
		}
		if !found && c != "" && c != sql.Binary {
			coll, found = c, true
		}
	}
	return coll
}

// betweenExpr rewrites x BETWEEN a AND b as x >= a AND x <= b.
func (p *Parse) betweenExpr(e *tree.Expr) *tree.Expr {
	return tree.NewBinary(tree.OpAnd,
		tree.NewBinary(tree.OpGe, p.dupExpr(e.Left), p.dupExpr(e.List[0].Expr)),
		tree.NewBinary(tree.OpLe, p.dupExpr(e.Left), p.dupExpr(e.List[1].Expr)),
	)
}

// dupExpr copies an expression, keeping the aggregate information of the
// aggregate nodes it contains.
func (p *Parse) dupExpr(e *tree.Expr) *tree.Expr {
	n := e.Dup()
	if len(p.aggs) == 0 || e == nil {
		return n
	}
	var orig, copies []*tree.Expr
	tree.Inspect(e, func(x *tree.Expr) bool {
		orig = append(orig, x)
		return true
	})
	tree.Inspect(n, func(x *tree.Expr) bool {
		copies = append(copies, x)
		return true
	})
	for i, x := range orig {
		if info, ok := p.aggs[x]; ok && i < len(copies) {
			p.aggs[copies[i]] = info
		}
	}
	return n
}

// vectorError reports the first operand that is a row value where a
// single value is expected. A subquery gets its column count in the error.
func (p *Parse) vectorError(operands ...*tree.Expr) bool {
	for _, e := range operands {
		n := e.VectorSize()
		if n == 1 {
			continue
		}
		if e.Op == tree.OpSelect {
			p.Error(ErrSubqueryColumns.New(n, 1))
		} else {
			p.Error(ErrRowValueMisused.New())
		}
		return true
	}
	return false
}

// codeInList computes x IN (a, b, ...) with three-valued logic: NULL when
// no item matches and x or some item is NULL.
func (p *Parse) codeInList(e *tree.Expr, target int) {
	b := p.b
	if p.vectorError(e.Left) {
		return
	}

	lblTrue, lblNull, done := b.MakeLabel(), b.MakeLabel(), b.MakeLabel()
	b.Op2(vdbe.OpInteger, 0, target)
	rx := p.codeTemp(e.Left)
	b.Op2(vdbe.OpIsNull, rx, lblNull)
	rHasNull := b.AllocReg()
	b.Op2(vdbe.OpInteger, 0, rHasNull)

	rl := b.TempReg()
	for _, it := range e.List {
		next := b.MakeLabel()
		rt := p.codeTemp(it.Expr)
		b.Op3(vdbe.OpSCopy, rx, rl, 0)
		p.codeCompare(tree.OpEq, e.Left, it.Expr, rl, rt, lblTrue, 0)
		b.Op2(vdbe.OpNotNull, rt, next)
		b.Op2(vdbe.OpInteger, 1, rHasNull)
		b.ResolveLabel(next)
		b.ReleaseTempReg(rt)
	}
	b.ReleaseTempReg(rl)
	b.Op3(vdbe.OpIfNot, rHasNull, done, 0)

	b.ResolveLabel(lblNull)
	b.Op2(vdbe.OpNull, 0, target)
	b.Op2(vdbe.OpGoto, 0, done)
	b.ResolveLabel(lblTrue)
	b.Op2(vdbe.OpInteger, 1, target)
	b.ResolveLabel(done)
	b.ReleaseTempReg(rx)
}

// codeInSubquery computes x IN (SELECT ...). The subquery fills an
// ephemeral index once, or on every evaluation when it is correlated.
func (p *Parse) codeInSubquery(e *tree.Expr, target int) {
	b := p.b
	sub := e.Select
	if p.vectorError(e.Left) {
		return
	}
	if n := len(sub.Columns); n != 1 {
		p.Error(ErrSubqueryColumns.New(n, 1))
		return
	}

	col := sub.Columns[0].Expr
	aff := comparisonAffinity(e.Left, col)
	if aff == 0 {
		aff = sql.AffinityBlob
	}
	coll := comparisonCollation(e.Left, col)

	cursor := b.AllocCursor()
	addrOnce := -1
	if !e.HasFlag(tree.FlagCorrelated) {
		addrOnce = b.Op0(vdbe.OpOnce)
	}
	b.Op4(vdbe.OpOpenEphemeral, cursor, 1, 0, &vdbe.KeyDef{
		Parts: []vdbe.KeyPart{{Field: 0, Collation: coll}},
	})
	dest := NewDest(DestSet, cursor)
	dest.Affinity = string(aff)
	_ = p.Select(sub, dest)
	b.JumpHere(addrOnce)

	lblTrue, lblNull, done := b.MakeLabel(), b.MakeLabel(), b.MakeLabel()
	b.Op2(vdbe.OpInteger, 0, target)
	rx := p.codeTemp(e.Left)
	b.Op4(vdbe.OpAffinity, rx, 1, 0, string(aff))
	nullX := b.Op1(vdbe.OpIsNull, rx)
	b.Op4(vdbe.OpFound, cursor, lblTrue, rx, 1)
	rn := b.TempReg()
	b.Op2(vdbe.OpNull, 0, rn)
	b.Op4(vdbe.OpFound, cursor, lblNull, rn, 1)
	b.ReleaseTempReg(rn)
	b.Op2(vdbe.OpGoto, 0, done)

	// A NULL on the left is NULL unless the subquery is empty.
	b.JumpHere(nullX)
	b.Op2(vdbe.OpRewind, cursor, done)
	b.ResolveLabel(lblNull)
	b.Op2(vdbe.OpNull, 0, target)
	b.Op2(vdbe.OpGoto, 0, done)
	b.ResolveLabel(lblTrue)
	b.Op2(vdbe.OpInteger, 1, target)
	b.ResolveLabel(done)
	b.ReleaseTempReg(rx)
}

func (p *Parse) codeExists(e *tree.Expr, target int) {
	b := p.b
	sub := e.Select
	if sub.Limit == nil {
		sub.Limit = tree.NewInteger(1)
		sub.Limit.Flags |= tree.FlagSystem
	}

	reg := b.AllocReg()
	addrOnce := -1
	if !e.HasFlag(tree.FlagCorrelated) {
		addrOnce = b.Op0(vdbe.OpOnce)
	}
	b.Op2(vdbe.OpInteger, 0, reg)
	_ = p.Select(sub, NewDest(DestExists, reg))
	b.JumpHere(addrOnce)
	b.Op3(vdbe.OpCopy, reg, target, 0)
}

func (p *Parse) codeScalarSubquery(e *tree.Expr, target int) {
	b := p.b
	sub := e.Select
	n := len(sub.Columns)
	if n != 1 {
		p.Error(ErrSubqueryColumns.New(n, 1))
		return
	}

	reg := b.AllocRegs(n)
	addrOnce := -1
	if !e.HasFlag(tree.FlagCorrelated) {
		addrOnce = b.Op0(vdbe.OpOnce)
	}
	b.Op3(vdbe.OpNull, 0, reg, reg+n-1)
	if sub.Limit == nil {
		sub.Limit = tree.NewInteger(1)
		sub.Limit.Flags |= tree.FlagSystem
	}
	sub.Flags |= tree.SFSingleRow
	_ = p.Select(sub, NewDest(DestMem, reg))
	b.JumpHere(addrOnce)
	b.Op3(vdbe.OpCopy, reg, target, 0)
}

func (p *Parse) codeCase(e *tree.Expr, target int) {
	b := p.b
	end := b.MakeLabel()
	n := len(e.List)

	base := 0
	if e.Left != nil {
		base = p.codeTemp(e.Left)
	}
	rb := b.TempReg()
	for i := 0; i+1 < n; i += 2 {
		next := b.MakeLabel()
		when := e.List[i].Expr
		if e.Left != nil {
			rw := p.codeTemp(when)
			b.Op3(vdbe.OpSCopy, base, rb, 0)
			p.codeCompare(tree.OpNe, e.Left, when, rb, rw, next, vdbe.JumpIfNull)
			b.ReleaseTempReg(rw)
		} else {
			p.IfFalse(when, next, true)
		}
		p.codeExpr(e.List[i+1].Expr, target)
		b.Op2(vdbe.OpGoto, 0, end)
		b.ResolveLabel(next)
	}
	b.ReleaseTempReg(rb)
	if n%2 == 1 {
		p.codeExpr(e.List[n-1].Expr, target)
	} else {
		b.Op2(vdbe.OpNull, 0, target)
	}
	b.ResolveLabel(end)
	if e.Left != nil {
		b.ReleaseTempReg(base)
	}
}

// literalTruth returns the truth value of an integer literal.
func literalTruth(e *tree.Expr) (truth, ok bool) {
	if e == nil || e.Op != tree.OpInteger {
		return false, false
	}
	v, ok := e.IsInteger()
	return v != 0, ok
}

// IfTrue emits code that jumps to dest when e is true. A NULL result jumps
// when jumpIfNull is set.
func (p *Parse) IfTrue(e *tree.Expr, dest int, jumpIfNull bool) {
	b := p.b
	if e == nil {
		return
	}
	p5 := uint16(0)
	if jumpIfNull {
		p5 = vdbe.JumpIfNull
	}

	switch e.Op {
	case tree.OpAnd:
		skip := b.MakeLabel()
		p.IfFalse(e.Left, skip, !jumpIfNull)
		p.IfTrue(e.Right, dest, jumpIfNull)
		b.ResolveLabel(skip)
	case tree.OpOr:
		p.IfTrue(e.Left, dest, jumpIfNull)
		p.IfTrue(e.Right, dest, jumpIfNull)
	case tree.OpNot:
		p.IfFalse(e.Left, dest, jumpIfNull)
	case tree.OpEq, tree.OpNe, tree.OpLt, tree.OpLe, tree.OpGt, tree.OpGe, tree.OpIs, tree.OpIsNot:
		if p.vectorError(e.Left, e.Right) {
			return
		}
		r1, r2 := p.codeTemp(e.Left), p.codeTemp(e.Right)
		p.codeCompare(e.Op, e.Left, e.Right, r1, r2, dest, p5)
		b.ReleaseTempReg(r1)
		b.ReleaseTempReg(r2)
	case tree.OpIsNull, tree.OpNotNull:
		r := p.codeTemp(e.Left)
		op := vdbe.OpIsNull
		if e.Op == tree.OpNotNull {
			op = vdbe.OpNotNull
		}
		b.Op2(op, r, dest)
		b.ReleaseTempReg(r)
	case tree.OpBetween:
		p.IfTrue(p.betweenExpr(e), dest, jumpIfNull)
	default:
		if truth, ok := literalTruth(e); ok {
			if truth {
				b.Op2(vdbe.OpGoto, 0, dest)
			}
			return
		}
		r := p.codeTemp(e)
		b.Op3(vdbe.OpIf, r, dest, boolInt(jumpIfNull))
		b.ReleaseTempReg(r)
	}
}

// IfFalse emits code that jumps to dest when e is false. A NULL result
// jumps when jumpIfNull is set.
func (p *Parse) IfFalse(e *tree.Expr, dest int, jumpIfNull bool) {
	b := p.b
	if e == nil {
		return
	}
	p5 := uint16(0)
	if jumpIfNull {
		p5 = vdbe.JumpIfNull
	}

	switch e.Op {
	case tree.OpAnd:
		p.IfFalse(e.Left, dest, jumpIfNull)
		p.IfFalse(e.Right, dest, jumpIfNull)
	case tree.OpOr:
		skip := b.MakeLabel()
		p.IfTrue(e.Left, skip, !jumpIfNull)
		p.IfFalse(e.Right, dest, jumpIfNull)
		b.ResolveLabel(skip)
	case tree.OpNot:
		p.IfTrue(e.Left, dest, jumpIfNull)
	case tree.OpEq, tree.OpNe, tree.OpLt, tree.OpLe, tree.OpGt, tree.OpGe, tree.OpIs, tree.OpIsNot:
		if p.vectorError(e.Left, e.Right) {
			return
		}
		r1, r2 := p.codeTemp(e.Left), p.codeTemp(e.Right)
		p.codeCompare(negatedOps[e.Op], e.Left, e.Right, r1, r2, dest, p5)
		b.ReleaseTempReg(r1)
		b.ReleaseTempReg(r2)
	case tree.OpIsNull, tree.OpNotNull:
		r := p.codeTemp(e.Left)
		op := vdbe.OpNotNull
		if e.Op == tree.OpNotNull {
			op = vdbe.OpIsNull
		}
		b.Op2(op, r, dest)
		b.ReleaseTempReg(r)
	case tree.OpBetween:
		p.IfFalse(p.betweenExpr(e), dest, jumpIfNull)
	default:
		if truth, ok := literalTruth(e); ok {
			if !truth {
				b.Op2(vdbe.OpGoto, 0, dest)
			}
			return
		}
		r := p.codeTemp(e)
		b.Op3(vdbe.OpIfNot, r, dest, boolInt(jumpIfNull))
		b.ReleaseTempReg(r)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
