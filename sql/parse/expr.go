package parse

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-vitess.v1/vt/sqlparser"
)

func selectExprsToList(se sqlparser.SelectExprs) (tree.ExprList, error) {
	list := make(tree.ExprList, len(se))
	for i, e := range se {
		it, err := selectExprToItem(e)
		if err != nil {
			return nil, err
		}
		list[i] = it
	}
	return list, nil
}

func selectExprToItem(se sqlparser.SelectExpr) (*tree.ExprItem, error) {
	switch e := se.(type) {
	default:
		return nil, ErrUnsupportedSyntax.New(sqlparser.String(se))
	case *sqlparser.StarExpr:
		return &tree.ExprItem{Expr: tree.NewStar(e.TableName.Name.String())}, nil
	case *sqlparser.AliasedExpr:
		expr, err := exprToExpr(e.Expr)
		if err != nil {
			return nil, err
		}
		return &tree.ExprItem{
			Expr: expr,
			Name: e.As.String(),
			Span: sqlparser.String(e.Expr),
		}, nil
	}
}

func exprsToList(exprs ...sqlparser.Expr) (tree.ExprList, error) {
	list := make(tree.ExprList, len(exprs))
	for i, e := range exprs {
		expr, err := exprToExpr(e)
		if err != nil {
			return nil, err
		}
		list[i] = &tree.ExprItem{Expr: expr}
	}
	return list, nil
}

func exprToExpr(e sqlparser.Expr) (*tree.Expr, error) {
	switch v := e.(type) {
	default:
		return nil, ErrUnsupportedSyntax.New(sqlparser.String(e))
	case *sqlparser.SubstrExpr:
		args := []sqlparser.Expr{v.Name, v.From}
		if v.To != nil {
			args = append(args, v.To)
		}
		list, err := exprsToList(args...)
		if err != nil {
			return nil, err
		}
		return &tree.Expr{Op: tree.OpFunction, Name: "substr", List: list}, nil
	case *sqlparser.ComparisonExpr:
		return comparisonExprToExpr(v)
	case *sqlparser.IsExpr:
		return isExprToExpr(v)
	case *sqlparser.NotExpr:
		c, err := exprToExpr(v.Expr)
		if err != nil {
			return nil, err
		}
		return tree.NewUnary(tree.OpNot, c), nil
	case *sqlparser.SQLVal:
		return convertVal(v)
	case sqlparser.BoolVal:
		if v {
			return tree.NewInteger(1), nil
		}
		return tree.NewInteger(0), nil
	case *sqlparser.NullVal:
		return tree.NewNull(), nil
	case *sqlparser.ColName:
		return tree.NewID(v.Qualifier.Name.String(), v.Name.String()), nil
	case *sqlparser.FuncExpr:
		return funcExprToExpr(v)
	case *sqlparser.GroupConcatExpr:
		return groupConcatToExpr(v)
	case *sqlparser.ParenExpr:
		return exprToExpr(v.Expr)
	case *sqlparser.AndExpr:
		return binaryToExpr(tree.OpAnd, v.Left, v.Right)
	case *sqlparser.OrExpr:
		return binaryToExpr(tree.OpOr, v.Left, v.Right)
	case *sqlparser.ConvertExpr:
		expr, err := exprToExpr(v.Expr)
		if err != nil {
			return nil, err
		}
		return &tree.Expr{Op: tree.OpCast, Left: expr, Name: strings.ToUpper(v.Type.Type)}, nil
	case *sqlparser.CollateExpr:
		expr, err := exprToExpr(v.Expr)
		if err != nil {
			return nil, err
		}
		return &tree.Expr{Op: tree.OpCollate, Left: expr, Name: v.Charset}, nil
	case *sqlparser.RangeCond:
		val, err := exprToExpr(v.Left)
		if err != nil {
			return nil, err
		}

		bounds, err := exprsToList(v.From, v.To)
		if err != nil {
			return nil, err
		}

		between := &tree.Expr{Op: tree.OpBetween, Left: val, List: bounds}
		switch v.Operator {
		case sqlparser.BetweenStr:
			return between, nil
		case sqlparser.NotBetweenStr:
			return tree.NewUnary(tree.OpNot, between), nil
		default:
			return nil, ErrUnsupportedFeature.New(fmt.Sprintf("RangeCond with operator: %s", v.Operator))
		}
	case sqlparser.ValTuple:
		list, err := exprsToList(v...)
		if err != nil {
			return nil, err
		}
		if len(list) == 1 {
			return list[0].Expr, nil
		}
		return &tree.Expr{Op: tree.OpVector, List: list}, nil
	case *sqlparser.Subquery:
		sel, err := convertSelectStatement(v.Select)
		if err != nil {
			return nil, err
		}
		return tree.NewSubquery(sel), nil
	case *sqlparser.ExistsExpr:
		sel, err := convertSelectStatement(v.Subquery.Select)
		if err != nil {
			return nil, err
		}
		return &tree.Expr{Op: tree.OpExists, Select: sel}, nil
	case *sqlparser.CaseExpr:
		return caseExprToExpr(v)
	case *sqlparser.UnaryExpr:
		expr, err := exprToExpr(v.Expr)
		if err != nil {
			return nil, err
		}
		switch v.Operator {
		case sqlparser.UMinusStr:
			return negate(expr), nil
		case sqlparser.UPlusStr:
			return expr, nil
		case sqlparser.BangStr:
			return tree.NewUnary(tree.OpNot, expr), nil
		default:
			return nil, ErrUnsupportedFeature.New(v.Operator)
		}
	case *sqlparser.BinaryExpr:
		return binaryExprToExpr(v)
	}
}

// negate folds the sign into numeric literals so that -1 stays a
// constant integer.
func negate(e *tree.Expr) *tree.Expr {
	switch e.Op {
	case tree.OpInteger:
		if v, ok := e.Value.(int64); ok {
			return tree.NewInteger(-v)
		}
	case tree.OpFloat:
		if v, ok := e.Value.(float64); ok {
			return tree.NewFloat(-v)
		}
	}
	return tree.NewUnary(tree.OpNegate, e)
}

func binaryToExpr(op tree.Op, left, right sqlparser.Expr) (*tree.Expr, error) {
	l, err := exprToExpr(left)
	if err != nil {
		return nil, err
	}

	r, err := exprToExpr(right)
	if err != nil {
		return nil, err
	}
	return tree.NewBinary(op, l, r), nil
}

func convertVal(v *sqlparser.SQLVal) (*tree.Expr, error) {
	switch v.Type {
	case sqlparser.StrVal:
		return tree.NewString(string(v.Val)), nil
	case sqlparser.IntVal:
		val, err := strconv.ParseInt(string(v.Val), 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(string(v.Val), 64)
			if ferr != nil {
				return nil, err
			}
			return tree.NewFloat(f), nil
		}
		return tree.NewInteger(val), nil
	case sqlparser.FloatVal:
		val, err := strconv.ParseFloat(string(v.Val), 64)
		if err != nil {
			return nil, err
		}
		return tree.NewFloat(val), nil
	case sqlparser.HexNum:
		v := strings.ToLower(string(v.Val))
		if strings.HasPrefix(v, "0x") {
			v = v[2:]
		}
		val, err := strconv.ParseInt(v, 16, 64)
		if err != nil {
			return nil, err
		}
		return tree.NewInteger(val), nil
	case sqlparser.HexVal:
		val, err := v.HexDecode()
		if err != nil {
			return nil, err
		}
		return &tree.Expr{Op: tree.OpBlob, Value: val}, nil
	case sqlparser.ValArg:
		return nil, ErrUnsupportedFeature.New("bind variables")
	case sqlparser.BitVal:
		return nil, ErrUnsupportedFeature.New("bit literals")
	}

	return nil, ErrInvalidSQLValType.New(v.Type)
}

func isExprToExpr(c *sqlparser.IsExpr) (*tree.Expr, error) {
	e, err := exprToExpr(c.Expr)
	if err != nil {
		return nil, err
	}

	switch c.Operator {
	case sqlparser.IsNullStr:
		return tree.NewUnary(tree.OpIsNull, e), nil
	case sqlparser.IsNotNullStr:
		return tree.NewUnary(tree.OpNotNull, e), nil
	case sqlparser.IsTrueStr:
		return tree.NewBinary(tree.OpIs, e, tree.NewInteger(1)), nil
	case sqlparser.IsFalseStr:
		return tree.NewBinary(tree.OpIs, e, tree.NewInteger(0)), nil
	default:
		return nil, ErrUnsupportedFeature.New(c.Operator)
	}
}

var comparisonOps = map[string]tree.Op{
	sqlparser.EqualStr:         tree.OpEq,
	sqlparser.LessThanStr:      tree.OpLt,
	sqlparser.LessEqualStr:     tree.OpLe,
	sqlparser.GreaterThanStr:   tree.OpGt,
	sqlparser.GreaterEqualStr:  tree.OpGe,
	sqlparser.NotEqualStr:      tree.OpNe,
	sqlparser.NullSafeEqualStr: tree.OpIs,
}

func comparisonExprToExpr(c *sqlparser.ComparisonExpr) (*tree.Expr, error) {
	if op, ok := comparisonOps[c.Operator]; ok {
		return binaryToExpr(op, c.Left, c.Right)
	}

	left, err := exprToExpr(c.Left)
	if err != nil {
		return nil, err
	}

	switch c.Operator {
	case sqlparser.InStr, sqlparser.NotInStr:
		in := &tree.Expr{Op: tree.OpIn, Left: left}
		switch r := c.Right.(type) {
		case sqlparser.ValTuple:
			if in.List, err = exprsToList(r...); err != nil {
				return nil, err
			}
		case *sqlparser.Subquery:
			if in.Select, err = convertSelectStatement(r.Select); err != nil {
				return nil, err
			}
		default:
			return nil, ErrUnsupportedSyntax.New(sqlparser.String(c))
		}
		if c.Operator == sqlparser.NotInStr {
			return tree.NewUnary(tree.OpNot, in), nil
		}
		return in, nil
	case sqlparser.LikeStr, sqlparser.NotLikeStr:
		if c.Escape != nil {
			return nil, ErrUnsupportedFeature.New("LIKE with ESCAPE")
		}
		right, err := exprToExpr(c.Right)
		if err != nil {
			return nil, err
		}
		like := tree.NewFunction("like", right, left)
		if c.Operator == sqlparser.NotLikeStr {
			return tree.NewUnary(tree.OpNot, like), nil
		}
		return like, nil
	default:
		return nil, ErrUnsupportedFeature.New(c.Operator)
	}
}

var binaryOps = map[string]tree.Op{
	sqlparser.PlusStr:  tree.OpPlus,
	sqlparser.MinusStr: tree.OpMinus,
	sqlparser.MultStr:  tree.OpMultiply,
	sqlparser.DivStr:   tree.OpDivide,
	sqlparser.ModStr:   tree.OpRemainder,
}

func binaryExprToExpr(be *sqlparser.BinaryExpr) (*tree.Expr, error) {
	op, ok := binaryOps[be.Operator]
	if !ok {
		return nil, ErrUnsupportedFeature.New(be.Operator)
	}
	return binaryToExpr(op, be.Left, be.Right)
}

func funcExprToExpr(f *sqlparser.FuncExpr) (*tree.Expr, error) {
	if !f.Qualifier.IsEmpty() {
		return nil, ErrUnsupportedFeature.New("qualified function " + sqlparser.String(f))
	}

	e := &tree.Expr{Op: tree.OpFunction, Name: f.Name.Lowered()}
	if f.Distinct {
		e.Flags |= tree.FlagDistinct
	}

	for _, se := range f.Exprs {
		switch arg := se.(type) {
		case *sqlparser.StarExpr:
			if !arg.TableName.IsEmpty() || len(f.Exprs) != 1 {
				return nil, ErrUnsupportedSyntax.New(sqlparser.String(f))
			}
			e.Flags |= tree.FlagStar
		case *sqlparser.AliasedExpr:
			expr, err := exprToExpr(arg.Expr)
			if err != nil {
				return nil, err
			}
			e.List = e.List.Append(expr)
		default:
			return nil, ErrUnsupportedSyntax.New(sqlparser.String(f))
		}
	}

	// concat(a, b, ...) is a || b || ...
	if e.Name == "concat" && len(e.List) > 0 && e.Flags == 0 {
		out := e.List[0].Expr
		for _, it := range e.List[1:] {
			out = tree.NewBinary(tree.OpConcat, out, it.Expr)
		}
		return out, nil
	}
	return e, nil
}

// groupConcatToExpr builds group_concat(x) or group_concat(x, sep). The
// separator is either the second argument or given by SEPARATOR.
func groupConcatToExpr(g *sqlparser.GroupConcatExpr) (*tree.Expr, error) {
	if len(g.OrderBy) > 0 {
		return nil, ErrUnsupportedFeature.New("ORDER BY in group_concat")
	}
	if len(g.Exprs) == 0 || len(g.Exprs) > 2 || (len(g.Exprs) == 2 && g.Separator != "") {
		return nil, ErrUnsupportedFeature.New("group_concat of several expressions")
	}

	e := &tree.Expr{Op: tree.OpFunction, Name: "group_concat"}
	for _, se := range g.Exprs {
		arg, err := selectExprToItem(se)
		if err != nil {
			return nil, err
		}
		e.List = e.List.Append(arg.Expr)
	}
	if g.Separator != "" {
		sep := strings.TrimPrefix(g.Separator, " separator '")
		e.List = e.List.Append(tree.NewString(strings.TrimSuffix(sep, "'")))
	}
	if g.Distinct != "" {
		e.Flags |= tree.FlagDistinct
	}
	return e, nil
}

func caseExprToExpr(c *sqlparser.CaseExpr) (*tree.Expr, error) {
	e := &tree.Expr{Op: tree.OpCase}
	if c.Expr != nil {
		base, err := exprToExpr(c.Expr)
		if err != nil {
			return nil, err
		}
		e.Left = base
	}

	for _, w := range c.Whens {
		list, err := exprsToList(w.Cond, w.Val)
		if err != nil {
			return nil, err
		}
		e.List = append(e.List, list...)
	}

	if c.Else != nil {
		els, err := exprToExpr(c.Else)
		if err != nil {
			return nil, err
		}
		e.List = e.List.Append(els)
	}
	return e, nil
}
