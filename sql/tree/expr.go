package tree // import "gopkg.in/src-d/go-selectc.v0/sql/tree"

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/src-d/go-selectc.v0/sql"
)

// Op is the operator of an expression node.
type Op uint8

// Expression operators.
const (
	OpNull Op = iota
	OpInteger
	OpFloat
	OpString
	OpBlob
	// OpID is a column name not yet resolved. Table holds the qualifier.
	OpID
	// OpAsterisk is "*" or "table.*" in a result column list.
	OpAsterisk
	// OpColumn is a column of the row source with the given Cursor.
	OpColumn
	// OpAggColumn is a column copied into the aggregate accumulator.
	OpAggColumn
	OpFunction
	OpAggFunction
	OpAnd
	OpOr
	OpNot
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpIs
	OpIsNot
	OpIsNull
	OpNotNull
	OpPlus
	OpMinus
	OpMultiply
	OpDivide
	OpRemainder
	OpConcat
	OpNegate
	// OpCollate is Left COLLATE Name.
	OpCollate
	// OpBetween is Left BETWEEN List[0] AND List[1].
	OpBetween
	// OpIn is Left IN (List) or Left IN (Select).
	OpIn
	OpExists
	// OpSelect is a scalar subquery.
	OpSelect
	// OpCase is CASE [Left] WHEN List[0] THEN List[1] ... [ELSE List[n-1]].
	OpCase
	// OpVector is a row value.
	OpVector
	// OpCast is CAST(Left AS Name).
	OpCast
	// OpRegister is a value already computed into register Reg.
	OpRegister
)

var opNames = map[Op]string{
	OpAnd:       "AND",
	OpOr:        "OR",
	OpEq:        "=",
	OpNe:        "<>",
	OpLt:        "<",
	OpLe:        "<=",
	OpGt:        ">",
	OpGe:        ">=",
	OpIs:        "IS",
	OpIsNot:     "IS NOT",
	OpPlus:      "+",
	OpMinus:     "-",
	OpMultiply:  "*",
	OpDivide:    "/",
	OpRemainder: "%",
	OpConcat:    "||",
}

// IsComparison returns whether the operator is a binary comparison.
func (o Op) IsComparison() bool {
	return o >= OpEq && o <= OpIsNot
}

// IsBinary returns whether the operator takes a Left and a Right operand.
func (o Op) IsBinary() bool {
	_, ok := opNames[o]
	return ok
}

// ExprFlags are properties of an expression node.
type ExprFlags uint16

const (
	// FlagFromJoin marks terms that come from the ON or USING clause of an
	// outer join. JoinTable holds the cursor of the right-hand table.
	FlagFromJoin ExprFlags = 1 << iota
	// FlagDistinct marks an aggregate with DISTINCT arguments.
	FlagDistinct
	// FlagCorrelated marks a subquery referencing columns of an outer query.
	FlagCorrelated
	// FlagStar marks a function called with "*", as in count(*).
	FlagStar
	// FlagResolved marks a node already processed by name resolution.
	FlagResolved
	// FlagAlias marks an expression copied from a result column alias.
	FlagAlias
	// FlagSystem marks a LIMIT added by the compiler rather than written in
	// the query.
	FlagSystem
)

// Expr is a node of an expression tree.
type Expr struct {
	Op     Op
	Left   *Expr
	Right  *Expr
	List   ExprList
	Select *Select
	// Value of literals: nil, int64, float64, string or []byte.
	Value interface{}
	// Name is the column name of OpID, the function name, the collation of
	// OpCollate or the target type of OpCast.
	Name string
	// Table is the qualifier of OpID and OpAsterisk.
	Table string
	Flags ExprFlags
	// Cursor and Column locate an OpColumn. Column -1 is the row id slot.
	Cursor int
	Column int
	// TableDef is the descriptor of the table Cursor reads from.
	TableDef *sql.Table
	// JoinTable is the right table cursor of an outer join term.
	JoinTable int
	// AggIndex locates OpAggColumn and OpAggFunction in the aggregate info
	// of the query being compiled.
	AggIndex int
	// Reg is the register of OpRegister.
	Reg int
}

// HasFlag returns whether all the given flags are set.
func (e *Expr) HasFlag(f ExprFlags) bool {
	return e != nil && e.Flags&f == f
}

// IsConstant returns whether the expression does not depend on any row
// source or subquery.
func (e *Expr) IsConstant() bool {
	constant := true
	Inspect(e, func(e *Expr) bool {
		switch e.Op {
		case OpID, OpColumn, OpAggColumn, OpAggFunction, OpSelect, OpExists, OpRegister:
			constant = false
		case OpFunction:
			if e.Select != nil {
				constant = false
			}
		case OpIn:
			if e.Select != nil {
				constant = false
			}
		}
		return constant
	})
	return constant
}

// IsInteger returns the value of an integer literal, looking through a
// unary minus.
func (e *Expr) IsInteger() (int64, bool) {
	if e == nil {
		return 0, false
	}
	switch e.Op {
	case OpInteger:
		v, ok := e.Value.(int64)
		return v, ok
	case OpNegate:
		v, ok := e.Left.IsInteger()
		return -v, ok
	}
	return 0, false
}

// VectorSize returns the number of values of a row value, 1 for scalars.
func (e *Expr) VectorSize() int {
	if e == nil {
		return 1
	}
	switch e.Op {
	case OpVector:
		return len(e.List)
	case OpSelect:
		if e.Select != nil {
			return len(e.Select.Columns)
		}
	}
	return 1
}

// Collation returns the collation explicitly attached with COLLATE, or
// the collation of the column the expression reads.
func (e *Expr) Collation() (sql.Collation, bool) {
	for e != nil {
		switch e.Op {
		case OpCollate:
			c, err := sql.ParseCollation(e.Name)
			if err != nil {
				return sql.Binary, true
			}
			return c, true
		case OpColumn, OpAggColumn:
			if e.TableDef != nil && e.Column >= 0 && e.Column < len(e.TableDef.Columns) {
				return e.TableDef.Columns[e.Column].Collation, false
			}
			return sql.Binary, false
		case OpCast:
			e = e.Left
		default:
			return sql.Binary, false
		}
	}
	return sql.Binary, false
}

// Affinity returns the affinity of the value computed by the expression.
func (e *Expr) Affinity() sql.Affinity {
	if e == nil {
		return sql.AffinityBlob
	}
	switch e.Op {
	case OpCollate:
		return e.Left.Affinity()
	case OpCast:
		return sql.AffinityOf(e.Name)
	case OpSelect:
		if e.Select != nil && len(e.Select.Columns) > 0 {
			return e.Select.Columns[0].Expr.Affinity()
		}
	case OpColumn, OpAggColumn:
		if e.TableDef != nil && e.Column >= 0 && e.Column < len(e.TableDef.Columns) {
			return e.TableDef.Columns[e.Column].Affinity
		}
		if e.Column < 0 {
			return sql.AffinityInteger
		}
	}
	return sql.AffinityBlob
}

func (e *Expr) String() string {
	if e == nil {
		return ""
	}
	switch e.Op {
	case OpNull:
		return "NULL"
	case OpInteger:
		return strconv.FormatInt(e.Value.(int64), 10)
	case OpFloat:
		return strconv.FormatFloat(e.Value.(float64), 'g', -1, 64)
	case OpString:
		return "'" + strings.Replace(fmt.Sprint(e.Value), "'", "''", -1) + "'"
	case OpBlob:
		return fmt.Sprintf("x'%x'", e.Value)
	case OpID:
		if e.Table != "" {
			return e.Table + "." + e.Name
		}
		return e.Name
	case OpAsterisk:
		if e.Table != "" {
			return e.Table + ".*"
		}
		return "*"
	case OpColumn, OpAggColumn:
		if e.TableDef != nil && e.Column >= 0 && e.Column < len(e.TableDef.Columns) {
			return e.TableDef.Columns[e.Column].Name
		}
		return fmt.Sprintf("{%d:%d}", e.Cursor, e.Column)
	case OpFunction, OpAggFunction:
		if e.HasFlag(FlagStar) {
			return e.Name + "(*)"
		}
		var distinct string
		if e.HasFlag(FlagDistinct) {
			distinct = "DISTINCT "
		}
		return e.Name + "(" + distinct + e.List.String() + ")"
	case OpNot:
		return "NOT " + e.Left.String()
	case OpNegate:
		return "-" + e.Left.String()
	case OpIsNull:
		return e.Left.String() + " IS NULL"
	case OpNotNull:
		return e.Left.String() + " IS NOT NULL"
	case OpCollate:
		return e.Left.String() + " COLLATE " + e.Name
	case OpBetween:
		return e.Left.String() + " BETWEEN " + e.List[0].Expr.String() + " AND " + e.List[1].Expr.String()
	case OpIn:
		if e.Select != nil {
			return e.Left.String() + " IN (" + e.Select.String() + ")"
		}
		return e.Left.String() + " IN (" + e.List.String() + ")"
	case OpExists:
		return "EXISTS (" + e.Select.String() + ")"
	case OpSelect:
		return "(" + e.Select.String() + ")"
	case OpVector:
		return "(" + e.List.String() + ")"
	case OpCast:
		return "CAST(" + e.Left.String() + " AS " + e.Name + ")"
	case OpRegister:
		return fmt.Sprintf("r[%d]", e.Reg)
	case OpCase:
		var b strings.Builder
		b.WriteString("CASE")
		if e.Left != nil {
			b.WriteString(" " + e.Left.String())
		}
		n := len(e.List)
		for i := 0; i+1 < n; i += 2 {
			b.WriteString(" WHEN " + e.List[i].Expr.String() + " THEN " + e.List[i+1].Expr.String())
		}
		if n%2 == 1 {
			b.WriteString(" ELSE " + e.List[n-1].Expr.String())
		}
		b.WriteString(" END")
		return b.String()
	}
	if name, ok := opNames[e.Op]; ok {
		return e.Left.String() + " " + name + " " + e.Right.String()
	}
	return fmt.Sprintf("?op%d", e.Op)
}

// ExprItem is one element of an expression list: a result column, an
// ordering term, a grouping term or a function argument.
type ExprItem struct {
	Expr *Expr
	// Name is the AS alias of a result column.
	Name string
	// Span is the original text of the expression, used to name result
	// columns without an alias.
	Span string
	// Desc marks a descending ORDER BY term.
	Desc bool
	// OrderByCol is the 1-based result column an ORDER BY or GROUP BY term
	// refers to, or 0.
	OrderByCol int
	// Done is scratch state for the compiler.
	Done bool
}

// ExprList is a list of expressions with per-item attributes.
type ExprList []*ExprItem

// NewExprList creates a list from bare expressions.
func NewExprList(exprs ...*Expr) ExprList {
	l := make(ExprList, len(exprs))
	for i, e := range exprs {
		l[i] = &ExprItem{Expr: e}
	}
	return l
}

// Append adds an expression to the list.
func (l ExprList) Append(e *Expr) ExprList {
	return append(l, &ExprItem{Expr: e})
}

// Exprs returns the expressions of the list.
func (l ExprList) Exprs() []*Expr {
	out := make([]*Expr, len(l))
	for i, it := range l {
		out[i] = it.Expr
	}
	return out
}

func (l ExprList) String() string {
	parts := make([]string, len(l))
	for i, it := range l {
		parts[i] = it.Expr.String()
		if it.Desc {
			parts[i] += " DESC"
		}
	}
	return strings.Join(parts, ", ")
}

// Constructors used by the front end and by the compiler when it
// synthesizes expressions.

// NewNull returns a NULL literal.
func NewNull() *Expr { return &Expr{Op: OpNull} }

// NewInteger returns an integer literal.
func NewInteger(v int64) *Expr { return &Expr{Op: OpInteger, Value: v} }

// NewFloat returns a float literal.
func NewFloat(v float64) *Expr { return &Expr{Op: OpFloat, Value: v} }

// NewString returns a text literal.
func NewString(v string) *Expr { return &Expr{Op: OpString, Value: v} }

// NewID returns an unresolved, optionally qualified, column name.
func NewID(table, name string) *Expr { return &Expr{Op: OpID, Table: table, Name: name} }

// NewStar returns "*" or "table.*".
func NewStar(table string) *Expr { return &Expr{Op: OpAsterisk, Table: table} }

// NewBinary returns a binary operation.
func NewBinary(op Op, left, right *Expr) *Expr {
	return &Expr{Op: op, Left: left, Right: right}
}

// NewUnary returns a unary operation.
func NewUnary(op Op, operand *Expr) *Expr {
	return &Expr{Op: op, Left: operand}
}

// NewFunction returns a function call.
func NewFunction(name string, args ...*Expr) *Expr {
	return &Expr{Op: OpFunction, Name: strings.ToLower(name), List: NewExprList(args...)}
}

// NewSubquery returns a scalar subquery.
func NewSubquery(s *Select) *Expr { return &Expr{Op: OpSelect, Select: s} }

// NewColumn returns a resolved column reference.
func NewColumn(cursor, column int, table *sql.Table) *Expr {
	return &Expr{Op: OpColumn, Cursor: cursor, Column: column, TableDef: table}
}

// And joins two predicates with AND. Either may be nil.
func And(left, right *Expr) *Expr {
	switch {
	case left == nil:
		return right
	case right == nil:
		return left
	}
	return NewBinary(OpAnd, left, right)
}

// SplitAnd returns the top level AND conjuncts of a predicate.
func SplitAnd(e *Expr) []*Expr {
	if e == nil {
		return nil
	}
	if e.Op == OpAnd {
		return append(SplitAnd(e.Left), SplitAnd(e.Right)...)
	}
	return []*Expr{e}
}

// SetJoinTable tags every node of the expression as coming from the ON
// clause of an outer join whose right table has the given cursor.
func SetJoinTable(e *Expr, cursor int) {
	Inspect(e, func(e *Expr) bool {
		e.Flags |= FlagFromJoin
		e.JoinTable = cursor
		return true
	})
}
