package tree

// Visitor visits expressions of a tree.
type Visitor interface {
	// Visit method is invoked for each expr encountered by Walk.
	// If the result Visitor is not nil, Walk visits each of the children
	// of the expr with that visitor.
	Visit(expr *Expr) Visitor
}

// Children returns the direct operands of the expression. Subqueries are
// not children: they are walked with WalkSelect.
func (e *Expr) Children() []*Expr {
	var children []*Expr
	if e.Left != nil {
		children = append(children, e.Left)
	}
	if e.Right != nil {
		children = append(children, e.Right)
	}
	for _, it := range e.List {
		if it.Expr != nil {
			children = append(children, it.Expr)
		}
	}
	return children
}

// Walk traverses the expression tree in depth-first order. It starts by
// calling v.Visit(expr); a nil expr is ignored. If the visitor returned by
// v.Visit(expr) is not nil, Walk is invoked recursively with the returned
// visitor for each children of the expr.
func Walk(v Visitor, expr *Expr) {
	if expr == nil {
		return
	}

	if v = v.Visit(expr); v == nil {
		return
	}

	for _, child := range expr.Children() {
		Walk(v, child)
	}
}

type inspector func(*Expr) bool

func (f inspector) Visit(expr *Expr) Visitor {
	if f(expr) {
		return f
	}
	return nil
}

// Inspect traverses the expression in depth-first order: It starts by
// calling f(expr). If f returns true, Inspect invokes f recursively for
// each of the children of expr.
func Inspect(expr *Expr, f func(*Expr) bool) {
	Walk(inspector(f), expr)
}

// InspectList calls Inspect on every expression of the list.
func InspectList(l ExprList, f func(*Expr) bool) {
	for _, it := range l {
		Inspect(it.Expr, f)
	}
}

// WalkSelect calls f on every expression slot of the select and of every
// select nested in it: compound arms, FROM clause subqueries and
// subqueries inside expressions. f receives the select owning the slot.
// Returning false from f stops the descent into that expression.
func WalkSelect(s *Select, f func(owner *Select, e *Expr) bool) {
	for ; s != nil; s = s.Prior {
		walkOne(s, f)
	}
}

func walkOne(s *Select, f func(*Select, *Expr) bool) {
	for _, item := range s.From {
		if item.Select != nil {
			WalkSelect(item.Select, f)
		}
	}
	s.InspectExprs(func(e *Expr) bool {
		if !f(s, e) {
			return false
		}
		if e.Select != nil {
			WalkSelect(e.Select, f)
		}
		return true
	})
}

// InspectExprs calls Inspect on every expression slot of the select,
// including ON clauses, without descending into subqueries.
func (s *Select) InspectExprs(f func(*Expr) bool) {
	InspectList(s.Columns, f)
	for _, item := range s.From {
		Inspect(item.On, f)
	}
	Inspect(s.Where, f)
	InspectList(s.GroupBy, f)
	Inspect(s.Having, f)
	InspectList(s.OrderBy, f)
	Inspect(s.Limit, f)
	Inspect(s.Offset, f)
}
