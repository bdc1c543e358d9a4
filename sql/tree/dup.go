package tree

// Dup returns a deep copy of the expression. Subqueries are copied too,
// so the copy never shares nodes with the original.
func (e *Expr) Dup() *Expr {
	if e == nil {
		return nil
	}
	n := *e
	n.Left = e.Left.Dup()
	n.Right = e.Right.Dup()
	n.List = e.List.Dup()
	n.Select = e.Select.Dup()
	if b, ok := e.Value.([]byte); ok {
		n.Value = append([]byte(nil), b...)
	}
	return &n
}

// Dup returns a deep copy of the list.
func (l ExprList) Dup() ExprList {
	if l == nil {
		return nil
	}
	n := make(ExprList, len(l))
	for i, it := range l {
		c := *it
		c.Expr = it.Expr.Dup()
		n[i] = &c
	}
	return n
}

// Dup returns a deep copy of the FROM clause. Table descriptors are
// shared, and every copied entry takes its own reference on them.
func (l SrcList) Dup() SrcList {
	if l == nil {
		return nil
	}
	n := make(SrcList, len(l))
	for i, it := range l {
		c := *it
		c.Table = nil
		c.SetTable(it.Table)
		c.Select = it.Select.Dup()
		c.On = it.On.Dup()
		c.Using = append([]string(nil), it.Using...)
		n[i] = &c
	}
	return n
}

// Dup returns a deep copy of the select and of every arm to its left.
// Code generation state is not copied.
func (s *Select) Dup() *Select {
	if s == nil {
		return nil
	}
	n := s.dupOne()
	prior := s.Prior.Dup()
	n.Prior = prior
	if prior != nil {
		prior.Next = n
	}
	return n
}

func (s *Select) dupOne() *Select {
	return &Select{
		Op:          s.Op,
		Columns:     s.Columns.Dup(),
		From:        s.From.Dup(),
		Where:       s.Where.Dup(),
		GroupBy:     s.GroupBy.Dup(),
		Having:      s.Having.Dup(),
		OrderBy:     s.OrderBy.Dup(),
		Limit:       s.Limit.Dup(),
		Offset:      s.Offset.Dup(),
		Flags:       s.Flags,
		With:        s.With.Dup(),
		Name:        s.Name,
		RowEstimate: s.RowEstimate,
	}
}

// Dup returns a deep copy of the WITH clause. The link to the enclosing
// clause is kept.
func (w *With) Dup() *With {
	if w == nil {
		return nil
	}
	n := &With{Recursive: w.Recursive, Outer: w.Outer}
	for _, c := range w.CTEs {
		n.CTEs = append(n.CTEs, &CTE{
			Name:    c.Name,
			Columns: append([]string(nil), c.Columns...),
			Select:  c.Select.Dup(),
		})
	}
	return n
}
