package compiler

import (
	"fmt"
	"strings"

	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
)

// expandSelect gives every FROM entry of the select, and of every select
// nested in it, a cursor and a table descriptor, moves join conditions to
// WHERE and replaces wildcards in result lists with the columns they
// stand for.
func (p *Parse) expandSelect(sel *tree.Select) {
	if p.Failed() || sel == nil {
		return
	}
	p.convertCompounds(sel)
	p.expandWith(sel, sel.With)
}

// expandWith expands the compound chain ending at sel with the WITH
// clause with in scope.
func (p *Parse) expandWith(sel *tree.Select, with *tree.With) {
	p.depth++
	defer func() { p.depth-- }()
	if max := p.Config().MaxDepth; p.depth > max {
		p.Error(ErrTooDeep.New(max))
		return
	}

	saved := p.with
	if with != nil {
		if !inScope(saved, with) {
			with.Outer = saved
		}
		p.with = with
	}
	defer func() { p.with = saved }()

	for s := sel; s != nil; s = s.Prior {
		p.expandOne(s)
		if p.Failed() {
			return
		}
	}
}

// inScope reports whether with is one of the clauses chained from scope.
func inScope(scope, with *tree.With) bool {
	for w := scope; w != nil; w = w.Outer {
		if w == with {
			return true
		}
	}
	return false
}

func (p *Parse) expandOne(s *tree.Select) {
	if s.HasFlag(tree.SFExpanded) {
		return
	}
	s.Flags |= tree.SFExpanded

	if s.HasFlag(tree.SFValues) {
		for i, it := range s.Columns {
			if it.Name == "" {
				it.Name = fmt.Sprintf("column%d", i+1)
			}
		}
	}

	for _, item := range s.From {
		item.Cursor = p.b.AllocCursor()
	}

	for _, item := range s.From {
		if item.IsRecursive {
			continue
		}
		if p.expandCTE(item) {
			if p.Failed() {
				return
			}
			continue
		}

		switch {
		case item.Select != nil && item.Name == "":
			p.expandWith(item.Select, item.Select.With)
			if p.Failed() {
				return
			}
			item.SetTable(p.resultTable(p.subqueryName(), item.Select.Leftmost().Columns, nil))
		case item.Table == nil:
			p.expandTable(item)
		}
		if p.Failed() {
			return
		}

		if item.IndexedBy != "" {
			if _, err := p.catalog.Index(item.Table.Name, item.IndexedBy); err != nil {
				p.Error(ErrNoSuchIndex.New(item.IndexedBy))
				return
			}
		}
	}

	p.normalizeJoins(s)
	if p.Failed() {
		return
	}
	p.expandStars(s)
	if p.Failed() {
		return
	}

	// Subqueries in expressions see the WITH clauses in scope here.
	s.InspectExprs(func(e *tree.Expr) bool {
		if e.Select != nil {
			p.expandWith(e.Select, e.Select.With)
		}
		return !p.Failed()
	})
}

// expandTable looks up a named FROM entry in the catalog. Views become a
// copy of their definition, expanded as a subquery.
func (p *Parse) expandTable(item *tree.SrcItem) {
	t, err := p.catalog.Table(item.Name)
	if err != nil {
		if sql.ErrTableNotFound.Is(err) {
			p.Error(ErrNoSuchTable.New(item.Name))
		} else {
			p.Error(err)
		}
		return
	}
	if !t.IsView() {
		item.SetTable(t)
		return
	}

	for _, v := range p.views {
		if strings.EqualFold(v, t.Name) {
			p.Error(ErrCircularView.New(t.Name))
			return
		}
	}
	def, ok := t.View.(*tree.Select)
	if !ok {
		p.Error(ErrUnsupportedExpression.New(fmt.Sprintf("view %s", t.Name)))
		return
	}

	view := def.Dup()
	view.Name = t.Name
	item.Select = view

	p.views = append(p.views, t.Name)
	p.expandWith(view, view.With)
	p.views = p.views[:len(p.views)-1]
	if p.Failed() {
		return
	}
	item.SetTable(p.resultTable(t.Name, view.Leftmost().Columns, nil))
}

// expandCTE resolves a FROM entry naming a common table expression of a
// WITH clause in scope. It reports whether the entry was one.
func (p *Parse) expandCTE(item *tree.SrcItem) bool {
	if item.Name == "" || item.Select != nil || p.with == nil {
		return false
	}
	cte, with := p.with.Find(item.Name)
	if cte == nil {
		return false
	}
	if kind := p.cteErr[cte]; kind != nil {
		p.Error(kind.New(cte.Name))
		return true
	}

	tab := &sql.Table{Name: cte.Name, Ephemeral: true, RowEstimate: 1000000}
	item.SetTable(tab)
	item.CTE = cte
	sel := cte.Select.Dup()
	item.Select = sel

	mayRecurse := sel.Prior != nil && (sel.Op == tree.Union || sel.Op == tree.UnionAll)
	if mayRecurse {
		for _, it := range sel.From {
			if it.Select == nil && strings.EqualFold(it.Name, cte.Name) {
				it.SetTable(tab)
				it.IsRecursive = true
				sel.Flags |= tree.SFRecursive
			}
		}
	}
	if tab.Refs() > 2 {
		p.Error(ErrRecursiveTableRefs.New(cte.Name))
		return true
	}

	p.cteErr[cte] = ErrCircularCTE
	defer delete(p.cteErr, cte)

	saved := p.with
	p.with = with
	defer func() { p.with = saved }()

	if mayRecurse {
		p.expandWith(sel.Prior, sel.With)
	} else {
		p.expandWith(sel, sel.With)
	}
	if p.Failed() {
		return true
	}

	cols := sel.Leftmost().Columns
	if len(cte.Columns) > 0 && len(cols) != len(cte.Columns) {
		p.Error(ErrCTEColumnCount.New(cte.Name, len(cols), len(cte.Columns)))
		return true
	}
	t := p.resultTable(cte.Name, cols, cte.Columns)
	tab.Columns = t.Columns

	if mayRecurse {
		if sel.HasFlag(tree.SFRecursive) {
			p.cteErr[cte] = ErrMultipleRecursiveRefs
		} else {
			p.cteErr[cte] = ErrRecursiveInSubquery
		}
		p.expandWith(sel, sel.With)
	}
	return true
}

// resultTable returns a transient descriptor for the result of a select.
// Column names are the given names, or derived from the result columns
// and made unique with a ":N" suffix.
func (p *Parse) resultTable(name string, cols tree.ExprList, names []string) *sql.Table {
	t := &sql.Table{Name: name, Ephemeral: true, RowEstimate: 1000000}
	seen := make(map[string]bool, len(cols))
	for i, it := range cols {
		var n string
		if i < len(names) {
			n = names[i]
		} else {
			n = resultColumnName(it, i)
		}

		base, cnt := n, 0
		for seen[strings.ToLower(n)] {
			cnt++
			n = fmt.Sprintf("%s:%d", trimSuffix(base), cnt)
		}
		seen[strings.ToLower(n)] = true

		t.Columns = append(t.Columns, &sql.Column{
			Name:      n,
			Collation: sql.Binary,
			Affinity:  sql.AffinityBlob,
		})
	}
	return t
}

// trimSuffix removes a ":N" suffix added by an earlier renaming.
func trimSuffix(name string) string {
	j := len(name) - 1
	for j > 0 && name[j] >= '0' && name[j] <= '9' {
		j--
	}
	if j > 0 && j < len(name)-1 && name[j] == ':' {
		return name[:j]
	}
	return name
}

func resultColumnName(it *tree.ExprItem, i int) string {
	if it.Name != "" {
		return it.Name
	}
	e := skipCollate(it.Expr)
	switch {
	case e == nil:
	case e.Op == tree.OpColumn && e.TableDef != nil && e.Column >= 0 && e.Column < len(e.TableDef.Columns):
		return e.TableDef.Columns[e.Column].Name
	case e.Op == tree.OpID:
		return e.Name
	}
	if it.Span != "" {
		return it.Span
	}
	if e != nil {
		return e.String()
	}
	return fmt.Sprintf("column%d", i+1)
}

// expandStars replaces "*" and "t.*" result columns with the columns of
// the FROM entries.
func (p *Parse) expandStars(s *tree.Select) {
	found := false
	for _, it := range s.Columns {
		if it.Expr != nil && it.Expr.Op == tree.OpAsterisk {
			found = true
			break
		}
	}

	if found {
		cfg := p.Config()
		longNames := cfg.FullColumnNames && !cfg.ShortColumnNames
		var cols tree.ExprList
		for _, it := range s.Columns {
			if it.Expr == nil || it.Expr.Op != tree.OpAsterisk {
				cols = append(cols, it)
				continue
			}

			qualifier := it.Expr.Table
			seen := false
			for i, item := range s.From {
				tab := item.DisplayName()
				if qualifier != "" && !strings.EqualFold(qualifier, tab) {
					continue
				}
				for _, col := range item.Table.Columns {
					seen = true
					if i > 0 && qualifier == "" {
						if item.JoinType&tree.JTNatural != 0 {
							if l, _ := leftColumn(s.From[:i], col.Name); l != nil {
								continue
							}
						}
						if inUsing(item, col.Name) {
							continue
						}
					}

					var e *tree.Expr
					name := col.Name
					if longNames || len(s.From) > 1 {
						e = tree.NewID(tab, col.Name)
						if longNames {
							name = tab + "." + col.Name
						}
					} else {
						e = tree.NewID("", col.Name)
					}
					cols = append(cols, &tree.ExprItem{Expr: e, Name: name, Span: name})
				}
			}

			if !seen {
				if qualifier != "" {
					p.Error(ErrNoSuchTable.New(qualifier))
				} else {
					p.Error(ErrNoTablesSpecified.New())
				}
				return
			}
		}
		s.Columns = cols
	}

	if len(s.Columns) > p.Config().MaxColumns {
		p.Error(ErrTooManyColumns.New())
	}
}

// convertCompounds rewrites every compound select with an ORDER BY term
// carrying COLLATE, and an operator other than UNION ALL, as
// "SELECT * FROM (compound) ORDER BY ...". The merge cannot honour a
// collation differing from the one of the result columns.
func (p *Parse) convertCompounds(sel *tree.Select) {
	if needsConversion(sel) {
		inner := *sel
		*sel = tree.Select{
			Op:      tree.CompoundNone,
			Columns: tree.NewExprList(tree.NewStar("")),
			From:    tree.SrcList{{Select: &inner}},
			OrderBy: inner.OrderBy,
			Limit:   inner.Limit,
			Offset:  inner.Offset,
			Flags:   tree.SFConverted,
			Name:    inner.Name,
		}
		inner.OrderBy, inner.Limit, inner.Offset = nil, nil, nil
		inner.Next = nil
		if inner.Prior != nil {
			inner.Prior.Next = &inner
		}
		p.log().WithField("select", sel.Name).Debug("compound select with COLLATE moved to a subquery")
	}

	tree.WalkSelect(sel, func(_ *tree.Select, e *tree.Expr) bool {
		if e.Select != nil {
			p.convertCompounds(e.Select)
			return false
		}
		return true
	})
	for s := sel; s != nil; s = s.Prior {
		for _, item := range s.From {
			if item.Select != nil {
				p.convertCompounds(item.Select)
			}
		}
	}
}

func needsConversion(sel *tree.Select) bool {
	if sel.Prior == nil || len(sel.OrderBy) == 0 {
		return false
	}
	allUnionAll := true
	for s := sel; s != nil; s = s.Prior {
		if s.Op != tree.UnionAll && s.Op != tree.CompoundNone {
			allUnionAll = false
			break
		}
	}
	if allUnionAll {
		return false
	}
	for _, it := range sel.OrderBy {
		if it.Expr != nil && it.Expr.Op == tree.OpCollate {
			return true
		}
	}
	return false
}

// addTypeInfo copies the affinity and collation of the result columns of
// every FROM subquery to its table descriptor. It runs once names are
// resolved.
func (p *Parse) addTypeInfo(sel *tree.Select) {
	for s := sel; s != nil; s = s.Prior {
		if s.HasFlag(tree.SFHasTypeInfo) {
			continue
		}
		s.Flags |= tree.SFHasTypeInfo
		for _, item := range s.From {
			if item.Select == nil {
				continue
			}
			p.addTypeInfo(item.Select)
			if item.Table == nil || !item.Table.Ephemeral {
				continue
			}
			p.columnTypes(item.Table, item.Select)
		}
		s.InspectExprs(func(e *tree.Expr) bool {
			if e.Select != nil {
				p.addTypeInfo(e.Select)
			}
			return true
		})
	}
}

// columnTypes sets the affinity of every column of t from the left-most
// arm of sel, and its collation from the first arm with a non-binary one.
func (p *Parse) columnTypes(t *sql.Table, sel *tree.Select) {
	left := sel.Leftmost()
	for i, col := range t.Columns {
		if i >= len(left.Columns) {
			break
		}
		aff := left.Columns[i].Expr.Affinity()
		if aff == 0 {
			aff = sql.AffinityBlob
		}
		col.Affinity = aff
		for s := left; s != nil; s = s.Next {
			if i >= len(s.Columns) {
				break
			}
			if c, _ := s.Columns[i].Expr.Collation(); c != "" && c != sql.Binary {
				col.Collation = c
				break
			}
		}
	}
}
