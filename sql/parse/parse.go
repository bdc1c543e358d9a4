package parse // import "gopkg.in/src-d/go-selectc.v0/sql/parse"

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	opentracing "github.com/opentracing/opentracing-go"
	"gopkg.in/src-d/go-errors.v1"
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/compiler"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-vitess.v1/vt/sqlparser"
)

var (
	// ErrUnsupportedSyntax is thrown when a specific syntax is not already supported
	ErrUnsupportedSyntax = errors.NewKind("unsupported syntax: %s")

	// ErrUnsupportedFeature is thrown when a feature is not already supported
	ErrUnsupportedFeature = errors.NewKind("unsupported feature: %s")

	// ErrInvalidSQLValType is returned when a SQLVal type is not valid.
	ErrInvalidSQLValType = errors.NewKind("invalid SQLVal of type: %d")

	// ErrInvalidSortOrder is returned when a sort order is not valid.
	ErrInvalidSortOrder = errors.NewKind("invalid sort order: %s")

	// ErrEmptyQuery is returned when the query has no statement.
	ErrEmptyQuery = errors.NewKind("query is empty")
)

var (
	withRegex       = regexp.MustCompile(`^with\s`)
	createViewRegex = regexp.MustCompile(`^create\s+(or\s+replace\s+)?view\s`)
)

// Parse parses the given SELECT statement and returns its tree.
func Parse(ctx *sql.Context, query string) (*tree.Select, error) {
	span, ctx := ctx.Span("parse", opentracing.Tag{Key: "query", Value: query})
	defer span.Finish()

	s := trimQuery(query)
	if s == "" {
		ctx.Logger().WithField("query", query).Debug("query became empty")
		return nil, ErrEmptyQuery.New()
	}

	var with *tree.With
	if withRegex.MatchString(strings.ToLower(s)) {
		var err error
		with, s, err = parseWith(s)
		if err != nil {
			return nil, err
		}
	}

	sel, err := parseStatement(s)
	if err != nil {
		return nil, err
	}
	sel.With = with
	return sel, nil
}

// IsCreateView returns whether the query is a CREATE VIEW statement.
func IsCreateView(query string) bool {
	return createViewRegex.MatchString(strings.ToLower(trimQuery(query)))
}

func trimQuery(query string) string {
	s := strings.TrimSpace(removeComments(query))
	return strings.TrimSpace(strings.TrimSuffix(s, ";"))
}

func parseSelect(s string) (*tree.Select, error) {
	s, derived, err := extractDerived(s)
	if err != nil {
		return nil, err
	}

	stmt, err := sqlparser.Parse(s)
	if err != nil {
		return nil, err
	}

	sel, ok := stmt.(sqlparser.SelectStatement)
	if !ok {
		return nil, ErrUnsupportedSyntax.New(sqlparser.String(stmt))
	}

	result, err := convertSelectStatement(sel)
	if err != nil {
		return nil, err
	}
	derived.bind(result)
	return result, nil
}

func convertSelectStatement(s sqlparser.SelectStatement) (*tree.Select, error) {
	switch s := s.(type) {
	case *sqlparser.Select:
		return convertSelect(s)
	case *sqlparser.Union:
		return convertUnion(s)
	case *sqlparser.ParenSelect:
		return convertSelectStatement(s.Select)
	default:
		return nil, ErrUnsupportedSyntax.New(sqlparser.String(s))
	}
}

func convertSelect(s *sqlparser.Select) (*tree.Select, error) {
	if s.Lock != "" {
		return nil, ErrUnsupportedFeature.New(strings.TrimSpace(s.Lock))
	}

	sel := &tree.Select{}
	if s.Distinct != "" {
		sel.Flags |= tree.SFDistinct
	}

	var err error
	if sel.Columns, err = selectExprsToList(s.SelectExprs); err != nil {
		return nil, err
	}

	if sel.From, err = tableExprsToSrcList(s.From); err != nil {
		return nil, err
	}

	if s.Where != nil {
		if sel.Where, err = exprToExpr(s.Where.Expr); err != nil {
			return nil, err
		}
	}

	for _, g := range s.GroupBy {
		e, err := exprToExpr(g)
		if err != nil {
			return nil, err
		}
		sel.GroupBy = sel.GroupBy.Append(e)
	}

	if s.Having != nil {
		if sel.Having, err = exprToExpr(s.Having.Expr); err != nil {
			return nil, err
		}
	}

	if err := convertOrderLimit(sel, s.OrderBy, s.Limit); err != nil {
		return nil, err
	}
	return sel, nil
}

// convertUnion builds the compound chain of a UNION. The right arm
// becomes the last select of the chain and carries ORDER BY and LIMIT.
// Only the last arm may have ORDER BY or LIMIT. A parenthesized right arm
// that is itself a compound, or that has its own ORDER BY or LIMIT,
// becomes a subquery.
func convertUnion(u *sqlparser.Union) (*tree.Select, error) {
	var op tree.CompoundOp
	switch strings.ToLower(u.Type) {
	case sqlparser.UnionStr, sqlparser.UnionDistinctStr:
		op = tree.Union
	case sqlparser.UnionAllStr:
		op = tree.UnionAll
	default:
		return nil, ErrUnsupportedFeature.New(u.Type)
	}

	left, err := convertSelectStatement(u.Left)
	if err != nil {
		return nil, err
	}
	if len(left.OrderBy) > 0 {
		return nil, compiler.ErrOrderByNotLast.New(op.String())
	}
	if left.Limit != nil {
		return nil, compiler.ErrLimitNotLast.New(op.String())
	}

	right, err := convertSelectStatement(u.Right)
	if err != nil {
		return nil, err
	}
	if right.Prior != nil || len(right.OrderBy) > 0 || right.Limit != nil {
		right = wrapSelect(right)
	}

	right.Op = op
	right.Prior = left
	left.Next = right

	if err := convertOrderLimit(right, u.OrderBy, u.Limit); err != nil {
		return nil, err
	}
	return right, nil
}

// wrapSelect returns SELECT * FROM (sel).
func wrapSelect(sel *tree.Select) *tree.Select {
	return &tree.Select{
		Columns: tree.NewExprList(tree.NewStar("")),
		From:    tree.SrcList{{Select: sel}},
	}
}

func convertOrderLimit(sel *tree.Select, ob sqlparser.OrderBy, limit *sqlparser.Limit) error {
	for _, o := range ob {
		e, err := exprToExpr(o.Expr)
		if err != nil {
			return err
		}

		it := &tree.ExprItem{Expr: e}
		switch strings.ToLower(o.Direction) {
		case sqlparser.AscScr:
		case sqlparser.DescScr:
			it.Desc = true
		default:
			return ErrInvalidSortOrder.New(o.Direction)
		}
		sel.OrderBy = append(sel.OrderBy, it)
	}

	if limit == nil {
		return nil
	}

	var err error
	if sel.Limit, err = exprToExpr(limit.Rowcount); err != nil {
		return err
	}
	if limit.Offset != nil {
		if sel.Offset, err = exprToExpr(limit.Offset); err != nil {
			return err
		}
	}
	return nil
}

func tableExprsToSrcList(te sqlparser.TableExprs) (tree.SrcList, error) {
	if isDual(te) {
		return nil, nil
	}

	var src tree.SrcList
	for _, t := range te {
		items, err := tableExprToSrcList(t)
		if err != nil {
			return nil, err
		}
		src = append(src, items...)
	}
	return src, nil
}

// isDual reports whether the FROM clause is the one the SQL parser adds
// to a SELECT without FROM.
func isDual(te sqlparser.TableExprs) bool {
	if len(te) != 1 {
		return false
	}
	t, ok := te[0].(*sqlparser.AliasedTableExpr)
	if !ok || !t.As.IsEmpty() {
		return false
	}
	name, ok := t.Expr.(sqlparser.TableName)
	return ok && name.Qualifier.IsEmpty() && strings.EqualFold(name.Name.String(), "dual")
}

func tableExprToSrcList(te sqlparser.TableExpr) (tree.SrcList, error) {
	switch t := te.(type) {
	default:
		return nil, ErrUnsupportedSyntax.New(sqlparser.String(te))
	case *sqlparser.AliasedTableExpr:
		item, err := aliasedTableToSrcItem(t)
		if err != nil {
			return nil, err
		}
		return tree.SrcList{item}, nil
	case *sqlparser.ParenTableExpr:
		if len(t.Exprs) == 1 {
			return tableExprToSrcList(t.Exprs[0])
		}
		item, err := nestedFrom(t.Exprs)
		if err != nil {
			return nil, err
		}
		return tree.SrcList{item}, nil
	case *sqlparser.JoinTableExpr:
		left, err := tableExprToSrcList(t.LeftExpr)
		if err != nil {
			return nil, err
		}

		var right *tree.SrcItem
		switch r := t.RightExpr.(type) {
		case *sqlparser.AliasedTableExpr:
			right, err = aliasedTableToSrcItem(r)
		default:
			right, err = nestedFrom(sqlparser.TableExprs{r})
		}
		if err != nil {
			return nil, err
		}

		words := strings.Fields(strings.ToLower(t.Join))
		if len(words) > 0 && words[len(words)-1] == "join" {
			words = words[:len(words)-1]
		}
		if len(words) == 1 && words[0] == "straight_join" {
			words = nil
		}
		jt, err := compiler.ClassifyJoin(words...)
		if err != nil {
			return nil, err
		}
		right.JoinType = jt

		if t.Condition.On != nil {
			if right.On, err = exprToExpr(t.Condition.On); err != nil {
				return nil, err
			}
		}
		for _, c := range t.Condition.Using {
			right.Using = append(right.Using, c.String())
		}
		return append(left, right), nil
	}
}

// nestedFrom returns a FROM entry for a parenthesized join.
func nestedFrom(te sqlparser.TableExprs) (*tree.SrcItem, error) {
	src, err := tableExprsToSrcList(te)
	if err != nil {
		return nil, err
	}
	return &tree.SrcItem{Select: &tree.Select{
		Columns: tree.NewExprList(tree.NewStar("")),
		From:    src,
		Flags:   tree.SFNestedFrom,
	}}, nil
}

func aliasedTableToSrcItem(t *sqlparser.AliasedTableExpr) (*tree.SrcItem, error) {
	item := &tree.SrcItem{Alias: t.As.String()}
	switch e := t.Expr.(type) {
	case sqlparser.TableName:
		if !e.Qualifier.IsEmpty() {
			return nil, ErrUnsupportedFeature.New("qualified table name " + sqlparser.String(e))
		}
		item.Name = e.Name.String()
	case *sqlparser.Subquery:
		sel, err := convertSelectStatement(e.Select)
		if err != nil {
			return nil, err
		}
		item.Select = sel
	default:
		return nil, ErrUnsupportedSyntax.New(sqlparser.String(t))
	}

	if t.Hints != nil {
		switch strings.ToLower(t.Hints.Type) {
		case sqlparser.UseStr, sqlparser.ForceStr:
			if len(t.Hints.Indexes) != 1 {
				return nil, ErrUnsupportedFeature.New("index hint with several indexes")
			}
			item.IndexedBy = t.Hints.Indexes[0].String()
		default:
			return nil, ErrUnsupportedFeature.New(t.Hints.Type + " index hint")
		}
	}
	return item, nil
}

func removeComments(s string) string {
	r := bufio.NewReader(strings.NewReader(s))
	var result []rune
	for {
		ru, _, err := r.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		switch ru {
		case '\'', '"':
			result = append(result, ru)
			result = append(result, readString(r, ru == '\'')...)
		case '-':
			peeked, err := r.Peek(2)
			if err == nil &&
				len(peeked) == 2 &&
				rune(peeked[0]) == '-' &&
				rune(peeked[1]) == ' ' {
				discardUntilEOL(r)
			} else {
				result = append(result, ru)
			}
		case '/':
			peeked, err := r.Peek(1)
			if err == nil &&
				len(peeked) == 1 &&
				rune(peeked[0]) == '*' {
				// read the char we peeked
				_, _, _ = r.ReadRune()
				discardMultilineComment(r)
			} else {
				result = append(result, ru)
			}
		default:
			result = append(result, ru)
		}
	}
	return string(result)
}

func discardUntilEOL(r *bufio.Reader) {
	for {
		ru, _, err := r.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if ru == '\n' {
			break
		}
	}
}

func discardMultilineComment(r *bufio.Reader) {
	for {
		ru, _, err := r.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if ru == '*' {
			peeked, err := r.Peek(1)
			if err == nil && len(peeked) == 1 && rune(peeked[0]) == '/' {
				// read the rune we just peeked
				_, _, _ = r.ReadRune()
				break
			}
		}
	}
}

func readString(r *bufio.Reader, single bool) []rune {
	var result []rune
	var escaped bool
	for {
		ru, _, err := r.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		result = append(result, ru)
		if (!single && ru == '"' && !escaped) ||
			(single && ru == '\'' && !escaped) {
			break
		}
		escaped = false
		if ru == '\\' {
			escaped = true
		}
	}
	return result
}
