package parse

import (
	"bufio"
	"strings"

	opentracing "github.com/opentracing/opentracing-go"
	"gopkg.in/src-d/go-errors.v1"
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
)

var (
	// ErrMalformedCreateView is returned when the column list of a view
	// does not match its query.
	ErrMalformedCreateView = errors.NewKind("view %s has %d columns but %d names were given")
)

// CreateView is a parsed CREATE VIEW statement.
type CreateView struct {
	Name    string
	Replace bool
	Select  *tree.Select
}

// ParseCreateView parses
//
//	CREATE [OR REPLACE] VIEW view_name [(col1, col2, ...)] AS select_statement
//
// Column names given in the statement become the aliases of the result
// columns of the query.
func ParseCreateView(ctx *sql.Context, s string) (*CreateView, error) {
	span, ctx := ctx.Span("parse_create_view", opentracing.Tag{Key: "query", Value: s})
	defer span.Finish()

	r := bufio.NewReader(strings.NewReader(trimQuery(s)))

	var (
		view     CreateView
		columns  []string
		subquery string
	)

	err := parseFuncs{
		expect("create"),
		skipSpaces,
		multiMaybe(&view.Replace, "or", "replace"),
		skipSpaces,
		expect("view"),
		skipSpaces,
		readIdent(&view.Name),
		skipSpaces,
		maybeList('(', ',', ')', &columns),
		skipSpaces,
		expect("as"),
		skipSpaces,
		readRemaining(&subquery),
	}.exec(r)
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(subquery)
	if query == "" {
		return nil, ErrEmptyQuery.New()
	}

	if view.Select, err = Parse(ctx, query); err != nil {
		return nil, err
	}

	if len(columns) > 0 {
		first := view.Select.Leftmost()
		if len(first.Columns) != len(columns) {
			return nil, ErrMalformedCreateView.New(view.Name, len(first.Columns), len(columns))
		}
		for i, it := range first.Columns {
			if it.Expr.Op == tree.OpAsterisk {
				return nil, ErrUnsupportedFeature.New("column names for a view selecting *")
			}
			it.Name = columns[i]
		}
	}

	ctx.Logger().WithField("view", view.Name).Debug("parsed view")
	return &view, nil
}
