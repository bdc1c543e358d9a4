package compiler

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-selectc.v0/sql/vdbe"
)

// Compile turns a SELECT statement into a program returning its rows.
// The tree is modified while compiling and must not be reused.
func Compile(ctx *sql.Context, catalog sql.Catalog, planner Planner, sel *tree.Select) (*vdbe.Program, error) {
	span, ctx := ctx.Span("compile")
	defer span.Finish()

	return NewParse(ctx, catalog, planner).Compile(sel)
}

// Compile turns a SELECT statement into a program returning its rows.
func (p *Parse) Compile(sel *tree.Select) (*vdbe.Program, error) {
	p.prepare(sel)
	if p.Failed() {
		return nil, p.Err()
	}
	columns := p.columnNames(sel)

	if err := p.Select(sel, NewDest(DestOutput, 0)); err != nil {
		return nil, err
	}
	p.b.Op0(vdbe.OpHalt)

	prog, err := p.b.Finish(columns)
	if err != nil {
		return nil, err
	}

	p.log().WithFields(logrus.Fields{
		"instructions": len(prog.Instructions),
		"registers":    prog.NumRegs,
		"cursors":      prog.NumCursors,
	}).Debug("select compiled")
	return prog, nil
}

// columnNames returns the names of the result columns: the alias when
// there is one, the column name for a table column, the text of the
// expression otherwise.
func (p *Parse) columnNames(sel *tree.Select) []string {
	cfg := p.Config()
	left := sel.Leftmost()
	names := make([]string, len(left.Columns))
	for i, it := range left.Columns {
		e := it.Expr
		switch {
		case it.Name != "":
			names[i] = it.Name
		case (cfg.ShortColumnNames || cfg.FullColumnNames) && e.Op == tree.OpColumn && e.TableDef != nil:
			col := "rowid"
			if e.Column >= 0 && e.Column < len(e.TableDef.Columns) {
				col = e.TableDef.Columns[e.Column].Name
			}
			if cfg.FullColumnNames {
				names[i] = e.TableDef.Name + "." + col
			} else {
				names[i] = col
			}
		case it.Span != "":
			names[i] = it.Span
		default:
			names[i] = fmt.Sprintf("column%d", i+1)
		}
	}
	return names
}
