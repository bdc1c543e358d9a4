package sqle // import "gopkg.in/src-d/go-selectc.v0"

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/src-d/go-selectc.v0/memory"
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/compiler"
	"gopkg.in/src-d/go-selectc.v0/sql/parse"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-selectc.v0/sql/vdbe"
	"gopkg.in/src-d/go-selectc.v0/sql/where"
)

// Engine compiles SELECT statements against an in-memory catalog and runs
// the resulting programs.
type Engine struct {
	Catalog *memory.Catalog
	Config  *sql.Config
	Planner compiler.Planner
}

// Result holds the rows of a query and the statistics of its run.
type Result struct {
	Columns sql.Schema
	Rows    []sql.Row
	Stats   vdbe.Stats
}

// New creates a new Engine with the given catalog and configuration.
// A nil config means the default one.
func New(c *memory.Catalog, cfg *sql.Config) *Engine {
	if cfg == nil {
		cfg = sql.DefaultConfig()
	}
	return &Engine{Catalog: c, Config: cfg, Planner: where.NewPlanner()}
}

// NewDefault creates a new Engine with an empty catalog.
func NewDefault() *Engine {
	return New(memory.NewCatalog(), nil)
}

// NewContext returns a query context carrying the engine configuration.
func (e *Engine) NewContext(ctx context.Context, opts ...sql.ContextOption) *sql.Context {
	return sql.NewContext(ctx, append([]sql.ContextOption{sql.WithConfig(e.Config)}, opts...)...)
}

// Parse returns the tree of a query, or of a view definition.
func (e *Engine) Parse(query string) (*tree.Select, error) {
	return parse.Parse(sql.NewEmptyContext(), query)
}

// Prepare compiles a SELECT statement into a program.
func (e *Engine) Prepare(ctx *sql.Context, query string) (*vdbe.Program, error) {
	sel, err := parse.Parse(ctx, query)
	if err != nil {
		return nil, err
	}
	defer sel.Release()

	return compiler.Compile(ctx, e.Catalog, e.Planner, sel)
}

// Query executes a query and returns the names of the result columns and
// an iterator over the rows. A CREATE VIEW statement adds the view to the
// catalog and returns no rows.
func (e *Engine) Query(
	ctx *sql.Context,
	query string,
) (sql.Schema, sql.RowIter, error) {
	if parse.IsCreateView(query) {
		return nil, sql.RowsToRowIter(), e.createView(ctx, query)
	}

	prog, err := e.Prepare(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	return sql.Schema(prog.Columns), vdbe.NewMachine(prog, e.Catalog).Iter(ctx), nil
}

// Exec runs a query to completion.
func (e *Engine) Exec(ctx *sql.Context, query string) (*Result, error) {
	start := time.Now()
	if parse.IsCreateView(query) {
		return &Result{}, e.createView(ctx, query)
	}

	prog, err := e.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, stats, err := vdbe.Exec(ctx, prog, e.Catalog)
	if err != nil {
		return nil, err
	}

	ctx.Logger().WithFields(logrus.Fields{
		"rows":     len(rows),
		"steps":    stats.Steps,
		"duration": time.Since(start),
	}).Info("query finished")

	return &Result{Columns: sql.Schema(prog.Columns), Rows: rows, Stats: stats}, nil
}

// Explain returns the program of a query, one instruction per row.
func (e *Engine) Explain(ctx *sql.Context, query string) (*vdbe.Program, error) {
	return e.Prepare(ctx, query)
}

func (e *Engine) createView(ctx *sql.Context, query string) error {
	v, err := parse.ParseCreateView(ctx, query)
	if err != nil {
		return err
	}

	if v.Replace {
		e.Catalog.DropView(v.Name)
	}
	if err := e.Catalog.CreateView(v.Name, v.Select); err != nil {
		return err
	}

	ctx.Logger().WithField("view", v.Name).Info("view created")
	return nil
}
