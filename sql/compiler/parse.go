package compiler // import "gopkg.in/src-d/go-selectc.v0/sql/compiler"

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/src-d/go-errors.v1"
	"gopkg.in/src-d/go-selectc.v0/sql"
	"gopkg.in/src-d/go-selectc.v0/sql/function"
	"gopkg.in/src-d/go-selectc.v0/sql/tree"
	"gopkg.in/src-d/go-selectc.v0/sql/vdbe"
)

// Parse is the state of the compilation of one statement. Errors are
// recorded as they are found and compilation goes on until the next check
// of Failed, so that a single pass reports as much as possible.
type Parse struct {
	ctx     *sql.Context
	catalog sql.Catalog
	planner Planner
	funcs   function.Registry
	b       *vdbe.Builder

	errs  []error
	depth int

	// with is the innermost WITH clause in scope while expanding.
	with *tree.With
	// views being expanded, to detect circular definitions.
	views []string
	// cteErr is the error raised by a reference to a CTE whose expansion
	// is in progress.
	cteErr map[*tree.CTE]*errors.Kind

	// coroutines maps the cursor of a FROM entry implemented as a
	// coroutine to the entry.
	coroutines map[int]*tree.SrcItem
	// aggs maps aggregate columns and functions to the aggregate
	// information of the select they belong to.
	aggs map[*tree.Expr]*aggInfo

	nSubquery int
}

// NewParse returns a compile state writing to a new program.
func NewParse(ctx *sql.Context, catalog sql.Catalog, planner Planner) *Parse {
	return &Parse{
		ctx:        ctx,
		catalog:    catalog,
		planner:    planner,
		funcs:      function.Defaults,
		b:          vdbe.NewBuilder(),
		cteErr:     make(map[*tree.CTE]*errors.Kind),
		coroutines: make(map[int]*tree.SrcItem),
		aggs:       make(map[*tree.Expr]*aggInfo),
	}
}

// WithFunctions replaces the function registry used to resolve calls.
func (p *Parse) WithFunctions(r function.Registry) *Parse {
	p.funcs = r
	return p
}

// Builder returns the program builder.
func (p *Parse) Builder() *vdbe.Builder { return p.b }

// Context returns the query context.
func (p *Parse) Context() *sql.Context { return p.ctx }

// Config returns the compile configuration.
func (p *Parse) Config() *sql.Config { return p.ctx.Config() }

// Catalog returns the schema the statement is compiled against.
func (p *Parse) Catalog() sql.Catalog { return p.catalog }

func (p *Parse) log() *logrus.Entry { return p.ctx.Logger() }

// Error records an error. Compilation stops at the next check of Failed.
func (p *Parse) Error(err error) {
	if err == nil {
		return
	}
	if len(p.errs) == 0 {
		p.log().WithField("error", err).Debug("compile error")
	}
	p.errs = append(p.errs, err)
}

// Failed reports whether any error was recorded.
func (p *Parse) Failed() bool { return len(p.errs) > 0 }

// ErrorCount returns the number of recorded errors.
func (p *Parse) ErrorCount() int { return len(p.errs) }

// Err returns the first recorded error, or nil.
func (p *Parse) Err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return p.errs[0]
}

// Errors returns every recorded error.
func (p *Parse) Errors() []error { return p.errs }

// discardErrorsSince drops errors recorded after the count n. It is used
// when an attempt is allowed to fail.
func (p *Parse) discardErrorsSince(n int) {
	if len(p.errs) > n {
		p.errs = p.errs[:n]
	}
}

// IsCoroutine returns the FROM entry implemented as a coroutine that owns
// the cursor, or nil.
func (p *Parse) IsCoroutine(cursor int) *tree.SrcItem {
	return p.coroutines[cursor]
}

func (p *Parse) subqueryName() string {
	p.nSubquery++
	return fmt.Sprintf("subquery_%d", p.nSubquery)
}
