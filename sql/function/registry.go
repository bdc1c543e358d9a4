package function // import "gopkg.in/src-d/go-selectc.v0/sql/function"

import (
	"strings"

	"gopkg.in/src-d/go-errors.v1"
	"gopkg.in/src-d/go-selectc.v0/sql"
)

var (
	// ErrFunctionNotFound is returned when a function is not registered.
	ErrFunctionNotFound = errors.NewKind("no such function: %s")

	// ErrWrongArgumentCount is returned when a function is called with an
	// unsupported number of arguments.
	ErrWrongArgumentCount = errors.NewKind("wrong number of arguments to function %s()")
)

// Aggregator accumulates the rows of one group.
type Aggregator interface {
	// Step adds the arguments computed for one row.
	Step(args []interface{}) error
	// Final returns the result for the group.
	Final() (interface{}, error)
}

// MinMax tells whether an aggregate is min() or max().
type MinMax int

// MinMax values.
const (
	NotMinMax MinMax = iota
	Min
	Max
)

// Func is a scalar or aggregate function definition.
type Func struct {
	Name string
	// MinArgs and MaxArgs bound the number of arguments. MaxArgs -1 means
	// any number.
	MinArgs int
	MaxArgs int
	// NeedCollation marks functions comparing their arguments, which take
	// the collation of the first argument.
	NeedCollation bool
	// MinMax identifies the min() and max() aggregates.
	MinMax MinMax
	// Eval computes a scalar function.
	Eval func(coll sql.Collation, args []interface{}) (interface{}, error)
	// NewAggregator creates the accumulator of an aggregate function.
	NewAggregator func(coll sql.Collation) Aggregator
}

// IsAggregate returns whether the function is an aggregate.
func (f *Func) IsAggregate() bool { return f.NewAggregator != nil }

func (f *Func) accepts(n int) bool {
	return n >= f.MinArgs && (f.MaxArgs < 0 || n <= f.MaxArgs)
}

// Registry holds the functions known by name. A name may have a scalar
// and an aggregate definition told apart by the number of arguments.
type Registry map[string][]*Func

// NewRegistry returns a registry with the given functions.
func NewRegistry(fns ...*Func) Registry {
	r := make(Registry)
	r.Register(fns...)
	return r
}

// Register adds functions to the registry.
func (r Registry) Register(fns ...*Func) {
	for _, f := range fns {
		name := strings.ToLower(f.Name)
		r[name] = append(r[name], f)
	}
}

// Function returns the definition of name that accepts nargs arguments.
func (r Registry) Function(name string, nargs int) (*Func, error) {
	defs, ok := r[strings.ToLower(name)]
	if !ok {
		return nil, ErrFunctionNotFound.New(name)
	}

	for _, f := range defs {
		if f.accepts(nargs) {
			return f, nil
		}
	}

	return nil, ErrWrongArgumentCount.New(name)
}
