package compiler

import "gopkg.in/src-d/go-errors.v1"

var (
	// ErrNoSuchTable is returned when a FROM entry names a table that does
	// not exist.
	ErrNoSuchTable = errors.NewKind("no such table: %s")

	// ErrNoSuchIndex is returned when INDEXED BY names an unknown index.
	ErrNoSuchIndex = errors.NewKind("no such index: %s")

	// ErrNoSuchColumn is returned when a column name cannot be resolved.
	ErrNoSuchColumn = errors.NewKind("no such column: %s")

	// ErrAmbiguousColumn is returned when an unqualified column name matches
	// columns of more than one FROM entry.
	ErrAmbiguousColumn = errors.NewKind("ambiguous column name: %s")

	// ErrNoTablesSpecified is returned by "SELECT *" without a FROM clause.
	ErrNoTablesSpecified = errors.NewKind("no tables specified")

	// ErrTooManyColumns is returned when wildcard expansion produces more
	// columns than allowed.
	ErrTooManyColumns = errors.NewKind("too many columns in result set")

	// ErrCircularView is returned when a view refers to itself.
	ErrCircularView = errors.NewKind("view %s is circularly defined")

	// ErrCircularCTE is returned when a common table expression refers to
	// itself without being recursive.
	ErrCircularCTE = errors.NewKind("circular reference: %s")

	// ErrMultipleRecursiveRefs is returned when the recursive arm of a CTE
	// references the CTE more than once.
	ErrMultipleRecursiveRefs = errors.NewKind("multiple recursive references: %s")

	// ErrRecursiveInSubquery is returned when the recursive reference of a
	// CTE appears inside a subquery.
	ErrRecursiveInSubquery = errors.NewKind("recursive reference in a subquery: %s")

	// ErrRecursiveTableRefs is returned when a FROM clause references a
	// recursive table more than once.
	ErrRecursiveTableRefs = errors.NewKind("multiple references to recursive table: %s")

	// ErrCTEColumnCount is returned when the column list of a CTE does not
	// match its select.
	ErrCTEColumnCount = errors.NewKind("table %s has %d values for %d columns")

	// ErrRecursiveAggregate is returned when the recursive arm of a CTE is
	// an aggregate.
	ErrRecursiveAggregate = errors.NewKind("recursive aggregate queries not supported")

	// ErrUnknownJoinType is returned for an invalid combination of join
	// keywords.
	ErrUnknownJoinType = errors.NewKind("unknown or unsupported join type: %s")

	// ErrUnsupportedJoin is returned for RIGHT and FULL OUTER joins.
	ErrUnsupportedJoin = errors.NewKind("RIGHT and FULL OUTER JOINs are not currently supported")

	// ErrNaturalWithCondition is returned when a NATURAL join also has an ON
	// or USING clause.
	ErrNaturalWithCondition = errors.NewKind("a NATURAL join may not have an ON or USING clause")

	// ErrBothOnAndUsing is returned when a join has both ON and USING.
	ErrBothOnAndUsing = errors.NewKind("cannot have both ON and USING clauses in the same join")

	// ErrUsingColumnMissing is returned when a USING column is not present
	// on both sides of the join.
	ErrUsingColumnMissing = errors.NewKind("cannot join using column %s - column not present in both tables")

	// ErrAggregateMisuse is returned for aggregates where they are not
	// allowed, such as WHERE or nested inside another aggregate.
	ErrAggregateMisuse = errors.NewKind("misuse of aggregate function %s()")

	// ErrDistinctAggregateArgs is returned for DISTINCT aggregates with
	// more or less than one argument.
	ErrDistinctAggregateArgs = errors.NewKind("DISTINCT aggregates must have exactly one argument")

	// ErrHavingWithoutGroupBy is returned for HAVING on a query that is not
	// an aggregate.
	ErrHavingWithoutGroupBy = errors.NewKind("HAVING clause on a non-aggregate query")

	// ErrTermOutOfRange is returned for ORDER BY or GROUP BY k where k is
	// not a result column number.
	ErrTermOutOfRange = errors.NewKind("%s BY term out of range - should be between 1 and %d")

	// ErrOrderByNoMatch is returned when an ORDER BY term of a compound
	// select does not match a result column.
	ErrOrderByNoMatch = errors.NewKind("%s ORDER BY term does not match any column in the result set")

	// ErrCompoundArity is returned when the arms of a compound select have
	// a different number of columns.
	ErrCompoundArity = errors.NewKind("SELECTs to the left and right of %s do not have the same number of result columns")

	// ErrValuesArity is returned when the rows of a VALUES clause have a
	// different number of terms.
	ErrValuesArity = errors.NewKind("all VALUES must have the same number of terms")

	// ErrOrderByNotLast is returned when an arm other than the last of a
	// compound select has ORDER BY.
	ErrOrderByNotLast = errors.NewKind("ORDER BY clause should come after %s not before")

	// ErrLimitNotLast is returned when an arm other than the last of a
	// compound select has LIMIT.
	ErrLimitNotLast = errors.NewKind("LIMIT clause should come after %s not before")

	// ErrTooManyCompoundTerms is returned when a compound select has more
	// arms than allowed.
	ErrTooManyCompoundTerms = errors.NewKind("too many terms in compound SELECT")

	// ErrRowValueMisused is returned when a row value is used where a
	// scalar is required.
	ErrRowValueMisused = errors.NewKind("row value misused")

	// ErrSubqueryColumns is returned when a subquery in an expression does
	// not return the number of columns its context requires.
	ErrSubqueryColumns = errors.NewKind("sub-select returns %d columns - expected %d")

	// ErrFlattenColumnCount is returned when a FROM clause subquery does not
	// produce the number of columns of its descriptor.
	ErrFlattenColumnCount = errors.NewKind("expected %d columns for '%s' but got %d")

	// ErrTooDeep is returned when selects are nested too deeply.
	ErrTooDeep = errors.NewKind("too many levels of nested SELECT: limit is %d")

	// ErrVectorSubstitution is returned when a column of a flattened or
	// pushed down subquery stands for a row value.
	ErrVectorSubstitution = errors.NewKind("row value misused: %s")

	// ErrUnsupportedExpression is returned for expressions the code
	// generator cannot handle.
	ErrUnsupportedExpression = errors.NewKind("unsupported expression: %s")
)

// Messages of the runtime checks emitted as Halt instructions.
const (
	msgTooManyRows    = "Expression subquery returned more than 1 row"
	msgLimitedWithOne = "Expression subquery could be limited only with 1"
)
