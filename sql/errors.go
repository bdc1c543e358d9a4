package sql

import "gopkg.in/src-d/go-errors.v1"

var (
	// ErrTableNotFound is returned when the table is not available from the
	// catalog.
	ErrTableNotFound = errors.NewKind("table not found: %s")

	// ErrIndexNotFound is returned when an index is not defined on a table.
	ErrIndexNotFound = errors.NewKind("index %s not found on table %s")

	// ErrTableAlreadyExists is thrown when someone tries to add a table with
	// the name of an existing one.
	ErrTableAlreadyExists = errors.NewKind("table with name %s already exists")

	// ErrUnexpectedRowLength is thrown when the obtained row has more columns
	// than the table.
	ErrUnexpectedRowLength = errors.NewKind("expected %d values, got %d")

	// ErrInvalidConfig is returned when a configuration cannot be loaded.
	ErrInvalidConfig = errors.NewKind("invalid configuration: %s")

	// ErrNotNullViolation is returned when a primary key column receives a
	// NULL value.
	ErrNotNullViolation = errors.NewKind("column %s of table %s may not be NULL")

	// ErrReleasedTable is returned when a table descriptor is released more
	// times than it was referenced.
	ErrReleasedTable = errors.NewKind("table %s released more times than referenced")
)
