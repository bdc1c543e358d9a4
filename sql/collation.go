package sql

import (
	"strings"

	"gopkg.in/src-d/go-errors.v1"
)

// ErrUnknownCollation is returned when a COLLATE clause names a collation
// that does not exist.
var ErrUnknownCollation = errors.NewKind("no such collation sequence: %s")

// Collation names a comparison function for text values.
type Collation string

const (
	// Binary compares bytes.
	Binary Collation = "BINARY"
	// NoCase compares ASCII letters case-insensitively.
	NoCase Collation = "NOCASE"
	// RTrim ignores trailing spaces.
	RTrim Collation = "RTRIM"
)

// ParseCollation returns the collation with the given name.
func ParseCollation(name string) (Collation, error) {
	switch c := Collation(strings.ToUpper(name)); c {
	case Binary, NoCase, RTrim:
		return c, nil
	default:
		return "", ErrUnknownCollation.New(name)
	}
}

// Compare two strings with this collation. The empty collation is Binary.
func (c Collation) Compare(a, b string) int {
	switch c {
	case NoCase:
		a, b = strings.ToLower(a), strings.ToLower(b)
	case RTrim:
		a, b = strings.TrimRight(a, " "), strings.TrimRight(b, " ")
	}
	return strings.Compare(a, b)
}
