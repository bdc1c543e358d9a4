package tree

import (
	"bytes"
	"strings"

	"github.com/mitchellh/hashstructure"
)

// Equal reports whether two expressions are the same computation. Column
// references are equal when they read the same cursor and column;
// subqueries are only equal to themselves.
func Equal(a, b *Expr) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Op != b.Op || a.Select != b.Select {
		return false
	}
	if a.Flags&(FlagDistinct|FlagStar) != b.Flags&(FlagDistinct|FlagStar) {
		return false
	}

	switch a.Op {
	case OpColumn, OpAggColumn:
		if a.Cursor != b.Cursor || a.Column != b.Column {
			return false
		}
	case OpID:
		if !strings.EqualFold(a.Table, b.Table) || !strings.EqualFold(a.Name, b.Name) {
			return false
		}
	case OpFunction, OpAggFunction, OpCollate, OpCast:
		if !strings.EqualFold(a.Name, b.Name) {
			return false
		}
	case OpRegister:
		if a.Reg != b.Reg {
			return false
		}
	case OpInteger, OpFloat, OpString:
		if a.Value != b.Value {
			return false
		}
	case OpBlob:
		ab, _ := a.Value.([]byte)
		bb, _ := b.Value.([]byte)
		if !bytes.Equal(ab, bb) {
			return false
		}
	}

	return Equal(a.Left, b.Left) && Equal(a.Right, b.Right) && ListEqual(a.List, b.List)
}

// ListEqual reports whether two lists hold equal expressions with the
// same sort directions.
func ListEqual(a, b ExprList) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Desc != b[i].Desc || !Equal(a[i].Expr, b[i].Expr) {
			return false
		}
	}
	return true
}

type fingerprint struct {
	Op       Op
	Value    interface{}
	Name     string
	Table    string
	Cursor   int
	Column   int
	Reg      int
	Flags    ExprFlags
	Select   bool
	Children []fingerprint
}

func fingerprintOf(e *Expr) fingerprint {
	fp := fingerprint{
		Op:     e.Op,
		Flags:  e.Flags & (FlagDistinct | FlagStar),
		Select: e.Select != nil,
	}
	switch e.Op {
	case OpColumn, OpAggColumn:
		fp.Cursor, fp.Column = e.Cursor, e.Column
	case OpID:
		fp.Table, fp.Name = strings.ToLower(e.Table), strings.ToLower(e.Name)
	case OpFunction, OpAggFunction, OpCollate, OpCast:
		fp.Name = strings.ToLower(e.Name)
	case OpRegister:
		fp.Reg = e.Reg
	case OpInteger, OpFloat, OpString, OpBlob:
		fp.Value = e.Value
	}
	for _, c := range e.Children() {
		fp.Children = append(fp.Children, fingerprintOf(c))
	}
	return fp
}

// Fingerprint returns a hash of the expression such that equal
// expressions have equal fingerprints.
func Fingerprint(e *Expr) uint64 {
	if e == nil {
		return 0
	}
	h, err := hashstructure.Hash(fingerprintOf(e), nil)
	if err != nil {
		// Only unsupported value types fail, and literals never hold one.
		return uint64(e.Op)
	}
	return h
}

// ExprSet finds expressions equal to a given one among those added to
// it, using fingerprints to avoid comparing every pair.
type ExprSet struct {
	buckets map[uint64][]int
	exprs   []*Expr
}

// NewExprSet returns an empty set.
func NewExprSet() *ExprSet {
	return &ExprSet{buckets: make(map[uint64][]int)}
}

// Add inserts the expression and returns its position in the set. An
// expression equal to one already present gets the existing position.
func (s *ExprSet) Add(e *Expr) (int, bool) {
	if i := s.Find(e); i >= 0 {
		return i, false
	}
	fp := Fingerprint(e)
	s.exprs = append(s.exprs, e)
	s.buckets[fp] = append(s.buckets[fp], len(s.exprs)-1)
	return len(s.exprs) - 1, true
}

// Find returns the position of an expression equal to e, or -1.
func (s *ExprSet) Find(e *Expr) int {
	for _, i := range s.buckets[Fingerprint(e)] {
		if Equal(s.exprs[i], e) {
			return i
		}
	}
	return -1
}

// Len returns the number of distinct expressions in the set.
func (s *ExprSet) Len() int { return len(s.exprs) }
