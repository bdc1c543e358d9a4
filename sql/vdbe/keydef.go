package vdbe

import (
	"fmt"
	"strings"

	"gopkg.in/src-d/go-selectc.v0/sql"
)

// KeyPart is one field of an index key.
type KeyPart struct {
	Field     int
	Collation sql.Collation
	Desc      bool
}

// KeyDef defines the ordering of an ephemeral index or sorter.
type KeyDef struct {
	Parts []KeyPart
}

// NewKeyDef returns a key of the first n fields, ascending and binary.
func NewKeyDef(n int) *KeyDef {
	k := &KeyDef{Parts: make([]KeyPart, n)}
	for i := range k.Parts {
		k.Parts[i] = KeyPart{Field: i, Collation: sql.Binary}
	}
	return k
}

// Copy returns a copy of the key definition.
func (k *KeyDef) Copy() *KeyDef {
	if k == nil {
		return nil
	}
	return &KeyDef{Parts: append([]KeyPart(nil), k.Parts...)}
}

// Len returns the number of key parts.
func (k *KeyDef) Len() int {
	if k == nil {
		return 0
	}
	return len(k.Parts)
}

// Compare compares two records by their key. Only the parts present in
// both records take part, so a shorter probe matches as a prefix.
func (k *KeyDef) Compare(a, b Record) int {
	return k.ComparePrefix(a, b, len(k.Parts))
}

// ComparePrefix compares two records using only the first n key parts.
func (k *KeyDef) ComparePrefix(a, b Record, n int) int {
	for i := 0; i < n && i < len(k.Parts); i++ {
		p := k.Parts[i]
		if p.Field >= len(a) || p.Field >= len(b) {
			return 0
		}
		c := sql.Compare(a[p.Field], b[p.Field], p.Collation)
		if c != 0 {
			if p.Desc {
				return -c
			}
			return c
		}
	}
	return 0
}

func (k *KeyDef) String() string {
	if k == nil {
		return ""
	}
	parts := make([]string, len(k.Parts))
	for i, p := range k.Parts {
		s := fmt.Sprintf("%d", p.Field)
		if p.Collation != "" && p.Collation != sql.Binary {
			s += " " + string(p.Collation)
		}
		if p.Desc {
			s += " DESC"
		}
		parts[i] = s
	}
	return "k(" + strings.Join(parts, ",") + ")"
}

// Record is a row of values stored in an ephemeral index, a sorter or a
// register.
type Record []interface{}

func (r Record) String() string {
	parts := make([]string, len(r))
	for i, v := range r {
		if v == nil {
			parts[i] = "NULL"
			continue
		}
		parts[i] = fmt.Sprint(v)
	}
	return "(" + strings.Join(parts, ",") + ")"
}
