package sql

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrDatatypeMismatch is returned when a value cannot be converted to
	// an integer where one is required.
	ErrDatatypeMismatch = errors.NewKind("datatype mismatch: %v is not an integer")

	// ErrIntegerOverflow is returned on integer arithmetic overflow.
	ErrIntegerOverflow = errors.NewKind("integer overflow")
)

// Normalize converts a Go value into one of the value classes the engine
// works with: nil, int64, float64, string or []byte.
func Normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, int64, float64, string, []byte:
		return v
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case int, int8, int16, int32, uint, uint8, uint16, uint32, uint64:
		return cast.ToInt64(v)
	case float32:
		return float64(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

func class(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case int64, float64:
		return 1
	case string:
		return 2
	default:
		return 3
	}
}

// Compare two values. NULL sorts before numbers, numbers before text and
// text before blobs. Text is compared with the given collation.
func Compare(a, b interface{}, coll Collation) int {
	a, b = Normalize(a), Normalize(b)
	ca, cb := class(a), class(b)
	if ca != cb {
		if ca < cb {
			return -1
		}
		return 1
	}

	switch ca {
	case 0:
		return 0
	case 1:
		ia, aInt := a.(int64)
		ib, bInt := b.(int64)
		if aInt && bInt {
			switch {
			case ia < ib:
				return -1
			case ia > ib:
				return 1
			}
			return 0
		}
		fa, fb := cast.ToFloat64(a), cast.ToFloat64(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 2:
		return coll.Compare(a.(string), b.(string))
	default:
		return bytes.Compare(a.([]byte), b.([]byte))
	}
}

// Truth returns whether the value is true. The second result reports a
// NULL value, which is neither true nor false.
func Truth(v interface{}) (bool, bool) {
	switch x := Normalize(v).(type) {
	case nil:
		return false, true
	case int64:
		return x != 0, false
	case float64:
		return x != 0, false
	default:
		n := ToNumeric(x)
		return cast.ToFloat64(n) != 0, false
	}
}

// ToNumeric converts a value to int64 or float64. Text is converted using
// its longest numeric prefix; anything else becomes zero. NULL stays NULL.
func ToNumeric(v interface{}) interface{} {
	switch x := Normalize(v).(type) {
	case nil, int64, float64:
		return x
	case string:
		return parseNumericPrefix(x)
	case []byte:
		return parseNumericPrefix(string(x))
	}
	return int64(0)
}

func parseNumericPrefix(s string) interface{} {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || s[end] == '.' || (end == 0 && (s[end] == '-' || s[end] == '+'))) {
		end++
	}
	for ; end > 0; end-- {
		if i, err := strconv.ParseInt(s[:end], 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return f
		}
	}
	return int64(0)
}

// looksNumeric returns the numeric value of text that is entirely a
// well formed number.
func looksNumeric(s string) (interface{}, bool) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f, true
	}
	return nil, false
}

// ApplyAffinity coerces a value towards the given affinity.
func ApplyAffinity(v interface{}, aff Affinity) interface{} {
	v = Normalize(v)
	if v == nil {
		return nil
	}
	switch aff {
	case AffinityText:
		switch x := v.(type) {
		case int64, float64:
			return cast.ToString(x)
		}
	case AffinityNumeric, AffinityInteger, AffinityReal:
		if s, ok := v.(string); ok {
			if n, ok := looksNumeric(s); ok {
				v = n
			}
		}
		if aff == AffinityReal {
			if i, ok := v.(int64); ok {
				return float64(i)
			}
		}
		if f, ok := v.(float64); ok && aff != AffinityReal && f == math.Trunc(f) && math.Abs(f) < 1<<62 {
			return int64(f)
		}
	}
	return v
}

// ToInteger converts a value to an integer without loss, as required by
// LIMIT and OFFSET.
func ToInteger(v interface{}) (int64, error) {
	switch x := ApplyAffinity(v, AffinityNumeric).(type) {
	case int64:
		return x, nil
	case float64:
		if x == math.Trunc(x) {
			return int64(x), nil
		}
	}
	return 0, ErrDatatypeMismatch.New(v)
}

// Arith applies a binary arithmetic operator: one of + - * / %.
// NULL operands give NULL.
func Arith(op byte, a, b interface{}) (interface{}, error) {
	a, b = ToNumeric(a), ToNumeric(b)
	if a == nil || b == nil {
		return nil, nil
	}

	ia, aInt := a.(int64)
	ib, bInt := b.(int64)
	if aInt && bInt {
		switch op {
		case '+':
			r := ia + ib
			if (r > ia) != (ib > 0) {
				return float64(ia) + float64(ib), nil
			}
			return r, nil
		case '-':
			r := ia - ib
			if (r < ia) != (ib > 0) {
				return float64(ia) - float64(ib), nil
			}
			return r, nil
		case '*':
			if ia != 0 && (ia*ib)/ia != ib {
				return float64(ia) * float64(ib), nil
			}
			return ia * ib, nil
		case '/':
			if ib == 0 {
				return nil, nil
			}
			return ia / ib, nil
		case '%':
			if ib == 0 {
				return nil, nil
			}
			return ia % ib, nil
		}
	}

	fa, fb := cast.ToFloat64(a), cast.ToFloat64(b)
	switch op {
	case '+':
		return fa + fb, nil
	case '-':
		return fa - fb, nil
	case '*':
		return fa * fb, nil
	case '/':
		if fb == 0 {
			return nil, nil
		}
		return fa / fb, nil
	case '%':
		if int64(fb) == 0 {
			return nil, nil
		}
		return float64(int64(fa) % int64(fb)), nil
	}
	return nil, ErrIntegerOverflow.New()
}

// ToText renders a value as text, as the || operator does.
func ToText(v interface{}) (string, bool) {
	switch x := Normalize(v).(type) {
	case nil:
		return "", false
	case []byte:
		return string(x), true
	default:
		return cast.ToString(x), true
	}
}
