package function

import (
	"strings"
	"unicode/utf8"

	"gopkg.in/src-d/go-selectc.v0/sql"
)

func abs(_ sql.Collation, args []interface{}) (interface{}, error) {
	switch x := sql.ToNumeric(args[0]).(type) {
	case int64:
		if x < 0 {
			return -x, nil
		}
		return x, nil
	case float64:
		if x < 0 {
			return -x, nil
		}
		return x, nil
	}
	return nil, nil
}

func textFunc(f func(string) string) func(sql.Collation, []interface{}) (interface{}, error) {
	return func(_ sql.Collation, args []interface{}) (interface{}, error) {
		s, ok := sql.ToText(args[0])
		if !ok {
			return nil, nil
		}
		return f(s), nil
	}
}

func length(_ sql.Collation, args []interface{}) (interface{}, error) {
	switch x := sql.Normalize(args[0]).(type) {
	case nil:
		return nil, nil
	case []byte:
		return int64(len(x)), nil
	default:
		s, _ := sql.ToText(x)
		return int64(utf8.RuneCountInString(s)), nil
	}
}

func coalesce(_ sql.Collation, args []interface{}) (interface{}, error) {
	for _, a := range args {
		if a != nil {
			return a, nil
		}
	}
	return nil, nil
}

func nullif(coll sql.Collation, args []interface{}) (interface{}, error) {
	if args[0] != nil && args[1] != nil && sql.Compare(args[0], args[1], coll) == 0 {
		return nil, nil
	}
	return args[0], nil
}

func typeOf(_ sql.Collation, args []interface{}) (interface{}, error) {
	switch sql.Normalize(args[0]).(type) {
	case nil:
		return "null", nil
	case int64:
		return "integer", nil
	case float64:
		return "real", nil
	case string:
		return "text", nil
	default:
		return "blob", nil
	}
}

func scalarMinMax(max bool) func(sql.Collation, []interface{}) (interface{}, error) {
	return func(coll sql.Collation, args []interface{}) (interface{}, error) {
		var best interface{}
		for i, a := range args {
			if a == nil {
				return nil, nil
			}
			cmp := sql.Compare(a, best, coll)
			if i == 0 || (max && cmp > 0) || (!max && cmp < 0) {
				best = a
			}
		}
		return best, nil
	}
}

func substr(_ sql.Collation, args []interface{}) (interface{}, error) {
	s, ok := sql.ToText(args[0])
	if !ok || args[1] == nil {
		return nil, nil
	}
	runes := []rune(s)
	start, err := sql.ToInteger(args[1])
	if err != nil {
		return nil, err
	}
	n := int64(len(runes))
	if len(args) > 2 {
		if args[2] == nil {
			return nil, nil
		}
		if n, err = sql.ToInteger(args[2]); err != nil {
			return nil, err
		}
	}

	if start > 0 {
		start--
	} else if start < 0 {
		start += int64(len(runes))
		if start < 0 {
			n += start
			start = 0
		}
	}
	if start > int64(len(runes)) || n <= 0 {
		return "", nil
	}
	end := start + n
	if end > int64(len(runes)) {
		end = int64(len(runes))
	}
	return string(runes[start:end]), nil
}

func like(_ sql.Collation, args []interface{}) (interface{}, error) {
	pattern, ok1 := sql.ToText(args[0])
	s, ok2 := sql.ToText(args[1])
	if !ok1 || !ok2 {
		return nil, nil
	}
	if likeMatch(strings.ToLower(pattern), strings.ToLower(s)) {
		return int64(1), nil
	}
	return int64(0), nil
}

func likeMatch(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '%':
			for i := 0; i <= len(s); i++ {
				if likeMatch(pattern[1:], s[i:]) {
					return true
				}
			}
			return false
		case '_':
			if len(s) == 0 {
				return false
			}
			_, size := utf8.DecodeRuneInString(s)
			pattern, s = pattern[1:], s[size:]
		default:
			if len(s) == 0 || s[0] != pattern[0] {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		}
	}
	return len(s) == 0
}

var scalars = []*Func{
	{Name: "abs", MinArgs: 1, MaxArgs: 1, Eval: abs},
	{Name: "upper", MinArgs: 1, MaxArgs: 1, Eval: textFunc(strings.ToUpper)},
	{Name: "lower", MinArgs: 1, MaxArgs: 1, Eval: textFunc(strings.ToLower)},
	{Name: "length", MinArgs: 1, MaxArgs: 1, Eval: length},
	{Name: "coalesce", MinArgs: 2, MaxArgs: -1, Eval: coalesce},
	{Name: "ifnull", MinArgs: 2, MaxArgs: 2, Eval: coalesce},
	{Name: "nullif", MinArgs: 2, MaxArgs: 2, NeedCollation: true, Eval: nullif},
	{Name: "typeof", MinArgs: 1, MaxArgs: 1, Eval: typeOf},
	{Name: "min", MinArgs: 2, MaxArgs: -1, NeedCollation: true, Eval: scalarMinMax(false)},
	{Name: "max", MinArgs: 2, MaxArgs: -1, NeedCollation: true, Eval: scalarMinMax(true)},
	{Name: "substr", MinArgs: 2, MaxArgs: 3, Eval: substr},
	{Name: "like", MinArgs: 2, MaxArgs: 2, Eval: like},
}

// Defaults is the registry of built-in functions.
var Defaults = NewRegistry(append(append([]*Func{}, aggregates...), scalars...)...)
