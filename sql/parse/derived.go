package parse

import (
	"fmt"
	"strings"

	"gopkg.in/src-d/go-selectc.v0/sql/tree"
)

// derivedPrefix starts the names of the placeholder tables standing for
// FROM clause subqueries until the tree is built.
const derivedPrefix = "__derived_"

// derivedTables maps placeholder table names to their subqueries.
type derivedTables map[string]*tree.Select

// extractDerived replaces every subquery used as a FROM entry of s by a
// placeholder table name, and returns the parsed subqueries. The SQL
// parser requires an alias on such subqueries and knows neither
// INTERSECT, EXCEPT nor VALUES, so they are parsed here.
func extractDerived(s string) (string, derivedTables, error) {
	type frame struct {
		// inFrom is set between FROM and the end of the FROM clause.
		inFrom bool
		// fromParen is set inside a parenthesized list of FROM entries.
		fromParen bool
	}

	var (
		out     strings.Builder
		derived derivedTables
		stack   = []frame{{}}
		prev    string
	)

	for i := 0; i < len(s); {
		c := s[i]
		top := &stack[len(stack)-1]

		switch {
		case c == '\'' || c == '"' || c == '`':
			j := skipQuoted(s, i)
			out.WriteString(s[i:j])
			i, prev = j, string(c)

		case isIdentByte(c):
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			word := strings.ToLower(s[i:j])
			switch word {
			case "from":
				top.inFrom = true
			case "select", "where", "group", "having", "order", "limit",
				"union", "intersect", "except":
				top.inFrom = false
			}
			out.WriteString(s[i:j])
			i, prev = j, word

		case c == '(':
			fromPos := prev == "from" || prev == "join" || prev == "straight_join" ||
				(prev == "," && top.inFrom) ||
				(prev == "(" && top.fromParen)
			if fromPos {
				j := matchParen(s, i)
				if j < 0 {
					return "", nil, errUnbalanced.New()
				}

				body := strings.TrimSpace(s[i+1 : j])
				if startsSubquery(body) {
					sub, err := parseStatement(body)
					if err != nil {
						return "", nil, err
					}
					if derived == nil {
						derived = derivedTables{}
					}
					name := fmt.Sprintf("%s%d", derivedPrefix, len(derived))
					derived[name] = sub
					out.WriteString(name)
					i, prev = j+1, name
					continue
				}
			}
			stack = append(stack, frame{inFrom: fromPos, fromParen: fromPos})
			out.WriteByte(c)
			i, prev = i+1, "("

		case c == ')':
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			out.WriteByte(c)
			i, prev = i+1, ")"

		case isSpace(c):
			out.WriteByte(c)
			i++

		default:
			out.WriteByte(c)
			i, prev = i+1, string(c)
		}
	}

	return out.String(), derived, nil
}

// bind puts the subqueries back in place of their placeholder tables.
func (d derivedTables) bind(sel *tree.Select) {
	if len(d) == 0 {
		return
	}

	for s := sel; s != nil; s = s.Prior {
		for _, item := range s.From {
			if sub, ok := d[item.Name]; ok && item.Select == nil {
				item.Name, item.Select = "", sub
			} else if item.Select != nil {
				d.bind(item.Select)
			}
		}
		s.InspectExprs(func(e *tree.Expr) bool {
			if e.Select != nil {
				d.bind(e.Select)
			}
			return true
		})
	}
}

// startsSubquery reports whether a parenthesized FROM entry is a query
// rather than a list of joined tables.
func startsSubquery(body string) bool {
	lower := strings.ToLower(body)
	for _, kw := range []string{"select", "values"} {
		if !strings.HasPrefix(lower, kw) {
			continue
		}
		if len(lower) == len(kw) || isSpace(lower[len(kw)]) || lower[len(kw)] == '(' {
			return true
		}
	}
	return false
}

// matchParen returns the position of the parenthesis closing the one at
// i, or -1.
func matchParen(s string, i int) int {
	depth := 0
	for j := i; j < len(s); {
		switch c := s[j]; c {
		case '\'', '"', '`':
			j = skipQuoted(s, j)
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return j
			}
		}
		j++
	}
	return -1
}

// skipQuoted returns the position right after the quoted text starting at
// i. A doubled quote or a backslash escapes the quote.
func skipQuoted(s string, i int) int {
	quote := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			if quote != '`' {
				j++
			}
		case quote:
			if j+1 < len(s) && s[j+1] == quote {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(s)
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
