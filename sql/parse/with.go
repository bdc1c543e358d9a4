package parse

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"gopkg.in/src-d/go-selectc.v0/sql/tree"
)

var (
	valuesRegex = regexp.MustCompile(`^values\s*\(`)
)

// parseWith parses the WITH clause at the start of s and returns it with
// the text of the statement that follows.
//
//	WITH [RECURSIVE] name [(column, ...)] AS (select) [, ...] statement
func parseWith(s string) (*tree.With, string, error) {
	r := bufio.NewReader(strings.NewReader(s))
	with := &tree.With{}

	err := parseFuncs{
		expect("with"),
		skipSpaces,
		maybe(&with.Recursive, "recursive"),
		skipSpaces,
	}.exec(r)
	if err != nil {
		return nil, "", err
	}

	for {
		var (
			cte  = &tree.CTE{}
			body string
		)

		err := parseFuncs{
			readIdent(&cte.Name),
			skipSpaces,
			maybeList('(', ',', ')', &cte.Columns),
			skipSpaces,
			expect("as"),
			skipSpaces,
			readParens(&body),
			skipSpaces,
		}.exec(r)
		if err != nil {
			return nil, "", err
		}

		if cte.Select, err = parseStatement(strings.TrimSpace(body)); err != nil {
			return nil, "", err
		}
		with.CTEs = append(with.CTEs, cte)

		ru, err := peekRune(r)
		if err == io.EOF {
			return nil, "", ErrEmptyQuery.New()
		}
		if err != nil {
			return nil, "", err
		}
		if ru != ',' {
			break
		}

		err = parseFuncs{expectRune(','), skipSpaces}.exec(r)
		if err != nil {
			return nil, "", err
		}
	}

	var rest string
	if err := readRemaining(&rest)(r); err != nil {
		return nil, "", err
	}
	return with, rest, nil
}

// parseStatement parses a select, or a compound chain. Compounds using
// INTERSECT, EXCEPT or VALUES, which the SQL parser does not know, are
// split here. Set operators are left associative.
func parseStatement(s string) (*tree.Select, error) {
	ops := setOps(s)
	if len(ops) == 0 {
		if isValues(s) {
			return parseValues(s)
		}
		return parseSelect(s)
	}

	extended := isValues(s)
	for _, o := range ops {
		if o.op == tree.Intersect || o.op == tree.Except || isValues(s[o.end:]) {
			extended = true
		}
	}
	if !extended {
		return parseSelect(s)
	}

	last := ops[len(ops)-1]
	left, err := parseStatement(strings.TrimSpace(s[:last.start]))
	if err != nil {
		return nil, err
	}
	right, err := parseStatement(strings.TrimSpace(s[last.end:]))
	if err != nil {
		return nil, err
	}
	if right.Prior != nil {
		right = wrapSelect(right)
	}

	right.Op = last.op
	right.Prior = left
	left.Next = right
	return right, nil
}

type setOp struct {
	op         tree.CompoundOp
	start, end int
}

var setOpKeywords = []struct {
	text string
	op   tree.CompoundOp
}{
	{"union all", tree.UnionAll},
	{"union distinct", tree.Union},
	{"union", tree.Union},
	{"intersect", tree.Intersect},
	{"except", tree.Except},
}

// setOps returns the set operators of s outside parentheses and quotes.
func setOps(s string) []setOp {
	var (
		ops   []setOp
		depth int
		quote byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			continue
		case c == '\'' || c == '"' || c == '`':
			quote = c
			continue
		case c == '(':
			depth++
			continue
		case c == ')':
			depth--
			continue
		}

		if depth != 0 || i == 0 || !isSpace(s[i-1]) {
			continue
		}
		for _, kw := range setOpKeywords {
			end := i + len(kw.text)
			if end < len(s) && strings.EqualFold(s[i:end], kw.text) && isSpace(s[end]) {
				ops = append(ops, setOp{op: kw.op, start: i, end: end})
				i = end
				break
			}
		}
	}
	return ops
}

func isValues(s string) bool {
	return valuesRegex.MatchString(strings.ToLower(strings.TrimSpace(s)))
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// parseValues parses VALUES (expr, ...) [, (expr, ...)] into a chain of
// one select per row.
func parseValues(s string) (*tree.Select, error) {
	r := bufio.NewReader(strings.NewReader(s))
	if err := (parseFuncs{expect("values"), skipSpaces}).exec(r); err != nil {
		return nil, err
	}

	var last *tree.Select
	for {
		var body string
		if err := (parseFuncs{readParens(&body), skipSpaces}).exec(r); err != nil {
			return nil, err
		}

		row, err := parseSelect("SELECT " + body)
		if err != nil {
			return nil, err
		}
		if row.Prior != nil || len(row.From) > 0 {
			return nil, ErrUnsupportedSyntax.New("VALUES (" + body + ")")
		}

		row.Flags |= tree.SFValues
		if last != nil {
			row.Op = tree.UnionAll
			row.Prior = last
			last.Next = row
			row.Flags |= tree.SFMultiValue
			last.Flags |= tree.SFMultiValue
		}
		last = row

		ru, err := peekRune(r)
		if err == io.EOF {
			return last, nil
		}
		if err != nil {
			return nil, err
		}
		if err := expectRune(',')(r); err != nil {
			return nil, errUnexpectedSyntax.New(",", string(ru))
		}
		if err := skipSpaces(r); err != nil {
			return nil, err
		}
	}
}
