package parse

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"strings"
	"unicode"

	errors "gopkg.in/src-d/go-errors.v1"
)

var (
	errUnexpectedSyntax = errors.NewKind("expecting %q but got %q instead")
	errUnbalanced       = errors.NewKind("unbalanced parentheses")
)

type parseFunc func(*bufio.Reader) error

type parseFuncs []parseFunc

func (f parseFuncs) exec(r *bufio.Reader) error {
	for _, fn := range f {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func expectRune(expected rune) parseFunc {
	return func(rd *bufio.Reader) error {
		r, _, err := rd.ReadRune()
		if err != nil {
			return err
		}

		if r != expected {
			return errUnexpectedSyntax.New(string(expected), string(r))
		}

		return nil
	}
}

func expect(expected string) parseFunc {
	return func(r *bufio.Reader) error {
		var ident string

		if err := readIdent(&ident)(r); err != nil {
			return err
		}

		if ident == expected {
			return nil
		}

		return errUnexpectedSyntax.New(expected, ident)
	}
}

func skipSpaces(r *bufio.Reader) error {
	for {
		ru, _, err := r.ReadRune()
		if err == io.EOF {
			return nil
		}

		if err != nil {
			return err
		}

		if !unicode.IsSpace(ru) {
			return r.UnreadRune()
		}
	}
}

// peekRune returns the next rune without consuming it.
func peekRune(r *bufio.Reader) (rune, error) {
	ru, _, err := r.ReadRune()
	if err != nil {
		return 0, err
	}
	return ru, r.UnreadRune()
}

// maybe consumes the keyword if it is next, and reports it in matched.
func maybe(matched *bool, keyword string) parseFunc {
	return func(rd *bufio.Reader) error {
		*matched = false
		peeked, err := rd.Peek(len(keyword) + 1)
		if err != nil && err != io.EOF {
			return err
		}

		if len(peeked) < len(keyword) || !strings.EqualFold(string(peeked[:len(keyword)]), keyword) {
			return nil
		}
		if len(peeked) > len(keyword) {
			next := rune(peeked[len(keyword)])
			if unicode.IsLetter(next) || unicode.IsDigit(next) || next == '_' {
				return nil
			}
		}

		if _, err := rd.Discard(len(keyword)); err != nil {
			return err
		}
		*matched = true
		return nil
	}
}

// multiMaybe consumes the sequence of keywords if it is next.
func multiMaybe(matched *bool, keywords ...string) parseFunc {
	return func(rd *bufio.Reader) error {
		*matched = false
		first := true
		for _, kw := range keywords {
			var ok bool
			if err := maybe(&ok, kw)(rd); err != nil {
				return err
			}
			if !ok {
				if first {
					return nil
				}
				return errUnexpectedSyntax.New(kw, "")
			}
			first = false
			if err := skipSpaces(rd); err != nil {
				return err
			}
		}
		*matched = true
		return nil
	}
}

func readValidIdentRune(r *bufio.Reader, buf *bytes.Buffer) error {
	ru, _, err := r.ReadRune()
	if err != nil {
		return err
	}

	if !unicode.IsLetter(ru) && !unicode.IsDigit(ru) && ru != '_' {
		if err := r.UnreadRune(); err != nil {
			return err
		}
		return io.EOF
	}

	buf.WriteRune(ru)
	return nil
}

// readIdent reads an identifier, lowercased. A quoted identifier keeps
// its case.
func readIdent(ident *string) parseFunc {
	return func(r *bufio.Reader) error {
		ru, err := peekRune(r)
		if err != nil {
			return err
		}

		if ru == '`' || ru == '"' {
			return readQuotedIdent(ident)(r)
		}

		var buf bytes.Buffer
		for {
			if err := readValidIdentRune(r, &buf); err == io.EOF {
				break
			} else if err != nil {
				return err
			}
		}

		if buf.Len() == 0 {
			return errUnexpectedSyntax.New("identifier", string(ru))
		}

		*ident = strings.ToLower(buf.String())
		return nil
	}
}

func readQuotedIdent(ident *string) parseFunc {
	return func(r *bufio.Reader) error {
		quote, _, err := r.ReadRune()
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		for {
			ru, _, err := r.ReadRune()
			if err == io.EOF {
				return errUnexpectedSyntax.New(string(quote), "EOF")
			}
			if err != nil {
				return err
			}

			if ru == quote {
				next, err := peekRune(r)
				if err != nil || next != quote {
					break
				}
				_, _, _ = r.ReadRune()
			}
			buf.WriteRune(ru)
		}

		*ident = buf.String()
		return nil
	}
}

// maybeList reads a list of identifiers between opening and closing, if
// the next rune is opening.
func maybeList(opening, separator, closing rune, list *[]string) parseFunc {
	return func(r *bufio.Reader) error {
		ru, err := peekRune(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if ru != opening {
			return nil
		}
		_, _, _ = r.ReadRune()

		for {
			var ident string
			err := parseFuncs{
				skipSpaces,
				readIdent(&ident),
				skipSpaces,
			}.exec(r)
			if err != nil {
				return err
			}
			*list = append(*list, ident)

			ru, _, err := r.ReadRune()
			if err != nil {
				return err
			}

			switch ru {
			case closing:
				return nil
			case separator:
			default:
				return errUnexpectedSyntax.New(
					fmt.Sprintf("%c or %c", separator, closing),
					string(ru),
				)
			}
		}
	}
}

// readParens reads a parenthesized text and stores it without the outer
// parentheses. Quoted strings may contain parentheses.
func readParens(body *string) parseFunc {
	return func(r *bufio.Reader) error {
		if err := expectRune('(')(r); err != nil {
			return err
		}

		var result []rune
		depth := 1
		for {
			ru, _, err := r.ReadRune()
			if err == io.EOF {
				return errUnbalanced.New()
			}
			if err != nil {
				return err
			}

			switch ru {
			case '\'', '"':
				result = append(result, ru)
				result = append(result, readString(r, ru == '\'')...)
				continue
			case '`':
				var ident string
				if err := r.UnreadRune(); err != nil {
					return err
				}
				if err := readQuotedIdent(&ident)(r); err != nil {
					return err
				}
				result = append(result, []rune("`"+strings.Replace(ident, "`", "``", -1)+"`")...)
				continue
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					*body = string(result)
					return nil
				}
			}
			result = append(result, ru)
		}
	}
}

func readRemaining(val *string) parseFunc {
	return func(r *bufio.Reader) error {
		bytes, err := ioutil.ReadAll(r)
		if err != nil {
			return err
		}

		*val = string(bytes)
		return nil
	}
}
