package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp     // comparison operator
	tokAnd    // &&
	tokOr     // ||
	tokNot    // !
	tokLParen // (
	tokRParen // )
	tokComma  // ,
	tokColon  // :
)

type token struct {
	kind tokenKind
	text string // identifier, operator or raw number text
	str  string // decoded string literal
	num  float64
	pos  int
}

// describe renders a token for error messages.
func (t token) describe() string {
	switch t.kind {
	case tokEOF:
		return "end of query"
	case tokString:
		return "string " + strconv.Quote(t.str)
	case tokNumber:
		return "number " + t.text
	case tokIdent:
		return fmt.Sprintf("%q", t.text)
	}
	return fmt.Sprintf("'%s'", t.text)
}

// lex splits the query into tokens. The final token is always tokEOF.
func lex(src string) ([]token, *ParseError) {
	var toks []token
	i := 0
	for {
		for i < len(src) && isSpace(src[i]) {
			i++
		}
		if i >= len(src) {
			toks = append(toks, token{kind: tokEOF, pos: i})
			return toks, nil
		}

		start := i
		c := src[i]
		two := ""
		if i+1 < len(src) {
			two = src[i : i+2]
		}

		switch {
		case two == "==" || two == "!=" || two == "<=" || two == ">=":
			toks = append(toks, token{kind: tokOp, text: two, pos: start})
			i += 2
		case two == "&&":
			toks = append(toks, token{kind: tokAnd, text: two, pos: start})
			i += 2
		case two == "||":
			toks = append(toks, token{kind: tokOr, text: two, pos: start})
			i += 2
		case c == '<' || c == '>':
			toks = append(toks, token{kind: tokOp, text: string(c), pos: start})
			i++
		case c == '!':
			toks = append(toks, token{kind: tokNot, text: "!", pos: start})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: start})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: start})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: start})
			i++
		case c == ':':
			toks = append(toks, token{kind: tokColon, text: ":", pos: start})
			i++
		case c == '"' || c == '\'':
			s, end, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: src[start:end], str: s, pos: start})
			i = end
		case isDigit(c) || (c == '-' && i+1 < len(src) && (isDigit(src[i+1]) || src[i+1] == '.')) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			end := scanNumber(src, i)
			n, err := strconv.ParseFloat(src[i:end], 64)
			if err != nil {
				return nil, &ParseError{Query: src, Position: start, Expected: []string{"number"}, Found: fmt.Sprintf("%q", src[i:end])}
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:end], num: n, pos: start})
			i = end
		case isIdentStart(c):
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		case c == '=':
			// A lone '=' only ever appears where a comparison was meant.
			return nil, &ParseError{Query: src, Position: start, Expected: []string{"comparison operator"}, Found: "'='"}
		default:
			r, _ := utf8.DecodeRuneInString(src[i:])
			return nil, &ParseError{Query: src, Position: start, Expected: []string{"expression"}, Found: fmt.Sprintf("%q", r)}
		}
	}
}

// lexString decodes a quoted string starting at src[i]. Supported escapes
// are \\, \', \", \n, \t and \r.
func lexString(src string, i int) (string, int, *ParseError) {
	quote := src[i]
	var b strings.Builder
	j := i + 1
	for j < len(src) {
		c := src[j]
		switch {
		case c == quote:
			return b.String(), j + 1, nil
		case c == '\\':
			if j+1 >= len(src) {
				j++
				continue
			}
			switch e := src[j+1]; e {
			case '\\', '\'', '"':
				b.WriteByte(e)
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				return "", 0, &ParseError{Query: src, Position: j, Expected: []string{"escape sequence"}, Found: fmt.Sprintf("%q", "\\"+string(e))}
			}
			j += 2
		default:
			b.WriteByte(c)
			j++
		}
	}
	return "", 0, &ParseError{Query: src, Position: len(src), Expected: []string{"closing " + string(quote)}, Found: "end of query"}
}

func scanNumber(src string, i int) int {
	if src[i] == '-' {
		i++
	}
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i < len(src) && src[i] == '.' {
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			for j < len(src) && isDigit(src[j]) {
				j++
			}
			i = j
		}
	}
	return i
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.'
}
