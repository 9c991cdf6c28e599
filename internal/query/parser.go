package query

import (
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/outpack/internal/packet"
)

// Parse parses query text into an expression.
//
// Grammar violations return a *ParseError. Calls to unknown functions and
// calls with the wrong number of arguments return an *EvalError with code
// UNKNOWN_FUNCTION or ARITY_MISMATCH.
func Parse(text string) (Expr, error) {
	toks, lexErr := lex(text)
	if lexErr != nil {
		return nil, lexErr
	}
	p := &parser{src: text, toks: toks}

	// A lone string literal is an id.
	if len(toks) == 2 && toks[0].kind == tokString {
		return &Compare{
			Op:    OpEq,
			Left:  &Lookup{Scope: ScopeID, Pos: toks[0].pos},
			Right: &Literal{Value: packet.String(toks[0].str)},
		}, nil
	}

	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "&&", "||", "end of query")
	}
	return expr, nil
}

type parser struct {
	src  string
	toks []token
	i    int
}

func (p *parser) peek() token {
	return p.toks[p.i]
}

func (p *parser) peekAt(n int) token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+n]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what ...string) (token, error) {
	t := p.peek()
	if t.kind != kind {
		return t, p.errorf(t, what...)
	}
	return p.next(), nil
}

func (p *parser) errorf(found token, expected ...string) *ParseError {
	return &ParseError{Query: p.src, Position: found.pos, Expected: expected, Found: found.describe()}
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().kind == tokNot {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{Expr: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch {
	case t.kind == tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case t.kind == tokIdent && p.peekAt(1).kind == tokLParen:
		return p.parseCall()
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	op := p.peek()
	if op.kind != tokOp {
		return nil, p.errorf(op, "comparison operator")
	}
	p.next()
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &Compare{Op: Op(op.text), Left: left, Right: right}, nil
}

var operandExpected = []string{"expression"}

func (p *parser) parseOperand() (Operand, error) {
	t := p.peek()
	switch t.kind {
	case tokString:
		p.next()
		return &Literal{Value: packet.String(t.str)}, nil
	case tokNumber:
		p.next()
		return &Literal{Value: packet.Number(t.num)}, nil
	case tokIdent:
		switch t.text {
		case "true", "false":
			p.next()
			return &Literal{Value: packet.Bool(t.text == "true")}, nil
		case "name":
			p.next()
			return &Lookup{Scope: ScopeName, Pos: t.pos}, nil
		case "id":
			p.next()
			return &Lookup{Scope: ScopeID, Pos: t.pos}, nil
		case "parameter", "this":
			p.next()
			if _, err := p.expect(tokColon, "':'"); err != nil {
				return nil, err
			}
			key, err := p.expect(tokIdent, "key")
			if err != nil {
				return nil, err
			}
			scope := ScopeParameter
			if t.text == "this" {
				scope = ScopeThis
			}
			return &Lookup{Scope: scope, Key: key.text, Pos: t.pos}, nil
		}
		return nil, p.errorf(t, "name", "id", "parameter:<key>", "this:<key>", "literal")
	}
	return nil, p.errorf(t, operandExpected...)
}

// arity bounds the number of arguments each function accepts.
var arity = map[string][2]int{
	"latest":  {0, 1},
	"single":  {1, 1},
	"usedby":  {1, 2},
	"depends": {1, 2},
	"uses":    {1, 2},
}

// arg is a parsed call argument: an expression or a bare number.
type arg struct {
	expr Expr
	num  *token
	pos  int
}

func (p *parser) parseCall() (Expr, error) {
	name := p.next()
	p.next() // (

	bounds, known := arity[name.text]
	if !known {
		return nil, newEvalError(CodeUnknownFunction, name.pos, "unknown function %q", name.text).
			with("function", name.text)
	}

	var args []arg
	if p.peek().kind != tokRParen {
		for {
			a, err := p.parseArg()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(tokRParen, "','", "')'"); err != nil {
		return nil, err
	}

	if len(args) < bounds[0] || len(args) > bounds[1] {
		expected := strconv.Itoa(bounds[0])
		if bounds[0] != bounds[1] {
			expected = fmt.Sprintf("%d to %d", bounds[0], bounds[1])
		}
		return nil, newEvalError(CodeArityMismatch, name.pos,
			"%s takes %s argument(s), got %d", name.text, expected, len(args)).
			with("function", name.text).
			with("expected", expected).
			with("got", strconv.Itoa(len(args)))
	}

	var first Expr
	if len(args) > 0 {
		if args[0].num != nil {
			return nil, p.errorf(*args[0].num, "expression")
		}
		first = args[0].expr
	}

	switch name.text {
	case "latest":
		return &Latest{Expr: first}, nil
	case "single":
		return &Single{Expr: first, Pos: name.pos}, nil
	}

	c := &Closure{Direction: Downstream, Expr: first}
	if name.text != "usedby" {
		c.Direction = Upstream
	}
	if len(args) == 2 {
		depth, err := p.depth(args[1])
		if err != nil {
			return nil, err
		}
		c.Depth = depth
	}
	return c, nil
}

// parseArg parses a call argument. A number directly followed by ',' or ')'
// is taken as a bare number rather than the start of a comparison.
func (p *parser) parseArg() (arg, error) {
	t := p.peek()
	if t.kind == tokNumber {
		if k := p.peekAt(1).kind; k == tokComma || k == tokRParen {
			p.next()
			return arg{num: &t, pos: t.pos}, nil
		}
	}
	e, err := p.parseOr()
	if err != nil {
		return arg{}, err
	}
	return arg{expr: e, pos: t.pos}, nil
}

func (p *parser) depth(a arg) (int, error) {
	if a.num == nil {
		return 0, &ParseError{Query: p.src, Position: a.pos, Expected: []string{"positive integer depth"}, Found: "expression"}
	}
	n := a.num.num
	if n < 1 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, p.errorf(*a.num, "positive integer depth")
	}
	return int(n), nil
}
