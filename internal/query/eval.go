package query

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/outpack/internal/index"
	"github.com/roach88/outpack/internal/packet"
)

// Options configures evaluation.
type Options struct {
	// This is the environment read by this:<key> lookups. Nil means no
	// environment was supplied; an empty map is an environment with no keys.
	This packet.Parameters
}

// Option sets an evaluation option.
type Option func(*Options)

// WithThis supplies the environment for this:<key> lookups.
func WithThis(env packet.Parameters) Option {
	return func(o *Options) {
		if env == nil {
			env = packet.Parameters{}
		}
		o.This = env
	}
}

// Evaluate parses text and evaluates it against idx, returning matching ids
// ordered by (time, id).
func Evaluate(idx *index.Index, text string, opts ...Option) ([]string, error) {
	expr, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return Eval(idx, expr, opts...)
}

// Eval evaluates a parsed expression against idx.
func Eval(idx *index.Index, expr Expr, opts ...Option) ([]string, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.This == nil {
		if l := findThis(expr); l != nil {
			return nil, newEvalError(CodeUnknownLookupScope, l.Pos,
				"this:%s used without an environment", l.Key).with("key", l.Key)
		}
	}

	e := &evaluator{idx: idx, n: idx.Len(), this: o.This}
	s, err := e.eval(expr)
	if err != nil {
		return nil, err
	}
	positions := s.positions()
	ids := make([]string, len(positions))
	for i, pos := range positions {
		ids[i] = idx.At(pos).ID
	}
	return ids, nil
}

// findThis returns the first this: lookup in expr, or nil.
func findThis(expr Expr) *Lookup {
	switch x := expr.(type) {
	case *Compare:
		for _, op := range []Operand{x.Left, x.Right} {
			if l, ok := op.(*Lookup); ok && l.Scope == ScopeThis {
				return l
			}
		}
	case *Not:
		return findThis(x.Expr)
	case *And:
		if l := findThis(x.Left); l != nil {
			return l
		}
		return findThis(x.Right)
	case *Or:
		if l := findThis(x.Left); l != nil {
			return l
		}
		return findThis(x.Right)
	case *Latest:
		if x.Expr != nil {
			return findThis(x.Expr)
		}
	case *Single:
		return findThis(x.Expr)
	case *Closure:
		return findThis(x.Expr)
	}
	return nil
}

type evaluator struct {
	idx  *index.Index
	n    int
	this packet.Parameters
}

func (e *evaluator) eval(expr Expr) (set, error) {
	switch x := expr.(type) {
	case *Compare:
		return e.compare(x), nil

	case *Not:
		inner, err := e.eval(x.Expr)
		if err != nil {
			return nil, err
		}
		return inner.complement(e.n), nil

	case *And:
		left, err := e.eval(x.Left)
		if err != nil || left.empty() {
			return left, err
		}
		right, err := e.eval(x.Right)
		if err != nil {
			return nil, err
		}
		return left.intersect(right), nil

	case *Or:
		left, err := e.eval(x.Left)
		if err != nil || left.count() == e.n {
			return left, err
		}
		right, err := e.eval(x.Right)
		if err != nil {
			return nil, err
		}
		return left.union(right), nil

	case *Latest:
		matches := fullSet(e.n)
		if x.Expr != nil {
			var err error
			if matches, err = e.eval(x.Expr); err != nil {
				return nil, err
			}
		}
		out := newSet(e.n)
		if last := matches.last(); last >= 0 {
			out.add(last)
		}
		return out, nil

	case *Single:
		matches, err := e.eval(x.Expr)
		if err != nil {
			return nil, err
		}
		if c := matches.count(); c != 1 {
			return nil, newEvalError(CodeAmbiguousQuery, x.Pos,
				"single() requires exactly one match, found %d", c).with("count", strconv.Itoa(c))
		}
		return matches, nil

	case *Closure:
		start, err := e.eval(x.Expr)
		if err != nil {
			return nil, err
		}
		return e.closure(start, x.Direction, x.Depth), nil
	}
	panic("query: unhandled expression type")
}

// closure walks edges breadth-first from start for up to depth hops
// (unbounded when depth is 0). Visited positions are tracked so the walk
// terminates on any graph shape, including corrupt cyclic ones.
func (e *evaluator) closure(start set, dir Direction, depth int) set {
	edges := e.idx.UsedByAt
	if dir == Upstream {
		edges = e.idx.DependsOnAt
	}

	visited := newSet(e.n)
	reached := newSet(e.n)
	frontier := start.positions()
	for _, p := range frontier {
		visited.add(p)
	}
	for hop := 1; len(frontier) > 0 && (depth == 0 || hop <= depth); hop++ {
		var next []int
		for _, p := range frontier {
			for _, q := range edges(p) {
				if !visited.has(q) {
					visited.add(q)
					reached.add(q)
					next = append(next, q)
				}
			}
		}
		frontier = next
	}
	return reached
}

// compare evaluates a comparison for every packet. Comparisons that pin name
// or id to a literal with == use the index directly.
func (e *evaluator) compare(c *Compare) set {
	out := newSet(e.n)

	if c.Op == OpEq {
		if lookup, lit, ok := lookupLiteral(c); ok {
			if s, ok := lit.Value.(packet.String); ok {
				switch lookup.Scope {
				case ScopeName:
					for _, p := range e.idx.ByNameAt(string(s)) {
						out.add(p)
					}
					return out
				case ScopeID:
					if p, found := e.idx.Position(string(s)); found {
						out.add(p)
					}
					return out
				}
			}
		}
	}

	for i := 0; i < e.n; i++ {
		p := e.idx.At(i)
		if compareValues(c.Op, e.value(c.Left, p), e.value(c.Right, p)) {
			out.add(i)
		}
	}
	return out
}

// lookupLiteral matches "lookup op literal" in either order.
func lookupLiteral(c *Compare) (*Lookup, *Literal, bool) {
	if l, ok := c.Left.(*Lookup); ok {
		if r, ok := c.Right.(*Literal); ok {
			return l, r, true
		}
	}
	if l, ok := c.Right.(*Lookup); ok {
		if r, ok := c.Left.(*Literal); ok {
			return l, r, true
		}
	}
	return nil, nil, false
}

func (e *evaluator) value(op Operand, p *packet.Packet) packet.Value {
	switch x := op.(type) {
	case *Literal:
		return x.Value
	case *Lookup:
		switch x.Scope {
		case ScopeName:
			return packet.String(p.Name)
		case ScopeID:
			return packet.String(p.ID)
		case ScopeParameter:
			return p.Parameters.Get(x.Key)
		case ScopeThis:
			return e.this.Get(x.Key)
		}
	}
	return packet.Null{}
}

// compareValues applies op to a and b. Null on either side, and operands of
// different types, are never equal, unequal or ordered.
func compareValues(op Op, a, b packet.Value) bool {
	if packet.IsNull(a) || packet.IsNull(b) {
		return false
	}
	switch x := a.(type) {
	case packet.Number:
		y, ok := b.(packet.Number)
		if !ok {
			return false
		}
		return ordered(op, cmpFloat(float64(x), float64(y)))
	case packet.String:
		y, ok := b.(packet.String)
		if !ok {
			return false
		}
		return ordered(op, strings.Compare(norm.NFC.String(string(x)), norm.NFC.String(string(y))))
	case packet.Bool:
		y, ok := b.(packet.Bool)
		if !ok {
			return false
		}
		switch op {
		case OpEq:
			return x == y
		case OpNe:
			return x != y
		}
	}
	return false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func ordered(op Op, c int) bool {
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}
	return false
}
