package query

import (
	"strconv"

	"github.com/roach88/outpack/internal/packet"
)

// Expr is a set-valued query expression.
//
// This is a sealed interface - only types in this package implement it.
// String renders the expression in canonical query syntax; parsing the
// rendering yields an equal expression.
type Expr interface {
	exprNode()
	String() string
}

// Operand is a value-valued term on either side of a comparison.
//
// This is a sealed interface - only Literal and Lookup implement it.
type Operand interface {
	operandNode()
	String() string
}

// Literal is a constant string, number or boolean.
type Literal struct {
	Value packet.Value
}

func (*Literal) operandNode() {}

func (l *Literal) String() string {
	if s, ok := l.Value.(packet.String); ok {
		return strconv.Quote(string(s))
	}
	return l.Value.String()
}

// Scope says where a Lookup reads its value from.
type Scope int

const (
	// ScopeName reads the packet name.
	ScopeName Scope = iota
	// ScopeID reads the packet id.
	ScopeID
	// ScopeParameter reads a parameter of the packet under test.
	ScopeParameter
	// ScopeThis reads a value from the environment supplied with the query.
	ScopeThis
)

// Lookup reads a value from the packet under test or the environment.
type Lookup struct {
	Scope Scope

	// Key is the parameter or environment key; empty for name and id.
	Key string

	// Pos is the byte offset of the lookup in the query text.
	Pos int
}

func (*Lookup) operandNode() {}

func (l *Lookup) String() string {
	switch l.Scope {
	case ScopeName:
		return "name"
	case ScopeID:
		return "id"
	case ScopeParameter:
		return "parameter:" + l.Key
	case ScopeThis:
		return "this:" + l.Key
	}
	return "?"
}

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// Compare selects packets for which Left Op Right holds.
type Compare struct {
	Op    Op
	Left  Operand
	Right Operand
}

func (*Compare) exprNode() {}

func (c *Compare) String() string {
	return c.Left.String() + " " + string(c.Op) + " " + c.Right.String()
}

// Not selects every packet Expr does not.
type Not struct {
	Expr Expr
}

func (*Not) exprNode() {}

func (n *Not) String() string {
	return "!" + group(n.Expr)
}

// And intersects two expressions.
type And struct {
	Left, Right Expr
}

func (*And) exprNode() {}

func (a *And) String() string {
	return group(a.Left) + " && " + group(a.Right)
}

// Or unites two expressions.
type Or struct {
	Left, Right Expr
}

func (*Or) exprNode() {}

func (o *Or) String() string {
	return group(o.Left) + " || " + group(o.Right)
}

// Latest selects the most recent packet among Expr's matches, or among all
// packets when Expr is nil.
type Latest struct {
	Expr Expr
}

func (*Latest) exprNode() {}

func (l *Latest) String() string {
	if l.Expr == nil {
		return "latest()"
	}
	return "latest(" + l.Expr.String() + ")"
}

// Single selects Expr's only match.
type Single struct {
	Expr Expr
	Pos  int
}

func (*Single) exprNode() {}

func (s *Single) String() string {
	return "single(" + s.Expr.String() + ")"
}

// Direction is the edge direction a Closure follows.
type Direction int

const (
	// Downstream follows used-by edges: packets that depend on the start.
	Downstream Direction = iota
	// Upstream follows depends-on edges: packets the start depends on.
	Upstream
)

// Closure selects the packets reachable from Expr's matches within Depth
// hops, excluding the matches themselves. Depth 0 is unbounded.
type Closure struct {
	Direction Direction
	Expr      Expr
	Depth     int
}

func (*Closure) exprNode() {}

func (c *Closure) String() string {
	fn := "usedby"
	if c.Direction == Upstream {
		fn = "depends"
	}
	if c.Depth > 0 {
		return fn + "(" + c.Expr.String() + ", " + strconv.Itoa(c.Depth) + ")"
	}
	return fn + "(" + c.Expr.String() + ")"
}

// group parenthesises binary and negated operands so String output
// reparses with the same structure.
func group(e Expr) string {
	switch e.(type) {
	case *And, *Or, *Compare:
		return "(" + e.String() + ")"
	}
	return e.String()
}
