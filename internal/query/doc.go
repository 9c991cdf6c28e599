// Package query implements the packet query language: a small filter
// language over an Index, with graph-aware functions.
//
// ARCHITECTURE:
//
//	[query text] → Parse → [Expr] → Eval(Index, Options) → [ids]
//
// Parse and Eval are pure. Evaluation performs no I/O and never mutates the
// Index, so any number of queries may run concurrently against one snapshot.
//
// GRAMMAR:
//
//	query      := or EOF | STRING EOF
//	or         := and ( "||" and )*
//	and        := unary ( "&&" unary )*
//	unary      := "!" unary | primary
//	primary    := "(" or ")" | call | comparison
//	call       := IDENT "(" [ arg ( "," arg )* ] ")"
//	arg        := or | NUMBER
//	comparison := operand OP operand
//	operand    := STRING | NUMBER | "true" | "false" | lookup
//	lookup     := "name" | "id" | "parameter:" KEY | "this:" KEY
//	OP         := "==" | "!=" | "<" | "<=" | ">" | ">="
//
// A query consisting of a single string literal selects the packet with that
// id. Strings are quoted with either ' or " and support backslash escapes.
//
// FUNCTIONS:
//
//	latest()            the most recent packet
//	latest(expr)        the most recent match (ties: greatest id)
//	single(expr)        the only match; otherwise AMBIGUOUS_QUERY
//	usedby(expr[, n])   packets downstream of the matches, within n hops
//	depends(expr[, n])  packets upstream of the matches, within n hops
//	uses(expr[, n])     same as depends
//
// Closures exclude the packets they start from. Depth must be a positive
// integer literal; omitted means unbounded.
//
// SEMANTICS:
//
// Every expression denotes a set of packets. Results are ordered by packet
// time, ties broken by id. Comparisons are evaluated per packet:
//   - a lookup of an absent parameter yields null, and any comparison
//     involving null is false (including !=)
//   - numbers compare numerically, strings lexically after NFC normalisation
//   - booleans support only == and !=
//   - values of different types never compare true
//
// "!" complements within all indexed packets. "&&" skips its right operand
// when the left is empty; "||" skips it when the left already holds every
// packet.
//
// "this:<key>" reads from the environment supplied with Options. Using it
// without one fails with UNKNOWN_LOOKUP_SCOPE before evaluation begins.
//
// SEALED INTERFACES:
//
// Expr and Operand are sealed with marker methods so evaluation is a single
// exhaustive type switch:
//
//	switch x := expr.(type) {
//	case *Compare:
//	case *Not:
//	case *And:
//	case *Or:
//	case *Latest:
//	case *Single:
//	case *Closure:
//	}
package query
