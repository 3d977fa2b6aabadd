// Package generation walks a columnar schema to build a tree of typed
// field proxies whose comparison operators emit validated query.Expression
// values.
package generation

import (
	"fmt"

	"github.com/mosaicolabs/mosaico-go/internal/models/query"
)

// LeafKind is the operator-mixin assigned to a leaf node, chosen from the
// column type.
type LeafKind int

const (
	// LeafGroup is not a leaf: an interior node with named children.
	LeafGroup LeafKind = iota
	LeafNumeric
	LeafBool
	LeafString
	LeafDatetime
	LeafDynamic
	// LeafUnsupported (list/large-list columns): no operators, attribute
	// access raises.
	LeafUnsupported
)

// operatorsByKind is the fixed allowed-operator set per leaf mixin.
var operatorsByKind = map[LeafKind][]string{
	LeafNumeric:  {query.OpEq, query.OpNeq, query.OpLt, query.OpLeq, query.OpGt, query.OpGeq, query.OpIn, query.OpBetween},
	LeafDatetime: {query.OpEq, query.OpNeq, query.OpLt, query.OpLeq, query.OpGt, query.OpGeq, query.OpIn, query.OpBetween},
	LeafString:   {query.OpEq, query.OpNeq, query.OpMatch, query.OpIn},
	LeafBool:     {query.OpEq},
	LeafDynamic:  {query.OpEq, query.OpLt, query.OpLeq, query.OpGt, query.OpGeq, query.OpBetween},
}

// Node is one field in the schema-derived proxy tree: either a group node
// with named children, or a leaf node whose Kind selects its operator
// mixin.
type Node struct {
	path     string
	domain   query.Domain
	kind     LeafKind
	children map[string]*Node // group nodes only
}

// Path returns this node's full dotted key-path.
func (n *Node) Path() string { return n.path }

// Kind returns this node's leaf classification (LeafGroup for interior
// nodes).
func (n *Node) Kind() LeafKind { return n.kind }

// Field descends into a named child of a group node. Accessing a
// non-existent field, or calling Field on a non-group node, raises
// query.ErrInvalidField listing the fields actually available.
func (n *Node) Field(name string) (*Node, error) {
	if n.kind == LeafDynamic {
		return nil, fmt.Errorf("%w: %q is a dynamic (dict) field; use Index(key), not dot-access", query.ErrInvalidField, n.path)
	}
	if n.kind != LeafGroup {
		return nil, fmt.Errorf("%w: %q is a leaf field with no children", query.ErrInvalidField, n.path)
	}
	child, ok := n.children[name]
	if !ok {
		available := make(map[string]struct{}, len(n.children))
		for k := range n.children {
			available[k] = struct{}{}
		}
		return nil, fmt.Errorf("%w: %q has no field %q; available: %v", query.ErrInvalidField, n.path, name, query.SortedKeys(available))
	}
	return child, nil
}

// Index performs dict-style key access on a dynamic (dict-typed) field,
// returning a dynamic-typed leaf whose path is "parent-path.key".
// Only dynamic nodes support Index.
func (n *Node) Index(key string) (*Node, error) {
	if n.kind != LeafDynamic {
		return nil, fmt.Errorf("%w: %q is not a dict field; Index is only valid on dict-typed fields", query.ErrInvalidField, n.path)
	}
	return &Node{path: n.path + "." + key, domain: n.domain, kind: LeafDynamic}, nil
}

// allowedOperators lists the operator names usable on this leaf, empty for
// group or unsupported nodes.
func (n *Node) allowedOperators() []string {
	return operatorsByKind[n.kind]
}

func (n *Node) checkOperator(op string) error {
	for _, allowed := range n.allowedOperators() {
		if allowed == op {
			return nil
		}
	}
	return fmt.Errorf("%w: %q does not support %s; available: %v", query.ErrInvalidOperator, n.path, op, n.allowedOperators())
}

// Eq emits a "$eq" expression; supported by every leaf kind except
// LeafUnsupported.
func (n *Node) Eq(value any) (query.Expression, error) { return n.scalarOrComparable(query.OpEq, value) }

// Neq emits a "$neq" expression (numeric, datetime, string leaves).
func (n *Node) Neq(value any) (query.Expression, error) {
	return n.scalarOrComparable(query.OpNeq, value)
}

// Lt emits a "$lt" expression (numeric, datetime, dynamic leaves).
func (n *Node) Lt(value any) (query.Expression, error) { return n.scalarOrComparable(query.OpLt, value) }

// Leq emits a "$leq" expression.
func (n *Node) Leq(value any) (query.Expression, error) {
	return n.scalarOrComparable(query.OpLeq, value)
}

// Gt emits a "$gt" expression.
func (n *Node) Gt(value any) (query.Expression, error) { return n.scalarOrComparable(query.OpGt, value) }

// Geq emits a "$geq" expression.
func (n *Node) Geq(value any) (query.Expression, error) {
	return n.scalarOrComparable(query.OpGeq, value)
}

// Match emits a "$match" expression; string leaves only.
func (n *Node) Match(pattern string) (query.Expression, error) {
	if err := n.checkOperator(query.OpMatch); err != nil {
		return query.Expression{}, err
	}
	return query.NewScalar(n.domain, n.path, query.OpMatch, pattern)
}

// In emits a "$in" expression: numeric/datetime leaves take variadic
// scalars of one type; string leaves use InStrings. Dynamic leaves do not
// support $in.
func (n *Node) In(values ...any) (query.Expression, error) {
	if err := n.checkOperator(query.OpIn); err != nil {
		return query.Expression{}, err
	}
	if n.kind == LeafDatetime {
		norm, err := query.NormalizeDatetimeValues(values)
		if err != nil {
			return query.Expression{}, err
		}
		return query.NewComparable(n.domain, n.path, query.OpIn, norm...)
	}
	return query.NewComparable(n.domain, n.path, query.OpIn, values...)
}

// InStrings emits a "$in" expression for a string leaf.
func (n *Node) InStrings(values ...string) (query.Expression, error) {
	if n.kind != LeafString {
		return query.Expression{}, fmt.Errorf("%w: InStrings is only valid on string leaves", query.ErrInvalidOperator)
	}
	if err := n.checkOperator(query.OpIn); err != nil {
		return query.Expression{}, err
	}
	return query.NewStringIn(n.domain, n.path, values...)
}

// Between emits a "$between" expression: numeric/datetime/dynamic leaves
// only.
func (n *Node) Between(lo, hi any) (query.Expression, error) {
	if err := n.checkOperator(query.OpBetween); err != nil {
		return query.Expression{}, err
	}
	if n.kind == LeafDatetime {
		// Type and order are checked on the raw values: the normalized
		// strings do not sort chronologically.
		if _, err := query.NewComparable(n.domain, n.path, query.OpBetween, lo, hi); err != nil {
			return query.Expression{}, err
		}
		norm, err := query.NormalizeDatetimeValues([]any{lo, hi})
		if err != nil {
			return query.Expression{}, err
		}
		return query.Expression{Domain: n.domain, KeyPath: n.path, Operator: query.OpBetween, Value: norm}, nil
	}
	return query.NewComparable(n.domain, n.path, query.OpBetween, lo, hi)
}

// scalarOrComparable backs Eq/Neq/Lt/Leq/Gt/Geq: bool and string leaves
// take a bare scalar value, numeric/datetime/dynamic leaves go through the
// comparable constructor (identical wire shape, different value-typing
// discipline).
func (n *Node) scalarOrComparable(op string, value any) (query.Expression, error) {
	if err := n.checkOperator(op); err != nil {
		return query.Expression{}, err
	}
	switch n.kind {
	case LeafBool:
		if _, ok := value.(bool); !ok {
			return query.Expression{}, fmt.Errorf("%w: bool leaf requires a bool value, got %T", query.ErrValueType, value)
		}
		return query.NewScalar(n.domain, n.path, op, value)
	case LeafString:
		if _, ok := value.(string); !ok {
			return query.Expression{}, fmt.Errorf("%w: string leaf requires a string value, got %T", query.ErrValueType, value)
		}
		return query.NewScalar(n.domain, n.path, op, value)
	case LeafDatetime:
		norm, err := query.NormalizeDatetimeValue(value)
		if err != nil {
			return query.Expression{}, err
		}
		return query.NewComparable(n.domain, n.path, op, norm)
	default: // LeafNumeric, LeafDynamic
		return query.NewComparable(n.domain, n.path, op, value)
	}
}

// String renders a human-readable description, used in test failure output.
func (n *Node) String() string {
	if n.kind == LeafGroup {
		return fmt.Sprintf("generation.Node{group %q, %d children}", n.path, len(n.children))
	}
	return fmt.Sprintf("generation.Node{leaf %q, kind=%d}", n.path, n.kind)
}
