package lang

// ExprKind tags the variant of an Expr node in a predicate/projection tree.
type ExprKind string

const (
	ExprColumn ExprKind = "column"
	ExprLit    ExprKind = "literal"
	ExprUnary  ExprKind = "unary"
	ExprBinary ExprKind = "binary"
	ExprCall   ExprKind = "call"
)

// Expr is the tagged-tree node shared by both dialects for predicates,
// projections and order/group keys — simple enough to serialize to a stable
// dict form (ToDict) for plan caching/canonicalization and logging, and to
// walk with a Visitor without a type switch at every call site.
type Expr struct {
	Kind ExprKind

	// ExprColumn
	Name string

	// ExprLit — exactly one of these is meaningful, chosen by LitType.
	LitType string // "string", "number", "bool", "null"
	Str     string
	Num     float64
	Bool    bool

	// ExprUnary / ExprBinary
	Op    string
	Left  *Expr
	Right *Expr

	// ExprCall
	Func string
	Args []*Expr
}

// Visitor walks an Expr tree. Visit returns an arbitrary accumulator value;
// callers that don't need one can ignore it.
type Visitor interface {
	Visit(e *Expr) any
}

// Accept dispatches e to v, visiting children first (post-order) so a
// Visitor computing e.g. required-column sets sees leaves before parents.
func (e *Expr) Accept(v Visitor) any {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ExprUnary:
		e.Right.Accept(v)
	case ExprBinary:
		e.Left.Accept(v)
		e.Right.Accept(v)
	case ExprCall:
		for _, a := range e.Args {
			a.Accept(v)
		}
	}
	return v.Visit(e)
}

// ToDict renders e as a stable, JSON-friendly map — used for plan
// canonicalization (QueryPlan.Canonical) and audit logging so two
// syntactically different but semantically identical expressions hash the
// same way once the optimizer normalizes them.
func (e *Expr) ToDict() map[string]any {
	if e == nil {
		return nil
	}
	d := map[string]any{"kind": string(e.Kind)}
	switch e.Kind {
	case ExprColumn:
		d["name"] = e.Name
	case ExprLit:
		d["lit_type"] = e.LitType
		switch e.LitType {
		case "string":
			d["value"] = e.Str
		case "number":
			d["value"] = e.Num
		case "bool":
			d["value"] = e.Bool
		case "null":
			d["value"] = nil
		}
	case ExprUnary:
		d["op"] = e.Op
		d["right"] = e.Right.ToDict()
	case ExprBinary:
		d["op"] = e.Op
		d["left"] = e.Left.ToDict()
		d["right"] = e.Right.ToDict()
	case ExprCall:
		d["func"] = e.Func
		args := make([]any, len(e.Args))
		for i, a := range e.Args {
			args[i] = a.ToDict()
		}
		d["args"] = args
	}
	return d
}

// ColumnRefs collects every distinct column name referenced in e, used by
// the optimizer's column-prune rule.
func (e *Expr) ColumnRefs() []string {
	v := &columnCollector{seen: map[string]bool{}}
	e.Accept(v)
	return v.order
}

type columnCollector struct {
	seen  map[string]bool
	order []string
}

func (c *columnCollector) Visit(e *Expr) any {
	if e.Kind == ExprColumn && !c.seen[e.Name] {
		c.seen[e.Name] = true
		c.order = append(c.order, e.Name)
	}
	return nil
}
