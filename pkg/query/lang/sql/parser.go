// Package sql implements C4's SQL dialect: SELECT/FROM/JOIN/WHERE/GROUP
// BY/HAVING/ORDER BY/LIMIT/OFFSET, plus the PIVOT/UNPIVOT/MATCH_RECOGNIZE/
// MODEL analytic extensions, compiled to a types.QueryPlan.
package sql

import (
	"strconv"
	"strings"

	"github.com/datapunk/lake/pkg/query/lang"
	"github.com/datapunk/lake/pkg/types"
)

var keywords = map[string]bool{}

func init() {
	for _, kw := range []string{
		"SELECT", "FROM", "WHERE", "AND", "OR", "NOT", "JOIN", "INNER", "LEFT",
		"RIGHT", "FULL", "CROSS", "OUTER", "ON", "GROUP", "BY", "HAVING",
		"ORDER", "ASC", "DESC", "LIMIT", "OFFSET", "AS", "DISTINCT", "IN",
		"IS", "NULL", "TRUE", "FALSE", "BETWEEN", "LIKE", "PIVOT", "UNPIVOT",
		"MATCH_RECOGNIZE", "MODEL", "FOR",
	} {
		keywords[kw] = true
	}
}

// Parser holds one parse over a single SQL statement. Parser instances are
// not reusable across statements.
type Parser struct {
	toks []lang.Token
	pos  int
}

// Parse compiles a single SQL statement into a QueryPlan. It stops and
// returns at the first error — there is no error recovery, matching the
// "one error aborts" parse policy.
func Parse(src string) (*types.QueryPlan, *lang.ParseError) {
	toks, err := lang.Tokenize(src, keywords)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	root, perr := p.parseSelect()
	if perr != nil {
		return nil, perr
	}
	if !p.atEOF() {
		return nil, p.errorf(lang.ParseErrorSyntax, "unexpected trailing input")
	}
	return &types.QueryPlan{Root: root}, nil
}

func (p *Parser) cur() lang.Token  { return p.toks[p.pos] }
func (p *Parser) atEOF() bool      { return p.cur().Kind == lang.TokenEOF }
func (p *Parser) advance() lang.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) errorf(kind lang.ParseErrorKind, msg string) *lang.ParseError {
	t := p.cur()
	return &lang.ParseError{Kind: kind, Line: t.Line, Column: t.Column, Message: msg, Token: t.Value}
}

func (p *Parser) expectKeyword(kw string) *lang.ParseError {
	t := p.cur()
	if t.Kind != lang.TokenKeyword || t.Value != kw {
		return p.errorf(lang.ParseErrorSyntax, "expected "+kw)
	}
	p.advance()
	return nil
}

func (p *Parser) isKeyword(kw string) bool {
	t := p.cur()
	return t.Kind == lang.TokenKeyword && t.Value == kw
}

func (p *Parser) isPunct(v string) bool {
	t := p.cur()
	return t.Kind == lang.TokenPunctuation && t.Value == v
}

func (p *Parser) isOperator(v string) bool {
	t := p.cur()
	return t.Kind == lang.TokenOperator && t.Value == v
}

func (p *Parser) expectIdent() (string, *lang.ParseError) {
	t := p.cur()
	if t.Kind != lang.TokenIdent {
		return "", p.errorf(lang.ParseErrorSyntax, "expected identifier")
	}
	p.advance()
	return t.Value, nil
}

// parseSelect parses the full statement and assembles the operator chain:
// Scan -> [Join] -> [Filter] -> [Aggregate] -> [Filter(having)] -> [Sort] ->
// [skip] -> [Limit] -> Project, mirroring relational-algebra evaluation order.
// OFFSET becomes the skip node: a Limit with negated N, the same encoding the
// NoSQL dialect uses for its skip stage.
func (p *Parser) parseSelect() (*types.PlanNode, *lang.ParseError) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	distinct := false
	if p.isKeyword("DISTINCT") {
		distinct = true
		p.advance()
	}

	columns, err := p.parseColumnList()
	if err != nil {
		return nil, err
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	var node *types.PlanNode = &types.PlanNode{Kind: types.PlanScan, ID: "scan:" + table, Source: table}

	for p.isJoinStart() {
		node, err = p.parseJoin(node)
		if err != nil {
			return nil, err
		}
	}

	if p.isKeyword("WHERE") {
		p.advance()
		predExpr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		node = &types.PlanNode{Kind: types.PlanFilter, ID: "filter", Predicate: exprString(predExpr), Input: node}
	}

	if p.isKeyword("GROUP") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		groupKeys, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		node = &types.PlanNode{Kind: types.PlanAggregate, ID: "aggregate", GroupKeys: groupKeys, Aggs: columns, Input: node}

		if p.isKeyword("HAVING") {
			p.advance()
			havingExpr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			node = &types.PlanNode{Kind: types.PlanFilter, ID: "having", Predicate: exprString(havingExpr), Input: node}
		}
	}

	if p.isKeyword("ORDER") {
		p.advance()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		sortKeys, err := p.parseOrderList()
		if err != nil {
			return nil, err
		}
		node = &types.PlanNode{Kind: types.PlanSort, ID: "sort", SortKeys: sortKeys, Input: node}
	}

	if p.isKeyword("LIMIT") {
		p.advance()
		n, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		var offset int64
		if p.isKeyword("OFFSET") {
			p.advance()
			if offset, err = p.expectInt(); err != nil {
				return nil, err
			}
		}
		if offset > 0 {
			node = &types.PlanNode{Kind: types.PlanLimit, ID: "skip", N: -offset, Input: node}
		}
		node = &types.PlanNode{Kind: types.PlanLimit, ID: "limit", N: n, Input: node}
	} else if p.isKeyword("OFFSET") {
		p.advance()
		offset, err := p.expectInt()
		if err != nil {
			return nil, err
		}
		if offset > 0 {
			node = &types.PlanNode{Kind: types.PlanLimit, ID: "skip", N: -offset, Input: node}
		}
	}

	if ext, handled, err := p.parseAnalyticExtension(node); err != nil {
		return nil, err
	} else if handled {
		node = ext
	}

	if len(columns) > 0 && columns[0] != "*" {
		node = &types.PlanNode{Kind: types.PlanProject, ID: "project", Columns: columns, Input: node}
	}
	_ = distinct // DISTINCT is accepted but not recorded in the plan
	return node, nil
}

func (p *Parser) expectInt() (int64, *lang.ParseError) {
	t := p.cur()
	if t.Kind != lang.TokenNumber {
		return 0, p.errorf(lang.ParseErrorSyntax, "expected integer")
	}
	p.advance()
	n, convErr := strconv.ParseInt(t.Value, 10, 64)
	if convErr != nil {
		return 0, &lang.ParseError{Kind: lang.ParseErrorValidation, Line: t.Line, Column: t.Column,
			Message: "invalid integer literal", Token: t.Value}
	}
	return n, nil
}

func (p *Parser) parseColumnList() ([]string, *lang.ParseError) {
	if p.isOperator("*") {
		p.advance()
		return []string{"*"}, nil
	}
	return p.parseIdentList()
}

func (p *Parser) parseIdentList() ([]string, *lang.ParseError) {
	var out []string
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if p.isKeyword("AS") {
			p.advance()
			if _, err := p.expectIdent(); err != nil {
				return nil, err
			}
		}
		out = append(out, name)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return out, nil
}

func (p *Parser) parseOrderList() ([]string, *lang.ParseError) {
	var out []string
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		dir := "asc"
		if p.isKeyword("ASC") {
			p.advance()
		} else if p.isKeyword("DESC") {
			dir = "desc"
			p.advance()
		}
		out = append(out, name+" "+dir)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return out, nil
}

var joinKeywords = map[string]types.JoinType{
	"INNER": types.JoinInner,
	"LEFT":  types.JoinLeft,
	"RIGHT": types.JoinRight,
	"FULL":  types.JoinFull,
	"CROSS": types.JoinCross,
}

func (p *Parser) isJoinStart() bool {
	if p.isKeyword("JOIN") {
		return true
	}
	t := p.cur()
	return t.Kind == lang.TokenKeyword && joinKeywords[t.Value] != ""
}

func (p *Parser) parseJoin(left *types.PlanNode) (*types.PlanNode, *lang.ParseError) {
	kind := types.JoinInner
	if t := p.cur(); t.Kind == lang.TokenKeyword && joinKeywords[t.Value] != "" {
		kind = joinKeywords[t.Value]
		p.advance()
		if p.isKeyword("OUTER") {
			p.advance()
		}
	}
	if err := p.expectKeyword("JOIN"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	right := &types.PlanNode{Kind: types.PlanScan, ID: "scan:" + table, Source: table}

	var on string
	if kind != types.JoinCross {
		if err := p.expectKeyword("ON"); err != nil {
			return nil, err
		}
		onExpr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		on = exprString(onExpr)
	}

	return &types.PlanNode{Kind: types.PlanJoin, ID: "join:" + table, JoinKind: kind, Left: left, Right: right, On: on}, nil
}

// parseAnalyticExtension recognizes the trailing PIVOT/UNPIVOT/
// MATCH_RECOGNIZE/MODEL clauses. These are advanced, rarely used analytic
// extensions; rather than a full dedicated grammar for each, their body is
// captured as opaque text in Spec and the optimizer/federation layers treat
// the resulting node as a leaf, same as PlanTimeSeries/PlanGraphTraversal.
func (p *Parser) parseAnalyticExtension(input *types.PlanNode) (*types.PlanNode, bool, *lang.ParseError) {
	var clause string
	switch {
	case p.isKeyword("PIVOT"):
		clause = "pivot"
	case p.isKeyword("UNPIVOT"):
		clause = "unpivot"
	case p.isKeyword("MATCH_RECOGNIZE"):
		clause = "match_recognize"
	case p.isKeyword("MODEL"):
		clause = "model"
	default:
		return input, false, nil
	}
	p.advance()
	if !p.isPunct("(") {
		return nil, false, p.errorf(lang.ParseErrorSyntax, "expected ( after "+clause)
	}
	depth := 0
	var body strings.Builder
	for {
		t := p.cur()
		if t.Kind == lang.TokenEOF {
			return nil, false, p.errorf(lang.ParseErrorSyntax, "unterminated "+clause+" clause")
		}
		if t.Kind == lang.TokenPunctuation && t.Value == "(" {
			depth++
		}
		if t.Kind == lang.TokenPunctuation && t.Value == ")" {
			depth--
			if depth == 0 {
				p.advance()
				break
			}
		}
		body.WriteString(t.Value)
		body.WriteByte(' ')
		p.advance()
	}
	return &types.PlanNode{
		Kind:  types.PlanPivotMR,
		ID:    clause,
		Input: input,
		Spec:  map[string]any{"clause": clause, "body": strings.TrimSpace(body.String())},
	}, true, nil
}

// --- expression parsing: OR > AND > NOT > comparison > primary ---

func (p *Parser) parseExpr() (*lang.Expr, *lang.ParseError) { return p.parseOr() }

func (p *Parser) parseOr() (*lang.Expr, *lang.ParseError) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &lang.Expr{Kind: lang.ExprBinary, Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (*lang.Expr, *lang.ParseError) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &lang.Expr{Kind: lang.ExprBinary, Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (*lang.Expr, *lang.ParseError) {
	if p.isKeyword("NOT") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &lang.Expr{Kind: lang.ExprUnary, Op: "not", Right: operand}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]bool{"=": true, "!=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *Parser) parseComparison() (*lang.Expr, *lang.ParseError) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	t := p.cur()
	if t.Kind == lang.TokenOperator && comparisonOps[t.Value] {
		op := t.Value
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &lang.Expr{Kind: lang.ExprBinary, Op: op, Left: left, Right: right}, nil
	}
	if p.isKeyword("LIKE") {
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &lang.Expr{Kind: lang.ExprBinary, Op: "like", Left: left, Right: right}, nil
	}
	if p.isKeyword("IN") {
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		var args []*lang.Expr
		for {
			v, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			args = append(args, v)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return &lang.Expr{Kind: lang.ExprCall, Func: "in", Args: append([]*lang.Expr{left}, args...)}, nil
	}
	return left, nil
}

func (p *Parser) expectPunct(v string) *lang.ParseError {
	if !p.isPunct(v) {
		return p.errorf(lang.ParseErrorSyntax, "expected "+v)
	}
	p.advance()
	return nil
}

func (p *Parser) parsePrimary() (*lang.Expr, *lang.ParseError) {
	t := p.cur()
	switch {
	case t.Kind == lang.TokenPunctuation && t.Value == "(":
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return e, nil
	case t.Kind == lang.TokenNumber:
		p.advance()
		n, convErr := strconv.ParseFloat(t.Value, 64)
		if convErr != nil {
			return nil, &lang.ParseError{Kind: lang.ParseErrorValidation, Line: t.Line, Column: t.Column,
				Message: "invalid numeric literal", Token: t.Value}
		}
		return &lang.Expr{Kind: lang.ExprLit, LitType: "number", Num: n}, nil
	case t.Kind == lang.TokenString:
		p.advance()
		return &lang.Expr{Kind: lang.ExprLit, LitType: "string", Str: t.Value}, nil
	case t.Kind == lang.TokenKeyword && t.Value == "NULL":
		p.advance()
		return &lang.Expr{Kind: lang.ExprLit, LitType: "null"}, nil
	case t.Kind == lang.TokenKeyword && (t.Value == "TRUE" || t.Value == "FALSE"):
		p.advance()
		return &lang.Expr{Kind: lang.ExprLit, LitType: "bool", Bool: t.Value == "TRUE"}, nil
	case t.Kind == lang.TokenIdent:
		p.advance()
		name := t.Value
		for p.isOperator(".") && p.toks[p.pos+1].Kind == lang.TokenIdent {
			p.advance()
			name += "." + p.advance().Value
		}
		if p.isPunct("(") {
			p.advance()
			var args []*lang.Expr
			if !p.isPunct(")") {
				for {
					a, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					args = append(args, a)
					if p.isPunct(",") {
						p.advance()
						continue
					}
					break
				}
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return &lang.Expr{Kind: lang.ExprCall, Func: name, Args: args}, nil
		}
		return &lang.Expr{Kind: lang.ExprColumn, Name: name}, nil
	default:
		return nil, p.errorf(lang.ParseErrorSyntax, "unexpected token in expression")
	}
}

// exprString renders a parsed predicate back to a canonical text form for
// PlanNode.Predicate/On, so two plans with equivalent predicates compare
// equal without the optimizer needing to re-descend the Expr tree.
func exprString(e *lang.Expr) string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case lang.ExprColumn:
		return e.Name
	case lang.ExprLit:
		switch e.LitType {
		case "string":
			return "'" + e.Str + "'"
		case "number":
			return strconv.FormatFloat(e.Num, 'g', -1, 64)
		case "bool":
			if e.Bool {
				return "true"
			}
			return "false"
		default:
			return "null"
		}
	case lang.ExprUnary:
		return e.Op + " " + exprString(e.Right)
	case lang.ExprBinary:
		return exprString(e.Left) + " " + e.Op + " " + exprString(e.Right)
	case lang.ExprCall:
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			parts[i] = exprString(a)
		}
		return e.Func + "(" + strings.Join(parts, ", ") + ")"
	default:
		return ""
	}
}
