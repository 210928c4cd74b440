package federation

import (
	"fmt"
	"strconv"

	"github.com/datapunk/lake/pkg/query/lang"
)

// evaluatorKeywords is the minimal keyword set the residual-filter
// evaluator understands — far smaller than the SQL dialect's, since by the
// time a Filter survives to the coordinator (rather than being pushed to a
// single source) it's always a simple AND/OR/NOT chain of comparisons.
var evaluatorKeywords = map[string]bool{"AND": true, "OR": true, "NOT": true, "TRUE": true, "FALSE": true, "NULL": true}

// evalPredicate evaluates a canonical predicate string (as rendered by the
// SQL dialect's exprString, or the NoSQL dialect's filter-to-predicate
// text) against row. A predicate the evaluator can't parse is treated as
// non-matching rather than erroring the whole query — residual cross-source
// filters are a best-effort narrowing, not a correctness guarantee, since
// the source executors already applied whatever was pushed down to them.
func evalPredicate(predicate string, row Row) bool {
	if predicate == "" {
		return true
	}
	toks, err := lang.Tokenize(predicate, evaluatorKeywords)
	if err != nil {
		return false
	}
	p := &predEval{toks: toks, row: row}
	result, ok := p.parseOr()
	if !ok || p.pos < len(p.toks)-1 {
		return false
	}
	return result
}

type predEval struct {
	toks []lang.Token
	pos  int
	row  Row
}

func (p *predEval) cur() lang.Token {
	if p.pos >= len(p.toks) {
		return lang.Token{Kind: lang.TokenEOF}
	}
	return p.toks[p.pos]
}

func (p *predEval) advance() lang.Token {
	t := p.cur()
	p.pos++
	return t
}

func (p *predEval) parseOr() (bool, bool) {
	left, ok := p.parseAnd()
	if !ok {
		return false, false
	}
	for p.cur().Kind == lang.TokenKeyword && p.cur().Value == "OR" {
		p.advance()
		right, ok := p.parseAnd()
		if !ok {
			return false, false
		}
		left = left || right
	}
	return left, true
}

func (p *predEval) parseAnd() (bool, bool) {
	left, ok := p.parseUnary()
	if !ok {
		return false, false
	}
	for p.cur().Kind == lang.TokenKeyword && p.cur().Value == "AND" {
		p.advance()
		right, ok := p.parseUnary()
		if !ok {
			return false, false
		}
		left = left && right
	}
	return left, true
}

func (p *predEval) parseUnary() (bool, bool) {
	if p.cur().Kind == lang.TokenKeyword && p.cur().Value == "NOT" {
		p.advance()
		v, ok := p.parseUnary()
		return !v, ok
	}
	if p.cur().Kind == lang.TokenPunctuation && p.cur().Value == "(" {
		p.advance()
		v, ok := p.parseOr()
		if !ok {
			return false, false
		}
		if p.cur().Value != ")" {
			return false, false
		}
		p.advance()
		return v, true
	}
	return p.parseComparison()
}

func (p *predEval) parseComparison() (bool, bool) {
	left, ok := p.parseValue()
	if !ok {
		return false, false
	}
	op := p.cur()
	if op.Kind != lang.TokenOperator {
		return false, false
	}
	p.advance()
	right, ok := p.parseValue()
	if !ok {
		return false, false
	}
	return compare(left, op.Value, right), true
}

func (p *predEval) parseValue() (any, bool) {
	t := p.advance()
	switch t.Kind {
	case lang.TokenIdent:
		v, exists := p.row[t.Value]
		if !exists {
			return nil, false
		}
		return v, true
	case lang.TokenString:
		return t.Value, true
	case lang.TokenNumber:
		f, err := strconv.ParseFloat(t.Value, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case lang.TokenKeyword:
		switch t.Value {
		case "TRUE":
			return true, true
		case "FALSE":
			return false, true
		case "NULL":
			return nil, true
		}
	}
	return nil, false
}

func compare(left any, op string, right any) bool {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if lok && rok {
		switch op {
		case "=":
			return lf == rf
		case "!=", "<>":
			return lf != rf
		case "<":
			return lf < rf
		case "<=":
			return lf <= rf
		case ">":
			return lf > rf
		case ">=":
			return lf >= rf
		}
		return false
	}

	ls, rs := fmt.Sprint(left), fmt.Sprint(right)
	switch op {
	case "=":
		return ls == rs
	case "!=", "<>":
		return ls != rs
	case "<":
		return ls < rs
	case "<=":
		return ls <= rs
	case ">":
		return ls > rs
	case ">=":
		return ls >= rs
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
