package lang

import "fmt"

// ParseErrorKind distinguishes a malformed token stream from a well-formed
// but semantically invalid query.
type ParseErrorKind string

const (
	// ParseErrorSyntax marks a token stream the grammar cannot accept.
	ParseErrorSyntax ParseErrorKind = "syntax"
	// ParseErrorValidation marks a syntactically valid query that fails a
	// semantic check (unknown operator, wrong arity, disallowed clause).
	ParseErrorValidation ParseErrorKind = "validation"
)

// ParseError reports exactly one problem. Dialect parsers stop at the first
// error rather than attempting recovery — a half-parsed plan is unsafe to
// execute, so there is nothing useful to report beyond the first failure.
type ParseError struct {
	Kind    ParseErrorKind
	Line    int
	Column  int
	Message string
	Token   string
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%s error at %d:%d: %s (near %q)", e.Kind, e.Line, e.Column, e.Message, e.Token)
	}
	return fmt.Sprintf("%s error at %d:%d: %s", e.Kind, e.Line, e.Column, e.Message)
}
