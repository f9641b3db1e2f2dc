// Package expr compiles boolean trigger expressions used by story beats
// and other content-defined conditions.
//
// The grammar is deliberately small: comparisons between identifiers and
// literals, combined with AND/OR/NOT and parentheses.
//
//	turn >= 10 AND elara_affinity > 30
//	location == "observatory" OR night_visit
//	NOT (met_rival AND turn > 20)
//
// A bare identifier evaluates to its truthiness. Identifiers resolve
// against an Env at evaluation time; unknown identifiers resolve to nil,
// which is falsy and compares unequal to everything.
package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Env resolves identifier values at evaluation time.
type Env interface {
	Lookup(name string) (any, bool)
}

// MapEnv is an Env backed by a plain map.
type MapEnv map[string]any

func (m MapEnv) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Expr is a compiled boolean expression.
type Expr struct {
	root   node
	source string
}

// Source returns the text the expression was compiled from.
func (e *Expr) Source() string { return e.source }

// Compile parses source into an evaluatable expression. An empty source
// compiles to an expression that is always true.
func Compile(source string) (*Expr, error) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return &Expr{root: literalNode{value: true}, source: source}, nil
	}
	toks, err := lex(trimmed)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", trimmed, err)
	}
	p := &parser{tokens: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", trimmed, err)
	}
	if !p.eof() {
		return nil, fmt.Errorf("compile %q: unexpected token %q", trimmed, p.peek().text)
	}
	return &Expr{root: root, source: source}, nil
}

// Eval evaluates the expression against env. Comparison errors (ordered
// operators on non-numeric operands) surface as errors so the caller can
// log and treat the condition as false.
func (e *Expr) Eval(env Env) (bool, error) {
	v, err := e.root.eval(env)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

type node interface {
	eval(env Env) (any, error)
}

type literalNode struct{ value any }

func (n literalNode) eval(Env) (any, error) { return n.value, nil }

type identNode struct{ name string }

func (n identNode) eval(env Env) (any, error) {
	v, ok := env.Lookup(n.name)
	if !ok {
		return nil, nil
	}
	return v, nil
}

type notNode struct{ inner node }

func (n notNode) eval(env Env) (any, error) {
	v, err := n.inner.eval(env)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

type boolNode struct {
	op          string // "and" | "or"
	left, right node
}

func (n boolNode) eval(env Env) (any, error) {
	l, err := n.left.eval(env)
	if err != nil {
		return nil, err
	}
	if n.op == "and" && !truthy(l) {
		return false, nil
	}
	if n.op == "or" && truthy(l) {
		return true, nil
	}
	r, err := n.right.eval(env)
	if err != nil {
		return nil, err
	}
	return truthy(r), nil
}

type cmpNode struct {
	op          string // "==", "!=", ">", "<", ">=", "<="
	left, right node
}

func (n cmpNode) eval(env Env) (any, error) {
	l, err := n.left.eval(env)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(env)
	if err != nil {
		return nil, err
	}
	return compare(n.op, l, r)
}

func compare(op string, l, r any) (bool, error) {
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if lok && rok {
		switch op {
		case "==":
			return lf == rf, nil
		case "!=":
			return lf != rf, nil
		case ">":
			return lf > rf, nil
		case "<":
			return lf < rf, nil
		case ">=":
			return lf >= rf, nil
		case "<=":
			return lf <= rf, nil
		}
	}
	switch op {
	case "==":
		return stringify(l) == stringify(r), nil
	case "!=":
		return stringify(l) != stringify(r), nil
	}
	return false, fmt.Errorf("ordered comparison %q requires numeric operands, got %T and %T", op, l, r)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.ToLower(s)
	}
	return strings.ToLower(fmt.Sprint(v))
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	}
	return true
}

// ---- lexer ----

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp     // comparison operator
	tokLogic  // and / or / not
	tokLParen // (
	tokRParen // )
)

type token struct {
	kind tokenKind
	text string
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '"' || c == '\'':
			quote := c
			j := i + 1
			for j < len(src) && src[j] != quote {
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string at offset %d", i)
			}
			toks = append(toks, token{tokString, src[i+1 : j]})
			i = j + 1
		case strings.ContainsRune("><=!", rune(c)):
			j := i + 1
			if j < len(src) && src[j] == '=' {
				j++
			}
			op := src[i:j]
			if op == "=" {
				op = "==" // single = is accepted in content files
			}
			if op == "!" {
				return nil, fmt.Errorf("bare '!' at offset %d", i)
			}
			toks = append(toks, token{tokOp, op})
			i = j
		case c >= '0' && c <= '9' || c == '-' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9':
			j := i + 1
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, src[i:j]})
			i = j
		case isIdentChar(c):
			j := i
			for j < len(src) && isIdentChar(src[j]) {
				j++
			}
			word := src[i:j]
			switch strings.ToLower(word) {
			case "and", "or", "not":
				toks = append(toks, token{tokLogic, strings.ToLower(word)})
			case "true":
				toks = append(toks, token{tokNumber, "1"})
			case "false":
				toks = append(toks, token{tokNumber, "0"})
			default:
				toks = append(toks, token{tokIdent, word})
			}
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at offset %d", c, i)
		}
	}
	return toks, nil
}

func isIdentChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '.'
}

// ---- parser ----

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) eof() bool { return p.pos >= len(p.tokens) }
func (p *parser) peek() token { return p.tokens[p.pos] }
func (p *parser) advance() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for !p.eof() && p.peek().kind == tokLogic && p.peek().text == "or" {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = boolNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for !p.eof() && p.peek().kind == tokLogic && p.peek().text == "and" {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = boolNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if !p.eof() && p.peek().kind == tokLogic && p.peek().text == "not" {
		p.advance()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if !p.eof() && p.peek().kind == tokOp {
		op := p.advance().text
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return cmpNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parsePrimary() (node, error) {
	if p.eof() {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	t := p.advance()
	switch t.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.eof() || p.peek().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.advance()
		return inner, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", t.text)
		}
		return literalNode{value: f}, nil
	case tokString:
		return literalNode{value: t.text}, nil
	case tokIdent:
		return identNode{name: t.text}, nil
	}
	return nil, fmt.Errorf("unexpected token %q", t.text)
}
