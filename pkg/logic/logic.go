// Package logic parses custom boolean expressions over condition-group
// identifiers into a small syntax tree. Parsing happens at
// configuration time; evaluation at run time only walks the tree.
//
// Grammar (precedence low to high):
//
//	expr   = or
//	or     = and { "|" and }
//	and    = not { "&" not }
//	not    = { "!" } atom
//	atom   = ident | "(" expr ")"
//
// The accepted character set is digits, letters, underscore, and
// "()&|! "; anything else is a configuration error.
package logic

import (
	"strings"

	"github.com/gridbase/gridbase/pkg/errs"
)

// Expr is a parsed boolean expression over group identifiers.
type Expr interface {
	// Eval resolves the expression against per-group truth values.
	// Referencing a group absent from the map is a configuration error.
	Eval(groups map[string]bool) (bool, error)
}

type identExpr struct{ name string }

func (e identExpr) Eval(groups map[string]bool) (bool, error) {
	value, ok := groups[e.name]
	if !ok {
		return false, errs.Configf("custom logic references unknown group %q", e.name)
	}

	return value, nil
}

type notExpr struct{ operand Expr }

func (e notExpr) Eval(groups map[string]bool) (bool, error) {
	value, err := e.operand.Eval(groups)
	if err != nil {
		return false, err
	}

	return !value, nil
}

type binaryExpr struct {
	op          byte // '&' or '|'
	left, right Expr
}

func (e binaryExpr) Eval(groups map[string]bool) (bool, error) {
	left, err := e.left.Eval(groups)
	if err != nil {
		return false, err
	}

	right, err := e.right.Eval(groups)
	if err != nil {
		return false, err
	}

	if e.op == '&' {
		return left && right, nil
	}

	return left || right, nil
}

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
	tokenEOF
)

type token struct {
	kind tokenKind
	text string
}

// Parse compiles a custom-logic expression. Empty expressions and any
// character outside the allowed set are configuration errors.
func Parse(input string) (Expr, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}

	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if p.peek().kind != tokenEOF {
		return nil, errs.Configf("custom logic: unexpected token %q", p.peek().text)
	}

	return expr, nil
}

// Idents lists the group identifiers an expression references,
// lowercased, in order of first appearance. Unparseable input yields
// nil; Parse reports the error.
func Idents(input string) []string {
	tokens, err := lex(input)
	if err != nil {
		return nil
	}

	var idents []string

	seen := make(map[string]struct{})

	for _, t := range tokens {
		if t.kind != tokenIdent {
			continue
		}

		name := strings.ToLower(t.text)
		if _, ok := seen[name]; ok {
			continue
		}

		seen[name] = struct{}{}
		idents = append(idents, name)
	}

	return idents
}

func lex(input string) ([]token, error) {
	var tokens []token

	i := 0
	for i < len(input) {
		c := input[i]

		switch {
		case c == ' ':
			i++
		case c == '&':
			tokens = append(tokens, token{tokenAnd, "&"})
			i++
		case c == '|':
			tokens = append(tokens, token{tokenOr, "|"})
			i++
		case c == '!':
			tokens = append(tokens, token{tokenNot, "!"})
			i++
		case c == '(':
			tokens = append(tokens, token{tokenLParen, "("})
			i++
		case c == ')':
			tokens = append(tokens, token{tokenRParen, ")"})
			i++
		case isIdentChar(c):
			start := i
			for i < len(input) && isIdentChar(input[i]) {
				i++
			}

			tokens = append(tokens, token{tokenIdent, input[start:i]})
		default:
			return nil, errs.Configf("custom logic: illegal character %q", string(c))
		}
	}

	if len(tokens) == 0 {
		return nil, errs.Configf("custom logic: empty expression")
	}

	return append(tokens, token{tokenEOF, ""}), nil
}

func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= '0' && c <= '9') ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z')
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	p.pos++

	return t
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokenOr {
		p.next()

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = binaryExpr{op: '|', left: left, right: right}
	}

	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokenAnd {
		p.next()

		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		left = binaryExpr{op: '&', left: left, right: right}
	}

	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.peek().kind == tokenNot {
		p.next()

		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		return notExpr{operand: operand}, nil
	}

	return p.parseAtom()
}

func (p *parser) parseAtom() (Expr, error) {
	switch t := p.next(); t.kind {
	case tokenIdent:
		return identExpr{name: strings.ToLower(t.text)}, nil
	case tokenLParen:
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if p.next().kind != tokenRParen {
			return nil, errs.Configf("custom logic: missing closing parenthesis")
		}

		return expr, nil
	default:
		return nil, errs.Configf("custom logic: unexpected token %q", t.text)
	}
}
