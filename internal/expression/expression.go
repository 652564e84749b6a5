// Package expression validates CMB boolean expressions over body names.
//
// Operands are body names, operators are + (union), - (subtraction) and &
// (intersection), and parentheses group sub-expressions.
package expression

import (
	"fmt"
	"sort"
	"strings"

	"shieldcore/pkg/domain"
)

// MaxDepth bounds the nesting of CMB bodies referencing other CMB bodies.
const MaxDepth = 10

// TokenKind classifies a token.
type TokenKind int

const (
	// Operand is a body name.
	Operand TokenKind = iota
	// Operator is one of + - &.
	Operator
	// Open is "(".
	Open
	// Close is ")".
	Close
)

// Token is one lexical element of an expression.
type Token struct {
	Kind  TokenKind
	Value string
	Pos   int
}

var forbidden = map[rune]string{
	'*': "multiplication",
	'/': "division",
	'^': "exponent",
	'|': "pipe",
}

// Bodies resolves body names against the document being validated.
type Bodies interface {
	// Lookup returns the body and whether it exists.
	Lookup(name string) (domain.Solid, bool)
}

// BodyMap is a Bodies backed by a map keyed by name.
type BodyMap map[string]domain.Solid

// Lookup implements Bodies.
func (m BodyMap) Lookup(name string) (domain.Solid, bool) {
	s, ok := m[name]
	return s, ok
}

// IndexBodies builds a BodyMap from a body list.
func IndexBodies(bodies []domain.Solid) BodyMap {
	out := make(BodyMap, len(bodies))
	for _, b := range bodies {
		out[b.Name] = b
	}
	return out
}

// CheckSyntax runs the structural checks in order: empty input, character
// set, parenthesis balance, tokenization and infix alternation. It returns
// the tokens on success.
func CheckSyntax(expr string) ([]Token, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, domain.Validationf(domain.CodeExpressionEmpty, "expression", expr, "expression must not be empty")
	}
	if err := checkCharacters(expr); err != nil {
		return nil, err
	}
	if err := checkParentheses(expr); err != nil {
		return nil, err
	}
	tokens := Tokenize(expr)
	if err := checkAlternation(expr, tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// Validate checks the full grammar of the expression of body self, then
// that every operand names an existing body, then walks nested CMB bodies
// for cycles and excessive depth.
func Validate(self, expr string, bodies Bodies) error {
	tokens, err := CheckSyntax(expr)
	if err != nil {
		return err
	}
	operands := operandsOf(tokens)
	var missing []string
	for _, name := range operands {
		if name == self {
			continue
		}
		if _, ok := bodies.Lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return domain.Validationf(domain.CodeMissingSolid, "expression", missing, "expression references unknown bodies: %s", strings.Join(missing, ", "))
	}
	return walk([]string{self}, operands, bodies)
}

// walk descends into nested CMB bodies. stack holds the active chain of
// bodies from the root; it is never shared between sibling branches.
func walk(stack []string, operands []string, bodies Bodies) error {
	for _, name := range operands {
		for _, active := range stack {
			if active == name {
				chain := append(append([]string(nil), stack...), name)
				return domain.Validationf(domain.CodeExpressionCycle, "expression", chain, "circular reference: %s", strings.Join(chain, " -> "))
			}
		}
		body, ok := bodies.Lookup(name)
		if !ok || body.Kind != domain.SolidCMB {
			continue
		}
		if len(stack) >= MaxDepth {
			return domain.Validationf(domain.CodeExpressionDepth, "expression", name, "expression nesting exceeds %d levels", MaxDepth)
		}
		tokens, err := CheckSyntax(body.Expression)
		if err != nil {
			return fmt.Errorf("nested body %s: %w", name, err)
		}
		next := make([]string, len(stack), len(stack)+1)
		copy(next, stack)
		if err := walk(append(next, name), operandsOf(tokens), bodies); err != nil {
			return err
		}
	}
	return nil
}

// Tokenize splits an expression into tokens. Characters outside the grammar
// are not reported here; CheckSyntax rejects them first.
func Tokenize(expr string) []Token {
	var tokens []Token
	start := -1
	flush := func(end int) {
		if start >= 0 {
			tokens = append(tokens, Token{Kind: Operand, Value: expr[start:end], Pos: start})
			start = -1
		}
	}
	for i, r := range expr {
		switch {
		case isNameRune(r):
			if start < 0 {
				start = i
			}
		case r == '+' || r == '-' || r == '&':
			flush(i)
			tokens = append(tokens, Token{Kind: Operator, Value: string(r), Pos: i})
		case r == '(':
			flush(i)
			tokens = append(tokens, Token{Kind: Open, Value: "(", Pos: i})
		case r == ')':
			flush(i)
			tokens = append(tokens, Token{Kind: Close, Value: ")", Pos: i})
		default:
			flush(i)
		}
	}
	flush(len(expr))
	return tokens
}

// Operands returns the distinct body names of expr in first-seen order.
func Operands(expr string) []string {
	return operandsOf(Tokenize(expr))
}

// References reports whether expr names body.
func References(expr, body string) bool {
	for _, name := range Operands(expr) {
		if name == body {
			return true
		}
	}
	return false
}

func operandsOf(tokens []Token) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range tokens {
		if t.Kind != Operand {
			continue
		}
		if _, ok := seen[t.Value]; ok {
			continue
		}
		seen[t.Value] = struct{}{}
		out = append(out, t.Value)
	}
	return out
}

func isNameRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func checkCharacters(expr string) error {
	var bad []string
	for i, r := range expr {
		if name, ok := forbidden[r]; ok {
			return domain.Validationf(domain.CodeExpressionCharacter, "expression", string(r),
				"operator %q (%s) at position %d is not supported; use +, - or &", r, name, i)
		}
		if isNameRune(r) || strings.ContainsRune("+-&() \t\r\n", r) {
			continue
		}
		bad = append(bad, string(r))
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return domain.Validationf(domain.CodeExpressionCharacter, "expression", bad, "expression contains invalid characters: %s", strings.Join(bad, " "))
	}
	return nil
}

func checkParentheses(expr string) error {
	depth := 0
	for i, r := range expr {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return domain.Validationf(domain.CodeExpressionParentheses, "expression", i, "unmatched closing parenthesis at position %d", i)
			}
		}
	}
	if depth != 0 {
		return domain.Validationf(domain.CodeExpressionParentheses, "expression", depth, "%d unclosed parenthesis", depth)
	}
	return nil
}

func checkAlternation(expr string, tokens []Token) error {
	syntax := func(format string, args ...any) error {
		return domain.Validationf(domain.CodeExpressionSyntax, "expression", expr, format, args...)
	}
	if len(tokens) == 0 {
		return syntax("expression has no operands")
	}
	first, last := tokens[0], tokens[len(tokens)-1]
	if first.Kind == Operator {
		return syntax("expression cannot start with operator %q; prefix notation is not supported", first.Value)
	}
	if last.Kind == Operator {
		return syntax("expression cannot end with operator %q; postfix notation is not supported", last.Value)
	}
	for i := 1; i < len(tokens); i++ {
		prev, cur := tokens[i-1], tokens[i]
		switch cur.Kind {
		case Operator:
			switch prev.Kind {
			case Operator:
				return syntax("consecutive operators %q and %q at position %d", prev.Value, cur.Value, cur.Pos)
			case Open:
				return syntax("operator %q cannot follow '(' at position %d", cur.Value, cur.Pos)
			}
		case Operand:
			switch prev.Kind {
			case Operand:
				return syntax("missing operator between %q and %q", prev.Value, cur.Value)
			case Close:
				return syntax("missing operator before %q at position %d", cur.Value, cur.Pos)
			}
		case Open:
			if prev.Kind == Operand || prev.Kind == Close {
				return syntax("missing operator before '(' at position %d", cur.Pos)
			}
		case Close:
			switch prev.Kind {
			case Operator:
				return syntax("operator %q cannot precede ')' at position %d", prev.Value, cur.Pos)
			case Open:
				return syntax("empty parentheses at position %d", prev.Pos)
			}
		}
	}
	return nil
}
