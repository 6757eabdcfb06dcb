package units

import (
	"fmt"
	"strconv"
	"unicode"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokMul
	tokDiv
	tokPow
	tokSup // superscript exponent, value in token.n
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
	n    int
}

// parser is a recursive-descent parser for unit expressions:
//
//	expr   := term (('*' | '/' | '·' | <adjacent>) term)*
//	term   := factor (('^' | '**') exponent | superscript)?
//	factor := ident | '1' | '(' expr ')'
type parser struct {
	reg    *Registry
	input  string
	tokens []token
	pos    int
}

func (p *parser) errorf(format string, args ...any) error {
	pos := len(p.input)
	if p.pos < len(p.tokens) {
		pos = p.tokens[p.pos].pos
	}
	return &SyntaxError{Input: p.input, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

var superscriptValue = map[rune]int{'¹': 1, '²': 2, '³': 3, '⁴': 4, '⁵': 5, '⁶': 6, '⁷': 7, '⁸': 8, '⁹': 9}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '%' || r == '°' || r == 'Ω' || r == 'µ'
}

func (p *parser) tokenize() error {
	runes := []rune(p.input)
	offset := func(i int) int { return len(string(runes[:i])) }
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				p.tokens = append(p.tokens, token{kind: tokPow, text: "**", pos: offset(i)})
				i += 2
				continue
			}
			p.tokens = append(p.tokens, token{kind: tokMul, text: "*", pos: offset(i)})
			i++
		case r == '·' || r == '⋅':
			p.tokens = append(p.tokens, token{kind: tokMul, text: string(r), pos: offset(i)})
			i++
		case r == '/':
			p.tokens = append(p.tokens, token{kind: tokDiv, text: "/", pos: offset(i)})
			i++
		case r == '^':
			p.tokens = append(p.tokens, token{kind: tokPow, text: "^", pos: offset(i)})
			i++
		case r == '(':
			p.tokens = append(p.tokens, token{kind: tokLParen, text: "(", pos: offset(i)})
			i++
		case r == ')':
			p.tokens = append(p.tokens, token{kind: tokRParen, text: ")", pos: offset(i)})
			i++
		case r == '⁻' || superscriptValue[r] != 0:
			start := i
			sign := 1
			if r == '⁻' {
				sign = -1
				i++
			}
			n := 0
			for i < len(runes) && superscriptValue[runes[i]] != 0 {
				n = n*10 + superscriptValue[runes[i]]
				i++
			}
			if n == 0 {
				return &SyntaxError{Input: p.input, Pos: offset(start), Msg: "dangling superscript sign"}
			}
			p.tokens = append(p.tokens, token{kind: tokSup, text: string(runes[start:i]), pos: offset(start), n: sign * n})
		case unicode.IsDigit(r) || r == '-' || r == '+':
			start := i
			i++
			for i < len(runes) && unicode.IsDigit(runes[i]) {
				i++
			}
			if i < len(runes) && (runes[i] == '.' || runes[i] == 'e' || runes[i] == 'E') {
				return &SyntaxError{Input: p.input, Pos: offset(i), Msg: "only integer numbers are allowed in units"}
			}
			p.tokens = append(p.tokens, token{kind: tokNumber, text: string(runes[start:i]), pos: offset(start)})
		case isIdentRune(r):
			start := i
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}
			p.tokens = append(p.tokens, token{kind: tokIdent, text: string(runes[start:i]), pos: offset(start)})
		default:
			return &SyntaxError{Input: p.input, Pos: offset(i), Msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	return nil
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) parseExpr() (Unit, error) {
	u, err := p.parseTerm()
	if err != nil {
		return Unit{}, err
	}
	for {
		t, ok := p.peek()
		if !ok {
			return u, nil
		}
		switch t.kind {
		case tokMul:
			p.pos++
			v, err := p.parseTerm()
			if err != nil {
				return Unit{}, err
			}
			u = u.Mul(v)
		case tokDiv:
			p.pos++
			v, err := p.parseTerm()
			if err != nil {
				return Unit{}, err
			}
			u = u.Div(v)
		case tokIdent, tokLParen:
			// juxtaposition, as in "N m"
			v, err := p.parseTerm()
			if err != nil {
				return Unit{}, err
			}
			u = u.Mul(v)
		default:
			return u, nil
		}
	}
}

func (p *parser) parseTerm() (Unit, error) {
	u, err := p.parseFactor()
	if err != nil {
		return Unit{}, err
	}
	t, ok := p.peek()
	if !ok {
		return u, nil
	}
	switch t.kind {
	case tokSup:
		p.pos++
		return u.Pow(t.n), nil
	case tokPow:
		p.pos++
		n, err := p.parseExponent()
		if err != nil {
			return Unit{}, err
		}
		return u.Pow(n), nil
	}
	return u, nil
}

func (p *parser) parseExponent() (int, error) {
	t, ok := p.peek()
	if !ok {
		return 0, p.errorf("missing exponent")
	}
	if t.kind == tokLParen {
		p.pos++
		n, err := p.parseExponent()
		if err != nil {
			return 0, err
		}
		if c, ok := p.peek(); !ok || c.kind != tokRParen {
			return 0, p.errorf("missing closing parenthesis in exponent")
		}
		p.pos++
		return n, nil
	}
	if t.kind != tokNumber {
		return 0, p.errorf("exponent must be an integer, got %q", t.text)
	}
	p.pos++
	n, err := strconv.Atoi(t.text)
	if err != nil {
		return 0, &SyntaxError{Input: p.input, Pos: t.pos, Msg: "invalid exponent " + t.text}
	}
	return n, nil
}

func (p *parser) parseFactor() (Unit, error) {
	t, ok := p.peek()
	if !ok {
		return Unit{}, p.errorf("unexpected end of expression")
	}
	switch t.kind {
	case tokIdent:
		p.pos++
		tm, found := p.reg.lookup(t.text)
		if !found {
			return Unit{}, &UndefinedUnitError{Name: t.text}
		}
		return Unit{terms: []term{tm}}, nil
	case tokNumber:
		if t.text != "1" {
			return Unit{}, p.errorf("numeric factor %q is not allowed in units", t.text)
		}
		p.pos++
		return Dimensionless, nil
	case tokLParen:
		p.pos++
		u, err := p.parseExpr()
		if err != nil {
			return Unit{}, err
		}
		if c, ok := p.peek(); !ok || c.kind != tokRParen {
			return Unit{}, p.errorf("missing closing parenthesis")
		}
		p.pos++
		return u, nil
	}
	return Unit{}, p.errorf("unexpected %q", t.text)
}
