// Package units parses the unit strings used on component ports and computes
// conversion factors between them.
package units

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/ctessum/unit"
)

var (
	ErrUnitMismatch = errors.New("incompatible units")
	ErrUnknownUnit  = errors.New("unknown unit")
)

// HoursPerYear is the length of a simulated year. Conversions to and from
// "year" use it so annual totals of hourly series convert exactly.
const HoursPerYear = 8760

// quantity is a scale with physical dimensions plus a currency exponent, which
// ctessum/unit does not model.
type quantity struct {
	u        *unit.Unit
	currency int
}

func (q quantity) mul(o quantity) quantity {
	return quantity{u: unit.Mul(q.u, o.u), currency: q.currency + o.currency}
}

func (q quantity) div(o quantity) quantity {
	return quantity{u: unit.Div(q.u, o.u), currency: q.currency - o.currency}
}

func (q quantity) pow(n int) quantity {
	out := dimless(1)
	for i := 0; i < abs(n); i++ {
		if n > 0 {
			out = out.mul(q)
		} else {
			out = out.div(q)
		}
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func dimless(v float64) quantity {
	return quantity{u: unit.New(v, unit.Dimless)}
}

func scaled(v float64, q quantity) quantity {
	return dimless(v).mul(q)
}

var (
	watt     = quantity{u: unit.New(1, unit.Watt)}
	joule    = quantity{u: unit.New(1, unit.Joule)}
	kilogram = quantity{u: unit.New(1, unit.Kilogram)}
	meter    = quantity{u: unit.New(1, unit.Meter)}
	meter3   = quantity{u: unit.New(1, unit.Meter3)}
	// one second is one joule per watt
	second = joule.div(watt)
	usd    = quantity{u: unit.New(1, unit.Dimless), currency: 1}
)

var base = map[string]quantity{
	"W":        watt,
	"kW":       scaled(1e3, watt),
	"MW":       scaled(1e6, watt),
	"GW":       scaled(1e9, watt),
	"J":        joule,
	"kJ":       scaled(1e3, joule),
	"MJ":       scaled(1e6, joule),
	"GJ":       scaled(1e9, joule),
	"Btu":      scaled(1055.05585262, joule),
	"MMBtu":    scaled(1.05505585262e9, joule),
	"kg":       kilogram,
	"g":        scaled(1e-3, kilogram),
	"t":        scaled(1e3, kilogram),
	"tonne":    scaled(1e3, kilogram),
	"m":        meter,
	"km":       scaled(1e3, meter),
	"ft":       scaled(0.3048, meter),
	"L":        scaled(1e-3, meter3),
	"galUS":    scaled(3.785411784e-3, meter3),
	"MCF":      scaled(28.316846592, meter3),
	"s":        second,
	"min":      scaled(60, second),
	"h":        scaled(3600, second),
	"hr":       scaled(3600, second),
	"d":        scaled(86400, second),
	"day":      scaled(86400, second),
	"hour":     scaled(3600, second),
	"year":     scaled(HoursPerYear*3600, second),
	"yr":       scaled(HoursPerYear*3600, second),
	"USD":      usd,
	"unitless": dimless(1),
	"percent":  dimless(0.01),
	"deg":      dimless(1),
	"rad":      dimless(1),
}

// Units is a parsed unit expression.
type Units struct {
	expr string
	q    quantity
}

func (u Units) String() string {
	return u.expr
}

// Compatible reports whether values in u can be converted to o.
func (u Units) Compatible(o Units) bool {
	return u.q.currency == o.q.currency && u.q.u.Dimensions().Matches(o.q.u.Dimensions())
}

// Parse parses expressions such as "kW", "kg/h", "USD/(kW*h)" or "m**3/h".
// An empty string is treated as unitless.
func Parse(expr string) (Units, error) {
	s := strings.TrimSpace(expr)
	if s == "" || s == "None" {
		return Units{expr: "unitless", q: dimless(1)}, nil
	}
	p := parser{toks: tokenize(s)}
	q, err := p.expr()
	if err != nil {
		return Units{}, fmt.Errorf("failed to parse units %q: %w", expr, err)
	}
	if p.pos != len(p.toks) {
		return Units{}, fmt.Errorf("failed to parse units %q: unexpected %q", expr, p.toks[p.pos])
	}
	return Units{expr: s, q: q}, nil
}

// none reports whether expr declares no units at all.
func none(expr string) bool {
	s := strings.TrimSpace(expr)
	return s == "" || s == "None"
}

func isUnitless(expr string) bool {
	return strings.TrimSpace(expr) == "unitless"
}

type factorKey struct{ from, to string }

var factorCache sync.Map

// Factor returns the multiplier converting a value in from to a value in to.
// A side without units converts only to another side without units or to
// "unitless".
func Factor(from, to string) (float64, error) {
	key := factorKey{from, to}
	if f, ok := factorCache.Load(key); ok {
		return f.(float64), nil
	}
	if none(from) != none(to) && !isUnitless(from) && !isUnitless(to) {
		return 0, fmt.Errorf("%w: cannot convert %q to %q", ErrUnitMismatch, from, to)
	}
	uf, err := Parse(from)
	if err != nil {
		return 0, err
	}
	ut, err := Parse(to)
	if err != nil {
		return 0, err
	}
	if !uf.Compatible(ut) {
		return 0, fmt.Errorf("%w: cannot convert %s to %s", ErrUnitMismatch, uf, ut)
	}
	f := uf.q.u.Value() / ut.q.u.Value()
	factorCache.Store(key, f)
	return f, nil
}

// Convert converts v from one unit to another.
func Convert(v float64, from, to string) (float64, error) {
	f, err := Factor(from, to)
	if err != nil {
		return 0, err
	}
	return v * f, nil
}

func tokenize(s string) []string {
	var toks []string
	for i := 0; i < len(s); {
		c := rune(s[i])
		switch {
		case c == ' ':
			i++
		case strings.HasPrefix(s[i:], "**"):
			toks = append(toks, "**")
			i += 2
		case strings.ContainsRune("*/()", c):
			toks = append(toks, string(c))
			i++
		default:
			j := i
			for j < len(s) && !strings.ContainsRune("*/() ", rune(s[j])) {
				j++
			}
			toks = append(toks, s[i:j])
			i = j
		}
	}
	return toks
}

type parser struct {
	toks []string
	pos  int
}

func (p *parser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *parser) expr() (quantity, error) {
	q, err := p.factor()
	if err != nil {
		return quantity{}, err
	}
	for {
		op := p.peek()
		if op != "*" && op != "/" {
			return q, nil
		}
		p.pos++
		r, err := p.factor()
		if err != nil {
			return quantity{}, err
		}
		if op == "*" {
			q = q.mul(r)
		} else {
			q = q.div(r)
		}
	}
}

func (p *parser) factor() (quantity, error) {
	q, err := p.primary()
	if err != nil {
		return quantity{}, err
	}
	if p.peek() != "**" {
		return q, nil
	}
	p.pos++
	n, err := strconv.Atoi(p.peek())
	if err != nil {
		return quantity{}, fmt.Errorf("invalid exponent %q", p.peek())
	}
	p.pos++
	return q.pow(n), nil
}

func (p *parser) primary() (quantity, error) {
	tok := p.peek()
	switch {
	case tok == "":
		return quantity{}, errors.New("unexpected end of expression")
	case tok == "(":
		p.pos++
		q, err := p.expr()
		if err != nil {
			return quantity{}, err
		}
		if p.peek() != ")" {
			return quantity{}, errors.New("missing closing parenthesis")
		}
		p.pos++
		return q, nil
	case unicode.IsDigit(rune(tok[0])):
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return quantity{}, fmt.Errorf("invalid number %q", tok)
		}
		p.pos++
		return dimless(v), nil
	}
	q, ok := base[tok]
	if !ok {
		return quantity{}, fmt.Errorf("%w: %s", ErrUnknownUnit, tok)
	}
	p.pos++
	return q, nil
}
