package template

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

// token kinds produced by the lexer.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokPlus
	tokMinus
	tokLParen
	tokRParen
	tokComma
	tokDot
	tokAssign
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF}, nil
	}

	ch := l.input[l.pos]
	switch {
	case ch == '+':
		l.pos++
		return token{kind: tokPlus, text: "+"}, nil
	case ch == '-':
		l.pos++
		return token{kind: tokMinus, text: "-"}, nil
	case ch == '(':
		l.pos++
		return token{kind: tokLParen, text: "("}, nil
	case ch == ')':
		l.pos++
		return token{kind: tokRParen, text: ")"}, nil
	case ch == ',':
		l.pos++
		return token{kind: tokComma, text: ","}, nil
	case ch == '.':
		l.pos++
		return token{kind: tokDot, text: "."}, nil
	case ch == '=':
		l.pos++
		return token{kind: tokAssign, text: "="}, nil
	case ch == '"' || ch == '\'':
		return l.lexString(ch)
	case unicode.IsDigit(rune(ch)):
		return l.lexNumber()
	case unicode.IsLetter(rune(ch)) || ch == '_':
		return l.lexIdent()
	default:
		return token{}, fmt.Errorf("unexpected character %q", string(ch))
	}
}

func (l *lexer) lexString(quote byte) (token, error) {
	l.pos++
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) {
			l.pos++
			b.WriteByte(l.input[l.pos])
			l.pos++
			continue
		}
		if ch == quote {
			l.pos++
			return token{kind: tokString, text: b.String()}, nil
		}
		b.WriteByte(ch)
		l.pos++
	}
	return token{}, fmt.Errorf("unterminated string literal")
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	for l.pos < len(l.input) && (unicode.IsDigit(rune(l.input[l.pos])) || l.input[l.pos] == '.') {
		l.pos++
	}
	return token{kind: tokNumber, text: l.input[start:l.pos]}, nil
}

func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.input) {
		ch := rune(l.input[l.pos])
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && ch != '_' {
			break
		}
		l.pos++
	}
	return token{kind: tokIdent, text: l.input[start:l.pos]}, nil
}

// evaluator parses and evaluates one expression in a single pass. Evaluation
// is pure: it only reads the context, the state reader, and the environment.
type evaluator struct {
	lex     lexer
	current token
	ctx     *Context
}

// Evaluate computes the value of one expression (the text between the
// delimiters) against ctx.
func Evaluate(expr string, ctx *Context) (any, error) {
	ev := &evaluator{lex: lexer{input: expr}, ctx: ctx}
	if err := ev.advance(); err != nil {
		return nil, dfterrors.NewTemplateError(expr, "", err)
	}

	value, err := ev.parseExpr()
	if err != nil {
		return nil, dfterrors.NewTemplateError(expr, "", err)
	}
	if ev.current.kind != tokEOF {
		return nil, dfterrors.NewTemplateError(expr, fmt.Sprintf("unexpected trailing %q", ev.current.text), nil)
	}
	return value, nil
}

func (ev *evaluator) advance() error {
	tok, err := ev.lex.next()
	if err != nil {
		return err
	}
	ev.current = tok
	return nil
}

func (ev *evaluator) expect(kind tokenKind, what string) error {
	if ev.current.kind != kind {
		return fmt.Errorf("expected %s, found %q", what, ev.current.text)
	}
	return ev.advance()
}

// parseExpr handles binary + and - between terms.
func (ev *evaluator) parseExpr() (any, error) {
	left, err := ev.parseTerm()
	if err != nil {
		return nil, err
	}

	for ev.current.kind == tokPlus || ev.current.kind == tokMinus {
		op := ev.current.kind
		if err := ev.advance(); err != nil {
			return nil, err
		}
		right, err := ev.parseTerm()
		if err != nil {
			return nil, err
		}
		left, err = applyBinary(op, left, right)
		if err != nil {
			return nil, err
		}
	}

	return left, nil
}

// parseTerm handles a primary followed by field/method access chains.
func (ev *evaluator) parseTerm() (any, error) {
	value, err := ev.parsePrimary()
	if err != nil {
		return nil, err
	}

	for ev.current.kind == tokDot {
		if err := ev.advance(); err != nil {
			return nil, err
		}
		if ev.current.kind != tokIdent {
			return nil, fmt.Errorf("expected field name after '.'")
		}
		field := ev.current.text
		if err := ev.advance(); err != nil {
			return nil, err
		}

		var args []argument
		if ev.current.kind == tokLParen {
			args, err = ev.parseArgs()
			if err != nil {
				return nil, err
			}
		}

		value, err = ev.callField(value, field, args)
		if err != nil {
			return nil, err
		}
	}

	return value, nil
}

func (ev *evaluator) parsePrimary() (any, error) {
	switch ev.current.kind {
	case tokString:
		text := ev.current.text
		return text, ev.advance()

	case tokNumber:
		text := ev.current.text
		if err := ev.advance(); err != nil {
			return nil, err
		}
		if strings.Contains(text, ".") {
			return strconv.ParseFloat(text, 64)
		}
		return strconv.Atoi(text)

	case tokMinus:
		if err := ev.advance(); err != nil {
			return nil, err
		}
		value, err := ev.parsePrimary()
		if err != nil {
			return nil, err
		}
		return negate(value)

	case tokLParen:
		if err := ev.advance(); err != nil {
			return nil, err
		}
		value, err := ev.parseExpr()
		if err != nil {
			return nil, err
		}
		return value, ev.expect(tokRParen, ")")

	case tokIdent:
		name := ev.current.text
		if err := ev.advance(); err != nil {
			return nil, err
		}
		if ev.current.kind == tokLParen {
			args, err := ev.parseArgs()
			if err != nil {
				return nil, err
			}
			return ev.callFunction(name, args)
		}
		return ev.resolveIdent(name)

	default:
		return nil, fmt.Errorf("unexpected %q", ev.current.text)
	}
}

// argument is one call argument, positional or keyword.
type argument struct {
	name  string
	value any
}

func (ev *evaluator) parseArgs() ([]argument, error) {
	if err := ev.expect(tokLParen, "("); err != nil {
		return nil, err
	}

	var args []argument
	for ev.current.kind != tokRParen {
		arg := argument{}

		// Keyword form: ident '=' expr. The lexer position after the ident
		// is saved; if no '=' follows, it is restored and the ident is
		// reparsed as a positional expression.
		if ev.current.kind == tokIdent {
			save := ev.lex.pos
			name := ev.current.text
			if err := ev.advance(); err != nil {
				return nil, err
			}
			if ev.current.kind == tokAssign {
				if err := ev.advance(); err != nil {
					return nil, err
				}
				value, err := ev.parseExpr()
				if err != nil {
					return nil, err
				}
				arg.name = name
				arg.value = value
				args = append(args, arg)
				if ev.current.kind == tokComma {
					if err := ev.advance(); err != nil {
						return nil, err
					}
				}
				continue
			}
			// Positional identifier expression: rewind and reparse.
			ev.lex.pos = save
			ev.current = token{kind: tokIdent, text: name}
		}

		value, err := ev.parseExpr()
		if err != nil {
			return nil, err
		}
		arg.value = value
		args = append(args, arg)

		if ev.current.kind == tokComma {
			if err := ev.advance(); err != nil {
				return nil, err
			}
		}
	}

	return args, ev.expect(tokRParen, ")")
}

// stateHandle lets `state.get("key", default?)` evaluate as a field call.
type stateHandle struct {
	reader StateReader
}

func (ev *evaluator) resolveIdent(name string) (any, error) {
	if name == "state" {
		return stateHandle{reader: ev.ctx.state}, nil
	}

	if v, ok := ev.ctx.Lookup(name); ok {
		return v, nil
	}
	return nil, fmt.Errorf("unknown variable %q (searched layers: %s)", name, strings.Join(ev.ctx.LayerNames(), ", "))
}

func (ev *evaluator) callFunction(name string, args []argument) (any, error) {
	switch name {
	case "var":
		if len(args) != 1 {
			return nil, fmt.Errorf("var() takes exactly one argument")
		}
		key, ok := args[0].value.(string)
		if !ok {
			return nil, fmt.Errorf("var() argument must be a string")
		}
		if v, ok := ev.ctx.Lookup(key); ok {
			return v, nil
		}
		return nil, fmt.Errorf("unknown variable %q (searched layers: %s)", key, strings.Join(ev.ctx.LayerNames(), ", "))

	case "env_var":
		if len(args) == 0 || len(args) > 2 {
			return nil, fmt.Errorf("env_var() takes one or two arguments")
		}
		key, ok := args[0].value.(string)
		if !ok {
			return nil, fmt.Errorf("env_var() name must be a string")
		}
		if v, ok := ev.ctx.lookupEnv(key); ok {
			return v, nil
		}
		if len(args) == 2 {
			return args[1].value, nil
		}
		return nil, fmt.Errorf("environment variable %q is not set and no default was given", key)

	case "now":
		if len(args) != 0 {
			return nil, fmt.Errorf("now() takes no arguments")
		}
		return NewTimestamp(ev.ctx.clock()()), nil

	case "today":
		if len(args) != 0 {
			return nil, fmt.Errorf("today() takes no arguments")
		}
		return NewTimestamp(truncateToDay(ev.ctx.clock()())), nil

	case "yesterday":
		if len(args) != 0 {
			return nil, fmt.Errorf("yesterday() takes no arguments")
		}
		return NewTimestamp(truncateToDay(ev.ctx.clock()()).AddDate(0, 0, -1)), nil

	case "days_ago":
		if len(args) != 1 {
			return nil, fmt.Errorf("days_ago() takes exactly one argument")
		}
		n, err := toInt(args[0].value)
		if err != nil {
			return nil, fmt.Errorf("days_ago(): %w", err)
		}
		return NewTimestamp(truncateToDay(ev.ctx.clock()()).AddDate(0, 0, -n)), nil

	case "timedelta":
		return makeTimedelta(args)

	default:
		return nil, fmt.Errorf("unknown function %q", name)
	}
}

func (ev *evaluator) callField(receiver any, field string, args []argument) (any, error) {
	switch r := receiver.(type) {
	case stateHandle:
		if field != "get" {
			return nil, fmt.Errorf("state has no field %q", field)
		}
		if len(args) == 0 || len(args) > 2 {
			return nil, fmt.Errorf("state.get() takes one or two arguments")
		}
		key, ok := args[0].value.(string)
		if !ok {
			return nil, fmt.Errorf("state.get() key must be a string")
		}
		if r.reader != nil {
			if v, ok := r.reader.Get(key); ok {
				return v, nil
			}
		}
		if len(args) == 2 {
			return args[1].value, nil
		}
		return nil, fmt.Errorf("state key %q is not set and no default was given", key)

	case Timestamp:
		switch field {
		case "strftime":
			if len(args) != 1 {
				return nil, fmt.Errorf("strftime() takes exactly one argument")
			}
			layout, ok := args[0].value.(string)
			if !ok {
				return nil, fmt.Errorf("strftime() layout must be a string")
			}
			return r.Strftime(layout), nil
		case "isoformat":
			if len(args) != 0 {
				return nil, fmt.Errorf("isoformat() takes no arguments")
			}
			return r.ISOFormat(), nil
		default:
			return nil, fmt.Errorf("timestamp has no field %q", field)
		}

	default:
		return nil, fmt.Errorf("value of type %T has no fields", receiver)
	}
}

func makeTimedelta(args []argument) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("timedelta() requires at least one keyword argument")
	}

	var total time.Duration
	for _, arg := range args {
		if arg.name == "" {
			return nil, fmt.Errorf("timedelta() arguments must be keywords (days=, hours=, minutes=)")
		}
		n, err := toInt(arg.value)
		if err != nil {
			return nil, fmt.Errorf("timedelta(%s=): %w", arg.name, err)
		}
		switch arg.name {
		case "days":
			total += time.Duration(n) * 24 * time.Hour
		case "hours":
			total += time.Duration(n) * time.Hour
		case "minutes":
			total += time.Duration(n) * time.Minute
		default:
			return nil, fmt.Errorf("timedelta() does not support %q", arg.name)
		}
	}

	return total, nil
}

func applyBinary(op tokenKind, left, right any) (any, error) {
	if ts, ok := left.(Timestamp); ok {
		d, ok := right.(time.Duration)
		if !ok {
			return nil, fmt.Errorf("timestamp arithmetic requires a timedelta operand")
		}
		if op == tokMinus {
			return ts.Add(-d), nil
		}
		return ts.Add(d), nil
	}

	if ls, lok := left.(string); lok {
		rs, rok := right.(string)
		if rok && op == tokPlus {
			return ls + rs, nil
		}
		return nil, fmt.Errorf("strings only support +")
	}

	lf, lerr := toFloat(left)
	rf, rerr := toFloat(right)
	if lerr != nil || rerr != nil {
		return nil, fmt.Errorf("cannot combine %T and %T", left, right)
	}
	if op == tokMinus {
		return lf - rf, nil
	}
	return lf + rf, nil
}

func negate(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return -v, nil
	case float64:
		return -v, nil
	case time.Duration:
		return -v, nil
	default:
		return nil, fmt.Errorf("cannot negate %T", value)
	}
}

func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected a number, found %T", value)
	}
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("expected a number, found %T", value)
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
