package template

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	dfterrors "github.com/alexisbeaulieu97/dft/pkg/errors"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Render evaluates every {{ … }} expression embedded in s against ctx and
// splices the results back into the surrounding literal text. A string
// without delimiters is returned verbatim. Rendering is pure and idempotent.
func Render(s string, ctx *Context) (string, error) {
	if !strings.Contains(s, openDelim) {
		return s, nil
	}

	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			b.WriteString(rest)
			break
		}

		b.WriteString(rest[:start])
		rest = rest[start+len(openDelim):]

		end := strings.Index(rest, closeDelim)
		if end < 0 {
			return "", dfterrors.NewTemplateError(s, "unclosed expression delimiter", nil)
		}

		expr := strings.TrimSpace(rest[:end])
		rest = rest[end+len(closeDelim):]

		value, err := Evaluate(expr, ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(Stringify(value))
	}

	return b.String(), nil
}

// RenderMap renders every string leaf of m, descending into nested maps and
// slices. Non-string leaves pass through untouched. The input is not
// mutated.
func RenderMap(m map[string]any, ctx *Context) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		rendered, err := renderValue(v, ctx)
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}

func renderValue(v any, ctx *Context) (any, error) {
	switch value := v.(type) {
	case string:
		return Render(value, ctx)
	case map[string]any:
		return RenderMap(value, ctx)
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			rendered, err := renderValue(item, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil
	}
}

// Stringify converts an expression result to its textual form.
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case Timestamp:
		return v.ISOFormat()
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Duration:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
