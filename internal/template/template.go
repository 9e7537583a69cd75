package template

import (
	"regexp"
	"strings"

	"github.com/ploston/dael/internal/daelerrors"
)

var expressionPattern = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)

// Render evaluates every `{{ expr }}` occurrence in tmpl against root. A
// template consisting of exactly one `{{ expr }}` with no surrounding text
// returns the expression's raw Value unconverted (spec.md §4.1: a param
// whose entire value is one expression keeps that value's native type,
// e.g. a tool param bound to an integer input stays an integer). Any other
// mix of literal text and expressions is rendered as a string, with each
// expression's value stringified and substituted in place.
func Render(tmpl string, root map[string]interface{}) (interface{}, error) {
	if tmpl == "" {
		return "", nil
	}

	matches := expressionPattern.FindAllStringSubmatchIndex(tmpl, -1)
	if len(matches) == 0 {
		return tmpl, nil
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(tmpl) {
		expr := tmpl[matches[0][2]:matches[0][3]]
		v, err := evalExpr(expr, root)
		if err != nil {
			return nil, err
		}
		return v.Go(), nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(tmpl[last:m[0]])
		expr := tmpl[m[2]:m[3]]
		v, err := evalExpr(expr, root)
		if err != nil {
			return nil, err
		}
		b.WriteString(v.String())
		last = m[1]
	}
	b.WriteString(tmpl[last:])

	return b.String(), nil
}

func evalExpr(expr string, root map[string]interface{}) (Value, error) {
	p, err := parsePipeline(expr)
	if err != nil {
		return Value{}, daelerrors.New(daelerrors.TemplateError, "invalid expression %q: %v", expr, err)
	}
	v, err := p.eval(root)
	if err != nil {
		return Value{}, daelerrors.New(daelerrors.TemplateError, "evaluating %q: %v", expr, err)
	}
	return v, nil
}

// HasExpression reports whether s contains at least one `{{ }}`
// occurrence, for callers deciding whether a field needs rendering at all.
func HasExpression(s string) bool {
	return expressionPattern.MatchString(s)
}
