// SPDX-License-Identifier: Apache-2.0

package eval

import (
	"strings"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/types"
)

func evalLike(ctx *Context, e *pgq.A_Expr, fold bool) (types.Value, error) {
	negated := strings.HasPrefix(operatorName(e.GetName()), "!")

	l, err := Eval(ctx, e.GetLexpr())
	if err != nil {
		return types.Value{}, err
	}
	r, err := Eval(ctx, e.GetRexpr())
	if err != nil {
		return types.Value{}, err
	}
	if l.IsNull() || r.IsNull() {
		return types.Null(), nil
	}
	text, err := coerceToText(l)
	if err != nil {
		return types.Value{}, err
	}
	pattern, err := coerceToText(r)
	if err != nil {
		return types.Value{}, err
	}
	if fold {
		text = strings.ToLower(text)
		pattern = strings.ToLower(pattern)
	}

	matched := matchLike(text, pattern)
	if negated {
		matched = !matched
	}
	return types.Boolean(matched), nil
}

// matchLike implements SQL LIKE semantics: "%" matches any run of zero or
// more characters, "_" matches exactly one character, via a classic
// dynamic-programming match over rune slices (spec.md §4.5).
func matchLike(text, pattern string) bool {
	t := []rune(text)
	p := []rune(pattern)
	dp := make([][]bool, len(t)+1)
	for i := range dp {
		dp[i] = make([]bool, len(p)+1)
	}
	dp[0][0] = true
	for j := 1; j <= len(p); j++ {
		if p[j-1] == '%' {
			dp[0][j] = dp[0][j-1]
		}
	}
	for i := 1; i <= len(t); i++ {
		for j := 1; j <= len(p); j++ {
			switch p[j-1] {
			case '%':
				dp[i][j] = dp[i-1][j] || dp[i][j-1]
			case '_':
				dp[i][j] = dp[i-1][j-1]
			default:
				dp[i][j] = dp[i-1][j-1] && t[i-1] == p[j-1]
			}
		}
	}
	return dp[len(t)][len(p)]
}
