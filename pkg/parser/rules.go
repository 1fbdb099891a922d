// SPDX-License-Identifier: Apache-2.0

package parser

import "strings"

// skipRules are pre-parse text matches that short-circuit to a Skipped
// result before pgq.Parse ever runs (spec.md §4.7 step 1). COPY FROM
// STDIN is listed in spec.md but is handled entirely at the wire layer
// before SQL text ever reaches Parse, so it is not repeated here.
var skipRules = []struct {
	prefix string
	reason string
}{
	{"DROP DATABASE", "DROP DATABASE is not supported"},
	{"CREATE DATABASE", "CREATE DATABASE is not supported"},
	{"ALTER DATABASE", "ALTER DATABASE is not supported"},
}

// unsupportedRules are text matches consulted only after pgq.Parse has
// already failed (spec.md §4.7 step 2): they downgrade an otherwise-fatal
// SyntaxError to a Skipped result for recognized-but-unimplemented
// surface area.
var unsupportedRules = []string{
	"CREATE TRIGGER",
	"CREATE DOMAIN",
	"CREATE AGGREGATE",
	"ALTER TYPE",
	"ALTER DOMAIN",
	"ALTER AGGREGATE",
	"ALTER FUNCTION",
	"ALTER SEQUENCE",
	"OWNER TO",
	"CREATE TYPE",
	"USING GIST",
}

func matchSkipRule(sql string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	if strings.HasPrefix(upper, "\\") {
		return "psql meta-commands are not supported", true
	}
	for _, rule := range skipRules {
		if strings.HasPrefix(upper, rule.prefix) {
			return rule.reason, true
		}
	}
	return "", false
}

func matchUnsupportedRule(sql string) (string, bool) {
	upper := strings.ToUpper(sql)
	for _, rule := range unsupportedRules {
		if strings.Contains(upper, rule) {
			return rule + " is not supported", true
		}
	}
	if strings.Contains(sql, "$$") || strings.Contains(sql, "$tag$") {
		return "dollar-quoted function bodies are not supported", true
	}
	return "", false
}
