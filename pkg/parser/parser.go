// SPDX-License-Identifier: Apache-2.0

// Package parser implements the Parser (spec.md §4.4): a thin wrapper
// over github.com/pganalyze/pg_query_go/v6 that splits a SQL string into
// statement nodes and applies the pre-parse skip-rule / post-failure
// unsupported-rule checks of spec.md §4.7 steps 1-2. All other semantic
// validation is deferred to later phases (pkg/planner, pkg/executor).
//
// Grounded on pgroll's pkg/sql2pgroll/convert.go, which is the teacher's
// only consumer of pg_query_go: `pgq.Parse` → `tree.GetStmts()` →
// `stmts[i].GetStmt().GetNode()`. kvpg generalizes this from "exactly one
// statement, dispatched to a pgroll Operation" to "a vector of
// statements, returned for the executor to dispatch", per spec.md §4.4.
package parser

import (
	"fmt"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/kverrors"
)

// Statement is one parsed top-level statement, carrying both the parsed
// node and its original source slice (needed by the executor to
// re-derive e.g. a stored view's SELECT text verbatim).
type Statement struct {
	Node pgq.Node
	SQL  string
}

// Result is the outcome of Parse: either a Skipped verdict with a
// human-readable reason (spec.md §4.4, §4.7), or a list of statements to
// execute.
type Result struct {
	Skipped    bool
	Reason     string
	Statements []Statement
}

// Parse implements spec.md §4.7 steps 1-2.
func Parse(sql string) (*Result, error) {
	if reason, ok := matchSkipRule(sql); ok {
		return &Result{Skipped: true, Reason: reason}, nil
	}

	tree, err := pgq.Parse(sql)
	if err != nil {
		if reason, ok := matchUnsupportedRule(sql); ok {
			return &Result{Skipped: true, Reason: reason}, nil
		}
		return nil, kverrors.SyntaxError{Reason: err.Error()}
	}

	stmts := tree.GetStmts()
	out := make([]Statement, 0, len(stmts))
	for _, raw := range stmts {
		node := raw.GetStmt().GetNode()
		if node == nil {
			continue
		}
		out = append(out, Statement{
			Node: node,
			SQL:  statementText(sql, raw),
		})
	}
	return &Result{Statements: out}, nil
}

// statementText slices the original SQL by the RawStmt's recorded
// location/length, falling back to the whole input for a single-statement
// query (StmtLen is 0 for the last statement in pg_query's protobuf
// output).
func statementText(sql string, raw *pgq.RawStmt) string {
	start := int(raw.GetStmtLocation())
	length := int(raw.GetStmtLen())
	if start < 0 || start > len(sql) {
		return sql
	}
	if length <= 0 || start+length > len(sql) {
		return sql[start:]
	}
	return sql[start : start+length]
}

// Kind names the top-level Postgres node type inside Node, for callers
// (executor dispatch, logging) that want a short label without a full
// type switch.
func Kind(node pgq.Node) string {
	return fmt.Sprintf("%T", node)
}
