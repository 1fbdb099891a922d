// SPDX-License-Identifier: Apache-2.0

// Package executor implements the Executor (C7, spec.md §4.7): the
// statement dispatch loop and every DDL/DML/SELECT operation it names. It
// is the top of the component stack (§2), calling down into pkg/planner
// for access-path selection, pkg/eval to evaluate expressions against rows,
// and pkg/catalog for all storage access.
//
// Grounded on pgroll's pkg/roll.Roll.Start/execute dispatch shape (parse
// once, dispatch on node type, run inside one transaction per statement)
// but generalized from "one migration operation" to "any SQL statement",
// since kvpg executes arbitrary DML/SELECT rather than only schema changes.
package executor

import (
	"context"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/auth"
	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/kvstore"
	"github.com/kvpg/kvpg/pkg/parser"
	"github.com/kvpg/kvpg/pkg/session"
	"github.com/kvpg/kvpg/pkg/types"
)

// Result is the outcome of executing one statement (spec.md §4.7).
// Columns/Rows are set for statements that produce a tuple stream
// (SELECT, INSERT/UPDATE/DELETE ... RETURNING); RowsAffected is set for
// DML. Skipped mirrors parser.Result.Skipped for statements recognized as
// out of scope (spec.md §4.4, §4.7 step 1-2).
type Result struct {
	Skipped      bool
	Reason       string
	Columns      []string
	Rows         []types.Row
	RowsAffected int64
}

// Execute implements spec.md §4.7's statement loop: parse sql, then run
// each resulting statement in order, handling BEGIN/COMMIT/ROLLBACK
// against sess directly and wrapping every other statement in an implicit
// transaction when sess is Idle. It returns the last statement's result.
func Execute(ctx context.Context, sess *session.Session, sql string) (*Result, error) {
	parsed, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	if parsed.Skipped {
		return &Result{Skipped: true, Reason: parsed.Reason}, nil
	}

	var last *Result
	for _, stmt := range parsed.Statements {
		r, err := execStatement(ctx, sess, stmt)
		if err != nil {
			return nil, err
		}
		last = r
	}
	if last == nil {
		last = &Result{}
	}
	return last, nil
}

func execStatement(ctx context.Context, sess *session.Session, stmt parser.Statement) (*Result, error) {
	if ts, ok := stmt.Node.(*pgq.Node_TransactionStmt); ok {
		return execTransactionStmt(ctx, sess, ts.TransactionStmt)
	}

	if sess.InFailedTransaction {
		return nil, kverrors.InvalidUpdateError{
			Reason: "current transaction is aborted, commands ignored until end of transaction block",
		}
	}

	implicit := sess.State() == session.Idle
	if implicit {
		if err := sess.Begin(ctx, false); err != nil {
			return nil, err
		}
	}

	txn, _ := sess.GetMutTxn()
	es := &execState{ctx: ctx, txn: txn, namespace: sess.Namespace, username: sess.Username}
	result, err := dispatch(es, stmt.Node, stmt.SQL)
	if err != nil {
		if implicit {
			_ = sess.Rollback(ctx)
		} else {
			sess.InFailedTransaction = true
		}
		return nil, err
	}

	if implicit {
		if err := sess.Commit(ctx); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func execTransactionStmt(ctx context.Context, sess *session.Session, ts *pgq.TransactionStmt) (*Result, error) {
	switch ts.GetKind() {
	case pgq.TransactionStmtKind_TRANS_STMT_BEGIN, pgq.TransactionStmtKind_TRANS_STMT_START:
		return &Result{}, sess.Begin(ctx, true)
	case pgq.TransactionStmtKind_TRANS_STMT_COMMIT:
		if sess.InFailedTransaction {
			return &Result{}, sess.Rollback(ctx)
		}
		return &Result{}, sess.Commit(ctx)
	case pgq.TransactionStmtKind_TRANS_STMT_ROLLBACK:
		return &Result{}, sess.Rollback(ctx)
	default:
		return nil, kverrors.Unsupported{Reason: "unsupported transaction statement"}
	}
}

// execState threads the per-statement execution context: the live
// transaction, namespace, and any CTEs pre-executed earlier in the same
// statement (spec.md §4.7 "CTEs"). It is passed explicitly by pointer
// rather than carried on context.Context, since every field here is
// structurally required by nearly every function in this package rather
// than incidental request-scoped metadata.
type execState struct {
	ctx       context.Context
	txn       kvstore.Txn
	namespace string
	username  string
	ctes      map[string]cteResult
}

// cteResult is one non-recursive CTE's pre-executed (schema, rows) pair,
// cached for injection into table resolution (spec.md §4.7 "CTEs").
type cteResult struct {
	columns []string
	rows    []types.Row
}

// dispatch enforces the spec.md §5 RBAC check ("checked by the executor
// before DML/DDL dispatch") for every gated statement kind, then routes
// to the statement's handler. Sessions with no Username set (the
// executor's own unit tests, and any other trusted internal caller that
// sits in front of the auth layer itself) skip the check.
func dispatch(es *execState, node pgq.Node, sql string) (*Result, error) {
	if es.username != "" {
		if action, object, gated := actionFor(node); gated {
			if err := auth.Authorize(es.ctx, es.txn, es.namespace, es.username, action, object); err != nil {
				return nil, err
			}
		}
	}

	switch n := node.(type) {
	case *pgq.Node_CreateStmt:
		return execCreateTable(es, n.CreateStmt)
	case *pgq.Node_CreateTableAsStmt:
		return execCreateTableAs(es, n.CreateTableAsStmt)
	case *pgq.Node_AlterTableStmt:
		return execAlterTable(es, n.AlterTableStmt)
	case *pgq.Node_DropStmt:
		return execDropStmt(es, n.DropStmt)
	case *pgq.Node_RenameStmt:
		return execRenameStmt(es, n.RenameStmt)
	case *pgq.Node_IndexStmt:
		return execCreateIndex(es, n.IndexStmt)
	case *pgq.Node_TruncateStmt:
		return execTruncate(es, n.TruncateStmt)
	case *pgq.Node_ViewStmt:
		return execCreateView(es, n.ViewStmt, sql)
	case *pgq.Node_InsertStmt:
		return execInsert(es, n.InsertStmt)
	case *pgq.Node_UpdateStmt:
		return execUpdate(es, n.UpdateStmt)
	case *pgq.Node_DeleteStmt:
		return execDelete(es, n.DeleteStmt)
	case *pgq.Node_SelectStmt:
		return execTopLevelSelect(es, n.SelectStmt)
	case *pgq.Node_ExplainStmt:
		return execExplain(es, n.ExplainStmt)
	case *pgq.Node_CreateRoleStmt:
		return execCreateRole(es, n.CreateRoleStmt)
	case *pgq.Node_DropRoleStmt:
		return execDropRole(es, n.DropRoleStmt)
	case *pgq.Node_GrantStmt:
		return execGrantStmt(es, n.GrantStmt)
	case *pgq.Node_GrantRoleStmt:
		return execGrantRoleStmt(es, n.GrantRoleStmt)
	default:
		return nil, kverrors.Unsupported{Reason: "statement kind not supported"}
	}
}
