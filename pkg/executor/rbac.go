// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"strings"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/auth"
	"github.com/kvpg/kvpg/pkg/kverrors"
)

// execCreateRole implements CREATE ROLE and CREATE USER (spec.md §5
// RBAC supplement, grounded on the original implementation's
// src/auth/rbac.rs). Postgres's grammar folds both into one
// CreateRoleStmt, distinguished by StmtType; a CREATE USER with a
// PASSWORD option becomes an authenticatable auth.User, a bare CREATE
// ROLE becomes a grant-only auth.Role.
func execCreateRole(es *execState, stmt *pgq.CreateRoleStmt) (*Result, error) {
	name := stmt.GetRole()
	if stmt.GetStmtType() == pgq.RoleStmtType_ROLESTMT_ROLE {
		if err := auth.CreateRole(es.ctx, es.txn, es.namespace, name); err != nil {
			return nil, err
		}
		return &Result{}, nil
	}
	password := roleOptionString(stmt.GetOptions(), "password")
	if err := auth.CreateUser(es.ctx, es.txn, es.namespace, name, password); err != nil {
		return nil, err
	}
	return &Result{}, nil
}

func roleOptionString(options []*pgq.Node, name string) string {
	for _, o := range options {
		def, ok := o.Node.(*pgq.Node_DefElem)
		if !ok || !strings.EqualFold(def.DefElem.GetDefname(), name) {
			continue
		}
		if s, ok := def.DefElem.GetArg().Node.(*pgq.Node_String_); ok {
			return s.String_.GetSval()
		}
	}
	return ""
}

// execDropRole implements DROP ROLE/DROP USER, trying the role registry
// then the user registry for each named principal.
func execDropRole(es *execState, stmt *pgq.DropRoleStmt) (*Result, error) {
	for _, r := range stmt.GetRoles() {
		spec, ok := r.Node.(*pgq.Node_RoleSpec)
		if !ok {
			continue
		}
		name := spec.RoleSpec.GetRolename()
		if err := auth.DropRole(es.ctx, es.txn, es.namespace, name); err == nil {
			continue
		}
		if err := auth.DropUser(es.ctx, es.txn, es.namespace, name); err != nil {
			if stmt.GetMissingOk() {
				continue
			}
			return nil, err
		}
	}
	return &Result{}, nil
}

// execGrantRoleStmt implements "GRANT role TO user" role membership
// (distinct from privilege GRANT, parsed by Postgres as GrantRoleStmt).
func execGrantRoleStmt(es *execState, stmt *pgq.GrantRoleStmt) (*Result, error) {
	for _, granted := range stmt.GetGrantedRoles() {
		roleSpec, ok := granted.Node.(*pgq.Node_AccessPriv)
		roleName := ""
		if ok {
			roleName = roleSpec.AccessPriv.GetPrivName()
		}
		for _, grantee := range stmt.GetGranteeRoles() {
			spec, ok := grantee.Node.(*pgq.Node_RoleSpec)
			if !ok {
				continue
			}
			if !stmt.GetIsGrant() {
				return nil, kverrors.Unsupported{Reason: "REVOKE of role membership is not supported"}
			}
			if err := auth.GrantRoleToUser(es.ctx, es.txn, es.namespace, spec.RoleSpec.GetRolename(), roleName); err != nil {
				return nil, err
			}
		}
	}
	return &Result{}, nil
}

// execGrantStmt implements privilege GRANT/REVOKE at table-or-database
// grain (spec.md §5). ACL_TARGET_ALL_IN_SCHEMA and anything besides
// OBJECT_TABLE is database-wide (auth.DatabaseObject); otherwise each
// named object is one table.
func execGrantStmt(es *execState, stmt *pgq.GrantStmt) (*Result, error) {
	objects := grantObjectNames(stmt)
	actions := grantActions(stmt.GetPrivileges())
	for _, granteeNode := range stmt.GetGrantees() {
		spec, ok := granteeNode.Node.(*pgq.Node_RoleSpec)
		if !ok {
			continue
		}
		roleName := spec.RoleSpec.GetRolename()
		for _, action := range actions {
			for _, object := range objects {
				var err error
				if stmt.GetIsGrant() {
					err = auth.Grant(es.ctx, es.txn, es.namespace, roleName, action, object)
				} else {
					err = auth.Revoke(es.ctx, es.txn, es.namespace, roleName, action, object)
				}
				if err != nil {
					return nil, err
				}
			}
		}
	}
	return &Result{}, nil
}

func grantObjectNames(stmt *pgq.GrantStmt) []string {
	if stmt.GetObjtype() != pgq.ObjectType_OBJECT_TABLE || stmt.GetTargtype() != pgq.GrantTargetType_ACL_TARGET_OBJECT {
		return []string{auth.DatabaseObject}
	}
	var names []string
	for _, o := range stmt.GetObjects() {
		if rv, ok := o.Node.(*pgq.Node_RangeVar); ok {
			names = append(names, rv.RangeVar.GetRelname())
		}
	}
	if len(names) == 0 {
		return []string{auth.DatabaseObject}
	}
	return names
}

func grantActions(privs []*pgq.Node) []auth.Action {
	if len(privs) == 0 {
		return []auth.Action{auth.ActionAll}
	}
	var out []auth.Action
	for _, p := range privs {
		ap, ok := p.Node.(*pgq.Node_AccessPriv)
		if !ok {
			continue
		}
		out = append(out, auth.Action(strings.ToUpper(ap.AccessPriv.GetPrivName())))
	}
	if len(out) == 0 {
		return []auth.Action{auth.ActionAll}
	}
	return out
}

// actionFor maps a dispatched statement to the privilege Authorize must
// check before it runs (spec.md §5: "checked by the executor before
// DML/DDL dispatch"). Statements outside this set (transactions, RBAC
// management itself) are not gated here.
func actionFor(node pgq.Node) (auth.Action, string, bool) {
	switch n := node.(type) {
	case *pgq.Node_SelectStmt:
		return auth.ActionSelect, selectTargetTable(n.SelectStmt), true
	case *pgq.Node_InsertStmt:
		return auth.ActionInsert, n.InsertStmt.GetRelation().GetRelname(), true
	case *pgq.Node_UpdateStmt:
		return auth.ActionUpdate, n.UpdateStmt.GetRelation().GetRelname(), true
	case *pgq.Node_DeleteStmt:
		return auth.ActionDelete, n.DeleteStmt.GetRelation().GetRelname(), true
	case *pgq.Node_CreateStmt:
		return auth.ActionCreate, n.CreateStmt.GetRelation().GetRelname(), true
	case *pgq.Node_DropStmt:
		return auth.ActionDrop, auth.DatabaseObject, true
	default:
		return "", "", false
	}
}

// selectTargetTable returns the first FROM-clause table name for a
// privilege check, or auth.DatabaseObject for FROM-less or multi-table
// SELECTs, where a single-table grain check would not be meaningful.
func selectTargetTable(stmt *pgq.SelectStmt) string {
	from := stmt.GetFromClause()
	if len(from) != 1 {
		return auth.DatabaseObject
	}
	if rv, ok := from[0].Node.(*pgq.Node_RangeVar); ok {
		return rv.RangeVar.GetRelname()
	}
	return auth.DatabaseObject
}
