// SPDX-License-Identifier: Apache-2.0

// Package auth implements the user/role registry and privilege checks
// supplemented from the original implementation's src/auth/rbac.rs and
// src/sql/rbac.rs (RBAC at table-or-database grain, deny unless granted).
// It follows pkg/catalog's read-modify-write-under-a-well-known-key shape
// (grounded the same way on pgroll's pkg/roll) and persists its registry
// entries through the same kvstore.Txn seam, using pkg/codec's UserKey/
// RoleKey. Passwords are hashed with golang.org/x/crypto/bcrypt, never
// stored or compared in cleartext.
package auth

import (
	"context"
	"sort"

	"golang.org/x/crypto/bcrypt"

	"github.com/kvpg/kvpg/pkg/codec"
	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/kvstore"
	"github.com/kvpg/kvpg/pkg/types"
)

// DefaultAdminUser and DefaultAdminPassword are the mandatory bootstrap
// credentials created on first use of an empty namespace (spec.md §6).
const (
	DefaultAdminUser     = "admin"
	DefaultAdminPassword = "admin"
)

// Action is a privilege kind checked before DML/DDL dispatch.
type Action string

const (
	ActionSelect Action = "SELECT"
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionCreate Action = "CREATE"
	ActionDrop   Action = "DROP"
	ActionAll    Action = "ALL"
)

// DatabaseObject is the Object value of a Grant scoped to every table in
// the namespace, rather than one specific table.
const DatabaseObject = "*"

// Grant is one (action, object) pair held by a Role.
type Grant struct {
	Action Action
	Object string // table name, or DatabaseObject for the whole namespace
}

// User is one authenticatable principal.
type User struct {
	Name         string
	PasswordHash []byte
	Super        bool // bypasses every privilege check, like Postgres superuser
	Roles        []string
}

// Role is a named bundle of grants, assignable to any number of Users.
type Role struct {
	Name   string
	Grants []Grant
}

// CreateUser persists a new user with a bcrypt hash of password. Fails
// with DuplicateObjectError if the name is already registered.
func CreateUser(ctx context.Context, txn kvstore.Txn, namespace, name, password string) error {
	key := codec.ApplyNamespace(namespace, codec.UserKey(name))
	if _, exists, err := txn.Get(ctx, key); err != nil {
		return kverrors.StorageError{Err: err}
	} else if exists {
		return kverrors.DuplicateObjectError{Kind: "user", Name: name}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return kverrors.StorageError{Err: err}
	}
	u := User{Name: name, PasswordHash: hash}
	return putUser(ctx, txn, key, u)
}

// DropUser removes a user. Fails with UserNotFoundError if absent.
func DropUser(ctx context.Context, txn kvstore.Txn, namespace, name string) error {
	key := codec.ApplyNamespace(namespace, codec.UserKey(name))
	ok, err := txn.Delete(ctx, key)
	if err != nil {
		return kverrors.StorageError{Err: err}
	}
	if !ok {
		return kverrors.UserNotFoundError{Name: name}
	}
	return nil
}

// GetUser returns the named user, or (nil, false) if not registered.
func GetUser(ctx context.Context, txn kvstore.Txn, namespace, name string) (*User, bool, error) {
	key := codec.ApplyNamespace(namespace, codec.UserKey(name))
	v, ok, err := txn.Get(ctx, key)
	if err != nil {
		return nil, false, kverrors.StorageError{Err: err}
	}
	if !ok {
		return nil, false, nil
	}
	u, err := decodeUser(v)
	if err != nil {
		return nil, false, kverrors.StorageError{Err: err}
	}
	return u, true, nil
}

// Authenticate verifies password against the stored bcrypt hash for name.
func Authenticate(ctx context.Context, txn kvstore.Txn, namespace, name, password string) (*User, error) {
	u, ok, err := GetUser(ctx, txn, namespace, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, kverrors.UserNotFoundError{Name: name}
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, kverrors.InvalidPasswordError{User: name}
	}
	return u, nil
}

// GrantRoleToUser adds roleName to a user's role list. Both must already
// exist.
func GrantRoleToUser(ctx context.Context, txn kvstore.Txn, namespace, userName, roleName string) error {
	key := codec.ApplyNamespace(namespace, codec.UserKey(userName))
	u, ok, err := GetUser(ctx, txn, namespace, userName)
	if err != nil {
		return err
	}
	if !ok {
		return kverrors.UserNotFoundError{Name: userName}
	}
	if _, ok, err := GetRole(ctx, txn, namespace, roleName); err != nil {
		return err
	} else if !ok {
		return kverrors.RoleNotFoundError{Name: roleName}
	}
	for _, r := range u.Roles {
		if r == roleName {
			return nil
		}
	}
	u.Roles = append(u.Roles, roleName)
	return putUser(ctx, txn, key, *u)
}

// CreateRole persists a new, initially grant-less role. Fails with
// DuplicateObjectError if the name is already registered.
func CreateRole(ctx context.Context, txn kvstore.Txn, namespace, name string) error {
	key := codec.ApplyNamespace(namespace, codec.RoleKey(name))
	if _, exists, err := txn.Get(ctx, key); err != nil {
		return kverrors.StorageError{Err: err}
	} else if exists {
		return kverrors.DuplicateObjectError{Kind: "role", Name: name}
	}
	return putRole(ctx, txn, key, Role{Name: name})
}

// DropRole removes a role. Fails with RoleNotFoundError if absent.
func DropRole(ctx context.Context, txn kvstore.Txn, namespace, name string) error {
	key := codec.ApplyNamespace(namespace, codec.RoleKey(name))
	ok, err := txn.Delete(ctx, key)
	if err != nil {
		return kverrors.StorageError{Err: err}
	}
	if !ok {
		return kverrors.RoleNotFoundError{Name: name}
	}
	return nil
}

// GetRole returns the named role, or (nil, false) if not registered.
func GetRole(ctx context.Context, txn kvstore.Txn, namespace, name string) (*Role, bool, error) {
	key := codec.ApplyNamespace(namespace, codec.RoleKey(name))
	v, ok, err := txn.Get(ctx, key)
	if err != nil {
		return nil, false, kverrors.StorageError{Err: err}
	}
	if !ok {
		return nil, false, nil
	}
	r, err := decodeRole(v)
	if err != nil {
		return nil, false, kverrors.StorageError{Err: err}
	}
	return r, true, nil
}

// Grant adds (action, object) to role's grant list. Idempotent: granting
// the same pair twice is a no-op.
func Grant(ctx context.Context, txn kvstore.Txn, namespace, roleName string, action Action, object string) error {
	key := codec.ApplyNamespace(namespace, codec.RoleKey(roleName))
	r, ok, err := GetRole(ctx, txn, namespace, roleName)
	if err != nil {
		return err
	}
	if !ok {
		return kverrors.RoleNotFoundError{Name: roleName}
	}
	for _, g := range r.Grants {
		if g.Action == action && g.Object == object {
			return nil
		}
	}
	r.Grants = append(r.Grants, Grant{Action: action, Object: object})
	return putRole(ctx, txn, key, *r)
}

// Revoke removes (action, object) from role's grant list, if present.
func Revoke(ctx context.Context, txn kvstore.Txn, namespace, roleName string, action Action, object string) error {
	key := codec.ApplyNamespace(namespace, codec.RoleKey(roleName))
	r, ok, err := GetRole(ctx, txn, namespace, roleName)
	if err != nil {
		return err
	}
	if !ok {
		return kverrors.RoleNotFoundError{Name: roleName}
	}
	kept := r.Grants[:0]
	for _, g := range r.Grants {
		if g.Action == action && g.Object == object {
			continue
		}
		kept = append(kept, g)
	}
	r.Grants = kept
	return putRole(ctx, txn, key, *r)
}

// Authorize enforces deny-unless-granted: super users and any grant
// covering (action, object) or (action, DatabaseObject) or (ActionAll,
// anything matching) pass; everyone else gets PermissionDeniedError.
func Authorize(ctx context.Context, txn kvstore.Txn, namespace, userName string, action Action, object string) error {
	u, ok, err := GetUser(ctx, txn, namespace, userName)
	if err != nil {
		return err
	}
	if !ok {
		return kverrors.UserNotFoundError{Name: userName}
	}
	if u.Super {
		return nil
	}
	for _, roleName := range u.Roles {
		r, ok, err := GetRole(ctx, txn, namespace, roleName)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for _, g := range r.Grants {
			if g.Object != object && g.Object != DatabaseObject {
				continue
			}
			if g.Action == action || g.Action == ActionAll {
				return nil
			}
		}
	}
	return kverrors.PermissionDeniedError{User: userName, Object: object, Action: string(action)}
}

// BootstrapAdmin creates the default admin user (spec.md §6) the first
// time a namespace's user registry is empty. It is a no-op, not an error,
// if any user already exists.
func BootstrapAdmin(ctx context.Context, txn kvstore.Txn, namespace string) error {
	empty, err := registryEmpty(ctx, txn, namespace)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}
	key := codec.ApplyNamespace(namespace, codec.UserKey(DefaultAdminUser))
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return kverrors.StorageError{Err: err}
	}
	return putUser(ctx, txn, key, User{Name: DefaultAdminUser, PasswordHash: hash, Super: true})
}

func registryEmpty(ctx context.Context, txn kvstore.Txn, namespace string) (bool, error) {
	start := codec.ApplyNamespace(namespace, codec.UserPrefix())
	end := prefixUpperBound(start)
	it, err := txn.Scan(ctx, start, end)
	if err != nil {
		return false, kverrors.StorageError{Err: err}
	}
	defer it.Close()
	has := it.Next()
	if err := it.Err(); err != nil {
		return false, kverrors.StorageError{Err: err}
	}
	return !has, nil
}

// ListUsers returns every registered user name, sorted.
func ListUsers(ctx context.Context, txn kvstore.Txn, namespace string) ([]string, error) {
	return scanNames(ctx, txn, namespace, codec.UserPrefix())
}

// ListRoles returns every registered role name, sorted.
func ListRoles(ctx context.Context, txn kvstore.Txn, namespace string) ([]string, error) {
	return scanNames(ctx, txn, namespace, codec.RolePrefix())
}

func scanNames(ctx context.Context, txn kvstore.Txn, namespace string, rawPrefix []byte) ([]string, error) {
	start := codec.ApplyNamespace(namespace, rawPrefix)
	end := prefixUpperBound(start)
	it, err := txn.Scan(ctx, start, end)
	if err != nil {
		return nil, kverrors.StorageError{Err: err}
	}
	defer it.Close()
	var names []string
	for it.Next() {
		rawKey := make([]byte, len(it.Key()))
		copy(rawKey, it.Key())
		stripped, err := codec.StripNamespace(namespace, rawKey)
		if err != nil {
			return nil, kverrors.StorageError{Err: err}
		}
		names = append(names, string(stripped[len(rawPrefix):]))
	}
	if err := it.Err(); err != nil {
		return nil, kverrors.StorageError{Err: err}
	}
	sort.Strings(names)
	return names, nil
}

func prefixUpperBound(prefix []byte) []byte {
	out := make([]byte, len(prefix))
	copy(out, prefix)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}

func putUser(ctx context.Context, txn kvstore.Txn, key []byte, u User) error {
	if err := txn.Put(ctx, key, encodeUser(u)); err != nil {
		return kverrors.StorageError{Err: err}
	}
	return nil
}

func putRole(ctx context.Context, txn kvstore.Txn, key []byte, r Role) error {
	if err := txn.Put(ctx, key, encodeRole(r)); err != nil {
		return kverrors.StorageError{Err: err}
	}
	return nil
}

// encodeUser/decodeUser and encodeRole/decodeRole pack registry entries as
// ordinary types.Row values through types.EncodeRow, the same on-disk
// encoding pkg/catalog uses for schema and sequence entries, rather than
// introducing a second serialization scheme just for the auth registry.
func encodeUser(u User) []byte {
	roles := make([]types.Value, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = types.Text(r)
	}
	return types.EncodeRow(types.Row{
		types.Text(u.Name),
		types.Bytes(u.PasswordHash),
		types.Boolean(u.Super),
		types.Array(roles),
	})
}

func decodeUser(buf []byte) (*User, error) {
	row, err := types.DecodeRow(buf)
	if err != nil {
		return nil, err
	}
	u := &User{
		Name:         row[0].Text,
		PasswordHash: row[1].Bytes,
		Super:        row[2].Bool,
	}
	for _, e := range row[3].Elems {
		u.Roles = append(u.Roles, e.Text)
	}
	return u, nil
}

func encodeRole(r Role) []byte {
	grants := make([]types.Value, len(r.Grants))
	for i, g := range r.Grants {
		grants[i] = types.Array([]types.Value{types.Text(string(g.Action)), types.Text(g.Object)})
	}
	return types.EncodeRow(types.Row{
		types.Text(r.Name),
		types.Array(grants),
	})
}

func decodeRole(buf []byte) (*Role, error) {
	row, err := types.DecodeRow(buf)
	if err != nil {
		return nil, err
	}
	r := &Role{Name: row[0].Text}
	for _, e := range row[1].Elems {
		r.Grants = append(r.Grants, Grant{Action: Action(e.Elems[0].Text), Object: e.Elems[1].Text})
	}
	return r, nil
}
