// SPDX-License-Identifier: Apache-2.0

// Package kverrors defines the typed error kinds the executor distinguishes
// (spec.md §7). They follow pgroll's pkg/migrations typed-error-struct
// idiom: one exported struct per kind, each implementing error, so callers
// can type-switch or errors.As instead of matching on strings.
package kverrors

import "fmt"

type SyntaxError struct {
	Reason string
}

func (e SyntaxError) Error() string { return fmt.Sprintf("syntax error: %s", e.Reason) }

// Unsupported is never returned to a client as a hard error; the executor
// converts it into a Skipped result (spec.md §7).
type Unsupported struct {
	Reason string
}

func (e Unsupported) Error() string { return e.Reason }

type TableNotFoundError struct {
	Name string
}

func (e TableNotFoundError) Error() string { return fmt.Sprintf("table %q does not exist", e.Name) }

type ViewNotFoundError struct {
	Name string
}

func (e ViewNotFoundError) Error() string { return fmt.Sprintf("view %q does not exist", e.Name) }

type ColumnNotFoundError struct {
	Table  string
	Column string
}

func (e ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q does not exist on table %q", e.Column, e.Table)
}

type ColumnAmbiguousError struct {
	Column string
}

func (e ColumnAmbiguousError) Error() string {
	return fmt.Sprintf("column reference %q is ambiguous", e.Column)
}

type IndexNotFoundError struct {
	Name string
}

func (e IndexNotFoundError) Error() string { return fmt.Sprintf("index %q does not exist", e.Name) }

type RoleNotFoundError struct {
	Name string
}

func (e RoleNotFoundError) Error() string { return fmt.Sprintf("role %q does not exist", e.Name) }

type DuplicateObjectError struct {
	Kind string // "table", "index", "view", "role", "user"
	Name string
}

func (e DuplicateObjectError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}

type DuplicatePrimaryKeyError struct {
	Table string
}

func (e DuplicatePrimaryKeyError) Error() string {
	return fmt.Sprintf("duplicate key violates primary key constraint on table %q", e.Table)
}

type UniqueViolationError struct {
	Index string
}

func (e UniqueViolationError) Error() string {
	return fmt.Sprintf("duplicate key violates unique constraint %q", e.Index)
}

type NotNullViolationError struct {
	Column string
}

func (e NotNullViolationError) Error() string {
	return fmt.Sprintf("null value in column %q violates not-null constraint", e.Column)
}

type InvalidUpdateError struct {
	Reason string
}

func (e InvalidUpdateError) Error() string { return e.Reason }

type TypeError struct {
	Reason string
}

func (e TypeError) Error() string { return e.Reason }

type UnknownFunctionError struct {
	Name string
}

func (e UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown function %q", e.Name)
}

type SubqueryShapeError struct {
	Reason string
}

func (e SubqueryShapeError) Error() string { return e.Reason }

type StorageError struct {
	Err error
}

func (e StorageError) Error() string { return fmt.Sprintf("storage error: %s", e.Err) }

func (e StorageError) Unwrap() error { return e.Err }

// PermissionDeniedError is returned by pkg/auth's privilege check when a
// user has no grant covering the object and action it attempted.
type PermissionDeniedError struct {
	User   string
	Object string
	Action string
}

func (e PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied for user %q: %s on %q", e.User, e.Action, e.Object)
}

// UserNotFoundError mirrors RoleNotFoundError for the user registry.
type UserNotFoundError struct {
	Name string
}

func (e UserNotFoundError) Error() string { return fmt.Sprintf("user %q does not exist", e.Name) }

// InvalidPasswordError is returned by authentication on a bcrypt mismatch.
type InvalidPasswordError struct {
	User string
}

func (e InvalidPasswordError) Error() string {
	return fmt.Sprintf("password authentication failed for user %q", e.User)
}
