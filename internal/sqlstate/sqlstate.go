// SPDX-License-Identifier: Apache-2.0

// Package sqlstate maps kverrors kinds to PostgreSQL SQLSTATE codes for the
// wire layer's ErrorResponse (spec.md §7). The Code type mirrors the shape
// of a Postgres client driver's error code field (e.g. github.com/lib/pq's
// pq.Error.Code): a five-character string with a Class accessor, rather
// than an enum, because that is the representation every Postgres wire
// client already expects on the field it reads off the wire. kvpg is
// itself a server, never a lib/pq caller, and does not import lib/pq at
// all; its integration tests dial kvpgserver with jackc/pgx/v5.
package sqlstate

import "github.com/kvpg/kvpg/pkg/kverrors"

// Code is a five-character SQLSTATE code, e.g. "42P01".
type Code string

// Class returns the code's class, the first two characters, per the
// Postgres errcodes.txt convention.
func (c Code) Class() string {
	if len(c) < 2 {
		return string(c)
	}
	return string(c[:2])
}

const (
	SuccessfulCompletion   Code = "00000"
	FeatureNotSupported    Code = "0A000"
	UniqueViolation        Code = "23505"
	NotNullViolation       Code = "23502"
	InvalidTextRepr        Code = "22P02"
	DivisionByZero         Code = "22012"
	UndefinedColumn        Code = "42703"
	UndefinedTable         Code = "42P01"
	DuplicateTable         Code = "42P07"
	DuplicateColumn        Code = "42701"
	DuplicateObject        Code = "42710"
	AmbiguousColumn        Code = "42702"
	SyntaxErrorCode        Code = "42601"
	UndefinedFunction      Code = "42883"
	InvalidColumnReference Code = "42P10"
	InternalError          Code = "XX000"
	InsufficientPrivilege  Code = "42501"
	InvalidPassword        Code = "28P01"
)

// ForError maps a kverrors kind to its SQLSTATE code. Errors not listed
// here (or not a kverrors kind at all) map to InternalError, matching
// spec.md §7's "XX000 unless a more specific code is known".
func ForError(err error) Code {
	switch err.(type) {
	case kverrors.SyntaxError:
		return SyntaxErrorCode
	case kverrors.TableNotFoundError:
		return UndefinedTable
	case kverrors.ViewNotFoundError:
		return UndefinedTable
	case kverrors.ColumnNotFoundError:
		return UndefinedColumn
	case kverrors.ColumnAmbiguousError:
		return AmbiguousColumn
	case kverrors.IndexNotFoundError:
		return UndefinedObjectClassIndex
	case kverrors.RoleNotFoundError:
		return UndefinedObjectClassRole
	case kverrors.DuplicateObjectError:
		return DuplicateObject
	case kverrors.DuplicatePrimaryKeyError:
		return UniqueViolation
	case kverrors.UniqueViolationError:
		return UniqueViolation
	case kverrors.NotNullViolationError:
		return NotNullViolation
	case kverrors.InvalidUpdateError:
		return InvalidColumnReference
	case kverrors.TypeError:
		return InvalidTextRepr
	case kverrors.UnknownFunctionError:
		return UndefinedFunction
	case kverrors.SubqueryShapeError:
		return SyntaxErrorCode
	case kverrors.Unsupported:
		return FeatureNotSupported
	case kverrors.PermissionDeniedError:
		return InsufficientPrivilege
	case kverrors.UserNotFoundError:
		return UndefinedObjectClassRole
	case kverrors.InvalidPasswordError:
		return InvalidPassword
	default:
		return InternalError
	}
}

// UndefinedObjectClassIndex and UndefinedObjectClassRole are not part of
// the standard errcodes.txt table (Postgres has no per-class "undefined
// index"/"undefined role" code distinct from 42704 undefined_object); kvpg
// reuses the generic undefined_object code for both; named separately here
// only so ForError's intent reads clearly at each call site.
const (
	UndefinedObjectClassIndex Code = "42704"
	UndefinedObjectClassRole  Code = "42704"
)
