// SPDX-License-Identifier: Apache-2.0

// Package eval implements the Expression Evaluator (C5, spec.md §4.5): a
// recursive walk over github.com/pganalyze/pg_query_go/v6's parsed AST
// nodes, evaluated against either a single-row or a join row context.
// Grounded on pgroll's pkg/sql2pgroll convert*.go files for the
// "type-switch over *pgq.Node_X, pull fields via the Get* accessors"
// idiom; those files walk the AST to emit migrations.Operation, kvpg's
// evaluator walks the same AST shapes to produce a types.Value instead.
package eval

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/types"
)

// Context is the row context an expression is evaluated against. It
// covers both the single-table mode (ByQualified empty) and the join mode
// of spec.md §4.5.
type Context struct {
	Row types.Row

	// ByName maps an unqualified column name to its index in Row.
	// Ambiguous names are tracked separately so an unqualified reference
	// to one can fail with ColumnAmbiguousError rather than silently
	// picking the first table to declare it.
	ByName map[string]int

	// ByQualified maps "alias.column" (already lower-cased) to its index
	// in Row.
	ByQualified map[string]int

	// Ambiguous holds every unqualified name declared by more than one
	// input table.
	Ambiguous map[string]bool

	// Now, when set, binds now()/current_timestamp/current_date to a
	// single instant for every row evaluated in one statement (spec.md
	// §4.5: volatile functions are bound once at statement start, not
	// evaluated per row). Nil means those functions are unsupported here.
	Now *time.Time

	// NewUUID, when set, binds gen_random_uuid()/uuid_generate_v4(). It is
	// called once per occurrence, not cached, since unlike Now each call
	// of a row-generating volatile function produces a distinct value.
	NewUUID func() uuid.UUID
}

// bindVolatile copies the statement-wide volatile-function bindings from
// one Context onto another, so every Context built while executing one
// statement (single-row, join, group) shares the same now() instant.
func (c *Context) bindVolatile(from *Context) *Context {
	c.Now = from.Now
	c.NewUUID = from.NewUUID
	return c
}

// NewRowContext builds a single-table Context: schema column name ->
// row index, one-to-one, never ambiguous.
func NewRowContext(schema *types.TableSchema, row types.Row) *Context {
	byName := make(map[string]int, len(schema.Columns))
	for i, c := range schema.Columns {
		byName[strings.ToLower(c.Name)] = i
	}
	return &Context{Row: row, ByName: byName}
}

// NewJoinContext builds a Context over a combined row produced by joining
// tables in order: each table contributes its alias (or its own name, if
// unaliased) plus its column names to the offsets map (spec.md §4.5
// "combined row / column offsets"). A bare column name binds to the first
// table that declares it; a later table's column of the same name is still
// reachable via alias.column and is recorded in Ambiguous so an
// unqualified reference to it fails ColumnAmbiguousError instead of
// silently resolving to the first table.
func NewJoinContext(row types.Row) *Context {
	return &Context{
		Row:         row,
		ByName:      make(map[string]int),
		ByQualified: make(map[string]int),
		Ambiguous:   make(map[string]bool),
	}
}

// AddTable registers one input table's columns into a join Context built
// by NewJoinContext, at the given base offset into the combined row.
func (c *Context) AddTable(alias string, columns []string, base int) {
	lalias := strings.ToLower(alias)
	for i, col := range columns {
		lcol := strings.ToLower(col)
		idx := base + i
		if lalias != "" {
			c.ByQualified[lalias+"."+lcol] = idx
		}
		if _, exists := c.ByName[lcol]; exists {
			c.Ambiguous[lcol] = true
			continue
		}
		c.ByName[lcol] = idx
	}
}

// EmptyContext is used to evaluate expressions with no row in scope (e.g.
// INSERT value expressions, default expressions) — any column reference
// in this context is a programming error upstream, so Resolve always
// fails ColumnNotFoundError.
func EmptyContext() *Context {
	return &Context{Row: nil, ByName: map[string]int{}}
}

// Resolve implements spec.md §4.5's value-resolution order for an
// identifier: exact match on alias.column if qualifier is non-empty →
// exact match on the unqualified name (ColumnAmbiguousError if the name
// is ambiguous and there is no qualifier) → case-insensitive fallback
// scan over alias.column keys → ColumnNotFoundError.
func (c *Context) Resolve(qualifier, name string) (types.Value, error) {
	lname := strings.ToLower(name)

	if qualifier != "" {
		if idx, ok := c.ByQualified[strings.ToLower(qualifier)+"."+lname]; ok {
			return c.Row[idx], nil
		}
	}

	if idx, ok := c.ByName[lname]; ok {
		if c.Ambiguous[lname] && qualifier == "" {
			return types.Value{}, kverrors.ColumnAmbiguousError{Column: name}
		}
		return c.Row[idx], nil
	}

	// Case-insensitive fallback scan over qualified keys, for a bare
	// reference to a column only registered under "alias.column" (no
	// bare alias collision recorded).
	for k, idx := range c.ByQualified {
		parts := strings.SplitN(k, ".", 2)
		if len(parts) == 2 && strings.EqualFold(parts[1], name) {
			return c.Row[idx], nil
		}
	}

	return types.Value{}, kverrors.ColumnNotFoundError{Column: name}
}
