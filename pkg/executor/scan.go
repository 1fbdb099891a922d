// SPDX-License-Identifier: Apache-2.0

package executor

import (
	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/catalog"
	"github.com/kvpg/kvpg/pkg/eval"
	"github.com/kvpg/kvpg/pkg/planner"
	"github.com/kvpg/kvpg/pkg/types"
)

// estimatedTableRows is ChooseAccessPath's cardinality input. This module
// keeps no running per-table row-count statistic, so every call site uses
// this placeholder instead: it is large enough that a unique full-column
// index match (selectivity 1e-6) always beats a full scan, and small
// enough that a prefix match on a low-cardinality index doesn't look
// artificially cheap.
const estimatedTableRows = 1000

// scanTable reads schema's candidate rows for a WHERE clause (nil for
// "all rows"), using pkg/planner to choose between a full scan and an
// index lookup, then applies the full predicate as a residual filter
// since an index match only ever covers an equality prefix (spec.md
// §4.6, §4.7). newCtx builds the row context (with any statement-wide
// volatile-function bindings already set) a candidate row is evaluated
// against.
func (es *execState) scanTable(schema *types.TableSchema, where pgq.Node, newCtx func(types.Row) *eval.Context) ([]types.Row, error) {
	candidates, err := es.candidateRows(schema, where)
	if err != nil {
		return nil, err
	}
	if where == nil {
		return candidates, nil
	}

	out := make([]types.Row, 0, len(candidates))
	for _, row := range candidates {
		ok, err := es.evalBoolRow(newCtx(row), nil, where)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (es *execState) candidateRows(schema *types.TableSchema, where pgq.Node) ([]types.Row, error) {
	if where == nil {
		return catalog.Scan(es.ctx, es.txn, es.namespace, schema)
	}

	predicates := planner.ExtractPredicates(where)
	path := planner.ChooseAccessPath(schema, predicates, estimatedTableRows)
	if path.Kind == planner.FullScan {
		return catalog.Scan(es.ctx, es.txn, es.namespace, schema)
	}

	idxValues := make([]types.Value, len(path.MatchedValues))
	for i, node := range path.MatchedValues {
		v, err := eval.Eval(eval.EmptyContext(), node)
		if err != nil {
			return nil, err
		}
		idxValues[i] = v
	}
	pkVectors, err := catalog.ScanIndex(es.ctx, es.txn, es.namespace, schema, path.Index, idxValues)
	if err != nil {
		return nil, err
	}
	return catalog.BatchGetRows(es.ctx, es.txn, es.namespace, schema, pkVectors)
}

// reindexRow deletes a row's old index entries and writes fresh ones
// under its new values, for UPDATE (spec.md §4.7's "delete old index
// entries, write row, create new index entries" protocol). oldRow may be
// nil (INSERT: nothing to delete first).
func (es *execState) reindexRow(schema *types.TableSchema, oldRow, newRow types.Row) error {
	if oldRow != nil {
		oldPK := catalog.PKValuesOf(schema, oldRow)
		for i := range schema.Indexes {
			idx := &schema.Indexes[i]
			if err := catalog.DeleteIndexEntry(es.ctx, es.txn, es.namespace, schema, idx, indexValuesOf(schema, idx, oldRow), oldPK); err != nil {
				return err
			}
		}
	}
	newPK := catalog.PKValuesOf(schema, newRow)
	for i := range schema.Indexes {
		idx := &schema.Indexes[i]
		if err := catalog.CreateIndexEntry(es.ctx, es.txn, es.namespace, schema, idx, indexValuesOf(schema, idx, newRow), newPK); err != nil {
			return err
		}
	}
	return nil
}
