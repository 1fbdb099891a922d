// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"sort"

	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/eval"
	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/types"
)

// windowFuncNames is the closed set of window functions spec.md §4.7 step
// 7 names.
var windowFuncNames = map[string]bool{
	"row_number": true, "rank": true, "dense_rank": true,
	"sum": true, "count": true, "avg": true, "min": true, "max": true,
	"lag": true, "lead": true,
}

func isWindowCall(fc *pgq.FuncCall) bool {
	return fc.GetOver() != nil && windowFuncNames[lastNamePart(fc.GetFuncname())]
}

// collectWindowCalls finds every top-level OVER-bearing FuncCall in a
// target list, by AST identity, mirroring collectAggregateCalls's
// restricted-position scope (a window call is only recognized as a whole
// target-list expression, not nested inside arithmetic).
func collectWindowCalls(targets []*pgq.Node, out *[]*pgq.FuncCall) {
	for _, t := range targets {
		rt := t.GetResTarget()
		if rt == nil {
			continue
		}
		if fc, ok := rt.GetVal().GetNode().(*pgq.Node_FuncCall); ok && isWindowCall(fc.FuncCall) {
			*out = append(*out, fc.FuncCall)
		}
	}
}

// orderCompare implements spec.md §4.7 step 8's ORDER BY semantics: a
// NULL compares least unless an explicit NULLS FIRST/LAST overrides it,
// and DESC flips the remaining (non-null) comparison.
func orderCompare(a, b types.Value, desc bool, nullsFirst bool) int {
	aNull, bNull := a.IsNull(), b.IsNull()
	if aNull && bNull {
		return 0
	}
	if aNull || bNull {
		less := -1
		if nullsFirst {
			less = 1
		}
		if aNull {
			return -less
		}
		return less
	}
	cmp, err := eval.Compare(a, b)
	if err != nil {
		cmp = 0
	}
	if desc {
		cmp = -cmp
	}
	return cmp
}

// sortKey is one ORDER BY item, pre-resolved to a direction/nulls policy.
type sortKey struct {
	node       pgq.Node
	desc       bool
	nullsFirst bool
}

func sortKeysFromClause(nodes []*pgq.Node) []sortKey {
	keys := make([]sortKey, 0, len(nodes))
	for _, n := range nodes {
		sb, ok := n.GetNode().(*pgq.Node_SortBy)
		if !ok {
			continue
		}
		desc := sb.SortBy.GetSortbyDir() == pgq.SortByDir_SORTBY_DESC
		nullsFirst := !desc
		switch sb.SortBy.GetSortbyNulls() {
		case pgq.SortByNulls_SORTBY_NULLS_FIRST:
			nullsFirst = true
		case pgq.SortByNulls_SORTBY_NULLS_LAST:
			nullsFirst = false
		}
		keys = append(keys, sortKey{node: sb.SortBy.GetNode(), desc: desc, nullsFirst: nullsFirst})
	}
	return keys
}

// sortIndicesStable stably sorts idxs (indices into rows) by evaluating
// each sort key's expression against every candidate row's context.
func (es *execState) sortIndicesStable(idxs []int, rows []types.Row, ctxOf func(types.Row) *eval.Context, keys []sortKey) error {
	n := len(idxs)
	vals := make([][]types.Value, n)
	for i, idx := range idxs {
		ctx := ctxOf(rows[idx])
		row := make([]types.Value, len(keys))
		for k, sk := range keys {
			v, err := es.evalRow(ctx, nil, sk.node)
			if err != nil {
				return err
			}
			row[k] = v
		}
		vals[i] = row
	}
	sort.SliceStable(idxs, func(i, j int) bool {
		for k, sk := range keys {
			cmp := orderCompare(vals[i][k], vals[j][k], sk.desc, sk.nullsFirst)
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	return nil
}

// computeWindowFunc evaluates one OVER-bearing function across the full
// row set, returning its result aligned to rows's original order (spec.md
// §4.7 step 7).
func (es *execState) computeWindowFunc(fc *pgq.FuncCall, rows []types.Row, ctxOf func(types.Row) *eval.Context) ([]types.Value, error) {
	n := len(rows)
	result := make([]types.Value, n)
	over := fc.GetOver()

	partitions := map[string][]int{}
	var order []string
	for i, row := range rows {
		ctx := ctxOf(row)
		var keyVals []types.Value
		for _, p := range over.GetPartitionClause() {
			v, err := es.evalRow(ctx, nil, p.GetNode())
			if err != nil {
				return nil, err
			}
			keyVals = append(keyVals, v)
		}
		key := string(types.EncodeValues(keyVals))
		if _, ok := partitions[key]; !ok {
			order = append(order, key)
		}
		partitions[key] = append(partitions[key], i)
	}

	orderKeys := sortKeysFromClause(over.GetOrderClause())
	name := lastNamePart(fc.GetFuncname())

	for _, key := range order {
		idxs := partitions[key]
		if len(orderKeys) > 0 {
			if err := es.sortIndicesStable(idxs, rows, ctxOf, orderKeys); err != nil {
				return nil, err
			}
		}
		if err := es.fillWindowPartition(fc, name, idxs, rows, ctxOf, len(orderKeys) > 0, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (es *execState) fillWindowPartition(fc *pgq.FuncCall, name string, idxs []int, rows []types.Row, ctxOf func(types.Row) *eval.Context, ordered bool, result []types.Value) error {
	switch name {
	case "row_number":
		for pos, idx := range idxs {
			result[idx] = types.Int64(int64(pos) + 1)
		}
		return nil

	case "rank", "dense_rank":
		return es.fillRank(fc, name, idxs, rows, ctxOf, result)

	case "sum", "count", "avg", "min", "max":
		acc := newAggAccumulator(name)
		for pos, idx := range idxs {
			v, err := es.windowArg(fc, rows[idx], ctxOf)
			if err != nil {
				return err
			}
			if err := acc.add(fc.GetAggStar(), v); err != nil {
				return err
			}
			if ordered {
				result[idx] = acc.result()
			} else if pos == len(idxs)-1 {
				final := acc.result()
				for _, j := range idxs {
					result[j] = final
				}
			}
		}
		return nil

	case "lag", "lead":
		return es.fillLagLead(fc, name, idxs, rows, ctxOf, result)

	default:
		return kverrors.Unsupported{Reason: "unsupported window function " + name}
	}
}

func (es *execState) windowArg(fc *pgq.FuncCall, row types.Row, ctxOf func(types.Row) *eval.Context) (types.Value, error) {
	if fc.GetAggStar() || len(fc.GetArgs()) == 0 {
		return types.Null(), nil
	}
	return es.evalRow(ctxOf(row), nil, fc.GetArgs()[0].GetNode())
}

func (es *execState) fillRank(fc *pgq.FuncCall, name string, idxs []int, rows []types.Row, ctxOf func(types.Row) *eval.Context, result []types.Value) error {
	orderKeys := sortKeysFromClause(fc.GetOver().GetOrderClause())
	var prevVals []types.Value
	rank, dense := int64(0), int64(0)
	for pos, idx := range idxs {
		curVals := make([]types.Value, len(orderKeys))
		ctx := ctxOf(rows[idx])
		for k, sk := range orderKeys {
			v, err := es.evalRow(ctx, nil, sk.node)
			if err != nil {
				return err
			}
			curVals[k] = v
		}
		tie := pos > 0 && sameOrderTuple(curVals, prevVals)
		if !tie {
			rank = int64(pos) + 1
			dense++
		}
		if name == "rank" {
			result[idx] = types.Int64(rank)
		} else {
			result[idx] = types.Int64(dense)
		}
		prevVals = curVals
	}
	return nil
}

func sameOrderTuple(a, b []types.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if orderCompare(a[i], b[i], false, true) != 0 {
			return false
		}
	}
	return true
}

// fillLagLead implements LAG/LEAD with optional offset and default value
// arguments, read off the function's own argument list positionally.
func (es *execState) fillLagLead(fc *pgq.FuncCall, name string, idxs []int, rows []types.Row, ctxOf func(types.Row) *eval.Context, result []types.Value) error {
	args := fc.GetArgs()
	if len(args) == 0 {
		return kverrors.Unsupported{Reason: name + " requires an argument"}
	}
	offset := int64(1)
	if len(args) > 1 {
		v, err := eval.Eval(eval.EmptyContext(), args[1].GetNode())
		if err != nil {
			return err
		}
		switch v.Kind {
		case types.KindInt32:
			offset = int64(v.I32)
		case types.KindInt64:
			offset = v.I64
		}
	}
	if name == "lag" {
		offset = -offset
	}

	for pos, idx := range idxs {
		srcPos := pos + int(offset)
		if srcPos < 0 || srcPos >= len(idxs) {
			if len(args) > 2 {
				v, err := es.evalRow(ctxOf(rows[idx]), nil, args[2].GetNode())
				if err != nil {
					return err
				}
				result[idx] = v
			} else {
				result[idx] = types.Null()
			}
			continue
		}
		v, err := es.evalRow(ctxOf(rows[idxs[srcPos]]), nil, args[0].GetNode())
		if err != nil {
			return err
		}
		result[idx] = v
	}
	return nil
}
