// SPDX-License-Identifier: Apache-2.0

package executor

import (
	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/eval"
	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/types"
)

// aggAccumulator implements COUNT/SUM/AVG/MIN/MAX's running state
// (spec.md §4.7 "Aggregate/GROUP BY").
type aggAccumulator struct {
	kind       string
	count      int64
	sum        float64
	sumIsFloat bool
	extreme    types.Value
	extremeSet bool
}

func newAggAccumulator(kind string) *aggAccumulator {
	return &aggAccumulator{kind: kind}
}

func numericOf(v types.Value) (float64, bool, error) {
	switch v.Kind {
	case types.KindInt32:
		return float64(v.I32), false, nil
	case types.KindInt64:
		return float64(v.I64), false, nil
	case types.KindFloat64:
		return v.F64, true, nil
	}
	return 0, false, kverrors.TypeError{Reason: "aggregate argument is not numeric"}
}

func (a *aggAccumulator) add(star bool, v types.Value) error {
	switch a.kind {
	case "count":
		if star || !v.IsNull() {
			a.count++
		}
	case "sum", "avg":
		if v.IsNull() {
			return nil
		}
		f, isFloat, err := numericOf(v)
		if err != nil {
			return err
		}
		a.sum += f
		a.count++
		if isFloat {
			a.sumIsFloat = true
		}
	case "min", "max":
		if v.IsNull() {
			return nil
		}
		if !a.extremeSet {
			a.extreme, a.extremeSet = v, true
			return nil
		}
		cmp, err := eval.Compare(v, a.extreme)
		if err != nil {
			return err
		}
		if (a.kind == "min" && cmp < 0) || (a.kind == "max" && cmp > 0) {
			a.extreme = v
		}
	}
	return nil
}

func (a *aggAccumulator) result() types.Value {
	switch a.kind {
	case "count":
		return types.Int64(a.count)
	case "sum":
		if a.count == 0 {
			return types.Null()
		}
		if a.sumIsFloat {
			return types.Float64(a.sum)
		}
		return types.Int64(int64(a.sum))
	case "avg":
		if a.count == 0 {
			return types.Null()
		}
		return types.Float64(a.sum / float64(a.count))
	default: // min, max
		if !a.extremeSet {
			return types.Null()
		}
		return a.extreme
	}
}

// aggGroup is one GROUP BY bucket: a sample row (the bucket's first row),
// against which every plain column reference in the target list/HAVING/
// ORDER BY is resolved, and one accumulator per distinct aggregate call.
type aggGroup struct {
	sample types.Row
	accs   map[*pgq.FuncCall]*aggAccumulator
}

// groupAndAggregate implements spec.md §4.7 step 6: collect aggregate
// calls from the target list and HAVING, bucket rows by their GROUP BY
// tuple (bincode-encoded as the map key), feed each bucket's accumulators,
// then evaluate HAVING and project per surviving group.
func (es *execState) groupAndAggregate(
	rows []types.Row,
	ctxOf func(types.Row) *eval.Context,
	groupClause []*pgq.Node,
	having pgq.Node,
	targets []*pgq.Node,
	starColumns []string,
) ([]string, []types.Row, error) {
	var funcs []*pgq.FuncCall
	for _, t := range targets {
		if rt := t.GetResTarget(); rt != nil {
			collectAggregateCalls(rt.GetVal().GetNode(), &funcs)
		}
	}
	collectAggregateCalls(having, &funcs)

	groups := map[string]*aggGroup{}
	var order []string

	for _, row := range rows {
		ctx := ctxOf(row)
		var keyVals []types.Value
		for _, g := range groupClause {
			v, err := es.evalRow(ctx, nil, g.GetNode())
			if err != nil {
				return nil, nil, err
			}
			keyVals = append(keyVals, v)
		}
		key := string(types.EncodeValues(keyVals))
		group, ok := groups[key]
		if !ok {
			group = &aggGroup{sample: row, accs: make(map[*pgq.FuncCall]*aggAccumulator, len(funcs))}
			for _, fc := range funcs {
				group.accs[fc] = newAggAccumulator(lastNamePart(fc.GetFuncname()))
			}
			groups[key] = group
			order = append(order, key)
		}
		for _, fc := range funcs {
			var v types.Value
			var err error
			if !fc.GetAggStar() && len(fc.GetArgs()) > 0 {
				v, err = es.evalRow(ctx, nil, fc.GetArgs()[0].GetNode())
				if err != nil {
					return nil, nil, err
				}
			}
			if err := group.accs[fc].add(fc.GetAggStar(), v); err != nil {
				return nil, nil, err
			}
		}
	}

	var outCols []string
	var outRows []types.Row
	for _, key := range order {
		group := groups[key]
		aggVals := make(map[*pgq.FuncCall]types.Value, len(funcs))
		for _, fc := range funcs {
			aggVals[fc] = group.accs[fc].result()
		}
		groupCtx := ctxOf(group.sample)

		if having != nil {
			ok, err := es.evalBoolRow(groupCtx, aggVals, having)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				continue
			}
		}

		cols, row, err := es.projectTargets(groupCtx, aggVals, targets, starColumns)
		if err != nil {
			return nil, nil, err
		}
		outCols = cols
		outRows = append(outRows, row)
	}
	return outCols, outRows, nil
}
