// SPDX-License-Identifier: Apache-2.0

// Package planner implements the Planner (C6, spec.md §4.6): predicate
// extraction from a WHERE expression, access-path selection by a simple
// cost model, and predicate pushdown across a join's input tables. It is
// purely structural — no function in this package performs I/O; it
// operates on already-loaded *types.TableSchema values and pgq AST nodes.
//
// Grounded on pgroll's pkg/sql2pgroll/convert.go's AST-walking idiom
// (type-switch on *pgq.Node_X, pull fields via Get* accessors), applied
// here to WHERE-clause descent instead of DDL-statement dispatch.
package planner

import (
	pgq "github.com/pganalyze/pg_query_go/v6"

	"github.com/kvpg/kvpg/pkg/types"
)

// Predicate is a {column, op, value} triple extracted from a WHERE
// expression (spec.md §4.6). Value is nil for IS NULL/IS NOT NULL, which
// use Op "isnull"/"isnotnull".
type Predicate struct {
	Column string
	Op     string
	Value  pgq.Node
}

// flippedOp normalizes a reversed operand order (`5 = col` -> `col = 5`)
// by inverting the comparison operator.
var flippedOp = map[string]string{
	"=": "=", "<>": "<>", "!=": "!=",
	"<": ">", "<=": ">=", ">": "<", ">=": "<=",
}

var comparisonOps = map[string]bool{
	"=": true, "<>": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

// ExtractPredicates descends through AND and parentheses, collecting
// {column, op, value} triples where one side is a bare identifier and the
// other evaluates to a constant (spec.md §4.6). OR subtrees are not
// exploded and contribute nothing.
func ExtractPredicates(node pgq.Node) []Predicate {
	var out []Predicate
	collectPredicates(node, &out)
	return out
}

func collectPredicates(node pgq.Node, out *[]Predicate) {
	switch n := node.(type) {
	case *pgq.Node_BoolExpr:
		if n.BoolExpr.GetBoolop() == pgq.BoolExprType_AND_EXPR {
			for _, arg := range n.BoolExpr.GetArgs() {
				collectPredicates(arg.GetNode(), out)
			}
		}
		// OR and NOT subtrees are not pushed down.
	case *pgq.Node_AExpr:
		if n.AExpr.GetKind() != pgq.A_Expr_Kind_AEXPR_OP {
			return
		}
		op := lastNamePart(n.AExpr.GetName())
		if !comparisonOps[op] {
			return
		}
		lcol, lok := asColumnRef(n.AExpr.GetLexpr())
		rcol, rok := asColumnRef(n.AExpr.GetRexpr())
		switch {
		case lok && !rok:
			*out = append(*out, Predicate{Column: lcol, Op: op, Value: n.AExpr.GetRexpr()})
		case rok && !lok:
			flipped, ok := flippedOp[op]
			if !ok {
				return
			}
			*out = append(*out, Predicate{Column: rcol, Op: flipped, Value: n.AExpr.GetLexpr()})
		}
	case *pgq.Node_NullTest:
		col, ok := asColumnRef(n.NullTest.GetArg())
		if !ok {
			return
		}
		op := "isnull"
		if n.NullTest.GetNulltesttype() == pgq.NullTestType_IS_NOT_NULL {
			op = "isnotnull"
		}
		*out = append(*out, Predicate{Column: col, Op: op})
	}
}

func asColumnRef(node pgq.Node) (string, bool) {
	ref, ok := node.(*pgq.Node_ColumnRef)
	if !ok {
		return "", false
	}
	fields := ref.ColumnRef.GetFields()
	if len(fields) == 0 {
		return "", false
	}
	last := fields[len(fields)-1]
	if s := last.GetString_(); s != nil {
		return s.GetSval(), true
	}
	return "", false
}

func lastNamePart(nameNodes []*pgq.Node) string {
	if len(nameNodes) == 0 {
		return ""
	}
	last := nameNodes[len(nameNodes)-1]
	return last.GetString_().GetSval()
}

// AccessPathKind names which access path AccessPath.Select chose.
type AccessPathKind int

const (
	FullScan AccessPathKind = iota
	IndexScan
	IndexRangeScan
)

// AccessPath is the planner's chosen strategy for reading one table.
type AccessPath struct {
	Kind          AccessPathKind
	Index         *types.IndexDef
	MatchedValues []pgq.Node // in index-column order, only for IndexScan/IndexRangeScan
	EstimatedRows float64
	Cost          float64
}

// ChooseAccessPath implements spec.md §4.6's access-path selection: for
// each index, try to match its columns left-to-right against equality
// predicates; prefer the lowest-cost path, falling back to FullScan.
func ChooseAccessPath(schema *types.TableSchema, predicates []Predicate, tableRows int64) AccessPath {
	byColumn := make(map[string]*Predicate, len(predicates))
	for i := range predicates {
		if predicates[i].Op == "=" {
			byColumn[predicates[i].Column] = &predicates[i]
		}
	}

	best := AccessPath{Kind: FullScan, EstimatedRows: float64(tableRows), Cost: float64(tableRows)}

	for i := range schema.Indexes {
		idx := &schema.Indexes[i]
		matched := 0
		values := make([]pgq.Node, 0, len(idx.Columns))
		for _, col := range idx.Columns {
			p, ok := byColumn[col]
			if !ok {
				break
			}
			matched++
			values = append(values, p.Value)
		}
		if matched == 0 {
			continue
		}

		selectivity := indexSelectivity(idx.Unique, matched, len(idx.Columns))
		estRows := maxFloat(1, float64(tableRows)*selectivity)
		cost := 1.0 + 0.5*estRows

		if cost >= best.Cost {
			continue
		}

		kind := IndexRangeScan
		if matched == len(idx.Columns) {
			kind = IndexScan
		}
		best = AccessPath{
			Kind:          kind,
			Index:         idx,
			MatchedValues: values,
			EstimatedRows: estRows,
			Cost:          cost,
		}
	}

	return best
}

// indexSelectivity implements spec.md §4.6's selectivity formula: 1e-6 if
// the index is unique and fully matched, else 0.1^matched floored at 1e-4.
func indexSelectivity(unique bool, matched, total int) float64 {
	if unique && matched == total {
		return 1e-6
	}
	s := 1.0
	for i := 0; i < matched; i++ {
		s *= 0.1
	}
	if s < 1e-4 {
		return 1e-4
	}
	return s
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// PushdownPredicates partitions predicates by table ownership (spec.md
// §4.6): owned maps table alias to the set of column names it provides.
// Predicates whose column is not owned by exactly one table are returned
// as "remaining", to be re-applied after the join completes.
func PushdownPredicates(predicates []Predicate, owned map[string]map[string]bool) (perTable map[string][]Predicate, remaining []Predicate) {
	perTable = make(map[string][]Predicate, len(owned))
	for _, p := range predicates {
		owner := ""
		count := 0
		for table, cols := range owned {
			if cols[p.Column] {
				owner = table
				count++
			}
		}
		if count == 1 {
			perTable[owner] = append(perTable[owner], p)
		} else {
			remaining = append(remaining, p)
		}
	}
	return perTable, remaining
}

// TableCardinality pairs a table alias with its estimated row count, the
// unit JoinOrder sorts over.
type TableCardinality struct {
	Table string
	Rows  int64
}

// JoinOrder sorts tables by estimated cardinality ascending (spec.md
// §4.6). It is available for future use; the executor currently follows
// source-text join order (spec.md §4.7), so nothing in the executor calls
// this yet — it exists to let a future cost-based join reordering pass
// pick up the smaller-input-first heuristic without redesigning this
// package.
func JoinOrder(tables []TableCardinality) []TableCardinality {
	out := make([]TableCardinality, len(tables))
	copy(out, tables)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Rows < out[j-1].Rows; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// JoinCost implements spec.md §4.6's join cost formula.
func JoinCost(left, right int64, selectivity float64) float64 {
	return float64(left) + float64(right) + float64(left)*float64(right)*selectivity
}
