// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"github.com/kvpg/kvpg/pkg/catalog"
	"github.com/kvpg/kvpg/pkg/types"
)

// informationSchemaTables are the read-only virtual relations supplemented
// from the original implementation's src/sql/information_schema.rs. Each
// is backed entirely by catalog.ListTables/catalog.GetSchema, never
// persisted itself, and rebuilt fresh for every reference.
var informationSchemaTables = map[string]bool{
	"tables":            true,
	"columns":           true,
	"table_constraints": true,
}

// resolveInformationSchemaRelation returns (result, true) if relname
// names one of the information_schema tables/columns/table_constraints
// views, querying live catalog state rather than a stored schema.
func (es *execState) resolveInformationSchemaRelation(relname string) (*joinedTable, bool, error) {
	if !informationSchemaTables[relname] {
		return nil, false, nil
	}
	names, err := catalog.ListTables(es.ctx, es.txn, es.namespace)
	if err != nil {
		return nil, false, err
	}

	switch relname {
	case "tables":
		return es.informationSchemaTablesRelation(names)
	case "columns":
		return es.informationSchemaColumnsRelation(names)
	case "table_constraints":
		return es.informationSchemaConstraintsRelation(names)
	default:
		return nil, false, nil
	}
}

func (es *execState) informationSchemaTablesRelation(names []string) (*joinedTable, bool, error) {
	cols := []string{"table_name", "table_type"}
	var rows []types.Row
	for _, n := range names {
		rows = append(rows, types.Row{types.Text(n), types.Text("BASE TABLE")})
	}
	return singleTableSource("tables", cols, rows), true, nil
}

func (es *execState) informationSchemaColumnsRelation(names []string) (*joinedTable, bool, error) {
	cols := []string{"table_name", "column_name", "ordinal_position", "data_type", "is_nullable"}
	var rows []types.Row
	for _, n := range names {
		schema, err := catalog.MustGetSchema(es.ctx, es.txn, es.namespace, n)
		if err != nil {
			return nil, false, err
		}
		for i, c := range schema.Columns {
			nullable := "YES"
			if !c.Nullable {
				nullable = "NO"
			}
			rows = append(rows, types.Row{
				types.Text(n),
				types.Text(c.Name),
				types.Int32(int32(i + 1)),
				types.Text(c.DataType.String()),
				types.Text(nullable),
			})
		}
	}
	return singleTableSource("columns", cols, rows), true, nil
}

func (es *execState) informationSchemaConstraintsRelation(names []string) (*joinedTable, bool, error) {
	cols := []string{"table_name", "constraint_name", "constraint_type"}
	var rows []types.Row
	for _, n := range names {
		schema, err := catalog.MustGetSchema(es.ctx, es.txn, es.namespace, n)
		if err != nil {
			return nil, false, err
		}
		if len(schema.PKIndices) > 0 {
			rows = append(rows, types.Row{types.Text(n), types.Text(n + "_pkey"), types.Text("PRIMARY KEY")})
		}
		for _, idx := range schema.Indexes {
			if idx.Unique {
				rows = append(rows, types.Row{types.Text(n), types.Text(idx.Name), types.Text("UNIQUE")})
			}
		}
		for _, fk := range schema.ForeignKeys {
			rows = append(rows, types.Row{types.Text(n), types.Text(fk.Name), types.Text("FOREIGN KEY")})
		}
		for _, ck := range schema.CheckConstraints {
			rows = append(rows, types.Row{types.Text(n), types.Text(ck.Name), types.Text("CHECK")})
		}
	}
	return singleTableSource("table_constraints", cols, rows), true, nil
}
