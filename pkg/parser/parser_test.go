// SPDX-License-Identifier: Apache-2.0

package parser_test

import (
	"testing"

	pgq "github.com/pganalyze/pg_query_go/v6"
	"github.com/stretchr/testify/require"

	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/parser"
)

func TestParseCreateTable(t *testing.T) {
	res, err := parser.Parse("CREATE TABLE t (id INT PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	require.False(t, res.Skipped)
	require.Len(t, res.Statements, 1)
	_, ok := res.Statements[0].Node.(*pgq.Node_CreateStmt)
	require.True(t, ok)
}

func TestParseMultipleStatements(t *testing.T) {
	res, err := parser.Parse("SELECT 1; SELECT 2;")
	require.NoError(t, err)
	require.False(t, res.Skipped)
	require.Len(t, res.Statements, 2)
}

func TestSkipRuleDropDatabase(t *testing.T) {
	res, err := parser.Parse("DROP DATABASE foo")
	require.NoError(t, err)
	require.True(t, res.Skipped)
}

func TestSkipRulePsqlMetaCommand(t *testing.T) {
	res, err := parser.Parse("\\d t")
	require.NoError(t, err)
	require.True(t, res.Skipped)
}

func TestSyntaxError(t *testing.T) {
	_, err := parser.Parse("SELEKT * FROM")
	require.Error(t, err)
	require.IsType(t, kverrors.SyntaxError{}, err)
}

func TestUnsupportedRuleAfterParseFailure(t *testing.T) {
	res, err := parser.Parse("CREATE TRIGGER t BEFORE INSERT ON foo EXECUTE FUNCTION bogus(")
	require.NoError(t, err)
	require.True(t, res.Skipped)
}
