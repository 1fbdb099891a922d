// SPDX-License-Identifier: Apache-2.0

package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvpg/kvpg/pkg/auth"
	"github.com/kvpg/kvpg/pkg/kverrors"
	"github.com/kvpg/kvpg/pkg/kvstore"
	"github.com/kvpg/kvpg/pkg/kvstore/memstore"
)

func newTxn(t *testing.T) kvstore.Txn {
	t.Helper()
	store := memstore.New()
	txn, err := store.BeginTx(context.Background())
	require.NoError(t, err)
	return txn
}

func TestBootstrapAdminCreatesDefaultUserOnce(t *testing.T) {
	txn := newTxn(t)
	ctx := context.Background()

	require.NoError(t, auth.BootstrapAdmin(ctx, txn, "ns"))
	u, err := auth.Authenticate(ctx, txn, "ns", auth.DefaultAdminUser, auth.DefaultAdminPassword)
	require.NoError(t, err)
	require.True(t, u.Super)

	require.NoError(t, auth.CreateUser(ctx, txn, "ns", "alice", "secret"))
	require.NoError(t, auth.BootstrapAdmin(ctx, txn, "ns"))
	users, err := auth.ListUsers(ctx, txn, "ns")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"admin", "alice"}, users)
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	txn := newTxn(t)
	ctx := context.Background()
	require.NoError(t, auth.CreateUser(ctx, txn, "ns", "bob", "hunter2"))

	_, err := auth.Authenticate(ctx, txn, "ns", "bob", "wrong")
	require.IsType(t, kverrors.InvalidPasswordError{}, err)

	_, err = auth.Authenticate(ctx, txn, "ns", "nobody", "x")
	require.IsType(t, kverrors.UserNotFoundError{}, err)
}

func TestAuthorizeDenyUnlessGranted(t *testing.T) {
	txn := newTxn(t)
	ctx := context.Background()
	require.NoError(t, auth.CreateUser(ctx, txn, "ns", "carol", "pw"))
	require.NoError(t, auth.CreateRole(ctx, txn, "ns", "readers"))
	require.NoError(t, auth.GrantRoleToUser(ctx, txn, "ns", "carol", "readers"))

	err := auth.Authorize(ctx, txn, "ns", "carol", auth.ActionSelect, "orders")
	require.IsType(t, kverrors.PermissionDeniedError{}, err)

	require.NoError(t, auth.Grant(ctx, txn, "ns", "readers", auth.ActionSelect, "orders"))
	require.NoError(t, auth.Authorize(ctx, txn, "ns", "carol", auth.ActionSelect, "orders"))
	require.Error(t, auth.Authorize(ctx, txn, "ns", "carol", auth.ActionSelect, "other_table"))

	require.NoError(t, auth.Revoke(ctx, txn, "ns", "readers", auth.ActionSelect, "orders"))
	err = auth.Authorize(ctx, txn, "ns", "carol", auth.ActionSelect, "orders")
	require.IsType(t, kverrors.PermissionDeniedError{}, err)

	require.NoError(t, auth.Grant(ctx, txn, "ns", "readers", auth.ActionAll, auth.DatabaseObject))
	require.NoError(t, auth.Authorize(ctx, txn, "ns", "carol", auth.ActionDelete, "anything"))
}

func TestSuperuserBypassesGrants(t *testing.T) {
	txn := newTxn(t)
	ctx := context.Background()
	require.NoError(t, auth.BootstrapAdmin(ctx, txn, "ns"))
	require.NoError(t, auth.Authorize(ctx, txn, "ns", auth.DefaultAdminUser, auth.ActionDrop, "orders"))
}
