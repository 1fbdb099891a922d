// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/kvpg/kvpg/internal/config"
	"github.com/kvpg/kvpg/pkg/auth"
	"github.com/kvpg/kvpg/pkg/kvstore"
	"github.com/kvpg/kvpg/pkg/kvstore/memstore"
	"github.com/kvpg/kvpg/pkg/wire"
)

// devStore backs every keyspace dialed in this process with the same
// in-memory Store, since a single-process dev deployment has no separate
// placement-driver transport to dial (pkg/kvstore.Dialer's real
// implementation is out-of-scope, spec.md §6). A non-dev deployment
// supplies its own Dialer here once a real KV client exists.
var devStore = memstore.New()

func devDialer(_ context.Context, keyspace string) (kvstore.Store, error) {
	if keyspace == "" {
		return nil, kvstore.ErrKeyspaceMissing(keyspace)
	}
	return devStore, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start kvpgserver, accepting Postgres-wire client connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sp, _ := pterm.DefaultSpinner.WithText("Dialing keyspace " + cfg.PGKeyspace + "...").Start()

		pool := kvstore.NewPool(devDialer, nil)
		defer pool.Close()

		store, err := pool.Get(ctx, cfg.PGKeyspace)
		if err != nil {
			sp.Fail(fmt.Sprintf("Failed to dial keyspace: %s", err))
			return err
		}

		sp.UpdateText("Bootstrapping admin user...")
		txn, err := store.BeginTx(ctx)
		if err != nil {
			sp.Fail(fmt.Sprintf("Failed to start bootstrap transaction: %s", err))
			return err
		}
		if err := auth.BootstrapAdmin(ctx, txn, cfg.PGNamespace); err != nil {
			txn.Rollback(ctx)
			sp.Fail(fmt.Sprintf("Failed to bootstrap admin user: %s", err))
			return err
		}
		if err := txn.Commit(ctx); err != nil {
			sp.Fail(fmt.Sprintf("Failed to commit bootstrap transaction: %s", err))
			return err
		}

		addr := fmt.Sprintf(":%d", cfg.PGPort)
		sp.Success(fmt.Sprintf("Listening on %s (keyspace %q, namespace %q)", addr, cfg.PGKeyspace, cfg.PGNamespace))

		srv := &wire.Server{
			Pool:      pool,
			Keyspace:  cfg.PGKeyspace,
			Namespace: cfg.PGNamespace,
			Password:  cfg.PGPassword,
		}
		if err := srv.ListenAndServe(ctx, addr); err != nil && ctx.Err() == nil {
			log.Printf("kvpgserver: %s", err)
			return err
		}
		return nil
	},
}
