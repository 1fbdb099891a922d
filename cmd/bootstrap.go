// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/kvpg/kvpg/internal/config"
	"github.com/kvpg/kvpg/pkg/auth"
	"github.com/kvpg/kvpg/pkg/kvstore"
)

// seedSchemaJSON is the JSON Schema a bootstrap seed file's shape is
// validated against before any of its entries are applied, the same
// "validate first, apply second" discipline
// the teacher's migration files go through via internal/jsonschema, just
// against kvpgserver's own seed-file shape instead of a migration
// document.
const seedSchemaJSON = `{
  "type": "object",
  "properties": {
    "users": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "password"],
        "properties": {
          "name":     {"type": "string", "minLength": 1},
          "password": {"type": "string", "minLength": 1},
          "super":    {"type": "boolean"},
          "roles":    {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "roles": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "grants": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["action", "object"],
              "properties": {
                "action": {"type": "string"},
                "object": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`

type seedUser struct {
	Name     string   `json:"name"`
	Password string   `json:"password"`
	Super    bool     `json:"super"`
	Roles    []string `json:"roles"`
}

type seedGrant struct {
	Action string `json:"action"`
	Object string `json:"object"`
}

type seedRole struct {
	Name   string      `json:"name"`
	Grants []seedGrant `json:"grants"`
}

type seedFile struct {
	Users []seedUser `json:"users"`
	Roles []seedRole `json:"roles"`
}

func compileSeedSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(seedSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing seed schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("seed.json", doc); err != nil {
		return nil, fmt.Errorf("loading seed schema: %w", err)
	}
	return compiler.Compile("seed.json")
}

func loadSeedFile(path string) (*seedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	asJSON, err := yaml.YAMLToJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	schema, err := compileSeedSchema()
	if err != nil {
		return nil, err
	}
	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(string(asJSON)))
	if err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("seed file does not match the expected shape: %w", err)
	}

	var sf seedFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("decoding seed file: %w", err)
	}
	return &sf, nil
}

func applySeedFile(ctx context.Context, store kvstore.Store, namespace string, sf *seedFile) error {
	txn, err := store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer txn.Rollback(ctx)

	for _, r := range sf.Roles {
		if err := auth.CreateRole(ctx, txn, namespace, r.Name); err != nil {
			return fmt.Errorf("creating role %q: %w", r.Name, err)
		}
		for _, g := range r.Grants {
			if err := auth.Grant(ctx, txn, namespace, r.Name, auth.Action(g.Action), g.Object); err != nil {
				return fmt.Errorf("granting %s on %s to %q: %w", g.Action, g.Object, r.Name, err)
			}
		}
	}
	for _, u := range sf.Users {
		if err := auth.CreateUser(ctx, txn, namespace, u.Name, u.Password); err != nil {
			return fmt.Errorf("creating user %q: %w", u.Name, err)
		}
		for _, roleName := range u.Roles {
			if err := auth.GrantRoleToUser(ctx, txn, namespace, u.Name, roleName); err != nil {
				return fmt.Errorf("assigning role %q to user %q: %w", roleName, u.Name, err)
			}
		}
	}
	return txn.Commit(ctx)
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap <seed-file>",
	Short: "Provision the default admin user, plus any users/roles from a YAML seed file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		ctx := cmd.Context()

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
			sp.Fail(fmt.Sprintf("Failed to start transaction: %s", err))
			return err
		}
		if err := auth.BootstrapAdmin(ctx, txn, cfg.PGNamespace); err != nil {
			txn.Rollback(ctx)
			sp.Fail(fmt.Sprintf("Failed to bootstrap admin user: %s", err))
			return err
		}
		if err := txn.Commit(ctx); err != nil {
			sp.Fail(fmt.Sprintf("Failed to commit: %s", err))
			return err
		}

		if len(args) == 0 {
			sp.Success(fmt.Sprintf("Admin user %q ready", auth.DefaultAdminUser))
			return nil
		}

		sp.UpdateText("Validating seed file " + args[0] + "...")
		sf, err := loadSeedFile(args[0])
		if err != nil {
			sp.Fail(err.Error())
			return err
		}

		sp.UpdateText(fmt.Sprintf("Applying %d role(s) and %d user(s)...", len(sf.Roles), len(sf.Users)))
		if err := applySeedFile(ctx, store, cfg.PGNamespace, sf); err != nil {
			sp.Fail(err.Error())
			return err
		}

		sp.Success("Bootstrap complete")
		return nil
	},
}
