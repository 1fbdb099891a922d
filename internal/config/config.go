// SPDX-License-Identifier: Apache-2.0

// Package config binds kvpgserver's runtime configuration (spec.md §6
// "External Interfaces") to environment variables and cobra flags, the
// same way the teacher's cmd/root.go binds PGROLL_* env vars onto
// viper-backed flags. Unlike the teacher, kvpg's variable names don't
// share one common prefix (PD_ENDPOINTS vs. PG_*), so each is bound
// individually with viper.BindEnv instead of a single SetEnvPrefix.
package config

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the fully resolved set of spec.md §6 startup parameters.
type Config struct {
	// PDEndpoints is the comma-separated list of placement-driver
	// endpoints the backing KV store is dialed through.
	PDEndpoints []string
	// PGPort is the port kvpgserver listens on for Postgres-wire
	// connections.
	PGPort int
	// PGNamespace is the optional key prefix applied to every key this
	// process writes or reads (spec.md §4.1 ApplyNamespace).
	PGNamespace string
	// PGKeyspace is the backing-store keyspace dialed at startup.
	// pkg/kvstore.Pool provisions a missing keyspace and retries only when
	// it is built with a Provisioner; cmd/serve.go and cmd/bootstrap.go
	// build it with none, so a missing keyspace fails the dial.
	PGKeyspace string
	// PGPassword optionally gates connections at the wire level.
	PGPassword string
	// PGTLSCert and PGTLSKey, when both set, enable TLS on the listener.
	PGTLSCert string
	PGTLSKey  string
}

const (
	envPDEndpoints = "PD_ENDPOINTS"
	envPGPort      = "PG_PORT"
	envPGNamespace = "PG_NAMESPACE"
	envPGKeyspace  = "PG_KEYSPACE"
	envPGPassword  = "PG_PASSWORD"
	envPGTLSCert   = "PG_TLS_CERT"
	envPGTLSKey    = "PG_TLS_KEY"

	defaultPDEndpoints = "127.0.0.1:2379"
	defaultPGPort      = 5433
	defaultPGKeyspace  = "default"
)

// BindFlags registers cmd's persistent flags and binds each one to its
// spec.md §6 environment variable, mirroring cmd/root.go's
// viper.BindPFlag pattern in the teacher.
func BindFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("pd-endpoints", defaultPDEndpoints, "Comma-separated placement-driver endpoints")
	cmd.PersistentFlags().Int("pg-port", defaultPGPort, "Postgres-wire listening port")
	cmd.PersistentFlags().String("pg-namespace", "", "Key prefix applied to every key this process touches")
	cmd.PersistentFlags().String("pg-keyspace", defaultPGKeyspace, "Backing-store keyspace")
	cmd.PersistentFlags().String("pg-password", "", "Optional cleartext password gate at wire level")
	cmd.PersistentFlags().String("pg-tls-cert", "", "TLS certificate path (requires pg-tls-key)")
	cmd.PersistentFlags().String("pg-tls-key", "", "TLS key path (requires pg-tls-cert)")

	viper.BindPFlag(envPDEndpoints, cmd.PersistentFlags().Lookup("pd-endpoints"))
	viper.BindPFlag(envPGPort, cmd.PersistentFlags().Lookup("pg-port"))
	viper.BindPFlag(envPGNamespace, cmd.PersistentFlags().Lookup("pg-namespace"))
	viper.BindPFlag(envPGKeyspace, cmd.PersistentFlags().Lookup("pg-keyspace"))
	viper.BindPFlag(envPGPassword, cmd.PersistentFlags().Lookup("pg-password"))
	viper.BindPFlag(envPGTLSCert, cmd.PersistentFlags().Lookup("pg-tls-cert"))
	viper.BindPFlag(envPGTLSKey, cmd.PersistentFlags().Lookup("pg-tls-key"))

	for _, name := range []string{envPDEndpoints, envPGPort, envPGNamespace, envPGKeyspace, envPGPassword, envPGTLSCert, envPGTLSKey} {
		viper.BindEnv(name)
	}
}

// Load reads the bound flags/env vars into a Config. Call after
// BindFlags and after cobra has parsed arguments.
func Load() Config {
	return Config{
		PDEndpoints: splitEndpoints(viper.GetString(envPDEndpoints)),
		PGPort:      viper.GetInt(envPGPort),
		PGNamespace: viper.GetString(envPGNamespace),
		PGKeyspace:  viper.GetString(envPGKeyspace),
		PGPassword:  viper.GetString(envPGPassword),
		PGTLSCert:   viper.GetString(envPGTLSCert),
		PGTLSKey:    viper.GetString(envPGTLSKey),
	}
}

func splitEndpoints(raw string) []string {
	var out []string
	for _, e := range strings.Split(raw, ",") {
		e = strings.TrimSpace(e)
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

// TLSEnabled reports whether both halves of a TLS keypair are configured.
func (c Config) TLSEnabled() bool { return c.PGTLSCert != "" && c.PGTLSKey != "" }
