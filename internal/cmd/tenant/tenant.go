// Package tenant provides the `nostrhubd tenant` subcommands: offline
// administration of tenant storage environments, so an operator can
// provision a tenant's on-disk environment without the relay process
// running. Provisioning does not admit the tenant: with
// allowAutoCreateTenants false the relay serves only the default tenant, and
// config.AllowedTenants is not consulted.
package tenant

import (
	"fmt"

	cfgpkg "github.com/nostrhub/nostrhub/internal/config"
	pebblestore "github.com/nostrhub/nostrhub/internal/storage/pebble"
	"github.com/spf13/cobra"

	relaytenant "github.com/nostrhub/nostrhub/internal/relay/tenant"
)

// NewRoot constructs the `tenant` cobra command tree.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenant storage environments",
	}
	root.AddCommand(newCreateCommand())
	return root
}

func newCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <tenant-id>",
		Short: "Provision a tenant's storage environment on disk",
		Long: "Opens (creating if absent) the named tenant's storage environment " +
			"under the data directory's tenants/ subdirectory, writing its schema-" +
			"version meta record, then closes it. Run this while the relay process " +
			"is stopped; a running relay already owns the Pebble lock on each open " +
			"tenant directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID := args[0]
			if !relaytenant.Valid(tenantID) {
				return fmt.Errorf("invalid tenant id %q", tenantID)
			}

			dataDir, _ := cmd.Flags().GetString("data-dir")
			if dataDir == "" {
				dataDir = cfgpkg.DefaultDataDir()
			}

			registry := relaytenant.NewRegistry(dataDir, pebblestore.Options{Fsync: pebblestore.FsyncModeAlways})
			defer registry.Close()

			env, err := registry.Env(tenantID)
			if err != nil {
				return fmt.Errorf("provision tenant %q: %w", tenantID, err)
			}

			fmt.Printf("tenant %q provisioned at %s\n", tenantID, env.DataPath())
			fmt.Println("note: if the relay's allowAutoCreateTenants config is false, it serves only the default tenant (allowedTenants is not consulted)")
			return nil
		},
	}
	cmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	return cmd
}
