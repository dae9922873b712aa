package main

import (
	"github.com/spf13/cobra"
)

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "server",
		Short:        "Relo realtime messaging and notification server",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
	)
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var (
		addr      string
		noMigrate bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		Long: `Start the server. The schema is migrated on startup unless
--no-migrate is given. SIGINT and SIGTERM trigger a graceful shutdown that
closes every live websocket.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr, !noMigrate)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ADDR)")
	cmd.Flags().BoolVar(&noMigrate, "no-migrate", false, "skip schema migration on startup")
	return cmd
}

func buildMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}
}
