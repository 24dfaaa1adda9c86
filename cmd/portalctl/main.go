package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "portalctl",
		Short:         "Operator tooling for the Denta Portal API",
		Long:          "Run schema migrations, bootstrap administrator accounts and approve dentists without going through the HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	migrateCmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply, roll back or inspect database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE:      runMigrate,
	}

	createAdminCmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a verified administrator account",
		Long:  "Administrators cannot self-register. Missing fields are prompted for interactively.",
		RunE:  runCreateAdmin,
	}
	createAdminCmd.Flags().String("email", "", "Administrator email")
	createAdminCmd.Flags().String("first-name", "", "First name")
	createAdminCmd.Flags().String("last-name", "", "Last name")
	createAdminCmd.Flags().String("phone", "", "Phone number")
	createAdminCmd.Flags().String("password", "", "Password (prompted without echo when omitted)")
	createAdminCmd.Flags().Bool("no-input", false, "Fail instead of prompting for missing fields")

	approveCmd := &cobra.Command{
		Use:   "approve-dentist",
		Short: "Approve a dentist so they can log in",
		RunE:  runApproveDentist,
	}
	approveCmd.Flags().String("email", "", "Dentist email")
	approveCmd.Flags().Bool("revoke", false, "Revoke approval instead of granting it")
	_ = approveCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(migrateCmd, createAdminCmd, approveCmd)
	return rootCmd
}
