package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/soaringjerry/Sigmo/internal/utils"
)

func newAdminCmd(c *cli) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage admin accounts",
	}

	var email, password string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		Long: `Creates an admin directly in the store. Unlike POST /api/admin/init this
works when admins already exist. The password may also come from
SIGMO_ADMIN_PASSWORD.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = utils.SafeEnv("SIGMO_ADMIN_PASSWORD", "")
			}
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			admin, err := a.svc.Auth.CreateAdmin(ctx, email, password)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			green := color.New(color.FgGreen)
			green.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", admin.Email, admin.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&email, "email", "", "admin email")
	createCmd.Flags().StringVar(&password, "password", "", "admin password")

	adminCmd.AddCommand(createCmd)
	return adminCmd
}
