package main

import (
	"fmt"

	"github.com/diewo77/go-esign/internal/db"
	"github.com/spf13/cobra"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gdb, err := db.Connect(cmd.Context(), c.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close(gdb)
			if err := db.Migrate(gdb, c.cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations completed")
			return nil
		},
	}
}

func (c *cli) seedCmd() *cobra.Command {
	var opts db.SeedOptions
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create permissions, profiles, the admin user and template presets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gdb, err := db.Connect(cmd.Context(), c.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close(gdb)
			if err := db.Migrate(gdb, c.cfg); err != nil {
				return err
			}
			if opts.TemplatesFile == "" {
				opts.TemplatesFile = c.cfg.App.TemplatesFile
			}
			if err := db.Seed(cmd.Context(), gdb, opts); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "seed completed")
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.AdminEmail, "admin-email", "", "Email of the administrator to create")
	cmd.Flags().StringVar(&opts.AdminPassword, "admin-password", "", "Password of the administrator (8 characters or more)")
	cmd.Flags().StringVar(&opts.TemplatesFile, "templates", "", "YAML file of signature template presets (default app.templates_file)")
	cmd.Flags().BoolVar(&opts.Demo, "demo", false, "Create a demo customer and quotation")
	return cmd
}

func (c *cli) pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Refresh the status of sent signature requests once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			gdb, err := db.Connect(ctx, c.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close(gdb)
			app, err := NewApp(ctx, c.cfg, gdb)
			if err != nil {
				return err
			}
			defer app.Close()
			res, err := app.Poller.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked=%d changed=%d skipped=%d failed=%d\n", res.Checked, res.Changed, res.Skipped, res.Failed)
			return nil
		},
	}
}
