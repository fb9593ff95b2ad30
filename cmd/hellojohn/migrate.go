package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellojohn-oidc/internal/store"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migraciones de esquema (postgres)",
	}
	for _, sub := range []struct{ use, short string }{
		{"up", "Aplica las migraciones pendientes"},
		{"down", "Revierte la última migración"},
		{"status", "Muestra el estado de las migraciones"},
	} {
		command := sub.use
		cmd.AddCommand(&cobra.Command{
			Use:   command,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				if cfg.Storage.Driver != "postgres" {
					return errors.New("migrate requires storage.driver=postgres")
				}
				return store.Migrate(cmd.Context(), cfg.Storage.DSN, command)
			},
		})
	}
	return cmd
}
