package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newKeysCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Administración de claves de firma",
	}

	var alg string
	rotate := &cobra.Command{
		Use:   "rotate",
		Short: "Genera una clave activa nueva; la anterior queda en retiro",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if alg == "" {
				alg = c.Config.Keys.Alg
			}
			kid, err := c.AuthServer.Keys.Rotate(cmd.Context(), alg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "active kid=%s alg=%s\n", kid, alg)
			return nil
		},
	}
	rotate.Flags().StringVar(&alg, "alg", "", "EdDSA | RS256 (default: keys.alg)")
	cmd.AddCommand(rotate)
	return cmd
}
