package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Borra codes y tokens vencidos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.AuthServer.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted codes=%d tokens=%d\n", res.Codes, res.Tokens)
			return nil
		},
	}
}
