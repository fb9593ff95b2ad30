package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellojohn-oidc/internal/users"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administración de usuarios",
	}

	var nu users.NewUser
	create := &cobra.Command{
		Use:   "create",
		Short: "Crea un usuario con contraseña argon2id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if nu.Password == "" {
				nu.Password = os.Getenv("HELLOJOHN_USER_PASSWORD")
			}
			if nu.Username == "" || nu.Password == "" {
				return errors.New("--username and --password (or HELLOJOHN_USER_PASSWORD) are required")
			}
			c, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			u, err := c.AuthServer.Users.Create(cmd.Context(), nu)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user id=%s username=%s\n", u.ID, u.Username)
			return nil
		},
	}
	f := create.Flags()
	f.StringVar(&nu.Username, "username", "", "nombre de usuario")
	f.StringVar(&nu.Password, "password", "", "contraseña")
	f.StringVar(&nu.Email, "email", "", "email")
	f.BoolVar(&nu.EmailVerified, "email-verified", false, "marca el email como verificado")
	f.StringSliceVar(&nu.Groups, "group", nil, "grupos (repetible)")
	f.StringToStringVar(&nu.Profile, "profile", nil, "atributos de perfil clave=valor")
	cmd.AddCommand(create)
	return cmd
}
