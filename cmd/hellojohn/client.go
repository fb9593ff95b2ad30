package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellojohn-oidc/internal/oauth/registration"
)

func newClientCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Administración de clients",
	}

	var md registration.Metadata
	create := &cobra.Command{
		Use:   "create",
		Short: "Registra un client y muestra sus credenciales",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			// El CLI es de confianza: registra con la política abierta.
			svc := registration.NewService(c.DAL.Clients(), registration.Config{
				Policy:          registration.PolicyOpen,
				BaseURL:         c.AuthServer.Issuer(),
				ScopesSupported: c.Config.OAuth.ScopesSupported,
			})
			res, err := svc.Create(cmd.Context(), "", md)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	f := create.Flags()
	f.StringVar(&md.ClientName, "name", "", "client_name")
	f.StringSliceVar(&md.RedirectURIs, "redirect-uri", nil, "redirect_uris (repetible)")
	f.StringSliceVar(&md.PostLogoutRedirectURIs, "post-logout-redirect-uri", nil, "post_logout_redirect_uris (repetible)")
	f.StringSliceVar(&md.GrantTypes, "grant-type", nil, "grant_types (default authorization_code)")
	f.StringSliceVar(&md.ResponseTypes, "response-type", nil, "response_types (default code)")
	f.StringVar(&md.TokenEndpointAuthMethod, "auth-method", "", "token_endpoint_auth_method (default client_secret_basic)")
	f.StringVar(&md.Scope, "scope", "", "scope permitido")
	f.StringVar(&md.JWKSURI, "jwks-uri", "", "jwks_uri para private_key_jwt")
	_ = create.MarkFlagRequired("redirect-uri")
	cmd.AddCommand(create)
	return cmd
}
