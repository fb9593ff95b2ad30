// Command hellojohn es el servidor OAuth2/OIDC y sus tareas de operación.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/hellojohn-oidc/internal/app"
	"github.com/dropDatabas3/hellojohn-oidc/internal/config"
	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// version se inyecta con -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env es opcional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{configPath: os.Getenv("HELLOJOHN_CONFIG")}
	root := &cobra.Command{
		Use:           "hellojohn",
		Short:         "Servidor de autorización OAuth2 / OpenID Connect",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "Archivo YAML de configuración (env HELLOJOHN_CONFIG)")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newCleanupCmd(opts),
		newKeysCmd(opts),
		newClientCmd(opts),
		newUserCmd(opts),
	)
	return root
}

// loadConfig carga, valida e inicializa el logger del proceso.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "hellojohn",
		Version:     version,
	})
	return cfg, nil
}

// build carga la config y arma el contenedor. El caller debe cerrarlo.
func (o *rootOptions) build(ctx context.Context) (*app.Container, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg)
}
