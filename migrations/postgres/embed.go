// Package postgres embebe las migraciones SQL de goose del store postgres.
package postgres

import "embed"

// FS contiene las migraciones, con raíz en el directorio del paquete.
//
//go:embed *.sql
var FS embed.FS
