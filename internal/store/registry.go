// Package store provee el registry de adaptadores de almacenamiento y el
// DataAccessLayer que consume el motor OAuth.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dropDatabas3/hellojohn-oidc/internal/domain/repository"
)

// Adapter crea conexiones a un backend concreto ("memory", "postgres").
type Adapter interface {
	Name() string
	Connect(ctx context.Context, cfg AdapterConfig) (DataAccessLayer, error)
}

// DataAccessLayer es la conexión activa con todos los repositorios.
type DataAccessLayer interface {
	Name() string
	Ping(ctx context.Context) error
	Close() error

	Clients() repository.ClientRepository
	Codes() repository.CodeRepository
	Tokens() repository.TokenRepository
	Consents() repository.ConsentRepository
	Users() repository.UserRepository
	Keys() repository.KeyRepository
}

// AdapterConfig configuración para conectar a un almacenamiento.
type AdapterConfig struct {
	// Name del adapter: "memory" | "postgres"
	Name string

	// DSN connection string (postgres)
	DSN string

	// Pool settings
	MaxConns int
	MinConns int
}

var (
	registryMu sync.RWMutex
	adapters   = make(map[string]Adapter)
)

// RegisterAdapter registra un adapter. Llamar en init() de cada adapter.
func RegisterAdapter(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := a.Name()
	if _, exists := adapters[name]; exists {
		panic(fmt.Sprintf("store: adapter %q already registered", name))
	}
	adapters[name] = a
}

// ListAdapters retorna los nombres registrados, ordenados.
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open abre una conexión usando el adapter indicado en la config.
func Open(ctx context.Context, cfg AdapterConfig) (DataAccessLayer, error) {
	registryMu.RLock()
	a, ok := adapters[cfg.Name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: adapter %q not registered (have %v)", cfg.Name, ListAdapters())
	}
	return a.Connect(ctx, cfg)
}
