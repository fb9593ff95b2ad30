// Package repository define las entidades del motor OAuth2/OIDC y los
// contratos de persistencia que los servicios consumen.
//
// Las entidades se referencian entre sí por id (client_id, user id, token
// id), nunca por puntero. Los cambios de estado pasan por métodos explícitos
// que devuelven un valor nuevo; el store persiste lo que recibe.
//
// Las implementaciones concretas viven en internal/store/adapters/.
//
// Convenciones:
//   - Context siempre es el primer parámetro
//   - Errores de dominio están en errors.go
package repository
