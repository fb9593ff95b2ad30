package repository

import (
	"slices"
	"strings"
)

// ParseScope separa un scope RFC6749 (space-delimited) y elimina duplicados
// conservando el orden.
func ParseScope(raw string) []string {
	fields := strings.Fields(raw)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// JoinScope es la inversa de ParseScope.
func JoinScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ScopeSubset reporta si todo elemento de sub está en super.
func ScopeSubset(sub, super []string) bool {
	for _, s := range sub {
		if !slices.Contains(super, s) {
			return false
		}
	}
	return true
}

// ScopeUnion devuelve a ∪ b conservando el orden de a.
func ScopeUnion(a, b []string) []string {
	out := slices.Clone(a)
	for _, s := range b {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// ScopeIntersect devuelve los elementos de requested presentes en allowed.
func ScopeIntersect(requested, allowed []string) []string {
	out := make([]string, 0, len(requested))
	for _, s := range requested {
		if slices.Contains(allowed, s) && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
