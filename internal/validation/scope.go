// Package validation agrupa chequeos sintácticos de valores del protocolo.
package validation

// ScopeToken reporta si s es un scope-token (RFC6749 §3.3): uno o más
// caracteres ASCII visibles, salvo comilla doble y backslash.
func ScopeToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x21 || c > 0x7e || c == '"' || c == '\\' {
			return false
		}
	}
	return true
}

// FirstInvalidScope devuelve el primer valor que no es scope-token.
func FirstInvalidScope(scopes []string) (string, bool) {
	for _, s := range scopes {
		if !ScopeToken(s) {
			return s, true
		}
	}
	return "", false
}
