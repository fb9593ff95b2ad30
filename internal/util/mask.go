// Package util reúne helpers chicos sin dependencias del dominio.
package util

import "strings"

// MaskEmail deja la primera letra del local-part y del primer label del
// dominio. Se usa para loguear emails sin exponerlos completos.
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" {
		return maskPart(s)
	}
	host, rest, _ := strings.Cut(domain, ".")
	out := maskPart(local) + "@" + maskPart(host)
	if rest != "" {
		out += "." + rest
	}
	return out
}

func maskPart(p string) string {
	switch {
	case p == "":
		return ""
	case len(p) == 1:
		return p
	default:
		return p[:1] + "***"
	}
}
