package routes

import "strings"

// emailAllowed matches WooCommerce email restrictions, where "*" is a wildcard.
func emailAllowed(patterns []string, email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == email {
			return true
		}
		if i := strings.IndexByte(p, '*'); i >= 0 {
			if strings.HasPrefix(email, p[:i]) && strings.HasSuffix(email, p[i+1:]) && len(email) >= len(p)-1 {
				return true
			}
		}
	}
	return false
}
