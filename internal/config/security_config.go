package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token required when a JWT secret is configured
)

// EndpointSecurityConfig maps HTTP paths to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	"/api/health":    SecurityPublic,
	"/api/db-health": SecurityPublic,

	"/api/outstanding": SecurityAccess,
}

// GetSecurityLevel returns the security level for a given path
func GetSecurityLevel(path string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[path]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityAccess
}
