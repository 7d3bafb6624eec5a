// internal/auth/auth.go
package auth

import (
	"crypto/subtle"
	"net/http"
)

// Config holds the API keys accepted on the ingestion surface. User
// authentication lives in an external collaborator; this guard only keeps
// unauthenticated writers off the event input.
type Config struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// Manager validates API keys.
type Manager struct {
	config Config
}

func NewManager(config Config) *Manager {
	return &Manager{config: config}
}

// Enabled reports whether any keys are configured. With no keys the ingestion
// surface is open, which is the development default.
func (m *Manager) Enabled() bool {
	return len(m.config.APIKeys) > 0
}

// ValidateAPIKey checks the provided key in constant time.
func (m *Manager) ValidateAPIKey(apiKey string) bool {
	for _, validKey := range m.config.APIKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
			return true
		}
	}
	return false
}

// APIKeyMiddleware rejects requests without a valid X-API-Key header.
func (m *Manager) APIKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")

		if apiKey == "" {
			http.Error(w, "API key required", http.StatusUnauthorized)
			return
		}

		if !m.ValidateAPIKey(apiKey) {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
