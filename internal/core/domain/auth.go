package domain

import "time"

type APIKey struct {
	TokenHash string
	TenantID  string
	Name      string
	Rights    Permissions
	Active    bool
	CreatedAt time.Time
}

// Principal is an authenticated caller. KeyID identifies the API key that proved it
// and is never rendered.
type Principal struct {
	TenantID string
	KeyID    string
	Name     string
	Rights   Permissions
}

// Actor is the name recorded on audit events and mutations.
func (p Principal) Actor() string {
	if p.Name == "" {
		return "api"
	}
	return p.Name
}

// Owns reports whether other is the same caller, same tenant and same key.
func (p Principal) Owns(other Principal) bool {
	return p.TenantID == other.TenantID && p.KeyID != "" && p.KeyID == other.KeyID
}
