package types

import "time"

// AuthMethod names how a caller's credential was validated.
type AuthMethod string

const (
	AuthMethodBearerToken AuthMethod = "bearer_token"
	AuthMethodAPIKey      AuthMethod = "api_key"
	AuthMethodCertificate AuthMethod = "certificate"
	AuthMethodNone        AuthMethod = "none"
)

// Scope is a closed pair of permission levels the Request Gate checks
// tool calls against.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
)

// AuthContext is produced by the Request Gate for every accepted
// credential (or the null context when authentication is disabled).
type AuthContext struct {
	ClientID  string
	UserID    string
	Method    AuthMethod
	Scopes    []string
	ExpiresAt *time.Time
	RequestID string
}

// HasScope reports whether ctx's scopes include s.
func (ctx *AuthContext) HasScope(s Scope) bool {
	if ctx == nil {
		return false
	}
	for _, have := range ctx.Scopes {
		if Scope(have) == s {
			return true
		}
	}
	return false
}
