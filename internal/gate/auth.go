// Package gate is the Request Gate: it authenticates a caller's credential
// into an AuthContext and rate-limits tool calls ahead of any component
// doing real work.
//
// Grounded on original_source/src/mcp_server/auth.rs and rate_limiter.rs
// (three credential shapes, three-tier rate limiting, whitelist bypass,
// silent-mode multiplier) and on the teacher's web/handlers/middleware.go
// (constant-time bearer comparison, golang.org/x/time/rate usage).
package gate

import (
	"crypto/subtle"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/config"
	"github.com/scrypster/arbor/pkg/types"
)

// Credential is the caller-supplied proof of identity, built by the
// transport layer from request headers before handing off to Authenticate.
// Exactly one field should be set, mirroring the three header shapes
// auth.rs dispatches on (Authorization: Bearer, Authorization: ApiKey /
// x-api-key, x-client-cert-thumbprint).
type Credential struct {
	BearerToken            string
	APIKey                 string
	CertificateFingerprint string
}

// Authenticator validates a Credential into an AuthContext.
type Authenticator struct {
	cfg config.GateAuthConfig
}

// NewAuthenticator builds an Authenticator from Gate auth config.
func NewAuthenticator(cfg config.GateAuthConfig) *Authenticator {
	return &Authenticator{cfg: cfg}
}

// Authenticate validates cred against the configured bearer tokens, API
// keys, and certificate fingerprints, in that precedence order — matching
// authenticate_request's header-shape dispatch. Returns the null context
// (nil, nil) when authentication is disabled, and an apperr.KindUnauthenticated
// error for any credential that fails validation.
func (a *Authenticator) Authenticate(cred Credential) (*types.AuthContext, error) {
	if !a.cfg.Enabled {
		return nil, nil
	}

	switch {
	case cred.BearerToken != "":
		return a.validateBearerToken(cred.BearerToken)
	case cred.APIKey != "":
		return a.validateAPIKey(cred.APIKey)
	case cred.CertificateFingerprint != "":
		return a.validateCertificate(cred.CertificateFingerprint)
	default:
		return nil, apperr.New(apperr.KindUnauthenticated, "no authentication credentials provided")
	}
}

func (a *Authenticator) validateBearerToken(token string) (*types.AuthContext, error) {
	for candidate, clientID := range a.cfg.BearerTokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(candidate)) == 1 {
			return &types.AuthContext{
				ClientID:  clientID,
				UserID:    clientID,
				Method:    types.AuthMethodBearerToken,
				Scopes:    a.cfg.RequiredScopes,
				RequestID: uuid.NewString(),
			}, nil
		}
	}
	return nil, apperr.New(apperr.KindUnauthenticated, "invalid bearer token")
}

func (a *Authenticator) validateAPIKey(key string) (*types.AuthContext, error) {
	info, ok := a.cfg.APIKeys[key]
	if !ok {
		return nil, apperr.New(apperr.KindUnauthenticated, "invalid API key")
	}
	if info.ExpiresAt != nil && info.ExpiresAt.Before(time.Now()) {
		return nil, apperr.New(apperr.KindUnauthenticated, "API key expired")
	}
	return &types.AuthContext{
		ClientID:  info.ClientID,
		UserID:    info.ClientID,
		Method:    types.AuthMethodAPIKey,
		Scopes:    info.Scopes,
		ExpiresAt: info.ExpiresAt,
		RequestID: uuid.NewString(),
	}, nil
}

func (a *Authenticator) validateCertificate(fingerprint string) (*types.AuthContext, error) {
	for _, allowed := range a.cfg.AllowedCertificateFingerprints {
		if subtle.ConstantTimeCompare([]byte(fingerprint), []byte(allowed)) == 1 {
			return &types.AuthContext{
				ClientID:  fingerprint,
				UserID:    fingerprint,
				Method:    types.AuthMethodCertificate,
				Scopes:    a.cfg.RequiredScopes,
				RequestID: uuid.NewString(),
			}, nil
		}
	}
	return nil, apperr.New(apperr.KindUnauthenticated, "unrecognized client certificate")
}
