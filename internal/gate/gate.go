package gate

import (
	"context"
	"fmt"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/config"
	"github.com/scrypster/arbor/pkg/types"
)

// toolScopes maps each tool to the write/read scope spec.md §4.5 assigns
// it: write tools (store, migrate, delete, harvest) need "write", read
// tools (search, statistics, recall) need "read". Unknown tools default
// to "read".
var toolScopes = map[string]string{
	"store_memory":          "write",
	"search_memory":         "read",
	"get_statistics":        "read",
	"what_did_you_remember": "read",
	"harvest_conversation":  "write",
	"get_harvester_metrics": "read",
	"migrate_memory":        "write",
	"delete_memory":         "write",
}

// scopeForTool returns the scope toolName requires, defaulting unknown
// tools to "read" per spec.md §4.5.
func scopeForTool(name string) types.Scope {
	if s, ok := toolScopes[name]; ok {
		return types.Scope(s)
	}
	return types.ScopeRead
}

// Gate is the single entry point every tool call passes through:
// authenticate the credential, enforce the tool's required scope, and
// rate-limit the (client, tool) pair.
type Gate struct {
	auth *Authenticator
	rate *RateLimiter
}

// New builds a Gate from the Gate config surface.
func New(cfg config.GateConfig) *Gate {
	return &Gate{
		auth: NewAuthenticator(cfg.Auth),
		rate: NewRateLimiter(cfg.Rate),
	}
}

// Close releases the Gate's background goroutines.
func (g *Gate) Close() {
	g.rate.Close()
}

// Admit authenticates cred, checks the resulting AuthContext carries the
// scope toolName requires, and rate-limits the (client, tool) pair,
// returning the AuthContext on success. silentMode is threaded through
// from the caller's harvester/background-ingestion path, where requests
// should consume a reduced rate budget rather than the interactive one.
func (g *Gate) Admit(ctx context.Context, cred Credential, toolName string, silentMode bool) (*types.AuthContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindCancelled, "", err)
	}

	authCtx, err := g.auth.Authenticate(cred)
	if err != nil {
		return nil, err
	}

	clientID := "anonymous"
	if authCtx != nil {
		clientID = authCtx.ClientID
		required := scopeForTool(toolName)
		if !authCtx.HasScope(required) {
			return nil, apperr.New(apperr.KindUnauthorized,
				fmt.Sprintf("scope %q required for tool %q (request_id %s)", required, toolName, authCtx.RequestID))
		}
	}

	if err := g.rate.Allow(clientID, toolName, silentMode); err != nil {
		return nil, err
	}

	return authCtx, nil
}
