// Package httpapi exposes arbor's 8 tools as JSON endpoints over plain
// net/http, adapted from the teacher's web/handlers (ServeMux routing,
// security-headers middleware, Authorization-header credential extraction)
// with the Request Gate substituted for the teacher's single-token
// RequireAuth check.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/gate"
	"github.com/scrypster/arbor/internal/tools"
)

// Server routes HTTP requests to the tool surface, gating every call.
type Server struct {
	svc  *tools.Service
	gate *gate.Gate
	mux  *http.ServeMux
}

// New builds a Server and registers its routes.
func New(svc *tools.Service, g *gate.Gate) *Server {
	s := &Server{svc: svc, gate: g, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the wrapped http.Handler, security headers applied.
func (s *Server) Handler() http.Handler {
	return securityHeaders(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/memories", s.handle("store_memory", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var a tools.StoreMemoryArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, apperr.Wrap(apperr.KindInvalid, "decode request body", err)
		}
		return s.svc.StoreMemory(ctx, a)
	}))
	s.mux.HandleFunc("/api/v1/search", s.handle("search_memory", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var a tools.SearchMemoryArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, apperr.Wrap(apperr.KindInvalid, "decode request body", err)
		}
		return s.svc.SearchMemory(ctx, a)
	}))
	s.mux.HandleFunc("/api/v1/statistics", s.handle("get_statistics", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var a tools.GetStatisticsArgs
		if len(args) > 0 {
			if err := json.Unmarshal(args, &a); err != nil {
				return nil, apperr.Wrap(apperr.KindInvalid, "decode request body", err)
			}
		}
		return s.svc.GetStatistics(ctx, a)
	}))
	s.mux.HandleFunc("/api/v1/recall", s.handle("what_did_you_remember", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var a tools.WhatDidYouRememberArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, apperr.Wrap(apperr.KindInvalid, "decode request body", err)
		}
		return s.svc.WhatDidYouRemember(ctx, a)
	}))
	s.mux.HandleFunc("/api/v1/harvest", s.handle("harvest_conversation", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var a tools.HarvestConversationArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, apperr.Wrap(apperr.KindInvalid, "decode request body", err)
		}
		return s.svc.HarvestConversation(ctx, a)
	}))
	s.mux.HandleFunc("/api/v1/harvester/metrics", s.handle("get_harvester_metrics", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		return s.svc.GetHarvesterMetrics(ctx)
	}))
	s.mux.HandleFunc("/api/v1/memories/migrate", s.handle("migrate_memory", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var a tools.MigrateMemoryArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, apperr.Wrap(apperr.KindInvalid, "decode request body", err)
		}
		return s.svc.MigrateMemory(ctx, a)
	}))
	s.mux.HandleFunc("/api/v1/memories/delete", s.handle("delete_memory", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var a tools.DeleteMemoryArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, apperr.Wrap(apperr.KindInvalid, "decode request body", err)
		}
		return s.svc.DeleteMemory(ctx, a)
	}))
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}

type toolFunc func(ctx context.Context, args json.RawMessage) (interface{}, error)

// handle wraps a tool invocation with gate admission, request-body reading,
// and apperr-to-HTTP-status translation, mirroring the teacher's
// RequireAuth-then-handler composition.
func (s *Server) handle(toolName string, fn toolFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if s.gate != nil {
			cred := credentialFromRequest(r)
			silent := r.Header.Get("X-Silent-Mode") == "true"
			if _, err := s.gate.Admit(ctx, cred, toolName, silent); err != nil {
				writeError(w, err)
				return
			}
		}

		var body json.RawMessage
		if r.Body != nil {
			raw, err := readBody(r)
			if err != nil {
				writeError(w, apperr.Wrap(apperr.KindInvalid, "read request body", err))
				return
			}
			body = raw
		}

		result, err := fn(ctx, body)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func readBody(r *http.Request) ([]byte, error) {
	const maxBody = 1 << 20
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		return nil, err
	}
	if len(buf) > maxBody {
		return nil, apperr.New(apperr.KindInvalid, "request body too large")
	}
	if len(buf) == 0 {
		return []byte(`{}`), nil
	}
	return buf, nil
}

// credentialFromRequest extracts a gate.Credential from the Authorization
// and x-api-key / x-client-cert-thumbprint headers, matching the three
// credential shapes the Request Gate authenticates.
func credentialFromRequest(r *http.Request) gate.Credential {
	auth := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(auth, "Bearer "):
		return gate.Credential{BearerToken: strings.TrimPrefix(auth, "Bearer ")}
	case strings.HasPrefix(auth, "ApiKey "):
		return gate.Credential{APIKey: strings.TrimPrefix(auth, "ApiKey ")}
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		return gate.Credential{APIKey: key}
	}
	if fp := r.Header.Get("x-client-cert-thumbprint"); fp != "" {
		return gate.Credential{CertificateFingerprint: fp}
	}
	return gate.Credential{}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForKind(apperr.KindOf(err)), map[string]string{
		"error": err.Error(),
		"code":  string(apperr.KindOf(err)),
	})
}

func statusForKind(k apperr.Kind) int {
	switch k {
	case apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindUnauthorized:
		return http.StatusForbidden
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// securityHeaders mirrors the teacher's securityHeadersMiddleware.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
