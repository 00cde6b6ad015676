// Package mcp implements the Model Context Protocol (JSON-RPC 2.0) surface
// over arbor's 8 tools, adapted from the teacher's internal/api/mcp.Server
// dispatch shape (HandleRequest's method switch, tools/list + tools/call
// envelope, StdioTransport).
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/gate"
	"github.com/scrypster/arbor/internal/tools"
)

// Server implements the Model Context Protocol over a tools.Service. Every
// tool call (but not the initialize/tools/list handshake) is admitted
// through a Gate first, matching the request-gating requirement that spans
// every caller-facing surface.
type Server struct {
	svc       *tools.Service
	gate      *gate.Gate
	sessionID string
}

// NewServer builds a Server over svc, gating every tools/call request
// through g.
func NewServer(svc *tools.Service, g *gate.Gate) *Server {
	return &Server{svc: svc, gate: g, sessionID: uuid.New().String()}
}

// HandleRequest processes one JSON-RPC 2.0 request and returns the
// marshaled response. cred is the caller's credential, extracted by the
// transport (the stdio transport passes an environment-derived
// credential; the HTTP surface in internal/api/httpapi does not call
// HandleRequest).
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte, cred gate.Credential) []byte {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "parse error", nil)
	}
	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "invalid JSON-RPC version", nil)
	}

	var result interface{}
	var err error

	switch req.Method {
	case "initialize":
		result = MCPInitializeResult{
			ProtocolVersion: "2024-11-05",
			Capabilities:    MCPServerCapabilities{Tools: &MCPToolsCapability{}},
			ServerInfo:      MCPServerInfo{Name: "arbor", Version: "1.0.0"},
		}
	case "initialized":
		result = map[string]interface{}{}
	case "tools/list":
		result = MCPToolsListResult{Tools: toolDefinitions()}
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params, cred)
	default:
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	}

	if err != nil {
		return s.errorResponse(req.ID, ErrCodeServerError, err.Error(), nil)
	}
	return s.successResponse(req.ID, result)
}

func (s *Server) handleToolsCall(ctx context.Context, params interface{}, cred gate.Credential) (interface{}, error) {
	var p MCPToolCallParams
	if err := remarshal(params, &p); err != nil {
		return nil, err
	}

	if s.gate != nil {
		if _, err := s.gate.Admit(ctx, cred, p.Name, isSilentMode(p.Arguments)); err != nil {
			return toolError(err), nil
		}
	}

	result, err := s.dispatch(ctx, p.Name, p.Arguments)
	if err != nil {
		return toolError(err), nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return &MCPToolCallResult{Content: []MCPToolCallContent{{Type: "text", Text: string(text)}}}, nil
}

func isSilentMode(args map[string]interface{}) bool {
	v, _ := args["silent_mode"].(bool)
	return v
}

func toolError(err error) *MCPToolCallResult {
	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: err.Error()}},
		IsError: true,
	}
}

// dispatch routes one tools/call by name to its Service method, matching
// the teacher's handleToolsCall switch.
func (s *Server) dispatch(ctx context.Context, name string, rawArgs map[string]interface{}) (interface{}, error) {
	switch name {
	case "store_memory":
		var args tools.StoreMemoryArgs
		if err := remarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		return s.svc.StoreMemory(ctx, args)

	case "search_memory":
		var args tools.SearchMemoryArgs
		if err := remarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		return s.svc.SearchMemory(ctx, args)

	case "get_statistics":
		var args tools.GetStatisticsArgs
		if err := remarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		return s.svc.GetStatistics(ctx, args)

	case "what_did_you_remember":
		var args tools.WhatDidYouRememberArgs
		if err := remarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		return s.svc.WhatDidYouRemember(ctx, args)

	case "harvest_conversation":
		var args tools.HarvestConversationArgs
		if err := remarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		return s.svc.HarvestConversation(ctx, args)

	case "get_harvester_metrics":
		return s.svc.GetHarvesterMetrics(ctx)

	case "migrate_memory":
		var args tools.MigrateMemoryArgs
		if err := remarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		return s.svc.MigrateMemory(ctx, args)

	case "delete_memory":
		var args tools.DeleteMemoryArgs
		if err := remarshal(rawArgs, &args); err != nil {
			return nil, err
		}
		return s.svc.DeleteMemory(ctx, args)

	default:
		return nil, apperr.New(apperr.KindInvalid, fmt.Sprintf("unknown tool: %s", name))
	}
}

// remarshal round-trips v through JSON to convert the loosely-typed
// map[string]interface{} params JSON produces into a concrete Args struct,
// matching the teacher's handleToolsCall re-marshal step.
func remarshal(from interface{}, to interface{}) error {
	data, err := json.Marshal(from)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	if err := json.Unmarshal(data, to); err != nil {
		return fmt.Errorf("unmarshal params: %w", err)
	}
	return nil
}

func (s *Server) successResponse(id interface{}, result interface{}) []byte {
	data, err := json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Result: result, ID: id})
	if err != nil {
		log.Printf("arbor-mcp: failed to marshal success response: %v", err)
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return data
}

func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) []byte {
	resp, err := json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
		ID:      id,
	})
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return resp
}
