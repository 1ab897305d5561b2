// CLAUDE:SUMMARY MCP tools — evaluate_statement, get_evaluation, list_evaluations, list_agents over kit endpoints with audit and call ledger
// Package mcp registers the factlens tools on an MCP server served over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/pkg/kit"

	"github.com/hazyhaar/factlens/internal/db"
	"github.com/hazyhaar/factlens/internal/evaluation"
	"github.com/hazyhaar/factlens/pkg/audit"
)

// Deps are the collaborators the tools need. AuditLog and Ledger are
// optional.
type Deps struct {
	Orchestrator *evaluation.Orchestrator
	DB           *db.DB
	AuditLog     audit.Logger
	Ledger       *db.MetricsDB
}

// NewServer creates an MCPServer with all factlens tools registered.
func NewServer(deps Deps, version string) *server.MCPServer {
	srv := server.NewMCPServer(
		"factlens",
		version,
		server.WithToolCapabilities(true),
	)

	registerEvaluateStatement(srv, deps)
	registerGetEvaluation(srv, deps)
	registerListEvaluations(srv, deps)
	registerListAgents(srv, deps)

	return srv
}

// wrap applies the call ledger and, when configured, the audit middleware.
func wrap(deps Deps, name string, endpoint kit.Endpoint) kit.Endpoint {
	if deps.AuditLog != nil {
		endpoint = audit.Middleware(deps.AuditLog, name)(endpoint)
	}
	if deps.Ledger != nil {
		endpoint = ledger(deps.Ledger, name)(endpoint)
	}
	return endpoint
}

func ledger(m *db.MetricsDB, tool string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, request)
			transport := kit.GetTransport(ctx)
			if transport == "" {
				transport = "stdio"
			}
			m.RecordMCPCall(tool, int(time.Since(start).Milliseconds()), err == nil, kit.GetUserID(ctx), transport)
			return resp, err
		}
	}
}

func rawSchema(properties map[string]any, required ...string) json.RawMessage {
	s := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	schema, _ := json.Marshal(s)
	return schema
}

// --- evaluate_statement ---

func evaluateEndpoint(deps Deps) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		r := request.(*evaluation.Request)
		if err := r.Validate(); err != nil {
			return nil, err
		}
		report, err := deps.Orchestrator.EvaluateStatement(ctx, r.ToStatement(), r.Context, r.Agents)
		if err != nil {
			return nil, err
		}
		if deps.DB != nil {
			if err := deps.DB.SaveReport(ctx, kit.GetUserID(ctx), report); err != nil {
				return nil, fmt.Errorf("storing evaluation: %w", err)
			}
		}
		return report, nil
	}
}

func decodeEvaluate(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	args := req.GetArguments()
	return &kit.MCPDecodeResult{Request: &evaluation.Request{
		Statement: stringArg(args, "statement"),
		Speaker:   stringArg(args, "speaker"),
		Role:      stringArg(args, "role"),
		Party:     stringArg(args, "party"),
		Where:     stringArg(args, "where"),
		When:      stringArg(args, "when"),
		Context:   stringArg(args, "context"),
		Agents:    stringsArg(args, "agents"),
	}}, nil
}

func registerEvaluateStatement(srv *server.MCPServer, deps Deps) {
	schema := rawSchema(map[string]any{
		"statement": map[string]string{"type": "string", "description": "The quoted statement to evaluate"},
		"speaker":   map[string]string{"type": "string", "description": "Who said it"},
		"role":      map[string]string{"type": "string", "description": "Speaker's role or office"},
		"party":     map[string]string{"type": "string", "description": "Speaker's party or affiliation"},
		"where":     map[string]string{"type": "string", "description": "Where it was said"},
		"when":      map[string]string{"type": "string", "description": "When it was said"},
		"context":   map[string]string{"type": "string", "description": "Additional free-text context"},
		"agents": map[string]any{"type": "array", "items": map[string]string{"type": "string"},
			"description": "Evaluator names to run; all registered evaluators when omitted"},
	}, "statement")
	tool := mcp.NewToolWithRawSchema("evaluate_statement",
		"Evaluate a public statement from several independent perspectives and synthesize a verdict", schema)

	kit.RegisterMCPTool(srv, tool, wrap(deps, "evaluate_statement", evaluateEndpoint(deps)), decodeEvaluate)
}

// --- get_evaluation ---

type getEvaluationReq struct {
	ID string `json:"id"`
}

func getEvaluationEndpoint(deps Deps) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		r := request.(*getEvaluationReq)
		if r.ID == "" {
			return nil, errors.New("id is required")
		}
		return deps.DB.GetReport(ctx, r.ID)
	}
}

func registerGetEvaluation(srv *server.MCPServer, deps Deps) {
	schema := rawSchema(map[string]any{
		"id": map[string]string{"type": "string", "description": "Evaluation ID"},
	}, "id")
	tool := mcp.NewToolWithRawSchema("get_evaluation", "Fetch a stored evaluation report by ID", schema)

	kit.RegisterMCPTool(srv, tool, wrap(deps, "get_evaluation", getEvaluationEndpoint(deps)),
		func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
			return &kit.MCPDecodeResult{Request: &getEvaluationReq{ID: stringArg(req.GetArguments(), "id")}}, nil
		})
}

// --- list_evaluations ---

type listEvaluationsReq struct {
	Verdict string `json:"verdict,omitempty"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
}

func listEvaluationsEndpoint(deps Deps) kit.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		r := request.(*listEvaluationsReq)
		f := db.ListFilter{Limit: r.Limit, Offset: r.Offset}
		if r.Verdict != "" {
			v, ok := evaluation.ParseVerdict(r.Verdict)
			if !ok {
				return nil, fmt.Errorf("unknown verdict %q", r.Verdict)
			}
			f.Verdict = v
		}
		list, err := deps.DB.ListReports(ctx, f)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []db.ReportSummary{}
		}
		return map[string]any{"evaluations": list}, nil
	}
}

func registerListEvaluations(srv *server.MCPServer, deps Deps) {
	schema := rawSchema(map[string]any{
		"verdict": map[string]string{"type": "string", "description": "Filter: TRUE, MISLEADING, FALSE or UNVERIFIABLE"},
		"limit":   map[string]string{"type": "integer", "description": "Max results (default 20)"},
		"offset":  map[string]string{"type": "integer", "description": "Pagination offset"},
	})
	tool := mcp.NewToolWithRawSchema("list_evaluations", "List stored evaluations, newest first", schema)

	kit.RegisterMCPTool(srv, tool, listEvaluationsEndpoint(deps), func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		args := req.GetArguments()
		return &kit.MCPDecodeResult{Request: &listEvaluationsReq{
			Verdict: stringArg(args, "verdict"),
			Limit:   intArg(args, "limit", 20),
			Offset:  intArg(args, "offset", 0),
		}}, nil
	})
}

// --- list_agents ---

type agentInfo struct {
	Name        string   `json:"name"`
	Perspective string   `json:"perspective,omitempty"`
	Tools       []string `json:"tools,omitempty"`
}

func listAgentsEndpoint(deps Deps) kit.Endpoint {
	return func(context.Context, any) (any, error) {
		names := deps.Orchestrator.Agents()
		agents := make([]agentInfo, 0, len(names))
		for _, name := range names {
			info := agentInfo{Name: name}
			if ev, ok := deps.Orchestrator.Evaluator(name); ok {
				if re, ok := ev.(interface{ Role() evaluation.Role }); ok {
					info.Perspective = re.Role().Perspective
					info.Tools = re.Role().Tools
				}
			}
			agents = append(agents, info)
		}
		return map[string]any{"agents": agents}, nil
	}
}

func registerListAgents(srv *server.MCPServer, deps Deps) {
	tool := mcp.NewToolWithRawSchema("list_agents", "List the registered evaluator perspectives", rawSchema(map[string]any{}))

	kit.RegisterMCPTool(srv, tool, listAgentsEndpoint(deps), func(mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	})
}

// --- helpers ---

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func stringsArg(args map[string]any, key string) []string {
	var out []string
	switch v := args[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case []string:
		out = v
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return def
	}
}
