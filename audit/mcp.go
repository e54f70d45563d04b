package audit

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/siteaudit/kit"
)

// RegisterMCP registers all audit tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerStartAudit(srv)
	s.registerAuditStatus(srv)
	s.registerAuditIssues(srv)
	s.registerListRuns(srv)
	s.registerDiffRuns(srv)
	s.registerTriageSetState(srv)
	s.registerTriageSetMeta(srv)
	s.registerTriageGet(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func decodeInto[T any]() func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		p := new(T)
		if err := json.Unmarshal(r.Params.Arguments, p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: p}, nil
	}
}

// --- Jobs ---

func (s *Service) registerStartAudit(srv *mcp.Server) {
	type req struct {
		URL         string   `json:"url"`
		MaxDepth    int      `json:"max_depth"`
		MaxPages    int      `json:"max_pages"`
		Perf        bool     `json:"perf"`
		A11y        bool     `json:"a11y"`
		Journeys    bool     `json:"journeys"`
		Competitors []string `json:"competitors"`
	}

	tool := &mcp.Tool{
		Name:        "audit_start",
		Description: "Start an asynchronous website audit and return the queued job",
		InputSchema: inputSchema(map[string]any{
			"url":         map[string]any{"type": "string", "description": "Target site URL (http/https)"},
			"max_depth":   map[string]any{"type": "integer", "description": "Crawl depth limit"},
			"max_pages":   map[string]any{"type": "integer", "description": "Crawl page limit"},
			"perf":        map[string]any{"type": "boolean", "description": "Run the performance stage"},
			"a11y":        map[string]any{"type": "boolean", "description": "Run the accessibility stage"},
			"journeys":    map[string]any{"type": "boolean", "description": "Run scripted user journeys"},
			"competitors": map[string]any{"type": "array", "description": "Competitor homepage URLs to benchmark"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.StartAudit(p.URL, JobOptions{
			MaxDepth:    p.MaxDepth,
			MaxPages:    p.MaxPages,
			Perf:        p.Perf,
			A11y:        p.A11y,
			Journeys:    p.Journeys,
			Competitors: p.Competitors,
		})
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (s *Service) registerAuditStatus(srv *mcp.Server) {
	type req struct {
		JobID string `json:"job_id"`
	}

	tool := &mcp.Tool{
		Name:        "audit_status",
		Description: "Get the status, stage, and progress of an audit job",
		InputSchema: inputSchema(map[string]any{
			"job_id": map[string]any{"type": "string", "description": "Job ID"},
		}, []string{"job_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return s.Job(r.(*req).JobID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (s *Service) registerAuditIssues(srv *mcp.Server) {
	type req struct {
		JobID string `json:"job_id"`
	}

	tool := &mcp.Tool{
		Name:        "audit_issues",
		Description: "Get the ranked issue backlog of a completed audit job",
		InputSchema: inputSchema(map[string]any{
			"job_id": map[string]any{"type": "string", "description": "Job ID"},
		}, []string{"job_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return s.Issues(r.(*req).JobID)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

// --- Run history ---

func (s *Service) registerListRuns(srv *mcp.Server) {
	type req struct {
		Origin string `json:"origin"`
	}

	tool := &mcp.Tool{
		Name:        "runs_list",
		Description: "List recorded audit runs, newest first, optionally filtered by site origin",
		InputSchema: inputSchema(map[string]any{
			"origin": map[string]any{"type": "string", "description": "Site origin filter, e.g. https://example.com"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return s.ListRuns(ctx, r.(*req).Origin)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (s *Service) registerDiffRuns(srv *mcp.Server) {
	type req struct {
		RunA string `json:"run_a"`
		RunB string `json:"run_b"`
	}

	tool := &mcp.Tool{
		Name:        "runs_diff",
		Description: "Diff the issue digests of two recorded runs: added, removed, unchanged",
		InputSchema: inputSchema(map[string]any{
			"run_a": map[string]any{"type": "string", "description": "Baseline run ID"},
			"run_b": map[string]any{"type": "string", "description": "Comparison run ID"},
		}, []string{"run_a", "run_b"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.DiffRuns(ctx, p.RunA, p.RunB)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

// --- Triage ---

func (s *Service) registerTriageSetState(srv *mcp.Server) {
	type req struct {
		Digest string `json:"digest"`
		State  string `json:"state"`
	}

	tool := &mcp.Tool{
		Name:        "triage_set_state",
		Description: "Set or clear the triage disposition of an issue digest (accepted, wont-fix, needs-design, planned, in-progress, done; empty clears)",
		InputSchema: inputSchema(map[string]any{
			"digest": map[string]any{"type": "string", "description": "Issue digest"},
			"state":  map[string]any{"type": "string", "description": "Disposition, empty string to clear"},
		}, []string{"digest"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		var state *TriageState
		if p.State != "" {
			v := TriageState(p.State)
			state = &v
		}
		if err := s.SetTriageState(ctx, p.Digest, state); err != nil {
			return nil, err
		}
		return map[string]string{"digest": p.Digest, "state": p.State}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (s *Service) registerTriageSetMeta(srv *mcp.Server) {
	type req struct {
		Digest        string   `json:"digest"`
		Owner         *string  `json:"owner"`
		EstimateHours *float64 `json:"estimate_hours"`
		Notes         *string  `json:"notes"`
	}

	tool := &mcp.Tool{
		Name:        "triage_set_meta",
		Description: "Merge owner, estimate, or notes into an issue digest's triage record; omitted fields are untouched",
		InputSchema: inputSchema(map[string]any{
			"digest":         map[string]any{"type": "string", "description": "Issue digest"},
			"owner":          map[string]any{"type": "string", "description": "Owning person or team"},
			"estimate_hours": map[string]any{"type": "number", "description": "Effort estimate in hours"},
			"notes":          map[string]any{"type": "string", "description": "Free-form notes"},
		}, []string{"digest"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		update := TriageUpdate{Owner: p.Owner, EstimateHours: p.EstimateHours, Notes: p.Notes}
		if err := s.SetTriageMeta(ctx, p.Digest, update); err != nil {
			return nil, err
		}
		return map[string]string{"digest": p.Digest}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}

func (s *Service) registerTriageGet(srv *mcp.Server) {
	type req struct {
		Digests []string `json:"digests"`
	}

	tool := &mcp.Tool{
		Name:        "triage_get",
		Description: "Get triage records for a set of issue digests; unknown digests are absent",
		InputSchema: inputSchema(map[string]any{
			"digests": map[string]any{"type": "array", "description": "Issue digests to look up"},
		}, []string{"digests"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return s.GetTriageMeta(ctx, r.(*req).Digests)
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeInto[req]())
}
