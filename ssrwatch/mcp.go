package ssrwatch

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/leochiu-a/chrome-ssr-inspector/idgen"
	"github.com/leochiu-a/chrome-ssr-inspector/kit"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/internal/config"
)

// RegisterMCP registers ssrwatch tools on an MCP server. Every endpoint
// goes through the shared middleware chain: request ID assignment, then
// failure logging with the transport and page context.
func (w *Watcher) RegisterMCP(srv *mcp.Server) {
	wrap := kit.Chain(w.requestIDMiddleware(), w.errorLogMiddleware())
	w.registerObserveTool(srv, wrap)
	w.registerClassifyTool(srv, wrap)
	w.registerAggregateTool(srv, wrap)
	w.registerPhaseTool(srv, wrap)
	w.registerReportTool(srv, wrap)
	w.registerDetectTool(srv, wrap)
	w.registerStopTool(srv, wrap)
}

func (w *Watcher) requestIDMiddleware() kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			if kit.GetRequestID(ctx) == "" {
				ctx = kit.WithRequestID(ctx, idgen.New())
			}
			return next(ctx, req)
		}
	}
}

func (w *Watcher) errorLogMiddleware() kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			resp, err := next(ctx, req)
			if err != nil {
				w.logger.Warn("ssrwatch: tool call failed",
					"transport", kit.GetTransport(ctx),
					"request_id", kit.GetRequestID(ctx),
					"page_id", kit.GetPageID(ctx),
					"error", err)
			}
			return resp, err
		}
	}
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var pageIDProp = map[string]any{"type": "string", "description": "Page session identifier"}

// pageCtx stamps the page ID into the request context so middleware can
// log it without knowing the request shape.
func pageCtx(pageID string) func(context.Context) context.Context {
	return func(ctx context.Context) context.Context {
		return kit.WithPageID(ctx, pageID)
	}
}

// --- observe ---

type observeReq struct {
	PageID string `json:"page_id"`
	URL    string `json:"url"`
	Mode   string `json:"mode"`
}

func (w *Watcher) registerObserveTool(srv *mcp.Server, wrap kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "ssr_observe",
		Description: "Start render-origin classification of a page. Mode: browser (live CDP), static (single fetch), or auto.",
		InputSchema: inputSchema(map[string]any{
			"page_id": pageIDProp,
			"url":     map[string]any{"type": "string", "description": "Page URL to classify"},
			"mode":    map[string]any{"type": "string", "description": "browser | static | auto (default auto)"},
		}, []string{"page_id", "url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*observeReq)
		pageCfg := config.PageConfig{ID: r.PageID, URL: r.URL, Mode: r.Mode}
		if err := w.ObservePage(ctx, pageCfg); err != nil {
			return nil, err
		}
		phase, _ := w.Phase(r.PageID)
		return map[string]any{"status": "observing", "page_id": r.PageID, "phase": phase}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r observeReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{
			Request:   &r,
			EnrichCtx: pageCtx(r.PageID),
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint), decode)
}

// --- classify ---

type classifyReq struct {
	PageID string `json:"page_id"`
	XPath  string `json:"xpath"`
}

func (w *Watcher) registerClassifyTool(srv *mcp.Server, wrap kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "ssr_classify",
		Description: "Classify the element at an XPath as server- or client-rendered.",
		InputSchema: inputSchema(map[string]any{
			"page_id": pageIDProp,
			"xpath":   map[string]any{"type": "string", "description": "XPath of the element"},
		}, []string{"page_id", "xpath"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*classifyReq)
		tag, err := w.Classify(r.PageID, r.XPath)
		if err != nil {
			return nil, err
		}
		return map[string]any{"xpath": r.XPath, "origin": tag}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r classifyReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{
			Request:   &r,
			EnrichCtx: pageCtx(r.PageID),
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint), decode)
}

// --- aggregate ---

type pageReq struct {
	PageID string `json:"page_id"`
}

func decodePageReq(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r pageReq
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{
		Request:   &r,
		EnrichCtx: pageCtx(r.PageID),
	}, nil
}

func (w *Watcher) registerAggregateTool(srv *mcp.Server, wrap kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "ssr_aggregate",
		Description: "Count server- and client-rendered elements in the live document.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageReq)
		return w.Aggregate(ctx, r.PageID)
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint), decodePageReq)
}

// --- phase ---

func (w *Watcher) registerPhaseTool(srv *mcp.Server, wrap kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "ssr_phase",
		Description: "Report where a page session is in its classification lifecycle.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*pageReq)
		phase, err := w.Phase(r.PageID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"phase": phase}, nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint), decodePageReq)
}

// --- report ---

func (w *Watcher) registerReportTool(srv *mcp.Server, wrap kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "ssr_report",
		Description: "Build a classification report for a page: counts plus verdicts for client-rendered subtree roots.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageReq)
		return w.Report(ctx, r.PageID)
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint), decodePageReq)
}

// --- detect ---

type detectReq struct {
	URL string `json:"url"`
}

func (w *Watcher) registerDetectTool(srv *mcp.Server, wrap kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "ssr_detect",
		Description: "Fetch a URL once and judge whether its HTML is prerendered, without starting a session.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "URL to fetch"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*detectReq)
		res, err := w.Detect(ctx, r.URL)
		if err != nil {
			return nil, err
		}
		return res.Detection, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r detectReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint), decode)
}

// --- stop ---

func (w *Watcher) registerStopTool(srv *mcp.Server, wrap kit.Middleware) {
	tool := &mcp.Tool{
		Name:        "ssr_stop",
		Description: "Stop observing a page and discard its classification state.",
		InputSchema: inputSchema(map[string]any{"page_id": pageIDProp}, []string{"page_id"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*pageReq)
		if err := w.StopPage(r.PageID); err != nil {
			return nil, err
		}
		return map[string]any{"status": "stopped", "page_id": r.PageID}, nil
	}

	kit.RegisterMCPTool(srv, tool, wrap(endpoint), decodePageReq)
}
