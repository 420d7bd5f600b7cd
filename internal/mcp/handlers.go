package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/flightrecorder/internal/config"
	"github.com/hpungsan/flightrecorder/internal/db"
	"github.com/hpungsan/flightrecorder/internal/errors"
	"github.com/hpungsan/flightrecorder/internal/ops"
	"github.com/hpungsan/flightrecorder/internal/platform"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	store *db.Store
	cfg   *config.Config
	perm  platform.Permission
}

// NewHandlers creates a new Handlers instance. perm may be nil.
func NewHandlers(store *db.Store, cfg *config.Config, perm platform.Permission) *Handlers {
	return &Handlers{store: store, cfg: cfg, perm: perm}
}

// Request types for each tool

// RecentRequest represents the arguments for capture_recent.
type RecentRequest struct {
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	App            string `json:"app,omitempty"`
	Type           string `json:"type,omitempty"`
	Within         string `json:"within,omitempty"`
	IncludeContent bool   `json:"include_content,omitempty"`
}

// SearchRequest represents the arguments for capture_search.
type SearchRequest struct {
	Query          string `json:"query"`
	App            string `json:"app,omitempty"`
	Type           string `json:"type,omitempty"`
	Since          string `json:"since,omitempty"`
	Until          string `json:"until,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	IncludeContent bool   `json:"include_content,omitempty"`
}

// FetchRequest represents the arguments for capture_fetch.
type FetchRequest struct {
	ID          int64 `json:"id"`
	IncludeText *bool `json:"include_text,omitempty"`
}

// DeleteRequest represents the arguments for capture_delete.
type DeleteRequest struct {
	ID int64 `json:"id"`
}

// PruneRequest represents the arguments for capture_prune.
type PruneRequest struct {
	OlderThan string `json:"older_than,omitempty"`
	Keep      *int   `json:"keep,omitempty"`
}

// Handler implementations

// HandleRecent handles the capture_recent tool call.
func (h *Handlers) HandleRecent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RecentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var within time.Duration
	if input.Within != "" {
		if within, err = ops.ParseAge(input.Within); err != nil {
			return errorResult(err), nil
		}
	}

	result, err := ops.Recent(ctx, h.store, ops.RecentInput{
		App:            input.App,
		Type:           input.Type,
		Within:         within,
		Limit:          input.Limit,
		Offset:         input.Offset,
		IncludeContent: input.IncludeContent,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSearch handles the capture_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	now := time.Now()
	since, err := ops.ParseTime(input.Since, now)
	if err != nil {
		return errorResult(err), nil
	}
	until, err := ops.ParseTime(input.Until, now)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Search(ctx, h.store, ops.SearchInput{
		Query:          input.Query,
		App:            input.App,
		Type:           input.Type,
		Since:          since,
		Until:          until,
		Limit:          input.Limit,
		Offset:         input.Offset,
		IncludeContent: input.IncludeContent,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFetch handles the capture_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fetch(ctx, h.store, ops.FetchInput{
		ID:          input.ID,
		IncludeText: input.IncludeText,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the capture_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Delete(ctx, h.store, ops.DeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStats handles the capture_stats tool call.
func (h *Handlers) HandleStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Stats(ctx, h.store)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePrune handles the capture_prune tool call.
func (h *Handlers) HandlePrune(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PruneRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var pruneInput ops.PruneInput
	if input.OlderThan != "" {
		d, err := ops.ParseAge(input.OlderThan)
		if err != nil {
			return errorResult(err), nil
		}
		pruneInput.OlderThan = &d
	}
	pruneInput.Keep = input.Keep

	result, err := ops.Prune(ctx, h.store, h.cfg.RetentionPolicy(), pruneInput)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStatus handles the capture_status tool call.
func (h *Handlers) HandleStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Status(ctx, h.store, h.cfg, h.perm)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// decode converts the loosely typed tool arguments into a request struct
// by round-tripping them through JSON.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("invalid arguments: %w", err)
	}
	return result, nil
}

// Result helpers

// errorResult creates an MCP error result from any error.
// INTERNAL errors and errors without a code are reported with a generic
// message, so file paths and SQL text do not reach the client.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if rErr, ok := errors.As(err); ok && rErr.Code != errors.ErrInternal {
		errorObj := map[string]any{
			"code":    rErr.Code,
			"message": rErr.Message,
			"status":  rErr.Status,
		}
		if rErr.Details != nil {
			errorObj["details"] = rErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
