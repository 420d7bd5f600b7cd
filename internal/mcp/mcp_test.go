package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/flightrecorder/internal/capture"
	"github.com/hpungsan/flightrecorder/internal/config"
	"github.com/hpungsan/flightrecorder/internal/db"
	"github.com/hpungsan/flightrecorder/internal/errors"
	"github.com/hpungsan/flightrecorder/internal/platform/platformtest"
)

// testSetup creates a temporary store, config, and handlers for testing.
func testSetup(t *testing.T) (*db.Store, *config.Config, *Handlers) {
	t.Helper()

	store, err := db.Open(filepath.Join(t.TempDir(), "captures.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.DefaultConfig()
	return store, cfg, NewHandlers(store, cfg, platformtest.NewPermission(false))
}

// insert stores a capture and returns its ID.
func insert(t *testing.T, store *db.Store, content, app string, ts time.Time) int64 {
	t.Helper()
	var appPtr *string
	if app != "" {
		appPtr = &app
	}
	c := capture.New(capture.TypeClipboard, content, appPtr)
	c.Timestamp = ts
	id, ok, err := store.Insert(context.Background(), c)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if !ok {
		t.Fatalf("Insert of %q was deduplicated", content)
	}
	return id
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleRecent(t *testing.T) {
	store, _, h := testSetup(t)
	now := time.Now().UTC()
	insert(t, store, "older", "Notes", now.Add(-3*time.Hour))
	insert(t, store, "newer", "Mail", now.Add(-time.Minute))

	result, err := h.HandleRecent(context.Background(), makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("HandleRecent error: %v", err)
	}
	output := parseOutput(t, result)
	items := output["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	first := items[0].(map[string]any)
	if first["preview"] != "newer" {
		t.Errorf("first preview = %v, want newer", first["preview"])
	}
	if _, ok := first["content"]; ok {
		t.Error("content should be omitted by default")
	}

	result, err = h.HandleRecent(context.Background(), makeRequest(map[string]any{
		"within":          "1h",
		"include_content": true,
	}))
	if err != nil {
		t.Fatalf("HandleRecent error: %v", err)
	}
	output = parseOutput(t, result)
	items = output["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["content"] != "newer" {
		t.Errorf("within filter returned %v", items)
	}

	result, _ = h.HandleRecent(context.Background(), makeRequest(map[string]any{"within": "later"}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h.HandleRecent(context.Background(), makeRequest(map[string]any{"limit": "ten"}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleSearch(t *testing.T) {
	store, _, h := testSetup(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	insert(t, store, "meeting notes <draft>", "Notes", base)
	insert(t, store, "grocery list", "Notes", base.Add(time.Hour))

	result, err := h.HandleSearch(context.Background(), makeRequest(map[string]any{"query": "NOTES"}))
	if err != nil {
		t.Fatalf("HandleSearch error: %v", err)
	}
	output := parseOutput(t, result)
	items := output["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	snippet := items[0].(map[string]any)["snippet"].(string)
	if snippet != "meeting <b>notes</b> &lt;draft&gt;" {
		t.Errorf("snippet = %q", snippet)
	}

	result, err = h.HandleSearch(context.Background(), makeRequest(map[string]any{
		"query": "list",
		"since": "2026-03-01T12:30:00Z",
		"until": "2026-03-02",
	}))
	if err != nil {
		t.Fatalf("HandleSearch error: %v", err)
	}
	output = parseOutput(t, result)
	if total := output["pagination"].(map[string]any)["total"].(float64); total != 1 {
		t.Errorf("total = %v, want 1", total)
	}

	result, _ = h.HandleSearch(context.Background(), makeRequest(map[string]any{}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h.HandleSearch(context.Background(), makeRequest(map[string]any{"query": "x", "since": "whenever"}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleFetch(t *testing.T) {
	store, _, h := testSetup(t)
	id := insert(t, store, "full text here", "Notes", time.Now().UTC())

	result, err := h.HandleFetch(context.Background(), makeRequest(map[string]any{"id": float64(id)}))
	if err != nil {
		t.Fatalf("HandleFetch error: %v", err)
	}
	output := parseOutput(t, result)
	if output["content"] != "full text here" {
		t.Errorf("content = %v", output["content"])
	}
	if output["source_app"] != "Notes" {
		t.Errorf("source_app = %v", output["source_app"])
	}
	if output["content_hash"] != capture.Hash("full text here") {
		t.Errorf("content_hash = %v", output["content_hash"])
	}

	result, err = h.HandleFetch(context.Background(), makeRequest(map[string]any{"id": float64(id), "include_text": false}))
	if err != nil {
		t.Fatalf("HandleFetch error: %v", err)
	}
	output = parseOutput(t, result)
	if output["content"] != "" {
		t.Errorf("content = %v, want empty", output["content"])
	}

	result, _ = h.HandleFetch(context.Background(), makeRequest(map[string]any{"id": 9999}))
	assertErrorCode(t, result, "NOT_FOUND")

	result, _ = h.HandleFetch(context.Background(), makeRequest(map[string]any{}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleDelete(t *testing.T) {
	store, _, h := testSetup(t)
	id := insert(t, store, "delete me", "", time.Now().UTC())

	result, err := h.HandleDelete(context.Background(), makeRequest(map[string]any{"id": id}))
	if err != nil {
		t.Fatalf("HandleDelete error: %v", err)
	}
	output := parseOutput(t, result)
	if output["deleted"] != true {
		t.Errorf("deleted = %v, want true", output["deleted"])
	}

	result, _ = h.HandleDelete(context.Background(), makeRequest(map[string]any{"id": id}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandlePrune(t *testing.T) {
	store, cfg, h := testSetup(t)
	now := time.Now().UTC()
	insert(t, store, "new", "", now.Add(-time.Minute))
	insert(t, store, "old", "", now.Add(-10*24*time.Hour))
	insert(t, store, "ancient", "", now.Add(-60*24*time.Hour))

	// Configured policy: 30 days
	result, err := h.HandlePrune(context.Background(), makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("HandlePrune error: %v", err)
	}
	output := parseOutput(t, result)
	if output["pruned"].(float64) != 1 {
		t.Errorf("pruned = %v, want 1 (max_age_days=%d)", output["pruned"], cfg.Storage.MaxAgeDays)
	}

	result, err = h.HandlePrune(context.Background(), makeRequest(map[string]any{"older_than": "7d"}))
	if err != nil {
		t.Fatalf("HandlePrune error: %v", err)
	}
	output = parseOutput(t, result)
	if output["pruned"].(float64) != 1 {
		t.Errorf("pruned = %v, want 1", output["pruned"])
	}

	result, _ = h.HandlePrune(context.Background(), makeRequest(map[string]any{"older_than": "a while"}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h.HandlePrune(context.Background(), makeRequest(map[string]any{"keep": -1}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleStatsAndStatus(t *testing.T) {
	store, _, h := testSetup(t)
	insert(t, store, "x", "Notes", time.Now().UTC())

	result, err := h.HandleStats(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("HandleStats error: %v", err)
	}
	output := parseOutput(t, result)
	if output["total_captures"].(float64) != 1 {
		t.Errorf("total_captures = %v, want 1", output["total_captures"])
	}

	result, err = h.HandleStatus(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("HandleStatus error: %v", err)
	}
	output = parseOutput(t, result)
	if output["accessibility_permission"] != false {
		t.Errorf("accessibility_permission = %v, want false", output["accessibility_permission"])
	}
	if output["privacy_mode"] != "block" {
		t.Errorf("privacy_mode = %v, want block", output["privacy_mode"])
	}
	storeObj := output["store"].(map[string]any)
	if storeObj["total_captures"].(float64) != 1 {
		t.Errorf("store.total_captures = %v, want 1", storeObj["total_captures"])
	}
}

func TestServerRegistration(t *testing.T) {
	store, cfg, _ := testSetup(t)

	s := NewServer(store, cfg, nil, "test")
	tools := s.ListTools()

	expected := AllToolNames()
	if len(tools) != len(expected) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expected))
	}
	for _, name := range expected {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	store, cfg, _ := testSetup(t)

	cfg.MCP.DisabledTools = []string{"capture_delete", "capture_prune", "capture_prune"}
	s := NewServer(store, cfg, nil, "test")
	tools := s.ListTools()

	if len(tools) != len(toolRegistry)-2 {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(toolRegistry)-2)
	}
	for _, name := range []string{"capture_delete", "capture_prune"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
	if _, ok := tools["capture_recent"]; !ok {
		t.Error("capture_recent should be registered")
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	store, cfg, _ := testSetup(t)

	cfg.MCP.DisabledTools = AllToolNames()
	s := NewServer(store, cfg, nil, "test")

	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0", len(tools))
	}
}

func TestToolDefinitionsMatchRegistry(t *testing.T) {
	for name, entry := range toolRegistry {
		if entry.def.Name != name {
			t.Errorf("registry key %q has tool name %q", name, entry.def.Name)
		}
		if !strings.HasPrefix(name, "capture_") {
			t.Errorf("tool %q should use the capture_ prefix", name)
		}
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{"all valid", []string{"capture_prune", "capture_delete"}, 0},
		{"one unknown", []string{"capture_prune", "capsule_store"}, 1},
		{"all unknown", []string{"foo", "bar"}, 2},
		{"empty list", []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if unknown := ValidateDisabledTools(tt.input); len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
	if strings.Contains(errObj["message"].(string), "secret.db") {
		t.Fatal("internal message leaked the cause")
	}
}

func TestErrorResult_WrappedError(t *testing.T) {
	r := errorResult(fmt.Errorf("fetch: %w", errors.NewNotFound("42")))

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrNotFound) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Error("expected non-INTERNAL errors to include details when present")
	}
}

func TestErrorResult_PlainError(t *testing.T) {
	r := errorResult(context.Canceled)

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Errorf("code=%v, want INTERNAL", errObj["code"])
	}
	if errObj["status"].(float64) != 500 {
		t.Errorf("status=%v, want 500", errObj["status"])
	}
}

// Helper functions

func errorObject(t *testing.T, r *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	return payload["error"].(map[string]any)
}

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if result == nil || !result.IsError {
		t.Errorf("expected error result with code %s", expectedCode)
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	if code, _ := errorObj["code"].(string); code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
