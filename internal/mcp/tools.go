package mcp

import "github.com/mark3labs/mcp-go/mcp"

var recentToolDef = mcp.NewTool("capture_recent",
	mcp.WithDescription("List the most recent captured text, newest first. Use this to recover text that was lost from a crashed app or a closed form."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithNumber("limit", mcp.Description("Maximum items to return (default 20, max 100)"), mcp.Min(1), mcp.Max(100)),
	mcp.WithNumber("offset", mcp.Description("Items to skip for pagination"), mcp.Min(0)),
	mcp.WithString("app", mcp.Description("Only captures from this application (exact name)")),
	mcp.WithString("type", mcp.Description("Only captures of this type"), mcp.Enum("clipboard", "text_field", "keystroke")),
	mcp.WithString("within", mcp.Description("Only captures newer than this age, e.g. 30m, 2h, 7d")),
	mcp.WithBoolean("include_content", mcp.Description("Include the full captured text (default: preview only)")),
)

var searchToolDef = mcp.NewTool("capture_search",
	mcp.WithDescription("Search captured text for a case-insensitive substring, newest first. Each result carries an HTML-escaped snippet with the match in <b> tags."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("query", mcp.Required(), mcp.Description("Text to find")),
	mcp.WithString("app", mcp.Description("Only captures from this application (exact name)")),
	mcp.WithString("type", mcp.Description("Only captures of this type"), mcp.Enum("clipboard", "text_field", "keystroke")),
	mcp.WithString("since", mcp.Description("Lower time bound: RFC 3339, YYYY-MM-DD, or an age like 2h")),
	mcp.WithString("until", mcp.Description("Upper time bound: RFC 3339, YYYY-MM-DD, or an age like 2h")),
	mcp.WithNumber("limit", mcp.Description("Maximum items to return (default 20, max 100)"), mcp.Min(1), mcp.Max(100)),
	mcp.WithNumber("offset", mcp.Description("Items to skip for pagination"), mcp.Min(0)),
	mcp.WithBoolean("include_content", mcp.Description("Include the full captured text")),
)

var fetchToolDef = mcp.NewTool("capture_fetch",
	mcp.WithDescription("Fetch one capture by ID, including its full text."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Capture ID")),
	mcp.WithBoolean("include_text", mcp.Description("Include the captured text (default true)")),
)

var deleteToolDef = mcp.NewTool("capture_delete",
	mcp.WithDescription("Permanently delete one capture by ID."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Capture ID")),
)

var statsToolDef = mcp.NewTool("capture_stats",
	mcp.WithDescription("Report the number of stored captures, their time range, database size, and counts per type and application."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var pruneToolDef = mcp.NewTool("capture_prune",
	mcp.WithDescription("Delete old captures using the configured retention limits, or the given overrides."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("older_than", mcp.Description("Delete captures older than this age, e.g. 7d")),
	mcp.WithNumber("keep", mcp.Description("Keep only this many newest captures"), mcp.Min(0)),
)

var statusToolDef = mcp.NewTool("capture_status",
	mcp.WithDescription("Show which monitors are enabled, whether accessibility permission is granted, the privacy mode, and store statistics."),
	mcp.WithReadOnlyHintAnnotation(true),
)
