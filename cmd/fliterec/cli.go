package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/flightrecorder/internal/config"
	"github.com/hpungsan/flightrecorder/internal/db"
	"github.com/hpungsan/flightrecorder/internal/errors"
	"github.com/hpungsan/flightrecorder/internal/logging"
	"github.com/hpungsan/flightrecorder/internal/mcp"
	"github.com/hpungsan/flightrecorder/internal/ops"
	"github.com/hpungsan/flightrecorder/internal/platform"
)

// env holds what the commands share. Fields left nil are loaded on first
// use from the base directory, so help and config commands never open the
// database.
type env struct {
	out      io.Writer
	baseDir  string
	cfg      *config.Config
	store    *db.Store
	platform *platform.Platform

	// levelFromFlags is set by -v or -q and wins over logging.level.
	levelFromFlags bool
	// ownsStore is set when openStore opened the store, so close releases it.
	ownsStore bool
}

func newEnv(out io.Writer) *env {
	return &env{out: out}
}

// config loads the configuration from the base directory.
func (e *env) config() (*config.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := config.Load(e.baseDir)
	if err != nil {
		return nil, errors.NewConfigInvalid(err.Error())
	}
	if !e.levelFromFlags {
		if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
			logging.SetLevel(level)
		}
	}
	e.cfg = cfg
	return cfg, nil
}

// openStore opens the capture database named by the configuration.
func (e *env) openStore() (*db.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	store, err := db.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	db.ConfigurePool(store, cfg)
	e.store = store
	e.ownsStore = true
	return store, nil
}

func (e *env) sys() *platform.Platform {
	if e.platform == nil {
		e.platform = platform.Default()
	}
	return e.platform
}

func (e *env) close() {
	if e.store != nil && e.ownsStore {
		_ = e.store.Close()
		e.store = nil
		e.ownsStore = false
	}
}

func init() {
	// -v is taken by --verbose
	cli.VersionFlag = &cli.BoolFlag{Name: "version", Usage: "print the version"}
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(e *env) *cli.App {
	app := &cli.App{
		Name:    "fliterec",
		Usage:   "Local text capture recorder",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Log debug output"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Log errors only"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, EnvVars: []string{config.EnvPrefix + "HOME"}, Usage: "Base directory holding config.yaml and captures.db (default: ~/.flightrecorder)"},
		},
		Before: func(c *cli.Context) error {
			switch {
			case c.Bool("verbose"):
				logging.SetLevel(logging.LevelDebug)
				e.levelFromFlags = true
			case c.Bool("quiet"):
				logging.SetLevel(logging.LevelError)
				e.levelFromFlags = true
			}

			if e.baseDir != "" {
				return nil
			}
			if dir := c.String("config"); dir != "" {
				e.baseDir = dir
				return nil
			}
			dir, err := config.DefaultBaseDir()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			e.baseDir = dir
			return nil
		},
		After: func(*cli.Context) error {
			e.close()
			return nil
		},
		Commands: []*cli.Command{
			daemonCmd(e),
			statusCmd(e),
			recentCmd(e),
			searchCmd(e),
			showCmd(e),
			deleteCmd(e),
			pruneCmd(e),
			statsCmd(e),
			exportCmd(e),
			configCmd(e),
			permissionCmd(e),
			mcpCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// daemonCmd creates the daemon command.
func daemonCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Record clipboard and text field changes until interrupted",
		Action: func(c *cli.Context) error {
			cfg, err := e.config()
			if err != nil {
				return outputError(err)
			}
			if err := cfg.Validate(); err != nil {
				return outputError(errors.NewConfigInvalid(err.Error()))
			}
			if cfg.Logging.Dir != "" {
				level, _ := logging.ParseLevel(cfg.Logging.Level)
				if e.levelFromFlags {
					level = currentLevel(c)
				}
				if err := logging.Configure(level, cfg.Logging.Dir); err != nil {
					logging.New("daemon").Warnf("%v", err)
				}
				defer logging.Close()
			}

			store, err := e.openStore()
			if err != nil {
				return outputError(err)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := runDaemon(ctx, store, cfg, e.sys()); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// statusCmd creates the status command.
func statusCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show configuration, permission state, and store statistics",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output JSON"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := e.config()
			if err != nil {
				return outputError(err)
			}
			store, err := e.openStore()
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Status(c.Context, store, cfg, e.sys().Permission)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("json") {
				return outputJSON(e.out, output)
			}
			printStatus(e.out, output)
			return nil
		},
	}
}

// recentCmd creates the recent command. "recover" is the same command with
// --to-clipboard in mind.
func recentCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:    "recent",
		Aliases: []string{"recover"},
		Usage:   "List the most recent captures",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "last", Aliases: []string{"n"}, Value: 10, Usage: "Number of captures to show"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Captures to skip"},
			&cli.StringFlag{Name: "app", Aliases: []string{"a"}, Usage: "Only captures from this application"},
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Capture type: clipboard|text_field"},
			&cli.StringFlag{Name: "since", Aliases: []string{"s"}, Usage: "Only captures newer than this age (e.g., 30m, 2h, 7d)"},
			&cli.BoolFlag{Name: "full", Usage: "Include the full text"},
			&cli.BoolFlag{Name: "to-clipboard", Usage: "Copy the newest matching capture to the clipboard"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: formatPlain, Usage: "Output format: plain|table|json"},
		},
		Action: func(c *cli.Context) error {
			format, err := parseOutputFormat(c.String("format"))
			if err != nil {
				return outputError(err)
			}

			input := ops.RecentInput{
				App:            c.String("app"),
				Type:           c.String("type"),
				Limit:          c.Int("last"),
				Offset:         c.Int("offset"),
				IncludeContent: c.Bool("full") || c.Bool("to-clipboard"),
			}
			if since := c.String("since"); since != "" {
				within, err := ops.ParseAge(since)
				if err != nil {
					return outputError(err)
				}
				input.Within = within
			}

			store, err := e.openStore()
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Recent(c.Context, store, input)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("to-clipboard") {
				if len(output.Items) == 0 {
					return outputError(errors.NewNotFound("no capture matches the filters"))
				}
				newest := output.Items[0]
				if err := e.sys().ClipboardWriter.WriteText(newest.Content); err != nil {
					return outputError(errors.NewInternal(fmt.Errorf("failed to write clipboard: %w", err)))
				}
				fmt.Fprintf(e.out, "Copied capture #%d (%d chars) to the clipboard\n", newest.ID, newest.Chars)
				return nil
			}

			if format == formatJSON {
				return outputJSON(e.out, output)
			}
			rows := make([]row, len(output.Items))
			for i, item := range output.Items {
				rows[i] = row{item: item}
			}
			printRows(e.out, format, rows, output.Pagination)
			return nil
		},
	}
}

// searchCmd creates the search command.
func searchCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find captures containing text (case-insensitive)",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "app", Aliases: []string{"a"}, Usage: "Only captures from this application"},
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Capture type: clipboard|text_field"},
			&cli.StringFlag{Name: "since", Aliases: []string{"s"}, Usage: "Start time: RFC 3339, YYYY-MM-DD, or an age like 7d"},
			&cli.StringFlag{Name: "until", Aliases: []string{"u"}, Usage: "End time: RFC 3339, YYYY-MM-DD, or an age like 1h"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Results to skip"},
			&cli.BoolFlag{Name: "full", Usage: "Include the full text"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: formatPlain, Usage: "Output format: plain|table|json"},
		},
		Action: func(c *cli.Context) error {
			format, err := parseOutputFormat(c.String("format"))
			if err != nil {
				return outputError(err)
			}

			now := time.Now()
			since, err := ops.ParseTime(c.String("since"), now)
			if err != nil {
				return outputError(err)
			}
			until, err := ops.ParseTime(c.String("until"), now)
			if err != nil {
				return outputError(err)
			}

			store, err := e.openStore()
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Search(c.Context, store, ops.SearchInput{
				Query:          strings.Join(c.Args().Slice(), " "),
				App:            c.String("app"),
				Type:           c.String("type"),
				Since:          since,
				Until:          until,
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeContent: c.Bool("full"),
			})
			if err != nil {
				return outputError(err)
			}

			if format == formatJSON {
				return outputJSON(e.out, output)
			}
			rows := make([]row, len(output.Items))
			for i, item := range output.Items {
				rows[i] = row{item: item.Item, snippet: plainSnippet(item.Snippet)}
			}
			printRows(e.out, format, rows, output.Pagination)
			return nil
		},
	}
}

// showCmd creates the show command.
func showCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print one capture",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output JSON"},
			&cli.BoolFlag{Name: "to-clipboard", Usage: "Copy the capture to the clipboard"},
		},
		Action: func(c *cli.Context) error {
			id, err := ops.ParseID(c.Args().First())
			if err != nil {
				return outputError(err)
			}
			store, err := e.openStore()
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Fetch(c.Context, store, ops.FetchInput{ID: id})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("to-clipboard") {
				if err := e.sys().ClipboardWriter.WriteText(output.Content); err != nil {
					return outputError(errors.NewInternal(fmt.Errorf("failed to write clipboard: %w", err)))
				}
			}
			if c.Bool("json") {
				return outputJSON(e.out, output)
			}
			printCapture(e.out, output)
			return nil
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Permanently delete a capture",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := ops.ParseID(c.Args().First())
			if err != nil {
				return outputError(err)
			}
			store, err := e.openStore()
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Delete(c.Context, store, ops.DeleteInput{ID: id})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(e.out, output)
		},
	}
}

// pruneCmd creates the prune command.
func pruneCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Apply the retention limits now",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Delete captures older than this age instead of storage.max_age_days (e.g., 7d)"},
			&cli.IntFlag{Name: "keep", Usage: "Keep only this many newest captures instead of storage.max_captures"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := e.config()
			if err != nil {
				return outputError(err)
			}

			var input ops.PruneInput
			if olderThan := c.String("older-than"); olderThan != "" {
				d, err := ops.ParseAge(olderThan)
				if err != nil {
					return outputError(err)
				}
				input.OlderThan = &d
			}
			if c.IsSet("keep") {
				keep := c.Int("keep")
				input.Keep = &keep
			}

			store, err := e.openStore()
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Prune(c.Context, store, cfg.RetentionPolicy(), input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(e.out, output)
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show capture counts, time range, and database size",
		Action: func(c *cli.Context) error {
			store, err := e.openStore()
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Stats(c.Context, store)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(e.out, output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export captures to a JSONL file or an HTML report",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: <base>/exports/captures-<timestamp>.<ext>)"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: string(ops.FormatJSONL), Usage: "Export format: jsonl|html"},
			&cli.StringFlag{Name: "app", Aliases: []string{"a"}, Usage: "Only captures from this application"},
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Capture type: clipboard|text_field"},
			&cli.StringFlag{Name: "since", Aliases: []string{"s"}, Usage: "Start time: RFC 3339, YYYY-MM-DD, or an age like 7d"},
		},
		Action: func(c *cli.Context) error {
			format, err := ops.ParseExportFormat(c.String("format"))
			if err != nil {
				return outputError(err)
			}
			since, err := ops.ParseTime(c.String("since"), time.Now())
			if err != nil {
				return outputError(err)
			}

			store, err := e.openStore()
			if err != nil {
				return outputError(err)
			}
			output, err := ops.Export(c.Context, store, ops.ExportInput{
				Path:   c.String("path"),
				Dir:    ops.ExportsDir(e.baseDir),
				Format: format,
				App:    c.String("app"),
				Type:   c.String("type"),
				Since:  since,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(e.out, output)
		},
	}
}

// configCmd creates the config command and its subcommands.
func configCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect or reset the configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the effective configuration",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "yaml", Usage: "Output format: yaml|json"},
				},
				Action: func(c *cli.Context) error {
					format := strings.ToLower(c.String("format"))
					if format != "yaml" && format != "json" {
						return outputError(errors.NewInvalidRequest(fmt.Sprintf("unknown config format %q (expected yaml or json)", format)))
					}
					cfg, err := e.config()
					if err != nil {
						return outputError(err)
					}
					data, err := cfg.Marshal(format)
					if err != nil {
						return outputError(errors.NewInternal(err))
					}
					_, err = e.out.Write(data)
					if err == nil && format == "json" {
						_, err = io.WriteString(e.out, "\n")
					}
					return err
				},
			},
			{
				Name:  "path",
				Usage: "Print the config file path",
				Action: func(_ *cli.Context) error {
					fmt.Fprintln(e.out, config.Path(e.baseDir))
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Check the configuration for errors",
				Action: func(_ *cli.Context) error {
					cfg, err := e.config()
					if err != nil {
						return outputError(err)
					}
					if err := cfg.Validate(); err != nil {
						return outputError(errors.NewConfigInvalid(err.Error()))
					}
					if unknown := mcp.ValidateDisabledTools(cfg.MCP.DisabledTools); len(unknown) > 0 {
						return outputError(errors.NewConfigInvalid(fmt.Sprintf("mcp.disabled_tools: unknown tools %s (valid: %s)",
							strings.Join(unknown, ", "), strings.Join(mcp.AllToolNames(), ", "))))
					}
					fmt.Fprintf(e.out, "Configuration OK (%s)\n", config.Path(e.baseDir))
					return nil
				},
			},
			{
				Name:  "reset",
				Usage: "Overwrite the config file with the defaults",
				Action: func(_ *cli.Context) error {
					path := config.Path(e.baseDir)
					if err := config.DefaultConfig().Save(path); err != nil {
						return outputError(errors.NewInternal(err))
					}
					fmt.Fprintf(e.out, "Wrote default configuration to %s\n", path)
					return nil
				},
			},
		},
	}
}

// permissionCmd creates the permission command.
func permissionCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "permission",
		Usage: "Show or request the accessibility permission used for text field capture",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "request", Usage: "Ask the OS for the permission (may open system settings)"},
		},
		Action: func(c *cli.Context) error {
			perm := e.sys().Permission

			granted := perm.IsGranted()
			if c.Bool("request") && !granted {
				granted = perm.Request()
			}

			if granted {
				fmt.Fprintln(e.out, "Accessibility permission: granted")
				return nil
			}
			fmt.Fprintln(e.out, "Accessibility permission: not granted")
			fmt.Fprintln(e.out, perm.Instructions())
			return nil
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the capture tools over MCP stdio",
		Action: func(_ *cli.Context) error {
			cfg, err := e.config()
			if err != nil {
				return outputError(err)
			}
			if unknown := mcp.ValidateDisabledTools(cfg.MCP.DisabledTools); len(unknown) > 0 {
				logging.New("mcp").Warnf("ignoring unknown tools in mcp.disabled_tools: %s", strings.Join(unknown, ", "))
			}
			store, err := e.openStore()
			if err != nil {
				return outputError(err)
			}
			if err := mcp.Run(store, cfg, e.sys().Permission, Version); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// currentLevel maps the global verbosity flags to a level.
func currentLevel(c *cli.Context) logging.Level {
	switch {
	case c.Bool("verbose"):
		return logging.LevelDebug
	case c.Bool("quiet"):
		return logging.LevelError
	}
	return logging.LevelInfo
}

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if rErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", rErr.Code, rErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
