package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ___ _ _ _                    
  | __| (_) |_ ___ _ _ ___ __   
  | _|| | |  _/ -_) '_/ -_) _|  
  |_| |_|_|\__\___|_| \___\__|  

  Local text capture recorder

  Usage: fliterec <command> [options]
         fliterec --help

  MCP server mode requires piped input.`)
}

func main() {
	args := os.Args
	if len(args) < 2 {
		// No args + interactive terminal → show banner and exit
		if isTerminal() {
			printBanner()
			return
		}
		// MCP clients launch the binary without arguments
		args = append(args, "mcp")
	}

	app := newCLIApp(newEnv(os.Stdout))
	if err := app.Run(args); err != nil {
		if _, ok := err.(cli.ExitCoder); ok {
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}
