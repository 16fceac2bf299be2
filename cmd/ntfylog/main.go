// Command ntfylog views and analyzes engine event log files.
//
// Log files are created by running ntfysub with the -event-log flag.
//
// Usage:
//
//	ntfylog <command> [flags] <file.cbor>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSONL or CSV
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	ntfylog view events.cbor
//
//	# View notification events only
//	ntfylog view -category notification events.cbor
//
//	# Export to JSONL
//	ntfylog export -format jsonl events.cbor
//
//	# Show statistics
//	ntfylog stats events.cbor
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/binwiederhier/ntfy-android-sub001/cmd/ntfylog/commands"
	"github.com/binwiederhier/ntfy-android-sub001/pkg/log"
)

const usage = `ntfylog - engine event log analyzer

Usage:
  ntfylog <command> [flags] <file.cbor>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSONL or CSV
  stats    Show statistics about the log file

Use "ntfylog <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	sub := fs.String("sub", "", "Filter by subscription ID")
	category := fs.String("category", "", "Filter by category (state, notification, registration, error)")
	fs.Parse(args)

	filter, err := buildFilter(*sub, *category)
	if err != nil {
		fatal(err)
	}
	if err := commands.RunView(requireFile(fs), filter, os.Stdout); err != nil {
		fatal(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "jsonl", "Output format: jsonl or csv")
	sub := fs.String("sub", "", "Filter by subscription ID")
	category := fs.String("category", "", "Filter by category (state, notification, registration, error)")
	fs.Parse(args)

	filter, err := buildFilter(*sub, *category)
	if err != nil {
		fatal(err)
	}
	if err := commands.RunExport(requireFile(fs), *format, filter, os.Stdout); err != nil {
		fatal(err)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Parse(args)

	if err := commands.RunStats(requireFile(fs), os.Stdout); err != nil {
		fatal(err)
	}
}

func buildFilter(sub, category string) (*log.Filter, error) {
	if sub == "" && category == "" {
		return nil, nil
	}
	filter := &log.Filter{SubscriptionID: sub}
	if category != "" {
		c, err := commands.ParseCategory(category)
		if err != nil {
			return nil, err
		}
		filter.Category = c
	}
	return filter, nil
}

func requireFile(fs *flag.FlagSet) string {
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Expected exactly one log file argument")
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
