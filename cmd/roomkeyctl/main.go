// Command roomkeyctl inspects and maintains a persistent room-key sharing
// registry.
//
// Usage:
//
//	roomkeyctl records --db PATH --session ID     List sharing records
//	roomkeyctl invalidate --db PATH --session ID  Drop a retired session's records
//	roomkeyctl decide ...                         Dry-run a forwarding decision
package main

import (
	"fmt"
	"log"
	"os"

	flags "github.com/jessevdk/go-flags"

	"roomkeyshare/internal/registry"
)

type globalOpts struct {
	DB      string `long:"db" description:"Path to the registry database file"`
	Verbose bool   `short:"v" long:"verbose" description:"Enable verbose logging"`

	Records    recordsCommand    `command:"records" description:"List sharing records for a session"`
	Invalidate invalidateCommand `command:"invalidate" description:"Discard all records for a retired session"`
	Decide     decideCommand     `command:"decide" description:"Dry-run a forwarding decision against the registry"`
}

var opts globalOpts

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.SubcommandsOptional = false

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

// verboseLogger returns a stderr logger when --verbose is set, nil otherwise.
func verboseLogger() *log.Logger {
	if opts.Verbose {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return nil
}

// logf logs a message if the logger is non-nil.
func logf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}

// openRegistry opens the registry database named by --db.
func openRegistry() *registry.SQLite {
	if opts.DB == "" {
		fmt.Fprintln(os.Stderr, "Error: --db is required")
		os.Exit(1)
	}
	reg, err := registry.OpenSQLite(opts.DB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logf(verboseLogger(), "opened registry %s", opts.DB)
	return reg
}
