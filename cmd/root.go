// Package cmd implements the cbmconvert command-line surface: one binary
// that reads files in any supported Commodore container format and
// writes them to exactly one sink, per §6.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cbmconvert [flags] FILE...",
	Short: "Convert between Commodore file and disk container formats",
	Long: `cbmconvert reads files stored in any of several Commodore container
formats - native host files, PC64 .P00 wrappers, ARC/SDA archives, Lynx
archives, T64 tape images, C2N tape streams, or CBM DOS / CP/M disk images -
and writes them to a single selected sink.`,
	DisableFlagsInUseLine: true,
	RunE:                  runConvert,
}

// Execute runs the root command, exiting with the process exit codes of
// §6 on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to one of the process exit codes in §6:
// 1 usage, 2 cannot open/create sink, 3 out-of-space, 4 unexpected.
func exitCodeFor(err error) int {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "usage"):
		return 1
	case strings.Contains(msg, "open") || strings.Contains(msg, "create"):
		return 2
	case strings.Contains(msg, "disk full") || strings.Contains(msg, "out of space"):
		return 3
	default:
		return 4
	}
}
