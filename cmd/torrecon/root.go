package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	seclog "github.com/nao1215/torrecon/internal/log"
	"github.com/spf13/cobra"
)

// exitFunc is replaced in tests.
var exitFunc = os.Exit

// NewRootCmd creates the root command for torrecon.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "torrecon",
		Short: "Run reconnaissance tools through Tor with circuit rotation",
		Long: `torrecon runs nmap and subfinder through the Tor SOCKS proxy, optionally
requests a fresh circuit per target, and records the exit identity each
command ran under.

Results are written as one JSON file per run and kept in a local history
database. Use 'torrecon check' to verify the Tor setup before scanning.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usageError(fmt.Errorf("%w\nRun '%s --help' for usage", err, c.CommandPath()))
	})

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and exits with the mapped exit code.
func Execute() {
	exitFunc(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI with args and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return exitCode(err)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the secure structured logger on the command's
// stderr and installs it as the default.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	verbose := getVerboseFlag(cmd)
	asJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		asJSON = false
	}

	var logger *slog.Logger
	if asJSON {
		logger = seclog.NewSecureJSONLogger(cmd.ErrOrStderr(), verbose)
	} else {
		logger = seclog.NewSecureLogger(cmd.ErrOrStderr(), verbose)
	}
	slog.SetDefault(logger)
	return logger
}
