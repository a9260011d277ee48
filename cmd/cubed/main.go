// Command cubed is the CLI surface spec §6 names: validate a schema
// directory, serve the core over a minimal dev HTTP binding, or run a
// file of query assertions. Mirrors cmd/bd's command-tree shape: a
// package-level rootCmd, persistent flags, one file per subcommand.
package main

import (
	"os"

	"github.com/spf13/cobra"

	// Backend and cache registrations — each package's init() call
	// registers itself with internal/driver or internal/cache's named
	// registry; the library (cubed.go) never imports these directly so
	// embedders can opt into only the backends they need.
	_ "github.com/cubedlayer/cubed/internal/cache/memcache"
	_ "github.com/cubedlayer/cubed/internal/cache/rediscache"
	_ "github.com/cubedlayer/cubed/internal/driver/doltdriver"
	_ "github.com/cubedlayer/cubed/internal/driver/mysqldriver"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cubed",
	Short: "cubed - semantic analytics query layer",
	Long:  `Compiles declarative analytical requests against YAML-defined cubes into SQL and executes them.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "cubed.yaml", "Path to cubed.yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a command failure to the original CLI's process
// exit codes (SPEC_FULL §12): 0 success, 1 validation/test failure,
// 2 usage error. Every RunE in this package wraps its own operational
// failures in failureError; an error that reaches here untagged is
// cobra's own arg/flag validation rejecting the invocation before
// RunE ever ran.
func exitCodeFor(err error) int {
	if ce, ok := err.(*cliError); ok {
		return ce.code
	}
	return 2
}

// cliError pins an exit code to a command failure.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func failureError(err error) error { return &cliError{code: 1, err: err} }
