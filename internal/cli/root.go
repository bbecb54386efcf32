// Package cli implements the shelf command-line interface.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/cardshelf/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	store     string
	jsonMode  bool
	verbose   bool
}

// app is the state every subcommand shares once the root command has
// resolved configuration.
type app struct {
	flags  rootFlags
	config types.Config
	log    *zap.Logger
}

// exitError carries the process exit code for an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func userError(err error) error { return &exitError{code: exitUserError, err: err} }
func sysError(err error) error  { return &exitError{code: exitSysError, err: err} }

// ExitCode maps an error returned by the root command to a process exit
// code. Errors without an explicit code are user errors.
func ExitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	return exitUserError
}

// NewRootCmd creates the top-level "shelf" command with global flags and all
// subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{log: zap.NewNop()}

	root := &cobra.Command{
		Use:   "shelf",
		Short: "Manage a trading-card collection store",
		Long: "Shelf keeps a card catalog and a forest of card sets in a local SQLite store.\n" +
			"It upgrades older stores through a staging copy and keeps the card-set tree acyclic.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.flags.store, "store", "", "store file (default: platform data dir/shelf.db)")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&a.flags.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newUpgradeCmd(a))
	root.AddCommand(newRepairCmd(a))
	root.AddCommand(newSetsCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newImportCmd(a))

	return root
}

// Execute runs the root command with args and returns the process exit
// code. Errors are printed to the command's error stream.
func Execute(args []string) int {
	root := NewRootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return ExitCode(err)
}
