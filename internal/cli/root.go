package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/eniac111/oct/internal/ansible"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the oct command tree.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "oct",
		Short:         "Run Ansible playbooks against CI machines",
		Long:          `oct drives ansible-playbook with a fixed set of options: inventory, verbosity, check mode and a log directory for the log_results callback.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./oct.yaml or ./.oct.yaml)")

	root.AddCommand(newPlaybookCmd(&cfgFile))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the CLI with os.Args and returns the process exit code.
func Execute() int {
	return Run(os.Args[1:], os.Stdout, os.Stderr)
}

// Run executes the CLI with args and returns the process exit code. A failed
// playbook exits with the engine's own status.
func Run(args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	root.PrintErrln("Error:", err)
	return ExitCode(err)
}

// ExitCode maps an error returned by a command to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var execErr *ansible.ExecutionError
	if errors.As(err, &execErr) && execErr.Code > 0 && execErr.Code < 256 {
		return execErr.Code
	}
	return 1
}
