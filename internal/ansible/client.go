// Package ansible drives ansible-playbook. A Client holds the handful of
// settings oct cares about (inventory, verbosity, dry run, log directory)
// and turns them into the command line and environment the engine expects.
package ansible

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eniac111/oct/internal/fsutil"
	"github.com/eniac111/oct/internal/manifest"
	"github.com/eniac111/oct/internal/output"
	"github.com/eniac111/oct/internal/playbook"
	"github.com/eniac111/oct/internal/types"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultVerbosity is the verbosity used when none is given.
	DefaultVerbosity = 1
	// DefaultPlaybookBinary is looked up on PATH.
	DefaultPlaybookBinary = "ansible-playbook"

	// LogResultsCallback writes every result to the log directory.
	LogResultsCallback = "log_results"
	// PrettyProgressCallback renders progress on the terminal.
	PrettyProgressCallback = "pretty_progress"
)

// DefaultInventoryFile is the Vagrant dynamic inventory installed with oct.
// It is used when no inventory is given.
var DefaultInventoryFile = defaultInventoryFile()

func defaultInventoryFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.TempDir(), "oct-config")
	}
	return filepath.Join(dir, "oct", "vagrant", "inventory.py")
}

// Client is a configuration holder for ansible-playbook and a way to run
// playbooks with it. It is immutable once built and can run any number of
// playbooks in sequence.
type Client struct {
	inventoryFile   string
	verbosity       int
	dryRun          bool
	logDirectory    string
	playbookBinary  string
	callbackPlugins string
	runner          Runner
	stdout          io.Writer
	stderr          io.Writer
}

// Option configures a Client.
type Option func(*Client)

// WithInventory sets the inventory source. An empty path keeps the default.
func WithInventory(path string) Option {
	return func(c *Client) { c.inventoryFile = path }
}

// WithVerbosity sets how many -v flags are passed to the engine.
func WithVerbosity(n int) Option {
	return func(c *Client) { c.verbosity = n }
}

// WithDryRun runs playbooks in check mode.
func WithDryRun(dryRun bool) Option {
	return func(c *Client) { c.dryRun = dryRun }
}

// WithLogDirectory sets where the log_results callback stores its logs.
func WithLogDirectory(dir string) Option {
	return func(c *Client) { c.logDirectory = dir }
}

// WithPlaybookBinary overrides the engine executable.
func WithPlaybookBinary(bin string) Option {
	return func(c *Client) { c.playbookBinary = bin }
}

// WithCallbackPlugins points the engine at oct's callback plugins.
func WithCallbackPlugins(dir string) Option {
	return func(c *Client) { c.callbackPlugins = dir }
}

// WithRunner replaces the runner; the default runs the engine locally.
func WithRunner(r Runner) Option {
	return func(c *Client) { c.runner = r }
}

// WithOutput sets where the engine's output goes.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(c *Client) {
		c.stdout = stdout
		c.stderr = stderr
	}
}

// New builds a Client.
func New(opts ...Option) *Client {
	c := &Client{
		verbosity:      DefaultVerbosity,
		playbookBinary: DefaultPlaybookBinary,
		runner:         LocalRunner{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.inventoryFile == "" {
		c.inventoryFile = DefaultInventoryFile
	}
	if c.playbookBinary == "" {
		c.playbookBinary = DefaultPlaybookBinary
	}
	if c.runner == nil {
		c.runner = LocalRunner{}
	}
	return c
}

// InventoryFile returns the inventory source.
func (c *Client) InventoryFile() string { return c.inventoryFile }

// Verbosity returns the verbosity level.
func (c *Client) Verbosity() int { return c.verbosity }

// DryRun reports whether playbooks run in check mode.
func (c *Client) DryRun() bool { return c.dryRun }

// LogDirectory returns the log directory, empty when unset.
func (c *Client) LogDirectory() string { return c.logDirectory }

// PlaybookArgs returns the engine command line for playbook: the binary, the
// verbosity flag, the playbook and --check for dry runs.
func (c *Client) PlaybookArgs(playbook string) []string {
	args := []string{c.playbookBinary}
	if c.verbosity > 0 {
		args = append(args, "-"+strings.Repeat("v", c.verbosity))
	}
	args = append(args, playbook)
	if c.dryRun {
		args = append(args, "--check")
	}
	return args
}

// Env returns the variables the engine is started with.
func (c *Client) Env() map[string]string {
	env := map[string]string{
		// pre-2.11 and current names for the same setting
		"ANSIBLE_CALLBACK_WHITELIST": LogResultsCallback,
		"ANSIBLE_CALLBACKS_ENABLED":  LogResultsCallback,
	}
	if c.logDirectory != "" {
		env["ANSIBLE_LOG_ROOT_PATH"] = c.logDirectory
	}
	if c.callbackPlugins != "" {
		env["ANSIBLE_CALLBACK_PLUGINS"] = c.callbackPlugins
	}
	if c.verbosity == 1 {
		// Without extra verbosity the pretty printer owns the terminal.
		env["ANSIBLE_STDOUT_CALLBACK"] = PrettyProgressCallback
		env["ANSIBLE_DISPLAY_SKIPPED_HOSTS"] = "false"
	}
	return env
}

// Invocation assembles the full command for playbook. varsFile is optional.
func (c *Client) Invocation(playbook, varsFile string) Invocation {
	args := c.PlaybookArgs(playbook)
	args = append(args, "--inventory", c.inventoryFile)
	files := []string{c.inventoryFile}
	if varsFile != "" {
		args = append(args, "--extra-vars", "@"+varsFile)
		files = append(files, varsFile)
	}
	return Invocation{
		Args:   args,
		Env:    c.Env(),
		Dir:    filepath.Dir(playbook),
		Files:  files,
		Stdout: c.stdout,
		Stderr: c.stderr,
	}
}

// RunPlaybook runs the playbook at playbookFile with vars as extra variables
// and blocks until the engine exits. A non-success status is returned as an
// *ExecutionError.
func (c *Client) RunPlaybook(ctx context.Context, playbookFile string, vars types.ExtraVars) error {
	abs, err := filepath.Abs(playbookFile)
	if err != nil {
		return fmt.Errorf("failed to resolve playbook path: %w", err)
	}
	if _, err := playbook.Load(abs); err != nil {
		return err
	}

	if c.logDirectory != "" {
		if _, err := fsutil.EnsureDirectory(c.logDirectory); err != nil {
			return fmt.Errorf("failed to create log directory %s: %w", c.logDirectory, err)
		}
	}

	varsFile := ""
	if len(vars) > 0 {
		varsFile, err = writeExtraVars(vars)
		if err != nil {
			return err
		}
		defer func() {
			if _, err := fsutil.RemovePath(varsFile); err != nil {
				output.Logger.Warn("Failed to remove extra vars file", "path", varsFile, "error", err)
			}
		}()
	}

	inv := c.Invocation(abs, varsFile)
	log := output.Logger.With("playbook", abs, "inventory", c.inventoryFile)
	log.Info("Running playbook", "verbosity", c.verbosity, "dry_run", c.dryRun)
	log.Debug("Playbook command", "args", inv.Args, "env", inv.Environ())

	start := time.Now()
	code, err := c.runner.Run(ctx, inv)
	if err != nil {
		return fmt.Errorf("failed to run playbook %s: %w", abs, err)
	}
	c.record(abs, code, start)

	if code != RunOK {
		log.Error("Playbook failed", "code", code, "status", Describe(code))
		return &ExecutionError{Playbook: abs, Code: code}
	}
	log.Info("Playbook finished", "duration", time.Since(start))
	return nil
}

// record adds the run to the log directory's manifest. Failures are logged;
// they never change the run's outcome.
func (c *Client) record(playbookFile string, code int, start time.Time) {
	if c.logDirectory == "" {
		return
	}
	res := manifest.Since(types.RunResult{
		Playbook:  playbookFile,
		Inventory: c.inventoryFile,
		DryRun:    c.dryRun,
		Code:      code,
	}, start)
	if sum, err := manifest.HashFile(playbookFile); err == nil {
		res.Sha256 = sum
	}
	if _, err := manifest.Record(c.logDirectory, res); err != nil {
		output.Logger.Warn("Failed to record run", "dir", c.logDirectory, "error", err)
	}
}

func writeExtraVars(vars types.ExtraVars) (string, error) {
	data, err := yaml.Marshal(map[string]any(vars))
	if err != nil {
		return "", fmt.Errorf("failed to encode extra vars: %w", err)
	}
	f, err := os.CreateTemp("", "oct-extra-vars-*.yml")
	if err != nil {
		return "", fmt.Errorf("failed to write extra vars: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write extra vars: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write extra vars: %w", err)
	}
	return f.Name(), nil
}
