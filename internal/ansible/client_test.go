package ansible

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/eniac111/oct/internal/manifest"
	"github.com/eniac111/oct/internal/output"
	"github.com/eniac111/oct/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMain(m *testing.M) {
	output.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// Compile-time interface checks.
var (
	_ Runner = LocalRunner{}
	_ Runner = RemoteRunner{}
	_ Runner = (*fakeRunner)(nil)
)

// fakeRunner records invocations and returns a preset status. It reads the
// extra vars file while it still exists.
type fakeRunner struct {
	code  int
	err   error
	calls []Invocation
	vars  []map[string]any
}

func (f *fakeRunner) Run(_ context.Context, inv Invocation) (int, error) {
	f.calls = append(f.calls, inv)
	for i, a := range inv.Args {
		if a != "--extra-vars" || i+1 >= len(inv.Args) {
			continue
		}
		data, err := os.ReadFile(strings.TrimPrefix(inv.Args[i+1], "@"))
		if err != nil {
			return -1, err
		}
		var v map[string]any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return -1, err
		}
		f.vars = append(f.vars, v)
	}
	return f.code, f.err
}

func writePlaybook(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "site.yml")
	require.NoError(t, os.WriteFile(path, []byte("- hosts: all\n  tasks:\n    - ping:\n"), 0o644))
	return path
}

func argAfter(args []string, flag string) (string, bool) {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func TestNewDefaults(t *testing.T) {
	c := New()
	assert.Equal(t, DefaultInventoryFile, c.InventoryFile())
	assert.Equal(t, DefaultVerbosity, c.Verbosity())
	assert.False(t, c.DryRun())
	assert.Empty(t, c.LogDirectory())
	assert.True(t, strings.HasSuffix(DefaultInventoryFile, filepath.Join("oct", "vagrant", "inventory.py")))
}

func TestNewStoresSettings(t *testing.T) {
	c := New(
		WithInventory("/srv/inventories/ci.ini"),
		WithVerbosity(4),
		WithDryRun(true),
		WithLogDirectory("/var/log/oct"),
	)
	assert.Equal(t, "/srv/inventories/ci.ini", c.InventoryFile())
	assert.Equal(t, 4, c.Verbosity())
	assert.True(t, c.DryRun())
	assert.Equal(t, "/var/log/oct", c.LogDirectory())
}

func TestNewEmptyInventoryFallsBack(t *testing.T) {
	c := New(WithInventory(""), WithPlaybookBinary(""), WithRunner(nil))
	assert.Equal(t, DefaultInventoryFile, c.InventoryFile())
	assert.Equal(t, DefaultPlaybookBinary, c.PlaybookArgs("site.yml")[0])
}

func TestPlaybookArgs(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		dryRun    bool
		want      []string
	}{
		{name: "quiet", verbosity: 0, want: []string{"ansible-playbook", "site.yml"}},
		{name: "default", verbosity: 1, want: []string{"ansible-playbook", "-v", "site.yml"}},
		{name: "three", verbosity: 3, want: []string{"ansible-playbook", "-vvv", "site.yml"}},
		{name: "six", verbosity: 6, want: []string{"ansible-playbook", "-vvvvvv", "site.yml"}},
		{name: "dry run", verbosity: 2, dryRun: true, want: []string{"ansible-playbook", "-vv", "site.yml", "--check"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(WithVerbosity(tt.verbosity), WithDryRun(tt.dryRun))
			assert.Equal(t, tt.want, c.PlaybookArgs("site.yml"))
		})
	}
}

func TestEnv(t *testing.T) {
	env := New().Env()
	assert.Equal(t, LogResultsCallback, env["ANSIBLE_CALLBACK_WHITELIST"])
	assert.Equal(t, LogResultsCallback, env["ANSIBLE_CALLBACKS_ENABLED"])
	assert.Equal(t, PrettyProgressCallback, env["ANSIBLE_STDOUT_CALLBACK"])
	assert.NotContains(t, env, "ANSIBLE_LOG_ROOT_PATH")
	assert.NotContains(t, env, "ANSIBLE_CALLBACK_PLUGINS")

	env = New(WithVerbosity(2), WithLogDirectory("/logs"), WithCallbackPlugins("/plugins")).Env()
	assert.NotContains(t, env, "ANSIBLE_STDOUT_CALLBACK")
	assert.Equal(t, "/logs", env["ANSIBLE_LOG_ROOT_PATH"])
	assert.Equal(t, "/plugins", env["ANSIBLE_CALLBACK_PLUGINS"])
}

func TestRunPlaybookSuccess(t *testing.T) {
	pb := writePlaybook(t)
	runner := &fakeRunner{}
	c := New(WithInventory("/srv/hosts"), WithRunner(runner))

	vars := types.ExtraVars{"origin_ci_branch": "master", "nodes": 3}
	require.NoError(t, c.RunPlaybook(context.Background(), pb, vars))

	require.Len(t, runner.calls, 1)
	inv := runner.calls[0]
	assert.Equal(t, []string{"ansible-playbook", "-v", pb}, inv.Args[:3])
	inventory, ok := argAfter(inv.Args, "--inventory")
	require.True(t, ok)
	assert.Equal(t, "/srv/hosts", inventory)
	assert.Equal(t, filepath.Dir(pb), inv.Dir)

	require.Len(t, runner.vars, 1)
	assert.Equal(t, map[string]any{"origin_ci_branch": "master", "nodes": 3}, runner.vars[0])

	varsArg, ok := argAfter(inv.Args, "--extra-vars")
	require.True(t, ok)
	_, err := os.Stat(strings.TrimPrefix(varsArg, "@"))
	assert.True(t, os.IsNotExist(err), "extra vars file should be removed after the run")
}

func TestRunPlaybookWithoutVars(t *testing.T) {
	pb := writePlaybook(t)
	runner := &fakeRunner{}
	c := New(WithRunner(runner))

	require.NoError(t, c.RunPlaybook(context.Background(), pb, nil))
	require.NoError(t, c.RunPlaybook(context.Background(), pb, types.ExtraVars{}))

	require.Len(t, runner.calls, 2)
	for _, inv := range runner.calls {
		assert.NotContains(t, inv.Args, "--extra-vars")
	}
}

func TestRunPlaybookFailureCodes(t *testing.T) {
	pb := writePlaybook(t)
	for _, code := range []int{RunError, RunFailedHosts, RunUnreachableHosts, RunParserError, RunBadOptions, RunUserInterrupt, RunUnknownError, 17} {
		c := New(WithRunner(&fakeRunner{code: code}))

		err := c.RunPlaybook(context.Background(), pb, nil)
		require.Error(t, err)

		var execErr *ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, code, execErr.Code)
		assert.Equal(t, pb, execErr.Playbook)
		assert.Equal(t, "Playbook execution failed with code "+strconv.Itoa(code), err.Error())
	}
}

func TestRunPlaybookRunnerError(t *testing.T) {
	pb := writePlaybook(t)
	boom := errors.New("boom")
	c := New(WithRunner(&fakeRunner{err: boom}))

	err := c.RunPlaybook(context.Background(), pb, nil)
	require.ErrorIs(t, err, boom)

	var execErr *ExecutionError
	assert.False(t, errors.As(err, &execErr))
}

func TestRunPlaybookRejectsInvalidPlaybook(t *testing.T) {
	runner := &fakeRunner{}
	c := New(WithRunner(runner))

	err := c.RunPlaybook(context.Background(), filepath.Join(t.TempDir(), "missing.yml"), nil)
	require.Error(t, err)
	assert.Empty(t, runner.calls)
}

func TestRunPlaybookRecordsManifest(t *testing.T) {
	pb := writePlaybook(t)
	logDir := filepath.Join(t.TempDir(), "logs")
	runner := &fakeRunner{code: RunFailedHosts}
	c := New(WithRunner(runner), WithLogDirectory(logDir), WithDryRun(true))

	err := c.RunPlaybook(context.Background(), pb, nil)
	require.Error(t, err)
	assert.Equal(t, logDir, runner.calls[0].Env["ANSIBLE_LOG_ROOT_PATH"])

	m, err := manifest.Load(logDir)
	require.NoError(t, err)
	require.Len(t, m, 1)
	for _, res := range m {
		assert.Equal(t, pb, res.Playbook)
		assert.Equal(t, RunFailedHosts, res.Code)
		assert.True(t, res.DryRun)
		assert.Len(t, res.Sha256, 64)
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "ok", Describe(RunOK))
	assert.Equal(t, "one or more hosts failed", Describe(RunFailedHosts))
	assert.Equal(t, "unknown status 42", Describe(42))
	assert.Equal(t, "parser error", (&ExecutionError{Code: RunParserError}).Description())
}

func TestRunPlaybookAcceptsImportOnlyPlaybook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yml")
	require.NoError(t, os.WriteFile(path, []byte("- ansible.builtin.import_playbook: prepare.yml\n- import_playbook: deploy.yml\n"), 0o644))
	runner := &fakeRunner{}
	c := New(WithRunner(runner))

	require.NoError(t, c.RunPlaybook(context.Background(), path, nil))
	assert.Len(t, runner.calls, 1)
}
