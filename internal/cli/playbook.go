package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/eniac111/oct/internal/ansible"
	"github.com/eniac111/oct/internal/config"
	"github.com/eniac111/oct/internal/output"
	"github.com/eniac111/oct/internal/playbook"
	"github.com/eniac111/oct/internal/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newPlaybookCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playbook",
		Short: "Run and inspect playbooks",
	}
	cmd.AddCommand(newPlaybookRunCmd(cfgFile))
	cmd.AddCommand(newPlaybookPlaysCmd())
	return cmd
}

type runFlags struct {
	inventory string
	verbosity int
	dryRun    bool
	logDir    string
	extraVars []string
}

func newPlaybookRunCmd(cfgFile *string) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run <playbook>",
		Short: "Run a playbook with ansible-playbook",
		Long: `Runs a playbook with ansible-playbook and waits for it to finish.

Settings come from the config file, then OCT_* environment variables, then
flags. When the config has a remote block the playbook runs on that control
host over SSH. A failed run exits with ansible-playbook's status.`,
		Example: `  # Run against the default Vagrant inventory
  oct playbook run site.yml

  # Check mode, more output, logs kept
  oct playbook run site.yml --check -vvv --log-dir ./logs

  # Extra variables inline or from a file
  oct playbook run site.yml -e origin_ci_branch=master -e @vars.yml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("inventory") {
				cfg.Inventory = f.inventory
			}
			if flags.Changed("verbose") {
				cfg.Verbosity = f.verbosity
			}
			if flags.Changed("check") {
				cfg.DryRun = f.dryRun
			}
			if flags.Changed("log-dir") {
				cfg.LogDirectory = f.logDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			vars, err := parseExtraVars(f.extraVars)
			if err != nil {
				return err
			}

			output.SetLogger(output.NewLogger(cmd.ErrOrStderr(), cfg.Verbosity))
			client := newClient(cfg, cmd)
			return client.RunPlaybook(cmd.Context(), args[0], vars)
		},
	}

	cmd.Flags().StringVarP(&f.inventory, "inventory", "i", "", "inventory file (default is the Vagrant dynamic inventory)")
	cmd.Flags().CountVarP(&f.verbosity, "verbose", "v", "verbosity, repeat for more (-vvv)")
	cmd.Flags().BoolVarP(&f.dryRun, "check", "C", false, "dry run: report changes without making them")
	cmd.Flags().StringVar(&f.logDir, "log-dir", "", "directory for playbook logs and the run manifest")
	cmd.Flags().StringArrayVarP(&f.extraVars, "extra-vars", "e", nil, "extra variable as key=value, or @file for a YAML/JSON file")
	return cmd
}

func newClient(cfg *config.Config, cmd *cobra.Command) *ansible.Client {
	opts := []ansible.Option{
		ansible.WithInventory(cfg.Inventory),
		ansible.WithVerbosity(cfg.Verbosity),
		ansible.WithDryRun(cfg.DryRun),
		ansible.WithLogDirectory(cfg.LogDirectory),
		ansible.WithPlaybookBinary(cfg.PlaybookBinary),
		ansible.WithCallbackPlugins(cfg.CallbackPlugins),
		ansible.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	}
	if cfg.Remote != nil {
		opts = append(opts, ansible.WithRunner(ansible.RemoteRunner{Host: *cfg.Remote}))
	}
	return ansible.New(opts...)
}

// parseExtraVars merges key=value pairs and @file references, later entries
// winning.
func parseExtraVars(specs []string) (types.ExtraVars, error) {
	vars := types.ExtraVars{}
	for _, spec := range specs {
		if path, ok := strings.CutPrefix(spec, "@"); ok {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read extra vars file: %w", err)
			}
			var fromFile map[string]any
			if err := yaml.Unmarshal(data, &fromFile); err != nil {
				return nil, fmt.Errorf("failed to parse extra vars file %s: %w", path, err)
			}
			for k, v := range fromFile {
				vars[k] = v
			}
			continue
		}

		key, value, ok := strings.Cut(spec, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid extra var %q, want key=value or @file", spec)
		}
		vars[key] = value
	}
	return vars, nil
}

func newPlaybookPlaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plays <playbook>",
		Short: "List the plays in a playbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pb, err := playbook.Load(args[0])
			if err != nil {
				return err
			}
			for i, p := range pb.Plays {
				if p.ImportPlaybook != "" {
					cmd.Printf("%d. %s\n", i+1, p.Label())
					continue
				}
				cmd.Printf("%d. %s (hosts: %s, tasks: %d, roles: %d)\n", i+1, p.Label(), p.HostPattern(), len(p.Tasks), len(p.Roles))
			}
			return nil
		},
	}
}
