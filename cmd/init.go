package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/graceinfra/shipyard/internal/config"
	"github.com/graceinfra/shipyard/internal/expr"
	"github.com/graceinfra/shipyard/internal/templates"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func init() {
	addInitFlags(initCmd)
	rootCmd.AddCommand(initCmd)
}

func addInitFlags(c *cobra.Command) {
	f := c.Flags()
	f.String("targets", "", "Comma separated os/arch targets (default linux/amd64, darwin/arm64)")
	f.String("trigger", "", "Release trigger predicate (default "+templates.DefaultTrigger+")")
	f.Bool("draft", true, "Publish releases as drafts")
	f.Bool("no-tui", false, "Never prompt; use flags and defaults")
}

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Args:  cobra.MaximumNArgs(1),
	Short: "Scaffold a new Shipyard workflow",
	Long: `Initialize a new Shipyard workspace by scaffolding the required structure:
  - A starter shipyard.yml building for linux and macOS, releasing on v* tags
  - A .shipyard/ directory for logs, cache and releases

On a terminal, init prompts for the build targets, the release trigger and
whether releases are drafts. Passing any of --targets, --trigger or --draft,
or --no-tui, skips the prompt.

The target directory defaults to the current directory and is created when
it does not exist. Existing files are never overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		targetDir := "."
		if len(args) > 0 {
			targetDir = args[0]
		}

		var opts initOptions
		if promptWanted(cmd) {
			var canceled bool
			var err error
			opts, canceled, err = RunInitTUI(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if canceled {
				fmt.Fprintln(cmd.OutOrStdout(), "✖ Shipyard init canceled.")
				return nil
			}
		} else {
			var err error
			if opts, err = initOptionsFromFlags(cmd); err != nil {
				return err
			}
		}
		return scaffold(cmd, targetDir, opts)
	},
}

// promptWanted reports whether init runs interactively: no answer was given
// on the command line and stdin is a terminal.
func promptWanted(cmd *cobra.Command) bool {
	f := cmd.Flags()
	if noTUI, _ := f.GetBool("no-tui"); noTUI {
		return false
	}
	for _, name := range []string{"targets", "trigger", "draft"} {
		if f.Changed(name) {
			return false
		}
	}
	return isTerminal(cmd.InOrStdin())
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func initOptionsFromFlags(cmd *cobra.Command) (initOptions, error) {
	opts := defaultInitOptions()
	f := cmd.Flags()
	if list, _ := f.GetString("targets"); list != "" {
		targets, err := parseTargets(list)
		if err != nil {
			return opts, fmt.Errorf("--targets: %w", err)
		}
		opts.targets = targets
	}
	if trigger, _ := f.GetString("trigger"); trigger != "" {
		if _, err := expr.CompilePredicate(trigger); err != nil {
			return opts, fmt.Errorf("--trigger: %w", err)
		}
		opts.trigger = trigger
	}
	opts.draft, _ = f.GetBool("draft")
	return opts, nil
}

func scaffold(cmd *cobra.Command, targetDir string, opts initOptions) error {
	abs, err := filepath.Abs(targetDir)
	if err != nil {
		return err
	}
	name := filepath.Base(abs)

	fmt.Fprintf(cmd.OutOrStdout(), "↪ scaffolding new workspace %q ...\n", name)

	outPath := filepath.Join(targetDir, config.DefaultFile)
	if err := mustNotExist(outPath); err != nil {
		return err
	}
	for _, dir := range []string{".shipyard", filepath.Join(".shipyard", "logs")} {
		if err := os.MkdirAll(filepath.Join(targetDir, dir), 0755); err != nil {
			return err
		}
	}

	data := templates.WorkflowData{Name: name, Targets: opts.targets, Trigger: opts.trigger, Draft: opts.draft}
	if err := templates.WriteTpl(templates.WorkflowTemplate, outPath, data); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ workspace %q initialized!\n", name)
	return nil
}

// mustNotExist refuses to overwrite an existing file or directory.
func mustNotExist(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing file or directory: %s", path)
	}
	return nil
}
