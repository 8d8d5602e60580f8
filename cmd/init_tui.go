package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/graceinfra/shipyard/internal/expr"
	"github.com/graceinfra/shipyard/internal/templates"
	"github.com/graceinfra/shipyard/types"
)

// initOptions are the answers `shipyard init` scaffolds from.
type initOptions struct {
	targets []templates.Target
	trigger string
	draft   bool
}

func defaultInitOptions() initOptions {
	return initOptions{targets: templates.DefaultTargets, trigger: templates.DefaultTrigger, draft: true}
}

const (
	fieldTargets = iota
	fieldTrigger
	fieldDraft
)

type initModel struct {
	inputs   []textinput.Model
	focusIdx int
	canceled bool
	done     bool
	result   initOptions
	err      error
}

func initialInitModel(defaults initOptions) initModel {
	targets := textinput.New()
	targets.Placeholder = formatTargets(defaults.targets)
	targets.Focus()
	targets.CharLimit = 256
	targets.Width = 40

	trigger := textinput.New()
	trigger.Placeholder = defaults.trigger
	trigger.CharLimit = 256
	trigger.Width = 40

	draft := textinput.New()
	draft.Placeholder = "y"
	if !defaults.draft {
		draft.Placeholder = "n"
	}
	draft.CharLimit = 5
	draft.Width = 5

	return initModel{
		inputs: []textinput.Model{targets, trigger, draft},
		result: defaults,
	}
}

func (m initModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.canceled = true
			m.done = true
			return m, tea.Quit
		case "enter":
			opts, err := m.options()
			if err != nil {
				m.err = err
				return m, nil
			}
			m.result = opts
			m.done = true
			return m, tea.Quit
		case "tab", "shift+tab", "down", "up":
			if msg.String() == "up" || msg.String() == "shift+tab" {
				m.focusIdx--
			} else {
				m.focusIdx++
			}
			if m.focusIdx >= len(m.inputs) {
				m.focusIdx = 0
			} else if m.focusIdx < 0 {
				m.focusIdx = len(m.inputs) - 1
			}
			for i := range m.inputs {
				if i == m.focusIdx {
					m.inputs[i].Focus()
				} else {
					m.inputs[i].Blur()
				}
			}
			return m, nil
		}
	}

	cmds := make([]tea.Cmd, len(m.inputs))
	for i := range m.inputs {
		m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
	}
	return m, tea.Batch(cmds...)
}

func (m initModel) View() string {
	s := "\n"
	labels := []string{"Targets (os/arch, comma separated)", "Release trigger", "Draft release (y/n)"}

	for i, input := range m.inputs {
		s += labels[i] + ": " + input.View() + "\n"
	}
	if m.err != nil {
		s += "\n✖ " + m.err.Error() + "\n"
	}

	s += "\n[Enter] to continue • [Tab] next field • [Esc] to cancel\n"
	return s
}

// options reads the answers. An empty field keeps the value it was
// initialized with.
func (m initModel) options() (initOptions, error) {
	opts := m.result
	if v := strings.TrimSpace(m.inputs[fieldTargets].Value()); v != "" {
		targets, err := parseTargets(v)
		if err != nil {
			return opts, err
		}
		opts.targets = targets
	}
	if v := strings.TrimSpace(m.inputs[fieldTrigger].Value()); v != "" {
		if _, err := expr.CompilePredicate(v); err != nil {
			return opts, fmt.Errorf("release trigger: %w", err)
		}
		opts.trigger = v
	}
	if v := strings.TrimSpace(m.inputs[fieldDraft].Value()); v != "" {
		draft, err := parseYesNo(v)
		if err != nil {
			return opts, err
		}
		opts.draft = draft
	}
	return opts, nil
}

// RunInitTUI prompts for the starter workflow's targets and release settings.
func RunInitTUI(in io.Reader, out io.Writer) (opts initOptions, canceled bool, err error) {
	p := tea.NewProgram(initialInitModel(defaultInitOptions()), tea.WithInput(in), tea.WithOutput(out))
	m, err := p.Run()
	if err != nil {
		return initOptions{}, true, fmt.Errorf("init prompt: %w", err)
	}

	final := m.(initModel)
	if final.canceled {
		return initOptions{}, true, nil
	}
	return final.result, false, nil
}

// parseTargets turns "linux/amd64, darwin/arm64" into starter jobs. Jobs are
// named after the OS, with darwin shown as macos. An OS listed more than once
// gets the arch appended to each of its job names.
func parseTargets(list string) ([]templates.Target, error) {
	var parsed []types.Target
	perOS := map[string]int{}
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		t, err := types.ParseTarget(field)
		if err != nil {
			return nil, err
		}
		if t.Arch == "" {
			return nil, fmt.Errorf("target %q needs an arch (os/arch)", field)
		}
		parsed = append(parsed, t)
		perOS[t.OS]++
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("no targets given")
	}

	out := make([]templates.Target, 0, len(parsed))
	seen := map[string]bool{}
	for _, t := range parsed {
		job := t.OS
		if job == "darwin" {
			job = "macos"
		}
		if perOS[t.OS] > 1 {
			job += "-" + t.Arch
		}
		if seen[job] {
			return nil, fmt.Errorf("target %s is listed twice", t)
		}
		seen[job] = true
		out = append(out, templates.Target{Job: job, Target: t.String(), OS: t.OS, Arch: t.Arch})
	}
	return out, nil
}

func formatTargets(targets []templates.Target) string {
	descs := make([]string, len(targets))
	for i, t := range targets {
		descs[i] = t.Target
	}
	return strings.Join(descs, ", ")
}

func parseYesNo(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true":
		return true, nil
	case "n", "no", "false":
		return false, nil
	}
	return false, fmt.Errorf("expected y or n, got %q", s)
}
