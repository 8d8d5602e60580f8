package cmd

import (
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/graceinfra/shipyard/internal/config"
	"github.com/graceinfra/shipyard/internal/templates"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func press(t *testing.T, m initModel, msgs ...tea.Msg) (initModel, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(initModel)
	}
	return m, cmd
}

func typed(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

var (
	tab   = tea.KeyMsg{Type: tea.KeyTab}
	enter = tea.KeyMsg{Type: tea.KeyEnter}
)

func TestInitModel(t *testing.T) {
	t.Run("answers", func(t *testing.T) {
		m, cmd := press(t, initialInitModel(defaultInitOptions()),
			typed("linux/amd64, linux/arm64"), tab,
			typed(`ref == "refs/heads/main"`), tab,
			typed("n"), enter,
		)
		require.True(t, m.done)
		require.False(t, m.canceled)
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())

		assert.Equal(t, []string{"linux-amd64", "linux-arm64"}, []string{m.result.targets[0].Job, m.result.targets[1].Job})
		assert.Equal(t, `ref == "refs/heads/main"`, m.result.trigger)
		assert.False(t, m.result.draft)
	})

	t.Run("empty fields keep defaults", func(t *testing.T) {
		m, _ := press(t, initialInitModel(defaultInitOptions()), enter)
		require.True(t, m.done)
		assert.Equal(t, defaultInitOptions(), m.result)
	})

	t.Run("invalid answer stays on the form", func(t *testing.T) {
		m, cmd := press(t, initialInitModel(defaultInitOptions()), typed("linux"), enter)
		assert.False(t, m.done)
		assert.Nil(t, cmd)
		require.Error(t, m.err)
		assert.Contains(t, m.View(), "needs an arch")
	})

	t.Run("escape cancels", func(t *testing.T) {
		m, _ := press(t, initialInitModel(defaultInitOptions()), tea.KeyMsg{Type: tea.KeyEsc})
		assert.True(t, m.canceled)
	})

	t.Run("focus wraps around", func(t *testing.T) {
		m, _ := press(t, initialInitModel(defaultInitOptions()), tea.KeyMsg{Type: tea.KeyShiftTab})
		assert.Equal(t, fieldDraft, m.focusIdx)
		m, _ = press(t, m, tab)
		assert.Equal(t, fieldTargets, m.focusIdx)
	})
}

func TestParseTargets(t *testing.T) {
	tests := []struct {
		name    string
		list    string
		want    []templates.Target
		wantErr string
	}{
		{
			name: "one per os",
			list: "linux/amd64, darwin/arm64",
			want: templates.DefaultTargets,
		},
		{
			name: "repeated os gets the arch",
			list: "windows/amd64,linux/amd64,linux/arm64/go1.24",
			want: []templates.Target{
				{Job: "windows", Target: "windows/amd64", OS: "windows", Arch: "amd64"},
				{Job: "linux-amd64", Target: "linux/amd64", OS: "linux", Arch: "amd64"},
				{Job: "linux-arm64", Target: "linux/arm64/go1.24", OS: "linux", Arch: "arm64"},
			},
		},
		{name: "missing arch", list: "linux", wantErr: "needs an arch"},
		{name: "duplicate", list: "linux/amd64,linux/amd64", wantErr: "listed twice"},
		{name: "empty", list: " , ", wantErr: "no targets"},
		{name: "too many parts", list: "linux/amd64/go/x", wantErr: "more than 3 parts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTargets(tt.list)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInitOptionsFromFlags(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		c := &cobra.Command{}
		addInitFlags(c)
		require.NoError(t, c.ParseFlags(args))
		return c
	}

	opts, err := initOptionsFromFlags(newCmd())
	require.NoError(t, err)
	assert.Equal(t, defaultInitOptions(), opts)

	c := newCmd("--targets", "windows/amd64", "--trigger", "always()", "--draft=false")
	assert.False(t, promptWanted(c), "answers on the command line skip the prompt")
	opts, err = initOptionsFromFlags(c)
	require.NoError(t, err)
	assert.Equal(t, "windows", opts.targets[0].Job)
	assert.Equal(t, "always()", opts.trigger)
	assert.False(t, opts.draft)

	_, err = initOptionsFromFlags(newCmd("--trigger", "ref =="))
	assert.ErrorContains(t, err, "--trigger")
	_, err = initOptionsFromFlags(newCmd("--targets", "linux"))
	assert.ErrorContains(t, err, "--targets")
}

func TestPromptNeedsTerminal(t *testing.T) {
	c := &cobra.Command{}
	addInitFlags(c)
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	c.SetIn(r)
	assert.False(t, promptWanted(c))
}

func TestInitWithFlags(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "svc")
	c := &cobra.Command{}
	addInitFlags(c)
	require.NoError(t, c.ParseFlags([]string{"--targets", "linux/arm64", "--draft=false"}))
	opts, err := initOptionsFromFlags(c)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, scaffold(c, dir, opts))

	cfg, _, err := config.LoadConfig(filepath.Join(dir, config.DefaultFile), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"linux"}, cfg.Jobs.Names())
	assert.False(t, cfg.Release.Draft)
	assert.Equal(t, templates.DefaultTrigger, cfg.Release.Trigger)
}
