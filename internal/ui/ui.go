// Package ui writes what a person (or a script, with --json) reads on the
// terminal. Diagnostics go through zerolog instead.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/graceinfra/shipyard/internal/models"
	"github.com/graceinfra/shipyard/types"
)

type Output struct {
	Style   types.OutputStyle
	Spinner *spinner.Spinner
	Out     io.Writer
	Err     io.Writer
}

func New(style types.OutputStyle) *Output {
	return &Output{
		Style: style,
		Spinner: spinner.New(
			spinner.CharSets[11], // ⣾ style
			100*time.Millisecond,
			spinner.WithHiddenCursor(true),
			spinner.WithWriter(os.Stderr)),
		Out: os.Stdout,
		Err: os.Stderr,
	}
}

func (o *Output) human() bool {
	return o.Style == types.StyleHuman || o.Style == types.StyleHumanVerbose
}

func (o *Output) Info(msg string, args ...any) {
	if o.human() {
		fmt.Fprintf(o.Out, msg+"\n", args...)
	}
}

func (o *Output) Verbose(msg string, args ...any) {
	if o.Style == types.StyleHumanVerbose {
		fmt.Fprintf(o.Out, msg+"\n", args...)
	}
}

func (o *Output) Error(msg string, args ...any) {
	if o.human() {
		fmt.Fprintf(o.Err, "Error: "+msg+"\n", args...)
	}
}

// JSON prints data in machine mode only.
func (o *Output) JSON(data any) error {
	if o.Style != types.StyleMachineJSON {
		return nil
	}
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(o.Out, string(encoded))
	return err
}

// StartSpinner shows text next to a spinner. Spinners are only drawn for
// human output on a terminal.
func (o *Output) StartSpinner(text string) {
	if o.human() && o.Spinner != nil {
		o.Spinner.Suffix = " " + text
		o.Spinner.Start()
	}
}

func (o *Output) StopSpinner() {
	if o.Spinner != nil && o.Spinner.Active() {
		o.Spinner.Stop()
	}
}

var statusIcons = map[string]string{
	string(types.JobSucceeded): "✓",
	string(types.JobFailed):    "✗",
	string(types.JobSkipped):   "-",
}

// PrintSummary renders the per-job table and the release outcome.
func (o *Output) PrintSummary(s models.ExecutionSummary) {
	if !o.human() {
		return
	}

	tw := tabwriter.NewWriter(o.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tTARGET\tSTATUS\tDURATION\tDETAIL")
	for _, j := range s.Jobs {
		detail := j.SkipReason
		if j.FailedStep != "" {
			detail = fmt.Sprintf("step %s: %s", j.FailedStep, firstLine(j.FailureReason))
		} else if j.FailureReason != "" {
			detail = firstLine(j.FailureReason)
		}
		fmt.Fprintf(tw, "%s %s\t%s\t%s\t%s\t%s\n",
			statusIcons[j.Status], j.JobName, j.Target, j.Status,
			(time.Duration(j.DurationMs) * time.Millisecond).String(), detail)
	}
	tw.Flush()

	fmt.Fprintf(o.Out, "\n%d succeeded, %d failed, %d skipped in %s\n",
		s.JobsSucceeded, s.JobsFailed, s.JobsSkipped,
		(time.Duration(s.TotalDurationMs) * time.Millisecond).Round(time.Millisecond))

	if s.Release == nil {
		return
	}
	r := s.Release
	switch {
	case r.Error != "":
		fmt.Fprintf(o.Out, "Release %s: %s (%s)\n", r.Tag, r.State, r.Error)
	case r.Reason != "":
		fmt.Fprintf(o.Out, "Release: %s (%s)\n", r.State, r.Reason)
	default:
		fmt.Fprintf(o.Out, "Release %s: %s %s\n", r.Tag, r.State, r.URL)
	}
	for _, a := range r.Assets {
		fmt.Fprintf(o.Out, "  %-10s %s %s\n", a.Status, a.Name, a.Digest)
	}
}

// PrintPlan renders topological batches, one line per batch.
func (o *Output) PrintPlan(batches [][]string) {
	for i, batch := range batches {
		fmt.Fprintf(o.Out, "%d: %s\n", i+1, strings.Join(batch, ", "))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
