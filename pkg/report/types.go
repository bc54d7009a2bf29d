package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pyneda/kensa/pkg/scan/events"
)

// PhaseSummary is the outcome of one phase of a run
type PhaseSummary struct {
	Name       events.PhaseName `json:"name" yaml:"name"`
	Title      string           `json:"title" yaml:"title"`
	Status     events.Status    `json:"status" yaml:"status"`
	SkipReason string           `json:"skip_reason,omitempty" yaml:"skip_reason,omitempty"`
	Details    string           `json:"details,omitempty" yaml:"details,omitempty"`
}

func (p PhaseSummary) TableHeaders() []string {
	return []string{"Phase", "Status", "Details"}
}

func (p PhaseSummary) TableRow() []string {
	details := p.Details
	if p.SkipReason != "" {
		details = p.SkipReason
	}
	return []string{p.Title, p.Status.String(), details}
}

func (p PhaseSummary) String() string {
	if p.SkipReason != "" {
		return fmt.Sprintf("%s: %s (%s)", p.Title, p.Status, p.SkipReason)
	}
	return fmt.Sprintf("%s: %s", p.Title, p.Status)
}

func (p PhaseSummary) Pretty() string {
	line := fmt.Sprintf("%-20s %s", p.Title, statusColor(p.Status).Sprint(strings.ToUpper(p.Status.String())))
	switch {
	case p.SkipReason != "":
		line += color.New(color.Faint).Sprintf(" (%s)", p.SkipReason)
	case p.Details != "":
		line += " " + p.Details
	}
	return line
}

// ErrorGroup collects non fatal errors that share a title
type ErrorGroup struct {
	Title  string   `json:"title" yaml:"title"`
	Count  int      `json:"count" yaml:"count"`
	Labels []string `json:"labels" yaml:"labels"`
	// Message is the first message seen for the group.
	Message string `json:"message" yaml:"message"`
}

func (g ErrorGroup) TableHeaders() []string {
	return []string{"Error", "Count", "Operations", "Message"}
}

func (g ErrorGroup) TableRow() []string {
	return []string{g.Title, fmt.Sprintf("%d", g.Count), strings.Join(g.Labels, ", "), g.Message}
}

func (g ErrorGroup) String() string {
	return fmt.Sprintf("%s (%d): %s", g.Title, g.Count, g.Message)
}

func (g ErrorGroup) Pretty() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint(g.Title), color.New(color.Faint).Sprintf("(%d)", g.Count))
	for _, label := range g.Labels {
		fmt.Fprintf(&b, "  - %s\n", label)
	}
	fmt.Fprintf(&b, "  %s\n", g.Message)
	return b.String()
}

// FailureEntry is a deduplicated check failure with a reproduction command
type FailureEntry struct {
	Label       string           `json:"operation" yaml:"operation"`
	Phase       events.PhaseName `json:"phase" yaml:"phase"`
	Check       string           `json:"check" yaml:"check"`
	Title       string           `json:"title" yaml:"title"`
	Message     string           `json:"message" yaml:"message"`
	CaseID      string           `json:"case_id" yaml:"case_id"`
	Occurrences int              `json:"occurrences" yaml:"occurrences"`
	CodeSample  string           `json:"reproduce" yaml:"reproduce"`
}

func (f FailureEntry) TableHeaders() []string {
	return []string{"Operation", "Check", "Title", "Occurrences", "Reproduce"}
}

func (f FailureEntry) TableRow() []string {
	return []string{f.Label, f.Check, f.Title, fmt.Sprintf("%d", f.Occurrences), f.CodeSample}
}

func (f FailureEntry) String() string {
	return fmt.Sprintf("%s [%s] %s: %s", f.Label, f.Check, f.Title, f.Message)
}

func (f FailureEntry) Pretty() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint(f.Title), color.New(color.Faint).Sprintf("[%s]", f.Check))
	if f.Message != "" {
		fmt.Fprintf(&b, "  %s\n", f.Message)
	}
	if f.Occurrences > 1 {
		fmt.Fprintf(&b, "  seen %d times\n", f.Occurrences)
	}
	fmt.Fprintf(&b, "  Reproduce with:\n\n    %s\n", color.CyanString(f.CodeSample))
	return b.String()
}

// ScenarioCounts counts finished scenarios by status
type ScenarioCounts struct {
	Total       int `json:"total" yaml:"total"`
	Success     int `json:"success" yaml:"success"`
	Failure     int `json:"failure" yaml:"failure"`
	Error       int `json:"error" yaml:"error"`
	Interrupted int `json:"interrupted" yaml:"interrupted"`
	Skip        int `json:"skip" yaml:"skip"`
}

func (c *ScenarioCounts) add(status events.Status) {
	c.Total++
	switch status {
	case events.StatusSuccess:
		c.Success++
	case events.StatusFailure:
		c.Failure++
	case events.StatusError:
		c.Error++
	case events.StatusInterrupted:
		c.Interrupted++
	case events.StatusSkip:
		c.Skip++
	}
}

// Report is everything a run produced, built from its event stream
type Report struct {
	Title       string          `json:"title" yaml:"title"`
	StartedAt   time.Time       `json:"started_at" yaml:"started_at"`
	RunningTime time.Duration   `json:"running_time" yaml:"running_time"`
	Phases      []*PhaseSummary `json:"phases" yaml:"phases"`
	Scenarios   ScenarioCounts  `json:"scenarios" yaml:"scenarios"`
	Errors      []*ErrorGroup   `json:"errors,omitempty" yaml:"errors,omitempty"`
	Failures    []*FailureEntry `json:"failures,omitempty" yaml:"failures,omitempty"`
	FatalErrors []string        `json:"fatal_errors,omitempty" yaml:"fatal_errors,omitempty"`
	Interrupted bool            `json:"interrupted" yaml:"interrupted"`
}

func statusColor(status events.Status) *color.Color {
	switch status {
	case events.StatusSuccess:
		return color.New(color.FgGreen, color.Bold)
	case events.StatusFailure, events.StatusError:
		return color.New(color.FgRed, color.Bold)
	case events.StatusInterrupted:
		return color.New(color.FgYellow, color.Bold)
	}
	return color.New(color.FgWhite)
}
