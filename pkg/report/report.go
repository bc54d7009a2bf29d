package report

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/pyneda/kensa/lib"
	"github.com/pyneda/kensa/pkg/scan/events"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Exit codes of a finished run. Failures win over errors.
const (
	ExitClean    = 0
	ExitFailures = 1
	ExitErrors   = 2
)

// Collector builds a Report while a run is in progress.
type Collector struct {
	mu       sync.Mutex
	report   *Report
	phases   map[events.PhaseName]*PhaseSummary
	errors   map[string]*ErrorGroup
	failures map[string]*FailureEntry
	handlers []func(events.Event)
}

func NewCollector(title string) *Collector {
	return &Collector{
		report:   &Report{Title: title},
		phases:   make(map[events.PhaseName]*PhaseSummary),
		errors:   make(map[string]*ErrorGroup),
		failures: make(map[string]*FailureEntry),
	}
}

// OnEvent registers a function called with every handled event, after the
// collector has processed it.
func (c *Collector) OnEvent(handler func(events.Event)) *Collector {
	c.handlers = append(c.handlers, handler)
	return c
}

// Consume handles every event of the stream and returns the final report.
func (c *Collector) Consume(stream iter.Seq[events.Event]) *Report {
	for event := range stream {
		c.Handle(event)
	}
	return c.Report()
}

func (c *Collector) Handle(event events.Event) {
	c.mu.Lock()
	switch ev := event.(type) {
	case *events.EngineStarted:
		c.report.StartedAt = ev.Timestamp
	case *events.PhaseStarted:
		c.phase(ev.Phase.Name)
	case *events.PhaseFinished:
		summary := c.phase(ev.Phase.Name)
		summary.Status = ev.Status
		if ev.Status == events.StatusSkip && ev.Phase.SkipReason != "" {
			summary.SkipReason = string(ev.Phase.SkipReason)
		}
		summary.Details = payloadDetails(ev.Payload)
	case *events.ScenarioFinished:
		c.report.Scenarios.add(ev.Status)
		c.scenarioFailures(ev)
	case *events.NonFatalError:
		c.nonFatal(ev)
	case *events.FatalError:
		c.report.FatalErrors = append(c.report.FatalErrors, ev.Err.Error())
	case *events.Interrupted:
		c.report.Interrupted = true
	case *events.EngineFinished:
		c.report.RunningTime = ev.RunningTime
	}
	c.mu.Unlock()

	for _, handler := range c.handlers {
		handler(event)
	}
}

func (c *Collector) phase(name events.PhaseName) *PhaseSummary {
	if summary, ok := c.phases[name]; ok {
		return summary
	}
	summary := &PhaseSummary{Name: name, Title: name.Title(), Status: events.StatusSkip}
	c.phases[name] = summary
	c.report.Phases = append(c.report.Phases, summary)
	return summary
}

func (c *Collector) nonFatal(ev *events.NonFatalError) {
	title := ev.Title()
	group, ok := c.errors[title]
	if !ok {
		group = &ErrorGroup{Title: title}
		if ev.Err != nil {
			group.Message = ev.Err.Error()
		}
		c.errors[title] = group
		c.report.Errors = append(c.report.Errors, group)
	}
	group.Count++
	if ev.Label != "" && !lib.SliceContains(group.Labels, ev.Label) {
		group.Labels = append(group.Labels, ev.Label)
	}
}

func (c *Collector) scenarioFailures(ev *events.ScenarioFinished) {
	if ev.Recorder == nil {
		return
	}
	for _, recorded := range ev.Recorder.UniqueFailures() {
		key := ev.Label + "\x00" + recorded.Failure.Check + "\x00" + recorded.Failure.Title
		if existing, ok := c.failures[key]; ok {
			existing.Occurrences += recorded.Occurrences
			continue
		}
		entry := &FailureEntry{
			Label:       ev.Label,
			Phase:       ev.Phase,
			Check:       recorded.Failure.Check,
			Title:       recorded.Failure.Title,
			Message:     recorded.Failure.Message,
			CaseID:      recorded.CaseID,
			Occurrences: recorded.Occurrences,
			CodeSample:  recorded.CodeSample,
		}
		c.failures[key] = entry
		c.report.Failures = append(c.report.Failures, entry)
	}
}

// Report returns the report built so far.
func (c *Collector) Report() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	sortPhases(c.report.Phases)
	sortErrors(c.report.Errors)
	return c.report
}

func payloadDetails(payload any) string {
	switch p := payload.(type) {
	case *events.ProbePayload:
		if p == nil {
			return ""
		}
		parts := make([]string, 0, len(p.Probes))
		for _, probe := range p.Probes {
			parts = append(parts, fmt.Sprintf("%s=%s", probe.Name, probeOutcome(probe.Outcome)))
		}
		return strings.Join(parts, ", ")
	case *events.AnalysisPayload:
		if p == nil {
			return ""
		}
		return fmt.Sprintf("%d inferred links", p.InferredLinks)
	}
	return ""
}

func probeOutcome(outcome events.ProbeOutcome) string {
	switch outcome {
	case events.ProbeSuccess:
		return "success"
	case events.ProbeFailure:
		return "failure"
	}
	return "error"
}

// ExitCode maps the run outcome to a process exit code.
func (r *Report) ExitCode() int {
	switch {
	case len(r.Failures) > 0 || r.Scenarios.Failure > 0:
		return ExitFailures
	case len(r.Errors) > 0 || len(r.FatalErrors) > 0 || r.Scenarios.Error > 0:
		return ExitErrors
	}
	return ExitClean
}

// Render writes the report in the given format.
func (r *Report) Render(w io.Writer, format lib.FormatType) error {
	switch format {
	case lib.JSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(r)
	case lib.YAML:
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return encoder.Encode(r)
	case lib.Pretty, lib.Text, lib.Table:
		return r.renderText(w, format)
	}
	return fmt.Errorf("unknown format: %v", format)
}

func (r *Report) renderText(w io.Writer, format lib.FormatType) error {
	sections := []struct {
		title string
		body  func() (string, error)
		show  bool
	}{
		{"Phases", func() (string, error) { return lib.FormatOutput(r.Phases, format) }, len(r.Phases) > 0},
		{"Errors", func() (string, error) { return lib.FormatOutput(r.Errors, format) }, len(r.Errors) > 0},
		{"Failures", func() (string, error) { return lib.FormatOutput(r.Failures, format) }, len(r.Failures) > 0},
	}
	heading := color.New(color.Bold, color.Underline)
	for _, section := range sections {
		if !section.show {
			continue
		}
		body, err := section.body()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n\n%s\n\n", heading.Sprint(section.title), strings.TrimRight(body, "\n")); err != nil {
			return err
		}
	}
	for _, fatal := range r.FatalErrors {
		fmt.Fprintf(w, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint("Fatal error:"), fatal)
	}
	if r.Interrupted {
		fmt.Fprintln(w, color.YellowString("Run interrupted"))
	}
	_, err := fmt.Fprintln(w, r.summaryLine())
	return err
}

func (r *Report) summaryLine() string {
	counts := r.Scenarios
	parts := []string{fmt.Sprintf("%d scenarios", counts.Total)}
	add := func(n int, label string, c *color.Color) {
		if n > 0 {
			parts = append(parts, c.Sprintf("%d %s", n, label))
		}
	}
	add(counts.Success, "passed", color.New(color.FgGreen))
	add(counts.Failure, "failed", color.New(color.FgRed))
	add(counts.Error, "errored", color.New(color.FgRed))
	add(counts.Interrupted, "interrupted", color.New(color.FgYellow))
	add(counts.Skip, "skipped", color.New(color.FgWhite))
	return fmt.Sprintf("%s in %s", strings.Join(parts, ", "), r.RunningTime.Round(time.Millisecond))
}

// LogSummary writes the outcome of the run to the global logger.
func (r *Report) LogSummary() {
	log.Info().
		Int("scenarios", r.Scenarios.Total).
		Int("failed", r.Scenarios.Failure).
		Int("errored", r.Scenarios.Error).
		Int("unique_failures", len(r.Failures)).
		Dur("running_time", r.RunningTime).
		Bool("interrupted", r.Interrupted).
		Msg("Run finished")
}
