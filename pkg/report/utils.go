package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gosimple/slug"
	"github.com/pyneda/kensa/pkg/scan/events"
	"github.com/rs/zerolog/log"
)

// sortPhases keeps phases in execution order
func sortPhases(phases []*PhaseSummary) {
	order := make(map[events.PhaseName]int, len(events.PhaseNames))
	for i, name := range events.PhaseNames {
		order[name] = i
	}
	sort.SliceStable(phases, func(i, j int) bool {
		return order[phases[i].Name] < order[phases[j].Name]
	})
}

// sortErrors puts the most frequent errors first, then sorts by title
func sortErrors(groups []*ErrorGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return strings.ToLower(groups[i].Title) < strings.ToLower(groups[j].Title)
	})
	for _, group := range groups {
		sort.Strings(group.Labels)
	}
}

// ReproductionFileName is the file name used for the reproduction script of
// an operation, e.g. "get-users-id.sh".
func ReproductionFileName(label string) string {
	name := slug.Make(label)
	if name == "" {
		name = "operation"
	}
	return name + ".sh"
}

// WriteReproductions writes one shell script per operation with failures,
// holding the curl command of every unique failure. It returns the paths
// that were written.
func (r *Report) WriteReproductions(dir string) ([]string, error) {
	if len(r.Failures) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating reproduction directory: %w", err)
	}

	byOperation := map[string][]*FailureEntry{}
	var labels []string
	for _, failure := range r.Failures {
		if _, ok := byOperation[failure.Label]; !ok {
			labels = append(labels, failure.Label)
		}
		byOperation[failure.Label] = append(byOperation[failure.Label], failure)
	}

	var written []string
	for _, label := range labels {
		var b strings.Builder
		b.WriteString("#!/bin/sh\n")
		fmt.Fprintf(&b, "# %s\n", label)
		for _, failure := range byOperation[label] {
			fmt.Fprintf(&b, "\n# %s [%s]\n", failure.Title, failure.Check)
			if failure.Message != "" {
				for _, line := range strings.Split(failure.Message, "\n") {
					fmt.Fprintf(&b, "# %s\n", line)
				}
			}
			b.WriteString(failure.CodeSample)
			b.WriteString("\n")
		}
		path := filepath.Join(dir, ReproductionFileName(label))
		if err := os.WriteFile(path, []byte(b.String()), 0o755); err != nil {
			return written, fmt.Errorf("writing reproduction for %s: %w", label, err)
		}
		log.Debug().Str("operation", label).Str("path", path).Msg("Wrote reproduction script")
		written = append(written, path)
	}
	return written, nil
}
