// Package recorder keeps the append-only ledger of one scenario: the cases
// it generated, what was sent and received for each of them, and the check
// outcomes.
package recorder

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/pyneda/kensa/pkg/checks"
	"github.com/pyneda/kensa/pkg/generation/cases"
	"github.com/pyneda/kensa/pkg/transport"
)

type CheckStatus string

const (
	CheckSuccess CheckStatus = "success"
	CheckFailure CheckStatus = "failure"
)

// CaseNode is a recorded case and its place in the scenario tree.
type CaseNode struct {
	Case     *cases.Case
	ParentID string
	// Transition is set for cases derived from a link.
	Transition *core.Link
}

type CheckNode struct {
	Name       string
	Status     CheckStatus
	Failure    *checks.Failure
	CodeSample string
}

// Interaction is one request and, unless it failed, its response.
type Interaction struct {
	Request   *transport.Request
	Response  *transport.Response
	Timestamp time.Time
}

// FailureData is what is needed to reproduce a failure.
type FailureData struct {
	Case    *cases.Case
	Headers map[string]string
	Verify  bool
}

type ScenarioRecorder struct {
	Label string

	mu           sync.RWMutex
	order        []string
	cases        map[string][]*CaseNode
	checks       map[string][]*CheckNode
	interactions map[string][]*Interaction
}

func New(label string) *ScenarioRecorder {
	return &ScenarioRecorder{
		Label:        label,
		cases:        make(map[string][]*CaseNode),
		checks:       make(map[string][]*CheckNode),
		interactions: make(map[string][]*Interaction),
	}
}

// RecordCase records a case and its relation to a parent case, if any.
func (r *ScenarioRecorder) RecordCase(parentID string, transition *core.Link, c *cases.Case) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.cases[c.ID]; !seen {
		r.order = append(r.order, c.ID)
	}
	r.cases[c.ID] = append(r.cases[c.ID], &CaseNode{Case: c, ParentID: parentID, Transition: transition})
}

// RecordRequest records a request that got no response.
func (r *ScenarioRecorder) RecordRequest(caseID string, request *transport.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interactions[caseID] = append(r.interactions[caseID], &Interaction{Request: request, Timestamp: time.Now()})
}

func (r *ScenarioRecorder) RecordResponse(caseID string, response *transport.Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interactions[caseID] = append(r.interactions[caseID], &Interaction{Request: response.Request, Response: response, Timestamp: time.Now()})
}

func (r *ScenarioRecorder) RecordCheckSuccess(name, caseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[caseID] = append(r.checks[caseID], &CheckNode{Name: name, Status: CheckSuccess})
}

func (r *ScenarioRecorder) RecordCheckFailure(name, caseID, codeSample string, failure *checks.Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[caseID] = append(r.checks[caseID], &CheckNode{Name: name, Status: CheckFailure, Failure: failure, CodeSample: codeSample})
}

func (r *ScenarioRecorder) node(caseID string) *CaseNode {
	nodes := r.cases[caseID]
	if len(nodes) == 0 {
		return nil
	}
	return nodes[len(nodes)-1]
}

func (r *ScenarioRecorder) interaction(caseID string) *Interaction {
	items := r.interactions[caseID]
	if len(items) == 0 {
		return nil
	}
	return items[len(items)-1]
}

// FindFailureData resolves the case and request a failure came from. A
// failure may point at a case created by the check itself; otherwise it
// belongs to parentID.
func (r *ScenarioRecorder) FindFailureData(parentID string, failure *checks.Failure) (*FailureData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caseID := parentID
	if failure != nil && failure.CaseID != "" {
		caseID = failure.CaseID
	}
	node := r.node(caseID)
	if node == nil {
		return nil, fmt.Errorf("case %s was not recorded", caseID)
	}
	interaction := r.interaction(caseID)
	if interaction == nil || interaction.Request == nil {
		return nil, fmt.Errorf("case %s has no recorded request", caseID)
	}
	data := &FailureData{Case: node.Case, Headers: make(map[string]string, len(interaction.Request.Headers))}
	for name, values := range interaction.Request.Headers {
		if len(values) > 0 {
			data.Headers[name] = values[0]
		}
	}
	if interaction.Response != nil {
		data.Verify = interaction.Response.Verify
	}
	return data, nil
}

// CodeSample returns the curl command reproducing the request of a case.
func (r *ScenarioRecorder) CodeSample(caseID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	interaction := r.interaction(caseID)
	if interaction == nil || interaction.Request == nil {
		return ""
	}
	verify := interaction.Response != nil && interaction.Response.Verify
	return interaction.Request.Curl(verify)
}

// FindParent returns the parent case of a case, if any.
func (r *ScenarioRecorder) FindParent(caseID string) *cases.Case {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node := r.node(caseID)
	if node == nil || node.ParentID == "" {
		return nil
	}
	if parent := r.node(node.ParentID); parent != nil {
		return parent.Case
	}
	return nil
}

// FindRelated returns every case in the tree of caseID, root first, then
// depth first in recording order.
func (r *ScenarioRecorder) FindRelated(caseID string) []*cases.Case {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rootID := caseID
	visited := map[string]bool{}
	for {
		node := r.node(rootID)
		if node == nil || node.ParentID == "" || visited[node.ParentID] {
			break
		}
		visited[rootID] = true
		rootID = node.ParentID
	}

	var out []*cases.Case
	seen := map[string]bool{}
	var traverse func(id string)
	traverse = func(id string) {
		for _, childID := range r.order {
			if seen[childID] {
				continue
			}
			node := r.node(childID)
			if node.ParentID == id {
				seen[childID] = true
				out = append(out, node.Case)
				traverse(childID)
			}
		}
	}
	if root := r.node(rootID); root != nil {
		seen[rootID] = true
		out = append(out, root.Case)
	}
	traverse(rootID)
	return out
}

func (r *ScenarioRecorder) FindResponse(caseID string) *transport.Response {
	r.mu.RLock()
	defer r.mu.RUnlock()
	interaction := r.interaction(caseID)
	if interaction == nil {
		return nil
	}
	return interaction.Response
}

// Cases returns the recorded cases in recording order.
func (r *ScenarioRecorder) Cases() []*cases.Case {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*cases.Case, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.node(id).Case)
	}
	return out
}

func (r *ScenarioRecorder) Checks(caseID string) []*CheckNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*CheckNode(nil), r.checks[caseID]...)
}

func (r *ScenarioRecorder) Interactions(caseID string) []*Interaction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Interaction(nil), r.interactions[caseID]...)
}

// HasFailures reports whether any check failed.
func (r *ScenarioRecorder) HasFailures() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, nodes := range r.checks {
		for _, node := range nodes {
			if node.Status == CheckFailure {
				return true
			}
		}
	}
	return false
}

// RecordedFailure is a deduplicated failure with the first case it was seen on.
type RecordedFailure struct {
	CaseID     string
	Failure    *checks.Failure
	CodeSample string
	// Occurrences counts how many cases produced the same failure.
	Occurrences int
}

var volatileParts = regexp.MustCompile(`0x[0-9a-fA-F]+|\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b|\d+(\.\d+)?\s*ms\b`)

// normalizeMessage strips values that differ between otherwise identical failures.
func normalizeMessage(message string) string {
	message = volatileParts.ReplaceAllString(message, "<...>")
	return strings.Join(strings.Fields(message), " ")
}

func failureKey(f *checks.Failure) string {
	var b strings.Builder
	b.WriteString(f.Check)
	b.WriteByte(0)
	b.WriteString(f.Title)
	b.WriteByte(0)
	b.WriteString(normalizeMessage(f.Message))
	keys := make([]string, 0, len(f.Context))
	for k := range f.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(f.Context[k])
	}
	return b.String()
}

// UniqueFailures collapses failures with the same check, normalized message
// and context into one entry, in first-seen order.
func (r *ScenarioRecorder) UniqueFailures() []*RecordedFailure {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*RecordedFailure
	index := map[string]*RecordedFailure{}
	for _, caseID := range r.order {
		for _, node := range r.checks[caseID] {
			if node.Status != CheckFailure || node.Failure == nil {
				continue
			}
			key := failureKey(node.Failure)
			if existing, ok := index[key]; ok {
				existing.Occurrences++
				continue
			}
			entry := &RecordedFailure{CaseID: caseID, Failure: node.Failure, CodeSample: node.CodeSample, Occurrences: 1}
			index[key] = entry
			out = append(out, entry)
		}
	}
	return out
}
