// Package checks validates API responses against the operation definition
// and the intent of the generated case.
package checks

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pyneda/kensa/pkg/generation"
	"github.com/pyneda/kensa/pkg/generation/cases"
	"github.com/pyneda/kensa/pkg/schema"
	"github.com/pyneda/kensa/pkg/transport"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	NotAServerError           = "not_a_server_error"
	StatusCodeConformance     = "status_code_conformance"
	ContentTypeConformance    = "content_type_conformance"
	ResponseSchemaConformance = "response_schema_conformance"
	NegativeDataRejection     = "negative_data_rejection"
	PositiveDataAcceptance    = "positive_data_acceptance"
)

// Failure is a single failed check.
type Failure struct {
	Check   string            `json:"check" yaml:"check"`
	Title   string            `json:"title" yaml:"title"`
	Message string            `json:"message" yaml:"message"`
	Context map[string]string `json:"context,omitempty" yaml:"context,omitempty"`
	// CaseID points to the case that triggered the failure when it differs
	// from the case being checked.
	CaseID string `json:"case_id,omitempty" yaml:"case_id,omitempty"`
}

func (f *Failure) Error() string {
	if f.Message == "" {
		return f.Title
	}
	return f.Title + ": " + f.Message
}

// Context carries what checks need besides the case and response.
type Context struct {
	Validator *schema.Validator
	// NegativeStatuses are the statuses accepted as a rejection of invalid data.
	NegativeStatuses []string
	// PositiveStatuses are the statuses accepted for valid data.
	PositiveStatuses []string
}

func NewContext() *Context {
	return &Context{
		Validator:        schema.DefaultValidator,
		NegativeStatuses: []string{"400", "401", "403", "404", "405", "406", "409", "413", "414", "415", "422", "428", "5XX"},
		PositiveStatuses: []string{"2XX", "401", "403", "404", "409", "5XX"},
	}
}

type CheckFunc func(ctx *Context, c *cases.Case, resp *transport.Response) *Failure

type Check struct {
	Name string
	Run  CheckFunc
}

var registry = map[string]CheckFunc{
	NotAServerError:           notAServerError,
	StatusCodeConformance:     statusCodeConformance,
	ContentTypeConformance:    contentTypeConformance,
	ResponseSchemaConformance: responseSchemaConformance,
	NegativeDataRejection:     negativeDataRejection,
	PositiveDataAcceptance:    positiveDataAcceptance,
}

// Names returns every registered check name, sorted.
func Names() []string {
	return schema.SortedKeys(registry)
}

// Get resolves check names. An empty list selects all checks.
func Get(names []string) ([]Check, error) {
	if len(names) == 0 {
		names = Names()
	}
	out := make([]Check, 0, len(names))
	for _, name := range names {
		if strings.EqualFold(name, "all") {
			return Get(nil)
		}
		fn, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown check %q, available: %s", name, strings.Join(Names(), ", "))
		}
		out = append(out, Check{Name: name, Run: fn})
	}
	return out, nil
}

// Run executes checks in order, reporting each outcome through the callbacks,
// and returns the failures.
func Run(ctx *Context, c *cases.Case, resp *transport.Response, checks []Check, onSuccess func(name string), onFailure func(name string, failure *Failure)) []*Failure {
	var failures []*Failure
	for _, check := range checks {
		failure := check.Run(ctx, c, resp)
		if failure == nil {
			if onSuccess != nil {
				onSuccess(check.Name)
			}
			continue
		}
		failure.Check = check.Name
		failures = append(failures, failure)
		if onFailure != nil {
			onFailure(check.Name, failure)
		}
	}
	return failures
}

func notAServerError(_ *Context, _ *cases.Case, resp *transport.Response) *Failure {
	if resp.StatusCode < 500 {
		return nil
	}
	return &Failure{
		Title:   "Server error",
		Message: fmt.Sprintf("Received %d %s", resp.StatusCode, resp.Message),
		Context: map[string]string{"status_code": fmt.Sprint(resp.StatusCode)},
	}
}

func statusCodeConformance(_ *Context, c *cases.Case, resp *transport.Response) *Failure {
	if c.Operation == nil || len(c.Operation.Responses) == 0 {
		return nil
	}
	if c.Operation.ResponseFor(resp.StatusCode) != nil {
		return nil
	}
	documented := c.Operation.DocumentedStatuses()
	return &Failure{
		Title:   "Undocumented HTTP status code",
		Message: fmt.Sprintf("Received: %d\nDocumented: %s", resp.StatusCode, strings.Join(documented, ", ")),
		Context: map[string]string{"status_code": fmt.Sprint(resp.StatusCode), "defined": strings.Join(documented, ",")},
	}
}

func contentTypeConformance(_ *Context, c *cases.Case, resp *transport.Response) *Failure {
	if c.Operation == nil {
		return nil
	}
	documented := c.Operation.ResponseFor(resp.StatusCode)
	if documented == nil || len(documented.Content) == 0 {
		return nil
	}
	received := resp.ContentType()
	if received == "" {
		return &Failure{
			Title:   "Missing Content-Type header",
			Message: "The response has no Content-Type header",
			Context: map[string]string{"media_types": strings.Join(schema.SortedKeys(documented.Content), ",")},
		}
	}
	for mediaType := range documented.Content {
		if mediaTypeMatches(mediaType, received) {
			return nil
		}
	}
	return &Failure{
		Title:   "Undocumented Content-Type",
		Message: fmt.Sprintf("Received: %s\nDocumented: %s", received, strings.Join(schema.SortedKeys(documented.Content), ", ")),
		Context: map[string]string{"content_type": received, "defined": strings.Join(schema.SortedKeys(documented.Content), ",")},
	}
}

func responseSchemaConformance(ctx *Context, c *cases.Case, resp *transport.Response) *Failure {
	if c.Operation == nil {
		return nil
	}
	documented := c.Operation.ResponseFor(resp.StatusCode)
	if documented == nil {
		return nil
	}
	received := resp.ContentType()
	if !isJSONMediaType(received) {
		return nil
	}
	var responseSchema map[string]any
	for _, mediaType := range schema.SortedKeys(documented.Content) {
		if mediaTypeMatches(mediaType, received) {
			responseSchema = documented.Content[mediaType]
			break
		}
	}
	if len(responseSchema) == 0 {
		return nil
	}
	data, err := resp.JSON()
	if err != nil {
		return &Failure{
			Title:   "JSON deserialization error",
			Message: err.Error(),
			Context: map[string]string{"content_type": received},
		}
	}
	validator := ctx.Validator
	if validator == nil {
		validator = schema.DefaultValidator
	}
	err = validator.Validate(responseSchema, data)
	if err == nil || schema.IsUnfixable(err) {
		return nil
	}
	message, location := validationMessage(err)
	return &Failure{
		Title:   "Response violates schema",
		Message: message,
		Context: map[string]string{"instance_path": location},
	}
}

func negativeDataRejection(ctx *Context, c *cases.Case, resp *transport.Response) *Failure {
	if c.Meta == nil || c.Meta.Generation.Mode != generation.Negative {
		return nil
	}
	if statusMatches(ctx.NegativeStatuses, resp.StatusCode) {
		return nil
	}
	return &Failure{
		Title:   "API accepted schema-violating request",
		Message: fmt.Sprintf("Invalid data should have been rejected\nExpected: %s\nReceived: %d", strings.Join(ctx.NegativeStatuses, ", "), resp.StatusCode),
		Context: map[string]string{"status_code": fmt.Sprint(resp.StatusCode), "description": c.Meta.Description()},
	}
}

func positiveDataAcceptance(ctx *Context, c *cases.Case, resp *transport.Response) *Failure {
	if c.Meta == nil || c.Meta.Generation.Mode != generation.Positive {
		return nil
	}
	if statusMatches(ctx.PositiveStatuses, resp.StatusCode) {
		return nil
	}
	return &Failure{
		Title:   "API rejected schema-compliant request",
		Message: fmt.Sprintf("Valid data should have been accepted\nExpected: %s\nReceived: %d", strings.Join(ctx.PositiveStatuses, ", "), resp.StatusCode),
		Context: map[string]string{"status_code": fmt.Sprint(resp.StatusCode)},
	}
}

// statusMatches supports exact codes and "4XX" style ranges.
func statusMatches(expected []string, status int) bool {
	code := fmt.Sprint(status)
	for _, item := range expected {
		item = strings.ToUpper(item)
		if item == code || (len(item) == 3 && strings.HasSuffix(item, "XX") && item[0] == code[0]) {
			return true
		}
	}
	return false
}

func mediaTypeMatches(documented, received string) bool {
	documented = strings.ToLower(strings.TrimSpace(strings.Split(documented, ";")[0]))
	received = strings.ToLower(received)
	if documented == received || documented == "*/*" {
		return true
	}
	dMain, dSub, _ := strings.Cut(documented, "/")
	rMain, rSub, _ := strings.Cut(received, "/")
	return (dMain == "*" || dMain == rMain) && (dSub == "*" || dSub == rSub)
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// validationMessage reduces a validation error to its innermost cause.
func validationMessage(err error) (string, string) {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error(), ""
	}
	for len(ve.Causes) > 0 {
		causes := append([]*jsonschema.ValidationError(nil), ve.Causes...)
		sort.Slice(causes, func(i, j int) bool { return causes[i].InstanceLocation < causes[j].InstanceLocation })
		ve = causes[0]
	}
	location := ve.InstanceLocation
	if location == "" {
		location = "/"
	}
	return ve.Message, location
}
