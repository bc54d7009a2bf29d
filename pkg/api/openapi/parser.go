package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
	"github.com/pyneda/kensa/pkg/api/core"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// methodOrder fixes the order operations of one path are produced in.
var methodOrder = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

// OpenAPI ignores header parameters with these names.
var ignoredHeaders = map[string]bool{"accept": true, "content-type": true, "authorization": true}

type Parser struct {
	BaseURL string
}

func NewParser() *Parser {
	return &Parser{}
}

// WithBaseURL overrides the server declared in the document.
func (p *Parser) WithBaseURL(baseURL string) *Parser {
	p.BaseURL = baseURL
	return p
}

// Parse loads an OpenAPI 3 or Swagger 2 document in JSON or YAML form.
func (p *Parser) Parse(raw []byte) (*Specification, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty raw definition")
	}

	var probe struct {
		OpenAPI string `json:"openapi" yaml:"openapi"`
		Swagger string `json:"swagger" yaml:"swagger"`
	}
	if err := yaml.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("failed to decode API definition: %w", err)
	}

	apiType := core.APITypeOpenAPI
	versionString := probe.OpenAPI
	if probe.OpenAPI == "" {
		if !strings.HasPrefix(probe.Swagger, "2") {
			return nil, fmt.Errorf("unsupported API definition: no openapi or swagger version")
		}
		apiType = core.APITypeSwagger
		versionString = probe.Swagger
		converted, err := convertSwagger(raw)
		if err != nil {
			return nil, err
		}
		raw = converted
	}

	version, err := semver.NewVersion(versionString)
	if err != nil {
		return nil, fmt.Errorf("invalid specification version %q: %w", versionString, err)
	}

	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI spec: %w", err)
	}

	baseURL := p.BaseURL
	if baseURL == "" && len(doc.Servers) > 0 {
		baseURL = doc.Servers[0].URL
	}

	spec := &Specification{
		Kind:       apiType,
		Version:    version,
		Operations: core.NewOperationSet(apiType, baseURL),
	}
	if doc.Info != nil {
		spec.Title = doc.Info.Title
	}
	if doc.Paths == nil {
		return spec, nil
	}

	paths := doc.Paths.Map()
	names := make([]string, 0, len(paths))
	for path := range paths {
		names = append(names, path)
	}
	sort.Strings(names)

	for _, path := range names {
		item := paths[path]
		byMethod := make(map[string]*openapi3.Operation)
		for method, op := range item.Operations() {
			byMethod[strings.ToLower(method)] = op
		}
		declared := make([]string, 0, len(byMethod))
		for _, method := range methodOrder {
			if _, ok := byMethod[method]; ok {
				declared = append(declared, method)
			}
		}
		for _, method := range declared {
			operation, err := p.parseOperation(baseURL, path, method, item, byMethod[method], doc)
			if err != nil {
				spec.Errors = append(spec.Errors, OperationError{Label: strings.ToUpper(method) + " " + path, Err: err})
				continue
			}
			operation.APIType = apiType
			operation.PathMethods = declared
			spec.Operations.Add(operation)
		}
	}

	log.Debug().
		Int("operations", spec.Operations.Count()).
		Int("errors", len(spec.Errors)).
		Str("version", version.String()).
		Str("base_url", baseURL).
		Msg("Parsed API definition")

	return spec, nil
}

// convertSwagger upgrades a Swagger 2 document to OpenAPI 3 JSON.
func convertSwagger(raw []byte) ([]byte, error) {
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to decode Swagger document: %w", err)
	}
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode Swagger document: %w", err)
	}
	var doc openapi2.T
	if err := json.Unmarshal(asJSON, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse Swagger document: %w", err)
	}
	upgraded, err := openapi2conv.ToV3(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert Swagger document: %w", err)
	}
	return json.Marshal(upgraded)
}

func (p *Parser) parseOperation(baseURL, path, method string, item *openapi3.PathItem, op *openapi3.Operation, doc *openapi3.T) (core.Operation, error) {
	operation := core.Operation{
		ID:          uuid.New(),
		Method:      method,
		Path:        path,
		BaseURL:     baseURL,
		OperationID: op.OperationID,
		Summary:     op.Summary,
		Deprecated:  op.Deprecated,
		Tags:        op.Tags,
	}

	// Operation level parameters override path level ones with the same
	// name and location.
	seen := make(map[string]bool)
	for _, params := range []openapi3.Parameters{op.Parameters, item.Parameters} {
		for _, paramRef := range params {
			if paramRef == nil || paramRef.Value == nil {
				return operation, fmt.Errorf("unresolved parameter reference in %s %s", method, path)
			}
			param := paramRef.Value
			key := param.In + ":" + param.Name
			if seen[key] {
				continue
			}
			seen[key] = true
			if param.In == "header" && ignoredHeaders[strings.ToLower(param.Name)] {
				continue
			}
			parsed, err := p.parseParameter(param)
			if err != nil {
				return operation, err
			}
			operation.Parameters = append(operation.Parameters, parsed)
		}
	}

	if op.RequestBody != nil {
		if op.RequestBody.Value == nil {
			return operation, fmt.Errorf("unresolved request body reference %q", op.RequestBody.Ref)
		}
		operation.Body = p.parseRequestBody(op.RequestBody.Value)
	}

	label := operation.Label()
	if op.Responses != nil {
		statuses := make([]string, 0)
		responses := op.Responses.Map()
		for status := range responses {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			ref := responses[status]
			if ref == nil || ref.Value == nil {
				continue
			}
			operation.Responses = append(operation.Responses, p.parseResponse(status, ref.Value))
			operation.Links = append(operation.Links, p.parseLinks(label, status, ref.Value)...)
		}
	}

	operation.Security = p.parseSecurityRequirements(op, doc)
	return operation, nil
}

func (p *Parser) parseParameter(param *openapi3.Parameter) (core.Parameter, error) {
	location := core.ParameterLocation(param.In)
	if !location.IsValid() || location == core.ParameterLocationBody {
		return core.Parameter{}, fmt.Errorf("parameter %q has unsupported location %q", param.Name, param.In)
	}
	coreParam := core.Parameter{
		Name:        param.Name,
		Location:    location,
		Required:    param.Required || location == core.ParameterLocationPath,
		Description: param.Description,
		Deprecated:  param.Deprecated,
		Style:       param.Style,
		Explode:     param.Explode,
	}

	schemaRef := param.Schema
	if schemaRef == nil {
		for _, mediaType := range sortedContent(param.Content) {
			if mediaType.Schema != nil {
				schemaRef = mediaType.Schema
				break
			}
		}
	}
	coreParam.Schema = ConvertSchema(schemaRef, true)

	if param.Example != nil {
		coreParam.Examples = append(coreParam.Examples, param.Example)
	}
	coreParam.Examples = append(coreParam.Examples, exampleValues(param.Examples)...)
	return coreParam, nil
}

func (p *Parser) parseRequestBody(body *openapi3.RequestBody) []core.Body {
	var bodies []core.Body
	mediaTypes := make([]string, 0, len(body.Content))
	for mediaType := range body.Content {
		mediaTypes = append(mediaTypes, mediaType)
	}
	sort.Strings(mediaTypes)

	for _, name := range mediaTypes {
		mediaType := body.Content[name]
		if mediaType == nil {
			continue
		}
		b := core.Body{
			MediaType: name,
			Required:  body.Required,
			Schema:    ConvertSchema(mediaType.Schema, true),
		}
		if mediaType.Example != nil {
			b.Examples = append(b.Examples, mediaType.Example)
		}
		b.Examples = append(b.Examples, exampleValues(mediaType.Examples)...)
		bodies = append(bodies, b)
	}
	return bodies
}

func (p *Parser) parseResponse(status string, response *openapi3.Response) core.Response {
	out := core.Response{Status: status}
	if response.Description != nil {
		out.Description = *response.Description
	}
	if len(response.Content) > 0 {
		out.Content = make(map[string]map[string]any, len(response.Content))
		for mediaType, content := range response.Content {
			if content == nil {
				continue
			}
			out.Content[mediaType] = ConvertSchema(content.Schema, false)
		}
	}
	if len(response.Headers) > 0 {
		out.Headers = make(map[string]map[string]any, len(response.Headers))
		for name, header := range response.Headers {
			if header == nil || header.Value == nil {
				continue
			}
			out.Headers[name] = ConvertSchema(header.Value.Schema, false)
		}
	}
	return out
}

func (p *Parser) parseLinks(source, status string, response *openapi3.Response) []core.Link {
	names := make([]string, 0, len(response.Links))
	for name := range response.Links {
		names = append(names, name)
	}
	sort.Strings(names)

	var links []core.Link
	for _, name := range names {
		ref := response.Links[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		target := ref.Value.OperationID
		if target == "" {
			target = ref.Value.OperationRef
		}
		if target == "" {
			continue
		}
		params := make(map[string]string, len(ref.Value.Parameters))
		for param, expression := range ref.Value.Parameters {
			if s, ok := expression.(string); ok {
				params[param] = s
			}
		}
		links = append(links, core.Link{
			Name:       name,
			Status:     status,
			Source:     source,
			Target:     target,
			Parameters: params,
		})
	}
	return links
}

func (p *Parser) parseSecurityRequirements(op *openapi3.Operation, doc *openapi3.T) []core.SecurityRequirement {
	var reqs []core.SecurityRequirement

	securityReqs := doc.Security
	if op.Security != nil {
		securityReqs = *op.Security
	}

	for _, req := range securityReqs {
		for schemeName, scopes := range req {
			secReq := core.SecurityRequirement{
				Name:   schemeName,
				Scopes: scopes,
			}

			if doc.Components != nil && doc.Components.SecuritySchemes != nil {
				if schemeRef, ok := doc.Components.SecuritySchemes[schemeName]; ok && schemeRef.Value != nil {
					secReq.Type = schemeRef.Value.Type
				}
			}

			reqs = append(reqs, secReq)
		}
	}

	return reqs
}

func sortedContent(content openapi3.Content) []*openapi3.MediaType {
	names := make([]string, 0, len(content))
	for name := range content {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*openapi3.MediaType, 0, len(names))
	for _, name := range names {
		if content[name] != nil {
			out = append(out, content[name])
		}
	}
	return out
}

func exampleValues(examples openapi3.Examples) []any {
	names := make([]string, 0, len(examples))
	for name := range examples {
		names = append(names, name)
	}
	sort.Strings(names)
	var values []any
	for _, name := range names {
		ref := examples[name]
		if ref == nil || ref.Value == nil || ref.Value.Value == nil {
			continue
		}
		values = append(values, ref.Value.Value)
	}
	return values
}

func ParseFromRawDefinition(rawDefinition []byte) (*Specification, error) {
	return NewParser().Parse(rawDefinition)
}

// Load reads a definition from a file path or an http(s) URL.
func (p *Parser) Load(ctx context.Context, location string, client *http.Client) (*Specification, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		raw, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("failed to read API definition: %w", err)
		}
		return p.Parse(raw)
	}
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch API definition: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("failed to fetch API definition: unexpected status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read API definition: %w", err)
	}
	return p.Parse(raw)
}
