package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pyneda/kensa/pkg/scan/events"
	"github.com/pyneda/kensa/pkg/scan/recorder"
	"github.com/pyneda/kensa/pkg/transport"
	"gopkg.in/yaml.v3"
)

// CassetteInteraction is one request/response pair in a cassette file.
type CassetteInteraction struct {
	ID         int               `yaml:"id"`
	Status     string            `yaml:"status"`
	Seed       int64             `yaml:"seed"`
	Operation  string            `yaml:"operation"`
	Mode       string            `yaml:"data_generation_method,omitempty"`
	Meta       *CassetteMeta     `yaml:"meta,omitempty"`
	Phase      string            `yaml:"phase,omitempty"`
	Elapsed    string            `yaml:"elapsed"`
	RecordedAt string            `yaml:"recorded_at"`
	Checks     []CassetteCheck   `yaml:"checks"`
	Request    CassetteRequest   `yaml:"request"`
	Response   *CassetteResponse `yaml:"response"`
}

type CassetteMeta struct {
	Description       string `yaml:"description,omitempty"`
	Location          string `yaml:"location,omitempty"`
	Parameter         string `yaml:"parameter,omitempty"`
	ParameterLocation string `yaml:"parameter_location,omitempty"`
}

type CassetteCheck struct {
	Name    string `yaml:"name"`
	Status  string `yaml:"status"`
	Message string `yaml:"message,omitempty"`
}

type CassetteBody struct {
	Encoding string `yaml:"encoding"`
	String   string `yaml:"string"`
}

type CassetteRequest struct {
	URI     string              `yaml:"uri"`
	Method  string              `yaml:"method"`
	Headers map[string][]string `yaml:"headers"`
	Body    *CassetteBody       `yaml:"body,omitempty"`
}

type CassetteStatus struct {
	Code    int    `yaml:"code"`
	Message string `yaml:"message"`
}

type CassetteResponse struct {
	Status  CassetteStatus      `yaml:"status"`
	Headers map[string][]string `yaml:"headers"`
	Body    *CassetteBody       `yaml:"body,omitempty"`
}

// CassetteWriter streams recorded interactions to a YAML cassette as
// scenarios finish.
type CassetteWriter struct {
	mu      sync.Mutex
	w       io.Writer
	closer  io.Closer
	command string
	seed    int64
	nextID  int
	started bool
	err     error
}

func NewCassetteWriter(w io.Writer, command string, seed int64) *CassetteWriter {
	return &CassetteWriter{w: w, command: command, seed: seed, nextID: 1}
}

// CreateCassette opens path for writing and returns a writer that closes
// the file on Close.
func CreateCassette(path, command string, seed int64) (*CassetteWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating cassette: %w", err)
	}
	c := NewCassetteWriter(f, command, seed)
	c.closer = f
	return c, nil
}

// Handle writes the interactions of finished scenarios. It can be passed to
// Collector.OnEvent.
func (c *CassetteWriter) Handle(event events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	switch ev := event.(type) {
	case *events.EngineStarted:
		c.writeHeader()
	case *events.ScenarioFinished:
		if ev.Recorder == nil {
			return
		}
		c.writeHeader()
		interactions := c.interactions(ev.Phase, ev.Recorder)
		if len(interactions) == 0 {
			return
		}
		out, err := yaml.Marshal(interactions)
		if err != nil {
			c.err = fmt.Errorf("encoding cassette interactions: %w", err)
			return
		}
		_, c.err = c.w.Write(out)
	}
}

func (c *CassetteWriter) writeHeader() {
	if c.started {
		return
	}
	c.started = true
	header := struct {
		Command      string `yaml:"command"`
		RecordedWith string `yaml:"recorded_with"`
	}{c.command, "kensa"}
	out, err := yaml.Marshal(header)
	if err != nil {
		c.err = err
		return
	}
	if _, c.err = c.w.Write(out); c.err != nil {
		return
	}
	_, c.err = io.WriteString(c.w, "http_interactions:\n")
}

func (c *CassetteWriter) interactions(phase events.PhaseName, rec *recorder.ScenarioRecorder) []CassetteInteraction {
	var out []CassetteInteraction
	for _, cs := range rec.Cases() {
		checks := rec.Checks(cs.ID)
		for _, interaction := range rec.Interactions(cs.ID) {
			item := CassetteInteraction{
				ID:         c.nextID,
				Seed:       c.seed,
				Operation:  rec.Label,
				Phase:      string(phase),
				Elapsed:    "0",
				RecordedAt: interaction.Timestamp.UTC().Format(time.RFC3339Nano),
				Checks:     []CassetteCheck{},
				Request:    cassetteRequest(interaction.Request),
			}
			c.nextID++
			if cs.Meta != nil {
				item.Mode = string(cs.Meta.Generation.Mode)
				if data := cs.Meta.Phase.Data; data != nil {
					item.Meta = &CassetteMeta{
						Description:       data.Description,
						Location:          data.Location,
						Parameter:         data.Parameter,
						ParameterLocation: string(data.ParameterLocation),
					}
				}
			}
			item.Status = strings.ToUpper(events.StatusSuccess.String())
			for _, check := range checks {
				entry := CassetteCheck{Name: check.Name, Status: strings.ToUpper(string(check.Status))}
				if check.Failure != nil {
					entry.Message = check.Failure.Message
					item.Status = strings.ToUpper(events.StatusFailure.String())
				}
				item.Checks = append(item.Checks, entry)
			}
			if interaction.Response != nil {
				item.Elapsed = fmt.Sprintf("%.3f", interaction.Response.Elapsed.Seconds())
				item.Response = cassetteResponse(interaction.Response)
			} else {
				item.Status = strings.ToUpper(events.StatusError.String())
			}
			out = append(out, item)
		}
	}
	return out
}

func cassetteRequest(r *transport.Request) CassetteRequest {
	if r == nil {
		return CassetteRequest{Headers: map[string][]string{}}
	}
	return CassetteRequest{
		URI:     r.URL,
		Method:  r.Method,
		Headers: copyHeaders(r.Headers),
		Body:    cassetteBody(r.Body),
	}
}

func cassetteResponse(r *transport.Response) *CassetteResponse {
	return &CassetteResponse{
		Status:  CassetteStatus{Code: r.StatusCode, Message: r.Message},
		Headers: copyHeaders(r.Headers),
		Body:    cassetteBody(r.Body),
	}
}

func copyHeaders(headers map[string][]string) map[string][]string {
	out := make(map[string][]string, len(headers))
	for name, values := range headers {
		out[name] = append([]string(nil), values...)
	}
	return out
}

func cassetteBody(body []byte) *CassetteBody {
	if len(body) == 0 {
		return nil
	}
	if utf8.Valid(body) && !bytes.ContainsRune(body, 0) {
		return &CassetteBody{Encoding: "utf-8", String: string(body)}
	}
	return &CassetteBody{Encoding: "base64", String: base64.StdEncoding.EncodeToString(body)}
}

// Err returns the first write error, if any.
func (c *CassetteWriter) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *CassetteWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started && c.err == nil {
		c.writeHeader()
	}
	err := c.err
	if c.closer != nil {
		if closeErr := c.closer.Close(); err == nil {
			err = closeErr
		}
		c.closer = nil
	}
	return err
}
