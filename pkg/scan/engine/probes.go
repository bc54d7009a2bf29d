package engine

import (
	"net/http"
	"time"

	"github.com/projectdiscovery/rawhttp"
	"github.com/pyneda/kensa/pkg/scan/control"
	"github.com/pyneda/kensa/pkg/scan/events"
	"github.com/rs/zerolog/log"
)

// NullByteProbeHeader carries a NUL byte to see whether the server rejects it.
const NullByteProbeHeader = "X-Kensa-Probe-Null"

// rawSender sends a request without validating header values.
type rawSender func(method, url string, headers map[string][]string, timeout time.Duration) (*http.Response, error)

func sendRaw(method, url string, headers map[string][]string, timeout time.Duration) (*http.Response, error) {
	options := *rawhttp.DefaultOptions
	options.Timeout = timeout
	options.FollowRedirects = false
	options.AutomaticHostHeader = true
	options.AutomaticContentLength = true
	client := rawhttp.NewClient(&options)
	return client.DoRaw(method, url, "", headers, nil)
}

func (e *Engine) runProbing(phase *events.Phase, ctrl *control.ExecutionControl, yield func(events.Event) bool) bool {
	payload := e.probe(sendRaw)
	e.probes = payload
	status := events.StatusSuccess
	for _, probe := range payload.Probes {
		if probe.Outcome == events.ProbeError {
			status = events.StatusError
		}
	}
	if ctrl.IsInterrupted() {
		status = events.StatusInterrupted
	}
	return yield(&events.PhaseFinished{Base: events.NewBase(), Phase: phase, Status: status, Payload: payload})
}

func (e *Engine) probe(send rawSender) *events.ProbePayload {
	headers := make(map[string][]string, len(e.config.Headers)+1)
	for name, value := range e.config.Headers {
		headers[http.CanonicalHeaderKey(name)] = []string{value}
	}
	headers[NullByteProbeHeader] = []string{"\x00"}

	result := events.ProbeResult{Name: events.NullByteInHeaderProbe}
	resp, err := send(http.MethodGet, e.baseURL(), headers, e.config.ProbeTimeout)
	switch {
	case err != nil:
		result.Outcome = events.ProbeError
		result.Err = err
		log.Warn().Err(err).Str("url", e.baseURL()).Msg("Probe request failed")
	case resp.StatusCode == http.StatusBadRequest:
		result.Outcome = events.ProbeFailure
	default:
		result.Outcome = events.ProbeSuccess
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	log.Debug().Str("probe", result.Name).Int("outcome", int(result.Outcome)).Msg("Probe finished")
	return &events.ProbePayload{Probes: []events.ProbeResult{result}}
}
