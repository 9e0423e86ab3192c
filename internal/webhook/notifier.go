// Package webhook delivers processing results to the downstream consumer
// via outbound HTTP callbacks. This is the only way results leave the
// worker; nothing is persisted locally.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/waveflow/audio-worker/internal/model"
)

// Endpoint is a named callback path under the configured base URL.
type Endpoint string

const (
	EndpointHashCheck      Endpoint = "hash-check"
	EndpointCompletion     Endpoint = "completion"
	EndpointMixingComplete Endpoint = "mixing-complete"
	EndpointDuplicateDone  Endpoint = "duplicate-delete-complete"
	EndpointWaveformUpdate Endpoint = "waveform-update"
)

// EndpointFor returns the callback endpoint a task kind reports to, if any.
func EndpointFor(kind model.Kind) (Endpoint, bool) {
	switch kind {
	case model.KindHashAndNotify:
		return EndpointHashCheck, true
	case model.KindAnalyzeAudio:
		return EndpointCompletion, true
	case model.KindMixStems:
		return EndpointMixingComplete, true
	case model.KindDeleteDuplicate:
		return EndpointDuplicateDone, true
	}
	return "", false
}

// envelope is the wire shape every callback carries.
type envelope struct {
	JobID     string       `json:"job_id"`
	Status    model.Status `json:"status"`
	Result    any          `json:"result"`
	Timestamp string       `json:"timestamp"`
}

// Notifier posts JSON result envelopes to {baseURL}/{endpoint}.
type Notifier struct {
	baseURL string
	client  *http.Client
}

// New creates a Notifier with the given base URL and request timeout.
func New(baseURL string, timeout time.Duration) *Notifier {
	return &Notifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Notify POSTs a result envelope. A non-2xx response or transport failure
// is returned as an error; the caller decides whether it matters.
func (n *Notifier) Notify(ctx context.Context, endpoint Endpoint, jobID string, result any, status model.Status) error {
	payload := envelope{
		JobID:     jobID,
		Status:    status,
		Result:    result,
		Timestamp: model.Timestamp(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s", n.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook %s: %w", endpoint, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", endpoint, resp.StatusCode)
	}
	return nil
}
