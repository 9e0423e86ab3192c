// Package dispatch turns opaque queue message bodies into typed task
// invocations. Two producer formats are tolerated: the wrapped protocol
// envelope ({headers:{task,id},body:"[args,kwargs]"}) and the direct shape
// where the object itself carries the task fields or is the argument set.
package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/waveflow/audio-worker/internal/model"
)

// Malformed-message reasons. Messages classified as malformed are deletable
// without processing: redelivering garbage bytes cannot become valid.
const (
	ReasonEmpty       = "empty"
	ReasonInvalidJSON = "invalid_json"
	ReasonDegenerate  = "degenerate"
)

// MalformedError marks a message body that can never decode into a task.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed message: %s", e.Reason)
}

// wrappedEnvelope is the protocol envelope some producers emit: the task
// name and id live in headers, and body is a JSON string holding a
// two-element array of [positionalArgs, keywordArgs].
type wrappedEnvelope struct {
	Headers struct {
		Task    string `json:"task"`
		ID      string `json:"id"`
		Retries int    `json:"retries"`
	} `json:"headers"`
	Body string `json:"body"`
}

// directEnvelope is the plain shape: optional task/id/attempt fields plus
// either an explicit kwargs object or bare domain fields.
type directEnvelope struct {
	Task    string         `json:"task"`
	ID      string         `json:"id"`
	Kwargs  map[string]any `json:"kwargs"`
	Attempt int            `json:"attempt"`
}

// Decode parses a raw message body into an Invocation. It never panics on
// arbitrary input; undecodable bodies come back as *MalformedError.
// defaultKind is assumed for direct messages that carry no task name.
func Decode(raw []byte, defaultKind model.Kind) (model.Invocation, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return model.Invocation{}, &MalformedError{Reason: ReasonEmpty}
	}

	var generic any
	if err := json.Unmarshal(trimmed, &generic); err != nil {
		return model.Invocation{}, &MalformedError{Reason: ReasonInvalidJSON}
	}
	if degenerate(generic) {
		return model.Invocation{}, &MalformedError{Reason: ReasonDegenerate}
	}

	if inv, ok := decodeWrapped(trimmed); ok {
		return inv, nil
	}
	return decodeDirect(trimmed, defaultKind)
}

// degenerate reports whether the parsed value carries no usable content:
// null, "", {}, or [].
func degenerate(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

// decodeWrapped attempts the wrapped-envelope parse. ok is false when the
// message is not in that shape at all; a wrapped message with an
// unreadable body still returns ok=true with a malformed invocation error
// folded into the direct path by the caller.
func decodeWrapped(raw []byte) (model.Invocation, bool) {
	var env wrappedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Headers.Task == "" {
		return model.Invocation{}, false
	}

	args := map[string]any{}
	var body []json.RawMessage
	if err := json.Unmarshal([]byte(env.Body), &body); err == nil && len(body) >= 2 {
		var kwargs map[string]any
		if err := json.Unmarshal(body[1], &kwargs); err == nil && kwargs != nil {
			args = kwargs
		}
	}

	id := env.Headers.ID
	if id == "" {
		id = uuid.NewString()
	}

	return model.Invocation{
		Kind:    model.Kind(env.Headers.Task),
		ID:      id,
		Args:    args,
		Attempt: env.Headers.Retries,
	}, true
}

func decodeDirect(raw []byte, defaultKind model.Kind) (model.Invocation, error) {
	var env directEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.Invocation{}, &MalformedError{Reason: ReasonInvalidJSON}
	}

	kind := defaultKind
	if env.Task != "" {
		kind = model.Kind(env.Task)
	}

	id := env.ID
	if id == "" {
		id = uuid.NewString()
	}

	args := env.Kwargs
	if args == nil {
		// No explicit kwargs: the whole object is the argument set. This
		// lets a producer send bare domain fields with no envelope.
		var all map[string]any
		if err := json.Unmarshal(raw, &all); err != nil {
			return model.Invocation{}, &MalformedError{Reason: ReasonInvalidJSON}
		}
		delete(all, "task")
		delete(all, "id")
		delete(all, "attempt")
		args = all
	}

	return model.Invocation{
		Kind:    kind,
		ID:      id,
		Args:    args,
		Attempt: env.Attempt,
	}, nil
}
