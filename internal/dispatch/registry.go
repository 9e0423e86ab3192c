package dispatch

import (
	"errors"
	"fmt"

	"github.com/waveflow/audio-worker/internal/executor"
	"github.com/waveflow/audio-worker/internal/model"
)

// ErrUnknownKind marks a well-formed message naming a task this worker
// cannot act on. Distinct from malformed decoding: the message is valid,
// the router just has no handler for it.
var ErrUnknownKind = errors.New("unknown task kind")

// Registry is the closed mapping from task kind to handler.
type Registry struct {
	handlers map[model.Kind]executor.Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.Kind]executor.Handler)}
}

// Register binds a handler to a kind.
func (r *Registry) Register(kind model.Kind, h executor.Handler) {
	r.handlers[kind] = h
}

// Resolve returns the handler for a kind, rejecting names outside the
// closed kind set as well as known kinds nothing was registered for.
func (r *Registry) Resolve(kind model.Kind) (executor.Handler, error) {
	if _, ok := model.ParseKind(string(kind)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q has no registered handler", ErrUnknownKind, kind)
	}
	return h, nil
}
