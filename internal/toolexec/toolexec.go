// Package toolexec dispatches a fixed set of in-process tools with
// resource bounds (C5). It is callable both by the agent loop's tool-call
// execution and by the MCP bridge.
package toolexec

import (
	"context"
	"fmt"
	"sync"

	engerrors "github.com/Aman-CERP/docquery/internal/errors"
)

// Hard resource caps (§4.5). checkArgCaps enforces the payload, chunk_ids,
// top_k, pattern-length and context-line caps before dispatch; grep_chunks
// truncates its chunk set to MaxGrepChunks. MaxRegexDFABytes is not
// checked anywhere.
const (
	MaxArgsPayloadBytes = 100 * 1024
	MaxChunkIDs         = 200
	MaxTopK             = 500
	MaxRegexBytes       = 500
	MaxRegexDFABytes    = 1 << 20
	MaxGrepContextLines = 20
	MaxGrepChunks       = 5000
)

// Handler executes one tool call given its raw JSON arguments and returns a
// result value to be marshaled back to the caller.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one registry entry: name, JSON-schema-shaped parameter
// description (consumed by the agent loop to advertise tool specs to the
// provider), and the handler that executes it.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema "properties"/"required" shape
	Handler     Handler
}

// Limits is the effective set of resource caps enforced before dispatch.
// Zero fields fall back to the package's hard ceilings. Limits may only
// tighten those ceilings, never loosen them — §4.5's caps are a MUST, not
// a default.
type Limits struct {
	MaxArgsPayloadBytes int
	MaxChunkIDs         int
	MaxTopK             int
	MaxRegexBytes       int
	MaxGrepContextLines int
}

// Registry is the fixed set of tools available to an agent's tool loop.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	limits Limits
}

// NewRegistry constructs an empty registry with the package's hard caps.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool), limits: hardLimits()}
}

// SetLimits tightens the registry's enforced caps to whatever in limits is
// lower than the package ceiling; a zero or out-of-range field is ignored.
func (r *Registry) SetLimits(limits Limits) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits = tighten(hardLimits(), limits)
}

func hardLimits() Limits {
	return Limits{
		MaxArgsPayloadBytes: MaxArgsPayloadBytes,
		MaxChunkIDs:         MaxChunkIDs,
		MaxTopK:             MaxTopK,
		MaxRegexBytes:       MaxRegexBytes,
		MaxGrepContextLines: MaxGrepContextLines,
	}
}

func tighten(ceiling, requested Limits) Limits {
	return Limits{
		MaxArgsPayloadBytes: tightenOne(ceiling.MaxArgsPayloadBytes, requested.MaxArgsPayloadBytes),
		MaxChunkIDs:         tightenOne(ceiling.MaxChunkIDs, requested.MaxChunkIDs),
		MaxTopK:             tightenOne(ceiling.MaxTopK, requested.MaxTopK),
		MaxRegexBytes:       tightenOne(ceiling.MaxRegexBytes, requested.MaxRegexBytes),
		MaxGrepContextLines: tightenOne(ceiling.MaxGrepContextLines, requested.MaxGrepContextLines),
	}
}

func tightenOne(ceiling, requested int) int {
	if requested > 0 && requested < ceiling {
		return requested
	}
	return ceiling
}

// Register adds a tool. Registering the same name twice is a programmer
// error (panics), since the registry is built once at startup from a fixed
// set of tools, never dynamically.
func (r *Registry) Register(t *Tool) {
	if t == nil || t.Name == "" {
		panic("toolexec: tool must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		panic(fmt.Sprintf("toolexec: tool %q already registered", t.Name))
	}
	r.tools[t.Name] = t
}

// List returns all registered tools, for schema advertisement.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Execute dispatches name with args after enforcing the hard resource caps.
// A cap violation is an InvalidArgument EngineError, never a panic or a
// loop-aborting failure — callers (the agent loop) surface it as a tool
// result, not a fatal error.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	limits := r.limits
	r.mu.RUnlock()
	if !ok {
		return nil, engerrors.ValidationError(fmt.Sprintf("unknown tool %q", name), nil)
	}

	if err := checkArgCaps(args, limits); err != nil {
		return nil, err
	}

	return t.Handler(ctx, args)
}

func checkArgCaps(args map[string]any, limits Limits) error {
	size := estimateSize(args)
	if size > limits.MaxArgsPayloadBytes {
		return engerrors.ValidationError(fmt.Sprintf("tool arguments payload exceeds %d bytes", limits.MaxArgsPayloadBytes), nil)
	}

	if ids, ok := args["chunk_ids"]; ok {
		if list, ok := ids.([]any); ok && len(list) > limits.MaxChunkIDs {
			return engerrors.ValidationError(fmt.Sprintf("chunk_ids exceeds %d entries", limits.MaxChunkIDs), nil)
		}
	}

	if topK, ok := args["top_k"]; ok {
		if n, ok := asInt(topK); ok && n > limits.MaxTopK {
			return engerrors.ValidationError(fmt.Sprintf("top_k exceeds %d", limits.MaxTopK), nil)
		}
	}

	if pattern, ok := args["pattern"]; ok {
		if s, ok := pattern.(string); ok && len(s) > limits.MaxRegexBytes {
			return engerrors.ValidationError(fmt.Sprintf("regex pattern exceeds %d bytes", limits.MaxRegexBytes), nil)
		}
	}

	if ctxLines, ok := args["context_lines"]; ok {
		if n, ok := asInt(ctxLines); ok && n > limits.MaxGrepContextLines {
			return engerrors.ValidationError(fmt.Sprintf("context_lines exceeds %d", limits.MaxGrepContextLines), nil)
		}
	}

	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// estimateSize is a cheap upper bound on the serialized size of args,
// avoiding a full JSON marshal just to enforce a size cap.
func estimateSize(args map[string]any) int {
	total := 0
	for k, v := range args {
		total += len(k) + sizeOfValue(v)
	}
	return total
}

func sizeOfValue(v any) int {
	switch val := v.(type) {
	case string:
		return len(val)
	case []any:
		n := 0
		for _, item := range val {
			n += sizeOfValue(item)
		}
		return n
	case map[string]any:
		return estimateSize(val)
	default:
		return 8
	}
}
