package export

import (
	"context"
	"fmt"
	"sync"
)

// ── Encoder ─────────────────────────────────────────────────
// An Encoder serializes a record collection into one output kind.
// Implementations live in export/encoders/ — one file per kind.
//
// Every encoder runs the Transform pipeline itself, so the same raw
// collection can be handed to several encoders independently, and
// creates missing ancestor directories of the target before writing.

// EncoderSpec describes an output kind. Kind doubles as the target
// suffix appended by multi-format export (prefix + "." + kind).
type EncoderSpec struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
}

// Encoder is the interface every output format must implement.
type Encoder interface {
	// Spec returns metadata about this output kind.
	Spec() EncoderSpec

	// Export transforms the collection and serializes it to target.
	// Returns (false, nil) when the transformed collection is empty —
	// nothing is written and no file is created. A non-nil error means
	// an I/O or encoding fault.
	Export(ctx context.Context, recs []Record, target string, opts Options) (bool, error)
}

// ── Encoder Registry ───────────────────────────────────────
// Compile-time registration via init() in each encoder file. New kinds
// plug in by implementing Encoder and registering; the dispatcher never
// changes. Registration is expected to finish before concurrent use.

var (
	registryMu sync.RWMutex
	registry   = map[string]Encoder{}
)

// RegisterEncoder registers an encoder under its spec kind.
// Re-registering a kind overwrites the previous encoder — last one wins,
// which lets callers override a built-in format.
func RegisterEncoder(e Encoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[e.Spec().Kind] = e
}

// GetEncoder returns the encoder registered for kind.
func GetEncoder(kind string) (Encoder, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown output kind: %q", kind)
	}
	return e, nil
}

// ListEncoders returns the specs of all registered encoders.
func ListEncoders() []EncoderSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]EncoderSpec, 0, len(registry))
	for _, e := range registry {
		specs = append(specs, e.Spec())
	}
	return specs
}
