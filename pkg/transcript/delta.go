package transcript

import (
	"strings"
	"sync"
)

// DeltaBuffer accumulates streaming transcript deltas for one in-flight
// assistant utterance. It is a two-state machine: idle until the first Add,
// accumulating until Done resets it.
type DeltaBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

// Add appends a streamed fragment.
func (d *DeltaBuffer) Add(delta string) {
	if delta == "" {
		return
	}
	d.mu.Lock()
	d.sb.WriteString(delta)
	d.mu.Unlock()
}

// Accumulating reports whether any fragment is buffered.
func (d *DeltaBuffer) Accumulating() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sb.Len() > 0
}

// Done flushes the buffer and returns to idle. When the finalized event
// carries its own complete text, callers pass it as final and it wins over
// the accumulated fragments.
func (d *DeltaBuffer) Done(final string) string {
	d.mu.Lock()
	accumulated := d.sb.String()
	d.sb.Reset()
	d.mu.Unlock()
	if strings.TrimSpace(final) != "" {
		return strings.TrimSpace(final)
	}
	return strings.TrimSpace(accumulated)
}
