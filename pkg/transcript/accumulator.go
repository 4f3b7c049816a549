package transcript

import (
	"strings"
	"sync"
)

// Accumulator owns the ordered line sequence for one call. Append order
// reflects processing order, not speech chronology: lines from the assistant
// and user paths interleave in whatever order their finalized events were
// handled.
type Accumulator struct {
	mu    sync.Mutex
	lines []Line
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append adds a line. Empty or whitespace-only text is dropped. Never blocks
// on anything but the internal mutex.
func (a *Accumulator) Append(speaker Speaker, text string) {
	line, ok := NewLine(speaker, text)
	if !ok {
		return
	}
	a.mu.Lock()
	a.lines = append(a.lines, line)
	a.mu.Unlock()
}

// Len returns the number of accepted lines.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.lines)
}

// UserLines returns how many accepted lines belong to the user.
func (a *Accumulator) UserLines() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, l := range a.lines {
		if l.Speaker == SpeakerUser {
			n++
		}
	}
	return n
}

// Lines returns a point-in-time copy of the deduplicated sequence. Identical
// rendered lines collapse to their first occurrence, adjacent or not.
func (a *Accumulator) Lines() []Line {
	a.mu.Lock()
	snapshot := make([]Line, len(a.lines))
	copy(snapshot, a.lines)
	a.mu.Unlock()

	seen := make(map[string]struct{}, len(snapshot))
	out := make([]Line, 0, len(snapshot))
	for _, l := range snapshot {
		key := l.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}

// Finalize produces the newline-joined transcript. Idempotent: calling it
// twice over the same accumulated state yields identical output, and appends
// racing a finalize land either fully before or fully after the snapshot.
func (a *Accumulator) Finalize() string {
	lines := a.Lines()
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.String()
	}
	return strings.Join(parts, "\n")
}
