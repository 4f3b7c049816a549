package script

import "sync"

// Flow is the cursor over one call's question script. The index only moves
// forward; past the last prompt the flow is terminal and Advance is a no-op.
type Flow struct {
	mu      sync.Mutex
	prompts []string
	index   int
}

// NewFlow starts a flow over the given prompts. An empty prompt list yields
// an immediately terminal flow (unscripted call).
func NewFlow(prompts []string) *Flow {
	return &Flow{prompts: prompts}
}

// Current returns the prompt at the cursor, or ok=false past the end.
func (f *Flow) Current() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.prompts) {
		return "", false
	}
	return f.prompts[f.index], true
}

// Advance moves the cursor forward by one. Idempotent at the terminal state.
func (f *Flow) Advance() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index < len(f.prompts) {
		f.index++
	}
}

// Index returns the current cursor position.
func (f *Flow) Index() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index
}

// Done reports whether every prompt has been consumed.
func (f *Flow) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index >= len(f.prompts)
}
