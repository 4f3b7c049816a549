// Package registry maps live stream identifiers to persisted call context.
package registry

import (
	"sync"
	"time"

	"github.com/checklinehq/checkline/pkg/script"
)

// Mapping is the call context stored at initiation time and looked up when a
// media stream opens. Immutable after Register.
type Mapping struct {
	CallID    string
	UserID    string
	CallType  script.CallType
	CreatedAt time.Time
}

// Registry is the process-wide table from Twilio call SIDs (or locally issued
// session tokens) to call mappings. Writes happen once per outbound call,
// reads once per stream start; entries linger until pruned, so callers must
// tolerate both staleness and absence.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Mapping
}

func New() *Registry {
	return &Registry{entries: make(map[string]Mapping)}
}

// Register stores the mapping under key. Later registrations for the same key
// win; callers use unique keys per call attempt so this only matters for
// provider-side SID reuse.
func (r *Registry) Register(key string, m Mapping) {
	if key == "" {
		return
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	r.mu.Lock()
	r.entries[key] = m
	r.mu.Unlock()
}

// Resolve is a best-effort lookup. ok=false means the stream arrived without
// a prior registration (inbound call, or a lost entry) and the session runs
// in degraded mode.
func (r *Registry) Resolve(key string) (Mapping, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.entries[key]
	return m, ok
}

// PruneOlderThan drops entries registered more than age ago and returns how
// many were removed. Eviction is opportunistic; nothing depends on it running.
func (r *Registry) PruneOlderThan(age time.Duration) int {
	cutoff := time.Now().Add(-age)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, m := range r.entries {
		if m.CreatedAt.Before(cutoff) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
