package relay

import (
	"sync"

	"github.com/checklinehq/checkline/pkg/audio"
	"github.com/checklinehq/checkline/pkg/script"
	"github.com/checklinehq/checkline/pkg/transcript"
)

// SessionInfo is the call context known at channel-open time. Clients that
// initiated the call through this service pass the persisted call identifier
// explicitly; inbound calls leave it empty and the session runs in degraded
// mode unless the stream-start correlation resolves it.
type SessionInfo struct {
	CallID   string
	CallType script.CallType
}

// session is the mutable per-call state shared by the two relay loops. Each
// field has a single writer: the downstream loop owns the identifiers, the
// upstream loop owns the answer cursor, and the guarded accessors cover the
// cross-loop reads.
type session struct {
	id string

	mu        sync.Mutex
	callID    string
	streamSID string

	callType script.CallType
	flow     *script.Flow
	acc      *transcript.Accumulator
	delta    *transcript.DeltaBuffer
	capture  *audio.BoundedBuffer

	awaitingAnswer bool
}

func (s *session) setStream(streamSID string) {
	s.mu.Lock()
	s.streamSID = streamSID
	s.mu.Unlock()
}

func (s *session) stream() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSID
}

func (s *session) setCallID(callID string) {
	s.mu.Lock()
	if s.callID == "" {
		s.callID = callID
	}
	s.mu.Unlock()
}

func (s *session) call() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

func (s *session) setAwaitingAnswer(v bool) {
	s.mu.Lock()
	s.awaitingAnswer = v
	s.mu.Unlock()
}

func (s *session) awaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaitingAnswer
}

// ── downstream wire format (Twilio Media Streams) ──

type streamEvent struct {
	Event string       `json:"event"`
	Start *streamStart `json:"start,omitempty"`
	Media *streamMedia `json:"media,omitempty"`
}

type streamStart struct {
	StreamSID string `json:"streamSid"`
	CallSID   string `json:"callSid"`
}

type streamMedia struct {
	Payload string `json:"payload"`
}

type mediaMessage struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}
