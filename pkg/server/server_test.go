package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/checklinehq/checkline/pkg/openairt"
	"github.com/checklinehq/checkline/pkg/registry"
	"github.com/checklinehq/checkline/pkg/relay"
	"github.com/checklinehq/checkline/pkg/script"
	"github.com/checklinehq/checkline/pkg/store"
	"github.com/checklinehq/checkline/pkg/transcript"
)

type stubCreator struct {
	last *api.CreateCallParams
	sid  string
	err  error
}

func (s *stubCreator) CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error) {
	s.last = params
	if s.err != nil {
		return nil, s.err
	}
	return &api.ApiV2010Call{Sid: &s.sid}, nil
}

// memRecorder is an in-memory store.Recorder for handler tests.
type memRecorder struct {
	mu    sync.Mutex
	seq   int
	users map[string]store.UserRecord
	calls map[string]store.CallRecord
	trans map[string]store.TranscriptionRecord
}

func newMemRecorder() *memRecorder {
	return &memRecorder{
		users: make(map[string]store.UserRecord),
		calls: make(map[string]store.CallRecord),
		trans: make(map[string]store.TranscriptionRecord),
	}
}

func (m *memRecorder) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memRecorder) CreateUser(_ context.Context, phone string) (store.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := store.UserRecord{ID: m.nextID("user"), PhoneNumber: phone, CreatedAt: time.Now()}
	m.users[phone] = u
	return u, nil
}

func (m *memRecorder) GetUserByPhone(_ context.Context, phone string) (store.UserRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[phone]
	return u, ok, nil
}

func (m *memRecorder) CreateCall(_ context.Context, userID string, callType script.CallType, status string) (store.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := store.CallRecord{ID: m.nextID("call"), UserID: userID, CallType: callType, Status: status, StartedAt: time.Now()}
	m.calls[c.ID] = c
	return c, nil
}

func (m *memRecorder) UpdateCall(_ context.Context, callID string, upd store.CallUpdate) (store.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return store.CallRecord{}, errors.New("call not found")
	}
	if upd.Status != nil {
		c.Status = *upd.Status
	}
	if upd.EndedAt != nil {
		c.EndedAt = upd.EndedAt
	}
	if upd.CallSID != nil {
		c.CallSID = *upd.CallSID
	}
	m.calls[callID] = c
	return c, nil
}

func (m *memRecorder) CreateTranscription(_ context.Context, callID, content string) (store.TranscriptionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := store.TranscriptionRecord{ID: m.nextID("tr"), CallID: callID, Content: content, CreatedAt: time.Now()}
	m.trans[callID] = t
	return t, nil
}

func (m *memRecorder) GetTranscriptionByCallID(_ context.Context, callID string) (store.TranscriptionRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trans[callID]
	return t, ok, nil
}

func (m *memRecorder) call(id string) (store.CallRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[id]
	return c, ok
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, mem *memRecorder, creator *stubCreator, dialUp UpstreamDialFunc) (*Server, *registry.Registry) {
	t.Helper()
	logger := quietLogger()
	best := store.NewBestEffort(mem, logger)
	reg := registry.New()
	d := NewDialer("AC1", "token", "+15550000000")
	d.client = creator
	r := relay.New(relay.Options{
		Registry:     reg,
		Store:        best,
		Scripts:      script.NewLibrary(nil),
		Filter:       transcript.NewFilter(nil, 0),
		ArtifactsDir: t.TempDir(),
		Logger:       logger,
	})
	s := New(Options{
		PublicURL:    "https://relay.example.com",
		Dialer:       d,
		DialUpstream: dialUp,
		Store:        best,
		Registry:     reg,
		Relay:        r,
		Logger:       logger,
	})
	return s, reg
}

func TestDialerSetsParams(t *testing.T) {
	stub := &stubCreator{sid: "CA123"}
	d := NewDialer("AC1", "token", "+200")
	d.client = stub

	sid, err := d.Dial(context.Background(), "+100", "https://example.com/incoming-call")
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	if sid != "CA123" {
		t.Fatalf("expected sid CA123, got %s", sid)
	}
	if stub.last == nil || stub.last.To == nil || *stub.last.To != "+100" {
		t.Fatalf("expected To param")
	}
	if stub.last.From == nil || *stub.last.From != "+200" {
		t.Fatalf("expected From param")
	}
	if stub.last.Url == nil || *stub.last.Url != "https://example.com/incoming-call" {
		t.Fatalf("expected Url param")
	}
}

func TestDialerMissingCredentials(t *testing.T) {
	d := NewDialer("", "", "+200")
	if _, err := d.Dial(context.Background(), "+100", "https://example.com"); err == nil {
		t.Fatalf("expected credentials error")
	}
}

func TestCallUserPlacesCall(t *testing.T) {
	mem := newMemRecorder()
	creator := &stubCreator{sid: "CA900"}
	s, reg := newTestServer(t, mem, creator, nil)

	body := bytes.NewBufferString(`{"phone_number":"+15551234567","call_type":"morning"}`)
	req := httptest.NewRequest(http.MethodPost, "/call-user", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp callUserResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CallSID != "CA900" || resp.CallID == "" {
		t.Fatalf("unexpected response %+v", resp)
	}

	m, ok := reg.Resolve("CA900")
	if !ok || m.CallID != resp.CallID || m.CallType != script.CallTypeMorning {
		t.Fatalf("registry mapping missing or wrong: %+v", m)
	}
	c, ok := mem.call(resp.CallID)
	if !ok || c.CallSID != "CA900" || c.Status != store.StatusInitiated {
		t.Fatalf("call record not updated: %+v", c)
	}
	if creator.last == nil || creator.last.Url == nil ||
		!strings.Contains(*creator.last.Url, "call_id="+resp.CallID) {
		t.Fatalf("voice url must carry call attribution, got %v", creator.last.Url)
	}
}

func TestCallUserDialFailureMarksCallFailed(t *testing.T) {
	mem := newMemRecorder()
	creator := &stubCreator{err: errors.New("twilio down")}
	s, _ := newTestServer(t, mem, creator, nil)

	body := bytes.NewBufferString(`{"phone_number":"+15551234567","call_type":"evening"}`)
	req := httptest.NewRequest(http.MethodPost, "/call-user", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	c, ok := mem.call("call-2")
	if !ok || c.Status != store.StatusFailed {
		t.Fatalf("expected failed call record, got %+v ok=%v", c, ok)
	}
}

func TestCallUserRequiresPhone(t *testing.T) {
	s, _ := newTestServer(t, newMemRecorder(), &stubCreator{sid: "CA1"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/call-user", bytes.NewBufferString(`{"call_type":"morning"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestVoiceWebhookTwiML(t *testing.T) {
	s, _ := newTestServer(t, newMemRecorder(), &stubCreator{}, nil)
	s.greeting = "Please wait while we connect your call."

	req := httptest.NewRequest(http.MethodPost, "/incoming-call?call_id=call-9&call_type=morning", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Fatalf("expected text/xml, got %q", ct)
	}
	twiml := rec.Body.String()
	if !strings.Contains(twiml, "<Say>Please wait while we connect your call.</Say>") {
		t.Fatalf("greeting missing: %s", twiml)
	}
	if !strings.Contains(twiml, `wss://relay.example.com/media-stream?call_id=call-9&amp;call_type=morning`) {
		t.Fatalf("stream url wrong: %s", twiml)
	}
}

func TestVoiceWebhookRejectsBadSignature(t *testing.T) {
	s, _ := newTestServer(t, newMemRecorder(), &stubCreator{}, nil)
	s.authToken = "secret"

	req := httptest.NewRequest(http.MethodPost, "/incoming-call", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unsigned webhook must be rejected, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/incoming-call", nil)
	req.Header.Set("X-Twilio-Signature", "bogus")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("forged webhook must be rejected, got %d", rec.Code)
	}
}

func TestTranscriptionLookup(t *testing.T) {
	mem := newMemRecorder()
	if _, err := mem.CreateTranscription(context.Background(), "call-5", "AI: Hello\nUser: hi there"); err != nil {
		t.Fatalf("seed transcription: %v", err)
	}
	s, _ := newTestServer(t, mem, &stubCreator{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/calls/call-5/transcription", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp transcriptionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CallID != "call-5" || resp.Transcription != "AI: Hello\nUser: hi there" {
		t.Fatalf("unexpected response %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/calls/nope/transcription", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

// stubUpstream is a speech session that emits preloaded events, then blocks
// until closed.
type stubUpstream struct {
	events chan openairt.Event
	done   chan struct{}
	once   sync.Once
}

func newStubUpstream(events ...openairt.Event) *stubUpstream {
	ch := make(chan openairt.Event, len(events))
	for _, e := range events {
		ch <- e
	}
	return &stubUpstream{events: ch, done: make(chan struct{})}
}

func (f *stubUpstream) ReadEvent() (openairt.Event, error) {
	// Drain preloaded events before honoring close.
	select {
	case e := <-f.events:
		return e, nil
	default:
	}
	select {
	case e := <-f.events:
		return e, nil
	case <-f.done:
		return openairt.Event{}, io.EOF
	}
}

func (f *stubUpstream) AppendAudio(string) error { return nil }

func (f *stubUpstream) InjectAssistantMessage(string) error { return nil }

func (f *stubUpstream) CreateResponse() error { return nil }
func (f *stubUpstream) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func TestMediaStreamSessionPersistsTranscript(t *testing.T) {
	mem := newMemRecorder()
	up := newStubUpstream(
		openairt.Event{Type: openairt.EventInputAudioTranscriptionCompleted, Transcript: "I had a good day"},
	)
	s, _ := newTestServer(t, mem, &stubCreator{}, func(ctx context.Context) (relay.Upstream, error) {
		return up, nil
	})

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/media-stream?call_id=call-77&call_type=unscripted"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial media stream: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"event": "start", "start": map[string]string{"streamSid": "MZ9", "callSid": "CA9"}}); err != nil {
		t.Fatalf("send start: %v", err)
	}
	if err := conn.WriteJSON(map[string]any{"event": "stop"}); err != nil {
		t.Fatalf("send stop: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if rec, ok, _ := mem.GetTranscriptionByCallID(context.Background(), "call-77"); ok {
			if rec.Content != "User: I had a good day" {
				t.Fatalf("unexpected transcript %q", rec.Content)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("transcription never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMediaStreamUpstreamFailureClosesSocket(t *testing.T) {
	s, _ := newTestServer(t, newMemRecorder(), &stubCreator{}, func(ctx context.Context) (relay.Upstream, error) {
		return nil, errors.New("handshake timeout")
	})

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/media-stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial media stream: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the server to close the stream")
	}
}
