// Package server exposes the HTTP surface of the relay: the Twilio voice
// webhook, the media stream WebSocket, outbound call initiation and
// transcription retrieval.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/checklinehq/checkline/pkg/errorsx"
	"github.com/checklinehq/checkline/pkg/redact"
	"github.com/checklinehq/checkline/pkg/registry"
	"github.com/checklinehq/checkline/pkg/relay"
	"github.com/checklinehq/checkline/pkg/script"
	"github.com/checklinehq/checkline/pkg/store"
)

// UpstreamDialFunc opens a configured realtime speech session for one call.
type UpstreamDialFunc func(ctx context.Context) (relay.Upstream, error)

// Options wires the server's collaborators and its HTTP shape.
type Options struct {
	Addr          string
	PublicURL     string
	VoicePath     string
	WebsocketPath string
	Greeting      string
	AuthToken     string

	Dialer       *Dialer
	DialUpstream UpstreamDialFunc
	Store        *store.BestEffort
	Registry     *registry.Registry
	Relay        *relay.Relay
	Logger       *slog.Logger
}

// Server handles webhook, API and media stream traffic for the relay.
type Server struct {
	addr          string
	publicURL     string
	voicePath     string
	websocketPath string
	greeting      string
	authToken     string

	dialer       *Dialer
	dialUpstream UpstreamDialFunc
	store        *store.BestEffort
	registry     *registry.Registry
	relay        *relay.Relay
	logger       *slog.Logger

	upgrader websocket.Upgrader
	server   *http.Server
}

func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":5050"
	}
	if opts.VoicePath == "" {
		opts.VoicePath = "/incoming-call"
	}
	if opts.WebsocketPath == "" {
		opts.WebsocketPath = "/media-stream"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		addr:          opts.Addr,
		publicURL:     normalizePublicURL(opts.PublicURL),
		voicePath:     opts.VoicePath,
		websocketPath: opts.WebsocketPath,
		greeting:      strings.TrimSpace(opts.Greeting),
		authToken:     opts.AuthToken,
		dialer:        opts.Dialer,
		dialUpstream:  opts.DialUpstream,
		store:         opts.Store,
		registry:      opts.Registry,
		relay:         opts.Relay,
		logger:        opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routed HTTP handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+s.voicePath, s.handleVoice)
	mux.HandleFunc(s.websocketPath, s.handleMediaStream)
	mux.HandleFunc("POST /call-user", s.handleCallUser)
	mux.HandleFunc("GET /calls/{id}/transcription", s.handleTranscription)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           s.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.logger.Info("server_listening", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ── outbound call initiation ──

type callUserRequest struct {
	PhoneNumber string `json:"phone_number"`
	CallType    string `json:"call_type"`
}

type callUserResponse struct {
	CallID  string `json:"call_id,omitempty"`
	CallSID string `json:"call_sid"`
	Status  string `json:"status"`
}

func (s *Server) handleCallUser(w http.ResponseWriter, r *http.Request) {
	var req callUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	phone := strings.TrimSpace(req.PhoneNumber)
	if phone == "" {
		writeJSONError(w, http.StatusBadRequest, "phone_number is required")
		return
	}
	callType := script.ParseCallType(req.CallType)

	ctx := r.Context()
	user, ok := s.store.GetUserByPhone(ctx, phone)
	if !ok {
		user = s.store.CreateUser(ctx, phone)
	}
	call := s.store.CreateCall(ctx, user.ID, callType, store.StatusInitiated)

	voiceURL := s.voiceWebhookURL() + "?call_id=" + call.ID + "&call_type=" + string(callType)
	sid, err := s.dialer.Dial(ctx, phone, voiceURL)
	if err != nil {
		s.logger.Error("outbound_dial_failed",
			"phone", redact.Phone(phone),
			"reason_code", string(errorsx.Reason(err)),
			"error", err.Error(),
		)
		if call.ID != "" {
			status := store.StatusFailed
			s.store.UpdateCall(ctx, call.ID, store.CallUpdate{Status: &status})
		}
		writeJSONError(w, http.StatusBadGateway, "failed to place call")
		return
	}

	s.registry.Register(sid, registry.Mapping{
		CallID:   call.ID,
		UserID:   user.ID,
		CallType: callType,
	})
	if call.ID != "" {
		s.store.UpdateCall(ctx, call.ID, store.CallUpdate{CallSID: &sid})
	}
	s.logger.Info("outbound_call_placed",
		"call_id", call.ID,
		"call_sid", sid,
		"call_type", string(callType),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(callUserResponse{
		CallID:  call.ID,
		CallSID: sid,
		Status:  store.StatusInitiated,
	})
}

// ── transcription retrieval ──

type transcriptionResponse struct {
	CallID        string    `json:"call_id"`
	Transcription string    `json:"transcription"`
	CreatedAt     time.Time `json:"created_at"`
}

func (s *Server) handleTranscription(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	rec, ok := s.store.GetTranscriptionByCallID(r.Context(), callID)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "transcription not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(transcriptionResponse{
		CallID:        rec.CallID,
		Transcription: rec.Content,
		CreatedAt:     rec.CreatedAt,
	})
}

// ── voice webhook ──

// handleVoice answers Twilio's call flow request with TwiML that speaks the
// greeting and connects the call's audio to the media stream endpoint. The
// call attribution query parameters are forwarded onto the stream URL.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if s.authToken != "" && !s.validateTwilioRequest(r) {
		s.logger.Warn("webhook_invalid_signature",
			"path", r.URL.Path,
			"reason_code", string(errorsx.ReasonWebhookInvalidSignature),
		)
		w.WriteHeader(http.StatusForbidden)
		return
	}
	wsURL := s.websocketURL(r)
	if q := streamQuery(r); q != "" {
		wsURL += "?" + q
	}
	var b strings.Builder
	b.WriteString(`<Response>`)
	if s.greeting != "" {
		b.WriteString(`<Say>` + xmlEscape(s.greeting) + `</Say>`)
	}
	b.WriteString(`<Connect><Stream url="` + xmlEscape(wsURL) + `"/></Connect></Response>`)
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(b.String()))
}

// streamQuery keeps only the attribution parameters the media stream handler
// understands.
func streamQuery(r *http.Request) string {
	q := r.URL.Query()
	parts := make([]string, 0, 2)
	if v := q.Get("call_id"); v != "" {
		parts = append(parts, "call_id="+v)
	}
	if v := q.Get("call_type"); v != "" {
		parts = append(parts, "call_type="+v)
	}
	return strings.Join(parts, "&")
}

// ── media stream ──

func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	info := relay.SessionInfo{
		CallID:   r.URL.Query().Get("call_id"),
		CallType: script.ParseCallType(r.URL.Query().Get("call_type")),
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	up, err := s.dialUpstream(r.Context())
	if err != nil {
		s.logger.Error("upstream_dial_failed",
			"call_id", info.CallID,
			"reason_code", string(errorsx.Reason(err)),
			"error", err.Error(),
		)
		_ = conn.Close()
		return
	}
	_ = s.relay.Run(r.Context(), conn, up, info)
}

// ── helpers ──

func (s *Server) websocketURL(r *http.Request) string {
	if s.publicURL != "" {
		return "wss://" + s.publicURL + s.websocketPath
	}
	host := r.Host
	if host == "" {
		host = strings.TrimPrefix(s.addr, ":")
	}
	return "wss://" + host + s.websocketPath
}

func (s *Server) voiceWebhookURL() string {
	if s.publicURL != "" {
		return "https://" + s.publicURL + s.voicePath
	}
	addr := s.addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + s.voicePath
}

func (s *Server) validateTwilioRequest(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	validator := twilioclient.NewRequestValidator(s.authToken)
	return validator.ValidateBody(s.requestURL(r), body, signature)
}

func (s *Server) requestURL(r *http.Request) string {
	if s.publicURL != "" {
		return "https://" + s.publicURL + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "https"
		}
	}
	host := r.Host
	if host == "" {
		host = strings.TrimPrefix(s.addr, ":")
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func xmlEscape(in string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(in)
}

func normalizePublicURL(v string) string {
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	return strings.TrimRight(v, "/")
}
