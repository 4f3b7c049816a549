// Package relay bridges one telephony media stream to one realtime speech
// session: audio flows both ways untouched while transcript events are
// assembled into the call record. A relay lives exactly as long as the call.
package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/checklinehq/checkline/pkg/artifact"
	"github.com/checklinehq/checkline/pkg/audio"
	"github.com/checklinehq/checkline/pkg/errorsx"
	"github.com/checklinehq/checkline/pkg/openairt"
	"github.com/checklinehq/checkline/pkg/redact"
	"github.com/checklinehq/checkline/pkg/registry"
	"github.com/checklinehq/checkline/pkg/script"
	"github.com/checklinehq/checkline/pkg/store"
	"github.com/checklinehq/checkline/pkg/transcript"
)

const finalizeTimeout = 10 * time.Second

// errSessionEnded signals a clean end of the call from either side. It exists
// so a loop returning can cancel its sibling through the errgroup context
// without Run reporting a failure.
var errSessionEnded = errors.New("relay: session ended")

// Downstream is the telephony side of the bridge. *websocket.Conn satisfies
// it; tests substitute scripted fakes.
type Downstream interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Upstream is the realtime speech side. *openairt.Client satisfies it.
type Upstream interface {
	ReadEvent() (openairt.Event, error)
	AppendAudio(payload string) error
	InjectAssistantMessage(text string) error
	CreateResponse() error
	Close() error
}

// CallStore is the persistence surface finalize needs. *store.BestEffort
// satisfies it; operations never fail, they degrade.
type CallStore interface {
	CreateTranscription(ctx context.Context, callID, content string) store.TranscriptionRecord
	UpdateCall(ctx context.Context, callID string, upd store.CallUpdate) store.CallRecord
}

// BatchTranscriber recovers a user transcript from captured call audio when
// the realtime path produced none. Optional.
type BatchTranscriber interface {
	Transcribe(ctx context.Context, mulaw []byte) (string, error)
}

// Options wires a Relay's collaborators. Registry, Store and Scripts are
// required; Batch is optional.
type Options struct {
	Registry     *registry.Registry
	Store        CallStore
	Batch        BatchTranscriber
	Scripts      *script.Library
	Filter       *transcript.Filter
	ArtifactsDir string
	CaptureBytes int
	Logger       *slog.Logger
}

// Relay runs bridge sessions. One Relay serves many concurrent calls; all
// per-call state lives in the session built by Run.
type Relay struct {
	registry     *registry.Registry
	store        CallStore
	batch        BatchTranscriber
	scripts      *script.Library
	filter       *transcript.Filter
	artifactsDir string
	captureBytes int
	logger       *slog.Logger
}

func New(opts Options) *Relay {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	filter := opts.Filter
	if filter == nil {
		filter = transcript.NewFilter(nil, 0)
	}
	return &Relay{
		registry:     opts.Registry,
		store:        opts.Store,
		batch:        opts.Batch,
		scripts:      opts.Scripts,
		filter:       filter,
		artifactsDir: opts.ArtifactsDir,
		captureBytes: opts.CaptureBytes,
		logger:       logger,
	}
}

// Run bridges down and up until either side terminates, then finalizes the
// transcript exactly once. The upstream session must already be configured;
// startup failures belong to the caller. Run always closes both connections.
func (r *Relay) Run(ctx context.Context, down Downstream, up Upstream, info SessionInfo) error {
	s := &session{
		id:       uuid.NewString(),
		callID:   info.CallID,
		callType: info.CallType,
		flow:     script.NewFlow(r.scripts.Prompts(info.CallType)),
		acc:      transcript.NewAccumulator(),
		delta:    &transcript.DeltaBuffer{},
		capture:  audio.NewBoundedBuffer(r.captureBytes),
	}
	logger := r.logger.With("session_id", s.id, "call_type", string(s.callType))
	logger.Info("relay_session_started", "call_id", s.call())

	var finalized atomic.Bool
	defer func() {
		up.Close()
		down.Close()
		if finalized.CompareAndSwap(false, true) {
			r.finalize(s, logger)
		}
	}()

	if prompt, ok := s.flow.Current(); ok {
		if err := r.injectPrompt(up, s, prompt); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Unblock both read loops once either side ends or the parent
		// context is cancelled.
		<-gctx.Done()
		up.Close()
		down.Close()
		return nil
	})
	g.Go(func() error { return r.downstreamLoop(down, up, s, logger) })
	g.Go(func() error { return r.upstreamLoop(down, up, s, logger) })

	err := g.Wait()
	if errors.Is(err, errSessionEnded) {
		err = nil
	}
	if err != nil {
		logger.Error("relay_session_failed", "error", err.Error(), "reason_code", string(errorsx.Reason(err)))
	}
	return err
}

// downstreamLoop consumes telephony stream messages: audio is forwarded
// verbatim to the speech session and teed into the capture buffer, the start
// message resolves the call context, and anything undecodable is skipped.
func (r *Relay) downstreamLoop(down Downstream, up Upstream, s *session, logger *slog.Logger) error {
	for {
		_, data, err := down.ReadMessage()
		if err != nil {
			logger.Debug("downstream_closed", "error", err.Error())
			return errSessionEnded
		}

		var evt streamEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			logger.Warn("downstream_malformed_message",
				"reason_code", string(errorsx.ReasonMalformedEvent),
				"error", err.Error(),
			)
			continue
		}

		switch evt.Event {
		case "media":
			if evt.Media == nil || evt.Media.Payload == "" {
				continue
			}
			if err := up.AppendAudio(evt.Media.Payload); err != nil {
				return errorsx.Wrap(fmt.Errorf("relay: forward audio: %w", err), errorsx.ReasonUpstreamSend)
			}
			if raw, err := base64.StdEncoding.DecodeString(evt.Media.Payload); err == nil {
				s.capture.Append(raw)
			}
		case "start":
			if evt.Start == nil {
				continue
			}
			s.setStream(evt.Start.StreamSID)
			if s.call() == "" && r.registry != nil {
				if m, ok := r.registry.Resolve(evt.Start.CallSID); ok {
					s.setCallID(m.CallID)
				}
			}
			logger.Info("stream_started",
				"stream_sid", evt.Start.StreamSID,
				"call_sid", evt.Start.CallSID,
				"call_id", s.call(),
			)
		case "stop":
			logger.Info("stream_stopped", "stream_sid", s.stream(), "awaiting_answer", s.awaiting())
			return errSessionEnded
		default:
			logger.Debug("downstream_event", "event", evt.Event)
		}
	}
}

// upstreamLoop consumes speech session events: synthesized audio goes back to
// the caller, transcript fragments are assembled, and each accepted user
// answer advances the question script.
func (r *Relay) upstreamLoop(down Downstream, up Upstream, s *session, logger *slog.Logger) error {
	var downDead atomic.Bool
	for {
		evt, err := up.ReadEvent()
		if err != nil {
			if errorsx.HasReason(err, errorsx.ReasonMalformedEvent) {
				logger.Warn("upstream_malformed_event",
					"reason_code", string(errorsx.ReasonMalformedEvent),
					"error", err.Error(),
				)
				continue
			}
			logger.Debug("upstream_closed", "error", err.Error())
			return errSessionEnded
		}

		switch evt.Type {
		case openairt.EventResponseAudioDelta:
			if evt.Delta == "" || downDead.Load() {
				continue
			}
			msg := mediaMessage{
				Event:     "media",
				StreamSID: s.stream(),
				Media:     mediaPayload{Payload: evt.Delta},
			}
			if err := down.WriteJSON(msg); err != nil {
				// The caller hung up while audio was still in flight.
				// Keep draining transcript events until the loop ends.
				downDead.Store(true)
				logger.Debug("downstream_send_failed",
					"reason_code", string(errorsx.ReasonDownstreamSend),
					"error", err.Error(),
				)
			}
		case openairt.EventResponseAudioTranscriptDelta:
			s.delta.Add(evt.Delta)
		case openairt.EventResponseAudioTranscriptDone:
			if text := s.delta.Done(evt.Transcript); text != "" {
				s.acc.Append(transcript.SpeakerAssistant, text)
				s.setAwaitingAnswer(true)
			}
		case openairt.EventInputAudioTranscriptionCompleted:
			r.handleUserTranscript(up, s, evt.Transcript, logger)
		case openairt.EventError:
			msg := "unknown"
			if evt.Error != nil {
				msg = evt.Error.Message
			}
			logger.Warn("upstream_error_event", "message", msg)
		case openairt.EventResponseDone, openairt.EventSessionUpdated, openairt.EventSessionCreated:
			logger.Debug("upstream_event", "type", evt.Type)
		default:
			logger.Debug("upstream_event_ignored", "type", evt.Type)
		}
	}
}

// handleUserTranscript records an accepted answer and moves the script
// forward. Rejected utterances leave the cursor where it is so the caller can
// try again.
func (r *Relay) handleUserTranscript(up Upstream, s *session, text string, logger *slog.Logger) {
	if !r.filter.Accept(text) {
		logger.Debug("user_transcript_discarded", "transcript", redact.Text(text))
		return
	}
	s.acc.Append(transcript.SpeakerUser, text)
	s.setAwaitingAnswer(false)

	s.flow.Advance()
	next, ok := s.flow.Current()
	if !ok {
		logger.Info("script_complete", "questions", s.flow.Index())
		return
	}
	if err := r.injectPrompt(up, s, next); err != nil {
		logger.Warn("prompt_injection_failed",
			"question_index", s.flow.Index(),
			"reason_code", string(errorsx.Reason(err)),
			"error", err.Error(),
		)
	}
}

// injectPrompt seeds the next scripted question as assistant text and asks
// the model to speak it.
func (r *Relay) injectPrompt(up Upstream, s *session, prompt string) error {
	if err := up.InjectAssistantMessage(prompt); err != nil {
		return err
	}
	if err := up.CreateResponse(); err != nil {
		return err
	}
	s.setAwaitingAnswer(true)
	return nil
}

// finalize assembles and persists the transcript. It runs on its own bounded
// context because the session context is usually already cancelled, and every
// step past assembly is best effort: a dead store still leaves the local
// artifact, and a failed artifact write still attempts the store.
func (r *Relay) finalize(s *session, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if s.acc.UserLines() == 0 && r.batch != nil && s.capture.Len() > 0 {
		text, err := r.batch.Transcribe(ctx, s.capture.Bytes())
		if err != nil {
			logger.Warn("batch_transcription_failed",
				"reason_code", string(errorsx.Reason(err)),
				"error", err.Error(),
			)
		} else if r.filter.Accept(text) {
			s.acc.Append(transcript.SpeakerUser, text)
		}
	}

	content := s.acc.Finalize()
	if content == "" {
		logger.Info("relay_session_finalized", "call_id", s.call(), "lines", 0)
		return
	}

	path, err := artifact.WriteTranscript(r.artifactsDir, s.call(), content)
	if err != nil {
		logger.Warn("artifact_write_failed", "error", err.Error())
	} else {
		logger.Info("artifact_written", "path", path)
	}

	callID := s.call()
	if r.store != nil && callID != "" {
		r.store.CreateTranscription(ctx, callID, content)
		now := time.Now().UTC()
		status := store.StatusCompleted
		r.store.UpdateCall(ctx, callID, store.CallUpdate{Status: &status, EndedAt: &now})
	}
	logger.Info("relay_session_finalized", "call_id", callID, "lines", s.acc.Len())
}
