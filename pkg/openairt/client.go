// Package openairt is a minimal client for the OpenAI Realtime API over
// WebSocket, covering the session configuration, audio append, prompt
// injection and transcript events a telephony relay needs.
package openairt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/checklinehq/checkline/pkg/errorsx"
)

const (
	defaultBaseURL        = "wss://api.openai.com/v1/realtime"
	defaultModel          = "gpt-4o-realtime-preview-2024-10-01"
	defaultConnectTimeout = 5 * time.Second
)

// Config carries the session parameters sent in the initial session.update.
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string
	Voice          string
	Instructions   string
	Temperature    float64
	ConnectTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	return c
}

// Client is one realtime session. Reads happen from a single goroutine via
// ReadEvent; writes are serialized internally.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  sync.Once
}

// Dial connects, configures the session (G.711 mu-law both directions,
// server VAD, input transcription enabled) and waits for the server's
// acknowledgment. The whole handshake is bounded by cfg.ConnectTimeout;
// missing the bound is a startup failure, not something to retry here.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	url := cfg.BaseURL
	if !strings.Contains(url, "model=") {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "model=" + cfg.Model
	}
	header := http.Header{
		"Authorization": []string{"Bearer " + cfg.APIKey},
		"OpenAI-Beta":   []string{"realtime=v1"},
	}
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, header)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("openairt: dial: %w", err), errorsx.ReasonUpstreamConnect)
	}

	c := &Client{conn: conn}
	if err := c.configure(cfg); err != nil {
		conn.Close()
		return nil, err
	}
	if err := c.awaitReady(cfg.ConnectTimeout); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) configure(cfg Config) error {
	msg := sessionUpdateMessage{
		Type: "session.update",
		Session: sessionParams{
			TurnDetection:      &turnDetection{Type: "server_vad"},
			InputAudioFormat:   "g711_ulaw",
			OutputAudioFormat:  "g711_ulaw",
			Voice:              cfg.Voice,
			Instructions:       cfg.Instructions,
			Modalities:         []string{"text", "audio"},
			Temperature:        cfg.Temperature,
			InputTranscription: &inputTranscription{Model: "whisper-1"},
		},
	}
	if err := c.writeJSON(msg); err != nil {
		return errorsx.Wrap(fmt.Errorf("openairt: session update: %w", err), errorsx.ReasonUpstreamConfigure)
	}
	return nil
}

// awaitReady consumes events until the server acknowledges the session.
func (c *Client) awaitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	_ = c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		evt, err := c.ReadEvent()
		if err != nil {
			if errorsx.HasReason(err, errorsx.ReasonMalformedEvent) {
				continue
			}
			return errorsx.Wrap(fmt.Errorf("openairt: await session ack: %w", err), errorsx.ReasonUpstreamConfigure)
		}
		switch evt.Type {
		case EventSessionCreated, EventSessionUpdated:
			return nil
		case EventError:
			msg := "unknown error"
			if evt.Error != nil && evt.Error.Message != "" {
				msg = evt.Error.Message
			}
			return errorsx.Wrap(fmt.Errorf("openairt: session rejected: %s", msg), errorsx.ReasonUpstreamConfigure)
		}
	}
}

// ReadEvent blocks for the next server event. A connection-level failure is
// fatal to the read loop; an undecodable payload is reported with a
// malformed_event reason so the caller can log and skip it.
func (c *Client) ReadEvent() (Event, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Event{}, errorsx.Wrap(err, errorsx.ReasonUpstreamReceive)
	}
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, errorsx.Wrap(fmt.Errorf("openairt: decode event: %w", err), errorsx.ReasonMalformedEvent)
	}
	return evt, nil
}

// AppendAudio forwards one base64 payload from the telephony stream without
// reinterpreting it.
func (c *Client) AppendAudio(payload string) error {
	err := c.writeJSON(appendAudioMessage{Type: "input_audio_buffer.append", Audio: payload})
	return errorsx.Wrap(err, errorsx.ReasonUpstreamSend)
}

// InjectAssistantMessage adds text to the conversation as an
// assistant-authored item. Callers follow up with CreateResponse to have it
// spoken.
func (c *Client) InjectAssistantMessage(text string) error {
	msg := createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type: "message",
			Role: "assistant",
			Content: []conversationPart{
				{Type: "text", Text: text},
			},
		},
	}
	err := c.writeJSON(msg)
	return errorsx.Wrap(err, errorsx.ReasonUpstreamSend)
}

// CreateResponse asks the model to synthesize a response now.
func (c *Client) CreateResponse() error {
	err := c.writeJSON(map[string]string{"type": "response.create"})
	return errorsx.Wrap(err, errorsx.ReasonUpstreamSend)
}

func (c *Client) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openairt: marshal: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close terminates the session. Idempotent.
func (c *Client) Close() error {
	var err error
	c.closed.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
