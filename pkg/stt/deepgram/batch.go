// Package deepgram runs out-of-band transcription of buffered call audio.
// It is the fallback path for calls where the realtime provider produced no
// user transcript: the captured mu-law stream is decoded to linear PCM and
// replayed through a short-lived Deepgram listen session.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/checklinehq/checkline/pkg/audio"
	"github.com/checklinehq/checkline/pkg/errorsx"
)

const (
	telephonySampleRate = 8000
	writeChunkBytes     = 4096
	collectTimeout      = 20 * time.Second
)

// dgWriter wraps the client methods the replay needs, for testing.
type dgWriter interface {
	io.Writer
	Stop()
}

// ChannelHandler receives Deepgram listen events over channels.
type ChannelHandler struct {
	openChan          chan *api.OpenResponse
	messageChan       chan *api.MessageResponse
	metadataChan      chan *api.MetadataResponse
	speechStartedChan chan *api.SpeechStartedResponse
	utteranceEndChan  chan *api.UtteranceEndResponse
	closeChan         chan *api.CloseResponse
	errorChan         chan *api.ErrorResponse
	unhandledChan     chan *[]byte
}

func NewChannelHandler() *ChannelHandler {
	return &ChannelHandler{
		openChan:          make(chan *api.OpenResponse, 1),
		messageChan:       make(chan *api.MessageResponse, 16),
		metadataChan:      make(chan *api.MetadataResponse, 1),
		speechStartedChan: make(chan *api.SpeechStartedResponse, 1),
		utteranceEndChan:  make(chan *api.UtteranceEndResponse, 1),
		closeChan:         make(chan *api.CloseResponse, 1),
		errorChan:         make(chan *api.ErrorResponse, 1),
		unhandledChan:     make(chan *[]byte, 1),
	}
}

func (ch *ChannelHandler) GetOpen() []*chan *api.OpenResponse {
	return []*chan *api.OpenResponse{&ch.openChan}
}

func (ch *ChannelHandler) GetMessage() []*chan *api.MessageResponse {
	return []*chan *api.MessageResponse{&ch.messageChan}
}

func (ch *ChannelHandler) GetMetadata() []*chan *api.MetadataResponse {
	return []*chan *api.MetadataResponse{&ch.metadataChan}
}

func (ch *ChannelHandler) GetSpeechStarted() []*chan *api.SpeechStartedResponse {
	return []*chan *api.SpeechStartedResponse{&ch.speechStartedChan}
}

func (ch *ChannelHandler) GetUtteranceEnd() []*chan *api.UtteranceEndResponse {
	return []*chan *api.UtteranceEndResponse{&ch.utteranceEndChan}
}

func (ch *ChannelHandler) GetClose() []*chan *api.CloseResponse {
	return []*chan *api.CloseResponse{&ch.closeChan}
}

func (ch *ChannelHandler) GetError() []*chan *api.ErrorResponse {
	return []*chan *api.ErrorResponse{&ch.errorChan}
}

func (ch *ChannelHandler) GetUnhandled() []*chan *[]byte {
	return []*chan *[]byte{&ch.unhandledChan}
}

// Batch replays captured call audio through the Deepgram listen API.
type Batch struct {
	apiKey string
	model  string
}

func New(apiKey, model string) *Batch {
	client.InitWithDefault()
	if model == "" {
		model = "nova-3"
	}
	return &Batch{apiKey: apiKey, model: model}
}

// Transcribe decodes mulaw to linear16 PCM, streams it through a listen
// session and returns the concatenated final transcript.
func (b *Batch) Transcribe(ctx context.Context, mulaw []byte) (string, error) {
	if len(mulaw) == 0 {
		return "", nil
	}

	cOptions := &interfaces.ClientOptions{
		APIKey: b.apiKey,
	}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:      b.model,
		Punctuate:  true,
		Encoding:   "linear16",
		Channels:   1,
		SampleRate: telephonySampleRate,
	}

	handler := NewChannelHandler()
	dgClient, err := client.NewWSUsingChan(ctx, "", cOptions, tOptions, handler)
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("deepgram: create client: %w", err), errorsx.ReasonBatchTranscribe)
	}
	if success := dgClient.Connect(); !success {
		return "", errorsx.Wrap(errors.New("deepgram: connect failed"), errorsx.ReasonBatchTranscribe)
	}

	pcm := audio.DecodeULaw(mulaw)
	go replay(dgClient, pcm)

	text, err := collectFinals(ctx, handler, collectTimeout)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonBatchTranscribe)
	}
	return text, nil
}

// replay writes the PCM in chunks, then stops the client so the server
// flushes its final results and closes the stream.
func replay(w dgWriter, pcm []byte) {
	for off := 0; off < len(pcm); off += writeChunkBytes {
		end := off + writeChunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if _, err := w.Write(pcm[off:end]); err != nil {
			break
		}
	}
	w.Stop()
}

// collectFinals gathers final transcript segments until the server closes
// the stream, an error arrives, or the timeout expires.
func collectFinals(ctx context.Context, handler *ChannelHandler, timeout time.Duration) (string, error) {
	var parts []string
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case msg := <-handler.messageChan:
			if msg == nil || !msg.IsFinal || len(msg.Channel.Alternatives) == 0 {
				continue
			}
			sentence := strings.TrimSpace(msg.Channel.Alternatives[0].Transcript)
			if sentence != "" {
				parts = append(parts, sentence)
			}
		case errResp := <-handler.errorChan:
			if errResp != nil {
				return strings.Join(parts, " "), fmt.Errorf("deepgram: %v", errResp)
			}
		case <-handler.closeChan:
			return strings.Join(parts, " "), nil
		case <-handler.openChan:
		case <-handler.metadataChan:
		case <-handler.speechStartedChan:
		case <-handler.utteranceEndChan:
		case <-handler.unhandledChan:
		case <-timer.C:
			return strings.Join(parts, " "), nil
		case <-ctx.Done():
			return strings.Join(parts, " "), ctx.Err()
		}
	}
}
