package openairt

// Server event types the relay cares about. Anything else is observability
// only.
const (
	EventSessionCreated                   = "session.created"
	EventSessionUpdated                   = "session.updated"
	EventResponseAudioDelta               = "response.audio.delta"
	EventResponseAudioTranscriptDelta     = "response.audio_transcript.delta"
	EventResponseAudioTranscriptDone      = "response.audio_transcript.done"
	EventInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventResponseDone                     = "response.done"
	EventError                            = "error"
)

// Event is the subset of the Realtime server event union the relay consumes.
// Field presence depends on Type.
type Event struct {
	Type       string       `json:"type"`
	Delta      string       `json:"delta,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail is the nested error object of an "error" event.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ── outgoing messages ──

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	TurnDetection      *turnDetection      `json:"turn_detection,omitempty"`
	InputAudioFormat   string              `json:"input_audio_format"`
	OutputAudioFormat  string              `json:"output_audio_format"`
	Voice              string              `json:"voice,omitempty"`
	Instructions       string              `json:"instructions,omitempty"`
	Modalities         []string            `json:"modalities,omitempty"`
	Temperature        float64             `json:"temperature,omitempty"`
	InputTranscription *inputTranscription `json:"input_audio_transcription,omitempty"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type inputTranscription struct {
	Model string `json:"model"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64 G.711 mu-law, passed through verbatim
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role,omitempty"`
	Content []conversationPart `json:"content,omitempty"`
}

type conversationPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}
