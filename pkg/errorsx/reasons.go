package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonUpstreamConnect   ReasonCode = "upstream_connect"
	ReasonUpstreamConfigure ReasonCode = "upstream_configure"
	ReasonUpstreamSend      ReasonCode = "upstream_send"
	ReasonUpstreamReceive   ReasonCode = "upstream_receive"

	ReasonDownstreamSend    ReasonCode = "downstream_send"
	ReasonDownstreamReceive ReasonCode = "downstream_receive"
	ReasonMalformedEvent    ReasonCode = "malformed_event"

	ReasonDialFailed       ReasonCode = "dial_failed"
	ReasonStoreUnavailable ReasonCode = "store_unavailable"
	ReasonBatchTranscribe  ReasonCode = "batch_transcribe"

	ReasonWebhookInvalidSignature ReasonCode = "webhook_invalid_signature"
)
