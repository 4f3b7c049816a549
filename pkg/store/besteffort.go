package store

import (
	"context"
	"log/slog"

	"github.com/checklinehq/checkline/pkg/errorsx"
	"github.com/checklinehq/checkline/pkg/script"
)

// BestEffort shields callers from persistence failures: every operation
// returns a sentinel zero record instead of an error, logging the failure
// with a store_unavailable reason. A nil inner Recorder means the store was
// never reachable (startup without a database) and all operations degrade
// the same way.
type BestEffort struct {
	inner  Recorder
	logger *slog.Logger
}

func NewBestEffort(inner Recorder, logger *slog.Logger) *BestEffort {
	if logger == nil {
		logger = slog.Default()
	}
	return &BestEffort{inner: inner, logger: logger}
}

// Available reports whether a backing recorder is configured at all.
func (b *BestEffort) Available() bool { return b.inner != nil }

func (b *BestEffort) logErr(op string, err error) {
	b.logger.Warn("store_degraded",
		"op", op,
		"reason_code", string(errorsx.ReasonStoreUnavailable),
		"error", err.Error(),
	)
}

func (b *BestEffort) CreateUser(ctx context.Context, phone string) UserRecord {
	if b.inner == nil {
		return UserRecord{}
	}
	u, err := b.inner.CreateUser(ctx, phone)
	if err != nil {
		b.logErr("create_user", err)
		return UserRecord{}
	}
	return u
}

func (b *BestEffort) GetUserByPhone(ctx context.Context, phone string) (UserRecord, bool) {
	if b.inner == nil {
		return UserRecord{}, false
	}
	u, ok, err := b.inner.GetUserByPhone(ctx, phone)
	if err != nil {
		b.logErr("get_user_by_phone", err)
		return UserRecord{}, false
	}
	return u, ok
}

func (b *BestEffort) CreateCall(ctx context.Context, userID string, callType script.CallType, status string) CallRecord {
	if b.inner == nil {
		return CallRecord{}
	}
	c, err := b.inner.CreateCall(ctx, userID, callType, status)
	if err != nil {
		b.logErr("create_call", err)
		return CallRecord{}
	}
	return c
}

func (b *BestEffort) UpdateCall(ctx context.Context, callID string, upd CallUpdate) CallRecord {
	if b.inner == nil || callID == "" {
		return CallRecord{}
	}
	c, err := b.inner.UpdateCall(ctx, callID, upd)
	if err != nil {
		b.logErr("update_call", err)
		return CallRecord{}
	}
	return c
}

func (b *BestEffort) CreateTranscription(ctx context.Context, callID, content string) TranscriptionRecord {
	if b.inner == nil || callID == "" {
		return TranscriptionRecord{}
	}
	t, err := b.inner.CreateTranscription(ctx, callID, content)
	if err != nil {
		b.logErr("create_transcription", err)
		return TranscriptionRecord{}
	}
	return t
}

func (b *BestEffort) GetTranscriptionByCallID(ctx context.Context, callID string) (TranscriptionRecord, bool) {
	if b.inner == nil {
		return TranscriptionRecord{}, false
	}
	t, ok, err := b.inner.GetTranscriptionByCallID(ctx, callID)
	if err != nil {
		b.logErr("get_transcription", err)
		return TranscriptionRecord{}, false
	}
	return t, ok
}
