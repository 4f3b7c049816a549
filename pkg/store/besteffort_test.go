package store

import (
	"context"
	"errors"
	"testing"

	"github.com/checklinehq/checkline/pkg/script"
)

type failingRecorder struct{ err error }

func (f *failingRecorder) CreateUser(context.Context, string) (UserRecord, error) {
	return UserRecord{}, f.err
}
func (f *failingRecorder) GetUserByPhone(context.Context, string) (UserRecord, bool, error) {
	return UserRecord{}, false, f.err
}
func (f *failingRecorder) CreateCall(context.Context, string, script.CallType, string) (CallRecord, error) {
	return CallRecord{}, f.err
}
func (f *failingRecorder) UpdateCall(context.Context, string, CallUpdate) (CallRecord, error) {
	return CallRecord{}, f.err
}
func (f *failingRecorder) CreateTranscription(context.Context, string, string) (TranscriptionRecord, error) {
	return TranscriptionRecord{}, f.err
}
func (f *failingRecorder) GetTranscriptionByCallID(context.Context, string) (TranscriptionRecord, bool, error) {
	return TranscriptionRecord{}, false, f.err
}

type okRecorder struct{ failingRecorder }

func (o *okRecorder) CreateCall(context.Context, string, script.CallType, string) (CallRecord, error) {
	return CallRecord{ID: "call-1"}, nil
}

func TestBestEffortNilRecorder(t *testing.T) {
	b := NewBestEffort(nil, nil)
	if b.Available() {
		t.Fatalf("nil recorder should not be available")
	}
	if u := b.CreateUser(context.Background(), "+100"); u.ID != "" {
		t.Fatalf("expected sentinel user record")
	}
	if _, ok := b.GetTranscriptionByCallID(context.Background(), "x"); ok {
		t.Fatalf("expected miss")
	}
}

func TestBestEffortSwallowsErrors(t *testing.T) {
	b := NewBestEffort(&failingRecorder{err: errors.New("connection refused")}, nil)
	if c := b.CreateCall(context.Background(), "u", script.CallTypeMorning, StatusInitiated); c.ID != "" {
		t.Fatalf("expected sentinel call record on failure")
	}
	if tr := b.CreateTranscription(context.Background(), "call-1", "text"); tr.ID != "" {
		t.Fatalf("expected sentinel transcription record on failure")
	}
}

func TestBestEffortPassesThrough(t *testing.T) {
	b := NewBestEffort(&okRecorder{}, nil)
	if c := b.CreateCall(context.Background(), "u", script.CallTypeMorning, StatusInitiated); c.ID != "call-1" {
		t.Fatalf("expected inner record, got %+v", c)
	}
}

func TestBestEffortSkipsEmptyCallID(t *testing.T) {
	rec := &failingRecorder{err: errors.New("should not be called")}
	b := NewBestEffort(rec, nil)
	if tr := b.CreateTranscription(context.Background(), "", "text"); tr.ID != "" {
		t.Fatalf("expected sentinel for empty call id")
	}
}
