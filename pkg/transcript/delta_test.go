package transcript

import "testing"

func TestDeltaBufferAccumulatesAndResets(t *testing.T) {
	var d DeltaBuffer
	if d.Accumulating() {
		t.Fatalf("fresh buffer should be idle")
	}
	d.Add("Good ")
	d.Add("morning")
	if !d.Accumulating() {
		t.Fatalf("expected accumulating state")
	}
	if got := d.Done(""); got != "Good morning" {
		t.Fatalf("expected accumulated text, got %q", got)
	}
	if d.Accumulating() {
		t.Fatalf("Done must reset to idle")
	}
	if got := d.Done(""); got != "" {
		t.Fatalf("second Done must be empty, got %q", got)
	}
}

func TestDeltaBufferFinalTextWins(t *testing.T) {
	var d DeltaBuffer
	d.Add("partial fragm")
	if got := d.Done("The complete sentence."); got != "The complete sentence." {
		t.Fatalf("final text should win, got %q", got)
	}
}

func TestDeltaBufferIgnoresEmptyDelta(t *testing.T) {
	var d DeltaBuffer
	d.Add("")
	if d.Accumulating() {
		t.Fatalf("empty delta must not start accumulation")
	}
}
