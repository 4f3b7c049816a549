// Package transcript assembles the per-call conversation transcript from
// fragments that arrive on independent event streams.
package transcript

import "strings"

// Speaker identifies which side of the call produced a line.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Line is one finalized utterance. Text is never empty after trimming.
type Line struct {
	Speaker Speaker
	Text    string
}

// String renders the line in the stored transcript format.
func (l Line) String() string {
	if l.Speaker == SpeakerAssistant {
		return "AI: " + l.Text
	}
	return "User: " + l.Text
}

// NewLine trims text and reports whether a storable line was produced.
func NewLine(speaker Speaker, text string) (Line, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Line{}, false
	}
	return Line{Speaker: speaker, Text: text}, true
}
