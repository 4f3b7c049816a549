package transcript

import "strings"

// DefaultNoiseWords are short utterances the speech model emits for
// background noise or channel artifacts. Matched case-insensitively after
// trimming.
var DefaultNoiseWords = []string{"you", "bye", "hello", "uh", "um"}

const defaultMinUtterance = 3

// Filter rejects user transcripts too short or too noisy to be answers.
// The noise list is configurable; the zero value accepts everything.
type Filter struct {
	minLen int
	noise  map[string]struct{}
}

// NewFilter builds a filter from a noise word list and minimum rune length.
// Non-positive minLen and a nil list fall back to the defaults.
func NewFilter(noiseWords []string, minLen int) *Filter {
	if noiseWords == nil {
		noiseWords = DefaultNoiseWords
	}
	if minLen <= 0 {
		minLen = defaultMinUtterance
	}
	noise := make(map[string]struct{}, len(noiseWords))
	for _, w := range noiseWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			noise[w] = struct{}{}
		}
	}
	return &Filter{minLen: minLen, noise: noise}
}

// Accept reports whether text qualifies as a user utterance worth keeping.
func (f *Filter) Accept(text string) bool {
	if f == nil || f.noise == nil {
		return strings.TrimSpace(text) != ""
	}
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < f.minLen {
		return false
	}
	if _, noisy := f.noise[strings.ToLower(trimmed)]; noisy {
		return false
	}
	return true
}
