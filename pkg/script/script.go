// Package script holds the scripted question flows that drive check-in calls.
package script

import "strings"

// CallType selects which question script a call runs.
type CallType string

const (
	CallTypeMorning    CallType = "morning"
	CallTypeEvening    CallType = "evening"
	CallTypeUnscripted CallType = "unscripted"
)

// ParseCallType normalizes a wire value; anything unrecognized is unscripted.
func ParseCallType(v string) CallType {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "morning":
		return CallTypeMorning
	case "evening":
		return CallTypeEvening
	default:
		return CallTypeUnscripted
	}
}

var defaultScripts = map[CallType][]string{
	CallTypeMorning: {
		"Good morning. How are you feeling as you start your day?",
		"What is one thing you are grateful for this morning?",
		"Do you have any situations today that might be challenging for your recovery?",
		"What is your plan to stay on track today?",
	},
	CallTypeEvening: {
		"Good evening. How did your day go overall?",
		"Were there any moments today where you felt tempted or struggled?",
		"Is there anything you would do differently tomorrow?",
		"What are you most proud of from today?",
	},
}

// Library resolves a call type to its ordered prompt list. Custom scripts
// from config override the built-in defaults per call type.
type Library struct {
	scripts map[CallType][]string
}

// NewLibrary builds a library with optional per-type overrides. Empty or nil
// override lists keep the defaults; unscripted always resolves to no prompts.
func NewLibrary(overrides map[CallType][]string) *Library {
	scripts := make(map[CallType][]string, len(defaultScripts))
	for ct, prompts := range defaultScripts {
		scripts[ct] = prompts
	}
	for ct, prompts := range overrides {
		if len(prompts) > 0 && ct != CallTypeUnscripted {
			scripts[ct] = prompts
		}
	}
	return &Library{scripts: scripts}
}

// Prompts returns the script for a call type; nil means free conversation.
func (l *Library) Prompts(ct CallType) []string {
	if l == nil {
		return defaultScripts[ct]
	}
	return l.scripts[ct]
}
