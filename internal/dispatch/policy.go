// Package dispatch holds the pure per-event decisions of the relay: whether
// an inbound message still earns a completion call, and whether the
// conversation should be flagged for a human agent. All thresholds are named
// configuration; a zero value disables its check.
package dispatch

import (
	"strings"

	"github.com/antoniostano/whatsline/internal/transcript"
)

// Limits bounds automated replies per conversation.
type Limits struct {
	// MaxAssistantTurns is the reply budget. Once the transcript holds this
	// many assistant turns, the completion service is no longer queried and
	// inbound messages are acknowledged silently.
	MaxAssistantTurns int
}

// Thresholds configures human-handoff triggers.
type Thresholds struct {
	// Marker is a sentinel substring in the assistant reply that requests
	// escalation (the persona prompt instructs the model to emit it).
	Marker string
	// MaxTotalTurns triggers handoff once the whole transcript reaches this
	// many turns. 0 disables the check.
	MaxTotalTurns int
	// MaxAssistantTurns triggers handoff once this many assistant turns
	// exist. 0 disables the check.
	MaxAssistantTurns int
}

// ShouldQueryCompletion reports whether the completion service may be
// queried for the next reply. Comparison is >= so a conversation that
// skipped a turn still stops at the budget.
func ShouldQueryCompletion(turns []transcript.Turn, limits Limits) bool {
	if limits.MaxAssistantTurns <= 0 {
		return true
	}
	return transcript.CountRole(turns, transcript.RoleAssistant) < limits.MaxAssistantTurns
}

// ShouldHandoff reports whether the conversation should be escalated to a
// human agent: the prior assistant reply carries the sentinel marker, or a
// configured turn-count threshold has been reached.
func ShouldHandoff(turns []transcript.Turn, priorReply string, th Thresholds) bool {
	if th.Marker != "" && strings.Contains(priorReply, th.Marker) {
		return true
	}
	if th.MaxTotalTurns > 0 && len(turns) >= th.MaxTotalTurns {
		return true
	}
	if th.MaxAssistantTurns > 0 &&
		transcript.CountRole(turns, transcript.RoleAssistant) >= th.MaxAssistantTurns {
		return true
	}
	return false
}
