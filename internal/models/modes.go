// Package models defines the conversation mode state machine for OtterCoach.
package models

// ConversationMode is the state governing which handler processes a user's
// turn. Persisted as a durable column on the user row, never an in-memory map.
type ConversationMode string

const (
	ModeOnboarding ConversationMode = "onboarding"
	ModeIdle       ConversationMode = "idle"
	ModeFreeChat   ConversationMode = "free_chat"
	ModeCheckIn    ConversationMode = "check_in"
	ModeBriefing   ConversationMode = "briefing"
	ModeDebrief    ConversationMode = "debrief"
)

// IsValidMode checks if the given conversation mode is supported.
func IsValidMode(m ConversationMode) bool {
	switch m {
	case ModeOnboarding, ModeIdle, ModeFreeChat, ModeCheckIn, ModeBriefing, ModeDebrief:
		return true
	default:
		return false
	}
}

// modeTransitions is the closed transition table. The scheduler may
// additionally force idle/free_chat users into check_in, briefing, or debrief
// when a proactive window opens, and the reset command forces onboarding while
// onboarding is incomplete.
var modeTransitions = map[ConversationMode][]ConversationMode{
	ModeOnboarding: {ModeIdle},
	ModeIdle:       {ModeFreeChat, ModeCheckIn, ModeBriefing, ModeDebrief},
	ModeFreeChat:   {ModeIdle, ModeCheckIn, ModeBriefing, ModeDebrief},
	ModeCheckIn:    {ModeIdle},
	ModeBriefing:   {ModeDebrief, ModeIdle},
	ModeDebrief:    {ModeIdle},
}

// CanTransition reports whether moving from one mode to another is part of
// the normal state machine.
func CanTransition(from, to ConversationMode) bool {
	for _, next := range modeTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EffectiveMode maps unknown or unset modes to free-chat behavior.
func EffectiveMode(m ConversationMode) ConversationMode {
	if !IsValidMode(m) || m == "" {
		return ModeFreeChat
	}
	return m
}
