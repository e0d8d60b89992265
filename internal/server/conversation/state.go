// Package conversation defines the in-memory conversation state driving the
// model calls, its versioned wire encoding, and replay from the durable turn
// log. State is derived data: it can always be rebuilt from a session's
// turns, so losing a cached copy costs latency, never data.
package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/akimychev/converse/internal/server/models"
)

// Message roles. A state always starts with a single system message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SystemPreamble seeds every fresh conversation.
const SystemPreamble = "You are a helpful assistant. Answer the user's questions clearly and concisely."

// TitlePrompt is the fixed input sent to the responder to derive a session
// title from the conversation so far.
const TitlePrompt = "Give a title for this chat session in under 7 words"

// schemaVersion is the current wire-encoding version. Decode rejects
// anything else.
const schemaVersion = 1

// Message is one tagged role/content record.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// State is the ordered message sequence for one session: the system preamble
// followed by alternating user/assistant messages.
type State struct {
	Version  int       `json:"version"`
	Messages []Message `json:"messages"`
}

// NewState returns a state seeded with the system preamble.
func NewState() *State {
	return &State{
		Version:  schemaVersion,
		Messages: []Message{{Role: RoleSystem, Content: SystemPreamble}},
	}
}

// Append records one completed turn.
func (s *State) Append(utterance, reply string) {
	s.Messages = append(s.Messages,
		Message{Role: RoleUser, Content: utterance},
		Message{Role: RoleAssistant, Content: reply},
	)
}

// Turns returns the number of utterance/reply pairs in the state.
func (s *State) Turns() int {
	return (len(s.Messages) - 1) / 2
}

// Clone returns an independent copy of the state.
func (s *State) Clone() *State {
	out := &State{Version: s.Version, Messages: make([]Message, len(s.Messages))}
	copy(out.Messages, s.Messages)
	return out
}

// Replay rebuilds a state from a session's ordered turn log. A session with
// zero turns rebuilds to just the seeded preamble.
func Replay(turns []*models.Turn) *State {
	s := NewState()
	for _, t := range turns {
		s.Append(t.Utterance, t.Reply)
	}
	return s
}

// Encode serializes the state for the conversation cache.
func Encode(s *State) ([]byte, error) {
	return json.Marshal(s)
}

// Decode parses a cached state blob, rejecting unknown schema versions so a
// stale entry written by an incompatible build reads as a miss, not garbage.
func Decode(data []byte) (*State, error) {
	s := &State{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("conversation decode: %w", err)
	}
	if s.Version != schemaVersion {
		return nil, fmt.Errorf("conversation decode: unsupported version %d", s.Version)
	}
	return s, nil
}
