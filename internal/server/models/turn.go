package models

import "time"

// Turn is one utterance/reply pair in a session's append-only log. Seq orders
// turns within a session; replaying all turns in Seq order reconstructs the
// full conversation.
type Turn struct {
	ID        string
	SessionID string
	Seq       int64
	Utterance string
	Reply     string
	CreatedAt time.Time
}
