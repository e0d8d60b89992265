package models

import "time"

// Session is one persisted conversation thread. The row is created only when
// the first turn of a new conversation commits, so a request that never
// completes a turn leaves no orphan session. Title stays empty until the
// first turn has been answered.
type Session struct {
	ID        string
	Title     string
	OwnerID   string
	CreatedAt time.Time
}
