// Package session holds per-user conversation state: history, activity
// timestamps and lifetime message counters. Everything lives in memory and is
// lost on restart.
package session

import "time"

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Session is a copy of one user's conversation state. Mutating it has no
// effect on the store.
type Session struct {
	UserID       string    `json:"user_id"`
	History      []Turn    `json:"history"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	MessageCount int       `json:"message_count"`
}

// SessionInfo is the metadata view returned by Snapshot.
type SessionInfo struct {
	UserID       string    `json:"user_id"`
	Turns        int       `json:"turns"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	MessageCount int       `json:"message_count"`
}

// UsageEntry is one row of the leaderboard.
type UsageEntry struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// UsageStats summarises the tracker in a single consistent read.
type UsageStats struct {
	Sessions int `json:"sessions"`
	Users    int `json:"users"`
	Total    int `json:"total_messages"`
	Average  int `json:"average_messages"`
}

func cloneTurns(turns []Turn) []Turn {
	if len(turns) == 0 {
		return []Turn{}
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
