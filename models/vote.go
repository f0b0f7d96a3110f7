package models

import "time"

// VoteType is the direction of a vote.
type VoteType string

const (
	Upvote   VoteType = "upvote"
	Downvote VoteType = "downvote"
)

// Valid reports whether t is a known vote direction.
func (t VoteType) Valid() bool {
	return t == Upvote || t == Downvote
}

// Vote is one user's vote on a thread. The unique index keeps a single row per (thread, voter).
type Vote struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	ThreadID  uint      `gorm:"not null;uniqueIndex:idx_vote_thread_user" json:"-"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_vote_thread_user" json:"userId"`
	Type      VoteType  `gorm:"size:8;not null" json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName keeps votes in their own namespaced table.
func (Vote) TableName() string { return "thread_votes" }

// Tally returns upvotes minus downvotes.
func Tally(votes []Vote) int {
	n := 0
	for _, v := range votes {
		switch v.Type {
		case Upvote:
			n++
		case Downvote:
			n--
		}
	}
	return n
}
