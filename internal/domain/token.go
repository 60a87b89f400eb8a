package domain

import "time"

// VoteToken is the short-lived anti-abuse credential of a user within a
// domain, keyed by (collection, user_id). Issuing a new token overwrites the
// previous row, so at most one token per user is active at a time.
type VoteToken struct {
	Collection string    `gorm:"type:varchar(160);primaryKey"`
	UserID     string    `gorm:"type:varchar(191);primaryKey"`
	TokenID    string    `gorm:"type:char(36);not null"`
	IssuedAt   time.Time `gorm:"not null;index:idx_vote_tokens_issued"`
}

// TableName implements the GORM tabler interface.
func (VoteToken) TableName() string { return "vote_tokens" }

// Expired reports whether the token is past its lifetime at now.
// A token is still valid at exactly IssuedAt+lifetime.
func (t VoteToken) Expired(now time.Time, lifetime time.Duration) bool {
	return now.After(t.IssuedAt.Add(lifetime))
}
