// Package domain defines the persistence models for modules, per-option vote
// counters and user reactions, plus the Snapshot returned to callers. These
// types are mapped with GORM and form the core data layer of the reactions
// backend.
//
// Every row carries a Collection column: the namespace a caller builds from a
// collection prefix and the tenant domain (e.g. "reactions_example.com").
// Queries are always scoped by it, so state never leaks across domains.
package domain

import (
	"sort"
	"time"
)

// Module is one votable content item within a domain.
//
// Fields:
//   - Collection / ModuleID: composite primary key.
//   - Title: optional display label (may be empty).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - Options: per-option vote counts. Not a column; repositories assemble it
//     from OptionCounter rows.
type Module struct {
	Collection string    `json:"-"          gorm:"type:varchar(160);primaryKey"`
	ModuleID   string    `json:"id"         gorm:"type:varchar(191);primaryKey"`
	Title      string    `json:"title"      gorm:"type:varchar(255);not null;default:''"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Options map[string]int64 `json:"options" gorm:"-"`
}

// TableName returns the database table name for Module.
func (Module) TableName() string { return "modules" }

// Clone returns a deep copy so cached values cannot be mutated by callers.
func (m Module) Clone() Module {
	out := m
	out.Options = make(map[string]int64, len(m.Options))
	for k, v := range m.Options {
		out.Options[k] = v
	}
	return out
}

// Total returns the sum of all option counts.
func (m Module) Total() int64 {
	var n int64
	for _, v := range m.Options {
		n += v
	}
	return n
}

// OptionCounter holds the vote count of a single option key within a module.
// Keys are created lazily on first vote and never removed by vote paths,
// even when the count returns to zero.
type OptionCounter struct {
	Collection string `gorm:"type:varchar(160);primaryKey"`
	ModuleID   string `gorm:"type:varchar(191);primaryKey"`
	OptionKey  string `gorm:"type:varchar(255);primaryKey"`
	Votes      int64  `gorm:"not null;default:0;check:chk_option_counters_votes,votes >= 0"`
}

// TableName returns the database table name for OptionCounter.
func (OptionCounter) TableName() string { return "option_counters" }

// UserReaction records the single active reaction of a user on a module.
// A retracted vote deletes the row.
type UserReaction struct {
	Collection string    `json:"-"        gorm:"type:varchar(160);primaryKey"`
	ModuleID   string    `json:"module_id" gorm:"type:varchar(191);primaryKey"`
	UserID     string    `json:"user_id"  gorm:"type:varchar(191);primaryKey"`
	Reaction   string    `json:"reaction" gorm:"type:varchar(255);not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"index:idx_reactions_updated"`
}

// TableName returns the database table name for UserReaction.
func (UserReaction) TableName() string { return "user_reactions" }

// CollectionStats summarizes one aggregate collection.
type CollectionStats struct {
	Modules      int64      `json:"modules"`
	Reactions    int64      `json:"reactions"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// Snapshot is the aggregate state of a module as seen by clients, optionally
// annotated with one user's reaction.
type Snapshot struct {
	Domain   string           `json:"domain"   example:"example.com"`
	ID       string           `json:"id"       example:"article-42"`
	Title    string           `json:"title"    example:"Release notes"`
	Options  map[string]int64 `json:"options"`
	UserID   string           `json:"userId,omitempty"   example:"visitor-1"`
	Reaction string           `json:"reaction,omitempty" example:"👍"`
}

// NewSnapshot builds a Snapshot for domain from m. Options is never nil.
func NewSnapshot(domainID string, m Module) Snapshot {
	c := m.Clone()
	return Snapshot{
		Domain:  domainID,
		ID:      m.ModuleID,
		Title:   m.Title,
		Options: c.Options,
	}
}

// OptionKeys returns the option keys of s in sorted order.
func (s Snapshot) OptionKeys() []string {
	keys := make([]string, 0, len(s.Options))
	for k := range s.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
