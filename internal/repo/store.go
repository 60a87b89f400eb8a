package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-reactions-backend/internal/domain"
)

// Store binds the package-level repository functions to a database handle so
// they satisfy the store contracts declared by the service layer.
// The zero value is not usable; DB must be set.
type Store struct {
	DB *gorm.DB
}

// NewStore returns a Store over db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

// FindModule proxies FindModule.
func (s *Store) FindModule(ctx context.Context, coll, moduleID string) (*domain.Module, error) {
	return FindModule(ctx, s.DB, coll, moduleID)
}

// InsertModule proxies InsertModule.
func (s *Store) InsertModule(ctx context.Context, coll, moduleID string) (*domain.Module, error) {
	return InsertModule(ctx, s.DB, coll, moduleID)
}

// SetModuleTitle proxies SetModuleTitle.
func (s *Store) SetModuleTitle(ctx context.Context, coll, moduleID, title string) error {
	return SetModuleTitle(ctx, s.DB, coll, moduleID, title)
}

// RemoveModule proxies RemoveModule.
func (s *Store) RemoveModule(ctx context.Context, coll, moduleID string) error {
	return RemoveModule(ctx, s.DB, coll, moduleID)
}

// IncrementOption proxies IncrementOption.
func (s *Store) IncrementOption(ctx context.Context, coll, moduleID, option string, delta int64) error {
	return IncrementOption(ctx, s.DB, coll, moduleID, option, delta)
}

// ReplaceCounters proxies ReplaceCounters.
func (s *Store) ReplaceCounters(ctx context.Context, coll, moduleID string, counts map[string]int64) error {
	return ReplaceCounters(ctx, s.DB, coll, moduleID, counts)
}

// FindReaction proxies FindReaction.
func (s *Store) FindReaction(ctx context.Context, coll, moduleID, userID string) (*domain.UserReaction, error) {
	return FindReaction(ctx, s.DB, coll, moduleID, userID)
}

// UpsertReaction proxies UpsertReaction.
func (s *Store) UpsertReaction(ctx context.Context, coll, moduleID, userID, reaction string) error {
	return UpsertReaction(ctx, s.DB, coll, moduleID, userID, reaction)
}

// RemoveReaction proxies RemoveReaction.
func (s *Store) RemoveReaction(ctx context.Context, coll, moduleID, userID string) error {
	return RemoveReaction(ctx, s.DB, coll, moduleID, userID)
}

// CountReactions proxies CountReactions.
func (s *Store) CountReactions(ctx context.Context, coll, moduleID string) (map[string]int64, error) {
	return CountReactions(ctx, s.DB, coll, moduleID)
}

// Stats proxies CollectionStats.
func (s *Store) Stats(ctx context.Context, coll string) (domain.CollectionStats, error) {
	return CollectionStats(ctx, s.DB, coll)
}

// DropCollection proxies DropCollection.
func (s *Store) DropCollection(ctx context.Context, coll string) error {
	return DropCollection(ctx, s.DB, coll)
}

// DropAll proxies DropAll.
func (s *Store) DropAll(ctx context.Context) error {
	return DropAll(ctx, s.DB)
}

// FindToken proxies FindToken.
func (s *Store) FindToken(ctx context.Context, coll, userID string) (*domain.VoteToken, error) {
	return FindToken(ctx, s.DB, coll, userID)
}

// SaveToken proxies SaveToken.
func (s *Store) SaveToken(ctx context.Context, tok domain.VoteToken) error {
	return SaveToken(ctx, s.DB, tok)
}

// PurgeTokens proxies PurgeTokens.
func (s *Store) PurgeTokens(ctx context.Context, prefix string, before time.Time) (int64, error) {
	return PurgeTokens(ctx, s.DB, prefix, before)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close(context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
