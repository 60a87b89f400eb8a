// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Module
// aggregate: the module row itself and the per-option counters it owns.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Every query is scoped by a collection name supplied by the caller. The
// repository does not know how collections map to tenants.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Rows that violate model invariants (negative counts, empty keys) are
//     reported as ErrMalformedRecord instead of being handed to callers.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - FindModule(ctx, db, coll, moduleID) -> *domain.Module, error
//     Loads the module row and assembles Options from its counters.
//
//   - InsertModule(ctx, db, coll, moduleID) -> *domain.Module, error
//     Inserts an empty module if absent (concurrent inserts are harmless)
//     and returns the stored record.
//
//   - SetModuleTitle(ctx, db, coll, moduleID, title) -> error
//     Upserts the module title.
//
//   - RemoveModule(ctx, db, coll, moduleID) -> error
//     Deletes the module, its counters and its reaction rows.
//
// Usage:
//
//	m, err := repo.FindModule(ctx, db, "reactions_example.com", "article-42")
//	if errors.Is(err, repo.ErrNotFound) {
//	    m, err = repo.InsertModule(ctx, db, "reactions_example.com", "article-42")
//	}
//
// This repository is designed to be wrapped by a higher-level service
// (see services.ReactionService) which enforces the vote-consistency rules
// and caching.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-reactions-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrMalformedRecord is returned when a stored record violates the model
// invariants (e.g. a negative counter or an empty option key).
var ErrMalformedRecord = errors.New("malformed record")

// FindModule fetches a module by collection and id and fills Options from
// its counter rows. It returns ErrNotFound when the module row is missing.
func FindModule(ctx context.Context, db *gorm.DB, coll, moduleID string) (*domain.Module, error) {
	var m domain.Module
	err := db.WithContext(ctx).
		Where("collection = ? AND module_id = ?", coll, moduleID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	opts, err := loadOptions(ctx, db, coll, moduleID)
	if err != nil {
		return nil, err
	}
	m.Options = opts
	return &m, nil
}

// InsertModule creates an empty module row unless one already exists and
// returns the stored module.
func InsertModule(ctx context.Context, db *gorm.DB, coll, moduleID string) (*domain.Module, error) {
	if err := ensureModule(ctx, db, coll, moduleID); err != nil {
		return nil, err
	}
	return FindModule(ctx, db, coll, moduleID)
}

// SetModuleTitle sets the title of a module, creating the module if needed.
func SetModuleTitle(ctx context.Context, db *gorm.DB, coll, moduleID, title string) error {
	now := time.Now().UTC()
	m := &domain.Module{
		Collection: coll,
		ModuleID:   moduleID,
		Title:      title,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "module_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "updated_at"}),
		}).
		Create(m).Error
}

// RemoveModule deletes a module together with its counters and reaction
// rows. It returns ErrNotFound if the module row did not exist.
func RemoveModule(ctx context.Context, db *gorm.DB, coll, moduleID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		where := "collection = ? AND module_id = ?"
		if err := tx.Where(where, coll, moduleID).Delete(&domain.OptionCounter{}).Error; err != nil {
			return err
		}
		if err := tx.Where(where, coll, moduleID).Delete(&domain.UserReaction{}).Error; err != nil {
			return err
		}
		res := tx.Where(where, coll, moduleID).Delete(&domain.Module{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ensureModule inserts an empty module row, ignoring conflicts.
func ensureModule(ctx context.Context, db *gorm.DB, coll, moduleID string) error {
	now := time.Now().UTC()
	m := &domain.Module{
		Collection: coll,
		ModuleID:   moduleID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(m).Error
}

// loadOptions reads all counters of a module into a fresh map.
func loadOptions(ctx context.Context, db *gorm.DB, coll, moduleID string) (map[string]int64, error) {
	var rows []domain.OptionCounter
	err := db.WithContext(ctx).
		Where("collection = ? AND module_id = ?", coll, moduleID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		if r.OptionKey == "" || r.Votes < 0 {
			return nil, fmt.Errorf("%w: module %q option %q has %d votes", ErrMalformedRecord, moduleID, r.OptionKey, r.Votes)
		}
		out[r.OptionKey] = r.Votes
	}
	return out, nil
}
