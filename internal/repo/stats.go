// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// by the admin surface and for conditional responses. Each function is
// context-aware and safe to call from services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-reactions-backend/internal/domain"
)

// CollectionStats returns aggregate metadata for one collection: the number
// of modules, the number of active reactions, and the most recent reaction
// update.
//
// When the collection has no reactions, LastActivity is nil.
func CollectionStats(ctx context.Context, db *gorm.DB, coll string) (domain.CollectionStats, error) {
	var out domain.CollectionStats

	if err := db.WithContext(ctx).Model(&domain.Module{}).
		Where("collection = ?", coll).
		Count(&out.Modules).Error; err != nil {
		return domain.CollectionStats{}, err
	}

	q := db.WithContext(ctx).Model(&domain.UserReaction{}).Where("collection = ?", coll)
	if err := q.Count(&out.Reactions).Error; err != nil {
		return domain.CollectionStats{}, err
	}
	if out.Reactions == 0 {
		return out, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err := q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return domain.CollectionStats{}, err
	}
	out.LastActivity = &row.UpdatedAt
	return out, nil
}

// DropCollection removes every row of every table that belongs to coll.
func DropCollection(ctx context.Context, db *gorm.DB, coll string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range allModels() {
			if err := tx.Where("collection = ?", coll).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DropAll removes every row from every reactions table.
func DropAll(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range allModels() {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func allModels() []any {
	return []any{&domain.OptionCounter{}, &domain.UserReaction{}, &domain.Module{}, &domain.VoteToken{}}
}
