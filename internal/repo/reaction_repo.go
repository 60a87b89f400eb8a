// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for UserReaction:
// the single active reaction a user holds on a module.
package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-reactions-backend/internal/domain"
)

// FindReaction returns the user's reaction on a module or ErrNotFound when
// the user holds none.
func FindReaction(ctx context.Context, db *gorm.DB, coll, moduleID, userID string) (*domain.UserReaction, error) {
	var r domain.UserReaction
	err := db.WithContext(ctx).
		Where("collection = ? AND module_id = ? AND user_id = ?", coll, moduleID, userID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	if r.Reaction == "" {
		return nil, fmt.Errorf("%w: empty reaction for user %q on module %q", ErrMalformedRecord, userID, moduleID)
	}
	return &r, nil
}

// UpsertReaction records reaction as the user's current choice, overwriting
// any previous one.
func UpsertReaction(ctx context.Context, db *gorm.DB, coll, moduleID, userID, reaction string) error {
	now := time.Now().UTC()
	r := &domain.UserReaction{
		Collection: coll,
		ModuleID:   moduleID,
		UserID:     userID,
		Reaction:   reaction,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "module_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"reaction", "updated_at"}),
		}).
		Create(r).Error
}

// RemoveReaction deletes the user's reaction row. If no row existed it
// returns ErrNotFound.
func RemoveReaction(ctx context.Context, db *gorm.DB, coll, moduleID, userID string) error {
	res := db.WithContext(ctx).
		Where("collection = ? AND module_id = ? AND user_id = ?", coll, moduleID, userID).
		Delete(&domain.UserReaction{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountReactions returns the number of active reaction rows per option for a
// module. Options nobody currently holds are absent from the result.
func CountReactions(ctx context.Context, db *gorm.DB, coll, moduleID string) (map[string]int64, error) {
	var rows []struct {
		Reaction string
		N        int64
	}
	err := db.WithContext(ctx).
		Model(&domain.UserReaction{}).
		Select("reaction, COUNT(*) AS n").
		Where("collection = ? AND module_id = ?", coll, moduleID).
		Group("reaction").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Reaction] = r.N
	}
	return out, nil
}
