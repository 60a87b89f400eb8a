package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-reactions-backend/internal/domain"
)

// ErrNegativeCount is returned by IncrementOption when a decrement would take
// a counter below zero (or the counter does not exist). Nothing is written.
var ErrNegativeCount = errors.New("counter would become negative")

// IncrementOption atomically adds delta to the vote count of one option.
//
// The arithmetic happens in the database, never as read-modify-write here:
//   - delta > 0 upserts the counter (creating the module and the option key on
//     first use) with votes = votes + delta.
//   - delta < 0 updates only when votes >= -delta; otherwise ErrNegativeCount.
//   - delta == 0 is a no-op.
func IncrementOption(ctx context.Context, db *gorm.DB, coll, moduleID, option string, delta int64) error {
	switch {
	case delta == 0:
		return nil
	case delta > 0:
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := ensureModule(ctx, tx, coll, moduleID); err != nil {
				return err
			}
			row := &domain.OptionCounter{
				Collection: coll,
				ModuleID:   moduleID,
				OptionKey:  option,
				Votes:      delta,
			}
			return tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "collection"}, {Name: "module_id"}, {Name: "option_key"}},
				DoUpdates: clause.Assignments(map[string]any{
					"votes": gorm.Expr("option_counters.votes + ?", delta),
				}),
			}).Create(row).Error
		})
	default:
		res := db.WithContext(ctx).
			Model(&domain.OptionCounter{}).
			Where("collection = ? AND module_id = ? AND option_key = ? AND votes >= ?", coll, moduleID, option, -delta).
			UpdateColumn("votes", gorm.Expr("votes + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNegativeCount
		}
		return nil
	}
}

// ReplaceCounters overwrites the counts of the given option keys, creating
// missing keys. Keys not present in counts are left untouched. Used only by
// the explicit repair pass.
func ReplaceCounters(ctx context.Context, db *gorm.DB, coll, moduleID string, counts map[string]int64) error {
	for k, v := range counts {
		if k == "" || v < 0 {
			return ErrMalformedRecord
		}
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureModule(ctx, tx, coll, moduleID); err != nil {
			return err
		}
		for k, v := range counts {
			row := &domain.OptionCounter{Collection: coll, ModuleID: moduleID, OptionKey: k, Votes: v}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "collection"}, {Name: "module_id"}, {Name: "option_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"votes"}),
			}).Create(row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
