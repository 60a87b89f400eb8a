// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the VoteToken
// model that gates vote and unvote calls.
package repo

import (
	"context"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-reactions-backend/internal/domain"
)

// FindToken returns the stored token for (coll, userID) or ErrNotFound.
// Expiry is not checked here; the token issuer owns that policy.
func FindToken(ctx context.Context, db *gorm.DB, coll, userID string) (*domain.VoteToken, error) {
	var tok domain.VoteToken
	err := db.WithContext(ctx).
		Where("collection = ? AND user_id = ?", coll, userID).
		First(&tok).Error
	if err != nil {
		return nil, err
	}
	if tok.TokenID == "" || tok.IssuedAt.IsZero() {
		return nil, ErrMalformedRecord
	}
	return &tok, nil
}

// SaveToken stores tok, superseding any previous token of the same user.
func SaveToken(ctx context.Context, db *gorm.DB, tok domain.VoteToken) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"token_id", "issued_at"}),
		}).
		Create(&tok).Error
}

// PurgeTokens deletes tokens issued before the cutoff in every collection
// whose name starts with prefix, returning the number of rows removed.
func PurgeTokens(ctx context.Context, db *gorm.DB, prefix string, before time.Time) (int64, error) {
	q := db.WithContext(ctx).Where("issued_at < ?", before)
	if prefix != "" {
		// substr avoids LIKE, whose wildcards collide with "_" in prefixes.
		q = q.Where("substr(collection, 1, ?) = ?", utf8.RuneCountInString(prefix), prefix)
	}
	res := q.Delete(&domain.VoteToken{})
	return res.RowsAffected, res.Error
}
