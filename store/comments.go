package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"noteflow/models"
)

const DefaultCommentLimit = 10

type CommentRepo struct {
	db *gorm.DB
}

// CommentView is a live comment with its author's name.
type CommentView struct {
	models.Comment
	UserName string `gorm:"column:user_name" json:"user_name"`
}

type Rating struct {
	AverageRating float64 `json:"averageRating"`
	RatingCount   int64   `json:"ratingCount"`
}

func (r *CommentRepo) views(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table("comments AS c").
		Select("c.*, COALESCE(u.name, '') AS user_name").
		Joins("LEFT JOIN users u ON u.id = c.user_id").
		Where("c.is_deleted = ?", false)
}

// Create stores a comment on a published note. ErrNotFound means the note is
// missing or unpublished.
func (r *CommentRepo) Create(ctx context.Context, c *models.Comment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Note{}).Where("id = ? AND is_published = ?", c.NoteID, true).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		if err := tx.Create(c).Error; err != nil {
			return fmt.Errorf("create comment: %w", err)
		}
		return nil
	})
}

func (r *CommentRepo) Get(ctx context.Context, id string) (*CommentView, error) {
	var v CommentView
	if err := r.views(ctx).Where("c.id = ?", id).Take(&v).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// ListByNote pages through live comments, newest first.
func (r *CommentRepo) ListByNote(ctx context.Context, noteID string, page Page) ([]CommentView, int64, error) {
	page = page.Clamp(DefaultCommentLimit)

	var total int64
	err := r.db.WithContext(ctx).Model(&models.Comment{}).
		Where("note_id = ? AND is_deleted = ?", noteID, false).
		Count(&total).Error
	if err != nil {
		return nil, 0, fmt.Errorf("count comments: %w", err)
	}

	comments := []CommentView{}
	err = page.apply(r.views(ctx).Where("c.note_id = ?", noteID).Order("c.date DESC, c.id DESC")).
		Scan(&comments).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list comments: %w", err)
	}
	return comments, total, nil
}

// Update replaces text and rating of a live comment owned by userID. A nil
// rating clears it.
func (r *CommentRepo) Update(ctx context.Context, id, userID, text string, rating *int) (*models.Comment, error) {
	var c models.Comment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scope := tx.Where("id = ? AND user_id = ? AND is_deleted = ?", id, userID, false)
		if err := scope.Take(&c).Error; err != nil {
			return notFound(err)
		}
		now := tx.NowFunc()
		err := tx.Model(&models.Comment{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(map[string]any{"text": text, "rating": rating, "edited_date": now}).Error
		if err != nil {
			return err
		}
		c.Text, c.Rating, c.EditedDate = text, rating, &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SoftDelete hides a live comment owned by userID.
func (r *CommentRepo) SoftDelete(ctx context.Context, id, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Comment{}).
			Where("id = ? AND user_id = ? AND is_deleted = ?", id, userID, false).
			Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return tx.Model(&models.Comment{}).
			Where("id = ?", id).
			Updates(map[string]any{"is_deleted": true, "removed_at": tx.NowFunc()}).Error
	})
}

// AverageRating averages the non-null ratings of live comments, rounded to one decimal.
func (r *CommentRepo) AverageRating(ctx context.Context, noteID string) (Rating, error) {
	var row struct {
		AverageRating float64
		RatingCount   int64
	}
	err := r.db.WithContext(ctx).Model(&models.Comment{}).
		Select("COALESCE(AVG(rating), 0) AS average_rating, COUNT(rating) AS rating_count").
		Where("note_id = ? AND rating IS NOT NULL AND is_deleted = ?", noteID, false).
		Scan(&row).Error
	if err != nil {
		return Rating{}, fmt.Errorf("average rating: %w", err)
	}
	return Rating{
		AverageRating: math.Round(row.AverageRating*10) / 10,
		RatingCount:   row.RatingCount,
	}, nil
}

// PurgeDeleted physically removes comments soft deleted before the cutoff.
func (r *CommentRepo) PurgeDeleted(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("is_deleted = ? AND removed_at IS NOT NULL AND removed_at < ?", true, before).
		Delete(&models.Comment{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge comments: %w", res.Error)
	}
	return res.RowsAffected, nil
}
