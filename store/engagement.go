package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"noteflow/models"
)

const DefaultUserListLimit = 50

// AssocRepo handles the user-note marker tables (likes and bookmarks). A row
// existing is the whole state.
type AssocRepo[T models.Like | models.Bookmark] struct {
	db    *gorm.DB
	table string
	build func(userID, noteID string) *T
}

// Toggle removes the marker when present and adds it otherwise. It reports
// whether the marker exists afterwards. Adding to a note that is missing or
// unpublished yields ErrNotFound. The delete and the insert each commit on
// their own: a concurrent toggle that inserts first turns the insert into a
// no-op.
func (r *AssocRepo[T]) Toggle(ctx context.Context, userID, noteID string) (bool, error) {
	db := r.db.WithContext(ctx)
	res := db.Where("user_id = ? AND note_id = ?", userID, noteID).Delete(new(T))
	if res.Error != nil {
		return false, fmt.Errorf("remove %s: %w", r.table, res.Error)
	}
	if res.RowsAffected > 0 {
		return false, nil
	}

	var n int64
	if err := db.Model(&models.Note{}).Where("id = ? AND is_published = ?", noteID, true).Count(&n).Error; err != nil {
		return false, err
	}
	if n == 0 {
		return false, ErrNotFound
	}
	if err := r.add(db, userID, noteID); err != nil {
		return false, fmt.Errorf("add %s: %w", r.table, err)
	}
	return true, nil
}

// add inserts the marker; an existing row counts as added.
func (r *AssocRepo[T]) add(db *gorm.DB, userID, noteID string) error {
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(r.build(userID, noteID)).Error
	if err != nil && !isUniqueViolation(err) {
		return err
	}
	return nil
}

func (r *AssocRepo[T]) Has(ctx context.Context, userID, noteID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(new(T)).
		Where("user_id = ? AND note_id = ?", userID, noteID).
		Count(&n).Error
	return n > 0, err
}

func (r *AssocRepo[T]) Count(ctx context.Context, noteID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(new(T)).Where("note_id = ?", noteID).Count(&n).Error
	return n, err
}

// Remove deletes the marker. ErrNotFound means there was nothing to remove.
func (r *AssocRepo[T]) Remove(ctx context.Context, userID, noteID string) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND note_id = ?", userID, noteID).Delete(new(T))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type MarkedBy struct {
	ID     string    `json:"id"`
	UserID string    `json:"user_id"`
	Name   string    `json:"name"`
	Date   time.Time `json:"date"`
}

// ListUsers pages through the users who marked a note, newest first.
func (r *AssocRepo[T]) ListUsers(ctx context.Context, noteID string, page Page) ([]MarkedBy, int64, error) {
	page = page.Clamp(DefaultUserListLimit)

	total, err := r.Count(ctx, noteID)
	if err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", r.table, err)
	}

	rows := []MarkedBy{}
	err = page.apply(r.db.WithContext(ctx).Table(r.table+" AS m").
		Select("m.id, m.user_id, COALESCE(u.name, '') AS name, m.date").
		Joins("LEFT JOIN users u ON u.id = m.user_id").
		Where("m.note_id = ?", noteID).
		Order("m.date DESC, m.id DESC")).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", r.table, err)
	}
	return rows, total, nil
}

// MarkedNote is a note as listed on a user's likes or bookmarks page.
type MarkedNote struct {
	NoteView
	MarkedAt     time.Time `gorm:"column:marked_at" json:"marked_at"`
	CommentCount int64     `gorm:"column:comment_count" json:"comment_count"`
}

// ListNotes pages through the published notes a user marked, newest mark first.
func (r *AssocRepo[T]) ListNotes(ctx context.Context, userID string, page Page) ([]MarkedNote, int64, error) {
	page = page.Clamp(DefaultLimit)
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Table(r.table+" AS m").
			Joins("INNER JOIN notes n ON n.id = m.note_id").
			Where("m.user_id = ? AND n.is_published = ?", userID, true)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", r.table, err)
	}

	notes := []MarkedNote{}
	err := page.apply(base().
		Select("n.*, "+creatorColumns+", m.date AS marked_at, "+
			"(SELECT COUNT(*) FROM comments c WHERE c.note_id = n.id AND c.is_deleted = ?) AS comment_count", false).
		Joins("LEFT JOIN users u ON u.id = n.creator_id").
		Order("m.date DESC, m.id DESC")).
		Scan(&notes).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", r.table, err)
	}
	return notes, total, nil
}

type MarkStats struct {
	Total         int64 `json:"totalBookmarks"`
	SubjectsCount int64 `json:"subjectsCount"`
	CreatorsCount int64 `json:"creatorsCount"`
}

// Stats summarises a user's markers over existing notes.
func (r *AssocRepo[T]) Stats(ctx context.Context, userID string) (MarkStats, error) {
	var s MarkStats
	err := r.db.WithContext(ctx).Table(r.table+" AS m").
		Select("COUNT(*) AS total, COUNT(DISTINCT n.subject) AS subjects_count, COUNT(DISTINCT n.creator_id) AS creators_count").
		Joins("INNER JOIN notes n ON n.id = m.note_id").
		Where("m.user_id = ?", userID).
		Scan(&s).Error
	if err != nil {
		return MarkStats{}, fmt.Errorf("%s stats: %w", r.table, err)
	}
	return s, nil
}
