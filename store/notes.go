package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"noteflow/models"
)

type NoteRepo struct {
	db *gorm.DB
}

// NoteView is a note joined with its creator and, for Get, the viewer's purchase.
type NoteView struct {
	models.Note
	CreatorName    string  `gorm:"column:creator_name" json:"creator_name"`
	CreatorEmail   string  `gorm:"column:creator_email" json:"creator_email"`
	CreatorPicture string  `gorm:"column:creator_profile_picture" json:"creator_profile_picture,omitempty"`
	PurchaseID     *string `gorm:"column:purchase_id" json:"-"`
}

func (v *NoteView) Purchased() bool {
	return v.PurchaseID != nil && *v.PurchaseID != ""
}

const creatorColumns = "COALESCE(u.name, '') AS creator_name, COALESCE(u.email, '') AS creator_email, COALESCE(u.profile_picture, '') AS creator_profile_picture"

func (r *NoteRepo) Create(ctx context.Context, n *models.Note) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return nil
}

// Get loads a published note. viewerID may be empty; otherwise the viewer's
// completed payment for the note is joined in.
func (r *NoteRepo) Get(ctx context.Context, id, viewerID string) (*NoteView, error) {
	var v NoteView
	err := r.db.WithContext(ctx).
		Table("notes AS n").
		Select("n.*, "+creatorColumns+", p.id AS purchase_id").
		Joins("LEFT JOIN users u ON u.id = n.creator_id").
		Joins("LEFT JOIN payments p ON p.note_id = n.id AND p.user_id = ? AND p.status = ?", viewerID, models.PaymentCompleted).
		Where("n.id = ? AND n.is_published = ?", id, true).
		Take(&v).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

const (
	PriceFree = "free"
	PricePaid = "paid"
)

var sortColumns = map[string]string{
	"date_uploaded": "n.date_uploaded",
	"date_modified": "n.date_modified",
	"title":         "n.title",
	"price":         "n.price_cents",
	"subject":       "n.subject",
	"like_count":    "n.like_count",
}

func ValidSort(field string) bool {
	_, ok := sortColumns[field]
	return ok
}

type NoteFilter struct {
	Subject     string
	CreatorID   string
	Search      string
	PriceFilter string
	SortBy      string
	SortOrder   string
	Page
}

func (f NoteFilter) where(q *gorm.DB) *gorm.DB {
	q = q.Where("n.is_published = ?", true)
	if f.Subject != "" {
		q = q.Where("LOWER(n.subject) = LOWER(?)", f.Subject)
	}
	if f.CreatorID != "" {
		q = q.Where("n.creator_id = ?", f.CreatorID)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("(LOWER(n.title) LIKE ? OR LOWER(n.description) LIKE ?)", like, like)
	}
	switch f.PriceFilter {
	case PriceFree:
		q = q.Where("n.price_cents = 0")
	case PricePaid:
		q = q.Where("n.price_cents > 0")
	}
	return q
}

func (f NoteFilter) order() string {
	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = sortColumns["date_uploaded"]
	}
	dir := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		dir = "ASC"
	}
	return col + " " + dir + ", n.id " + dir
}

func (r *NoteRepo) Count(ctx context.Context, f NoteFilter) (int64, error) {
	var total int64
	if err := f.where(r.db.WithContext(ctx).Table("notes AS n")).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return total, nil
}

// List returns one page of published notes and the total matching the filter.
func (r *NoteRepo) List(ctx context.Context, f NoteFilter) ([]NoteView, int64, error) {
	f.Page = f.Page.Clamp(DefaultLimit)

	total, err := r.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	notes := []NoteView{}
	q := f.where(r.db.WithContext(ctx).Table("notes AS n").
		Select("n.*, " + creatorColumns).
		Joins("LEFT JOIN users u ON u.id = n.creator_id"))
	if err := f.Page.apply(q.Order(f.order())).Scan(&notes).Error; err != nil {
		return nil, 0, fmt.Errorf("list notes: %w", err)
	}
	return notes, total, nil
}

// NotePatch carries the fields a creator may change. nil means unchanged.
type NotePatch struct {
	Title        *string
	Subject      *string
	Topics       []string
	Description  *string
	ContentType  *string
	ContentURLs  []string
	ThumbnailURL *string
	FreeTopics   []string
	PaidTopics   []string
	Price        *models.Money
	IsPublished  *bool
}

func (p NotePatch) updates() map[string]any {
	m := map[string]any{}
	if p.Title != nil {
		m["title"] = *p.Title
	}
	if p.Subject != nil {
		m["subject"] = *p.Subject
	}
	if p.Topics != nil {
		m["topics"] = datatypes.JSONSlice[string](p.Topics)
	}
	if p.Description != nil {
		m["description"] = *p.Description
	}
	if p.ContentType != nil {
		m["content_type"] = *p.ContentType
	}
	if p.ContentURLs != nil {
		m["content_urls"] = datatypes.JSONSlice[string](p.ContentURLs)
	}
	if p.ThumbnailURL != nil {
		m["thumbnail_url"] = *p.ThumbnailURL
	}
	if p.FreeTopics != nil {
		m["free_topics"] = datatypes.JSONSlice[string](p.FreeTopics)
	}
	if p.PaidTopics != nil {
		m["paid_topics"] = datatypes.JSONSlice[string](p.PaidTopics)
	}
	if p.Price != nil {
		m["price_cents"] = int64(*p.Price)
	}
	if p.IsPublished != nil {
		m["is_published"] = *p.IsPublished
	}
	return m
}

// Update applies patch to a note owned by creatorID. A note that does not
// exist and a note owned by someone else both yield ErrNotFound.
func (r *NoteRepo) Update(ctx context.Context, id, creatorID string, patch NotePatch) (*models.Note, error) {
	updates := patch.updates()
	if len(updates) == 0 {
		return nil, ErrNothingToUpdate
	}

	var n models.Note
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND creator_id = ?", id, creatorID).Take(&n).Error; err != nil {
			return notFound(err)
		}
		updates["date_modified"] = tx.NowFunc()
		if err := tx.Model(&models.Note{}).Where("id = ? AND creator_id = ?", id, creatorID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Take(&n).Error
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Delete removes a note owned by creatorID together with its likes, bookmarks
// and comments. Payments keep their metadata snapshot.
func (r *NoteRepo) Delete(ctx context.Context, id, creatorID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND creator_id = ?", id, creatorID).Delete(&models.Note{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		for _, m := range []any{&models.Like{}, &models.Bookmark{}, &models.Comment{}} {
			if err := tx.Where("note_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *NoteRepo) SetLikeCount(ctx context.Context, id string, count int64) error {
	return r.db.WithContext(ctx).Model(&models.Note{}).
		Where("id = ?", id).
		UpdateColumn("like_count", count).Error
}
