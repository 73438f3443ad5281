package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"noteflow/models"
)

type UserRepo struct {
	db *gorm.DB
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	u.Email = normalizeEmail(u.Email)
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// UserPatch holds profile changes. Role and email are not editable.
type UserPatch struct {
	Name           *string
	ProfilePicture *string
}

func (r *UserRepo) Update(ctx context.Context, id string, patch UserPatch) (*models.User, error) {
	updates := map[string]any{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.ProfilePicture != nil {
		updates["profile_picture"] = *patch.ProfilePicture
	}
	if len(updates) == 0 {
		return nil, ErrNothingToUpdate
	}

	var u models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&u).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Model(&u).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Take(&u).Error
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Unmarked lists the notes that lost a like or bookmark when an account was deleted.
type Unmarked struct {
	Liked      []string
	Bookmarked []string
}

// Delete removes the account and its likes and bookmarks, soft deletes its
// comments and unpublishes its notes. Payments stay for the sellers' records.
// The returned note ids need their cached counts refreshed.
func (r *UserRepo) Delete(ctx context.Context, id string) (Unmarked, error) {
	var out Unmarked
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Model(&models.Like{}).Where("user_id = ?", id).Pluck("note_id", &out.Liked).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Bookmark{}).Where("user_id = ?", id).Pluck("note_id", &out.Bookmarked).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Bookmark{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Comment{}).
			Where("user_id = ? AND is_deleted = ?", id, false).
			Updates(map[string]any{"is_deleted": true, "removed_at": tx.NowFunc()}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Note{}).Where("creator_id = ?", id).Update("is_published", false).Error
	})
	if err != nil {
		return Unmarked{}, err
	}
	return out, nil
}
