package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleCreator = "creator"
	RoleViewer  = "viewer"
)

const (
	ContentPDF   = "pdf"
	ContentImage = "image"
	ContentMixed = "mixed"
)

// PaymentCompleted is the only status ever written; there is no refund flow.
const PaymentCompleted = "completed"

const (
	MinRating = 1
	MaxRating = 5
)

// Base gives every table a string uuid primary key that works on mysql, postgres and sqlite alike.
type Base struct {
	ID string `gorm:"type:varchar(36);primaryKey" json:"id"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

type User struct {
	Base
	Name           string    `gorm:"type:varchar(50);not null" json:"name"`
	Email          string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash   string    `gorm:"not null" json:"-"`
	Role           string    `gorm:"type:varchar(16);not null" json:"userType"`
	ProfilePicture string    `gorm:"type:text" json:"profilePicture,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (u *User) IsCreator() bool {
	return u.Role == RoleCreator
}

type Note struct {
	Base
	CreatorID    string                      `gorm:"type:varchar(36);index;not null" json:"creator_id"`
	Title        string                      `gorm:"type:varchar(255);not null" json:"title"`
	Subject      string                      `gorm:"type:varchar(100);index;not null" json:"subject"`
	Topics       datatypes.JSONSlice[string] `json:"topics"`
	Description  string                      `gorm:"type:text" json:"description"`
	ContentType  string                      `gorm:"type:varchar(16);not null" json:"content_type"`
	ContentURLs  datatypes.JSONSlice[string] `gorm:"column:content_urls" json:"content_urls"`
	ThumbnailURL string                      `gorm:"column:thumbnail_url;type:text" json:"thumbnail_url,omitempty"`
	FreeTopics   datatypes.JSONSlice[string] `json:"free_topics"`
	PaidTopics   datatypes.JSONSlice[string] `json:"paid_topics"`
	Price        Money                       `gorm:"column:price_cents;not null" json:"price"`
	IsPublished  bool                        `gorm:"not null;index" json:"is_published"`
	LikeCount    int64                       `gorm:"not null;default:0" json:"like_count"` // 点赞数由 worker 定时回写
	DateUploaded time.Time                   `gorm:"autoCreateTime" json:"date_uploaded"`
	DateModified time.Time                   `gorm:"autoUpdateTime" json:"date_modified"`
}

func (n *Note) IsFree() bool {
	return n.Price == 0
}

type Payment struct {
	Base
	UserID        string            `gorm:"type:varchar(36);not null;uniqueIndex:idx_payment_user_note" json:"user_id"`
	NoteID        string            `gorm:"type:varchar(36);not null;uniqueIndex:idx_payment_user_note" json:"note_id"`
	CreatorID     string            `gorm:"type:varchar(36);not null;index" json:"creator_id"`
	Amount        Money             `gorm:"column:amount_cents;not null" json:"amount"`
	Currency      string            `gorm:"type:varchar(3);not null" json:"currency"`
	Status        string            `gorm:"type:varchar(16);not null;index" json:"status"`
	PaymentMethod string            `gorm:"type:varchar(50);not null" json:"payment_method"`
	TransactionID string            `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_id"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	Date          time.Time         `gorm:"autoCreateTime;index" json:"date"`
}

type Comment struct {
	Base
	UserID     string     `gorm:"type:varchar(36);not null;index" json:"user_id"`
	NoteID     string     `gorm:"type:varchar(36);not null;index" json:"note_id"`
	Text       string     `gorm:"type:text;not null" json:"text"`
	Rating     *int       `json:"rating"`
	IsDeleted  bool       `gorm:"not null;index" json:"-"`
	Date       time.Time  `gorm:"autoCreateTime" json:"date"`
	EditedDate *time.Time `json:"edited_date"`
	RemovedAt  *time.Time `gorm:"index" json:"-"`
}

func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}

type Like struct {
	Base
	UserID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_like_user_note" json:"user_id"`
	NoteID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_like_user_note;index" json:"note_id"`
	Date   time.Time `gorm:"autoCreateTime" json:"date"`
}

type Bookmark struct {
	Base
	UserID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_bookmark_user_note" json:"user_id"`
	NoteID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_bookmark_user_note;index" json:"note_id"`
	Date   time.Time `gorm:"autoCreateTime" json:"date"`
}

// All lists every table for AutoMigrate.
func All() []any {
	return []any{&User{}, &Note{}, &Payment{}, &Comment{}, &Like{}, &Bookmark{}}
}
