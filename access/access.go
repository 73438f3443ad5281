// Package access decides what part of a note a requester may see and whether
// the requester may buy it.
package access

import (
	"errors"

	"noteflow/models"
)

var (
	ErrNotFound = errors.New("note not found")
	ErrOwnNote  = errors.New("you cannot purchase your own note")
	ErrFreeNote = errors.New("this note is free and does not require purchase")
)

// Requester is the identity behind a request. An empty UserID is an anonymous visitor.
type Requester struct {
	UserID string
}

func Anonymous() Requester {
	return Requester{}
}

func (r Requester) IsAnonymous() bool {
	return r.UserID == ""
}

type ContentAccess struct {
	CanViewFull        bool     `json:"can_view_full"`
	AvailableContent   []string `json:"available_content"`
	LockedContentCount *int     `json:"locked_content_count,omitempty"`
}

type Decision struct {
	IsOwner     bool
	IsPurchased bool
	CanViewFull bool
	Content     ContentAccess
}

// Decide computes the visibility of a note's content. purchased is the stored
// purchase state for (requester, note) and is ignored for anonymous requesters.
func Decide(note *models.Note, r Requester, purchased bool) Decision {
	d := Decision{
		IsOwner:     !r.IsAnonymous() && note.CreatorID == r.UserID,
		IsPurchased: !r.IsAnonymous() && purchased,
	}
	d.CanViewFull = d.IsOwner || d.IsPurchased || note.IsFree()

	urls := note.ContentURLs
	if d.CanViewFull {
		d.Content = ContentAccess{
			CanViewFull:      true,
			AvailableContent: append([]string{}, urls...),
		}
		return d
	}

	// 付费笔记只露一条预览，和免费话题数量无关
	preview := []string{}
	if len(note.FreeTopics) > 0 && len(urls) > 0 {
		preview = append(preview, urls[0])
	}
	locked := max(0, len(urls)-1)
	d.Content = ContentAccess{
		CanViewFull:        false,
		AvailableContent:   preview,
		LockedContentCount: &locked,
	}
	return d
}

// CheckPurchase applies the purchase guards that depend only on the note and the
// buyer, in order: the note is published, the buyer is not its creator, the note
// is not free. A nil note counts as missing.
func CheckPurchase(note *models.Note, buyerID string) error {
	if note == nil || !note.IsPublished {
		return ErrNotFound
	}
	if note.CreatorID == buyerID {
		return ErrOwnNote
	}
	if note.IsFree() {
		return ErrFreeNote
	}
	return nil
}
