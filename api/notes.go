package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"noteflow/access"
	"noteflow/cache"
	"noteflow/middleware"
	"noteflow/models"
	"noteflow/store"
)

type noteInput struct {
	Title        string       `json:"title" binding:"required,min=3,max=255"`
	Subject      string       `json:"subject" binding:"required,max=100"`
	Topics       []string     `json:"topics" binding:"required,min=1"`
	Description  string       `json:"description" binding:"max=2000"`
	ContentType  string       `json:"content_type" binding:"required,oneof=pdf image mixed"`
	ContentURLs  []string     `json:"content_urls" binding:"required,min=1,dive,required"`
	ThumbnailURL string       `json:"thumbnail_url" binding:"omitempty,url"`
	FreeTopics   []string     `json:"free_topics"`
	PaidTopics   []string     `json:"paid_topics"`
	Price        models.Money `json:"price" binding:"min=0,max=999999"`
	IsPublished  *bool        `json:"is_published"`
}

func (in *noteInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Description = strings.TrimSpace(in.Description)
	if in.FreeTopics == nil {
		in.FreeTopics = []string{}
	}
	if in.PaidTopics == nil {
		in.PaidTopics = []string{}
	}
}

type noteUpdateInput struct {
	Title        *string       `json:"title" binding:"omitempty,min=3,max=255"`
	Subject      *string       `json:"subject" binding:"omitempty,max=100"`
	Topics       *[]string     `json:"topics" binding:"omitempty,min=1"`
	Description  *string       `json:"description" binding:"omitempty,max=2000"`
	ContentType  *string       `json:"content_type" binding:"omitempty,oneof=pdf image mixed"`
	ContentURLs  *[]string     `json:"content_urls" binding:"omitempty,min=1"`
	ThumbnailURL *string       `json:"thumbnail_url" binding:"omitempty,url"`
	FreeTopics   []string      `json:"free_topics"`
	PaidTopics   []string      `json:"paid_topics"`
	Price        *models.Money `json:"price" binding:"omitempty,min=0,max=999999"`
	IsPublished  *bool         `json:"is_published"`
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

func (in *noteUpdateInput) normalize() {
	in.Title = trimPtr(in.Title)
	in.Subject = trimPtr(in.Subject)
	in.Description = trimPtr(in.Description)
}

func (in *noteUpdateInput) patch() store.NotePatch {
	p := store.NotePatch{
		Title:        in.Title,
		Subject:      in.Subject,
		Description:  in.Description,
		ContentType:  in.ContentType,
		ThumbnailURL: in.ThumbnailURL,
		FreeTopics:   in.FreeTopics,
		PaidTopics:   in.PaidTopics,
		Price:        in.Price,
		IsPublished:  in.IsPublished,
	}
	if in.Topics != nil {
		p.Topics = *in.Topics
	}
	if in.ContentURLs != nil {
		p.ContentURLs = *in.ContentURLs
	}
	return p
}

// noteDetail is a single note as seen by one requester. Content URLs only
// appear through content_access.
type noteDetail struct {
	ID                    string               `json:"id"`
	CreatorID             string               `json:"creator_id"`
	CreatorName           string               `json:"creator_name"`
	CreatorEmail          string               `json:"creator_email"`
	CreatorProfilePicture string               `json:"creator_profile_picture,omitempty"`
	Title                 string               `json:"title"`
	Subject               string               `json:"subject"`
	Topics                []string             `json:"topics"`
	Description           string               `json:"description"`
	ContentType           string               `json:"content_type"`
	ThumbnailURL          string               `json:"thumbnail_url,omitempty"`
	FreeTopics            []string             `json:"free_topics"`
	PaidTopics            []string             `json:"paid_topics"`
	Price                 models.Money         `json:"price"`
	LikeCount             int64                `json:"like_count"`
	DateUploaded          time.Time            `json:"date_uploaded"`
	DateModified          time.Time            `json:"date_modified"`
	IsAuthenticated       bool                 `json:"is_authenticated"`
	IsOwner               bool                 `json:"is_owner"`
	IsPurchased           bool                 `json:"is_purchased"`
	CanViewFull           bool                 `json:"can_view_full"`
	ContentAccess         access.ContentAccess `json:"content_access"`
}

// noteSummary is a listing row. The shallower ContentURLs field hides the
// embedded one so listings never leak paid content.
type noteSummary struct {
	store.NoteView
	ContentURLs  *struct{} `json:"content_urls,omitempty"`
	ContentCount int       `json:"content_count"`
}

func summaries(views []store.NoteView) []noteSummary {
	out := make([]noteSummary, 0, len(views))
	for _, v := range views {
		out = append(out, noteSummary{NoteView: v, ContentCount: len(v.Note.ContentURLs)})
	}
	return out
}

func requester(c *gin.Context) access.Requester {
	if u, ok := middleware.CurrentUser(c); ok {
		return access.Requester{UserID: u.ID}
	}
	return access.Anonymous()
}

func (s *Server) createNote(c *gin.Context) {
	var in noteInput
	if !bind(c, &in) {
		return
	}

	published := true
	if in.IsPublished != nil {
		published = *in.IsPublished
	}
	note := &models.Note{
		CreatorID:    s.user(c).ID,
		Title:        in.Title,
		Subject:      in.Subject,
		Topics:       in.Topics,
		Description:  in.Description,
		ContentType:  in.ContentType,
		ContentURLs:  in.ContentURLs,
		ThumbnailURL: in.ThumbnailURL,
		FreeTopics:   in.FreeTopics,
		PaidTopics:   in.PaidTopics,
		Price:        in.Price,
		IsPublished:  published,
	}
	if err := s.store.Notes.Create(c.Request.Context(), note); err != nil {
		s.serverError(c, "Server error while creating note", err)
		return
	}
	respond(c, http.StatusCreated, "Note created successfully", gin.H{"note": note})
}

func (s *Server) listNotes(c *gin.Context) {
	page, ok := pageQuery(c, store.DefaultLimit)
	if !ok {
		return
	}
	f := store.NoteFilter{
		Subject:     strings.TrimSpace(c.Query("subject")),
		CreatorID:   strings.TrimSpace(c.Query("creator_id")),
		Search:      strings.TrimSpace(c.Query("search")),
		PriceFilter: c.Query("price_filter"),
		SortBy:      c.DefaultQuery("sort_by", "date_uploaded"),
		SortOrder:   c.DefaultQuery("sort_order", "desc"),
		Page:        page,
	}

	var errs []fieldError
	if f.PriceFilter != "" && f.PriceFilter != store.PriceFree && f.PriceFilter != store.PricePaid {
		errs = append(errs, fieldError{Field: "price_filter", Message: "price_filter must be one of: free, paid"})
	}
	if !store.ValidSort(f.SortBy) {
		errs = append(errs, fieldError{Field: "sort_by", Message: "Invalid sort_by field"})
	}
	if f.SortOrder != "asc" && f.SortOrder != "desc" {
		errs = append(errs, fieldError{Field: "sort_order", Message: "sort_order must be one of: asc, desc"})
	}
	if len(errs) > 0 {
		invalid(c, errs...)
		return
	}

	notes, total, err := s.store.Notes.List(c.Request.Context(), f)
	if err != nil {
		s.serverError(c, "Server error while fetching notes", err)
		return
	}
	respond(c, http.StatusOK, "Notes retrieved successfully", gin.H{
		"notes":            summaries(notes),
		"pagination":       paginate(total, page),
		"is_authenticated": !requester(c).IsAnonymous(),
	})
}

func (s *Server) getNote(c *gin.Context) {
	r := requester(c)
	v, err := s.store.Notes.Get(c.Request.Context(), c.Param("id"), r.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "Note not found")
			return
		}
		s.serverError(c, "Server error while fetching note", err)
		return
	}

	d := access.Decide(&v.Note, r, v.Purchased())
	respond(c, http.StatusOK, "Note retrieved successfully", gin.H{"note": noteDetail{
		ID:                    v.ID,
		CreatorID:             v.CreatorID,
		CreatorName:           v.CreatorName,
		CreatorEmail:          v.CreatorEmail,
		CreatorProfilePicture: v.CreatorPicture,
		Title:                 v.Title,
		Subject:               v.Subject,
		Topics:                v.Topics,
		Description:           v.Description,
		ContentType:           v.ContentType,
		ThumbnailURL:          v.ThumbnailURL,
		FreeTopics:            v.FreeTopics,
		PaidTopics:            v.PaidTopics,
		Price:                 v.Price,
		LikeCount:             v.LikeCount,
		DateUploaded:          v.DateUploaded,
		DateModified:          v.DateModified,
		IsAuthenticated:       !r.IsAnonymous(),
		IsOwner:               d.IsOwner,
		IsPurchased:           d.IsPurchased,
		CanViewFull:           d.CanViewFull,
		ContentAccess:         d.Content,
	}})
}

func (s *Server) updateNote(c *gin.Context) {
	id, ok := idParam(c, "id", "note ID")
	if !ok {
		return
	}
	var in noteUpdateInput
	if !bind(c, &in) {
		return
	}

	note, err := s.store.Notes.Update(c.Request.Context(), id, s.user(c).ID, in.patch())
	switch {
	case errors.Is(err, store.ErrNothingToUpdate):
		fail(c, http.StatusBadRequest, "No valid fields provided for update")
		return
	case errors.Is(err, store.ErrNotFound):
		fail(c, http.StatusNotFound, "Note not found or you are not authorized to update this note")
		return
	case err != nil:
		s.serverError(c, "Server error while updating note", err)
		return
	}
	respond(c, http.StatusOK, "Note updated successfully", gin.H{"note": note})
}

func (s *Server) deleteNote(c *gin.Context) {
	id, ok := idParam(c, "id", "note ID")
	if !ok {
		return
	}

	err := s.store.Notes.Delete(c.Request.Context(), id, s.user(c).ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fail(c, http.StatusNotFound, "Note not found or you are not authorized to delete this note")
		return
	case err != nil:
		s.serverError(c, "Server error while deleting note", err)
		return
	}
	s.counts.Invalidate(c.Request.Context(), cache.KindLikes, id)
	s.counts.Invalidate(c.Request.Context(), cache.KindBookmarks, id)
	respond(c, http.StatusOK, "Note deleted successfully", nil)
}
