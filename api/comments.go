package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"noteflow/models"
	"noteflow/store"
)

type commentInput struct {
	NoteID string `json:"note_id" binding:"required,uuid"`
	Text   string `json:"text" binding:"required,max=5000"`
	Rating *int   `json:"rating"`
}

func (in *commentInput) normalize() {
	in.Text = strings.TrimSpace(in.Text)
}

type commentUpdateInput struct {
	Text   string `json:"text" binding:"required,max=5000"`
	Rating *int   `json:"rating"`
}

func (in *commentUpdateInput) normalize() {
	in.Text = strings.TrimSpace(in.Text)
}

// checkRating rejects a present rating outside 1..5.
func checkRating(c *gin.Context, rating *int) bool {
	if rating != nil && !models.ValidRating(*rating) {
		invalid(c, fieldError{Field: "rating", Message: "Rating must be between 1 and 5"})
		return false
	}
	return true
}

func (s *Server) createComment(c *gin.Context) {
	var in commentInput
	if !bind(c, &in) || !checkRating(c, in.Rating) {
		return
	}
	ctx := c.Request.Context()

	comment := &models.Comment{
		UserID: s.user(c).ID,
		NoteID: in.NoteID,
		Text:   in.Text,
		Rating: in.Rating,
	}
	if err := s.store.Comments.Create(ctx, comment); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "Note not found")
			return
		}
		s.serverError(c, "Failed to add comment", err)
		return
	}

	view, err := s.store.Comments.Get(ctx, comment.ID)
	if err != nil {
		s.serverError(c, "Failed to add comment", err)
		return
	}
	respond(c, http.StatusCreated, "Comment added successfully", view)
}

func (s *Server) listComments(c *gin.Context) {
	noteID := c.Query("note_id")
	if noteID == "" {
		invalid(c, fieldError{Field: "note_id", Message: "note_id is required"})
		return
	}
	page, ok := pageQuery(c, store.DefaultCommentLimit)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	comments, total, err := s.store.Comments.ListByNote(ctx, noteID, page)
	if err != nil {
		s.serverError(c, "Failed to fetch comments", err)
		return
	}
	rating, err := s.store.Comments.AverageRating(ctx, noteID)
	if err != nil {
		s.serverError(c, "Failed to fetch comments", err)
		return
	}
	respond(c, http.StatusOK, "Comments retrieved successfully", gin.H{
		"comments":   comments,
		"pagination": paginate(total, page),
		"rating":     rating,
	})
}

func (s *Server) getComment(c *gin.Context) {
	view, err := s.store.Comments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "Comment not found")
			return
		}
		s.serverError(c, "Failed to fetch comment", err)
		return
	}
	respond(c, http.StatusOK, "Comment retrieved successfully", view)
}

func (s *Server) updateComment(c *gin.Context) {
	var in commentUpdateInput
	if !bind(c, &in) || !checkRating(c, in.Rating) {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := s.store.Comments.Update(ctx, id, s.user(c).ID, in.Text, in.Rating); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "Comment not found or you are not authorized to update it")
			return
		}
		s.serverError(c, "Failed to update comment", err)
		return
	}

	view, err := s.store.Comments.Get(ctx, id)
	if err != nil {
		s.serverError(c, "Failed to update comment", err)
		return
	}
	respond(c, http.StatusOK, "Comment updated successfully", view)
}

func (s *Server) deleteComment(c *gin.Context) {
	err := s.store.Comments.SoftDelete(c.Request.Context(), c.Param("id"), s.user(c).ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "Comment not found or you are not authorized to delete it")
			return
		}
		s.serverError(c, "Failed to delete comment", err)
		return
	}
	respond(c, http.StatusOK, "Comment deleted successfully", nil)
}

func (s *Server) noteRating(c *gin.Context) {
	rating, err := s.store.Comments.AverageRating(c.Request.Context(), c.Param("note_id"))
	if err != nil {
		s.serverError(c, "Failed to fetch rating", err)
		return
	}
	respond(c, http.StatusOK, "Rating data retrieved successfully", rating)
}
