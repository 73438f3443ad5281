package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"noteflow/cache"
	"noteflow/store"
)

type noteRef struct {
	NoteID string `json:"note_id" binding:"required,uuid"`
}

func (s *Server) likeCountOf(ctx context.Context, noteID string) (int64, error) {
	return s.counts.Count(ctx, cache.KindLikes, noteID, func(ctx context.Context) (int64, error) {
		return s.store.Likes.Count(ctx, noteID)
	})
}

func (s *Server) bookmarkCountOf(ctx context.Context, noteID string) (int64, error) {
	return s.counts.Count(ctx, cache.KindBookmarks, noteID, func(ctx context.Context) (int64, error) {
		return s.store.Bookmarks.Count(ctx, noteID)
	})
}

func (s *Server) likesChanged(ctx context.Context, noteID string) {
	s.counts.Invalidate(ctx, cache.KindLikes, noteID)
	if s.likeSync != nil && !s.likeSync.Notify(noteID) {
		s.log.Warn("like sync queue full", "note_id", noteID)
	}
}

func (s *Server) toggleLike(c *gin.Context) {
	var in noteRef
	if !bind(c, &in) {
		return
	}
	ctx := c.Request.Context()

	liked, err := s.store.Likes.Toggle(ctx, s.user(c).ID, in.NoteID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "Note not found")
			return
		}
		s.serverError(c, "Failed to toggle like", err)
		return
	}
	s.likesChanged(ctx, in.NoteID)

	count, err := s.likeCountOf(ctx, in.NoteID)
	if err != nil {
		s.serverError(c, "Failed to toggle like", err)
		return
	}
	action, message := "unliked", "Note unliked successfully"
	if liked {
		action, message = "liked", "Note liked successfully"
	}
	respond(c, http.StatusOK, message, gin.H{"action": action, "likeCount": count, "isLiked": liked})
}

func (s *Server) likeCount(c *gin.Context) {
	noteID := c.Query("note_id")
	if noteID == "" {
		invalid(c, fieldError{Field: "note_id", Message: "note_id is required"})
		return
	}
	count, err := s.likeCountOf(c.Request.Context(), noteID)
	if err != nil {
		s.serverError(c, "Failed to fetch like count", err)
		return
	}
	respond(c, http.StatusOK, "Like count retrieved successfully", gin.H{"note_id": noteID, "likeCount": count})
}

func (s *Server) checkLike(c *gin.Context) {
	noteID := c.Param("note_id")
	liked, err := s.store.Likes.Has(c.Request.Context(), s.user(c).ID, noteID)
	if err != nil {
		s.serverError(c, "Failed to check like status", err)
		return
	}
	respond(c, http.StatusOK, "Like status retrieved successfully", gin.H{"note_id": noteID, "isLiked": liked})
}

func (s *Server) noteLikes(c *gin.Context) {
	page, ok := pageQuery(c, store.DefaultUserListLimit)
	if !ok {
		return
	}
	likes, total, err := s.store.Likes.ListUsers(c.Request.Context(), c.Param("note_id"), page)
	if err != nil {
		s.serverError(c, "Failed to fetch likes", err)
		return
	}
	respond(c, http.StatusOK, "Likes retrieved successfully", gin.H{
		"likes":      likes,
		"pagination": paginate(total, page),
	})
}

func (s *Server) likedNotes(c *gin.Context) {
	page, ok := pageQuery(c, store.DefaultLimit)
	if !ok {
		return
	}
	notes, total, err := s.store.Likes.ListNotes(c.Request.Context(), s.user(c).ID, page)
	if err != nil {
		s.serverError(c, "Failed to fetch liked notes", err)
		return
	}
	respond(c, http.StatusOK, "Liked notes retrieved successfully", gin.H{
		"notes":      markedSummaries(notes),
		"pagination": paginate(total, page),
	})
}

func (s *Server) removeLike(c *gin.Context) {
	noteID := c.Param("note_id")
	ctx := c.Request.Context()

	if err := s.store.Likes.Remove(ctx, s.user(c).ID, noteID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "Like not found")
			return
		}
		s.serverError(c, "Failed to remove like", err)
		return
	}
	s.likesChanged(ctx, noteID)

	count, err := s.likeCountOf(ctx, noteID)
	if err != nil {
		s.serverError(c, "Failed to remove like", err)
		return
	}
	respond(c, http.StatusOK, "Like removed successfully", gin.H{"note_id": noteID, "likeCount": count, "isLiked": false})
}

func (s *Server) toggleBookmark(c *gin.Context) {
	var in noteRef
	if !bind(c, &in) {
		return
	}
	ctx := c.Request.Context()

	on, err := s.store.Bookmarks.Toggle(ctx, s.user(c).ID, in.NoteID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "Note not found")
			return
		}
		s.serverError(c, "Failed to toggle bookmark", err)
		return
	}
	s.counts.Invalidate(ctx, cache.KindBookmarks, in.NoteID)

	action, message := "removed", "Bookmark removed successfully"
	if on {
		action, message = "added", "Note bookmarked successfully"
	}
	respond(c, http.StatusOK, message, gin.H{"action": action, "isBookmarked": on})
}

func (s *Server) bookmarkedNotes(c *gin.Context) {
	page, ok := pageQuery(c, store.DefaultLimit)
	if !ok {
		return
	}
	notes, total, err := s.store.Bookmarks.ListNotes(c.Request.Context(), s.user(c).ID, page)
	if err != nil {
		s.serverError(c, "Failed to fetch bookmarked notes", err)
		return
	}
	respond(c, http.StatusOK, "Bookmarked notes retrieved successfully", gin.H{
		"notes":      markedSummaries(notes),
		"pagination": paginate(total, page),
	})
}

func (s *Server) checkBookmark(c *gin.Context) {
	noteID := c.Param("note_id")
	on, err := s.store.Bookmarks.Has(c.Request.Context(), s.user(c).ID, noteID)
	if err != nil {
		s.serverError(c, "Failed to check bookmark status", err)
		return
	}
	respond(c, http.StatusOK, "Bookmark status retrieved successfully", gin.H{"note_id": noteID, "isBookmarked": on})
}

func (s *Server) bookmarkCount(c *gin.Context) {
	noteID := c.Param("note_id")
	count, err := s.bookmarkCountOf(c.Request.Context(), noteID)
	if err != nil {
		s.serverError(c, "Failed to fetch bookmark count", err)
		return
	}
	respond(c, http.StatusOK, "Bookmark count retrieved successfully", gin.H{"note_id": noteID, "bookmarkCount": count})
}

func (s *Server) noteBookmarks(c *gin.Context) {
	page, ok := pageQuery(c, store.DefaultUserListLimit)
	if !ok {
		return
	}
	bookmarks, total, err := s.store.Bookmarks.ListUsers(c.Request.Context(), c.Param("note_id"), page)
	if err != nil {
		s.serverError(c, "Failed to fetch bookmarks", err)
		return
	}
	respond(c, http.StatusOK, "Bookmarks retrieved successfully", gin.H{
		"bookmarks":  bookmarks,
		"pagination": paginate(total, page),
	})
}

func (s *Server) bookmarkStats(c *gin.Context) {
	stats, err := s.store.Bookmarks.Stats(c.Request.Context(), s.user(c).ID)
	if err != nil {
		s.serverError(c, "Failed to fetch bookmark statistics", err)
		return
	}
	respond(c, http.StatusOK, "Bookmark statistics retrieved successfully", stats)
}

func (s *Server) removeBookmark(c *gin.Context) {
	noteID := c.Param("note_id")
	ctx := c.Request.Context()

	if err := s.store.Bookmarks.Remove(ctx, s.user(c).ID, noteID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusNotFound, "Bookmark not found")
			return
		}
		s.serverError(c, "Failed to remove bookmark", err)
		return
	}
	s.counts.Invalidate(ctx, cache.KindBookmarks, noteID)
	respond(c, http.StatusOK, "Bookmark removed successfully", gin.H{"note_id": noteID, "isBookmarked": false})
}

type markedSummary struct {
	store.MarkedNote
	ContentURLs  *struct{} `json:"content_urls,omitempty"`
	ContentCount int       `json:"content_count"`
}

func markedSummaries(notes []store.MarkedNote) []markedSummary {
	out := make([]markedSummary, 0, len(notes))
	for _, n := range notes {
		out = append(out, markedSummary{MarkedNote: n, ContentCount: len(n.Note.ContentURLs)})
	}
	return out
}
