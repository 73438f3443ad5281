package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"noteflow/upload"
)

func (s *Server) uploadFile(c *gin.Context) {
	if s.uploads == nil {
		fail(c, http.StatusServiceUnavailable, "File uploads are not configured")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "No file uploaded")
		return
	}
	contentType := fh.Header.Get("Content-Type")
	if err := upload.Check(contentType, fh.Size); err != nil {
		switch {
		case errors.Is(err, upload.ErrTooLarge):
			fail(c, http.StatusBadRequest, "File size exceeds the 10MB limit")
		default:
			fail(c, http.StatusBadRequest, "Only PDF and image files are allowed")
		}
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.serverError(c, "Failed to upload file", err)
		return
	}
	defer f.Close()

	url, err := s.uploads.Put(c.Request.Context(), fh.Filename, contentType, fh.Size, f)
	if err != nil {
		s.serverError(c, "Failed to upload file", err)
		return
	}
	respond(c, http.StatusCreated, "File uploaded successfully", gin.H{
		"url":          url,
		"name":         fh.Filename,
		"size":         fh.Size,
		"content_type": contentType,
	})
}
