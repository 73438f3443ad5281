package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"noteflow/auth"
	"noteflow/cache"
	"noteflow/models"
	"noteflow/store"
)

type signupInput struct {
	Name            string `json:"name" binding:"required,min=2,max=50"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=Password"`
	UserType        string `json:"userType" binding:"required,oneof=creator viewer"`
	ProfilePicture  string `json:"profilePicture"`
}

func (in *signupInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
}

type loginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (in *loginInput) normalize() {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
}

type profileInput struct {
	Name           *string `json:"name" binding:"omitempty,min=2,max=50"`
	ProfilePicture *string `json:"profilePicture"`
}

func (in *profileInput) normalize() {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
}

func (s *Server) signup(c *gin.Context) {
	var in signupInput
	if !bind(c, &in) {
		return
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		s.serverError(c, "Server error during registration", err)
		return
	}
	user := &models.User{
		Name:           in.Name,
		Email:          in.Email,
		PasswordHash:   hash,
		Role:           in.UserType,
		ProfilePicture: in.ProfilePicture,
	}
	if err := s.store.Users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			fail(c, http.StatusBadRequest, "User with this email already exists")
			return
		}
		s.serverError(c, "Server error during registration", err)
		return
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.serverError(c, "Server error during registration", err)
		return
	}
	respond(c, http.StatusCreated, "User registered successfully", gin.H{"user": user, "token": token})
}

func (s *Server) login(c *gin.Context) {
	var in loginInput
	if !bind(c, &in) {
		return
	}

	user, err := s.store.Users.FindByEmail(c.Request.Context(), in.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		s.serverError(c, "Server error during login", err)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, in.Password); err != nil {
		fail(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		s.serverError(c, "Server error during login", err)
		return
	}
	respond(c, http.StatusOK, "Login successful", gin.H{"user": user, "token": token})
}

// logout is stateless; the client drops its token.
func (s *Server) logout(c *gin.Context) {
	respond(c, http.StatusOK, "Logout successful. Please remove the token from client storage.", nil)
}

func (s *Server) currentUser(c *gin.Context) {
	respond(c, http.StatusOK, "User retrieved successfully", gin.H{"user": s.user(c)})
}

func (s *Server) verifyToken(c *gin.Context) {
	respond(c, http.StatusOK, "Token is valid", gin.H{"user": s.user(c)})
}

func (s *Server) updateProfile(c *gin.Context) {
	var in profileInput
	if !bind(c, &in) {
		return
	}

	user, err := s.store.Users.Update(c.Request.Context(), s.user(c).ID, store.UserPatch{
		Name:           in.Name,
		ProfilePicture: in.ProfilePicture,
	})
	switch {
	case errors.Is(err, store.ErrNothingToUpdate):
		fail(c, http.StatusBadRequest, "No valid fields provided for update")
		return
	case errors.Is(err, store.ErrNotFound):
		fail(c, http.StatusNotFound, "User not found")
		return
	case err != nil:
		s.serverError(c, "Server error while updating profile", err)
		return
	}
	respond(c, http.StatusOK, "Profile updated successfully", gin.H{"user": user})
}

func (s *Server) deleteAccount(c *gin.Context) {
	ctx := c.Request.Context()
	unmarked, err := s.store.Users.Delete(ctx, s.user(c).ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fail(c, http.StatusNotFound, "User not found")
		return
	case err != nil:
		s.serverError(c, "Server error while deleting account", err)
		return
	}
	for _, noteID := range unmarked.Liked {
		s.likesChanged(ctx, noteID)
	}
	for _, noteID := range unmarked.Bookmarked {
		s.counts.Invalidate(ctx, cache.KindBookmarks, noteID)
	}
	respond(c, http.StatusOK, "Account deleted successfully", nil)
}
