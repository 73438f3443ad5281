// Package api is the HTTP surface of noteflow. Every response uses the
// {success, message, data, errors} envelope.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"noteflow/auth"
	"noteflow/cache"
	"noteflow/middleware"
	"noteflow/models"
	"noteflow/store"
)

// Uploader stores a file and returns its public URL.
type Uploader interface {
	Put(ctx context.Context, filename, contentType string, size int64, r io.Reader) (string, error)
}

// LikeNotifier is told about every note whose likes changed.
type LikeNotifier interface {
	Notify(noteID string) bool
}

type Deps struct {
	Store      *store.Store
	Tokens     *auth.Issuer
	Counts     *cache.Counts
	LikeSync   LikeNotifier
	Uploads    Uploader
	Log        *slog.Logger
	Dev        bool
	CORSOrigin string
}

type Server struct {
	store    *store.Store
	tokens   *auth.Issuer
	counts   *cache.Counts
	likeSync LikeNotifier
	uploads  Uploader
	log      *slog.Logger
	dev      bool
	router   *gin.Engine
}

func NewServer(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	router := gin.New()
	router.Use(
		middleware.Logger(log),
		middleware.Recovery(log, d.Dev),
		middleware.CORS(d.CORSOrigin),
	)

	s := &Server{
		store:    d.Store,
		tokens:   d.Tokens,
		counts:   d.Counts,
		likeSync: d.LikeSync,
		uploads:  d.Uploads,
		log:      log,
		dev:      d.Dev,
		router:   router,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	authed := middleware.Auth(s.tokens, s.store.Users)
	optional := middleware.OptionalAuth(s.tokens, s.store.Users)
	creator := middleware.RequireRole(models.RoleCreator)

	api := s.router.Group("/api")

	a := api.Group("/auth")
	{
		a.POST("/signup", s.signup)
		a.POST("/login", s.login)
		a.POST("/logout", authed, s.logout)
		a.GET("/current-user", authed, s.currentUser)
		a.GET("/verify-token", authed, s.verifyToken)
		a.PUT("/profile", authed, s.updateProfile)
		a.DELETE("/account", authed, s.deleteAccount)
	}

	notes := api.Group("/notes")
	{
		notes.POST("", authed, creator, s.createNote)
		notes.GET("", optional, s.listNotes)
		notes.GET("/:id", optional, s.getNote)
		notes.PUT("/:id", authed, creator, s.updateNote)
		notes.DELETE("/:id", authed, creator, s.deleteNote)
	}

	payments := api.Group("/payments", authed)
	{
		payments.POST("/purchase", s.purchase)
		payments.GET("/my-purchases", s.myPurchases)
		payments.GET("/creator-earnings", s.creatorEarnings)
		payments.GET("/:id", s.getPayment)
	}

	comments := api.Group("/comments")
	{
		comments.POST("", authed, s.createComment)
		comments.GET("", s.listComments)
		comments.GET("/rating/:note_id", s.noteRating)
		comments.GET("/:id", s.getComment)
		comments.PUT("/:id", authed, s.updateComment)
		comments.DELETE("/:id", authed, s.deleteComment)
	}

	likes := api.Group("/likes")
	{
		likes.POST("", authed, s.toggleLike)
		likes.GET("", s.likeCount)
		likes.GET("/check/:note_id", authed, s.checkLike)
		likes.GET("/note/:note_id", s.noteLikes)
		likes.GET("/user/liked-notes", authed, s.likedNotes)
		likes.DELETE("/:note_id", authed, s.removeLike)
	}

	bookmarks := api.Group("/bookmarks")
	{
		bookmarks.POST("", authed, s.toggleBookmark)
		bookmarks.GET("", authed, s.bookmarkedNotes)
		bookmarks.GET("/stats", authed, s.bookmarkStats)
		bookmarks.GET("/check/:note_id", authed, s.checkBookmark)
		bookmarks.GET("/note/:note_id", s.bookmarkCount)
		bookmarks.GET("/note/:note_id/users", s.noteBookmarks)
		bookmarks.DELETE("/:note_id", authed, s.removeBookmark)
	}

	api.POST("/uploads", authed, creator, s.uploadFile)

	s.router.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "Route not found")
	})
}

// user is only valid behind the auth middleware.
func (s *Server) user(c *gin.Context) *models.User {
	u, _ := middleware.CurrentUser(c)
	return u
}
