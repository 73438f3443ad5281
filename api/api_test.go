package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"noteflow/auth"
	"noteflow/cache"
	"noteflow/models"
	"noteflow/store"
)

type fakeUploader struct {
	name string
	err  error
}

func (f *fakeUploader) Put(_ context.Context, filename, _ string, _ int64, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	f.name = filename
	return "http://files.test/noteflow/" + filename, nil
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (n *recordingNotifier) Notify(noteID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, noteID)
	return true
}

type testEnv struct {
	t       *testing.T
	handler http.Handler
	store   *store.Store
	likes   *recordingNotifier
	uploads *fakeUploader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth.PasswordCost = bcrypt.MinCost

	st, err := store.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared", 1)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	env := &testEnv{t: t, store: st, likes: &recordingNotifier{}, uploads: &fakeUploader{}}
	srv := NewServer(Deps{
		Store:      st,
		Tokens:     auth.NewIssuer("test-secret", time.Hour),
		Counts:     cache.New(rdb, time.Minute, nil),
		LikeSync:   env.likes,
		Uploads:    env.uploads,
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Dev:        true,
		CORSOrigin: "http://localhost:5173",
	})
	env.handler = srv.Handler()
	return env
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []fieldError    `json:"errors"`
}

func (e *testEnv) do(method, path, token string, body any) (int, envelope) {
	e.t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(e.t, err)
			r = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	var env envelope
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

type session struct {
	ID    string
	Token string
}

func (e *testEnv) signup(name, role string) session {
	e.t.Helper()
	code, env := e.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"name":            name,
		"email":           name + "@example.com",
		"password":        "secret123",
		"confirmPassword": "secret123",
		"userType":        role,
	})
	require.Equal(e.t, http.StatusCreated, code, env.Message)
	data := decode[struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Token string `json:"token"`
	}](e.t, env.Data)
	return session{ID: data.User.ID, Token: data.Token}
}

func (e *testEnv) createNote(creator session, body map[string]any) string {
	e.t.Helper()
	note := map[string]any{
		"title":        "Linear Algebra",
		"subject":      "Mathematics",
		"topics":       []string{"A", "B", "C"},
		"content_type": "pdf",
		"content_urls": []string{"u1", "u2", "u3"},
		"free_topics":  []string{"A"},
		"paid_topics":  []string{"B", "C"},
		"price":        9.99,
	}
	for k, v := range body {
		note[k] = v
	}
	code, env := e.do(http.MethodPost, "/api/notes", creator.Token, note)
	require.Equal(e.t, http.StatusCreated, code, env.Message)
	data := decode[struct {
		Note struct {
			ID string `json:"id"`
		} `json:"note"`
	}](e.t, env.Data)
	return data.Note.ID
}

func (e *testEnv) likeCount(noteID string) int64 {
	e.t.Helper()
	code, env := e.do(http.MethodGet, "/api/likes?note_id="+noteID, "", nil)
	require.Equal(e.t, http.StatusOK, code, env.Message)
	return decode[struct {
		LikeCount int64 `json:"likeCount"`
	}](e.t, env.Data).LikeCount
}

func (e *testEnv) bookmarkCount(noteID string) int64 {
	e.t.Helper()
	code, env := e.do(http.MethodGet, "/api/bookmarks/note/"+noteID, "", nil)
	require.Equal(e.t, http.StatusOK, code, env.Message)
	return decode[struct {
		BookmarkCount int64 `json:"bookmarkCount"`
	}](e.t, env.Data).BookmarkCount
}

type noteResp struct {
	Note struct {
		ID            string `json:"id"`
		IsOwner       bool   `json:"is_owner"`
		IsPurchased   bool   `json:"is_purchased"`
		CanViewFull   bool   `json:"can_view_full"`
		ContentAccess struct {
			CanViewFull        bool     `json:"can_view_full"`
			AvailableContent   []string `json:"available_content"`
			LockedContentCount *int     `json:"locked_content_count"`
		} `json:"content_access"`
	} `json:"note"`
}

func TestSignupAndLogin(t *testing.T) {
	e := newTestEnv(t)
	e.signup("ada", "viewer")

	code, env := e.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"name": "ada", "email": "ADA@example.com", "password": "secret123",
		"confirmPassword": "secret123", "userType": "viewer",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "User with this email already exists", env.Message)

	code, env = e.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"name": "bob", "email": "bob@example.com", "password": "secret123",
		"confirmPassword": "other", "userType": "viewer",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "confirmPassword", env.Errors[0].Field)
	assert.Equal(t, "Passwords do not match", env.Errors[0].Message)

	code, env = e.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"name": "  bob  ", "email": "  Bob@Example.com ", "password": "secret123",
		"confirmPassword": "secret123", "userType": "viewer",
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	bob := decode[struct {
		User map[string]any `json:"user"`
	}](t, env.Data)
	assert.Equal(t, "bob", bob.User["name"])
	assert.Equal(t, "bob@example.com", bob.User["email"])

	code, env = e.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Invalid email or password", env.Message)

	code, env = e.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": " Ada@Example.com ", "password": "secret123"})
	require.Equal(t, http.StatusOK, code, env.Message)
	data := decode[struct {
		User  map[string]any `json:"user"`
		Token string         `json:"token"`
	}](t, env.Data)
	assert.NotEmpty(t, data.Token)
	assert.Equal(t, "viewer", data.User["userType"])
	assert.NotContains(t, data.User, "password_hash")

	code, env = e.do(http.MethodGet, "/api/auth/current-user", data.Token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	code, env = e.do(http.MethodGet, "/api/auth/current-user", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "No token provided. Authorization denied.", env.Message)
}

func TestProfileAndAccount(t *testing.T) {
	e := newTestEnv(t)
	creator := e.signup("carol", "creator")
	ada := e.signup("ada", "viewer")
	noteID := e.createNote(creator, nil)

	code, env := e.do(http.MethodPut, "/api/auth/profile", ada.Token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No valid fields provided for update", env.Message)

	code, env = e.do(http.MethodPut, "/api/auth/profile", ada.Token, map[string]any{"name": "  Ada L.  "})
	require.Equal(t, http.StatusOK, code, env.Message)
	data := decode[struct {
		User map[string]any `json:"user"`
	}](t, env.Data)
	assert.Equal(t, "Ada L.", data.User["name"])

	code, _ = e.do(http.MethodPost, "/api/likes", ada.Token, map[string]any{"note_id": noteID})
	require.Equal(t, http.StatusOK, code)
	code, _ = e.do(http.MethodPost, "/api/bookmarks", ada.Token, map[string]any{"note_id": noteID})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, e.likeCount(noteID))
	assert.EqualValues(t, 1, e.bookmarkCount(noteID))
	e.likes.ids = nil

	code, _ = e.do(http.MethodDelete, "/api/auth/account", ada.Token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{noteID}, e.likes.ids)
	assert.Zero(t, e.likeCount(noteID))
	assert.Zero(t, e.bookmarkCount(noteID))

	code, env = e.do(http.MethodGet, "/api/auth/verify-token", ada.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "User not found. Authorization denied.", env.Message)
}

func TestNotePreviewAndPurchase(t *testing.T) {
	e := newTestEnv(t)
	creator := e.signup("carol", "creator")
	buyer := e.signup("ben", "viewer")
	noteID := e.createNote(creator, nil)

	// anonymous visitors see one preview url
	code, env := e.do(http.MethodGet, "/api/notes/"+noteID, "", nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	anon := decode[noteResp](t, env.Data)
	assert.False(t, anon.Note.CanViewFull)
	assert.Equal(t, []string{"u1"}, anon.Note.ContentAccess.AvailableContent)
	require.NotNil(t, anon.Note.ContentAccess.LockedContentCount)
	assert.Equal(t, 2, *anon.Note.ContentAccess.LockedContentCount)

	_, env = e.do(http.MethodGet, "/api/notes/"+noteID, creator.Token, nil)
	owner := decode[noteResp](t, env.Data)
	assert.True(t, owner.Note.IsOwner)
	assert.Equal(t, []string{"u1", "u2", "u3"}, owner.Note.ContentAccess.AvailableContent)
	assert.Nil(t, owner.Note.ContentAccess.LockedContentCount)

	code, env = e.do(http.MethodPost, "/api/payments/purchase", creator.Token, map[string]any{"note_id": noteID})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "You cannot purchase your own note", env.Message)

	code, env = e.do(http.MethodPost, "/api/payments/purchase", buyer.Token, map[string]any{"note_id": noteID})
	require.Equal(t, http.StatusCreated, code, env.Message)
	bought := decode[struct {
		Payment struct {
			ID     string  `json:"id"`
			Amount float64 `json:"amount"`
			Status string  `json:"status"`
		} `json:"payment"`
	}](t, env.Data)
	assert.Equal(t, 9.99, bought.Payment.Amount)
	assert.Equal(t, "completed", bought.Payment.Status)

	code, env = e.do(http.MethodPost, "/api/payments/purchase", buyer.Token, map[string]any{"note_id": noteID})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "You have already purchased this note", env.Message)

	_, env = e.do(http.MethodGet, "/api/notes/"+noteID, buyer.Token, nil)
	full := decode[noteResp](t, env.Data)
	assert.True(t, full.Note.IsPurchased)
	assert.True(t, full.Note.CanViewFull)
	assert.Len(t, full.Note.ContentAccess.AvailableContent, 3)

	code, _ = e.do(http.MethodGet, "/api/payments/"+bought.Payment.ID, creator.Token, nil)
	assert.Equal(t, http.StatusOK, code)
	stranger := e.signup("sam", "viewer")
	code, _ = e.do(http.MethodGet, "/api/payments/"+bought.Payment.ID, stranger.Token, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = e.do(http.MethodGet, "/api/payments/creator-earnings?period=month", creator.Token, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	earnings := decode[struct {
		Summary struct {
			TotalSales    int64   `json:"totalSales"`
			TotalEarnings float64 `json:"totalEarnings"`
		} `json:"summary"`
		Analytics []map[string]any `json:"analytics"`
	}](t, env.Data)
	assert.EqualValues(t, 1, earnings.Summary.TotalSales)
	assert.Equal(t, 9.99, earnings.Summary.TotalEarnings)
	assert.Len(t, earnings.Analytics, 1)

	code, env = e.do(http.MethodGet, "/api/payments/creator-earnings", buyer.Token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Access denied. Only creators can view earnings", env.Message)
}

func TestPurchaseFreeAndMissingNote(t *testing.T) {
	e := newTestEnv(t)
	creator := e.signup("carol", "creator")
	buyer := e.signup("ben", "viewer")
	free := e.createNote(creator, map[string]any{"price": 0})

	code, env := e.do(http.MethodPost, "/api/payments/purchase", buyer.Token, map[string]any{"note_id": free})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "This note is free and does not require purchase", env.Message)

	code, env = e.do(http.MethodPost, "/api/payments/purchase", buyer.Token, map[string]any{"note_id": uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Note not found", env.Message)

	code, env = e.do(http.MethodPost, "/api/payments/purchase", buyer.Token, map[string]any{"note_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "note_id", env.Errors[0].Field)
}

func TestNoteValidation(t *testing.T) {
	e := newTestEnv(t)
	creator := e.signup("carol", "creator")
	viewer := e.signup("ben", "viewer")

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"negative price", map[string]any{"price": -1}, "price"},
		{"price too high", map[string]any{"price": (models.MaxPrice + 1).String()}, "price"},
		{"bad content type", map[string]any{"content_type": "video"}, "content_type"},
		{"no urls", map[string]any{"content_urls": []string{}}, "content_urls"},
		{"blank title", map[string]any{"title": "   "}, "title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := map[string]any{
				"title": "Linear Algebra", "subject": "Mathematics", "topics": []string{"A"},
				"content_type": "pdf", "content_urls": []string{"u1"}, "price": 1,
			}
			for k, v := range tt.body {
				body[k] = v
			}
			code, env := e.do(http.MethodPost, "/api/notes", creator.Token, body)
			assert.Equal(t, http.StatusBadRequest, code)
			require.NotEmpty(t, env.Errors)
			assert.Equal(t, tt.field, env.Errors[0].Field)
		})
	}

	priced := e.createNote(creator, map[string]any{"price": models.MaxPrice.String()})
	assert.NotEmpty(t, priced)

	code, env := e.do(http.MethodPost, "/api/notes", creator.Token, map[string]any{
		"title": "Linear Algebra", "subject": "Mathematics", "topics": []string{"A"},
		"content_type": "pdf", "content_urls": []string{"u1"}, "price": 10000,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "Price must be between 0 and 9999.99", env.Errors[0].Message)

	code, env = e.do(http.MethodPost, "/api/notes", creator.Token, `{"title":"Linear Algebra","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Validation failed", env.Message)

	code, env = e.do(http.MethodPost, "/api/notes", viewer.Token, map[string]any{"title": "x"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Access denied. Required role: creator", env.Message)
}

func TestListNotes(t *testing.T) {
	e := newTestEnv(t)
	creator := e.signup("carol", "creator")
	e.createNote(creator, map[string]any{"title": "Paid Physics", "subject": "Physics"})
	e.createNote(creator, map[string]any{"title": "Free Physics", "subject": "Physics", "price": 0})
	e.createNote(creator, map[string]any{"title": "Hidden", "is_published": false})

	code, env := e.do(http.MethodGet, "/api/notes?subject=Physics&price_filter=free", "", nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	data := decode[struct {
		Notes      []map[string]any `json:"notes"`
		Pagination pagination       `json:"pagination"`
		IsAuth     bool             `json:"is_authenticated"`
	}](t, env.Data)
	require.Len(t, data.Notes, 1)
	assert.Equal(t, "Free Physics", data.Notes[0]["title"])
	assert.NotContains(t, data.Notes[0], "content_urls")
	assert.EqualValues(t, 3, data.Notes[0]["content_count"])
	assert.False(t, data.IsAuth)
	assert.EqualValues(t, 1, data.Pagination.Total)

	code, env = e.do(http.MethodGet, "/api/notes?limit=500", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "limit", env.Errors[0].Field)

	code, _ = e.do(http.MethodGet, "/api/notes?sort_by=password", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestNoteUpdateAndDelete(t *testing.T) {
	e := newTestEnv(t)
	creator := e.signup("carol", "creator")
	other := e.signup("olga", "creator")
	noteID := e.createNote(creator, nil)

	code, env := e.do(http.MethodPut, "/api/notes/"+noteID, other.Token, map[string]any{"title": "Stolen"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Note not found or you are not authorized to update this note", env.Message)

	code, env = e.do(http.MethodPut, "/api/notes/"+noteID, creator.Token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No valid fields provided for update", env.Message)

	code, _ = e.do(http.MethodPut, "/api/notes/not-a-uuid", creator.Token, map[string]any{"title": "New title"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = e.do(http.MethodPut, "/api/notes/"+noteID, creator.Token, map[string]any{"title": "New title", "price": "4.50"})
	require.Equal(t, http.StatusOK, code, env.Message)
	updated := decode[struct {
		Note struct {
			Title string  `json:"title"`
			Price float64 `json:"price"`
		} `json:"note"`
	}](t, env.Data)
	assert.Equal(t, "New title", updated.Note.Title)
	assert.Equal(t, 4.5, updated.Note.Price)

	code, _ = e.do(http.MethodDelete, "/api/notes/"+noteID, other.Token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.do(http.MethodDelete, "/api/notes/"+noteID, creator.Token, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(http.MethodGet, "/api/notes/"+noteID, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestComments(t *testing.T) {
	e := newTestEnv(t)
	creator := e.signup("carol", "creator")
	ada := e.signup("ada", "viewer")
	ben := e.signup("ben", "viewer")
	noteID := e.createNote(creator, nil)

	for _, rating := range []int{0, 6} {
		code, env := e.do(http.MethodPost, "/api/comments", ada.Token, map[string]any{"note_id": noteID, "text": "hi", "rating": rating})
		assert.Equal(t, http.StatusBadRequest, code)
		require.Len(t, env.Errors, 1)
		assert.Equal(t, "Rating must be between 1 and 5", env.Errors[0].Message)
	}

	code, env := e.do(http.MethodPost, "/api/comments", ada.Token, map[string]any{"note_id": noteID, "text": " great ", "rating": 5})
	require.Equal(t, http.StatusCreated, code, env.Message)
	first := decode[struct {
		ID       string `json:"id"`
		Text     string `json:"text"`
		UserName string `json:"user_name"`
	}](t, env.Data)
	assert.Equal(t, "great", first.Text)
	assert.Equal(t, "ada", first.UserName)

	code, _ = e.do(http.MethodPost, "/api/comments", ben.Token, map[string]any{"note_id": noteID, "text": "ok", "rating": 1})
	require.Equal(t, http.StatusCreated, code)

	code, env = e.do(http.MethodGet, "/api/comments/rating/"+noteID, "", nil)
	require.Equal(t, http.StatusOK, code)
	rating := decode[store.Rating](t, env.Data)
	assert.Equal(t, 3.0, rating.AverageRating)
	assert.EqualValues(t, 2, rating.RatingCount)

	code, _ = e.do(http.MethodPut, "/api/comments/"+first.ID, ben.Token, map[string]any{"text": "mine now"})
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.do(http.MethodDelete, "/api/comments/"+first.ID, ada.Token, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(http.MethodGet, "/api/comments/"+first.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = e.do(http.MethodGet, "/api/comments?note_id="+noteID, "", nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[struct {
		Comments   []map[string]any `json:"comments"`
		Pagination pagination       `json:"pagination"`
		Rating     store.Rating     `json:"rating"`
	}](t, env.Data)
	assert.Len(t, list.Comments, 1)
	assert.Equal(t, 1.0, list.Rating.AverageRating)

	code, _ = e.do(http.MethodGet, "/api/comments", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLikesAndBookmarks(t *testing.T) {
	e := newTestEnv(t)
	creator := e.signup("carol", "creator")
	ada := e.signup("ada", "viewer")
	noteID := e.createNote(creator, nil)

	type toggled struct {
		Action       string `json:"action"`
		LikeCount    int64  `json:"likeCount"`
		IsLiked      bool   `json:"isLiked"`
		IsBookmarked bool   `json:"isBookmarked"`
	}

	code, env := e.do(http.MethodPost, "/api/likes", ada.Token, map[string]any{"note_id": noteID})
	require.Equal(t, http.StatusOK, code, env.Message)
	got := decode[toggled](t, env.Data)
	assert.Equal(t, toggled{Action: "liked", LikeCount: 1, IsLiked: true}, got)

	code, env = e.do(http.MethodGet, "/api/likes/user/liked-notes", ada.Token, nil)
	require.Equal(t, http.StatusOK, code)
	liked := decode[struct {
		Notes []map[string]any `json:"notes"`
	}](t, env.Data)
	require.Len(t, liked.Notes, 1)
	assert.NotContains(t, liked.Notes[0], "content_urls")

	_, env = e.do(http.MethodPost, "/api/likes", ada.Token, map[string]any{"note_id": noteID})
	got = decode[toggled](t, env.Data)
	assert.Equal(t, toggled{Action: "unliked", LikeCount: 0, IsLiked: false}, got)
	assert.Equal(t, []string{noteID, noteID}, e.likes.ids)

	code, env = e.do(http.MethodDelete, "/api/likes/"+noteID, ada.Token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Like not found", env.Message)

	code, _ = e.do(http.MethodPost, "/api/likes", ada.Token, map[string]any{"note_id": uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, code)

	code, env = e.do(http.MethodPost, "/api/bookmarks", ada.Token, map[string]any{"note_id": noteID})
	require.Equal(t, http.StatusOK, code)
	got = decode[toggled](t, env.Data)
	assert.Equal(t, "added", got.Action)
	assert.True(t, got.IsBookmarked)

	_, env = e.do(http.MethodGet, "/api/bookmarks/stats", ada.Token, nil)
	stats := decode[store.MarkStats](t, env.Data)
	assert.EqualValues(t, 1, stats.Total)
	assert.EqualValues(t, 1, stats.CreatorsCount)

	_, env = e.do(http.MethodGet, "/api/bookmarks/note/"+noteID, "", nil)
	count := decode[struct {
		BookmarkCount int64 `json:"bookmarkCount"`
	}](t, env.Data)
	assert.EqualValues(t, 1, count.BookmarkCount)

	code, _ = e.do(http.MethodDelete, "/api/bookmarks/"+noteID, ada.Token, nil)
	assert.Equal(t, http.StatusOK, code)
	_, env = e.do(http.MethodGet, "/api/bookmarks/check/"+noteID, ada.Token, nil)
	check := decode[struct {
		IsBookmarked bool `json:"isBookmarked"`
	}](t, env.Data)
	assert.False(t, check.IsBookmarked)
}

func (e *testEnv) upload(token, filename, contentType string, content []byte) (int, envelope) {
	e.t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(e.t, err)
	_, err = part.Write(content)
	require.NoError(e.t, err)
	require.NoError(e.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	var env envelope
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestUploads(t *testing.T) {
	e := newTestEnv(t)
	creator := e.signup("carol", "creator")

	code, env := e.upload(creator.Token, "notes.pdf", "application/pdf", []byte("%PDF-1.4"))
	require.Equal(t, http.StatusCreated, code, env.Message)
	data := decode[struct {
		URL  string `json:"url"`
		Size int64  `json:"size"`
	}](t, env.Data)
	assert.Equal(t, "http://files.test/noteflow/notes.pdf", data.URL)
	assert.EqualValues(t, 8, data.Size)

	code, env = e.upload(creator.Token, "run.exe", "application/octet-stream", []byte("MZ"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Only PDF and image files are allowed", env.Message)

	e.uploads.err = errors.New("bucket gone")
	code, _ = e.upload(creator.Token, "notes.pdf", "application/pdf", []byte("%PDF-1.4"))
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestUploadsDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth.PasswordCost = bcrypt.MinCost
	st, err := store.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared", 1)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	e := &testEnv{t: t, store: st}
	e.handler = NewServer(Deps{
		Store:  st,
		Tokens: auth.NewIssuer("test-secret", time.Hour),
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).Handler()
	creator := e.signup("carol", "creator")

	code, env := e.upload(creator.Token, "notes.pdf", "application/pdf", []byte("%PDF-1.4"))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "File uploads are not configured", env.Message)
}

func TestNoRoute(t *testing.T) {
	e := newTestEnv(t)
	code, env := e.do(http.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
	assert.Equal(t, "Route not found", env.Message)
}
