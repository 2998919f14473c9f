package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"gameshelf/backend/internal/handler"
	"gameshelf/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestRegisterRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	env.register("mario")

	w := env.do(http.MethodPost, "/register", "", gin.H{
		"username": "luigi",
		"email":    "MARIO@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "email is compared case-insensitively")

	w = env.do(http.MethodPost, "/register", "", gin.H{
		"username": "mario",
		"email":    "other@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/register", "", gin.H{
		"username": "x!",
		"email":    "x@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "username rule")

	w = env.do(http.MethodPost, "/register", "", gin.H{
		"username": "shorty",
		"email":    "shorty@example.com",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "password length")
}

func TestLoginAndProtectedRoutes(t *testing.T) {
	env := newTestEnv(t)
	user := env.register("peach")

	w := env.do(http.MethodPost, "/login", "", gin.H{"login": "peach@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[handler.AuthResponse](t, w)
	assert.Equal(t, user.ID, res.User.ID)
	assert.Equal(t, "peach@example.com", res.User.Email)
	assert.NotEmpty(t, w.Header().Get("Set-Cookie"))

	w = env.do(http.MethodPost, "/login", "", gin.H{"login": "peach", "password": "password123"})
	assert.Equal(t, http.StatusOK, w.Code, "login by username")

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/login", "", gin.H{"login": "peach", "password": "wrong-password"}).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/login", "", gin.H{"login": "nobody", "password": "password123"}).Code)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/users/me", res.Token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/users/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/users/me", "garbage", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/users/me", res.RefreshToken, nil).Code,
		"a refresh token is not an access token")
}

func TestRefreshAndLogout(t *testing.T) {
	env := newTestEnv(t)
	user := env.register("toad")

	w := env.do(http.MethodPost, "/api/token/refresh", "", gin.H{"refresh_token": user.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rotated := decode[handler.TokenResponse](t, w)
	assert.NotEmpty(t, rotated.Token)
	assert.NotEmpty(t, rotated.RefreshToken)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/users/me", rotated.Token, nil).Code)

	w = env.do(http.MethodPost, "/api/token/refresh", "", gin.H{"refresh_token": user.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "a used refresh token cannot be replayed")

	w = env.do(http.MethodPost, "/api/token/refresh", "", gin.H{"refresh_token": rotated.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/token/refresh", "", gin.H{"refresh_token": rotated.RefreshToken}).Code)
	rotated = decode[handler.TokenResponse](t, w)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/token/refresh", "", gin.H{"refresh_token": user.Token}).Code,
		"an access token cannot refresh")

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/logout", rotated.Token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/token/refresh", "", gin.H{"refresh_token": user.RefreshToken}).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/token/refresh", "", gin.H{"refresh_token": rotated.RefreshToken}).Code)
}

func TestRefreshFromCookie(t *testing.T) {
	env := newTestEnv(t)
	env.register("daisy")

	req := env.do(http.MethodPost, "/login", "", gin.H{"login": "daisy", "password": "password123"})
	require.Equal(t, http.StatusOK, req.Code)
	cookies := req.Result().Cookies()
	require.NotEmpty(t, cookies)

	r, _ := http.NewRequest(http.MethodPost, "/api/token/refresh", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := env.serve(r, "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestProfileUpdates(t *testing.T) {
	env := newTestEnv(t)
	user := env.register("wario")
	other := env.register("waluigi")
	base := fmt.Sprintf("/api/users/%d", user.ID)

	w := env.do(http.MethodPut, base+"/bio", user.Token, gin.H{"bio": "Money!"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Money!", decode[handler.PrivateUserResponse](t, w).Bio)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, base+"/username", user.Token, gin.H{"username": "waluigi"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, base+"/email", user.Token, gin.H{"email": "waluigi@example.com"}).Code)

	w = env.do(http.MethodPut, base+"/username", user.Token, gin.H{"username": "wario64"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "wario64", decode[handler.PrivateUserResponse](t, w).Username)

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodPut, base+"/bio", other.Token, gin.H{"bio": "hacked"}).Code)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPut, base+"/password", user.Token,
		gin.H{"current_password": "nope-nope", "new_password": "newpassword1"}).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPut, base+"/password", user.Token,
		gin.H{"current_password": "password123", "new_password": "newpassword1"}).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/token/refresh", "", gin.H{"refresh_token": user.RefreshToken}).Code,
		"changing the password revokes refresh tokens")
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/login", "", gin.H{"login": "wario64", "password": "newpassword1"}).Code)
}

func TestAvatarUpload(t *testing.T) {
	env := newTestEnv(t)
	user := env.register("yoshi")
	path := fmt.Sprintf("/api/users/%d/avatar", user.ID)

	w := env.serve(multipartRequest(t, http.MethodPut, path, nil, "avatar", pngBytes(t)), user.Token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[handler.PrivateUserResponse](t, w).AvatarURL
	assert.Contains(t, first, fmt.Sprintf("/uploads/avatars/%d/", user.ID))

	w = env.serve(multipartRequest(t, http.MethodPut, path, nil, "avatar", pngBytes(t)), user.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, first, decode[handler.PrivateUserResponse](t, w).AvatarURL)

	w = env.serve(multipartRequest(t, http.MethodPut, path, nil, "avatar", []byte("plain text, not an image")), user.Token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	huge := append(pngBytes(t), make([]byte, 2<<20)...)
	w = env.serve(multipartRequest(t, http.MethodPut, path, nil, "avatar", huge), user.Token)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAvatarRemovedWhenProfileUpdateFails(t *testing.T) {
	env := newTestEnv(t)
	user := env.register("boo")

	dir := t.TempDir()
	store, err := storage.Open(context.Background(), "file://"+filepath.ToSlash(dir), storage.Options{PublicURL: "/uploads", MaxBytes: 1 << 20})
	require.NoError(t, err)
	prev := storage.Default
	storage.Default = store
	t.Cleanup(func() {
		storage.Default = prev
		_ = store.Close()
	})

	require.NoError(t, env.db.Callback().Update().Before("gorm:update").Register("test:users_read_only", func(tx *gorm.DB) {
		if tx.Statement.Table == "users" {
			_ = tx.AddError(errors.New("users table is read-only"))
		}
	}))

	w := env.serve(multipartRequest(t, http.MethodPut, fmt.Sprintf("/api/users/%d/avatar", user.ID), nil, "avatar", pngBytes(t)), user.Token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var images []string
	require.NoError(t, filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && !strings.HasSuffix(path, ".attrs") {
			images = append(images, path)
		}
		return nil
	}))
	assert.Empty(t, images, "the uploaded avatar is deleted again")
}

func TestUserSearchAndFriendshipStatus(t *testing.T) {
	env := newTestEnv(t)
	viewer := env.register("kirby")
	target := env.register("kingdedede")
	env.register("metaknight")

	w := env.do(http.MethodGet, "/api/users?q=KING", viewer.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[handler.PaginatedResponse[handler.PublicUserResponse]](t, w)
	require.Len(t, page.Data, 1)
	assert.Equal(t, target.ID, page.Data[0].ID)

	w = env.do(http.MethodGet, "/api/users", viewer.Token, nil)
	page = decode[handler.PaginatedResponse[handler.PublicUserResponse]](t, w)
	assert.Equal(t, int64(2), page.Meta.TotalItems, "the viewer is excluded")

	status := func(u, of testUser) handler.FriendshipStatus {
		w := env.do(http.MethodGet, fmt.Sprintf("/api/users/%d", of.ID), u.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		return decode[handler.PublicUserResponse](t, w).FriendshipStatus
	}
	assert.Equal(t, handler.StatusNone, status(viewer, target))

	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, fmt.Sprintf("/api/friends/requests/%d", target.ID), viewer.Token, nil).Code)
	assert.Equal(t, handler.StatusRequestSent, status(viewer, target))
	assert.Equal(t, handler.StatusRequestReceived, status(target, viewer))

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, fmt.Sprintf("/api/friends/requests/%d/accept", viewer.ID), target.Token, nil).Code)
	assert.Equal(t, handler.StatusFriends, status(viewer, target))

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/users/9999", viewer.Token, nil).Code)
}

func TestRateLimitOnLogin(t *testing.T) {
	env := newTestEnv(t)
	env.router = NewRouter(newLimiter(2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, env.do(http.MethodPost, "/login", "", gin.H{"login": "x", "password": "y"}).Code)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}
