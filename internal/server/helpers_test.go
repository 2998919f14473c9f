package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gameshelf/backend/internal/auth"
	"gameshelf/backend/internal/config"
	"gameshelf/backend/internal/database/dbtest"
	"gameshelf/backend/internal/handler"
	"gameshelf/backend/internal/models"
	"gameshelf/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// 1x1 PNG, base64.
const pixelPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func pngBytes(t *testing.T) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(pixelPNG)
	require.NoError(t, err)
	return b
}

type testEnv struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

type testUser struct {
	ID           uint
	Token        string
	RefreshToken string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	prevCfg := config.AppConfig
	config.AppConfig = &config.Config{
		JWTSecret:        "test-access-secret",
		JWTRefreshSecret: "test-refresh-secret",
		AccessTokenTTL:   time.Minute,
		RefreshTokenTTL:  time.Hour,
		CORSOrigins:      "http://localhost:3000",
		StoragePublicURL: "/uploads",
		MaxUploadMB:      1,
		AuthRateLimit:    100,
	}
	t.Cleanup(func() { config.AppConfig = prevCfg })

	db := dbtest.Use(t)

	store, err := storage.Open(context.Background(), "mem://", storage.Options{PublicURL: "/uploads", MaxBytes: 1 << 20})
	require.NoError(t, err)
	prevStore := storage.Default
	storage.Default = store
	t.Cleanup(func() {
		storage.Default = prevStore
		_ = store.Close()
	})

	require.NoError(t, handler.RegisterValidators())
	handler.ResetReportCache()

	return &testEnv{
		t:      t,
		db:     db,
		router: NewRouter(newLimiter(100)),
	}
}

func newLimiter(perMinute int) *auth.RateLimiter {
	return auth.NewRateLimiter(perMinute, time.Minute)
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.serve(req, token)
}

func (e *testEnv) serve(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// multipartRequest builds a multipart body with the given fields and an
// optional file part.
func multipartRequest(t *testing.T, method, path string, fields map[string][]string, fileField string, file []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, values := range fields {
		for _, v := range values {
			require.NoError(t, mw.WriteField(name, v))
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, "image.png")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (e *testEnv) register(username string) testUser {
	e.t.Helper()
	w := e.do(http.MethodPost, "/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())

	res := decode[handler.AuthResponse](e.t, w)
	return testUser{ID: res.User.ID, Token: res.Token, RefreshToken: res.RefreshToken}
}

func (e *testEnv) admin(username string) testUser {
	e.t.Helper()
	u := e.register(username)
	require.NoError(e.t, e.db.Model(&models.User{}).Where("id = ?", u.ID).Update("is_admin", true).Error)
	return u
}

func (e *testEnv) consoleIDs(n int) []uint {
	e.t.Helper()
	var ids []uint
	require.NoError(e.t, e.db.Model(&models.Console{}).Order("id").Limit(n).Pluck("id", &ids).Error)
	require.Len(e.t, ids, n)
	return ids
}

func (e *testEnv) createGame(token, name string) handler.GameResponse {
	e.t.Helper()
	w := e.do(http.MethodPost, "/add-game-to-database", token, gin.H{
		"name":        name,
		"console_ids": e.consoleIDs(1),
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[handler.GameResponse](e.t, w)
}

func (e *testEnv) befriend(a, b testUser) {
	e.t.Helper()
	w := e.do(http.MethodPost, fmt.Sprintf("/api/friends/requests/%d", b.ID), a.Token, nil)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	w = e.do(http.MethodPost, fmt.Sprintf("/api/friends/requests/%d/accept", a.ID), b.Token, nil)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
}

func (e *testEnv) count(model any) int64 {
	e.t.Helper()
	var n int64
	require.NoError(e.t, e.db.Model(model).Count(&n).Error)
	return n
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
