package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"gameshelf/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// uploadOverhead leaves room for multipart framing and the other form fields.
const uploadOverhead = 64 << 10

// LimitUploadBody caps the body of upload routes at maxBytes of image data.
// Data URIs travel base64-encoded, a third larger than the image.
func LimitUploadBody(maxBytes int64) gin.HandlerFunc {
	limit := maxBytes*4/3 + uploadOverhead
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// bodyTooLarge answers 413 when err comes from an oversized request body.
func bodyTooLarge(c *gin.Context, err error) bool {
	var maxErr *http.MaxBytesError
	if !errors.As(err, &maxErr) && !strings.Contains(err.Error(), "request body too large") {
		return false
	}
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
	return true
}

// readUpload reads a multipart file, refusing anything above the store's cap.
func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	limit := storage.Default.MaxBytes()
	if fh.Size > limit {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", storage.ErrTooLarge, fh.Size, limit)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", storage.ErrTooLarge, limit)
	}
	return data, nil
}

// storageError maps storage failures to responses. It returns false when err
// is not a client-visible storage condition.
func storageError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, storage.ErrUnsupportedType), errors.Is(err, storage.ErrEmpty), errors.Is(err, storage.ErrBadDataURI):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		return false
	}
	return true
}

// removeStoredObject deletes the object behind url when it lives in our
// bucket. Failures are logged, never surfaced: the new value is already saved.
func removeStoredObject(c *gin.Context, url string) {
	key, ok := storage.Default.KeyFromURL(url)
	if !ok {
		return
	}
	if err := storage.Default.Delete(c.Request.Context(), key); err != nil {
		logCtx(c).Warn().Err(err).Str("key", key).Msg("failed to delete replaced object")
	}
}
