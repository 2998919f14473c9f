package storage

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrBadDataURI = errors.New("malformed data URI")

// IsDataURI reports whether s looks like "data:...".
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// DecodeDataURI decodes a base64 data URI ("data:image/png;base64,....") and
// returns the declared media type and payload. Only base64 payloads are
// accepted; the declared type is advisory, callers sniff the bytes.
func DecodeDataURI(s string) (string, []byte, error) {
	if !IsDataURI(s) {
		return "", nil, ErrBadDataURI
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok {
		return "", nil, ErrBadDataURI
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, ErrBadDataURI
	}

	payload = strings.TrimSpace(payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return "", nil, ErrBadDataURI
		}
	}
	return mediaType, data, nil
}
