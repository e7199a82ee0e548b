package firestore

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// listPageToken cursors string-ordered listings (name, code).
type listPageToken struct {
	Cursor string
	ID     string
}

// timePageToken cursors timestamp-ordered listings (newest first).
type timePageToken struct {
	CreatedAt time.Time
	ID        string
}

func encodeListPageToken(token listPageToken) (string, error) {
	return encodePageToken(token)
}

func decodeListPageToken(encoded string) (listPageToken, error) {
	var token listPageToken
	err := decodePageToken(encoded, &token)
	return token, err
}

func encodeTimePageToken(token timePageToken) (string, error) {
	return encodePageToken(token)
}

func decodeTimePageToken(encoded string) (timePageToken, error) {
	var token timePageToken
	err := decodePageToken(encoded, &token)
	return token, err
}

func encodePageToken(token any) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodePageToken(encoded string, target any) error {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decode page token: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode page token json: %w", err)
	}
	return nil
}
