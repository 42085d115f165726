// Package persistence contains helpers shared by the store implementations.
package persistence

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"example.com/engagement/internal/domain"
)

const cursorSeparator = "|"

// EncodeCursor renders c as an opaque URL-safe page token.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + cursorSeparator + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token
// yields a nil cursor; malformed tokens wrap domain.ErrInvalidArgument.
func DecodeCursor(token string) (*domain.Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: cursor is not valid base64", domain.ErrInvalidArgument)
	}
	createdAt, id, ok := strings.Cut(string(decoded), cursorSeparator)
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: cursor is malformed", domain.ErrInvalidArgument)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("%w: cursor timestamp: %v", domain.ErrInvalidArgument, err)
	}
	return &domain.Cursor{CreatedAt: ts, ID: id}, nil
}
