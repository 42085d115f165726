package persistence

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/engagement/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2026, 5, 1, 8, 30, 0, 123456789, time.FixedZone("X", 3600))
	token := EncodeCursor(&domain.Cursor{CreatedAt: ts, ID: "audit-7"})
	require.NotContains(t, token, "=")

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.True(t, decoded.CreatedAt.Equal(ts))
	require.Equal(t, time.UTC, decoded.CreatedAt.Location())
	require.Equal(t, "audit-7", decoded.ID)
}

func TestCursorEmpty(t *testing.T) {
	require.Empty(t, EncodeCursor(nil))

	decoded, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, decoded)
}

func TestCursorMalformed(t *testing.T) {
	for _, token := range []string{
		"!!!",
		base64.RawURLEncoding.EncodeToString([]byte("no-separator")),
		base64.RawURLEncoding.EncodeToString([]byte("yesterday|id")),
		base64.RawURLEncoding.EncodeToString([]byte("2026-05-01T08:30:00Z|")),
	} {
		_, err := DecodeCursor(token)
		require.ErrorIs(t, err, domain.ErrInvalidArgument, token)
	}
}
