package handler

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadLetterCursor(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		for _, offset := range []int{0, 1, 20, 9999} {
			got, err := DecodeDeadLetterCursor(EncodeDeadLetterCursor(offset))
			require.NoError(t, err)
			assert.Equal(t, offset, got)
		}
	})

	t.Run("empty cursor starts at head", func(t *testing.T) {
		got, err := DecodeDeadLetterCursor("")
		require.NoError(t, err)
		assert.Equal(t, 0, got)
	})

	tests := []struct {
		name   string
		cursor string
	}{
		{name: "not base64", cursor: "not-a-cursor"},
		{name: "wrong prefix", cursor: base64.StdEncoding.EncodeToString([]byte("jobs|4"))},
		{name: "negative offset", cursor: base64.StdEncoding.EncodeToString([]byte("dlq|-3"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDeadLetterCursor(tt.cursor)
			assert.Error(t, err)
		})
	}
}
