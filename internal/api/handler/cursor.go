package handler

import (
	"encoding/base64"
	"fmt"
)

// DecodeDeadLetterCursor returns the list offset encoded in cursorStr.
// An empty cursor starts at the head.
func DecodeDeadLetterCursor(cursorStr string) (int, error) {
	if cursorStr == "" {
		return 0, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return 0, err
	}

	var offset int
	if _, err := fmt.Sscanf(string(decoded), "dlq|%d", &offset); err != nil {
		return 0, fmt.Errorf("invalid cursor format: %w", err)
	}
	if offset < 0 {
		return 0, fmt.Errorf("invalid cursor offset %d", offset)
	}

	return offset, nil
}

func EncodeDeadLetterCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("dlq|%d", offset)))
}
