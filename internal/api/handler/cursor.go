package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/beanstalk-bridge/internal/history"
)

// DecodeRunCursor parses a cursor produced by EncodeRunCursor. An empty
// string decodes to a nil cursor.
func DecodeRunCursor(cursorStr string) (*history.RunCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	decodedParts := strings.SplitN(string(decoded), "|", 2)
	if len(decodedParts) != 2 || decodedParts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	_, err = fmt.Sscanf(decodedParts[0], "%d", &createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &history.RunCursor{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		RunID:     decodedParts[1],
	}, nil
}

// EncodeRunCursor returns the opaque base64 form of cursor
func EncodeRunCursor(cursor *history.RunCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.RunID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}
