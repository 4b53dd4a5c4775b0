package keys

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ConvKeyParts are the decoded segments of a conversation index key.
type ConvKeyParts struct {
	Low       string
	High      string
	CreatedNS int64
	MessageID string
}

func ParseConvKey(key string) (ConvKeyParts, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 5 || parts[0] != "c" {
		return ConvKeyParts{}, fmt.Errorf("invalid conversation key: %q", key)
	}
	ts, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return ConvKeyParts{}, fmt.Errorf("invalid conversation key timestamp: %w", err)
	}
	lo, err := url.QueryUnescape(parts[1])
	if err != nil {
		return ConvKeyParts{}, err
	}
	hi, err := url.QueryUnescape(parts[2])
	if err != nil {
		return ConvKeyParts{}, err
	}
	return ConvKeyParts{Low: lo, High: hi, CreatedNS: ts, MessageID: parts[4]}, nil
}

// ParsePartnerKey returns the partner identity of a partner index key.
func ParsePartnerKey(key string) (string, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "p" {
		return "", fmt.Errorf("invalid partner key: %q", key)
	}
	return url.QueryUnescape(parts[2])
}
