package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// connIDBytes of entropy give a 24-character hex identifier, plenty to
// tell transports apart in logs.
const connIDBytes = 12

// NewID returns an opaque identifier for a transport connection. When
// crypto/rand fails it degrades to a nanosecond timestamp, which is
// unique enough for log correlation.
func NewID() string {
	buf := make([]byte, connIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(buf)
}
