package ws

import (
	"time"

	"github.com/samber/lo"
)

type Settings struct {
	ConnectionBufferSize int
	PingInterval         time.Duration
	PongTimeout          time.Duration
	WriteTimeout         time.Duration
	MaxMessageLength     int
	AllowedOrigins       []string
}

const (
	// A character outside the BMP may arrive as an escaped surrogate pair: \uXXXX\uXXXX.
	maxEncodedRuneLength = 12
	envelopeOverhead     = 1024
)

// readLimit bounds a frame: the longest message with every character JSON escaped,
// plus room for the envelope. Longer messages that fit are rejected after decoding.
func (s Settings) readLimit() int64 {
	return int64(s.MaxMessageLength*maxEncodedRuneLength + envelopeOverhead)
}

// allowOrigin accepts requests without Origin (non browser clients),
// any origin when "*" is listed, and otherwise exact matches only.
func (s Settings) allowOrigin(origin string) bool {
	if origin == "" || lo.Contains(s.AllowedOrigins, "*") {
		return true
	}
	return lo.Contains(s.AllowedOrigins, origin)
}
