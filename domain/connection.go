package domain

import "strings"

// ConnectionID identifies one live transport connection.
// It is issued by the transport and only referenced by the core.
type ConnectionID string

const (
	labelSuffixLength = 4
	userLabelPrefix   = "User_"
)

// Suffix returns the obfuscated form of the connection shown to the partner:
// its last four characters, or the whole identifier when shorter.
func (c ConnectionID) Suffix() string {
	s := string(c)
	if len(s) <= labelSuffixLength {
		return s
	}
	return s[len(s)-labelSuffixLength:]
}

// UserLabel is the display label used as sender of relayed messages.
func (c ConnectionID) UserLabel() string {
	return userLabelPrefix + c.Suffix()
}

// ConnectedLabel builds the user_id acknowledged on connect.
// A client supplied label wins over the connection suffix.
func ConnectedLabel(conn ConnectionID, clientLabel string) string {
	if label := strings.TrimSpace(clientLabel); label != "" {
		return userLabelPrefix + label
	}
	return conn.UserLabel()
}
