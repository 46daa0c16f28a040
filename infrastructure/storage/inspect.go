package storage

import (
	"fmt"

	"github.com/mama165/sdk-go/database"
)

// InspectMessage renders one message log entry for the Badger debug inspector.
func InspectMessage(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	message, err := DecodeMessage(val)
	if err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}
	row.Type = "MESSAGE"
	row.Detail = fmt.Sprintf("#%d %s: %s", message.Seq, message.SenderID.UserLabel(), message.Text)
	return row
}
