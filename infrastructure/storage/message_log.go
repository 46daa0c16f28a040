package storage

import (
	"chat-match/contract"
	"chat-match/domain"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ contract.MessageLog = (*MessageLog)(nil)

const messagePrefix = "msg:"

// MessageLog keeps the messages of live sessions in BadgerDB.
// The key is formatted as "msg:{session_id}:{seq_padded}" so a prefix scan
// returns the messages of one session in insertion order.
type MessageLog struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageLog(db *badger.DB, log *slog.Logger) *MessageLog {
	return &MessageLog{db: db, log: log}
}

// OpenMessageLogDB opens the Badger instance backing the message log.
// An empty path keeps everything in memory. A directory is wiped on open:
// session logs never outlive the process that created them.
func OpenMessageLogDB(path string, debug bool) (*badger.DB, error) {
	options := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	if debug {
		options = options.WithLoggingLevel(badger.DEBUG)
	}
	if path == "" {
		options = options.WithInMemory(true)
	}
	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("message log opening failed: %w", err)
	}
	if path != "" {
		if err = db.DropAll(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("message log reset failed: %w", err)
		}
	}
	return db, nil
}

// Append stores message under its session. Seq must be unique within the session.
func (m *MessageLog) Append(_ context.Context, message domain.Message) error {
	value, err := encodeMessage(message)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message.SessionID, message.Seq), value)
	})
}

// List returns every message of a session, oldest first.
func (m *MessageLog) List(_ context.Context, sessionID domain.SessionID) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := sessionPrefix(sessionID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				message, err := DecodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Drop deletes the whole log of a session. Dropping an unknown session is a no-op.
// Only the keys of the session are touched, DropAll is kept for the startup wipe.
func (m *MessageLog) Drop(_ context.Context, sessionID domain.SessionID) error {
	keys, err := m.keys(sessionPrefix(sessionID))
	if err != nil {
		return fmt.Errorf("listing log of %s: %w", sessionID, err)
	}
	if len(keys) == 0 {
		return nil
	}

	batch := m.db.NewWriteBatch()
	defer batch.Cancel()
	for _, key := range keys {
		if err = batch.Delete(key); err != nil {
			return fmt.Errorf("dropping log of %s: %w", sessionID, err)
		}
	}
	if err = batch.Flush(); err != nil {
		return fmt.Errorf("dropping log of %s: %w", sessionID, err)
	}
	m.log.Debug("Message log dropped", "session_id", sessionID, "messages", len(keys))
	return nil
}

// keys walks the keys under prefix only, values are never loaded.
func (m *MessageLog) keys(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

func sessionPrefix(sessionID domain.SessionID) []byte {
	return []byte(fmt.Sprintf("%s%s:", messagePrefix, sessionID))
}

func messageKey(sessionID domain.SessionID, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d", messagePrefix, sessionID, seq))
}

func encodeMessage(message domain.Message) ([]byte, error) {
	value, err := structpb.NewStruct(map[string]any{
		"session_id": string(message.SessionID),
		"seq":        message.Seq,
		"sender_id":  string(message.SenderID),
		"text":       message.Text,
		"created_at": message.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return proto.Marshal(value)
}

// DecodeMessage reads back a value written by Append.
func DecodeMessage(data []byte) (domain.Message, error) {
	var value structpb.Struct
	if err := proto.Unmarshal(data, &value); err != nil {
		return domain.Message{}, fmt.Errorf("decoding message: %w", err)
	}
	fields := value.GetFields()
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"].GetStringValue())
	if err != nil {
		return domain.Message{}, fmt.Errorf("decoding message timestamp: %w", err)
	}
	return domain.Message{
		SessionID: domain.SessionID(fields["session_id"].GetStringValue()),
		Seq:       int(fields["seq"].GetNumberValue()),
		SenderID:  domain.ConnectionID(fields["sender_id"].GetStringValue()),
		Text:      fields["text"].GetStringValue(),
		CreatedAt: createdAt,
	}, nil
}
