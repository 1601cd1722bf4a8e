package storage

import (
	"bytes"
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	messagePrefix      = "msg:"
	messageIndexPrefix = "msgid:"
	messageSequenceKey = "seq:msg"
	sequenceBandwidth  = 100
)

var _ contract.IMessageRepository = (*MessageRepository)(nil)

type MessageRepository struct {
	db       *badger.DB
	log      *slog.Logger
	sequence *badger.Sequence
	now      func() time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(messageSequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{
		db:       db,
		log:      log,
		sequence: seq,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock replaces the clock assigning CreatedAt.
func (m *MessageRepository) WithClock(now func() time.Time) *MessageRepository {
	m.now = now
	return m
}

// Close releases the leased sequence range.
func (m *MessageRepository) Close() error {
	return m.sequence.Release()
}

// messageKey is formatted as "msg:{timestamp_padded}:{seq_padded}:{id}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Break ties between equal timestamps by insertion order.
func messageKey(m DiskMessage) []byte {
	return []byte(fmt.Sprintf("%s%019d:%020d:%s",
		messagePrefix, m.CreatedAt.UnixNano(), m.Seq, m.ID))
}

// Append assigns an ID and a creation time, then persists the message.
// A secondary key "msgid:{id}" points to the primary key for deletion.
func (m *MessageRepository) Append(ctx context.Context, message chat.Message) (chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return chat.Message{}, err
	}
	seq, err := m.sequence.Next()
	if err != nil {
		return chat.Message{}, fmt.Errorf("next sequence: %w", err)
	}
	disk := DiskMessage{
		ID:        uuid.NewString(),
		Sender:    message.Sender,
		Text:      message.Text,
		Image:     message.Image,
		CreatedAt: m.now(),
		Seq:       seq,
	}
	key := messageKey(disk)
	value, err := marshalMessage(disk)
	if err != nil {
		return chat.Message{}, fmt.Errorf("encode message: %w", err)
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set([]byte(messageIndexPrefix+disk.ID), key)
	})
	if err != nil {
		return chat.Message{}, err
	}
	return toMessage(disk), nil
}

// ListRecent returns the last limit messages in ascending order.
// A limit <= 0 returns every message.
func (m *MessageRepository) ListRecent(ctx context.Context, limit int) ([]chat.Message, error) {
	var diskMessages []DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// Start past the greatest possible key then walk back in time
		for it.Seek(append(bytes.Clone(prefix), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(diskMessages) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				dm, err := unmarshalMessage(value)
				if err != nil {
					return err
				}
				diskMessages = append(diskMessages, dm)
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
	// Collected newest first, returned oldest first
	messages := lo.Map(diskMessages, func(item DiskMessage, _ int) chat.Message {
		return toMessage(item)
	})
	slices.Reverse(messages)
	return messages, nil
}

// DeleteByID removes the message and its index entry atomically.
// It returns errors.ErrMessageNotFound when the ID is unknown.
func (m *MessageRepository) DeleteByID(ctx context.Context, id string) (chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return chat.Message{}, err
	}
	var deleted DiskMessage
	err := m.db.Update(func(txn *badger.Txn) error {
		indexKey := []byte(messageIndexPrefix + id)
		item, err := txn.Get(indexKey)
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(key)
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if deleted, err = unmarshalMessage(value); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(indexKey)
	})
	if err != nil {
		return chat.Message{}, err
	}
	return toMessage(deleted), nil
}
