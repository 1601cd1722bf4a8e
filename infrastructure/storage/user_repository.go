package storage

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	userPrefix       = "user:"
	tokenIndexPrefix = "tok:"
	maxTxnRetries    = 3
)

var _ contract.IUserRepository = (*UserRepository)(nil)

type UserRepository struct {
	writeMu sync.Mutex // one read-write transaction at a time
	db      *badger.DB
	log     *slog.Logger
	now     func() time.Time
}

func NewUserRepository(db *badger.DB, log *slog.Logger) *UserRepository {
	return &UserRepository{
		db:  db,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func userKey(email string) []byte {
	return []byte(userPrefix + email)
}

// tokenIndexKey is "tok:{token}\x00{email}". FCM tokens contain ':'
// so a NUL byte separates the token from its holder.
func tokenIndexKey(token, email string) []byte {
	return append(tokenIndexPrefixFor(token), email...)
}

func tokenIndexPrefixFor(token string) []byte {
	return []byte(tokenIndexPrefix + token + "\x00")
}

// update runs read-write transactions one at a time, so writers of this
// repository never conflict with each other. Conflicts with other writers
// of the same keys are retried.
func (u *UserRepository) update(fn func(txn *badger.Txn) error) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()

	var err error
	for i := 0; i < maxTxnRetries; i++ {
		err = u.db.Update(fn)
		if !stderrors.Is(err, badger.ErrConflict) {
			return err
		}
		u.log.Debug("user transaction conflict, retrying", "attempt", i+1)
	}
	return err
}

func getUser(txn *badger.Txn, email string) (chat.User, bool, error) {
	item, err := txn.Get(userKey(email))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return chat.User{}, false, nil
	}
	if err != nil {
		return chat.User{}, false, err
	}
	var user chat.User
	err = item.Value(func(val []byte) error {
		user, err = unmarshalUser(val)
		return err
	})
	return user, err == nil, err
}

func putUser(txn *badger.Txn, user chat.User) error {
	value, err := marshalUser(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	return txn.Set(userKey(user.Email), value)
}

// Upsert creates the user when absent, otherwise replaces its token.
// The name is only overwritten when a non-empty one is supplied.
func (u *UserRepository) Upsert(ctx context.Context, email, token, name string) (chat.User, error) {
	if err := ctx.Err(); err != nil {
		return chat.User{}, err
	}
	var user chat.User
	err := u.update(func(txn *badger.Txn) error {
		existing, found, err := getUser(txn, email)
		if err != nil {
			return err
		}
		user = chat.User{Email: email}
		if found {
			user = existing
			if existing.Token != "" && existing.Token != token {
				if err := txn.Delete(tokenIndexKey(existing.Token, email)); err != nil {
					return err
				}
			}
		}
		if name != "" {
			user.Name = name
		}
		user.Token = token
		user.UpdatedAt = u.now()
		if err := putUser(txn, user); err != nil {
			return err
		}
		return txn.Set(tokenIndexKey(token, email), nil)
	})
	if err != nil {
		return chat.User{}, err
	}
	return user, nil
}

// ListUsers returns every known user ordered by email.
func (u *UserRepository) ListUsers(ctx context.Context) ([]chat.User, error) {
	return u.scanUsers(ctx, func(chat.User) bool { return true })
}

// ListTokenHolders returns users currently holding a push token.
func (u *UserRepository) ListTokenHolders(ctx context.Context) ([]chat.User, error) {
	return u.scanUsers(ctx, chat.User.HasToken)
}

func (u *UserRepository) scanUsers(ctx context.Context, keep func(chat.User) bool) ([]chat.User, error) {
	var users []chat.User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte(userPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				user, err := unmarshalUser(val)
				if err != nil {
					return err
				}
				if keep(user) {
					users = append(users, user)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return users, nil
}

// ClearTokens removes the token of every user currently holding one of tokens.
// Unknown or already cleared tokens are ignored. It returns the number of users updated.
func (u *UserRepository) ClearTokens(ctx context.Context, tokens []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, nil
	}
	var cleared int
	err := u.update(func(txn *badger.Txn) error {
		cleared = 0
		for _, token := range tokens {
			holders, err := tokenHolders(txn, token)
			if err != nil {
				return err
			}
			for _, email := range holders {
				if err := txn.Delete(tokenIndexKey(token, email)); err != nil {
					return err
				}
				user, found, err := getUser(txn, email)
				if err != nil {
					return err
				}
				if !found || user.Token != token {
					continue
				}
				user.Token = ""
				user.UpdatedAt = u.now()
				if err := putUser(txn, user); err != nil {
					return err
				}
				cleared++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return cleared, nil
}

func tokenHolders(txn *badger.Txn, token string) ([]string, error) {
	prefix := tokenIndexPrefixFor(token)
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	it := txn.NewIterator(options)
	defer it.Close()

	var emails []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		emails = append(emails, string(it.Item().Key()[len(prefix):]))
	}
	return emails, nil
}
