package storage

import (
	"chat-relay/domain/chat"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_Upsert_Creates_Then_Updates(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	repository := NewUserRepository(db, slog.Default())
	ctx := context.Background()

	// Given an unknown user registering a token
	created, err := repository.Upsert(ctx, "a@x.com", "tA", "Alice")
	req.NoError(err)
	req.Equal("tA", created.Token)
	req.Equal("Alice", created.Name)

	// When the token is refreshed without a name
	updated, err := repository.Upsert(ctx, "a@x.com", "tA2", "")
	req.NoError(err)

	// Then the token changes and the name is kept
	req.Equal("tA2", updated.Token)
	req.Equal("Alice", updated.Name)

	users, err := repository.ListUsers(ctx)
	req.NoError(err)
	req.Len(users, 1)

	// And the previous token no longer resolves to the user
	cleared, err := repository.ClearTokens(ctx, []string{"tA"})
	req.NoError(err)
	req.Zero(cleared)
}

func TestUserRepository_Upsert_Idempotent(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	repository := NewUserRepository(db, slog.Default())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repository.Upsert(ctx, "a@x.com", "tA", "Alice")
		req.NoError(err)
	}

	holders, err := repository.ListTokenHolders(ctx)
	req.NoError(err)
	req.Len(holders, 1)
	req.Equal("tA", holders[0].Token)
}

func TestUserRepository_ClearTokens(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	repository := NewUserRepository(db, slog.Default())
	ctx := context.Background()

	// Given two users sharing a token and a third one with its own
	_, err := repository.Upsert(ctx, "a@x.com", "shared:token", "")
	req.NoError(err)
	_, err = repository.Upsert(ctx, "b@x.com", "shared:token", "")
	req.NoError(err)
	_, err = repository.Upsert(ctx, "c@x.com", "tC", "")
	req.NoError(err)

	// When the shared token and an unknown one are cleared
	cleared, err := repository.ClearTokens(ctx, []string{"shared:token", "unknown"})

	// Then both holders lose their token
	req.NoError(err)
	req.Equal(2, cleared)

	holders, err := repository.ListTokenHolders(ctx)
	req.NoError(err)
	req.Equal([]string{"c@x.com"}, lo.Map(holders, func(u chat.User, _ int) string { return u.Email }))

	// And users are kept
	users, err := repository.ListUsers(ctx)
	req.NoError(err)
	req.Len(users, 3)

	// And clearing again changes nothing
	cleared, err = repository.ClearTokens(ctx, []string{"shared:token"})
	req.NoError(err)
	req.Zero(cleared)
}

func TestUserRepository_Token_Prefix_Does_Not_Leak(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	repository := NewUserRepository(db, slog.Default())
	ctx := context.Background()

	_, err := repository.Upsert(ctx, "a@x.com", "tok", "")
	req.NoError(err)
	_, err = repository.Upsert(ctx, "b@x.com", "tok-longer", "")
	req.NoError(err)

	cleared, err := repository.ClearTokens(ctx, []string{"tok"})
	req.NoError(err)
	req.Equal(1, cleared)

	holders, err := repository.ListTokenHolders(ctx)
	req.NoError(err)
	req.Len(holders, 1)
	req.Equal("tok-longer", holders[0].Token)
}

func chatUserFixture() chat.User {
	return chat.User{Email: "a@x.com", Name: "Alice", Token: "tA", UpdatedAt: time.Unix(0, 1).UTC()}
}

func TestUserRepository_Concurrent_Upserts_Of_Same_User(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	repository := NewUserRepository(db, slog.Default())
	ctx := context.Background()

	// Given the same user refreshing its token from many devices at once
	const writers = 64
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repository.Upsert(ctx, "a@x.com", fmt.Sprintf("t%d", i), "")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	// Then every registration succeeds
	for err := range errs {
		req.NoError(err)
	}

	// And only the last token is held and indexed
	holders, err := repository.ListTokenHolders(ctx)
	req.NoError(err)
	req.Len(holders, 1)
	req.Equal(1, countKeys(t, db, tokenIndexPrefix))
}

func TestUserRepository_ClearTokens_Racing_Upsert(t *testing.T) {
	req := require.New(t)
	db, cleanup := SetupTestDB(t)
	defer cleanup()
	repository := NewUserRepository(db, slog.Default())
	ctx := context.Background()
	_, err := repository.Upsert(ctx, "a@x.com", "dead", "")
	req.NoError(err)

	// When the dead token is cleared while the user keeps refreshing
	errs := make(chan error, 33)
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repository.Upsert(ctx, "a@x.com", fmt.Sprintf("t%d", i), "")
			errs <- err
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := repository.ClearTokens(ctx, []string{"dead"})
		errs <- err
	}()
	wg.Wait()
	close(errs)

	// Then nothing is lost to a transaction conflict
	for err := range errs {
		req.NoError(err)
	}
	cleared, err := repository.ClearTokens(ctx, []string{"dead"})
	req.NoError(err)
	req.Zero(cleared)
}

func countKeys(t *testing.T, db *badger.DB, prefix string) int {
	t.Helper()
	count := 0
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}
