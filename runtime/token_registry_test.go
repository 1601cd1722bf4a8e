package runtime

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestTokenRegistry_FindRecipientsExcluding(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIUserRepository(ctrl)
	registry := NewTokenRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), repository)
	ctx := context.Background()

	// Given A, B and C hold tokens, C sharing the token of B
	repository.EXPECT().ListTokenHolders(ctx).Return([]chat.User{
		{Email: "a@x.io", Token: "tA"},
		{Email: "b@x.io", Token: "tB"},
		{Email: "c@x.io", Token: "tB"},
	}, nil)

	// When A sends a message
	tokens, err := registry.FindRecipientsExcluding(ctx, "a@x.io")

	// Then B's token is targeted once
	req.NoError(err)
	req.Equal([]string{"tB"}, tokens)
}

func TestTokenRegistry_FindRecipientsExcluding_Storage_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIUserRepository(ctrl)
	registry := NewTokenRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), repository)

	repository.EXPECT().ListTokenHolders(gomock.Any()).Return(nil, fmt.Errorf("disk full"))

	_, err := registry.FindRecipientsExcluding(context.Background(), "a@x.io")
	req.ErrorIs(err, errors.ErrPersistence)
}

func TestTokenRegistry_Upsert_Validates_Input(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIUserRepository(ctrl)
	registry := NewTokenRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), repository)

	// Storage must never be reached
	_, err := registry.Upsert(context.Background(), "  ", "tA", "")
	req.ErrorIs(err, errors.ErrValidation)
	_, err = registry.Upsert(context.Background(), "a@x.io", "", "")
	req.ErrorIs(err, errors.ErrValidation)
}

func TestTokenRegistry_Upsert_Trims_Fields(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIUserRepository(ctrl)
	registry := NewTokenRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), repository)
	expected := chat.User{Email: "a@x.io", Token: "tA", Name: "Alice"}

	repository.EXPECT().Upsert(gomock.Any(), "a@x.io", "tA", "Alice").Return(expected, nil)

	user, err := registry.Upsert(context.Background(), " a@x.io ", "tA ", " Alice")
	req.NoError(err)
	req.Equal(expected, user)
}

func TestTokenRegistry_InvalidateTokens(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIUserRepository(ctrl)
	registry := NewTokenRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), repository)

	// Duplicates and empty tokens are dropped before reaching storage
	repository.EXPECT().ClearTokens(gomock.Any(), []string{"tB", "tC"}).Return(1, nil)

	cleared, err := registry.InvalidateTokens(context.Background(), []string{"tB", "", "tC", "tB"})
	req.NoError(err)
	req.Equal(1, cleared)

	// And nothing is done for an empty set
	cleared, err = registry.InvalidateTokens(context.Background(), nil)
	req.NoError(err)
	req.Zero(cleared)
}

func TestTokenRegistry_Serializes_Writes(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIUserRepository(ctrl)
	registry := NewTokenRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), repository)

	var inFlight, maxInFlight atomic.Int32
	track := func() {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
	}
	repository.EXPECT().Upsert(gomock.Any(), "a@x.com", gomock.Any(), "").
		DoAndReturn(func(_ context.Context, email, token, _ string) (chat.User, error) {
			track()
			return chat.User{Email: email, Token: token}, nil
		}).Times(16)
	repository.EXPECT().ClearTokens(gomock.Any(), []string{"dead"}).
		DoAndReturn(func(context.Context, []string) (int, error) {
			track()
			return 1, nil
		}).Times(4)

	// When the same user upserts while dead tokens are invalidated
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := registry.Upsert(context.Background(), "a@x.com", fmt.Sprintf("t%d", i), "")
			req.NoError(err)
		}(i)
	}
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.InvalidateTokens(context.Background(), []string{"dead"})
			req.NoError(err)
		}()
	}
	wg.Wait()

	// Then the store never saw two writes at once
	req.Equal(int32(1), maxInFlight.Load())
}
