package notification_test

import (
	"chat-relay/domain/chat"
	"chat-relay/domain/push"
	"chat-relay/infrastructure/storage"
	"chat-relay/mocks"
	"chat-relay/notification"
	"chat-relay/runtime"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestDispatcher_Dead_Token_Is_Not_Targeted_Again(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	req.NoError(err)
	defer db.Close()

	ctrl := gomock.NewController(t)
	provider := mocks.NewMockPushProvider(ctrl)
	tokens := runtime.NewTokenRegistry(log, storage.NewUserRepository(db, log))
	dispatcher := notification.NewDispatcher(log, tokens, provider, time.Second, nil)

	// Given A, B and C registered their devices
	for email, token := range map[string]string{"a@x.io": "tA", "b@x.io": "tB", "c@x.io": "tC"} {
		_, err := tokens.Upsert(ctx, email, token, "")
		req.NoError(err)
	}

	// When the provider reports tB as not registered
	first := provider.EXPECT().SendMulticast(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n push.Notification) (push.MulticastResult, error) {
			req.Equal([]string{"tB", "tC"}, n.Tokens)
			return push.MulticastResult{SuccessCount: 1, FailureCount: 1, Results: []push.TokenResult{
				{Token: "tB", ErrorCode: push.ErrorNotRegistered},
				{Token: "tC", Success: true},
			}}, nil
		})
	dispatcher.Dispatch(ctx, chat.Message{ID: "m1", Sender: "a@x.io", Text: "hi"})

	// Then the next dispatch only targets tC
	provider.EXPECT().SendMulticast(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n push.Notification) (push.MulticastResult, error) {
			req.Equal([]string{"tC"}, n.Tokens)
			return push.MulticastResult{SuccessCount: 1}, nil
		}).After(first)
	dispatcher.Dispatch(ctx, chat.Message{ID: "m2", Sender: "a@x.io", Text: "again"})

	// And B no longer holds a token
	users, err := tokens.Users(ctx)
	req.NoError(err)
	for _, u := range users {
		if u.Email == "b@x.io" {
			req.False(u.HasToken())
		}
	}
}
