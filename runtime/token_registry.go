package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
)

var _ contract.ITokenRegistry = (*TokenRegistry)(nil)

// TokenRegistry maps a user identity to its current push token.
// Upserts and invalidations are serialized by mu. The store is local,
// so the lock never spans network I/O.
type TokenRegistry struct {
	mu         sync.Mutex
	log        *slog.Logger
	repository contract.IUserRepository
}

func NewTokenRegistry(log *slog.Logger, repository contract.IUserRepository) *TokenRegistry {
	return &TokenRegistry{log: log, repository: repository}
}

// Upsert creates or refreshes the token of a user. Repeated calls converge.
func (t *TokenRegistry) Upsert(ctx context.Context, email, token, name string) (chat.User, error) {
	email = strings.TrimSpace(email)
	token = strings.TrimSpace(token)
	if email == "" || token == "" {
		return chat.User{}, fmt.Errorf("%w: email and token required", errors.ErrValidation)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	user, err := t.repository.Upsert(ctx, email, token, strings.TrimSpace(name))
	if err != nil {
		return chat.User{}, fmt.Errorf("%w: upsert token: %v", errors.ErrPersistence, err)
	}
	return user, nil
}

// FindRecipientsExcluding returns the de-duplicated tokens of every user but email.
func (t *TokenRegistry) FindRecipientsExcluding(ctx context.Context, email string) ([]string, error) {
	holders, err := t.repository.ListTokenHolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list token holders: %v", errors.ErrPersistence, err)
	}
	tokens := lo.FilterMap(holders, func(u chat.User, _ int) (string, bool) {
		return u.Token, u.Email != email && u.Token != ""
	})
	tokens = lo.Uniq(tokens)
	slices.Sort(tokens)
	return tokens, nil
}

// InvalidateTokens clears every user holding one of tokens.
// Tokens held by nobody are ignored.
func (t *TokenRegistry) InvalidateTokens(ctx context.Context, tokens []string) (int, error) {
	tokens = lo.Uniq(lo.Compact(tokens))
	if len(tokens) == 0 {
		return 0, nil
	}
	t.mu.Lock()
	cleared, err := t.repository.ClearTokens(ctx, tokens)
	t.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("%w: clear tokens: %v", errors.ErrPersistence, err)
	}
	t.log.Info("Removed invalid tokens", "requested", len(tokens), "cleared", cleared)
	return cleared, nil
}

func (t *TokenRegistry) Users(ctx context.Context) ([]chat.User, error) {
	users, err := t.repository.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %v", errors.ErrPersistence, err)
	}
	return users, nil
}
