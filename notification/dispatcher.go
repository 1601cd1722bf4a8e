// Package notification turns persisted chat messages into push notifications
// for every other user holding a device token.
package notification

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/domain/push"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/lo"
)

var (
	_ contract.Notifier = (*Dispatcher)(nil)
	_ contract.Notifier = Disabled{}
)

// Dispatcher resolves recipients, sends one multicast request and removes
// the tokens the provider reports as permanently dead.
// Every failure is contained: Dispatch never returns an error.
type Dispatcher struct {
	log           *slog.Logger
	tokenRegistry contract.ITokenRegistry
	provider      contract.PushProvider
	pushTimeout   time.Duration
	telemetryChan chan event.Event
}

func NewDispatcher(log *slog.Logger,
	tokenRegistry contract.ITokenRegistry,
	provider contract.PushProvider,
	pushTimeout time.Duration,
	telemetryChan chan event.Event) *Dispatcher {
	return &Dispatcher{
		log:           log,
		tokenRegistry: tokenRegistry,
		provider:      provider,
		pushTimeout:   pushTimeout,
		telemetryChan: telemetryChan,
	}
}

func (d *Dispatcher) Enabled() bool { return true }

func (d *Dispatcher) Dispatch(ctx context.Context, message chat.Message) {
	tokens, err := d.tokenRegistry.FindRecipientsExcluding(ctx, message.Sender)
	if err != nil {
		d.fail(message, fmt.Errorf("%w: %v", errors.ErrDispatch, err))
		return
	}
	tokens = lo.Uniq(lo.Compact(tokens))
	slices.Sort(tokens)
	if len(tokens) == 0 {
		d.log.Debug("No push recipient", "message_id", message.ID)
		return
	}

	notification := BuildNotification(message, tokens)

	pushCtx, cancel := context.WithTimeout(ctx, d.pushTimeout)
	defer cancel()
	result, err := d.provider.SendMulticast(pushCtx, notification)
	if err != nil {
		// Timeouts land here too: transient, nothing is invalidated
		d.fail(message, fmt.Errorf("%w: %v", errors.ErrDispatch, err))
		return
	}

	d.emit(event.New(event.NotificationSentType, event.NotificationSent{
		MessageID:    message.ID,
		Tokens:       len(tokens),
		SuccessCount: result.SuccessCount,
		FailureCount: result.FailureCount,
	}))
	d.log.Debug("Push sent", "message_id", message.ID, "tokens", len(tokens),
		"success", result.SuccessCount, "failure", result.FailureCount)

	if result.FailureCount == 0 {
		return
	}
	d.reconcile(ctx, message, result)
}

// reconcile removes the permanently failing tokens in a single call.
func (d *Dispatcher) reconcile(ctx context.Context, message chat.Message, result push.MulticastResult) {
	toRemove := result.PermanentFailures()
	if len(toRemove) == 0 {
		return
	}
	cleared, err := d.tokenRegistry.InvalidateTokens(ctx, toRemove)
	if err != nil {
		d.log.Error("Invalid tokens not removed", "message_id", message.ID, "error", err)
		return
	}
	d.emit(event.New(event.TokensInvalidatedType, event.TokensInvalidated{
		MessageID: message.ID,
		Requested: len(toRemove),
		Cleared:   cleared,
	}))
}

func (d *Dispatcher) fail(message chat.Message, err error) {
	d.log.Warn("Push dispatch failed", "message_id", message.ID, "error", err)
	d.emit(event.New(event.DispatchFailedType, event.DispatchFailed{
		MessageID: message.ID,
		Reason:    err.Error(),
	}))
}

func (d *Dispatcher) emit(evt event.Event) {
	if d.telemetryChan == nil {
		return
	}
	select {
	case d.telemetryChan <- evt:
	default:
		d.log.Debug("Observability telemetry event lost")
	}
}

// BuildNotification shapes the multicast request for a message.
// The body is the text cut to push.MaxBodyLength runes, or a placeholder
// for image-only messages.
func BuildNotification(message chat.Message, tokens []string) push.Notification {
	body := push.ImagePlaceholderBody
	if message.Text != "" {
		body = truncate(message.Text, push.MaxBodyLength)
	}
	return push.Notification{
		Title: message.Sender,
		Body:  body,
		Data: map[string]string{
			"type":      push.DataTypeChat,
			"sender":    message.Sender,
			"messageId": message.ID,
		},
		Tokens: tokens,
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// Disabled is used when no push credentials are configured.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Dispatch(context.Context, chat.Message) {}
