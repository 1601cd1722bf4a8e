// Package fcm sends push notifications through Firebase Cloud Messaging.
package fcm

import (
	"chat-relay/contract"
	"chat-relay/domain/push"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

var _ contract.PushProvider = (*Provider)(nil)

// MulticastClient is the subset of the messaging client the provider needs.
type MulticastClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Provider struct {
	log    *slog.Logger
	client MulticastClient
}

type serviceAccount struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// New builds a provider from a service-account JSON document.
// Malformed or incomplete credentials are rejected before reaching Firebase.
func New(ctx context.Context, log *slog.Logger, credentialsJSON []byte) (*Provider, error) {
	var account serviceAccount
	if err := json.Unmarshal(credentialsJSON, &account); err != nil {
		return nil, fmt.Errorf("invalid service account: %w", err)
	}
	if account.ProjectID == "" || account.ClientEmail == "" || account.PrivateKey == "" {
		return nil, stderrors.New("invalid service account: project_id, client_email and private_key are required")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: account.ProjectID}, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	log.Info("Firebase push provider ready", "project_id", account.ProjectID)
	return NewWithClient(log, client), nil
}

func NewWithClient(log *slog.Logger, client MulticastClient) *Provider {
	return &Provider{log: log, client: client}
}

// SendMulticast sends one request for every token of the notification.
// Results keep the order of notification.Tokens.
func (p *Provider) SendMulticast(ctx context.Context, notification push.Notification) (push.MulticastResult, error) {
	response, err := p.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: notification.Tokens,
		Data:   notification.Data,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
	})
	if err != nil {
		return push.MulticastResult{}, err
	}
	return toMulticastResult(notification.Tokens, response), nil
}

func toMulticastResult(tokens []string, response *messaging.BatchResponse) push.MulticastResult {
	res := push.MulticastResult{
		SuccessCount: response.SuccessCount,
		FailureCount: response.FailureCount,
		Results:      make([]push.TokenResult, 0, len(response.Responses)),
	}
	for i, r := range response.Responses {
		if i >= len(tokens) {
			break
		}
		tr := push.TokenResult{Token: tokens[i], Success: r.Success}
		if !r.Success {
			tr.ErrorCode = ErrorCode(r.Error)
		}
		res.Results = append(res.Results, tr)
	}
	return res
}

// ErrorCode maps a per-token Firebase error to a provider-neutral code.
func ErrorCode(err error) push.ErrorCode {
	switch {
	case err == nil:
		return push.ErrorUnknown
	case messaging.IsUnregistered(err):
		return push.ErrorNotRegistered
	case messaging.IsInvalidArgument(err):
		return push.ErrorInvalidToken
	case messaging.IsSenderIDMismatch(err):
		// The token belongs to another sender: our credentials are wrong, not the token
		return push.ErrorMismatchedCreds
	case messaging.IsQuotaExceeded(err):
		return push.ErrorRateLimited
	case messaging.IsUnavailable(err), stderrors.Is(err, context.DeadlineExceeded):
		return push.ErrorUnavailable
	case messaging.IsInternal(err):
		return push.ErrorInternal
	default:
		return push.ErrorUnknown
	}
}
