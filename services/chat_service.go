package services

import (
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/runtime"
	"context"
	"strings"
)

// IChatService is what the transports see of the relay.
type IChatService interface {
	Connect(sink contract.EventSink) chat.SessionID
	Join(sessionID chat.SessionID, userID string) error
	Disconnect(sessionID chat.SessionID)
	PostMessage(ctx context.Context, cmd chat.PostMessageCommand) (chat.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	GetMessages(ctx context.Context, limit int) ([]chat.Message, error)
	RegisterToken(ctx context.Context, cmd chat.RegisterTokenCommand) (chat.User, error)
	GetUsers(ctx context.Context) ([]chat.User, error)
}

var _ IChatService = (*ChatService)(nil)

type ChatService struct {
	relay *runtime.Relay
}

func NewChatService(relay *runtime.Relay) *ChatService {
	return &ChatService{relay: relay}
}

func (s *ChatService) Connect(sink contract.EventSink) chat.SessionID {
	return s.relay.Connect(sink)
}

func (s *ChatService) Join(sessionID chat.SessionID, userID string) error {
	return s.relay.Join(sessionID, strings.TrimSpace(userID))
}

func (s *ChatService) Disconnect(sessionID chat.SessionID) {
	s.relay.Disconnect(sessionID)
}

// PostMessage validates the command before handing it to the relay.
// The text itself is forwarded verbatim.
func (s *ChatService) PostMessage(ctx context.Context, cmd chat.PostMessageCommand) (chat.Message, error) {
	if err := ValidatePostMessage(cmd); err != nil {
		return chat.Message{}, err
	}
	cmd.Sender = strings.TrimSpace(cmd.Sender)
	cmd.Image = strings.TrimSpace(cmd.Image)
	return s.relay.Submit(ctx, cmd)
}

func (s *ChatService) DeleteMessage(ctx context.Context, id string) error {
	return s.relay.Delete(ctx, strings.TrimSpace(id))
}

func (s *ChatService) GetMessages(ctx context.Context, limit int) ([]chat.Message, error) {
	return s.relay.History(ctx, limit)
}

func (s *ChatService) RegisterToken(ctx context.Context, cmd chat.RegisterTokenCommand) (chat.User, error) {
	if err := ValidateRegisterToken(cmd); err != nil {
		return chat.User{}, err
	}
	return s.relay.RegisterToken(ctx, cmd)
}

func (s *ChatService) GetUsers(ctx context.Context) ([]chat.User, error) {
	return s.relay.Users(ctx)
}
