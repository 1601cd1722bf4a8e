package websocket

import (
	"chat-relay/errors"
	stderrors "errors"
)

// clientMessage hides storage details from clients.
func clientMessage(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrValidation):
		return err.Error()
	case stderrors.Is(err, errors.ErrMessageNotFound):
		return "message not found"
	default:
		return "server error"
	}
}
