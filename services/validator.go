package services

import (
	"chat-relay/domain/chat"
	"chat-relay/errors"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidatePostMessage rejects messages without sender, or with neither text nor image.
func ValidatePostMessage(cmd chat.PostMessageCommand) error {
	cmd.Sender = strings.TrimSpace(cmd.Sender)
	cmd.Text = strings.TrimSpace(cmd.Text)
	cmd.Image = strings.TrimSpace(cmd.Image)
	return check(cmd)
}

func ValidateRegisterToken(cmd chat.RegisterTokenCommand) error {
	cmd.Email = strings.TrimSpace(cmd.Email)
	cmd.Token = strings.TrimSpace(cmd.Token)
	return check(cmd)
}

func check(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !stderrors.As(err, &fieldErrors) {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	reasons := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		reasons = append(reasons, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", errors.ErrValidation, strings.Join(reasons, ", "))
}
