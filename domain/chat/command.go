package chat

// PostMessageCommand is the inbound intent of a client to publish a message.
type PostMessageCommand struct {
	Sender string `json:"from" validate:"required,max=320"`
	Text   string `json:"text,omitempty" validate:"required_without=Image,max=10000"`
	Image  string `json:"image,omitempty" validate:"omitempty,url"`
}

func (c PostMessageCommand) ToMessage() Message {
	return Message{
		Sender: c.Sender,
		Text:   c.Text,
		Image:  c.Image,
	}
}

// RegisterTokenCommand upserts the push token of a user.
// Email carries the same identity the user joins and posts with.
type RegisterTokenCommand struct {
	Email string `json:"email" validate:"required,max=320"`
	Token string `json:"token" validate:"required,max=4096"`
	Name  string `json:"name,omitempty" validate:"max=128"`
}
