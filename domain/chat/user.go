package chat

import "time"

// User owns at most one push token.
// An empty Token means the user currently receives no push notification.
type User struct {
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Token     string    `json:"fcmToken,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u User) HasToken() bool {
	return u.Token != ""
}
