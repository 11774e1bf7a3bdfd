package core

import "time"

type (
	User struct {
		ID        string    `json:"id"`
		Username  string    `json:"username"`
		Email     string    `json:"email"`
		CreatedAt time.Time `json:"createdAt"`
	}
)

// Identity returns the presence-facing view of the user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Username: u.Username}
}
