package chat

import "time"

// Session captures a conversation hosted by the agent server.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
