package socket

import (
	"fmt"

	"github.com/google/uuid"
)

type InboundMessage struct {
	Action  string `json:"action,omitempty"`
	Channel string `json:"channel,omitempty"`
}

type Message struct {
	Channel string      `json:"channel"`
	Action  string      `json:"action,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Origin  string      `json:"origin,omitempty"`
}

// UserChannel is the channel every connection of a user is subscribed to.
func UserChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s", userID)
}
