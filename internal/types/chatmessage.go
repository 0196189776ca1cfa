package types

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one persisted turn. The composite key (chat_id, id) makes a
// message id unique within its chat, so a replayed insert is a no-op.
//
// Only Metadata and Attachments change after insert.
type ChatMessage struct {
	ChatID string `gorm:"type:varchar(64);primaryKey;index:idx_chat_messages_order,priority:1;column:chat_id"`
	ID     string `gorm:"type:varchar(128);primaryKey;column:id"`
	Chat   *Chat  `gorm:"constraint:OnDelete:CASCADE;foreignKey:ChatID;references:ID"`

	Role        string                               `gorm:"type:varchar(16);not null;column:role"`
	Parts       datatypes.JSONType[[]MessagePart]    `gorm:"not null;column:parts"`
	Attachments datatypes.JSONType[[]Attachment]     `gorm:"not null;column:attachments"`
	Metadata    datatypes.JSONType[*MessageMetadata] `gorm:"not null;column:metadata"`

	// CreatedAt is for display. InsertedAt is the server append time and
	// defines transcript order.
	CreatedAt  time.Time `gorm:"not null;index:idx_chat_messages_order,priority:3;column:created_at"`
	InsertedAt time.Time `gorm:"not null;index:idx_chat_messages_order,priority:2;column:inserted_at"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
