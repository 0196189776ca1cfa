package types

import (
	"time"

	"github.com/google/uuid"
)

// Chat is a diagnostic conversation owned by exactly one user. Every lookup is
// filtered by (id, user_id).
type Chat struct {
	ID          string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;index;not null" json:"userId"`
	User        *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
	Title       string    `gorm:"column:title;not null" json:"title"`
	Description string    `gorm:"column:description" json:"description,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updatedAt"`
}

func (Chat) TableName() string {
	return "chats"
}
