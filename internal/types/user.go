package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email           string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Password        string    `gorm:"not null;column:password" json:"-"`
	FirstName       string    `gorm:"not null;column:first_name" json:"firstName"`
	LastName        string    `gorm:"not null;column:last_name" json:"lastName"`
	AvatarBucketKey string    `gorm:"column:avatar_bucket_key" json:"avatarBucketKey"`
	AvatarURL       string    `gorm:"column:avatar_url" json:"avatarURL"`

	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

func (User) TableName() string {
	return "user"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
