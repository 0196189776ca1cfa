package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

// ChatRepo reads and writes chats. Every read is scoped by the owning user.
type ChatRepo interface {
	Create(ctx context.Context, tx *gorm.DB, chat *types.Chat) (*types.Chat, error)
	GetByIDForUser(ctx context.Context, tx *gorm.DB, chatID string, userID uuid.UUID) (*types.Chat, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Chat, error)
	Touch(ctx context.Context, tx *gorm.DB, chatID string) error
}

type chatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatRepo(db *gorm.DB, baseLog *logger.Logger) ChatRepo {
	return &chatRepo{
		db:  db,
		log: baseLog.With("repo", "ChatRepo"),
	}
}

func (cr *chatRepo) Create(ctx context.Context, tx *gorm.DB, chat *types.Chat) (*types.Chat, error) {
	if tx == nil {
		tx = cr.db
	}
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if err := tx.WithContext(ctx).Create(chat).Error; err != nil {
		cr.log.Error("failed to create chat", "error", err)
		return nil, err
	}
	cr.log.Debug("created chat", "chatID", chat.ID, "userID", chat.UserID)
	return chat, nil
}

// GetByIDForUser returns (nil, nil) when the chat is missing or owned by
// someone else. Callers cannot tell the two apart.
func (cr *chatRepo) GetByIDForUser(ctx context.Context, tx *gorm.DB, chatID string, userID uuid.UUID) (*types.Chat, error) {
	if tx == nil {
		tx = cr.db
	}
	var chat types.Chat
	err := tx.WithContext(ctx).
		Where("id = ? AND user_id = ?", chatID, userID).
		First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		cr.log.Error("failed to get chat", "error", err, "chatID", chatID)
		return nil, err
	}
	return &chat, nil
}

func (cr *chatRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Chat, error) {
	if tx == nil {
		tx = cr.db
	}
	var chats []*types.Chat
	if err := tx.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&chats).Error; err != nil {
		cr.log.Error("failed to list chats", "error", err, "userID", userID)
		return nil, err
	}
	return chats, nil
}

func (cr *chatRepo) Touch(ctx context.Context, tx *gorm.DB, chatID string) error {
	if tx == nil {
		tx = cr.db
	}
	if err := tx.WithContext(ctx).
		Model(&types.Chat{}).
		Where("id = ?", chatID).
		Update("updated_at", time.Now().UTC()).Error; err != nil {
		cr.log.Error("failed to touch chat", "error", err, "chatID", chatID)
		return err
	}
	return nil
}
