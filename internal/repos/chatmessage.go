package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

type ChatMessageRepo interface {
	// Insert writes messages in order and skips any whose (chat_id, id) already
	// exists. It returns how many rows were actually written.
	Insert(ctx context.Context, tx *gorm.DB, msgs []*types.ChatMessage) (int64, error)
	GetByChatID(ctx context.Context, tx *gorm.DB, chatID string) ([]*types.ChatMessage, error)
	GetByID(ctx context.Context, tx *gorm.DB, chatID, messageID string) (*types.ChatMessage, error)
	UpdateAnnotations(ctx context.Context, tx *gorm.DB, chatID, messageID string, metadata *types.MessageMetadata, attachments []types.Attachment) (int64, error)
}

type chatMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatMessageRepo(db *gorm.DB, baseLog *logger.Logger) ChatMessageRepo {
	return &chatMessageRepo{
		db:  db,
		log: baseLog.With("repo", "ChatMessageRepo"),
	}
}

func (cmr *chatMessageRepo) Insert(ctx context.Context, tx *gorm.DB, msgs []*types.ChatMessage) (int64, error) {
	if tx == nil {
		tx = cmr.db
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	base := time.Now().UTC()
	for i, m := range msgs {
		if m.InsertedAt.IsZero() {
			m.InsertedAt = base.Add(time.Duration(i) * time.Microsecond)
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = m.InsertedAt
		}
		if m.Parts.Data() == nil {
			m.Parts = datatypes.NewJSONType([]types.MessagePart{})
		}
		if m.Attachments.Data() == nil {
			m.Attachments = datatypes.NewJSONType([]types.Attachment{})
		}
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}, {Name: "id"}},
			DoNothing: true,
		}).
		Create(&msgs)
	if res.Error != nil {
		cmr.log.Error("failed to insert chat messages", "error", res.Error)
		return 0, res.Error
	}
	if skipped := int64(len(msgs)) - res.RowsAffected; skipped > 0 {
		cmr.log.Debug("skipped chat messages already stored", "skipped", skipped)
	}
	return res.RowsAffected, nil
}

// GetByChatID returns the transcript in append order. created_at is client
// supplied and only breaks ties.
func (cmr *chatMessageRepo) GetByChatID(ctx context.Context, tx *gorm.DB, chatID string) ([]*types.ChatMessage, error) {
	if tx == nil {
		tx = cmr.db
	}
	var msgs []*types.ChatMessage
	if err := tx.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("inserted_at ASC").
		Order("created_at ASC").
		Find(&msgs).Error; err != nil {
		cmr.log.Error("failed to get chat messages by chatID", "error", err)
		return nil, err
	}
	return msgs, nil
}

func (cmr *chatMessageRepo) GetByID(ctx context.Context, tx *gorm.DB, chatID, messageID string) (*types.ChatMessage, error) {
	if tx == nil {
		tx = cmr.db
	}
	var msg types.ChatMessage
	err := tx.WithContext(ctx).
		Where("chat_id = ? AND id = ?", chatID, messageID).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		cmr.log.Error("failed to get chat message", "error", err, "chatID", chatID, "messageID", messageID)
		return nil, err
	}
	return &msg, nil
}

// UpdateAnnotations replaces metadata and attachments only. A nil metadata is
// stored as JSON null and nil attachments as an empty list.
func (cmr *chatMessageRepo) UpdateAnnotations(ctx context.Context, tx *gorm.DB, chatID, messageID string, metadata *types.MessageMetadata, attachments []types.Attachment) (int64, error) {
	if tx == nil {
		tx = cmr.db
	}
	if attachments == nil {
		attachments = []types.Attachment{}
	}
	res := tx.WithContext(ctx).
		Model(&types.ChatMessage{}).
		Where("chat_id = ? AND id = ?", chatID, messageID).
		Updates(map[string]interface{}{
			"metadata":    datatypes.NewJSONType(metadata),
			"attachments": datatypes.NewJSONType(attachments),
		})
	if res.Error != nil {
		cmr.log.Error("failed to update chat message annotations", "error", res.Error)
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
