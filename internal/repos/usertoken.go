package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

type UserTokenRepo interface {
	// CREATE
	Create(ctx context.Context, tx *gorm.DB, userTokens []*types.UserToken) ([]*types.UserToken, error)

	// READ
	GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.UserToken, error)
	GetByAccessTokens(ctx context.Context, tx *gorm.DB, accessTokens []string) ([]*types.UserToken, error)
	GetByRefreshTokens(ctx context.Context, tx *gorm.DB, refreshTokens []string) ([]*types.UserToken, error)

	// FULL (HARD) DELETE
	FullDeleteByTokens(ctx context.Context, tx *gorm.DB, userTokens []*types.UserToken) error
	FullDeleteByIDs(ctx context.Context, tx *gorm.DB, tokenIDs []uuid.UUID) error
}

type userTokenRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserTokenRepo(db *gorm.DB, baseLog *logger.Logger) UserTokenRepo {
	repoLog := baseLog.With("repo", "UserTokenRepo")
	return &userTokenRepo{db: db, log: repoLog}
}

func (utr *userTokenRepo) Create(ctx context.Context, tx *gorm.DB, userTokens []*types.UserToken) ([]*types.UserToken, error) {
	transaction := tx
	if transaction == nil {
		transaction = utr.db
	}
	if len(userTokens) == 0 {
		return []*types.UserToken{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&userTokens).Error; err != nil {
		utr.log.Error("Failed to create userTokens", "error", err)
		return nil, err
	}
	utr.log.Debug("Created userTokens", "count", len(userTokens))
	return userTokens, nil
}

func (utr *userTokenRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.UserToken, error) {
	return utr.findWhere(ctx, tx, "user_id IN ?", userIDs, len(userIDs))
}

func (utr *userTokenRepo) GetByAccessTokens(ctx context.Context, tx *gorm.DB, accessTokens []string) ([]*types.UserToken, error) {
	return utr.findWhere(ctx, tx, "access_token IN ?", accessTokens, len(accessTokens))
}

func (utr *userTokenRepo) GetByRefreshTokens(ctx context.Context, tx *gorm.DB, refreshTokens []string) ([]*types.UserToken, error) {
	return utr.findWhere(ctx, tx, "refresh_token IN ?", refreshTokens, len(refreshTokens))
}

func (utr *userTokenRepo) findWhere(ctx context.Context, tx *gorm.DB, query string, arg interface{}, n int) ([]*types.UserToken, error) {
	transaction := tx
	if transaction == nil {
		transaction = utr.db
	}
	var results []*types.UserToken
	if n == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where(query, arg).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		utr.log.Error("Failed to fetch userTokens", "error", err, "query", query)
		return nil, err
	}
	return results, nil
}

func (utr *userTokenRepo) FullDeleteByTokens(ctx context.Context, tx *gorm.DB, userTokens []*types.UserToken) error {
	if len(userTokens) == 0 {
		return nil
	}
	var tokenIDs []uuid.UUID
	for _, t := range userTokens {
		if t != nil {
			tokenIDs = append(tokenIDs, t.ID)
		}
	}
	return utr.FullDeleteByIDs(ctx, tx, tokenIDs)
}

func (utr *userTokenRepo) FullDeleteByIDs(ctx context.Context, tx *gorm.DB, tokenIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = utr.db
	}
	if len(tokenIDs) == 0 {
		return nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", tokenIDs).
		Delete(&types.UserToken{}).Error; err != nil {
		utr.log.Error("Failed to full delete userTokens by IDs", "error", err)
		return err
	}
	utr.log.Debug("Full deleted userTokens", "count", len(tokenIDs))
	return nil
}
