package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

type UserRepo interface {
	// CREATE
	Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error)

	// READ
	GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.User, error)
	GetByEmails(ctx context.Context, tx *gorm.DB, userEmails []string) ([]*types.User, error)
	EmailExists(ctx context.Context, tx *gorm.DB, userEmail string) (bool, error)

	// UPDATE
	UpdateAvatar(ctx context.Context, tx *gorm.DB, userID uuid.UUID, bucketKey, url string) error
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	repoLog := baseLog.With("repo", "UserRepo")
	return &userRepo{db: db, log: repoLog}
}

func (ur *userRepo) Create(ctx context.Context, tx *gorm.DB, users []*types.User) ([]*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	if len(users) == 0 {
		ur.log.Debug("Users array is empty, returning empty slice")
		return []*types.User{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&users).Error; err != nil {
		ur.log.Error("Failed to create users", "error", err)
		return nil, err
	}
	ur.log.Info("Successfully created users", "count", len(users))
	return users, nil
}

func (ur *userRepo) GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	var results []*types.User
	if len(userIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", userIDs).
		Find(&results).Error; err != nil {
		ur.log.Error("Failed to fetch users by IDs", "error", err)
		return nil, err
	}
	ur.log.Debug("Fetched users by IDs", "count", len(results))
	return results, nil
}

func (ur *userRepo) GetByEmails(ctx context.Context, tx *gorm.DB, userEmails []string) ([]*types.User, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	var results []*types.User
	if len(userEmails) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("email IN ?", userEmails).
		Find(&results).Error; err != nil {
		ur.log.Error("Failed to fetch users by emails", "error", err)
		return nil, err
	}
	ur.log.Debug("Fetched users by emails", "count", len(results))
	return results, nil
}

func (ur *userRepo) EmailExists(ctx context.Context, tx *gorm.DB, userEmail string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.User{}).
		Where("email = ?", userEmail).
		Count(&count).Error; err != nil {
		ur.log.Error("Failed to count users by email", "error", err)
		return false, err
	}
	return count > 0, nil
}

func (ur *userRepo) UpdateAvatar(ctx context.Context, tx *gorm.DB, userID uuid.UUID, bucketKey, url string) error {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	if err := transaction.WithContext(ctx).
		Model(&types.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"avatar_bucket_key": bucketKey,
			"avatar_url":        url,
		}).Error; err != nil {
		ur.log.Error("Failed to update user avatar", "error", err, "userID", userID)
		return err
	}
	return nil
}
