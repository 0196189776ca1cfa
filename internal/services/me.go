package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/repos"
	"github.com/PabloG6/medscan-intellibus/internal/requestdata"
	"github.com/PabloG6/medscan-intellibus/internal/types"
)

type MeService interface {
	GetMe(ctx context.Context) (*types.User, error)
}

type meService struct {
	log      *logger.Logger
	userRepo repos.UserRepo
}

func NewMeService(log *logger.Logger, userRepo repos.UserRepo) MeService {
	serviceLog := log.With("service", "MeService")
	return &meService{
		log:      serviceLog,
		userRepo: userRepo,
	}
}

func (ms *meService) GetMe(ctx context.Context) (*types.User, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		ms.log.Warn("User ID not set in Request Data.")
		return nil, ErrUnauthorized
	}
	found, err := ms.userRepo.GetByIDs(ctx, nil, []uuid.UUID{rd.UserID})
	if err != nil {
		return nil, fmt.Errorf("error fetching user: %w", err)
	}
	if len(found) == 0 {
		return nil, ErrUnauthorized
	}
	return found[0], nil
}
