package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/repos"
	"github.com/PabloG6/medscan-intellibus/internal/requestdata"
	"github.com/PabloG6/medscan-intellibus/internal/types"
	"github.com/PabloG6/medscan-intellibus/internal/utils"
)

type JWTClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

type AuthService interface {
	RegisterUser(ctx context.Context, user *types.User) error
	Login(ctx context.Context, email, password string) (string, string, error)
	Refresh(ctx context.Context, refreshToken string) (string, string, error)
	Logout(ctx context.Context) error

	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)

	GetAccessTTL() time.Duration
}

type authService struct {
	db            *gorm.DB
	log           *logger.Logger
	userRepo      repos.UserRepo
	userTokenRepo repos.UserTokenRepo
	avatarService AvatarService
	emailService  EmailService
	jwtSecretKey  string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewAuthService wires the account flows. avatarService and emailService may be
// nil; registration then skips those side effects.
func NewAuthService(
	db *gorm.DB,
	log *logger.Logger,
	userRepo repos.UserRepo,
	userTokenRepo repos.UserTokenRepo,
	avatarService AvatarService,
	emailService EmailService,
	jwtSecretKey string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) AuthService {
	serviceLog := log.With("service", "AuthService")
	return &authService{
		db:            db,
		log:           serviceLog,
		userRepo:      userRepo,
		userTokenRepo: userTokenRepo,
		avatarService: avatarService,
		emailService:  emailService,
		jwtSecretKey:  jwtSecretKey,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (as *authService) RegisterUser(ctx context.Context, user *types.User) error {
	//1) Normalize User Fields
	user.Email = utils.NormalizeEmail(user.Email)
	user.FirstName = utils.NormalizeName(user.FirstName)
	user.LastName = utils.NormalizeName(user.LastName)

	//2) Checks on user fields
	if err := utils.ValidateRegistration(user.Email, user.Password, user.FirstName, user.LastName); err != nil {
		as.log.Warn("Registration input rejected", "error", err)
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	exists, err := as.userRepo.EmailExists(ctx, nil, user.Email)
	if err != nil {
		return fmt.Errorf("failed checking email existence: %w", err)
	}
	if exists {
		return ErrEmailTaken
	}

	//3) Hash Password
	hash, err := utils.HashPassword(user.Password)
	if err != nil {
		return err
	}
	user.Password = hash
	user.ID = uuid.New()

	//4) Avatar, best effort
	if as.avatarService != nil {
		if err := as.avatarService.CreateAndUploadUserAvatar(ctx, user); err != nil {
			as.log.Warn("Failed to create user avatar, continuing without one", "error", err)
		}
	}

	//5) Create Final User
	if _, err := as.userRepo.Create(ctx, nil, []*types.User{user}); err != nil {
		as.log.Warn("Failed to create user", "error", err)
		return fmt.Errorf("failed to create user: %w", err)
	}

	//6) Welcome email, best effort
	if as.emailService != nil {
		if err := as.emailService.SendWelcomeEmail(ctx, user); err != nil {
			as.log.Warn("Failed to send welcome email", "error", err, "userID", user.ID)
		}
	}
	as.log.Info("Registered user", "userID", user.ID)
	return nil
}

func (as *authService) Login(ctx context.Context, userEmail, userPassword string) (string, string, error) {
	email := utils.NormalizeEmail(userEmail)
	if email == "" || userPassword == "" {
		return "", "", ErrInvalidCredentials
	}
	users, err := as.userRepo.GetByEmails(ctx, nil, []string{email})
	if err != nil {
		return "", "", fmt.Errorf("error retrieving user by email: %w", err)
	}
	if len(users) == 0 {
		as.log.Debug("Login for unknown email")
		return "", "", ErrInvalidCredentials
	}
	user := users[0]
	if !utils.CheckPassword(user.Password, userPassword) {
		as.log.Debug("Login with wrong password", "userID", user.ID)
		return "", "", ErrInvalidCredentials
	}

	var accessToken, refreshToken string
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := as.pruneExpiredTokens(ctx, tx, user.ID); err != nil {
			return err
		}
		var iErr error
		accessToken, refreshToken, iErr = as.issueTokens(ctx, tx, user)
		return iErr
	})
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// Refresh rotates a refresh token: the old pair is deleted and a new pair issued.
func (as *authService) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	if refreshToken == "" {
		return "", "", ErrUnauthorized
	}
	var accessToken, newRefreshToken string
	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := as.userTokenRepo.GetByRefreshTokens(ctx, tx, []string{refreshToken})
		if err != nil {
			return fmt.Errorf("error fetching refresh token: %w", err)
		}
		if len(found) == 0 {
			return ErrUnauthorized
		}
		existing := found[0]
		if existing.ExpiresAt.Before(time.Now()) {
			if err := as.userTokenRepo.FullDeleteByTokens(ctx, tx, []*types.UserToken{existing}); err != nil {
				return fmt.Errorf("refresh token expired, error deleting: %w", err)
			}
			return ErrTokenExpired
		}
		users, err := as.userRepo.GetByIDs(ctx, tx, []uuid.UUID{existing.UserID})
		if err != nil {
			return fmt.Errorf("failed to load user for refresh: %w", err)
		}
		if len(users) == 0 {
			return ErrUnauthorized
		}
		if err := as.userTokenRepo.FullDeleteByTokens(ctx, tx, []*types.UserToken{existing}); err != nil {
			return fmt.Errorf("failed to remove old refresh token: %w", err)
		}
		accessToken, newRefreshToken, err = as.issueTokens(ctx, tx, users[0])
		return err
	})
	if err != nil {
		as.log.Warn("Refresh failed", "error", err)
		return "", "", err
	}
	return accessToken, newRefreshToken, nil
}

func (as *authService) Logout(ctx context.Context) error {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.TokenString == "" {
		return ErrUnauthorized
	}
	found, err := as.userTokenRepo.GetByAccessTokens(ctx, nil, []string{rd.TokenString})
	if err != nil {
		return fmt.Errorf("error finding user token: %w", err)
	}
	if len(found) == 0 {
		return nil
	}
	if err := as.userTokenRepo.FullDeleteByTokens(ctx, nil, found); err != nil {
		return fmt.Errorf("error deleting user token: %w", err)
	}
	return nil
}

// SetContextFromToken validates an access token and stores the resolved user in
// the returned context. Tokens removed by logout are rejected even before expiry.
func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(as.jwtSecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ctx, ErrTokenExpired
		}
		return ctx, fmt.Errorf("%w: %s", ErrUnauthorized, err.Error())
	}
	if !token.Valid {
		return ctx, ErrUnauthorized
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return ctx, ErrUnauthorized
	}
	found, err := as.userTokenRepo.GetByAccessTokens(ctx, nil, []string{tokenString})
	if err != nil {
		return ctx, fmt.Errorf("failed to look up access token: %w", err)
	}
	if len(found) == 0 || found[0].UserID != userID {
		return ctx, ErrUnauthorized
	}
	return requestdata.WithRequestData(ctx, &requestdata.RequestData{
		TokenString: tokenString,
		UserID:      userID,
	}), nil
}

func (as *authService) GetAccessTTL() time.Duration {
	return as.accessTTL
}

func (as *authService) pruneExpiredTokens(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	tokens, err := as.userTokenRepo.GetByUserIDs(ctx, tx, []uuid.UUID{userID})
	if err != nil {
		return fmt.Errorf("failed to load user tokens: %w", err)
	}
	var expired []*types.UserToken
	now := time.Now()
	for _, t := range tokens {
		if t.ExpiresAt.Before(now) {
			expired = append(expired, t)
		}
	}
	return as.userTokenRepo.FullDeleteByTokens(ctx, tx, expired)
}

func (as *authService) issueTokens(ctx context.Context, tx *gorm.DB, user *types.User) (string, string, error) {
	accessToken, err := as.generateAccessToken(user)
	if err != nil {
		return "", "", fmt.Errorf("generate access token: %w", err)
	}
	refreshToken := uuid.NewString()
	userToken := &types.UserToken{
		UserID:       user.ID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(as.refreshTTL),
	}
	if _, err := as.userTokenRepo.Create(ctx, tx, []*types.UserToken{userToken}); err != nil {
		return "", "", fmt.Errorf("create user token: %w", err)
	}
	return accessToken, refreshToken, nil
}

func (as *authService) generateAccessToken(user *types.User) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email: user.Email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(as.jwtSecretKey))
}
