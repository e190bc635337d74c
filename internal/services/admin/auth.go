package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/3Eeeecho/go-stackdash/internal/config"
	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/utils"
	"github.com/3Eeeecho/go-stackdash/internal/pkg/xerr"
	"github.com/3Eeeecho/go-stackdash/internal/repositories"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AuthService interface {
	RegisterUser(ctx context.Context, username, password, email string) (*models.User, error)
	LoginUser(ctx context.Context, identifier, password string) (string, error)
}

type authService struct {
	userRepo repositories.UserRepository
	jwtCfg   config.JWTConfig
}

// 确保authService实现了AuthService的方法
var _ AuthService = (*authService)(nil)

func NewAuthService(userRepo repositories.UserRepository, jwtCfg config.JWTConfig) AuthService {
	return &authService{
		userRepo: userRepo,
		jwtCfg:   jwtCfg,
	}
}

// RegisterUser 新用户默认是普通角色和 FREE 档位，配额记录在首次查询时懒创建
func (s *authService) RegisterUser(ctx context.Context, username, password, email string) (*models.User, error) {
	existing, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %w", xerr.ErrDatabaseError, err)
	}
	if existing != nil {
		return nil, xerr.ErrUserAlreadyExists
	}

	existing, err = s.userRepo.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %w", xerr.ErrDatabaseError, err)
	}
	if existing != nil {
		return nil, xerr.ErrEmailAlreadyExists
	}

	hashed, err := utils.HashPassword(password)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		return nil, fmt.Errorf("%w: %w", xerr.ErrInvalidParams, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: hashed,
		Email:        email,
		Role:         models.RoleUser,
		StorageTier:  models.TierFree,
		Status:       1,
	}
	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("%w: %w", xerr.ErrDatabaseError, err)
	}

	logger.Info("User registered successfully", zap.Uint64("userID", user.ID), zap.String("username", user.Username))
	return user, nil
}

// LoginUser identifier 可以是用户名或邮箱
func (s *authService) LoginUser(ctx context.Context, identifier, password string) (string, error) {
	user, err := s.userRepo.GetUserByUsername(ctx, identifier)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user, err = s.userRepo.GetUserByEmail(ctx, identifier)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", xerr.ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", xerr.ErrDatabaseError, err)
	}

	if !utils.CheckPasswordHash(password, user.PasswordHash) {
		logger.Info("Login rejected", zap.String("identifier", identifier))
		return "", xerr.ErrInvalidCredentials
	}

	token, err := utils.GenerateToken(
		user.ID,
		user.Username,
		user.Role,
		s.jwtCfg.SecretKey,
		s.jwtCfg.Issuer,
		s.jwtCfg.ExpiresIn,
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}
