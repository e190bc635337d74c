package utils

import (
	"errors"
	"fmt"

	"github.com/3Eeeecho/go-stackdash/internal/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// bcrypt 只使用前 72 字节，超出部分会被静默截断
const maxPasswordBytes = 72

var ErrPasswordTooLong = fmt.Errorf("password exceeds %d bytes", maxPasswordBytes)

func HashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("Error hashing password", zap.Error(err))
		return "", err
	}
	return string(hash), nil
}

// CheckPasswordHash 密码不匹配是正常结果，只有哈希本身损坏才记录日志
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true
	}
	if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		logger.Warn("Stored password hash is unusable", zap.Error(err))
	}
	return false
}
