package handlers

import (
	"fmt"

	"github.com/3Eeeecho/go-stackdash/internal/models"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators 注册自定义校验规则，需在路由初始化前调用
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return v.RegisterValidation("storage_tier", func(fl validator.FieldLevel) bool {
		return models.StorageTier(fl.Field().String()).Valid()
	})
}
