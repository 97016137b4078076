package helpers

import (
	"context"
	"fmt"

	"github.com/denmor86/loyalty-engine/internal/logger"
	"github.com/go-chi/jwtauth/v5"
)

// GetCaller - извлекает идентификатор вызывающей стороны (хост-платформы)
// из контекста JWT токена
func GetCaller(context context.Context) (string, error) {
	_, claims, _ := jwtauth.FromContext(context)
	caller, ok := claims["caller"].(string)
	if !ok {
		logger.Warn("Undefined caller from token")
		return "", fmt.Errorf("undefined caller")
	}
	return caller, nil
}
