package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v4"
)

// Имена claims с идентификатором пользователя, в порядке приоритета.
var userIDClaims = []string{"userId", "user_id", "sub"}

var ErrNoIdentity = errors.New("user claims not found in context")

// GetUserIDFromContext возвращает идентификатор пользователя из проверенного токена.
func GetUserIDFromContext(ctx context.Context) (string, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return "", ErrNoIdentity
	}

	for _, name := range userIDClaims {
		value, ok := claims[name]
		if !ok {
			continue
		}

		switch v := value.(type) {
		case string:
			if v != "" {
				return v, nil
			}
		case float64:
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10), nil
			}
		}
		return "", fmt.Errorf("invalid value for '%s' claim: %v", name, value)
	}

	return "", fmt.Errorf("missing user id claim in token")
}
