package middleware

import (
	"errors"
	"net/http"
	"strings"

	"storefront/internal/config"
	"storefront/internal/domain/model"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxOwnerKey = "owner" // model.Owner

	HeaderSessionID = "X-Session-Id"
)

// ResolveOwner はリクエストの持ち主を決める。
// Bearerがあればそちら優先（不正なら401）、無ければX-Session-Id。
// requireAuth なら匿名は401。
func ResolveOwner(cfg config.Config, requireAuth bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authz := c.Request().Header.Get("Authorization")
			if authz != "" {
				sub, err := parseBearer(authz, cfg.JWTSecret)
				if err != nil {
					return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
				}
				c.Set(CtxOwnerKey, model.Owner{Kind: model.OwnerAuthenticated, ID: sub})
				return next(c)
			}

			if requireAuth {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			sid := strings.TrimSpace(c.Request().Header.Get(HeaderSessionID))
			if sid == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			c.Set(CtxOwnerKey, model.Owner{Kind: model.OwnerAnonymous, ID: sid})
			return next(c)
		}
	}
}

// OwnerFromContext はResolveOwnerが入れた持ち主を返す
func OwnerFromContext(c echo.Context) (model.Owner, bool) {
	o, ok := c.Get(CtxOwnerKey).(model.Owner)
	if !ok || !o.Valid() {
		return model.Owner{}, false
	}
	return o, true
}

// Bearer形式か確認してJWTを検証し、subを返す
func parseBearer(authz string, secret string) (string, error) {
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("not bearer")
	}
	rawToken := strings.TrimSpace(parts[1])
	if rawToken == "" {
		return "", errors.New("empty token")
	}

	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || token == nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || strings.TrimSpace(sub) == "" {
		return "", errors.New("invalid sub")
	}
	return sub, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}
