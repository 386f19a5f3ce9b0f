package handler

import (
	"net/http"
	"strings"
	"time"

	"storefront/internal/authtoken"

	"github.com/labstack/echo/v4"
)

// POST /dev/token（GO_ENV=dev のときだけ登録）
type DevTokenHandler struct {
	issuer *authtoken.Issuer
	now    func() time.Time
}

func NewDevTokenHandler(issuer *authtoken.Issuer) *DevTokenHandler {
	return &DevTokenHandler{issuer: issuer, now: time.Now}
}

type devTokenRequest struct {
	Subject string `json:"subject"`
}

type devTokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *DevTokenHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/dev/token", h.issue)
}

func (h *DevTokenHandler) issue(c echo.Context) error {
	var req devTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	sub := strings.TrimSpace(req.Subject)
	if sub == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid subject"})
	}

	tok, exp, err := h.issuer.Issue(sub, h.now())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}

	return c.JSON(http.StatusOK, devTokenResponse{AccessToken: tok, ExpiresAt: exp})
}
