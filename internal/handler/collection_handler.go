package handler

import (
	"net/http"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /cart と /wishlist のHTTP
type CollectionHandler struct {
	uc *usecase.CollectionUsecase
}

// DI
func NewCollectionHandler(uc *usecase.CollectionUsecase) *CollectionHandler {
	return &CollectionHandler{uc: uc}
}

type UpdateQuantityRequest struct {
	Quantity int64 `json:"quantity"`
}

type MergeRequest struct {
	SessionID string `json:"session_id"`
}

// /cart または /wishlist 配下を登録
func (h *CollectionHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/" + string(h.uc.Kind()))

	owner := middleware.ResolveOwner(cfg, false)
	g.GET("", h.get, owner)
	g.POST("/items", h.add, owner)
	g.DELETE("/items/:productId", h.remove, owner)

	// マージは認証必須
	g.POST("/merge", h.merge, middleware.ResolveOwner(cfg, true))

	switch h.uc.Kind() {
	case model.KindCart:
		g.PUT("/items/:productId", h.updateQuantity, owner)
	case model.KindWishlist:
		g.POST("/toggle", h.toggle, owner)
	}
}

func (h *CollectionHandler) get(c echo.Context) error {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.Get(c.Request().Context(), owner)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out.Response())
}

func (h *CollectionHandler) add(c echo.Context) error {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req model.Item
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Add(c.Request().Context(), owner, req)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out.Response())
}

func (h *CollectionHandler) updateQuantity(c echo.Context) error {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req UpdateQuantityRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.UpdateQuantity(c.Request().Context(), owner, c.Param("productId"), req.Quantity)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out.Response())
}

func (h *CollectionHandler) remove(c echo.Context) error {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.Remove(c.Request().Context(), owner, c.Param("productId"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out.Response())
}

func (h *CollectionHandler) toggle(c echo.Context) error {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req model.Item
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Toggle(c.Request().Context(), owner, req)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *CollectionHandler) merge(c echo.Context) error {
	owner, ok := middleware.OwnerFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req MergeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Merge(c.Request().Context(), owner, req.SessionID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out.Response())
}
