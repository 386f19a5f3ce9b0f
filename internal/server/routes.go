package server

import (
	"net/http"

	"storefront/internal/authtoken"
	"storefront/internal/config"
	"storefront/internal/handler"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes は /cart, /wishlist, /healthz（devなら /dev/token も）を登録
func RegisterRoutes(e *echo.Echo, cfg config.Config, items repo.CollectionRepository, tx repo.TransactionManager) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	handler.NewCollectionHandler(usecase.NewCartUsecase(items, tx)).RegisterRoutes(e, cfg)
	handler.NewCollectionHandler(usecase.NewWishlistUsecase(items, tx)).RegisterRoutes(e, cfg)

	if cfg.IsDev() {
		handler.NewDevTokenHandler(authtoken.NewIssuer(cfg.JWTSecret, authtoken.DefaultTTL)).RegisterRoutes(e)
	}
}
