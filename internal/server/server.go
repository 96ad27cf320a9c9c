package server

import (
	"net/http"

	"app/internal/config"
	"app/internal/handler"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

func Start(
	addr string,
	cfg config.Config,
	orderH *handler.OrderHandler,
	paymentH *handler.PaymentHandler,
	webhookH *handler.WebhookHandler,
	adminH *handler.AdminOrderHandler,
) error {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Recover())
	if cfg.FEURL != "" {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: []string{cfg.FEURL},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	RegisterRoutes(e, cfg, orderH, paymentH, webhookH, adminH)

	return e.Start(addr)
}
