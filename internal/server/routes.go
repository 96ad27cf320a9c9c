package server

import (
	"app/internal/config"
	"app/internal/handler"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(
	e *echo.Echo,
	cfg config.Config,
	orderH *handler.OrderHandler,
	paymentH *handler.PaymentHandler,
	webhookH *handler.WebhookHandler,
	adminH *handler.AdminOrderHandler,
) {
	orderH.RegisterRoutes(e, cfg)
	paymentH.RegisterRoutes(e, cfg)
	webhookH.RegisterRoutes(e)
	adminH.RegisterRoutes(e, cfg)
}
