package handler

import (
	"net/http"
	"strconv"

	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/middleware"
	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminOrderHandler struct {
	uc *usecase.AdminOrderUsecase
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc}
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/api/admin/orders")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.AdminRoleGuard())

	g.GET("", h.list)
	g.PATCH("/:id/fulfillment", h.updateFulfillment)
	g.POST("/:id/refund", h.refund)
}

type AdminOrderListResponse struct {
	Orders []usecase.OrderOutput `json:"orders"`
	Total  int64                 `json:"total"`
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	page := 0
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
		}
		page = p
	}
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		}
		limit = l
	}

	orders, total, err := h.uc.ListOrders(c.Request().Context(), usecase.AdminListOrdersInput{
		Page:          page,
		Limit:         limit,
		PaymentStatus: c.QueryParam("payment_status"),
		Fulfillment:   c.QueryParam("fulfillment_status"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, AdminOrderListResponse{Orders: orders, Total: total})
}

type FulfillmentUpdateRequest struct {
	Status string `json:"status"`
}

func (h *AdminOrderHandler) updateFulfillment(c echo.Context) error {
	var req FulfillmentUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	err := h.uc.AdvanceFulfillment(c.Request().Context(), c.Param("id"), model.FulfillmentStatus(req.Status))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminOrderHandler) refund(c echo.Context) error {
	err := h.uc.Refund(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
