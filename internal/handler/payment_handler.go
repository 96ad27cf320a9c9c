package handler

import (
	"net/http"

	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/gateway/razorpay"
	"app/internal/middleware"
	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

type PaymentHandler struct {
	checkout *usecase.CheckoutUsecase
	verify   *usecase.VerifyUsecase
	// チェックアウト戻りの署名検証用（razorpayだけの追加検証）
	rzp *razorpay.Client
}

func NewPaymentHandler(checkout *usecase.CheckoutUsecase, verify *usecase.VerifyUsecase, rzp *razorpay.Client) *PaymentHandler {
	return &PaymentHandler{checkout: checkout, verify: verify, rzp: rzp}
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/api/payments")
	g.Use(middleware.AuthJWT(cfg))

	g.POST("/:gateway/intent", h.createIntent)
	g.POST("/:gateway/verify", h.verifyPayment)
}

type IntentCreateRequest struct {
	OrderID string `json:"order_id"`
}

func (h *PaymentHandler) createIntent(c echo.Context) error {
	if _, ok := getUserIDFromContext(c); !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req IntentCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if req.OrderID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order_id"})
	}

	out, err := h.checkout.CreateIntent(c.Request().Context(), usecase.CreateIntentInput{
		OrderID: req.OrderID,
		Gateway: c.Param("gateway"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

type VerifyRequest struct {
	MerchantReference string `json:"merchant_reference"`

	// razorpayのチェックアウト戻りが持ってくる3点セット（任意）
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

// リダイレクトから戻ったあとの検証。リダイレクトは支払いの証明にならない
// ので、ここで固定予算のポーリングを回して突き合わせる。
func (h *PaymentHandler) verifyPayment(c echo.Context) error {
	if _, ok := getUserIDFromContext(c); !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	gatewayName := c.Param("gateway")

	// 署名付きで戻ってきた場合は先に検証する（不正なら即400）
	if gatewayName == model.PaymentMethodRazorpay && req.RazorpaySignature != "" {
		if h.rzp == nil || !h.rzp.VerifyCheckoutSignature(req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid payment signature"})
		}
	}

	out, err := h.verify.VerifyPayment(c.Request().Context(), gatewayName, req.MerchantReference)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
