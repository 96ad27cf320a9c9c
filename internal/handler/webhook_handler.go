package handler

import (
	"errors"
	"io"
	"net/http"

	"app/internal/gateway"
	"app/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// WebhookHandler はゲートウェイからの非同期通知を受ける。
// ブラウザが戻ってこなくてもこちらの経路で決済は確定する。
type WebhookHandler struct {
	clients map[string]gateway.Client
	rec     *usecase.ReconcileUsecase
	logger  *zap.Logger
}

func NewWebhookHandler(clients map[string]gateway.Client, rec *usecase.ReconcileUsecase, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{clients: clients, rec: rec, logger: logger}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	// 署名検証があるのでJWTミドルウェアは通さない
	e.POST("/api/webhooks/:gateway", h.receive)
}

type webhookResponse struct {
	Success bool `json:"success"`
}

func (h *WebhookHandler) receive(c echo.Context) error {
	client, ok := h.clients[c.Param("gateway")]
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown gateway"})
	}

	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	// 署名検証が最優先。通らないリクエストはストアに一切触れず、
	// 注文の存在も漏らさない。
	if !client.VerifyWebhookSignature(c.Request().Header, rawBody) {
		h.logger.Warn("webhook signature rejected",
			zap.String("gateway", client.Name()),
			zap.String("remote", c.RealIP()))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	event, err := client.ParseWebhook(rawBody)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid payload"})
	}

	res, err := h.rec.Reconcile(c.Request().Context(), event.MerchantReference, gateway.StatusResult{
		Status:               event.Status,
		GatewayTransactionID: event.GatewayTransactionID,
	}, usecase.SourceWebhook)
	if err != nil {
		// 未知の注文でも200を返す。ここで5xxを返すとゲートウェイ側の
		// 再送ストームになるだけなので、ログに残して飲み込む。
		if errors.Is(err, usecase.ErrOrderNotFound) {
			h.logger.Warn("webhook for unknown merchant reference",
				zap.String("gateway", client.Name()),
				zap.String("merchant_reference", event.MerchantReference))
			return c.JSON(http.StatusOK, webhookResponse{Success: false})
		}
		// 一時的な内部エラーは5xx。ゲートウェイの再送ポリシーに任せる。
		h.logger.Error("webhook reconcile failed",
			zap.String("gateway", client.Name()),
			zap.String("merchant_reference", event.MerchantReference),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}

	h.logger.Info("webhook processed",
		zap.String("gateway", client.Name()),
		zap.String("merchant_reference", event.MerchantReference),
		zap.String("outcome", string(res.Outcome)))
	// 同一ペイロードの再送はAlreadyFinalizedで吸収されるので常に200でよい
	return c.JSON(http.StatusOK, webhookResponse{Success: true})
}
