package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"app/internal/domain/model"
	"app/internal/gateway"
	repo "app/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CheckoutUsecase struct {
	tx      repo.TransactionManager
	clients map[string]gateway.Client
	logger  *zap.Logger
}

func NewCheckoutUsecase(tx repo.TransactionManager, clients map[string]gateway.Client, logger *zap.Logger) *CheckoutUsecase {
	return &CheckoutUsecase{tx: tx, clients: clients, logger: logger}
}

type PlaceOrderInput struct {
	UserID        string
	Amount        int64
	Currency      string
	PaymentMethod string
	CustomerPhone string
	CustomerEmail string
}

type OrderOutput struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	PaymentMethod     string    `json:"payment_method"`
	PaymentStatus     string    `json:"payment_status"`
	FulfillmentStatus string    `json:"fulfillment_status"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	CreatedAt         time.Time `json:"created_at"`
}

func (u *CheckoutUsecase) PlaceOrder(ctx context.Context, in PlaceOrderInput) (OrderOutput, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.Amount <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid amount")
	}
	if in.Currency == "" {
		in.Currency = "INR"
	}
	switch in.PaymentMethod {
	case model.PaymentMethodCOD, model.PaymentMethodPhonePe, model.PaymentMethodRazorpay:
	default:
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment_method")
	}

	now := time.Now()
	order := model.Order{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		PaymentMethod: in.PaymentMethod,
		PaymentStatus: model.PaymentStatusInitiated,
		// 支払い確認が取れるまでfulfillmentは進めない
		FulfillmentStatus: model.FulfillmentStatusPending,
		Amount:            in.Amount,
		Currency:          in.Currency,
		CustomerPhone:     in.CustomerPhone,
		CustomerEmail:     in.CustomerEmail,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	// 代引きは決済ゲートを通らない。即CONFIRMED、支払いは配達時。
	if in.PaymentMethod == model.PaymentMethodCOD {
		order.PaymentStatus = model.PaymentStatusPending
		order.FulfillmentStatus = model.FulfillmentStatusConfirmed
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Orders().Create(ctx, order); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		initialStatus := string(order.PaymentStatus)
		if in.PaymentMethod == model.PaymentMethodCOD {
			initialStatus = string(order.FulfillmentStatus)
		}
		if err := r.History().Append(ctx, model.StatusHistory{
			OrderID: order.ID,
			Status:  initialStatus,
			Source:  string(SourceSystem),
			Note:    "Order placed",
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	u.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("payment_method", in.PaymentMethod))
	return toOrderOutput(order), nil
}

type CreateIntentInput struct {
	OrderID string
	Gateway string
}

type IntentOutput struct {
	MerchantReference string `json:"merchant_reference"`
	IntentID          string `json:"intent_id"`
	RedirectURL       string `json:"redirect_url,omitempty"`
	// Razorpayの埋め込みチェックアウトで使う公開キー
	GatewayKey string `json:"gateway_key,omitempty"`
}

// CreateIntent はゲートウェイにintentを作る。merchant_referenceは試行ごとに
// 新しく発番する（注文ID + 時刻）。ゲートウェイ呼び出し中はロックも
// トランザクションも持たない。
func (u *CheckoutUsecase) CreateIntent(ctx context.Context, in CreateIntentInput) (IntentOutput, error) {
	client, ok := u.clients[in.Gateway]
	if !ok {
		return IntentOutput{}, NewHTTPError(http.StatusBadRequest, "unknown gateway")
	}

	var order model.Order
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, in.OrderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		order = o
		return nil
	})
	if err != nil {
		return IntentOutput{}, err
	}

	if order.PaymentMethod == model.PaymentMethodCOD {
		return IntentOutput{}, NewHTTPError(http.StatusBadRequest, "cod order has no payment intent")
	}
	// COMPLETED/REFUNDED済みの注文に新しい試行は作らない。
	// FAILEDは再試行できる（新しいmerchant_referenceで）。
	switch order.PaymentStatus {
	case model.PaymentStatusCompleted, model.PaymentStatusRefunded:
		return IntentOutput{}, NewHTTPError(http.StatusConflict, "order already paid")
	}

	// 同一秒内のリトライでも衝突しないようnano精度で発番する
	merchantReference := fmt.Sprintf("ORDER_%s_%d", order.ID, time.Now().UnixNano())

	// 試行はゲートウェイ呼び出しの前に記録しておく。こうしておけば
	// 応答を取りこぼしてもwebhookが参照を解決できる。
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.Attempts().Create(ctx, model.PaymentAttempt{
			MerchantReference: merchantReference,
			OrderID:           order.ID,
			Gateway:           in.Gateway,
			Status:            model.PaymentStatusInitiated,
		})
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		return IntentOutput{}, err
	}

	intent, err := client.CreateIntent(ctx, merchantReference, order.Amount, order.Currency, gateway.CustomerContact{
		Phone: order.CustomerPhone,
		Email: order.CustomerEmail,
	})
	if err != nil {
		u.logger.Warn("intent creation failed",
			zap.String("order_id", order.ID),
			zap.String("merchant_reference", merchantReference),
			zap.Error(err))
		return IntentOutput{}, mapGatewayError(err)
	}

	// intentが確定したらPENDINGへ。注文の有効参照もここで差し替える。
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Attempts().MarkPending(ctx, merchantReference, intent.IntentID); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.Orders().SetActiveReference(ctx, order.ID, merchantReference, model.PaymentStatusPending); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.History().Append(ctx, model.StatusHistory{
			OrderID: order.ID,
			Status:  string(model.PaymentStatusPending),
			Source:  string(SourceSystem),
			Note:    "Payment initiated via " + in.Gateway,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		return nil
	})
	if err != nil {
		return IntentOutput{}, err
	}

	key, _ := client.Authenticate(ctx)
	out := IntentOutput{
		MerchantReference: merchantReference,
		IntentID:          intent.IntentID,
		RedirectURL:       intent.RedirectURL,
	}
	if in.Gateway == model.PaymentMethodRazorpay {
		out.GatewayKey = key
	}
	return out, nil
}

func mapGatewayError(err error) error {
	var intentErr *gateway.IntentCreationError
	if errors.As(err, &intentErr) {
		return NewHTTPError(http.StatusBadRequest, "payment intent rejected")
	}
	var unavailable *gateway.GatewayUnavailableError
	if errors.As(err, &unavailable) {
		return NewHTTPError(http.StatusBadGateway, "payment gateway unavailable")
	}
	var authErr *gateway.AuthenticationError
	if errors.As(err, &authErr) {
		return NewHTTPError(http.StatusInternalServerError, "payment gateway misconfigured")
	}
	return NewHTTPError(http.StatusInternalServerError, "internal error")
}

func toOrderOutput(o model.Order) OrderOutput {
	return OrderOutput{
		ID:                o.ID,
		UserID:            o.UserID,
		PaymentMethod:     o.PaymentMethod,
		PaymentStatus:     string(o.PaymentStatus),
		FulfillmentStatus: string(o.FulfillmentStatus),
		Amount:            o.Amount,
		Currency:          o.Currency,
		CreatedAt:         o.CreatedAt,
	}
}
