package usecase

import (
	"context"
	"errors"
	"net/http"
	"time"

	"app/internal/domain/model"
	"app/internal/gateway"

	"go.uber.org/zap"
)

type VerifyOutcome string

const (
	VerifyCompleted VerifyOutcome = "COMPLETED"
	VerifyFailed    VerifyOutcome = "FAILED"
	// 失敗ではない。webhookが後から解決するかもしれない未確定状態。
	VerifyPending VerifyOutcome = "PENDING"
	// 予算内の問い合わせが最後までエラーだった
	VerifyInconclusive VerifyOutcome = "INCONCLUSIVE"
)

type VerifyResult struct {
	Outcome  VerifyOutcome `json:"status"`
	Attempts int           `json:"attempts"`
}

// VerifyUsecase はリダイレクトから戻ったあとの検証ポーリング。
// リダイレクト自体は支払いの証明にならないのでゲートウェイへ聞き直す。
// 固定回数・固定間隔で、ユーザーの目の前で回す前提（バックグラウンド化しない）。
type VerifyUsecase struct {
	clients     map[string]gateway.Client
	rec         *ReconcileUsecase
	maxAttempts int
	interval    time.Duration
	logger      *zap.Logger
}

func NewVerifyUsecase(clients map[string]gateway.Client, rec *ReconcileUsecase, maxAttempts int, interval time.Duration, logger *zap.Logger) *VerifyUsecase {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &VerifyUsecase{
		clients:     clients,
		rec:         rec,
		maxAttempts: maxAttempts,
		interval:    interval,
		logger:      logger,
	}
}

func (u *VerifyUsecase) VerifyPayment(ctx context.Context, gatewayName string, merchantReference string) (VerifyResult, error) {
	client, ok := u.clients[gatewayName]
	if !ok {
		return VerifyResult{}, NewHTTPError(http.StatusBadRequest, "unknown gateway")
	}
	if merchantReference == "" {
		return VerifyResult{}, NewHTTPError(http.StatusBadRequest, "invalid merchant_reference")
	}

	var lastErr error
	for i := 1; i <= u.maxAttempts; i++ {
		if i > 1 {
			// キャンセル（離脱）は次のポーリングを止めるだけで、
			// 確定済みの状態やwebhook経路には影響しない
			select {
			case <-ctx.Done():
				return VerifyResult{}, ctx.Err()
			case <-time.After(u.interval):
			}
		}

		st, err := client.QueryStatus(ctx, merchantReference)
		if err != nil {
			var unavailable *gateway.GatewayUnavailableError
			if errors.As(err, &unavailable) {
				// ネットワーク障害も同じ試行予算を消費する
				lastErr = err
				u.logger.Warn("status query failed",
					zap.String("merchant_reference", merchantReference),
					zap.Int("attempt", i),
					zap.Error(err))
				continue
			}
			return VerifyResult{}, err
		}
		lastErr = nil

		res, err := u.rec.Reconcile(ctx, merchantReference, st, SourcePoll)
		if err != nil {
			return VerifyResult{}, err
		}

		switch res.Outcome {
		case OutcomeCompleted:
			return VerifyResult{Outcome: VerifyCompleted, Attempts: i}, nil
		case OutcomeFailed:
			return VerifyResult{Outcome: VerifyFailed, Attempts: i}, nil
		case OutcomeAlreadyFinalized:
			// webhook側が先に確定させたケース
			if res.AttemptStatus == model.PaymentStatusCompleted {
				return VerifyResult{Outcome: VerifyCompleted, Attempts: i}, nil
			}
			return VerifyResult{Outcome: VerifyFailed, Attempts: i}, nil
		}
		// PENDINGなら次の試行へ
	}

	if lastErr != nil {
		// PaymentFailedとは区別して返す
		return VerifyResult{Outcome: VerifyInconclusive, Attempts: u.maxAttempts}, nil
	}
	return VerifyResult{Outcome: VerifyPending, Attempts: u.maxAttempts}, nil
}
