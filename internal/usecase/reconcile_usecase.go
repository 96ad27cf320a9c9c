package usecase

import (
	"context"
	"errors"

	"app/internal/domain/model"
	"app/internal/gateway"
	"app/internal/notification"
	repo "app/internal/repository"

	"go.uber.org/zap"
)

type ReconcileSource string

const (
	SourcePoll    ReconcileSource = "poll"
	SourceWebhook ReconcileSource = "webhook"
	SourceSystem  ReconcileSource = "system"
)

type ReconcileOutcome string

const (
	OutcomeCompleted ReconcileOutcome = "COMPLETED"
	OutcomeFailed    ReconcileOutcome = "FAILED"
	OutcomePending   ReconcileOutcome = "PENDING"
	// すでに終端だった。エラーではなく成功扱いのno-op。
	OutcomeAlreadyFinalized ReconcileOutcome = "ALREADY_FINALIZED"
)

type ReconcileResult struct {
	Outcome ReconcileOutcome
	// 試行の現在状態。AlreadyFinalizedのとき呼び出し側が結果表示に使う。
	AttemptStatus model.PaymentStatus
}

// ReconcileUsecase はゲートウェイで観測された状態を注文へちょうど1回だけ
// 取り込む。pollとwebhookの両方から呼ばれ、排他はストアの条件付きUPDATEに
// 任せる（プロセス内ロックは持たない）。
type ReconcileUsecase struct {
	tx       repo.TransactionManager
	notifier notification.Notifier
	logger   *zap.Logger
}

func NewReconcileUsecase(tx repo.TransactionManager, notifier notification.Notifier, logger *zap.Logger) *ReconcileUsecase {
	return &ReconcileUsecase{tx: tx, notifier: notifier, logger: logger}
}

// 観測値を内部の決済状態へ正規化。terminal=falseなら再試行待ち。
func mapObserved(s gateway.NormalizedStatus) (model.PaymentStatus, bool) {
	switch s {
	case gateway.StatusCompleted:
		return model.PaymentStatusCompleted, true
	case gateway.StatusFailed:
		return model.PaymentStatusFailed, true
	default:
		// UNKNOWNはPENDING扱いで呼び出し側が再試行する
		return model.PaymentStatusPending, false
	}
}

func (u *ReconcileUsecase) Reconcile(ctx context.Context, merchantReference string, observed gateway.StatusResult, source ReconcileSource) (ReconcileResult, error) {
	var result ReconcileResult
	var notifyOrder *model.Order
	var notifyCompleted bool

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		att, err := r.Attempts().FindByReference(ctx, merchantReference)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		mapped, terminal := mapObserved(observed.Status)

		// 終端は吸収状態。同じ観測でも矛盾する観測でも副作用は再発火しない。
		if att.Status.IsTerminal() {
			if terminal && mapped != att.Status {
				// 先勝ちを正とする。2つ目は手動照合用に記録するだけ。
				u.logger.Warn("conflicting terminal observation discarded",
					zap.String("merchant_reference", merchantReference),
					zap.String("recorded", string(att.Status)),
					zap.String("observed", string(mapped)),
					zap.String("source", string(source)))
				if err := r.History().Append(ctx, model.StatusHistory{
					OrderID: att.OrderID,
					Status:  string(att.Status),
					Source:  string(source),
					Note:    "conflicting " + string(mapped) + " observation discarded",
				}); err != nil {
					return err
				}
			}
			result = ReconcileResult{Outcome: OutcomeAlreadyFinalized, AttemptStatus: att.Status}
			return nil
		}

		if !terminal {
			// PENDINGは試行回数を記録するだけ。再試行は呼び出し側の責務。
			if err := r.Attempts().IncrementPollCount(ctx, merchantReference); err != nil {
				return err
			}
			result = ReconcileResult{Outcome: OutcomePending, AttemptStatus: att.Status}
			return nil
		}

		// 条件付きUPDATE一発が排他そのもの。負けたらAlreadyFinalized。
		ok, err := r.Attempts().FinalizeIfOpen(ctx, merchantReference, mapped, observed.GatewayTransactionID)
		if err != nil {
			return err
		}
		if !ok {
			att2, err := r.Attempts().FindByReference(ctx, merchantReference)
			if err != nil {
				return err
			}
			if att2.Status != mapped {
				u.logger.Warn("conflicting terminal observation discarded",
					zap.String("merchant_reference", merchantReference),
					zap.String("recorded", string(att2.Status)),
					zap.String("observed", string(mapped)),
					zap.String("source", string(source)))
			}
			result = ReconcileResult{Outcome: OutcomeAlreadyFinalized, AttemptStatus: att2.Status}
			return nil
		}

		ord, err := r.Orders().FindByID(ctx, att.OrderID)
		if err != nil {
			return err
		}

		// 捨てられた旧試行の遅延通知は注文本体に触れない
		if ord.ActiveMerchantReference != merchantReference {
			u.logger.Warn("stale attempt finalized, order untouched",
				zap.String("merchant_reference", merchantReference),
				zap.String("active_reference", ord.ActiveMerchantReference),
				zap.String("order_id", ord.ID))
			result = ReconcileResult{Outcome: outcomeFor(mapped), AttemptStatus: mapped}
			return nil
		}

		if err := r.Orders().UpdatePaymentResult(ctx, ord.ID, mapped, observed.GatewayTransactionID); err != nil {
			return err
		}

		note := "Payment completed via " + att.Gateway
		if mapped == model.PaymentStatusFailed {
			note = "Payment failed via " + att.Gateway
		}
		if err := r.History().Append(ctx, model.StatusHistory{
			OrderID: ord.ID,
			Status:  string(mapped),
			Source:  string(source),
			Note:    note,
		}); err != nil {
			return err
		}

		// 初回COMPLETEDのときだけfulfillmentを進める
		if mapped == model.PaymentStatusCompleted {
			if err := r.Orders().UpdateFulfillmentStatus(ctx, ord.ID, model.FulfillmentStatusConfirmed); err != nil {
				return err
			}
			ord.FulfillmentStatus = model.FulfillmentStatusConfirmed
		}

		ord.PaymentStatus = mapped
		if observed.GatewayTransactionID != "" {
			ord.GatewayTransactionID = observed.GatewayTransactionID
		}
		notifyOrder = &ord
		notifyCompleted = mapped == model.PaymentStatusCompleted
		result = ReconcileResult{Outcome: outcomeFor(mapped), AttemptStatus: mapped}
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	// 通知は発火して忘れる。失敗しても確定した遷移は巻き戻さない。
	if notifyOrder != nil {
		var nerr error
		if notifyCompleted {
			nerr = u.notifier.PaymentCompleted(ctx, *notifyOrder)
		} else {
			nerr = u.notifier.PaymentFailed(ctx, *notifyOrder)
		}
		if nerr != nil {
			u.logger.Error("notification dispatch failed",
				zap.Error(nerr),
				zap.String("order_id", notifyOrder.ID))
		}
	}

	return result, nil
}

func outcomeFor(s model.PaymentStatus) ReconcileOutcome {
	if s == model.PaymentStatusCompleted {
		return OutcomeCompleted
	}
	return OutcomeFailed
}
