package repository

import (
	"context"

	"app/internal/domain/model"
)

type PaymentAttemptRepository interface {
	Create(ctx context.Context, attempt model.PaymentAttempt) (int64, error)
	FindByReference(ctx context.Context, merchantReference string) (model.PaymentAttempt, error)

	// intentが作成できたらINITIATED→PENDINGへ進める
	MarkPending(ctx context.Context, merchantReference string, gatewayTxID string) (bool, error)

	// 終端状態への遷移は条件付きUPDATE一発で行う。
	// WHERE merchant_reference = ? AND status IN ('INITIATED','PENDING') を満たした
	// ときだけ書き、RowsAffected==0 なら負け（すでに終端）としてfalseを返す。
	// プロセスをまたいでもこのCASだけで排他が成立する。
	FinalizeIfOpen(ctx context.Context, merchantReference string, status model.PaymentStatus, gatewayTxID string) (bool, error)

	IncrementPollCount(ctx context.Context, merchantReference string) error
}
