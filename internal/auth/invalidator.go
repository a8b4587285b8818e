package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/newsdesk/internal/metrics"
	"github.com/hitoshi/newsdesk/internal/repository"
)

// SessionInvalidator はユーザーに紐づく全セッションを無効化する。
// 役割変更の直後に同期的に呼ばれ、変更前に発行されたトークンを使えなくする。
type SessionInvalidator struct {
	sessionRepo repository.SessionRepository
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
}

// NewSessionInvalidator はSessionInvalidatorを生成する。
func NewSessionInvalidator(sessionRepo repository.SessionRepository, collector metrics.MetricsCollector, logger *slog.Logger) *SessionInvalidator {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionInvalidator{sessionRepo: sessionRepo, metrics: collector, logger: logger}
}

// InvalidateAllForUser はユーザーの全セッションを削除し、削除件数を返す。
// セッションがなければ0を返す。ストアの失敗はエラーとして返す。
// 件数は削除文の結果だけを使い、事前の一覧取得はしない。
func (v *SessionInvalidator) InvalidateAllForUser(ctx context.Context, userID string) (int64, error) {
	deleted, err := v.sessionRepo.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}

	v.metrics.RecordSessionsInvalidated(deleted)
	v.logger.Info("sessions invalidated",
		slog.String("user_id", userID),
		slog.Int64("deleted", deleted),
	)
	return deleted, nil
}
