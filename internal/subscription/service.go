// Package subscription は購読グラフの管理と通知対象者の解決を提供する。
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/newsdesk/internal/access"
	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
)

// Service は購読管理のサービス層。
// 読者による発行元・記者の購読と解除、購読一覧の取得を提供する。
type Service struct {
	subRepo       repository.SubscriptionRepository
	userRepo      repository.UserRepository
	publisherRepo repository.PublisherRepository
	logger        *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	subRepo repository.SubscriptionRepository,
	userRepo repository.UserRepository,
	publisherRepo repository.PublisherRepository,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		subRepo:       subRepo,
		userRepo:      userRepo,
		publisherRepo: publisherRepo,
		logger:        logger,
	}
}

// authorizeReader は操作者を取得し、購読権限を判定する。
func (s *Service) authorizeReader(ctx context.Context, readerID string) error {
	reader, err := s.userRepo.FindByID(ctx, readerID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if reader == nil {
		return model.NewUserNotFoundError()
	}
	return access.CanSubscribe(reader).Err()
}

// ensureTarget は購読対象が存在することを確認する。
// 記者への購読の場合、対象ユーザーが現在記者であることも確認する。
func (s *Service) ensureTarget(ctx context.Context, targetID string, kind model.SubscriptionKind) error {
	switch kind {
	case model.SubscriptionKindPublisher:
		pub, err := s.publisherRepo.FindByID(ctx, targetID)
		if err != nil {
			return fmt.Errorf("発行元の取得に失敗しました: %w", err)
		}
		if pub == nil {
			return model.NewPublisherNotFoundError(targetID)
		}
	case model.SubscriptionKindJournalist:
		j, err := s.userRepo.FindByID(ctx, targetID)
		if err != nil {
			return fmt.Errorf("記者の取得に失敗しました: %w", err)
		}
		if j == nil || j.Role != model.RoleJournalist {
			return model.NewJournalistNotFoundError(targetID)
		}
	default:
		return model.NewValidationError(fmt.Sprintf("unknown subscription kind %q", kind))
	}
	return nil
}

// Subscribe は読者を発行元または記者に購読させる。
// 既に購読済みの場合は何もせず成功する。
func (s *Service) Subscribe(ctx context.Context, readerID, targetID string, kind model.SubscriptionKind) error {
	if err := s.authorizeReader(ctx, readerID); err != nil {
		return err
	}
	if err := s.ensureTarget(ctx, targetID, kind); err != nil {
		return err
	}

	// 事前確認の後に役割が変わった場合は書き込み時点の判定が優先される。
	if err := s.subRepo.Add(ctx, readerID, targetID, kind); err != nil {
		switch {
		case errors.Is(err, repository.ErrSubscriberNotReader):
			return model.NewPermissionDeniedError(access.ReasonNotReader)
		case errors.Is(err, repository.ErrTargetNotFound) && kind == model.SubscriptionKindPublisher:
			return model.NewPublisherNotFoundError(targetID)
		case errors.Is(err, repository.ErrTargetNotFound):
			return model.NewJournalistNotFoundError(targetID)
		}
		return fmt.Errorf("購読の作成に失敗しました: %w", err)
	}

	s.logger.Info("subscribed",
		slog.String("reader_id", readerID),
		slog.String("target_id", targetID),
		slog.String("kind", string(kind)),
	)
	return nil
}

// Unsubscribe は購読を解除する。購読していない場合は何もせず成功する。
func (s *Service) Unsubscribe(ctx context.Context, readerID, targetID string, kind model.SubscriptionKind) error {
	if !kind.Valid() {
		return model.NewValidationError(fmt.Sprintf("unknown subscription kind %q", kind))
	}
	if err := s.authorizeReader(ctx, readerID); err != nil {
		return err
	}

	if err := s.subRepo.Remove(ctx, readerID, targetID, kind); err != nil {
		return fmt.Errorf("購読の解除に失敗しました: %w", err)
	}

	s.logger.Info("unsubscribed",
		slog.String("reader_id", readerID),
		slog.String("target_id", targetID),
		slog.String("kind", string(kind)),
	)
	return nil
}

// ListForReader は読者の購読一覧を返す。
func (s *Service) ListForReader(ctx context.Context, readerID string) ([]model.SubscriptionEdge, error) {
	edges, err := s.subRepo.ListByReader(ctx, readerID)
	if err != nil {
		return nil, fmt.Errorf("購読一覧の取得に失敗しました: %w", err)
	}
	return edges, nil
}
