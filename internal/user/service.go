// Package user はユーザーと役割の管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
)

const maxUsernameLength = 150

// SessionInvalidator はユーザーの全セッションを無効化するインターフェース。
type SessionInvalidator interface {
	InvalidateAllForUser(ctx context.Context, userID string) (int64, error)
}

// ArticlePurger は著者の全記事を削除するインターフェース。
type ArticlePurger interface {
	PurgeByAuthor(ctx context.Context, authorID string) (int, error)
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Username string
	Email    string
	Role     string
}

// Service はユーザー管理のサービス層。
// 登録、役割変更、退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo      repository.UserRepository
	subRepo       repository.SubscriptionRepository
	publisherRepo repository.PublisherRepository
	invalidator   SessionInvalidator
	purger        ArticlePurger
	logger        *slog.Logger
	now           func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// purgerがnilの場合、退会時の記事削除は永続層のカスケードに任せる。
func NewService(
	userRepo repository.UserRepository,
	subRepo repository.SubscriptionRepository,
	publisherRepo repository.PublisherRepository,
	invalidator SessionInvalidator,
	purger ArticlePurger,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo:      userRepo,
		subRepo:       subRepo,
		publisherRepo: publisherRepo,
		invalidator:   invalidator,
		purger:        purger,
		logger:        logger,
		now:           time.Now,
	}
}

// Register はユーザーを登録する。ユーザー名は一意。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, model.NewValidationError("username is required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return nil, model.NewValidationError(fmt.Sprintf("username must be at most %d characters", maxUsernameLength))
	}
	email := strings.TrimSpace(in.Email)
	if email != "" {
		addr, err := netmail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return nil, model.NewValidationError("email is not a valid address")
		}
	}
	role, ok := model.ParseRole(in.Role)
	if !ok {
		return nil, model.NewInvalidRoleError(in.Role)
	}

	existing, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewValidationError(fmt.Sprintf("username %q is already taken", username))
	}

	now := s.now()
	u := &model.User{
		ID:        uuid.New().String(),
		Username:  username,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	s.logger.Info("ユーザーを登録しました",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
	)
	return u, nil
}

// FindByUsername はユーザー名でユーザーを取得する。
func (s *Service) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// FindByRole は指定した役割を持つユーザーを返す。
func (s *Service) FindByRole(ctx context.Context, role model.Role) ([]*model.User, error) {
	if _, ok := model.ParseRole(string(role)); !ok {
		return nil, model.NewInvalidRoleError(string(role))
	}
	users, err := s.userRepo.FindByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return users, nil
}

// ChangeRole はユーザーの役割を変更する。
// 変更前の値を読み出して差分がある場合だけ書き込み、直後に全セッションを無効化する。
// 無効化に失敗した場合は元の役割に戻してエラーを返す。
func (s *Service) ChangeRole(ctx context.Context, userID string, newRole model.Role) (*model.User, error) {
	role, ok := model.ParseRole(string(newRole))
	if !ok {
		return nil, model.NewInvalidRoleError(string(newRole))
	}

	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}

	oldRole := u.Role
	if oldRole == role {
		return u, nil
	}

	if err := s.userRepo.UpdateRole(ctx, userID, role); err != nil {
		return nil, fmt.Errorf("役割の更新に失敗しました: %w", err)
	}

	invalidated, err := s.invalidator.InvalidateAllForUser(ctx, userID)
	if err != nil {
		if rbErr := s.userRepo.UpdateRole(ctx, userID, oldRole); rbErr != nil {
			s.logger.Error("役割の巻き戻しに失敗しました",
				slog.String("user_id", userID),
				slog.String("old_role", string(oldRole)),
				slog.String("error", rbErr.Error()),
			)
		}
		return nil, fmt.Errorf("セッションの無効化に失敗しました: %w", err)
	}

	s.cleanupFormerRole(ctx, userID, oldRole)

	s.logger.Info("役割を変更しました",
		slog.String("user_id", userID),
		slog.String("old_role", string(oldRole)),
		slog.String("new_role", string(role)),
		slog.Int64("sessions_invalidated", invalidated),
	)

	u.Role = role
	u.UpdatedAt = s.now()
	return u, nil
}

// cleanupFormerRole は以前の役割に紐づく関係を削除する。
// 役割変更は確定済みのため、失敗はログに記録するだけにする。
func (s *Service) cleanupFormerRole(ctx context.Context, userID string, oldRole model.Role) {
	var err error
	switch oldRole {
	case model.RoleReader:
		err = s.subRepo.DeleteByReader(ctx, userID)
	case model.RoleJournalist:
		if err = s.subRepo.DeleteByTarget(ctx, userID, model.SubscriptionKindJournalist); err == nil {
			err = s.publisherRepo.RemoveMemberships(ctx, userID, oldRole)
		}
	case model.RoleEditor:
		err = s.publisherRepo.RemoveMemberships(ctx, userID, oldRole)
	}
	if err != nil {
		s.logger.Error("以前の役割に紐づくデータの削除に失敗しました",
			slog.String("user_id", userID),
			slog.String("old_role", string(oldRole)),
			slog.String("error", err.Error()),
		)
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → articles → subscriptions → memberships → user
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return model.NewUserNotFoundError()
	}

	s.logger.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. セッションを削除
	if _, err := s.invalidator.InvalidateAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	// 2. 記事を削除（ソーシャル告知も取り消す）
	if s.purger != nil {
		if _, err := s.purger.PurgeByAuthor(ctx, userID); err != nil {
			return fmt.Errorf("記事の削除に失敗しました: %w", err)
		}
	}

	// 3. 購読を削除（読者として、記者として）
	if err := s.subRepo.DeleteByReader(ctx, userID); err != nil {
		return fmt.Errorf("購読の削除に失敗しました: %w", err)
	}
	if err := s.subRepo.DeleteByTarget(ctx, userID, model.SubscriptionKindJournalist); err != nil {
		return fmt.Errorf("購読の削除に失敗しました: %w", err)
	}

	// 4. 発行元の所属を削除
	for _, role := range []model.Role{model.RoleEditor, model.RoleJournalist} {
		if err := s.publisherRepo.RemoveMemberships(ctx, userID, role); err != nil {
			return fmt.Errorf("所属の削除に失敗しました: %w", err)
		}
	}

	// 5. ユーザーを削除
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	s.logger.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)
	return nil
}
