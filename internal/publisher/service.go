// Package publisher は発行元の登録と所属メンバーの管理を提供する。
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdesk/internal/access"
	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
)

const (
	maxNameLength    = 200
	maxWebsiteLength = 500
)

// CreateInput は発行元作成の入力。
type CreateInput struct {
	Name        string
	Description string
	Website     string // 任意。指定する場合はhttpまたはhttpsの絶対URL
}

// Service は発行元管理のサービス層。
type Service struct {
	publisherRepo repository.PublisherRepository
	userRepo      repository.UserRepository
	logger        *slog.Logger
	now           func() time.Time
}

// NewService はServiceを生成する。
func NewService(publisherRepo repository.PublisherRepository, userRepo repository.UserRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		publisherRepo: publisherRepo,
		userRepo:      userRepo,
		logger:        logger,
		now:           time.Now,
	}
}

func validateInput(in CreateInput) error {
	if in.Name == "" {
		return model.NewValidationError("publisher name is required")
	}
	if utf8.RuneCountInString(in.Name) > maxNameLength {
		return model.NewValidationError(fmt.Sprintf("publisher name must be at most %d characters", maxNameLength))
	}
	if in.Website == "" {
		return nil
	}
	if len(in.Website) > maxWebsiteLength {
		return model.NewValidationError(fmt.Sprintf("website must be at most %d characters", maxWebsiteLength))
	}
	u, err := url.Parse(in.Website)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.NewValidationError("website must be an http or https URL")
	}
	return nil
}

// Create は発行元を作成する。名前は大文字小文字を区別せず一意。
func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (*model.Publisher, error) {
	actor, err := s.userRepo.FindByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if actor == nil {
		return nil, model.NewUserNotFoundError()
	}
	if err := access.CanCreatePublisher(actor).Err(); err != nil {
		return nil, err
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Website = strings.TrimSpace(in.Website)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	existing, err := s.publisherRepo.FindByName(ctx, in.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to find publisher: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicatePublisherError(in.Name)
	}

	now := s.now()
	p := &model.Publisher{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Description: in.Description,
		Website:     in.Website,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.publisherRepo.Create(ctx, p); err != nil {
		// 確認後に同名の発行元が作られた場合は一意制約で失敗する
		if dup, _ := s.publisherRepo.FindByName(ctx, in.Name); dup != nil {
			return nil, model.NewDuplicatePublisherError(in.Name)
		}
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	s.logger.Info("発行元を作成しました",
		slog.String("publisher_id", p.ID),
		slog.String("name", p.Name),
		slog.String("actor_id", actor.ID),
	)
	return p, nil
}

// AddMember はユーザーをその役割に応じて編集者または記者として発行元に追加する。
// 読者は追加できない。
func (s *Service) AddMember(ctx context.Context, publisherID, userID string) error {
	p, err := s.publisherRepo.FindByID(ctx, publisherID)
	if err != nil {
		return fmt.Errorf("failed to find publisher: %w", err)
	}
	if p == nil {
		return model.NewPublisherNotFoundError(publisherID)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}
	if user.Role != model.RoleEditor && user.Role != model.RoleJournalist {
		return model.NewValidationError("only editors and journalists can join a publisher")
	}

	if err := s.publisherRepo.AddMember(ctx, publisherID, userID, user.Role); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	s.logger.Info("発行元にメンバーを追加しました",
		slog.String("publisher_id", publisherID),
		slog.String("user_id", userID),
		slog.String("role", string(user.Role)),
	)
	return nil
}

// Get は発行元を所属メンバー付きで取得する。
func (s *Service) Get(ctx context.Context, publisherID string) (*model.Publisher, error) {
	p, err := s.publisherRepo.FindByID(ctx, publisherID)
	if err != nil {
		return nil, fmt.Errorf("failed to find publisher: %w", err)
	}
	if p == nil {
		return nil, model.NewPublisherNotFoundError(publisherID)
	}
	return p, nil
}
