// Package newsletter は記者によるニュースレターの作成・編集・発行・削除を提供する。
// ニュースレターは承認を経ず、購読者への通知も行わない。
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdesk/internal/access"
	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/repository"
)

// maxSlugAttempts は一意なスラッグを探す候補数の上限。
const maxSlugAttempts = 100

// CreateInput はニュースレター作成の入力。
type CreateInput struct {
	Title       string
	Content     string
	PublisherID string // 空文字は独立ニュースレター
	Publish     bool   // trueなら作成と同時に発行する
}

// Changes はニュースレター編集の差分。nilのフィールドは変更しない。
type Changes struct {
	Title       *string
	Content     *string
	PublisherID *string
}

// Service はニュースレターのサービス層。
type Service struct {
	newsletterRepo repository.NewsletterRepository
	userRepo       repository.UserRepository
	publisherRepo  repository.PublisherRepository
	logger         *slog.Logger
	now            func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	newsletterRepo repository.NewsletterRepository,
	userRepo repository.UserRepository,
	publisherRepo repository.PublisherRepository,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		newsletterRepo: newsletterRepo,
		userRepo:       userRepo,
		publisherRepo:  publisherRepo,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *Service) loadUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (s *Service) load(ctx context.Context, id string) (*model.Newsletter, error) {
	n, err := s.newsletterRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find newsletter: %w", err)
	}
	if n == nil {
		return nil, model.NewNewsletterNotFoundError(id)
	}
	return n, nil
}

func (s *Service) ensurePublisher(ctx context.Context, publisherID string) error {
	if publisherID == "" {
		return nil
	}
	p, err := s.publisherRepo.FindByID(ctx, publisherID)
	if err != nil {
		return fmt.Errorf("failed to find publisher: %w", err)
	}
	if p == nil {
		return model.NewPublisherNotFoundError(publisherID)
	}
	return nil
}

func validate(n *model.Newsletter) error {
	if n.Title == "" {
		return model.NewValidationError("newsletter title is required")
	}
	if utf8.RuneCountInString(n.Title) > model.MaxTitleLength {
		return model.NewValidationError(fmt.Sprintf("title must be at most %d characters", model.MaxTitleLength))
	}
	if strings.TrimSpace(n.Content) == "" {
		return model.NewValidationError("newsletter content is required")
	}
	return nil
}

// Create は記者のニュースレターを作成する。スラッグはタイトルから生成し、
// 既に使われていれば -1, -2 ... の接尾辞を付ける。
func (s *Service) Create(ctx context.Context, authorID string, in CreateInput) (*model.Newsletter, error) {
	author, err := s.loadUser(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if err := access.CanCreateNewsletter(author).Err(); err != nil {
		return nil, err
	}

	now := s.now()
	n := &model.Newsletter{
		ID:          uuid.New().String(),
		Title:       strings.TrimSpace(in.Title),
		Content:     in.Content,
		AuthorID:    author.ID,
		PublisherID: in.PublisherID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Publish {
		n.PublishedAt = &now
	}
	if err := validate(n); err != nil {
		return nil, err
	}
	if err := s.ensurePublisher(ctx, n.PublisherID); err != nil {
		return nil, err
	}

	if err := s.insertWithUniqueSlug(ctx, n); err != nil {
		return nil, err
	}

	s.logger.Info("ニュースレターを作成しました",
		slog.String("newsletter_id", n.ID),
		slog.String("slug", n.Slug),
		slog.String("author_id", author.ID),
		slog.Bool("published", n.IsPublished()),
	)
	return n, nil
}

// insertWithUniqueSlug は空いている候補スラッグで作成する。
// 確認と作成の間に同じスラッグが使われた場合は次の候補で再試行する。
func (s *Service) insertWithUniqueSlug(ctx context.Context, n *model.Newsletter) error {
	base := slugify(n.Title)
	for i := 0; i < maxSlugAttempts; i++ {
		candidate := candidateSlug(base, i)
		existing, err := s.newsletterRepo.FindBySlug(ctx, candidate)
		if err != nil {
			return fmt.Errorf("failed to find newsletter: %w", err)
		}
		if existing != nil {
			continue
		}

		n.Slug = candidate
		err = s.newsletterRepo.Create(ctx, n)
		if errors.Is(err, repository.ErrSlugTaken) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to create newsletter: %w", err)
		}
		return nil
	}
	return model.NewValidationError(fmt.Sprintf("too many newsletters share the slug %q", base))
}

// Edit は編集者または著者がニュースレターを編集する。スラッグは変わらない。
func (s *Service) Edit(ctx context.Context, actorID, id string, changes Changes) (*model.Newsletter, error) {
	actor, err := s.loadUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	n, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.CanManageNewsletter(actor, n).Err(); err != nil {
		return nil, err
	}

	if changes.Title != nil {
		n.Title = strings.TrimSpace(*changes.Title)
	}
	if changes.Content != nil {
		n.Content = *changes.Content
	}
	if changes.PublisherID != nil {
		n.PublisherID = *changes.PublisherID
		if err := s.ensurePublisher(ctx, n.PublisherID); err != nil {
			return nil, err
		}
	}
	if err := validate(n); err != nil {
		return nil, err
	}
	n.UpdatedAt = s.now()

	if err := s.save(ctx, n, "ニュースレターを編集しました", actor.ID); err != nil {
		return nil, err
	}
	return n, nil
}

// Publish はニュースレターを発行済みにする。発行済みなら発行日時は変えない。
func (s *Service) Publish(ctx context.Context, actorID, id string) (*model.Newsletter, error) {
	actor, err := s.loadUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	n, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.CanManageNewsletter(actor, n).Err(); err != nil {
		return nil, err
	}
	if n.IsPublished() {
		return n, nil
	}

	now := s.now()
	n.PublishedAt = &now
	n.UpdatedAt = now
	if err := s.save(ctx, n, "ニュースレターを発行しました", actor.ID); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Service) save(ctx context.Context, n *model.Newsletter, msg, actorID string) error {
	updated, err := s.newsletterRepo.Update(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to update newsletter: %w", err)
	}
	if !updated {
		return model.NewNewsletterNotFoundError(n.ID)
	}
	s.logger.Info(msg,
		slog.String("newsletter_id", n.ID),
		slog.String("actor_id", actorID),
	)
	return nil
}

// Delete は編集者または著者がニュースレターを削除する。
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	actor, err := s.loadUser(ctx, actorID)
	if err != nil {
		return err
	}
	n, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := access.CanManageNewsletter(actor, n).Err(); err != nil {
		return err
	}

	deleted, err := s.newsletterRepo.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete newsletter: %w", err)
	}
	if !deleted {
		return model.NewNewsletterNotFoundError(id)
	}

	s.logger.Info("ニュースレターを削除しました",
		slog.String("newsletter_id", id),
		slog.String("actor_id", actor.ID),
	)
	return nil
}

// Get はIDでニュースレターを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Newsletter, error) {
	return s.load(ctx, id)
}

// GetBySlug はスラッグでニュースレターを返す。
func (s *Service) GetBySlug(ctx context.Context, slug string) (*model.Newsletter, error) {
	n, err := s.newsletterRepo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to find newsletter: %w", err)
	}
	if n == nil {
		return nil, model.NewNewsletterNotFoundError(slug)
	}
	return n, nil
}

// List は全ニュースレターを新しい順で返す。
func (s *Service) List(ctx context.Context) ([]*model.Newsletter, error) {
	newsletters, err := s.newsletterRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list newsletters: %w", err)
	}
	return newsletters, nil
}
