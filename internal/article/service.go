// Package article は記事の投稿・編集・承認・削除のライフサイクルを提供する。
// 承認遷移は永続層の単一の条件付き更新で検出し、遷移した呼び出しだけが通知を起動する。
package article

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdesk/internal/access"
	"github.com/hitoshi/newsdesk/internal/metrics"
	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/notify"
	"github.com/hitoshi/newsdesk/internal/repository"
)

// Dispatcher は通知配信のインターフェース。呼び出しはブロックしない。
type Dispatcher interface {
	Dispatch(a notify.Announcement, recipients []string)
	Retract(articleID, postID string)
}

// RecipientResolver は記事の通知対象者を解決するインターフェース。
type RecipientResolver interface {
	Resolve(ctx context.Context, article *model.Article) ([]string, error)
}

// SubmitInput は記事投稿の入力。
type SubmitInput struct {
	Title       string
	Content     string
	Summary     string
	PublisherID string // 空なら独立記事
}

// Changes は記事編集の差分。nilのフィールドは変更しない。
// PublisherIDに空文字を指定すると独立記事になる。
type Changes struct {
	Title       *string
	Content     *string
	Summary     *string
	PublisherID *string
}

// ApprovalResult は承認操作の結果。
// Transitionedは今回の呼び出しで未承認から承認済みに遷移した場合のみtrue。
type ApprovalResult struct {
	Transitioned bool
	Article      *model.Article
}

// Service は記事ライフサイクルのサービス層。
type Service struct {
	articleRepo   repository.ArticleRepository
	userRepo      repository.UserRepository
	publisherRepo repository.PublisherRepository
	resolver      RecipientResolver
	dispatcher    Dispatcher
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	now           func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	articleRepo repository.ArticleRepository,
	userRepo repository.UserRepository,
	publisherRepo repository.PublisherRepository,
	resolver RecipientResolver,
	dispatcher Dispatcher,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		articleRepo:   articleRepo,
		userRepo:      userRepo,
		publisherRepo: publisherRepo,
		resolver:      resolver,
		dispatcher:    dispatcher,
		metrics:       collector,
		logger:        logger,
		now:           time.Now,
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

func (s *Service) loadArticle(ctx context.Context, id string) (*model.Article, error) {
	a, err := s.articleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find article: %w", err)
	}
	if a == nil {
		return nil, model.NewArticleNotFoundError(id)
	}
	return a, nil
}

// validate は記事の入力値を検証する。
func validate(a *model.Article) error {
	title := strings.TrimSpace(a.Title)
	if title == "" {
		return model.NewValidationError("title is required")
	}
	if utf8.RuneCountInString(a.Title) > model.MaxTitleLength {
		return model.NewValidationError(fmt.Sprintf("title must be at most %d characters", model.MaxTitleLength))
	}
	if strings.TrimSpace(a.Content) == "" {
		return model.NewValidationError("content is required")
	}
	if utf8.RuneCountInString(a.Summary) > model.MaxSummaryLength {
		return model.NewValidationError(fmt.Sprintf("summary must be at most %d characters", model.MaxSummaryLength))
	}
	return nil
}

func (s *Service) ensurePublisher(ctx context.Context, publisherID string) error {
	if publisherID == "" {
		return nil
	}
	pub, err := s.publisherRepo.FindByID(ctx, publisherID)
	if err != nil {
		return fmt.Errorf("failed to find publisher: %w", err)
	}
	if pub == nil {
		return model.NewPublisherNotFoundError(publisherID)
	}
	return nil
}

// Submit は記者の記事を承認待ち状態で作成する。
func (s *Service) Submit(ctx context.Context, authorID string, in SubmitInput) (*model.Article, error) {
	author, err := s.loadUser(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if err := access.CanCreateArticle(author).Err(); err != nil {
		return nil, err
	}

	now := s.now()
	a := &model.Article{
		ID:            uuid.New().String(),
		Title:         strings.TrimSpace(in.Title),
		Content:       in.Content,
		Summary:       in.Summary,
		AuthorID:      author.ID,
		PublisherID:   in.PublisherID,
		ApprovalState: model.ApprovalStatePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := validate(a); err != nil {
		return nil, err
	}
	if err := s.ensurePublisher(ctx, a.PublisherID); err != nil {
		return nil, err
	}

	if err := s.articleRepo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create article: %w", err)
	}

	s.logger.Info("記事を投稿しました",
		slog.String("article_id", a.ID),
		slog.String("author_id", a.AuthorID),
		slog.Bool("independent", a.Independent()),
	)
	return a, nil
}

// Edit は承認前の記事を著者が編集する。
// 永続化は未承認であることを条件とした更新で行い、並行する承認の後に書き込むことはない。
func (s *Service) Edit(ctx context.Context, actorID, articleID string, changes Changes) (*model.Article, error) {
	actor, err := s.loadUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	a, err := s.loadArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	if err := access.CanEditArticle(actor, a).Err(); err != nil {
		return nil, err
	}

	if changes.Title != nil {
		a.Title = strings.TrimSpace(*changes.Title)
	}
	if changes.Content != nil {
		a.Content = *changes.Content
	}
	if changes.Summary != nil {
		a.Summary = *changes.Summary
	}
	if changes.PublisherID != nil {
		a.PublisherID = *changes.PublisherID
	}
	if err := validate(a); err != nil {
		return nil, err
	}
	if changes.PublisherID != nil {
		if err := s.ensurePublisher(ctx, a.PublisherID); err != nil {
			return nil, err
		}
	}

	a.UpdatedAt = s.now()
	updated, err := s.articleRepo.UpdateUnapproved(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to update article: %w", err)
	}
	if !updated {
		return nil, s.lostRace(ctx, articleID)
	}

	s.logger.Info("記事を編集しました",
		slog.String("article_id", a.ID),
		slog.String("actor_id", actor.ID),
	)
	return a, nil
}

// lostRace は条件付き書き込みが行われなかった理由をエラーにする。
// 判定後に承認されたか削除された場合に呼ばれる。
func (s *Service) lostRace(ctx context.Context, articleID string) error {
	cur, err := s.articleRepo.FindByID(ctx, articleID)
	if err != nil {
		return fmt.Errorf("failed to find article: %w", err)
	}
	if cur == nil {
		return model.NewArticleNotFoundError(articleID)
	}
	return model.NewPermissionDeniedError(access.ReasonAlreadyApproved)
}

// Approve は編集者が記事を承認する。
// 未承認から承認済みへの遷移は一度だけ起こり、遷移させた呼び出しだけが通知を投入する。
// 既に承認済みの場合はエラーにせずTransitioned=falseを返す。
func (s *Service) Approve(ctx context.Context, editorID, articleID string) (*ApprovalResult, error) {
	editor, err := s.loadUser(ctx, editorID)
	if err != nil {
		return nil, err
	}
	a, err := s.loadArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	if err := access.CanApprove(editor, a).Err(); err != nil {
		return nil, err
	}

	approvedAt := s.now()
	transitioned, err := s.articleRepo.CompareAndSetApproved(ctx, articleID, editor.ID, approvedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to approve article: %w", err)
	}
	s.metrics.RecordApproval(transitioned)

	cur, err := s.loadArticle(ctx, articleID)
	if err != nil {
		if !transitioned {
			return nil, err
		}
		// 承認は確定しているため、再取得に失敗しても通知は止めない。
		s.logger.Error("承認後の記事の再取得に失敗しました",
			slog.String("article_id", articleID),
			slog.String("error", err.Error()),
		)
		cur = approvedCopy(a, editor.ID, approvedAt)
	}
	if !transitioned {
		s.logger.Info("記事は既に承認済みです",
			slog.String("article_id", articleID),
			slog.String("editor_id", editor.ID),
		)
		return &ApprovalResult{Transitioned: false, Article: cur}, nil
	}

	s.logger.Info("記事を承認しました",
		slog.String("article_id", articleID),
		slog.String("editor_id", editor.ID),
	)
	s.notifyApproved(ctx, cur)
	return &ApprovalResult{Transitioned: true, Article: cur}, nil
}

// approvedCopy は承認前に読み込んだ記事から承認済みの状態を組み立てる。
func approvedCopy(a *model.Article, editorID string, at time.Time) *model.Article {
	cp := *a
	cp.ApprovalState = model.ApprovalStateApproved
	cp.ApprovedBy = editorID
	cp.ApprovedAt = &at
	cp.UpdatedAt = at
	return &cp
}

// notifyApproved は通知対象者を解決して配信を投入する。
// 失敗はログに記録し、承認結果には影響させない。
func (s *Service) notifyApproved(ctx context.Context, a *model.Article) {
	recipients, err := s.resolver.Resolve(ctx, a)
	if err != nil {
		s.logger.Error("通知対象者の解決に失敗しました",
			slog.String("article_id", a.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	announcement, err := s.announcement(ctx, a)
	if err != nil {
		s.logger.Error("告知内容の組み立てに失敗しました",
			slog.String("article_id", a.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.dispatcher.Dispatch(announcement, recipients)
}

func (s *Service) announcement(ctx context.Context, a *model.Article) (notify.Announcement, error) {
	ann := notify.Announcement{
		ArticleID: a.ID,
		Title:     a.Title,
		Summary:   a.Summary,
	}

	author, err := s.userRepo.FindByID(ctx, a.AuthorID)
	if err != nil {
		return ann, fmt.Errorf("failed to find author: %w", err)
	}
	if author != nil {
		ann.AuthorName = author.Username
	}

	if !a.Independent() {
		pub, err := s.publisherRepo.FindByID(ctx, a.PublisherID)
		if err != nil {
			return ann, fmt.Errorf("failed to find publisher: %w", err)
		}
		if pub != nil {
			ann.PublisherName = pub.Name
		}
	}
	return ann, nil
}

// ListApproved は公開済み（承認済み）の記事を新しい順で返す。閲覧に権限は要らない。
func (s *Service) ListApproved(ctx context.Context) ([]*model.Article, error) {
	articles, err := s.articleRepo.ListApproved(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved articles: %w", err)
	}
	return articles, nil
}

// GetApproved は承認済みの記事を返す。未承認の記事は存在しないものとして扱う。
func (s *Service) GetApproved(ctx context.Context, articleID string) (*model.Article, error) {
	a, err := s.articleRepo.FindApproved(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to find article: %w", err)
	}
	if a == nil {
		return nil, model.NewArticleNotFoundError(articleID)
	}
	return a, nil
}

// Delete は承認前の記事を著者が削除する。
// ソーシャル告知の投稿IDが記録されていれば取り消しを投入する。
func (s *Service) Delete(ctx context.Context, actorID, articleID string) error {
	actor, err := s.loadUser(ctx, actorID)
	if err != nil {
		return err
	}
	a, err := s.loadArticle(ctx, articleID)
	if err != nil {
		return err
	}
	if err := access.CanDeleteArticle(actor, a).Err(); err != nil {
		return err
	}

	deleted, err := s.articleRepo.DeleteUnapproved(ctx, articleID)
	if err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}
	if !deleted {
		return s.lostRace(ctx, articleID)
	}

	s.dispatcher.Retract(a.ID, a.SocialPostID)
	s.logger.Info("記事を削除しました",
		slog.String("article_id", a.ID),
		slog.String("actor_id", actor.ID),
	)
	return nil
}

// PurgeByAuthor は著者の全記事を承認状態に関わらず削除し、削除件数を返す。
// アカウント退会時に呼ばれる。記録済みのソーシャル告知はすべて取り消す。
func (s *Service) PurgeByAuthor(ctx context.Context, authorID string) (int, error) {
	articles, err := s.articleRepo.ListByAuthor(ctx, authorID)
	if err != nil {
		return 0, fmt.Errorf("failed to list articles: %w", err)
	}

	purged := 0
	for _, a := range articles {
		if err := s.articleRepo.DeleteByID(ctx, a.ID); err != nil {
			return purged, fmt.Errorf("failed to delete article %s: %w", a.ID, err)
		}
		s.dispatcher.Retract(a.ID, a.SocialPostID)
		purged++
	}

	if purged > 0 {
		s.logger.Info("著者の記事を削除しました",
			slog.String("author_id", authorID),
			slog.Int("count", purged),
		)
	}
	return purged, nil
}
