package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hitoshi/newsdesk/internal/article"
	"github.com/hitoshi/newsdesk/internal/config"
	"github.com/hitoshi/newsdesk/internal/database"
	"github.com/hitoshi/newsdesk/internal/model"
	"github.com/hitoshi/newsdesk/internal/newsletter"
	"github.com/hitoshi/newsdesk/internal/publisher"
)

// userDirectory はユーザー名からユーザーを引くインターフェース。
type userDirectory interface {
	FindByUsername(ctx context.Context, username string) (*model.User, error)
}

// roleChanger は役割変更のインターフェース。user.Serviceが満たす。
type roleChanger interface {
	userDirectory
	ChangeRole(ctx context.Context, userID string, newRole model.Role) (*model.User, error)
}

// articleApprover は記事承認のインターフェース。article.Serviceが満たす。
type articleApprover interface {
	Approve(ctx context.Context, editorID, articleID string) (*article.ApprovalResult, error)
}

// publisherCreator は発行元作成のインターフェース。publisher.Serviceが満たす。
type publisherCreator interface {
	Create(ctx context.Context, actorID string, in publisher.CreateInput) (*model.Publisher, error)
}

// subscriber は購読のインターフェース。subscription.Serviceが満たす。
type subscriber interface {
	Subscribe(ctx context.Context, readerID, targetID string, kind model.SubscriptionKind) error
}

// newsletterCreator はニュースレター作成のインターフェース。newsletter.Serviceが満たす。
type newsletterCreator interface {
	Create(ctx context.Context, authorID string, in newsletter.CreateInput) (*model.Newsletter, error)
}

// changeRole はユーザー名で指定したユーザーの役割を変更する。
func changeRole(ctx context.Context, users roleChanger, username, role string) (*model.User, error) {
	r, ok := model.ParseRole(role)
	if !ok {
		return nil, model.NewInvalidRoleError(role)
	}
	u, err := users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return users.ChangeRole(ctx, u.ID, r)
}

// approve はユーザー名で指定した編集者として記事を承認する。
func approve(ctx context.Context, users userDirectory, articles articleApprover, articleID, editorUsername string) (*article.ApprovalResult, error) {
	editor, err := users.FindByUsername(ctx, editorUsername)
	if err != nil {
		return nil, err
	}
	return articles.Approve(ctx, editor.ID, articleID)
}

// createPublisher はユーザー名で指定した記者として発行元を作成する。
func createPublisher(ctx context.Context, users userDirectory, publishers publisherCreator, username, name string) (*model.Publisher, error) {
	actor, err := users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return publishers.Create(ctx, actor.ID, publisher.CreateInput{Name: name})
}

// subscribe はユーザー名で指定した読者を発行元または記者に購読させる。
func subscribe(ctx context.Context, users userDirectory, subs subscriber, username, kind, targetID string) error {
	k := model.SubscriptionKind(kind)
	if !k.Valid() {
		return model.NewValidationError(fmt.Sprintf("unknown subscription kind %q", kind))
	}
	reader, err := users.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	return subs.Subscribe(ctx, reader.ID, targetID, k)
}

// publishNewsletter はユーザー名で指定した記者としてニュースレターを作成し、発行する。
func publishNewsletter(ctx context.Context, users userDirectory, newsletters newsletterCreator, username, title, content string) (*model.Newsletter, error) {
	author, err := users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return newsletters.Create(ctx, author.ID, newsletter.CreateInput{
		Title:   title,
		Content: content,
		Publish: true,
	})
}

// withComponents はDBに接続してドメインサービスを組み立て、fnを実行する。
// ディスパッチャは起動しないため、fnの中で通知は配信されない。
func withComponents(cfg *config.Config, fn func(ctx context.Context, c *components) error) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := buildComponents(cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer c.dispatcher.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return fn(ctx, c)
}

// runChangeRole はchange-roleサブコマンドを実行する。
func runChangeRole(cfg *config.Config, username, role string) error {
	return withComponents(cfg, func(ctx context.Context, c *components) error {
		u, err := changeRole(ctx, c.users, username, role)
		if err != nil {
			return fmt.Errorf("change-role failed: %w", err)
		}

		slog.Info("role changed",
			slog.String("user_id", u.ID),
			slog.String("username", u.Username),
			slog.String("role", string(u.Role)),
		)
		return nil
	})
}

// runCreatePublisher はcreate-publisherサブコマンドを実行する。
func runCreatePublisher(cfg *config.Config, username, name string) error {
	return withComponents(cfg, func(ctx context.Context, c *components) error {
		p, err := createPublisher(ctx, c.users, c.publishers, username, name)
		if err != nil {
			return fmt.Errorf("create-publisher failed: %w", err)
		}

		slog.Info("publisher created",
			slog.String("publisher_id", p.ID),
			slog.String("name", p.Name),
		)
		return nil
	})
}

// runSubscribe はsubscribeサブコマンドを実行する。
func runSubscribe(cfg *config.Config, username, kind, targetID string) error {
	return withComponents(cfg, func(ctx context.Context, c *components) error {
		if err := subscribe(ctx, c.users, c.subscriptions, username, kind, targetID); err != nil {
			return fmt.Errorf("subscribe failed: %w", err)
		}

		slog.Info("subscription added",
			slog.String("username", username),
			slog.String("kind", kind),
			slog.String("target_id", targetID),
		)
		return nil
	})
}

// runPublishNewsletter はpublish-newsletterサブコマンドを実行する。
func runPublishNewsletter(cfg *config.Config, username, title, content string) error {
	return withComponents(cfg, func(ctx context.Context, c *components) error {
		n, err := publishNewsletter(ctx, c.users, c.newsletters, username, title, content)
		if err != nil {
			return fmt.Errorf("publish-newsletter failed: %w", err)
		}

		slog.Info("newsletter published",
			slog.String("newsletter_id", n.ID),
			slog.String("slug", n.Slug),
		)
		return nil
	})
}

// runApprove はapproveサブコマンドを実行する。
// 承認で遷移した場合は、キューに入った通知の配信完了を待ってから終了する。
func runApprove(cfg *config.Config, articleID, editorUsername string) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := buildComponents(cfg, db, slog.Default())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c.dispatcher.Start(ctx)
	res, err := approve(ctx, c.users, c.articles, articleID, editorUsername)
	c.dispatcher.Close()
	if err != nil {
		return fmt.Errorf("approve failed: %w", err)
	}

	slog.Info("approve finished",
		slog.String("article_id", articleID),
		slog.Bool("transitioned", res.Transitioned),
	)
	return nil
}
