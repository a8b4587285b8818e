package app

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/newsdesk/internal/article"
	"github.com/hitoshi/newsdesk/internal/auth"
	"github.com/hitoshi/newsdesk/internal/config"
	"github.com/hitoshi/newsdesk/internal/mail"
	"github.com/hitoshi/newsdesk/internal/metrics"
	"github.com/hitoshi/newsdesk/internal/newsletter"
	"github.com/hitoshi/newsdesk/internal/notify"
	"github.com/hitoshi/newsdesk/internal/publisher"
	"github.com/hitoshi/newsdesk/internal/repository"
	"github.com/hitoshi/newsdesk/internal/security"
	"github.com/hitoshi/newsdesk/internal/social"
	"github.com/hitoshi/newsdesk/internal/subscription"
	"github.com/hitoshi/newsdesk/internal/user"
)

// components はDB接続から組み立てたドメインサービス群。
type components struct {
	registry      *prometheus.Registry
	sessionRepo   *repository.PostgresSessionRepo
	dispatcher    *notify.Dispatcher
	articles      *article.Service
	users         *user.Service
	publishers    *publisher.Service
	subscriptions *subscription.Service
	newsletters   *newsletter.Service
}

// buildComponents はリポジトリ、通知ディスパッチャ、ドメインサービスをワイヤリングする。
// ディスパッチャは起動しない。呼び出し側でStartとCloseを行うこと。
func buildComponents(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*components, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	articleRepo := repository.NewPostgresArticleRepo(db)
	publisherRepo := repository.NewPostgresPublisherRepo(db)
	subRepo := repository.NewPostgresSubscriptionRepo(db)
	newsletterRepo := repository.NewPostgresNewsletterRepo(db)

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. 通知チャネル
	poster, err := newSocialPoster(cfg, logger)
	if err != nil {
		return nil, err
	}
	mailer := mail.NewSMTPSender(mail.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
	renderer := notify.NewMessageRenderer(cfg.BaseURL, security.NewEmailSanitizer())

	var limiter *rate.Limiter
	if cfg.EmailRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmailRatePerSec), cfg.EmailBurst)
	}
	dispatcher := notify.NewDispatcher(
		userRepo, mailer, poster, articleRepo, renderer, collector, logger,
		notify.Options{
			Workers:      cfg.DispatchWorkers,
			QueueSize:    cfg.DispatchQueueSize,
			SendTimeout:  cfg.SendTimeout,
			EmailLimiter: limiter,
		},
	)

	// 4. ドメインサービス
	resolver := subscription.NewResolver(subRepo)
	articleService := article.NewService(
		articleRepo, userRepo, publisherRepo, resolver, dispatcher, collector, logger,
	)
	invalidator := auth.NewSessionInvalidator(sessionRepo, collector, logger)
	userService := user.NewService(userRepo, subRepo, publisherRepo, invalidator, articleService, logger)

	return &components{
		registry:      registry,
		sessionRepo:   sessionRepo,
		dispatcher:    dispatcher,
		articles:      articleService,
		users:         userService,
		publishers:    publisher.NewService(publisherRepo, userRepo, logger),
		subscriptions: subscription.NewService(subRepo, userRepo, publisherRepo, logger),
		newsletters:   newsletter.NewService(newsletterRepo, userRepo, publisherRepo, logger),
	}, nil
}

// newSocialPoster は設定されたソーシャルチャネルの投稿クライアントを生成する。
// チャネルがnoneの場合はnilを返し、ソーシャル告知は行わない。
func newSocialPoster(cfg *config.Config, logger *slog.Logger) (notify.SocialPoster, error) {
	switch cfg.SocialChannel {
	case config.SocialChannelX:
		guard := security.NewEndpointGuard()
		if err := guard.ValidateEndpoint(cfg.XAPIURL); err != nil {
			return nil, fmt.Errorf("invalid X_API_URL: %w", err)
		}
		client := guard.NewSafeClient(cfg.SendTimeout)
		return social.NewXPoster(client, cfg.XAPIURL, cfg.XBearerToken, logger), nil
	case config.SocialChannelTelegram:
		poster, err := social.NewTelegramPoster(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.SendTimeout, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telegram poster: %w", err)
		}
		return poster, nil
	default:
		return nil, nil
	}
}
