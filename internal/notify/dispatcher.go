// Package notify は承認された記事の通知配信を提供する。
// 受信者ごとのメール送信と1件のソーシャル告知を、呼び出し元から切り離した
// 固定数のワーカーで並行に実行する。配信は最善努力で、失敗はログとメトリクスに記録して破棄する。
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/newsdesk/internal/metrics"
	"github.com/hitoshi/newsdesk/internal/model"
)

// EmailSender はメール送信のインターフェース。
type EmailSender interface {
	Send(ctx context.Context, to, subject string, body Body) error
}

// SocialPoster はソーシャルチャネルへの投稿インターフェース。
type SocialPoster interface {
	// Post は投稿を作成し、投稿IDを返す。
	Post(ctx context.Context, text string) (string, error)
	// Delete は投稿IDで投稿を削除する。
	Delete(ctx context.Context, postID string) error
}

// UserFinder は受信者の連絡先を取得するインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// PostRecorder はソーシャル投稿IDを記事に記録するインターフェース。
// 記事が既に存在しない場合はfalseを返す。
type PostRecorder interface {
	SetSocialPostID(ctx context.Context, articleID, postID string) (bool, error)
}

// タスク種別（ログとメトリクスのラベル）
const (
	taskEmail   = "email"
	taskSocial  = "social"
	taskRetract = "retract"
)

// Options はDispatcherの設定。
type Options struct {
	Workers     int           // ワーカー数。0以下なら8
	QueueSize   int           // キュー長。0以下なら1024
	SendTimeout time.Duration // 1送信あたりのタイムアウト。0以下なら10秒
	// EmailLimiter はメール送信の流量制限。nilなら無制限。
	EmailLimiter *rate.Limiter
}

const (
	defaultWorkers     = 8
	defaultQueueSize   = 1024
	defaultSendTimeout = 10 * time.Second
)

type task struct {
	kind     string
	enqueued time.Time
	run      func(ctx context.Context)
}

// Dispatcher は通知タスクを有界キューと固定数のワーカーで実行する。
// Dispatchはキューが満杯なら待たずにタスクを破棄する。
type Dispatcher struct {
	users    UserFinder
	mailer   EmailSender
	poster   SocialPoster // nilならソーシャル告知は無効
	recorder PostRecorder
	renderer *MessageRenderer
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	opts     Options

	queue chan task
	wg    sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	started bool
}

// NewDispatcher はDispatcherを生成する。Startを呼ぶまでタスクは実行されない。
func NewDispatcher(
	users UserFinder,
	mailer EmailSender,
	poster SocialPoster,
	recorder PostRecorder,
	renderer *MessageRenderer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		users:    users,
		mailer:   mailer,
		poster:   poster,
		recorder: recorder,
		renderer: renderer,
		metrics:  collector,
		logger:   logger,
		opts:     opts,
		queue:    make(chan task, opts.QueueSize),
	}
}

// Start はワーカーを起動する。2回目以降の呼び出しは何もしない。
// ctxの値は各タスクに引き継がれるが、キャンセルは伝播しない。
// 実行中の送信はSendTimeoutでのみ打ち切られる。
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	base := context.WithoutCancel(ctx)
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(base)
	}

	d.logger.Info("通知ディスパッチャを開始しました",
		slog.Int("workers", d.opts.Workers),
		slog.Int("queue_size", d.opts.QueueSize),
	)
}

func (d *Dispatcher) worker(base context.Context) {
	defer d.wg.Done()
	for t := range d.queue {
		d.runTask(base, t)
	}
}

// runTask は1タスクを実行する。タスク内のpanicはワーカーを止めない。
func (d *Dispatcher) runTask(base context.Context, t task) {
	ctx, cancel := context.WithTimeout(base, d.opts.SendTimeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("通知タスクでpanicが発生しました",
				slog.String("kind", t.kind),
				slog.Any("panic", rec),
			)
		}
		d.metrics.RecordDispatchLatency(time.Since(t.enqueued))
	}()
	t.run(ctx)
}

// Close は新規タスクの受付を停止し、キューに残ったタスクの完了を待つ。
// Startされていない場合、残ったタスクは実行されずに破棄される。
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		dropped := len(d.queue)
		if dropped > 0 {
			d.logger.Warn("未起動のディスパッチャを閉じたため通知タスクを破棄しました",
				slog.Int("dropped", dropped),
			)
		}
		return
	}
	d.wg.Wait()
	d.logger.Info("通知ディスパッチャを停止しました")
}

// enqueue はタスクをキューに入れる。満杯または停止済みならfalseを返す。
func (d *Dispatcher) enqueue(t task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- t:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) submit(kind, articleID string, attrs []any, run func(ctx context.Context)) {
	t := task{kind: kind, enqueued: time.Now(), run: run}
	if d.enqueue(t) {
		return
	}
	d.metrics.RecordDispatchDropped(kind)
	d.logger.Warn("通知キューが満杯または停止済みのためタスクを破棄しました",
		append([]any{slog.String("kind", kind), slog.String("article_id", articleID)}, attrs...)...,
	)
}

// Dispatch は受信者ごとのメール送信と1件のソーシャル告知を投入する。
// 呼び出し元をブロックせず、送信結果も返さない。
func (d *Dispatcher) Dispatch(a Announcement, recipients []string) {
	d.logger.Info("通知を投入します",
		slog.String("article_id", a.ArticleID),
		slog.Int("recipients", len(recipients)),
	)

	for _, id := range recipients {
		recipientID := id
		d.submit(taskEmail, a.ArticleID, []any{slog.String("recipient_id", recipientID)}, func(ctx context.Context) {
			d.sendEmail(ctx, a, recipientID)
		})
	}

	if d.poster == nil {
		d.logger.Info("ソーシャル告知が無効のため投稿をスキップしました",
			slog.String("article_id", a.ArticleID),
		)
		return
	}
	d.submit(taskSocial, a.ArticleID, nil, func(ctx context.Context) {
		d.postSocial(ctx, a)
	})
}

// Retract は記事削除に伴いソーシャル告知の取り消しを投入する。
func (d *Dispatcher) Retract(articleID, postID string) {
	if postID == "" {
		return
	}
	if d.poster == nil {
		d.logger.Warn("ソーシャル告知が無効のため取り消しをスキップしました",
			slog.String("article_id", articleID),
			slog.String("post_id", postID),
		)
		return
	}
	d.submit(taskRetract, articleID, []any{slog.String("post_id", postID)}, func(ctx context.Context) {
		d.retract(ctx, articleID, postID)
	})
}

func (d *Dispatcher) sendEmail(ctx context.Context, a Announcement, recipientID string) {
	logFailure := func(msg string, err error) {
		d.metrics.RecordEmailFailure()
		d.logger.Error(msg,
			slog.String("article_id", a.ArticleID),
			slog.String("recipient_id", recipientID),
			slog.String("error", err.Error()),
		)
	}

	user, err := d.users.FindByID(ctx, recipientID)
	if err != nil {
		logFailure("受信者の取得に失敗しました", err)
		return
	}
	if user == nil || user.Email == "" {
		d.metrics.RecordEmailFailure()
		d.logger.Warn("受信者のメールアドレスがないため送信をスキップしました",
			slog.String("article_id", a.ArticleID),
			slog.String("recipient_id", recipientID),
		)
		return
	}

	body, err := d.renderer.EmailBody(a, user.Username)
	if err != nil {
		logFailure("メール本文の生成に失敗しました", err)
		return
	}

	if d.opts.EmailLimiter != nil {
		if err := d.opts.EmailLimiter.Wait(ctx); err != nil {
			logFailure("メール送信の流量制限待ちに失敗しました", err)
			return
		}
	}

	if err := d.mailer.Send(ctx, user.Email, d.renderer.Subject(a), body); err != nil {
		logFailure("通知メールの送信に失敗しました", err)
		return
	}

	d.metrics.RecordEmailSent()
	d.logger.Info("通知メールを送信しました",
		slog.String("article_id", a.ArticleID),
		slog.String("recipient_id", recipientID),
	)
}

func (d *Dispatcher) postSocial(ctx context.Context, a Announcement) {
	postID, err := d.poster.Post(ctx, d.renderer.PostText(a))
	if err != nil {
		d.metrics.RecordSocialPost(false)
		d.logger.Error("ソーシャル告知の投稿に失敗しました",
			slog.String("article_id", a.ArticleID),
			slog.String("error", err.Error()),
		)
		return
	}
	d.metrics.RecordSocialPost(true)
	d.logger.Info("ソーシャル告知を投稿しました",
		slog.String("article_id", a.ArticleID),
		slog.String("post_id", postID),
	)

	if d.recorder == nil || postID == "" {
		return
	}
	recorded, err := d.recorder.SetSocialPostID(ctx, a.ArticleID, postID)
	if err != nil {
		d.logger.Error("投稿IDの記録に失敗しました",
			slog.String("article_id", a.ArticleID),
			slog.String("post_id", postID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !recorded {
		// 投稿中に記事が削除された。削除側は投稿IDを知らないためここで取り消す。
		d.logger.Warn("投稿済みの記事が削除されていたため告知を取り消します",
			slog.String("article_id", a.ArticleID),
			slog.String("post_id", postID),
		)
		d.retract(ctx, a.ArticleID, postID)
	}
}

func (d *Dispatcher) retract(ctx context.Context, articleID, postID string) {
	if err := d.poster.Delete(ctx, postID); err != nil {
		d.metrics.RecordSocialRetract(false)
		d.logger.Error("ソーシャル告知の取り消しに失敗しました",
			slog.String("article_id", articleID),
			slog.String("post_id", postID),
			slog.String("error", err.Error()),
		)
		return
	}
	d.metrics.RecordSocialRetract(true)
	d.logger.Info("ソーシャル告知を取り消しました",
		slog.String("article_id", articleID),
		slog.String("post_id", postID),
	)
}
