// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/newsdesk/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindByRole は指定した役割を持つユーザーをユーザー名順で返す。
	FindByRole(ctx context.Context, role model.Role) ([]*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// UpdateRole はユーザーの役割を更新する。ユーザーが存在しない場合はエラーを返す。
	UpdateRole(ctx context.Context, id string, role model.Role) error

	// DeleteByID は指定IDのユーザーを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// ListByUserID は指定ユーザーの有効なセッションを返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除し、削除件数を返す。
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ArticleRepository は記事データの永続化インターフェース。
// 承認遷移はCompareAndSetApprovedによる単一の原子的更新で行う。
type ArticleRepository interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Article, error)

	// FindApproved は承認済みの記事を取得する。未承認または存在しない場合はnilを返す。
	FindApproved(ctx context.Context, id string) (*model.Article, error)

	// ListByAuthor は指定記者の記事を作成日時の降順で返す。
	ListByAuthor(ctx context.Context, authorID string) ([]*model.Article, error)

	// ListApproved は承認済みの記事を作成日時の降順で返す。
	ListApproved(ctx context.Context) ([]*model.Article, error)

	// Create は記事を作成する。
	Create(ctx context.Context, article *model.Article) error

	// UpdateUnapproved は未承認の記事の可変フィールドを更新する。
	// 更新時点で承認済みだった場合は何もせずfalseを返す。
	UpdateUnapproved(ctx context.Context, article *model.Article) (bool, error)

	// CompareAndSetApproved は永続化済みの承認状態が承認済みでない場合に限り、
	// approvalState=approved、approvedBy、approvedAtを設定してtrueを返す。
	// 既に承認済みなら何も書き込まずfalseを返す。
	// 同一記事への同時呼び出しのうちtrueを受け取るのは1つだけである。
	CompareAndSetApproved(ctx context.Context, id, editorID string, now time.Time) (bool, error)

	// SetSocialPostID はソーシャル告知の投稿IDを記録する。
	// 記事が存在しない場合は何もせずfalseを返す。
	SetSocialPostID(ctx context.Context, id, postID string) (bool, error)

	// DeleteUnapproved は未承認の記事を削除する。
	// 削除時点で承認済みだった場合は何もせずfalseを返す。
	DeleteUnapproved(ctx context.Context, id string) (bool, error)

	// DeleteByID は承認状態に関わらず記事を削除する。
	DeleteByID(ctx context.Context, id string) error
}

// PublisherRepository は発行元データの永続化インターフェース。
type PublisherRepository interface {
	// FindByID は指定IDの発行元を所属メンバー付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Publisher, error)

	// FindByName は名前（大文字小文字を区別しない）で発行元を検索する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Publisher, error)

	// Create は発行元を作成する。
	Create(ctx context.Context, publisher *model.Publisher) error

	// AddMember は発行元に編集者または記者を追加する。冪等。
	AddMember(ctx context.Context, publisherID, userID string, role model.Role) error

	// RemoveMemberships は指定ユーザーの指定役割での所属を全発行元から削除する。
	RemoveMemberships(ctx context.Context, userID string, role model.Role) error
}

// SubscriptionRepository は購読グラフの永続化インターフェース。
// 辺の追加・削除は冪等な集合操作。追加時の役割確認は書き込みと同じ文で行う。
type SubscriptionRepository interface {
	// SubscribersOfPublisher は発行元を購読している読者IDを返す。
	SubscribersOfPublisher(ctx context.Context, publisherID string) ([]string, error)

	// SubscribersOfJournalist は記者を直接購読している読者IDを返す。
	SubscribersOfJournalist(ctx context.Context, journalistID string) ([]string, error)

	// Add は購読辺を追加する。既に存在する場合は何もしない。
	// 書き込み時点で起点が読者でなければ ErrSubscriberNotReader、
	// 対象が存在しない（記者購読では記者でない）場合は ErrTargetNotFound を返す。
	Add(ctx context.Context, readerID, targetID string, kind model.SubscriptionKind) error

	// Remove は購読辺を削除する。存在しない場合は何もしない。
	Remove(ctx context.Context, readerID, targetID string, kind model.SubscriptionKind) error

	// ListByReader は読者の購読辺を作成日時順で返す。
	ListByReader(ctx context.Context, readerID string) ([]model.SubscriptionEdge, error)

	// DeleteByReader は読者を起点とする全ての購読辺を削除する。
	DeleteByReader(ctx context.Context, readerID string) error

	// DeleteByTarget は指定対象への全ての購読辺を削除する。
	DeleteByTarget(ctx context.Context, targetID string, kind model.SubscriptionKind) error
}

// NewsletterRepository はニュースレターの永続化インターフェース。
type NewsletterRepository interface {
	// FindByID は指定IDのニュースレターを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Newsletter, error)

	// FindBySlug はスラッグでニュースレターを取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Newsletter, error)

	// List は全ニュースレターを作成日時の降順で返す。
	List(ctx context.Context) ([]*model.Newsletter, error)

	// Create はニュースレターを作成する。スラッグが使用済みなら ErrSlugTaken を返す。
	Create(ctx context.Context, n *model.Newsletter) error

	// Update はタイトル、本文、発行元、発行日時を更新する。存在しない場合はfalseを返す。
	Update(ctx context.Context, n *model.Newsletter) (bool, error)

	// DeleteByID はニュースレターを削除する。存在しない場合はfalseを返す。
	DeleteByID(ctx context.Context, id string) (bool, error)
}
