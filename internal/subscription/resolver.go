package subscription

import (
	"context"
	"fmt"
	"sort"

	"github.com/hitoshi/newsdesk/internal/model"
)

// SubscriberSource は購読者集合の読み取りインターフェース。
// repository.SubscriptionRepositoryが満たす。
type SubscriberSource interface {
	SubscribersOfPublisher(ctx context.Context, publisherID string) ([]string, error)
	SubscribersOfJournalist(ctx context.Context, journalistID string) ([]string, error)
}

// Resolver は承認された記事の通知対象者を解決する。
// 購読グラフを読むだけで副作用を持たない。
type Resolver struct {
	source SubscriberSource
}

// NewResolver はResolverを生成する。
func NewResolver(source SubscriberSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve は記事の発行元の購読者と著者の購読者の和集合を返す。
// 重複は除かれ、結果は読者IDの昇順に並ぶ。
// 独立記事では発行元の購読者は参照しない。
func (r *Resolver) Resolve(ctx context.Context, article *model.Article) ([]string, error) {
	seen := make(map[string]struct{})

	if !article.Independent() {
		ids, err := r.source.SubscribersOfPublisher(ctx, article.PublisherID)
		if err != nil {
			return nil, fmt.Errorf("発行元の購読者の取得に失敗しました: %w", err)
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	ids, err := r.source.SubscribersOfJournalist(ctx, article.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("記者の購読者の取得に失敗しました: %w", err)
	}
	for _, id := range ids {
		seen[id] = struct{}{}
	}

	recipients := make([]string, 0, len(seen))
	for id := range seen {
		recipients = append(recipients, id)
	}
	sort.Strings(recipients)
	return recipients, nil
}
