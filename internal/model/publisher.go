package model

import "time"

// Publisher は記事を発行する報道機関を表す。
// 購読者は購読グラフ（SubscriptionRepository）側で管理する。
type Publisher struct {
	ID            string
	Name          string
	Description   string
	Website       string
	EditorIDs     []string
	JournalistIDs []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasJournalist は指定ユーザーが所属記者かを返す。
func (p *Publisher) HasJournalist(userID string) bool {
	for _, id := range p.JournalistIDs {
		if id == userID {
			return true
		}
	}
	return false
}
