package model

import "time"

// MaxSlugLength はニュースレターのスラッグの最大長。
const MaxSlugLength = 350

// Newsletter は記者が発行するニュースレターを表す。
// 記事と異なり承認を経ず、発行時に通知も行わない。
type Newsletter struct {
	ID          string
	Title       string
	Slug        string // URL用の一意な識別子。タイトルから生成する
	Content     string
	AuthorID    string
	PublisherID string     // 空文字は独立ニュースレター
	PublishedAt *time.Time // 未発行ならnil
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Independent は発行元を持たない独立ニュースレターかを返す。
func (n *Newsletter) Independent() bool {
	return n.PublisherID == ""
}

// IsPublished は発行済みかを返す。
func (n *Newsletter) IsPublished() bool {
	return n.PublishedAt != nil
}
