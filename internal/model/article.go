package model

import "time"

// ApprovalState は記事の承認状態を表す。
type ApprovalState string

const (
	// ApprovalStateDraft は下書き状態。
	ApprovalStateDraft ApprovalState = "draft"
	// ApprovalStatePending は承認待ち状態。投稿直後の状態。
	ApprovalStatePending ApprovalState = "pending_approval"
	// ApprovalStateApproved は承認済み状態。終端状態で、以降は遷移しない。
	ApprovalStateApproved ApprovalState = "approved"
)

const (
	// MaxTitleLength はタイトルの最大文字数。
	MaxTitleLength = 300
	// MaxSummaryLength は要約の最大文字数。
	MaxSummaryLength = 1500
)

// Article は記者が執筆した記事を表す。
type Article struct {
	ID            string
	Title         string
	Content       string
	Summary       string
	AuthorID      string
	PublisherID   string // 空文字は独立記事
	ApprovalState ApprovalState
	ApprovedBy    string
	ApprovedAt    *time.Time
	SocialPostID  string // ソーシャル告知の投稿ID。未投稿なら空
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Independent は発行元を持たない独立記事かを返す。
// PublisherIDから毎回導出し、独立したフィールドとしては保持しない。
func (a *Article) Independent() bool {
	return a.PublisherID == ""
}

// IsApproved は承認済みかを返す。
func (a *Article) IsApproved() bool {
	return a.ApprovalState == ApprovalStateApproved
}
