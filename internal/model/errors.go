// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// 呼び出し元に表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, article, subscription, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodePermissionDenied   = "PERMISSION_DENIED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeArticleNotFound    = "ARTICLE_NOT_FOUND"
	ErrCodePublisherNotFound  = "PUBLISHER_NOT_FOUND"
	ErrCodeJournalistNotFound = "JOURNALIST_NOT_FOUND"
	ErrCodeInvalidRole        = "INVALID_ROLE"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeDuplicatePublisher = "DUPLICATE_PUBLISHER"
	ErrCodeNewsletterNotFound = "NEWSLETTER_NOT_FOUND"
)

// HasCode はerrのチェーン中に指定コードのAPIErrorが含まれるかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewPermissionDeniedError は権限不足エラーを生成する。
// reasonには拒否された判定の理由を渡す。
func NewPermissionDeniedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePermissionDenied,
		Message:  fmt.Sprintf("この操作を行う権限がありません: %s", reason),
		Category: "auth",
		Action:   "操作に必要な役割でログインしているか確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewArticleNotFoundError は記事未検出エラーを生成する。
func NewArticleNotFoundError(articleID string) *APIError {
	return &APIError{
		Code:     ErrCodeArticleNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %s", articleID),
		Category: "article",
		Action:   "記事IDを確認してください。",
	}
}

// NewPublisherNotFoundError は発行元未検出エラーを生成する。
func NewPublisherNotFoundError(publisherID string) *APIError {
	return &APIError{
		Code:     ErrCodePublisherNotFound,
		Message:  fmt.Sprintf("指定された発行元が見つかりません: %s", publisherID),
		Category: "article",
		Action:   "発行元IDを確認するか、独立記事として投稿してください。",
	}
}

// NewJournalistNotFoundError は記者未検出エラーを生成する。
// 指定ユーザーが存在しても記者でない場合もこのエラーになる。
func NewJournalistNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeJournalistNotFound,
		Message:  fmt.Sprintf("指定された記者が見つかりません: %s", userID),
		Category: "subscription",
		Action:   "記者IDを確認してください。",
	}
}

// NewInvalidRoleError は無効な役割エラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効な役割です: %s", role),
		Category: "validation",
		Action:   "役割には reader、editor、journalist のいずれかを指定してください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewDuplicatePublisherError は同名の発行元が既に存在する場合のエラーを生成する。
func NewDuplicatePublisherError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicatePublisher,
		Message:  fmt.Sprintf("発行元 %q は既に存在します。", name),
		Category: "validation",
		Action:   "別の名前を指定してください。",
	}
}

// NewNewsletterNotFoundError はニュースレター未検出エラーを生成する。
func NewNewsletterNotFoundError(ref string) *APIError {
	return &APIError{
		Code:     ErrCodeNewsletterNotFound,
		Message:  fmt.Sprintf("指定されたニュースレターが見つかりません: %s", ref),
		Category: "article",
		Action:   "ニュースレターのIDまたはスラッグを確認してください。",
	}
}
