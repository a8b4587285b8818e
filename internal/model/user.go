// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はユーザーの役割を表す。実行できる操作を決定する。
type Role string

const (
	// RoleReader は購読して記事を受け取る読者。
	RoleReader Role = "reader"
	// RoleEditor は記事を承認する編集者。
	RoleEditor Role = "editor"
	// RoleJournalist は記事を執筆する記者。
	RoleJournalist Role = "journalist"
)

// ParseRole は文字列をRoleに変換する。大文字小文字は区別しない。
// 未知の値の場合はfalseを返す。
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleReader:
		return RoleReader, true
	case RoleEditor:
		return RoleEditor, true
	case RoleJournalist:
		return RoleJournalist, true
	default:
		return "", false
	}
}

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Username  string
	Email     string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
// IDは不透明なトークンとしてクライアントに渡される。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
