package repository

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrSubscriberNotReader は購読辺の書き込み時点で起点ユーザーが読者でないことを表す。
	ErrSubscriberNotReader = errors.New("subscriber is not a reader")

	// ErrTargetNotFound は購読辺の書き込み時点で購読対象が存在しないことを表す。
	// 記者購読では対象ユーザーが現在記者でない場合も含む。
	ErrTargetNotFound = errors.New("subscription target not found")

	// ErrSlugTaken はニュースレターのスラッグが既に使われていることを表す。
	ErrSlugTaken = errors.New("newsletter slug already taken")
)

// validID はPostgreSQLのUUID列に渡せる形式かどうかを判定する。
// 形式が不正なIDは該当行なしとして扱い、ドライバの構文エラーを表に出さない。
func validID(id string) bool {
	return uuid.Validate(id) == nil
}
