// Package access は役割と所有関係に基づく権限判定を提供する。
// 判定関数は状態を変更せず、常にDecisionを返す。
package access

import "github.com/hitoshi/newsdesk/internal/model"

// 拒否理由
const (
	ReasonNoUser          = "user is not authenticated"
	ReasonNoArticle       = "article does not exist"
	ReasonNotJournalist   = "only journalists may perform this action"
	ReasonNotEditor       = "only editors may approve articles"
	ReasonNotReader       = "only readers may subscribe"
	ReasonNotAuthor       = "only the author may modify this article"
	ReasonAlreadyApproved = "approved articles cannot be modified"
	ReasonNoNewsletter    = "newsletter does not exist"
	ReasonNotCurator      = "only editors or the author may modify this newsletter"
)

// Decision は権限判定の結果を表す。
type Decision struct {
	Allowed bool
	Reason  string // 拒否時の理由。許可時は空
}

var allow = Decision{Allowed: true}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Err は拒否された場合にPERMISSION_DENIEDのAPIErrorを返す。許可時はnil。
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return model.NewPermissionDeniedError(d.Reason)
}

func hasRole(user *model.User, role model.Role) bool {
	return user != nil && user.Role == role
}

// CanCreateArticle は記者のみ記事を作成できる。
func CanCreateArticle(user *model.User) Decision {
	if user == nil {
		return deny(ReasonNoUser)
	}
	if !hasRole(user, model.RoleJournalist) {
		return deny(ReasonNotJournalist)
	}
	return allow
}

// CanEditArticle は記事の著者である記者が、承認前の記事に限り編集できる。
func CanEditArticle(user *model.User, article *model.Article) Decision {
	if user == nil {
		return deny(ReasonNoUser)
	}
	if article == nil {
		return deny(ReasonNoArticle)
	}
	if !hasRole(user, model.RoleJournalist) {
		return deny(ReasonNotJournalist)
	}
	if user.ID != article.AuthorID {
		return deny(ReasonNotAuthor)
	}
	if article.IsApproved() {
		return deny(ReasonAlreadyApproved)
	}
	return allow
}

// CanDeleteArticle は編集と同じ条件で削除を許可する。
func CanDeleteArticle(user *model.User, article *model.Article) Decision {
	return CanEditArticle(user, article)
}

// CanApprove は編集者であれば承認できる。発行元への所属は問わない。
// 承認済みかどうかは判定に含めない。二重承認はLifecycle側で遷移なしとして扱う。
func CanApprove(user *model.User, _ *model.Article) Decision {
	if user == nil {
		return deny(ReasonNoUser)
	}
	if !hasRole(user, model.RoleEditor) {
		return deny(ReasonNotEditor)
	}
	return allow
}

// CanSubscribe は読者のみ購読できる。
func CanSubscribe(user *model.User) Decision {
	if user == nil {
		return deny(ReasonNoUser)
	}
	if !hasRole(user, model.RoleReader) {
		return deny(ReasonNotReader)
	}
	return allow
}

// CanCreatePublisher は記者のみ発行元を作成できる。
func CanCreatePublisher(user *model.User) Decision {
	if user == nil {
		return deny(ReasonNoUser)
	}
	if !hasRole(user, model.RoleJournalist) {
		return deny(ReasonNotJournalist)
	}
	return allow
}

// CanCreateNewsletter は記者のみニュースレターを作成できる。
func CanCreateNewsletter(user *model.User) Decision {
	return CanCreateArticle(user)
}

// CanManageNewsletter は編集者、または著者である記者がニュースレターを編集・発行・削除できる。
// 記事と異なり発行後も変更できる。
func CanManageNewsletter(user *model.User, n *model.Newsletter) Decision {
	if user == nil {
		return deny(ReasonNoUser)
	}
	if n == nil {
		return deny(ReasonNoNewsletter)
	}
	if hasRole(user, model.RoleEditor) {
		return allow
	}
	if hasRole(user, model.RoleJournalist) && user.ID == n.AuthorID {
		return allow
	}
	return deny(ReasonNotCurator)
}
