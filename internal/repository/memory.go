package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/newsdesk/internal/model"
)

// MemoryStore はプロセス内メモリに全データを保持するストア。
// テストと単一プロセスでの検証用。全リポジトリが1つのロックを共有し、
// ユーザー削除時の連鎖削除をPostgreSQLの外部キーと同じ順序で行う。
type MemoryStore struct {
	mu sync.RWMutex

	users      map[string]model.User
	sessions   map[string]model.Session
	articles   map[string]model.Article
	publishers map[string]model.Publisher
	letters    map[string]model.Newsletter
	// edges は購読種別ごとの reader_id -> target_id -> created_at。
	edges map[model.SubscriptionKind]map[string]map[string]time.Time

	now func() time.Time
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]model.User),
		sessions:   make(map[string]model.Session),
		articles:   make(map[string]model.Article),
		publishers: make(map[string]model.Publisher),
		letters:    make(map[string]model.Newsletter),
		edges: map[model.SubscriptionKind]map[string]map[string]time.Time{
			model.SubscriptionKindPublisher:  {},
			model.SubscriptionKindJournalist: {},
		},
		now: time.Now,
	}
}

// Users はユーザーリポジトリとしてのビューを返す。
func (s *MemoryStore) Users() *MemoryUserRepo { return &MemoryUserRepo{s: s} }

// Sessions はセッションリポジトリとしてのビューを返す。
func (s *MemoryStore) Sessions() *MemorySessionRepo { return &MemorySessionRepo{s: s} }

// Articles は記事リポジトリとしてのビューを返す。
func (s *MemoryStore) Articles() *MemoryArticleRepo { return &MemoryArticleRepo{s: s} }

// Publishers は発行元リポジトリとしてのビューを返す。
func (s *MemoryStore) Publishers() *MemoryPublisherRepo { return &MemoryPublisherRepo{s: s} }

// Subscriptions は購読リポジトリとしてのビューを返す。
func (s *MemoryStore) Subscriptions() *MemorySubscriptionRepo { return &MemorySubscriptionRepo{s: s} }

// Newsletters はニュースレターリポジトリとしてのビューを返す。
func (s *MemoryStore) Newsletters() *MemoryNewsletterRepo { return &MemoryNewsletterRepo{s: s} }

func copyPublisher(p model.Publisher) *model.Publisher {
	p.EditorIDs = append([]string(nil), p.EditorIDs...)
	p.JournalistIDs = append([]string(nil), p.JournalistIDs...)
	return &p
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// --- users ---

// MemoryUserRepo はMemoryStore上のUserRepository実装。
type MemoryUserRepo struct{ s *MemoryStore }

func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *MemoryUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (r *MemoryUserRepo) FindByRole(_ context.Context, role model.Role) ([]*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var users []*model.User
	for _, u := range r.s.users {
		if u.Role == role {
			u := u
			users = append(users, &u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (r *MemoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; ok {
		return fmt.Errorf("user already exists: %s", user.ID)
	}
	for _, u := range r.s.users {
		if u.Username == user.Username {
			return fmt.Errorf("username already taken: %s", user.Username)
		}
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r *MemoryUserRepo) UpdateRole(_ context.Context, id string, role model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return fmt.Errorf("user not found: %s", id)
	}
	u.Role = role
	u.UpdatedAt = r.s.now()
	r.s.users[id] = u
	return nil
}

// DeleteByID はユーザーを削除し、セッション・記事・購読辺・所属を連鎖削除する。
func (r *MemoryUserRepo) DeleteByID(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return fmt.Errorf("user not found: %s", id)
	}
	delete(r.s.users, id)

	for sid, sess := range r.s.sessions {
		if sess.UserID == id {
			delete(r.s.sessions, sid)
		}
	}
	for aid, a := range r.s.articles {
		if a.AuthorID == id {
			delete(r.s.articles, aid)
		}
	}
	for nid, n := range r.s.letters {
		if n.AuthorID == id {
			delete(r.s.letters, nid)
		}
	}
	for kind, byReader := range r.s.edges {
		delete(byReader, id)
		if kind == model.SubscriptionKindJournalist {
			for _, targets := range byReader {
				delete(targets, id)
			}
		}
	}
	for pid, p := range r.s.publishers {
		p.EditorIDs = removeID(p.EditorIDs, id)
		p.JournalistIDs = removeID(p.JournalistIDs, id)
		r.s.publishers[pid] = p
	}
	return nil
}

// --- sessions ---

// MemorySessionRepo はMemoryStore上のSessionRepository実装。
type MemorySessionRepo struct{ s *MemoryStore }

func (r *MemorySessionRepo) Create(_ context.Context, session *model.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[session.UserID]; !ok {
		return fmt.Errorf("user not found: %s", session.UserID)
	}
	r.s.sessions[session.ID] = *session
	return nil
}

func (r *MemorySessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sess, ok := r.s.sessions[id]
	if !ok || !sess.ExpiresAt.After(r.s.now()) {
		return nil, nil
	}
	return &sess, nil
}

func (r *MemorySessionRepo) ListByUserID(_ context.Context, userID string) ([]*model.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	now := r.s.now()
	var sessions []*model.Session
	for _, sess := range r.s.sessions {
		if sess.UserID == userID && sess.ExpiresAt.After(now) {
			sess := sess
			sessions = append(sessions, &sess)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.Before(sessions[j].CreatedAt) })
	return sessions, nil
}

func (r *MemorySessionRepo) DeleteByID(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, id)
	return nil
}

func (r *MemorySessionRepo) DeleteByUserID(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, sess := range r.s.sessions {
		if sess.UserID == userID {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *MemorySessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, sess := range r.s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}

// --- articles ---

// MemoryArticleRepo はMemoryStore上のArticleRepository実装。
type MemoryArticleRepo struct{ s *MemoryStore }

func (r *MemoryArticleRepo) FindByID(_ context.Context, id string) (*model.Article, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.articles[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *MemoryArticleRepo) FindApproved(ctx context.Context, id string) (*model.Article, error) {
	a, err := r.FindByID(ctx, id)
	if err != nil || a == nil || !a.IsApproved() {
		return nil, err
	}
	return a, nil
}

func (r *MemoryArticleRepo) ListByAuthor(_ context.Context, authorID string) ([]*model.Article, error) {
	return r.filter(func(a model.Article) bool { return a.AuthorID == authorID }), nil
}

func (r *MemoryArticleRepo) ListApproved(_ context.Context) ([]*model.Article, error) {
	return r.filter(func(a model.Article) bool { return a.IsApproved() }), nil
}

// filter は条件に合う記事を作成日時の降順で返す。
func (r *MemoryArticleRepo) filter(match func(model.Article) bool) []*model.Article {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var articles []*model.Article
	for _, a := range r.s.articles {
		if match(a) {
			a := a
			articles = append(articles, &a)
		}
	}
	sort.Slice(articles, func(i, j int) bool { return articles[i].CreatedAt.After(articles[j].CreatedAt) })
	return articles
}

func (r *MemoryArticleRepo) Create(_ context.Context, a *model.Article) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.articles[a.ID]; ok {
		return fmt.Errorf("article already exists: %s", a.ID)
	}
	r.s.articles[a.ID] = *a
	return nil
}

func (r *MemoryArticleRepo) UpdateUnapproved(_ context.Context, a *model.Article) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.articles[a.ID]
	if !ok || cur.IsApproved() {
		return false, nil
	}
	cur.Title = a.Title
	cur.Content = a.Content
	cur.Summary = a.Summary
	cur.PublisherID = a.PublisherID
	cur.UpdatedAt = a.UpdatedAt
	r.s.articles[a.ID] = cur
	return true, nil
}

// CompareAndSetApproved は書き込みロック下で判定と遷移を行う。
func (r *MemoryArticleRepo) CompareAndSetApproved(_ context.Context, id, editorID string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.articles[id]
	if !ok || a.IsApproved() {
		return false, nil
	}
	a.ApprovalState = model.ApprovalStateApproved
	a.ApprovedBy = editorID
	t := now
	a.ApprovedAt = &t
	a.UpdatedAt = now
	r.s.articles[id] = a
	return true, nil
}

func (r *MemoryArticleRepo) SetSocialPostID(_ context.Context, id, postID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.articles[id]
	if !ok {
		return false, nil
	}
	a.SocialPostID = postID
	r.s.articles[id] = a
	return true, nil
}

func (r *MemoryArticleRepo) DeleteUnapproved(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.articles[id]
	if !ok || a.IsApproved() {
		return false, nil
	}
	delete(r.s.articles, id)
	return true, nil
}

func (r *MemoryArticleRepo) DeleteByID(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.articles, id)
	return nil
}

// --- publishers ---

// MemoryPublisherRepo はMemoryStore上のPublisherRepository実装。
type MemoryPublisherRepo struct{ s *MemoryStore }

func (r *MemoryPublisherRepo) FindByID(_ context.Context, id string) (*model.Publisher, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.publishers[id]
	if !ok {
		return nil, nil
	}
	return copyPublisher(p), nil
}

func (r *MemoryPublisherRepo) FindByName(_ context.Context, name string) (*model.Publisher, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.publishers {
		if strings.EqualFold(p.Name, name) {
			return copyPublisher(p), nil
		}
	}
	return nil, nil
}

func (r *MemoryPublisherRepo) Create(_ context.Context, p *model.Publisher) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.publishers {
		if strings.EqualFold(existing.Name, p.Name) {
			return fmt.Errorf("publisher name already taken: %s", p.Name)
		}
	}
	r.s.publishers[p.ID] = *copyPublisher(*p)
	return nil
}

func (r *MemoryPublisherRepo) AddMember(_ context.Context, publisherID, userID string, role model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.publishers[publisherID]
	if !ok {
		return fmt.Errorf("publisher not found: %s", publisherID)
	}
	switch role {
	case model.RoleEditor:
		p.EditorIDs = append(removeID(p.EditorIDs, userID), userID)
	case model.RoleJournalist:
		p.JournalistIDs = append(removeID(p.JournalistIDs, userID), userID)
	default:
		return fmt.Errorf("invalid member role: %s", role)
	}
	r.s.publishers[publisherID] = p
	return nil
}

func (r *MemoryPublisherRepo) RemoveMemberships(_ context.Context, userID string, role model.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for pid, p := range r.s.publishers {
		switch role {
		case model.RoleEditor:
			p.EditorIDs = removeID(p.EditorIDs, userID)
		case model.RoleJournalist:
			p.JournalistIDs = removeID(p.JournalistIDs, userID)
		}
		r.s.publishers[pid] = p
	}
	return nil
}

// --- subscriptions ---

// MemorySubscriptionRepo はMemoryStore上のSubscriptionRepository実装。
type MemorySubscriptionRepo struct{ s *MemoryStore }

func (r *MemorySubscriptionRepo) subscribersOf(kind model.SubscriptionKind, targetID string) []string {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var ids []string
	for readerID, targets := range r.s.edges[kind] {
		if _, ok := targets[targetID]; ok {
			ids = append(ids, readerID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *MemorySubscriptionRepo) SubscribersOfPublisher(_ context.Context, publisherID string) ([]string, error) {
	return r.subscribersOf(model.SubscriptionKindPublisher, publisherID), nil
}

func (r *MemorySubscriptionRepo) SubscribersOfJournalist(_ context.Context, journalistID string) ([]string, error) {
	return r.subscribersOf(model.SubscriptionKindJournalist, journalistID), nil
}

func (r *MemorySubscriptionRepo) Add(_ context.Context, readerID, targetID string, kind model.SubscriptionKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown subscription kind: %q", kind)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[readerID]; !ok || u.Role != model.RoleReader {
		return ErrSubscriberNotReader
	}
	switch kind {
	case model.SubscriptionKindPublisher:
		if _, ok := r.s.publishers[targetID]; !ok {
			return ErrTargetNotFound
		}
	case model.SubscriptionKindJournalist:
		if u, ok := r.s.users[targetID]; !ok || u.Role != model.RoleJournalist {
			return ErrTargetNotFound
		}
	}
	targets, ok := r.s.edges[kind][readerID]
	if !ok {
		targets = make(map[string]time.Time)
		r.s.edges[kind][readerID] = targets
	}
	if _, exists := targets[targetID]; !exists {
		targets[targetID] = r.s.now()
	}
	return nil
}

func (r *MemorySubscriptionRepo) Remove(_ context.Context, readerID, targetID string, kind model.SubscriptionKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown subscription kind: %q", kind)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.edges[kind][readerID], targetID)
	return nil
}

func (r *MemorySubscriptionRepo) ListByReader(_ context.Context, readerID string) ([]model.SubscriptionEdge, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var edges []model.SubscriptionEdge
	for kind, byReader := range r.s.edges {
		for targetID, createdAt := range byReader[readerID] {
			edges = append(edges, model.SubscriptionEdge{
				ReaderID:  readerID,
				TargetID:  targetID,
				Kind:      kind,
				CreatedAt: createdAt,
			})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].CreatedAt.Before(edges[j].CreatedAt)
		}
		return edges[i].TargetID < edges[j].TargetID
	})
	return edges, nil
}

func (r *MemorySubscriptionRepo) DeleteByReader(_ context.Context, readerID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, byReader := range r.s.edges {
		delete(byReader, readerID)
	}
	return nil
}

func (r *MemorySubscriptionRepo) DeleteByTarget(_ context.Context, targetID string, kind model.SubscriptionKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown subscription kind: %q", kind)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, targets := range r.s.edges[kind] {
		delete(targets, targetID)
	}
	return nil
}

// --- newsletters ---

// MemoryNewsletterRepo はMemoryStore上のNewsletterRepository実装。
type MemoryNewsletterRepo struct{ s *MemoryStore }

func (r *MemoryNewsletterRepo) FindByID(_ context.Context, id string) (*model.Newsletter, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n, ok := r.s.letters[id]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

func (r *MemoryNewsletterRepo) FindBySlug(_ context.Context, slug string) (*model.Newsletter, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, n := range r.s.letters {
		if n.Slug == slug {
			return &n, nil
		}
	}
	return nil, nil
}

func (r *MemoryNewsletterRepo) List(_ context.Context) ([]*model.Newsletter, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Newsletter
	for _, n := range r.s.letters {
		n := n
		out = append(out, &n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryNewsletterRepo) Create(_ context.Context, n *model.Newsletter) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.letters[n.ID]; ok {
		return fmt.Errorf("newsletter already exists: %s", n.ID)
	}
	for _, existing := range r.s.letters {
		if existing.Slug == n.Slug {
			return ErrSlugTaken
		}
	}
	r.s.letters[n.ID] = *n
	return nil
}

func (r *MemoryNewsletterRepo) Update(_ context.Context, n *model.Newsletter) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.letters[n.ID]
	if !ok {
		return false, nil
	}
	cur.Title = n.Title
	cur.Content = n.Content
	cur.PublisherID = n.PublisherID
	cur.PublishedAt = n.PublishedAt
	cur.UpdatedAt = n.UpdatedAt
	r.s.letters[n.ID] = cur
	return true, nil
}

func (r *MemoryNewsletterRepo) DeleteByID(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.letters[id]; !ok {
		return false, nil
	}
	delete(r.s.letters, id)
	return true, nil
}

// compile-time interface checks
var (
	_ UserRepository         = (*MemoryUserRepo)(nil)
	_ SessionRepository      = (*MemorySessionRepo)(nil)
	_ ArticleRepository      = (*MemoryArticleRepo)(nil)
	_ PublisherRepository    = (*MemoryPublisherRepo)(nil)
	_ SubscriptionRepository = (*MemorySubscriptionRepo)(nil)
	_ NewsletterRepository   = (*MemoryNewsletterRepo)(nil)
)
