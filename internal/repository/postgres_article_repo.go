package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/newsdesk/internal/model"
)

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

const articleColumns = `id, title, content, summary, author_id, COALESCE(publisher_id::text, ''),
	approval_state, COALESCE(approved_by::text, ''), approved_at, COALESCE(social_post_id, ''),
	created_at, updated_at`

func scanArticle(row interface{ Scan(...any) error }) (*model.Article, error) {
	a := &model.Article{}
	var state string
	var approvedAt sql.NullTime
	if err := row.Scan(
		&a.ID, &a.Title, &a.Content, &a.Summary, &a.AuthorID, &a.PublisherID,
		&state, &a.ApprovedBy, &approvedAt, &a.SocialPostID,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.ApprovalState = model.ApprovalState(state)
	if approvedAt.Valid {
		t := approvedAt.Time
		a.ApprovedAt = &t
	}
	return a, nil
}

// nullableID は空文字をNULLとして扱う。
func nullableID(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByID(ctx context.Context, id string) (*model.Article, error) {
	return r.findOne(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
}

// FindApproved は承認済みの記事を取得する。未承認または存在しない場合はnilを返す。
func (r *PostgresArticleRepo) FindApproved(ctx context.Context, id string) (*model.Article, error) {
	return r.findOne(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1 AND approval_state = 'approved'`, id)
}

func (r *PostgresArticleRepo) findOne(ctx context.Context, query, id string) (*model.Article, error) {
	if !validID(id) {
		return nil, nil
	}
	a, err := scanArticle(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	return a, nil
}

// ListByAuthor は指定記者の記事を作成日時の降順で返す。
func (r *PostgresArticleRepo) ListByAuthor(ctx context.Context, authorID string) ([]*model.Article, error) {
	if !validID(authorID) {
		return nil, nil
	}
	return r.list(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE author_id = $1 ORDER BY created_at DESC`,
		authorID,
	)
}

// ListApproved は承認済みの記事を作成日時の降順で返す。
func (r *PostgresArticleRepo) ListApproved(ctx context.Context) ([]*model.Article, error) {
	return r.list(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE approval_state = 'approved' ORDER BY created_at DESC`,
	)
}

func (r *PostgresArticleRepo) list(ctx context.Context, query string, args ...any) ([]*model.Article, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var articles []*model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}
	return articles, nil
}

// Create は記事を作成する。is_independentは生成列のため書き込まない。
func (r *PostgresArticleRepo) Create(ctx context.Context, a *model.Article) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO articles (id, title, content, summary, author_id, publisher_id, approval_state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Title, a.Content, a.Summary, a.AuthorID, nullableID(a.PublisherID),
		string(a.ApprovalState), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateUnapproved は未承認の記事の可変フィールドを更新する。
// 更新時点で承認済みだった場合は何もせずfalseを返す。
func (r *PostgresArticleRepo) UpdateUnapproved(ctx context.Context, a *model.Article) (bool, error) {
	if !validID(a.ID) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE articles
		 SET title = $2, content = $3, summary = $4, publisher_id = $5, updated_at = $6
		 WHERE id = $1 AND approval_state <> 'approved'`,
		a.ID, a.Title, a.Content, a.Summary, nullableID(a.PublisherID), a.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("記事の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	return rowsAffected == 1, nil
}

// CompareAndSetApproved は未承認の記事を承認済みに遷移させる。
// 条件付きUPDATE1文で判定と書き込みを行うため、同時に呼ばれても遷移するのは1回だけである。
func (r *PostgresArticleRepo) CompareAndSetApproved(ctx context.Context, id, editorID string, now time.Time) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE articles
		 SET approval_state = 'approved', approved_by = $2, approved_at = $3, updated_at = $3
		 WHERE id = $1 AND approval_state <> 'approved'`,
		id, editorID, now,
	)
	if err != nil {
		return false, fmt.Errorf("記事の承認に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("承認結果の取得に失敗しました: %w", err)
	}
	return rowsAffected == 1, nil
}

// SetSocialPostID はソーシャル告知の投稿IDを記録する。
// 記事が既に削除されていた場合は何もせずfalseを返す。
func (r *PostgresArticleRepo) SetSocialPostID(ctx context.Context, id, postID string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE articles SET social_post_id = $2 WHERE id = $1`,
		id, postID,
	)
	if err != nil {
		return false, fmt.Errorf("投稿IDの記録に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("投稿IDの記録結果の取得に失敗しました: %w", err)
	}
	return rowsAffected == 1, nil
}

// DeleteUnapproved は未承認の記事を削除する。
// 削除時点で承認済みだった場合は何もせずfalseを返す。
func (r *PostgresArticleRepo) DeleteUnapproved(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM articles WHERE id = $1 AND approval_state <> 'approved'`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("記事の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return rowsAffected == 1, nil
}

// DeleteByID は承認状態に関わらず記事を削除する。
func (r *PostgresArticleRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM articles WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("記事の削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
