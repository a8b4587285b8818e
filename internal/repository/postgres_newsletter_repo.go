package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/newsdesk/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// PostgresNewsletterRepo はPostgreSQLを使用したニュースレターリポジトリ。
type PostgresNewsletterRepo struct {
	db *sql.DB
}

// NewPostgresNewsletterRepo はPostgresNewsletterRepoを生成する。
func NewPostgresNewsletterRepo(db *sql.DB) *PostgresNewsletterRepo {
	return &PostgresNewsletterRepo{db: db}
}

const newsletterColumns = `id, title, slug, content, author_id, COALESCE(publisher_id::text, ''),
	published_at, created_at, updated_at`

func scanNewsletter(row interface{ Scan(...any) error }) (*model.Newsletter, error) {
	n := &model.Newsletter{}
	var publishedAt sql.NullTime
	if err := row.Scan(
		&n.ID, &n.Title, &n.Slug, &n.Content, &n.AuthorID, &n.PublisherID,
		&publishedAt, &n.CreatedAt, &n.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		n.PublishedAt = &t
	}
	return n, nil
}

// FindByID は指定IDのニュースレターを取得する。見つからない場合はnilを返す。
func (r *PostgresNewsletterRepo) FindByID(ctx context.Context, id string) (*model.Newsletter, error) {
	if !validID(id) {
		return nil, nil
	}
	return r.findOne(ctx, `SELECT `+newsletterColumns+` FROM newsletters WHERE id = $1`, id)
}

// FindBySlug はスラッグでニュースレターを取得する。見つからない場合はnilを返す。
func (r *PostgresNewsletterRepo) FindBySlug(ctx context.Context, slug string) (*model.Newsletter, error) {
	return r.findOne(ctx, `SELECT `+newsletterColumns+` FROM newsletters WHERE slug = $1`, slug)
}

func (r *PostgresNewsletterRepo) findOne(ctx context.Context, query, arg string) (*model.Newsletter, error) {
	n, err := scanNewsletter(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ニュースレターの取得に失敗しました: %w", err)
	}
	return n, nil
}

// List は全ニュースレターを作成日時の降順で返す。
func (r *PostgresNewsletterRepo) List(ctx context.Context) ([]*model.Newsletter, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+newsletterColumns+` FROM newsletters ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("ニュースレター一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var newsletters []*model.Newsletter
	for rows.Next() {
		n, err := scanNewsletter(rows)
		if err != nil {
			return nil, fmt.Errorf("ニュースレター行の読み取りに失敗しました: %w", err)
		}
		newsletters = append(newsletters, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ニュースレター一覧の走査に失敗しました: %w", err)
	}
	return newsletters, nil
}

// Create はニュースレターを作成する。is_independentは生成列のため書き込まない。
func (r *PostgresNewsletterRepo) Create(ctx context.Context, n *model.Newsletter) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO newsletters (id, title, slug, content, author_id, publisher_id, published_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.Title, n.Slug, n.Content, n.AuthorID, nullableID(n.PublisherID),
		n.PublishedAt, n.CreatedAt, n.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == "newsletters_slug_key" {
		return ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("ニュースレターの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はタイトル、本文、発行元、発行日時を更新する。スラッグは作成時のまま変えない。
func (r *PostgresNewsletterRepo) Update(ctx context.Context, n *model.Newsletter) (bool, error) {
	if !validID(n.ID) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE newsletters
		 SET title = $2, content = $3, publisher_id = $4, published_at = $5, updated_at = $6
		 WHERE id = $1`,
		n.ID, n.Title, n.Content, nullableID(n.PublisherID), n.PublishedAt, n.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("ニュースレターの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	return rowsAffected == 1, nil
}

// DeleteByID はニュースレターを削除する。存在しない場合はfalseを返す。
func (r *PostgresNewsletterRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM newsletters WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("ニュースレターの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return rowsAffected == 1, nil
}

// compile-time interface check
var _ NewsletterRepository = (*PostgresNewsletterRepo)(nil)
